package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sharmash3/restaurant-review-be/internal/domain"
	"github.com/sharmash3/restaurant-review-be/internal/geo"
	"github.com/sharmash3/restaurant-review-be/internal/repository"
	apperrors "github.com/sharmash3/restaurant-review-be/pkg/errors"
)

// RestaurantRepository keeps aggregates in a map. Values are cloned on the
// way in and out so callers never share memory with the store.
type RestaurantRepository struct {
	mu          sync.RWMutex
	restaurants map[string]*domain.Restaurant
}

var _ repository.RestaurantRepository = (*RestaurantRepository)(nil)

// NewRestaurantRepository creates an empty store.
func NewRestaurantRepository() *RestaurantRepository {
	return &RestaurantRepository{restaurants: make(map[string]*domain.Restaurant)}
}

// FindByID returns a copy of the stored aggregate.
func (r *RestaurantRepository) FindByID(_ context.Context, id string) (*domain.Restaurant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.restaurants[id]
	if !ok {
		return nil, apperrors.NotFound("restaurant", id)
	}
	return stored.Clone(), nil
}

// Save inserts or compare-and-swaps the aggregate on Version.
func (r *RestaurantRepository) Save(_ context.Context, restaurant *domain.Restaurant) (*domain.Restaurant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.restaurants[restaurant.ID]
	switch {
	case restaurant.Version == 0 && exists:
		return nil, repository.ErrVersionConflict
	case restaurant.Version != 0 && (!exists || stored.Version != restaurant.Version):
		return nil, repository.ErrVersionConflict
	}

	next := restaurant.Clone()
	next.Version++
	r.restaurants[next.ID] = next
	return next.Clone(), nil
}

// DeleteByID removes the aggregate if present.
func (r *RestaurantRepository) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.restaurants, id)
	return nil
}

// FindAll pages over all restaurants, oldest first.
func (r *RestaurantRepository) FindAll(_ context.Context, page domain.PageRequest) (*domain.RestaurantPage, error) {
	return r.query(page, func(*domain.Restaurant) bool { return true }), nil
}

// FindByRatingFloor pages over restaurants rated at least min.
func (r *RestaurantRepository) FindByRatingFloor(_ context.Context, min float64, page domain.PageRequest) (*domain.RestaurantPage, error) {
	return r.query(page, func(rs *domain.Restaurant) bool { return rs.AverageRating >= min }), nil
}

// FindByTextAndRatingFloor matches text case-insensitively against the name,
// cuisine type and city.
func (r *RestaurantRepository) FindByTextAndRatingFloor(_ context.Context, text string, min float64, page domain.PageRequest) (*domain.RestaurantPage, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	return r.query(page, func(rs *domain.Restaurant) bool {
		if rs.AverageRating < min {
			return false
		}
		for _, field := range []string{rs.Name, rs.CuisineType, rs.Address.City} {
			if strings.Contains(strings.ToLower(field), needle) {
				return true
			}
		}
		return false
	}), nil
}

// FindByGeoRadius pages over restaurants within radiusKm, nearest first.
func (r *RestaurantRepository) FindByGeoRadius(_ context.Context, lat, lon, radiusKm float64, page domain.PageRequest) (*domain.RestaurantPage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type hit struct {
		restaurant *domain.Restaurant
		distance   float64
	}
	var hits []hit
	for _, rs := range r.restaurants {
		d := geo.DistanceKm(lat, lon, rs.GeoLocation.Latitude, rs.GeoLocation.Longitude)
		if d <= radiusKm {
			hits = append(hits, hit{rs, d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].distance != hits[j].distance {
			return hits[i].distance < hits[j].distance
		}
		return hits[i].restaurant.ID < hits[j].restaurant.ID
	})

	matched := make([]*domain.Restaurant, len(hits))
	for i, h := range hits {
		matched[i] = h.restaurant
	}
	return slice(matched, page), nil
}

// Ping always succeeds.
func (r *RestaurantRepository) Ping(context.Context) error {
	return nil
}

func (r *RestaurantRepository) query(page domain.PageRequest, match func(*domain.Restaurant) bool) *domain.RestaurantPage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*domain.Restaurant
	for _, rs := range r.restaurants {
		if match(rs) {
			matched = append(matched, rs)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	return slice(matched, page)
}

func slice(matched []*domain.Restaurant, page domain.PageRequest) *domain.RestaurantPage {
	result := &domain.RestaurantPage{Restaurants: []domain.Restaurant{}, Total: len(matched), Page: page}

	start := page.Offset()
	if page.Size <= 0 || start < 0 || start >= len(matched) {
		return result
	}
	end := min(start+page.Size, len(matched))
	for _, rs := range matched[start:end] {
		result.Restaurants = append(result.Restaurants, *rs.Clone())
	}
	return result
}
