package repository

import (
	"context"
	"errors"

	"github.com/sharmash3/restaurant-review-be/internal/domain"
)

// ErrVersionConflict is returned by Save when the stored aggregate has moved
// past the version the caller read.
var ErrVersionConflict = errors.New("restaurant version conflict")

// FreshReader is implemented by repositories that may serve FindByID from a
// cache. FindByIDFresh always reads the backing store.
type FreshReader interface {
	FindByIDFresh(ctx context.Context, id string) (*domain.Restaurant, error)
}

// FindFresh loads id from the backing store, bypassing any cache in front of
// repo. Read-modify-write cycles use it so their checks never run on a stale
// copy.
func FindFresh(ctx context.Context, repo RestaurantRepository, id string) (*domain.Restaurant, error) {
	if f, ok := repo.(FreshReader); ok {
		return f.FindByIDFresh(ctx, id)
	}
	return repo.FindByID(ctx, id)
}

// RestaurantRepository persists restaurant aggregates, reviews included, as
// whole documents.
type RestaurantRepository interface {
	// FindByID returns the aggregate or an apperrors NotFound error.
	FindByID(ctx context.Context, id string) (*domain.Restaurant, error)

	// Save inserts the aggregate when Version is 0, otherwise replaces it only
	// if the stored version still equals Version. The returned copy carries
	// the new version.
	Save(ctx context.Context, restaurant *domain.Restaurant) (*domain.Restaurant, error)

	// DeleteByID removes the aggregate. Deleting a missing id is not an error.
	DeleteByID(ctx context.Context, id string) error

	// FindAll pages over every restaurant.
	FindAll(ctx context.Context, page domain.PageRequest) (*domain.RestaurantPage, error)

	// FindByRatingFloor pages over restaurants rated at least min.
	FindByRatingFloor(ctx context.Context, min float64, page domain.PageRequest) (*domain.RestaurantPage, error)

	// FindByTextAndRatingFloor pages over restaurants matching text and rated at least min.
	FindByTextAndRatingFloor(ctx context.Context, text string, min float64, page domain.PageRequest) (*domain.RestaurantPage, error)

	// FindByGeoRadius pages over restaurants within radiusKm of the point, nearest first.
	FindByGeoRadius(ctx context.Context, lat, lon, radiusKm float64, page domain.PageRequest) (*domain.RestaurantPage, error)

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error
}
