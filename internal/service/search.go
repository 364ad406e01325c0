package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sharmash3/restaurant-review-be/internal/domain"
	"github.com/sharmash3/restaurant-review-be/internal/repository"
)

// SearchService routes a search to the single store query matching its filter.
type SearchService struct {
	repo   repository.RestaurantRepository
	logger *slog.Logger
}

// NewSearchService creates a new search service.
func NewSearchService(repo repository.RestaurantRepository, logger *slog.Logger) *SearchService {
	return &SearchService{repo: repo, logger: logger}
}

// Search builds the filter for params and runs it.
func (s *SearchService) Search(ctx context.Context, params domain.SearchParams, page domain.PageRequest) (*domain.RestaurantPage, error) {
	filter := domain.NewSearchFilter(params)
	return s.Run(ctx, filter, page)
}

// Run executes filter against the store.
func (s *SearchService) Run(ctx context.Context, filter domain.SearchFilter, page domain.PageRequest) (*domain.RestaurantPage, error) {
	var (
		result *domain.RestaurantPage
		err    error
	)
	switch f := filter.(type) {
	case domain.RatingOnly:
		result, err = s.repo.FindByRatingFloor(ctx, f.Min, page)
	case domain.TextAndRating:
		result, err = s.repo.FindByTextAndRatingFloor(ctx, f.Text, f.Min, page)
	case domain.GeoRadius:
		result, err = s.repo.FindByGeoRadius(ctx, f.Latitude, f.Longitude, f.RadiusKm, page)
	case domain.Unfiltered:
		result, err = s.repo.FindAll(ctx, page)
	default:
		return nil, fmt.Errorf("unsupported search filter %T", filter)
	}
	if err != nil {
		return nil, fmt.Errorf("search restaurants: %w", err)
	}

	s.logger.DebugContext(ctx, "search executed",
		slog.String("filter", fmt.Sprintf("%T", filter)),
		slog.Int("total", result.Total),
	)
	return result, nil
}
