package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sharmash3/restaurant-review-be/internal/clock"
	"github.com/sharmash3/restaurant-review-be/internal/domain"
	"github.com/sharmash3/restaurant-review-be/internal/geo"
	"github.com/sharmash3/restaurant-review-be/internal/repository"
	apperrors "github.com/sharmash3/restaurant-review-be/pkg/errors"
)

// RestaurantInput holds the editable fields of a restaurant. Coordinates are
// derived from Address; rating and reviews are never set directly.
type RestaurantInput struct {
	Name               string
	CuisineType        string
	ContactInformation string
	Address            domain.Address
	OperatingHours     *domain.OperatingHours
	PhotoURLs          []string
}

func (in RestaurantInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperrors.InvalidInput("restaurant name must not be blank")
	}
	if strings.TrimSpace(in.Address.City) == "" {
		return apperrors.InvalidInput("address city must not be blank")
	}
	return nil
}

// RestaurantService implements restaurant CRUD.
type RestaurantService struct {
	repo      repository.RestaurantRepository
	resolver  geo.Resolver
	publisher EventPublisher
	clock     clock.Clock
	logger    *slog.Logger
}

// NewRestaurantService creates a new restaurant service.
func NewRestaurantService(
	repo repository.RestaurantRepository,
	resolver geo.Resolver,
	publisher EventPublisher,
	clk clock.Clock,
	logger *slog.Logger,
) *RestaurantService {
	return &RestaurantService{
		repo:      repo,
		resolver:  resolver,
		publisher: publisher,
		clock:     clk,
		logger:    logger,
	}
}

// CreateRestaurant stores a new restaurant with a fresh id, no reviews and a
// zero rating.
func (s *RestaurantService) CreateRestaurant(ctx context.Context, input RestaurantInput) (*domain.Restaurant, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	location, err := s.resolve(ctx, input.Address)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	restaurant := &domain.Restaurant{
		ID:                 uuid.NewString(),
		Name:               input.Name,
		CuisineType:        input.CuisineType,
		ContactInformation: input.ContactInformation,
		Address:            input.Address,
		GeoLocation:        location,
		AverageRating:      0,
		OperatingHours:     input.OperatingHours,
		Photos:             domain.NewPhotos(input.PhotoURLs, now),
		Reviews:            []domain.Review{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	saved, err := s.repo.Save(ctx, restaurant)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, apperrors.AlreadyExists("restaurant", "id", restaurant.ID)
		}
		return nil, fmt.Errorf("create restaurant: %w", err)
	}

	s.logger.InfoContext(ctx, "restaurant created",
		slog.String("restaurant_id", saved.ID),
		slog.String("name", saved.Name),
	)
	if err := s.publisher.PublishRestaurantCreated(ctx, saved); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish restaurant.created event",
			slog.String("restaurant_id", saved.ID),
			slog.String("error", err.Error()),
		)
	}
	return saved, nil
}

// GetRestaurant returns the full aggregate.
func (s *RestaurantService) GetRestaurant(ctx context.Context, id string) (*domain.Restaurant, error) {
	return s.repo.FindByID(ctx, id)
}

// UpdateRestaurant replaces every editable field and re-resolves the
// coordinates from the new address. Rating and reviews are kept.
func (s *RestaurantService) UpdateRestaurant(ctx context.Context, id string, input RestaurantInput) (*domain.Restaurant, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	// Fail fast on a missing restaurant before calling the resolver.
	if _, err := repository.FindFresh(ctx, s.repo, id); err != nil {
		return nil, err
	}
	location, err := s.resolve(ctx, input.Address)
	if err != nil {
		return nil, err
	}

	saved, err := mutateRestaurant(ctx, s.repo, s.logger, id, func(r *domain.Restaurant) error {
		now := s.clock.Now()
		r.Name = input.Name
		r.CuisineType = input.CuisineType
		r.ContactInformation = input.ContactInformation
		r.Address = input.Address
		r.GeoLocation = location
		r.OperatingHours = input.OperatingHours
		r.Photos = domain.NewPhotos(input.PhotoURLs, now)
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "restaurant updated", slog.String("restaurant_id", id))
	if err := s.publisher.PublishRestaurantUpdated(ctx, saved); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish restaurant.updated event",
			slog.String("restaurant_id", id),
			slog.String("error", err.Error()),
		)
	}
	return saved, nil
}

// DeleteRestaurant removes the restaurant together with its reviews. Deleting
// a restaurant that does not exist succeeds.
func (s *RestaurantService) DeleteRestaurant(ctx context.Context, id string) error {
	if _, err := repository.FindFresh(ctx, s.repo, id); err != nil {
		if apperrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("delete restaurant %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "restaurant deleted", slog.String("restaurant_id", id))
	if err := s.publisher.PublishRestaurantDeleted(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish restaurant.deleted event",
			slog.String("restaurant_id", id),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (s *RestaurantService) resolve(ctx context.Context, addr domain.Address) (domain.GeoLocation, error) {
	location, err := s.resolver.Resolve(ctx, addr)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return domain.GeoLocation{}, err
		}
		return domain.GeoLocation{}, apperrors.UpstreamUnavailable("geo resolver", err)
	}
	return location, nil
}
