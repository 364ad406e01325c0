package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sharmash3/restaurant-review-be/internal/domain"
	"github.com/sharmash3/restaurant-review-be/internal/repository"
	apperrors "github.com/sharmash3/restaurant-review-be/pkg/errors"
)

// MaxConflictRetries is how many times a read-modify-write is re-run after
// the store reports a concurrent modification.
const MaxConflictRetries = 3

// errNoChange tells mutateRestaurant that the mutation decided nothing needs
// saving.
var errNoChange = errors.New("no change")

// EventPublisher publishes domain events. Failures are logged by the caller
// and never fail the operation.
type EventPublisher interface {
	PublishRestaurantCreated(ctx context.Context, r *domain.Restaurant) error
	PublishRestaurantUpdated(ctx context.Context, r *domain.Restaurant) error
	PublishRestaurantDeleted(ctx context.Context, restaurantID string) error
	PublishReviewCreated(ctx context.Context, r *domain.Restaurant, review *domain.Review) error
	PublishReviewUpdated(ctx context.Context, r *domain.Restaurant, review *domain.Review) error
	PublishReviewDeleted(ctx context.Context, r *domain.Restaurant, reviewID string) error
}

// mutateRestaurant loads the aggregate from the backing store, applies mutate
// and saves it. When the
// save loses a race the whole cycle runs again on a fresh read, so every check
// inside mutate sees the winning write. mutate may return errNoChange to skip
// the save, in which case the loaded aggregate is returned with a nil error.
func mutateRestaurant(
	ctx context.Context,
	repo repository.RestaurantRepository,
	logger *slog.Logger,
	restaurantID string,
	mutate func(*domain.Restaurant) error,
) (*domain.Restaurant, error) {
	for attempt := 0; ; attempt++ {
		current, err := repository.FindFresh(ctx, repo, restaurantID)
		if err != nil {
			return nil, err
		}

		if err := mutate(current); err != nil {
			if errors.Is(err, errNoChange) {
				return current, nil
			}
			return nil, err
		}

		saved, err := repo.Save(ctx, current)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, fmt.Errorf("save restaurant %s: %w", restaurantID, err)
		}
		versionConflicts.Inc()
		if attempt >= MaxConflictRetries {
			logger.WarnContext(ctx, "giving up after repeated version conflicts",
				slog.String("restaurant_id", restaurantID),
				slog.Int("attempts", attempt+1),
			)
			return nil, apperrors.Conflict("restaurant was modified concurrently, please retry")
		}
		logger.DebugContext(ctx, "version conflict, retrying",
			slog.String("restaurant_id", restaurantID),
			slog.Int("attempt", attempt+1),
		)
	}
}
