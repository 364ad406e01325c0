package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sharmash3/restaurant-review-be/internal/clock"
	"github.com/sharmash3/restaurant-review-be/internal/domain"
	"github.com/sharmash3/restaurant-review-be/internal/repository"
	apperrors "github.com/sharmash3/restaurant-review-be/pkg/errors"
)

// ReviewInput holds the author-supplied part of a review.
type ReviewInput struct {
	Content   string
	Rating    int
	PhotoURLs []string
}

func (in ReviewInput) validate() error {
	if strings.TrimSpace(in.Content) == "" {
		return apperrors.InvalidInput("review content must not be blank")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return apperrors.InvalidInput("rating must be between 1 and 5")
	}
	return nil
}

// ReviewService enforces the review rules on a restaurant aggregate: one review
// per author, the edit window and the derived average rating.
type ReviewService struct {
	repo      repository.RestaurantRepository
	publisher EventPublisher
	clock     clock.Clock
	logger    *slog.Logger
}

// NewReviewService creates a new review service.
func NewReviewService(repo repository.RestaurantRepository, publisher EventPublisher, clk clock.Clock, logger *slog.Logger) *ReviewService {
	return &ReviewService{
		repo:      repo,
		publisher: publisher,
		clock:     clk,
		logger:    logger,
	}
}

// CreateReview adds author's review to the restaurant.
func (s *ReviewService) CreateReview(ctx context.Context, author domain.Author, restaurantID string, input ReviewInput) (_ *domain.Review, err error) {
	defer func() { observeReview("create", err) }()

	if author.ID == "" {
		return nil, apperrors.InvalidInput("author id is required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	reviewID := uuid.NewString()
	saved, err := mutateRestaurant(ctx, s.repo, s.logger, restaurantID, func(r *domain.Restaurant) error {
		if r.ReviewByAuthor(author.ID) >= 0 {
			return apperrors.DuplicateReview(restaurantID, author.ID)
		}
		now := s.clock.Now()
		r.Reviews = append(r.Reviews, domain.Review{
			ID:         reviewID,
			Content:    input.Content,
			Rating:     input.Rating,
			DatePosted: now,
			LastEdited: now,
			Photos:     domain.NewPhotos(input.PhotoURLs, now),
			WrittenBy:  author,
		})
		r.RecomputeAverageRating()
		return nil
	})
	if err != nil {
		return nil, err
	}

	i := saved.ReviewByID(reviewID)
	if i < 0 {
		return nil, apperrors.Internal(fmt.Errorf("review %s missing from saved restaurant %s", reviewID, restaurantID))
	}
	review := saved.Reviews[i]

	s.logger.InfoContext(ctx, "review created",
		slog.String("restaurant_id", restaurantID),
		slog.String("review_id", review.ID),
		slog.Int("rating", review.Rating),
	)
	if err := s.publisher.PublishReviewCreated(ctx, saved, &review); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.created event",
			slog.String("review_id", review.ID),
			slog.String("error", err.Error()),
		)
	}
	return &review, nil
}

// UpdateReview overwrites the content, rating and photos of the caller's own
// review while its edit window is open. A review that does not exist and one
// written by someone else are reported the same way.
func (s *ReviewService) UpdateReview(ctx context.Context, user domain.Author, restaurantID, reviewID string, input ReviewInput) (_ *domain.Review, err error) {
	defer func() { observeReview("update", err) }()

	if user.ID == "" {
		return nil, apperrors.InvalidInput("author id is required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	saved, err := mutateRestaurant(ctx, s.repo, s.logger, restaurantID, func(r *domain.Restaurant) error {
		i := r.ReviewByID(reviewID)
		if i < 0 || r.Reviews[i].WrittenBy.ID != user.ID {
			return apperrors.NotFound("review", reviewID)
		}
		now := s.clock.Now()
		if !r.Reviews[i].Editable(now) {
			return apperrors.EditWindowExpired(reviewID)
		}
		r.Reviews[i].Content = input.Content
		r.Reviews[i].Rating = input.Rating
		r.Reviews[i].Photos = domain.NewPhotos(input.PhotoURLs, now)
		r.Reviews[i].LastEdited = now
		r.RecomputeAverageRating()
		return nil
	})
	if err != nil {
		return nil, err
	}

	review := saved.Reviews[saved.ReviewByID(reviewID)]
	s.logger.InfoContext(ctx, "review updated",
		slog.String("restaurant_id", restaurantID),
		slog.String("review_id", reviewID),
	)
	if err := s.publisher.PublishReviewUpdated(ctx, saved, &review); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.updated event",
			slog.String("review_id", reviewID),
			slog.String("error", err.Error()),
		)
	}
	return &review, nil
}

// DeleteReview removes a review. Deleting a review that is already gone
// succeeds without writing.
func (s *ReviewService) DeleteReview(ctx context.Context, restaurantID, reviewID string) (err error) {
	defer func() { observeReview("delete", err) }()

	removed := false
	saved, err := mutateRestaurant(ctx, s.repo, s.logger, restaurantID, func(r *domain.Restaurant) error {
		i := r.ReviewByID(reviewID)
		if i < 0 {
			return errNoChange
		}
		r.Reviews = append(r.Reviews[:i], r.Reviews[i+1:]...)
		r.RecomputeAverageRating()
		removed = true
		return nil
	})
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	s.logger.InfoContext(ctx, "review deleted",
		slog.String("restaurant_id", restaurantID),
		slog.String("review_id", reviewID),
	)
	if err := s.publisher.PublishReviewDeleted(ctx, saved, reviewID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.deleted event",
			slog.String("review_id", reviewID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// GetReview returns a single review of the restaurant.
func (s *ReviewService) GetReview(ctx context.Context, restaurantID, reviewID string) (*domain.Review, error) {
	r, err := s.repo.FindByID(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	i := r.ReviewByID(reviewID)
	if i < 0 {
		return nil, apperrors.NotFound("review", reviewID)
	}
	review := r.Reviews[i]
	return &review, nil
}

// ListReviews returns one sorted page of the restaurant's reviews.
func (s *ReviewService) ListReviews(ctx context.Context, restaurantID string, req domain.ReviewPageRequest) (*domain.ReviewPage, error) {
	r, err := s.repo.FindByID(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	reviews, total := domain.PaginateReviews(r.Reviews, req)
	return &domain.ReviewPage{
		Reviews: reviews,
		Total:   total,
		Page:    req.Page,
		Size:    req.PageSize,
	}, nil
}
