package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sharmash3/restaurant-review-be/internal/domain"
	pkgkafka "github.com/sharmash3/restaurant-review-be/pkg/kafka"
	"github.com/sharmash3/restaurant-review-be/pkg/logger"
)

// Aggregate types, also used as the middle segment of topic names.
const (
	AggregateTypeRestaurant = "restaurant"
	AggregateTypeReview     = "review"
)

// Kafka topics for restaurant and review domain events.
var (
	TopicRestaurantCreated = pkgkafka.Topic(AggregateTypeRestaurant, "created")
	TopicRestaurantUpdated = pkgkafka.Topic(AggregateTypeRestaurant, "updated")
	TopicRestaurantDeleted = pkgkafka.Topic(AggregateTypeRestaurant, "deleted")
	TopicReviewCreated     = pkgkafka.Topic(AggregateTypeReview, "created")
	TopicReviewUpdated     = pkgkafka.Topic(AggregateTypeReview, "updated")
	TopicReviewDeleted     = pkgkafka.Topic(AggregateTypeReview, "deleted")
)

// SourceRestaurantService identifies events originating from this service.
const SourceRestaurantService = "restaurant-review-service"

// RestaurantData is the payload for restaurant.created and restaurant.updated.
type RestaurantData struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	CuisineType   string             `json:"cuisine_type"`
	City          string             `json:"city"`
	GeoLocation   domain.GeoLocation `json:"geo_location"`
	AverageRating float64            `json:"average_rating"`
}

// RestaurantDeletedData is the payload for restaurant.deleted.
type RestaurantDeletedData struct {
	ID string `json:"id"`
}

// ReviewData is the payload for review.created and review.updated. It carries
// the restaurant's recomputed average so consumers need not refetch.
type ReviewData struct {
	ID            string    `json:"id"`
	RestaurantID  string    `json:"restaurant_id"`
	AuthorID      string    `json:"author_id"`
	Rating        int       `json:"rating"`
	DatePosted    time.Time `json:"date_posted"`
	LastEdited    time.Time `json:"last_edited"`
	AverageRating float64   `json:"average_rating"`
}

// ReviewDeletedData is the payload for review.deleted.
type ReviewDeletedData struct {
	ID            string  `json:"id"`
	RestaurantID  string  `json:"restaurant_id"`
	AverageRating float64 `json:"average_rating"`
}

// Publisher sends an event envelope to a topic. *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Discard is a Publisher that drops every event. It is used when no brokers
// are configured.
type Discard struct{}

func (Discard) Publish(context.Context, string, *pkgkafka.Event) error { return nil }

// Producer publishes restaurant and review domain events.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: logger}
}

// PublishRestaurantCreated publishes a restaurant.created event.
func (p *Producer) PublishRestaurantCreated(ctx context.Context, r *domain.Restaurant) error {
	return p.publish(ctx, TopicRestaurantCreated, r.ID, AggregateTypeRestaurant, r.Version, restaurantData(r))
}

// PublishRestaurantUpdated publishes a restaurant.updated event.
func (p *Producer) PublishRestaurantUpdated(ctx context.Context, r *domain.Restaurant) error {
	return p.publish(ctx, TopicRestaurantUpdated, r.ID, AggregateTypeRestaurant, r.Version, restaurantData(r))
}

// PublishRestaurantDeleted publishes a restaurant.deleted event.
func (p *Producer) PublishRestaurantDeleted(ctx context.Context, restaurantID string) error {
	return p.publish(ctx, TopicRestaurantDeleted, restaurantID, AggregateTypeRestaurant, 0,
		RestaurantDeletedData{ID: restaurantID})
}

// PublishReviewCreated publishes a review.created event keyed by restaurant id.
func (p *Producer) PublishReviewCreated(ctx context.Context, r *domain.Restaurant, review *domain.Review) error {
	return p.publish(ctx, TopicReviewCreated, r.ID, AggregateTypeReview, r.Version, reviewData(r, review))
}

// PublishReviewUpdated publishes a review.updated event keyed by restaurant id.
func (p *Producer) PublishReviewUpdated(ctx context.Context, r *domain.Restaurant, review *domain.Review) error {
	return p.publish(ctx, TopicReviewUpdated, r.ID, AggregateTypeReview, r.Version, reviewData(r, review))
}

// PublishReviewDeleted publishes a review.deleted event keyed by restaurant id.
func (p *Producer) PublishReviewDeleted(ctx context.Context, r *domain.Restaurant, reviewID string) error {
	return p.publish(ctx, TopicReviewDeleted, r.ID, AggregateTypeReview, r.Version, ReviewDeletedData{
		ID:            reviewID,
		RestaurantID:  r.ID,
		AverageRating: r.AverageRating,
	})
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, version int64, data any) error {
	evt, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceRestaurantService, version, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	if err := p.publisher.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published domain event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

func restaurantData(r *domain.Restaurant) RestaurantData {
	return RestaurantData{
		ID:            r.ID,
		Name:          r.Name,
		CuisineType:   r.CuisineType,
		City:          r.Address.City,
		GeoLocation:   r.GeoLocation,
		AverageRating: r.AverageRating,
	}
}

func reviewData(r *domain.Restaurant, review *domain.Review) ReviewData {
	return ReviewData{
		ID:            review.ID,
		RestaurantID:  r.ID,
		AuthorID:      review.WrittenBy.ID,
		Rating:        review.Rating,
		DatePosted:    review.DatePosted,
		LastEdited:    review.LastEdited,
		AverageRating: r.AverageRating,
	}
}
