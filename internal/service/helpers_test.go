package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sharmash3/restaurant-review-be/internal/clock"
	"github.com/sharmash3/restaurant-review-be/internal/domain"
	"github.com/sharmash3/restaurant-review-be/internal/repository"
	"github.com/sharmash3/restaurant-review-be/internal/repository/memory"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// --- Mock Restaurant Repository ---

type mockRestaurantRepository struct {
	mock.Mock
}

func (m *mockRestaurantRepository) FindByID(ctx context.Context, id string) (*domain.Restaurant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Restaurant).Clone(), args.Error(1)
}

func (m *mockRestaurantRepository) Save(ctx context.Context, r *domain.Restaurant) (*domain.Restaurant, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Restaurant), args.Error(1)
}

func (m *mockRestaurantRepository) DeleteByID(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRestaurantRepository) FindAll(ctx context.Context, page domain.PageRequest) (*domain.RestaurantPage, error) {
	return m.page(m.Called(ctx, page))
}

func (m *mockRestaurantRepository) FindByRatingFloor(ctx context.Context, min float64, page domain.PageRequest) (*domain.RestaurantPage, error) {
	return m.page(m.Called(ctx, min, page))
}

func (m *mockRestaurantRepository) FindByTextAndRatingFloor(ctx context.Context, text string, min float64, page domain.PageRequest) (*domain.RestaurantPage, error) {
	return m.page(m.Called(ctx, text, min, page))
}

func (m *mockRestaurantRepository) FindByGeoRadius(ctx context.Context, lat, lon, radiusKm float64, page domain.PageRequest) (*domain.RestaurantPage, error) {
	return m.page(m.Called(ctx, lat, lon, radiusKm, page))
}

func (m *mockRestaurantRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockRestaurantRepository) page(args mock.Arguments) (*domain.RestaurantPage, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RestaurantPage), args.Error(1)
}

// --- Recording event publisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) record(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, name)
	return p.err
}

func (p *recordingPublisher) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *recordingPublisher) PublishRestaurantCreated(context.Context, *domain.Restaurant) error {
	return p.record("restaurant.created")
}

func (p *recordingPublisher) PublishRestaurantUpdated(context.Context, *domain.Restaurant) error {
	return p.record("restaurant.updated")
}

func (p *recordingPublisher) PublishRestaurantDeleted(context.Context, string) error {
	return p.record("restaurant.deleted")
}

func (p *recordingPublisher) PublishReviewCreated(context.Context, *domain.Restaurant, *domain.Review) error {
	return p.record("review.created")
}

func (p *recordingPublisher) PublishReviewUpdated(context.Context, *domain.Restaurant, *domain.Review) error {
	return p.record("review.updated")
}

func (p *recordingPublisher) PublishReviewDeleted(context.Context, *domain.Restaurant, string) error {
	return p.record("review.deleted")
}

// --- Geo resolver stub ---

type stubResolver struct {
	loc   domain.GeoLocation
	err   error
	calls int
}

func (s *stubResolver) Resolve(context.Context, domain.Address) (domain.GeoLocation, error) {
	s.calls++
	return s.loc, s.err
}

// --- Store that loses a configurable number of races ---

// racingRepo wraps the memory store and, before each of the first n saves,
// lets interfere write the stored aggregate first.
type racingRepo struct {
	*memory.RestaurantRepository
	n         int
	interfere func(r *domain.Restaurant)
	saves     int
}

func (r *racingRepo) Save(ctx context.Context, restaurant *domain.Restaurant) (*domain.Restaurant, error) {
	r.saves++
	if r.n > 0 && restaurant.Version != 0 {
		r.n--
		stored, err := r.RestaurantRepository.FindByID(ctx, restaurant.ID)
		if err != nil {
			return nil, err
		}
		r.interfere(stored)
		if _, err := r.RestaurantRepository.Save(ctx, stored); err != nil {
			return nil, errors.Join(errors.New("interfering write failed"), err)
		}
	}
	return r.RestaurantRepository.Save(ctx, restaurant)
}

var _ repository.RestaurantRepository = (*racingRepo)(nil)

func seedRestaurant(repo repository.RestaurantRepository, reviews ...domain.Review) *domain.Restaurant {
	r := &domain.Restaurant{
		ID:        "r-1",
		Name:      "Bao",
		Reviews:   reviews,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
	r.RecomputeAverageRating()
	saved, err := repo.Save(context.Background(), r)
	if err != nil {
		panic(err)
	}
	return saved
}

func newReviewService(repo repository.RestaurantRepository) (*ReviewService, *clock.Fixed, *recordingPublisher) {
	clk := clock.NewFixed(baseTime)
	pub := &recordingPublisher{}
	return NewReviewService(repo, pub, clk, newTestLogger()), clk, pub
}
