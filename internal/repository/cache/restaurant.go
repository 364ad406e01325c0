package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/sharmash3/restaurant-review-be/internal/domain"
	"github.com/sharmash3/restaurant-review-be/internal/repository"
	apperrors "github.com/sharmash3/restaurant-review-be/pkg/errors"
)

const keyPrefix = "restaurant:"

// DefaultTTL bounds how long a cached aggregate may be served.
const DefaultTTL = 5 * time.Minute

// fillTimeout bounds a shared store read, which outlives any one caller.
const fillTimeout = 10 * time.Second

var lookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "restaurant_cache_lookups_total",
		Help: "Restaurant cache lookups by result (hit, miss, error)",
	},
	[]string{"result"},
)

// RestaurantRepository caches FindByID results in Redis in front of another
// repository. Writes go straight to the wrapped store and evict the cached
// entry. Redis failures are logged and the store is used directly.
type RestaurantRepository struct {
	repository.RestaurantRepository

	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

var (
	_ repository.RestaurantRepository = (*RestaurantRepository)(nil)
	_ repository.FreshReader          = (*RestaurantRepository)(nil)
)

// NewRestaurantRepository wraps next with a Redis read-through cache.
func NewRestaurantRepository(next repository.RestaurantRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *RestaurantRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RestaurantRepository{
		RestaurantRepository: next,
		client:               client,
		ttl:                  ttl,
		logger:               logger,
	}
}

// FindByID serves the aggregate from Redis when present. Concurrent misses for
// the same id share one store read, which a canceled caller does not abort
// for the others.
func (r *RestaurantRepository) FindByID(ctx context.Context, id string) (*domain.Restaurant, error) {
	key := keyPrefix + id

	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached domain.Restaurant
		if uerr := json.Unmarshal(data, &cached); uerr == nil {
			lookups.WithLabelValues("hit").Inc()
			return &cached, nil
		}
		r.logger.WarnContext(ctx, "discarding undecodable cache entry", slog.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		lookups.WithLabelValues("error").Inc()
		r.logger.WarnContext(ctx, "restaurant cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	lookups.WithLabelValues("miss").Inc()

	ch := r.group.DoChan(id, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
		defer cancel()
		restaurant, err := r.RestaurantRepository.FindByID(fillCtx, id)
		if err != nil {
			return nil, err
		}
		r.store(fillCtx, key, restaurant)
		return restaurant, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Each caller gets its own copy of the shared result.
		return res.Val.(*domain.Restaurant).Clone(), nil
	}
}

// FindByIDFresh reads the wrapped store, bypassing Redis. A cached entry that
// no longer matches the stored version is evicted.
func (r *RestaurantRepository) FindByIDFresh(ctx context.Context, id string) (*domain.Restaurant, error) {
	restaurant, err := r.RestaurantRepository.FindByID(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			r.evict(ctx, id)
		}
		return nil, err
	}

	data, err := r.client.Get(ctx, keyPrefix+id).Bytes()
	if err == nil {
		var cached domain.Restaurant
		if json.Unmarshal(data, &cached) != nil || cached.Version != restaurant.Version {
			r.evict(ctx, id)
		}
	}
	return restaurant, nil
}

// Save writes through to the wrapped store and evicts the cached entry.
func (r *RestaurantRepository) Save(ctx context.Context, restaurant *domain.Restaurant) (*domain.Restaurant, error) {
	saved, err := r.RestaurantRepository.Save(ctx, restaurant)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			r.evict(ctx, restaurant.ID)
		}
		return nil, err
	}
	r.evict(ctx, restaurant.ID)
	return saved, nil
}

// DeleteByID deletes from the wrapped store and evicts the cached entry.
func (r *RestaurantRepository) DeleteByID(ctx context.Context, id string) error {
	if err := r.RestaurantRepository.DeleteByID(ctx, id); err != nil {
		return err
	}
	r.evict(ctx, id)
	return nil
}

// Ping checks both Redis and the wrapped store.
func (r *RestaurantRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return r.RestaurantRepository.Ping(ctx)
}

func (r *RestaurantRepository) store(ctx context.Context, key string, restaurant *domain.Restaurant) {
	data, err := json.Marshal(restaurant)
	if err != nil {
		r.logger.WarnContext(ctx, "marshal restaurant for cache", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.logger.WarnContext(ctx, "restaurant cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (r *RestaurantRepository) evict(ctx context.Context, id string) {
	if err := r.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		r.logger.WarnContext(ctx, "restaurant cache eviction failed", slog.String("id", id), slog.String("error", err.Error()))
	}
}
