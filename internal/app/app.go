package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/sharmash3/restaurant-review-be/internal/clock"
	"github.com/sharmash3/restaurant-review-be/internal/config"
	"github.com/sharmash3/restaurant-review-be/internal/event"
	"github.com/sharmash3/restaurant-review-be/internal/geo"
	handler "github.com/sharmash3/restaurant-review-be/internal/handler/http"
	"github.com/sharmash3/restaurant-review-be/internal/repository"
	"github.com/sharmash3/restaurant-review-be/internal/repository/cache"
	"github.com/sharmash3/restaurant-review-be/internal/repository/elasticsearch"
	"github.com/sharmash3/restaurant-review-be/internal/repository/memory"
	"github.com/sharmash3/restaurant-review-be/internal/repository/postgres"
	"github.com/sharmash3/restaurant-review-be/internal/service"
	"github.com/sharmash3/restaurant-review-be/migrations"
	"github.com/sharmash3/restaurant-review-be/pkg/database"
	"github.com/sharmash3/restaurant-review-be/pkg/health"
	"github.com/sharmash3/restaurant-review-be/pkg/httpclient"
	pkgkafka "github.com/sharmash3/restaurant-review-be/pkg/kafka"
	"github.com/sharmash3/restaurant-review-be/pkg/middleware"
	"github.com/sharmash3/restaurant-review-be/pkg/tracing"
)

// Version is reported on spans and startup logs.
const Version = "0.1.0"

// App wires together all dependencies and runs the restaurant review service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// Anything opened before a failure is released before returning.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	a.tracerShutdown, err = tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    handler.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler()

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.CacheEnabled {
		a.redis, err = database.NewRedisClient(ctx, database.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("aggregate cache enabled",
			slog.String("addr", cfg.RedisAddr),
			slog.Duration("ttl", cfg.CacheTTL),
		)
		store = cache.NewRestaurantRepository(store, a.redis, cfg.CacheTTL, logger)
	}
	healthHandler.Register(cfg.StoreBackend, store.Ping)

	var publisher event.Publisher = event.Discard{}
	if cfg.EventsEnabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = a.producer
		healthHandler.Register("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Info("no kafka brokers configured, domain events are discarded")
	}
	events := event.NewProducer(publisher, logger)

	resolver := a.newResolver()
	clk := clock.Real{}

	router := handler.NewRouter(handler.Services{
		Restaurants: service.NewRestaurantService(store, resolver, events, clk, logger),
		Reviews:     service.NewReviewService(store, events, clk, logger),
		Search:      service.NewSearchService(store, logger),
	}, healthHandler, middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openStore connects the configured aggregate store.
func (a *App) openStore(ctx context.Context) (repository.RestaurantRepository, error) {
	cfg := a.cfg
	switch cfg.StoreBackend {
	case config.StoreElasticsearch:
		repo, err := elasticsearch.New(ctx, cfg.ElasticsearchURL, cfg.ElasticsearchIndex, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to elasticsearch: %w", err)
		}
		a.logger.Info("connected to Elasticsearch",
			slog.String("url", cfg.ElasticsearchURL),
			slog.String("index", cfg.ElasticsearchIndex),
		)
		return repo, nil

	case config.StorePostgres:
		pool, err := database.NewPostgresPool(ctx, database.PostgresConfig{
			URL:             cfg.PostgresURL,
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
			MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		a.logger.Info("connected to PostgreSQL")

		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, handler.ServiceName); err != nil {
			return nil, fmt.Errorf("register pool metrics: %w", err)
		}
		if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.logger.Info("database migrations completed")

		if cfg.SlowQueryThresholdMs > 0 {
			database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, a.logger)
		}
		return postgres.NewRestaurantRepository(pool), nil

	case config.StoreMemory:
		a.logger.Warn("using the in-memory store, data is lost on restart")
		return memory.NewRestaurantRepository(), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func (a *App) newResolver() geo.Resolver {
	if a.cfg.GeoResolver != config.GeoNominatim {
		return geo.NewRandomLondonResolver()
	}
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = a.cfg.NominatimTimeout
	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpCfg),
		httpclient.DefaultCircuitBreakerConfig("nominatim"),
		a.logger,
	)
	a.logger.Info("resolving addresses with nominatim",
		slog.String("url", a.cfg.NominatimURL),
		slog.Float64("rate_per_sec", a.cfg.NominatimRPS),
	)
	return geo.NewNominatimResolver(a.cfg.NominatimURL, client).WithRateLimit(a.cfg.NominatimRPS)
}

// Handler returns the HTTP handler served by Run.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// HTTP server, tracer, Kafka producer, then the stores.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.release(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// release flushes spans and closes every opened dependency.
func (a *App) release() error {
	var errs []error

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.pool != nil {
		a.pool.Close()
	}

	return errors.Join(errs...)
}
