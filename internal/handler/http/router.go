package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sharmash3/restaurant-review-be/internal/service"
	"github.com/sharmash3/restaurant-review-be/pkg/health"
	"github.com/sharmash3/restaurant-review-be/pkg/middleware"
)

// ServiceName labels metrics and spans emitted by the HTTP layer.
const ServiceName = "restaurant-review"

// Services bundles the application services the router exposes.
type Services struct {
	Restaurants *service.RestaurantService
	Reviews     *service.ReviewService
	Search      *service.SearchService
}

// NewRouter creates a chi router with all restaurant and review routes registered.
func NewRouter(svcs Services, healthHandler *health.Handler, corsConfig middleware.CORSConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.PrometheusMetrics(ServiceName))
	r.Use(middleware.GatewayIdentity)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	restaurantHandler := NewRestaurantHandler(svcs.Restaurants, svcs.Search, logger)
	reviewHandler := NewReviewHandler(svcs.Reviews, logger)

	r.Route("/api/v1/restaurants", func(r chi.Router) {
		r.Get("/", restaurantHandler.SearchRestaurants)
		r.Post("/", restaurantHandler.CreateRestaurant)

		r.Route("/{restaurantId}", func(r chi.Router) {
			r.Get("/", restaurantHandler.GetRestaurant)
			r.Put("/", restaurantHandler.UpdateRestaurant)
			r.Delete("/", restaurantHandler.DeleteRestaurant)

			r.Route("/reviews", func(r chi.Router) {
				r.Get("/", reviewHandler.ListReviews)
				r.Get("/{reviewId}", reviewHandler.GetReview)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireIdentity)
					r.Post("/", reviewHandler.CreateReview)
					r.Put("/{reviewId}", reviewHandler.UpdateReview)
					r.Delete("/{reviewId}", reviewHandler.DeleteReview)
				})
			})
		})
	})

	return r
}
