package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/sharmash3/restaurant-review-be/pkg/errors"
)

var (
	reviewOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_operations_total",
			Help: "Review mutations by operation and outcome",
		},
		[]string{"operation", "result"},
	)

	versionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "restaurant_version_conflicts_total",
			Help: "Saves rejected because the restaurant changed since it was read",
		},
	)
)

// observeReview records the outcome of a review mutation. Failures are
// labeled with their error code.
func observeReview(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "INTERNAL_ERROR"
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			result = appErr.Code
		}
	}
	reviewOperations.WithLabelValues(operation, result).Inc()
}
