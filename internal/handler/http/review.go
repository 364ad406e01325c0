package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sharmash3/restaurant-review-be/internal/domain"
	"github.com/sharmash3/restaurant-review-be/internal/service"
	"github.com/sharmash3/restaurant-review-be/pkg/httputil"
	"github.com/sharmash3/restaurant-review-be/pkg/middleware"
	"github.com/sharmash3/restaurant-review-be/pkg/pagination"
	"github.com/sharmash3/restaurant-review-be/pkg/validator"
)

// ReviewHandler handles HTTP requests for review endpoints.
type ReviewHandler struct {
	service *service.ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(svc *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service: svc,
		logger:  logger,
	}
}

// ReviewRequest is the JSON body for creating or editing a review.
type ReviewRequest struct {
	Content   string   `json:"content" validate:"required,max=5000"`
	Rating    int      `json:"rating" validate:"required,gte=1,lte=5"`
	PhotoURLs []string `json:"photo_urls" validate:"max=10,dive,url"`
}

func (req ReviewRequest) toInput() service.ReviewInput {
	return service.ReviewInput{Content: req.Content, Rating: req.Rating, PhotoURLs: req.PhotoURLs}
}

// ListReviews handles GET /api/v1/restaurants/{restaurantId}/reviews
// Query: sort=field,dir (datePosted or rating), page (zero-based), size.
func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := httputil.ParseUUID(w, chi.URLParam(r, "restaurantId"))
	if !ok {
		return
	}

	query := r.URL.Query()
	page, err := pagination.Parse(query, 0)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	field, direction := pagination.ParseSort(query.Get("sort"))
	if direction != "" && direction != domain.SortAsc && direction != domain.SortDesc {
		httputil.WriteBadParameter(w, "sort direction must be asc or desc")
		return
	}

	result, err := h.service.ListReviews(r.Context(), restaurantID.String(), domain.ReviewPageRequest{
		SortField: field,
		Direction: direction,
		Page:      page.Index,
		PageSize:  page.Size,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK,
		httputil.NewPaginatedResponse(result.Reviews, result.Total, page.Index, page.Size, page.Page))
}

// GetReview handles GET /api/v1/restaurants/{restaurantId}/reviews/{reviewId}
func (h *ReviewHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	restaurantID, reviewID, ok := reviewPath(w, r)
	if !ok {
		return
	}

	review, err := h.service.GetReview(r.Context(), restaurantID.String(), reviewID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: review})
}

// CreateReview handles POST /api/v1/restaurants/{restaurantId}/reviews
// The author is taken from the gateway identity headers.
func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := httputil.ParseUUID(w, chi.URLParam(r, "restaurantId"))
	if !ok {
		return
	}

	var req ReviewRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	review, err := h.service.CreateReview(r.Context(), author(r), restaurantID.String(), req.toInput())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Location", "/api/v1/restaurants/"+restaurantID.String()+"/reviews/"+review.ID)
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: review})
}

// UpdateReview handles PUT /api/v1/restaurants/{restaurantId}/reviews/{reviewId}
func (h *ReviewHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	restaurantID, reviewID, ok := reviewPath(w, r)
	if !ok {
		return
	}

	var req ReviewRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	review, err := h.service.UpdateReview(r.Context(), author(r), restaurantID.String(), reviewID.String(), req.toInput())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: review})
}

// DeleteReview handles DELETE /api/v1/restaurants/{restaurantId}/reviews/{reviewId}
func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	restaurantID, reviewID, ok := reviewPath(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteReview(r.Context(), restaurantID.String(), reviewID.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func reviewPath(w http.ResponseWriter, r *http.Request) (restaurantID, reviewID uuid.UUID, ok bool) {
	if restaurantID, ok = httputil.ParseUUID(w, chi.URLParam(r, "restaurantId")); !ok {
		return
	}
	reviewID, ok = httputil.ParseUUID(w, chi.URLParam(r, "reviewId"))
	return
}

func author(r *http.Request) domain.Author {
	ident, _ := middleware.IdentityFromContext(r.Context())
	return domain.Author{
		ID:         ident.ID,
		Username:   ident.Username,
		GivenName:  ident.GivenName,
		FamilyName: ident.FamilyName,
	}
}
