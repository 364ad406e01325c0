package http

import (
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sharmash3/restaurant-review-be/internal/domain"
	"github.com/sharmash3/restaurant-review-be/internal/service"
	"github.com/sharmash3/restaurant-review-be/pkg/httputil"
	"github.com/sharmash3/restaurant-review-be/pkg/pagination"
	"github.com/sharmash3/restaurant-review-be/pkg/validator"
)

// RestaurantHandler handles HTTP requests for restaurant endpoints.
type RestaurantHandler struct {
	service *service.RestaurantService
	search  *service.SearchService
	logger  *slog.Logger
}

// NewRestaurantHandler creates a new restaurant HTTP handler.
func NewRestaurantHandler(svc *service.RestaurantService, search *service.SearchService, logger *slog.Logger) *RestaurantHandler {
	return &RestaurantHandler{
		service: svc,
		search:  search,
		logger:  logger,
	}
}

// --- Request DTOs ---

// AddressRequest is a postal address. Unit is optional.
type AddressRequest struct {
	StreetNumber string `json:"street_number" validate:"required,max=20"`
	StreetName   string `json:"street_name" validate:"required,max=200"`
	Unit         string `json:"unit" validate:"max=50"`
	City         string `json:"city" validate:"required,max=100"`
	State        string `json:"state" validate:"required,max=100"`
	PostalCode   string `json:"postal_code" validate:"required,max=20"`
	Country      string `json:"country" validate:"required,max=100"`
}

// TimeRangeRequest is an opening interval in 24h "HH:MM".
type TimeRangeRequest struct {
	OpenTime  string `json:"open_time" validate:"required,datetime=15:04"`
	CloseTime string `json:"close_time" validate:"required,datetime=15:04"`
}

// OperatingHoursRequest lists opening intervals per weekday; omitted days are closed.
type OperatingHoursRequest struct {
	Monday    *TimeRangeRequest `json:"monday"`
	Tuesday   *TimeRangeRequest `json:"tuesday"`
	Wednesday *TimeRangeRequest `json:"wednesday"`
	Thursday  *TimeRangeRequest `json:"thursday"`
	Friday    *TimeRangeRequest `json:"friday"`
	Saturday  *TimeRangeRequest `json:"saturday"`
	Sunday    *TimeRangeRequest `json:"sunday"`
}

// RestaurantRequest is the JSON body for creating or replacing a restaurant.
type RestaurantRequest struct {
	Name               string                 `json:"name" validate:"required,max=200"`
	CuisineType        string                 `json:"cuisine_type" validate:"required,max=100"`
	ContactInformation string                 `json:"contact_information" validate:"required,max=200"`
	Address            AddressRequest         `json:"address"`
	OperatingHours     *OperatingHoursRequest `json:"operating_hours"`
	PhotoURLs          []string               `json:"photo_urls" validate:"max=20,dive,url"`
}

func (req RestaurantRequest) toInput() service.RestaurantInput {
	return service.RestaurantInput{
		Name:               req.Name,
		CuisineType:        req.CuisineType,
		ContactInformation: req.ContactInformation,
		Address: domain.Address{
			StreetNumber: req.Address.StreetNumber,
			StreetName:   req.Address.StreetName,
			Unit:         req.Address.Unit,
			City:         req.Address.City,
			State:        req.Address.State,
			PostalCode:   req.Address.PostalCode,
			Country:      req.Address.Country,
		},
		OperatingHours: req.OperatingHours.toDomain(),
		PhotoURLs:      req.PhotoURLs,
	}
}

func (oh *OperatingHoursRequest) toDomain() *domain.OperatingHours {
	if oh == nil {
		return nil
	}
	conv := func(tr *TimeRangeRequest) *domain.TimeRange {
		if tr == nil {
			return nil
		}
		return &domain.TimeRange{OpenTime: tr.OpenTime, CloseTime: tr.CloseTime}
	}
	return &domain.OperatingHours{
		Monday:    conv(oh.Monday),
		Tuesday:   conv(oh.Tuesday),
		Wednesday: conv(oh.Wednesday),
		Thursday:  conv(oh.Thursday),
		Friday:    conv(oh.Friday),
		Saturday:  conv(oh.Saturday),
		Sunday:    conv(oh.Sunday),
	}
}

// --- Handlers ---

// SearchRestaurants handles GET /api/v1/restaurants
func (h *RestaurantHandler) SearchRestaurants(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, err := pagination.Parse(query, 1)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	params, msg := parseSearchParams(query)
	if msg != "" {
		httputil.WriteBadParameter(w, msg)
		return
	}

	result, err := h.search.Search(r.Context(), params, domain.PageRequest{Index: page.Index, Size: page.Size})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	summaries := make([]domain.RestaurantSummary, 0, len(result.Restaurants))
	for i := range result.Restaurants {
		summaries = append(summaries, result.Restaurants[i].Summary())
	}
	httputil.WriteJSON(w, http.StatusOK,
		httputil.NewPaginatedResponse(summaries, result.Total, page.Index, page.Size, page.Page))
}

// CreateRestaurant handles POST /api/v1/restaurants
func (h *RestaurantHandler) CreateRestaurant(w http.ResponseWriter, r *http.Request) {
	var req RestaurantRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	restaurant, err := h.service.CreateRestaurant(r.Context(), req.toInput())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Location", "/api/v1/restaurants/"+restaurant.ID)
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: restaurant})
}

// GetRestaurant handles GET /api/v1/restaurants/{restaurantId}
func (h *RestaurantHandler) GetRestaurant(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "restaurantId"))
	if !ok {
		return
	}

	restaurant, err := h.service.GetRestaurant(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: restaurant})
}

// UpdateRestaurant handles PUT /api/v1/restaurants/{restaurantId}
func (h *RestaurantHandler) UpdateRestaurant(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "restaurantId"))
	if !ok {
		return
	}

	var req RestaurantRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	restaurant, err := h.service.UpdateRestaurant(r.Context(), id.String(), req.toInput())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: restaurant})
}

// DeleteRestaurant handles DELETE /api/v1/restaurants/{restaurantId}
func (h *RestaurantHandler) DeleteRestaurant(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "restaurantId"))
	if !ok {
		return
	}

	if err := h.service.DeleteRestaurant(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseSearchParams reads the optional search inputs. A non-empty message
// describes the first invalid parameter.
func parseSearchParams(query url.Values) (domain.SearchParams, string) {
	var params domain.SearchParams
	if query.Has("q") {
		q := query.Get("q")
		params.Query = &q
	}

	floats := []struct {
		name     string
		dst      **float64
		min, max float64
	}{
		{"minRating", &params.MinRating, 0, 5},
		{"latitude", &params.Latitude, -90, 90},
		{"longitude", &params.Longitude, -180, 180},
		{"radius", &params.Radius, 0, math.MaxFloat64},
	}
	for _, f := range floats {
		raw := query.Get(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || v < f.min || v > f.max {
			return domain.SearchParams{}, "invalid " + f.name + ": " + raw
		}
		*f.dst = &v
	}
	if params.Radius != nil && *params.Radius == 0 {
		return domain.SearchParams{}, "radius must be greater than zero"
	}
	return params, ""
}
