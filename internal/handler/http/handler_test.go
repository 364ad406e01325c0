package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharmash3/restaurant-review-be/internal/clock"
	"github.com/sharmash3/restaurant-review-be/internal/domain"
	"github.com/sharmash3/restaurant-review-be/internal/event"
	"github.com/sharmash3/restaurant-review-be/internal/repository/memory"
	"github.com/sharmash3/restaurant-review-be/internal/service"
	"github.com/sharmash3/restaurant-review-be/pkg/health"
	"github.com/sharmash3/restaurant-review-be/pkg/middleware"
)

var (
	startTime = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	soho      = domain.GeoLocation{Latitude: 51.5136, Longitude: -0.1365}
)

type fixedResolver struct{ loc domain.GeoLocation }

func (f *fixedResolver) Resolve(context.Context, domain.Address) (domain.GeoLocation, error) {
	return f.loc, nil
}

type testServer struct {
	handler  http.Handler
	clock    *clock.Fixed
	resolver *fixedResolver
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewRestaurantRepository()
	clk := clock.NewFixed(startTime)
	resolver := &fixedResolver{loc: soho}
	events := event.NewProducer(event.Discard{}, logger)

	svcs := Services{
		Restaurants: service.NewRestaurantService(repo, resolver, events, clk, logger),
		Reviews:     service.NewReviewService(repo, events, clk, logger),
		Search:      service.NewSearchService(repo, logger),
	}
	healthHandler := health.NewHandler()
	healthHandler.Register("store", repo.Ping)

	return &testServer{
		handler:  NewRouter(svcs, healthHandler, middleware.CORSConfig{AllowedOrigins: []string{"*"}}, logger),
		clock:    clk,
		resolver: resolver,
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

type paginated[T any] struct {
	Data       []T  `json:"data"`
	TotalCount int  `json:"total_count"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

func (s *testServer) do(t *testing.T, method, path string, body any, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
		req.Header.Set(middleware.HeaderUserName, userID+"-name")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &v))
	return v
}

func restaurantBody(name, cuisine, city string) RestaurantRequest {
	return RestaurantRequest{
		Name:               name,
		CuisineType:        cuisine,
		ContactInformation: "hello@example.com",
		Address: AddressRequest{
			StreetNumber: "1", StreetName: "Frith St", City: city,
			State: "London", PostalCode: "W1D 3JA", Country: "UK",
		},
		OperatingHours: &OperatingHoursRequest{Friday: &TimeRangeRequest{OpenTime: "17:00", CloseTime: "23:30"}},
		PhotoURLs:      []string{"https://img.example.com/front.jpg"},
	}
}

func (s *testServer) createRestaurant(t *testing.T, name, cuisine, city string) domain.Restaurant {
	t.Helper()
	// Distinct creation times keep unfiltered listings in a known order.
	s.clock.Advance(time.Second)
	rec := s.do(t, http.MethodPost, "/api/v1/restaurants", restaurantBody(name, cuisine, city), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[domain.Restaurant](t, rec)
}

// --- Restaurants ---

func TestCreateRestaurant(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/restaurants", restaurantBody("Barrafina", "Spanish", "London"), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got := decodeData[domain.Restaurant](t, rec)
	assert.Equal(t, "/api/v1/restaurants/"+got.ID, rec.Header().Get("Location"))
	assert.Equal(t, soho, got.GeoLocation)
	assert.Equal(t, 0.0, got.AverageRating)
	assert.Equal(t, "23:30", got.OperatingHours.Friday.CloseTime)
	assert.Nil(t, got.OperatingHours.Monday)
	require.Len(t, got.Photos, 1)
	assert.Equal(t, startTime, got.Photos[0].UploadDate)
}

func TestCreateRestaurant_Validation(t *testing.T) {
	s := newTestServer(t)

	body := restaurantBody("", "Spanish", "")
	body.OperatingHours.Friday.OpenTime = "5pm"
	body.PhotoURLs = []string{"not a url"}

	rec := s.do(t, http.MethodPost, "/api/v1/restaurants", body, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "name")
	assert.Contains(t, env.Error.Fields, "address.city")
	assert.Contains(t, env.Error.Fields, "operating_hours.friday.open_time")
	assert.Contains(t, env.Error.Fields, "photo_urls[0]")
}

func TestCreateRestaurant_MalformedJSON(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/restaurants", bytes.NewBufferString(`{"name":`))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeEnvelope(t, rec).Error.Code)
}

func TestGetRestaurant(t *testing.T) {
	s := newTestServer(t)
	created := s.createRestaurant(t, "Kiln", "Thai", "London")

	rec := s.do(t, http.MethodGet, "/api/v1/restaurants/"+created.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Kiln", decodeData[domain.Restaurant](t, rec).Name)

	rec = s.do(t, http.MethodGet, "/api/v1/restaurants/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", decodeEnvelope(t, rec).Error.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/restaurants/5f0c7a4e-9a43-4d7b-9d52-0d4b1b0e3a11", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeEnvelope(t, rec).Error.Code)
}

func TestUpdateAndDeleteRestaurant(t *testing.T) {
	s := newTestServer(t)
	created := s.createRestaurant(t, "Kiln", "Thai", "London")
	path := "/api/v1/restaurants/" + created.ID

	s.resolver.loc = domain.GeoLocation{Latitude: 53.48, Longitude: -2.24}
	rec := s.do(t, http.MethodPut, path, restaurantBody("Kiln Manchester", "Thai", "Manchester"), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeData[domain.Restaurant](t, rec)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Manchester", updated.Address.City)
	assert.Equal(t, 53.48, updated.GeoLocation.Latitude)

	rec = s.do(t, http.MethodDelete, path, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, path, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, path, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// --- Search ---

func TestSearchRestaurants(t *testing.T) {
	s := newTestServer(t)
	kiln := s.createRestaurant(t, "Kiln", "Thai", "London")
	s.createRestaurant(t, "Hoppers", "Sri Lankan", "London")
	s.resolver.loc = domain.GeoLocation{Latitude: 55.95, Longitude: -3.19}
	s.createRestaurant(t, "Timberyard", "Scottish", "Edinburgh")

	rec := s.do(t, http.MethodPost, "/api/v1/restaurants/"+kiln.ID+"/reviews",
		ReviewRequest{Content: "fiery", Rating: 5}, "u-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"unfiltered", "", []string{"Kiln", "Hoppers", "Timberyard"}},
		{"rating only", "?minRating=4", []string{"Kiln"}},
		{"text", "?q=sri", []string{"Hoppers"}},
		{"text ignores geo", "?q=thai&latitude=55.95&longitude=-3.19&radius=5", []string{"Kiln"}},
		{"geo", "?latitude=55.95&longitude=-3.19&radius=5", []string{"Timberyard"}},
		{"page two", "?page=2&size=2", []string{"Timberyard"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/v1/restaurants"+tt.query, nil, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var page paginated[domain.RestaurantSummary]
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
			names := make([]string, 0, len(page.Data))
			for _, r := range page.Data {
				names = append(names, r.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}

	rec = s.do(t, http.MethodGet, "/api/v1/restaurants?minRating=4", nil, "")
	var page paginated[domain.RestaurantSummary]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, 1, page.Data[0].TotalReviews)
	assert.Equal(t, 5.0, page.Data[0].AverageRating)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PerPage)
}

func TestSearchRestaurants_Paging(t *testing.T) {
	s := newTestServer(t)
	s.createRestaurant(t, "Kiln", "Thai", "London")

	rec := s.do(t, http.MethodGet, "/api/v1/restaurants?size=500", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page paginated[domain.RestaurantSummary]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 100, page.PerPage)
	assert.Equal(t, 1, page.TotalCount)

	rec = s.do(t, http.MethodGet, "/api/v1/restaurants?page=9", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Empty(t, page.Data)
	assert.Equal(t, 1, page.TotalCount)
}

func TestSearchRestaurants_BadParameters(t *testing.T) {
	s := newTestServer(t)

	for _, q := range []string{
		"page=0", "size=0", "page=abc",
		"minRating=lots", "minRating=6", "latitude=91&longitude=0&radius=1",
		"latitude=0&longitude=0&radius=0", "radius=NaN",
	} {
		t.Run(q, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/v1/restaurants?"+q, nil, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

// --- Reviews ---

func TestReviewLifecycle(t *testing.T) {
	s := newTestServer(t)
	restaurant := s.createRestaurant(t, "Kiln", "Thai", "London")
	base := "/api/v1/restaurants/" + restaurant.ID + "/reviews"

	rec := s.do(t, http.MethodPost, base, ReviewRequest{Content: "great", Rating: 4}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, base, ReviewRequest{Content: "great", Rating: 4}, "u-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	review := decodeData[domain.Review](t, rec)
	assert.Equal(t, "u-1", review.WrittenBy.ID)
	assert.Equal(t, "u-1-name", review.WrittenBy.Username)
	assert.Equal(t, base+"/"+review.ID, rec.Header().Get("Location"))

	rec = s.do(t, http.MethodPost, base, ReviewRequest{Content: "again", Rating: 1}, "u-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_REVIEW", decodeEnvelope(t, rec).Error.Code)

	rec = s.do(t, http.MethodGet, base+"/"+review.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPut, base+"/"+review.ID, ReviewRequest{Content: "hijack", Rating: 1}, "u-2")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.clock.Advance(47 * time.Hour)
	rec = s.do(t, http.MethodPut, base+"/"+review.ID, ReviewRequest{Content: "still great", Rating: 5}, "u-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 5, decodeData[domain.Review](t, rec).Rating)

	s.clock.Advance(2 * time.Hour)
	rec = s.do(t, http.MethodPut, base+"/"+review.ID, ReviewRequest{Content: "too late", Rating: 1}, "u-1")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "EDIT_WINDOW_EXPIRED", decodeEnvelope(t, rec).Error.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/restaurants/"+restaurant.ID, nil, "")
	assert.Equal(t, 5.0, decodeData[domain.Restaurant](t, rec).AverageRating)

	rec = s.do(t, http.MethodDelete, base+"/"+review.ID, nil, "u-1")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, base+"/"+review.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/restaurants/"+restaurant.ID, nil, "")
	assert.Equal(t, 0.0, decodeData[domain.Restaurant](t, rec).AverageRating)
}

func TestCreateReview_Validation(t *testing.T) {
	s := newTestServer(t)
	restaurant := s.createRestaurant(t, "Kiln", "Thai", "London")

	rec := s.do(t, http.MethodPost, "/api/v1/restaurants/"+restaurant.ID+"/reviews",
		ReviewRequest{Content: "", Rating: 7}, "u-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Contains(t, env.Error.Fields, "content")
	assert.Contains(t, env.Error.Fields, "rating")

	rec = s.do(t, http.MethodPost, "/api/v1/restaurants/5f0c7a4e-9a43-4d7b-9d52-0d4b1b0e3a11/reviews",
		ReviewRequest{Content: "ghost", Rating: 3}, "u-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListReviews(t *testing.T) {
	s := newTestServer(t)
	restaurant := s.createRestaurant(t, "Kiln", "Thai", "London")
	base := "/api/v1/restaurants/" + restaurant.ID + "/reviews"

	for i, rating := range []int{3, 5, 1} {
		s.clock.Advance(time.Minute)
		rec := s.do(t, http.MethodPost, base, ReviewRequest{Content: "visit", Rating: rating}, "u-"+string(rune('a'+i)))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	ratings := func(query string) paginated[domain.Review] {
		rec := s.do(t, http.MethodGet, base+query, nil, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var page paginated[domain.Review]
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		return page
	}

	page := ratings("")
	require.Len(t, page.Data, 3)
	assert.Equal(t, []int{1, 5, 3}, []int{page.Data[0].Rating, page.Data[1].Rating, page.Data[2].Rating})
	assert.Equal(t, 0, page.Page)

	page = ratings("?sort=rating,asc&page=1&size=1")
	require.Len(t, page.Data, 1)
	assert.Equal(t, 3, page.Data[0].Rating)
	assert.Equal(t, 3, page.TotalCount)
	assert.True(t, page.HasNext)

	page = ratings("?page=5")
	assert.Empty(t, page.Data)
	assert.Equal(t, 3, page.TotalCount)

	rec := s.do(t, http.MethodGet, base+"?sort=rating,sideways", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Ops ---

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	s.do(t, http.MethodGet, "/api/v1/restaurants", nil, "")
	rec = s.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestCorrelationIDEchoed(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/restaurants", nil)
	req.Header.Set(middleware.HeaderCorrelationID, "corr-42")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "corr-42", rec.Header().Get(middleware.HeaderCorrelationID))
}
