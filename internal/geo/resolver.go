package geo

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/sharmash3/restaurant-review-be/internal/domain"
	apperrors "github.com/sharmash3/restaurant-review-be/pkg/errors"
	"github.com/sharmash3/restaurant-review-be/pkg/httpclient"
)

// Resolver derives coordinates for a postal address.
type Resolver interface {
	Resolve(ctx context.Context, addr domain.Address) (domain.GeoLocation, error)
}

// Bounds of the box RandomLondonResolver draws from.
const (
	LondonMinLat = 51.28
	LondonMaxLat = 51.686
	LondonMinLon = -0.489
	LondonMaxLon = 0.236
)

// RandomLondonResolver ignores the address and returns a uniformly random
// point inside Greater London. Useful for local runs and demos.
type RandomLondonResolver struct {
	float func() float64
}

// NewRandomLondonResolver returns a resolver backed by the global random source.
func NewRandomLondonResolver() *RandomLondonResolver {
	return &RandomLondonResolver{float: rand.Float64}
}

func (r *RandomLondonResolver) Resolve(_ context.Context, _ domain.Address) (domain.GeoLocation, error) {
	return domain.GeoLocation{
		Latitude:  LondonMinLat + r.float()*(LondonMaxLat-LondonMinLat),
		Longitude: LondonMinLon + r.float()*(LondonMaxLon-LondonMinLon),
	}, nil
}

// errNoMatch is returned when the geocoder finds nothing for an address.
var errNoMatch = errors.New("no match for address")

// NominatimResolver geocodes addresses against an OSM Nominatim-compatible
// /search endpoint.
type NominatimResolver struct {
	baseURL string
	client  *httpclient.CircuitBreakerClient
	limiter *rate.Limiter
}

// NewNominatimResolver returns a resolver querying baseURL through client.
func NewNominatimResolver(baseURL string, client *httpclient.CircuitBreakerClient) *NominatimResolver {
	return &NominatimResolver{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// WithRateLimit caps outgoing lookups at perSecond. Callers wait for a slot
// until their context expires. A non-positive rate disables the cap.
func (r *NominatimResolver) WithRateLimit(perSecond float64) *NominatimResolver {
	if perSecond <= 0 {
		r.limiter = nil
		return r
	}
	r.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	return r
}

type nominatimPlace struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Resolve returns the best match for addr. Every failure, including an empty
// result, is reported as UpstreamUnavailable.
func (r *NominatimResolver) Resolve(ctx context.Context, addr domain.Address) (domain.GeoLocation, error) {
	loc, err := r.lookup(ctx, addr)
	if err != nil {
		return domain.GeoLocation{}, apperrors.UpstreamUnavailable("geo resolver", err)
	}
	return loc, nil
}

func (r *NominatimResolver) lookup(ctx context.Context, addr domain.Address) (domain.GeoLocation, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return domain.GeoLocation{}, fmt.Errorf("wait for rate limit: %w", err)
		}
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("limit", "1")
	q.Set("q", FormatAddress(addr))

	var places []nominatimPlace
	if err := r.client.GetJSON(ctx, r.baseURL+"/search?"+q.Encode(), &places); err != nil {
		return domain.GeoLocation{}, err
	}
	if len(places) == 0 {
		return domain.GeoLocation{}, errNoMatch
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return domain.GeoLocation{}, fmt.Errorf("parse latitude %q: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return domain.GeoLocation{}, fmt.Errorf("parse longitude %q: %w", places[0].Lon, err)
	}
	return domain.GeoLocation{Latitude: lat, Longitude: lon}, nil
}

// FormatAddress renders addr as a single free-form line, skipping empty parts.
func FormatAddress(addr domain.Address) string {
	street := strings.TrimSpace(addr.StreetNumber + " " + addr.StreetName)
	if addr.Unit != "" {
		street = addr.Unit + ", " + street
	}
	parts := make([]string, 0, 5)
	for _, p := range []string{street, addr.City, addr.State, addr.PostalCode, addr.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
