package domain

import "strings"

// SearchParams holds the raw optional search inputs. A nil field was not
// supplied by the caller.
type SearchParams struct {
	Query     *string
	MinRating *float64
	Latitude  *float64
	Longitude *float64
	Radius    *float64
}

// SearchFilter is one of RatingOnly, TextAndRating, GeoRadius or Unfiltered.
type SearchFilter interface {
	searchFilter()
}

// RatingOnly matches restaurants with an average rating of at least Min.
type RatingOnly struct {
	Min float64
}

// TextAndRating matches free text with a rating floor. Min 0 means no floor.
type TextAndRating struct {
	Text string
	Min  float64
}

// GeoRadius matches restaurants within RadiusKm of a point.
type GeoRadius struct {
	Latitude  float64
	Longitude float64
	RadiusKm  float64
}

// Unfiltered matches every restaurant.
type Unfiltered struct{}

func (RatingOnly) searchFilter()    {}
func (TextAndRating) searchFilter() {}
func (GeoRadius) searchFilter()     {}
func (Unfiltered) searchFilter()    {}

// NewSearchFilter picks exactly one filter, first match wins:
//
//  1. a rating floor with no query (or an empty one) filters by rating only
//  2. a query that is non-blank after trimming filters by text and rating
//  3. latitude, longitude and radius together filter by distance
//  4. anything else is unfiltered
//
// Rule 1 checks the raw query, so a whitespace-only query with a rating floor
// reaches rule 2 and then falls through it. Geo and text filters never combine.
func NewSearchFilter(p SearchParams) SearchFilter {
	queryEmpty := p.Query == nil || *p.Query == ""

	if p.MinRating != nil && queryEmpty {
		return RatingOnly{Min: *p.MinRating}
	}

	if p.Query != nil {
		if text := strings.TrimSpace(*p.Query); text != "" {
			var floor float64
			if p.MinRating != nil {
				floor = *p.MinRating
			}
			return TextAndRating{Text: text, Min: floor}
		}
	}

	if p.Latitude != nil && p.Longitude != nil && p.Radius != nil {
		return GeoRadius{Latitude: *p.Latitude, Longitude: *p.Longitude, RadiusKm: *p.Radius}
	}

	return Unfiltered{}
}
