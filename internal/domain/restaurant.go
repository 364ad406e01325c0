package domain

import (
	"math"
	"time"
)

// Restaurant is the aggregate root. Reviews are embedded and persisted with it
// as one document.
type Restaurant struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	CuisineType        string          `json:"cuisine_type"`
	ContactInformation string          `json:"contact_information"`
	Address            Address         `json:"address"`
	GeoLocation        GeoLocation     `json:"geo_location"`
	AverageRating      float64         `json:"average_rating"`
	OperatingHours     *OperatingHours `json:"operating_hours,omitempty"`
	Photos             []Photo         `json:"photos"`
	Reviews            []Review        `json:"reviews"`
	Version            int64           `json:"version"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Address is a structured postal address. Unit is the only optional part.
type Address struct {
	StreetNumber string `json:"street_number"`
	StreetName   string `json:"street_name"`
	Unit         string `json:"unit,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
}

// GeoLocation is a latitude/longitude pair in decimal degrees.
type GeoLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Photo references an uploaded image.
type Photo struct {
	URL        string    `json:"url"`
	UploadDate time.Time `json:"upload_date"`
}

// TimeRange is an opening interval in "HH:MM" local time.
type TimeRange struct {
	OpenTime  string `json:"open_time"`
	CloseTime string `json:"close_time"`
}

// OperatingHours holds per-weekday opening times. A nil day means closed.
type OperatingHours struct {
	Monday    *TimeRange `json:"monday,omitempty"`
	Tuesday   *TimeRange `json:"tuesday,omitempty"`
	Wednesday *TimeRange `json:"wednesday,omitempty"`
	Thursday  *TimeRange `json:"thursday,omitempty"`
	Friday    *TimeRange `json:"friday,omitempty"`
	Saturday  *TimeRange `json:"saturday,omitempty"`
	Sunday    *TimeRange `json:"sunday,omitempty"`
}

// NewPhotos builds photo references for urls, all stamped with uploaded.
func NewPhotos(urls []string, uploaded time.Time) []Photo {
	photos := make([]Photo, 0, len(urls))
	for _, u := range urls {
		photos = append(photos, Photo{URL: u, UploadDate: uploaded})
	}
	return photos
}

// RecomputeAverageRating stores the mean of the current reviews.
func (r *Restaurant) RecomputeAverageRating() {
	r.AverageRating = AverageRating(r.Reviews)
}

// ReviewByAuthor returns the index of the review written by authorID, or -1.
func (r *Restaurant) ReviewByAuthor(authorID string) int {
	for i := range r.Reviews {
		if r.Reviews[i].WrittenBy.ID == authorID {
			return i
		}
	}
	return -1
}

// ReviewByID returns the index of the review with id, or -1.
func (r *Restaurant) ReviewByID(id string) int {
	for i := range r.Reviews {
		if r.Reviews[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers can mutate it without aliasing.
func (r *Restaurant) Clone() *Restaurant {
	if r == nil {
		return nil
	}
	c := *r
	c.Photos = append([]Photo(nil), r.Photos...)
	if r.OperatingHours != nil {
		oh := r.OperatingHours.clone()
		c.OperatingHours = &oh
	}
	if r.Reviews != nil {
		c.Reviews = make([]Review, len(r.Reviews))
		for i, rv := range r.Reviews {
			rv.Photos = append([]Photo(nil), rv.Photos...)
			c.Reviews[i] = rv
		}
	}
	return &c
}

func (oh OperatingHours) clone() OperatingHours {
	cp := func(tr *TimeRange) *TimeRange {
		if tr == nil {
			return nil
		}
		v := *tr
		return &v
	}
	return OperatingHours{
		Monday:    cp(oh.Monday),
		Tuesday:   cp(oh.Tuesday),
		Wednesday: cp(oh.Wednesday),
		Thursday:  cp(oh.Thursday),
		Friday:    cp(oh.Friday),
		Saturday:  cp(oh.Saturday),
		Sunday:    cp(oh.Sunday),
	}
}

// RestaurantSummary is the search result projection.
type RestaurantSummary struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	CuisineType   string  `json:"cuisine_type"`
	AverageRating float64 `json:"average_rating"`
	TotalReviews  int     `json:"total_reviews"`
	Address       Address `json:"address"`
	Photos        []Photo `json:"photos"`
}

// Summary projects the restaurant for search listings.
func (r *Restaurant) Summary() RestaurantSummary {
	photos := r.Photos
	if photos == nil {
		photos = []Photo{}
	}
	return RestaurantSummary{
		ID:            r.ID,
		Name:          r.Name,
		CuisineType:   r.CuisineType,
		AverageRating: r.AverageRating,
		TotalReviews:  len(r.Reviews),
		Address:       r.Address,
		Photos:        photos,
	}
}

// PageRequest selects a zero-based page of a store query.
type PageRequest struct {
	Index int
	Size  int
}

// Offset returns the number of items skipped before the page. It saturates at
// math.MaxInt instead of overflowing.
func (p PageRequest) Offset() int {
	if p.Size > 0 && p.Index > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return p.Index * p.Size
}

// RestaurantPage is one page of a store query with the total match count.
type RestaurantPage struct {
	Restaurants []Restaurant
	Total       int
	Page        PageRequest
}
