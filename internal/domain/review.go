package domain

import (
	"math"
	"sort"
	"time"
)

// EditWindow is how long after posting an author may still edit a review.
const EditWindow = 48 * time.Hour

// Author is the reviewer identity captured when the review is written.
type Author struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// Review is owned by exactly one restaurant.
type Review struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Rating     int       `json:"rating"`
	DatePosted time.Time `json:"date_posted"`
	LastEdited time.Time `json:"last_edited"`
	Photos     []Photo   `json:"photos"`
	WrittenBy  Author    `json:"written_by"`
}

// Editable reports whether the edit window is still open at now. The
// boundary instant itself is inside the window.
func (r Review) Editable(now time.Time) bool {
	return !now.After(r.DatePosted.Add(EditWindow))
}

// AverageRating returns the arithmetic mean of the ratings, or 0 when there
// are no reviews.
func AverageRating(reviews []Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	var sum int
	for _, r := range reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(reviews))
}

// Review sort fields and directions.
const (
	SortByDatePosted = "datePosted"
	SortByRating     = "rating"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// ReviewPageRequest describes the requested slice of a review collection.
// Empty SortField and Direction select datePosted descending.
type ReviewPageRequest struct {
	SortField string
	Direction string
	Page      int
	PageSize  int
}

// ReviewPage is a page of reviews plus the size of the whole collection.
type ReviewPage struct {
	Reviews []Review
	Total   int
	Page    int
	Size    int
}

// PaginateReviews sorts a copy of reviews and returns the requested page with
// the total count. Unknown sort fields sort by datePosted. Ties keep their
// collection order. A page past the end is empty.
func PaginateReviews(reviews []Review, req ReviewPageRequest) ([]Review, int) {
	sorted := append([]Review(nil), reviews...)

	var less func(a, b Review) bool
	switch req.SortField {
	case SortByRating:
		less = func(a, b Review) bool { return a.Rating < b.Rating }
	default:
		less = func(a, b Review) bool { return a.DatePosted.Before(b.DatePosted) }
	}

	if req.Direction == SortAsc {
		sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	} else {
		sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[j], sorted[i]) })
	}

	total := len(sorted)
	if req.Page < 0 || req.PageSize <= 0 || req.Page > (math.MaxInt-1)/req.PageSize {
		return []Review{}, total
	}
	start := req.Page * req.PageSize
	if start >= total {
		return []Review{}, total
	}
	end := min(start+req.PageSize, total)
	return sorted[start:end], total
}
