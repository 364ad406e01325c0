package pagination

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/sharmash3/restaurant-review-be/pkg/errors"
)

const (
	DefaultSize = 20
	MaxSize     = 100
)

// Params is a parsed page request. Index is always zero-based; Page echoes the
// value in the base the endpoint accepts.
type Params struct {
	Page  int
	Index int
	Size  int
}

// Parse reads "page" and "size" from query. base is the number of the first
// page (0 or 1). Sizes above MaxSize are clamped; non-numeric or out of range
// values are rejected.
func Parse(query url.Values, base int) (Params, error) {
	p := Params{Page: base, Size: DefaultSize}

	if raw := query.Get("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < base {
			return Params{}, apperrors.InvalidInput("page must be an integer >= " + strconv.Itoa(base))
		}
		p.Page = v
	}

	if raw := query.Get("size"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return Params{}, apperrors.InvalidInput("size must be a positive integer")
		}
		p.Size = min(v, MaxSize)
	}

	p.Index = p.Page - base
	return p, nil
}

// Offset returns the number of items before the page.
func (p Params) Offset() int {
	if p.Size > 0 && p.Index > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return p.Index * p.Size
}

// ParseSort splits a "field,direction" sort expression. Missing parts come back
// empty so callers can apply their own defaults.
func ParseSort(raw string) (field, direction string) {
	field, direction, _ = strings.Cut(strings.TrimSpace(raw), ",")
	return strings.TrimSpace(field), strings.ToLower(strings.TrimSpace(direction))
}
