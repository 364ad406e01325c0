// Package clock provides the time source used for review timestamps and the
// edit window.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock in UTC.
type Real struct{}

// Now returns the current UTC time.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always returns the same instant. Tests move it with Set or Advance.
type Fixed struct {
	t time.Time
}

// NewFixed returns a Fixed clock at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t.UTC()}
}

// Now returns the fixed instant.
func (f *Fixed) Now() time.Time {
	return f.t
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.t = t.UTC()
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.t = f.t.Add(d)
}
