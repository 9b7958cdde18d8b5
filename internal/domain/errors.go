package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrFeedUnavailable means an upstream feed returned an empty, null, or malformed payload.
	ErrFeedUnavailable = errors.New("feed unavailable")
	// ErrInvalidStation means a station id is outside the range accepted by its endpoint.
	ErrInvalidStation = errors.New("invalid station id")
	// ErrNoSamples means a sample search ran against an empty list.
	ErrNoSamples = errors.New("no samples")
	// ErrNonMonotonicProfile means profile depth magnitudes decrease along instrument order.
	ErrNonMonotonicProfile = errors.New("profile depths are not monotonic")
	// ErrNoProfile means neither the feeds nor the node file produced a CTD profile.
	ErrNoProfile = errors.New("no profile produced")
	// ErrFieldOverflow means a value does not fit its fixed-width output field.
	ErrFieldOverflow = errors.New("value overflows fixed-width field")

	errMissingField = errors.New("missing field")
	errNotNumeric   = errors.New("not numeric")
)

// ParseError reports a field that does not match the agreed wire format.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("parse %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// InsufficientDataError is returned when fewer than two rows are usable for boundary generation.
type InsufficientDataError struct {
	Rows  int
	Start time.Time
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d row(s) at or after %s, need at least 2",
		e.Rows, e.Start.UTC().Format(time.RFC3339))
}
