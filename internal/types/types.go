// README: Common value objects shared across modules (IDs, locations, input errors).
package types

import (
	"errors"
	"fmt"
	"math"
)

type ID string

// ErrInvalidInput is returned before any external call when a request carries
// out-of-range or missing values.
var ErrInvalidInput = errors.New("invalid input")

// Location is a WGS84 coordinate pair in decimal degrees.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (l Location) Valid() bool {
	if math.IsNaN(l.Lat) || math.IsNaN(l.Lng) || math.IsInf(l.Lat, 0) || math.IsInf(l.Lng, 0) {
		return false
	}
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// Validate wraps ErrInvalidInput with the offending coordinates.
func (l Location) Validate() error {
	if !l.Valid() {
		return fmt.Errorf("%w: location (%v, %v) out of range", ErrInvalidInput, l.Lat, l.Lng)
	}
	return nil
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
