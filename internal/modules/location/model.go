// README: Realtime Database location entries for drivers on trips and riders waiting.
package location

import (
	"time"

	"drivepulse/internal/types"
)

const (
	driverLocationsPath    = "driver_locations"
	passengerLocationsPath = "passenger_locations"

	statusOnTrip         = "on_trip"
	statusLookingForRide = "looking_for_ride"

	// Entries older than this are from apps that went away without clearing
	// their node.
	defaultMaxAge = 10 * time.Minute
)

// entry mirrors one child of a locations node.
type entry struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Status    string  `json:"status"`
	Timestamp int64   `json:"timestamp"` // unix millis
}

func (e entry) location() types.Location {
	return types.Location{Lat: e.Lat, Lng: e.Lng}
}
