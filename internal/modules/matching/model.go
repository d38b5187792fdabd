// README: Ride matching model: candidates, scored rides and the stacking/idle results.
package matching

import (
	"errors"
	"time"

	"drivepulse/internal/maps"
	"drivepulse/internal/modules/heatmap"
	"drivepulse/internal/types"
)

var ErrRideNotFound = errors.New("ride not found")

const (
	distanceWeight  = 0.3
	earningsWeight  = 0.3
	directionWeight = 0.2
	ratingWeight    = 0.2

	// fullRatingCredit is the rider rating that earns the whole rating weight.
	fullRatingCredit = 4.5

	// StackThreshold is a business rule: a stacked ride must score strictly above it.
	StackThreshold = 0.7

	// NoMatchReason is reported when no candidate clears StackThreshold.
	NoMatchReason = "no suitable rides found"

	maxIdleRides      = 3
	minIdleRides      = 2
	maxIdleDeliveries = 2

	preassignKeyFormat = "matching:preassign:%s"
)

// RideCandidate is a ride the driver could take next. DistanceKm is measured
// from where the driver will be (current position or projected dropoff) to
// the pickup.
type RideCandidate struct {
	ID                types.ID       `json:"id"`
	Pickup            types.Location `json:"pickup_location"`
	Dropoff           types.Location `json:"dropoff_location"`
	DistanceKm        float64        `json:"distance_km"`
	EstimatedEarnings float64        `json:"estimated_earnings"`
	RiderRating       float64        `json:"rider_rating"`
	PickupAt          time.Time      `json:"pickup_at"`
}

type ScoredRide struct {
	RideCandidate
	Score float64 `json:"score"`
}

// CurrentRide is the ride a driver is on while we look for the next one.
type CurrentRide struct {
	ID                 types.ID
	DriverID           types.ID
	Pickup             types.Location
	Dropoff            types.Location
	StartedAt          *time.Time
	EstimatedDropoffAt *time.Time
}

type StackResult struct {
	Matched             bool        `json:"matched"`
	NextRide            *ScoredRide `json:"next_ride,omitempty"`
	EstimatedCompletion time.Time   `json:"estimated_completion"`
	EstimatedWaitSec    *int        `json:"estimated_wait_sec,omitempty"`
	Reason              string      `json:"reason,omitempty"`
}

type Delivery struct {
	ID                types.ID       `json:"id"`
	Pickup            types.Location `json:"pickup_location"`
	Dropoff           types.Location `json:"dropoff_location"`
	DistanceKm        float64        `json:"distance_km"`
	EstimatedEarnings float64        `json:"estimated_earnings"`
}

type Incentive struct {
	ID        types.ID  `json:"id"`
	Title     string    `json:"title"`
	Bonus     float64   `json:"bonus"`
	ExpiresAt time.Time `json:"expires_at"`
}

type IdleSuggestions struct {
	Rides      []RideCandidate  `json:"rides"`
	Deliveries []Delivery       `json:"deliveries"`
	GasStops   []maps.Place     `json:"gas_stops"`
	Heatmap    *heatmap.Heatmap `json:"heatmap,omitempty"`
	Incentives []Incentive      `json:"incentives"`
}
