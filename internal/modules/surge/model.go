// README: Surge zones and the significance cut-off.
package surge

import (
	"time"

	"drivepulse/internal/types"
)

// MinMultiplier is exclusive: zones at or below it are not worth the drive.
const MinMultiplier = 1.2

// DefaultBaseFare is used when neither the zone nor the market supplies one.
const DefaultBaseFare = 15.0

// Zone is derived per request and never persisted. Duration and TravelTime
// are in minutes.
type Zone struct {
	ID                types.ID       `json:"id"`
	Location          types.Location `json:"location"`
	Multiplier        float64        `json:"multiplier"`
	EstimatedEarnings float64        `json:"estimated_earnings"`
	Duration          float64        `json:"duration"`
	DistanceKm        float64        `json:"distance_km"`
	TravelTime        float64        `json:"travel_time"`
}

// ActiveZone is a surge area as stored, before it is evaluated for a driver.
type ActiveZone struct {
	ID         types.ID
	Location   types.Location
	Multiplier float64
	BaseFare   float64
	EndsAt     time.Time
}
