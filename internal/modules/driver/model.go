// README: Driver profile: matching preferences, live status and auto-savings split.
package driver

import (
	"errors"
	"math"
	"time"

	"drivepulse/internal/types"
)

var ErrDriverNotFound = errors.New("driver not found")

const (
	defaultMaxDistanceKm = 10.0
	defaultMinEarnings   = 10.0
	// LowFuelPct is the fuel level below which gas stops are suggested.
	LowFuelPct = 30.0
)

type Preferences struct {
	MaxDistanceKm      float64  `json:"max_distance_km"`
	MinEarnings        float64  `json:"min_earnings"`
	PreferredDirection *float64 `json:"preferred_direction,omitempty"`
}

// DefaultPreferences applies when a driver never saved any.
func DefaultPreferences() Preferences {
	return Preferences{MaxDistanceKm: defaultMaxDistanceKm, MinEarnings: defaultMinEarnings}
}

type Status struct {
	DriverID  types.ID       `json:"driver_id"`
	Location  types.Location `json:"location"`
	FuelLevel float64        `json:"fuel_level"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (s Status) LowFuel() bool {
	return s.FuelLevel < LowFuelPct
}

type SavingsConfig struct {
	TaxPct      float64   `json:"tax_percentage"`
	VacationPct float64   `json:"vacation_percentage"`
	GoalsPct    float64   `json:"goals_percentage"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c SavingsConfig) Total() float64 {
	return c.TaxPct + c.VacationPct + c.GoalsPct
}

// Validate requires each share in [0,100] and a total of at most 100.
func (c SavingsConfig) Validate() error {
	for name, v := range map[string]float64{
		"tax_percentage":      c.TaxPct,
		"vacation_percentage": c.VacationPct,
		"goals_percentage":    c.GoalsPct,
	} {
		if math.IsNaN(v) || v < 0 || v > 100 {
			return types.Invalid("%s must be between 0 and 100, got %v", name, v)
		}
	}
	if total := c.Total(); total > 100 {
		return types.Invalid("savings percentages sum to %v, must not exceed 100", total)
	}
	return nil
}
