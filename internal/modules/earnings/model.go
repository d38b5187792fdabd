// README: Earnings plan, progress and insight shapes.
package earnings

import (
	"errors"
	"time"

	"drivepulse/internal/modules/surge"
	"drivepulse/internal/types"
)

// ErrNoActivePlan means the driver has no plan cached; they should set a goal.
var ErrNoActivePlan = errors.New("no active earnings plan")

const (
	planKeyFormat     = "earnings_plan:%s"
	maxPlanWindow     = 24 * time.Hour
	maxHighValueRides = 3
	maxSurgeSteps     = 2
	maxAlternatives   = 2
	minSteps          = 2
	surgeTipFactor    = 1.5

	// Bounds the shared market lookup once it no longer follows any caller.
	marketLookupTimeout = 10 * time.Second
)

type HourTarget struct {
	Hour           int       `json:"hour"`
	Start          time.Time `json:"start"`
	TargetRides    int       `json:"target_rides"`
	TargetEarnings float64   `json:"target_earnings"`
}

// Plan is replaced wholesale by the next SetEarningsGoal for the same driver.
type Plan struct {
	ID                  string       `json:"id"`
	DriverID            types.ID     `json:"driver_id"`
	DailyGoal           float64      `json:"daily_goal"`
	RequiredRides       int          `json:"required_rides"`
	AvgEarningsPerRide  float64      `json:"avg_earnings_per_ride"`
	OptimalHours        []int        `json:"optimal_hours"`
	HourlyPlan          []HourTarget `json:"hourly_plan"`
	StartTime           time.Time    `json:"start_time"`
	EndTime             time.Time    `json:"end_time"`
	EstimatedCompletion time.Time    `json:"estimated_completion"`
	CreatedAt           time.Time    `json:"created_at"`
}

// DailyEarnings is what the driver has made so far today.
type DailyEarnings struct {
	Total     float64
	Rides     int
	StartedAt time.Time
}

func (d DailyEarnings) AveragePerRide() float64 {
	if d.Rides <= 0 {
		return 0
	}
	return d.Total / float64(d.Rides)
}

// DriverStats summarises a driver's history.
type DriverStats struct {
	AvgEarningsPerRide float64
	BestHours          []int
	HourlyEarnings     map[int]float64
}

type OpportunityKind string

const (
	KindRide     OpportunityKind = "ride"
	KindDelivery OpportunityKind = "delivery"
	KindEvent    OpportunityKind = "event"
	KindSurge    OpportunityKind = "surge"
)

type Opportunity struct {
	ID                types.ID        `json:"id"`
	Kind              OpportunityKind `json:"type"`
	Title             string          `json:"title,omitempty"`
	Location          types.Location  `json:"location"`
	EstimatedEarnings float64         `json:"estimated_earnings"`
	Reason            string          `json:"reason,omitempty"`
}

type StepKind string

const (
	StepRides        StepKind = "rides"
	StepSurge        StepKind = "surge"
	StepAlternatives StepKind = "alternatives"
)

type NextStep struct {
	Type          StepKind      `json:"type"`
	Message       string        `json:"message"`
	Opportunities []Opportunity `json:"opportunities,omitempty"`
	Zones         []surge.Zone  `json:"zones,omitempty"`
}

// Progress keeps negative remainders: a goal that was exceeded reads as
// RemainingAmount < 0.
type Progress struct {
	PlanID          string     `json:"plan_id"`
	DailyGoal       float64    `json:"daily_goal"`
	RequiredRides   int        `json:"required_rides"`
	CurrentEarnings float64    `json:"current_earnings"`
	CompletedRides  int        `json:"completed_rides"`
	RemainingAmount float64    `json:"remaining_amount"`
	RemainingRides  int        `json:"remaining_rides"`
	GoalMet         bool       `json:"goal_met"`
	NextSteps       []NextStep `json:"next_steps"`
}

type Pace struct {
	HourlyRate     float64 `json:"hourly_rate"`
	ProjectedDaily float64 `json:"projected_daily"`
	CompletedRides int     `json:"completed_rides"`
	AveragePerRide float64 `json:"average_per_ride"`
	GoalProgress   float64 `json:"goal_progress"`
}

type TipKind string

const (
	TipImprovement TipKind = "improvement"
	TipOpportunity TipKind = "opportunity"
	TipTiming      TipKind = "timing"
)

type Tip struct {
	Type        TipKind       `json:"type"`
	Message     string        `json:"message"`
	Suggestions []string      `json:"suggestions,omitempty"`
	Locations   []Opportunity `json:"locations,omitempty"`
	Hours       []HourAverage `json:"hours,omitempty"`
}

type HourAverage struct {
	Hour        int     `json:"hour"`
	AvgEarnings float64 `json:"avg_earnings"`
}

type Insights struct {
	Pace          Pace          `json:"current_pace"`
	Opportunities []Opportunity `json:"opportunities"`
	Tips          []Tip         `json:"tips"`
}
