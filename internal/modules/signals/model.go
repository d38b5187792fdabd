// README: Demand signal shapes consumed by the heatmap scorer.
package signals

import (
	"errors"
	"time"

	"drivepulse/internal/types"
)

// ErrSourceUnavailable is returned when every signal source failed.
var ErrSourceUnavailable = errors.New("signals: all sources unavailable")

type Kind string

const (
	KindActiveRide     Kind = "active_ride"
	KindPendingRequest Kind = "pending_request"
	KindEvent          Kind = "event"
	KindVenue          Kind = "venue"
)

// DemandSignal is implemented by ActiveRide, PendingRequest, Event and Venue.
type DemandSignal interface {
	Kind() Kind
	Position() types.Location
}

type ActiveRide struct {
	ID       types.ID       `json:"id"`
	Location types.Location `json:"location"`
}

type PendingRequest struct {
	ID       types.ID       `json:"id"`
	Location types.Location `json:"location"`
}

type Event struct {
	ID                 types.ID       `json:"id"`
	Name               string         `json:"name"`
	Location           types.Location `json:"location"`
	ExpectedAttendance int            `json:"expected_attendance"`
	StartTime          time.Time      `json:"start_time"`
	EndTime            time.Time      `json:"end_time"`
}

type Venue struct {
	ID              types.ID       `json:"id"`
	Name            string         `json:"name"`
	Location        types.Location `json:"location"`
	PopularityScore float64        `json:"popularity_score"`
	OpenTime        time.Time      `json:"open_time"`
	CloseTime       time.Time      `json:"close_time"`
}

func (ActiveRide) Kind() Kind     { return KindActiveRide }
func (PendingRequest) Kind() Kind { return KindPendingRequest }
func (Event) Kind() Kind          { return KindEvent }
func (Venue) Kind() Kind          { return KindVenue }

func (r ActiveRide) Position() types.Location     { return r.Location }
func (r PendingRequest) Position() types.Location { return r.Location }
func (e Event) Position() types.Location          { return e.Location }
func (v Venue) Position() types.Location          { return v.Location }

// Aggregated is the fan-in result of one Fetch. A failed source leaves its
// slice empty and adds an entry to Warnings.
type Aggregated struct {
	ActiveRides     []ActiveRide
	PendingRequests []PendingRequest
	Events          []Event
	Venues          []Venue
	Warnings        []string
}

// All flattens the four collections in source order.
func (a Aggregated) All() []DemandSignal {
	out := make([]DemandSignal, 0, len(a.ActiveRides)+len(a.PendingRequests)+len(a.Events)+len(a.Venues))
	for _, r := range a.ActiveRides {
		out = append(out, r)
	}
	for _, r := range a.PendingRequests {
		out = append(out, r)
	}
	for _, e := range a.Events {
		out = append(out, e)
	}
	for _, v := range a.Venues {
		out = append(out, v)
	}
	return out
}

// Counts tallies signals per kind.
func (a Aggregated) Counts() map[Kind]int {
	out := make(map[Kind]int, 4)
	for _, sig := range a.All() {
		out[sig.Kind()]++
	}
	return out
}
