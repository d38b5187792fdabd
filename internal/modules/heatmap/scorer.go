// README: Demand scorer. Additive per-bucket weights with a time ramp for events and venues.
package heatmap

import (
	"math"
	"sort"
	"time"

	"drivepulse/internal/geo"
	"drivepulse/internal/modules/signals"
)

const (
	activeRideWeight     = 1.0
	pendingRequestWeight = 2.0
	eventBaseWeight      = 3.0
	eventAttendanceCap   = 5.0
	venueBaseWeight      = 1.0
	fullTimeWeight       = 2.0
)

// timeWeight ramps from 0 four hours before start up to 2 at start, holds 2
// while active and drops to 0 from end onward.
func timeWeight(start, end, now time.Time) float64 {
	switch {
	case now.Before(start):
		hours := start.Sub(now).Hours()
		return math.Max(0, fullTimeWeight-hours/2)
	case now.Equal(start):
		return fullTimeWeight
	case !now.Before(end):
		return 0
	default:
		return fullTimeWeight
	}
}

func eventWeight(e signals.Event, now time.Time) float64 {
	attendance := math.Min(float64(e.ExpectedAttendance)/1000, eventAttendanceCap)
	if attendance < 0 {
		attendance = 0
	}
	return eventBaseWeight + attendance + timeWeight(e.StartTime, e.EndTime, now)
}

func venueWeight(v signals.Venue, now time.Time) float64 {
	return venueBaseWeight + math.Max(0, v.PopularityScore) + timeWeight(v.OpenTime, v.CloseTime, now)
}

func signalWeight(sig signals.DemandSignal, now time.Time) float64 {
	switch s := sig.(type) {
	case signals.ActiveRide:
		return activeRideWeight
	case signals.PendingRequest:
		return pendingRequestWeight
	case signals.Event:
		return eventWeight(s, now)
	case signals.Venue:
		return venueWeight(s, now)
	}
	return 0
}

// Score sums the weight of every signal into its grid bucket.
func Score(agg signals.Aggregated, now time.Time) map[string]float64 {
	scores := make(map[string]float64)
	for _, sig := range agg.All() {
		loc := sig.Position()
		if !loc.Valid() {
			continue
		}
		scores[geo.BucketKey(loc, geo.Precision)] += signalWeight(sig, now)
	}
	return scores
}

// Entries attaches centroids and orders buckets by score desc, key asc.
func Entries(scores map[string]float64) []Entry {
	out := make([]Entry, 0, len(scores))
	for key, score := range scores {
		center, err := geo.Centroid(key)
		if err != nil {
			continue
		}
		out = append(out, Entry{Bucket: key, Score: score, Center: center})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Bucket < out[j].Bucket
	})
	return out
}
