package matching

import (
	"math"
	"sort"

	"drivepulse/internal/geo"
	"drivepulse/internal/modules/driver"
)

// Score rates a candidate against driver preferences on a 0..1 scale. The
// result is rounded to 1e-6 so threshold comparisons are stable.
func Score(c RideCandidate, p driver.Preferences) float64 {
	s := distanceWeight*distanceCredit(c.DistanceKm, p.MaxDistanceKm) +
		earningsWeight*earningsCredit(c.EstimatedEarnings, p.MinEarnings) +
		directionWeight*directionCredit(c, p.PreferredDirection) +
		ratingWeight*ratingCredit(c.RiderRating)
	return math.Round(s*1e6) / 1e6
}

func distanceCredit(dist, max float64) float64 {
	switch {
	case dist <= max:
		return 1
	case max <= 0:
		return 0
	default:
		return max / dist
	}
}

func earningsCredit(earnings, min float64) float64 {
	switch {
	case min <= 0 || earnings >= min:
		return 1
	case earnings <= 0:
		return 0
	default:
		return earnings / min
	}
}

func directionCredit(c RideCandidate, preferred *float64) float64 {
	if preferred == nil {
		return 1
	}
	return geo.DirectionMatch(geo.Bearing(c.Pickup, c.Dropoff), *preferred)
}

func ratingCredit(r float64) float64 {
	if r >= fullRatingCredit {
		return 1
	}
	return math.Min(math.Max(r/5, 0), 1)
}

// Rank scores every candidate and orders by score, then earnings, then ID.
func Rank(cands []RideCandidate, p driver.Preferences) []ScoredRide {
	out := make([]ScoredRide, len(cands))
	for i, c := range cands {
		out[i] = ScoredRide{RideCandidate: c, Score: Score(c, p)}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].EstimatedEarnings != out[j].EstimatedEarnings {
			return out[i].EstimatedEarnings > out[j].EstimatedEarnings
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Eligible returns the leading run of ranked rides that clear StackThreshold.
func Eligible(ranked []ScoredRide) []ScoredRide {
	n := 0
	for n < len(ranked) && ranked[n].Score > StackThreshold {
		n++
	}
	return ranked[:n]
}

// SelectNext picks the top ranked ride if it clears StackThreshold.
func SelectNext(ranked []ScoredRide) (ScoredRide, bool) {
	if e := Eligible(ranked); len(e) > 0 {
		return e[0], true
	}
	return ScoredRide{}, false
}

// ByEarnings orders rides by estimated earnings only and keeps n.
func ByEarnings(rides []RideCandidate, n int) []RideCandidate {
	out := append([]RideCandidate(nil), rides...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EstimatedEarnings > out[j].EstimatedEarnings
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func deliveriesByEarnings(ds []Delivery, n int) []Delivery {
	out := append([]Delivery(nil), ds...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EstimatedEarnings > out[j].EstimatedEarnings
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
