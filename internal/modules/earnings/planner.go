package earnings

import (
	"math"
	"sort"
	"time"
)

// requiredRides is ceil(goal/avg), tolerant of float noise just above an integer.
func requiredRides(goal, avg float64) int {
	if goal <= 0 || avg <= 0 {
		return 0
	}
	return int(math.Ceil(goal/avg - 1e-9))
}

// windowSlots splits [start, end) into hour slots. The first slot begins at
// start, later ones on the hour.
func windowSlots(start, end time.Time) []time.Time {
	var slots []time.Time
	for t := start; t.Before(end); t = t.Truncate(time.Hour).Add(time.Hour) {
		slots = append(slots, t)
	}
	return slots
}

// planSlots keeps the slots that fall on the driver's best hours, weighted by
// their historical earnings. With no overlap every slot counts equally.
func planSlots(slots []time.Time, stats DriverStats, loc *time.Location) ([]time.Time, []float64) {
	best := make(map[int]bool, len(stats.BestHours))
	for _, h := range stats.BestHours {
		best[h] = true
	}
	var (
		picked  []time.Time
		weights []float64
	)
	for _, s := range slots {
		h := s.In(loc).Hour()
		if !best[h] {
			continue
		}
		w := stats.HourlyEarnings[h]
		if w <= 0 {
			w = 1
		}
		picked = append(picked, s)
		weights = append(weights, w)
	}
	if len(picked) > 0 {
		return picked, weights
	}
	weights = make([]float64, len(slots))
	for i := range weights {
		weights[i] = 1
	}
	return slots, weights
}

// hourlyPlan spreads rides by largest remainder so the targets sum to rides,
// and earnings proportionally to the slot weights.
func hourlyPlan(slots []time.Time, weights []float64, goal float64, rides int, loc *time.Location) []HourTarget {
	if len(slots) == 0 {
		return nil
	}
	var total float64
	for _, w := range weights {
		total += w
	}

	out := make([]HourTarget, len(slots))
	type frac struct {
		idx int
		rem float64
	}
	fracs := make([]frac, len(slots))
	assigned := 0
	for i, s := range slots {
		share := weights[i] / total
		quota := float64(rides) * share
		whole := int(math.Floor(quota))
		out[i] = HourTarget{
			Hour:           s.In(loc).Hour(),
			Start:          s,
			TargetRides:    whole,
			TargetEarnings: round2(goal * share),
		}
		fracs[i] = frac{idx: i, rem: quota - float64(whole)}
		assigned += whole
	}
	sort.SliceStable(fracs, func(i, j int) bool { return fracs[i].rem > fracs[j].rem })
	for k := 0; assigned < rides; k++ {
		out[fracs[k%len(fracs)].idx].TargetRides++
		assigned++
	}
	return out
}

// completionEstimate is the end of the last slot that still has rides to do.
func completionEstimate(plan []HourTarget, end time.Time) time.Time {
	for i := len(plan) - 1; i >= 0; i-- {
		if plan[i].TargetRides > 0 {
			done := plan[i].Start.Truncate(time.Hour).Add(time.Hour)
			if done.After(end) {
				return end
			}
			return done
		}
	}
	return end
}

func hoursOf(plan []HourTarget) []int {
	out := make([]int, len(plan))
	for i, h := range plan {
		out[i] = h.Hour
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
