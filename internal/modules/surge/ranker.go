package surge

import "sort"

// Rank drops insignificant zones and orders the rest by earnings per minute
// of travel, with travel time floored at one minute.
func Rank(zones []Zone) []Zone {
	out := make([]Zone, 0, len(zones))
	for _, z := range zones {
		if z.Multiplier > MinMultiplier {
			out = append(out, z)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := throughput(out[i]), throughput(out[j])
		if ri != rj {
			return ri > rj
		}
		if out[i].Multiplier != out[j].Multiplier {
			return out[i].Multiplier > out[j].Multiplier
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func throughput(z Zone) float64 {
	t := z.TravelTime
	if t < 1 {
		t = 1
	}
	return z.EstimatedEarnings / t
}
