package heatmap

import (
	"math"
	"testing"
	"time"

	"drivepulse/internal/modules/signals"
	"drivepulse/internal/types"
)

var base = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func TestTimeWeight(t *testing.T) {
	start := base
	end := base.Add(3 * time.Hour)
	tests := []struct {
		name string
		now  time.Time
		want float64
	}{
		{"five hours out", start.Add(-5 * time.Hour), 0},
		{"four hours out", start.Add(-4 * time.Hour), 0},
		{"two hours out", start.Add(-2 * time.Hour), 1},
		{"thirty minutes out", start.Add(-30 * time.Minute), 1.75},
		{"exactly at start", start, 2},
		{"mid event", start.Add(90 * time.Minute), 2},
		{"exactly at end", end, 0},
		{"after end", end.Add(time.Minute), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := timeWeight(start, end, tt.now); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("timeWeight() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeWeight_ZeroLengthWindow(t *testing.T) {
	if got := timeWeight(base, base, base); got != 2 {
		t.Errorf("start == end == now should count as starting, got %v", got)
	}
}

func TestScore_Weights(t *testing.T) {
	loc := types.Location{Lat: 25.0331, Lng: 121.5651}
	agg := signals.Aggregated{
		ActiveRides:     []signals.ActiveRide{{ID: "a", Location: loc}},
		PendingRequests: []signals.PendingRequest{{ID: "p", Location: loc}},
		Events: []signals.Event{{
			ID: "e", Location: loc, ExpectedAttendance: 2500,
			StartTime: base, EndTime: base.Add(2 * time.Hour),
		}},
		Venues: []signals.Venue{{
			ID: "v", Location: loc, PopularityScore: 0.8,
			OpenTime: base.Add(-time.Hour), CloseTime: base.Add(4 * time.Hour),
		}},
	}

	scores := Score(agg, base)
	if len(scores) != 1 {
		t.Fatalf("expected one bucket, got %v", scores)
	}
	// 1 + 2 + (3 + 2.5 + 2) + (1 + 0.8 + 2)
	want := 14.3
	if got := scores["25.033:121.565"]; math.Abs(got-want) > 1e-9 {
		t.Errorf("bucket score = %v, want %v", got, want)
	}
}

func TestScore_AttendanceCapped(t *testing.T) {
	loc := types.Location{Lat: 1, Lng: 1}
	ev := func(n int) signals.Aggregated {
		return signals.Aggregated{Events: []signals.Event{{
			Location: loc, ExpectedAttendance: n,
			StartTime: base.Add(-time.Hour), EndTime: base,
		}}}
	}
	if got := Score(ev(9000), base)["1.000:1.000"]; got != 8 {
		t.Errorf("expired event with capped attendance = %v, want 8", got)
	}
	if got := Score(ev(5000), base)["1.000:1.000"]; got != 8 {
		t.Errorf("attendance at cap = %v, want 8", got)
	}
}

func TestScore_MonotonicInAttendance(t *testing.T) {
	loc := types.Location{Lat: 40.7128, Lng: -74.006}
	key := "40.712:-74.006"
	prev := -1.0
	for n := 0; n <= 8000; n += 250 {
		agg := signals.Aggregated{
			PendingRequests: []signals.PendingRequest{{Location: loc}},
			Events: []signals.Event{{
				Location: loc, ExpectedAttendance: n,
				StartTime: base.Add(time.Hour), EndTime: base.Add(3 * time.Hour),
			}},
		}
		got := Score(agg, base)[key]
		if got < prev {
			t.Fatalf("score decreased at attendance %d: %v < %v", n, got, prev)
		}
		prev = got
	}
}

func TestScore_SkipsInvalidLocations(t *testing.T) {
	agg := signals.Aggregated{
		ActiveRides: []signals.ActiveRide{{Location: types.Location{Lat: 95, Lng: 0}}},
	}
	if got := Score(agg, base); len(got) != 0 {
		t.Errorf("invalid coordinates should be ignored, got %v", got)
	}
}

func TestEntries_OrderAndCentroid(t *testing.T) {
	scores := map[string]float64{
		"25.033:121.565": 3,
		"25.034:121.565": 7,
		"25.032:121.565": 3,
	}
	entries := Entries(scores)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	wantOrder := []string{"25.034:121.565", "25.032:121.565", "25.033:121.565"}
	for i, key := range wantOrder {
		if entries[i].Bucket != key {
			t.Errorf("entries[%d] = %s, want %s", i, entries[i].Bucket, key)
		}
	}
	if c := entries[0].Center; math.Abs(c.Lat-25.0345) > 1e-9 || math.Abs(c.Lng-121.5655) > 1e-9 {
		t.Errorf("unexpected centroid %+v", c)
	}
}
