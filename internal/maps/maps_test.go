package maps

import (
	"math"
	"testing"

	"drivepulse/internal/types"
)

func TestEstimateTravelTime(t *testing.T) {
	from := types.Location{Lat: 0, Lng: 0}
	to := types.Location{Lat: 0.26979, Lng: 0} // ~30 km north
	got := EstimateTravelTime(from, to)
	if math.Abs(got.Minutes()-60) > 1 {
		t.Errorf("EstimateTravelTime() = %v, want about 1h", got)
	}
	if EstimateTravelTime(from, from) != 0 {
		t.Error("same point should take no time")
	}
}

func TestNearest(t *testing.T) {
	places := []Place{
		{PlaceID: "far", DistanceKm: 2.5},
		{PlaceID: "near-low", DistanceKm: 0.4, Rating: 3.9},
		{PlaceID: "near-high", DistanceKm: 0.4, Rating: 4.6},
		{PlaceID: "mid", DistanceKm: 1.1},
	}
	got := nearest(places, 3)
	want := []string{"near-high", "near-low", "mid"}
	if len(got) != len(want) {
		t.Fatalf("got %d places, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].PlaceID != id {
			t.Errorf("place %d = %s, want %s", i, got[i].PlaceID, id)
		}
	}
}

func TestLatLngString(t *testing.T) {
	if got := latLngString(types.Location{Lat: 25.0330001, Lng: -121.5}); got != "25.033000,-121.500000" {
		t.Errorf("latLngString() = %q", got)
	}
}
