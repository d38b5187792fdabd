package maps

import (
	"context"
	"fmt"
	"math"
	"time"

	"googlemaps.github.io/maps"

	"drivepulse/internal/geo"
	"drivepulse/internal/types"
)

// FallbackSpeedKmh is the assumed city speed when no route is available.
const FallbackSpeedKmh = 30.0

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// TravelTime returns the driving duration between two points.
func (s *RouteService) TravelTime(ctx context.Context, from, to types.Location) (time.Duration, error) {
	r := &maps.DirectionsRequest{
		Origin:        latLngString(from),
		Destination:   latLngString(to),
		Mode:          maps.TravelModeDriving,
		DepartureTime: "now",
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, fmt.Errorf("no route found")
	}

	leg := routes[0].Legs[0]
	if leg.DurationInTraffic > 0 {
		return leg.DurationInTraffic, nil
	}
	return leg.Duration, nil
}

// EstimateTravelTime assumes a straight line at FallbackSpeedKmh.
func EstimateTravelTime(from, to types.Location) time.Duration {
	hours := geo.DistanceKm(from, to) / FallbackSpeedKmh
	return time.Duration(math.Round(hours * float64(time.Hour)))
}

func latLngString(l types.Location) string {
	return fmt.Sprintf("%.6f,%.6f", l.Lat, l.Lng)
}
