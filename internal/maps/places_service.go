package maps

import (
	"context"
	"fmt"
	"sort"

	"googlemaps.github.io/maps"

	"drivepulse/internal/geo"
	"drivepulse/internal/types"
)

// maxGasStations caps how many stations are suggested at once.
const maxGasStations = 3

// Place represents a simplified location result.
type Place struct {
	Name       string         `json:"name"`
	Address    string         `json:"address"`
	Rating     float32        `json:"rating"`
	PlaceID    string         `json:"place_id"`
	Location   types.Location `json:"location"`
	DistanceKm float64        `json:"distance_km"`
	OpenNow    bool           `json:"open_now"`
}

// PlacesService handles interactions with Google Places API.
type PlacesService struct {
	client *maps.Client
}

// NewPlacesService creates a new PlacesService with the given API Key.
func NewPlacesService(apiKey string) (*PlacesService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &PlacesService{client: client}, nil
}

// GasStations returns the closest open gas stations around loc.
func (s *PlacesService) GasStations(ctx context.Context, loc types.Location, radiusKm float64) ([]Place, error) {
	r := &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: loc.Lat, Lng: loc.Lng},
		Radius:   uint(radiusKm * 1000),
		Type:     maps.PlaceTypeGasStation,
		OpenNow:  true,
	}

	resp, err := s.client.NearbySearch(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("places api error: %w", err)
	}

	places := make([]Place, 0, len(resp.Results))
	for _, result := range resp.Results {
		p := Place{
			Name:     result.Name,
			Address:  result.Vicinity,
			Rating:   result.Rating,
			PlaceID:  result.PlaceID,
			Location: types.Location{Lat: result.Geometry.Location.Lat, Lng: result.Geometry.Location.Lng},
		}
		if result.OpeningHours != nil && result.OpeningHours.OpenNow != nil {
			p.OpenNow = *result.OpeningHours.OpenNow
		}
		p.DistanceKm = geo.DistanceKm(loc, p.Location)
		places = append(places, p)
	}
	return nearest(places, maxGasStations), nil
}

// nearest orders places by distance, breaking ties on rating, and keeps n.
func nearest(places []Place, n int) []Place {
	sort.SliceStable(places, func(i, j int) bool {
		if places[i].DistanceKm != places[j].DistanceKm {
			return places[i].DistanceKm < places[j].DistanceKm
		}
		return places[i].Rating > places[j].Rating
	})
	if len(places) > n {
		places = places[:n]
	}
	return places
}
