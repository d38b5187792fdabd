package geo

import (
	"math"

	"github.com/golang/geo/s2"

	"drivepulse/internal/types"
)

const (
	EarthRadiusKm = 6371.0
	kmPerDegree   = 111.32
)

// DistanceKm returns the great-circle distance between two locations.
func DistanceKm(a, b types.Location) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lng)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return p1.Distance(p2).Radians() * EarthRadiusKm
}

// Bearing returns the initial bearing from a to b in degrees, 0 = north,
// clockwise, normalised to [0, 360).
func Bearing(a, b types.Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// DirectionMatch maps the angle between two bearings onto [0, 1]:
// 1 when aligned, 0 when opposite, linear in between.
func DirectionMatch(bearing, preferred float64) float64 {
	diff := math.Abs(math.Mod(bearing-preferred, 360))
	if diff > 180 {
		diff = 360 - diff
	}
	return 1 - diff/180
}

// Box is a lat/lng rectangle used to prefilter radius queries in SQL.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

func BoundingBox(center types.Location, radiusKm float64) Box {
	dLat := radiusKm / kmPerDegree
	cosLat := math.Cos(center.Lat * math.Pi / 180)
	dLng := 180.0
	if cosLat > 1e-6 {
		dLng = math.Min(radiusKm/(kmPerDegree*cosLat), 180)
	}
	return Box{
		MinLat: math.Max(center.Lat-dLat, -90),
		MaxLat: math.Min(center.Lat+dLat, 90),
		MinLng: math.Max(center.Lng-dLng, -180),
		MaxLng: math.Min(center.Lng+dLng, 180),
	}
}

func (b Box) Contains(loc types.Location) bool {
	return loc.Lat >= b.MinLat && loc.Lat <= b.MaxLat && loc.Lng >= b.MinLng && loc.Lng <= b.MaxLng
}
