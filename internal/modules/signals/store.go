// README: Signal stores. Rides and requests live in Redis GEO sets, events and venues in Postgres.
package signals

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"drivepulse/internal/geo"
	"drivepulse/internal/types"
)

const (
	activeRidesGeoKey     = "signals:rides:active"
	pendingRequestsGeoKey = "signals:requests:pending"
)

// RedisRideStore indexes ride positions with GEOADD and answers radius
// queries with GEOSEARCH.
type RedisRideStore struct {
	redis *redis.Client
}

func NewRedisRideStore(redis *redis.Client) *RedisRideStore {
	return &RedisRideStore{redis: redis}
}

func (s *RedisRideStore) TrackActiveRide(ctx context.Context, r ActiveRide) error {
	return s.add(ctx, activeRidesGeoKey, r.ID, r.Location)
}

func (s *RedisRideStore) TrackPendingRequest(ctx context.Context, r PendingRequest) error {
	return s.add(ctx, pendingRequestsGeoKey, r.ID, r.Location)
}

// Untrack removes a ride from both indexes, e.g. once it completes or is accepted.
func (s *RedisRideStore) Untrack(ctx context.Context, id types.ID) error {
	pipe := s.redis.Pipeline()
	pipe.ZRem(ctx, activeRidesGeoKey, string(id))
	pipe.ZRem(ctx, pendingRequestsGeoKey, string(id))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisRideStore) ActiveRides(ctx context.Context, loc types.Location, radiusKm float64) ([]ActiveRide, error) {
	found, err := s.search(ctx, activeRidesGeoKey, loc, radiusKm)
	if err != nil {
		return nil, err
	}
	out := make([]ActiveRide, len(found))
	for i, g := range found {
		out[i] = ActiveRide{ID: types.ID(g.Name), Location: types.Location{Lat: g.Latitude, Lng: g.Longitude}}
	}
	return out, nil
}

func (s *RedisRideStore) PendingRequests(ctx context.Context, loc types.Location, radiusKm float64) ([]PendingRequest, error) {
	found, err := s.search(ctx, pendingRequestsGeoKey, loc, radiusKm)
	if err != nil {
		return nil, err
	}
	out := make([]PendingRequest, len(found))
	for i, g := range found {
		out[i] = PendingRequest{ID: types.ID(g.Name), Location: types.Location{Lat: g.Latitude, Lng: g.Longitude}}
	}
	return out, nil
}

func (s *RedisRideStore) add(ctx context.Context, key string, id types.ID, loc types.Location) error {
	return s.redis.GeoAdd(ctx, key, &redis.GeoLocation{
		Name:      string(id),
		Longitude: loc.Lng,
		Latitude:  loc.Lat,
	}).Err()
}

func (s *RedisRideStore) search(ctx context.Context, key string, loc types.Location, radiusKm float64) ([]redis.GeoLocation, error) {
	return s.redis.GeoSearchLocation(ctx, key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  loc.Lng,
			Latitude:   loc.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
	}).Result()
}

// PGDirectory reads events and venues. The bounding box narrows the scan
// and the great-circle check trims the corners.
type PGDirectory struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewPGDirectory(db *pgxpool.Pool) *PGDirectory {
	return &PGDirectory{db: db, now: time.Now}
}

// Events returns events in radius that have not ended yet.
func (d *PGDirectory) Events(ctx context.Context, loc types.Location, radiusKm float64) ([]Event, error) {
	box := geo.BoundingBox(loc, radiusKm)
	rows, err := d.db.Query(ctx, `
        SELECT id, name, lat, lng, expected_attendance, start_time, end_time
        FROM events
        WHERE lat BETWEEN $1 AND $2
          AND lng BETWEEN $3 AND $4
          AND end_time > $5
        ORDER BY start_time`,
		box.MinLat, box.MaxLat, box.MinLng, box.MaxLng, d.now().UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Location.Lat, &e.Location.Lng,
			&e.ExpectedAttendance, &e.StartTime, &e.EndTime); err != nil {
			return nil, err
		}
		if geo.DistanceKm(loc, e.Location) <= radiusKm {
			out = append(out, e)
		}
	}
	return out, rows.Err()
}

func (d *PGDirectory) Venues(ctx context.Context, loc types.Location, radiusKm float64) ([]Venue, error) {
	box := geo.BoundingBox(loc, radiusKm)
	rows, err := d.db.Query(ctx, `
        SELECT id, name, lat, lng, popularity_score, open_time, close_time
        FROM venues
        WHERE lat BETWEEN $1 AND $2
          AND lng BETWEEN $3 AND $4`,
		box.MinLat, box.MaxLat, box.MinLng, box.MaxLng,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Venue
	for rows.Next() {
		var v Venue
		if err := rows.Scan(&v.ID, &v.Name, &v.Location.Lat, &v.Location.Lng,
			&v.PopularityScore, &v.OpenTime, &v.CloseTime); err != nil {
			return nil, err
		}
		if geo.DistanceKm(loc, v.Location) <= radiusKm {
			out = append(out, v)
		}
	}
	return out, rows.Err()
}
