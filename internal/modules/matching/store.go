// README: Ride, delivery and incentive reads backed by PostgreSQL.
package matching

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"drivepulse/internal/geo"
	"drivepulse/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) CurrentRide(ctx context.Context, id types.ID) (CurrentRide, error) {
	var r CurrentRide
	var driverID sql.NullString
	var startedAt, dropoffAt sql.NullTime
	err := s.db.QueryRow(ctx, `
        SELECT id, driver_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
               started_at, estimated_dropoff_at
        FROM rides
        WHERE id = $1`, string(id),
	).Scan(&r.ID, &driverID, &r.Pickup.Lat, &r.Pickup.Lng, &r.Dropoff.Lat, &r.Dropoff.Lng,
		&startedAt, &dropoffAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CurrentRide{}, ErrRideNotFound
	}
	if err != nil {
		return CurrentRide{}, err
	}
	if driverID.Valid {
		r.DriverID = types.ID(driverID.String)
	}
	r.StartedAt = toTimePtr(startedAt)
	r.EstimatedDropoffAt = toTimePtr(dropoffAt)
	return r, nil
}

func (s *Store) CandidatesNear(ctx context.Context, loc types.Location, radiusKm float64, from, to time.Time) ([]RideCandidate, error) {
	box := geo.BoundingBox(loc, radiusKm)
	rows, err := s.db.Query(ctx, `
        SELECT id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
               estimated_earnings, rider_rating, requested_pickup_at
        FROM rides
        WHERE status = 'requested'
          AND pickup_lat BETWEEN $1 AND $2
          AND pickup_lng BETWEEN $3 AND $4
          AND requested_pickup_at BETWEEN $5 AND $6`,
		box.MinLat, box.MaxLat, box.MinLng, box.MaxLng, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	return collectRides(rows, loc, radiusKm)
}

// NearbyRides lists open requests around loc regardless of pickup time.
func (s *Store) NearbyRides(ctx context.Context, loc types.Location, radiusKm float64) ([]RideCandidate, error) {
	box := geo.BoundingBox(loc, radiusKm)
	rows, err := s.db.Query(ctx, `
        SELECT id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
               estimated_earnings, rider_rating, requested_pickup_at
        FROM rides
        WHERE status = 'requested'
          AND pickup_lat BETWEEN $1 AND $2
          AND pickup_lng BETWEEN $3 AND $4`,
		box.MinLat, box.MaxLat, box.MinLng, box.MaxLng,
	)
	if err != nil {
		return nil, err
	}
	return collectRides(rows, loc, radiusKm)
}

func collectRides(rows pgx.Rows, origin types.Location, radiusKm float64) ([]RideCandidate, error) {
	defer rows.Close()
	var out []RideCandidate
	for rows.Next() {
		var c RideCandidate
		var rating sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.Pickup.Lat, &c.Pickup.Lng, &c.Dropoff.Lat, &c.Dropoff.Lng,
			&c.EstimatedEarnings, &rating, &c.PickupAt); err != nil {
			return nil, err
		}
		c.RiderRating = 5
		if rating.Valid {
			c.RiderRating = rating.Float64
		}
		c.DistanceKm = geo.DistanceKm(origin, c.Pickup)
		if c.DistanceKm <= radiusKm {
			out = append(out, c)
		}
	}
	return out, rows.Err()
}

func (s *Store) NearbyDeliveries(ctx context.Context, loc types.Location, radiusKm float64) ([]Delivery, error) {
	box := geo.BoundingBox(loc, radiusKm)
	rows, err := s.db.Query(ctx, `
        SELECT id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, estimated_earnings
        FROM deliveries
        WHERE status = 'open'
          AND pickup_lat BETWEEN $1 AND $2
          AND pickup_lng BETWEEN $3 AND $4`,
		box.MinLat, box.MaxLat, box.MinLng, box.MaxLng,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.Pickup.Lat, &d.Pickup.Lng, &d.Dropoff.Lat, &d.Dropoff.Lng,
			&d.EstimatedEarnings); err != nil {
			return nil, err
		}
		d.DistanceKm = geo.DistanceKm(loc, d.Pickup)
		if d.DistanceKm <= radiusKm {
			out = append(out, d)
		}
	}
	return out, rows.Err()
}

// Incentives returns active bonuses offered to this driver or to everyone,
// whose area covers loc.
func (s *Store) Incentives(ctx context.Context, driverID types.ID, loc types.Location) ([]Incentive, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, title, bonus, lat, lng, radius_km, ends_at
        FROM incentives
        WHERE (driver_id IS NULL OR driver_id = $1)
          AND starts_at <= NOW() AND ends_at > NOW()
        ORDER BY bonus DESC`, string(driverID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Incentive
	for rows.Next() {
		var in Incentive
		var center types.Location
		var radius float64
		if err := rows.Scan(&in.ID, &in.Title, &in.Bonus, &center.Lat, &center.Lng, &radius, &in.ExpiresAt); err != nil {
			return nil, err
		}
		if geo.DistanceKm(loc, center) <= radius {
			out = append(out, in)
		}
	}
	return out, rows.Err()
}

func toTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
