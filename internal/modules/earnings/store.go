// README: Earnings ledger, market/driver statistics and opportunity feed backed by PostgreSQL.
package earnings

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"drivepulse/internal/geo"
	"drivepulse/internal/types"
)

const (
	marketWindow   = 7 * 24 * time.Hour
	historyWindow  = 30 * 24 * time.Hour
	bestHoursCount = 4
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Today sums the driver's completed rides since local midnight.
func (s *Store) Today(ctx context.Context, driverID types.ID) (DailyEarnings, error) {
	var d DailyEarnings
	var first sql.NullTime
	err := s.db.QueryRow(ctx, `
        SELECT COALESCE(SUM(amount), 0), COUNT(*), MIN(completed_at)
        FROM ride_earnings
        WHERE driver_id = $1
          AND completed_at >= date_trunc('day', NOW())`, string(driverID),
	).Scan(&d.Total, &d.Rides, &first)
	if err != nil {
		return DailyEarnings{}, err
	}
	if first.Valid {
		d.StartedAt = first.Time
	}
	return d, nil
}

// AvgEarningsPerRide is the market-wide average over the last week. It
// returns 0 when there is no data.
func (s *Store) AvgEarningsPerRide(ctx context.Context) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRow(ctx, `
        SELECT AVG(amount)
        FROM ride_earnings
        WHERE completed_at > $1`, time.Now().Add(-marketWindow).UTC(),
	).Scan(&avg)
	if err != nil {
		return 0, err
	}
	return avg.Float64, nil
}

func (s *Store) DriverStats(ctx context.Context, driverID types.ID) (DriverStats, error) {
	since := time.Now().Add(-historyWindow).UTC()
	stats := DriverStats{HourlyEarnings: map[int]float64{}}

	var avg sql.NullFloat64
	if err := s.db.QueryRow(ctx, `
        SELECT AVG(amount)
        FROM ride_earnings
        WHERE driver_id = $1 AND completed_at > $2`, string(driverID), since,
	).Scan(&avg); err != nil {
		return DriverStats{}, err
	}
	stats.AvgEarningsPerRide = avg.Float64

	rows, err := s.db.Query(ctx, `
        SELECT EXTRACT(HOUR FROM completed_at)::int AS hour, AVG(amount) AS avg_amount
        FROM ride_earnings
        WHERE driver_id = $1 AND completed_at > $2
        GROUP BY hour
        ORDER BY avg_amount DESC, hour`, string(driverID), since,
	)
	if err != nil {
		return DriverStats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var hour int
		var amount float64
		if err := rows.Scan(&hour, &amount); err != nil {
			return DriverStats{}, err
		}
		stats.HourlyEarnings[hour] = amount
		if len(stats.BestHours) < bestHoursCount {
			stats.BestHours = append(stats.BestHours, hour)
		}
	}
	return stats, rows.Err()
}

// Nearby merges open ride requests with the non-ride opportunity feed.
func (s *Store) Nearby(ctx context.Context, loc types.Location, radiusKm float64) ([]Opportunity, error) {
	box := geo.BoundingBox(loc, radiusKm)
	rows, err := s.db.Query(ctx, `
        SELECT id, 'ride' AS kind, 'Ride request' AS title, pickup_lat, pickup_lng, estimated_earnings, '' AS reason
        FROM rides
        WHERE status = 'requested'
          AND pickup_lat BETWEEN $1 AND $2
          AND pickup_lng BETWEEN $3 AND $4
        UNION ALL
        SELECT id, kind, title, lat, lng, estimated_earnings, COALESCE(reason, '')
        FROM opportunities
        WHERE ends_at > NOW()
          AND lat BETWEEN $1 AND $2
          AND lng BETWEEN $3 AND $4`,
		box.MinLat, box.MaxLat, box.MinLng, box.MaxLng,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Opportunity
	for rows.Next() {
		var o Opportunity
		if err := rows.Scan(&o.ID, &o.Kind, &o.Title, &o.Location.Lat, &o.Location.Lng,
			&o.EstimatedEarnings, &o.Reason); err != nil {
			return nil, err
		}
		if geo.DistanceKm(loc, o.Location) <= radiusKm {
			out = append(out, o)
		}
	}
	return out, rows.Err()
}
