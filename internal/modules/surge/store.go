// README: Surge zone store backed by PostgreSQL.
package surge

import (
	"context"
	"database/sql"

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

// ActiveZones returns zones still running whose centre lies within radiusKm.
func (s *Store) ActiveZones(ctx context.Context, loc types.Location, radiusKm float64) ([]ActiveZone, error) {
	box := geo.BoundingBox(loc, radiusKm)
	rows, err := s.db.Query(ctx, `
        SELECT id, lat, lng, multiplier, base_fare, ends_at
        FROM surge_zones
        WHERE ends_at > NOW()
          AND lat BETWEEN $1 AND $2
          AND lng BETWEEN $3 AND $4`,
		box.MinLat, box.MaxLat, box.MinLng, box.MaxLng,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActiveZone
	for rows.Next() {
		var z ActiveZone
		var fare sql.NullFloat64
		if err := rows.Scan(&z.ID, &z.Location.Lat, &z.Location.Lng, &z.Multiplier, &fare, &z.EndsAt); err != nil {
			return nil, err
		}
		z.BaseFare = fare.Float64
		if geo.DistanceKm(loc, z.Location) <= radiusKm {
			out = append(out, z)
		}
	}
	return out, rows.Err()
}
