// README: Driver profile store backed by PostgreSQL.
package driver

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"drivepulse/internal/types"
)

const foreignKeyViolation = "23503"

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Preferences(ctx context.Context, id types.ID) (Preferences, error) {
	var maxDist, minEarn, dir sql.NullFloat64
	err := s.db.QueryRow(ctx, `
        SELECT max_distance_km, min_earnings, preferred_direction
        FROM drivers
        WHERE id = $1`, string(id),
	).Scan(&maxDist, &minEarn, &dir)
	if errors.Is(err, pgx.ErrNoRows) {
		return Preferences{}, ErrDriverNotFound
	}
	if err != nil {
		return Preferences{}, err
	}

	p := DefaultPreferences()
	if maxDist.Valid {
		p.MaxDistanceKm = maxDist.Float64
	}
	if minEarn.Valid {
		p.MinEarnings = minEarn.Float64
	}
	if dir.Valid {
		d := dir.Float64
		p.PreferredDirection = &d
	}
	return p, nil
}

func (s *Store) Status(ctx context.Context, id types.ID) (Status, error) {
	st := Status{DriverID: id}
	var lat, lng, fuel sql.NullFloat64
	var updatedAt sql.NullTime
	err := s.db.QueryRow(ctx, `
        SELECT lat, lng, fuel_level, status_updated_at
        FROM drivers
        WHERE id = $1`, string(id),
	).Scan(&lat, &lng, &fuel, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Status{}, ErrDriverNotFound
	}
	if err != nil {
		return Status{}, err
	}
	st.Location = types.Location{Lat: lat.Float64, Lng: lng.Float64}
	st.FuelLevel = 100
	if fuel.Valid {
		st.FuelLevel = fuel.Float64
	}
	if updatedAt.Valid {
		st.UpdatedAt = updatedAt.Time
	}
	return st, nil
}

func (s *Store) UpdateStatus(ctx context.Context, st Status) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE drivers
        SET lat = $1, lng = $2, fuel_level = $3, status_updated_at = $4
        WHERE id = $5`,
		st.Location.Lat, st.Location.Lng, st.FuelLevel, toUTC(st.UpdatedAt), string(st.DriverID),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDriverNotFound
	}
	return nil
}

func (s *Store) SaveSavings(ctx context.Context, id types.ID, cfg SavingsConfig) (SavingsConfig, error) {
	err := s.db.QueryRow(ctx, `
        INSERT INTO driver_savings (driver_id, tax_pct, vacation_pct, goals_pct, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (driver_id) DO UPDATE
        SET tax_pct = EXCLUDED.tax_pct,
            vacation_pct = EXCLUDED.vacation_pct,
            goals_pct = EXCLUDED.goals_pct,
            updated_at = EXCLUDED.updated_at
        RETURNING tax_pct, vacation_pct, goals_pct, updated_at`,
		string(id), cfg.TaxPct, cfg.VacationPct, cfg.GoalsPct, toUTC(cfg.UpdatedAt),
	).Scan(&cfg.TaxPct, &cfg.VacationPct, &cfg.GoalsPct, &cfg.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return SavingsConfig{}, ErrDriverNotFound
	}
	return cfg, err
}

func (s *Store) Savings(ctx context.Context, id types.ID) (SavingsConfig, bool, error) {
	var cfg SavingsConfig
	err := s.db.QueryRow(ctx, `
        SELECT tax_pct, vacation_pct, goals_pct, updated_at
        FROM driver_savings
        WHERE driver_id = $1`, string(id),
	).Scan(&cfg.TaxPct, &cfg.VacationPct, &cfg.GoalsPct, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SavingsConfig{}, false, nil
	}
	if err != nil {
		return SavingsConfig{}, false, err
	}
	return cfg, true, nil
}

func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
