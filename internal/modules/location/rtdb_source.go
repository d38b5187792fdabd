// README: Firebase Realtime Database ride source: drivers on trips and riders waiting for a pickup.
package location

import (
	"context"
	"fmt"
	"sort"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"

	"drivepulse/internal/geo"
	"drivepulse/internal/modules/signals"
	"drivepulse/internal/types"
)

// querier fetches the children of path whose status equals status.
type querier interface {
	byStatus(ctx context.Context, path, status string) (map[string]entry, error)
}

type rtdbQuerier struct {
	client *db.Client
}

func (q rtdbQuerier) byStatus(ctx context.Context, path, status string) (map[string]entry, error) {
	var data map[string]entry
	if err := q.client.NewRef(path).OrderByChild("status").EqualTo(status).Get(ctx, &data); err != nil {
		return nil, fmt.Errorf("query %s status=%s: %w", path, status, err)
	}
	return data, nil
}

// RTDBSource implements signals.RideSource over the location nodes the rider
// and driver apps keep current.
type RTDBSource struct {
	q      querier
	maxAge time.Duration
	now    func() time.Time
}

// NewRTDBSource needs an app configured with a DatabaseURL.
func NewRTDBSource(ctx context.Context, app *firebase.App) (*RTDBSource, error) {
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Database: %w", err)
	}
	return &RTDBSource{q: rtdbQuerier{client: client}, maxAge: defaultMaxAge, now: time.Now}, nil
}

var _ signals.RideSource = (*RTDBSource)(nil)

func (s *RTDBSource) ActiveRides(ctx context.Context, loc types.Location, radiusKm float64) ([]signals.ActiveRide, error) {
	data, err := s.q.byStatus(ctx, driverLocationsPath, statusOnTrip)
	if err != nil {
		return nil, err
	}
	hits := s.nearby(data, loc, radiusKm)
	out := make([]signals.ActiveRide, len(hits))
	for i, h := range hits {
		out[i] = signals.ActiveRide{ID: h.id, Location: h.loc}
	}
	return out, nil
}

func (s *RTDBSource) PendingRequests(ctx context.Context, loc types.Location, radiusKm float64) ([]signals.PendingRequest, error) {
	data, err := s.q.byStatus(ctx, passengerLocationsPath, statusLookingForRide)
	if err != nil {
		return nil, err
	}
	hits := s.nearby(data, loc, radiusKm)
	out := make([]signals.PendingRequest, len(hits))
	for i, h := range hits {
		out[i] = signals.PendingRequest{ID: h.id, Location: h.loc}
	}
	return out, nil
}

type hit struct {
	id   types.ID
	loc  types.Location
	dist float64
}

// nearby keeps fresh, valid entries within radiusKm of origin, closest first.
func (s *RTDBSource) nearby(data map[string]entry, origin types.Location, radiusKm float64) []hit {
	cutoff := s.now().Add(-s.maxAge).UnixMilli()
	out := make([]hit, 0, len(data))
	for id, e := range data {
		if e.Timestamp > 0 && e.Timestamp < cutoff {
			continue
		}
		loc := e.location()
		if !loc.Valid() {
			continue
		}
		if d := geo.DistanceKm(origin, loc); d <= radiusKm {
			out = append(out, hit{id: types.ID(id), loc: loc, dist: d})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].dist != out[j].dist {
			return out[i].dist < out[j].dist
		}
		return out[i].id < out[j].id
	})
	return out
}
