// README: Parallel fan-out over the four demand sources with partial-failure tolerance.
package signals

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"drivepulse/internal/retry"
	"drivepulse/internal/types"
)

// RideSource serves rides in motion and open requests around a point.
type RideSource interface {
	ActiveRides(ctx context.Context, loc types.Location, radiusKm float64) ([]ActiveRide, error)
	PendingRequests(ctx context.Context, loc types.Location, radiusKm float64) ([]PendingRequest, error)
}

// Directory serves scheduled events and venues around a point.
type Directory interface {
	Events(ctx context.Context, loc types.Location, radiusKm float64) ([]Event, error)
	Venues(ctx context.Context, loc types.Location, radiusKm float64) ([]Venue, error)
}

type Aggregator struct {
	rides  RideSource
	dir    Directory
	policy retry.Policy
	log    *zap.Logger
}

func NewAggregator(rides RideSource, dir Directory, policy retry.Policy, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{rides: rides, dir: dir, policy: policy, log: log}
}

// Fetch queries all four sources concurrently and waits for each to return
// or fail. It only errors when every source failed or ctx was cancelled.
func (a *Aggregator) Fetch(ctx context.Context, loc types.Location, radiusKm float64) (Aggregated, error) {
	var (
		out  Aggregated
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fail := func(source string, err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, fmt.Errorf("%s: %w", source, err))
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s unavailable: %v", source, err))
		a.log.Warn("demand source failed",
			zap.String("source", source),
			zap.Float64("lat", loc.Lat),
			zap.Float64("lng", loc.Lng),
			zap.Error(err),
		)
	}

	wg.Add(4)
	go func() {
		defer wg.Done()
		v, err := retry.Value(ctx, a.policy, func(ctx context.Context) ([]ActiveRide, error) {
			return a.rides.ActiveRides(ctx, loc, radiusKm)
		})
		if err != nil {
			fail("active_rides", err)
			return
		}
		out.ActiveRides = v
	}()
	go func() {
		defer wg.Done()
		v, err := retry.Value(ctx, a.policy, func(ctx context.Context) ([]PendingRequest, error) {
			return a.rides.PendingRequests(ctx, loc, radiusKm)
		})
		if err != nil {
			fail("pending_requests", err)
			return
		}
		out.PendingRequests = v
	}()
	go func() {
		defer wg.Done()
		v, err := retry.Value(ctx, a.policy, func(ctx context.Context) ([]Event, error) {
			return a.dir.Events(ctx, loc, radiusKm)
		})
		if err != nil {
			fail("events", err)
			return
		}
		out.Events = v
	}()
	go func() {
		defer wg.Done()
		v, err := retry.Value(ctx, a.policy, func(ctx context.Context) ([]Venue, error) {
			return a.dir.Venues(ctx, loc, radiusKm)
		})
		if err != nil {
			fail("venues", err)
			return
		}
		out.Venues = v
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Aggregated{}, err
	}
	if len(errs) == 4 {
		return Aggregated{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, errors.Join(errs...))
	}
	counts := out.Counts()
	a.log.Debug("demand signals fetched",
		zap.Int("active_rides", counts[KindActiveRide]),
		zap.Int("pending_requests", counts[KindPendingRequest]),
		zap.Int("events", counts[KindEvent]),
		zap.Int("venues", counts[KindVenue]),
		zap.Int("failed_sources", len(errs)),
	)
	return out, nil
}
