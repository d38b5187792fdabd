// README: Matching service: ride stacking for busy drivers and suggestions for idle ones.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"drivepulse/internal/cache"
	"drivepulse/internal/config"
	"drivepulse/internal/maps"
	"drivepulse/internal/modules/driver"
	"drivepulse/internal/modules/heatmap"
	"drivepulse/internal/retry"
	"drivepulse/internal/types"
)

type RideRepository interface {
	CurrentRide(ctx context.Context, id types.ID) (CurrentRide, error)
	// CandidatesNear lists open requests around loc with a pickup time in [from, to].
	CandidatesNear(ctx context.Context, loc types.Location, radiusKm float64, from, to time.Time) ([]RideCandidate, error)
	NearbyRides(ctx context.Context, loc types.Location, radiusKm float64) ([]RideCandidate, error)
	NearbyDeliveries(ctx context.Context, loc types.Location, radiusKm float64) ([]Delivery, error)
	Incentives(ctx context.Context, driverID types.ID, loc types.Location) ([]Incentive, error)
}

type DriverProfiles interface {
	Preferences(ctx context.Context, id types.ID) (driver.Preferences, error)
	Status(ctx context.Context, id types.ID) (driver.Status, error)
}

type TravelEstimator interface {
	TravelTime(ctx context.Context, from, to types.Location) (time.Duration, error)
}

type GasStationFinder interface {
	GasStations(ctx context.Context, loc types.Location, radiusKm float64) ([]maps.Place, error)
}

type HeatmapProvider interface {
	GetHeatmap(ctx context.Context, loc types.Location, radiusKm float64) (heatmap.Heatmap, error)
}

type Service struct {
	rides   RideRepository
	drivers DriverProfiles
	travel  TravelEstimator
	gas     GasStationFinder
	heat    HeatmapProvider
	locks   cache.Store
	cfg     config.MatchingConfig
	policy  retry.Policy
	log     *zap.Logger
	now     func() time.Time
}

type Deps struct {
	Rides   RideRepository
	Drivers DriverProfiles
	Travel  TravelEstimator
	Gas     GasStationFinder
	Heatmap HeatmapProvider
	Locks   cache.Store
}

func NewService(d Deps, cfg config.MatchingConfig, policy retry.Policy, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		rides:   d.Rides,
		drivers: d.Drivers,
		travel:  d.Travel,
		gas:     d.Gas,
		heat:    d.Heatmap,
		locks:   d.Locks,
		cfg:     cfg,
		policy:  policy,
		log:     log,
		now:     time.Now,
	}
}

// StackNextRide looks for a ride starting near the current dropoff shortly
// after it completes and pre-assigns the best one scoring above StackThreshold.
// Finding nothing is a normal result, not an error.
func (s *Service) StackNextRide(ctx context.Context, driverID, currentRideID types.ID) (StackResult, error) {
	if driverID == "" || currentRideID == "" {
		return StackResult{}, types.Invalid("driver id and current ride id are required")
	}

	var (
		current CurrentRide
		prefs   driver.Preferences
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = retry.Value(gctx, s.policy, func(ctx context.Context) (CurrentRide, error) {
			r, err := s.rides.CurrentRide(ctx, currentRideID)
			if errors.Is(err, ErrRideNotFound) {
				return r, retry.Permanent(err)
			}
			return r, err
		})
		return err
	})
	g.Go(func() error {
		var err error
		prefs, err = s.drivers.Preferences(gctx, driverID)
		return err
	})
	if err := g.Wait(); err != nil {
		return StackResult{}, err
	}
	if current.DriverID != driverID {
		return StackResult{}, ErrRideNotFound
	}

	completion := s.estimateCompletion(ctx, current)
	cands, err := retry.Value(ctx, s.policy, func(ctx context.Context) ([]RideCandidate, error) {
		return s.rides.CandidatesNear(ctx, current.Dropoff, prefs.MaxDistanceKm, completion, completion.Add(s.cfg.StackWindow))
	})
	if err != nil {
		return StackResult{}, fmt.Errorf("find next rides: %w", err)
	}
	cands = excludeRide(cands, current.ID)

	for _, next := range Eligible(Rank(cands, prefs)) {
		ok, err := s.preassign(ctx, next.ID, driverID)
		if err != nil {
			return StackResult{}, err
		}
		if !ok {
			s.log.Debug("stack candidate already reserved", zap.String("ride_id", string(next.ID)))
			continue
		}
		wait := int(s.travelTime(ctx, current.Dropoff, next.Pickup).Seconds())
		s.log.Info("ride stacked",
			zap.String("driver_id", string(driverID)),
			zap.String("current_ride_id", string(current.ID)),
			zap.String("next_ride_id", string(next.ID)),
			zap.Float64("score", next.Score),
		)
		return StackResult{Matched: true, NextRide: &next, EstimatedCompletion: completion, EstimatedWaitSec: &wait}, nil
	}
	return StackResult{Matched: false, EstimatedCompletion: completion, Reason: NoMatchReason}, nil
}

func (s *Service) estimateCompletion(ctx context.Context, r CurrentRide) time.Time {
	now := s.now()
	if r.EstimatedDropoffAt != nil {
		return maxTime(*r.EstimatedDropoffAt, now)
	}
	start := now
	if r.StartedAt != nil {
		start = *r.StartedAt
	}
	return maxTime(start.Add(s.travelTime(ctx, r.Pickup, r.Dropoff)), now)
}

// travelTime falls back to a straight-line estimate when routing fails.
func (s *Service) travelTime(ctx context.Context, from, to types.Location) time.Duration {
	if s.travel != nil {
		d, err := retry.Value(ctx, s.policy, func(ctx context.Context) (time.Duration, error) {
			return s.travel.TravelTime(ctx, from, to)
		})
		if err == nil {
			return d
		}
		s.log.Warn("travel time estimate failed, using straight line", zap.Error(err))
	}
	return maps.EstimateTravelTime(from, to)
}

// preassign reserves rideID for driverID. It reports false when another
// driver already holds the ride.
func (s *Service) preassign(ctx context.Context, rideID, driverID types.ID) (bool, error) {
	key := fmt.Sprintf(preassignKeyFormat, rideID)
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		err := s.locks.SetNX(ctx, key, []byte(driverID), s.cfg.PreassignTTL)
		if errors.Is(err, cache.ErrNotStored) {
			return retry.Permanent(err)
		}
		return err
	})
	if errors.Is(err, cache.ErrNotStored) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("preassign ride %s: %w", rideID, err)
	}
	return true, nil
}

// HandleIdleDriver gathers what an idle driver could do right now. Rides are
// ordered by earnings alone; deliveries only backfill a thin ride list and gas
// stops only appear when fuel is low.
func (s *Service) HandleIdleDriver(ctx context.Context, driverID types.ID, loc types.Location) (IdleSuggestions, error) {
	if driverID == "" {
		return IdleSuggestions{}, types.Invalid("driver id is required")
	}
	if err := loc.Validate(); err != nil {
		return IdleSuggestions{}, err
	}

	var (
		out    IdleSuggestions
		rides  []RideCandidate
		status driver.Status
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rides, err = retry.Value(gctx, s.policy, func(ctx context.Context) ([]RideCandidate, error) {
			return s.rides.NearbyRides(ctx, loc, s.cfg.IdleRadiusKm)
		})
		if err != nil {
			return fmt.Errorf("nearby rides: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		status, err = s.drivers.Status(gctx, driverID)
		if errors.Is(err, driver.ErrDriverNotFound) {
			status, err = driver.Status{DriverID: driverID, Location: loc, FuelLevel: 100}, nil
		}
		return err
	})
	g.Go(func() error {
		hm, err := s.heat.GetHeatmap(gctx, loc, s.cfg.IdleHeatmapKm)
		if err != nil {
			s.log.Warn("idle heatmap unavailable", zap.String("driver_id", string(driverID)), zap.Error(err))
			return nil
		}
		out.Heatmap = &hm
		return nil
	})
	g.Go(func() error {
		inc, err := retry.Value(gctx, s.policy, func(ctx context.Context) ([]Incentive, error) {
			return s.rides.Incentives(ctx, driverID, loc)
		})
		if err != nil {
			s.log.Warn("incentives unavailable", zap.String("driver_id", string(driverID)), zap.Error(err))
			return nil
		}
		out.Incentives = inc
		return nil
	})
	if err := g.Wait(); err != nil {
		return IdleSuggestions{}, err
	}
	out.Rides = ByEarnings(rides, maxIdleRides)

	g, gctx = errgroup.WithContext(ctx)
	if len(out.Rides) < minIdleRides {
		g.Go(func() error {
			ds, err := retry.Value(gctx, s.policy, func(ctx context.Context) ([]Delivery, error) {
				return s.rides.NearbyDeliveries(ctx, loc, s.cfg.IdleRadiusKm)
			})
			if err != nil {
				s.log.Warn("deliveries unavailable", zap.String("driver_id", string(driverID)), zap.Error(err))
				return nil
			}
			out.Deliveries = deliveriesByEarnings(ds, maxIdleDeliveries)
			return nil
		})
	}
	if status.LowFuel() && s.gas != nil {
		g.Go(func() error {
			stops, err := retry.Value(gctx, s.policy, func(ctx context.Context) ([]maps.Place, error) {
				return s.gas.GasStations(ctx, loc, s.cfg.GasStopRadiusKm)
			})
			if err != nil {
				s.log.Warn("gas stations unavailable", zap.String("driver_id", string(driverID)), zap.Error(err))
				return nil
			}
			out.GasStops = stops
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return IdleSuggestions{}, err
	}
	return out.normalise(), nil
}

// normalise swaps nil slices for empty ones so JSON renders [].
func (o IdleSuggestions) normalise() IdleSuggestions {
	if o.Rides == nil {
		o.Rides = []RideCandidate{}
	}
	if o.Deliveries == nil {
		o.Deliveries = []Delivery{}
	}
	if o.GasStops == nil {
		o.GasStops = []maps.Place{}
	}
	if o.Incentives == nil {
		o.Incentives = []Incentive{}
	}
	return o
}

func excludeRide(cands []RideCandidate, id types.ID) []RideCandidate {
	out := cands[:0:0]
	for _, c := range cands {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
