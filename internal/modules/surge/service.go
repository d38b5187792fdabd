// README: Surge alerts: evaluate stored zones for a driver and rank them.
package surge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"drivepulse/internal/config"
	"drivepulse/internal/geo"
	"drivepulse/internal/maps"
	"drivepulse/internal/retry"
	"drivepulse/internal/types"
)

type ZoneSource interface {
	ActiveZones(ctx context.Context, loc types.Location, radiusKm float64) ([]ActiveZone, error)
}

type TravelEstimator interface {
	TravelTime(ctx context.Context, from, to types.Location) (time.Duration, error)
}

// MarketAverage supplies the base fare for zones stored without one.
type MarketAverage interface {
	AvgEarningsPerRide(ctx context.Context) (float64, error)
}

type Service struct {
	zones  ZoneSource
	travel TravelEstimator
	market MarketAverage
	cfg    config.SurgeConfig
	policy retry.Policy
	log    *zap.Logger
	now    func() time.Time
}

func NewService(zones ZoneSource, travel TravelEstimator, market MarketAverage, cfg config.SurgeConfig, policy retry.Policy, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{zones: zones, travel: travel, market: market, cfg: cfg, policy: policy, log: log, now: time.Now}
}

// GetSurgeAlerts returns significant zones within radiusKm, best first.
func (s *Service) GetSurgeAlerts(ctx context.Context, driverID types.ID, loc types.Location, radiusKm float64) ([]Zone, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	if !(radiusKm > 0) {
		return nil, types.Invalid("radius must be positive, got %v", radiusKm)
	}

	active, err := retry.Value(ctx, s.policy, func(ctx context.Context) ([]ActiveZone, error) {
		return s.zones.ActiveZones(ctx, loc, radiusKm)
	})
	if err != nil {
		return nil, fmt.Errorf("load surge zones: %w", err)
	}

	// Skip estimating travel to zones that will be filtered anyway.
	significant := active[:0:0]
	for _, z := range active {
		if z.Multiplier > MinMultiplier {
			significant = append(significant, z)
		}
	}
	if len(significant) == 0 {
		return []Zone{}, nil
	}

	baseFare := s.defaultBaseFare(ctx)
	now := s.now()
	zones := make([]Zone, len(significant))
	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.EstimateParallel > 0 {
		g.SetLimit(s.cfg.EstimateParallel)
	}
	for i, z := range significant {
		g.Go(func() error {
			fare := z.BaseFare
			if fare <= 0 {
				fare = baseFare
			}
			var remaining time.Duration
			if z.EndsAt.After(now) {
				remaining = z.EndsAt.Sub(now)
			}
			zones[i] = Zone{
				ID:                z.ID,
				Location:          z.Location,
				Multiplier:        z.Multiplier,
				EstimatedEarnings: fare * z.Multiplier,
				Duration:          remaining.Minutes(),
				DistanceKm:        geo.DistanceKm(loc, z.Location),
				TravelTime:        s.travelMinutes(gctx, loc, z.Location),
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := Rank(zones)
	s.log.Debug("surge alerts ranked",
		zap.String("driver_id", string(driverID)),
		zap.Int("zones", len(active)),
		zap.Int("alerts", len(ranked)),
	)
	return ranked, nil
}

func (s *Service) travelMinutes(ctx context.Context, from, to types.Location) float64 {
	if s.travel != nil {
		d, err := retry.Value(ctx, s.policy, func(ctx context.Context) (time.Duration, error) {
			return s.travel.TravelTime(ctx, from, to)
		})
		if err == nil {
			return d.Minutes()
		}
		s.log.Warn("surge travel estimate failed, using straight line", zap.Error(err))
	}
	return maps.EstimateTravelTime(from, to).Minutes()
}

func (s *Service) defaultBaseFare(ctx context.Context) float64 {
	if s.market != nil {
		avg, err := retry.Value(ctx, s.policy, s.market.AvgEarningsPerRide)
		if err == nil && avg > 0 {
			return avg
		}
		if err != nil {
			s.log.Warn("market average unavailable for surge base fare", zap.Error(err))
		}
	}
	return DefaultBaseFare
}
