// README: Heatmap service. Read-through cache over the signal aggregator with
// single-flight per key and stale fallback when every source is down.
package heatmap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"drivepulse/internal/cache"
	"drivepulse/internal/config"
	"drivepulse/internal/geo"
	"drivepulse/internal/modules/signals"
	"drivepulse/internal/retry"
	"drivepulse/internal/types"
)

const keyFormat = "heatmap:%s:%.3f"

type Fetcher interface {
	Fetch(ctx context.Context, loc types.Location, radiusKm float64) (signals.Aggregated, error)
}

type Service struct {
	fetcher Fetcher
	store   cache.Store
	flights *flightGroup
	cfg     config.HeatmapConfig
	policy  retry.Policy
	log     *zap.Logger
	now     func() time.Time
}

func NewService(fetcher Fetcher, store cache.Store, cfg config.HeatmapConfig, policy retry.Policy, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		fetcher: fetcher,
		store:   store,
		flights: newFlightGroup(),
		cfg:     cfg,
		policy:  policy,
		log:     log,
		now:     time.Now,
	}
}

// Key quantises the query the same way grid buckets are quantised.
func Key(loc types.Location, radiusKm float64) string {
	return fmt.Sprintf(keyFormat, geo.BucketKey(loc, geo.Precision), radiusKm)
}

func (s *Service) validate(loc types.Location, radiusKm float64) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	if !(radiusKm > 0) {
		return types.Invalid("radius must be positive, got %v", radiusKm)
	}
	if s.cfg.MaxRadiusKm > 0 && radiusKm > s.cfg.MaxRadiusKm {
		return types.Invalid("radius %v exceeds maximum %v km", radiusKm, s.cfg.MaxRadiusKm)
	}
	return nil
}

func (s *Service) GetHeatmap(ctx context.Context, loc types.Location, radiusKm float64) (Heatmap, error) {
	if err := s.validate(loc, radiusKm); err != nil {
		return Heatmap{}, err
	}
	key := Key(loc, radiusKm)
	if hm, ok := s.cached(ctx, key); ok && s.fresh(hm) {
		return hm, nil
	}
	return s.flights.do(ctx, key, func(ctx context.Context) (Heatmap, error) {
		return s.compute(ctx, key, loc, radiusKm)
	})
}

// compute runs once per key among concurrent misses.
func (s *Service) compute(ctx context.Context, key string, loc types.Location, radiusKm float64) (Heatmap, error) {
	prev, havePrev := s.cached(ctx, key)
	if havePrev && s.fresh(prev) {
		return prev, nil
	}

	agg, err := s.fetcher.Fetch(ctx, loc, radiusKm)
	if err != nil {
		if havePrev && errors.Is(err, signals.ErrSourceUnavailable) {
			s.log.Warn("serving stale heatmap",
				zap.String("key", key),
				zap.Time("expired_at", prev.ExpiresAt),
				zap.Error(err),
			)
			prev.Stale = true
			return prev, nil
		}
		return Heatmap{}, err
	}

	now := s.now()
	hm := Heatmap{
		Entries:     Entries(Score(agg, now)),
		Query:       Query{Location: loc, RadiusKm: radiusKm},
		GeneratedAt: now,
		ExpiresAt:   now.Add(s.cfg.TTL),
		Warnings:    agg.Warnings,
	}
	if len(agg.Warnings) > 0 {
		s.log.Info("heatmap built from partial signals",
			zap.String("key", key),
			zap.Strings("warnings", agg.Warnings),
		)
	}

	err = s.policy.Do(ctx, func(ctx context.Context) error {
		return cache.SetJSON(ctx, s.store, key, hm, s.cfg.TTL+s.cfg.StaleWindow)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Heatmap{}, ctxErr
		}
		s.log.Warn("heatmap cache write failed", zap.String("key", key), zap.Error(err))
	}
	return hm, nil
}

func (s *Service) cached(ctx context.Context, key string) (Heatmap, bool) {
	var hm Heatmap
	ok, err := cache.GetJSON(ctx, s.store, key, &hm)
	if err != nil {
		s.log.Warn("heatmap cache read failed", zap.String("key", key), zap.Error(err))
		return Heatmap{}, false
	}
	return hm, ok
}

func (s *Service) fresh(hm Heatmap) bool {
	return s.now().Before(hm.ExpiresAt)
}
