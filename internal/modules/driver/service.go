// README: Driver service: profile reads for the optimiser and auto-savings configuration.
package driver

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"drivepulse/internal/retry"
	"drivepulse/internal/types"
)

type Repository interface {
	Preferences(ctx context.Context, id types.ID) (Preferences, error)
	Status(ctx context.Context, id types.ID) (Status, error)
	SaveSavings(ctx context.Context, id types.ID, cfg SavingsConfig) (SavingsConfig, error)
	Savings(ctx context.Context, id types.ID) (SavingsConfig, bool, error)
}

type Service struct {
	repo   Repository
	policy retry.Policy
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, policy retry.Policy, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, policy: policy, log: log, now: time.Now}
}

// Preferences returns stored preferences, or the defaults for an unknown driver.
func (s *Service) Preferences(ctx context.Context, id types.ID) (Preferences, error) {
	p, err := retry.Value(ctx, s.policy, func(ctx context.Context) (Preferences, error) {
		p, err := s.repo.Preferences(ctx, id)
		if errors.Is(err, ErrDriverNotFound) {
			return p, retry.Permanent(err)
		}
		return p, err
	})
	if errors.Is(err, ErrDriverNotFound) {
		return DefaultPreferences(), nil
	}
	return p, err
}

func (s *Service) Status(ctx context.Context, id types.ID) (Status, error) {
	return retry.Value(ctx, s.policy, func(ctx context.Context) (Status, error) {
		st, err := s.repo.Status(ctx, id)
		if errors.Is(err, ErrDriverNotFound) {
			return st, retry.Permanent(err)
		}
		return st, err
	})
}

// ConfigureAutoSavings validates and stores the driver's earnings split.
func (s *Service) ConfigureAutoSavings(ctx context.Context, id types.ID, cfg SavingsConfig) (SavingsConfig, error) {
	if id == "" {
		return SavingsConfig{}, types.Invalid("driver id is required")
	}
	if err := cfg.Validate(); err != nil {
		return SavingsConfig{}, err
	}
	cfg.UpdatedAt = s.now().UTC()

	saved, err := retry.Value(ctx, s.policy, func(ctx context.Context) (SavingsConfig, error) {
		saved, err := s.repo.SaveSavings(ctx, id, cfg)
		if errors.Is(err, ErrDriverNotFound) {
			return saved, retry.Permanent(err)
		}
		return saved, err
	})
	if err != nil {
		return SavingsConfig{}, err
	}
	s.log.Info("auto-savings configured",
		zap.String("driver_id", string(id)),
		zap.Float64("total_pct", saved.Total()),
	)
	return saved, nil
}

// AutoSavings returns the driver's stored split; found is false when none was configured.
func (s *Service) AutoSavings(ctx context.Context, id types.ID) (SavingsConfig, bool, error) {
	var (
		cfg   SavingsConfig
		found bool
	)
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		cfg, found, err = s.repo.Savings(ctx, id)
		return err
	})
	return cfg, found, err
}
