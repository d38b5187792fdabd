// README: Earnings service: goal planning, live progress with next steps, and pace insights.
package earnings

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"drivepulse/internal/cache"
	"drivepulse/internal/config"
	"drivepulse/internal/modules/driver"
	"drivepulse/internal/modules/surge"
	"drivepulse/internal/retry"
	"drivepulse/internal/types"
)

type Ledger interface {
	Today(ctx context.Context, driverID types.ID) (DailyEarnings, error)
}

type StatsProvider interface {
	AvgEarningsPerRide(ctx context.Context) (float64, error)
	DriverStats(ctx context.Context, driverID types.ID) (DriverStats, error)
}

type OpportunityFinder interface {
	Nearby(ctx context.Context, loc types.Location, radiusKm float64) ([]Opportunity, error)
}

type SurgeAlerts interface {
	GetSurgeAlerts(ctx context.Context, driverID types.ID, loc types.Location, radiusKm float64) ([]surge.Zone, error)
}

type DriverLocator interface {
	Status(ctx context.Context, id types.ID) (driver.Status, error)
}

type Deps struct {
	Plans         cache.Store
	Ledger        Ledger
	Stats         StatsProvider
	Opportunities OpportunityFinder
	Surge         SurgeAlerts
	Drivers       DriverLocator
}

type Service struct {
	plans   cache.Store
	ledger  Ledger
	stats   StatsProvider
	opps    OpportunityFinder
	surge   SurgeAlerts
	drivers DriverLocator
	cfg     config.EarningsConfig
	policy  retry.Policy
	log     *zap.Logger
	market  singleflight.Group
	now     func() time.Time
}

func NewService(d Deps, cfg config.EarningsConfig, policy retry.Policy, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		plans:   d.Plans,
		ledger:  d.Ledger,
		stats:   d.Stats,
		opps:    d.Opportunities,
		surge:   d.Surge,
		drivers: d.Drivers,
		cfg:     cfg,
		policy:  policy,
		log:     log,
		now:     time.Now,
	}
}

func planKey(driverID types.ID) string {
	return fmt.Sprintf(planKeyFormat, driverID)
}

// SetEarningsGoal builds a fresh plan and replaces any plan the driver had.
// A zero start means now; a nil end means start plus the default shift.
func (s *Service) SetEarningsGoal(ctx context.Context, driverID types.ID, dailyGoal float64, start time.Time, end *time.Time) (Plan, error) {
	if driverID == "" {
		return Plan{}, types.Invalid("driver id is required")
	}
	if math.IsNaN(dailyGoal) || math.IsInf(dailyGoal, 0) || dailyGoal <= 0 {
		return Plan{}, types.Invalid("daily goal must be positive, got %v", dailyGoal)
	}
	now := s.now()
	if start.IsZero() {
		start = now
	}
	finish := start.Add(time.Duration(s.cfg.DefaultShiftHours) * time.Hour)
	if end != nil {
		finish = *end
	}
	if !finish.After(start) {
		return Plan{}, types.Invalid("end time must be after start time")
	}
	if finish.Sub(start) > maxPlanWindow {
		return Plan{}, types.Invalid("plan window must not exceed %v", maxPlanWindow)
	}

	var (
		avg   float64
		stats DriverStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		avg = s.marketAverage(gctx)
		return nil
	})
	g.Go(func() error {
		stats = s.driverStats(gctx, driverID)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Plan{}, err
	}

	rides := requiredRides(dailyGoal, avg)
	slots, weights := planSlots(windowSlots(start, finish), stats, start.Location())
	hourly := hourlyPlan(slots, weights, dailyGoal, rides, start.Location())

	plan := Plan{
		ID:                  uuid.NewString(),
		DriverID:            driverID,
		DailyGoal:           dailyGoal,
		RequiredRides:       rides,
		AvgEarningsPerRide:  avg,
		OptimalHours:        hoursOf(hourly),
		HourlyPlan:          hourly,
		StartTime:           start,
		EndTime:             finish,
		EstimatedCompletion: completionEstimate(hourly, finish),
		CreatedAt:           now,
	}

	err := s.policy.Do(ctx, func(ctx context.Context) error {
		return cache.SetJSON(ctx, s.plans, planKey(driverID), plan, s.cfg.PlanTTL)
	})
	if err != nil {
		return Plan{}, fmt.Errorf("store earnings plan: %w", err)
	}
	s.log.Info("earnings plan set",
		zap.String("driver_id", string(driverID)),
		zap.String("plan_id", plan.ID),
		zap.Float64("daily_goal", dailyGoal),
		zap.Int("required_rides", rides),
	)
	return plan, nil
}

// marketAverage shares one lookup among concurrent planners and falls back
// to the configured default. The shared lookup runs detached from every
// caller, so a planner that gives up does not fail the others.
func (s *Service) marketAverage(ctx context.Context) float64 {
	ch := s.market.DoChan("avg_earnings_per_ride", func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), marketLookupTimeout)
		defer cancel()
		return retry.Value(lctx, s.policy, s.stats.AvgEarningsPerRide)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return s.cfg.DefaultAvgPerRide
	case res = <-ch:
	}
	if res.Err != nil {
		s.log.Warn("market average unavailable, using default", zap.Error(res.Err))
		return s.cfg.DefaultAvgPerRide
	}
	if avg, _ := res.Val.(float64); avg > 0 {
		return avg
	}
	return s.cfg.DefaultAvgPerRide
}

func (s *Service) driverStats(ctx context.Context, driverID types.ID) DriverStats {
	st, err := retry.Value(ctx, s.policy, func(ctx context.Context) (DriverStats, error) {
		return s.stats.DriverStats(ctx, driverID)
	})
	if err != nil {
		s.log.Warn("driver stats unavailable", zap.String("driver_id", string(driverID)), zap.Error(err))
		return DriverStats{}
	}
	return st
}

func (s *Service) loadPlan(ctx context.Context, driverID types.ID) (Plan, error) {
	var plan Plan
	found := false
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		found, err = cache.GetJSON(ctx, s.plans, planKey(driverID), &plan)
		return err
	})
	if err != nil {
		return Plan{}, fmt.Errorf("load earnings plan: %w", err)
	}
	if !found {
		return Plan{}, ErrNoActivePlan
	}
	return plan, nil
}

func (s *Service) today(ctx context.Context, driverID types.ID) (DailyEarnings, error) {
	return retry.Value(ctx, s.policy, func(ctx context.Context) (DailyEarnings, error) {
		return s.ledger.Today(ctx, driverID)
	})
}

func (s *Service) GetEarningsProgress(ctx context.Context, driverID types.ID) (Progress, error) {
	if driverID == "" {
		return Progress{}, types.Invalid("driver id is required")
	}
	var (
		plan  Plan
		today DailyEarnings
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		plan, err = s.loadPlan(gctx, driverID)
		return err
	})
	g.Go(func() error {
		var err error
		today, err = s.today(gctx, driverID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Progress{}, err
	}

	p := Progress{
		PlanID:          plan.ID,
		DailyGoal:       plan.DailyGoal,
		RequiredRides:   plan.RequiredRides,
		CurrentEarnings: today.Total,
		CompletedRides:  today.Rides,
		RemainingAmount: plan.DailyGoal - today.Total,
		RemainingRides:  plan.RequiredRides - today.Rides,
		NextSteps:       []NextStep{},
	}
	p.GoalMet = p.RemainingAmount <= 0
	if !p.GoalMet {
		p.NextSteps = s.nextSteps(ctx, driverID, p.RemainingAmount, p.RemainingRides)
	}
	return p, nil
}

// nextSteps runs the cascade: high-value rides, then surge zones while rides
// are short, then other work while fewer than two steps exist. A stage whose
// source fails simply contributes nothing.
func (s *Service) nextSteps(ctx context.Context, driverID types.ID, remainingAmount float64, remainingRides int) []NextStep {
	steps := []NextStep{}
	st, err := retry.Value(ctx, s.policy, func(ctx context.Context) (driver.Status, error) {
		return s.drivers.Status(ctx, driverID)
	})
	if err != nil || !st.Location.Valid() {
		s.log.Warn("next steps skipped, driver location unknown", zap.String("driver_id", string(driverID)), zap.Error(err))
		return steps
	}
	loc := st.Location

	opps, err := retry.Value(ctx, s.policy, func(ctx context.Context) ([]Opportunity, error) {
		return s.opps.Nearby(ctx, loc, s.cfg.NextStepRadiusKm)
	})
	if err != nil {
		s.log.Warn("nearby opportunities unavailable", zap.String("driver_id", string(driverID)), zap.Error(err))
	}

	bar := remainingAmount
	if remainingRides > 0 {
		bar = remainingAmount / float64(remainingRides)
	}
	highValue := topByEarnings(filterOpps(opps, func(o Opportunity) bool {
		return o.Kind == KindRide && o.EstimatedEarnings > bar
	}), maxHighValueRides)
	if len(highValue) > 0 {
		steps = append(steps, NextStep{
			Type:          StepRides,
			Message:       "Take these high-paying rides to reach your goal faster",
			Opportunities: highValue,
		})
	}

	if len(highValue) < maxHighValueRides && s.surge != nil {
		zones, err := s.surge.GetSurgeAlerts(ctx, driverID, loc, s.cfg.NextStepRadiusKm)
		if err != nil {
			s.log.Warn("surge zones unavailable", zap.String("driver_id", string(driverID)), zap.Error(err))
		}
		if len(zones) > maxSurgeSteps {
			zones = zones[:maxSurgeSteps]
		}
		if len(zones) > 0 {
			steps = append(steps, NextStep{
				Type:    StepSurge,
				Message: "Head to surge zones for increased earnings",
				Zones:   zones,
			})
		}
	}

	if len(steps) < minSteps {
		alts := topByEarnings(filterOpps(opps, func(o Opportunity) bool {
			return o.Kind != KindRide
		}), maxAlternatives)
		if len(alts) > 0 {
			steps = append(steps, NextStep{
				Type:          StepAlternatives,
				Message:       "Consider these alternative opportunities",
				Opportunities: alts,
			})
		}
	}
	return steps
}

// GetEarningsInsights reports pace against the active plan, nearby work that
// beats the current average and coaching tips.
func (s *Service) GetEarningsInsights(ctx context.Context, driverID types.ID, loc types.Location) (Insights, error) {
	if driverID == "" {
		return Insights{}, types.Invalid("driver id is required")
	}
	if err := loc.Validate(); err != nil {
		return Insights{}, err
	}

	var (
		plan  Plan
		today DailyEarnings
		stats DriverStats
		opps  []Opportunity
		zones []surge.Zone
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		plan, err = s.loadPlan(gctx, driverID)
		return err
	})
	g.Go(func() error {
		var err error
		today, err = s.today(gctx, driverID)
		return err
	})
	g.Go(func() error {
		stats = s.driverStats(gctx, driverID)
		return nil
	})
	g.Go(func() error {
		var err error
		opps, err = retry.Value(gctx, s.policy, func(ctx context.Context) ([]Opportunity, error) {
			return s.opps.Nearby(ctx, loc, s.cfg.NextStepRadiusKm)
		})
		if err != nil {
			s.log.Warn("nearby opportunities unavailable", zap.String("driver_id", string(driverID)), zap.Error(err))
		}
		return nil
	})
	if s.surge != nil {
		g.Go(func() error {
			var err error
			zones, err = s.surge.GetSurgeAlerts(gctx, driverID, loc, s.cfg.NextStepRadiusKm)
			if err != nil {
				s.log.Warn("surge zones unavailable", zap.String("driver_id", string(driverID)), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Insights{}, err
	}

	for _, z := range zones {
		opps = append(opps, Opportunity{
			ID:                z.ID,
			Kind:              KindSurge,
			Location:          z.Location,
			EstimatedEarnings: z.EstimatedEarnings,
			Reason:            fmt.Sprintf("%.1fx surge, %.0f min away", z.Multiplier, z.TravelTime),
		})
	}

	pace := s.pace(today, plan)
	better := topByEarnings(filterOpps(opps, func(o Opportunity) bool {
		return o.EstimatedEarnings > pace.AveragePerRide
	}), len(opps))
	if better == nil {
		better = []Opportunity{}
	}
	return Insights{
		Pace:          pace,
		Opportunities: better,
		Tips:          s.tips(today, stats, opps),
	}, nil
}

func (s *Service) pace(today DailyEarnings, plan Plan) Pace {
	p := Pace{
		CompletedRides: today.Rides,
		AveragePerRide: round2(today.AveragePerRide()),
	}
	if !today.StartedAt.IsZero() {
		if hours := s.now().Sub(today.StartedAt).Hours(); hours > 0 {
			p.HourlyRate = round2(today.Total / hours)
			p.ProjectedDaily = round2(today.Total / hours * s.cfg.ProjectedDayHours)
		}
	}
	if plan.DailyGoal > 0 {
		p.GoalProgress = round2(today.Total / plan.DailyGoal * 100)
	}
	return p
}

func (s *Service) tips(today DailyEarnings, stats DriverStats, opps []Opportunity) []Tip {
	tips := []Tip{}
	avg := today.AveragePerRide()

	if today.Rides > 0 && stats.AvgEarningsPerRide > 0 && avg < stats.AvgEarningsPerRide {
		tips = append(tips, Tip{
			Type:    TipImprovement,
			Message: "Your average earnings per ride are below your usual",
			Suggestions: []string{
				"Focus on surge pricing zones",
				"Accept longer trips for better earnings",
				"Keep a high acceptance rate for better opportunities",
			},
		})
	}

	if today.Rides > 0 {
		missed := filterOpps(opps, func(o Opportunity) bool {
			return o.Kind == KindSurge && o.EstimatedEarnings > avg*surgeTipFactor
		})
		if len(missed) > 0 {
			tips = append(tips, Tip{
				Type:      TipOpportunity,
				Message:   "You are missing out on surge pricing zones",
				Locations: missed,
			})
		}
	}

	if len(stats.BestHours) > 0 && !slices.Contains(stats.BestHours, s.now().Hour()) {
		hours := make([]HourAverage, len(stats.BestHours))
		for i, h := range stats.BestHours {
			hours[i] = HourAverage{Hour: h, AvgEarnings: round2(stats.HourlyEarnings[h])}
		}
		tips = append(tips, Tip{
			Type:    TipTiming,
			Message: "Switch to these hours for better earnings",
			Hours:   hours,
		})
	}
	return tips
}

func filterOpps(opps []Opportunity, keep func(Opportunity) bool) []Opportunity {
	var out []Opportunity
	for _, o := range opps {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

func topByEarnings(opps []Opportunity, n int) []Opportunity {
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].EstimatedEarnings > opps[j].EstimatedEarnings
	})
	if len(opps) > n {
		opps = opps[:n]
	}
	return opps
}
