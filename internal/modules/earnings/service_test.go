package earnings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"drivepulse/internal/cache"
	"drivepulse/internal/config"
	"drivepulse/internal/modules/driver"
	"drivepulse/internal/modules/surge"
	"drivepulse/internal/retry"
	"drivepulse/internal/types"
)

type stubLedger struct {
	mu    sync.Mutex
	today DailyEarnings
}

func (l *stubLedger) Today(context.Context, types.ID) (DailyEarnings, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.today, nil
}

type stubStats struct {
	avg    float64
	avgErr error
	stats  DriverStats
}

func (s stubStats) AvgEarningsPerRide(context.Context) (float64, error) { return s.avg, s.avgErr }

func (s stubStats) DriverStats(context.Context, types.ID) (DriverStats, error) { return s.stats, nil }

type stubOpps struct{ opps []Opportunity }

func (s stubOpps) Nearby(context.Context, types.Location, float64) ([]Opportunity, error) {
	return append([]Opportunity(nil), s.opps...), nil
}

type stubSurge struct {
	zones []surge.Zone
	calls int
}

func (s *stubSurge) GetSurgeAlerts(context.Context, types.ID, types.Location, float64) ([]surge.Zone, error) {
	s.calls++
	return append([]surge.Zone(nil), s.zones...), nil
}

type stubDrivers struct{ loc types.Location }

func (s stubDrivers) Status(_ context.Context, id types.ID) (driver.Status, error) {
	return driver.Status{DriverID: id, Location: s.loc, FuelLevel: 100}, nil
}

var (
	clockNow = time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC)
	here     = types.Location{Lat: 25.033, Lng: 121.565}
)

type fixture struct {
	svc    *Service
	store  *cache.MemoryStore
	ledger *stubLedger
	surge  *stubSurge
	now    *time.Time
}

func newFixture(stats stubStats, opps []Opportunity, zones []surge.Zone) *fixture {
	now := clockNow
	f := &fixture{
		ledger: &stubLedger{},
		surge:  &stubSurge{zones: zones},
		now:    &now,
	}
	clock := func() time.Time { return *f.now }
	f.store = cache.NewMemoryStore().WithClock(clock)
	cfg := config.EarningsConfig{
		PlanTTL:           24 * time.Hour,
		DefaultAvgPerRide: 15,
		DefaultShiftHours: 8,
		NextStepRadiusKm:  10,
		ProjectedDayHours: 8,
	}
	f.svc = NewService(Deps{
		Plans:         f.store,
		Ledger:        f.ledger,
		Stats:         stats,
		Opportunities: stubOpps{opps: opps},
		Surge:         f.surge,
		Drivers:       stubDrivers{loc: here},
	}, cfg, retry.NoRetry(), nil)
	f.svc.now = clock
	return f
}

func TestSetEarningsGoal_Validation(t *testing.T) {
	f := newFixture(stubStats{}, nil, nil)
	ctx := context.Background()
	end := clockNow.Add(-time.Hour)
	long := clockNow.Add(25 * time.Hour)

	tests := []struct {
		name string
		goal float64
		end  *time.Time
	}{
		{"zero goal", 0, nil},
		{"negative goal", -10, nil},
		{"end before start", 100, &end},
		{"window over a day", 100, &long},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SetEarningsGoal(ctx, "d1", tt.goal, clockNow, tt.end)
			if !errors.Is(err, types.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestSetEarningsGoal_DefaultAverage(t *testing.T) {
	f := newFixture(stubStats{avgErr: errors.New("stats down")}, nil, nil)

	plan, err := f.svc.SetEarningsGoal(context.Background(), "d1", 100, time.Time{}, nil)
	if err != nil {
		t.Fatalf("SetEarningsGoal: %v", err)
	}
	if plan.AvgEarningsPerRide != 15 || plan.RequiredRides != 7 {
		t.Errorf("expected default avg 15 and 7 rides, got %+v", plan)
	}
	if !plan.StartTime.Equal(clockNow) || !plan.EndTime.Equal(clockNow.Add(8*time.Hour)) {
		t.Errorf("expected an 8 hour window from now, got %v - %v", plan.StartTime, plan.EndTime)
	}
	if len(plan.HourlyPlan) != 8 {
		t.Errorf("expected 8 hourly targets, got %d", len(plan.HourlyPlan))
	}
	if plan.ID == "" {
		t.Error("plan should carry an id")
	}
}

func TestSetEarningsGoal_UsesMarketAverage(t *testing.T) {
	f := newFixture(stubStats{avg: 25}, nil, nil)
	plan, err := f.svc.SetEarningsGoal(context.Background(), "d1", 100, clockNow, nil)
	if err != nil {
		t.Fatalf("SetEarningsGoal: %v", err)
	}
	if plan.RequiredRides != 4 {
		t.Errorf("100 at 25 per ride needs 4 rides, got %d", plan.RequiredRides)
	}
}

type gatedStats struct {
	stubStats
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu     sync.Mutex
	calls  int
	ctxErr error
}

func newGatedStats(avg float64) *gatedStats {
	return &gatedStats{
		stubStats: stubStats{avg: avg},
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (s *gatedStats) AvgEarningsPerRide(ctx context.Context) (float64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	if err := ctx.Err(); err != nil {
		s.mu.Lock()
		s.ctxErr = err
		s.mu.Unlock()
		return 0, err
	}
	return s.avg, nil
}

func TestSetEarningsGoal_CancelledPlannerDoesNotFailSharedLookup(t *testing.T) {
	f := newFixture(stubStats{}, nil, nil)
	stats := newGatedStats(50)
	f.svc.stats = stats

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := f.svc.SetEarningsGoal(ctxA, "driver-a", 100, clockNow, nil)
		errA <- err
	}()
	<-stats.entered

	type result struct {
		plan Plan
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		plan, err := f.svc.SetEarningsGoal(context.Background(), "driver-b", 100, clockNow, nil)
		resB <- result{plan, err}
	}()

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled planner: expected context.Canceled, got %v", err)
	}
	if _, err := f.svc.GetEarningsProgress(context.Background(), "driver-a"); !errors.Is(err, ErrNoActivePlan) {
		t.Errorf("cancelled planner must not store a plan, got %v", err)
	}

	close(stats.release)
	b := <-resB
	if b.err != nil {
		t.Fatalf("SetEarningsGoal: %v", b.err)
	}
	if b.plan.AvgEarningsPerRide != 50 || b.plan.RequiredRides != 2 {
		t.Errorf("expected market avg 50 and 2 rides, got avg %v rides %d", b.plan.AvgEarningsPerRide, b.plan.RequiredRides)
	}

	stats.mu.Lock()
	defer stats.mu.Unlock()
	if stats.ctxErr != nil {
		t.Errorf("shared lookup saw a cancelled context: %v", stats.ctxErr)
	}
	if stats.calls < 1 || stats.calls > 2 {
		t.Errorf("expected the lookup to be shared, got %d calls", stats.calls)
	}
}

func TestEarningsPlan_ReplaceSemantics(t *testing.T) {
	f := newFixture(stubStats{}, nil, nil)
	ctx := context.Background()

	first, err := f.svc.SetEarningsGoal(ctx, "d1", 100, clockNow, nil)
	if err != nil {
		t.Fatalf("first SetEarningsGoal: %v", err)
	}
	second, err := f.svc.SetEarningsGoal(ctx, "d1", 300, clockNow, nil)
	if err != nil {
		t.Fatalf("second SetEarningsGoal: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("each plan should get its own id")
	}

	p, err := f.svc.GetEarningsProgress(ctx, "d1")
	if err != nil {
		t.Fatalf("GetEarningsProgress: %v", err)
	}
	if p.DailyGoal != 300 || p.RequiredRides != 20 || p.PlanID != second.ID {
		t.Errorf("progress should reflect only the second plan, got %+v", p)
	}
}

func TestGetEarningsProgress_NoActivePlan(t *testing.T) {
	f := newFixture(stubStats{}, nil, nil)
	_, err := f.svc.GetEarningsProgress(context.Background(), "d1")
	if !errors.Is(err, ErrNoActivePlan) {
		t.Fatalf("expected ErrNoActivePlan, got %v", err)
	}
}

func TestGetEarningsProgress_PlanExpires(t *testing.T) {
	f := newFixture(stubStats{}, nil, nil)
	ctx := context.Background()
	if _, err := f.svc.SetEarningsGoal(ctx, "d1", 100, clockNow, nil); err != nil {
		t.Fatalf("SetEarningsGoal: %v", err)
	}
	*f.now = clockNow.Add(24*time.Hour + time.Second)
	if _, err := f.svc.GetEarningsProgress(ctx, "d1"); !errors.Is(err, ErrNoActivePlan) {
		t.Errorf("plan should expire after 24h, got %v", err)
	}
}

func TestGetEarningsProgress_GoalExceededNotClamped(t *testing.T) {
	f := newFixture(stubStats{}, []Opportunity{{Kind: KindRide, EstimatedEarnings: 100}}, nil)
	ctx := context.Background()
	if _, err := f.svc.SetEarningsGoal(ctx, "d1", 200, clockNow, nil); err != nil {
		t.Fatalf("SetEarningsGoal: %v", err)
	}
	f.ledger.today = DailyEarnings{Total: 250, Rides: 16}

	p, err := f.svc.GetEarningsProgress(ctx, "d1")
	if err != nil {
		t.Fatalf("GetEarningsProgress: %v", err)
	}
	if p.RemainingAmount != -50 || p.RemainingRides != 14-16 {
		t.Errorf("remaining values must not be clamped, got %+v", p)
	}
	if !p.GoalMet || len(p.NextSteps) != 0 {
		t.Errorf("met goal should have no next steps, got %+v", p)
	}
}

func TestGetEarningsProgress_Cascade(t *testing.T) {
	zones := []surge.Zone{
		{ID: "s1", Multiplier: 1.8, EstimatedEarnings: 27},
		{ID: "s2", Multiplier: 1.5, EstimatedEarnings: 22},
		{ID: "s3", Multiplier: 1.3, EstimatedEarnings: 19},
	}

	t.Run("rides and surge", func(t *testing.T) {
		opps := []Opportunity{
			{ID: "r1", Kind: KindRide, EstimatedEarnings: 16},
			{ID: "r2", Kind: KindRide, EstimatedEarnings: 10},
			{ID: "r3", Kind: KindRide, EstimatedEarnings: 22},
			{ID: "d1", Kind: KindDelivery, EstimatedEarnings: 30},
		}
		f := newFixture(stubStats{avg: 15}, opps, zones)
		ctx := context.Background()
		if _, err := f.svc.SetEarningsGoal(ctx, "d1", 90, clockNow, nil); err != nil {
			t.Fatal(err)
		}
		f.ledger.today = DailyEarnings{Total: 30, Rides: 2} // 60 left over 4 rides, bar 15

		p, err := f.svc.GetEarningsProgress(ctx, "d1")
		if err != nil {
			t.Fatalf("GetEarningsProgress: %v", err)
		}
		if len(p.NextSteps) != 2 {
			t.Fatalf("expected rides and surge steps, got %+v", p.NextSteps)
		}
		rides := p.NextSteps[0]
		if rides.Type != StepRides || len(rides.Opportunities) != 2 || rides.Opportunities[0].ID != "r3" {
			t.Errorf("unexpected rides step %+v", rides)
		}
		if s := p.NextSteps[1]; s.Type != StepSurge || len(s.Zones) != 2 || s.Zones[0].ID != "s1" {
			t.Errorf("unexpected surge step %+v", s)
		}
	})

	t.Run("three high-value rides skip surge", func(t *testing.T) {
		opps := []Opportunity{
			{ID: "r1", Kind: KindRide, EstimatedEarnings: 40},
			{ID: "r2", Kind: KindRide, EstimatedEarnings: 41},
			{ID: "r3", Kind: KindRide, EstimatedEarnings: 42},
			{ID: "r4", Kind: KindRide, EstimatedEarnings: 43},
			{ID: "e1", Kind: KindEvent, EstimatedEarnings: 25},
		}
		f := newFixture(stubStats{avg: 15}, opps, zones)
		ctx := context.Background()
		if _, err := f.svc.SetEarningsGoal(ctx, "d1", 90, clockNow, nil); err != nil {
			t.Fatal(err)
		}

		p, err := f.svc.GetEarningsProgress(ctx, "d1")
		if err != nil {
			t.Fatalf("GetEarningsProgress: %v", err)
		}
		if f.surge.calls != 0 {
			t.Errorf("surge stage should not run with 3 high-value rides")
		}
		if len(p.NextSteps) != 2 || p.NextSteps[0].Type != StepRides || p.NextSteps[1].Type != StepAlternatives {
			t.Fatalf("expected rides then alternatives, got %+v", p.NextSteps)
		}
		if len(p.NextSteps[0].Opportunities) != 3 {
			t.Errorf("high-value rides are capped at 3")
		}
	})

	t.Run("alternatives only", func(t *testing.T) {
		opps := []Opportunity{
			{ID: "r1", Kind: KindRide, EstimatedEarnings: 5},
			{ID: "d1", Kind: KindDelivery, EstimatedEarnings: 9},
			{ID: "e1", Kind: KindEvent, EstimatedEarnings: 12},
			{ID: "d2", Kind: KindDelivery, EstimatedEarnings: 4},
		}
		f := newFixture(stubStats{avg: 15}, opps, nil)
		ctx := context.Background()
		if _, err := f.svc.SetEarningsGoal(ctx, "d1", 90, clockNow, nil); err != nil {
			t.Fatal(err)
		}

		p, err := f.svc.GetEarningsProgress(ctx, "d1")
		if err != nil {
			t.Fatalf("GetEarningsProgress: %v", err)
		}
		if len(p.NextSteps) != 1 || p.NextSteps[0].Type != StepAlternatives {
			t.Fatalf("expected a single alternatives step, got %+v", p.NextSteps)
		}
		alts := p.NextSteps[0].Opportunities
		if len(alts) != 2 || alts[0].ID != "e1" || alts[1].ID != "d1" {
			t.Errorf("expected top 2 non-ride opportunities, got %+v", alts)
		}
	})

	t.Run("no remaining rides uses whole amount as bar", func(t *testing.T) {
		opps := []Opportunity{
			{ID: "small", Kind: KindRide, EstimatedEarnings: 9},
			{ID: "big", Kind: KindRide, EstimatedEarnings: 11},
		}
		f := newFixture(stubStats{avg: 15}, opps, nil)
		ctx := context.Background()
		if _, err := f.svc.SetEarningsGoal(ctx, "d1", 30, clockNow, nil); err != nil {
			t.Fatal(err)
		}
		f.ledger.today = DailyEarnings{Total: 20, Rides: 2}

		p, err := f.svc.GetEarningsProgress(ctx, "d1")
		if err != nil {
			t.Fatalf("GetEarningsProgress: %v", err)
		}
		if len(p.NextSteps) == 0 || len(p.NextSteps[0].Opportunities) != 1 || p.NextSteps[0].Opportunities[0].ID != "big" {
			t.Errorf("only rides above the remaining 10 should qualify, got %+v", p.NextSteps)
		}
	})
}

func TestGetEarningsInsights(t *testing.T) {
	opps := []Opportunity{
		{ID: "r1", Kind: KindRide, EstimatedEarnings: 8},
		{ID: "r2", Kind: KindRide, EstimatedEarnings: 14},
	}
	zones := []surge.Zone{{ID: "s1", Multiplier: 2, EstimatedEarnings: 30}}
	stats := stubStats{avg: 15, stats: DriverStats{
		AvgEarningsPerRide: 12,
		BestHours:          []int{17, 18},
		HourlyEarnings:     map[int]float64{17: 22, 18: 19},
	}}
	f := newFixture(stats, opps, zones)
	ctx := context.Background()

	if _, err := f.svc.GetEarningsInsights(ctx, "d1", here); !errors.Is(err, ErrNoActivePlan) {
		t.Fatalf("insights need an active plan, got %v", err)
	}
	if _, err := f.svc.SetEarningsGoal(ctx, "d1", 200, clockNow.Add(-4*time.Hour), nil); err != nil {
		t.Fatal(err)
	}
	f.ledger.today = DailyEarnings{Total: 40, Rides: 4, StartedAt: clockNow.Add(-2 * time.Hour)}

	got, err := f.svc.GetEarningsInsights(ctx, "d1", here)
	if err != nil {
		t.Fatalf("GetEarningsInsights: %v", err)
	}
	want := Pace{HourlyRate: 20, ProjectedDaily: 160, CompletedRides: 4, AveragePerRide: 10, GoalProgress: 20}
	if got.Pace != want {
		t.Errorf("pace = %+v, want %+v", got.Pace, want)
	}
	if len(got.Opportunities) != 2 || got.Opportunities[0].ID != "s1" || got.Opportunities[1].ID != "r2" {
		t.Errorf("expected surge and ride above the average of 10, got %+v", got.Opportunities)
	}

	kinds := map[TipKind]bool{}
	for _, tip := range got.Tips {
		kinds[tip.Type] = true
	}
	for _, k := range []TipKind{TipImprovement, TipOpportunity, TipTiming} {
		if !kinds[k] {
			t.Errorf("expected a %s tip, got %+v", k, got.Tips)
		}
	}
}

func TestGetEarningsInsights_NoRidesYet(t *testing.T) {
	f := newFixture(stubStats{stats: DriverStats{AvgEarningsPerRide: 12, BestHours: []int{14}}}, nil, nil)
	ctx := context.Background()
	if _, err := f.svc.SetEarningsGoal(ctx, "d1", 100, clockNow, nil); err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.GetEarningsInsights(ctx, "d1", here)
	if err != nil {
		t.Fatalf("GetEarningsInsights: %v", err)
	}
	if got.Pace != (Pace{}) {
		t.Errorf("pace should be all zero before the first ride, got %+v", got.Pace)
	}
	if len(got.Tips) != 0 {
		t.Errorf("no tips expected at a best hour with no rides, got %+v", got.Tips)
	}
	if got.Opportunities == nil {
		t.Error("opportunities should render as an empty list")
	}
}

type flakyDrivers struct {
	mu    sync.Mutex
	fails int
	calls int
}

func (d *flakyDrivers) Status(_ context.Context, id types.ID) (driver.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.calls <= d.fails {
		return driver.Status{}, errors.New("profile store timeout")
	}
	return driver.Status{DriverID: id, Location: here, FuelLevel: 100}, nil
}

func TestGetEarningsProgress_DriverStatusRetried(t *testing.T) {
	opps := []Opportunity{{ID: "r1", Kind: KindRide, EstimatedEarnings: 40}}
	f := newFixture(stubStats{avg: 15}, opps, nil)
	ctx := context.Background()
	if _, err := f.svc.SetEarningsGoal(ctx, "d1", 90, clockNow, nil); err != nil {
		t.Fatal(err)
	}
	drivers := &flakyDrivers{fails: 1}
	f.svc.drivers = drivers
	f.svc.policy = retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

	p, err := f.svc.GetEarningsProgress(ctx, "d1")
	if err != nil {
		t.Fatalf("GetEarningsProgress: %v", err)
	}
	if len(p.NextSteps) == 0 || p.NextSteps[0].Type != StepRides {
		t.Fatalf("expected a rides step once the status lookup recovered, got %+v", p.NextSteps)
	}
	if drivers.calls != 2 {
		t.Errorf("expected 2 status calls, got %d", drivers.calls)
	}
}
