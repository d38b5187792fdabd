package signals

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"drivepulse/internal/retry"
	"drivepulse/internal/types"
)

var errDown = errors.New("source down")

type stubSources struct {
	mu       sync.Mutex
	calls    map[string]int
	fail     map[string]bool
	failOnce map[string]bool
	block    chan struct{}
}

func newStub() *stubSources {
	return &stubSources{calls: map[string]int{}, fail: map[string]bool{}, failOnce: map[string]bool{}}
}

func (s *stubSources) hit(ctx context.Context, name string) error {
	s.mu.Lock()
	s.calls[name]++
	fail := s.fail[name]
	if s.failOnce[name] {
		s.failOnce[name] = false
		fail = true
	}
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return errDown
	}
	return nil
}

func (s *stubSources) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *stubSources) ActiveRides(ctx context.Context, loc types.Location, _ float64) ([]ActiveRide, error) {
	if err := s.hit(ctx, "active_rides"); err != nil {
		return nil, err
	}
	return []ActiveRide{{ID: "r1", Location: loc}}, nil
}

func (s *stubSources) PendingRequests(ctx context.Context, loc types.Location, _ float64) ([]PendingRequest, error) {
	if err := s.hit(ctx, "pending_requests"); err != nil {
		return nil, err
	}
	return []PendingRequest{{ID: "p1", Location: loc}, {ID: "p2", Location: loc}}, nil
}

func (s *stubSources) Events(ctx context.Context, loc types.Location, _ float64) ([]Event, error) {
	if err := s.hit(ctx, "events"); err != nil {
		return nil, err
	}
	return []Event{{ID: "e1", Location: loc, ExpectedAttendance: 2000}}, nil
}

func (s *stubSources) Venues(ctx context.Context, loc types.Location, _ float64) ([]Venue, error) {
	if err := s.hit(ctx, "venues"); err != nil {
		return nil, err
	}
	return []Venue{{ID: "v1", Location: loc, PopularityScore: 0.5}}, nil
}

var taipei = types.Location{Lat: 25.033, Lng: 121.565}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 2}
}

func TestFetch_AllSourcesSucceed(t *testing.T) {
	stub := newStub()
	agg := NewAggregator(stub, stub, fastPolicy(), nil)

	got, err := agg.Fetch(context.Background(), taipei, 5)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got.ActiveRides) != 1 || len(got.PendingRequests) != 2 || len(got.Events) != 1 || len(got.Venues) != 1 {
		t.Fatalf("unexpected result: %+v", got)
	}
	if len(got.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", got.Warnings)
	}
	if n := len(got.All()); n != 5 {
		t.Errorf("All() = %d signals, want 5", n)
	}
	counts := got.Counts()
	want := map[Kind]int{KindActiveRide: 1, KindPendingRequest: 2, KindEvent: 1, KindVenue: 1}
	for kind, n := range want {
		if counts[kind] != n {
			t.Errorf("Counts()[%s] = %d, want %d", kind, counts[kind], n)
		}
	}
	for _, sig := range got.All() {
		if !sig.Position().Valid() {
			t.Errorf("%s signal has invalid position %+v", sig.Kind(), sig.Position())
		}
	}
}

func TestFetch_PartialFailure(t *testing.T) {
	stub := newStub()
	stub.fail["events"] = true
	stub.fail["venues"] = true
	agg := NewAggregator(stub, stub, fastPolicy(), nil)

	got, err := agg.Fetch(context.Background(), taipei, 5)
	if err != nil {
		t.Fatalf("partial failure must not fail the call: %v", err)
	}
	if len(got.ActiveRides) != 1 || len(got.PendingRequests) != 2 {
		t.Errorf("healthy sources should still contribute: %+v", got)
	}
	if len(got.Events) != 0 || len(got.Venues) != 0 {
		t.Errorf("failed sources must contribute nothing: %+v", got)
	}
	if len(got.Warnings) != 2 {
		t.Errorf("expected 2 warnings, got %v", got.Warnings)
	}
	if stub.count("events") != 2 {
		t.Errorf("failing source should be retried per policy, calls = %d", stub.count("events"))
	}
}

func TestFetch_TransientFailureRetried(t *testing.T) {
	stub := newStub()
	stub.failOnce["active_rides"] = true
	agg := NewAggregator(stub, stub, fastPolicy(), nil)

	got, err := agg.Fetch(context.Background(), taipei, 5)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got.ActiveRides) != 1 || len(got.Warnings) != 0 {
		t.Errorf("transient failure should be absorbed by retry: %+v", got)
	}
}

func TestFetch_AllSourcesFail(t *testing.T) {
	stub := newStub()
	for _, s := range []string{"active_rides", "pending_requests", "events", "venues"} {
		stub.fail[s] = true
	}
	agg := NewAggregator(stub, stub, retry.NoRetry(), nil)

	_, err := agg.Fetch(context.Background(), taipei, 5)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if !errors.Is(err, errDown) {
		t.Errorf("source errors should stay in the chain: %v", err)
	}
}

func TestFetch_ContextCancelled(t *testing.T) {
	stub := newStub()
	stub.block = make(chan struct{})
	agg := NewAggregator(stub, stub, retry.NoRetry(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := agg.Fetch(ctx, taipei, 5)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not return after cancellation")
	}
}

func TestFetch_RunsSourcesConcurrently(t *testing.T) {
	var inFlight, peak int32
	src := &concurrencyGauge{inFlight: &inFlight, peak: &peak}
	agg := NewAggregator(src, src, retry.NoRetry(), nil)

	if _, err := agg.Fetch(context.Background(), taipei, 5); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if atomic.LoadInt32(&peak) < 2 {
		t.Errorf("expected sources to overlap, peak concurrency = %d", peak)
	}
}

type concurrencyGauge struct {
	inFlight *int32
	peak     *int32
}

func (p *concurrencyGauge) enter() {
	n := atomic.AddInt32(p.inFlight, 1)
	for {
		old := atomic.LoadInt32(p.peak)
		if n <= old || atomic.CompareAndSwapInt32(p.peak, old, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	atomic.AddInt32(p.inFlight, -1)
}

func (p *concurrencyGauge) ActiveRides(context.Context, types.Location, float64) ([]ActiveRide, error) {
	p.enter()
	return nil, nil
}

func (p *concurrencyGauge) PendingRequests(context.Context, types.Location, float64) ([]PendingRequest, error) {
	p.enter()
	return nil, nil
}

func (p *concurrencyGauge) Events(context.Context, types.Location, float64) ([]Event, error) {
	p.enter()
	return nil, nil
}

func (p *concurrencyGauge) Venues(context.Context, types.Location, float64) ([]Venue, error) {
	p.enter()
	return nil, nil
}

// TestRedisRideStore_Integration requires a running Redis instance.
// Set DRIVEPULSE_REDIS_ADDR (e.g. localhost:6379) to enable.
func TestRedisRideStore_Integration(t *testing.T) {
	addr := os.Getenv("DRIVEPULSE_REDIS_ADDR")
	if addr == "" {
		t.Skip("DRIVEPULSE_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	client.Del(ctx, activeRidesGeoKey, pendingRequestsGeoKey)
	defer client.Del(ctx, activeRidesGeoKey, pendingRequestsGeoKey)

	store := NewRedisRideStore(client)
	near := types.Location{Lat: 25.034, Lng: 121.566}
	far := types.Location{Lat: 25.2, Lng: 121.9}
	if err := store.TrackActiveRide(ctx, ActiveRide{ID: "near", Location: near}); err != nil {
		t.Fatalf("TrackActiveRide: %v", err)
	}
	if err := store.TrackActiveRide(ctx, ActiveRide{ID: "far", Location: far}); err != nil {
		t.Fatalf("TrackActiveRide: %v", err)
	}
	if err := store.TrackPendingRequest(ctx, PendingRequest{ID: "req", Location: near}); err != nil {
		t.Fatalf("TrackPendingRequest: %v", err)
	}

	rides, err := store.ActiveRides(ctx, taipei, 5)
	if err != nil {
		t.Fatalf("ActiveRides: %v", err)
	}
	if len(rides) != 1 || rides[0].ID != "near" {
		t.Fatalf("expected only the nearby ride, got %+v", rides)
	}
	if rides[0].Location.Lat == 0 || rides[0].Location.Lng == 0 {
		t.Errorf("coordinates should be returned: %+v", rides[0])
	}

	if err := store.Untrack(ctx, "req"); err != nil {
		t.Fatalf("Untrack: %v", err)
	}
	reqs, err := store.PendingRequests(ctx, taipei, 5)
	if err != nil {
		t.Fatalf("PendingRequests: %v", err)
	}
	if len(reqs) != 0 {
		t.Errorf("untracked request still returned: %+v", reqs)
	}
}
