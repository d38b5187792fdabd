// README: Benchmark cases: environment, migration, API contract, heatmap burst, plan replacement, throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const apiBase = "/api/driver-optimization"

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	loc := fmt.Sprintf("lat=%g&lng=%g", r.cfg.Lat, r.cfg.Lng)
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "FAIL", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Migration: apply (optional)",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: "SKIP", Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Migration: tables exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, "public."+t).Scan(&exists)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if !exists {
						return Result{Status: "FAIL", Note: "missing table " + t}
					}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("%d tables", len(tables))}
			},
		},
		httpCase("API: health", http.MethodGet, "/health", nil, false, http.StatusOK),
		httpCase("API: auth required", http.MethodGet, apiBase+"/earnings/progress", nil, false, http.StatusUnauthorized),
		httpCase("API: heatmap", http.MethodGet, apiBase+"/heatmap?"+loc, nil, true, http.StatusOK, http.StatusServiceUnavailable),
		httpCase("API: heatmap invalid radius", http.MethodGet, apiBase+"/heatmap?"+loc+"&radius=-1", nil, true, http.StatusBadRequest),
		httpCase("API: surge alerts", http.MethodGet, apiBase+"/surge-alerts?"+loc, nil, true, http.StatusOK),
		httpCase("API: idle suggestions", http.MethodPost, apiBase+"/idle", map[string]any{"lat": r.cfg.Lat, "lng": r.cfg.Lng}, true, http.StatusOK),
		httpCase("API: stack unknown ride", http.MethodPost, apiBase+"/stack-ride", map[string]any{"current_ride_id": "bench-missing"}, true, http.StatusNotFound),
		httpCase("API: auto-savings over 100%", http.MethodPost, apiBase+"/auto-savings", map[string]any{
			"tax_percentage": 40, "vacation_percentage": 40, "goals_percentage": 40,
		}, true, http.StatusBadRequest),
		{
			Name: "Concurrency: heatmap burst on one key",
			Run: func(ctx context.Context, r *Runner) Result {
				return heatmapBurst(ctx, r, apiBase+"/heatmap?"+loc+"&radius=3.3")
			},
		},
		{
			Name: "Consistency: plan replacement",
			Run:  planReplacement,
		},
		{
			Name: "Perf: heatmap throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, http.MethodGet, apiBase+"/heatmap?"+loc, nil)
			},
		},
	}
}

func (r *Runner) do(ctx context.Context, method, path string, body any, auth bool) (int, []byte, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return resp.StatusCode, b, time.Since(start), err
}

func httpCase(name, method, path string, body any, auth bool, okStatuses ...int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			if auth && r.cfg.Token == "" {
				return Result{Status: "SKIP", Note: "no token"}
			}
			code, _, latency, err := r.do(ctx, method, path, body, auth)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			status := "FAIL"
			if contains(okStatuses, code) {
				status = "PASS"
			}
			return Result{Status: status, Latency: latency, Note: fmt.Sprintf("status=%d", code)}
		},
	}
}

// heatmapBurst fires one request per worker at the same uncached key; every
// caller must get the same heatmap.
func heatmapBurst(ctx context.Context, r *Runner, path string) Result {
	if r.cfg.Token == "" {
		return Result{Status: "SKIP", Note: "no token"}
	}
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		bodies    = map[string]int{}
		latencies []time.Duration
		failures  int
	)
	start := make(chan struct{})
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			code, b, latency, err := r.do(ctx, http.MethodGet, path, nil, true)
			mu.Lock()
			defer mu.Unlock()
			if err != nil || code != http.StatusOK {
				failures++
				return
			}
			var env struct {
				Data struct {
					GeneratedAt string `json:"generated_at"`
				} `json:"data"`
			}
			_ = json.Unmarshal(b, &env)
			bodies[env.Data.GeneratedAt]++
			latencies = append(latencies, latency)
		}()
	}
	close(start)
	wg.Wait()

	if failures > 0 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("failures=%d", failures)}
	}
	note := fmt.Sprintf("requests=%d distinct_results=%d p50=%s", len(latencies), len(bodies), percentile(latencies, 0.5))
	if len(bodies) != 1 {
		return Result{Status: "FAIL", Note: note}
	}
	return Result{Status: "PASS", Note: note}
}

// planReplacement sets two goals back to back; progress must reflect the second.
func planReplacement(ctx context.Context, r *Runner) Result {
	if r.cfg.Token == "" {
		return Result{Status: "SKIP", Note: "no token"}
	}
	for _, goal := range []float64{100, 300} {
		code, b, _, err := r.do(ctx, http.MethodPost, apiBase+"/earnings/goal", map[string]any{"daily_goal": goal}, true)
		if err != nil || code != http.StatusOK {
			return Result{Status: "FAIL", Note: fmt.Sprintf("set goal %v: status=%d err=%v body=%s", goal, code, err, b)}
		}
	}
	code, b, latency, err := r.do(ctx, http.MethodGet, apiBase+"/earnings/progress", nil, true)
	if err != nil || code != http.StatusOK {
		return Result{Status: "FAIL", Note: fmt.Sprintf("progress: status=%d err=%v", code, err)}
	}
	var env struct {
		Data struct {
			DailyGoal float64 `json:"daily_goal"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if env.Data.DailyGoal != 300 {
		return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("daily_goal=%v", env.Data.DailyGoal)}
	}
	return Result{Status: "PASS", Latency: latency}
}

func perfLoad(ctx context.Context, r *Runner, method, path string, payload any) Result {
	if r.cfg.Token == "" {
		return Result{Status: "SKIP", Note: "no token"}
	}
	end := time.Now().Add(r.cfg.Duration)
	var (
		count, errCount, limited int64
		mu                       sync.Mutex
		wg                       sync.WaitGroup
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				code, _, _, err := r.do(ctx, method, path, payload, true)
				mu.Lock()
				switch {
				case err != nil:
					errCount++
				case code == http.StatusTooManyRequests:
					limited++
				default:
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d rate_limited=%d", rps, errCount, limited)}
}

func percentile(d []time.Duration, p float64) time.Duration {
	if len(d) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), d...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[int(float64(len(sorted)-1)*p)]
}

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
