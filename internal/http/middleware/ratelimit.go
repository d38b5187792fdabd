// README: Per-driver rate limiting for the optimisation routes.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter hands each key its own token bucket refilled at limit/window
// with a burst of limit. Buckets idle for longer than a window are dropped.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	limit    int
	window   time.Duration
	now      func() time.Time
}

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limiters: make(map[string]*visitor),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.limiters[key]
	if !ok {
		every := rate.Every(rl.window / time.Duration(rl.limit))
		v = &visitor{lim: rate.NewLimiter(every, rl.limit)}
		rl.limiters[key] = v
	}
	v.lastSeen = now
	return v.lim.AllowN(now, 1)
}

// Sweep forgets buckets that have been idle for a full window; an idle
// bucket would be full again anyway.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for k, v := range rl.limiters {
		if now.Sub(v.lastSeen) >= rl.window {
			delete(rl.limiters, k)
			removed++
		}
	}
	return removed
}

// RateLimit keys on the authenticated driver, falling back to client IP.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := CallerUID(c)
		if key == "" {
			key = c.ClientIP()
		}
		if rl.Allow(key) {
			c.Next()
			return
		}
		c.Header("Retry-After", retryAfter(rl.window, rl.limit))
		abort(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, please try again later")
	}
}

// RunSweeper calls Sweep once per window until ctx is done.
func (rl *RateLimiter) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep()
		}
	}
}

func retryAfter(window time.Duration, limit int) string {
	secs := int((window / time.Duration(limit)).Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
