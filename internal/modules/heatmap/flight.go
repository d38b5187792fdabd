// README: Per-key single-flight with waiter counting. The shared computation
// outlives any one caller and is cancelled only when every waiter has left.
package heatmap

import (
	"context"
	"sync"
)

type call struct {
	done    chan struct{}
	val     Heatmap
	err     error
	waiters int
	cancel  context.CancelFunc
}

type flightGroup struct {
	mu    sync.Mutex
	calls map[string]*call
}

func newFlightGroup() *flightGroup {
	return &flightGroup{calls: make(map[string]*call)}
}

// do runs fn once per key among concurrent callers. A caller whose ctx ends
// gets ctx.Err() while the computation keeps running for the others.
func (g *flightGroup) do(ctx context.Context, key string, fn func(ctx context.Context) (Heatmap, error)) (Heatmap, error) {
	g.mu.Lock()
	c, ok := g.calls[key]
	if !ok {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &call{done: make(chan struct{}), cancel: cancel}
		g.calls[key] = c
		go g.run(runCtx, key, c, fn)
	}
	c.waiters++
	g.mu.Unlock()

	select {
	case <-c.done:
		return c.val.clone(), c.err
	case <-ctx.Done():
		g.leave(key, c)
		return Heatmap{}, ctx.Err()
	}
}

func (g *flightGroup) run(ctx context.Context, key string, c *call, fn func(ctx context.Context) (Heatmap, error)) {
	c.val, c.err = fn(ctx)

	g.mu.Lock()
	if g.calls[key] == c {
		delete(g.calls, key)
	}
	g.mu.Unlock()
	c.cancel()
	close(c.done)
}

func (g *flightGroup) leave(key string, c *call) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c.waiters--
	if c.waiters > 0 {
		return
	}
	c.cancel()
	if g.calls[key] == c {
		delete(g.calls, key)
	}
}

// inFlight reports the number of keys with a running computation.
func (g *flightGroup) inFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (h Heatmap) clone() Heatmap {
	out := h
	if h.Entries != nil {
		out.Entries = append([]Entry(nil), h.Entries...)
	}
	if h.Warnings != nil {
		out.Warnings = append([]string(nil), h.Warnings...)
	}
	return out
}
