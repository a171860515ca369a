// Package ratelimit implements a sliding-window request quota shared by all
// workers of a batch. The gate guarantees that no more than Limit grants are
// issued within any trailing Window, regardless of how many callers contend.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for quota gate activity.
var (
	gateGrantsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagedoc_gate_grants_total",
		Help: "Total grants issued by the quota gate",
	})

	gateThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagedoc_gate_throttles_total",
		Help: "Total acquisitions that had to wait for window capacity",
	})

	gateWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pagedoc_gate_wait_seconds",
		Help:    "Time spent waiting for a quota grant",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60},
	})
)

// Gate enforces "at most Limit grants per trailing Window" across all
// concurrent callers. It is the single synchronization point of a batch run:
// workers block in Acquire and nowhere else.
type Gate struct {
	limit  int
	window time.Duration

	mu     sync.Mutex
	grants []time.Time // grant timestamps within the window, oldest first

	clock  func() time.Time
	logger zerolog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces the gate's time source. Used by tests to make window
// arithmetic deterministic.
func WithClock(clock func() time.Time) Option {
	return func(g *Gate) {
		g.clock = clock
	}
}

// NewGate creates a quota gate allowing at most limit grants per window.
func NewGate(limit int, window time.Duration, opts ...Option) (*Gate, error) {
	if limit < 1 {
		return nil, fmt.Errorf("rate limit must be >= 1 (got %d)", limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("window duration must be > 0 (got %v)", window)
	}

	g := &Gate{
		limit:  limit,
		window: window,
		grants: make([]time.Time, 0, limit),
		clock:  time.Now,
		logger: log.With().Str("component", "quota-gate").Logger(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Acquire blocks until a grant can be issued without exceeding the window
// quota, records the grant, and returns. It fails only when ctx is cancelled
// while waiting.
//
// The wait happens while holding the gate lock, so contending callers queue
// on the mutex in arrival order. That keeps the grant order first-come
// first-served under contention: nobody can slip past a waiter whose slot is
// about to free up.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := g.clock()
	waited := false

	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		now := g.clock()
		g.prune(now)

		if len(g.grants) < g.limit {
			g.grants = append(g.grants, now)
			gateGrantsTotal.Inc()
			if waited {
				wait := now.Sub(start)
				gateWaitSeconds.Observe(wait.Seconds())
				g.logger.Debug().
					Dur("waited", wait).
					Int("in_window", len(g.grants)).
					Msg("Grant issued after throttling")
			}
			return nil
		}

		// Window is full: the earliest slot frees up when the oldest grant
		// ages out of the window.
		wait := g.window - now.Sub(g.grants[0])
		if wait <= 0 {
			continue
		}

		if !waited {
			waited = true
			gateThrottlesTotal.Inc()
			g.logger.Debug().
				Dur("wait", wait).
				Int("limit", g.limit).
				Dur("window", g.window).
				Msg("Quota exhausted - throttling")
		}

		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Limit returns the configured grant limit.
func (g *Gate) Limit() int {
	return g.limit
}

// Window returns the configured window duration.
func (g *Gate) Window() time.Duration {
	return g.window
}

// InWindow reports how many grants currently fall inside the trailing window.
func (g *Gate) InWindow() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prune(g.clock())
	return len(g.grants)
}

// prune drops grant timestamps older than the trailing window.
// Caller must hold g.mu.
func (g *Gate) prune(now time.Time) {
	cutoff := now.Add(-g.window)
	i := 0
	for i < len(g.grants) && !g.grants[i].After(cutoff) {
		i++
	}
	if i > 0 {
		g.grants = append(g.grants[:0], g.grants[i:]...)
	}
}

// sleep waits for d or until ctx is cancelled. Called with g.mu held; the
// lock stays held on purpose so later arrivals cannot overtake this waiter.
func (g *Gate) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
