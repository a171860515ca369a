package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pagedoc/pagedoc/pkg/progress"
	"github.com/pagedoc/pagedoc/pkg/ratelimit"
)

// Prometheus metrics for batch scheduling.
var (
	unitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagedoc_units_total",
		Help: "Total work units settled by status",
	}, []string{"status"})

	unitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pagedoc_unit_duration_seconds",
		Help:    "Wall time per unit from scheduling to settlement",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	unitsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pagedoc_units_in_flight",
		Help: "Processor calls currently in flight",
	})
)

// ProcessFunc is the unit processor collaborator: it converts one unit's
// payload into an artifact and may fail with an arbitrary fault. The
// dispatcher never inspects the fault beyond wrapping it into the unit's
// Outcome, and never invokes the same unit twice.
type ProcessFunc func(ctx context.Context, unit WorkUnit) ([]byte, error)

// Dispatcher drives batches of work units through a processor under a
// concurrency ceiling and a shared request quota.
type Dispatcher struct {
	cfg      Config
	gate     *ratelimit.Gate // injected for tests; nil means per-run gate
	snapshot chan<- progress.Snapshot
	logEvery int
	logger   zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithGate injects a quota gate instead of the per-run default. Tests use
// this to supply gates with fake clocks.
func WithGate(gate *ratelimit.Gate) Option {
	return func(d *Dispatcher) {
		d.gate = gate
	}
}

// WithSnapshots streams a progress snapshot to ch after every settled unit.
// Sends are non-blocking: a slow receiver drops snapshots, never scheduling.
func WithSnapshots(ch chan<- progress.Snapshot) Option {
	return func(d *Dispatcher) {
		d.snapshot = ch
	}
}

// WithProgressLogging logs batch progress every n settled units.
func WithProgressLogging(n int) Option {
	return func(d *Dispatcher) {
		d.logEvery = n
	}
}

// New creates a dispatcher. Illegal configuration is an invariant violation
// and is rejected up front.
func New(cfg Config, opts ...Option) (*Dispatcher, error) {
	if cfg.Concurrency < 1 {
		return nil, invariantf("concurrency must be >= 1 (got %d)", cfg.Concurrency)
	}
	if cfg.RateLimit < 1 {
		return nil, invariantf("rate limit must be >= 1 (got %d)", cfg.RateLimit)
	}
	if cfg.Window <= 0 {
		return nil, invariantf("window must be > 0 (got %v)", cfg.Window)
	}

	d := &Dispatcher{
		cfg:    cfg,
		logger: log.With().Str("component", "scheduler").Logger(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// Run processes all units and returns the index-ordered BatchResult.
//
// Units are handed to workers in index order; completion order is
// unconstrained. Every unit settles exactly once: processor faults and
// panics become per-unit failures, and cancellation settles unstarted units
// as Cancelled without aborting outcomes already recorded. In-flight
// processor calls are not forcibly abandoned on cancellation; they receive
// the batch context and may drain or return early.
//
// Only an InvariantError yields no result.
func (d *Dispatcher) Run(ctx context.Context, units []WorkUnit, process ProcessFunc) (BatchResult, error) {
	if process == nil {
		return nil, invariantf("process func is nil")
	}
	if err := validateUnits(units); err != nil {
		return nil, err
	}

	n := len(units)
	if n == 0 {
		return BatchResult{}, nil
	}

	gate := d.gate
	if gate == nil {
		// Fresh gate per batch: quota state never leaks across runs.
		var err error
		gate, err = ratelimit.NewGate(d.cfg.RateLimit, d.cfg.Window)
		if err != nil {
			return nil, invariantf("gate construction: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	d.logger.Info().
		Int("units", n).
		Int("concurrency", d.cfg.Concurrency).
		Int("rate_limit", d.cfg.RateLimit).
		Dur("window", d.cfg.Window).
		Msg("Starting batch")

	jobs := make(chan WorkUnit)
	outcomes := make(chan Outcome, n)

	// Submit units in original index order. Units never handed to a worker
	// settle as Cancelled so the collector always receives n outcomes.
	go func() {
		defer close(jobs)
		for i, unit := range units {
			select {
			case jobs <- unit:
			case <-ctx.Done():
				for _, rest := range units[i:] {
					outcomes <- Outcome{
						Index: rest.Index,
						Err:   fmt.Errorf("%w before start: %v", ErrCancelled, ctx.Err()),
					}
				}
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			processed := 0
			for unit := range jobs {
				outcomes <- d.processUnit(ctx, gate, unit, process)
				processed++
			}
			if processed > 0 {
				d.logger.Debug().
					Int("worker_id", workerID).
					Int("units_processed", processed).
					Msg("Worker done")
			}
		}(i)
	}

	// Single consumer: buffers outcomes by index, feeds the progress
	// reporter, and defends the one-outcome-per-unit invariant.
	reporter := progress.NewReporter(n, progress.WithLogEvery(d.logEvery))
	byIndex := make(map[int]Outcome, n)
	for len(byIndex) < n {
		o := <-outcomes
		if _, dup := byIndex[o.Index]; dup {
			cancel()
			return nil, invariantf("duplicate outcome for unit %d", o.Index)
		}
		byIndex[o.Index] = o

		d.observe(o)
		snap := reporter.Observe(o.Failed())
		if d.snapshot != nil {
			select {
			case d.snapshot <- snap:
			default:
			}
		}
	}
	wg.Wait()

	result := make(BatchResult, 0, n)
	for i := 0; i < n; i++ {
		o, ok := byIndex[i]
		if !ok {
			return nil, invariantf("missing outcome for unit %d", i)
		}
		result = append(result, o)
	}

	d.logger.Info().
		Int("units", n).
		Int("failed", result.Failures()).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	return result, nil
}

// processUnit drives one unit to settlement: quota grant, processor call,
// fault capture. It always returns an outcome for the unit.
func (d *Dispatcher) processUnit(ctx context.Context, gate *ratelimit.Gate, unit WorkUnit, process ProcessFunc) Outcome {
	start := time.Now()
	out := Outcome{Index: unit.Index}

	if err := gate.Acquire(ctx); err != nil {
		out.Err = fmt.Errorf("%w while waiting for quota: %v", ErrCancelled, err)
		out.Duration = time.Since(start)
		return out
	}

	artifact, err := invoke(ctx, unit, process)
	out.Duration = time.Since(start)

	switch {
	case err == nil:
		out.Artifact = artifact
	case isCancellation(err):
		out.Err = fmt.Errorf("%w mid-flight: %v", ErrCancelled, err)
	default:
		out.Err = &UnitError{Index: unit.Index, Err: err}
		d.logger.Warn().
			Err(err).
			Int("unit", unit.Index).
			Dur("duration", out.Duration).
			Msg("Unit failed")
	}

	return out
}

// invoke calls the processor with panic containment. A panicking processor
// must never crash the dispatcher or skip the unit's outcome.
func invoke(ctx context.Context, unit WorkUnit, process ProcessFunc) (artifact []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			artifact = nil
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()

	unitsInFlight.Inc()
	defer unitsInFlight.Dec()

	return process(ctx, unit)
}

// observe records per-unit metrics and trace logging.
func (d *Dispatcher) observe(o Outcome) {
	status := "success"
	switch {
	case o.Err == nil:
	case errors.Is(o.Err, ErrCancelled):
		status = "cancelled"
	default:
		status = "failure"
	}
	unitsTotal.WithLabelValues(status).Inc()
	unitDuration.Observe(o.Duration.Seconds())

	d.logger.Debug().
		Int("unit", o.Index).
		Str("status", status).
		Dur("duration", o.Duration).
		Msg("Unit settled")
}

// validateUnits enforces the uniqueness invariant: indices are exactly
// 0..N-1, no gaps, no duplicates.
func validateUnits(units []WorkUnit) error {
	seen := make([]bool, len(units))
	for _, u := range units {
		if u.Index < 0 || u.Index >= len(units) {
			return invariantf("unit index %d out of range [0,%d)", u.Index, len(units))
		}
		if seen[u.Index] {
			return invariantf("duplicate unit index %d", u.Index)
		}
		seen[u.Index] = true
	}
	return nil
}
