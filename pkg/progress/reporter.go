// Package progress surfaces live, monotonically non-decreasing progress of a
// batch run. The reporter is a pure observer: removing it changes neither
// scheduling decisions nor final results.
package progress

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var batchCompletedUnits = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "pagedoc_batch_completed_units",
	Help: "Units settled so far in the current batch",
})

// Snapshot is a derived, point-in-time view of batch progress. It is
// recomputed on every settled unit and is never authoritative for control
// flow.
type Snapshot struct {
	// Completed counts all settled units, failures included.
	Completed int

	// Failed counts units that settled with an error.
	Failed int

	// Total is the batch size.
	Total int

	// Elapsed is the wall time since the reporter was created.
	Elapsed time.Duration

	// EstimatedRemaining extrapolates from the average time per settled
	// unit. Meaningless unless HasEstimate is true.
	EstimatedRemaining time.Duration

	// HasEstimate is false until the first unit settles.
	HasEstimate bool
}

// Percent returns completion as 0-100.
func (s Snapshot) Percent() float64 {
	if s.Total == 0 {
		return 100
	}
	return float64(s.Completed) / float64(s.Total) * 100
}

// Reporter accumulates settlement events and derives snapshots.
type Reporter struct {
	mu        sync.Mutex
	total     int
	completed int
	failed    int
	start     time.Time
	clock     func() time.Time
	logEvery  int
	logger    zerolog.Logger
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithClock replaces the reporter's time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Reporter) {
		r.clock = clock
	}
}

// WithLogEvery logs progress every n settled units. n <= 0 disables
// progress logging.
func WithLogEvery(n int) Option {
	return func(r *Reporter) {
		r.logEvery = n
	}
}

// NewReporter creates a reporter for a batch of total units. The elapsed
// clock starts immediately.
func NewReporter(total int, opts ...Option) *Reporter {
	r := &Reporter{
		total:  total,
		clock:  time.Now,
		logger: log.With().Str("component", "progress").Logger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.start = r.clock()
	return r
}

// Observe records one settled unit and returns the updated snapshot.
func (r *Reporter) Observe(failed bool) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.completed++
	if failed {
		r.failed++
	}
	batchCompletedUnits.Set(float64(r.completed))

	snap := r.snapshot()

	if r.logEvery > 0 && r.completed%r.logEvery == 0 && r.completed < r.total {
		evt := r.logger.Info().
			Int("completed", snap.Completed).
			Int("failed", snap.Failed).
			Int("total", snap.Total).
			Float64("progress_pct", snap.Percent())
		if snap.HasEstimate {
			evt = evt.Dur("eta", snap.EstimatedRemaining)
		}
		evt.Msg("Batch progress")
	}

	return snap
}

// Snapshot returns the current progress without recording a settlement.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// snapshot derives the view under r.mu.
func (r *Reporter) snapshot() Snapshot {
	elapsed := r.clock().Sub(r.start)

	snap := Snapshot{
		Completed: r.completed,
		Failed:    r.failed,
		Total:     r.total,
		Elapsed:   elapsed,
	}

	// remaining = (total - completed) x (elapsed / completed); unknown
	// before the first settlement.
	if r.completed >= 1 {
		perUnit := float64(elapsed) / float64(r.completed)
		snap.EstimatedRemaining = time.Duration(perUnit * float64(r.total-r.completed))
		snap.HasEstimate = true
	}

	return snap
}
