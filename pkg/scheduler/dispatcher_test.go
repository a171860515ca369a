package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pagedoc/pagedoc/pkg/progress"
)

// wideOpen returns a config whose gate never throttles, so tests exercise
// scheduling behavior in isolation.
func wideOpen(concurrency int) Config {
	return Config{
		Concurrency: concurrency,
		RateLimit:   10000,
		Window:      time.Minute,
	}
}

func makeUnits(n int) []WorkUnit {
	units := make([]WorkUnit, n)
	for i := range units {
		units[i] = WorkUnit{Index: i, Payload: []byte(fmt.Sprintf("page-%d", i))}
	}
	return units
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		expectErr bool
	}{
		{
			name:      "valid",
			cfg:       Config{Concurrency: 3, RateLimit: 10, Window: time.Minute},
			expectErr: false,
		},
		{
			name:      "default config",
			cfg:       DefaultConfig(),
			expectErr: false,
		},
		{
			name:      "zero concurrency",
			cfg:       Config{Concurrency: 0, RateLimit: 10, Window: time.Minute},
			expectErr: true,
		},
		{
			name:      "zero rate limit",
			cfg:       Config{Concurrency: 3, RateLimit: 0, Window: time.Minute},
			expectErr: true,
		},
		{
			name:      "zero window",
			cfg:       Config{Concurrency: 3, RateLimit: 10, Window: 0},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if (err != nil) != tt.expectErr {
				t.Errorf("New(%+v) error = %v, expectErr %v", tt.cfg, err, tt.expectErr)
			}
			if tt.expectErr {
				var ie *InvariantError
				if !errors.As(err, &ie) {
					t.Errorf("New(%+v) error = %T, want *InvariantError", tt.cfg, err)
				}
			}
		})
	}
}

func TestRun_ValidatesUnitIndices(t *testing.T) {
	tests := []struct {
		name  string
		units []WorkUnit
	}{
		{
			name:  "duplicate index",
			units: []WorkUnit{{Index: 0}, {Index: 1}, {Index: 1}},
		},
		{
			name:  "gap in indices",
			units: []WorkUnit{{Index: 0}, {Index: 2}, {Index: 3}},
		},
		{
			name:  "negative index",
			units: []WorkUnit{{Index: -1}, {Index: 0}, {Index: 1}},
		},
	}

	d, err := New(wideOpen(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	process := func(ctx context.Context, u WorkUnit) ([]byte, error) {
		return u.Payload, nil
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Run(context.Background(), tt.units, process)
			var ie *InvariantError
			if !errors.As(err, &ie) {
				t.Errorf("Run() error = %v, want *InvariantError", err)
			}
		})
	}
}

func TestRun_EmptyBatch(t *testing.T) {
	d, err := New(wideOpen(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := d.Run(context.Background(), nil, func(ctx context.Context, u WorkUnit) ([]byte, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("len(result) = %d, want 0", len(result))
	}
}

// The core ordering property: completion order is adversarial (later units
// finish first), yet the final result is index-ordered and full length.
func TestRun_ResultOrderedDespiteCompletionOrder(t *testing.T) {
	const n = 20
	units := makeUnits(n)

	d, err := New(wideOpen(8))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Earlier units sleep longer, inverting completion order.
	process := func(ctx context.Context, u WorkUnit) ([]byte, error) {
		time.Sleep(time.Duration(n-u.Index) * 2 * time.Millisecond)
		return []byte(fmt.Sprintf("artifact-%d", u.Index)), nil
	}

	result, err := d.Run(context.Background(), units, process)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result) != n {
		t.Fatalf("len(result) = %d, want %d", len(result), n)
	}
	for i, o := range result {
		if o.Index != i {
			t.Errorf("result[%d].Index = %d, want %d", i, o.Index, i)
		}
		want := fmt.Sprintf("artifact-%d", i)
		if string(o.Artifact) != want {
			t.Errorf("result[%d].Artifact = %q, want %q", i, o.Artifact, want)
		}
	}
}

func TestRun_InvokesEachUnitExactlyOnce(t *testing.T) {
	const n = 50
	units := makeUnits(n)

	d, err := New(wideOpen(6))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var invocations [n]int32
	process := func(ctx context.Context, u WorkUnit) ([]byte, error) {
		atomic.AddInt32(&invocations[u.Index], 1)
		return u.Payload, nil
	}

	if _, err := d.Run(context.Background(), units, process); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i := range invocations {
		if got := atomic.LoadInt32(&invocations[i]); got != 1 {
			t.Errorf("unit %d invoked %d times, want exactly 1", i, got)
		}
	}
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	units := makeUnits(5)

	d, err := New(wideOpen(3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	faultErr := errors.New("conversion rejected")
	process := func(ctx context.Context, u WorkUnit) ([]byte, error) {
		if u.Index == 2 {
			return nil, faultErr
		}
		return u.Payload, nil
	}

	result, err := d.Run(context.Background(), units, process)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := result.Failures(); got != 1 {
		t.Errorf("Failures() = %d, want 1", got)
	}
	if got := result.Successes(); got != 4 {
		t.Errorf("Successes() = %d, want 4", got)
	}

	var ue *UnitError
	if !errors.As(result[2].Err, &ue) {
		t.Fatalf("result[2].Err = %v, want *UnitError", result[2].Err)
	}
	if ue.Index != 2 {
		t.Errorf("UnitError.Index = %d, want 2", ue.Index)
	}
	if !errors.Is(result[2].Err, faultErr) {
		t.Errorf("result[2].Err does not wrap the processor fault")
	}

	for i, o := range result {
		if i == 2 {
			continue
		}
		if o.Err != nil {
			t.Errorf("result[%d].Err = %v, sibling affected by unit 2's fault", i, o.Err)
		}
	}
}

func TestRun_PanicBecomesFailureOutcome(t *testing.T) {
	units := makeUnits(4)

	d, err := New(wideOpen(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	process := func(ctx context.Context, u WorkUnit) ([]byte, error) {
		if u.Index == 1 {
			panic("processor exploded")
		}
		return u.Payload, nil
	}

	result, err := d.Run(context.Background(), units, process)
	if err != nil {
		t.Fatalf("Run: %v (a panicking processor must not crash the batch)", err)
	}

	if result[1].Err == nil {
		t.Fatal("result[1].Err = nil, want panic captured as failure")
	}
	var ue *UnitError
	if !errors.As(result[1].Err, &ue) {
		t.Errorf("result[1].Err = %v, want *UnitError", result[1].Err)
	}
	if got := result.Failures(); got != 1 {
		t.Errorf("Failures() = %d, want 1", got)
	}
}

func TestRun_ConcurrencyCeiling(t *testing.T) {
	const (
		n = 12
		m = 3
	)
	units := makeUnits(n)

	d, err := New(wideOpen(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	process := func(ctx context.Context, u WorkUnit) ([]byte, error) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		current--
		mu.Unlock()
		return u.Payload, nil
	}

	if _, err := d.Run(context.Background(), units, process); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if peak > m {
		t.Errorf("peak concurrency = %d, ceiling is %d", peak, m)
	}
	if peak < m {
		t.Logf("peak concurrency = %d (ceiling %d not reached, scheduling noise)", peak, m)
	}
}

// The gate, not raw concurrency, bounds throughput: n near-instant units at
// limit r per window w need at least (n/r - 1) x w of wall time.
func TestRun_GateBoundsElapsedTime(t *testing.T) {
	const (
		n = 6
		r = 2
	)
	w := 200 * time.Millisecond
	units := makeUnits(n)

	d, err := New(Config{Concurrency: n, RateLimit: r, Window: w})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	process := func(ctx context.Context, u WorkUnit) ([]byte, error) {
		return u.Payload, nil
	}

	start := time.Now()
	result, err := d.Run(context.Background(), units, process)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	elapsed := time.Since(start)

	if got := result.Failures(); got != 0 {
		t.Fatalf("Failures() = %d, want 0", got)
	}

	minElapsed := time.Duration(n/r-1) * w
	if elapsed < minElapsed-20*time.Millisecond {
		t.Errorf("batch finished in %v, quota should enforce >= %v", elapsed, minElapsed)
	}
}

func TestRun_CancellationSettlesAllUnits(t *testing.T) {
	const n = 10
	units := makeUnits(n)

	d, err := New(wideOpen(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var completed int32
	twoDone := make(chan struct{})
	process := func(pctx context.Context, u WorkUnit) ([]byte, error) {
		if u.Index < 2 {
			if atomic.AddInt32(&completed, 1) == 2 {
				close(twoDone)
			}
			return u.Payload, nil
		}
		// Later units park until the batch is cancelled.
		<-pctx.Done()
		return nil, pctx.Err()
	}

	go func() {
		<-twoDone
		cancel()
	}()

	done := make(chan struct{})
	var result BatchResult
	var runErr error
	go func() {
		result, runErr = d.Run(ctx, units, process)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run hung after cancellation")
	}

	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if len(result) != n {
		t.Fatalf("len(result) = %d, want %d (full length even when cancelled)", len(result), n)
	}

	for i := 0; i < 2; i++ {
		if result[i].Err != nil {
			t.Errorf("result[%d].Err = %v, completed units must keep their real outcome", i, result[i].Err)
		}
	}
	for i := 2; i < n; i++ {
		if !errors.Is(result[i].Err, ErrCancelled) {
			t.Errorf("result[%d].Err = %v, want ErrCancelled", i, result[i].Err)
		}
	}
}

func TestRun_StreamsProgressSnapshots(t *testing.T) {
	const n = 8
	units := makeUnits(n)

	snaps := make(chan progress.Snapshot, n)
	d, err := New(wideOpen(4), WithSnapshots(snaps))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	process := func(ctx context.Context, u WorkUnit) ([]byte, error) {
		if u.Index == 3 {
			return nil, errors.New("bad page")
		}
		return u.Payload, nil
	}

	if _, err := d.Run(context.Background(), units, process); err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(snaps)

	var last progress.Snapshot
	count := 0
	prev := 0
	for s := range snaps {
		if s.Completed < prev {
			t.Errorf("snapshot Completed regressed from %d to %d", prev, s.Completed)
		}
		prev = s.Completed
		last = s
		count++
	}

	if count != n {
		t.Fatalf("received %d snapshots, want %d (buffered channel, nothing should drop)", count, n)
	}
	if last.Completed != n || last.Failed != 1 {
		t.Errorf("final snapshot = %+v, want Completed=%d Failed=1", last, n)
	}
}
