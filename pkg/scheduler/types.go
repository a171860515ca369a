package scheduler

import (
	"time"
)

// WorkUnit is one independently processable item of a batch, typically a
// single page of a paginated document. Index is the unit's position in the
// original sequence and must be unique within a batch.
type WorkUnit struct {
	// Index is the zero-based position in the original ordered sequence.
	Index int

	// Payload is the opaque unit content handed to the processor.
	Payload []byte
}

// Outcome is the single, final result recorded for one work unit.
// Exactly one Outcome is produced per unit; there are no automatic retries.
type Outcome struct {
	// Index matches the WorkUnit this outcome settles.
	Index int

	// Artifact is the processor's output on success, nil on failure.
	Artifact []byte

	// Err is nil on success. Failures carry a *UnitError for processor
	// faults or wrap ErrCancelled for units stopped by batch cancellation.
	Err error

	// Duration is the wall time from scheduling (including quota wait)
	// to settlement.
	Duration time.Duration
}

// Failed reports whether the unit settled with a failure.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// BatchResult is the complete, index-ordered collection of all outcomes of
// one run: BatchResult[i].Index == i for every i.
type BatchResult []Outcome

// Failures counts outcomes that settled with an error.
func (r BatchResult) Failures() int {
	n := 0
	for _, o := range r {
		if o.Failed() {
			n++
		}
	}
	return n
}

// Successes counts outcomes that settled without an error.
func (r BatchResult) Successes() int {
	return len(r) - r.Failures()
}

// Config holds the dispatcher configuration.
type Config struct {
	// Concurrency is the maximum number of processor calls in flight.
	// Independent of RateLimit; any value >= 1 is valid.
	Concurrency int

	// RateLimit is the maximum number of grants per Window, shared across
	// all workers of the batch.
	RateLimit int

	// Window is the trailing duration the rate limit applies to.
	Window time.Duration
}

// DefaultConfig returns a configuration suited to a remote service allowing
// ten requests per minute.
func DefaultConfig() Config {
	return Config{
		Concurrency: 5,
		RateLimit:   10,
		Window:      time.Minute,
	}
}
