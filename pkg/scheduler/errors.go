package scheduler

import (
	"context"
	"errors"
	"fmt"
)

// ErrCancelled marks outcomes of units that were stopped by batch-level
// cancellation, either before they started or mid-flight.
var ErrCancelled = errors.New("batch cancelled")

// UnitError wraps a fault raised by the unit processor for a single unit.
// It is recovered locally: the fault is captured into that unit's Outcome
// and never propagates to sibling units or the batch control flow.
type UnitError struct {
	Index int
	Err   error
}

// Error implements the error interface.
func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %d failed: %v", e.Index, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UnitError) Unwrap() error {
	return e.Err
}

// InvariantError indicates a scheduler bug or illegal configuration:
// duplicate outcome index, missing outcome, malformed unit sequence. It is
// never recovered; the run aborts with no result.
type InvariantError struct {
	Reason string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	return "scheduler invariant violated: " + e.Reason
}

func invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Reason: fmt.Sprintf(format, args...)}
}

// isCancellation reports whether err stems from context cancellation rather
// than a genuine processor fault.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
