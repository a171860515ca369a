// Package scheduler drives a batch of ordered work units through a remote
// unit processor with bounded concurrency and a shared sliding-window quota.
//
// Units are submitted in index order, complete in whatever order the remote
// service allows, and are reassembled into an index-ordered BatchResult. A
// failing unit never aborts the batch: every unit settles with exactly one
// Outcome, success or failure.
//
// Example usage:
//
//	d, err := scheduler.New(scheduler.Config{
//		Concurrency: 5,
//		RateLimit:   10,
//		Window:      time.Minute,
//	})
//	result, err := d.Run(ctx, units, process)
//
// The dispatcher:
//   - creates a fresh quota gate per batch (no cross-batch interference)
//   - runs at most Concurrency processor calls in flight
//   - gates every call through ratelimit.Gate.Acquire
//   - converts processor errors and panics into per-unit Failure outcomes
//   - settles unstarted units as Cancelled when the batch context ends
//   - returns a full-length, index-sorted result in every non-fatal case
package scheduler
