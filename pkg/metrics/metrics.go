// Package metrics provides the centralized Prometheus metrics registry for
// the conversion pipeline. All metrics are defined in their respective
// packages (ratelimit, scheduler, progress, cache, converter) to maintain
// modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the pipeline.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Quota Gate Metrics (pkg/ratelimit):
//   - pagedoc_gate_grants_total (Counter): Grants issued by the quota gate
//   - pagedoc_gate_throttles_total (Counter): Acquisitions that had to wait for window capacity
//   - pagedoc_gate_wait_seconds (Histogram): Time spent waiting for a quota grant
//
// Scheduler Metrics (pkg/scheduler):
//   - pagedoc_units_total{status} (Counter): Units settled by status (success, failure, cancelled)
//   - pagedoc_unit_duration_seconds (Histogram): Wall time per unit from scheduling to settlement
//   - pagedoc_units_in_flight (Gauge): Processor calls currently in flight
//
// Progress Metrics (pkg/progress):
//   - pagedoc_batch_completed_units (Gauge): Units settled so far in the current batch
//
// Cache Metrics (pkg/cache):
//   - pagedoc_cache_hits_total{layer="redis"} (Counter): Page artifact cache hits by layer
//   - pagedoc_cache_misses_total (Counter): Page artifact cache misses
//   - pagedoc_cache_size_bytes{layer="redis"} (Gauge): Bytes read from or written to cache
//   - pagedoc_cache_errors_total{operation} (Counter): Cache operation errors
//
// Conversion Metrics (pkg/converter):
//   - pagedoc_convert_requests_total{status} (Counter): Conversion requests by HTTP status
//   - pagedoc_convert_duration_seconds (Histogram): Remote conversion request duration
//   - pagedoc_convert_errors_total{class} (Counter): Conversion errors by class
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(pagedoc_cache_hits_total[5m])) /
//   (sum(rate(pagedoc_cache_hits_total[5m])) + sum(rate(pagedoc_cache_misses_total[5m])))
//
//   # Throttle Ratio (share of grants that had to wait)
//   rate(pagedoc_gate_throttles_total[5m]) / rate(pagedoc_gate_grants_total[5m])
//
//   # Unit Failure Rate
//   rate(pagedoc_units_total{status="failure"}[5m])
//
//   # P95 Unit Latency
//   histogram_quantile(0.95, rate(pagedoc_unit_duration_seconds_bucket[5m]))
//
//   # P95 Gate Wait
//   histogram_quantile(0.95, rate(pagedoc_gate_wait_seconds_bucket[5m]))
