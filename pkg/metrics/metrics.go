// Package metrics provides the Prometheus registry and scrape handler for the
// catalog client. All metrics are defined in their respective packages (cache,
// client, throttle, schedule, liveness) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the catalog client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler that exposes every registered metric.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - catalog_cache_hits_total{layer} (Counter): Cache hits by layer (memory, redis)
//   - catalog_cache_misses_total{layer} (Counter): Cache misses, expired reads included
//   - catalog_cache_evictions_total{layer, reason} (Counter): Evictions (expired_read, sweep, clear, corrupt)
//   - catalog_cache_entries{layer} (Gauge): Current number of in-memory entries
//   - catalog_cache_errors_total{layer, operation} (Counter): Backend errors served as misses
//
// Request Metrics (pkg/client):
//   - catalog_requests_total{outcome} (Counter): Dispatched requests (cache_hit, success, or error class)
//   - catalog_request_duration_seconds{outcome} (Histogram): Dispatch duration, backoff included
//   - catalog_upstream_errors_total{class} (Counter): Failed upstream attempts by class
//   - catalog_requests_coalesced_total (Counter): Callers that shared an in-flight call
//
// Retry Metrics (pkg/client):
//   - catalog_retries_total{error_class} (Counter): Retry attempts by error class
//   - catalog_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - catalog_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Throttle Metrics (pkg/throttle):
//   - catalog_throttle_queue_length (Gauge): Calls waiting for their slot
//   - catalog_throttle_executed_total{result} (Counter): Throttled calls (success, error, dropped)
//   - catalog_throttle_wait_seconds (Histogram): Queueing delay before a call started
//
// Scheduler and Liveness Metrics (pkg/schedule, pkg/liveness):
//   - catalog_scheduled_job_runs_total{job} (Counter): Runs of cache-cleanup and liveness-ping
//   - catalog_liveness_pings_total{result} (Counter): Pings by result (ok, unhealthy, error)
//   - catalog_liveness_ping_duration_seconds (Histogram): Ping round-trip time
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(catalog_cache_hits_total[5m])) /
//   (sum(rate(catalog_cache_hits_total[5m])) + sum(rate(catalog_cache_misses_total[5m])))
//
//   # Upstream waking up (network failures per minute)
//   rate(catalog_upstream_errors_total{class="network"}[1m]) * 60
//
//   # Throttle backlog
//   catalog_throttle_queue_length > 10
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(catalog_request_duration_seconds_bucket[5m]))
//
//   # Liveness failures
//   increase(catalog_liveness_pings_total{result!="ok"}[1h])
