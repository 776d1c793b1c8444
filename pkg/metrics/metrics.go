// Package metrics provides the Prometheus registry reference for the
// acquisition engine. Metrics are defined in their owning packages
// (provider, quota, coordinator, cache) via promauto to keep them next
// to the code they instrument.
//
// This package documents all exported metrics in one place.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registerer used by the engine.
// All metrics self-register via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Provider Metrics (pkg/provider):
//   - weather_provider_requests_total{provider, status} (Counter): physical calls by HTTP status
//   - weather_provider_request_duration_seconds{provider} (Histogram): call latency
//   - weather_provider_errors_total{provider, kind} (Counter): classified call errors
//
// Retry Metrics (pkg/provider):
//   - weather_retries_total{kind} (Counter): retry attempts by error kind
//   - weather_retry_backoff_seconds{kind} (Histogram): backoff durations
//   - weather_retry_exhausted_total{kind} (Counter): retry budgets exhausted
//
// Quota Metrics (pkg/quota):
//   - weather_quota_remaining{provider} (Gauge): calls left in the current window
//   - weather_quota_blocks_total{provider} (Counter): reservations rejected on empty budget
//   - weather_inflight_calls{provider} (Gauge): calls currently holding a slot
//
// Coordinator Metrics (pkg/coordinator):
//   - weather_segments_total{provider, status} (Counter): segment outcomes
//   - weather_fallbacks_total{from, to} (Counter): per-segment provider fallbacks
//
// Cache Metrics (pkg/cache):
//   - weather_cache_hits_total (Counter)
//   - weather_cache_misses_total (Counter)
//   - weather_cache_errors_total{operation} (Counter)
//
// Example Prometheus Queries:
//
//   # Segment success rate
//   sum(rate(weather_segments_total{status="success"}[5m])) /
//   sum(rate(weather_segments_total[5m]))
//
//   # Metered budget burn-down
//   weather_quota_remaining{provider="meteostat"}
//
//   # Fallback pressure
//   rate(weather_fallbacks_total[5m])
//
//   # P95 provider latency
//   histogram_quantile(0.95, rate(weather_provider_request_duration_seconds_bucket[5m]))
