// Package metrics provides the centralized Prometheus metrics registry for
// the connector. All metrics are defined in their respective packages (auth,
// client, cache, streams) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the connector.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Token Metrics (pkg/auth):
//   - niko_token_refreshes_total{status} (Counter): Token refresh attempts by outcome (success, error)
//
// Cache Metrics (pkg/cache):
//   - niko_cache_hits_total (Counter): Cache hits
//   - niko_cache_misses_total (Counter): Cache misses
//   - niko_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - niko_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - niko_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - niko_errors_total{class} (Counter): Errors by class (auth, client, server, network)
//
// Retry Metrics (pkg/client):
//   - niko_retries_total{error_class} (Counter): Retry attempts by error class
//   - niko_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - niko_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Stream Metrics (pkg/streams):
//   - niko_pages_fetched_total{stream} (Counter): Pages fetched by stream
//   - niko_records_extracted_total{stream} (Counter): Records extracted by stream
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(niko_cache_hits_total[5m])) /
//   (sum(rate(niko_cache_hits_total[5m])) + sum(rate(niko_cache_misses_total[5m])))
//
//   # Request Error Rate
//   rate(niko_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(niko_request_duration_seconds_bucket[5m]))
//
//   # Extraction Throughput
//   rate(niko_records_extracted_total[5m])
