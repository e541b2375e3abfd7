// Package metrics documents the Prometheus metrics of subgraph-sync and
// serves them over HTTP.
// All metrics are defined in their respective packages (graphql, pagination,
// loader, cache, runlock) to maintain modularity and avoid circular dependencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by subgraph-sync.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry served on /metrics.
var Gatherer = prometheus.DefaultGatherer

// Metrics Documentation
//
// Request Metrics (pkg/graphql):
//   - subgraph_requests_total{collection, status} (Counter): Page requests by collection and HTTP status
//   - subgraph_request_duration_seconds{collection} (Histogram): Page request duration
//   - subgraph_errors_total{class} (Counter): Errors by class (status, network, decode, query)
//
// Pagination Metrics (pkg/pagination):
//   - subgraph_pages_fetched_total{collection} (Counter): Pages accepted by the coordinator
//   - subgraph_records_fetched_total{collection} (Counter): Records kept after the cap
//   - subgraph_rounds_total{collection} (Counter): Completed or aborted rounds
//   - subgraph_round_duration_seconds{collection} (Histogram): Wall time per round
//
// Load Metrics (pkg/loader):
//   - subgraph_rows_written_total{table} (Counter): Rows sent in upsert statements
//   - subgraph_load_batches_total{table} (Counter): Upsert statements executed
//   - subgraph_load_errors_total{table} (Counter): Mapping, write and commit failures
//   - subgraph_load_duration_seconds{table} (Histogram): Duration of committed loads
//
// Cache Metrics (pkg/cache):
//   - subgraph_cache_hits_total{collection} (Counter): Pages served from Redis
//   - subgraph_cache_misses_total{collection} (Counter): Pages not found in Redis
//   - subgraph_cache_records_served_total{collection} (Counter): Records served from cached pages
//   - subgraph_cache_records_written_total{collection} (Counter): Records written to cached pages
//   - subgraph_cache_written_bytes_total{collection} (Counter): Bytes written to Redis
//   - subgraph_cache_purged_pages_total{collection} (Counter): Pages removed by a purge
//   - subgraph_cache_errors_total{operation} (Counter): Cache operation errors
//
// Lock Metrics (pkg/runlock):
//   - subgraph_lock_acquired_total (Counter): Run locks acquired
//   - subgraph_lock_contended_total (Counter): Lock attempts that found the lock held
//
// Example Prometheus Queries:
//
//   # Records per second
//   rate(subgraph_records_fetched_total[5m])
//
//   # Query errors
//   rate(subgraph_errors_total{class="query"}[5m])
//
//   # P95 round latency
//   histogram_quantile(0.95, rate(subgraph_round_duration_seconds_bucket[5m]))
//
//   # Cache Hit Rate
//   sum(rate(subgraph_cache_hits_total[5m])) /
//   (sum(rate(subgraph_cache_hits_total[5m])) + sum(rate(subgraph_cache_misses_total[5m])))
