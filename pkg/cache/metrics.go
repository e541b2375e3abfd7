package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks page cache hits by collection
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgraph_cache_hits_total",
			Help: "Total number of page cache hits",
		},
		[]string{"collection"},
	)

	// CacheMisses tracks page cache misses by collection
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgraph_cache_misses_total",
			Help: "Total number of page cache misses",
		},
		[]string{"collection"},
	)

	// CacheRecordsServed counts records returned from cached pages
	CacheRecordsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgraph_cache_records_served_total",
			Help: "Total records served from cached pages",
		},
		[]string{"collection"},
	)

	// CacheRecordsWritten counts records stored in cached pages
	CacheRecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgraph_cache_records_written_total",
			Help: "Total records written to cached pages",
		},
		[]string{"collection"},
	)

	// CacheBytesWritten tracks the volume of page data stored per collection
	CacheBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgraph_cache_written_bytes_total",
			Help: "Total bytes of page data written to the cache",
		},
		[]string{"collection"},
	)

	// CachePurged counts pages removed by Purge
	CachePurged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgraph_cache_purged_pages_total",
			Help: "Total cached pages removed by purges",
		},
		[]string{"collection"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgraph_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "purge"
	)
)
