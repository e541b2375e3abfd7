package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for paginated fetches.
var (
	pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subgraph_pages_fetched_total",
		Help: "Total pages fetched by collection",
	}, []string{"collection"})

	recordsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subgraph_records_fetched_total",
		Help: "Total records kept after cap enforcement by collection",
	}, []string{"collection"})

	roundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subgraph_rounds_total",
		Help: "Total pagination rounds by collection",
	}, []string{"collection"})

	roundDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "subgraph_round_duration_seconds",
		Help:    "Duration of one pagination round (slowest page of the round)",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"collection"})
)
