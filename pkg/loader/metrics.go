package loader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subgraph_rows_written_total",
		Help: "Total rows upserted by table",
	}, []string{"table"})

	batchesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subgraph_load_batches_total",
		Help: "Total upsert batches by table",
	}, []string{"table"})

	loadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subgraph_load_errors_total",
		Help: "Total failed loads by table",
	}, []string{"table"})

	loadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "subgraph_load_duration_seconds",
		Help:    "Duration of committed loads by table",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"table"})
)
