package graph

import "github.com/prometheus/client_golang/prometheus"

var ReindexCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "docmodel",
	Subsystem: "graph",
	Name:      "reindex",
}, []string{"index"})

var ReindexDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "docmodel",
	Subsystem: "graph",
	Name:      "reindex_duration",
	Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 200, 500},
}, []string{"index"})

var OpsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "docmodel",
	Subsystem: "graph",
	Name:      "ops_applied",
}, []string{"kind", "mode"})

// Collectors returns the package metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{ReindexCount, ReindexDuration, OpsApplied}
}
