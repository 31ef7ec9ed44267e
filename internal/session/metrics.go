package session

import "github.com/prometheus/client_golang/prometheus"

var Commits = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "docmodel",
	Subsystem: "session",
	Name:      "commits",
})

var Merged = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "docmodel",
	Subsystem: "session",
	Name:      "merged",
})

var Undos = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "docmodel",
	Subsystem: "session",
	Name:      "undo",
})

var Redos = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "docmodel",
	Subsystem: "session",
	Name:      "redo",
})

var Finalized = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "docmodel",
	Subsystem: "session",
	Name:      "finalized",
})

var HubFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "docmodel",
	Subsystem: "session",
	Name:      "hub_failures",
})

// Collectors returns the package metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{Commits, Merged, Undos, Redos, Finalized, HubFailures}
}
