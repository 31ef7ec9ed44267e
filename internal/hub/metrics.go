package hub

import "github.com/prometheus/client_golang/prometheus"

var CommitsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "docmodel",
	Subsystem: "hub",
	Name:      "commits_accepted",
})

var ClientsConnected = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "docmodel",
	Subsystem: "hub",
	Name:      "clients_connected",
})

var MessagesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "docmodel",
	Subsystem: "hub",
	Name:      "messages_dropped",
}, []string{"reason"})

// Collectors returns the package metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{CommitsAccepted, ClientsConnected, MessagesDropped}
}
