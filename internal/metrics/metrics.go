// Registers:
//
//	#DerivFlow_provider_requests_total
//	#DerivFlow_snapshots_total
//	#go_* and process_* system metrics
//
// The counters are served from the main HTTP server's /metrics route.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	once             sync.Once
	providerRequests *prometheus.CounterVec
	snapshots        *prometheus.CounterVec
)

func Init() {
	once.Do(func() {
		providerRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "DerivFlow_provider_requests_total",
				Help: "Number of provider fetch attempts by metric and outcome",
			},
			[]string{"provider", "metric", "outcome"},
		)

		snapshots = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "DerivFlow_snapshots_total",
				Help: "Number of snapshot computations by outcome",
			},
			[]string{"outcome"},
		)

		_ = prometheus.Register(providerRequests)
		_ = prometheus.Register(snapshots)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// IncrementProvider increases the request counter for one provider
// attempt. metric is "funding" or "open_interest", outcome is "success"
// or "error".
func IncrementProvider(provider, metric, outcome string) {
	if providerRequests != nil {
		providerRequests.WithLabelValues(provider, metric, outcome).Inc()
	}
}

// IncrementSnapshot increases the snapshot counter for a given outcome.
func IncrementSnapshot(outcome string) {
	if snapshots != nil {
		snapshots.WithLabelValues(outcome).Inc()
	}
}
