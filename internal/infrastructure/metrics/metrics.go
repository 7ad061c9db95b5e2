package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lifecycleOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "access_broker",
		Subsystem: "lifecycle",
		Name:      "operations_total",
		Help:      "Lifecycle operations by operation and outcome.",
	}, []string{"operation", "outcome"})

	escrowCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "access_broker",
		Subsystem: "escrow",
		Name:      "calls_total",
		Help:      "Escrow collaborator calls by call and outcome.",
	}, []string{"call", "outcome"})
)

// ObserveOperation records one lifecycle operation outcome.
func ObserveOperation(operation, outcome string) {
	lifecycleOps.WithLabelValues(operation, outcome).Inc()
}

// ObserveEscrowCall records one escrow collaborator call outcome.
func ObserveEscrowCall(call string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	escrowCalls.WithLabelValues(call, outcome).Inc()
}
