package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Node metrics are labelled with the node id, so that several nodes sharing a
// process in tests keep separate series.
var (
	RPCsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpcs_total",
			Help:      "Inbound messages processed, by body type.",
		},
		[]string{"node", "type"},
	)

	GossipsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gossip_sent_total",
			Help:      "Gossip messages handed to the transport.",
		},
		[]string{"node"},
	)

	GossipValuesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gossip_values_sent_total",
			Help:      "Values carried by outbound gossip, retries included.",
		},
		[]string{"node"},
	)

	SendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Gossip messages the transport refused.",
		},
		[]string{"node"},
	)

	AcksReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acks_total",
			Help:      "Obligations cleared by gossip_ok replies.",
		},
		[]string{"node"},
	)

	KnownValues = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "known_values",
			Help:      "Number of values delivered to the node.",
		},
		[]string{"node"},
	)

	PendingObligations = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_obligations",
			Help:      "Unacknowledged (neighbour, value) pairs.",
		},
		[]string{"node"},
	)
)

func init() {
	Registry.MustRegister(
		RPCsTotal,
		GossipsSent,
		GossipValuesSent,
		SendErrors,
		AcksReceived,
		KnownValues,
		PendingObligations,
	)
}
