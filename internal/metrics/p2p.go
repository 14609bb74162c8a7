package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	peersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "p2p",
		Name:      "peers",
		Help:      "Connected peers.",
	})
	peerBansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "p2p",
		Name:      "bans_total",
		Help:      "Peers banned for misbehaviour.",
	})
	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "p2p",
		Name:      "messages_total",
		Help:      "Gossip messages received, by topic and status.",
	}, []string{"topic", "status"})
)

// SetPeers publishes the connected peer count.
func SetPeers(n int) {
	peersConnected.Set(float64(n))
}

// ObserveBan counts a peer ban.
func ObserveBan() {
	peerBansTotal.Inc()
}

// ObserveMessage counts one inbound gossip message. status is one of
// accepted, rejected, malformed, limited.
func ObserveMessage(topic, status string) {
	messagesTotal.WithLabelValues(topic, status).Inc()
}
