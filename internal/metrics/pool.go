package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mempoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "mempool",
		Name:      "transactions",
		Help:      "Transactions waiting in the mempool.",
	})
	mempoolAdmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mempool",
		Name:      "admissions_total",
		Help:      "Transactions offered to the mempool, by status.",
	}, []string{"status"})
	orphanCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "orphan",
		Name:      "entries",
		Help:      "Buffered orphans, by kind.",
	}, []string{"kind"})
)

// SetMempoolSize publishes the number of pooled transactions.
func SetMempoolSize(n int) {
	mempoolSize.Set(float64(n))
}

// ObserveMempoolAdmission counts one mempool Add.
func ObserveMempoolAdmission(err error) {
	status := "accepted"
	if err != nil {
		status = "rejected"
	}
	mempoolAdmissionsTotal.WithLabelValues(status).Inc()
}

// SetOrphans publishes the size of an orphan pool. kind is "block" or "tx".
func SetOrphans(kind string, n int) {
	orphanCount.WithLabelValues(kind).Set(float64(n))
}
