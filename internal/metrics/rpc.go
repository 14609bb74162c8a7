package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "JSON-RPC requests, by method and status.",
	}, []string{"method", "status"})
	rpcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "Duration of JSON-RPC requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "status"})
)

// ObserveRPC records one JSON-RPC call.
func ObserveRPC(method string, failed bool, started time.Time) {
	status := "success"
	if failed {
		status = "error"
	}
	rpcRequestsTotal.WithLabelValues(method, status).Inc()
	rpcRequestDuration.WithLabelValues(method, status).Observe(time.Since(started).Seconds())
}
