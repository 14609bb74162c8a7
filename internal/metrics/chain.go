// Package metrics holds the node's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eggcore"

var (
	blocksProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "blocks_processed_total",
		Help:      "Blocks submitted to the chain, by outcome.",
	}, []string{"outcome"})
	reorgsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "reorgs_total",
		Help:      "Tip changes that disconnected at least one block.",
	})
	reorgDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "reorg_depth_blocks",
		Help:      "Blocks disconnected per reorg.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
	})
	tipHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "tip_height",
		Help:      "Height of the best chain tip.",
	})
	totalWork = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "total_work",
		Help:      "Cumulative work of the best chain, as a float.",
	})
)

// ObserveBlock counts one AddBlock call. Outcomes: connected, side,
// duplicate, orphan, rejected, error.
func ObserveBlock(outcome string) {
	blocksProcessedTotal.WithLabelValues(outcome).Inc()
}

// ObserveReorg records a reorg that disconnected depth blocks.
func ObserveReorg(depth int) {
	reorgsTotal.Inc()
	reorgDepth.Observe(float64(depth))
}

// SetTip publishes the best chain's height and total work.
func SetTip(height uint64, work float64) {
	tipHeight.Set(float64(height))
	totalWork.Set(work)
}
