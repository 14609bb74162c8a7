package mempool

import (
	"sort"
	"sync"
)

// DefaultEstimatorBlocks is how many recent blocks the estimator remembers.
const DefaultEstimatorBlocks = 10

// FeeEstimate holds fee suggestions in base units.
type FeeEstimate struct {
	Low    uint64 `json:"low"`
	Medium uint64 `json:"medium"`
	High   uint64 `json:"high"`
}

// Estimator suggests fees from the fees of recently confirmed
// transactions and of the current mempool.
type Estimator struct {
	mu        sync.Mutex
	history   [][]uint64 // fee list per block, oldest first
	maxBlocks int
}

// NewEstimator creates an estimator remembering maxBlocks blocks.
func NewEstimator(maxBlocks int) *Estimator {
	if maxBlocks <= 0 {
		maxBlocks = DefaultEstimatorBlocks
	}
	return &Estimator{maxBlocks: maxBlocks}
}

// RecordBlock remembers the fees paid by one connected block.
func (e *Estimator) RecordBlock(fees []uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, append([]uint64(nil), fees...))
	if len(e.history) > e.maxBlocks {
		e.history = e.history[len(e.history)-e.maxBlocks:]
	}
}

// Estimate returns the 25th, 50th and 75th percentile of the mempool fees
// and the remembered block fees. Every suggestion is at least 1.
func (e *Estimator) Estimate(pool *Pool) FeeEstimate {
	var samples []uint64
	if pool != nil {
		samples = pool.FeeList()
	}

	e.mu.Lock()
	for _, fees := range e.history {
		samples = append(samples, fees...)
	}
	e.mu.Unlock()

	if len(samples) == 0 {
		return FeeEstimate{Low: 1, Medium: 1, High: 1}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	n := len(samples)
	return FeeEstimate{
		Low:    atLeastOne(samples[n*25/100]),
		Medium: atLeastOne(samples[n*50/100]),
		High:   atLeastOne(samples[n*75/100]),
	}
}

func atLeastOne(v uint64) uint64 {
	if v < 1 {
		return 1
	}
	return v
}
