package p2p

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/time/rate"
)

// Per-peer message budget.
const (
	MessagesPerSecond = 50
	MessageBurst      = 50
)

// RateLimiter keeps a token bucket per peer.
type RateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[peer.ID]*rate.Limiter
}

// NewRateLimiter creates a limiter allowing perSecond messages with the
// given burst from each peer.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[peer.ID]*rate.Limiter),
	}
}

// Allow consumes one token from id's bucket.
func (r *RateLimiter) Allow(id peer.ID) bool {
	r.mu.Lock()
	l, ok := r.limiters[id]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[id] = l
	}
	r.mu.Unlock()
	return l.Allow()
}

// Forget drops id's bucket, typically on disconnect.
func (r *RateLimiter) Forget(id peer.ID) {
	r.mu.Lock()
	delete(r.limiters, id)
	r.mu.Unlock()
}
