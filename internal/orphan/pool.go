// Package orphan buffers blocks and transactions whose dependencies have
// not arrived yet.
package orphan

import (
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Klingon-tech/eggcore/internal/metrics"
	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/tx"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// Limits for the two pools.
const (
	MaxBlocks = 2048
	BlockTTL  = 10 * time.Minute
	MaxTxs    = 10_000
	TxTTL     = 5 * time.Minute
)

// IndexFunc returns the secondary keys an item is filed under.
type IndexFunc[T any] func(T) []types.Hash

type held struct {
	seq     uint64
	indexed []types.Hash
}

// Pool is a bounded FIFO of items keyed by hash, backed by an expirable
// LRU. Items are only read with Peek, so the LRU order is insertion order
// and a full pool drops its oldest item. Items older than the TTL expire.
// An optional index files each item under secondary keys.
type Pool[T any] struct {
	mu      sync.Mutex
	kind    string
	max     int
	ttl     time.Duration
	lru     *expirable.LRU[types.Hash, T]
	index   IndexFunc[T]
	seq     uint64
	held    map[types.Hash]held
	byIndex map[types.Hash]map[types.Hash]struct{}

	// evicted collects keys the LRU dropped. The callback runs under the
	// LRU's lock, so it only queues; the index is fixed up under mu.
	evictMu sync.Mutex
	evicted []types.Hash
}

// New creates a pool. kind labels its size metric. A ttl of zero never
// expires items. index may be nil.
func New[T any](kind string, max int, ttl time.Duration, index IndexFunc[T]) *Pool[T] {
	p := &Pool[T]{
		kind:    kind,
		max:     max,
		ttl:     ttl,
		index:   index,
		held:    make(map[types.Hash]held),
		byIndex: make(map[types.Hash]map[types.Hash]struct{}),
	}
	p.lru = expirable.NewLRU[types.Hash, T](max, p.onEvict, ttl)
	return p
}

func (p *Pool[T]) onEvict(key types.Hash, _ T) {
	p.evictMu.Lock()
	p.evicted = append(p.evicted, key)
	p.evictMu.Unlock()
}

// Add stores value under key. It reports false if key is already held.
func (p *Pool[T]) Add(key types.Hash, value T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.lru.Peek(key); ok {
		return false
	}
	p.lru.Add(key, value)
	p.drainLocked()

	p.seq++
	h := held{seq: p.seq}
	if p.index != nil {
		h.indexed = p.index(value)
	}
	p.unindexLocked(key)
	p.held[key] = h
	for _, ik := range h.indexed {
		set := p.byIndex[ik]
		if set == nil {
			set = make(map[types.Hash]struct{})
			p.byIndex[ik] = set
		}
		set[key] = struct{}{}
	}
	metrics.SetOrphans(p.kind, p.lru.Len())
	return true
}

// Has reports whether key is held.
func (p *Pool[T]) Has(key types.Hash) bool {
	_, ok := p.lru.Peek(key)
	return ok
}

// Len returns the number of live items.
func (p *Pool[T]) Len() int {
	return len(p.lru.Keys())
}

// Remove drops key.
func (p *Pool[T]) Remove(key types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lru.Remove(key)
	p.drainLocked()
	metrics.SetOrphans(p.kind, p.lru.Len())
}

// Take removes and returns, oldest first, every live item ready reports
// true for.
func (p *Pool[T]) Take(ready func(T) bool) []T {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []T
	for _, key := range p.lru.Keys() {
		v, ok := p.lru.Peek(key)
		if ok && ready(v) {
			out = append(out, v)
			p.lru.Remove(key)
		}
	}
	p.drainLocked()
	metrics.SetOrphans(p.kind, p.lru.Len())
	return out
}

// TakeIndexed removes and returns, oldest first, the live items filed
// under ik.
func (p *Pool[T]) TakeIndexed(ik types.Hash) []T {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.drainLocked()
	set := p.byIndex[ik]
	if len(set) == 0 {
		return nil
	}
	keys := make([]types.Hash, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return p.held[keys[i]].seq < p.held[keys[j]].seq })

	var out []T
	for _, k := range keys {
		if v, ok := p.lru.Peek(k); ok {
			out = append(out, v)
		}
		p.lru.Remove(k)
	}
	p.drainLocked()
	metrics.SetOrphans(p.kind, p.lru.Len())
	return out
}

// Expire drops every item older than the TTL and returns how many went
// since the last call, counting those the LRU already swept.
func (p *Pool[T]) Expire() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.drainLocked()
	for key := range p.held {
		if _, ok := p.lru.Peek(key); !ok {
			p.lru.Remove(key)
			p.unindexLocked(key)
			n++
		}
	}
	p.drainLocked()
	metrics.SetOrphans(p.kind, p.lru.Len())
	return n
}

// drainLocked unindexes the keys the LRU evicted since the last call and
// returns how many were still indexed.
func (p *Pool[T]) drainLocked() int {
	p.evictMu.Lock()
	evicted := p.evicted
	p.evicted = nil
	p.evictMu.Unlock()

	n := 0
	for _, key := range evicted {
		if _, ok := p.lru.Peek(key); ok {
			continue // re-added since
		}
		if p.unindexLocked(key) {
			n++
		}
	}
	return n
}

func (p *Pool[T]) unindexLocked(key types.Hash) bool {
	h, ok := p.held[key]
	if !ok {
		return false
	}
	for _, ik := range h.indexed {
		if set := p.byIndex[ik]; set != nil {
			delete(set, key)
			if len(set) == 0 {
				delete(p.byIndex, ik)
			}
		}
	}
	delete(p.held, key)
	return true
}

// Blocks holds blocks whose parent is unknown, indexed by parent hash.
type Blocks struct {
	*Pool[*block.Block]
}

// NewBlocks creates the orphan block pool.
func NewBlocks() *Blocks {
	return &Blocks{New("block", MaxBlocks, BlockTTL, func(blk *block.Block) []types.Hash {
		return []types.Hash{blk.Header.PrevHash}
	})}
}

// AddBlock buffers blk.
func (b *Blocks) AddBlock(blk *block.Block) bool {
	return b.Add(blk.Hash(), blk)
}

// TakeChildren removes and returns the buffered children of parent.
func (b *Blocks) TakeChildren(parent types.Hash) []*block.Block {
	return b.TakeIndexed(parent)
}

// Txs holds transactions spending outputs that are not yet known.
type Txs struct {
	*Pool[*tx.Transaction]
}

// NewTxs creates the orphan transaction pool.
func NewTxs() *Txs {
	return &Txs{New[*tx.Transaction]("tx", MaxTxs, TxTTL, nil)}
}

// AddTx buffers t.
func (o *Txs) AddTx(t *tx.Transaction) bool {
	return o.Add(t.Hash(), t)
}

// Promotable removes and returns the buffered transactions whose every
// input now satisfies has.
func (o *Txs) Promotable(has func(types.Outpoint) bool) []*tx.Transaction {
	return o.Take(func(t *tx.Transaction) bool {
		for _, in := range t.Inputs {
			if !has(in.PrevOut) {
				return false
			}
		}
		return true
	})
}
