// Package mempool manages pending transactions waiting for block inclusion.
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Klingon-tech/eggcore/internal/metrics"
	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/tx"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// Mempool errors.
var (
	ErrAlreadyExists = errors.New("transaction already in mempool")
	ErrConflict      = errors.New("transaction conflicts with existing mempool entry")
	ErrPoolFull      = errors.New("mempool is full")
	ErrValidation    = errors.New("transaction failed validation")
	ErrFeeTooLow     = errors.New("transaction fee below minimum")
	ErrMissingInputs = errors.New("transaction spends unknown outputs")
)

// DefaultMaxSize is the default transaction capacity.
const DefaultMaxSize = 5000

// entry wraps a transaction with its fee and metadata.
type entry struct {
	tx     *tx.Transaction
	txHash types.Hash
	fee    uint64
}

// less orders entries by fee descending, then txid ascending.
func (e *entry) less(o *entry) bool {
	if e.fee != o.fee {
		return e.fee > o.fee
	}
	return e.txHash.Compare(o.txHash) < 0
}

// Pool holds unconfirmed transactions. Entries only spend confirmed
// outputs of the best chain, never each other's outputs, so any
// conflict-free subset is valid in one block.
//
// Add resolves inputs through the UTXO provider before taking the pool
// lock. The chain calls into the pool while holding its own lock, so the
// pool must never wait on the chain with its lock held.
type Pool struct {
	mu      sync.RWMutex
	txs     map[types.Hash]*entry         // txHash -> entry
	spends  map[types.Outpoint]types.Hash // outpoint -> txHash (conflict index)
	maxSize int
	policy  *Policy
	utxos   tx.UTXOProvider
	// gen counts UTXO set changes seen through RemoveConfirmed and
	// Revalidate. Add inserts only if it is unchanged since validation.
	gen uint64
}

// New creates a new mempool with the given UTXO provider and max size.
func New(utxos tx.UTXOProvider, maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Pool{
		txs:     make(map[types.Hash]*entry),
		spends:  make(map[types.Outpoint]types.Hash),
		maxSize: maxSize,
		policy:  DefaultPolicy(),
		utxos:   utxos,
	}
}

// SetPolicy replaces the acceptance policy.
func (p *Pool) SetPolicy(policy *Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = policy
}

// Add validates and adds a transaction to the mempool.
// Returns the computed fee. Rejects duplicates and double-spend conflicts.
func (p *Pool) Add(transaction *tx.Transaction) (uint64, error) {
	fee, err := p.add(transaction)
	metrics.ObserveMempoolAdmission(err)
	return fee, err
}

func (p *Pool) add(transaction *tx.Transaction) (uint64, error) {
	txHash := transaction.Hash()
	if p.Has(txHash) {
		return 0, ErrAlreadyExists
	}

	for {
		p.mu.RLock()
		policy, gen := p.policy, p.gen
		p.mu.RUnlock()
		if err := policy.Check(transaction); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrValidation, err)
		}

		// UTXO-aware validation, outside the pool lock.
		fee, err := transaction.ValidateWithUTXOs(p.utxos)
		if errors.Is(err, tx.ErrInputNotFound) {
			return 0, fmt.Errorf("%w: %v", ErrMissingInputs, err)
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if fee < policy.MinFee {
			return 0, fmt.Errorf("%w: got %d, need %d", ErrFeeTooLow, fee, policy.MinFee)
		}

		inserted, err := p.insert(transaction, txHash, fee, gen)
		if err != nil {
			return 0, err
		}
		if inserted {
			return fee, nil
		}
		// The UTXO set moved while we validated; check again.
	}
}

// insert adds a validated transaction unless the UTXO set changed since
// generation gen was read, in which case it reports false.
func (p *Pool) insert(transaction *tx.Transaction, txHash types.Hash, fee uint64, gen uint64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gen != gen {
		return false, nil
	}
	// Re-check under the lock; another Add may have raced us.
	if _, exists := p.txs[txHash]; exists {
		return false, ErrAlreadyExists
	}
	for _, in := range transaction.Inputs {
		if conflictHash, exists := p.spends[in.PrevOut]; exists {
			return false, fmt.Errorf("%w: input %s already spent by %s", ErrConflict, in.PrevOut, conflictHash.Short())
		}
	}

	e := &entry{tx: transaction, txHash: txHash, fee: fee}

	// Check pool capacity: evict the lowest fee if the new tx pays more.
	if len(p.txs) >= p.maxSize {
		lowest := p.lowestLocked()
		if lowest == nil || !e.less(lowest) {
			return false, ErrPoolFull
		}
		p.removeLocked(lowest.txHash)
	}

	p.txs[txHash] = e
	for _, in := range transaction.Inputs {
		p.spends[in.PrevOut] = txHash
	}
	metrics.SetMempoolSize(len(p.txs))
	return true, nil
}

// Remove removes a transaction from the mempool by hash.
func (p *Pool) Remove(txHash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(txHash)
	metrics.SetMempoolSize(len(p.txs))
}

func (p *Pool) removeLocked(txHash types.Hash) {
	e, exists := p.txs[txHash]
	if !exists {
		return
	}
	for _, in := range e.tx.Inputs {
		delete(p.spends, in.PrevOut)
	}
	delete(p.txs, txHash)
}

// RemoveConfirmed drops the transactions of a connected block, plus any
// pooled transaction that spends an output the block consumed. It
// returns the fees of the confirmed transactions that were pooled.
func (p *Pool) RemoveConfirmed(blk *block.Block) []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++

	var fees []uint64
	for _, t := range blk.Transactions {
		if t.IsCoinbase() {
			continue
		}
		h := t.Hash()
		if e, ok := p.txs[h]; ok {
			fees = append(fees, e.fee)
			p.removeLocked(h)
		}
		for _, in := range t.Inputs {
			if other, ok := p.spends[in.PrevOut]; ok {
				p.removeLocked(other)
			}
		}
	}
	metrics.SetMempoolSize(len(p.txs))
	return fees
}

// Revalidate drops entries whose inputs no longer resolve, as happens
// after a reorg disconnects the block that created them. It returns the
// number of entries removed.
func (p *Pool) Revalidate() int {
	p.mu.RLock()
	entries := make([]*entry, 0, len(p.txs))
	for _, e := range p.txs {
		entries = append(entries, e)
	}
	p.mu.RUnlock()

	var stale []types.Hash
	for _, e := range entries {
		for _, in := range e.tx.Inputs {
			if _, _, ok := p.utxos.LookupUTXO(in.PrevOut); !ok {
				stale = append(stale, e.txHash)
				break
			}
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	for _, h := range stale {
		p.removeLocked(h)
	}
	metrics.SetMempoolSize(len(p.txs))
	return len(stale)
}

// Has checks if a transaction exists in the mempool.
func (p *Pool) Has(txHash types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.txs[txHash]
	return exists
}

// IsSpent reports whether a pooled transaction spends op.
func (p *Pool) IsSpent(op types.Outpoint) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, spent := p.spends[op]
	return spent
}

// Get retrieves a transaction from the mempool.
func (p *Pool) Get(txHash types.Hash) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.txs[txHash]
	if !exists {
		return nil
	}
	return e.tx
}

// GetFee returns the fee for a transaction in the mempool (0 if not found).
func (p *Pool) GetFee(txHash types.Hash) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.txs[txHash]
	if !exists {
		return 0
	}
	return e.fee
}

// Count returns the number of transactions in the mempool.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// Hashes returns the hashes of all transactions in the mempool.
func (p *Pool) Hashes() []types.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	hashes := make([]types.Hash, 0, len(p.txs))
	for h := range p.txs {
		hashes = append(hashes, h)
	}
	return hashes
}

// FeeList returns the fee of every pooled transaction.
func (p *Pool) FeeList() []uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fees := make([]uint64, 0, len(p.txs))
	for _, e := range p.txs {
		fees = append(fees, e.fee)
	}
	return fees
}

// lowestLocked returns the entry that sorts last. Must be called with
// p.mu held.
func (p *Pool) lowestLocked() *entry {
	var lowest *entry
	for _, e := range p.txs {
		if lowest == nil || lowest.less(e) {
			lowest = e
		}
	}
	return lowest
}

// sortedLocked returns all entries, highest fee first.
func (p *Pool) sortedLocked() []*entry {
	entries := make([]*entry, 0, len(p.txs))
	for _, e := range p.txs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].less(entries[j])
	})
	return entries
}

// SelectForBlock returns up to limit transactions, highest fee first with
// ties broken by txid, together with their total fee.
func (p *Pool) SelectForBlock(limit int) ([]*tx.Transaction, uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := p.sortedLocked()
	if limit > len(entries) {
		limit = len(entries)
	}

	result := make([]*tx.Transaction, limit)
	var fees uint64
	for i := 0; i < limit; i++ {
		result[i] = entries[i].tx
		fees += entries[i].fee
	}
	return result, fees
}
