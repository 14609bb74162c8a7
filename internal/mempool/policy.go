package mempool

import (
	"fmt"

	"github.com/Klingon-tech/eggcore/pkg/tx"
)

// DefaultMaxTxSize is the maximum transaction size in bytes.
const DefaultMaxTxSize = 100_000

// Policy defines transaction acceptance rules.
type Policy struct {
	MaxTxSize int    // Maximum encoded transaction size.
	MinFee    uint64 // Minimum absolute fee in base units.
}

// DefaultPolicy returns a policy with sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxTxSize: DefaultMaxTxSize,
	}
}

// Check validates a transaction against policy rules.
// This is separate from consensus validation: policy rules can vary per
// node.
func (p *Policy) Check(transaction *tx.Transaction) error {
	if transaction.IsCoinbase() {
		return tx.ErrCoinbaseInPool
	}
	size := transaction.Size()
	if p.MaxTxSize > 0 && size > p.MaxTxSize {
		return fmt.Errorf("transaction too large: %d bytes, max %d", size, p.MaxTxSize)
	}
	return nil
}
