package tx

import (
	"errors"
	"fmt"
	"math"

	"github.com/Klingon-tech/eggcore/pkg/crypto"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// UTXO-aware validation errors.
var (
	ErrInputNotFound     = errors.New("input UTXO not found")
	ErrInsufficientInput = errors.New("inputs below outputs")
	ErrInputOverflow     = errors.New("input values overflow")
	ErrOwnerMismatch     = errors.New("pubkey does not own input")
	ErrCoinbaseInPool    = errors.New("coinbase is only valid inside a block")
)

// UTXOProvider provides read-only access to spendable outputs.
type UTXOProvider interface {
	LookupUTXO(op types.Outpoint) (value uint64, owner types.Address, ok bool)
}

// ValidateWithUTXOs validates an ordinary transaction against a UTXO view:
// every input must resolve, be owned by its public key and carry a valid
// signature, and the inputs must cover the outputs. It returns the fee.
func (tx *Transaction) ValidateWithUTXOs(provider UTXOProvider) (uint64, error) {
	if tx.IsCoinbase() {
		return 0, ErrCoinbaseInPool
	}
	if err := tx.Validate(); err != nil {
		return 0, err
	}

	var totalInput uint64
	for i, in := range tx.Inputs {
		value, owner, ok := provider.LookupUTXO(in.PrevOut)
		if !ok {
			return 0, fmt.Errorf("input %d (%s): %w", i, in.PrevOut, ErrInputNotFound)
		}
		if crypto.AddressFromPubKey(in.PubKey) != owner {
			return 0, fmt.Errorf("input %d: %w", i, ErrOwnerMismatch)
		}
		if totalInput > math.MaxUint64-value {
			return 0, fmt.Errorf("input %d: %w", i, ErrInputOverflow)
		}
		totalInput += value
	}

	if err := tx.VerifySignatures(); err != nil {
		return 0, err
	}

	totalOutput, err := tx.TotalOutputValue()
	if err != nil {
		return 0, err
	}
	if totalInput < totalOutput {
		return 0, fmt.Errorf("%w: inputs=%d outputs=%d", ErrInsufficientInput, totalInput, totalOutput)
	}
	return totalInput - totalOutput, nil
}
