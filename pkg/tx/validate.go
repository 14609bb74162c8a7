package tx

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/eggcore/pkg/crypto"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// Structural limits.
const (
	MaxInputs   = 1000
	MaxOutputs  = 1000
	MaxDataSize = 256
)

// Validation errors.
var (
	ErrNoInputs       = errors.New("transaction has no inputs")
	ErrNoOutputs      = errors.New("transaction has no outputs")
	ErrDuplicateInput = errors.New("duplicate input")
	ErrOutputOverflow = errors.New("output values overflow")
	ErrZeroOutput     = errors.New("output value is zero")
	ErrMissingPubKey  = errors.New("input missing public key")
	ErrMissingSig     = errors.New("input missing signature")
	ErrInvalidSig     = errors.New("invalid signature")
	ErrTooManyInputs  = errors.New("too many inputs")
	ErrTooManyOutputs = errors.New("too many outputs")
	ErrDataTooLarge   = errors.New("transaction data too large")
)

// Validate checks transaction structure.
// It does NOT check UTXO existence (that requires the UTXO set).
func (tx *Transaction) Validate() error {
	if len(tx.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(tx.Outputs) == 0 {
		return ErrNoOutputs
	}
	if len(tx.Inputs) > MaxInputs {
		return fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, len(tx.Inputs), MaxInputs)
	}
	if len(tx.Outputs) > MaxOutputs {
		return fmt.Errorf("%w: %d outputs, max %d", ErrTooManyOutputs, len(tx.Outputs), MaxOutputs)
	}
	if len(tx.Data) > MaxDataSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrDataTooLarge, len(tx.Data), MaxDataSize)
	}

	seen := make(map[types.Outpoint]struct{}, len(tx.Inputs))
	for i, in := range tx.Inputs {
		if _, dup := seen[in.PrevOut]; dup {
			return fmt.Errorf("input %d: %w", i, ErrDuplicateInput)
		}
		seen[in.PrevOut] = struct{}{}
	}

	if !tx.IsCoinbase() {
		for i, in := range tx.Inputs {
			if len(in.PubKey) == 0 {
				return fmt.Errorf("input %d: %w", i, ErrMissingPubKey)
			}
			if len(in.Signature) == 0 {
				return fmt.Errorf("input %d: %w", i, ErrMissingSig)
			}
		}
	}

	for i, out := range tx.Outputs {
		if out.Value == 0 {
			return fmt.Errorf("output %d: %w", i, ErrZeroOutput)
		}
	}
	if _, err := tx.TotalOutputValue(); err != nil {
		return err
	}
	return nil
}

// VerifySignatures checks every input signature against the txid.
// Coinbases have nothing to verify.
func (tx *Transaction) VerifySignatures() error {
	if tx.IsCoinbase() {
		return nil
	}
	hash := tx.Hash()
	for i, in := range tx.Inputs {
		if !crypto.VerifySignature(hash[:], in.Signature, in.PubKey) {
			return fmt.Errorf("input %d: %w", i, ErrInvalidSig)
		}
	}
	return nil
}
