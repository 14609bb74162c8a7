package tx

import (
	"fmt"

	"github.com/Klingon-tech/eggcore/pkg/crypto"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{
		tx: &Transaction{Version: 1},
	}
}

// AddInput adds an input referencing a previous output.
func (b *Builder) AddInput(prevOut types.Outpoint) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, Input{PrevOut: prevOut})
	return b
}

// AddOutput pays value to addr.
func (b *Builder) AddOutput(value uint64, addr types.Address) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, Output{Value: value, Address: addr})
	return b
}

// SetData sets the auxiliary data.
func (b *Builder) SetData(data []byte) *Builder {
	b.tx.Data = append([]byte(nil), data...)
	return b
}

// Sign signs all inputs with one key (single-owner spending).
func (b *Builder) Sign(signer crypto.Signer) error {
	hash := b.tx.Hash()
	sig, err := signer.Sign(hash[:])
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	pubKey := signer.PublicKey()
	for i := range b.tx.Inputs {
		b.tx.Inputs[i].Signature = sig
		b.tx.Inputs[i].PubKey = pubKey
	}
	return nil
}

// Build returns the constructed transaction.
// Does NOT validate; call Validate separately.
func (b *Builder) Build() *Transaction {
	return b.tx
}
