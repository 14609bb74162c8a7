// Package block defines block types, the compact target model and
// structural validation.
package block

import (
	"github.com/Klingon-tech/eggcore/pkg/tx"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// Block represents a block in the chain.
type Block struct {
	Header       *Header           `json:"header"`
	Transactions []*tx.Transaction `json:"transactions"`
}

// NewBlock creates a new block with the given header and transactions.
func NewBlock(header *Header, txs []*tx.Transaction) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

// Hash returns the block header hash.
func (b *Block) Hash() types.Hash {
	if b.Header == nil {
		return types.Hash{}
	}
	return b.Header.Hash()
}

// MerkleLeaves returns the witness hashes of the block's transactions in
// order. The Merkle root covers signatures, so a block's hash pins its
// exact contents.
func (b *Block) MerkleLeaves() []types.Hash {
	hashes := make([]types.Hash, len(b.Transactions))
	for i, t := range b.Transactions {
		hashes[i] = t.WitnessHash()
	}
	return hashes
}

// Coinbase returns the first transaction, or nil for an empty block.
func (b *Block) Coinbase() *tx.Transaction {
	if len(b.Transactions) == 0 {
		return nil
	}
	return b.Transactions[0]
}

// Size returns the encoded size of the block in bytes.
func (b *Block) Size() int {
	n := HeaderSize
	for _, t := range b.Transactions {
		n += t.Size()
	}
	return n
}
