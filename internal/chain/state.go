package chain

import (
	"math/big"

	"github.com/Klingon-tech/eggcore/internal/utxo"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// State holds the current chain tip state.
type State struct {
	Height    uint64
	TipHash   types.Hash
	TotalWork *big.Int
}

// BlockMeta is the chain's record of an accepted block. It is written
// once and never changed.
type BlockMeta struct {
	Hash      types.Hash `json:"hash"`
	Parent    types.Hash `json:"parent"`
	Height    uint64     `json:"height"`
	TotalWork *big.Int   `json:"total_work"`
	Undo      *utxo.Undo `json:"undo"`
}

func (m *BlockMeta) state() State {
	return State{
		Height:    m.Height,
		TipHash:   m.Hash,
		TotalWork: new(big.Int).Set(m.TotalWork),
	}
}
