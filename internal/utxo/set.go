// Package utxo manages the UTXO set, overlay views and per-block undo data.
package utxo

import (
	"errors"

	"github.com/Klingon-tech/eggcore/pkg/tx"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// ErrNotFound is returned by Get when the outpoint is not unspent.
var ErrNotFound = errors.New("utxo not found")

// UTXO represents an unspent transaction output.
type UTXO struct {
	Outpoint types.Outpoint `json:"outpoint"`
	Value    uint64         `json:"value"`
	Address  types.Address  `json:"address"`
	Height   uint64         `json:"height"`
	Coinbase bool           `json:"coinbase"`
}

// Set is the interface for UTXO storage.
type Set interface {
	Get(outpoint types.Outpoint) (*UTXO, error)
	Put(utxo *UTXO) error
	Delete(outpoint types.Outpoint) error
	Has(outpoint types.Outpoint) (bool, error)
	ForEach(fn func(*UTXO) error) error
}

// OutputsOf returns the UTXO records created by t at the given height.
func OutputsOf(t *tx.Transaction, height uint64) []*UTXO {
	txid := t.Hash()
	coinbase := t.IsCoinbase()
	out := make([]*UTXO, len(t.Outputs))
	for i, o := range t.Outputs {
		out[i] = &UTXO{
			Outpoint: types.Outpoint{TxID: txid, Index: uint32(i)},
			Value:    o.Value,
			Address:  o.Address,
			Height:   height,
			Coinbase: coinbase,
		}
	}
	return out
}
