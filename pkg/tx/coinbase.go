package tx

import (
	"encoding/binary"

	"github.com/Klingon-tech/eggcore/pkg/types"
)

// NewCoinbase builds the reward transaction of a block: one sentinel
// input and a single output paying value to addr. The height is written
// into Data so that every coinbase has a distinct txid.
func NewCoinbase(addr types.Address, value, height uint64, message string) *Transaction {
	data := binary.LittleEndian.AppendUint64(nil, height)
	data = append(data, message...)
	return &Transaction{
		Version: 1,
		Inputs:  []Input{{PrevOut: types.Outpoint{}}},
		Outputs: []Output{{Value: value, Address: addr}},
		Data:    data,
	}
}

// CoinbaseHeight returns the height committed in a coinbase's data.
func CoinbaseHeight(t *Transaction) (uint64, bool) {
	if !t.IsCoinbase() || len(t.Data) < 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(t.Data[:8]), true
}

// CoinbaseMessage returns the free-form text after the height.
func CoinbaseMessage(t *Transaction) string {
	if len(t.Data) < 8 {
		return ""
	}
	return string(t.Data[8:])
}
