package p2p

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/tx"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

func TestDecodeBlock(t *testing.T) {
	blk := block.NewBlock(&block.Header{Version: 1, Timestamp: 5, Bits: 0x1fffffff}, []*tx.Transaction{
		tx.NewCoinbase(types.Address{1}, 50, 1, "x"),
	})
	data, err := json.Marshal(blk)
	require.NoError(t, err)

	got, err := DecodeBlock(data)
	require.NoError(t, err)
	require.Equal(t, blk.Hash(), got.Hash())

	for name, raw := range map[string]string{
		"garbage":   "{nope",
		"no header": `{"transactions":[]}`,
		"null":      "null",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeBlock([]byte(raw))
			var pe *ProtocolError
			require.True(t, errors.As(err, &pe))
			require.Equal(t, "block", pe.Kind)
		})
	}
}

func TestDecodeTx(t *testing.T) {
	good := &tx.Transaction{
		Version: 1,
		Inputs:  []tx.Input{{PrevOut: types.Outpoint{TxID: types.Hash{1}}}},
		Outputs: []tx.Output{{Value: 1, Address: types.Address{2}}},
	}
	data, err := json.Marshal(good)
	require.NoError(t, err)
	got, err := DecodeTx(data)
	require.NoError(t, err)
	require.Equal(t, good.Hash(), got.Hash())

	_, err = DecodeTx([]byte(`{"version":1}`))
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)

	_, err = DecodeTx([]byte(`[1,2`))
	require.ErrorAs(t, err, &pe)
}

func FuzzDecodeBlock(f *testing.F) {
	f.Add([]byte(`{"header":{"version":1,"timestamp":1000},"transactions":[]}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"header":null}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		blk, err := DecodeBlock(data)
		if err != nil {
			return
		}
		blk.Validate()
		blk.Hash()
	})
}

func FuzzDecodeTx(f *testing.F) {
	f.Add([]byte(`{"inputs":[],"outputs":[]}`))
	f.Add([]byte(`null`))

	f.Fuzz(func(t *testing.T, data []byte) {
		got, err := DecodeTx(data)
		if err != nil {
			return
		}
		got.Hash()
		got.Validate()
	})
}
