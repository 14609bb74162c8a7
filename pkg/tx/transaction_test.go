package tx

import (
	"encoding/json"
	"testing"

	"github.com/Klingon-tech/eggcore/pkg/types"
)

func sampleTx() *Transaction {
	return &Transaction{
		Version: 1,
		Inputs:  []Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x01}, Index: 0}}},
		Outputs: []Output{{Value: 1000, Address: types.Address{0xaa}}},
	}
}

func TestTransaction_Hash_Deterministic(t *testing.T) {
	tx := sampleTx()
	if tx.Hash() != tx.Hash() {
		t.Error("Hash() should be deterministic")
	}
	if tx.Hash().IsZero() {
		t.Error("Hash() should not be zero")
	}
}

func TestTransaction_Hash_CoversContent(t *testing.T) {
	base := sampleTx().Hash()

	tests := []struct {
		name   string
		mutate func(*Transaction)
	}{
		{"version", func(tx *Transaction) { tx.Version = 2 }},
		{"input txid", func(tx *Transaction) { tx.Inputs[0].PrevOut.TxID[5] = 9 }},
		{"input index", func(tx *Transaction) { tx.Inputs[0].PrevOut.Index = 1 }},
		{"output value", func(tx *Transaction) { tx.Outputs[0].Value = 1001 }},
		{"output address", func(tx *Transaction) { tx.Outputs[0].Address[19] = 1 }},
		{"data", func(tx *Transaction) { tx.Data = []byte{0} }},
		{"extra output", func(tx *Transaction) {
			tx.Outputs = append(tx.Outputs, Output{Value: 1})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := sampleTx()
			tt.mutate(tx)
			if tx.Hash() == base {
				t.Errorf("changing %s should change the txid", tt.name)
			}
		})
	}
}

func TestTransaction_Hash_IgnoresWitness(t *testing.T) {
	tx := sampleTx()
	before := tx.Hash()
	tx.Inputs[0].Signature = []byte("some signature")
	tx.Inputs[0].PubKey = []byte("some key")
	if tx.Hash() != before {
		t.Error("signature and pubkey must not affect the txid")
	}
	if tx.Size() <= len(tx.SigningBytes()) {
		t.Error("Size should include witness bytes")
	}
}

func TestTransaction_WitnessHash_CoversWitness(t *testing.T) {
	tx := sampleTx()
	tx.Inputs[0].Signature = []byte{0xaa, 0xbb}
	tx.Inputs[0].PubKey = []byte{0x02, 0x01}
	base := tx.WitnessHash()
	if base == tx.Hash() {
		t.Error("witness hash should differ from the txid")
	}

	tests := []struct {
		name   string
		mutate func(*Transaction)
	}{
		{"signature", func(tx *Transaction) { tx.Inputs[0].Signature = []byte{0xde, 0xad} }},
		{"pubkey", func(tx *Transaction) { tx.Inputs[0].PubKey = []byte{0x03, 0x01} }},
		// Length prefixes keep the split between the two fields significant.
		{"moved byte", func(tx *Transaction) {
			tx.Inputs[0].Signature = []byte{0xaa, 0xbb, 0x02}
			tx.Inputs[0].PubKey = []byte{0x01}
		}},
		{"output value", func(tx *Transaction) { tx.Outputs[0].Value = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := sampleTx()
			c.Inputs[0].Signature = []byte{0xaa, 0xbb}
			c.Inputs[0].PubKey = []byte{0x02, 0x01}
			tt.mutate(c)
			if c.WitnessHash() == base {
				t.Errorf("changing %s should change the witness hash", tt.name)
			}
		})
	}
}

func TestTransaction_IsCoinbase(t *testing.T) {
	cb := NewCoinbase(types.Address{1}, 50, 7, "hi")
	if !cb.IsCoinbase() {
		t.Error("NewCoinbase should produce a coinbase")
	}
	if sampleTx().IsCoinbase() {
		t.Error("ordinary tx is not a coinbase")
	}

	// The sentinel is the zero txid; the index does not matter.
	odd := &Transaction{Inputs: []Input{{PrevOut: types.Outpoint{Index: 3}}}}
	if !odd.IsCoinbase() {
		t.Error("zero txid with non-zero index is still the sentinel")
	}

	two := &Transaction{Inputs: []Input{{}, {PrevOut: types.Outpoint{TxID: types.Hash{1}}}}}
	if two.IsCoinbase() {
		t.Error("a coinbase has exactly one input")
	}
}

func TestCoinbase_HeightMakesIDUnique(t *testing.T) {
	a := NewCoinbase(types.Address{1}, 50, 1, "msg")
	b := NewCoinbase(types.Address{1}, 50, 2, "msg")
	if a.Hash() == b.Hash() {
		t.Error("coinbases at different heights must have different txids")
	}
	if h, ok := CoinbaseHeight(b); !ok || h != 2 {
		t.Errorf("CoinbaseHeight = %d,%v want 2,true", h, ok)
	}
	if CoinbaseMessage(a) != "msg" {
		t.Errorf("CoinbaseMessage = %q", CoinbaseMessage(a))
	}
	if _, ok := CoinbaseHeight(sampleTx()); ok {
		t.Error("ordinary tx has no coinbase height")
	}
}

func TestTransaction_JSONRoundtrip(t *testing.T) {
	tx := sampleTx()
	tx.Inputs[0].Signature = []byte{1, 2, 3}
	tx.Inputs[0].PubKey = []byte{4, 5}
	tx.Data = []byte("aux")

	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Transaction
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Hash() != tx.Hash() {
		t.Error("txid changed across JSON")
	}
	if string(got.Inputs[0].Signature) != string(tx.Inputs[0].Signature) {
		t.Error("signature lost across JSON")
	}
}

func TestTotalOutputValue_Overflow(t *testing.T) {
	tx := sampleTx()
	tx.Outputs = []Output{{Value: ^uint64(0)}, {Value: 1}}
	if _, err := tx.TotalOutputValue(); err == nil {
		t.Error("expected overflow")
	}
}
