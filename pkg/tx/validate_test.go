package tx

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/eggcore/pkg/crypto"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

func signedTx(t *testing.T, key *crypto.PrivateKey, prev types.Outpoint, value uint64) *Transaction {
	t.Helper()
	b := NewBuilder().AddInput(prev).AddOutput(value, types.Address{0xbb})
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return b.Build()
}

func TestValidate(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	prev := types.Outpoint{TxID: types.Hash{0x01}}

	tests := []struct {
		name    string
		build   func() *Transaction
		wantErr error
	}{
		{"valid signed", func() *Transaction { return signedTx(t, key, prev, 10) }, nil},
		{"valid coinbase", func() *Transaction { return NewCoinbase(types.Address{1}, 5, 1, "") }, nil},
		{"no inputs", func() *Transaction {
			return &Transaction{Outputs: []Output{{Value: 1}}}
		}, ErrNoInputs},
		{"no outputs", func() *Transaction {
			tx := signedTx(t, key, prev, 10)
			tx.Outputs = nil
			return tx
		}, ErrNoOutputs},
		{"duplicate input", func() *Transaction {
			tx := signedTx(t, key, prev, 10)
			tx.Inputs = append(tx.Inputs, tx.Inputs[0])
			return tx
		}, ErrDuplicateInput},
		{"missing pubkey", func() *Transaction {
			tx := signedTx(t, key, prev, 10)
			tx.Inputs[0].PubKey = nil
			return tx
		}, ErrMissingPubKey},
		{"missing sig", func() *Transaction {
			tx := signedTx(t, key, prev, 10)
			tx.Inputs[0].Signature = nil
			return tx
		}, ErrMissingSig},
		{"zero output", func() *Transaction { return signedTx(t, key, prev, 0) }, ErrZeroOutput},
		{"overflow", func() *Transaction {
			tx := signedTx(t, key, prev, 10)
			tx.Outputs = []Output{{Value: ^uint64(0)}, {Value: 2}}
			return tx
		}, ErrOutputOverflow},
		{"data too large", func() *Transaction {
			tx := signedTx(t, key, prev, 10)
			tx.Data = make([]byte, MaxDataSize+1)
			return tx
		}, ErrDataTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build().Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifySignatures(t *testing.T) {
	key, _ := crypto.GenerateKey()
	tx := signedTx(t, key, types.Outpoint{TxID: types.Hash{0x02}}, 10)
	if err := tx.VerifySignatures(); err != nil {
		t.Fatalf("VerifySignatures: %v", err)
	}

	tx.Outputs[0].Value = 11
	if err := tx.VerifySignatures(); !errors.Is(err, ErrInvalidSig) {
		t.Fatalf("mutated tx: got %v, want ErrInvalidSig", err)
	}

	if err := NewCoinbase(types.Address{}, 1, 0, "").VerifySignatures(); err != nil {
		t.Fatalf("coinbase has nothing to verify: %v", err)
	}
}
