// Package tx defines transaction types and validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/Klingon-tech/eggcore/pkg/crypto"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// Transaction moves value from previous outputs to new ones.
type Transaction struct {
	Version uint32   `json:"version"`
	Inputs  []Input  `json:"inputs"`
	Outputs []Output `json:"outputs"`
	// Data is opaque auxiliary bytes. Coinbases carry the block height
	// and a message here.
	Data []byte `json:"-"`
}

// txJSON carries Data as hex; the rest of the fields marshal as usual.
type txJSON struct {
	Version uint32   `json:"version"`
	Inputs  []Input  `json:"inputs"`
	Outputs []Output `json:"outputs"`
	Data    string   `json:"data,omitempty"`
}

// MarshalJSON encodes the transaction with hex-encoded data.
func (tx *Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(txJSON{
		Version: tx.Version,
		Inputs:  tx.Inputs,
		Outputs: tx.Outputs,
		Data:    hex.EncodeToString(tx.Data),
	})
}

// UnmarshalJSON decodes a transaction with hex-encoded data.
func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var j txJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	tx.Version = j.Version
	tx.Inputs = j.Inputs
	tx.Outputs = j.Outputs
	tx.Data = nil
	if j.Data != "" {
		b, err := hex.DecodeString(j.Data)
		if err != nil {
			return fmt.Errorf("decode tx data: %w", err)
		}
		tx.Data = b
	}
	return nil
}

// Input references a UTXO being spent.
type Input struct {
	PrevOut   types.Outpoint `json:"prevout"`
	Signature []byte         `json:"signature"`
	PubKey    []byte         `json:"pubkey"`
}

// inputJSON is the JSON representation of Input with hex-encoded byte fields.
type inputJSON struct {
	PrevOut   types.Outpoint `json:"prevout"`
	Signature string         `json:"signature,omitempty"`
	PubKey    string         `json:"pubkey,omitempty"`
}

// MarshalJSON encodes the input with hex-encoded signature and pubkey.
func (in Input) MarshalJSON() ([]byte, error) {
	return json.Marshal(inputJSON{
		PrevOut:   in.PrevOut,
		Signature: hex.EncodeToString(in.Signature),
		PubKey:    hex.EncodeToString(in.PubKey),
	})
}

// UnmarshalJSON decodes an input with hex-encoded signature and pubkey.
func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.PrevOut = j.PrevOut
	in.Signature, in.PubKey = nil, nil
	if j.Signature != "" {
		b, err := hex.DecodeString(j.Signature)
		if err != nil {
			return err
		}
		in.Signature = b
	}
	if j.PubKey != "" {
		b, err := hex.DecodeString(j.PubKey)
		if err != nil {
			return err
		}
		in.PubKey = b
	}
	return nil
}

// Output pays Value to the holder of the key behind Address.
type Output struct {
	Value   uint64        `json:"value"`
	Address types.Address `json:"address"`
}

// Hash computes the transaction ID (BLAKE3 hash of the signing bytes).
// Signatures and public keys are excluded so that they can sign the ID.
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// SigningBytes returns the canonical encoding used for the txid.
// Format: version(4) | input_count(4) | [txid(32) index(4)]... |
// output_count(4) | [value(8) address(20)]... | data_len(4) | data
func (tx *Transaction) SigningBytes() []byte {
	size := 4 + 4 + len(tx.Inputs)*types.OutpointSize + 4 +
		len(tx.Outputs)*(8+types.AddressSize) + 4 + len(tx.Data)
	buf := make([]byte, 0, size)

	buf = binary.LittleEndian.AppendUint32(buf, tx.Version)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, in.PrevOut.TxID[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.PrevOut.Index)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Value)
		buf = append(buf, out.Address[:]...)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Data)))
	buf = append(buf, tx.Data...)
	return buf
}

// WitnessHash commits to the full transaction, signatures and public keys
// included. Blocks build their Merkle root from it.
func (tx *Transaction) WitnessHash() types.Hash {
	return crypto.Hash(tx.WitnessBytes())
}

// WitnessBytes appends every input's signature and public key to the
// signing bytes, each prefixed with its length:
// signing_bytes | [sig_len(4) sig pubkey_len(4) pubkey]...
func (tx *Transaction) WitnessBytes() []byte {
	buf := tx.SigningBytes()
	for _, in := range tx.Inputs {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(in.Signature)))
		buf = append(buf, in.Signature...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(in.PubKey)))
		buf = append(buf, in.PubKey...)
	}
	return buf
}

// Size approximates the serialized size: signing bytes plus witness data.
func (tx *Transaction) Size() int {
	n := len(tx.SigningBytes())
	for _, in := range tx.Inputs {
		n += len(in.Signature) + len(in.PubKey)
	}
	return n
}

// IsCoinbase reports whether tx has exactly one input whose referenced
// transaction id is the zero sentinel.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].PrevOut.TxID.IsZero()
}

// TotalOutputValue returns the sum of all output values.
// Returns an error if the sum overflows uint64.
func (tx *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if total > math.MaxUint64-out.Value {
			return 0, ErrOutputOverflow
		}
		total += out.Value
	}
	return total, nil
}
