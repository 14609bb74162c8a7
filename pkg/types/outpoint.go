package types

import (
	"encoding/binary"
	"fmt"
)

// OutpointSize is the length of an encoded outpoint.
const OutpointSize = HashSize + 4

// Outpoint references a specific output in a transaction.
type Outpoint struct {
	TxID  Hash   `json:"txid"`
	Index uint32 `json:"index"`
}

// IsZero returns true if the outpoint has a zero TxID and zero index.
func (o Outpoint) IsZero() bool {
	return o.TxID.IsZero() && o.Index == 0
}

// Key returns txid || index (big-endian). Keys of one transaction sort
// by output index.
func (o Outpoint) Key() []byte {
	k := make([]byte, OutpointSize)
	copy(k, o.TxID[:])
	binary.BigEndian.PutUint32(k[HashSize:], o.Index)
	return k
}

// OutpointFromKey decodes an outpoint produced by Key.
func OutpointFromKey(k []byte) (Outpoint, error) {
	if len(k) != OutpointSize {
		return Outpoint{}, fmt.Errorf("outpoint key must be %d bytes, got %d", OutpointSize, len(k))
	}
	var o Outpoint
	copy(o.TxID[:], k[:HashSize])
	o.Index = binary.BigEndian.Uint32(k[HashSize:])
	return o, nil
}

// String returns "txid:index" in hex.
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Index)
}
