package block

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/eggcore/pkg/crypto"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// HeaderSize is the length of the canonical header encoding.
const HeaderSize = 4 + types.HashSize + types.HashSize + 8 + 4 + 8

// Header contains block metadata.
type Header struct {
	Version    uint32     `json:"version"`
	PrevHash   types.Hash `json:"prev_hash"`
	MerkleRoot types.Hash `json:"merkle_root"`
	Timestamp  uint64     `json:"timestamp"`
	Bits       uint32     `json:"bits"`
	Nonce      uint64     `json:"nonce"`
}

// Hash computes the block header hash over every field.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.Encode())
}

// Encode returns the canonical header bytes.
// Format: version(4) | prev_hash(32) | merkle_root(32) | timestamp(8) | bits(4) | nonce(8)
func (h *Header) Encode() []byte {
	buf := make([]byte, 0, HeaderSize)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.LittleEndian.AppendUint32(buf, h.Bits)
	buf = binary.LittleEndian.AppendUint64(buf, h.Nonce)
	return buf
}

// DecodeHeader parses the canonical header encoding.
func DecodeHeader(b []byte) (*Header, error) {
	if len(b) != HeaderSize {
		return nil, fmt.Errorf("header: invalid length %d, want %d", len(b), HeaderSize)
	}
	h := &Header{}
	h.Version = binary.LittleEndian.Uint32(b[0:4])
	copy(h.PrevHash[:], b[4:36])
	copy(h.MerkleRoot[:], b[36:68])
	h.Timestamp = binary.LittleEndian.Uint64(b[68:76])
	h.Bits = binary.LittleEndian.Uint32(b[76:80])
	h.Nonce = binary.LittleEndian.Uint64(b[80:88])
	return h, nil
}
