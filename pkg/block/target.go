package block

import (
	"bytes"
	"encoding/binary"
	"math/big"
)

// Target is a 256-bit big-endian threshold. A header hash at or below it
// satisfies proof of work.
type Target [32]byte

// workNumerator is 2^512. Every compact target is below 2^249, so the
// quotient 2^512/(target+1) is distinct for distinct targets.
var workNumerator = new(big.Int).Lsh(big.NewInt(1), 512)

// BitsToTarget expands a compact difficulty encoding.
//
// The top byte is an exponent and the low 24 bits a mantissa. Exponents up
// to 3 shift the mantissa right into the last four bytes; larger exponents
// place the 4-byte big-endian mantissa word so that it ends exponent-3
// bytes before the end. Placements that fall outside the buffer yield the
// all-zero target.
func BitsToTarget(bits uint32) Target {
	var t Target
	exponent := int(bits >> 24)
	mantissa := bits & 0x00ffffff

	if exponent <= 3 {
		binary.BigEndian.PutUint32(t[28:32], mantissa>>(8*(3-exponent)))
		return t
	}

	start := 32 - (exponent - 3) - 4
	if start < 0 {
		return t
	}
	binary.BigEndian.PutUint32(t[start:start+4], mantissa)
	return t
}

// Big returns the target as an unsigned integer.
func (t Target) Big() *big.Int {
	return new(big.Int).SetBytes(t[:])
}

// IsZero reports whether no hash can satisfy the target except all zeros.
func (t Target) IsZero() bool {
	return t == Target{}
}

// WorkFromBits returns the expected work of a block at the given bits.
// Lower targets give strictly more work; the zero target gives 2^512.
func WorkFromBits(bits uint32) *big.Int {
	t := BitsToTarget(bits).Big()
	t.Add(t, big.NewInt(1))
	return t.Quo(workNumerator, t)
}

// VerifyPoW reports whether the header hash is at or below its target.
func VerifyPoW(h *Header) bool {
	if h == nil {
		return false
	}
	hash := h.Hash()
	target := BitsToTarget(h.Bits)
	return bytes.Compare(hash[:], target[:]) <= 0
}
