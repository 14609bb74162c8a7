package types

import (
	"bytes"
	"strings"
	"testing"
)

func TestOutpoint_IsZero(t *testing.T) {
	var zero Outpoint
	if !zero.IsZero() {
		t.Error("zero-value Outpoint should be zero")
	}
	if (Outpoint{TxID: Hash{0x01}}).IsZero() {
		t.Error("Outpoint with non-zero TxID should not be zero")
	}
	if (Outpoint{Index: 1}).IsZero() {
		t.Error("Outpoint with non-zero Index should not be zero")
	}
}

func TestOutpoint_String(t *testing.T) {
	o := Outpoint{TxID: Hash{0xab}, Index: 3}
	s := o.String()
	if !strings.HasPrefix(s, "ab") {
		t.Errorf("String() should start with txid hex, got %s", s)
	}
	if !strings.HasSuffix(s, ":3") {
		t.Errorf("String() should end with ':3', got %s", s)
	}
}

func TestOutpoint_Key(t *testing.T) {
	o := Outpoint{TxID: Hash{0x01, 0x02}, Index: 258}
	k := o.Key()
	if len(k) != OutpointSize {
		t.Fatalf("Key() length = %d, want %d", len(k), OutpointSize)
	}
	if !bytes.Equal(k[HashSize:], []byte{0, 0, 1, 2}) {
		t.Errorf("index bytes = %x, want 00000102", k[HashSize:])
	}

	back, err := OutpointFromKey(k)
	if err != nil {
		t.Fatalf("OutpointFromKey: %v", err)
	}
	if back != o {
		t.Errorf("got %s, want %s", back, o)
	}

	if _, err := OutpointFromKey(k[:10]); err == nil {
		t.Error("short key should fail")
	}

	// Keys of one transaction sort by index.
	a := Outpoint{TxID: o.TxID, Index: 2}.Key()
	b := Outpoint{TxID: o.TxID, Index: 10}.Key()
	if bytes.Compare(a, b) >= 0 {
		t.Error("index 2 should sort before index 10")
	}
}
