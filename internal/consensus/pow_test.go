package consensus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

func testHeader(bits uint32) *block.Header {
	return &block.Header{
		Version:    1,
		PrevHash:   types.Hash{},
		MerkleRoot: types.Hash{1, 2, 3},
		Timestamp:  1000,
		Bits:       bits,
	}
}

func TestNewPoW_ZeroTarget(t *testing.T) {
	_, err := NewPoW(0, 1)
	if !errors.Is(err, ErrZeroTarget) {
		t.Fatalf("NewPoW(0) err = %v, want ErrZeroTarget", err)
	}
}

func TestPoW_SealAndVerify(t *testing.T) {
	for _, threads := range []int{0, 1, 4} {
		pow, err := NewPoW(0x1fffffff, threads)
		if err != nil {
			t.Fatal(err)
		}
		h := testHeader(0)
		if err := pow.Prepare(h); err != nil {
			t.Fatal(err)
		}
		if h.Bits != 0x1fffffff {
			t.Fatalf("Prepare bits = %08x", h.Bits)
		}
		if err := pow.Seal(context.Background(), h); err != nil {
			t.Fatalf("threads=%d Seal: %v", threads, err)
		}
		if err := pow.VerifyHeader(h); err != nil {
			t.Fatalf("threads=%d VerifyHeader after Seal: %v", threads, err)
		}
	}
}

func TestPoW_VerifyHeader_Rejects(t *testing.T) {
	pow, _ := NewPoW(0x1fffffff, 1)
	h := testHeader(0x1fffffff)
	for block.VerifyPoW(h) {
		h.Nonce++
	}
	if err := pow.VerifyHeader(h); !errors.Is(err, ErrInsufficientWork) {
		t.Fatalf("err = %v, want ErrInsufficientWork", err)
	}
}

func TestPoW_SealCancelled(t *testing.T) {
	pow, _ := NewPoW(0x1fffffff, 2)
	// A target no hash will realistically meet.
	h := testHeader(0x03000001)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := pow.Seal(ctx, h); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestPoW_SealZeroTarget(t *testing.T) {
	pow, _ := NewPoW(0x1fffffff, 1)
	if err := pow.Seal(context.Background(), testHeader(0)); !errors.Is(err, ErrZeroTarget) {
		t.Fatalf("err = %v, want ErrZeroTarget", err)
	}
}

func TestPoW_ImplementsEngine(t *testing.T) {
	var _ Engine = (*PoW)(nil)
}
