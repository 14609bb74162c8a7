package consensus

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/crypto"
)

// PoW errors.
var (
	ErrInsufficientWork = errors.New("hash does not meet difficulty target")
	ErrZeroTarget       = errors.New("bits expand to a zero target")
	ErrNonceExhausted   = errors.New("nonce space exhausted")
)

// nonceOffset is where the nonce starts in the header encoding.
const nonceOffset = block.HeaderSize - 8

// PoW implements proof-of-work consensus with a fixed compact target.
type PoW struct {
	// Bits is the compact target new blocks are mined at.
	Bits uint32

	// Threads controls the number of parallel nonce searches.
	// 0 or 1 = single-threaded. Each goroutine searches a strided
	// partition of the nonce space.
	Threads int
}

// NewPoW creates a new PoW engine.
func NewPoW(bits uint32, threads int) (*PoW, error) {
	if block.BitsToTarget(bits).IsZero() {
		return nil, fmt.Errorf("%w: %08x", ErrZeroTarget, bits)
	}
	return &PoW{Bits: bits, Threads: threads}, nil
}

// VerifyHeader checks that the header hash meets its stated target.
func (p *PoW) VerifyHeader(header *block.Header) error {
	if !block.VerifyPoW(header) {
		return ErrInsufficientWork
	}
	return nil
}

// Prepare sets the header's bits for mining.
func (p *PoW) Prepare(header *block.Header) error {
	header.Bits = p.Bits
	return nil
}

// Seal searches nonces until the header hash meets the target in
// header.Bits. When the context is cancelled, mining stops and ctx.Err()
// is returned.
func (p *PoW) Seal(ctx context.Context, header *block.Header) error {
	if header == nil {
		return fmt.Errorf("nil header")
	}
	target := block.BitsToTarget(header.Bits)
	if target.IsZero() {
		return fmt.Errorf("%w: %08x", ErrZeroTarget, header.Bits)
	}

	threads := p.Threads
	if threads < 1 {
		threads = 1
	}

	// Each goroutine owns a copy of the encoding and only rewrites the
	// trailing nonce.
	prefix := header.Encode()
	found := make(chan uint64, 1)
	errFound := errors.New("found")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < threads; i++ {
		start, stride := uint64(i), uint64(threads)
		g.Go(func() error {
			buf := append([]byte(nil), prefix...)
			for nonce := start; ; nonce += stride {
				// Check cancellation every ~65536 iterations per goroutine.
				if (nonce/stride)&0xFFFF == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}

				binary.LittleEndian.PutUint64(buf[nonceOffset:], nonce)
				hash := crypto.Hash(buf)
				if bytes.Compare(hash[:], target[:]) <= 0 {
					select {
					case found <- nonce:
					default:
					}
					return errFound
				}

				// Overflow: would wrap around past max uint64.
				if nonce > ^uint64(0)-stride {
					return ErrNonceExhausted
				}
			}
		})
	}

	err := g.Wait()
	select {
	case nonce := <-found:
		header.Nonce = nonce
		return nil
	default:
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
