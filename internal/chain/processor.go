package chain

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Klingon-tech/eggcore/internal/log"
	"github.com/Klingon-tech/eggcore/internal/metrics"
	"github.com/Klingon-tech/eggcore/internal/storage"
	"github.com/Klingon-tech/eggcore/internal/utxo"
	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/crypto"
)

// AddBlock validates blk and stores it. It returns true when the block was
// accepted, whether or not it became the tip. A rejected block leaves no
// trace: every write of one call goes through a single storage batch and
// in-memory state changes only after that batch commits.
//
// Checks run in order: duplicate, proof of work, coinbase shape and
// structure, known parent, then spends against the UTXO set as of the
// parent. If the block beats the tip it is connected, directly when it
// extends the tip and through a reorg otherwise.
func (c *Chain) AddBlock(blk *block.Block) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ok, outcome, err := c.addBlock(blk)
	metrics.ObserveBlock(outcome)
	return ok, err
}

func (c *Chain) addBlock(blk *block.Block) (bool, string, error) {
	if c.halted != nil {
		return false, "error", fmt.Errorf("%w: %v", ErrHalted, c.halted)
	}
	if blk == nil || blk.Header == nil {
		return false, "rejected", fmt.Errorf("%w: nil block or header", ErrBadBlock)
	}

	hash := blk.Hash()
	if _, known := c.metas[hash]; known {
		return false, "duplicate", ErrDuplicateBlock
	}

	if err := c.checkHeader(blk.Header); err != nil {
		return false, "rejected", err
	}
	if err := checkBody(blk); err != nil {
		return false, "rejected", err
	}

	parent, ok := c.metas[blk.Header.PrevHash]
	if !ok {
		return false, "orphan", fmt.Errorf("%w: %s", ErrUnknownParent, blk.Header.PrevHash.Short())
	}

	view, toParent, err := c.viewAt(parent)
	if err != nil {
		return false, "error", c.halt(err)
	}

	height := parent.Height + 1
	undo, err := c.checkSpends(blk, height, view)
	if err != nil {
		return false, outcomeOf(err), c.halt(err)
	}

	meta := &BlockMeta{
		Hash:      hash,
		Parent:    parent.Hash,
		Height:    height,
		TotalWork: new(big.Int).Add(parent.TotalWork, block.WorkFromBits(blk.Header.Bits)),
		Undo:      undo,
	}

	tip := c.metas[c.state.TipHash]
	if tip == nil {
		return false, "error", internalErr(nil, "tip %s has no metadata", c.state.TipHash.Short())
	}

	batch := c.db.NewBatch()
	if err := c.blocks.PutBlock(batch, blk); err != nil {
		return false, "error", c.halt(storageErr("stage block", err))
	}
	if err := c.blocks.PutMeta(batch, meta); err != nil {
		return false, "error", c.halt(storageErr("stage meta", err))
	}

	if !better(meta, tip) {
		if err := batch.Commit(); err != nil {
			return false, "error", c.halt(storageErr("commit side block", err))
		}
		c.metas[hash] = meta
		log.Chain.Debug().
			Str("hash", hash.Short()).
			Uint64("height", height).
			Msg("Stored side-chain block")
		return true, "side", nil
	}

	// Connect: view is at the parent, so applying this block's undo moves
	// it to the new tip.
	if err := undo.Apply(view); err != nil {
		return false, "error", internalErr(err, "apply own undo")
	}
	r := &route{
		oldPath: toParent.oldPath,
		newPath: append([]*BlockMeta{meta}, toParent.newPath...),
	}

	disconnected, connected, err := c.loadRouteBlocks(r, blk)
	if err != nil {
		return false, "error", c.halt(err)
	}
	if err := c.stageTipChange(batch, r, meta, view); err != nil {
		return false, "error", c.halt(err)
	}
	if err := batch.Commit(); err != nil {
		return false, "error", c.halt(storageErr("commit block", err))
	}

	c.metas[hash] = meta
	c.state = meta.state()
	c.notify(disconnected, connected)
	c.recordTip(r)
	return true, "connected", nil
}

// checkHeader verifies proof of work and the pow limit, plus the
// timestamp bound when one is configured.
func (c *Chain) checkHeader(h *block.Header) error {
	if !block.VerifyPoW(h) {
		return ErrInvalidPoW
	}
	if block.WorkFromBits(h.Bits).Cmp(block.WorkFromBits(c.opts.PowLimit)) < 0 {
		return fmt.Errorf("%w: bits %08x easier than limit %08x", ErrInvalidPoW, h.Bits, c.opts.PowLimit)
	}
	if c.opts.MaxFutureDrift > 0 {
		limit := uint64(time.Now().Add(c.opts.MaxFutureDrift).Unix())
		if h.Timestamp > limit {
			return fmt.Errorf("%w: timestamp %d too far in the future", ErrBadBlock, h.Timestamp)
		}
	}
	return nil
}

// checkBody runs the context-free block checks.
func checkBody(blk *block.Block) error {
	if err := blk.CheckCoinbase(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadCoinbase, err)
	}
	if err := blk.Validate(); err != nil {
		if errors.Is(err, block.ErrDuplicateBlockInput) {
			return fmt.Errorf("%w: %v", ErrMissingInput, err)
		}
		return fmt.Errorf("%w: %v", ErrBadBlock, err)
	}
	return nil
}

// checkSpends validates every ordinary transaction against view, the
// UTXO set as of the parent, and builds the block's undo log. Outputs
// created in this block are not spendable within it.
func (c *Chain) checkSpends(blk *block.Block, height uint64, view *utxo.View) (*utxo.Undo, error) {
	undo := &utxo.Undo{}
	var fees uint64

	for i, t := range blk.Transactions[1:] {
		txIdx := i + 1
		txid := t.Hash()

		var in uint64
		for j, input := range t.Inputs {
			u, err := view.Get(input.PrevOut)
			if errors.Is(err, utxo.ErrNotFound) {
				return nil, fmt.Errorf("%w: tx %d input %d spends %s", ErrMissingInput, txIdx, j, input.PrevOut)
			}
			if err != nil {
				return nil, storageErr("read utxo", err)
			}
			if crypto.AddressFromPubKey(input.PubKey) != u.Address {
				return nil, fmt.Errorf("%w: tx %d input %d: key does not own %s", ErrBadSignature, txIdx, j, input.PrevOut)
			}
			if !crypto.VerifySignature(txid[:], input.Signature, input.PubKey) {
				return nil, fmt.Errorf("%w: tx %d input %d", ErrBadSignature, txIdx, j)
			}
			if in+u.Value < in {
				return nil, fmt.Errorf("%w: tx %d input sum overflows", ErrBadBlock, txIdx)
			}
			in += u.Value
			undo.Spent = append(undo.Spent, u)
		}

		out, err := t.TotalOutputValue()
		if err != nil {
			return nil, fmt.Errorf("%w: tx %d: %v", ErrBadBlock, txIdx, err)
		}
		if in < out {
			return nil, fmt.Errorf("%w: tx %d has %d in, %d out", ErrInsufficientInput, txIdx, in, out)
		}
		if fees+(in-out) < fees {
			return nil, fmt.Errorf("%w: fee sum overflows", ErrBadBlock)
		}
		fees += in - out
	}

	coinbaseOut, err := blk.Transactions[0].TotalOutputValue()
	if err != nil {
		return nil, fmt.Errorf("%w: coinbase: %v", ErrBadCoinbase, err)
	}
	if want := c.opts.Subsidy + fees; coinbaseOut != want {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCoinbaseValue, coinbaseOut, want)
	}

	for txIdx, t := range blk.Transactions {
		for _, u := range utxo.OutputsOf(t, height) {
			exists, err := view.Has(u.Outpoint)
			if err != nil {
				return nil, storageErr("read utxo", err)
			}
			if exists {
				return nil, fmt.Errorf("%w: tx %d recreates unspent output %s", ErrBadBlock, txIdx, u.Outpoint)
			}
			undo.Created = append(undo.Created, u)
		}
	}
	return undo, nil
}

// loadRouteBlocks reads the bodies the notification handlers need.
// blk is the new tip and is not stored yet.
func (c *Chain) loadRouteBlocks(r *route, blk *block.Block) (disconnected, connected []*block.Block, err error) {
	if c.disconnected != nil {
		for _, m := range r.oldPath {
			b, err := c.blocks.GetBlock(m.Hash)
			if err != nil {
				return nil, nil, storageErr("load disconnected block", err)
			}
			disconnected = append(disconnected, b)
		}
	}
	if c.connected != nil {
		for i := len(r.newPath) - 1; i >= 1; i-- {
			b, err := c.blocks.GetBlock(r.newPath[i].Hash)
			if err != nil {
				return nil, nil, storageErr("load connected block", err)
			}
			connected = append(connected, b)
		}
		connected = append(connected, blk)
	}
	return disconnected, connected, nil
}

// stageTipChange writes the new best-chain index, the UTXO delta and the
// tip pointer into batch.
func (c *Chain) stageTipChange(batch storage.Batch, r *route, tip *BlockMeta, view *utxo.View) error {
	for _, m := range r.newPath {
		if err := c.blocks.SetHeight(batch, m.Height, m.Hash); err != nil {
			return storageErr("stage height index", err)
		}
	}
	for _, m := range r.oldPath {
		if m.Height > tip.Height {
			if err := c.blocks.DeleteHeight(batch, m.Height); err != nil {
				return storageErr("stage height index", err)
			}
		}
	}
	if err := c.utxos.Apply(batch, view); err != nil {
		return storageErr("stage utxo delta", err)
	}
	if err := c.blocks.SetTip(batch, tip.Hash, tip.Height); err != nil {
		return storageErr("stage tip", err)
	}
	return nil
}

func (c *Chain) notify(disconnected, connected []*block.Block) {
	if c.disconnected != nil {
		for _, b := range disconnected {
			c.disconnected(b)
		}
	}
	if c.connected != nil {
		for _, b := range connected {
			c.connected(b)
		}
	}
}

func (c *Chain) recordTip(r *route) {
	work, _ := new(big.Float).SetInt(c.state.TotalWork).Float64()
	metrics.SetTip(c.state.Height, work)

	if len(r.oldPath) == 0 {
		log.Chain.Debug().
			Uint64("height", c.state.Height).
			Str("hash", c.state.TipHash.Short()).
			Msg("Block connected")
		return
	}
	metrics.ObserveReorg(len(r.oldPath))
	log.Chain.Info().
		Int("disconnected", len(r.oldPath)).
		Int("connected", len(r.newPath)).
		Uint64("height", c.state.Height).
		Str("tip", c.state.TipHash.Short()).
		Msg("Chain reorganized")
}

func outcomeOf(err error) string {
	if IsValidation(err) {
		return "rejected"
	}
	return "error"
}
