// Package miner assembles and seals blocks on top of the best chain.
package miner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/eggcore/internal/chain"
	"github.com/Klingon-tech/eggcore/internal/consensus"
	"github.com/Klingon-tech/eggcore/internal/log"
	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/tx"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// CoinbaseMessage is written after the height in every mined coinbase.
const CoinbaseMessage = "eggcore"

// ChainState provides read-only access to the best chain. State returns
// the tip hash and height as one snapshot.
type ChainState interface {
	State() chain.State
	GetBlock(hash types.Hash) (*block.Block, error)
	Subsidy() uint64
}

// TxSelector picks pool transactions for a block and reports their fees.
type TxSelector interface {
	SelectForBlock(limit int) ([]*tx.Transaction, uint64)
}

// SubmitFunc hands a sealed block to the node.
type SubmitFunc func(blk *block.Block) error

// Miner produces new blocks.
type Miner struct {
	chain    ChainState
	engine   consensus.Engine
	pool     TxSelector
	coinbase types.Address
	maxTxs   int
	now      func() time.Time
}

// New creates a block producer paying rewards to coinbase. pool may be nil.
func New(chain ChainState, engine consensus.Engine, pool TxSelector, coinbase types.Address) *Miner {
	return &Miner{
		chain:    chain,
		engine:   engine,
		pool:     pool,
		coinbase: coinbase,
		maxTxs:   block.MaxBlockTxs,
		now:      time.Now,
	}
}

// ProduceBlock builds and seals a block on the current tip. The coinbase
// pays the subsidy plus the fees of the selected transactions. The block
// is not applied; the caller submits it.
func (m *Miner) ProduceBlock(ctx context.Context) (*block.Block, error) {
	st := m.chain.State()
	tipHash := st.TipHash
	parent, err := m.chain.GetBlock(tipHash)
	if err != nil {
		return nil, fmt.Errorf("load tip %s: %w", tipHash.Short(), err)
	}
	height := st.Height + 1

	timestamp := uint64(m.now().Unix())
	if timestamp <= parent.Header.Timestamp {
		timestamp = parent.Header.Timestamp + 1
	}

	var (
		selected []*tx.Transaction
		fees     uint64
	)
	if m.pool != nil {
		selected, fees = m.pool.SelectForBlock(m.maxTxs - 1)
	}

	txs := make([]*tx.Transaction, 0, 1+len(selected))
	txs = append(txs, tx.NewCoinbase(m.coinbase, m.chain.Subsidy()+fees, height, CoinbaseMessage))
	txs = append(txs, selected...)

	blk := block.NewBlock(&block.Header{
		Version:   block.CurrentVersion,
		PrevHash:  tipHash,
		Timestamp: timestamp,
	}, txs)
	blk.Header.MerkleRoot = block.ComputeMerkleRoot(blk.MerkleLeaves())

	if err := m.engine.Prepare(blk.Header); err != nil {
		return nil, fmt.Errorf("prepare header: %w", err)
	}
	if err := m.engine.Seal(ctx, blk.Header); err != nil {
		return nil, fmt.Errorf("seal block: %w", err)
	}
	return blk, nil
}

// Run mines blocks until ctx is cancelled, submitting each one. A block
// the node refuses is logged and mining carries on from the new tip.
func (m *Miner) Run(ctx context.Context, submit SubmitFunc) error {
	log.Miner.Info().Str("coinbase", m.coinbase.String()).Msg("Miner started")
	defer log.Miner.Info().Msg("Miner stopped")

	for {
		blk, err := m.ProduceBlock(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := submit(blk); err != nil {
			log.Miner.Warn().Err(err).Str("hash", blk.Hash().Short()).Msg("Mined block rejected")
			continue
		}
		log.Miner.Info().
			Str("hash", blk.Hash().Short()).
			Uint64("height", m.chain.State().Height).
			Int("txs", len(blk.Transactions)).
			Msg("Mined block")
	}
}
