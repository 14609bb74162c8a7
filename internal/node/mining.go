package node

import (
	"context"
	"errors"

	"github.com/Klingon-tech/eggcore/internal/chain"
)

// runMiner seals blocks on the current tip until ctx ends. A new tip
// aborts the round in progress so work is never spent on a stale parent.
func (n *Node) runMiner(ctx context.Context) error {
	n.logger.Info().Str("coinbase", n.cfg.Mining.Coinbase).Int("threads", n.cfg.Mining.Threads).Msg("Block production enabled")
	defer n.logger.Info().Msg("Block production stopped")

	for {
		round, abort := context.WithCancel(ctx)
		n.roundMu.Lock()
		n.roundAbort = abort
		n.roundMu.Unlock()

		blk, err := n.miner.ProduceBlock(round)
		abort()
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, context.Canceled):
			continue
		case err != nil:
			return err
		}

		if _, err := n.SubmitBlock(blk); err != nil {
			if errors.Is(err, chain.ErrHalted) {
				return err
			}
			n.logger.Warn().Err(err).Str("hash", blk.Hash().Short()).Msg("Mined block rejected")
			if errors.Is(err, chain.ErrMissingInput) {
				// A pooled transaction spends an output that is gone.
				if dropped := n.pool.Revalidate(); dropped > 0 {
					n.logger.Info().Int("dropped", dropped).Msg("Dropped stale pool transactions")
				}
			}
		}
	}
}

// abortMiningRound is called under the chain lock when the tip moves.
func (n *Node) abortMiningRound() {
	n.roundMu.Lock()
	defer n.roundMu.Unlock()
	if n.roundAbort != nil {
		n.roundAbort()
	}
}
