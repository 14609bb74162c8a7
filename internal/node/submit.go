package node

import (
	"errors"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/Klingon-tech/eggcore/internal/chain"
	"github.com/Klingon-tech/eggcore/internal/mempool"
	"github.com/Klingon-tech/eggcore/internal/p2p"
	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/tx"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// local marks a submission that did not come from a peer.
const local peer.ID = ""

// SubmitBlock adds a locally produced or RPC-submitted block and relays
// it when accepted. It reports whether the block was stored, on the best
// chain or a side branch. A block whose parent is unknown is buffered as
// an orphan and ErrUnknownParent is returned.
func (n *Node) SubmitBlock(blk *block.Block) (bool, error) {
	return n.processBlock(local, blk)
}

// SubmitTx admits a transaction to the mempool and relays it. A
// transaction spending unknown outputs is held as an orphan and
// mempool.ErrMissingInputs is returned.
func (n *Node) SubmitTx(t *tx.Transaction) (uint64, error) {
	return n.processTx(local, t)
}

func (n *Node) handlePeerBlock(from peer.ID, blk *block.Block) {
	if _, err := n.processBlock(from, blk); errors.Is(err, chain.ErrUnknownParent) {
		go n.syncWith(n.ctx, from)
	}
}

func (n *Node) handlePeerTx(from peer.ID, t *tx.Transaction) {
	n.processTx(from, t)
}

func (n *Node) processBlock(from peer.ID, blk *block.Block) (bool, error) {
	hash := blk.Hash()
	accepted, err := n.chain.AddBlock(blk)
	n.readmitReorged()

	switch {
	case err == nil:
	case errors.Is(err, chain.ErrUnknownParent):
		if n.orphans.AddBlock(blk) {
			n.logger.Debug().
				Str("hash", hash.Short()).
				Str("parent", blk.Header.PrevHash.Short()).
				Msg("Buffered orphan block")
		}
		return false, err
	case errors.Is(err, chain.ErrDuplicateBlock):
		return false, err
	default:
		if from != local && chain.IsValidation(err) {
			n.penalize(from, p2p.PenaltyInvalidBlock, err.Error())
		}
		n.logger.Debug().Err(err).Str("hash", hash.Short()).Msg("Block rejected")
		return false, err
	}

	if from == local && n.p2pNode != nil {
		if err := n.p2pNode.BroadcastBlock(blk); err != nil {
			n.logger.Warn().Err(err).Msg("Failed to broadcast block")
		}
	}
	if n.chain.TipHash() == hash {
		n.logger.Info().
			Uint64("height", n.chain.Height()).
			Str("hash", hash.Short()).
			Int("txs", len(blk.Transactions)).
			Msg("New tip")
	}

	n.connectOrphans(hash)
	n.promoteOrphanTxs()
	return accepted, nil
}

// connectOrphans adds buffered descendants of parent, breadth first.
func (n *Node) connectOrphans(parent types.Hash) {
	queue := []types.Hash{parent}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, child := range n.orphans.TakeChildren(next) {
			_, err := n.chain.AddBlock(child)
			n.readmitReorged()
			if err != nil && !errors.Is(err, chain.ErrDuplicateBlock) {
				n.logger.Debug().Err(err).Str("hash", child.Hash().Short()).Msg("Orphan block rejected")
				continue
			}
			queue = append(queue, child.Hash())
		}
	}
}

// promoteOrphanTxs moves orphan transactions whose inputs now exist into
// the mempool.
func (n *Node) promoteOrphanTxs() {
	ready := n.orphanTxs.Promotable(func(op types.Outpoint) bool {
		_, _, ok := n.chain.LookupUTXO(op)
		return ok
	})
	for _, t := range ready {
		if _, err := n.pool.Add(t); err != nil {
			n.logger.Debug().Err(err).Str("tx", t.Hash().Short()).Msg("Orphan tx rejected")
			continue
		}
		n.relayTx(t)
	}
}

func (n *Node) processTx(from peer.ID, t *tx.Transaction) (uint64, error) {
	fee, err := n.pool.Add(t)
	switch {
	case err == nil:
		if from == local {
			n.relayTx(t)
		}
		n.logger.Debug().Str("tx", t.Hash().Short()).Uint64("fee", fee).Msg("Transaction added to mempool")
		return fee, nil
	case errors.Is(err, mempool.ErrMissingInputs):
		n.orphanTxs.AddTx(t)
	case errors.Is(err, mempool.ErrValidation):
		if from != local {
			n.penalize(from, p2p.PenaltyInvalidTx, err.Error())
		}
	}
	return 0, err
}

func (n *Node) relayTx(t *tx.Transaction) {
	if n.p2pNode == nil {
		return
	}
	if err := n.p2pNode.BroadcastTx(t); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to broadcast transaction")
	}
}

func (n *Node) penalize(id peer.ID, penalty int, reason string) {
	if n.p2pNode != nil {
		n.p2pNode.Penalize(id, penalty, reason)
	}
}

// onBlockConnected runs under the chain lock.
func (n *Node) onBlockConnected(blk *block.Block) {
	fees := n.pool.RemoveConfirmed(blk)
	n.estimator.RecordBlock(fees)
	n.abortMiningRound()
}

// onBlockDisconnected runs under the chain lock, so the mempool cannot
// consult the chain yet. Transactions are queued for readmitReorged.
func (n *Node) onBlockDisconnected(blk *block.Block) {
	n.reorgMu.Lock()
	defer n.reorgMu.Unlock()
	for _, t := range blk.Transactions {
		if !t.IsCoinbase() {
			n.reorgQueued = append(n.reorgQueued, t)
		}
	}
}

// readmitReorged returns transactions of disconnected blocks to the
// mempool and drops pool entries the reorg invalidated.
func (n *Node) readmitReorged() {
	n.reorgMu.Lock()
	queued := n.reorgQueued
	n.reorgQueued = nil
	n.reorgMu.Unlock()
	if len(queued) == 0 {
		return
	}

	dropped := n.pool.Revalidate()
	readmitted := 0
	for _, t := range queued {
		_, err := n.pool.Add(t)
		switch {
		case err == nil:
			readmitted++
		case errors.Is(err, mempool.ErrMissingInputs):
			n.orphanTxs.AddTx(t)
		}
	}
	n.logger.Info().
		Int("disconnected", len(queued)).
		Int("readmitted", readmitted).
		Int("dropped", dropped).
		Msg("Reorg transactions returned to mempool")
}
