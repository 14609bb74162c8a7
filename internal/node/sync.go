package node

import (
	"context"
	"errors"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/Klingon-tech/eggcore/internal/chain"
	"github.com/Klingon-tech/eggcore/internal/p2p"
)

const (
	syncInterval       = 15 * time.Second
	syncRequestTimeout = 30 * time.Second
	heightTimeout      = 5 * time.Second

	// syncWindow is how far below our tip a sync starts, so a peer on a
	// short fork hands us the branch point as well.
	syncWindow = 100
)

func (n *Node) onPeerConnected(id peer.ID) {
	go n.syncWith(n.ctx, id)
}

func (n *Node) runSyncLoop(ctx context.Context) {
	for _, p := range n.p2pNode.PeerList() {
		n.syncWith(ctx, p.ID)
	}

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range n.p2pNode.PeerList() {
				n.syncWith(ctx, p.ID)
			}
		}
	}
}

// syncWith downloads blocks from id when it reports a tip we lack. At
// most one sync per peer runs at a time.
func (n *Node) syncWith(ctx context.Context, id peer.ID) {
	syncer := n.syncer.Load()
	if syncer == nil {
		return
	}
	if _, busy := n.syncing.LoadOrStore(id, struct{}{}); busy {
		return
	}
	defer n.syncing.Delete(id)

	hctx, cancel := context.WithTimeout(ctx, heightTimeout)
	remote, err := syncer.RequestHeight(hctx, id)
	cancel()
	if err != nil {
		n.logger.Debug().Err(err).Str("peer", id.String()).Msg("Height request failed")
		return
	}
	if n.chain.HasBlock(remote.TipHash) {
		return
	}

	localHeight := n.chain.Height()
	from, err := n.findSyncStart(ctx, syncer, id, min(localHeight, remote.Height))
	if err != nil {
		n.syncFailed(id, err)
		return
	}

	n.logger.Info().
		Str("peer", id.String()).
		Uint64("local", localHeight).
		Uint64("remote", remote.Height).
		Uint64("from", from).
		Msg("Syncing chain")

	for from <= remote.Height {
		rctx, cancel := context.WithTimeout(ctx, syncRequestTimeout)
		blocks, err := syncer.RequestBlocks(rctx, id, from, p2p.MaxSyncBlocks)
		cancel()
		if err != nil {
			n.syncFailed(id, err)
			return
		}
		if len(blocks) == 0 {
			break
		}
		for _, blk := range blocks {
			_, err := n.processBlock(id, blk)
			if err != nil && !errors.Is(err, chain.ErrDuplicateBlock) {
				n.logger.Debug().Err(err).Str("peer", id.String()).Msg("Sync stopped on rejected block")
				return
			}
		}
		from += uint64(len(blocks))
	}

	n.logger.Info().
		Uint64("height", n.chain.Height()).
		Str("tip", n.chain.TipHash().Short()).
		Msg("Sync complete")
}

// findSyncStart walks back from base-syncWindow, doubling the step,
// until the peer's block at that height extends a block we know.
func (n *Node) findSyncStart(ctx context.Context, syncer *p2p.Syncer, id peer.ID, base uint64) (uint64, error) {
	window := uint64(syncWindow)
	for {
		from := uint64(0)
		if base > window {
			from = base - window
		}
		if from == 0 {
			return 0, nil
		}

		rctx, cancel := context.WithTimeout(ctx, syncRequestTimeout)
		first, err := syncer.RequestBlocks(rctx, id, from, 1)
		cancel()
		if err != nil {
			return 0, err
		}
		if len(first) == 0 || n.chain.HasBlock(first[0].Header.PrevHash) {
			return from, nil
		}
		window *= 2
	}
}

func (n *Node) syncFailed(id peer.ID, err error) {
	var perr *p2p.ProtocolError
	if errors.As(err, &perr) {
		n.penalize(id, p2p.PenaltyMalformed, err.Error())
	}
	n.logger.Debug().Err(err).Str("peer", id.String()).Msg("Sync request failed")
}
