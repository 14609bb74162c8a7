package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	klog "github.com/Klingon-tech/eggcore/internal/log"
	"github.com/Klingon-tech/eggcore/pkg/block"
)

const (
	// MaxSyncBlocks caps one sync response.
	MaxSyncBlocks = 500

	syncReadTimeout      = 30 * time.Second
	maxSyncRequestBytes  = 1024
	maxSyncResponseBytes = 64 << 20
)

// SyncRequest asks a peer for best-chain blocks starting at FromHeight.
type SyncRequest struct {
	FromHeight uint64 `json:"from_height"`
	MaxBlocks  uint32 `json:"max_blocks"`
}

// SyncResponse carries the requested blocks in height order.
type SyncResponse struct {
	Blocks []*block.Block `json:"blocks"`
}

// BlockProvider returns up to max best-chain blocks from height from.
type BlockProvider func(from uint64, max uint32) []*block.Block

// Syncer serves and requests block ranges over stream protocols.
type Syncer struct {
	host host.Host
}

// NewSyncer creates a syncer on a started node.
func NewSyncer(node *Node) *Syncer {
	return &Syncer{host: node.host}
}

// RegisterHandler serves SyncProtocol from provider.
func (s *Syncer) RegisterHandler(provider BlockProvider) {
	s.host.SetStreamHandler(SyncProtocol, func(stream network.Stream) {
		defer stream.Close()
		_ = stream.SetDeadline(time.Now().Add(syncReadTimeout))

		var req SyncRequest
		if err := json.NewDecoder(io.LimitReader(stream, maxSyncRequestBytes)).Decode(&req); err != nil {
			klog.P2P.Debug().Err(err).Msg("Bad sync request")
			return
		}
		if req.MaxBlocks == 0 || req.MaxBlocks > MaxSyncBlocks {
			req.MaxBlocks = MaxSyncBlocks
		}
		resp := SyncResponse{Blocks: provider(req.FromHeight, req.MaxBlocks)}
		if err := json.NewEncoder(stream).Encode(&resp); err != nil {
			klog.P2P.Debug().Err(err).Msg("Sync response write failed")
		}
	})
}

// RequestBlocks asks id for blocks starting at from. A response that
// cannot be decoded is a ProtocolError.
func (s *Syncer) RequestBlocks(ctx context.Context, id peer.ID, from uint64, max uint32) ([]*block.Block, error) {
	stream, err := s.host.NewStream(ctx, id, SyncProtocol)
	if err != nil {
		return nil, fmt.Errorf("open sync stream: %w", err)
	}
	defer stream.Close()

	if err := json.NewEncoder(stream).Encode(&SyncRequest{FromHeight: from, MaxBlocks: max}); err != nil {
		return nil, fmt.Errorf("send sync request: %w", err)
	}
	stream.CloseWrite()
	_ = stream.SetReadDeadline(time.Now().Add(syncReadTimeout))

	var resp SyncResponse
	if err := json.NewDecoder(io.LimitReader(stream, maxSyncResponseBytes)).Decode(&resp); err != nil {
		return nil, &ProtocolError{Kind: "sync", Err: err}
	}
	for i, blk := range resp.Blocks {
		if blk == nil || blk.Header == nil {
			return nil, &ProtocolError{Kind: "sync", Err: fmt.Errorf("block %d has no header", i)}
		}
	}
	return resp.Blocks, nil
}
