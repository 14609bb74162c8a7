package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/Klingon-tech/eggcore/pkg/types"
)

const heightReadTimeout = 5 * time.Second

// HeightResponse contains a peer's best height and tip.
type HeightResponse struct {
	Height  uint64     `json:"height"`
	TipHash types.Hash `json:"tip_hash"`
}

// RegisterHeightHandler answers height queries from tip.
func (s *Syncer) RegisterHeightHandler(tip func() (uint64, types.Hash)) {
	s.host.SetStreamHandler(HeightProtocol, func(stream network.Stream) {
		defer stream.Close()
		height, hash := tip()
		_ = json.NewEncoder(stream).Encode(&HeightResponse{Height: height, TipHash: hash})
	})
}

// RequestHeight asks id for its best height and tip.
func (s *Syncer) RequestHeight(ctx context.Context, id peer.ID) (*HeightResponse, error) {
	stream, err := s.host.NewStream(ctx, id, HeightProtocol)
	if err != nil {
		return nil, fmt.Errorf("open height stream: %w", err)
	}
	defer stream.Close()
	stream.CloseWrite()
	_ = stream.SetReadDeadline(time.Now().Add(heightReadTimeout))

	var resp HeightResponse
	if err := json.NewDecoder(io.LimitReader(stream, 1024)).Decode(&resp); err != nil {
		return nil, &ProtocolError{Kind: "height", Err: err}
	}
	return &resp, nil
}
