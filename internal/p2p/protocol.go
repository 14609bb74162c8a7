package p2p

import (
	"encoding/json"
	"fmt"

	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/tx"
)

// GossipSub topic names.
const (
	TopicBlocks       = "/egg/block/1.0.0"
	TopicTransactions = "/egg/tx/1.0.0"
)

// Stream protocols.
const (
	HandshakeProtocol = protocol.ID("/egg/handshake/1.0.0")
	HeightProtocol    = protocol.ID("/egg/height/1.0.0")
	SyncProtocol      = protocol.ID("/egg/sync/1.0.0")
)

// Handshake versions.
const (
	ProtocolVersion    uint32 = 1
	MinProtocolVersion uint32 = 1
)

// ProtocolError reports a peer payload that could not be decoded or is
// structurally unusable.
type ProtocolError struct {
	Kind string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed %s message: %v", e.Kind, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// DecodeBlock parses a gossiped block.
func DecodeBlock(data []byte) (*block.Block, error) {
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, &ProtocolError{Kind: "block", Err: err}
	}
	if blk.Header == nil {
		return nil, &ProtocolError{Kind: "block", Err: block.ErrNilHeader}
	}
	return &blk, nil
}

// DecodeTx parses a gossiped transaction.
func DecodeTx(data []byte) (*tx.Transaction, error) {
	var t tx.Transaction
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, &ProtocolError{Kind: "tx", Err: err}
	}
	if len(t.Inputs) == 0 || len(t.Outputs) == 0 {
		return nil, &ProtocolError{Kind: "tx", Err: fmt.Errorf("%d inputs, %d outputs", len(t.Inputs), len(t.Outputs))}
	}
	return &t, nil
}
