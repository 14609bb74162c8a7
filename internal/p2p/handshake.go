package p2p

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	klog "github.com/Klingon-tech/eggcore/internal/log"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

const (
	handshakeTimeout  = 10 * time.Second
	maxHandshakeBytes = 4096
)

// HandshakeMessage is exchanged between peers to verify compatibility.
type HandshakeMessage struct {
	ProtocolVersion uint32     `json:"protocol_version"`
	GenesisHash     types.Hash `json:"genesis_hash"`
	NetworkID       string     `json:"network_id"`
	BestHeight      uint64     `json:"best_height"`
}

// registerHandshakeHandler answers handshakes opened by dialers.
func (n *Node) registerHandshakeHandler() {
	n.host.SetStreamHandler(HandshakeProtocol, func(stream network.Stream) {
		defer stream.Close()
		remote := stream.Conn().RemotePeer()
		_ = stream.SetDeadline(time.Now().Add(handshakeTimeout))

		var theirs HandshakeMessage
		if err := json.NewDecoder(io.LimitReader(stream, maxHandshakeBytes)).Decode(&theirs); err != nil {
			klog.P2P.Debug().Err(err).Str("peer", shortID(remote)).Msg("Handshake read failed")
			return
		}
		ours := n.buildHandshakeMessage()
		if err := json.NewEncoder(stream).Encode(&ours); err != nil {
			klog.P2P.Debug().Err(err).Str("peer", shortID(remote)).Msg("Handshake write failed")
			return
		}
		n.finishHandshake(remote, theirs)
	})
}

// doHandshake opens the handshake with a peer we dialed.
func (n *Node) doHandshake(id peer.ID) {
	stream, err := n.host.NewStream(n.ctx, id, HandshakeProtocol)
	if err != nil {
		klog.P2P.Debug().Err(err).Str("peer", shortID(id)).Msg("Handshake stream refused")
		return
	}
	defer stream.Close()
	_ = stream.SetDeadline(time.Now().Add(handshakeTimeout))

	ours := n.buildHandshakeMessage()
	if err := json.NewEncoder(stream).Encode(&ours); err != nil {
		klog.P2P.Debug().Err(err).Str("peer", shortID(id)).Msg("Handshake send failed")
		return
	}
	stream.CloseWrite()

	var theirs HandshakeMessage
	if err := json.NewDecoder(io.LimitReader(stream, maxHandshakeBytes)).Decode(&theirs); err != nil {
		klog.P2P.Debug().Err(err).Str("peer", shortID(id)).Msg("Handshake response read failed")
		return
	}
	n.finishHandshake(id, theirs)
}

// finishHandshake bans an incompatible peer or records its height.
func (n *Node) finishHandshake(id peer.ID, msg HandshakeMessage) {
	if reason := n.validateHandshake(msg); reason != "" {
		klog.P2P.Warn().Str("peer", shortID(id)).Str("reason", reason).Msg("Handshake rejected")
		n.Penalize(id, PenaltyHandshakeFail, reason)
		n.DisconnectPeer(id)
		return
	}
	n.setPeerHeight(id, msg.BestHeight)
}

// validateHandshake returns why msg is incompatible, or "".
func (n *Node) validateHandshake(msg HandshakeMessage) string {
	if msg.GenesisHash != n.genesisHash {
		return fmt.Sprintf("genesis mismatch: peer=%s local=%s", msg.GenesisHash.Short(), n.genesisHash.Short())
	}
	if msg.ProtocolVersion < MinProtocolVersion {
		return fmt.Sprintf("protocol version too low: peer=%d min=%d", msg.ProtocolVersion, MinProtocolVersion)
	}
	if n.config.NetworkID != "" && msg.NetworkID != "" && msg.NetworkID != n.config.NetworkID {
		return fmt.Sprintf("network mismatch: peer=%s local=%s", msg.NetworkID, n.config.NetworkID)
	}
	return ""
}

func (n *Node) buildHandshakeMessage() HandshakeMessage {
	msg := HandshakeMessage{
		ProtocolVersion: ProtocolVersion,
		GenesisHash:     n.genesisHash,
		NetworkID:       n.config.NetworkID,
	}
	if n.heightFn != nil {
		msg.BestHeight = n.heightFn()
	}
	return msg
}
