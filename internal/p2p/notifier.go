package p2p

import (
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/multiformats/go-multiaddr"
)

// connNotifier keeps the peer table in step with libp2p connections and
// starts the handshake on outbound ones.
type connNotifier struct {
	node *Node
}

func (cn *connNotifier) Connected(_ network.Network, conn network.Conn) {
	n := cn.node
	remote := conn.RemotePeer()
	if remote == n.host.ID() {
		return
	}

	source := "inbound"
	if conn.Stat().Direction == network.DirOutbound {
		source = "outbound"
	}
	n.addPeer(remote, source)

	if fn := n.onPeerConnected; fn != nil {
		go fn(remote)
	}
	if !n.genesisHash.IsZero() && conn.Stat().Direction == network.DirOutbound {
		go n.doHandshake(remote)
	}
}

// Disconnected drops the peer once its last connection closes.
func (cn *connNotifier) Disconnected(net network.Network, conn network.Conn) {
	remote := conn.RemotePeer()
	if len(net.ConnsToPeer(remote)) == 0 {
		cn.node.removePeer(remote)
	}
}

func (cn *connNotifier) Listen(network.Network, multiaddr.Multiaddr)      {}
func (cn *connNotifier) ListenClose(network.Network, multiaddr.Multiaddr) {}
