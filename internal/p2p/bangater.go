package p2p

import (
	"github.com/libp2p/go-libp2p/core/control"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// banGater rejects banned peers at the transport level. Dials to a
// multiaddr carrying a banned /p2p component are refused before the
// handshake; inbound peers are refused once their identity is known.
type banGater struct {
	bans *BanManager
}

func (g *banGater) InterceptPeerDial(p peer.ID) bool {
	return !g.bans.IsBanned(p)
}

func (g *banGater) InterceptAddrDial(p peer.ID, addr ma.Multiaddr) bool {
	if g.bans.IsBanned(p) {
		return false
	}
	if id, err := peer.IDFromP2PAddr(addr); err == nil && id != p {
		return !g.bans.IsBanned(id)
	}
	return true
}

func (g *banGater) InterceptAccept(network.ConnMultiaddrs) bool {
	return true
}

func (g *banGater) InterceptSecured(_ network.Direction, p peer.ID, _ network.ConnMultiaddrs) bool {
	return !g.bans.IsBanned(p)
}

func (g *banGater) InterceptUpgraded(network.Conn) (bool, control.DisconnectReason) {
	return true, 0
}
