package p2p

import (
	"context"
	"fmt"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"

	klog "github.com/Klingon-tech/eggcore/internal/log"
)

const (
	rendezvousFallback   = "eggcore"
	dhtDiscoveryInterval = 30 * time.Second
	dhtFindTimeout       = 20 * time.Second
	peerConnectTimeout   = 5 * time.Second
)

// rendezvous is the DHT and mDNS namespace, one per network.
func (n *Node) rendezvous() string {
	if n.config.NetworkID != "" {
		return "eggcore/" + n.config.NetworkID
	}
	return rendezvousFallback
}

// full reports whether MaxPeers is reached.
func (n *Node) full() bool {
	return n.config.MaxPeers > 0 && n.PeerCount() >= n.config.MaxPeers
}

// connectDiscovered dials a peer found by mDNS or the DHT.
func (n *Node) connectDiscovered(info peer.AddrInfo, source string) {
	if info.ID == n.host.ID() || len(info.Addrs) == 0 || n.full() {
		return
	}
	ctx, cancel := context.WithTimeout(n.ctx, peerConnectTimeout)
	defer cancel()
	if err := n.host.Connect(ctx, info); err != nil {
		return
	}
	n.addPeer(info.ID, source)
}

type mdnsNotifee struct {
	node *Node
}

func (d *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	d.node.connectDiscovered(info, "mdns")
}

func (n *Node) startMDNS() {
	svc := mdns.NewMdnsService(n.host, n.rendezvous(), &mdnsNotifee{node: n})
	if err := svc.Start(); err != nil {
		klog.P2P.Warn().Err(err).Msg("mDNS unavailable")
	}
}

func (n *Node) initDHT() error {
	mode := dht.ModeClient
	if n.config.DHTServer {
		mode = dht.ModeServer
	}
	kad, err := dht.New(n.ctx, n.host, dht.Mode(mode))
	if err != nil {
		return fmt.Errorf("create kad-dht: %w", err)
	}
	n.dht = kad
	return kad.Bootstrap(n.ctx)
}

func (n *Node) closeDHT() {
	if n.dht != nil {
		n.dht.Close()
		n.dht = nil
	}
}

// runDHTDiscovery advertises our rendezvous and periodically dials the
// peers found under it.
func (n *Node) runDHTDiscovery() {
	if n.dht == nil {
		return
	}
	rd := drouting.NewRoutingDiscovery(n.dht)
	dutil.Advertise(n.ctx, rd, n.rendezvous())

	ticker := time.NewTicker(dhtDiscoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.findDHTPeers(rd)
		}
	}
}

func (n *Node) findDHTPeers(rd *drouting.RoutingDiscovery) {
	ctx, cancel := context.WithTimeout(n.ctx, dhtFindTimeout)
	defer cancel()

	found, err := rd.FindPeers(ctx, n.rendezvous())
	if err != nil {
		klog.P2P.Debug().Err(err).Msg("DHT peer search failed")
		return
	}
	for info := range found {
		if n.full() {
			return
		}
		n.connectDiscovered(info, "dht")
	}
}
