package p2p

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
)

// testPeerID returns a real, decodable peer ID.
func testPeerID(t *testing.T) peer.ID {
	t.Helper()
	priv, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	id, err := peer.IDFromPrivateKey(priv)
	require.NoError(t, err)
	return id
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

// startTestNode starts a node on a random loopback port.
func startTestNode(t *testing.T, cfg Config) *Node {
	t.Helper()
	cfg.ListenAddr = "127.0.0.1"
	cfg.NoDiscover = true
	n := New(cfg)
	require.NoError(t, n.Start())
	t.Cleanup(func() { n.Stop() })
	return n
}

// connectNodes dials a from b and waits for the gossip mesh.
func connectNodes(t *testing.T, a, b *Node) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.host.Connect(ctx, peer.AddrInfo{ID: a.host.ID(), Addrs: a.host.Addrs()}))
	require.Eventually(t, func() bool {
		return len(a.pubsub.ListPeers(TopicBlocks)) > 0 && len(b.pubsub.ListPeers(TopicBlocks)) > 0
	}, 5*time.Second, 50*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
}
