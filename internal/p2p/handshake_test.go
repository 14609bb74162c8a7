package p2p

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/eggcore/pkg/types"
)

func TestValidateHandshake(t *testing.T) {
	n := New(Config{NetworkID: "mainnet"})
	n.SetGenesisHash(types.Hash{1, 2, 3})

	ok := HandshakeMessage{ProtocolVersion: ProtocolVersion, GenesisHash: types.Hash{1, 2, 3}, NetworkID: "mainnet"}
	require.Empty(t, n.validateHandshake(ok))

	tests := map[string]func(*HandshakeMessage){
		"genesis mismatch": func(m *HandshakeMessage) { m.GenesisHash = types.Hash{9} },
		"old protocol":     func(m *HandshakeMessage) { m.ProtocolVersion = MinProtocolVersion - 1 },
		"other network":    func(m *HandshakeMessage) { m.NetworkID = "testnet" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			msg := ok
			mutate(&msg)
			require.NotEmpty(t, n.validateHandshake(msg))
		})
	}
}

func TestBuildHandshakeMessage(t *testing.T) {
	n := New(Config{NetworkID: "testnet"})
	n.SetGenesisHash(types.Hash{7})
	require.Zero(t, n.buildHandshakeMessage().BestHeight)

	n.SetHeightFn(func() uint64 { return 42 })
	msg := n.buildHandshakeMessage()
	require.Equal(t, ProtocolVersion, msg.ProtocolVersion)
	require.Equal(t, types.Hash{7}, msg.GenesisHash)
	require.Equal(t, "testnet", msg.NetworkID)
	require.Equal(t, uint64(42), msg.BestHeight)
}

func TestTwoNodes_HandshakeRecordsHeight(t *testing.T) {
	genesis := types.Hash{1, 2, 3}
	a := New(Config{ListenAddr: "127.0.0.1", NoDiscover: true, NetworkID: "test"})
	a.SetGenesisHash(genesis)
	a.SetHeightFn(func() uint64 { return 10 })
	require.NoError(t, a.Start())
	t.Cleanup(func() { a.Stop() })

	b := New(Config{ListenAddr: "127.0.0.1", NoDiscover: true, NetworkID: "test"})
	b.SetGenesisHash(genesis)
	b.SetHeightFn(func() uint64 { return 20 })
	require.NoError(t, b.Start())
	t.Cleanup(func() { b.Stop() })

	connectNodes(t, a, b)

	require.Eventually(t, func() bool {
		for _, p := range a.PeerList() {
			if p.ID == b.ID() && p.Height == 20 {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)
	require.False(t, a.BanManager.IsBanned(b.ID()))
}

func TestTwoNodes_HandshakeGenesisMismatchBans(t *testing.T) {
	a := New(Config{ListenAddr: "127.0.0.1", NoDiscover: true})
	a.SetGenesisHash(types.Hash{1})
	require.NoError(t, a.Start())
	t.Cleanup(func() { a.Stop() })

	b := New(Config{ListenAddr: "127.0.0.1", NoDiscover: true})
	b.SetGenesisHash(types.Hash{0xff})
	require.NoError(t, b.Start())
	t.Cleanup(func() { b.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.host.Connect(ctx, peer.AddrInfo{ID: a.ID(), Addrs: a.host.Addrs()}))

	require.Eventually(t, func() bool {
		return a.BanManager.IsBanned(b.ID()) || b.BanManager.IsBanned(a.ID())
	}, 5*time.Second, 50*time.Millisecond)
	require.Eventually(t, func() bool {
		return a.PeerCount() == 0 || b.PeerCount() == 0
	}, 5*time.Second, 50*time.Millisecond)
}
