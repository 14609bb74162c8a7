// Package p2p implements peer-to-peer networking using libp2p.
package p2p

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"

	klog "github.com/Klingon-tech/eggcore/internal/log"
	"github.com/Klingon-tech/eggcore/internal/metrics"
	"github.com/Klingon-tech/eggcore/internal/storage"
	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/tx"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

const (
	seedRetryInterval  = 10 * time.Second
	seedConnectTimeout = 10 * time.Second
	banPruneInterval   = 10 * time.Minute

	// JSON hex-encodes byte fields, so a full block roughly doubles.
	maxMessageSize = 3 * block.MaxBlockSize
)

// Config holds P2P node configuration.
type Config struct {
	ListenAddr string
	Port       int
	Seeds      []string
	MaxPeers   int
	NoDiscover bool
	DHTServer  bool
	NetworkID  string     // isolates discovery per network
	DataDir    string     // where the node identity key lives; empty = ephemeral
	DB         storage.DB // ban persistence; nil keeps bans in memory
	ClearBans  bool       // drop persisted bans on start
}

// BlockHandler receives a decoded block gossiped by from.
type BlockHandler func(from peer.ID, blk *block.Block)

// TxHandler receives a decoded transaction gossiped by from.
type TxHandler func(from peer.ID, t *tx.Transaction)

// Node represents a P2P node built on libp2p.
type Node struct {
	host   host.Host
	pubsub *pubsub.PubSub
	dht    *dht.IpfsDHT
	config Config
	ctx    context.Context
	cancel context.CancelFunc

	topicTx    *pubsub.Topic
	topicBlock *pubsub.Topic
	subTx      *pubsub.Subscription
	subBlock   *pubsub.Subscription

	txHandler    TxHandler
	blockHandler BlockHandler

	mu    sync.RWMutex
	peers map[peer.ID]*Peer

	BanManager *BanManager
	limiter    *RateLimiter
	connNotify *connNotifier

	onPeerConnected func(peer.ID)

	genesisHash types.Hash
	heightFn    func() uint64
}

// New creates a P2P node. Nothing listens until Start.
func New(cfg Config) *Node {
	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		config:  cfg,
		ctx:     ctx,
		cancel:  cancel,
		peers:   make(map[peer.ID]*Peer),
		limiter: NewRateLimiter(MessagesPerSecond, MessageBurst),
	}
	var store *BanStore
	if cfg.DB != nil {
		store = NewBanStore(cfg.DB)
	}
	n.BanManager = NewBanManager(store, n)
	return n
}

// Start brings up the libp2p host, joins the gossip topics and begins
// discovery. SetGenesisHash enables the handshake and must come first.
func (n *Node) Start() error {
	if n.config.ClearBans {
		if err := n.BanManager.Clear(); err != nil {
			return fmt.Errorf("clear bans: %w", err)
		}
	}
	n.BanManager.LoadBans()

	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/%s/tcp/%d", n.config.ListenAddr, n.config.Port)),
		libp2p.ConnectionGater(&banGater{bans: n.BanManager}),
	}
	if n.config.DataDir != "" {
		key, err := loadOrCreateIdentity(n.config.DataDir)
		if err != nil {
			return fmt.Errorf("load p2p identity: %w", err)
		}
		opts = append(opts, libp2p.Identity(key))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return fmt.Errorf("create libp2p host: %w", err)
	}
	n.host = h

	n.connNotify = &connNotifier{node: n}
	h.Network().Notify(n.connNotify)

	if !n.config.NoDiscover {
		if err := n.initDHT(); err != nil {
			h.Close()
			return fmt.Errorf("init dht: %w", err)
		}
	}

	ps, err := pubsub.NewGossipSub(n.ctx, h, pubsub.WithMaxMessageSize(maxMessageSize))
	if err != nil {
		n.closeDHT()
		h.Close()
		return fmt.Errorf("create pubsub: %w", err)
	}
	n.pubsub = ps

	if err := n.joinTopics(); err != nil {
		n.closeDHT()
		h.Close()
		return err
	}

	if !n.genesisHash.IsZero() {
		n.registerHandshakeHandler()
	}

	go n.readLoop(n.subTx, TopicTransactions, n.handleTxMessage)
	go n.readLoop(n.subBlock, TopicBlocks, n.handleBlockMessage)
	go n.BanManager.RunPruneLoop(n.ctx.Done(), banPruneInterval)

	if len(n.config.Seeds) > 0 {
		klog.P2P.Info().Int("seeds", len(n.config.Seeds)).Msg("Connecting to seeds")
		n.connectSeedsOnce()
		go n.connectSeedsLoop()
	}

	if !n.config.NoDiscover {
		n.startMDNS()
		go n.runDHTDiscovery()
	}

	klog.P2P.Info().Str("id", h.ID().String()).Strs("addrs", n.Addrs()).Msg("P2P node started")
	return nil
}

// Stop shuts down the P2P node.
func (n *Node) Stop() error {
	n.cancel()
	if n.subTx != nil {
		n.subTx.Cancel()
	}
	if n.subBlock != nil {
		n.subBlock.Cancel()
	}
	n.closeDHT()
	if n.host != nil {
		return n.host.Close()
	}
	return nil
}

// Host returns the underlying libp2p host (nil before Start).
func (n *Node) Host() host.Host {
	return n.host
}

// SetPeerConnectedHandler registers a callback run, in its own goroutine,
// when a peer connects.
func (n *Node) SetPeerConnectedHandler(fn func(peer.ID)) {
	n.onPeerConnected = fn
}

// SetGenesisHash sets the genesis hash peers must share. A non-zero hash
// enables the handshake protocol.
func (n *Node) SetGenesisHash(h types.Hash) {
	n.genesisHash = h
}

// SetHeightFn sets the function reporting our best height in handshakes.
func (n *Node) SetHeightFn(fn func() uint64) {
	n.heightFn = fn
}

// SetTxHandler registers the callback for gossiped transactions.
func (n *Node) SetTxHandler(fn TxHandler) {
	n.txHandler = fn
}

// SetBlockHandler registers the callback for gossiped blocks.
func (n *Node) SetBlockHandler(fn BlockHandler) {
	n.blockHandler = fn
}

// Penalize scores an offense against id.
func (n *Node) Penalize(id peer.ID, penalty int, reason string) {
	n.BanManager.RecordOffense(id, penalty, reason)
}

// DisconnectPeer closes all connections to a peer.
func (n *Node) DisconnectPeer(id peer.ID) error {
	if n.host == nil {
		return errors.New("node not started")
	}
	n.removePeer(id)
	return n.host.Network().ClosePeer(id)
}

// ID returns the peer ID of this node.
func (n *Node) ID() peer.ID {
	if n.host == nil {
		return ""
	}
	return n.host.ID()
}

// Addrs returns the full multiaddrs of this node.
func (n *Node) Addrs() []string {
	if n.host == nil {
		return nil
	}
	addrs := make([]string, 0, len(n.host.Addrs()))
	for _, a := range n.host.Addrs() {
		addrs = append(addrs, fmt.Sprintf("%s/p2p/%s", a, n.host.ID()))
	}
	return addrs
}

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}

// PeerList returns a snapshot of connected peers.
func (n *Node) PeerList() []Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Peer, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, *p)
	}
	return out
}

func (n *Node) addPeer(id peer.ID, source string) {
	n.mu.Lock()
	if _, ok := n.peers[id]; !ok {
		n.peers[id] = &Peer{ID: id, ConnectedAt: time.Now(), Source: source}
	}
	count := len(n.peers)
	n.mu.Unlock()
	metrics.SetPeers(count)
}

func (n *Node) removePeer(id peer.ID) {
	n.mu.Lock()
	delete(n.peers, id)
	count := len(n.peers)
	n.mu.Unlock()
	n.limiter.Forget(id)
	metrics.SetPeers(count)
}

func (n *Node) setPeerHeight(id peer.ID, height uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if p, ok := n.peers[id]; ok {
		p.Height = height
	}
}

func (n *Node) joinTopics() error {
	var err error
	if n.topicTx, err = n.pubsub.Join(TopicTransactions); err != nil {
		return fmt.Errorf("join tx topic: %w", err)
	}
	if n.topicBlock, err = n.pubsub.Join(TopicBlocks); err != nil {
		return fmt.Errorf("join block topic: %w", err)
	}
	if n.subTx, err = n.topicTx.Subscribe(); err != nil {
		return fmt.Errorf("subscribe tx: %w", err)
	}
	if n.subBlock, err = n.topicBlock.Subscribe(); err != nil {
		return fmt.Errorf("subscribe block: %w", err)
	}
	return nil
}

func (n *Node) readLoop(sub *pubsub.Subscription, topic string, handle func(peer.ID, []byte)) {
	for {
		msg, err := sub.Next(n.ctx)
		if err != nil {
			return
		}
		from := msg.ReceivedFrom
		if from == n.host.ID() {
			continue
		}
		if !n.limiter.Allow(from) {
			metrics.ObserveMessage(topic, "limited")
			n.Penalize(from, PenaltyRateLimited, "message rate exceeded")
			continue
		}
		n.dispatch(topic, from, msg.Data, handle)
	}
}

// dispatch runs one handler, turning a panic into a logged drop.
func (n *Node) dispatch(topic string, from peer.ID, data []byte, handle func(peer.ID, []byte)) {
	defer func() {
		if r := recover(); r != nil {
			klog.P2P.Error().Interface("panic", r).Str("topic", topic).Msg("Gossip handler panicked")
		}
	}()
	handle(from, data)
}

func (n *Node) handleTxMessage(from peer.ID, data []byte) {
	t, err := DecodeTx(data)
	if err != nil {
		n.rejectMalformed(TopicTransactions, from, err)
		return
	}
	metrics.ObserveMessage(TopicTransactions, "accepted")
	if n.txHandler != nil {
		n.txHandler(from, t)
	}
}

func (n *Node) handleBlockMessage(from peer.ID, data []byte) {
	blk, err := DecodeBlock(data)
	if err != nil {
		n.rejectMalformed(TopicBlocks, from, err)
		return
	}
	metrics.ObserveMessage(TopicBlocks, "accepted")
	if n.blockHandler != nil {
		n.blockHandler(from, blk)
	}
}

func (n *Node) rejectMalformed(topic string, from peer.ID, err error) {
	metrics.ObserveMessage(topic, "malformed")
	klog.P2P.Debug().Err(err).Str("peer", shortID(from)).Msg("Dropping malformed message")
	n.Penalize(from, PenaltyMalformed, err.Error())
}

// connectSeedsOnce dials every seed once and reports whether any answered.
func (n *Node) connectSeedsOnce() bool {
	connected := false
	for _, addr := range n.config.Seeds {
		info, err := peer.AddrInfoFromString(addr)
		if err != nil {
			klog.P2P.Warn().Str("addr", addr).Err(err).Msg("Bad seed address")
			continue
		}
		ctx, cancel := context.WithTimeout(n.ctx, seedConnectTimeout)
		err = n.host.Connect(ctx, *info)
		cancel()
		if err != nil {
			klog.P2P.Warn().Str("peer", shortID(info.ID)).Err(err).Msg("Seed connect failed")
			continue
		}
		n.addPeer(info.ID, "seed")
		connected = true
	}
	return connected
}

// connectSeedsLoop retries the seeds while we have no peers.
func (n *Node) connectSeedsLoop() {
	ticker := time.NewTicker(seedRetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			if n.PeerCount() == 0 {
				n.connectSeedsOnce()
			}
		}
	}
}

// loadOrCreateIdentity keeps the peer ID stable across restarts.
func loadOrCreateIdentity(dataDir string) (libp2pcrypto.PrivKey, error) {
	keyPath := filepath.Join(dataDir, "node.key")

	data, err := os.ReadFile(keyPath)
	if err == nil {
		raw, err := hex.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("decode node key: %w", err)
		}
		return libp2pcrypto.UnmarshalEd25519PrivateKey(raw)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read node key: %w", err)
	}

	priv, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	raw, err := priv.Raw()
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(raw)), 0o600); err != nil {
		return nil, fmt.Errorf("save node key: %w", err)
	}
	return priv, nil
}
