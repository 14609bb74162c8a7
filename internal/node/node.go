// Package node wires storage, the chain, the mempool, the network, the
// miner and the RPC server into one runnable process.
package node

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/eggcore/config"
	"github.com/Klingon-tech/eggcore/internal/chain"
	"github.com/Klingon-tech/eggcore/internal/consensus"
	klog "github.com/Klingon-tech/eggcore/internal/log"
	"github.com/Klingon-tech/eggcore/internal/mempool"
	"github.com/Klingon-tech/eggcore/internal/miner"
	"github.com/Klingon-tech/eggcore/internal/orphan"
	"github.com/Klingon-tech/eggcore/internal/p2p"
	"github.com/Klingon-tech/eggcore/internal/rpc"
	"github.com/Klingon-tech/eggcore/internal/storage"
	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/tx"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

const (
	// EstimatorBlocks is how many connected blocks feed the fee estimator.
	EstimatorBlocks = 10

	orphanExpiryInterval = time.Minute
)

// Node is a fully-initialized full node.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	// Core
	db        storage.BatchDB
	chain     *chain.Chain
	pool      *mempool.Pool
	estimator *mempool.Estimator
	orphans   *orphan.Blocks
	orphanTxs *orphan.Txs

	// Networking
	p2pNode *p2p.Node
	syncer  atomic.Pointer[p2p.Syncer]
	syncing sync.Map // peer.ID -> struct{}

	// RPC
	rpcServer *rpc.Server

	// Mining
	miner      *miner.Miner
	roundMu    sync.Mutex
	roundAbort context.CancelFunc

	// Transactions from disconnected blocks, re-admitted once the chain
	// lock is released.
	reorgMu     sync.Mutex
	reorgQueued []*tx.Transaction

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New opens the node's database under cfg.DataDir and builds every
// component. Nothing runs until Start.
func New(cfg *config.Config) (*Node, error) {
	types.SetAddressHRP(config.AddressHRP(cfg.Network))

	logFile := cfg.Log.File
	if logFile == "" {
		if err := os.MkdirAll(cfg.LogsDir(), 0o755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(cfg.LogsDir(), "eggcore.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	genesis, err := LoadGenesis(cfg)
	if err != nil {
		return nil, err
	}

	db, err := storage.NewBadger(cfg.DBDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.DBDir(), err)
	}

	n, err := Open(cfg, genesis, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return n, nil
}

// Open builds a node on an already opened database. The chain lives
// under the chain prefix and peer bans under the network prefix. db is
// closed by Stop.
func Open(cfg *config.Config, genesis *config.Genesis, db storage.BatchDB) (*Node, error) {
	logger := klog.WithComponent("node")

	genesisBlock, err := chain.CreateGenesisBlock(genesis)
	if err != nil {
		return nil, fmt.Errorf("build genesis block: %w", err)
	}

	ch, err := chain.LoadOrInit(genesisBlock, storage.NewPrefixDB(db, storage.ChainPrefix), ChainOptions(genesis))
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}
	logger.Info().
		Str("network", string(cfg.Network)).
		Str("genesis", ch.GenesisHash().Short()).
		Uint64("height", ch.Height()).
		Str("tip", ch.TipHash().Short()).
		Msg("Chain loaded")

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		cfg:       cfg,
		genesis:   genesis,
		logger:    logger,
		db:        db,
		chain:     ch,
		pool:      mempool.New(ch, mempool.DefaultMaxSize),
		estimator: mempool.NewEstimator(EstimatorBlocks),
		orphans:   orphan.NewBlocks(),
		orphanTxs: orphan.NewTxs(),
		ctx:       ctx,
		cancel:    cancel,
	}
	ch.SetBlockConnectedHandler(n.onBlockConnected)
	ch.SetBlockDisconnectedHandler(n.onBlockDisconnected)

	if !cfg.P2P.Disable {
		n.p2pNode = p2p.New(p2p.Config{
			ListenAddr: cfg.P2P.ListenAddr,
			Port:       cfg.P2P.Port,
			Seeds:      cfg.P2P.Seeds,
			MaxPeers:   cfg.P2P.MaxPeers,
			NoDiscover: cfg.P2P.NoDiscover,
			DHTServer:  cfg.P2P.DHTServer,
			NetworkID:  string(cfg.Network),
			DataDir:    cfg.ChainDataDir(),
			DB:         storage.NewPrefixDB(db, storage.NetworkPrefix),
			ClearBans:  cfg.P2P.ClearBans,
		})
		n.p2pNode.SetGenesisHash(ch.GenesisHash())
		n.p2pNode.SetHeightFn(ch.Height)
		n.p2pNode.SetBlockHandler(n.handlePeerBlock)
		n.p2pNode.SetTxHandler(n.handlePeerTx)
		n.p2pNode.SetPeerConnectedHandler(n.onPeerConnected)
	}

	if cfg.Mining.Enabled {
		coinbase, err := resolveCoinbase(cfg.Mining.Coinbase)
		if err != nil {
			cancel()
			return nil, err
		}
		engine, err := consensus.NewPoW(genesis.Bits, cfg.Mining.Threads)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("create pow engine: %w", err)
		}
		n.miner = miner.New(ch, engine, n.pool, coinbase)
	}

	if !cfg.RPC.Disable {
		backend := rpc.Backend{
			Network:   string(cfg.Network),
			Chain:     ch,
			Pool:      n.pool,
			Estimator: n.estimator,
			Node:      n,
			P2P:       n.p2pNode,
		}
		n.rpcServer = rpc.New(fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port), backend, cfg.RPC)
	}

	return n, nil
}

// Start brings up the network and the RPC server, then launches the
// background loops: sync, orphan expiry and mining.
func (n *Node) Start() error {
	n.group, n.ctx = errgroup.WithContext(n.ctx)

	if n.p2pNode != nil {
		if err := n.p2pNode.Start(); err != nil {
			return fmt.Errorf("start P2P: %w", err)
		}
		syncer := p2p.NewSyncer(n.p2pNode)
		syncer.RegisterHandler(n.provideBlocks)
		syncer.RegisterHeightHandler(func() (uint64, types.Hash) {
			st := n.chain.State()
			return st.Height, st.TipHash
		})
		n.syncer.Store(syncer)

		n.group.Go(func() error {
			n.runSyncLoop(n.ctx)
			return nil
		})
	} else {
		n.logger.Warn().Msg("P2P disabled by config; node will run offline")
	}

	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return fmt.Errorf("start RPC: %w", err)
		}
		n.logger.Info().Str("addr", n.rpcServer.Addr()).Msg("RPC server started")
	}

	n.group.Go(func() error {
		n.runOrphanExpiry(n.ctx)
		return nil
	})

	if n.miner != nil {
		n.group.Go(func() error {
			return n.runMiner(n.ctx)
		})
	}

	n.logger.Info().
		Uint64("height", n.chain.Height()).
		Str("tip", n.chain.TipHash().Short()).
		Bool("mining", n.miner != nil).
		Msg("Node started")
	return nil
}

// Wait blocks until a background loop fails or the node is stopped.
func (n *Node) Wait() error {
	if n.group == nil {
		return nil
	}
	return n.group.Wait()
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	n.cancel()
	if n.group != nil {
		if err := n.group.Wait(); err != nil {
			n.logger.Error().Err(err).Msg("Background task failed")
		}
	}

	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	if n.p2pNode != nil {
		n.p2pNode.Stop()
	}
	if n.db != nil {
		n.db.Close()
	}
	n.logger.Info().Msg("Goodbye!")
}

// Chain returns the node's chain.
func (n *Node) Chain() *chain.Chain { return n.chain }

// Pool returns the node's mempool.
func (n *Node) Pool() *mempool.Pool { return n.pool }

// P2P returns the network node, nil when networking is disabled.
func (n *Node) P2P() *p2p.Node { return n.p2pNode }

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Height returns the current chain height.
func (n *Node) Height() uint64 {
	return n.chain.Height()
}

// OrphanCounts reports how many blocks and transactions wait for parents.
func (n *Node) OrphanCounts() (blocks, txs int) {
	return n.orphans.Len(), n.orphanTxs.Len()
}

func (n *Node) runOrphanExpiry(ctx context.Context) {
	ticker := time.NewTicker(orphanExpiryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			blocks := n.orphans.Expire()
			txs := n.orphanTxs.Expire()
			if blocks+txs > 0 {
				n.logger.Debug().Int("blocks", blocks).Int("txs", txs).Msg("Expired orphans")
			}
		}
	}
}

// provideBlocks serves best-chain blocks to syncing peers.
func (n *Node) provideBlocks(from uint64, max uint32) []*block.Block {
	var blocks []*block.Block
	for h := from; h < from+uint64(max); h++ {
		blk, err := n.chain.GetBlockByHeight(h)
		if err != nil {
			break
		}
		blocks = append(blocks, blk)
	}
	return blocks
}
