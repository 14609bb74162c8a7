// Package chain implements the blockchain state machine.
package chain

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/Klingon-tech/eggcore/internal/log"
	"github.com/Klingon-tech/eggcore/internal/storage"
	"github.com/Klingon-tech/eggcore/internal/utxo"
	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// BlockHandler is notified when a block joins or leaves the best chain.
// Handlers run with the chain lock held and must not call back into Chain.
type BlockHandler func(blk *block.Block)

// Options are the consensus parameters of a chain.
type Options struct {
	// Subsidy is the fixed amount a coinbase may create on top of fees.
	Subsidy uint64
	// PowLimit is the easiest bits a block may carry. Zero means the
	// genesis block's bits.
	PowLimit uint32
	// MaxFutureDrift rejects blocks timestamped further ahead of the local
	// clock. Zero disables the check.
	MaxFutureDrift time.Duration
}

// Chain is the consensus state machine. It is the only writer of the UTXO
// set and of the tip pointer. One mutex serialises every operation.
type Chain struct {
	mu     sync.Mutex
	db     storage.BatchDB
	blocks *BlockStore
	utxos  *utxo.Store
	opts   Options

	metas       map[types.Hash]*BlockMeta
	state       State
	genesisHash types.Hash
	halted      error

	connected    BlockHandler
	disconnected BlockHandler
}

// LoadOrInit opens the chain stored in db. A fresh database is initialised
// with genesis; otherwise every stored BlockMeta is loaded and the stored
// genesis must match the one given.
func LoadOrInit(genesis *block.Block, db storage.BatchDB, opts Options) (*Chain, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	if err := ValidateGenesis(genesis); err != nil {
		return nil, err
	}
	if opts.PowLimit == 0 {
		opts.PowLimit = genesis.Header.Bits
	}

	c := &Chain{
		db:          db,
		blocks:      NewBlockStore(db),
		utxos:       utxo.NewStore(db),
		opts:        opts,
		metas:       make(map[types.Hash]*BlockMeta),
		genesisHash: genesis.Hash(),
	}

	tipHash, _, ok, err := c.blocks.GetTip()
	if err != nil {
		return nil, storageErr("load tip", err)
	}
	if !ok {
		if err := c.initGenesis(genesis); err != nil {
			return nil, err
		}
		return c, nil
	}

	if err := c.load(tipHash); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chain) initGenesis(genesis *block.Block) error {
	hash := genesis.Hash()
	undo := &utxo.Undo{Created: utxo.OutputsOf(genesis.Transactions[0], 0)}
	meta := &BlockMeta{
		Hash:      hash,
		Height:    0,
		TotalWork: new(big.Int),
		Undo:      undo,
	}

	view := utxo.NewView(c.utxos)
	if err := undo.Apply(view); err != nil {
		return internalErr(err, "apply genesis outputs")
	}

	batch := c.db.NewBatch()
	err := c.blocks.PutBlock(batch, genesis)
	if err == nil {
		err = c.blocks.PutMeta(batch, meta)
	}
	if err == nil {
		err = c.blocks.SetHeight(batch, 0, hash)
	}
	if err == nil {
		err = c.utxos.Apply(batch, view)
	}
	if err == nil {
		err = c.blocks.SetTip(batch, hash, 0)
	}
	if err == nil {
		err = batch.Commit()
	}
	if err != nil {
		return storageErr("install genesis", err)
	}

	c.metas[hash] = meta
	c.state = meta.state()
	log.Chain.Info().Str("hash", hash.Short()).Msg("Chain initialized from genesis")
	return nil
}

func (c *Chain) load(tipHash types.Hash) error {
	err := c.blocks.ForEachMeta(func(m *BlockMeta) error {
		c.metas[m.Hash] = m
		return nil
	})
	if err != nil {
		return storageErr("load block metadata", err)
	}

	storedGenesis, err := c.blocks.GetHashByHeight(0)
	if err != nil {
		return internalErr(err, "genesis missing from height index")
	}
	if storedGenesis != c.genesisHash {
		return fmt.Errorf("%w: database holds genesis %s, expected %s",
			ErrInvalidGenesis, storedGenesis.Short(), c.genesisHash.Short())
	}

	tip, ok := c.metas[tipHash]
	if !ok {
		return internalErr(nil, "tip %s has no metadata", tipHash.Short())
	}
	if has, err := c.blocks.HasBlock(tipHash); err != nil {
		return storageErr("load tip block", err)
	} else if !has {
		return internalErr(nil, "tip block %s missing from store", tipHash.Short())
	}

	c.state = tip.state()
	log.Chain.Info().
		Uint64("height", tip.Height).
		Str("tip", tipHash.Short()).
		Int("blocks", len(c.metas)).
		Msg("Chain loaded")
	return nil
}

// SetBlockConnectedHandler registers fn for blocks joining the best chain,
// oldest first.
func (c *Chain) SetBlockConnectedHandler(fn BlockHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = fn
}

// SetBlockDisconnectedHandler registers fn for blocks leaving the best
// chain during a reorg, newest first.
func (c *Chain) SetBlockDisconnectedHandler(fn BlockHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = fn
}

// State returns a copy of the current chain state.
func (c *Chain) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.TotalWork = new(big.Int).Set(c.state.TotalWork)
	return s
}

// Height returns the current chain height.
func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Height
}

// TipHash returns the hash of the current chain tip.
func (c *Chain) TipHash() types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.TipHash
}

// GenesisHash returns the hash of the genesis block.
func (c *Chain) GenesisHash() types.Hash {
	return c.genesisHash
}

// Subsidy returns the fixed block subsidy.
func (c *Chain) Subsidy() uint64 {
	return c.opts.Subsidy
}

// HasBlock reports whether hash is a known block, on any branch.
func (c *Chain) HasBlock(hash types.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.metas[hash]
	return ok
}

// BlockCount returns the number of known blocks.
func (c *Chain) BlockCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.metas)
}

// GetMeta returns a copy of a known block's metadata.
func (c *Chain) GetMeta(hash types.Hash) (*BlockMeta, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.metas[hash]
	if !ok {
		return nil, false
	}
	cp := *m
	cp.TotalWork = new(big.Int).Set(m.TotalWork)
	return &cp, true
}

// GetBlock retrieves a block by its hash.
func (c *Chain) GetBlock(hash types.Hash) (*block.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks.GetBlock(hash)
}

// GetBlockByHeight retrieves a best-chain block by its height.
func (c *Chain) GetBlockByHeight(height uint64) (*block.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if height > c.state.Height {
		return nil, fmt.Errorf("height %d above tip %d: %w", height, c.state.Height, storage.ErrNotFound)
	}
	return c.blocks.GetBlockByHeight(height)
}

// GetUTXO returns an unspent output of the best chain.
func (c *Chain) GetUTXO(op types.Outpoint) (*utxo.UTXO, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.utxos.Get(op)
}

// LookupUTXO resolves an outpoint against the best chain for transaction
// checks outside the chain.
func (c *Chain) LookupUTXO(op types.Outpoint) (uint64, types.Address, bool) {
	u, err := c.GetUTXO(op)
	if err != nil {
		return 0, types.Address{}, false
	}
	return u.Value, u.Address, true
}

// UTXOsByAddress returns the best-chain UTXOs paying addr.
func (c *Chain) UTXOsByAddress(addr types.Address) ([]*utxo.UTXO, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.utxos.GetByAddress(addr)
}

// ForEachUTXO visits the best-chain UTXO set in outpoint order.
func (c *Chain) ForEachUTXO(fn func(*utxo.UTXO) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.utxos.ForEach(fn)
}

// UTXOCommitment returns the commitment of the best-chain UTXO set.
func (c *Chain) UTXOCommitment() (types.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return utxo.Commitment(c.utxos)
}

// Halted returns the storage failure that stopped the chain, if any.
func (c *Chain) Halted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halted
}

func (c *Chain) halt(err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		c.halted = err
		log.Chain.Error().Err(err).Msg("Storage failure, block acceptance halted")
	}
	return err
}
