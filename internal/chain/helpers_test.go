package chain

import (
	"bytes"

	"github.com/Klingon-tech/eggcore/config"
	"github.com/Klingon-tech/eggcore/internal/storage"
	"github.com/Klingon-tech/eggcore/internal/utxo"
	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/crypto"
	"github.com/Klingon-tech/eggcore/pkg/tx"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// Test difficulties. easyBits accepts about one hash in 256 and is the
// genesis (and therefore limit) target of most tests.
const (
	easyBits   uint32 = 0x1fffffff
	harderBits uint32 = 0x1f7fffff
	subsidy           = config.DefaultSubsidy
)

// fatalHelper is the part of testing.T and rapid.T the fixtures need.
type fatalHelper interface {
	Helper()
	Fatalf(format string, args ...any)
}

type fixture struct {
	t       fatalHelper
	db      *storage.MemoryDB
	chain   *Chain
	genesis *block.Block
	key     *crypto.PrivateKey
	addr    types.Address
}

func testKey(t fatalHelper, seed byte) *crypto.PrivateKey {
	t.Helper()
	k, err := crypto.PrivateKeyFromBytes(bytes.Repeat([]byte{seed}, 32))
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	return k
}

func testGenesis(t fatalHelper, bits uint32, addr types.Address) *block.Block {
	t.Helper()
	g, err := CreateGenesisBlock(&config.Genesis{
		Message:   "test genesis",
		Timestamp: 1735689600,
		Bits:      bits,
		Reward:    subsidy,
		Address:   addr.String(),
		Subsidy:   subsidy,
	})
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return g
}

func newFixture(t fatalHelper, bits uint32) *fixture {
	t.Helper()
	key := testKey(t, 1)
	f := &fixture{
		t:       t,
		db:      storage.NewMemory(),
		key:     key,
		addr:    key.Address(),
		genesis: testGenesis(t, bits, key.Address()),
	}
	f.chain = f.open()
	return f
}

// open loads the fixture's database into a fresh Chain.
func (f *fixture) open() *Chain {
	f.t.Helper()
	c, err := LoadOrInit(f.genesis, f.db, Options{Subsidy: subsidy})
	if err != nil {
		f.t.Fatalf("LoadOrInit: %v", err)
	}
	return c
}

// mine searches nonces until h meets its own target.
func mine(t fatalHelper, h *block.Header) {
	t.Helper()
	for n := uint64(0); n < 1<<32; n++ {
		h.Nonce = n
		if block.VerifyPoW(h) {
			return
		}
	}
	t.Fatalf("no nonce found for bits %08x", h.Bits)
}

// child builds and mines a block on parent. The coinbase pays subsidy plus
// fees to the fixture key and carries tag, so siblings built with
// different tags differ.
func (f *fixture) child(parent *block.Block, bits uint32, tag string, fees uint64, txs ...*tx.Transaction) *block.Block {
	f.t.Helper()
	height := heightOf(f.t, parent) + 1
	all := append([]*tx.Transaction{tx.NewCoinbase(f.addr, subsidy+fees, height, tag)}, txs...)
	blk := block.NewBlock(&block.Header{
		Version:   block.CurrentVersion,
		PrevHash:  parent.Hash(),
		Timestamp: parent.Header.Timestamp + 60,
		Bits:      bits,
	}, all)
	blk.Header.MerkleRoot = block.ComputeMerkleRoot(blk.MerkleLeaves())
	mine(f.t, blk.Header)
	return blk
}

func heightOf(t fatalHelper, blk *block.Block) uint64 {
	t.Helper()
	h, ok := tx.CoinbaseHeight(blk.Transactions[0])
	if !ok {
		t.Fatalf("block %s has no coinbase height", blk.Hash().Short())
	}
	return h
}

// spend pays value from op to the fixture key, leaving op's remaining
// value as fee. op must belong to the fixture key.
func (f *fixture) spend(op types.Outpoint, value uint64) *tx.Transaction {
	f.t.Helper()
	return signedSpend(f.t, f.key, value, op)
}

func signedSpend(t fatalHelper, key *crypto.PrivateKey, value uint64, ops ...types.Outpoint) *tx.Transaction {
	t.Helper()
	b := tx.NewBuilder()
	for _, op := range ops {
		b.AddInput(op)
	}
	b.AddOutput(value, key.Address())
	if err := b.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return b.Build()
}

// coinbaseOut is output 0 of blk's coinbase.
func coinbaseOut(blk *block.Block) types.Outpoint {
	return types.Outpoint{TxID: blk.Transactions[0].Hash()}
}

func (f *fixture) mustAdd(blk *block.Block) {
	f.t.Helper()
	if _, err := f.chain.AddBlock(blk); err != nil {
		f.t.Fatalf("AddBlock(%s): %v", blk.Hash().Short(), err)
	}
}

// extend adds n empty blocks on top of parent and returns the last one.
func (f *fixture) extend(parent *block.Block, n int, bits uint32, tag string) *block.Block {
	f.t.Helper()
	for i := 0; i < n; i++ {
		parent = f.child(parent, bits, tag, 0)
		f.mustAdd(parent)
	}
	return parent
}

// utxoSet lists the chain's outpoints.
func utxoSet(t fatalHelper, c *Chain) map[types.Outpoint]*utxo.UTXO {
	t.Helper()
	set := make(map[types.Outpoint]*utxo.UTXO)
	if err := c.ForEachUTXO(func(u *utxo.UTXO) error {
		set[u.Outpoint] = u
		return nil
	}); err != nil {
		t.Fatalf("ForEachUTXO: %v", err)
	}
	return set
}

// bestPath returns the best chain's blocks from height 1 to the tip.
func bestPath(t fatalHelper, c *Chain) []*block.Block {
	t.Helper()
	h := c.Height()
	path := make([]*block.Block, 0, h)
	for i := uint64(1); i <= h; i++ {
		b, err := c.GetBlockByHeight(i)
		if err != nil {
			t.Fatalf("GetBlockByHeight(%d): %v", i, err)
		}
		path = append(path, b)
	}
	return path
}

// sameState compares states by value; big.Int internals are not
// comparable with reflection.
func sameState(a, b State) bool {
	return a.Height == b.Height && a.TipHash == b.TipHash && a.TotalWork.Cmp(b.TotalWork) == 0
}
