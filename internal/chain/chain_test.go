package chain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/eggcore/internal/storage"
	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

func TestLoadOrInit_Genesis(t *testing.T) {
	f := newFixture(t, easyBits)
	c := f.chain

	st := c.State()
	require.Equal(t, uint64(0), st.Height)
	require.Equal(t, f.genesis.Hash(), st.TipHash)
	require.Zero(t, st.TotalWork.Sign(), "genesis total work is zero")
	require.Equal(t, f.genesis.Hash(), c.GenesisHash())
	require.True(t, c.HasBlock(f.genesis.Hash()))

	// The genesis coinbase output is spendable.
	u, err := c.GetUTXO(coinbaseOut(f.genesis))
	require.NoError(t, err)
	require.Equal(t, uint64(subsidy), u.Value)
	require.Equal(t, f.addr, u.Address)
	require.True(t, u.Coinbase)

	// The undo log records the created output.
	meta, ok := c.GetMeta(f.genesis.Hash())
	require.True(t, ok)
	require.Len(t, meta.Undo.Created, 1)
	require.Empty(t, meta.Undo.Spent)

	got, err := c.GetBlockByHeight(0)
	require.NoError(t, err)
	require.Equal(t, f.genesis.Hash(), got.Hash())
}

func TestLoadOrInit_InvalidGenesis(t *testing.T) {
	key := testKey(t, 1)
	tests := []struct {
		name   string
		mutate func(*block.Block)
	}{
		{"non-zero parent", func(b *block.Block) { b.Header.PrevHash = types.Hash{1} }},
		{"non-zero nonce", func(b *block.Block) { b.Header.Nonce = 7 }},
		{"no coinbase", func(b *block.Block) { b.Transactions = nil }},
		{"bad merkle", func(b *block.Block) { b.Header.MerkleRoot = types.Hash{9} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testGenesis(t, easyBits, key.Address())
			tt.mutate(g)
			_, err := LoadOrInit(g, storage.NewMemory(), Options{Subsidy: subsidy})
			require.ErrorIs(t, err, ErrInvalidGenesis)
		})
	}
}

func TestLoadOrInit_GenesisMismatch(t *testing.T) {
	f := newFixture(t, easyBits)
	other := testGenesis(t, easyBits, testKey(t, 2).Address())

	_, err := LoadOrInit(other, f.db, Options{Subsidy: subsidy})
	require.ErrorIs(t, err, ErrInvalidGenesis)
}

func TestLoadOrInit_MissingTipBlock(t *testing.T) {
	f := newFixture(t, easyBits)
	b1 := f.extend(f.genesis, 1, easyBits, "a")

	require.NoError(t, f.db.Delete(blockKey(b1.Hash())))
	_, err := LoadOrInit(f.genesis, f.db, Options{Subsidy: subsidy})

	var ie *InternalError
	require.ErrorAs(t, err, &ie)
}

func TestAddBlock_LinearChain(t *testing.T) {
	f := newFixture(t, easyBits)

	parent := f.genesis
	work := new(big.Int)
	for i := 1; i <= 5; i++ {
		blk := f.child(parent, easyBits, "linear", 0)
		ok, err := f.chain.AddBlock(blk)
		require.NoError(t, err)
		require.True(t, ok)

		work.Add(work, block.WorkFromBits(easyBits))
		st := f.chain.State()
		require.Equal(t, uint64(i), st.Height)
		require.Equal(t, blk.Hash(), st.TipHash)
		require.Zero(t, work.Cmp(st.TotalWork))

		_, err = f.chain.GetUTXO(coinbaseOut(blk))
		require.NoError(t, err, "coinbase of block %d is unspent", i)
		parent = blk
	}

	require.Len(t, utxoSet(t, f.chain), 6)
	require.Equal(t, 6, f.chain.BlockCount())
}

func TestAddBlock_UnknownParent(t *testing.T) {
	f := newFixture(t, easyBits)
	before := f.chain.State()
	keys := f.db.Len()

	orphanParent := f.child(f.genesis, easyBits, "never added", 0)
	orphan := f.child(orphanParent, easyBits, "orphan", 0)

	ok, err := f.chain.AddBlock(orphan)
	require.False(t, ok)
	require.ErrorIs(t, err, ErrUnknownParent)
	require.True(t, IsValidation(err))
	require.True(t, sameState(before, f.chain.State()))
	require.False(t, f.chain.HasBlock(orphan.Hash()))
	require.Equal(t, keys, f.db.Len(), "rejected block wrote to storage")
}

func TestAddBlock_Duplicate(t *testing.T) {
	f := newFixture(t, easyBits)
	b1 := f.child(f.genesis, easyBits, "a", 0)
	f.mustAdd(b1)
	before := f.chain.State()
	set := utxoSet(t, f.chain)

	ok, err := f.chain.AddBlock(b1)
	require.False(t, ok)
	require.ErrorIs(t, err, ErrDuplicateBlock)
	require.True(t, sameState(before, f.chain.State()))
	require.Equal(t, set, utxoSet(t, f.chain))

	_, err = f.chain.AddBlock(f.genesis)
	require.ErrorIs(t, err, ErrDuplicateBlock)
}

func TestAddBlock_NilBlock(t *testing.T) {
	f := newFixture(t, easyBits)
	_, err := f.chain.AddBlock(nil)
	require.ErrorIs(t, err, ErrBadBlock)
	_, err = f.chain.AddBlock(&block.Block{})
	require.ErrorIs(t, err, ErrBadBlock)
}

func TestLoadOrInit_Reload(t *testing.T) {
	f := newFixture(t, easyBits)
	tip := f.extend(f.genesis, 3, easyBits, "main")
	side := f.child(f.genesis, easyBits, "side", 0)
	f.mustAdd(side)

	before := f.chain.State()
	commit, err := f.chain.UTXOCommitment()
	require.NoError(t, err)

	reopened := f.open()
	require.True(t, sameState(before, reopened.State()))
	require.Equal(t, tip.Hash(), reopened.TipHash())
	require.True(t, reopened.HasBlock(side.Hash()), "side blocks survive restart")
	require.Equal(t, f.chain.BlockCount(), reopened.BlockCount())

	got, err := reopened.UTXOCommitment()
	require.NoError(t, err)
	require.Equal(t, commit, got)

	// The reloaded chain keeps validating and can still reorg onto the
	// side branch.
	_, err = reopened.AddBlock(side)
	require.ErrorIs(t, err, ErrDuplicateBlock)
	next := f.child(tip, easyBits, "after reload", 0)
	_, err = reopened.AddBlock(next)
	require.NoError(t, err)
	require.Equal(t, next.Hash(), reopened.TipHash())
}

func TestStorageFailure_Halts(t *testing.T) {
	f := newFixture(t, easyBits)
	b1 := f.child(f.genesis, easyBits, "a", 0)
	before := f.chain.State()
	set := utxoSet(t, f.chain)

	f.db.FailCommits(errors.New("disk full"))
	ok, err := f.chain.AddBlock(b1)
	require.False(t, ok)
	var se *StorageError
	require.ErrorAs(t, err, &se)
	require.False(t, IsValidation(err))

	require.True(t, sameState(before, f.chain.State()))
	require.False(t, f.chain.HasBlock(b1.Hash()))
	require.Equal(t, set, utxoSet(t, f.chain))
	require.Error(t, f.chain.Halted())

	// Acceptance stays stopped even once storage recovers.
	f.db.FailCommits(nil)
	_, err = f.chain.AddBlock(b1)
	require.ErrorIs(t, err, ErrHalted)

	// A restart picks up the last committed state.
	reopened := f.open()
	require.True(t, sameState(before, reopened.State()))
	f.chain = reopened
	f.mustAdd(b1)
	require.Equal(t, b1.Hash(), reopened.TipHash())
}

func TestValidationFailure_DoesNotHalt(t *testing.T) {
	f := newFixture(t, easyBits)
	bad := f.child(f.genesis, easyBits, "bad", 0)
	bad.Header.Nonce++
	for block.VerifyPoW(bad.Header) {
		bad.Header.Nonce++
	}

	_, err := f.chain.AddBlock(bad)
	require.ErrorIs(t, err, ErrInvalidPoW)
	require.NoError(t, f.chain.Halted())
	f.extend(f.genesis, 1, easyBits, "good")
}

func TestHandlers_LinearAndReorg(t *testing.T) {
	f := newFixture(t, easyBits)
	var connected, disconnected []types.Hash
	f.chain.SetBlockConnectedHandler(func(b *block.Block) { connected = append(connected, b.Hash()) })
	f.chain.SetBlockDisconnectedHandler(func(b *block.Block) { disconnected = append(disconnected, b.Hash()) })

	a1 := f.child(f.genesis, easyBits, "a", 0)
	f.mustAdd(a1)
	a2 := f.child(a1, easyBits, "a", 0)
	f.mustAdd(a2)
	a3 := f.child(a2, easyBits, "a", 0)
	f.mustAdd(a3)
	require.Equal(t, []types.Hash{a1.Hash(), a2.Hash(), a3.Hash()}, connected)

	// b1 and b2 stay behind a3; the harder b3 overtakes it.
	b1 := f.child(f.genesis, easyBits, "b", 0)
	b2 := f.child(b1, easyBits, "b", 0)
	b3 := f.child(b2, harderBits, "b", 0)
	f.mustAdd(b1)
	f.mustAdd(b2)
	require.Empty(t, disconnected, "side blocks fire no events")

	connected = nil
	f.mustAdd(b3)
	require.Equal(t, b3.Hash(), f.chain.TipHash())
	require.Equal(t, []types.Hash{a3.Hash(), a2.Hash(), a1.Hash()}, disconnected, "newest first")
	require.Equal(t, []types.Hash{b1.Hash(), b2.Hash(), b3.Hash()}, connected, "oldest first")
}

func TestQueries(t *testing.T) {
	f := newFixture(t, easyBits)
	b1 := f.extend(f.genesis, 1, easyBits, "a")

	got, err := f.chain.GetBlock(b1.Hash())
	require.NoError(t, err)
	require.Equal(t, b1.Hash(), got.Hash())

	_, err = f.chain.GetBlockByHeight(5)
	require.ErrorIs(t, err, storage.ErrNotFound)

	value, addr, ok := f.chain.LookupUTXO(coinbaseOut(b1))
	require.True(t, ok)
	require.Equal(t, uint64(subsidy), value)
	require.Equal(t, f.addr, addr)

	_, _, ok = f.chain.LookupUTXO(types.Outpoint{TxID: types.Hash{0xaa}})
	require.False(t, ok)

	owned, err := f.chain.UTXOsByAddress(f.addr)
	require.NoError(t, err)
	require.Len(t, owned, 2)

	require.Equal(t, uint64(subsidy), f.chain.Subsidy())
}
