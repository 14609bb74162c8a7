package rpcclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/eggcore/config"
	"github.com/Klingon-tech/eggcore/internal/chain"
	"github.com/Klingon-tech/eggcore/internal/consensus"
	klog "github.com/Klingon-tech/eggcore/internal/log"
	"github.com/Klingon-tech/eggcore/internal/mempool"
	"github.com/Klingon-tech/eggcore/internal/miner"
	"github.com/Klingon-tech/eggcore/internal/rpc"
	"github.com/Klingon-tech/eggcore/internal/storage"
	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/crypto"
	"github.com/Klingon-tech/eggcore/pkg/tx"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

const testBits uint32 = 0x1fffffff

type submitter struct {
	chain *chain.Chain
	pool  *mempool.Pool
}

func (s *submitter) SubmitTx(t *tx.Transaction) (uint64, error) { return s.pool.Add(t) }

func (s *submitter) SubmitBlock(blk *block.Block) (bool, error) { return s.chain.AddBlock(blk) }

type testEnv struct {
	client *Client
	chain  *chain.Chain
	miner  *miner.Miner
	key    *crypto.PrivateKey
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	genesis, err := chain.CreateGenesisBlock(&config.Genesis{
		Message:   "client test",
		Timestamp: 1735689600,
		Bits:      testBits,
		Reward:    config.DefaultSubsidy,
		Address:   key.Address().String(),
		Subsidy:   config.DefaultSubsidy,
	})
	require.NoError(t, err)

	c, err := chain.LoadOrInit(genesis, storage.NewMemory(), chain.Options{Subsidy: config.DefaultSubsidy})
	require.NoError(t, err)
	pool := mempool.New(c, 100)
	engine, err := consensus.NewPoW(testBits, 1)
	require.NoError(t, err)

	srv := rpc.New("127.0.0.1:0", rpc.Backend{
		Network:   "regtest",
		Chain:     c,
		Pool:      pool,
		Estimator: mempool.NewEstimator(10),
		Node:      &submitter{chain: c, pool: pool},
	}, config.RPCConfig{})
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		client: New("http://" + srv.Addr() + "/"),
		chain:  c,
		miner:  miner.New(c, engine, pool, key.Address()),
		key:    key,
	}
}

func TestClient_ChainInfo(t *testing.T) {
	env := setupTestEnv(t)

	info, err := env.client.ChainInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, "regtest", info.Network)
	require.Equal(t, uint64(0), info.Height)
	require.Equal(t, env.chain.GenesisHash().String(), info.TipHash)
}

func TestClient_Blocks(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	byHeight, err := env.client.BlockByHeight(ctx, 0)
	require.NoError(t, err)
	require.Len(t, byHeight.Transactions, 1)

	byHash, err := env.client.BlockByHash(ctx, byHeight.Hash)
	require.NoError(t, err)
	require.Equal(t, byHeight.Hash, byHash.Hash)
	require.Equal(t, byHeight.Header.MerkleRoot, byHash.Header.MerkleRoot)
}

func TestClient_SubmitBlockAndUTXOs(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	blk, err := env.miner.ProduceBlock(ctx)
	require.NoError(t, err)

	res, err := env.client.SubmitBlock(ctx, blk)
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.Equal(t, uint64(1), res.Height)

	list, err := env.client.UTXOsByAddress(ctx, env.key.Address().String())
	require.NoError(t, err)
	require.Len(t, list.UTXOs, 2)
	require.Equal(t, uint64(2*config.DefaultSubsidy), list.Balance)

	cb := blk.Transactions[0].Hash()
	u, err := env.client.UTXO(ctx, cb.String(), 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), u.Height)
	require.Equal(t, env.key.Address(), u.Address)
	require.True(t, u.Coinbase)

	commitment, err := env.client.Commitment(ctx)
	require.NoError(t, err)
	require.Equal(t, blk.Hash().String(), commitment.TipHash)
}

func TestClient_SubmitTxAndMempool(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	genesis, err := env.chain.GetBlockByHeight(0)
	require.NoError(t, err)
	b := tx.NewBuilder().
		AddInput(types.Outpoint{TxID: genesis.Transactions[0].Hash()}).
		AddOutput(config.DefaultSubsidy-5000, env.key.Address())
	require.NoError(t, b.Sign(env.key))
	payment := b.Build()

	res, err := env.client.SubmitTx(ctx, payment)
	require.NoError(t, err)
	require.Equal(t, uint64(5000), res.Fee)

	info, err := env.client.MempoolInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, info.Count)

	est, err := env.client.FeeEstimate(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, est.High, est.Low)

	_, err = env.client.SubmitTx(ctx, payment)
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	require.Equal(t, rpc.CodeRejected, rpcErr.Code)
}

func TestClient_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.client.BlockByHash(context.Background(), types.Hash{}.String())
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	require.Equal(t, rpc.CodeNotFound, rpcErr.Code)
}

func TestClient_PeersUnavailable(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.client.PeerInfo(context.Background())
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	require.Equal(t, rpc.CodeUnavailable, rpcErr.Code)

	_, err = env.client.BanList(context.Background())
	require.True(t, errors.As(err, &rpcErr))
}

func TestClient_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	err := env.client.Call("nonexistent_method", nil, nil)
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	require.Equal(t, rpc.CodeMethodNotFound, rpcErr.Code)
}

func TestClient_InvalidEndpoint(t *testing.T) {
	client := NewWithTimeout("http://127.0.0.1:1/", time.Second)

	_, err := client.ChainInfo(context.Background())
	require.Error(t, err)
}

func TestClient_ContextCancelled(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.client.ChainInfo(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
