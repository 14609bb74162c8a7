package rpcclient

import (
	"context"

	"github.com/Klingon-tech/eggcore/internal/rpc"
	"github.com/Klingon-tech/eggcore/internal/utxo"
	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/tx"
)

// ChainInfo calls chain_getInfo.
func (c *Client) ChainInfo(ctx context.Context) (*rpc.ChainInfoResult, error) {
	var res rpc.ChainInfoResult
	if err := c.CallContext(ctx, "chain_getInfo", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// BlockByHash calls chain_getBlockByHash.
func (c *Client) BlockByHash(ctx context.Context, hash string) (*rpc.BlockResult, error) {
	var res rpc.BlockResult
	if err := c.CallContext(ctx, "chain_getBlockByHash", rpc.HashParam{Hash: hash}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// BlockByHeight calls chain_getBlockByHeight.
func (c *Client) BlockByHeight(ctx context.Context, height uint64) (*rpc.BlockResult, error) {
	var res rpc.BlockResult
	if err := c.CallContext(ctx, "chain_getBlockByHeight", rpc.HeightParam{Height: height}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UTXO calls utxo_get.
func (c *Client) UTXO(ctx context.Context, txID string, index uint32) (*utxo.UTXO, error) {
	var res utxo.UTXO
	if err := c.CallContext(ctx, "utxo_get", rpc.OutpointParam{TxID: txID, Index: index}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UTXOsByAddress calls utxo_getByAddress.
func (c *Client) UTXOsByAddress(ctx context.Context, address string) (*rpc.UTXOListResult, error) {
	var res rpc.UTXOListResult
	if err := c.CallContext(ctx, "utxo_getByAddress", rpc.AddressParam{Address: address}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Commitment calls utxo_getCommitment.
func (c *Client) Commitment(ctx context.Context) (*rpc.CommitmentResult, error) {
	var res rpc.CommitmentResult
	if err := c.CallContext(ctx, "utxo_getCommitment", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SubmitTx calls tx_submit.
func (c *Client) SubmitTx(ctx context.Context, t *tx.Transaction) (*rpc.TxSubmitResult, error) {
	var res rpc.TxSubmitResult
	if err := c.CallContext(ctx, "tx_submit", rpc.TxSubmitParam{Transaction: t}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SubmitBlock calls mining_submitBlock.
func (c *Client) SubmitBlock(ctx context.Context, blk *block.Block) (*rpc.BlockSubmitResult, error) {
	var res rpc.BlockSubmitResult
	if err := c.CallContext(ctx, "mining_submitBlock", rpc.BlockSubmitParam{Block: blk}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// MempoolInfo calls mempool_getInfo.
func (c *Client) MempoolInfo(ctx context.Context) (*rpc.MempoolInfoResult, error) {
	var res rpc.MempoolInfoResult
	if err := c.CallContext(ctx, "mempool_getInfo", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// FeeEstimate calls fee_estimate.
func (c *Client) FeeEstimate(ctx context.Context) (*rpc.FeeEstimateResult, error) {
	var res rpc.FeeEstimateResult
	if err := c.CallContext(ctx, "fee_estimate", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PeerInfo calls net_getPeerInfo.
func (c *Client) PeerInfo(ctx context.Context) (*rpc.PeerInfoResult, error) {
	var res rpc.PeerInfoResult
	if err := c.CallContext(ctx, "net_getPeerInfo", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// BanList calls net_getBanList.
func (c *Client) BanList(ctx context.Context) (*rpc.BanListResult, error) {
	var res rpc.BanListResult
	if err := c.CallContext(ctx, "net_getBanList", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
