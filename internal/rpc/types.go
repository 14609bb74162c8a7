package rpc

import (
	"encoding/hex"

	"github.com/Klingon-tech/eggcore/internal/mempool"
	"github.com/Klingon-tech/eggcore/internal/utxo"
	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/tx"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeRejected       = -32001
	CodeUnavailable    = -32002
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// ── Params ──────────────────────────────────────────────────────────────

// HashParam is used by endpoints that take a single hash.
type HashParam struct {
	Hash string `json:"hash"`
}

// HeightParam is used by chain_getBlockByHeight.
type HeightParam struct {
	Height uint64 `json:"height"`
}

// OutpointParam is used by utxo_get.
type OutpointParam struct {
	TxID  string `json:"tx_id"`
	Index uint32 `json:"index"`
}

// AddressParam is used by utxo_getByAddress.
type AddressParam struct {
	Address string `json:"address"`
}

// TxSubmitParam is used by tx_submit.
type TxSubmitParam struct {
	Transaction *tx.Transaction `json:"transaction"`
}

// BlockSubmitParam is used by mining_submitBlock.
type BlockSubmitParam struct {
	Block *block.Block `json:"block"`
}

// ── Results ─────────────────────────────────────────────────────────────

// BlockResult wraps a block with its precomputed hashes.
type BlockResult struct {
	Hash         string        `json:"hash"`
	Height       uint64        `json:"height"`
	Header       *block.Header `json:"header"`
	Transactions []*TxResult   `json:"transactions"`
}

// TxResult wraps a transaction with its precomputed hash.
type TxResult struct {
	Hash    string      `json:"hash"`
	Version uint32      `json:"version"`
	Inputs  []tx.Input  `json:"inputs"`
	Outputs []tx.Output `json:"outputs"`
	Data    string      `json:"data,omitempty"`
}

// NewBlockResult creates a BlockResult for a block at height.
func NewBlockResult(b *block.Block, height uint64) *BlockResult {
	txs := make([]*TxResult, len(b.Transactions))
	for i, t := range b.Transactions {
		txs[i] = NewTxResult(t)
	}
	return &BlockResult{
		Hash:         b.Hash().String(),
		Height:       height,
		Header:       b.Header,
		Transactions: txs,
	}
}

// NewTxResult creates a TxResult from a transaction.
func NewTxResult(t *tx.Transaction) *TxResult {
	return &TxResult{
		Hash:    t.Hash().String(),
		Version: t.Version,
		Inputs:  t.Inputs,
		Outputs: t.Outputs,
		Data:    hex.EncodeToString(t.Data),
	}
}

// ChainInfoResult is returned by chain_getInfo.
type ChainInfoResult struct {
	Network     string `json:"network"`
	GenesisHash string `json:"genesis_hash"`
	Height      uint64 `json:"height"`
	TipHash     string `json:"tip_hash"`
	TotalWork   string `json:"total_work"`
	KnownBlocks int    `json:"known_blocks"`
	Halted      string `json:"halted,omitempty"`
}

// UTXOListResult is returned by utxo_getByAddress.
type UTXOListResult struct {
	Address string       `json:"address"`
	Balance uint64       `json:"balance"`
	UTXOs   []*utxo.UTXO `json:"utxos"`
}

// CommitmentResult is returned by utxo_getCommitment.
type CommitmentResult struct {
	Height     uint64 `json:"height"`
	TipHash    string `json:"tip_hash"`
	Commitment string `json:"commitment"`
}

// TxSubmitResult is returned by tx_submit.
type TxSubmitResult struct {
	TxHash string `json:"tx_hash"`
	Fee    uint64 `json:"fee"`
}

// BlockSubmitResult is returned by mining_submitBlock.
type BlockSubmitResult struct {
	BlockHash string `json:"block_hash"`
	Accepted  bool   `json:"accepted"`
	Tip       string `json:"tip"`
	Height    uint64 `json:"height"`
}

// MempoolInfoResult is returned by mempool_getInfo.
type MempoolInfoResult struct {
	Count     int      `json:"count"`
	TotalFees uint64   `json:"total_fees"`
	Hashes    []string `json:"hashes"`
}

// FeeEstimateResult is returned by fee_estimate.
type FeeEstimateResult = mempool.FeeEstimate

// PeerInfo describes one connected peer.
type PeerInfo struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	Height      uint64 `json:"height"`
	ConnectedAt string `json:"connected_at"`
}

// PeerInfoResult is returned by net_getPeerInfo.
type PeerInfoResult struct {
	ID    string     `json:"id"`
	Addrs []string   `json:"addrs"`
	Count int        `json:"count"`
	Peers []PeerInfo `json:"peers"`
}

// BanEntry describes one active ban.
type BanEntry struct {
	ID        string `json:"id"`
	Reason    string `json:"reason"`
	Score     int    `json:"score"`
	BannedAt  int64  `json:"banned_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// BanListResult is returned by net_getBanList.
type BanListResult struct {
	Count int        `json:"count"`
	Bans  []BanEntry `json:"bans"`
}
