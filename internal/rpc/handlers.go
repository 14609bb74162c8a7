package rpc

import (
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/eggcore/internal/chain"
	"github.com/Klingon-tech/eggcore/internal/mempool"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// ── Chain endpoints ─────────────────────────────────────────────────────

func (s *Server) handleChainGetInfo(_ *Request) (interface{}, *Error) {
	c := s.backend.Chain
	st := c.State()
	info := &ChainInfoResult{
		Network:     s.backend.Network,
		GenesisHash: c.GenesisHash().String(),
		Height:      st.Height,
		TipHash:     st.TipHash.String(),
		TotalWork:   st.TotalWork.String(),
		KnownBlocks: c.BlockCount(),
	}
	if err := c.Halted(); err != nil {
		info.Halted = err.Error()
	}
	return info, nil
}

func (s *Server) handleChainGetBlockByHash(req *Request) (interface{}, *Error) {
	var params HashParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	hash, rpcErr := decodeHash(params.Hash)
	if rpcErr != nil {
		return nil, rpcErr
	}

	meta, ok := s.backend.Chain.GetMeta(hash)
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: "block not found"}
	}
	blk, err := s.backend.Chain.GetBlock(hash)
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("block not found: %v", err)}
	}
	return NewBlockResult(blk, meta.Height), nil
}

func (s *Server) handleChainGetBlockByHeight(req *Request) (interface{}, *Error) {
	var params HeightParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	blk, err := s.backend.Chain.GetBlockByHeight(params.Height)
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("block not found at height %d: %v", params.Height, err)}
	}
	return NewBlockResult(blk, params.Height), nil
}

// ── UTXO endpoints ──────────────────────────────────────────────────────

func (s *Server) handleUTXOGet(req *Request) (interface{}, *Error) {
	var params OutpointParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	txID, rpcErr := decodeHash(params.TxID)
	if rpcErr != nil {
		return nil, rpcErr
	}

	u, err := s.backend.Chain.GetUTXO(types.Outpoint{TxID: txID, Index: params.Index})
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: "utxo not found"}
	}
	return u, nil
}

func (s *Server) handleUTXOGetByAddress(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := decodeAddress(params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	utxos, err := s.backend.Chain.UTXOsByAddress(addr)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("utxo lookup: %v", err)}
	}
	res := &UTXOListResult{Address: addr.String(), UTXOs: utxos}
	for _, u := range utxos {
		res.Balance += u.Value
	}
	return res, nil
}

func (s *Server) handleUTXOGetCommitment(_ *Request) (interface{}, *Error) {
	// Tip and commitment are read separately; a block landing in
	// between is reported by comparing tip_hash on a second call.
	st := s.backend.Chain.State()
	commitment, err := s.backend.Chain.UTXOCommitment()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("utxo commitment: %v", err)}
	}
	return &CommitmentResult{
		Height:     st.Height,
		TipHash:    st.TipHash.String(),
		Commitment: commitment.String(),
	}, nil
}

// ── Transaction and block submission ────────────────────────────────────

func (s *Server) handleTxSubmit(req *Request) (interface{}, *Error) {
	var params TxSubmitParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Transaction == nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "transaction is required"}
	}
	if s.backend.Node == nil {
		return nil, &Error{Code: CodeUnavailable, Message: "transaction relay unavailable"}
	}

	fee, err := s.backend.Node.SubmitTx(params.Transaction)
	switch {
	case errors.Is(err, mempool.ErrMissingInputs):
		// Held as an orphan until its parents arrive.
		return &TxSubmitResult{TxHash: params.Transaction.Hash().String()}, nil
	case err != nil:
		return nil, &Error{Code: CodeRejected, Message: err.Error()}
	}
	return &TxSubmitResult{TxHash: params.Transaction.Hash().String(), Fee: fee}, nil
}

func (s *Server) handleMiningSubmitBlock(req *Request) (interface{}, *Error) {
	var params BlockSubmitParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Block == nil || params.Block.Header == nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "block with header is required"}
	}
	if s.backend.Node == nil {
		return nil, &Error{Code: CodeUnavailable, Message: "block submission unavailable"}
	}

	accepted, err := s.backend.Node.SubmitBlock(params.Block)
	switch {
	case err == nil, errors.Is(err, chain.ErrUnknownParent):
		// An orphan is buffered, not rejected.
	case chain.IsValidation(err):
		return nil, &Error{Code: CodeRejected, Message: err.Error()}
	default:
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	st := s.backend.Chain.State()
	return &BlockSubmitResult{
		BlockHash: params.Block.Hash().String(),
		Accepted:  accepted,
		Tip:       st.TipHash.String(),
		Height:    st.Height,
	}, nil
}

// ── Mempool and fees ────────────────────────────────────────────────────

func (s *Server) handleMempoolGetInfo(_ *Request) (interface{}, *Error) {
	pool := s.backend.Pool
	hashes := pool.Hashes()
	res := &MempoolInfoResult{Count: len(hashes), Hashes: make([]string, len(hashes))}
	for i, h := range hashes {
		res.Hashes[i] = h.String()
	}
	for _, fee := range pool.FeeList() {
		res.TotalFees += fee
	}
	return res, nil
}

func (s *Server) handleFeeEstimate(_ *Request) (interface{}, *Error) {
	if s.backend.Estimator == nil {
		return nil, &Error{Code: CodeUnavailable, Message: "fee estimator unavailable"}
	}
	est := s.backend.Estimator.Estimate(s.backend.Pool)
	return &est, nil
}

// ── Network ─────────────────────────────────────────────────────────────

func (s *Server) handleNetGetPeerInfo(_ *Request) (interface{}, *Error) {
	node := s.backend.P2P
	if node == nil {
		return nil, &Error{Code: CodeUnavailable, Message: "p2p disabled"}
	}
	peers := node.PeerList()
	res := &PeerInfoResult{
		ID:    node.ID().String(),
		Addrs: node.Addrs(),
		Count: len(peers),
		Peers: make([]PeerInfo, len(peers)),
	}
	for i, p := range peers {
		res.Peers[i] = PeerInfo{
			ID:          p.ID.String(),
			Source:      p.Source,
			Height:      p.Height,
			ConnectedAt: p.ConnectedAt.UTC().Format(time.RFC3339),
		}
	}
	return res, nil
}

func (s *Server) handleNetGetBanList(_ *Request) (interface{}, *Error) {
	node := s.backend.P2P
	if node == nil || node.BanManager == nil {
		return nil, &Error{Code: CodeUnavailable, Message: "p2p disabled"}
	}
	bans := node.BanManager.BanList()
	res := &BanListResult{Count: len(bans), Bans: make([]BanEntry, len(bans))}
	for i, b := range bans {
		res.Bans[i] = BanEntry{
			ID:        b.ID,
			Reason:    b.Reason,
			Score:     b.Score,
			BannedAt:  b.BannedAt,
			ExpiresAt: b.ExpiresAt,
		}
	}
	return res, nil
}

// ── Param helpers ───────────────────────────────────────────────────────

func decodeHash(s string) (types.Hash, *Error) {
	if s == "" {
		return types.Hash{}, &Error{Code: CodeInvalidParams, Message: "hash is required"}
	}
	h, err := types.HexToHash(s)
	if err != nil {
		return types.Hash{}, &Error{Code: CodeInvalidParams, Message: "invalid hash: must be 32-byte hex"}
	}
	return h, nil
}

func decodeAddress(s string) (types.Address, *Error) {
	if s == "" {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: "address is required"}
	}
	addr, err := types.ParseAddress(s)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid address: %v", err)}
	}
	return addr, nil
}
