// Package rpc implements the JSON-RPC 2.0 API server.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Klingon-tech/eggcore/config"
	"github.com/Klingon-tech/eggcore/internal/chain"
	klog "github.com/Klingon-tech/eggcore/internal/log"
	"github.com/Klingon-tech/eggcore/internal/mempool"
	"github.com/Klingon-tech/eggcore/internal/metrics"
	"github.com/Klingon-tech/eggcore/internal/p2p"
	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/tx"
)

// maxBodySize is the maximum allowed request body size. A block
// submission must fit.
const maxBodySize = 3 * block.MaxBlockSize

// Submitter accepts transactions and blocks on behalf of the node, so
// orphan handling and relay stay in one place.
type Submitter interface {
	SubmitTx(t *tx.Transaction) (uint64, error)
	SubmitBlock(blk *block.Block) (bool, error)
}

// Backend is what the server reads from and submits to.
type Backend struct {
	Network   string
	Chain     *chain.Chain
	Pool      *mempool.Pool
	Estimator *mempool.Estimator
	Node      Submitter
	P2P       *p2p.Node // nil when networking is disabled
}

type handlerFunc func(*Request) (interface{}, *Error)

// Server is the JSON-RPC 2.0 HTTP server.
type Server struct {
	addr        string
	backend     Backend
	methods     map[string]handlerFunc
	server      *http.Server
	ln          net.Listener
	allowedNets []*net.IPNet // empty = allow all
	corsOrigins []string
}

// New creates an RPC server on addr. rpcCfg controls IP filtering and CORS.
func New(addr string, backend Backend, rpcCfg config.RPCConfig) *Server {
	s := &Server{
		addr:        addr,
		backend:     backend,
		allowedNets: parseAllowedIPs(rpcCfg.AllowedIPs),
		corsOrigins: rpcCfg.CORSOrigins,
	}
	s.methods = map[string]handlerFunc{
		"chain_getInfo":          s.handleChainGetInfo,
		"chain_getBlockByHash":   s.handleChainGetBlockByHash,
		"chain_getBlockByHeight": s.handleChainGetBlockByHeight,
		"utxo_get":               s.handleUTXOGet,
		"utxo_getByAddress":      s.handleUTXOGetByAddress,
		"utxo_getCommitment":     s.handleUTXOGetCommitment,
		"tx_submit":              s.handleTxSubmit,
		"mempool_getInfo":        s.handleMempoolGetInfo,
		"fee_estimate":           s.handleFeeEstimate,
		"mining_submitBlock":     s.handleMiningSubmitBlock,
		"net_getPeerInfo":        s.handleNetGetPeerInfo,
		"net_getBanList":         s.handleNetGetBanList,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.filterIP(promhttp.Handler()))
	mux.Handle("/", s.filterIP(http.HandlerFunc(s.handleRequest)))

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// parseAllowedIPs converts IP and CIDR entries into networks. Entries
// that parse as neither are skipped; config validation reports them.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		if _, ipNet, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			klog.RPC.Error().Err(err).Msg("RPC server error")
		}
	}()
	klog.RPC.Info().Str("addr", ln.Addr().String()).Msg("RPC server listening")
	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) filterIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowedNets) > 0 {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			ip := net.ParseIP(host)
			if err != nil || ip == nil || !s.isIPAllowed(ip) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, `jsonrpc must be "2.0"`)
		return
	}

	started := time.Now()
	result, rpcErr := s.dispatch(&req)
	label := req.Method
	if _, ok := s.methods[label]; !ok {
		label = "unknown"
	}
	metrics.ObserveRPC(label, rpcErr != nil, started)

	if rpcErr != nil {
		klog.RPC.Debug().Str("method", req.Method).Int("code", rpcErr.Code).Msg(rpcErr.Message)
		writeJSON(w, Response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID})
		return
	}
	writeJSON(w, Response{JSONRPC: "2.0", Result: result, ID: req.ID})
}

func (s *Server) dispatch(req *Request) (interface{}, *Error) {
	h, ok := s.methods[req.Method]
	if !ok {
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
	return h(req)
}

func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{JSONRPC: "2.0", Error: &Error{Code: code, Message: message}, ID: id})
}

func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if len(s.corsOrigins) == 0 || origin == "" {
		return
	}
	for _, o := range s.corsOrigins {
		if o == "*" || o == origin {
			w.Header().Set("Access-Control-Allow-Origin", o)
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			return
		}
	}
}

// parseParams unmarshals the request params into target.
func parseParams(req *Request, target interface{}) *Error {
	if req.Params == nil {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}
	data, err := json.Marshal(req.Params)
	if err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid params"}
	}
	if err := json.Unmarshal(data, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}
