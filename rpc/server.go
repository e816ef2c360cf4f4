// Package rpc implements meshstate's submit/query surface (§4.7/§6):
// JSON-RPC 2.0 over HTTP POST with a fixed method-name list. The teacher
// pack's go-ethereum rpc package enforces a namespace_method registration
// convention that cannot reproduce this spec's mixed camelCase/snake_case,
// sometimes-namespaced names verbatim, so the dispatcher here is
// hand-rolled; go-ethereum's hexutil is still used for hex/amount field
// codecs to keep that dependency concretely exercised (see DESIGN.md).
package rpc

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"

	"meshstate/bridge"
	"meshstate/core"
	"meshstate/p2p"
)

// Standard JSON-RPC 2.0 error codes plus meshstate's application codes
// (§6).
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603

	codeRootMismatch        = 1
	codeNonceMismatch       = 2
	codeInsufficientBalance = 3
	codeInvalidSignature    = 4
	codeUnknownToken        = 5
	codeSupplyExceeded      = 6
	codeProofInvalid        = 7
)

var errCodeByMeshstateError = map[string]int{
	"RootMismatch":        codeRootMismatch,
	"NonceMismatch":       codeNonceMismatch,
	"InsufficientBalance": codeInsufficientBalance,
	"InvalidSignature":    codeInvalidSignature,
	"UnknownToken":        codeUnknownToken,
	"SupplyExceeded":      codeSupplyExceeded,
	"ProofInvalid":        codeProofInvalid,
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server dispatches JSON-RPC 2.0 calls against a node's StateEngine,
// optional Bridge, and optional p2p Node (for broadcast/get_peer_id).
type Server struct {
	engine *core.StateEngine
	store  core.KVStore
	bridge *bridge.Bridge
	node   *p2p.Node
	log    *logrus.Logger
}

// NewServer constructs a Server. bridge and node may be nil for a
// deployment that exposes only the state-query surface. store is the same
// KVStore the engine was built over, and backs get_full_state/
// set_full_state.
func NewServer(engine *core.StateEngine, store core.KVStore, br *bridge.Bridge, node *p2p.Node, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{engine: engine, store: store, bridge: br, node: node, log: log}
}

// ServeHTTP implements http.Handler, dispatching a single JSON-RPC 2.0
// request per POST body.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, response{JSONRPC: "2.0", Error: &rpcError{Code: codeParseError, Message: "parse error"}})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeJSON(w, response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: codeInvalidRequest, Message: "invalid request"}})
		return
	}

	var params []json.RawMessage
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			writeJSON(w, response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: codeInvalidParams, Message: "params must be an array"}})
			return
		}
	}

	result, err := s.dispatch(r, req.Method, params)
	if err != nil {
		writeJSON(w, response{JSONRPC: "2.0", ID: req.ID, Error: toRPCError(err)})
		return
	}
	writeJSON(w, response{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func writeJSON(w http.ResponseWriter, resp response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func toRPCError(err error) *rpcError {
	if we, ok := err.(*wireError); ok {
		return &we.rpcError
	}
	if me, ok := core.AsError(err); ok {
		if code, ok := errCodeByMeshstateError[me.Code]; ok {
			return &rpcError{Code: code, Message: me.Message}
		}
	}
	return &rpcError{Code: codeInternalError, Message: err.Error()}
}

// decodeHex strips an optional 0x/0X prefix and hex-decodes s, per §6's
// "lowercase without 0x prefix unless the field name is an address"
// convention (addresses accept the prefix too; this helper is lenient
// either way rather than rejecting a client that always prefixes).
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}

func encodeHex(b []byte) string { return hex.EncodeToString(b) }

// encodeAmount renders a Uint128 as a 0x-prefixed hex big integer via
// go-ethereum's hexutil, the dependency this package keeps wired for hex
// codecs (see the package doc).
func encodeAmount(v core.Uint128) string { return hexutil.EncodeBig(v.BigInt()) }

func decodeAmount(s string) (core.Uint128, error) {
	big, err := hexutil.DecodeBig(s)
	if err != nil {
		return core.Uint128{}, err
	}
	return core.Uint128FromBigInt(big), nil
}
