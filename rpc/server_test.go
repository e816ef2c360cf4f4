package rpc

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"meshstate/core"
)

func newTestServer(t *testing.T) (*Server, *core.StateEngine, core.KVStore) {
	t.Helper()
	store := core.NewInMemoryStore()
	engine, err := core.NewStateEngine(store, nil)
	if err != nil {
		t.Fatalf("NewStateEngine: %v", err)
	}
	return NewServer(engine, store, nil, nil, nil), engine, store
}

func call(t *testing.T, s *Server, method string, params ...interface{}) map[string]interface{} {
	t.Helper()
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	rec := httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	s.ServeHTTP(rec, httpReq)

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func TestGetRootOnEmptyState(t *testing.T) {
	s, engine, _ := newTestServer(t)
	resp := call(t, s, "getRoot")
	if resp["error"] != nil {
		t.Fatalf("unexpected error: %v", resp["error"])
	}
	result := resp["result"].(map[string]interface{})
	if result["root"] != engine.Root().String() {
		t.Fatalf("root = %v, want %v", result["root"], engine.Root().String())
	}
}

func TestGetBalanceUnknownAccountIsZero(t *testing.T) {
	s, _, _ := newTestServer(t)
	var addr core.Address
	addr[0] = 0x11
	resp := call(t, s, "getBalance", addr.String())
	if resp["error"] != nil {
		t.Fatalf("unexpected error: %v", resp["error"])
	}
	result := resp["result"].(map[string]interface{})
	if result["balance"] != "0x0" {
		t.Fatalf("balance = %v, want 0x0", result["balance"])
	}
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)
	resp := call(t, s, "doesNotExist")
	errObj, ok := resp["error"].(map[string]interface{})
	if !ok {
		t.Fatal("expected an error object")
	}
	if int(errObj["code"].(float64)) != codeMethodNotFound {
		t.Fatalf("code = %v, want %d", errObj["code"], codeMethodNotFound)
	}
}

// TestSendAppliesSimpleTransferAndReportsAccepted exercises the intent-signed
// "send" RPC path end to end: alice self-issues a custom token, self-mints a
// balance with it, then sends a portion to bob via the scalar-param RPC
// method (no proofs/roots on the wire — the node fetches those itself; see
// core/intent.go).
func TestSendAppliesSimpleTransferAndReportsAccepted(t *testing.T) {
	s, engine, _ := newTestServer(t)

	alicePub, alicePriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var alice, bob core.Address
	copy(alice[:], alicePub)
	bob[len(bob)-1] = 0x22

	issue := core.IssueToken{Issuer: alice, Metadata: "widget|WID|0", MaxSupply: core.Uint128FromUint64(1_000_000), Nonce: 0}
	core.SignIssueToken(&issue, alicePriv)
	tokenID, err := engine.ApplyIssueToken(issue)
	if err != nil {
		t.Fatalf("ApplyIssueToken: %v", err)
	}

	mintSig := core.SignMintIntent(alice, alice, tokenID, core.Uint128FromUint64(1000), 0, alicePriv)
	if err := engine.ApplySimpleMint(alice, alice, tokenID, core.Uint128FromUint64(1000), 0, mintSig); err != nil {
		t.Fatalf("ApplySimpleMint: %v", err)
	}

	sendSig := core.SignTransferIntent(alice, bob, tokenID, core.Uint128FromUint64(10), 1, alicePriv)
	resp := call(t, s, "send", alice.String(), bob.String(), float64(tokenID), encodeAmount(core.Uint128FromUint64(10)), float64(1), encodeHex(sendSig[:]))
	if resp["error"] != nil {
		t.Fatalf("unexpected error: %v", resp["error"])
	}
	result := resp["result"].(map[string]interface{})
	if result["accepted"] != true {
		t.Fatalf("accepted = %v, want true", result["accepted"])
	}

	bobBalance := call(t, s, "getBalanceWithToken", bob.String(), float64(tokenID))
	if bobBalance["error"] != nil {
		t.Fatalf("unexpected error: %v", bobBalance["error"])
	}
	if got := bobBalance["result"].(map[string]interface{})["balance"]; got != encodeAmount(core.Uint128FromUint64(10)) {
		t.Fatalf("bob balance = %v, want %v", got, encodeAmount(core.Uint128FromUint64(10)))
	}
}
