package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"meshstate/core"
)

// Client is a thin JSON-RPC 2.0 caller used to fetch a peer's full state
// over HTTP, implementing p2p.StateFetcher so p2p.SyncSession can converge
// a lagging node without p2p importing this package.
type Client struct {
	http *http.Client
}

// NewClient constructs a Client with a bounded per-call timeout.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: 30 * time.Second}}
}

type clientRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type clientResponse struct {
	Result *fullStateResult `json:"result"`
	Error  *rpcError        `json:"error"`
}

type fullStateResult struct {
	Root    string            `json:"root"`
	Entries map[string]string `json:"entries"`
}

// FetchFullState calls get_full_state (§6) against peerAddr, a bare
// host:port or a fully-qualified http(s) URL, and decodes the hex-encoded
// entries and root into their native forms.
func (c *Client) FetchFullState(ctx context.Context, peerAddr string) (map[string][]byte, core.Hash, error) {
	url := peerAddr
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	reqBody, err := json.Marshal(clientRequest{JSONRPC: "2.0", ID: 1, Method: "get_full_state"})
	if err != nil {
		return nil, core.Hash{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, core.Hash{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, core.Hash{}, fmt.Errorf("rpc: fetch full state from %s: %w", peerAddr, err)
	}
	defer resp.Body.Close()

	var cr clientResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, core.Hash{}, fmt.Errorf("rpc: decode full state response from %s: %w", peerAddr, err)
	}
	if cr.Error != nil {
		return nil, core.Hash{}, fmt.Errorf("rpc: %s returned error %d: %s", peerAddr, cr.Error.Code, cr.Error.Message)
	}
	if cr.Result == nil {
		return nil, core.Hash{}, fmt.Errorf("rpc: %s returned no result", peerAddr)
	}

	root, err := core.HashFromString(cr.Result.Root)
	if err != nil {
		return nil, core.Hash{}, fmt.Errorf("rpc: malformed root from %s: %w", peerAddr, err)
	}

	entries := make(map[string][]byte, len(cr.Result.Entries))
	for kHex, vHex := range cr.Result.Entries {
		k, err := decodeHex(kHex)
		if err != nil {
			return nil, core.Hash{}, fmt.Errorf("rpc: malformed state key from %s: %w", peerAddr, err)
		}
		v, err := decodeHex(vHex)
		if err != nil {
			return nil, core.Hash{}, fmt.Errorf("rpc: malformed state value from %s: %w", peerAddr, err)
		}
		entries[string(k)] = v
	}
	return entries, root, nil
}
