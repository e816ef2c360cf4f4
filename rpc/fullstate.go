package rpc

import (
	"encoding/json"
)

// getFullState dumps every key/value pair in the node's KVStore as
// hex-encoded strings, for get_full_state (§6): a new or recovering peer
// uses this to bootstrap without replaying gossip history.
func (s *Server) getFullState() (interface{}, error) {
	it := s.store.Iterator(nil)
	defer it.Close()

	entries := make(map[string]string)
	for it.Next() {
		entries[encodeHex(it.Key())] = encodeHex(it.Value())
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"root":    s.engine.Root().String(),
		"entries": entries,
	}, nil
}

type fullStateParam struct {
	Entries map[string]string `json:"entries"`
}

// setFullState replaces local storage with a peer-supplied snapshot
// (set_full_state, §6). p2p.SyncSession does not call it: its StateFetcher
// uses get_full_state and SyncSession writes the store itself. It does not
// re-derive and check the root against any target; this handler is the
// low-level write primitive the RPC surface exposes.
func (s *Server) setFullState(params []json.RawMessage) (interface{}, error) {
	if len(params) < 1 {
		return nil, &wireError{rpcError{Code: codeInvalidParams, Message: "missing state object"}}
	}
	var p fullStateParam
	if err := json.Unmarshal(params[0], &p); err != nil {
		return nil, &wireError{rpcError{Code: codeInvalidParams, Message: "malformed state object"}}
	}
	for kHex, vHex := range p.Entries {
		k, err := decodeHex(kHex)
		if err != nil {
			return nil, &wireError{rpcError{Code: codeInvalidParams, Message: "malformed state key"}}
		}
		v, err := decodeHex(vHex)
		if err != nil {
			return nil, &wireError{rpcError{Code: codeInvalidParams, Message: "malformed state value"}}
		}
		if err := s.store.Set(k, v); err != nil {
			return nil, err
		}
	}
	if err := s.engine.ReloadRoot(); err != nil {
		return nil, err
	}
	return map[string]interface{}{"accepted": true, "root": s.engine.Root().String()}, nil
}
