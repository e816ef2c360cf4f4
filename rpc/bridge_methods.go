package rpc

import (
	"encoding/json"

	"meshstate/core"
)

// Bridge-facing RPC methods (bridge_*) are an extension beyond spec.md §6's
// fixed list, which that section calls "non-exhaustive": a node operator's
// bridge watcher needs a wire surface to drive bridge/bridge.go's state
// machine the same way wallets drive send/mint.

func (s *Server) handleBridgeStartLock(params []json.RawMessage) (interface{}, error) {
	if s.bridge == nil {
		return nil, core.NewProtocolError("PeerUnavailable", "no bridge configured")
	}
	caller, err := paramAddr(params, 0)
	if err != nil {
		return nil, err
	}
	tokenID, err := paramTokenID(params, 1)
	if err != nil {
		return nil, err
	}
	amount, err := paramAmount(params, 2)
	if err != nil {
		return nil, err
	}
	lr, err := s.bridge.StartLock(caller, tokenID, amount)
	if err != nil {
		return nil, err
	}
	return lr, nil
}

func (s *Server) handleBridgeAck(params []json.RawMessage) (interface{}, error) {
	if s.bridge == nil {
		return nil, core.NewProtocolError("PeerUnavailable", "no bridge configured")
	}
	id, err := paramString(params, 0)
	if err != nil {
		return nil, err
	}
	replay, err := s.bridge.AckExternalMint(id)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"accepted": true, "replay": replay}, nil
}

func (s *Server) handleBridgeSubmitRelease(params []json.RawMessage) (interface{}, error) {
	if s.bridge == nil {
		return nil, core.NewProtocolError("PeerUnavailable", "no bridge configured")
	}
	extTxHash, err := paramString(params, 0)
	if err != nil {
		return nil, err
	}
	dst, err := paramAddr(params, 1)
	if err != nil {
		return nil, err
	}
	tokenID, err := paramTokenID(params, 2)
	if err != nil {
		return nil, err
	}
	amount, err := paramAmount(params, 3)
	if err != nil {
		return nil, err
	}
	rr, err := s.bridge.SubmitRelease(extTxHash, dst, tokenID, amount)
	if err != nil {
		return nil, err
	}
	return rr, nil
}

func (s *Server) handleBridgeStatus(params []json.RawMessage) (interface{}, error) {
	if s.bridge == nil {
		return nil, core.NewProtocolError("PeerUnavailable", "no bridge configured")
	}
	id, err := paramString(params, 0)
	if err != nil {
		return nil, err
	}
	if lr, err := s.bridge.GetLockReceipt(id); err == nil {
		return lr, nil
	}
	rr, err := s.bridge.GetReleaseRequest(id)
	if err != nil {
		return nil, core.NewProtocolError("UnknownToken", "no lock receipt or release request with that id")
	}
	return rr, nil
}
