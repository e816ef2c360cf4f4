package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"

	"meshstate/core"
)

func (s *Server) dispatch(r *http.Request, method string, params []json.RawMessage) (interface{}, error) {
	switch method {
	case "getRoot":
		return map[string]string{"root": s.engine.Root().String()}, nil

	case "getBalance":
		addr, err := paramAddr(params, 0)
		if err != nil {
			return nil, err
		}
		return s.balance(addr, core.NativeTokenID)

	case "getBalanceWithToken":
		addr, err := paramAddr(params, 0)
		if err != nil {
			return nil, err
		}
		tid, err := paramTokenID(params, 1)
		if err != nil {
			return nil, err
		}
		return s.balance(addr, tid)

	case "getAllBalances":
		addr, err := paramAddr(params, 0)
		if err != nil {
			return nil, err
		}
		return s.allBalances(addr)

	case "getNonce":
		addr, err := paramAddr(params, 0)
		if err != nil {
			return nil, err
		}
		acc, err := s.engine.GetAccount(addr, core.NativeTokenID)
		if err != nil {
			return nil, err
		}
		return map[string]uint64{"nonce": uint64(acc.Nonce)}, nil

	case "get_nonce_with_token":
		addr, err := paramAddr(params, 0)
		if err != nil {
			return nil, err
		}
		tid, err := paramTokenID(params, 1)
		if err != nil {
			return nil, err
		}
		acc, err := s.engine.GetAccount(addr, tid)
		if err != nil {
			return nil, err
		}
		return map[string]uint64{"nonce": uint64(acc.Nonce)}, nil

	case "getProof":
		addr, err := paramAddr(params, 0)
		if err != nil {
			return nil, err
		}
		return s.proof(addr, core.NativeTokenID)

	case "get_proof_with_token":
		addr, err := paramAddr(params, 0)
		if err != nil {
			return nil, err
		}
		tid, err := paramTokenID(params, 1)
		if err != nil {
			return nil, err
		}
		return s.proof(addr, tid)

	case "get_tokens":
		tokens, err := s.engine.ListTokens()
		if err != nil {
			return nil, err
		}
		out := make([]map[string]interface{}, 0, len(tokens))
		for _, t := range tokens {
			out = append(out, tokenJSON(t))
		}
		return out, nil

	case "get_total_supply":
		tid, err := paramTokenIDOptional(params, 0, core.NativeTokenID)
		if err != nil {
			return nil, err
		}
		t, err := s.engine.GetToken(tid)
		if err != nil {
			return nil, err
		}
		return map[string]string{"total_supply": encodeAmount(t.TotalSupply)}, nil

	case "get_max_supply":
		tid, err := paramTokenIDOptional(params, 0, core.NativeTokenID)
		if err != nil {
			return nil, err
		}
		t, err := s.engine.GetToken(tid)
		if err != nil {
			return nil, err
		}
		return map[string]string{"max_supply": encodeAmount(t.MaxSupply)}, nil

	case "send":
		return s.handleSend(params)

	case "mint":
		return s.handleMint(params)

	case "broadcastUpdate":
		return s.handleBroadcastUpdate(params)

	case "broadcast_mint":
		return s.handleBroadcastMint(params)

	case "p3p_issueToken":
		return s.handleIssueToken(params)

	case "p3p_mintToken":
		return s.handleBroadcastMint(params)

	case "get_full_state":
		return s.getFullState()

	case "set_full_state":
		return s.setFullState(params)

	case "bridge_escrowAddress":
		if s.bridge == nil {
			return nil, core.NewProtocolError("PeerUnavailable", "no bridge configured")
		}
		return map[string]string{"escrow": s.bridge.Escrow().String()}, nil

	case "bridge_startLock":
		return s.handleBridgeStartLock(params)

	case "bridge_ackExternalMint":
		return s.handleBridgeAck(params)

	case "bridge_submitRelease":
		return s.handleBridgeSubmitRelease(params)

	case "bridge_status":
		return s.handleBridgeStatus(params)

	case "get_peer_id":
		if s.node == nil {
			return nil, core.NewProtocolError("PeerUnavailable", "node has no p2p identity configured")
		}
		return map[string]string{"peer_id": s.node.ID().String()}, nil

	default:
		return nil, &wireError{rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method %q", method)}}
	}
}

// wireError lets dispatch surface a raw JSON-RPC error code/message pair
// without going through the core.Error application-code table.
type wireError struct{ rpcError }

func (w *wireError) Error() string { return w.Message }

func (s *Server) balance(addr core.Address, tokenID core.TokenId) (interface{}, error) {
	acc, err := s.engine.GetAccount(addr, tokenID)
	if err != nil {
		return nil, err
	}
	return map[string]string{"balance": encodeAmount(acc.Balance)}, nil
}

func (s *Server) allBalances(addr core.Address) (interface{}, error) {
	tokens, err := s.engine.ListTokens()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(tokens)+1)
	native, err := s.engine.GetAccount(addr, core.NativeTokenID)
	if err != nil {
		return nil, err
	}
	out = append(out, map[string]interface{}{"token_id": uint64(core.NativeTokenID), "balance": encodeAmount(native.Balance)})
	for _, t := range tokens {
		if t.TokenID == core.NativeTokenID {
			continue
		}
		acc, err := s.engine.GetAccount(addr, t.TokenID)
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]interface{}{"token_id": uint64(t.TokenID), "balance": encodeAmount(acc.Balance)})
	}
	return out, nil
}

func (s *Server) proof(addr core.Address, tokenID core.TokenId) (interface{}, error) {
	p, err := s.engine.GetProof(addr, tokenID)
	if err != nil {
		return nil, err
	}
	return map[string]string{"proof": encodeHex(core.EncodeProof(p))}, nil
}

func tokenJSON(t core.TokenInfo) map[string]interface{} {
	return map[string]interface{}{
		"token_id":     uint64(t.TokenID),
		"issuer":       t.Issuer.String(),
		"metadata":     t.Metadata,
		"total_supply": encodeAmount(t.TotalSupply),
		"max_supply":   encodeAmount(t.MaxSupply),
	}
}

func (s *Server) handleSend(params []json.RawMessage) (interface{}, error) {
	from, err := paramAddr(params, 0)
	if err != nil {
		return nil, err
	}
	to, err := paramAddr(params, 1)
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
	nonce, err := paramUint64(params, 4)
	if err != nil {
		return nil, err
	}
	sig, err := paramSig(params, 5)
	if err != nil {
		return nil, err
	}
	if err := s.engine.ApplySimpleTransfer(from, to, tokenID, amount, core.Nonce(nonce), sig); err != nil {
		return nil, err
	}
	msgID := msgIDForSimpleTransfer(from, to, tokenID, amount, core.Nonce(nonce), sig)
	return map[string]interface{}{"accepted": true, "msg_id": msgID.String()}, nil
}

func (s *Server) handleMint(params []json.RawMessage) (interface{}, error) {
	from, err := paramAddr(params, 0)
	if err != nil {
		return nil, err
	}
	sig, err := paramSig(params, 1)
	if err != nil {
		return nil, err
	}
	to, err := paramAddr(params, 2)
	if err != nil {
		return nil, err
	}
	amount, err := paramAmount(params, 3)
	if err != nil {
		return nil, err
	}
	acc, err := s.engine.GetAccount(from, core.NativeTokenID)
	if err != nil {
		return nil, err
	}
	if err := s.engine.ApplySimpleMint(from, to, core.NativeTokenID, amount, acc.Nonce, sig); err != nil {
		return nil, err
	}
	return map[string]interface{}{"accepted": true}, nil
}

// handleBroadcastUpdate accepts a fully-formed, already-signed message
// object (a Transfer or Burn, carrying its own proofs/roots) and applies it
// through the full untrusted-message validation path, then re-gossips it
// if a p2p Node is attached.
func (s *Server) handleBroadcastUpdate(params []json.RawMessage) (interface{}, error) {
	raw, err := paramHexBlob(params, 0)
	if err != nil {
		return nil, err
	}
	if len(raw) < 1 {
		return nil, &wireError{rpcError{Code: codeInvalidParams, Message: "empty message"}}
	}
	switch core.MsgKind(raw[0]) {
	case core.KindTransfer:
		t, ok := core.DecodeTransferFromGossip(raw)
		if !ok {
			return nil, &wireError{rpcError{Code: codeInvalidParams, Message: "malformed transfer"}}
		}
		if err := s.engine.ApplyTransfer(t); err != nil {
			return nil, err
		}
		if s.node != nil {
			_ = s.node.PublishTransfer(t)
		}
		return map[string]interface{}{"accepted": true, "msg_id": t.MsgID().String()}, nil
	case core.KindBurn:
		b, ok := core.DecodeBurnFromGossip(raw)
		if !ok {
			return nil, &wireError{rpcError{Code: codeInvalidParams, Message: "malformed burn"}}
		}
		if err := s.engine.ApplyBurn(b); err != nil {
			return nil, err
		}
		if s.node != nil {
			_ = s.node.PublishBurn(b)
		}
		return map[string]interface{}{"accepted": true, "msg_id": b.MsgID().String()}, nil
	default:
		return nil, &wireError{rpcError{Code: codeInvalidParams, Message: "unsupported message kind for broadcastUpdate"}}
	}
}

func (s *Server) handleBroadcastMint(params []json.RawMessage) (interface{}, error) {
	raw, err := paramHexBlob(params, 0)
	if err != nil {
		return nil, err
	}
	m, ok := core.DecodeMintFromGossip(raw)
	if !ok {
		return nil, &wireError{rpcError{Code: codeInvalidParams, Message: "malformed mint"}}
	}
	if err := s.engine.ApplyMint(m); err != nil {
		return nil, err
	}
	if s.node != nil {
		_ = s.node.PublishMint(m)
	}
	return map[string]interface{}{"accepted": true, "msg_id": m.MsgID().String()}, nil
}

func (s *Server) handleIssueToken(params []json.RawMessage) (interface{}, error) {
	raw, err := paramHexBlob(params, 0)
	if err != nil {
		return nil, err
	}
	i, ok := core.DecodeIssueTokenFromGossip(raw)
	if !ok {
		return nil, &wireError{rpcError{Code: codeInvalidParams, Message: "malformed issue_token"}}
	}
	id, err := s.engine.ApplyIssueToken(i)
	if err != nil {
		return nil, err
	}
	if s.node != nil {
		_ = s.node.PublishIssueToken(i)
	}
	return map[string]interface{}{"accepted": true, "msg_id": i.MsgID().String(), "token_id": uint64(id)}, nil
}

func msgIDForSimpleTransfer(from, to core.Address, tokenID core.TokenId, amount core.Uint128, nonce core.Nonce, sig [64]byte) core.Hash {
	t := core.Transfer{From: from, To: to, TokenID: tokenID, Amount: amount, Nonce: nonce, Signature: sig}
	return t.MsgID()
}
