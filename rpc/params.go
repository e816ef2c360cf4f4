package rpc

import (
	"encoding/json"
	"fmt"

	"meshstate/core"
)

func paramString(params []json.RawMessage, i int) (string, error) {
	if i >= len(params) {
		return "", &wireError{rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("missing parameter %d", i)}}
	}
	var s string
	if err := json.Unmarshal(params[i], &s); err != nil {
		return "", &wireError{rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("parameter %d must be a string", i)}}
	}
	return s, nil
}

func paramAddr(params []json.RawMessage, i int) (core.Address, error) {
	s, err := paramString(params, i)
	if err != nil {
		return core.Address{}, err
	}
	addr, err := core.ParseAddress(s)
	if err != nil {
		return core.Address{}, &wireError{rpcError{Code: codeInvalidParams, Message: err.Error()}}
	}
	return addr, nil
}

func paramTokenID(params []json.RawMessage, i int) (core.TokenId, error) {
	if i >= len(params) {
		return 0, &wireError{rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("missing parameter %d", i)}}
	}
	var v uint64
	if err := json.Unmarshal(params[i], &v); err != nil {
		return 0, &wireError{rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("parameter %d must be a token id", i)}}
	}
	return core.TokenId(v), nil
}

func paramTokenIDOptional(params []json.RawMessage, i int, def core.TokenId) (core.TokenId, error) {
	if i >= len(params) {
		return def, nil
	}
	return paramTokenID(params, i)
}

func paramUint64(params []json.RawMessage, i int) (uint64, error) {
	if i >= len(params) {
		return 0, &wireError{rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("missing parameter %d", i)}}
	}
	var v uint64
	if err := json.Unmarshal(params[i], &v); err != nil {
		return 0, &wireError{rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("parameter %d must be a uint64", i)}}
	}
	return v, nil
}

func paramAmount(params []json.RawMessage, i int) (core.Uint128, error) {
	s, err := paramString(params, i)
	if err != nil {
		return core.Uint128{}, err
	}
	v, err := decodeAmount(s)
	if err != nil {
		return core.Uint128{}, &wireError{rpcError{Code: codeInvalidParams, Message: "malformed amount: " + err.Error()}}
	}
	return v, nil
}

func paramSig(params []json.RawMessage, i int) ([64]byte, error) {
	s, err := paramString(params, i)
	if err != nil {
		return [64]byte{}, err
	}
	raw, err := decodeHex(s)
	if err != nil || len(raw) != 64 {
		return [64]byte{}, &wireError{rpcError{Code: codeInvalidParams, Message: "signature_hex must decode to 64 bytes"}}
	}
	var sig [64]byte
	copy(sig[:], raw)
	return sig, nil
}

func paramHexBlob(params []json.RawMessage, i int) ([]byte, error) {
	s, err := paramString(params, i)
	if err != nil {
		return nil, err
	}
	raw, err := decodeHex(s)
	if err != nil {
		return nil, &wireError{rpcError{Code: codeInvalidParams, Message: "malformed hex_encoded_message: " + err.Error()}}
	}
	return raw, nil
}
