package core

import "testing"

func TestRegisterTokenAssignsSequentialIDs(t *testing.T) {
	tree, err := NewSMT(NewInMemoryStore())
	if err != nil {
		t.Fatalf("NewSMT: %v", err)
	}
	s := NewTokenStore(tree)

	id1, err := s.RegisterToken(TokenInfo{Issuer: addrFromByte(0x11), Metadata: "a|A|0", MaxSupply: Uint128FromUint64(100)})
	if err != nil {
		t.Fatalf("RegisterToken 1: %v", err)
	}
	id2, err := s.RegisterToken(TokenInfo{Issuer: addrFromByte(0x11), Metadata: "b|B|0", MaxSupply: Uint128FromUint64(100)})
	if err != nil {
		t.Fatalf("RegisterToken 2: %v", err)
	}
	if id1 == NativeTokenID || id2 == NativeTokenID {
		t.Fatalf("registered token collided with native token id")
	}
	if id2 != id1+1 {
		t.Fatalf("id2 = %d, want %d", id2, id1+1)
	}
}

func TestGetTokenUnknownReturnsErrUnknownToken(t *testing.T) {
	tree, err := NewSMT(NewInMemoryStore())
	if err != nil {
		t.Fatalf("NewSMT: %v", err)
	}
	s := NewTokenStore(tree)
	if _, err := s.GetToken(TokenId(999)); err != ErrUnknownToken {
		t.Fatalf("GetToken on unregistered id = %v, want ErrUnknownToken", err)
	}
}

func TestUpdateSupplyRejectsExceedingMaxSupply(t *testing.T) {
	tree, err := NewSMT(NewInMemoryStore())
	if err != nil {
		t.Fatalf("NewSMT: %v", err)
	}
	s := NewTokenStore(tree)
	id, err := s.RegisterToken(TokenInfo{Issuer: addrFromByte(0x11), Metadata: "a|A|0", MaxSupply: Uint128FromUint64(100)})
	if err != nil {
		t.Fatalf("RegisterToken: %v", err)
	}
	if err := s.UpdateSupply(id, Uint128FromUint64(101)); err != ErrSupplyExceeded {
		t.Fatalf("UpdateSupply over cap = %v, want ErrSupplyExceeded", err)
	}
	if err := s.UpdateSupply(id, Uint128FromUint64(100)); err != nil {
		t.Fatalf("UpdateSupply at cap: %v", err)
	}
}

func TestEncodeDecodeTokenInfoRoundTrip(t *testing.T) {
	info := TokenInfo{
		TokenID:     7,
		Issuer:      addrFromByte(0x44),
		Metadata:    "widget|WID|2",
		TotalSupply: Uint128FromUint64(12345),
		MaxSupply:   Uint128FromUint64(1_000_000),
	}
	raw := EncodeTokenInfo(info)
	decoded, ok := DecodeTokenInfo(raw)
	if !ok {
		t.Fatal("DecodeTokenInfo rejected a valid encoding")
	}
	if decoded != info {
		t.Fatalf("decoded = %+v, want %+v", decoded, info)
	}
}

func TestDecodeTokenInfoRejectsTruncatedInput(t *testing.T) {
	if _, ok := DecodeTokenInfo([]byte{1, 2, 3}); ok {
		t.Fatal("DecodeTokenInfo accepted a truncated encoding")
	}
}

func TestListTokensIncludesGenesisMintedNative(t *testing.T) {
	store := NewInMemoryStore()
	e, err := NewStateEngine(store, nil)
	if err != nil {
		t.Fatalf("NewStateEngine: %v", err)
	}
	if err := e.ApplyGenesisMint(addrFromByte(0x11), Uint128FromUint64(1000)); err != nil {
		t.Fatalf("ApplyGenesisMint: %v", err)
	}
	toks, err := e.ListTokens()
	if err != nil {
		t.Fatalf("ListTokens: %v", err)
	}
	if len(toks) != 1 || toks[0].TokenID != NativeTokenID {
		t.Fatalf("ListTokens = %+v, want a single native-token entry", toks)
	}
}
