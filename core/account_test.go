package core

import "testing"

func TestGetAccountAbsentReturnsEmptyLeaf(t *testing.T) {
	tree, err := NewSMT(NewInMemoryStore())
	if err != nil {
		t.Fatalf("NewSMT: %v", err)
	}
	s := NewAccountStore(tree)
	addr := addrFromByte(0x11)
	acc, err := s.GetAccount(addr, NativeTokenID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !acc.Balance.IsZero() || acc.Nonce != 0 {
		t.Fatalf("absent account = %+v, want zero balance and nonce", acc)
	}
}

func TestApplyDeltaReclaimsEmptyLeaf(t *testing.T) {
	tree, err := NewSMT(NewInMemoryStore())
	if err != nil {
		t.Fatalf("NewSMT: %v", err)
	}
	s := NewAccountStore(tree)
	addr := addrFromByte(0x22)

	if _, err := s.ApplyDelta(addr, NativeTokenID, Uint128FromUint64(50), 1); err != nil {
		t.Fatalf("ApplyDelta credit: %v", err)
	}
	root, err := s.ApplyDelta(addr, NativeTokenID, Uint128FromUint64(0), 0)
	if err != nil {
		t.Fatalf("ApplyDelta reclaim: %v", err)
	}
	if root != zeroHash[treeDepth] {
		t.Fatalf("root after reclaiming the only leaf = %s, want the empty root", root)
	}
}

func TestProveAccountMatchesEngineRoot(t *testing.T) {
	tree, err := NewSMT(NewInMemoryStore())
	if err != nil {
		t.Fatalf("NewSMT: %v", err)
	}
	s := NewAccountStore(tree)
	addr := addrFromByte(0x33)

	root, err := s.ApplyDelta(addr, NativeTokenID, Uint128FromUint64(10), 1)
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	p, err := s.ProveAccount(addr, NativeTokenID)
	if err != nil {
		t.Fatalf("ProveAccount: %v", err)
	}
	leaf := AccountLeaf{Address: addr, TokenID: NativeTokenID, Balance: Uint128FromUint64(10), Nonce: 1}
	if !Verify(p, AccountKey(addr, NativeTokenID), EncodeAccountLeaf(leaf), root) {
		t.Fatal("Verify rejected the account's own membership proof")
	}
}

func TestEncodeDecodeAccountLeafRoundTrip(t *testing.T) {
	leaf := AccountLeaf{
		Address: addrFromByte(0x44),
		TokenID: 9,
		Balance: Uint128FromUint64(777),
		Nonce:   3,
	}
	raw := EncodeAccountLeaf(leaf)
	decoded, ok := DecodeAccountLeaf(raw)
	if !ok {
		t.Fatal("DecodeAccountLeaf rejected a valid encoding")
	}
	if decoded != leaf {
		t.Fatalf("decoded = %+v, want %+v", decoded, leaf)
	}
}

func TestDecodeAccountLeafRejectsWrongLength(t *testing.T) {
	if _, ok := DecodeAccountLeaf([]byte{1, 2, 3}); ok {
		t.Fatal("DecodeAccountLeaf accepted a wrong-length encoding")
	}
}

func TestAccountKeyIsStableAndDistinctPerToken(t *testing.T) {
	addr := addrFromByte(0x55)
	k0 := AccountKey(addr, NativeTokenID)
	k1 := AccountKey(addr, TokenId(1))
	if k0 == k1 {
		t.Fatal("AccountKey collided across distinct token ids for the same address")
	}
	if AccountKey(addr, NativeTokenID) != k0 {
		t.Fatal("AccountKey is not deterministic")
	}
}
