package core

import (
	"crypto/ed25519"
	"testing"
)

func TestSignVerifyMint(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var issuer Address
	copy(issuer[:], pub)

	m := Mint{Issuer: issuer, To: addrFromByte(0x22), TokenID: NativeTokenID, Amount: Uint128FromUint64(10), Nonce: 0}
	SignMint(&m, priv)
	if !VerifyMint(m) {
		t.Fatal("VerifyMint rejected a correctly signed mint")
	}
	m.Amount = Uint128FromUint64(11)
	if VerifyMint(m) {
		t.Fatal("VerifyMint accepted a mint mutated after signing")
	}
}

func TestMintGossipEncodeDecodeRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var issuer Address
	copy(issuer[:], pub)
	m := Mint{Issuer: issuer, To: addrFromByte(0x22), TokenID: 3, Amount: Uint128FromUint64(500), Nonce: 2}
	SignMint(&m, priv)

	raw := EncodeMintForGossip(m)
	decoded, ok := DecodeMintFromGossip(raw)
	if !ok {
		t.Fatal("DecodeMintFromGossip rejected a valid encoding")
	}
	if decoded != m {
		t.Fatalf("decoded = %+v, want %+v", decoded, m)
	}
	if !VerifyMint(decoded) {
		t.Fatal("VerifyMint rejected a round-tripped mint")
	}
}

func TestBurnGossipEncodeDecodeRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var holder Address
	copy(holder[:], pub)
	b := Burn{Holder: holder, TokenID: NativeTokenID, Amount: Uint128FromUint64(42), Nonce: 1}
	SignBurn(&b, priv)

	raw := EncodeBurnForGossip(b)
	decoded, ok := DecodeBurnFromGossip(raw)
	if !ok {
		t.Fatal("DecodeBurnFromGossip rejected a valid encoding")
	}
	if decoded != b {
		t.Fatalf("decoded = %+v, want %+v", decoded, b)
	}
	if !VerifyBurn(decoded) {
		t.Fatal("VerifyBurn rejected a round-tripped burn")
	}
}

func TestIssueTokenGossipEncodeDecodeRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var issuer Address
	copy(issuer[:], pub)
	it := IssueToken{Issuer: issuer, ProposedTokenID: 1, Metadata: "widget|WID|2", MaxSupply: Uint128FromUint64(999), Nonce: 0}
	SignIssueToken(&it, priv)

	raw := EncodeIssueTokenForGossip(it)
	decoded, ok := DecodeIssueTokenFromGossip(raw)
	if !ok {
		t.Fatal("DecodeIssueTokenFromGossip rejected a valid encoding")
	}
	if decoded != it {
		t.Fatalf("decoded = %+v, want %+v", decoded, it)
	}
	if !VerifyIssueToken(decoded) {
		t.Fatal("VerifyIssueToken rejected a round-tripped issuance")
	}
}

func TestTransferGossipEncodeDecodeRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var from Address
	copy(from[:], pub)
	to := addrFromByte(0x22)

	tree, err := NewSMT(NewInMemoryStore())
	if err != nil {
		t.Fatalf("NewSMT: %v", err)
	}
	accounts := NewAccountStore(tree)
	root, err := accounts.ApplyDelta(from, NativeTokenID, Uint128FromUint64(100), 0)
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	proofFrom, err := accounts.ProveAccount(from, NativeTokenID)
	if err != nil {
		t.Fatalf("ProveAccount from: %v", err)
	}
	proofTo, err := accounts.ProveAccount(to, NativeTokenID)
	if err != nil {
		t.Fatalf("ProveAccount to: %v", err)
	}

	xfer := Transfer{
		From:      from,
		To:        to,
		TokenID:   NativeTokenID,
		Amount:    Uint128FromUint64(30),
		PreRoot:   root,
		PostRoot:  root,
		ProofFrom: proofFrom,
		ProofTo:   proofTo,
		Nonce:     0,
	}
	SignTransfer(&xfer, priv)

	raw := EncodeTransferForGossip(xfer)
	decoded, ok := DecodeTransferFromGossip(raw)
	if !ok {
		t.Fatal("DecodeTransferFromGossip rejected a valid encoding")
	}
	if !VerifyTransfer(decoded) {
		t.Fatal("VerifyTransfer rejected a round-tripped transfer")
	}
	if decoded.From != xfer.From || decoded.To != xfer.To || decoded.Amount.Cmp(xfer.Amount) != 0 {
		t.Fatalf("decoded scalar fields mismatch: %+v vs %+v", decoded, xfer)
	}
	if !decoded.ProofFrom.Equal(xfer.ProofFrom) || !decoded.ProofTo.Equal(xfer.ProofTo) {
		t.Fatal("decoded proofs do not match the originals")
	}
}

func TestMsgIDIsStableAndSignatureSensitive(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var issuer Address
	copy(issuer[:], pub)
	m := Mint{Issuer: issuer, To: addrFromByte(0x22), TokenID: NativeTokenID, Amount: Uint128FromUint64(10), Nonce: 0}
	SignMint(&m, priv)
	id1 := m.MsgID()
	id2 := m.MsgID()
	if id1 != id2 {
		t.Fatal("MsgID is not deterministic for an unchanged message")
	}

	other := m
	SignMint(&other, priv) // re-signing the same digest yields a new nonce-0 signature only if ed25519 were non-deterministic; here it's the same digest so the signature is identical too
	if other.MsgID() != id1 {
		t.Fatal("MsgID changed across an equivalent re-signature of the same message")
	}

	m.Nonce = 1
	SignMint(&m, priv)
	if m.MsgID() == id1 {
		t.Fatal("MsgID did not change when the message content changed")
	}
}

func TestDecodeRejectsWrongKindTag(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var issuer Address
	copy(issuer[:], pub)
	m := Mint{Issuer: issuer, To: addrFromByte(0x22), TokenID: NativeTokenID, Amount: Uint128FromUint64(10), Nonce: 0}
	SignMint(&m, priv)
	raw := EncodeMintForGossip(m)

	if _, ok := DecodeBurnFromGossip(raw); ok {
		t.Fatal("DecodeBurnFromGossip accepted a Mint-tagged encoding")
	}
}
