package core

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
)

// MsgKind tags the closed set of message variants (§9 "Tagged variants for
// messages"). Validation dispatches on Kind; there is no virtual/inherited
// dispatch since the variant set is closed.
type MsgKind byte

const (
	KindTransfer MsgKind = iota
	KindMint
	KindIssueToken
	KindBurn
)

// Transfer moves amount of token_id from From to To, witnessed by
// membership proofs of both accounts' pre-state (§4.3).
type Transfer struct {
	From      Address
	To        Address
	TokenID   TokenId
	Amount    Uint128
	PreRoot   Hash
	PostRoot  Hash
	ProofFrom Proof
	ProofTo   Proof
	Nonce     Nonce
	Signature [64]byte
}

// Mint credits To with amount of token_id. For token_id 0 the signer must be
// the treasury; otherwise the signer must be the token's registered issuer.
type Mint struct {
	Issuer    Address
	To        Address
	TokenID   TokenId
	Amount    Uint128
	Nonce     Nonce
	Signature [64]byte
}

// IssueToken registers a new token under the signer's issuance authority.
// ProposedTokenID is advisory only: the engine authoritatively assigns
// token_id = counter+1 per §4.4, regardless of the value proposed here.
type IssueToken struct {
	Issuer          Address
	ProposedTokenID TokenId
	Metadata        string
	MaxSupply       Uint128
	Nonce           Nonce
	Signature       [64]byte
}

// Burn destroys amount of token_id from Holder's own balance.
type Burn struct {
	Holder    Address
	TokenID   TokenId
	Amount    Uint128
	Nonce     Nonce
	Signature [64]byte
}

func encodeProofField(p Proof) []byte {
	raw := EncodeProof(p)
	var lenBuf [4]byte
	putU32LE(lenBuf[:], uint32(len(raw)))
	return append(lenBuf[:], raw...)
}

// canonicalTransfer serializes t with Signature replaced by zeroSig when
// zeroSigForDigest is true (used to compute the signing digest per §4.3).
func canonicalTransfer(t Transfer, zeroSigForDigest bool) []byte {
	out := make([]byte, 0, 32+32+8+16+32+32+8+64)
	out = append(out, byte(KindTransfer))
	out = append(out, t.From[:]...)
	out = append(out, t.To[:]...)
	var tb [8]byte
	binary.LittleEndian.PutUint64(tb[:], uint64(t.TokenID))
	out = append(out, tb[:]...)
	amt := t.Amount.Bytes()
	out = append(out, amt[:]...)
	out = append(out, t.PreRoot[:]...)
	out = append(out, t.PostRoot[:]...)
	out = append(out, encodeProofField(t.ProofFrom)...)
	out = append(out, encodeProofField(t.ProofTo)...)
	var nb [8]byte
	binary.LittleEndian.PutUint64(nb[:], uint64(t.Nonce))
	out = append(out, nb[:]...)
	if zeroSigForDigest {
		out = append(out, make([]byte, 64)...)
	} else {
		out = append(out, t.Signature[:]...)
	}
	return out
}

func canonicalMint(m Mint, zeroSigForDigest bool) []byte {
	out := make([]byte, 0, 32+32+8+16+8+64)
	out = append(out, byte(KindMint))
	out = append(out, m.Issuer[:]...)
	out = append(out, m.To[:]...)
	var tb [8]byte
	binary.LittleEndian.PutUint64(tb[:], uint64(m.TokenID))
	out = append(out, tb[:]...)
	amt := m.Amount.Bytes()
	out = append(out, amt[:]...)
	var nb [8]byte
	binary.LittleEndian.PutUint64(nb[:], uint64(m.Nonce))
	out = append(out, nb[:]...)
	if zeroSigForDigest {
		out = append(out, make([]byte, 64)...)
	} else {
		out = append(out, m.Signature[:]...)
	}
	return out
}

func canonicalIssueToken(i IssueToken, zeroSigForDigest bool) []byte {
	meta := []byte(i.Metadata)
	out := make([]byte, 0, 32+8+4+len(meta)+16+8+64)
	out = append(out, byte(KindIssueToken))
	out = append(out, i.Issuer[:]...)
	var pb [8]byte
	binary.LittleEndian.PutUint64(pb[:], uint64(i.ProposedTokenID))
	out = append(out, pb[:]...)
	var mlen [4]byte
	putU32LE(mlen[:], uint32(len(meta)))
	out = append(out, mlen[:]...)
	out = append(out, meta...)
	ms := i.MaxSupply.Bytes()
	out = append(out, ms[:]...)
	var nb [8]byte
	binary.LittleEndian.PutUint64(nb[:], uint64(i.Nonce))
	out = append(out, nb[:]...)
	if zeroSigForDigest {
		out = append(out, make([]byte, 64)...)
	} else {
		out = append(out, i.Signature[:]...)
	}
	return out
}

func canonicalBurn(b Burn, zeroSigForDigest bool) []byte {
	out := make([]byte, 0, 32+8+16+8+64)
	out = append(out, byte(KindBurn))
	out = append(out, b.Holder[:]...)
	var tb [8]byte
	binary.LittleEndian.PutUint64(tb[:], uint64(b.TokenID))
	out = append(out, tb[:]...)
	amt := b.Amount.Bytes()
	out = append(out, amt[:]...)
	var nb [8]byte
	binary.LittleEndian.PutUint64(nb[:], uint64(b.Nonce))
	out = append(out, nb[:]...)
	if zeroSigForDigest {
		out = append(out, make([]byte, 64)...)
	} else {
		out = append(out, b.Signature[:]...)
	}
	return out
}

// digest returns the SHA-256 signing digest of a canonical encoding with the
// signature field zeroed, per §4.3.
func digest(canonicalWithZeroSig []byte) Hash {
	return sha256.Sum256(canonicalWithZeroSig)
}

// SignTransfer signs t with priv and fills in t.Signature.
func SignTransfer(t *Transfer, priv ed25519.PrivateKey) {
	d := digest(canonicalTransfer(*t, true))
	copy(t.Signature[:], ed25519.Sign(priv, d[:]))
}

// VerifyTransfer checks t.Signature against t.From as signer.
func VerifyTransfer(t Transfer) bool {
	d := digest(canonicalTransfer(t, true))
	return ed25519.Verify(t.From[:], d[:], t.Signature[:])
}

// MsgID returns the gossip dedup identifier for t: H(canonical_encoding)
// including the real signature, per §4.5.
func (t Transfer) MsgID() Hash { return sha256.Sum256(canonicalTransfer(t, false)) }

// SignMint signs m with priv and fills in m.Signature.
func SignMint(m *Mint, priv ed25519.PrivateKey) {
	d := digest(canonicalMint(*m, true))
	copy(m.Signature[:], ed25519.Sign(priv, d[:]))
}

// VerifyMint checks m.Signature against m.Issuer as signer.
func VerifyMint(m Mint) bool {
	d := digest(canonicalMint(m, true))
	return ed25519.Verify(m.Issuer[:], d[:], m.Signature[:])
}

func (m Mint) MsgID() Hash { return sha256.Sum256(canonicalMint(m, false)) }

// SignIssueToken signs i with priv and fills in i.Signature.
func SignIssueToken(i *IssueToken, priv ed25519.PrivateKey) {
	d := digest(canonicalIssueToken(*i, true))
	copy(i.Signature[:], ed25519.Sign(priv, d[:]))
}

// VerifyIssueToken checks i.Signature against i.Issuer as signer.
func VerifyIssueToken(i IssueToken) bool {
	d := digest(canonicalIssueToken(i, true))
	return ed25519.Verify(i.Issuer[:], d[:], i.Signature[:])
}

func (i IssueToken) MsgID() Hash { return sha256.Sum256(canonicalIssueToken(i, false)) }

// SignBurn signs b with priv and fills in b.Signature.
func SignBurn(b *Burn, priv ed25519.PrivateKey) {
	d := digest(canonicalBurn(*b, true))
	copy(b.Signature[:], ed25519.Sign(priv, d[:]))
}

// VerifyBurn checks b.Signature against b.Holder as signer.
func VerifyBurn(b Burn) bool {
	d := digest(canonicalBurn(b, true))
	return ed25519.Verify(b.Holder[:], d[:], b.Signature[:])
}

func (b Burn) MsgID() Hash { return sha256.Sum256(canonicalBurn(b, false)) }

// validateAmount rejects a zero-amount message, a rule implied across every
// variant in §4.4's transition list.
func validateAmount(amt Uint128) error {
	if amt.IsZero() {
		return ErrAmountZero
	}
	return nil
}
