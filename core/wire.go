package core

import "encoding/binary"

// This file provides the gossip wire encoders/decoders for the four
// message variants (§4.5): the same canonical encoding used for signing
// (core/message.go), but with the real signature included, so a decoded
// message is immediately ready for VerifyX and MsgID.

func decodeProofField(b []byte) (Proof, []byte, bool) {
	if len(b) < 4 {
		return Proof{}, nil, false
	}
	n := int(binary.LittleEndian.Uint32(b[0:4]))
	b = b[4:]
	if len(b) < n {
		return Proof{}, nil, false
	}
	p, err := DecodeProof(b[:n])
	if err != nil {
		return Proof{}, nil, false
	}
	return p, b[n:], true
}

// EncodeTransferForGossip serializes t with its real signature for wire
// transport.
func EncodeTransferForGossip(t Transfer) []byte { return canonicalTransfer(t, false) }

// DecodeTransferFromGossip parses the encoding produced by
// EncodeTransferForGossip.
func DecodeTransferFromGossip(b []byte) (Transfer, bool) {
	if len(b) < 1 || MsgKind(b[0]) != KindTransfer {
		return Transfer{}, false
	}
	b = b[1:]
	var t Transfer
	if len(b) < 32+32+8+16+32+32 {
		return Transfer{}, false
	}
	copy(t.From[:], b[0:32])
	copy(t.To[:], b[32:64])
	t.TokenID = TokenId(binary.LittleEndian.Uint64(b[64:72]))
	t.Amount = Uint128FromBytes([16]byte(b[72:88]))
	copy(t.PreRoot[:], b[88:120])
	copy(t.PostRoot[:], b[120:152])
	rest := b[152:]

	pf, rest, ok := decodeProofField(rest)
	if !ok {
		return Transfer{}, false
	}
	t.ProofFrom = pf
	pt, rest, ok := decodeProofField(rest)
	if !ok {
		return Transfer{}, false
	}
	t.ProofTo = pt

	if len(rest) != 8+64 {
		return Transfer{}, false
	}
	t.Nonce = Nonce(binary.LittleEndian.Uint64(rest[0:8]))
	copy(t.Signature[:], rest[8:72])
	return t, true
}

// EncodeMintForGossip serializes m with its real signature for wire
// transport.
func EncodeMintForGossip(m Mint) []byte { return canonicalMint(m, false) }

// DecodeMintFromGossip parses the encoding produced by EncodeMintForGossip.
func DecodeMintFromGossip(b []byte) (Mint, bool) {
	if len(b) != 1+32+32+8+16+8+64 || MsgKind(b[0]) != KindMint {
		return Mint{}, false
	}
	b = b[1:]
	var m Mint
	copy(m.Issuer[:], b[0:32])
	copy(m.To[:], b[32:64])
	m.TokenID = TokenId(binary.LittleEndian.Uint64(b[64:72]))
	m.Amount = Uint128FromBytes([16]byte(b[72:88]))
	m.Nonce = Nonce(binary.LittleEndian.Uint64(b[88:96]))
	copy(m.Signature[:], b[96:160])
	return m, true
}

// EncodeIssueTokenForGossip serializes i with its real signature for wire
// transport.
func EncodeIssueTokenForGossip(i IssueToken) []byte { return canonicalIssueToken(i, false) }

// DecodeIssueTokenFromGossip parses the encoding produced by
// EncodeIssueTokenForGossip.
func DecodeIssueTokenFromGossip(b []byte) (IssueToken, bool) {
	if len(b) < 1+32+8+4 || MsgKind(b[0]) != KindIssueToken {
		return IssueToken{}, false
	}
	b = b[1:]
	var i IssueToken
	copy(i.Issuer[:], b[0:32])
	i.ProposedTokenID = TokenId(binary.LittleEndian.Uint64(b[32:40]))
	metaLen := int(binary.LittleEndian.Uint32(b[40:44]))
	rest := b[44:]
	if len(rest) != metaLen+16+8+64 {
		return IssueToken{}, false
	}
	i.Metadata = string(rest[:metaLen])
	rest = rest[metaLen:]
	i.MaxSupply = Uint128FromBytes([16]byte(rest[0:16]))
	i.Nonce = Nonce(binary.LittleEndian.Uint64(rest[16:24]))
	copy(i.Signature[:], rest[24:88])
	return i, true
}

// EncodeBurnForGossip serializes b with its real signature for wire
// transport.
func EncodeBurnForGossip(b Burn) []byte { return canonicalBurn(b, false) }

// DecodeBurnFromGossip parses the encoding produced by EncodeBurnForGossip.
func DecodeBurnFromGossip(b []byte) (Burn, bool) {
	if len(b) != 1+32+8+16+8+64 || MsgKind(b[0]) != KindBurn {
		return Burn{}, false
	}
	b = b[1:]
	var out Burn
	copy(out.Holder[:], b[0:32])
	out.TokenID = TokenId(binary.LittleEndian.Uint64(b[32:40]))
	out.Amount = Uint128FromBytes([16]byte(b[40:56]))
	out.Nonce = Nonce(binary.LittleEndian.Uint64(b[56:64]))
	copy(out.Signature[:], b[64:128])
	return out, true
}
