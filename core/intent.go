package core

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
)

// This file backs the RPC convenience methods (§6: send, mint,
// p3p_issueToken, p3p_mintToken) whose wire signatures carry only scalar
// fields — no SMT proofs or pre/post roots, unlike the gossip-carried
// messages in message.go/wire.go. A client calling these methods cannot
// supply proofs it hasn't fetched, so it signs a narrower "intent" digest
// over just the fields it actually knows, and the node (which holds the
// authoritative local SMT) fills in proofs and roots itself before
// applying the transition. This is deliberately a distinct signature
// scheme from the full canonical one: an intent signature and a gossip
// message signature are never interchangeable.

func transferIntentDigest(from, to Address, tokenID TokenId, amount Uint128, nonce Nonce) Hash {
	buf := make([]byte, 0, 1+32+32+8+16+8)
	buf = append(buf, byte(KindTransfer))
	buf = append(buf, from[:]...)
	buf = append(buf, to[:]...)
	var tb [8]byte
	binary.LittleEndian.PutUint64(tb[:], uint64(tokenID))
	buf = append(buf, tb[:]...)
	amt := amount.Bytes()
	buf = append(buf, amt[:]...)
	var nb [8]byte
	binary.LittleEndian.PutUint64(nb[:], uint64(nonce))
	buf = append(buf, nb[:]...)
	return sha256.Sum256(buf)
}

// SignTransferIntent signs the scalar fields of a prospective transfer with
// priv, for submission through the send RPC method.
func SignTransferIntent(from, to Address, tokenID TokenId, amount Uint128, nonce Nonce, priv ed25519.PrivateKey) [64]byte {
	d := transferIntentDigest(from, to, tokenID, amount, nonce)
	var sig [64]byte
	copy(sig[:], ed25519.Sign(priv, d[:]))
	return sig
}

// VerifyTransferIntent checks sig against from as signer.
func VerifyTransferIntent(from, to Address, tokenID TokenId, amount Uint128, nonce Nonce, sig [64]byte) bool {
	d := transferIntentDigest(from, to, tokenID, amount, nonce)
	return ed25519.Verify(from[:], d[:], sig[:])
}

func mintIntentDigest(issuer, to Address, tokenID TokenId, amount Uint128, nonce Nonce) Hash {
	buf := make([]byte, 0, 1+32+32+8+16+8)
	buf = append(buf, byte(KindMint))
	buf = append(buf, issuer[:]...)
	buf = append(buf, to[:]...)
	var tb [8]byte
	binary.LittleEndian.PutUint64(tb[:], uint64(tokenID))
	buf = append(buf, tb[:]...)
	amt := amount.Bytes()
	buf = append(buf, amt[:]...)
	var nb [8]byte
	binary.LittleEndian.PutUint64(nb[:], uint64(nonce))
	buf = append(buf, nb[:]...)
	return sha256.Sum256(buf)
}

// SignMintIntent signs the scalar fields of a prospective mint with priv,
// for submission through the mint RPC method.
func SignMintIntent(issuer, to Address, tokenID TokenId, amount Uint128, nonce Nonce, priv ed25519.PrivateKey) [64]byte {
	d := mintIntentDigest(issuer, to, tokenID, amount, nonce)
	var sig [64]byte
	copy(sig[:], ed25519.Sign(priv, d[:]))
	return sig
}

// VerifyMintIntent checks sig against issuer as signer.
func VerifyMintIntent(issuer, to Address, tokenID TokenId, amount Uint128, nonce Nonce, sig [64]byte) bool {
	d := mintIntentDigest(issuer, to, tokenID, amount, nonce)
	return ed25519.Verify(issuer[:], d[:], sig[:])
}

// ApplySimpleTransfer validates a scalar transfer intent and applies it,
// fetching proofs and roots from the node's own authoritative state rather
// than trusting caller-supplied ones (those checks only matter for
// messages arriving from an untrusted peer over gossip; see ApplyTransfer).
func (e *StateEngine) ApplySimpleTransfer(from, to Address, tokenID TokenId, amount Uint128, nonce Nonce, sig [64]byte) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if !VerifyTransferIntent(from, to, tokenID, amount, nonce, sig) {
		return ErrInvalidSignature
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	fromAcc, err := e.checkNonce(from, tokenID, nonce)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBal
	}
	toAcc, err := e.accounts.GetAccount(to, tokenID)
	if err != nil {
		return err
	}
	newFromBal, _ := fromAcc.Balance.Sub(amount)
	newToBal, overflow := toAcc.Balance.Add(amount)
	if overflow {
		return ErrOverflow
	}
	stagingTree, overlay := e.stagedTree()
	stagingAccounts := NewAccountStore(stagingTree)
	if _, err := stagingAccounts.ApplyDelta(from, tokenID, newFromBal, fromAcc.Nonce+1); err != nil {
		return err
	}
	if _, err := stagingAccounts.ApplyDelta(to, tokenID, newToBal, toAcc.Nonce); err != nil {
		return err
	}
	return e.commit(overlay)
}

// ApplySimpleMint validates a scalar mint intent and applies it, per the
// same local-trust rationale as ApplySimpleTransfer.
func (e *StateEngine) ApplySimpleMint(issuer, to Address, tokenID TokenId, amount Uint128, nonce Nonce, sig [64]byte) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if !VerifyMintIntent(issuer, to, tokenID, amount, nonce, sig) {
		return ErrInvalidSignature
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	issuerAcc, err := e.checkNonce(issuer, tokenID, nonce)
	if err != nil {
		return err
	}
	token, err := e.tokens.GetToken(tokenID)
	if err == ErrUnknownToken && tokenID == NativeTokenID {
		token = TokenInfo{TokenID: NativeTokenID, Issuer: Treasury, Metadata: "native|NATIVE|18", MaxSupply: maxUint128}
	} else if err != nil {
		return err
	}
	if issuer != token.Issuer {
		return ErrUnauthorized
	}
	newSupply, overflow := token.TotalSupply.Add(amount)
	if overflow {
		return ErrOverflow
	}
	if newSupply.Cmp(token.MaxSupply) > 0 {
		return ErrSupplyExceeded
	}
	toAcc, err := e.accounts.GetAccount(to, tokenID)
	if err != nil {
		return err
	}
	newToBal, overflow := toAcc.Balance.Add(amount)
	if overflow {
		return ErrOverflow
	}
	token.TotalSupply = newSupply

	stagingTree, overlay := e.stagedTree()
	stagingTokens := NewTokenStore(stagingTree)
	stagingAccounts := NewAccountStore(stagingTree)
	if err := stagingTokens.PutToken(token); err != nil {
		return err
	}
	toNonce := toAcc.Nonce
	if to == issuer {
		toNonce = issuerAcc.Nonce + 1
	}
	if _, err := stagingAccounts.ApplyDelta(to, tokenID, newToBal, toNonce); err != nil {
		return err
	}
	if to != issuer {
		if _, err := stagingAccounts.ApplyDelta(issuer, tokenID, issuerAcc.Balance, issuerAcc.Nonce+1); err != nil {
			return err
		}
	}
	return e.commit(overlay)
}
