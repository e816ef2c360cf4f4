package core

import (
	"crypto/sha256"
	"encoding/binary"
)

// AccountLeaf is the value stored at an account SMT leaf (§3/§4.2).
type AccountLeaf struct {
	Address Address
	TokenID TokenId
	Balance Uint128
	Nonce   Nonce
}

// AccountKey derives the SMT key for (addr, tokenID): H(address ‖
// token_id_be_u64), per §3.
func AccountKey(addr Address, tokenID TokenId) Hash {
	var tb [8]byte
	binary.BigEndian.PutUint64(tb[:], uint64(tokenID))
	h := sha256.New()
	h.Write(addr[:])
	h.Write(tb[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// EncodeAccountLeaf produces the bit-exact value encoding fixed by §4.2:
// u128 balance || u64 nonce || 32-byte address || u64 token_id, all
// little-endian. This encoding is hashed into leaf_hash and is therefore
// part of the network's wire contract — it must never change shape.
func EncodeAccountLeaf(a AccountLeaf) []byte {
	out := make([]byte, 16+8+32+8)
	bal := a.Balance.Bytes()
	copy(out[0:16], bal[:])
	binary.LittleEndian.PutUint64(out[16:24], uint64(a.Nonce))
	copy(out[24:56], a.Address[:])
	binary.LittleEndian.PutUint64(out[56:64], uint64(a.TokenID))
	return out
}

// DecodeAccountLeaf parses the encoding produced by EncodeAccountLeaf.
func DecodeAccountLeaf(b []byte) (AccountLeaf, bool) {
	if len(b) != 64 {
		return AccountLeaf{}, false
	}
	var a AccountLeaf
	var bal [16]byte
	copy(bal[:], b[0:16])
	a.Balance = Uint128FromBytes(bal)
	a.Nonce = Nonce(binary.LittleEndian.Uint64(b[16:24]))
	copy(a.Address[:], b[24:56])
	a.TokenID = TokenId(binary.LittleEndian.Uint64(b[56:64]))
	return a, true
}

// AccountStore layers the account leaf schema over an SMT: get_account and
// apply_delta from §4.2.
type AccountStore struct {
	tree *SMT
}

// NewAccountStore wraps tree with the account leaf schema.
func NewAccountStore(tree *SMT) *AccountStore { return &AccountStore{tree: tree} }

// GetAccount returns the leaf for (addr, tokenID), or the empty-leaf
// convention (balance=0, nonce=0) if absent, per §3's lifecycle rule.
func (s *AccountStore) GetAccount(addr Address, tokenID TokenId) (AccountLeaf, error) {
	key := AccountKey(addr, tokenID)
	raw, ok, err := s.tree.Get(key)
	if err != nil {
		return AccountLeaf{}, err
	}
	if !ok {
		return AccountLeaf{Address: addr, TokenID: tokenID}, nil
	}
	leaf, valid := DecodeAccountLeaf(raw)
	if !valid {
		return AccountLeaf{}, ErrStorageCorruption
	}
	return leaf, nil
}

// ProveAccount returns a membership/absence proof for (addr, tokenID)
// against the tree's current root.
func (s *AccountStore) ProveAccount(addr Address, tokenID TokenId) (Proof, error) {
	return s.tree.Prove(AccountKey(addr, tokenID))
}

// ApplyDelta atomically adjusts balance and nonce for (addr, tokenID) by the
// given deltas (which may be negative via Sub at the call site) and persists
// the resulting leaf, reclaiming it per §9 Open Question (b): a leaf with
// balance=0 and nonce=0 after the delta is deleted rather than kept, fixing
// that convention repo-wide (see DESIGN.md).
func (s *AccountStore) ApplyDelta(addr Address, tokenID TokenId, newBalance Uint128, newNonce Nonce) (Hash, error) {
	key := AccountKey(addr, tokenID)
	if newBalance.IsZero() && newNonce == 0 {
		return s.tree.Delete(key)
	}
	leaf := AccountLeaf{Address: addr, TokenID: tokenID, Balance: newBalance, Nonce: newNonce}
	return s.tree.Put(key, EncodeAccountLeaf(leaf))
}
