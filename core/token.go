package core

import (
	"crypto/sha256"
	"encoding/binary"
)

// TokenInfo is the registry record for a token, per §3.
type TokenInfo struct {
	TokenID     TokenId
	Issuer      Address
	Metadata    string // "name|symbol|decimals"
	TotalSupply Uint128
	MaxSupply   Uint128
}

// tokenKey derives the SMT key for a TokenInfo record: H("TOKEN" ‖
// token_id_be_u64).
func tokenKey(id TokenId) Hash {
	var tb [8]byte
	binary.BigEndian.PutUint64(tb[:], uint64(id))
	h := sha256.New()
	h.Write([]byte("TOKEN"))
	h.Write(tb[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// tokenCounterKey derives the SMT key for the registry counter leaf:
// H("TOKEN_COUNTER").
func tokenCounterKey() Hash {
	return Hash(sha256.Sum256([]byte("TOKEN_COUNTER")))
}

// EncodeTokenInfo produces the bit-exact value encoding fixed by §4.2: u64
// token_id || 32-byte issuer || u32 metadata_len || metadata_bytes || u128
// total_supply || u128 max_supply, all little-endian.
func EncodeTokenInfo(t TokenInfo) []byte {
	meta := []byte(t.Metadata)
	out := make([]byte, 8+32+4+len(meta)+16+16)
	binary.LittleEndian.PutUint64(out[0:8], uint64(t.TokenID))
	copy(out[8:40], t.Issuer[:])
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(meta)))
	copy(out[44:44+len(meta)], meta)
	off := 44 + len(meta)
	ts := t.TotalSupply.Bytes()
	copy(out[off:off+16], ts[:])
	ms := t.MaxSupply.Bytes()
	copy(out[off+16:off+32], ms[:])
	return out
}

// DecodeTokenInfo parses the encoding produced by EncodeTokenInfo.
func DecodeTokenInfo(b []byte) (TokenInfo, bool) {
	if len(b) < 44 {
		return TokenInfo{}, false
	}
	var t TokenInfo
	t.TokenID = TokenId(binary.LittleEndian.Uint64(b[0:8]))
	copy(t.Issuer[:], b[8:40])
	metaLen := int(binary.LittleEndian.Uint32(b[40:44]))
	if len(b) != 44+metaLen+32 {
		return TokenInfo{}, false
	}
	t.Metadata = string(b[44 : 44+metaLen])
	off := 44 + metaLen
	var ts, ms [16]byte
	copy(ts[:], b[off:off+16])
	copy(ms[:], b[off+16:off+32])
	t.TotalSupply = Uint128FromBytes(ts)
	t.MaxSupply = Uint128FromBytes(ms)
	return t, true
}

// TokenStore layers the token registry schema over an SMT.
type TokenStore struct {
	tree *SMT
}

// NewTokenStore wraps tree with the token registry schema.
func NewTokenStore(tree *SMT) *TokenStore { return &TokenStore{tree: tree} }

// Counter returns the current registry counter (the highest assigned custom
// token_id; 0 if none has been issued yet).
func (s *TokenStore) Counter() (uint64, error) {
	raw, ok, err := s.tree.Get(tokenCounterKey())
	if err != nil {
		return 0, err
	}
	if !ok || len(raw) != 8 {
		return 0, nil
	}
	return binary.LittleEndian.Uint64(raw), nil
}

func (s *TokenStore) setCounter(v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := s.tree.Put(tokenCounterKey(), b[:])
	return err
}

// GetToken returns the registry record for id, or ErrUnknownToken if absent.
func (s *TokenStore) GetToken(id TokenId) (TokenInfo, error) {
	raw, ok, err := s.tree.Get(tokenKey(id))
	if err != nil {
		return TokenInfo{}, err
	}
	if !ok {
		return TokenInfo{}, ErrUnknownToken
	}
	t, valid := DecodeTokenInfo(raw)
	if !valid {
		return TokenInfo{}, ErrStorageCorruption
	}
	return t, nil
}

// RegisterToken assigns the next token_id, persists info under it, and
// advances the registry counter. It returns the assigned id.
func (s *TokenStore) RegisterToken(info TokenInfo) (TokenId, error) {
	counter, err := s.Counter()
	if err != nil {
		return 0, err
	}
	id := TokenId(counter + 1)
	info.TokenID = id
	if _, err := s.tree.Put(tokenKey(id), EncodeTokenInfo(info)); err != nil {
		return 0, err
	}
	if err := s.setCounter(counter + 1); err != nil {
		return 0, err
	}
	return id, nil
}

// PutToken overwrites the registry record for an existing token_id (used to
// persist supply changes and, lazily, native-token genesis).
func (s *TokenStore) PutToken(info TokenInfo) error {
	_, err := s.tree.Put(tokenKey(info.TokenID), EncodeTokenInfo(info))
	return err
}

// UpdateSupply adjusts total_supply by delta (positive for mint, negative
// handled by the caller via Sub) and enforces I5 (total_supply <=
// max_supply). It returns ErrSupplyExceeded without mutating state if the
// invariant would be violated.
func (s *TokenStore) UpdateSupply(id TokenId, newSupply Uint128) error {
	t, err := s.GetToken(id)
	if err != nil {
		return err
	}
	if newSupply.Cmp(t.MaxSupply) > 0 {
		return ErrSupplyExceeded
	}
	t.TotalSupply = newSupply
	return s.PutToken(t)
}

// ListTokens returns every registered token, including the native token if
// it has been genesis-minted, in ascending token_id order.
func (s *TokenStore) ListTokens() ([]TokenInfo, error) {
	counter, err := s.Counter()
	if err != nil {
		return nil, err
	}
	out := make([]TokenInfo, 0, counter+1)
	if native, err := s.GetToken(NativeTokenID); err == nil {
		out = append(out, native)
	} else if err != ErrUnknownToken {
		return nil, err
	}
	for id := uint64(1); id <= counter; id++ {
		t, err := s.GetToken(TokenId(id))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
