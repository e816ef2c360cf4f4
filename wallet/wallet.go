// Package wallet implements key management for meshstate accounts.
//
// Features
// --------
//   * Ed25519 key-pairs only (fast, deterministic).
//   * Hierarchical Deterministic derivation (SLIP-0010 / BIP-32-like,
//     hardened-only, since ed25519 has no unhardened child derivation).
//   * BIP-39 mnemonic utilities (12-/24-word human recovery phrases).
//   * Address = the raw 32-byte Ed25519 public key (§3/GLOSSARY): unlike
//     hash-then-truncate address schemes, a meshstate address IS the
//     verification key, so proof/signature checks never need a separate
//     key registry.
//   * A secondary, non-consensus display fingerprint (SHA-256 then
//     RIPEMD-160) for wallets/explorers that want a short human label.
//
// Import hygiene: wallet depends only on core (for the Address type) plus
// crypto, bip39 and logrus libraries. It does not import p2p, bridge or
// rpc.
package wallet

import (
	"crypto/ed25519"
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	bip39 "github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/ripemd160"

	"meshstate/core"
)

const (
	hardenedOffset uint32 = 0x80000000
	masterHMACKey         = "ed25519 seed" // SLIP-0010 master-key string
)

func SetWalletLogger(l *log.Logger) { globalLogger = l }

var globalLogger = log.New()

// HDWallet keeps master key material in-memory only. Never persist the
// private fields directly — use an encrypted keystore instead.
//
// Derivation model: SLIP-0010 hardened children only, path
// m / account' / index'. (change path omitted; callers may overlay a
// change=1 hardened level if desired.)
type HDWallet struct {
	seed        []byte
	masterKey   []byte
	masterChain []byte
	logger      *log.Logger
}

// Seed returns a copy of the wallet's master seed. Callers should wipe the
// returned slice after use.
func (w *HDWallet) Seed() []byte {
	out := make([]byte, len(w.seed))
	copy(out, w.seed)
	return out
}

// NewRandomWallet generates entropyBits (128/256) of RNG entropy and
// returns a wallet plus its BIP-39 recovery mnemonic. The caller must wipe
// or securely store the mnemonic.
func NewRandomWallet(entropyBits int) (*HDWallet, string, error) {
	if entropyBits != 128 && entropyBits != 256 {
		return nil, "", fmt.Errorf("unsupported entropy size %d", entropyBits)
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return nil, "", fmt.Errorf("entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", fmt.Errorf("mnemonic: %w", err)
	}
	seed := bip39.NewSeed(mnemonic, "")
	w, err := NewHDWalletFromSeed(seed, globalLogger)
	if err != nil {
		return nil, "", err
	}
	return w, mnemonic, nil
}

// WalletFromMnemonic imports an existing BIP-39 phrase.
func WalletFromMnemonic(mnemonic, passphrase string) (*HDWallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic checksum")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return NewHDWalletFromSeed(seed, globalLogger)
}

// NewHDWalletFromSeed builds a wallet directly from raw seed bytes.
func NewHDWalletFromSeed(seed []byte, lg *log.Logger) (*HDWallet, error) {
	if len(seed) < 16 {
		return nil, errors.New("seed too short")
	}
	if lg == nil {
		lg = globalLogger
	}
	I := hmacSHA512([]byte(masterHMACKey), seed)
	w := &HDWallet{
		seed:        seed,
		masterKey:   I[:32],
		masterChain: I[32:],
		logger:      lg,
	}
	lg.Infof("wallet: master key initialised (%d bytes seed)", len(seed))
	return w, nil
}

// derivePrivate returns the key material and new chain code for a
// (hardened) index. Only hardened derivation is supported — ed25519 has no
// unhardened child scheme.
func derivePrivate(parentKey, parentChain []byte, index uint32) (key, ccode []byte, err error) {
	if index < hardenedOffset {
		return nil, nil, errors.New("non-hardened derivation not supported for ed25519")
	}
	data := make([]byte, 1+32+4)
	copy(data[1:], parentKey)
	binary.BigEndian.PutUint32(data[33:], index)
	I := hmacSHA512(parentChain, data)
	return I[:32], I[32:], nil
}

func hmacSHA512(key, data []byte) []byte {
	h := hmac.New(sha512.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// PrivateKey returns the ed25519 key pair for derivation path
// m / account' / index' (account, index are hardened internally).
func (w *HDWallet) PrivateKey(account, index uint32) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	account |= hardenedOffset
	index |= hardenedOffset

	k1, c1, err := derivePrivate(w.masterKey, w.masterChain, account)
	if err != nil {
		return nil, nil, err
	}
	k2, _, err := derivePrivate(k1, c1, index)
	if err != nil {
		return nil, nil, err
	}
	priv := ed25519.NewKeyFromSeed(k2)
	pub := priv.Public().(ed25519.PublicKey)
	return priv, pub, nil
}

// NewAddress derives account+index and returns its Address: the raw
// 32-byte Ed25519 public key, per §3/GLOSSARY.
func (w *HDWallet) NewAddress(account, index uint32) (core.Address, error) {
	_, pub, err := w.PrivateKey(account, index)
	if err != nil {
		return core.Address{}, err
	}
	var addr core.Address
	copy(addr[:], pub)
	return addr, nil
}

// Fingerprint returns a short, non-consensus display label for an address:
// SHA-256 then RIPEMD-160, the same double-hash shape the teacher uses for
// its account addresses, repurposed here as a UX convenience since the
// address itself is no longer a hash.
func Fingerprint(addr core.Address) [20]byte {
	sha := sha256.Sum256(addr[:])
	r := ripemd160.New()
	r.Write(sha[:])
	var out [20]byte
	copy(out[:], r.Sum(nil))
	return out
}

// RandomMnemonicEntropy produces cryptographically secure random entropy of
// the given bit length (a multiple of 32).
func RandomMnemonicEntropy(bits int) ([]byte, error) {
	if bits%32 != 0 {
		return nil, errors.New("entropy bits must be multiple of 32")
	}
	b := make([]byte, bits/8)
	if _, err := crand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Wipe zeroes a byte slice in place (best-effort — the GC may have copied
// it already).
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
