package wallet

import (
	"testing"

	"meshstate/core"
)

func TestNewRandomWalletDeterministicDerivation(t *testing.T) {
	w, mnemonic, err := NewRandomWallet(128)
	if err != nil {
		t.Fatalf("NewRandomWallet: %v", err)
	}
	if mnemonic == "" {
		t.Fatal("expected non-empty mnemonic")
	}

	a1, err := w.NewAddress(0, 0)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	a2, err := w.NewAddress(0, 0)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	if a1 != a2 {
		t.Fatal("same derivation path must yield the same address")
	}

	a3, err := w.NewAddress(0, 1)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	if a1 == a3 {
		t.Fatal("different indices must yield different addresses")
	}
}

func TestWalletFromMnemonicRoundTrip(t *testing.T) {
	w1, mnemonic, err := NewRandomWallet(256)
	if err != nil {
		t.Fatalf("NewRandomWallet: %v", err)
	}
	w2, err := WalletFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("WalletFromMnemonic: %v", err)
	}

	a1, _ := w1.NewAddress(1, 2)
	a2, _ := w2.NewAddress(1, 2)
	if a1 != a2 {
		t.Fatal("re-importing the same mnemonic must reproduce the same wallet")
	}
}

func TestWalletFromMnemonicRejectsBadChecksum(t *testing.T) {
	_, err := WalletFromMnemonic("not a valid bip39 mnemonic phrase at all here", "")
	if err == nil {
		t.Fatal("expected an error for an invalid mnemonic")
	}
}

func TestSignAndVerifyTransferWithDerivedKey(t *testing.T) {
	w, _, err := NewRandomWallet(128)
	if err != nil {
		t.Fatalf("NewRandomWallet: %v", err)
	}
	priv, pub, err := w.PrivateKey(0, 0)
	if err != nil {
		t.Fatalf("PrivateKey: %v", err)
	}
	var from core.Address
	copy(from[:], pub)

	tr := core.Transfer{From: from, To: from, TokenID: core.NativeTokenID, Amount: core.Uint128FromUint64(1), Nonce: 0}
	core.SignTransfer(&tr, priv)
	if !core.VerifyTransfer(tr) {
		t.Fatal("expected signature produced by the derived key to verify")
	}
}

func TestFingerprintIsStable(t *testing.T) {
	w, _, err := NewRandomWallet(128)
	if err != nil {
		t.Fatalf("NewRandomWallet: %v", err)
	}
	addr, _ := w.NewAddress(0, 0)
	f1 := Fingerprint(addr)
	f2 := Fingerprint(addr)
	if f1 != f2 {
		t.Fatal("fingerprint must be deterministic")
	}
}
