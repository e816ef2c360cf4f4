package core

import (
	"crypto/sha256"
	"testing"
)

func keyFor(label string) Hash {
	return sha256.Sum256([]byte(label))
}

func TestSMTEmptyTreeHasCanonicalZeroRoot(t *testing.T) {
	tree, err := NewSMT(NewInMemoryStore())
	if err != nil {
		t.Fatalf("NewSMT: %v", err)
	}
	if tree.Root() != zeroHash[treeDepth] {
		t.Fatalf("empty root = %s, want zeroHash[treeDepth]", tree.Root())
	}
}

func TestSMTPutGetRoundTrip(t *testing.T) {
	tree, err := NewSMT(NewInMemoryStore())
	if err != nil {
		t.Fatalf("NewSMT: %v", err)
	}
	k := keyFor("alice")
	if _, err := tree.Put(k, []byte("value-1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, ok, err := tree.Get(k)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || string(v) != "value-1" {
		t.Fatalf("Get = %q, %v; want value-1, true", v, ok)
	}
}

func TestSMTProveVerifyMembership(t *testing.T) {
	tree, err := NewSMT(NewInMemoryStore())
	if err != nil {
		t.Fatalf("NewSMT: %v", err)
	}
	k := keyFor("bob")
	root, err := tree.Put(k, []byte("payload"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	p, err := tree.Prove(k)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if !Verify(p, k, []byte("payload"), root) {
		t.Fatal("Verify rejected a valid membership proof")
	}
	if Verify(p, k, []byte("tampered"), root) {
		t.Fatal("Verify accepted a proof against the wrong value")
	}
}

func TestSMTProveVerifyAbsence(t *testing.T) {
	tree, err := NewSMT(NewInMemoryStore())
	if err != nil {
		t.Fatalf("NewSMT: %v", err)
	}
	k := keyFor("never-inserted")
	p, err := tree.Prove(k)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if !p.IsAbsence() {
		t.Fatal("expected an absence proof for an empty key")
	}
	if !Verify(p, k, nil, tree.Root()) {
		t.Fatal("Verify rejected a valid absence proof")
	}
}

func TestSMTDeleteRestoresEmptyRoot(t *testing.T) {
	tree, err := NewSMT(NewInMemoryStore())
	if err != nil {
		t.Fatalf("NewSMT: %v", err)
	}
	k := keyFor("ephemeral")
	if _, err := tree.Put(k, []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	root, err := tree.Delete(k)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if root != zeroHash[treeDepth] {
		t.Fatalf("root after deleting the only leaf = %s, want the empty root", root)
	}
	if _, ok, err := tree.Get(k); err != nil || ok {
		t.Fatalf("Get after Delete = ok=%v err=%v, want ok=false", ok, err)
	}
}

func TestSMTTwoLeavesIndependentProofs(t *testing.T) {
	tree, err := NewSMT(NewInMemoryStore())
	if err != nil {
		t.Fatalf("NewSMT: %v", err)
	}
	ka, kb := keyFor("a"), keyFor("b")
	if _, err := tree.Put(ka, []byte("va")); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	root, err := tree.Put(kb, []byte("vb"))
	if err != nil {
		t.Fatalf("Put b: %v", err)
	}

	pa, err := tree.Prove(ka)
	if err != nil {
		t.Fatalf("Prove a: %v", err)
	}
	pb, err := tree.Prove(kb)
	if err != nil {
		t.Fatalf("Prove b: %v", err)
	}
	if !Verify(pa, ka, []byte("va"), root) {
		t.Fatal("Verify rejected a's membership proof after b was inserted")
	}
	if !Verify(pb, kb, []byte("vb"), root) {
		t.Fatal("Verify rejected b's membership proof")
	}
}

func TestSMTReloadReflectsExternallyWrittenRoot(t *testing.T) {
	store := NewInMemoryStore()
	tree, err := NewSMT(store)
	if err != nil {
		t.Fatalf("NewSMT: %v", err)
	}
	k := keyFor("reload-me")
	root, err := tree.Put(k, []byte("v"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Simulate a second handle over the same store observing the write
	// without ever calling Put/Delete itself (e.g. set_full_state).
	other, err := NewSMT(NewInMemoryStore())
	if err != nil {
		t.Fatalf("NewSMT: %v", err)
	}
	other.store = store
	if err := other.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if other.Root() != root {
		t.Fatalf("Reload root = %s, want %s", other.Root(), root)
	}
}

func TestEncodeDecodeProofRoundTrip(t *testing.T) {
	tree, err := NewSMT(NewInMemoryStore())
	if err != nil {
		t.Fatalf("NewSMT: %v", err)
	}
	k := keyFor("codec")
	if _, err := tree.Put(k, []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	p, err := tree.Prove(k)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	raw := EncodeProof(p)
	decoded, err := DecodeProof(raw)
	if err != nil {
		t.Fatalf("DecodeProof: %v", err)
	}
	if !p.Equal(decoded) {
		t.Fatal("decoded proof does not equal the original")
	}
}

func TestDecodeProofRejectsMalformedLength(t *testing.T) {
	if _, err := DecodeProof([]byte{1, 2, 3}); err != ErrProofMalformed {
		t.Fatalf("DecodeProof on short input = %v, want ErrProofMalformed", err)
	}
}
