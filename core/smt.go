package core

import (
	"crypto/sha256"
	"fmt"
)

// zeroHash is the precomputed table Z[0..=256] from §4.1: Z[0] is the leaf
// hash of an absent leaf, Z[i+1] is the hash of an internal node whose two
// children are both Z[i] (an empty subtree of height i+1 above the leaves).
var zeroHash [treeDepth + 1]Hash

func init() {
	zeroHash[0] = sha256.Sum256([]byte{leafDomain})
	for i := 0; i < treeDepth; i++ {
		zeroHash[i+1] = hashInternal(zeroHash[i], zeroHash[i])
	}
}

func hashInternal(left, right Hash) Hash {
	h := sha256.New()
	h.Write([]byte{internalDomain})
	h.Write(left[:])
	h.Write(right[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// hashLeaf computes the leaf_hash of a present leaf at key k with the given
// bit-exact value encoding, per §4.1: H(0x00 ‖ k ‖ H(value_encoding)).
func hashLeaf(key Hash, valueEncoding []byte) Hash {
	inner := sha256.Sum256(valueEncoding)
	h := sha256.New()
	h.Write([]byte{leafDomain})
	h.Write(key[:])
	h.Write(inner[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// bitAt returns the i-th bit (0-indexed, MSB first) of k, treated as the
// path taken from the root (bit 0) down to the leaf (bit 255).
func bitAt(k Hash, i int) byte {
	return (k[i/8] >> uint(7-i%8)) & 1
}

// internalNode is the on-disk representation of a populated internal node,
// stored in the `nodes/` namespace keyed by its own content hash.
type internalNode struct {
	Left  Hash
	Right Hash
}

func encodeInternalNode(n internalNode) []byte {
	out := make([]byte, 64)
	copy(out[0:32], n.Left[:])
	copy(out[32:64], n.Right[:])
	return out
}

func decodeInternalNode(b []byte) (internalNode, error) {
	if len(b) != 64 {
		return internalNode{}, fmt.Errorf("smt: malformed internal node record (%d bytes)", len(b))
	}
	var n internalNode
	copy(n.Left[:], b[0:32])
	copy(n.Right[:], b[32:64])
	return n, nil
}

const (
	nsNodes = "nodes/"
	nsLeafV = "leaves/"
	metaRoot = "meta/root"
)

// SMT is a 256-bit keyed sparse Merkle tree backed by a KVStore. Node
// identity is the node's own content hash (§9 "Arena + index vs
// references"): internal nodes are addressed by hash in the `nodes/`
// namespace and leaf values are addressed by SMT key in the `leaves/`
// namespace, matching the persisted layout in §6.
type SMT struct {
	store KVStore
	root  Hash
}

// NewSMT constructs an SMT over store, restoring the root from `meta/root`
// if present, or starting from the canonical empty root otherwise.
func NewSMT(store KVStore) (*SMT, error) {
	t := &SMT{store: store, root: zeroHash[treeDepth]}
	raw, err := store.Get([]byte(metaRoot))
	if err == nil && len(raw) == 32 {
		copy(t.root[:], raw)
	} else if err != nil && err != ErrKeyNotFound {
		return nil, err
	}
	return t, nil
}

// Root returns the tree's current root hash.
func (t *SMT) Root() Hash { return t.root }

// Reload re-reads the root from `meta/root`, for callers that have just
// replaced the backing store's contents wholesale (e.g. set_full_state)
// without going through Put/Delete.
func (t *SMT) Reload() error {
	raw, err := t.store.Get([]byte(metaRoot))
	if err == ErrKeyNotFound {
		t.root = zeroHash[treeDepth]
		return nil
	}
	if err != nil {
		return err
	}
	if len(raw) != 32 {
		return ErrStorageCorruption
	}
	copy(t.root[:], raw)
	return nil
}

// Get returns the raw value encoding stored at key, or (nil, false) if the
// key is absent.
func (t *SMT) Get(key Hash) ([]byte, bool, error) {
	v, err := t.store.Get(append([]byte(nsLeafV), key[:]...))
	if err == ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Put inserts or replaces the value at key and returns the new root.
func (t *SMT) Put(key Hash, valueEncoding []byte) (Hash, error) {
	leaf := hashLeaf(key, valueEncoding)
	newRoot, err := t.setPath(key, leaf)
	if err != nil {
		return Hash{}, err
	}
	if err := t.store.Set(append([]byte(nsLeafV), key[:]...), valueEncoding); err != nil {
		return Hash{}, err
	}
	t.root = newRoot
	if err := t.store.Set([]byte(metaRoot), newRoot[:]); err != nil {
		return Hash{}, err
	}
	return newRoot, nil
}

// Delete removes the leaf at key (reclaiming it per §3's lifecycle rules
// when the caller has already reduced balance and nonce to zero) and
// returns the new root.
func (t *SMT) Delete(key Hash) (Hash, error) {
	newRoot, err := t.setPath(key, zeroHash[0])
	if err != nil {
		return Hash{}, err
	}
	if err := t.store.Delete(append([]byte(nsLeafV), key[:]...)); err != nil {
		return Hash{}, err
	}
	t.root = newRoot
	if err := t.store.Set([]byte(metaRoot), newRoot[:]); err != nil {
		return Hash{}, err
	}
	return newRoot, nil
}

// setPath walks from the root to the leaf slot for key, replacing the leaf
// hash with newLeaf and rehashing every internal node back up to the root.
// Populated internal nodes are persisted by content hash; nodes that become
// (or remain) empty are simply not written, since they reconstruct to
// zeroHash[i] implicitly.
func (t *SMT) setPath(key Hash, newLeaf Hash) (Hash, error) {
	siblings := make([]Hash, treeDepth)
	cur := t.root
	for depth := 0; depth < treeDepth; depth++ {
		if cur == zeroHash[treeDepth-depth] {
			for d := depth; d < treeDepth; d++ {
				siblings[d] = zeroHash[treeDepth-d-1]
			}
			break
		}
		raw, err := t.store.Get(append([]byte(nsNodes), cur[:]...))
		if err != nil {
			return Hash{}, fmt.Errorf("smt: missing internal node %s at depth %d: %w", cur, depth, err)
		}
		n, err := decodeInternalNode(raw)
		if err != nil {
			return Hash{}, err
		}
		if bitAt(key, depth) == 0 {
			siblings[depth] = n.Right
			cur = n.Left
		} else {
			siblings[depth] = n.Left
			cur = n.Right
		}
	}

	acc := newLeaf
	for depth := treeDepth - 1; depth >= 0; depth-- {
		var n internalNode
		if bitAt(key, depth) == 0 {
			n = internalNode{Left: acc, Right: siblings[depth]}
		} else {
			n = internalNode{Left: siblings[depth], Right: acc}
		}
		acc = hashInternal(n.Left, n.Right)
		if acc == zeroHash[treeDepth-depth] {
			continue
		}
		if err := t.store.Set(append([]byte(nsNodes), acc[:]...), encodeInternalNode(n)); err != nil {
			return Hash{}, err
		}
	}
	return acc, nil
}

// RebuildRoot independently re-derives an SMT root from a raw full-state
// dump (§6's get_full_state/set_full_state shape: every KVStore entry,
// namespaced as persisted), by replaying only the `leaves/`-prefixed
// entries through a fresh empty tree. It deliberately ignores any
// `nodes/`/`meta/root` entries the dump also carries, since those are
// exactly what a malicious peer could forge to make a shortcut
// root-equality check pass without the leaves actually hashing to it
// (§4.5: "verifies every page against the remote's advertised root").
func RebuildRoot(entries map[string][]byte) (Hash, error) {
	tmp := NewInMemoryStore()
	tree, err := NewSMT(tmp)
	if err != nil {
		return Hash{}, err
	}
	prefix := []byte(nsLeafV)
	for k, v := range entries {
		kb := []byte(k)
		if len(kb) != len(prefix)+32 || string(kb[:len(prefix)]) != nsLeafV {
			continue
		}
		var key Hash
		copy(key[:], kb[len(prefix):])
		if _, err := tree.Put(key, v); err != nil {
			return Hash{}, err
		}
	}
	return tree.Root(), nil
}

// Prove builds a membership (or absence) proof for key against the current
// root, truncating a trailing run of default-hash siblings per §4.1.
func (t *SMT) Prove(key Hash) (Proof, error) {
	siblings := make([]Hash, treeDepth)
	cur := t.root
	for depth := 0; depth < treeDepth; depth++ {
		if cur == zeroHash[treeDepth-depth] {
			for d := depth; d < treeDepth; d++ {
				siblings[d] = zeroHash[treeDepth-d-1]
			}
			cur = zeroHash[0]
			break
		}
		raw, err := t.store.Get(append([]byte(nsNodes), cur[:]...))
		if err != nil {
			return Proof{}, fmt.Errorf("smt: missing internal node %s at depth %d: %w", cur, depth, err)
		}
		n, err := decodeInternalNode(raw)
		if err != nil {
			return Proof{}, err
		}
		if bitAt(key, depth) == 0 {
			siblings[depth] = n.Right
			cur = n.Left
		} else {
			siblings[depth] = n.Left
			cur = n.Right
		}
	}

	leafHash := cur
	zeros := 0
	for i := treeDepth - 1; i >= 0; i-- {
		if siblings[i] != zeroHash[treeDepth-i-1] {
			break
		}
		zeros++
	}
	return Proof{
		Siblings:     siblings[:treeDepth-zeros],
		LeafHash:     leafHash,
		Path:         key,
		ZerosOmitted: uint16(zeros),
	}, nil
}
