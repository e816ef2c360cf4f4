package core

// Proof is a membership (or absence) proof for a single SMT key, per §4.1:
// the sibling path ordered from the root down to the leaf, with the trailing
// (leaf-side) run of default-hash siblings truncated and counted in
// ZerosOmitted.
type Proof struct {
	Siblings     []Hash
	LeafHash     Hash
	Path         Hash // the SMT key; its bits select left/right at each depth
	ZerosOmitted uint16
}

// sibling returns the proof's sibling hash at depth i (0 = nearest root,
// treeDepth-1 = nearest leaf), restoring a truncated trailing default hash.
func (p Proof) sibling(i int) Hash {
	if i < len(p.Siblings) {
		return p.Siblings[i]
	}
	return zeroHash[treeDepth-i-1]
}

// Verify is a pure function: it reconstructs a root from the proof and
// checks it against expectedRoot, without touching storage. valueEncoding
// is the bit-exact leaf value being witnessed; pass nil to verify an
// absence proof.
func Verify(p Proof, key Hash, valueEncoding []byte, expectedRoot Hash) bool {
	if int(p.ZerosOmitted) > treeDepth || len(p.Siblings) != treeDepth-int(p.ZerosOmitted) {
		return false
	}
	if key != p.Path {
		return false
	}
	var wantLeaf Hash
	if valueEncoding == nil {
		wantLeaf = zeroHash[0]
	} else {
		wantLeaf = hashLeaf(key, valueEncoding)
	}
	if wantLeaf != p.LeafHash {
		return false
	}

	acc := p.LeafHash
	for depth := treeDepth - 1; depth >= 0; depth-- {
		sib := p.sibling(depth)
		if bitAt(key, depth) == 0 {
			acc = hashInternal(acc, sib)
		} else {
			acc = hashInternal(sib, acc)
		}
	}
	return acc == expectedRoot
}

// IsAbsence reports whether p witnesses the absence of its key.
func (p Proof) IsAbsence() bool { return p.LeafHash == zeroHash[0] }

// EncodeProof serializes a Proof to its canonical wire form:
// path(32) || zeros_omitted(2, LE) || leaf_hash(32) || siblings(32 each).
func EncodeProof(p Proof) []byte {
	out := make([]byte, 0, 32+2+32+32*len(p.Siblings))
	out = append(out, p.Path[:]...)
	var zbuf [2]byte
	zbuf[0] = byte(p.ZerosOmitted)
	zbuf[1] = byte(p.ZerosOmitted >> 8)
	out = append(out, zbuf[:]...)
	out = append(out, p.LeafHash[:]...)
	for _, s := range p.Siblings {
		out = append(out, s[:]...)
	}
	return out
}

// DecodeProof parses the wire form produced by EncodeProof. It returns
// ErrProofMalformed if the length is inconsistent with zeros_omitted.
func DecodeProof(b []byte) (Proof, error) {
	if len(b) < 66 {
		return Proof{}, ErrProofMalformed
	}
	var p Proof
	copy(p.Path[:], b[0:32])
	p.ZerosOmitted = uint16(b[32]) | uint16(b[33])<<8
	copy(p.LeafHash[:], b[34:66])
	rest := b[66:]
	if len(rest)%32 != 0 {
		return Proof{}, ErrProofMalformed
	}
	n := len(rest) / 32
	if n != treeDepth-int(p.ZerosOmitted) {
		return Proof{}, ErrProofMalformed
	}
	p.Siblings = make([]Hash, n)
	for i := 0; i < n; i++ {
		copy(p.Siblings[i][:], rest[i*32:(i+1)*32])
	}
	return p, nil
}

// Equal reports whether two proofs are byte-identical; used by tests that
// flip a single bit to confirm Verify rejects the mutation (P5).
func (p Proof) Equal(o Proof) bool {
	if p.Path != o.Path || p.LeafHash != o.LeafHash || p.ZerosOmitted != o.ZerosOmitted {
		return false
	}
	if len(p.Siblings) != len(o.Siblings) {
		return false
	}
	for i := range p.Siblings {
		if p.Siblings[i] != o.Siblings[i] {
			return false
		}
	}
	return true
}
