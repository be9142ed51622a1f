// Package merkle verifies membership proofs against a keccak256 Merkle root.
//
// A proof is the list of sibling digests from the leaf up to the root. Each
// step hashes the running digest followed by the sibling (current||sibling),
// with no position bits and no sorting, so only paths where the running digest
// is always the left operand verify. An empty proof is valid iff the leaf is
// the root.
package merkle

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/ballotbox/crypto/hash"
)

// Verifier checks proofs with a configurable hash function.
type Verifier struct {
	hash hash.Func
}

// NewVerifier returns a Verifier using h, or keccak256 if h is nil.
func NewVerifier(h hash.Func) *Verifier {
	if h == nil {
		h = hash.Keccak256
	}
	return &Verifier{hash: h}
}

// ComputeRoot folds the proof over the leaf and returns the resulting root.
func (v *Verifier) ComputeRoot(leaf []byte, proof [][]byte) []byte {
	current := bytes.Clone(leaf)
	for _, sibling := range proof {
		current = hash.Node(v.hash, current, sibling)
	}
	return current
}

// Verify reports whether folding proof over leaf yields root.
func (v *Verifier) Verify(leaf, root []byte, proof [][]byte) bool {
	return bytes.Equal(v.ComputeRoot(leaf, proof), root)
}

// Leaf returns the leaf of an identity.
func (v *Verifier) Leaf(identity common.Address) []byte {
	return v.hash(identity.Bytes())
}

// VerifyIdentity reports whether identity belongs to the tree of root.
func (v *Verifier) VerifyIdentity(identity common.Address, root []byte, proof [][]byte) bool {
	return v.Verify(v.Leaf(identity), root, proof)
}

var defaultVerifier = NewVerifier(hash.Keccak256)

// ComputeRoot folds proof over leaf with keccak256.
func ComputeRoot(leaf []byte, proof [][]byte) []byte {
	return defaultVerifier.ComputeRoot(leaf, proof)
}

// Verify checks a keccak256 proof.
func Verify(leaf, root []byte, proof [][]byte) bool {
	return defaultVerifier.Verify(leaf, root, proof)
}

// VerifyIdentity checks a keccak256 proof for the leaf of identity.
func VerifyIdentity(identity common.Address, root []byte, proof [][]byte) bool {
	return defaultVerifier.VerifyIdentity(identity, root, proof)
}
