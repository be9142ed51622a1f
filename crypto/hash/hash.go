// Package hash wraps the keccak256 primitive used for Merkle leaves, tree
// nodes and storage keys derived from variable length inputs.
package hash

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Size is the length in bytes of a digest.
const Size = 32

// Func hashes the concatenation of its inputs into a digest.
type Func func(data ...[]byte) []byte

// Keccak256 is the default Func.
func Keccak256(data ...[]byte) []byte {
	return ethcrypto.Keccak256(data...)
}

// LeafHash derives the Merkle leaf of an identity: keccak256 over the 20
// address bytes.
func LeafHash(identity common.Address) []byte {
	return Keccak256(identity.Bytes())
}

// Node combines a running digest with the next proof element, in that order.
func Node(h Func, current, sibling []byte) []byte {
	return h(current, sibling)
}
