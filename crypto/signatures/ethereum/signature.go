// Package ethereum provides Ethereum ECDSA signatures (EIP-191 personal
// messages). The API uses them to authenticate the caller of every write
// request.
package ethereum

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/ballotbox/types"
)

const (
	// SignatureLength is the size of an ECDSA signature in bytes
	SignatureLength = ethcrypto.SignatureLength
	// SignatureMinLength is the size of a signature without recovery byte
	SignatureMinLength = SignatureLength - 1
	// SigningPrefix is the prefix added when hashing Ethereum messages
	SigningPrefix = "\u0019Ethereum Signed Message:\n"
	// HashLength is the size of a keccak256 hash
	HashLength = 32
)

// ECDSASignature represents an Ethereum ECDSA signature with R and S components
// and the public key recovery id.
type ECDSASignature struct {
	R        *big.Int `json:"r"`
	S        *big.Int `json:"s"`
	recovery byte
}

// New creates a new ECDSASignature from a raw signature payload. The recovery
// byte may use the 0-3 or the 27-30 (browser wallets) range.
func New(signature []byte) (*ECDSASignature, error) {
	if len(signature) < SignatureMinLength {
		return nil, fmt.Errorf("signature length is less than %d", SignatureMinLength)
	}
	sig := new(ECDSASignature).SetBytes(signature)
	if sig == nil {
		return nil, fmt.Errorf("wrong signature bytes")
	}
	return sig, nil
}

// HexToSignature decodes a hex string (optionally 0x prefixed) into an
// ECDSASignature.
func HexToSignature(hexSignature string) (*ECDSASignature, error) {
	b, err := types.HexStringToHexBytes(hexSignature)
	if err != nil {
		return nil, err
	}
	return New(b)
}

// Valid reports whether both R and S are set.
func (sig *ECDSASignature) Valid() bool {
	return sig.R != nil && sig.S != nil
}

// Bytes returns the 65 byte [R || S || V] encoding of the signature, with V in
// the 0-3 range expected by ethcrypto.SigToPub.
func (sig *ECDSASignature) Bytes() []byte {
	out := make([]byte, SignatureLength)
	sig.R.FillBytes(out[:32])
	sig.S.FillBytes(out[32:64])
	out[64] = sig.recovery
	return out
}

// Hex returns the 0x prefixed hex encoding of Bytes.
func (sig *ECDSASignature) Hex() string {
	b := types.HexBytes(sig.Bytes())
	return b.String()
}

// SetBytes sets the signature from a byte slice of at least 64 bytes. It
// returns nil if the recovery byte is out of range.
func (sig *ECDSASignature) SetBytes(signature []byte) *ECDSASignature {
	if len(signature) < SignatureMinLength {
		return nil
	}
	sig.R = new(big.Int).SetBytes(signature[:32])
	sig.S = new(big.Int).SetBytes(signature[32:64])
	sig.recovery = 0
	if len(signature) >= SignatureLength {
		v := signature[64]
		if v >= 27 {
			v -= 27
		}
		if v > 3 {
			return nil
		}
		sig.recovery = v
	}
	return sig
}

// Verify checks that sig is a valid signature of msg produced by
// expectedAddress.
func (sig *ECDSASignature) Verify(msg []byte, expectedAddress common.Address) bool {
	addr, err := AddrFromSignature(msg, sig)
	if err != nil {
		return false
	}
	return addr == expectedAddress
}

func (sig *ECDSASignature) String() string {
	return fmt.Sprintf("R: %s, S: %s, Recovery: %d", sig.R.String(), sig.S.String(), sig.recovery)
}

// AddrFromSignature recovers the Ethereum address that created the signature
// of a message.
func AddrFromSignature(msg []byte, sig *ECDSASignature) (common.Address, error) {
	if sig == nil || !sig.Valid() {
		return common.Address{}, fmt.Errorf("invalid signature")
	}
	pubKey, err := ethcrypto.SigToPub(HashMessage(msg), sig.Bytes())
	if err != nil {
		return common.Address{}, fmt.Errorf("sigToPub: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pubKey), nil
}
