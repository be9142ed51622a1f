package ethereum

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/ballotbox/types"
	"github.com/vocdoni/ballotbox/util"
)

// Signer represents an ECDSA private key for signing Ethereum messages. The
// message is hashed (keccak256) with the Ethereum Signed Message prefix and
// the hash is signed with the private key.
type Signer ecdsa.PrivateKey

// Address returns the Ethereum address derived from the public key of the signer.
func (s *Signer) Address() common.Address {
	return ethcrypto.PubkeyToAddress(s.PublicKey)
}

// HexPrivateKey returns the hex-encoded representation of the private key.
func (s *Signer) HexPrivateKey() types.HexBytes {
	return types.HexBytes(ethcrypto.FromECDSA((*ecdsa.PrivateKey)(s)))
}

// Sign signs a message with the Ethereum prefix.
func (s *Signer) Sign(msg []byte) (*ECDSASignature, error) {
	return Sign(msg, (*ecdsa.PrivateKey)(s))
}

// NewSigner creates a new random signer.
func NewSigner() (*Signer, error) {
	s, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("could not generate key: %w", err)
	}
	return (*Signer)(s), nil
}

// NewSignerFromHex creates a signer from a hex-encoded private key.
func NewSignerFromHex(hexKey string) (*Signer, error) {
	s, err := ethcrypto.HexToECDSA(util.TrimHex(hexKey))
	if err != nil {
		return nil, fmt.Errorf("could not load key: %w", err)
	}
	return (*Signer)(s), nil
}

// NewSignerFromSeed creates a signer from a seed of any length, hashing it to
// the right size first.
func NewSignerFromSeed(seed []byte) (*Signer, error) {
	s, err := ethcrypto.ToECDSA(ethcrypto.Keccak256(seed))
	if err != nil {
		return nil, fmt.Errorf("could not generate key: %w", err)
	}
	return (*Signer)(s), nil
}

// Sign signs an Ethereum message (adding the corresponding prefix) using the
// given private key.
func Sign(msg []byte, privKey *ecdsa.PrivateKey) (*ECDSASignature, error) {
	ethSignature, err := ethcrypto.Sign(HashMessage(msg), privKey)
	if err != nil {
		return nil, fmt.Errorf("could not sign message: %w", err)
	}
	return &ECDSASignature{
		R:        new(big.Int).SetBytes(ethSignature[:32]),
		S:        new(big.Int).SetBytes(ethSignature[32:64]),
		recovery: ethSignature[64],
	}, nil
}

// HashMessage performs a keccak256 hash over the data adding the Ethereum
// message prefix.
func HashMessage(data []byte) []byte {
	payload := make([]byte, 0, len(SigningPrefix)+20+len(data))
	payload = append(payload, SigningPrefix...)
	payload = strconv.AppendInt(payload, int64(len(data)), 10)
	payload = append(payload, data...)
	return HashRaw(payload)
}

// HashRaw hashes data with no prefix using Keccak256.
func HashRaw(data []byte) []byte {
	return ethcrypto.Keccak256(data)
}
