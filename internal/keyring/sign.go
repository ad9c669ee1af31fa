package keyring

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// PersonalSign signs message with the identity's key using the
// EIP-191 personal message scheme. The returned signature is 65 bytes
// r || s || v with v in {27, 28}.
func (s *SessionIdentity) PersonalSign(message []byte) ([]byte, error) {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	hash := crypto.Keccak256([]byte(prefix), message)

	sig, err := crypto.Sign(hash, s.priv.ToECDSA())
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	sig[64] += 27
	return sig, nil
}

// SignHash signs a raw 32-byte digest. The recovery byte stays in
// {0, 1} as produced by the secp256k1 signer.
func (s *SessionIdentity) SignHash(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	return crypto.Sign(hash, s.priv.ToECDSA())
}
