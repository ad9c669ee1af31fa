// Package secrets generates and verifies the hash-lock material used
// for escrow settlement. Each order carries a claim/refund secret pair;
// only the keccak256 hashes leave the daemon before settlement.
package secrets

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// SecretSize is the byte length of a hash-lock preimage.
const SecretSize = 32

// Pair holds the two preimages for one order together with their
// keccak256 hash locks. ClaimSecret unlocks the counterparty withdrawal
// path, RefundSecret the cancellation path.
type Pair struct {
	ClaimSecret  [SecretSize]byte
	RefundSecret [SecretSize]byte
	ClaimHash    [32]byte
	RefundHash   [32]byte
}

// GeneratePair creates a fresh claim/refund secret pair from the
// system CSPRNG.
func GeneratePair() (*Pair, error) {
	p := &Pair{}

	if _, err := rand.Read(p.ClaimSecret[:]); err != nil {
		return nil, fmt.Errorf("failed to generate claim secret: %w", err)
	}
	if _, err := rand.Read(p.RefundSecret[:]); err != nil {
		return nil, fmt.Errorf("failed to generate refund secret: %w", err)
	}

	p.ClaimHash = Hash(p.ClaimSecret)
	p.RefundHash = Hash(p.RefundSecret)
	return p, nil
}

// Hash returns the keccak256 hash lock for a preimage.
func Hash(secret [SecretSize]byte) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(secret[:]))
	return out
}

// Verify reports whether secret is the preimage of hash.
func Verify(secret [SecretSize]byte, hash [32]byte) bool {
	return Hash(secret) == hash
}
