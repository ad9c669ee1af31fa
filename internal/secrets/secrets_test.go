package secrets

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestGeneratePair(t *testing.T) {
	pair, err := GeneratePair()
	if err != nil {
		t.Fatalf("failed to generate pair: %v", err)
	}

	if pair.ClaimSecret == pair.RefundSecret {
		t.Error("claim and refund secrets should differ")
	}
	if pair.ClaimHash == pair.RefundHash {
		t.Error("claim and refund hashes should differ")
	}

	var zero [SecretSize]byte
	if pair.ClaimSecret == zero || pair.RefundSecret == zero {
		t.Error("secrets should not be all zeros")
	}
}

func TestHashMatchesKeccak256(t *testing.T) {
	var secret [SecretSize]byte
	for i := range secret {
		secret[i] = byte(i)
	}

	got := Hash(secret)
	want := crypto.Keccak256(secret[:])
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("hash mismatch at byte %d: got %x, want %x", i, got, want)
		}
	}
}

func TestVerify(t *testing.T) {
	pair, err := GeneratePair()
	if err != nil {
		t.Fatalf("failed to generate pair: %v", err)
	}

	if !Verify(pair.ClaimSecret, pair.ClaimHash) {
		t.Error("claim secret should verify against its own hash")
	}
	if !Verify(pair.RefundSecret, pair.RefundHash) {
		t.Error("refund secret should verify against its own hash")
	}
	if Verify(pair.ClaimSecret, pair.RefundHash) {
		t.Error("claim secret should not verify against refund hash")
	}
}

func TestPairsAreDistinct(t *testing.T) {
	seen := make(map[[32]byte]bool)

	for i := 0; i < 10000; i++ {
		pair, err := GeneratePair()
		if err != nil {
			t.Fatalf("failed to generate pair %d: %v", i, err)
		}
		if seen[pair.ClaimHash] || seen[pair.RefundHash] {
			t.Fatal("duplicate hash lock generated")
		}
		seen[pair.ClaimHash] = true
		seen[pair.RefundHash] = true
	}
}
