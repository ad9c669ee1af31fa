package escrow

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/madschristensen99/hashield/pkg/logging"
)

func TestRelayerDigestDeterministic(t *testing.T) {
	chain := newChainFake()
	c := testClient(t, chain)

	orderHash := [32]byte{1}
	secret := [32]byte{2}
	fee := big.NewInt(1e15)

	a := c.relayerDigest(orderHash, secret, c.relayerAddr, fee, 7)
	b := c.relayerDigest(orderHash, secret, c.relayerAddr, fee, 7)
	if !bytes.Equal(a, b) {
		t.Error("same inputs should produce the same digest")
	}

	diff := c.relayerDigest(orderHash, secret, c.relayerAddr, fee, 8)
	if bytes.Equal(a, diff) {
		t.Error("different salt should change the digest")
	}

	var secret2 [32]byte
	secret2[0] = 3
	diff = c.relayerDigest(orderHash, secret2, c.relayerAddr, fee, 7)
	if bytes.Equal(a, diff) {
		t.Error("different secret should change the digest")
	}
}

func TestRelayerDigestBindsToContract(t *testing.T) {
	chain := newChainFake()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	c1, err := NewClient(chain, &Config{
		ResolverAddress: resolverAddr,
		EscrowAddress:   escrowAddr,
		RelayerKey:      key,
	}, logging.New(nil))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	other := resolverAddr // any different verifying contract
	c2, err := NewClient(chain, &Config{
		ResolverAddress: escrowAddr,
		EscrowAddress:   other,
		RelayerKey:      key,
	}, logging.New(nil))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	a := c1.relayerDigest([32]byte{1}, [32]byte{2}, c1.relayerAddr, big.NewInt(1), 1)
	b := c2.relayerDigest([32]byte{1}, [32]byte{2}, c2.relayerAddr, big.NewInt(1), 1)
	if bytes.Equal(a, b) {
		t.Error("digest should bind to the verifying contract address")
	}
}

func TestWithdrawViaRelayerSignatureRecovers(t *testing.T) {
	chain := newChainFake()
	c := testClient(t, chain)

	orderHash := [32]byte{0xaa}
	secret := [32]byte{0xbb}
	fee := big.NewInt(1e15)
	salt := uint32(42)

	if _, err := c.WithdrawViaRelayer(context.Background(), orderHash, secret, fee, salt); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}

	if len(chain.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(chain.sent))
	}
	tx := chain.sent[0]
	if *tx.To() != escrowAddr {
		t.Errorf("call sent to %s, want escrow contract", tx.To().Hex())
	}

	method, err := c.escrowABI.MethodById(tx.Data()[:4])
	if err != nil {
		t.Fatalf("failed to resolve method: %v", err)
	}
	if method.Name != "withdrawWithRelayer" {
		t.Fatalf("method = %s, want withdrawWithRelayer", method.Name)
	}

	values, err := method.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		t.Fatalf("failed to unpack calldata: %v", err)
	}

	v := values[5].(uint8)
	r := values[6].([32]byte)
	s := values[7].([32]byte)

	sig := make([]byte, 65)
	copy(sig[:32], r[:])
	copy(sig[32:64], s[:])
	sig[64] = v - 27

	digest := c.relayerDigest(orderHash, secret, c.relayerAddr, fee, salt)
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		t.Fatalf("failed to recover signer: %v", err)
	}
	if crypto.PubkeyToAddress(*pub) != c.relayerAddr {
		t.Error("signature should recover to the relayer address")
	}
}
