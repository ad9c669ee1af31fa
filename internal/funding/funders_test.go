package funding

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/madschristensen99/hashield/internal/keyring"
	"github.com/madschristensen99/hashield/pkg/logging"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

type memCounter struct{ n uint32 }

func (m *memCounter) SessionCounter() (uint32, error)  { return m.n, nil }
func (m *memCounter) SetSessionCounter(n uint32) error { m.n = n; return nil }

func testKeys(t *testing.T) *keyring.Keyring {
	t.Helper()
	k := keyring.New(&memCounter{}, logging.New(nil))
	if err := k.ImportMnemonic(testMnemonic, ""); err != nil {
		t.Fatalf("failed to import mnemonic: %v", err)
	}
	return k
}

var poolAddr = common.HexToAddress("0x3333333333333333333333333333333333333333")

func TestPoolFunderInsufficientBalance(t *testing.T) {
	client := newFakeClient()
	keys := testKeys(t)

	pool, err := NewPoolClient(client, poolAddr, keys, logging.New(nil))
	if err != nil {
		t.Fatalf("failed to create pool client: %v", err)
	}

	// getBalance returns 1 wei.
	client.callResult = common.LeftPadBytes(big.NewInt(1).Bytes(), 32)

	funder := NewPoolFunder(pool, keys, logging.New(nil))
	err = funder.Fund(context.Background(), dest, big.NewInt(1e18))
	if !errors.Is(err, ErrPoolInsufficientFunds) {
		t.Errorf("expected ErrPoolInsufficientFunds, got %v", err)
	}
	if len(client.sent) != 0 {
		t.Error("no withdrawal should be sent when the pool is underfunded")
	}
}

func TestPoolFunderBalanceCallFailure(t *testing.T) {
	client := newFakeClient()
	keys := testKeys(t)

	pool, err := NewPoolClient(client, poolAddr, keys, logging.New(nil))
	if err != nil {
		t.Fatalf("failed to create pool client: %v", err)
	}
	client.callErr = errors.New("connection refused")

	funder := NewPoolFunder(pool, keys, logging.New(nil))
	err = funder.Fund(context.Background(), dest, big.NewInt(1e18))
	if !errors.Is(err, ErrPoolCallFailed) {
		t.Errorf("expected ErrPoolCallFailed, got %v", err)
	}
}

func TestPoolFunderWithdraws(t *testing.T) {
	client := newFakeClient()
	keys := testKeys(t)

	pool, err := NewPoolClient(client, poolAddr, keys, logging.New(nil))
	if err != nil {
		t.Fatalf("failed to create pool client: %v", err)
	}
	client.callResult = common.LeftPadBytes(big.NewInt(2e18).Bytes(), 32)

	funder := NewPoolFunder(pool, keys, logging.New(nil))
	if err := funder.Fund(context.Background(), dest, big.NewInt(1e18)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(client.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(client.sent))
	}
	tx := client.sent[0]
	if *tx.To() != poolAddr {
		t.Errorf("withdrawal sent to %s, want pool contract", tx.To().Hex())
	}
	if len(tx.Data()) == 0 {
		t.Error("withdrawal should carry calldata")
	}
}

func TestDirectFunderInsufficientBalance(t *testing.T) {
	client := newFakeClient()
	keys := testKeys(t)

	funder := NewDirectFunder(client, keys, logging.New(nil))
	err := funder.Fund(context.Background(), dest, big.NewInt(1e18))
	if !errors.Is(err, ErrFallbackInsufficientFunds) {
		t.Errorf("expected ErrFallbackInsufficientFunds, got %v", err)
	}
}

func TestDirectFunderTransfers(t *testing.T) {
	client := newFakeClient()
	keys := testKeys(t)

	controller, err := keys.ControllerIdentity()
	if err != nil {
		t.Fatalf("failed to get controller: %v", err)
	}
	client.setBalance(controller.Address, big.NewInt(2e18))

	funder := NewDirectFunder(client, keys, logging.New(nil))
	if err := funder.Fund(context.Background(), dest, big.NewInt(1e18)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(client.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(client.sent))
	}
	tx := client.sent[0]
	if *tx.To() != dest {
		t.Errorf("transfer sent to %s, want %s", tx.To().Hex(), dest.Hex())
	}
	if tx.Value().Cmp(big.NewInt(1e18)) != 0 {
		t.Errorf("transfer value = %s, want 1e18", tx.Value())
	}
}
