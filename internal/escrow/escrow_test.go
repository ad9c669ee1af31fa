package escrow

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/madschristensen99/hashield/internal/evm"
	"github.com/madschristensen99/hashield/pkg/logging"
)

// chainFake implements evm.Client for escrow call tests.
type chainFake struct {
	mu            sync.Mutex
	sent          []*types.Transaction
	receiptStatus uint64
}

func newChainFake() *chainFake {
	return &chainFake{receiptStatus: types.ReceiptStatusSuccessful}
}

func (c *chainFake) ChainID() *big.Int { return big.NewInt(84532) }

func (c *chainFake) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 200000, nil
}

func (c *chainFake) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1e9), nil
}

func (c *chainFake) FeeData(ctx context.Context) (*evm.FeeData, error) {
	return &evm.FeeData{
		GasPrice:             big.NewInt(1e9),
		MaxFeePerGas:         big.NewInt(2e9),
		MaxPriorityFeePerGas: big.NewInt(1e8),
	}, nil
}

func (c *chainFake) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

func (c *chainFake) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	return 0, nil
}

func (c *chainFake) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, tx)
	return nil
}

func (c *chainFake) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.WaitMined(ctx, txHash)
}

func (c *chainFake) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &types.Receipt{Status: c.receiptStatus, TxHash: txHash}, nil
}

func (c *chainFake) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return nil, nil
}

var (
	resolverAddr = common.HexToAddress("0x5555555555555555555555555555555555555555")
	escrowAddr   = common.HexToAddress("0x6666666666666666666666666666666666666666")
)

func testClient(t *testing.T, chain *chainFake) *Client {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	c, err := NewClient(chain, &Config{
		ResolverAddress: resolverAddr,
		EscrowAddress:   escrowAddr,
		RelayerKey:      key,
	}, logging.New(nil))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func testImmutables() *Immutables {
	return &Immutables{
		OrderHash:     [32]byte{1},
		Hashlock:      [32]byte{2},
		Maker:         big.NewInt(3),
		Taker:         big.NewInt(4),
		Token:         big.NewInt(0),
		Amount:        big.NewInt(1e18),
		SafetyDeposit: big.NewInt(1e15),
		Timelocks:     big.NewInt(0),
	}
}

func testOrder() *Order {
	return &Order{
		Salt:         big.NewInt(1),
		Maker:        big.NewInt(2),
		Receiver:     big.NewInt(0),
		MakerAsset:   big.NewInt(3),
		TakerAsset:   big.NewInt(4),
		MakingAmount: big.NewInt(1e18),
		TakingAmount: big.NewInt(2e18),
		MakerTraits:  big.NewInt(0),
	}
}

func TestDeploySourceTargetsResolver(t *testing.T) {
	chain := newChainFake()
	c := testClient(t, chain)

	_, err := c.DeploySource(context.Background(),
		testImmutables(), testOrder(), &SignatureParts{R: [32]byte{9}, VS: [32]byte{8}},
		big.NewInt(1e18), big.NewInt(0), nil, big.NewInt(1e15))
	if err != nil {
		t.Fatalf("deploy failed: %v", err)
	}

	if len(chain.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(chain.sent))
	}
	tx := chain.sent[0]
	if *tx.To() != resolverAddr {
		t.Errorf("call sent to %s, want resolver", tx.To().Hex())
	}
	if tx.Value().Cmp(big.NewInt(1e15)) != 0 {
		t.Errorf("call value = %s, want safety deposit", tx.Value())
	}
}

func TestWithdrawAndCancelTargetResolver(t *testing.T) {
	chain := newChainFake()
	c := testClient(t, chain)

	escrow := common.HexToAddress("0x7777777777777777777777777777777777777777")
	if _, err := c.Withdraw(context.Background(), escrow, [32]byte{1}, testImmutables()); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if _, err := c.Cancel(context.Background(), escrow, testImmutables()); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	for _, tx := range chain.sent {
		if *tx.To() != resolverAddr {
			t.Errorf("call sent to %s, want resolver", tx.To().Hex())
		}
	}
}

func TestCancelWithSecretTargetsEscrow(t *testing.T) {
	chain := newChainFake()
	c := testClient(t, chain)

	if _, err := c.CancelWithSecret(context.Background(), [32]byte{1}, [32]byte{2}); err != nil {
		t.Fatalf("cancelWithSecret failed: %v", err)
	}
	if *chain.sent[0].To() != escrowAddr {
		t.Errorf("call sent to %s, want escrow contract", chain.sent[0].To().Hex())
	}
}

func TestRevertSurfacesError(t *testing.T) {
	chain := newChainFake()
	chain.receiptStatus = types.ReceiptStatusFailed
	c := testClient(t, chain)

	_, err := c.CancelWithSecret(context.Background(), [32]byte{1}, [32]byte{2})
	if !errors.Is(err, ErrExecutionReverted) {
		t.Errorf("expected ErrExecutionReverted, got %v", err)
	}
}

func TestNoRelayerKey(t *testing.T) {
	chain := newChainFake()
	c, err := NewClient(chain, &Config{
		ResolverAddress: resolverAddr,
		EscrowAddress:   escrowAddr,
	}, logging.New(nil))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if _, err := c.CancelWithSecret(context.Background(), [32]byte{1}, [32]byte{2}); !errors.Is(err, ErrNoRelayerKey) {
		t.Errorf("expected ErrNoRelayerKey, got %v", err)
	}
	if _, err := c.WithdrawViaRelayer(context.Background(), [32]byte{1}, [32]byte{2}, big.NewInt(1), 1); !errors.Is(err, ErrNoRelayerKey) {
		t.Errorf("expected ErrNoRelayerKey, got %v", err)
	}
}
