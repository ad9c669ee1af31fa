package funding

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/madschristensen99/hashield/internal/evm"
	"github.com/madschristensen99/hashield/internal/keyring"
	"github.com/madschristensen99/hashield/pkg/logging"
)

// Liquidity pool contract interface.
const poolABIJSON = `[
	{"type":"function","name":"deposit","inputs":[],"outputs":[],"stateMutability":"payable"},
	{"type":"function","name":"withdraw","inputs":[{"name":"dest","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"getBalance","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}
]`

// KeySource provides the controller identity that owns pool deposits.
// The keyring implements it.
type KeySource interface {
	ControllerIdentity() (*keyring.SessionIdentity, error)
}

// PoolClient wraps the on-chain liquidity pool contract.
type PoolClient struct {
	client  evm.Client
	address common.Address
	keys    KeySource
	abi     abi.ABI
	log     *logging.Logger
}

// NewPoolClient creates a pool client bound to the contract at address.
func NewPoolClient(client evm.Client, address common.Address, keys KeySource, log *logging.Logger) (*PoolClient, error) {
	parsed, err := abi.JSON(strings.NewReader(poolABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}

	return &PoolClient{
		client:  client,
		address: address,
		keys:    keys,
		abi:     parsed,
		log:     log.Component("pool"),
	}, nil
}

// Address returns the pool contract address.
func (p *PoolClient) Address() common.Address {
	return p.address
}

// Balance returns owner's balance inside the pool.
func (p *PoolClient) Balance(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := p.abi.Pack("getBalance", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getBalance: %w", err)
	}

	result, err := p.client.CallContract(ctx, ethereum.CallMsg{
		To:   &p.address,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call getBalance: %w", err)
	}

	values, err := p.abi.Unpack("getBalance", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getBalance: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getBalance return type %T", values[0])
	}

	return balance, nil
}

// Withdraw moves amount from the controller's pool balance to dest.
func (p *PoolClient) Withdraw(ctx context.Context, dest common.Address, amount *big.Int) error {
	controller, err := p.keys.ControllerIdentity()
	if err != nil {
		return fmt.Errorf("failed to get controller key: %w", err)
	}

	data, err := p.abi.Pack("withdraw", dest, amount)
	if err != nil {
		return fmt.Errorf("failed to pack withdraw: %w", err)
	}

	receipt, err := evm.SendAndWait(ctx, p.client, controller.PrivateKey(), &p.address, nil, data, 0)
	if err != nil {
		return fmt.Errorf("withdraw transaction failed: %w", err)
	}
	if receipt.Status == 0 {
		return fmt.Errorf("withdraw reverted in tx %s", receipt.TxHash.Hex())
	}

	p.log.Info("pool withdrawal mined",
		"dest", dest.Hex(),
		"amount", amount.String(),
		"tx", receipt.TxHash.Hex())
	return nil
}

// Deposit moves amount of the controller's on-chain balance into the pool.
func (p *PoolClient) Deposit(ctx context.Context, amount *big.Int) error {
	controller, err := p.keys.ControllerIdentity()
	if err != nil {
		return fmt.Errorf("failed to get controller key: %w", err)
	}

	data, err := p.abi.Pack("deposit")
	if err != nil {
		return fmt.Errorf("failed to pack deposit: %w", err)
	}

	receipt, err := evm.SendAndWait(ctx, p.client, controller.PrivateKey(), &p.address, amount, data, 0)
	if err != nil {
		return fmt.Errorf("deposit transaction failed: %w", err)
	}
	if receipt.Status == 0 {
		return fmt.Errorf("deposit reverted in tx %s", receipt.TxHash.Hex())
	}

	p.log.Info("pool deposit mined", "amount", amount.String(), "tx", receipt.TxHash.Hex())
	return nil
}
