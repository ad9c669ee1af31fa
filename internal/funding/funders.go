package funding

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/madschristensen99/hashield/internal/evm"
	"github.com/madschristensen99/hashield/pkg/logging"
)

// PoolFunder tops up session addresses from the liquidity pool. This
// keeps the controller address out of the transfer graph entirely.
type PoolFunder struct {
	pool *PoolClient
	keys KeySource
	log  *logging.Logger
}

// NewPoolFunder creates the primary funding source.
func NewPoolFunder(pool *PoolClient, keys KeySource, log *logging.Logger) *PoolFunder {
	return &PoolFunder{
		pool: pool,
		keys: keys,
		log:  log.Component("pool-funder"),
	}
}

func (f *PoolFunder) Name() string { return "pool" }

// Fund withdraws amount from the controller's pool balance to dest.
// The pool balance is checked first so an underfunded pool surfaces as
// ErrPoolInsufficientFunds rather than an opaque revert.
func (f *PoolFunder) Fund(ctx context.Context, dest common.Address, amount *big.Int) error {
	controller, err := f.keys.ControllerIdentity()
	if err != nil {
		return fmt.Errorf("failed to get controller identity: %w", err)
	}

	balance, err := f.pool.Balance(ctx, controller.Address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPoolCallFailed, err)
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrPoolInsufficientFunds, balance, amount)
	}

	if err := f.pool.Withdraw(ctx, dest, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrPoolCallFailed, err)
	}

	return nil
}

// DirectFunder transfers from the controller address itself. Used as a
// fallback when the pool cannot serve a request; it links the
// controller to the session on-chain, so it comes last.
type DirectFunder struct {
	client evm.Client
	keys   KeySource
	log    *logging.Logger
}

// NewDirectFunder creates the fallback funding source.
func NewDirectFunder(client evm.Client, keys KeySource, log *logging.Logger) *DirectFunder {
	return &DirectFunder{
		client: client,
		keys:   keys,
		log:    log.Component("direct-funder"),
	}
}

func (f *DirectFunder) Name() string { return "direct" }

// Fund sends a plain value transfer from the controller to dest.
func (f *DirectFunder) Fund(ctx context.Context, dest common.Address, amount *big.Int) error {
	controller, err := f.keys.ControllerIdentity()
	if err != nil {
		return fmt.Errorf("failed to get controller identity: %w", err)
	}

	balance, err := f.client.BalanceAt(ctx, controller.Address)
	if err != nil {
		return fmt.Errorf("failed to get controller balance: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrFallbackInsufficientFunds, balance, amount)
	}

	f.log.Warn("falling back to direct transfer", "dest", dest.Hex(), "amount", amount.String())

	receipt, err := evm.SendAndWait(ctx, f.client, controller.PrivateKey(), &dest, amount, nil, 21000)
	if err != nil {
		return fmt.Errorf("direct transfer failed: %w", err)
	}
	if receipt.Status == 0 {
		return fmt.Errorf("direct transfer reverted in tx %s", receipt.TxHash.Hex())
	}

	return nil
}
