// Package funding tops up session addresses so approved transactions
// can execute. Session addresses are fresh accounts with no history,
// so every value-bearing transaction normally needs a top-up first.
package funding

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/madschristensen99/hashield/internal/evm"
	"github.com/madschristensen99/hashield/pkg/logging"
)

// Funding errors.
var (
	ErrPoolInsufficientFunds     = errors.New("pool balance insufficient")
	ErrPoolCallFailed            = errors.New("pool withdrawal failed")
	ErrFallbackInsufficientFunds = errors.New("controller balance insufficient for direct transfer")
	ErrVerificationTimeout       = errors.New("funds did not arrive before timeout")
	ErrNoFunders                 = errors.New("no funding sources configured")
)

// Estimate is the cost projection for one transaction.
type Estimate struct {
	GasLimit uint64
	GasPrice *big.Int // max fee per gas
	Value    *big.Int
}

// TotalNeeded returns gas cost plus transferred value.
func (e *Estimate) TotalNeeded() *big.Int {
	total := new(big.Int).SetUint64(e.GasLimit)
	total.Mul(total, e.GasPrice)
	if e.Value != nil {
		total.Add(total, e.Value)
	}
	return total
}

// Outcome reports what the coordinator did for one request.
type Outcome struct {
	Needed   *big.Int
	Balance  *big.Int
	Deficit  *big.Int
	Funded   bool
	Path     string // name of the funder that succeeded, "" if none needed
	Attempts int
}

// Funder moves a deficit amount to a destination address.
type Funder interface {
	Name() string
	Fund(ctx context.Context, dest common.Address, amount *big.Int) error
}

// Coordinator checks a session address against the projected cost of a
// transaction and routes a top-up through the configured funders in
// order, falling through on failure.
type Coordinator struct {
	client       evm.Client
	funders      []Funder
	margin       *big.Int
	pollInterval time.Duration
	maxAttempts  int
	log          *logging.Logger
}

// Config holds coordinator tuning.
type Config struct {
	// Margin is added on top of the deficit to absorb fee drift
	// between estimation and execution.
	Margin       *big.Int
	PollInterval time.Duration
	MaxAttempts  int
}

// NewCoordinator creates a funding coordinator. Funders are tried in
// the order given.
func NewCoordinator(client evm.Client, funders []Funder, cfg *Config, log *logging.Logger) *Coordinator {
	margin := cfg.Margin
	if margin == nil {
		margin = big.NewInt(0)
	}
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 3 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 5
	}

	return &Coordinator{
		client:       client,
		funders:      funders,
		margin:       margin,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		log:          log.Component("funding"),
	}
}

// EnsureFunded guarantees dest holds enough to cover est, topping it
// up if necessary. When the balance already covers the projected cost
// no funder is contacted.
func (c *Coordinator) EnsureFunded(ctx context.Context, dest common.Address, est *Estimate) (*Outcome, error) {
	needed := est.TotalNeeded()

	balance, err := c.client.BalanceAt(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance for %s: %w", dest.Hex(), err)
	}

	out := &Outcome{Needed: needed, Balance: balance}

	if balance.Cmp(needed) >= 0 {
		c.log.Debug("session already funded", "address", dest.Hex(), "balance", balance.String())
		return out, nil
	}

	deficit := new(big.Int).Sub(needed, balance)
	deficit.Add(deficit, c.margin)
	out.Deficit = deficit

	if len(c.funders) == 0 {
		return out, ErrNoFunders
	}

	var lastErr error
	for _, funder := range c.funders {
		c.log.Info("requesting top-up",
			"funder", funder.Name(),
			"address", dest.Hex(),
			"amount", deficit.String())

		// Margin pads the requested amount only; arrival is judged
		// against the projected cost.
		if err := funder.Fund(ctx, dest, deficit); err != nil {
			c.log.Warn("funding source failed", "funder", funder.Name(), "error", err)
			lastErr = err
			continue
		}

		attempts, err := c.verifyArrival(ctx, dest, needed)
		out.Attempts += attempts
		if err != nil {
			c.log.Warn("top-up not observed", "funder", funder.Name(), "error", err)
			lastErr = err
			continue
		}

		out.Funded = true
		out.Path = funder.Name()
		c.log.Info("session funded", "funder", funder.Name(), "address", dest.Hex())
		return out, nil
	}

	return out, lastErr
}

// verifyArrival polls the destination balance until it reaches target.
func (c *Coordinator) verifyArrival(ctx context.Context, dest common.Address, target *big.Int) (int, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		balance, err := c.client.BalanceAt(ctx, dest)
		if err != nil {
			return attempt, fmt.Errorf("failed to poll balance: %w", err)
		}
		if balance.Cmp(target) >= 0 {
			return attempt, nil
		}

		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-ticker.C:
		}
	}

	return c.maxAttempts, ErrVerificationTimeout
}
