package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/madschristensen99/hashield/pkg/helpers"
)

// Subsystem availability errors.
var (
	ErrPoolNotConfigured = errors.New("liquidity pool not configured")
)

func parseWeiAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("amount is required")
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount: %s", s)
	}
	return amount, nil
}

// poolBalance returns the pool balance of an address. With no address
// given, the controller's balance is returned.
func (s *Server) poolBalance(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.pool == nil {
		return nil, ErrPoolNotConfigured
	}

	var p struct {
		Address string `json:"address"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	var owner common.Address
	if p.Address != "" {
		if !common.IsHexAddress(p.Address) {
			return nil, fmt.Errorf("invalid address: %s", p.Address)
		}
		owner = common.HexToAddress(p.Address)
	} else {
		controller, err := s.keys.ControllerAddress()
		if err != nil {
			return nil, err
		}
		owner = controller
	}

	balance, err := s.pool.Balance(ctx, owner)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"address":    owner.Hex(),
		"balanceWei": balance.String(),
		"balance":    helpers.FormatWei(balance),
	}, nil
}

// poolDeposit moves controller funds into the pool.
func (s *Server) poolDeposit(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.pool == nil {
		return nil, ErrPoolNotConfigured
	}

	var p struct {
		AmountWei string `json:"amountWei"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	amount, err := parseWeiAmount(p.AmountWei)
	if err != nil {
		return nil, err
	}

	if err := s.pool.Deposit(ctx, amount); err != nil {
		return nil, err
	}

	s.log.Info("pool deposit", "amount", helpers.FormatWei(amount))
	return map[string]bool{"deposited": true}, nil
}

// poolWithdraw pulls controller funds out of the pool to any address.
func (s *Server) poolWithdraw(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.pool == nil {
		return nil, ErrPoolNotConfigured
	}

	var p struct {
		Dest      string `json:"dest"`
		AmountWei string `json:"amountWei"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if !common.IsHexAddress(p.Dest) {
		return nil, fmt.Errorf("invalid dest address: %s", p.Dest)
	}
	amount, err := parseWeiAmount(p.AmountWei)
	if err != nil {
		return nil, err
	}

	if err := s.pool.Withdraw(ctx, common.HexToAddress(p.Dest), amount); err != nil {
		return nil, err
	}

	s.log.Info("pool withdrawal", "dest", p.Dest, "amount", helpers.FormatWei(amount))
	return map[string]bool{"withdrawn": true}, nil
}
