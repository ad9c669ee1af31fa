package rpc

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/madschristensen99/hashield/internal/secrets"
	"github.com/madschristensen99/hashield/internal/storage"
	"github.com/madschristensen99/hashield/pkg/helpers"
)

var (
	ErrEscrowNotConfigured = errors.New("escrow not configured")
)

func parseHash32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := helpers.HexToBytes(s)
	if err != nil {
		return out, fmt.Errorf("invalid hash: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("hash must be 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func randomSalt() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to generate salt: %w", err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// escrowCreate generates a claim/refund secret pair, persists it, and
// locks funds in the hash-lock escrow under the order hash. The
// secrets never leave the daemon; only their hashes go on chain.
func (s *Server) escrowCreate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.escrow == nil {
		return nil, ErrEscrowNotConfigured
	}

	var p struct {
		OrderHash string `json:"orderHash"`
		Token     string `json:"token"`
		AmountWei string `json:"amountWei"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	orderHash, err := parseHash32(p.OrderHash)
	if err != nil {
		return nil, fmt.Errorf("invalid orderHash: %w", err)
	}
	amount, err := parseWeiAmount(p.AmountWei)
	if err != nil {
		return nil, err
	}

	var token common.Address
	if p.Token != "" {
		if !common.IsHexAddress(p.Token) {
			return nil, fmt.Errorf("invalid token address: %s", p.Token)
		}
		token = common.HexToAddress(p.Token)
	}

	pair, err := secrets.GeneratePair()
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveSecretPair(p.OrderHash, pair); err != nil {
		return nil, err
	}

	// Both hashlocks travel in extraData; the contract enforces them.
	extraData := make([]byte, 0, 64)
	extraData = append(extraData, pair.ClaimHash[:]...)
	extraData = append(extraData, pair.RefundHash[:]...)

	// Native escrows carry the amount as call value.
	value := big.NewInt(0)
	if token == (common.Address{}) {
		value = amount
	}

	receipt, err := s.escrow.CreateEscrow(ctx, orderHash, token, amount, extraData, value)
	if err != nil {
		s.store.DeleteSecretPair(p.OrderHash)
		return nil, err
	}

	s.log.Info("escrow created",
		"orderHash", p.OrderHash,
		"amount", helpers.FormatWei(amount),
		"tx", receipt.TxHash.Hex())

	return map[string]string{
		"txHash":     receipt.TxHash.Hex(),
		"claimHash":  helpers.BytesToHex(pair.ClaimHash[:]),
		"refundHash": helpers.BytesToHex(pair.RefundHash[:]),
	}, nil
}

// escrowWithdrawViaRelayer settles an escrow by revealing the claim
// secret through the relayer, which takes its fee from the payout.
func (s *Server) escrowWithdrawViaRelayer(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.escrow == nil {
		return nil, ErrEscrowNotConfigured
	}

	var p struct {
		OrderHash string `json:"orderHash"`
		FeeWei    string `json:"feeWei"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	orderHash, err := parseHash32(p.OrderHash)
	if err != nil {
		return nil, fmt.Errorf("invalid orderHash: %w", err)
	}

	fee := big.NewInt(0)
	if p.FeeWei != "" {
		if fee, err = parseWeiAmount(p.FeeWei); err != nil {
			return nil, err
		}
	}

	pair, err := s.store.GetSecretPair(p.OrderHash)
	if err != nil {
		return nil, err
	}

	salt, err := randomSalt()
	if err != nil {
		return nil, err
	}

	receipt, err := s.escrow.WithdrawViaRelayer(ctx, orderHash, pair.ClaimSecret, fee, salt)
	if err != nil {
		return nil, err
	}

	s.markOrderByHash(p.OrderHash, storage.OrderStatusSettled)

	s.log.Info("escrow settled via relayer", "orderHash", p.OrderHash, "tx", receipt.TxHash.Hex())

	return map[string]string{"txHash": receipt.TxHash.Hex()}, nil
}

// escrowCancel refunds an escrow by revealing the refund secret.
func (s *Server) escrowCancel(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.escrow == nil {
		return nil, ErrEscrowNotConfigured
	}

	var p struct {
		OrderHash string `json:"orderHash"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	orderHash, err := parseHash32(p.OrderHash)
	if err != nil {
		return nil, fmt.Errorf("invalid orderHash: %w", err)
	}

	pair, err := s.store.GetSecretPair(p.OrderHash)
	if err != nil {
		return nil, err
	}

	receipt, err := s.escrow.CancelWithSecret(ctx, orderHash, pair.RefundSecret)
	if err != nil {
		return nil, err
	}

	s.markOrderByHash(p.OrderHash, storage.OrderStatusCancelled)

	s.log.Info("escrow cancelled", "orderHash", p.OrderHash, "tx", receipt.TxHash.Hex())

	return map[string]string{"txHash": receipt.TxHash.Hex()}, nil
}

// markOrderByHash updates a tracked order's status, if one exists for
// the hash. Settlement works without a local order record.
func (s *Server) markOrderByHash(orderHash string, status storage.OrderStatus) {
	order, err := s.store.GetOrderByHash(orderHash)
	if err != nil {
		return
	}
	order.Status = status
	if err := s.store.UpdateOrder(order); err != nil {
		s.log.Warn("failed to update order status", "orderHash", orderHash, "error", err)
	}
}
