package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/madschristensen99/hashield/internal/txqueue"
	"github.com/madschristensen99/hashield/pkg/helpers"
)

// Provider errors.
var (
	ErrNoActiveSession = errors.New("no active session")
)

// TxParams mirrors the transaction object dApps pass to
// eth_sendTransaction. All numeric fields are hex quantities.
type TxParams struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
	Data  string `json:"data"`
	Gas   string `json:"gas"`
}

// exposedAddress maps a session address to what the dApp is allowed to
// see. With substitution on, every session shows as the placeholder.
func (s *Server) exposedAddress(real common.Address) common.Address {
	if s.substitution {
		return s.placeholder
	}
	return real
}

// providerConnect derives a fresh session identity for the connecting
// dApp and returns the address it should use.
func (s *Server) providerConnect(ctx context.Context, params json.RawMessage) (interface{}, error) {
	session, err := s.keys.DeriveNext()
	if err != nil {
		return nil, err
	}

	s.log.Info("dApp connected", "session", session.Index)

	return map[string]interface{}{
		"address":      s.exposedAddress(session.Address).Hex(),
		"sessionIndex": session.Index,
	}, nil
}

// providerAccounts returns the connected account list, mirroring
// eth_accounts.
func (s *Server) providerAccounts(ctx context.Context, params json.RawMessage) (interface{}, error) {
	session, err := s.keys.Current()
	if err != nil {
		return []string{}, nil
	}
	return []string{s.exposedAddress(session.Address).Hex()}, nil
}

// providerChainID returns the configured chain id as a hex quantity.
func (s *Server) providerChainID(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return helpers.Uint64ToHex(s.chainID), nil
}

// providerSendTransaction queues a dApp transaction for user approval.
// The transaction is not broadcast until tx_approve is called.
func (s *Server) providerSendTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	txp, err := decodeTxParams(params)
	if err != nil {
		return nil, err
	}

	req := txqueue.Request{ChainID: s.chainID}

	if txp.From != "" {
		if !common.IsHexAddress(txp.From) {
			return nil, fmt.Errorf("invalid from address: %s", txp.From)
		}
		req.From = common.HexToAddress(txp.From)
	}
	if txp.To != "" {
		if !common.IsHexAddress(txp.To) {
			return nil, fmt.Errorf("invalid to address: %s", txp.To)
		}
		to := common.HexToAddress(txp.To)
		req.To = &to
	}
	if txp.Value != "" {
		value, err := helpers.HexToBigInt(txp.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid value: %w", err)
		}
		req.Value = value
	}
	if txp.Data != "" {
		data, err := helpers.HexToBytes(txp.Data)
		if err != nil {
			return nil, fmt.Errorf("invalid data: %w", err)
		}
		req.Data = data
	}
	if txp.Gas != "" {
		gas, err := helpers.HexToUint64(txp.Gas)
		if err != nil {
			return nil, fmt.Errorf("invalid gas: %w", err)
		}
		req.Gas = gas
	}

	op, err := s.queue.Submit(req)
	if err != nil {
		return nil, err
	}

	return map[string]string{"operationId": op.ID}, nil
}

// providerPersonalSign signs a message with the active session key
// using the EIP-191 personal message scheme.
func (s *Server) providerPersonalSign(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Message == "" {
		return nil, fmt.Errorf("message is required")
	}

	session, err := s.keys.Current()
	if err != nil {
		return nil, ErrNoActiveSession
	}

	message := []byte(p.Message)
	if strings.HasPrefix(p.Message, "0x") {
		decoded, err := helpers.HexToBytes(p.Message)
		if err != nil {
			return nil, fmt.Errorf("invalid hex message: %w", err)
		}
		message = decoded
	}

	sig, err := session.PersonalSign(message)
	if err != nil {
		return nil, err
	}

	return map[string]string{"signature": helpers.BytesToHex(sig)}, nil
}

// decodeTxParams accepts either a bare transaction object or the
// eth_sendTransaction single-element array form.
func decodeTxParams(params json.RawMessage) (*TxParams, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("transaction params required")
	}

	var list []TxParams
	if err := json.Unmarshal(params, &list); err == nil {
		if len(list) == 0 {
			return nil, fmt.Errorf("transaction params required")
		}
		return &list[0], nil
	}

	var single TxParams
	if err := json.Unmarshal(params, &single); err != nil {
		return nil, fmt.Errorf("invalid transaction params: %w", err)
	}
	return &single, nil
}
