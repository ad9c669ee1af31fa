package txqueue

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/madschristensen99/hashield/internal/evm"
	"github.com/madschristensen99/hashield/internal/funding"
	"github.com/madschristensen99/hashield/internal/keyring"
	"github.com/madschristensen99/hashield/pkg/logging"
)

// SessionSource provides the active session identity that signs
// executed transactions. The keyring implements it.
type SessionSource interface {
	Current() (*keyring.SessionIdentity, error)
}

// FundingSource ensures a session address can cover a transaction.
type FundingSource interface {
	EnsureFunded(ctx context.Context, dest common.Address, est *funding.Estimate) (*funding.Outcome, error)
}

// Pipeline step names reported through the progress tracker. Gas
// estimation, substitution and funding are one preparing step; the
// signed submission is the other.
const (
	stepPreparing = "preparing"
	stepExecuting = "executing"
	totalSteps    = 2
)

// TxExecutor drives an approved operation through gas estimation,
// address substitution, funding and submission. Gas is always
// estimated against the request's original From address so the
// placeholder account's (empty) state is what the node simulates.
type TxExecutor struct {
	client   evm.Client
	sessions SessionSource
	funding  FundingSource
	sub      *Substitutor
	tracker  *Tracker
	log      *logging.Logger

	confirmTimeout time.Duration
}

// NewTxExecutor wires the execution pipeline.
func NewTxExecutor(client evm.Client, sessions SessionSource, funds FundingSource, sub *Substitutor, tracker *Tracker, log *logging.Logger) *TxExecutor {
	return &TxExecutor{
		client:         client,
		sessions:       sessions,
		funding:        funds,
		sub:            sub,
		tracker:        tracker,
		log:            log.Component("executor"),
		confirmTimeout: 5 * time.Minute,
	}
}

// Execute runs the pipeline for one operation. It returns once the
// transaction has been accepted by the node; confirmation is tracked
// asynchronously.
func (e *TxExecutor) Execute(ctx context.Context, op *PendingOperation) (common.Hash, error) {
	req := op.Request
	e.tracker.Step(op.ID, 0, totalSteps, stepPreparing)

	gasLimit := req.Gas
	if gasLimit == 0 {
		var err error
		gasLimit, err = e.client.EstimateGas(ctx, ethereum.CallMsg{
			From:  req.From,
			To:    req.To,
			Value: req.Value,
			Data:  req.Data,
		})
		if err != nil {
			e.tracker.Fail(op.ID, err.Error())
			return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
		}
	}

	fees, err := e.client.FeeData(ctx)
	if err != nil {
		e.tracker.Fail(op.ID, err.Error())
		return common.Hash{}, fmt.Errorf("failed to get fee data: %w", err)
	}

	session, err := e.sessions.Current()
	if err != nil {
		e.tracker.Fail(op.ID, err.Error())
		return common.Hash{}, fmt.Errorf("no session to execute with: %w", err)
	}

	// Substitution happens after estimation so the dApp-visible
	// request is what gets simulated.
	req = e.sub.Apply(req, session.Address)

	outcome, err := e.funding.EnsureFunded(ctx, session.Address, &funding.Estimate{
		GasLimit: gasLimit,
		GasPrice: fees.MaxFeePerGas,
		Value:    req.Value,
	})
	if err != nil {
		e.tracker.Fail(op.ID, err.Error())
		return common.Hash{}, fmt.Errorf("failed to fund session: %w", err)
	}
	if outcome.Funded {
		e.log.Info("session topped up",
			"operation", op.ID,
			"path", outcome.Path,
			"deficit", outcome.Deficit.String())
	}

	e.tracker.Step(op.ID, 1, totalSteps, stepExecuting)
	nonce, err := e.client.PendingNonceAt(ctx, session.Address)
	if err != nil {
		e.tracker.Fail(op.ID, err.Error())
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   e.client.ChainID(),
		Nonce:     nonce,
		GasTipCap: fees.MaxPriorityFeePerGas,
		GasFeeCap: fees.MaxFeePerGas,
		Gas:       gasLimit,
		To:        req.To,
		Value:     value,
		Data:      req.Data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(e.client.ChainID()), session.PrivateKey())
	if err != nil {
		e.tracker.Fail(op.ID, err.Error())
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := e.client.SendTransaction(ctx, signed); err != nil {
		e.tracker.Fail(op.ID, err.Error())
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	txHash := signed.Hash()
	e.tracker.Complete(op.ID, txHash.Hex())
	e.log.Info("transaction submitted",
		"operation", op.ID,
		"tx", txHash.Hex(),
		"from", session.Address.Hex())

	go e.confirm(op.ID, txHash)

	return txHash, nil
}

// confirm waits for the receipt in the background and surfaces a
// revert through the progress slot.
func (e *TxExecutor) confirm(operationID string, txHash common.Hash) {
	ctx, cancel := context.WithTimeout(context.Background(), e.confirmTimeout)
	defer cancel()

	receipt, err := e.client.WaitMined(ctx, txHash)
	if err != nil {
		e.log.Warn("confirmation wait failed", "tx", txHash.Hex(), "error", err)
		return
	}

	if receipt.Status == types.ReceiptStatusFailed {
		e.log.Error("transaction reverted", "operation", operationID, "tx", txHash.Hex())
		e.tracker.Fail(operationID, fmt.Sprintf("transaction %s reverted", txHash.Hex()))
		return
	}

	e.log.Info("transaction confirmed",
		"operation", operationID,
		"tx", txHash.Hex(),
		"block", receipt.BlockNumber)
}
