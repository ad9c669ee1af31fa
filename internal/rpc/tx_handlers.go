package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/madschristensen99/hashield/internal/txqueue"
	"github.com/madschristensen99/hashield/pkg/helpers"
)

// OperationInfo is the queue entry shape returned over RPC.
type OperationInfo struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to,omitempty"`
	Value     string    `json:"value"`
	Data      string    `json:"data,omitempty"`
	Gas       uint64    `json:"gas,omitempty"`
	ChainID   uint64    `json:"chainId"`
	CreatedAt time.Time `json:"createdAt"`
}

func operationToInfo(op *txqueue.PendingOperation) OperationInfo {
	info := OperationInfo{
		ID:        op.ID,
		From:      op.Request.From.Hex(),
		Gas:       op.Request.Gas,
		ChainID:   op.Request.ChainID,
		CreatedAt: op.CreatedAt,
	}
	if op.Request.To != nil {
		info.To = op.Request.To.Hex()
	}
	if op.Request.Value != nil {
		info.Value = op.Request.Value.String()
	} else {
		info.Value = "0"
	}
	if len(op.Request.Data) > 0 {
		info.Data = helpers.BytesToHex(op.Request.Data)
	}
	return info
}

// txList returns all operations awaiting a decision, oldest first.
func (s *Server) txList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	ops := s.queue.List()
	infos := make([]OperationInfo, 0, len(ops))
	for _, op := range ops {
		infos = append(infos, operationToInfo(op))
	}
	return infos, nil
}

type operationIDParams struct {
	OperationID string `json:"operationId"`
}

func decodeOperationID(params json.RawMessage) (string, error) {
	var p operationIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("invalid params: %w", err)
	}
	if p.OperationID == "" {
		return "", fmt.Errorf("operationId is required")
	}
	return p.OperationID, nil
}

// txApprove releases a queued operation into the execution pipeline.
// The call returns immediately; progress streams over tx_progress.
func (s *Server) txApprove(ctx context.Context, params json.RawMessage) (interface{}, error) {
	id, err := decodeOperationID(params)
	if err != nil {
		return nil, err
	}

	// Execution outlives the HTTP request.
	if _, err := s.queue.Approve(context.Background(), id); err != nil {
		return nil, err
	}

	return map[string]interface{}{"approved": true, "operationId": id}, nil
}

// txReject drops a queued operation.
func (s *Server) txReject(ctx context.Context, params json.RawMessage) (interface{}, error) {
	id, err := decodeOperationID(params)
	if err != nil {
		return nil, err
	}

	if err := s.queue.Reject(id); err != nil {
		return nil, err
	}

	return map[string]interface{}{"rejected": true, "operationId": id}, nil
}

// txProgress returns the current execution progress, or null when no
// operation is in flight.
func (s *Server) txProgress(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return s.tracker.Current(), nil
}
