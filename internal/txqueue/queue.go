// Package txqueue holds dApp transaction requests until the user
// approves or rejects them, then drives approved requests through
// estimation, funding and execution.
package txqueue

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/madschristensen99/hashield/pkg/logging"
)

// Queue errors.
var (
	ErrOperationNotFound = errors.New("operation not found")
	ErrAlreadyProcessing = errors.New("operation already processing")
	ErrRejected          = errors.New("operation rejected by user")
	ErrInvalidRequest    = errors.New("invalid transaction request")
)

// Request is a transaction as submitted by a dApp.
type Request struct {
	From    common.Address
	To      *common.Address
	Value   *big.Int
	Data    []byte
	Gas     uint64 // 0 means estimate
	ChainID uint64
}

// Result is the terminal outcome of an operation.
type Result struct {
	TxHash common.Hash
	Err    error
}

// PendingOperation is one queued request awaiting a user decision.
type PendingOperation struct {
	ID        string
	Request   Request
	CreatedAt time.Time

	done chan Result
}

// Done returns a channel that receives the operation's single result.
func (op *PendingOperation) Done() <-chan Result {
	return op.done
}

func (op *PendingOperation) resolve(res Result) {
	select {
	case op.done <- res:
	default:
	}
}

// Executor runs an approved operation to completion.
type Executor interface {
	Execute(ctx context.Context, op *PendingOperation) (common.Hash, error)
}

// OrderPlacer files a bridge order for a value-bearing request. Calls
// are best effort; a bridge failure never blocks the queue.
type OrderPlacer interface {
	CreateForOperation(ctx context.Context, op *PendingOperation) error
}

// Event describes a queue lifecycle change for subscribers.
type Event struct {
	Type        string      `json:"type"`
	OperationID string      `json:"operationId"`
	Data        interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventSubmitted = "operation_submitted"
	EventApproved  = "operation_approved"
	EventRejected  = "operation_rejected"
	EventExecuted  = "operation_executed"
	EventFailed    = "operation_failed"
)

// Queue is the approval gate between dApps and the chain. Pending
// operations sit in ops; an approved operation moves to approved for
// the duration of its pipeline so a second approval cannot race it.
type Queue struct {
	mu       sync.Mutex
	ops      map[string]*PendingOperation
	approved map[string]*PendingOperation

	exec    Executor
	orders  OrderPlacer
	onEvent func(Event)
	log     *logging.Logger
}

// New creates a queue. orders may be nil when no bridge is configured.
func New(exec Executor, orders OrderPlacer, log *logging.Logger) *Queue {
	return &Queue{
		ops:      make(map[string]*PendingOperation),
		approved: make(map[string]*PendingOperation),
		exec:     exec,
		orders:   orders,
		log:      log.Component("txqueue"),
	}
}

// OnEvent registers a lifecycle callback. Must be set before use.
func (q *Queue) OnEvent(fn func(Event)) {
	q.onEvent = fn
}

func (q *Queue) emitEvent(ev Event) {
	if q.onEvent != nil {
		q.onEvent(ev)
	}
}

// Submit validates and enqueues a request, returning the pending
// operation. Value-bearing requests also get a bridge order filed in
// the background.
func (q *Queue) Submit(req Request) (*PendingOperation, error) {
	if req.To == nil && len(req.Data) == 0 {
		return nil, ErrInvalidRequest
	}

	op := &PendingOperation{
		ID:        uuid.New().String(),
		Request:   req,
		CreatedAt: time.Now(),
		done:      make(chan Result, 1),
	}

	q.mu.Lock()
	q.ops[op.ID] = op
	q.mu.Unlock()

	q.log.Info("operation queued",
		"id", op.ID,
		"from", req.From.Hex(),
		"value", valueString(req.Value))
	q.emitEvent(Event{Type: EventSubmitted, OperationID: op.ID})

	if q.orders != nil && req.Value != nil && req.Value.Sign() > 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := q.orders.CreateForOperation(ctx, op); err != nil {
				q.log.Warn("bridge order placement failed", "id", op.ID, "error", err)
			}
		}()
	}

	return op, nil
}

// Get returns a pending or in-flight operation.
func (q *Queue) Get(id string) (*PendingOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if op, ok := q.ops[id]; ok {
		return op, nil
	}
	if op, ok := q.approved[id]; ok {
		return op, nil
	}
	return nil, ErrOperationNotFound
}

// List returns pending operations oldest first.
func (q *Queue) List() []*PendingOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*PendingOperation, 0, len(q.ops))
	for _, op := range q.ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Approve starts execution of a pending operation. A second approval
// of the same operation while it is in flight returns
// ErrAlreadyProcessing; an unknown id returns ErrOperationNotFound.
func (q *Queue) Approve(ctx context.Context, id string) (*PendingOperation, error) {
	q.mu.Lock()
	if _, inFlight := q.approved[id]; inFlight {
		q.mu.Unlock()
		return nil, ErrAlreadyProcessing
	}
	op, ok := q.ops[id]
	if !ok {
		q.mu.Unlock()
		return nil, ErrOperationNotFound
	}
	delete(q.ops, id)
	q.approved[id] = op
	q.mu.Unlock()

	q.log.Info("operation approved", "id", id)
	q.emitEvent(Event{Type: EventApproved, OperationID: id})

	go q.run(ctx, op)
	return op, nil
}

func (q *Queue) run(ctx context.Context, op *PendingOperation) {
	txHash, err := q.exec.Execute(ctx, op)

	q.mu.Lock()
	delete(q.approved, op.ID)
	q.mu.Unlock()

	if err != nil {
		q.log.Error("operation failed", "id", op.ID, "error", err)
		q.emitEvent(Event{Type: EventFailed, OperationID: op.ID, Data: err.Error()})
		op.resolve(Result{Err: err})
		return
	}

	q.log.Info("operation executed", "id", op.ID, "tx", txHash.Hex())
	q.emitEvent(Event{Type: EventExecuted, OperationID: op.ID, Data: txHash.Hex()})
	op.resolve(Result{TxHash: txHash})
}

// Reject removes a pending operation. Operations already approved
// cannot be rejected and report ErrOperationNotFound.
func (q *Queue) Reject(id string) error {
	q.mu.Lock()
	op, ok := q.ops[id]
	if ok {
		delete(q.ops, id)
	}
	q.mu.Unlock()

	if !ok {
		return ErrOperationNotFound
	}

	q.log.Info("operation rejected", "id", id)
	q.emitEvent(Event{Type: EventRejected, OperationID: id})
	op.resolve(Result{Err: ErrRejected})
	return nil
}

func valueString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
