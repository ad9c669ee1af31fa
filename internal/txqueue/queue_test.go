package txqueue

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/madschristensen99/hashield/pkg/logging"
)

// blockingExecutor holds executions open until released so tests can
// observe in-flight state.
type blockingExecutor struct {
	mu      sync.Mutex
	started chan string
	release chan struct{}
	count   int
}

func newBlockingExecutor() *blockingExecutor {
	return &blockingExecutor{
		started: make(chan string, 10),
		release: make(chan struct{}),
	}
}

func (e *blockingExecutor) Execute(ctx context.Context, op *PendingOperation) (common.Hash, error) {
	e.mu.Lock()
	e.count++
	e.mu.Unlock()
	e.started <- op.ID
	<-e.release
	return common.HexToHash("0xdead"), nil
}

func (e *blockingExecutor) executions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

func testRequest() Request {
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	return Request{
		From:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
		To:      &to,
		Value:   big.NewInt(1e18),
		ChainID: 1,
	}
}

func TestSubmitValidates(t *testing.T) {
	q := New(newBlockingExecutor(), nil, logging.New(nil))

	if _, err := q.Submit(Request{}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}

	op, err := q.Submit(testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.ID == "" {
		t.Error("operation should get an id")
	}
}

func TestListOrdersByAge(t *testing.T) {
	q := New(newBlockingExecutor(), nil, logging.New(nil))

	first, _ := q.Submit(testRequest())
	time.Sleep(2 * time.Millisecond)
	second, _ := q.Submit(testRequest())

	ops := q.List()
	if len(ops) != 2 {
		t.Fatalf("listed %d operations, want 2", len(ops))
	}
	if ops[0].ID != first.ID || ops[1].ID != second.ID {
		t.Error("operations should list oldest first")
	}
}

func TestApproveUnknownOperation(t *testing.T) {
	q := New(newBlockingExecutor(), nil, logging.New(nil))

	if _, err := q.Approve(context.Background(), "missing"); !errors.Is(err, ErrOperationNotFound) {
		t.Errorf("expected ErrOperationNotFound, got %v", err)
	}
}

func TestConcurrentApproveExecutesOnce(t *testing.T) {
	exec := newBlockingExecutor()
	q := New(exec, nil, logging.New(nil))

	op, err := q.Submit(testRequest())
	if err != nil {
		t.Fatalf("failed to submit: %v", err)
	}

	if _, err := q.Approve(context.Background(), op.ID); err != nil {
		t.Fatalf("first approve failed: %v", err)
	}
	<-exec.started

	// Second approval while the first is still executing.
	if _, err := q.Approve(context.Background(), op.ID); !errors.Is(err, ErrAlreadyProcessing) {
		t.Errorf("expected ErrAlreadyProcessing, got %v", err)
	}

	close(exec.release)
	res := <-op.Done()
	if res.Err != nil {
		t.Fatalf("unexpected result error: %v", res.Err)
	}
	if res.TxHash != common.HexToHash("0xdead") {
		t.Errorf("unexpected tx hash %s", res.TxHash.Hex())
	}
	if exec.executions() != 1 {
		t.Errorf("executed %d times, want 1", exec.executions())
	}
}

func TestRejectResolvesWithError(t *testing.T) {
	q := New(newBlockingExecutor(), nil, logging.New(nil))

	op, err := q.Submit(testRequest())
	if err != nil {
		t.Fatalf("failed to submit: %v", err)
	}

	if err := q.Reject(op.ID); err != nil {
		t.Fatalf("failed to reject: %v", err)
	}

	res := <-op.Done()
	if !errors.Is(res.Err, ErrRejected) {
		t.Errorf("expected ErrRejected, got %v", res.Err)
	}

	if _, err := q.Get(op.ID); !errors.Is(err, ErrOperationNotFound) {
		t.Errorf("rejected operation should be gone, got %v", err)
	}
}

func TestRejectAfterApprove(t *testing.T) {
	exec := newBlockingExecutor()
	q := New(exec, nil, logging.New(nil))

	op, _ := q.Submit(testRequest())
	if _, err := q.Approve(context.Background(), op.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	<-exec.started

	if err := q.Reject(op.ID); !errors.Is(err, ErrOperationNotFound) {
		t.Errorf("expected ErrOperationNotFound, got %v", err)
	}
	close(exec.release)
}

// failingExecutor always errors.
type failingExecutor struct{ err error }

func (e *failingExecutor) Execute(ctx context.Context, op *PendingOperation) (common.Hash, error) {
	return common.Hash{}, e.err
}

func TestExecutionFailureResolvesError(t *testing.T) {
	wantErr := errors.New("estimation blew up")
	q := New(&failingExecutor{err: wantErr}, nil, logging.New(nil))

	op, _ := q.Submit(testRequest())
	if _, err := q.Approve(context.Background(), op.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	res := <-op.Done()
	if !errors.Is(res.Err, wantErr) {
		t.Errorf("expected execution error, got %v", res.Err)
	}

	// The operation is done; it cannot be re-approved.
	if _, err := q.Approve(context.Background(), op.ID); !errors.Is(err, ErrOperationNotFound) {
		t.Errorf("expected ErrOperationNotFound, got %v", err)
	}
}

// recordingPlacer captures bridge order placements.
type recordingPlacer struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
}

func (p *recordingPlacer) CreateForOperation(ctx context.Context, op *PendingOperation) error {
	p.mu.Lock()
	p.calls = append(p.calls, op.ID)
	p.mu.Unlock()
	close(p.done)
	return nil
}

func TestValueBearingSubmitPlacesOrder(t *testing.T) {
	placer := &recordingPlacer{done: make(chan struct{})}
	q := New(newBlockingExecutor(), placer, logging.New(nil))

	op, err := q.Submit(testRequest())
	if err != nil {
		t.Fatalf("failed to submit: %v", err)
	}

	select {
	case <-placer.done:
	case <-time.After(time.Second):
		t.Fatal("order placement not observed")
	}

	placer.mu.Lock()
	defer placer.mu.Unlock()
	if len(placer.calls) != 1 || placer.calls[0] != op.ID {
		t.Errorf("unexpected placements: %v", placer.calls)
	}
}

func TestZeroValueSubmitSkipsOrder(t *testing.T) {
	placer := &recordingPlacer{done: make(chan struct{})}
	q := New(newBlockingExecutor(), placer, logging.New(nil))

	req := testRequest()
	req.Value = nil
	req.Data = []byte{0xa9, 0x05, 0x9c, 0xbb}
	if _, err := q.Submit(req); err != nil {
		t.Fatalf("failed to submit: %v", err)
	}

	select {
	case <-placer.done:
		t.Error("zero-value request should not place an order")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEvents(t *testing.T) {
	exec := newBlockingExecutor()
	q := New(exec, nil, logging.New(nil))

	var mu sync.Mutex
	var events []string
	q.OnEvent(func(ev Event) {
		mu.Lock()
		events = append(events, ev.Type)
		mu.Unlock()
	})

	op, _ := q.Submit(testRequest())
	if _, err := q.Approve(context.Background(), op.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	<-exec.started
	close(exec.release)
	<-op.Done()

	// The executed event is emitted just before resolve; give the
	// goroutine a beat to finish.
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	want := []string{EventSubmitted, EventApproved, EventExecuted}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, events[i], want[i])
		}
	}
}
