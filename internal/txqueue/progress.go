package txqueue

import (
	"sync"
	"time"
)

// ProgressStatus is the state of the in-flight operation.
type ProgressStatus string

const (
	ProgressProcessing ProgressStatus = "processing"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressError      ProgressStatus = "error"
)

// Progress is a snapshot of the single in-flight operation. Only one
// operation executes at a time, so one slot is enough; a newer
// operation overwrites the slot.
type Progress struct {
	OperationID string         `json:"operationId"`
	Step        int            `json:"step"`
	TotalSteps  int            `json:"totalSteps"`
	StepName    string         `json:"stepName"`
	Status      ProgressStatus `json:"status"`
	TxHash      string         `json:"txHash,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Tracker holds the progress slot and clears it after a terminal
// state has been visible for a while.
type Tracker struct {
	mu      sync.Mutex
	current *Progress
	timer   *time.Timer

	successDelay time.Duration
	errorDelay   time.Duration
	onUpdate     func(*Progress)
}

// NewTracker creates a tracker with the given retention delays for
// completed and failed operations.
func NewTracker(successDelay, errorDelay time.Duration) *Tracker {
	if successDelay == 0 {
		successDelay = 5 * time.Second
	}
	if errorDelay == 0 {
		errorDelay = 10 * time.Second
	}
	return &Tracker{
		successDelay: successDelay,
		errorDelay:   errorDelay,
	}
}

// OnUpdate registers a callback fired on every slot change.
func (t *Tracker) OnUpdate(fn func(*Progress)) {
	t.mu.Lock()
	t.onUpdate = fn
	t.mu.Unlock()
}

// Step records a processing step for an operation.
func (t *Tracker) Step(operationID string, step, total int, name string) {
	t.set(&Progress{
		OperationID: operationID,
		Step:        step,
		TotalSteps:  total,
		StepName:    name,
		Status:      ProgressProcessing,
	})
}

// Complete marks the operation finished and schedules the slot clear.
func (t *Tracker) Complete(operationID, txHash string) {
	t.set(&Progress{
		OperationID: operationID,
		Status:      ProgressCompleted,
		TxHash:      txHash,
	})
	t.scheduleClear(operationID, t.successDelay)
}

// Fail marks the operation failed and schedules the slot clear. Error
// states linger longer than successes so the user can read them.
func (t *Tracker) Fail(operationID, message string) {
	t.set(&Progress{
		OperationID: operationID,
		Status:      ProgressError,
		Error:       message,
	})
	t.scheduleClear(operationID, t.errorDelay)
}

// Current returns the slot contents, or nil when idle.
func (t *Tracker) Current() *Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil
	}
	snapshot := *t.current
	return &snapshot
}

func (t *Tracker) set(p *Progress) {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.current = p
	fn := t.onUpdate
	t.mu.Unlock()

	if fn != nil {
		snapshot := *p
		fn(&snapshot)
	}
}

func (t *Tracker) scheduleClear(operationID string, delay time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		// A newer operation may have taken the slot meanwhile.
		if t.current != nil && t.current.OperationID == operationID {
			t.current = nil
		}
	})
}
