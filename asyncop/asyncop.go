// Package asyncop runs exactly one driver operation per Operation at a time,
// off the caller's goroutine, and exposes its progress through poll/wait
// instead of a blocking call — the shape a terminal UI needs so a slow
// QueryPage never freezes input handling.
//
// errgroup.Group's fan-out collapses here to a single worker: a plain
// errgroup only ever reports a final slice-or-error, but callers need an
// observable Running state and mid-flight cancellation, neither of which
// errgroup exposes. A done channel closed on terminal transition plays the
// condition-variable's role in idiomatic Go: Wait selects on it with
// time.After instead of looping on a cond and a deadline.
package asyncop

import (
	"context"
	"sync"
	"time"

	"github.com/lace-db/lace/drv"
)

// Kind identifies which driver call a worker dispatches to.
type Kind uint8

const (
	KindConnect Kind = iota
	KindListTables
	KindGetSchema
	KindQueryPage
	KindQueryPageWhere
	KindCountRows
	KindCountRowsWhere
	KindQuery
	KindExec
)

// State is a position in asyncop's lifecycle.
type State uint8

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateError
	StateCancelled
)

// Work is the driver call a worker runs. setCancel lets it hand the
// operation a cancel handle (if the backend produced one) before it blocks,
// so a concurrent Cancel() has something to invoke.
type Work func(ctx context.Context, setCancel func(drv.CancelHandle)) (any, error)

// Operation owns a single worker goroutine at a time. Not safe to Start
// concurrently with itself; the runner does not multiplex.
type Operation struct {
	mu   sync.Mutex
	done chan struct{}

	kind            Kind
	state           State
	cancelRequested bool
	cancelHandle    drv.CancelHandle

	result any
	errMsg string
}

// New returns an idle Operation.
func New() *Operation {
	return &Operation{state: StateIdle}
}

// Start spawns a worker running w under kind, transitioning Idle->Running.
// Start on an already-Running operation is a caller error (the runner does
// not multiplex) and is rejected rather than queued.
func (op *Operation) Start(ctx context.Context, kind Kind, w Work) bool {
	op.mu.Lock()
	if op.state == StateRunning {
		op.mu.Unlock()
		return false
	}
	op.kind = kind
	op.state = StateRunning
	op.cancelRequested = false
	op.cancelHandle = nil
	op.result = nil
	op.errMsg = ""
	op.done = make(chan struct{})
	done := op.done
	op.mu.Unlock()

	go op.run(ctx, w, done)
	return true
}

func (op *Operation) run(ctx context.Context, w Work, done chan struct{}) {
	setCancel := func(h drv.CancelHandle) {
		op.mu.Lock()
		if op.cancelRequested && h != nil {
			h.Cancel()
		}
		op.cancelHandle = h
		op.mu.Unlock()
	}

	result, err := w(ctx, setCancel)

	op.mu.Lock()
	defer op.mu.Unlock()
	if op.cancelHandle != nil {
		op.cancelHandle.Release()
	}
	switch {
	case op.cancelRequested:
		op.state = StateCancelled
		op.result = nil
	case err != nil:
		op.state = StateError
		op.errMsg = err.Error()
	default:
		op.state = StateCompleted
		op.result = result
	}
	close(done)
}

// Cancel requests termination of the in-flight worker. If a cancel handle
// has already been recorded, it is invoked immediately; otherwise the
// request is latched for setCancel to act on once the handle arrives. The
// worker itself decides the terminal state once it observes the flag on
// completion — Cancel never forces a state transition directly.
func (op *Operation) Cancel() {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.cancelRequested = true
	if op.cancelHandle != nil {
		op.cancelHandle.Cancel()
	}
}

// Poll returns the current state under the operation's mutex.
func (op *Operation) Poll() State {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.state
}

// Wait blocks until the operation reaches a terminal state or timeoutMs
// elapses, whichever comes first. timeoutMs == 0 is a non-blocking check
// equivalent to Poll.
func (op *Operation) Wait(timeoutMs int) State {
	op.mu.Lock()
	state, done := op.state, op.done
	op.mu.Unlock()

	if state != StateRunning || timeoutMs == 0 {
		return state
	}

	if timeoutMs < 0 {
		<-done
	} else {
		select {
		case <-done:
		case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
		}
	}

	op.mu.Lock()
	defer op.mu.Unlock()
	return op.state
}

// Result returns the worker's payload and error message once terminal; both
// are zero-valued while the operation is Idle or Running.
func (op *Operation) Result() (any, string) {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.result, op.errMsg
}

// Kind reports which driver call this operation last (or currently) runs.
func (op *Operation) Kind() Kind {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.kind
}
