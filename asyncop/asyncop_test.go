package asyncop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lace-db/lace/drv"
)

func TestStartCompletes(t *testing.T) {
	op := New()
	ok := op.Start(context.Background(), KindQuery, func(ctx context.Context, setCancel func(drv.CancelHandle)) (any, error) {
		return 42, nil
	})
	if !ok {
		t.Fatal("Start rejected on idle operation")
	}
	if state := op.Wait(-1); state != StateCompleted {
		t.Fatalf("state = %v, want Completed", state)
	}
	result, errMsg := op.Result()
	if result != 42 || errMsg != "" {
		t.Fatalf("result=%v errMsg=%q", result, errMsg)
	}
}

func TestStartRejectedWhileRunning(t *testing.T) {
	op := New()
	release := make(chan struct{})
	op.Start(context.Background(), KindQuery, func(ctx context.Context, setCancel func(drv.CancelHandle)) (any, error) {
		<-release
		return nil, nil
	})
	if op.Poll() != StateRunning {
		t.Fatal("expected Running immediately after Start")
	}
	if op.Start(context.Background(), KindQuery, func(ctx context.Context, setCancel func(drv.CancelHandle)) (any, error) {
		return nil, nil
	}) {
		t.Fatal("expected Start to reject while already Running")
	}
	close(release)
	op.Wait(-1)
}

func TestErrorState(t *testing.T) {
	op := New()
	wantErr := errors.New("boom")
	op.Start(context.Background(), KindExec, func(ctx context.Context, setCancel func(drv.CancelHandle)) (any, error) {
		return nil, wantErr
	})
	if state := op.Wait(-1); state != StateError {
		t.Fatalf("state = %v, want Error", state)
	}
	_, errMsg := op.Result()
	if errMsg != "boom" {
		t.Fatalf("errMsg = %q", errMsg)
	}
}

type fakeCancelHandle struct {
	cancelled chan struct{}
}

func (h *fakeCancelHandle) Cancel() error {
	close(h.cancelled)
	return nil
}
func (h *fakeCancelHandle) Release() {}

func TestCancelInvokesHandleAndYieldsCancelledState(t *testing.T) {
	op := New()
	handle := &fakeCancelHandle{cancelled: make(chan struct{})}
	workStarted := make(chan struct{})

	op.Start(context.Background(), KindQueryPage, func(ctx context.Context, setCancel func(drv.CancelHandle)) (any, error) {
		setCancel(handle)
		close(workStarted)
		<-handle.cancelled
		return "partial", nil
	})

	<-workStarted
	op.Cancel()

	select {
	case <-handle.cancelled:
	case <-time.After(time.Second):
		t.Fatal("Cancel did not invoke the handle")
	}

	if state := op.Wait(-1); state != StateCancelled {
		t.Fatalf("state = %v, want Cancelled", state)
	}
	result, _ := op.Result()
	if result != nil {
		t.Fatalf("cancelled operation should discard its result, got %v", result)
	}
}

func TestCancelBeforeHandleRecordedStillCancelsPromptly(t *testing.T) {
	op := New()
	handle := &fakeCancelHandle{cancelled: make(chan struct{})}
	ready := make(chan struct{})
	proceed := make(chan struct{})

	op.Start(context.Background(), KindQueryPage, func(ctx context.Context, setCancel func(drv.CancelHandle)) (any, error) {
		close(ready)
		<-proceed
		setCancel(handle) // cancelRequested is already latched by this point
		return nil, nil
	})

	<-ready
	op.Cancel() // latches cancelRequested before any handle exists
	close(proceed)

	select {
	case <-handle.cancelled:
	case <-time.After(time.Second):
		t.Fatal("setCancel should have invoked the latched cancel immediately")
	}
	if state := op.Wait(-1); state != StateCancelled {
		t.Fatalf("state = %v, want Cancelled", state)
	}
}

func TestWaitNonBlockingZeroTimeout(t *testing.T) {
	op := New()
	release := make(chan struct{})
	op.Start(context.Background(), KindQuery, func(ctx context.Context, setCancel func(drv.CancelHandle)) (any, error) {
		<-release
		return nil, nil
	})
	if state := op.Wait(0); state != StateRunning {
		t.Fatalf("Wait(0) = %v, want Running", state)
	}
	close(release)
	op.Wait(-1)
}

func TestPollIdleBeforeStart(t *testing.T) {
	op := New()
	if op.Poll() != StateIdle {
		t.Fatal("fresh operation should be Idle")
	}
}
