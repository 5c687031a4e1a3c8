package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestSubmitAndReply_ReplyOnLaterCycle verifies the reply runs on its own
// cycle with the task's result
// Given: A task on FixedUpdate and a reply on LateUpdate
// When: The cycles are drained in frame order
// Then: The reply sees the result and runs during LateUpdate
func TestSubmitAndReply_ReplyOnLaterCycle(t *testing.T) {
	// Arrange
	d := newTestDispatcher(t)
	var replyCycle Cycle
	var replyValue int

	f := SubmitAndReply(d.Dispatcher,
		func(ctx context.Context) (int, error) { return 12, nil },
		OnCycle(CycleFixedUpdate),
		func(ctx context.Context, contacts int, err error) {
			replyCycle, _ = CurrentCycle(ctx)
			replyValue = contacts
		},
		OnCycle(CycleLateUpdate),
	)

	// Act
	mustDrain(t, d.Dispatcher, CycleFixedUpdate)
	waitFor(t, time.Second, func() bool { return d.Pending(CycleLateUpdate) == 1 })
	mustDrain(t, d.Dispatcher, CycleLateUpdate)

	// Assert
	if _, err := await(t, f); err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if replyValue != 12 || replyCycle != CycleLateUpdate {
		t.Errorf("reply got %d on %s, want 12 on LateUpdate", replyValue, replyCycle)
	}
}

func TestSubmitAndReply_TaskErrorReachesReply(t *testing.T) {
	d := newTestDispatcher(t)
	boom := errors.New("boom")
	var got error

	f := SubmitAndReply(d.Dispatcher,
		func(ctx context.Context) (string, error) { return "", boom },
		OnCycle(CycleUpdate),
		func(ctx context.Context, _ string, err error) { got = err },
		OnCycle(CycleUpdate),
	)

	mustDrain(t, d.Dispatcher, CycleUpdate)
	waitFor(t, time.Second, func() bool { return d.Pending(CycleUpdate) == 1 })
	mustDrain(t, d.Dispatcher, CycleUpdate)

	if _, err := await(t, f); err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if !errors.Is(got, boom) {
		t.Errorf("reply error = %v, want boom", got)
	}
}

// TestSubmitAndReply_PanicSkipsReply verifies a panicking task never replies
func TestSubmitAndReply_PanicSkipsReply(t *testing.T) {
	d := newTestDispatcher(t)
	replied := false

	f := SubmitAndReply(d.Dispatcher,
		func(ctx context.Context) (int, error) { panic("task failed") },
		OnCycle(CycleUpdate),
		func(ctx context.Context, _ int, _ error) { replied = true },
		OnCycle(CycleUpdate),
	)
	mustDrain(t, d.Dispatcher, CycleUpdate)

	var pe *PanicError
	if _, err := await(t, f); !errors.As(err, &pe) {
		t.Errorf("Await() error = %v, want *PanicError", err)
	}
	mustDrain(t, d.Dispatcher, CycleUpdate)
	if replied {
		t.Error("reply ran after panicking task")
	}
}

func TestSubmitDelayedAndReply(t *testing.T) {
	d := newTestDispatcher(t)
	var got string

	f := SubmitDelayedAndReply(d.Dispatcher,
		func(ctx context.Context) (string, error) { return "loaded", nil },
		10*time.Millisecond,
		OnCycle(CycleUpdate),
		func(ctx context.Context, s string, _ error) { got = s },
		OnCycle(CycleLateUpdate),
	)

	waitFor(t, time.Second, func() bool { return d.Pending(CycleUpdate) == 1 })
	mustDrain(t, d.Dispatcher, CycleUpdate)
	waitFor(t, time.Second, func() bool { return d.Pending(CycleLateUpdate) == 1 })
	mustDrain(t, d.Dispatcher, CycleLateUpdate)

	if _, err := await(t, f); err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if got != "loaded" {
		t.Errorf("reply got %q, want loaded", got)
	}
}

func TestSubmitAndReply_NilCallbacks(t *testing.T) {
	d := newTestDispatcher(t)
	f := SubmitAndReply[int](d.Dispatcher, nil, OnCycle(CycleUpdate), nil, OnCycle(CycleUpdate))
	if _, err := await(t, f); !errors.Is(err, ErrNilPayload) {
		t.Errorf("Await() error = %v, want ErrNilPayload", err)
	}
}
