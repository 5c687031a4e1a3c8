package core

import (
	"context"
	"time"
)

// ReplyWithResult receives the outcome of a task on the main context.
type ReplyWithResult[T any] func(ctx context.Context, result T, err error)

// =============================================================================
// Task and Reply across cycles
// =============================================================================

// SubmitAndReply runs task on taskOpts.Cycle, then submits reply with the
// task's result to replyOpts.Cycle. The reply is queued from inside the task's
// drain, so it runs no earlier than the next drain of its cycle.
//
// The reply does not run when the task is canceled or panics. A task that
// returns an error still gets its reply, with that error.
//
// The returned future settles when the reply has run, or with the task's
// cancellation or panic when the reply is skipped.
//
// Example:
//
//	SubmitAndReply(d,
//	    func(ctx context.Context) (int, error) {
//	        return physics.Step(), nil
//	    },
//	    OnCycle(CycleFixedUpdate),
//	    func(ctx context.Context, contacts int, err error) {
//	        hud.SetContacts(contacts)
//	    },
//	    OnCycle(CycleLateUpdate),
//	)
func SubmitAndReply[T any](
	d *Dispatcher,
	task TaskWithResult[T],
	taskOpts DispatchOptions,
	reply ReplyWithResult[T],
	replyOpts DispatchOptions,
) *Future[struct{}] {
	out, bridge := NewPromise[struct{}]()
	bridge.suppressCancel = taskOpts.SuppressCancellation
	if task == nil || reply == nil {
		_ = bridge.Fault(ErrNilPayload)
		return out
	}

	var (
		result T
		err    error
	)

	wrappedTask := func(ctx context.Context) (struct{}, error) {
		result, err = task(ctx)
		return struct{}{}, nil
	}
	// The completion of the task happens before the reply is queued.
	wrappedReply := func(ctx context.Context) {
		reply(ctx, result, err)
	}

	first := SubmitFunc[struct{}](d, wrappedTask, taskOpts)
	go func() {
		<-first.Done()
		if first.State() != StateResolved {
			forwardOutcome(first.Completion(), bridge)
			return
		}
		second := d.SubmitAction(wrappedReply, replyOpts)
		<-second.Done()
		forwardOutcome(second.Completion(), bridge)
	}()
	return out
}

// SubmitDelayedAndReply is SubmitAndReply with the task held back by delay.
// The reply is not delayed.
func SubmitDelayedAndReply[T any](
	d *Dispatcher,
	task TaskWithResult[T],
	delay time.Duration,
	taskOpts DispatchOptions,
	reply ReplyWithResult[T],
	replyOpts DispatchOptions,
) *Future[struct{}] {
	out, bridge := NewPromise[struct{}]()
	bridge.suppressCancel = taskOpts.SuppressCancellation
	if task == nil || reply == nil {
		_ = bridge.Fault(ErrNilPayload)
		return out
	}

	var (
		result T
		err    error
	)

	item := NewFuncItem[struct{}](func(ctx context.Context) (struct{}, error) {
		result, err = task(ctx)
		return struct{}{}, nil
	})
	first := d.SubmitDelayed(item, delay, taskOpts)
	go func() {
		<-first.Done()
		if first.State() != StateResolved {
			forwardOutcome(first, bridge)
			return
		}
		second := d.SubmitAction(func(ctx context.Context) {
			reply(ctx, result, err)
		}, replyOpts)
		<-second.Done()
		forwardOutcome(second.Completion(), bridge)
	}()
	return out
}

// forwardOutcome copies a settled completion's outcome into dst.
func forwardOutcome(src, dst *Completion) {
	switch src.State() {
	case StateResolved:
		_ = dst.Resolve(src.value)
	case StateFaulted:
		_ = dst.Fault(src.err)
	case StateCanceled:
		var cause error
		if ce, ok := src.err.(*CanceledError); ok {
			cause = ce.Cause
		}
		_ = dst.Cancel(cause)
	}
}
