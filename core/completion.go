package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// CompletionState is the lifecycle state of a Completion.
// Transitions out of StatePending happen exactly once.
type CompletionState int32

const (
	StatePending CompletionState = iota
	StateResolved
	StateFaulted
	StateCanceled
)

func (s CompletionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateFaulted:
		return "faulted"
	case StateCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("CompletionState(%d)", int32(s))
	}
}

// Terminal reports whether s is a settled state.
func (s CompletionState) Terminal() bool {
	return s != StatePending
}

// =============================================================================
// Completion: the executing side of a bridge
// =============================================================================

// Completion is the cross-goroutine bridge between the main context that
// executes a work item and the caller awaiting it. It has exactly one writer
// (the executor) and settles exactly once.
type Completion struct {
	mu    sync.Mutex
	state atomic.Int32
	done  chan struct{}

	value any
	err   error

	suppressCancel bool
	strict         bool
	onMisuse       func(error)
}

var errNilFault = errors.New("dispatch: fault with nil error")

// NewCompletion returns a pending Completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Resolve settles the completion with a value.
func (c *Completion) Resolve(value any) error {
	return c.settle(StateResolved, value, nil)
}

// Fault settles the completion with an error.
func (c *Completion) Fault(err error) error {
	if err == nil {
		err = errNilFault
	}
	return c.settle(StateFaulted, nil, err)
}

// Cancel settles the completion as canceled. cause may be nil.
func (c *Completion) Cancel(cause error) error {
	return c.settle(StateCanceled, nil, &CanceledError{Cause: cause})
}

func (c *Completion) settle(state CompletionState, value any, err error) error {
	c.mu.Lock()
	current := CompletionState(c.state.Load())
	if current != StatePending {
		c.mu.Unlock()
		misuse := fmt.Errorf("%w: already %s, attempted %s", ErrDoubleResolution, current, state)
		if c.onMisuse != nil {
			c.onMisuse(misuse)
		}
		if c.strict {
			panic(misuse)
		}
		return misuse
	}
	c.value = value
	c.err = err
	c.state.Store(int32(state))
	close(c.done)
	c.mu.Unlock()
	return nil
}

// State returns the current state without blocking.
func (c *Completion) State() CompletionState {
	return CompletionState(c.state.Load())
}

// Done is closed once the completion settles.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Value returns the resolved value, or nil while pending or when not resolved.
func (c *Completion) Value() any {
	if c.State() != StateResolved {
		return nil
	}
	return c.value
}

// Err returns the fault or cancellation error, nil while pending or resolved.
func (c *Completion) Err() error {
	s := c.State()
	if s != StateFaulted && s != StateCanceled {
		return nil
	}
	return c.err
}

// =============================================================================
// Future: the awaiting side of a bridge
// =============================================================================

// Future is the typed, consumer-facing handle of a Completion.
type Future[T any] struct {
	c *Completion
}

// FutureOf wraps a Completion whose resolved value has type T.
func FutureOf[T any](c *Completion) *Future[T] {
	return &Future[T]{c: c}
}

// NewPromise returns a pending Future and the Completion that settles it.
// External async operations use it to hand a result to the dispatcher.
func NewPromise[T any]() (*Future[T], *Completion) {
	c := NewCompletion()
	return FutureOf[T](c), c
}

// Completion exposes the underlying bridge for direct inspection.
func (f *Future[T]) Completion() *Completion { return f.c }

// Done is closed once the underlying item settles.
func (f *Future[T]) Done() <-chan struct{} { return f.c.done }

// State returns the bridge state.
func (f *Future[T]) State() CompletionState { return f.c.State() }

// Canceled reports whether the item settled as canceled.
func (f *Future[T]) Canceled() bool { return f.c.State() == StateCanceled }

// Await blocks until the item settles or ctx ends.
//
// Resolved returns the value. Faulted returns the captured error. Canceled
// returns a *CanceledError, unless the item was submitted with
// SuppressCancellation, in which case it returns the zero value and nil.
// If ctx ends first, ctx.Err() is returned and the bridge is left untouched.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	v, ok, err := f.TryAwait(ctx)
	if err == nil && !ok && !f.c.suppressCancel {
		return v, f.c.err
	}
	return v, err
}

// TryAwait is Await with cancellation reported as ok == false and a nil error.
func (f *Future[T]) TryAwait(ctx context.Context) (T, bool, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.c.done:
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}

	switch f.c.State() {
	case StateResolved:
		if f.c.value == nil {
			return zero, true, nil
		}
		v, ok := f.c.value.(T)
		if !ok {
			return zero, true, fmt.Errorf("dispatch: result type %T is not %T", f.c.value, zero)
		}
		return v, true, nil
	case StateCanceled:
		return zero, false, nil
	default:
		return zero, true, f.c.err
	}
}
