package dispatcher

import (
	"context"

	"github.com/Swind/go-cycle-dispatcher/core"
)

// Call-shape adapters: each wraps a plain Go function into the matching
// work item kind and submits it. A nil d means the global dispatcher.

// Option adjusts the DispatchOptions of one Invoke call.
type Option func(*core.DispatchOptions)

// WithCycle selects the queue. The default is CycleDefault.
func WithCycle(cycle core.Cycle) Option {
	return func(o *core.DispatchOptions) { o.Cycle = cycle }
}

// WithContext cancels the item before it runs, and between routine steps.
func WithContext(ctx context.Context) Option {
	return func(o *core.DispatchOptions) { o.Context = ctx }
}

// Inline runs the item immediately when ctx is the main context of a payload
// that is still running and the call is made from that payload's goroutine.
// Otherwise the item is queued. Do not hand a main context to other
// goroutines for inline use.
func Inline(ctx context.Context) Option {
	return func(o *core.DispatchOptions) {
		o.Context = ctx
		o.Inline = true
	}
}

// SuppressCancellation makes Await report cancellation as (zero, nil).
func SuppressCancellation() Option {
	return func(o *core.DispatchOptions) { o.SuppressCancellation = true }
}

func buildOptions(opts []Option) core.DispatchOptions {
	o := core.DefaultDispatchOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// =============================================================================
// Actions
// =============================================================================

// Invoke runs fn on the main context. Fire-and-forget.
func Invoke(d *core.Dispatcher, fn func(), opts ...Option) {
	resolve(d).Submit(core.NewActionItem(actionOf(fn)), buildOptions(opts))
}

// InvokeOn runs fn during the next drain of cycle. Fire-and-forget.
func InvokeOn(d *core.Dispatcher, cycle core.Cycle, fn func()) {
	Invoke(d, fn, WithCycle(cycle))
}

// InvokeCtx runs fn with the main context. Fire-and-forget.
func InvokeCtx(d *core.Dispatcher, fn func(ctx context.Context), opts ...Option) {
	resolve(d).Submit(core.NewActionItem(fn), buildOptions(opts))
}

// InvokeAsync runs fn on the main context and returns a future settling
// after it ran.
func InvokeAsync(d *core.Dispatcher, fn func(), opts ...Option) *core.Future[struct{}] {
	return resolve(d).SubmitAction(actionOf(fn), buildOptions(opts))
}

func actionOf(fn func()) core.Task {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context) { fn() }
}

// =============================================================================
// Functions with results
// =============================================================================

// InvokeFunc runs fn on the main context and returns a future of its result.
func InvokeFunc[T any](d *core.Dispatcher, fn func() T, opts ...Option) *core.Future[T] {
	var task core.TaskWithResult[T]
	if fn != nil {
		task = func(ctx context.Context) (T, error) { return fn(), nil }
	}
	return core.SubmitFunc(resolve(d), task, buildOptions(opts))
}

// InvokeFuncErr runs fn on the main context; a returned error faults the future.
func InvokeFuncErr[T any](d *core.Dispatcher, fn func() (T, error), opts ...Option) *core.Future[T] {
	var task core.TaskWithResult[T]
	if fn != nil {
		task = func(ctx context.Context) (T, error) { return fn() }
	}
	return core.SubmitFunc(resolve(d), task, buildOptions(opts))
}

// InvokeFuncCtx runs fn with the main context and returns a future of its result.
func InvokeFuncCtx[T any](d *core.Dispatcher, fn core.TaskWithResult[T], opts ...Option) *core.Future[T] {
	return core.SubmitFunc(resolve(d), fn, buildOptions(opts))
}

// =============================================================================
// Routines
// =============================================================================

// InvokeRoutine starts routine on owner (the dispatcher's runtime owner when
// owner is the zero value). Fire-and-forget.
func InvokeRoutine(d *core.Dispatcher, routine core.Routine, owner core.Owner, opts ...Option) {
	resolve(d).Submit(core.NewRoutineItem(routine).WithOwner(owner), buildOptions(opts))
}

// InvokeRoutineAwaitCompletion starts routine and returns a future settling
// when the routine finishes.
func InvokeRoutineAwaitCompletion(d *core.Dispatcher, routine core.Routine, owner core.Owner, opts ...Option) *core.Future[struct{}] {
	return resolve(d).SubmitRoutine(routine, owner, buildOptions(opts))
}

// =============================================================================
// External operations
// =============================================================================

// InvokeExternal starts an async operation on the main context and returns a
// future settling with it.
func InvokeExternal[T any](d *core.Dispatcher, start func() *core.Future[T], opts ...Option) *core.Future[T] {
	var task core.ExternalTask[T]
	if start != nil {
		task = func(ctx context.Context) *core.Future[T] { return start() }
	}
	return core.SubmitExternal(resolve(d), task, buildOptions(opts))
}

// =============================================================================
// Arity helpers
// =============================================================================

// Bind1 captures one argument so fn can be handed to Invoke.
//
//	dispatcher.Invoke(d, dispatcher.Bind1(hud.SetScore, 120))
func Bind1[A any](fn func(A), a A) func() {
	return func() { fn(a) }
}

// Bind2 captures two arguments.
func Bind2[A, B any](fn func(A, B), a A, b B) func() {
	return func() { fn(a, b) }
}

// Bind3 captures three arguments.
func Bind3[A, B, C any](fn func(A, B, C), a A, b B, c C) func() {
	return func() { fn(a, b, c) }
}

// BindFunc1 captures one argument of a result-producing function.
func BindFunc1[A, T any](fn func(A) T, a A) func() T {
	return func() T { return fn(a) }
}

// BindFunc2 captures two arguments of a result-producing function.
func BindFunc2[A, B, T any](fn func(A, B) T, a A, b B) func() T {
	return func() T { return fn(a, b) }
}
