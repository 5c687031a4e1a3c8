package core

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Task is the fire-and-forget payload (Closure)
type Task func(ctx context.Context)

// TaskWithResult is a payload producing a value of type T.
type TaskWithResult[T any] func(ctx context.Context) (T, error)

// ExternalTask starts an async operation on the main context and returns
// its future. The dispatched item settles when that future settles.
type ExternalTask[T any] func(ctx context.Context) *Future[T]

// =============================================================================
// WorkID
// =============================================================================

// WorkID identifies one submitted work item.
type WorkID uuid.UUID

// GenerateWorkID returns a new random WorkID.
func GenerateWorkID() WorkID {
	return WorkID(uuid.New())
}

func (id WorkID) String() string {
	return uuid.UUID(id).String()
}

func (id WorkID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

// =============================================================================
// WorkItem: the canonical unit of schedulable work
// =============================================================================

// WorkKind tags the payload carried by a WorkItem.
type WorkKind int

const (
	KindAction WorkKind = iota
	KindFunc
	KindRoutine
	KindExternal
)

func (k WorkKind) String() string {
	switch k {
	case KindAction:
		return "action"
	case KindFunc:
		return "func"
	case KindRoutine:
		return "routine"
	case KindExternal:
		return "external"
	default:
		return "unknown"
	}
}

// WorkItem is a tagged variant over the four payload kinds. Exactly one
// payload field is populated. A WorkItem may be submitted once; copies
// share the submitted flag.
type WorkItem struct {
	id    WorkID
	kind  WorkKind
	name  string
	label string // payload function name, used when name is empty

	action   Task
	fn       func(ctx context.Context) (any, error)
	routine  Routine
	external func(ctx context.Context) *Completion

	owner     Owner
	submitted *atomic.Bool

	// Set by the dispatcher on submission.
	completion *Completion
	cycle      Cycle
	ctx        context.Context
	queuedAt   time.Time
}

func newWorkItem(kind WorkKind) WorkItem {
	return WorkItem{
		id:        GenerateWorkID(),
		kind:      kind,
		submitted: new(atomic.Bool),
	}
}

// NewActionItem wraps a fire-and-forget action.
func NewActionItem(task Task) WorkItem {
	item := newWorkItem(KindAction)
	item.action = task
	return item
}

// NewFuncItem wraps a result-producing function.
func NewFuncItem[T any](task TaskWithResult[T]) WorkItem {
	item := newWorkItem(KindFunc)
	item.label = funcName(task)
	if task != nil {
		item.fn = func(ctx context.Context) (any, error) {
			return task(ctx)
		}
	}
	return item
}

// NewRoutineItem wraps a cooperative routine.
func NewRoutineItem(routine Routine) WorkItem {
	item := newWorkItem(KindRoutine)
	item.routine = routine
	return item
}

// NewExternalItem wraps an externally supplied async operation.
func NewExternalItem[T any](task ExternalTask[T]) WorkItem {
	item := newWorkItem(KindExternal)
	item.label = funcName(task)
	if task != nil {
		item.external = func(ctx context.Context) *Completion {
			f := task(ctx)
			if f == nil {
				return nil
			}
			return f.c
		}
	}
	return item
}

// WithName returns a copy labeled for history and metrics.
func (w WorkItem) WithName(name string) WorkItem {
	w.name = name
	return w
}

// WithOwner returns a copy bound to owner. Only routines use the owner.
func (w WorkItem) WithOwner(owner Owner) WorkItem {
	w.owner = owner
	return w
}

func (w WorkItem) ID() WorkID     { return w.id }
func (w WorkItem) Kind() WorkKind { return w.kind }
func (w WorkItem) Name() string   { return w.name }
func (w WorkItem) Owner() Owner   { return w.owner }

func (w WorkItem) hasPayload() bool {
	switch w.kind {
	case KindAction:
		return w.action != nil
	case KindFunc:
		return w.fn != nil
	case KindRoutine:
		return w.routine != nil
	case KindExternal:
		return w.external != nil
	}
	return false
}

// =============================================================================
// DispatchOptions
// =============================================================================

// DispatchOptions configures one submission.
type DispatchOptions struct {
	// Cycle selects the queue. Defaults to CycleDefault.
	Cycle Cycle

	// Context cancels the item before it runs and between routine steps.
	// It also identifies the caller for Inline execution.
	Context context.Context

	// SuppressCancellation makes Await report cancellation as a zero value
	// and nil error instead of a *CanceledError.
	SuppressCancellation bool

	// Inline executes the item immediately when Context is the main context
	// of a payload of the same dispatcher that is still running, and the
	// call is made from that payload's goroutine. Otherwise the item is
	// queued. A main context must not be passed to other goroutines for
	// inline use.
	Inline bool
}

func DefaultDispatchOptions() DispatchOptions {
	return DispatchOptions{Cycle: CycleDefault}
}

// OnCycle returns options targeting cycle.
func OnCycle(cycle Cycle) DispatchOptions {
	return DispatchOptions{Cycle: cycle}
}

// =============================================================================
// Context Helper
// =============================================================================

type mainContextKeyType struct{}

var mainContextKey mainContextKeyType

// mainFrame identifies one payload invocation or routine step. It is active
// only until that call returns, and only on the goroutine that drained it.
type mainFrame struct {
	dispatcher *Dispatcher
	cycle      Cycle
	goroutine  uint64
	active     atomic.Bool
}

// owns reports whether the caller is inside this frame on the draining
// goroutine.
func (f *mainFrame) owns(d *Dispatcher) bool {
	return f.dispatcher == d && f.active.Load() && f.goroutine == getGoroutineID()
}

// withMainContext returns the ctx handed to a payload and the func that ends
// its frame.
func withMainContext(ctx context.Context, d *Dispatcher, cycle Cycle) (context.Context, func()) {
	f := &mainFrame{dispatcher: d, cycle: cycle, goroutine: getGoroutineID()}
	f.active.Store(true)
	return context.WithValue(ctx, mainContextKey, f), func() { f.active.Store(false) }
}

func mainFrameOf(ctx context.Context) *mainFrame {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(mainContextKey).(*mainFrame)
	return f
}

// getGoroutineID parses the current goroutine's ID from its stack header.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// GetCurrentDispatcher returns the dispatcher draining the calling payload,
// or nil when ctx does not come from a drain.
func GetCurrentDispatcher(ctx context.Context) *Dispatcher {
	if f := mainFrameOf(ctx); f != nil {
		return f.dispatcher
	}
	return nil
}

// CurrentCycle returns the cycle being drained when ctx comes from a drain.
func CurrentCycle(ctx context.Context) (Cycle, bool) {
	if f := mainFrameOf(ctx); f != nil {
		return f.cycle, true
	}
	return 0, false
}

// IsMainContext reports whether ctx was handed to a payload by a drain.
func IsMainContext(ctx context.Context) bool {
	return GetCurrentDispatcher(ctx) != nil
}
