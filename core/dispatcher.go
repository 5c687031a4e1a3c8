package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Dispatcher schedules work from any goroutine onto the single main context.
//
// Producers call Submit / SubmitAwaitable (or the typed helpers). The host
// calls Drain(cycle) from its main loop at fixed points of every frame;
// only then does queued work run, synchronously on the host's goroutine.
//
// Drain calls for one cycle must not overlap. Drains of different cycles are
// expected to come from the same goroutine; a concurrent drain of the same
// cycle is rejected with ErrReentrantDrain.
type Dispatcher struct {
	queues   [numCycles]*CycleQueue
	draining [numCycles]atomic.Bool
	depth    atomic.Int32

	routines *routineRunner
	delay    *DelayManager
	owners   *OwnerRegistry
	runtime  Owner

	// Lifecycle
	ctx          context.Context
	cancel       context.CancelFunc
	closed       atomic.Bool
	shutdownOnce sync.Once
	shutdownChan chan struct{}

	executed atomic.Int64
	rejected atomic.Int64
	history  executionHistory

	// Handlers
	logger              Logger
	metrics             Metrics
	panicHandler        PanicHandler
	rejectedTaskHandler RejectedTaskHandler
	clock               Clock
	strict              bool

	// Metadata
	mu   sync.Mutex
	name string
}

// NewDispatcher creates a dispatcher. A nil config uses DefaultDispatcherConfig.
func NewDispatcher(config *DispatcherConfig) *Dispatcher {
	if config == nil {
		config = DefaultDispatcherConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		ctx:                 ctx,
		cancel:              cancel,
		shutdownChan:        make(chan struct{}),
		history:             newExecutionHistory(config.HistoryCapacity),
		logger:              config.Logger,
		metrics:             config.Metrics,
		panicHandler:        config.PanicHandler,
		rejectedTaskHandler: config.RejectedTaskHandler,
		clock:               config.Clock,
		strict:              config.StrictCompletion,
		name:                config.Name,
	}

	// Use defaults if not provided
	if d.logger == nil {
		d.logger = NewNoOpLogger()
	}
	if d.metrics == nil {
		d.metrics = &NilMetrics{}
	}
	if d.panicHandler == nil {
		d.panicHandler = &DefaultPanicHandler{}
	}
	if d.rejectedTaskHandler == nil {
		d.rejectedTaskHandler = &DefaultRejectedTaskHandler{}
	}
	if d.clock == nil {
		d.clock = SystemClock{}
	}
	if d.name == "" {
		d.name = "dispatcher"
	}

	for c := range numCycles {
		d.queues[c] = NewCycleQueue(c)
	}
	d.routines = newRoutineRunner(d)
	d.delay = NewDelayManager(d.clock)
	d.owners = NewOwnerRegistry()
	d.runtime = d.owners.Register(d.name)

	return d
}

// Name returns the name of the dispatcher
func (d *Dispatcher) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name
}

// SetName sets the name of the dispatcher
func (d *Dispatcher) SetName(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.name = name
}

// RuntimeContext is canceled when the dispatcher shuts down.
func (d *Dispatcher) RuntimeContext() context.Context {
	return d.ctx
}

// RuntimeOwner is the owner routines bind to when submitted without one.
// It stays alive until Shutdown.
func (d *Dispatcher) RuntimeOwner() Owner {
	return d.runtime
}

// Clock returns the clock used for time-based routine waits.
func (d *Dispatcher) Clock() Clock {
	return d.clock
}

// =============================================================================
// Submission
// =============================================================================

// Submit enqueues item without returning a handle. It never blocks and never
// fails; invalid or late submissions are reported through the handlers.
func (d *Dispatcher) Submit(item WorkItem, opts DispatchOptions) {
	d.submit(item, opts)
}

// SubmitAwaitable enqueues item and returns its completion immediately.
func (d *Dispatcher) SubmitAwaitable(item WorkItem, opts DispatchOptions) *Completion {
	return d.submit(item, opts)
}

// SubmitDelayed enqueues item into its cycle queue once delay has elapsed.
func (d *Dispatcher) SubmitDelayed(item WorkItem, delay time.Duration, opts DispatchOptions) *Completion {
	prepared, c, ok := d.prepare(item, opts)
	if !ok {
		return c
	}
	if d.closed.Load() {
		d.reject(prepared, "shutdown")
		return c
	}
	if !d.delay.AddDelayedItem(prepared, delay, d) {
		d.reject(prepared, "shutdown")
	}
	return c
}

// SubmitAction dispatches task and returns a future settling after it ran.
func (d *Dispatcher) SubmitAction(task Task, opts DispatchOptions) *Future[struct{}] {
	return FutureOf[struct{}](d.submit(NewActionItem(task), opts))
}

// SubmitFunc dispatches task and returns a future of its result.
func SubmitFunc[T any](d *Dispatcher, task TaskWithResult[T], opts DispatchOptions) *Future[T] {
	return FutureOf[T](d.submit(NewFuncItem(task), opts))
}

// SubmitRoutine starts routine on the main context, bound to owner (the
// runtime owner when owner is the zero value). The future settles when the
// routine finishes.
func (d *Dispatcher) SubmitRoutine(routine Routine, owner Owner, opts DispatchOptions) *Future[struct{}] {
	return FutureOf[struct{}](d.submit(NewRoutineItem(routine).WithOwner(owner), opts))
}

// SubmitExternal starts task on the main context and settles with the
// operation it returns.
func SubmitExternal[T any](d *Dispatcher, task ExternalTask[T], opts DispatchOptions) *Future[T] {
	return FutureOf[T](d.submit(NewExternalItem(task), opts))
}

func (d *Dispatcher) newCompletion(opts DispatchOptions) *Completion {
	c := NewCompletion()
	c.suppressCancel = opts.SuppressCancellation
	c.strict = d.strict
	c.onMisuse = d.reportMisuse
	return c
}

// prepare validates item and binds its completion, cycle and context.
// ok is false when the completion was already settled with a fault.
func (d *Dispatcher) prepare(item WorkItem, opts DispatchOptions) (WorkItem, *Completion, bool) {
	c := d.newCompletion(opts)

	if item.submitted == nil || !item.hasPayload() {
		_ = c.Fault(ErrNilPayload)
		return item, c, false
	}
	if !item.submitted.CompareAndSwap(false, true) {
		_ = c.Fault(fmt.Errorf("%w: %s", ErrItemReused, item.id))
		return item, c, false
	}
	if !opts.Cycle.Valid() {
		_ = c.Fault(fmt.Errorf("%w: %d", ErrUnknownCycle, int(opts.Cycle)))
		return item, c, false
	}

	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	item.completion = c
	item.cycle = opts.Cycle
	item.ctx = ctx
	item.queuedAt = d.clock.Now()
	if item.kind == KindRoutine && item.owner.IsZero() {
		item.owner = d.runtime
	}
	return item, c, true
}

func (d *Dispatcher) submit(item WorkItem, opts DispatchOptions) *Completion {
	prepared, c, ok := d.prepare(item, opts)
	if !ok {
		return c
	}

	if d.closed.Load() {
		d.reject(prepared, "shutdown")
		return c
	}

	if opts.Inline && d.ownsMainContext(opts.Context) {
		cycle, _ := CurrentCycle(opts.Context)
		d.runItem(prepared, cycle)
		return c
	}

	d.push(prepared)
	return c
}

// push appends a prepared item to its queue. Used directly by the delay
// manager when a delayed item becomes due.
func (d *Dispatcher) push(item WorkItem) {
	q := d.queues[item.cycle]
	q.Push(item)

	// Shutdown may have cleared the queues between the closed check and the
	// push; whatever is left now belongs to nobody.
	if d.closed.Load() {
		d.cancelAll(q.Clear(), ErrEngineShutdown)
	}
}

// PushDelayed implements DelayTarget.
func (d *Dispatcher) PushDelayed(item WorkItem) {
	if d.closed.Load() {
		d.cancelAll([]WorkItem{item}, ErrEngineShutdown)
		return
	}
	d.push(item)
}

func (d *Dispatcher) ownsMainContext(ctx context.Context) bool {
	f := mainFrameOf(ctx)
	return f != nil && f.owns(d)
}

func (d *Dispatcher) reject(item WorkItem, reason string) {
	name := d.Name()
	d.rejected.Add(1)
	d.rejectedTaskHandler.HandleRejectedTask(name, reason)
	d.metrics.RecordTaskRejected(name, reason)
	d.logger.Warn("work item rejected",
		F("dispatcher", name),
		F("item", item.id.String()),
		F("kind", item.kind.String()),
		F("reason", reason),
	)
	d.settle(item, StateCanceled, nil, ErrEngineShutdown)
}

func (d *Dispatcher) reportMisuse(err error) {
	name := d.Name()
	d.metrics.RecordDoubleResolution(name)
	d.logger.Error("completion settled twice", F("dispatcher", name), F("error", err))
}

// =============================================================================
// Draining
// =============================================================================

// Drain executes every item queued for cycle at the moment it is called, in
// FIFO order, then steps the routines bound to cycle. Delayed items due by
// the dispatcher's clock are queued first. Draining a named cycle also
// drains the Default queue first. Items submitted while draining wait for
// the next drain.
func (d *Dispatcher) Drain(cycle Cycle) error {
	if !cycle.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownCycle, int(cycle))
	}
	if !d.draining[cycle].CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrReentrantDrain, cycle)
	}
	defer d.draining[cycle].Store(false)

	d.depth.Add(1)
	defer d.depth.Add(-1)

	d.delay.ProcessExpired()
	if cycle != CycleDefault {
		d.drainQueue(d.queues[CycleDefault], cycle)
	}
	d.drainQueue(d.queues[cycle], cycle)
	d.routines.stepCycle(cycle)
	return nil
}

func (d *Dispatcher) drainQueue(q *CycleQueue, cycle Cycle) {
	batch := q.DrainSnapshot()
	d.metrics.RecordQueueDepth(d.Name(), q.Cycle().String(), len(batch))
	if len(batch) == 0 {
		return
	}
	for _, item := range batch {
		d.runItem(item, cycle)
	}
	q.Recycle(batch)
}

// runItem executes one prepared item on the main context and settles it,
// except for routines and external operations that settle later.
func (d *Dispatcher) runItem(item WorkItem, cycle Cycle) {
	if cause := d.cancellationCause(item.ctx); cause != nil {
		d.settle(item, StateCanceled, nil, cause)
		return
	}

	if item.kind == KindRoutine {
		d.routines.start(item, cycle)
		return
	}

	ctx, release := withMainContext(item.ctx, d, cycle)

	switch item.kind {
	case KindAction:
		_, err := d.invoke(ctx, item, cycle, func(ctx context.Context) (any, error) {
			item.action(ctx)
			return nil, nil
		})
		release()
		d.settleResult(item, nil, err)

	case KindFunc:
		v, err := d.invoke(ctx, item, cycle, item.fn)
		release()
		d.settleResult(item, v, err)

	case KindExternal:
		var op *Completion
		_, err := d.invoke(ctx, item, cycle, func(ctx context.Context) (any, error) {
			op = item.external(ctx)
			return nil, nil
		})
		release()
		if err != nil {
			d.settle(item, StateFaulted, nil, err)
			return
		}
		if op == nil {
			d.settle(item, StateFaulted, nil, ErrNilPayload)
			return
		}
		d.awaitExternal(item, op)
	}
}

// invoke runs fn with panic recovery, history and metrics.
func (d *Dispatcher) invoke(ctx context.Context, item WorkItem, cycle Cycle, fn func(context.Context) (any, error)) (value any, err error) {
	name := d.Name()
	startedAt := d.clock.Now()
	panicked := false

	defer func() {
		if rec := recover(); rec != nil {
			panicked = true
			stack := debug.Stack()
			d.panicHandler.HandlePanic(ctx, name, cycle, rec, stack)
			d.metrics.RecordTaskPanic(name, rec)
			err = &PanicError{Value: rec, Stack: stack}
		}

		finishedAt := d.clock.Now()
		duration := finishedAt.Sub(startedAt)
		d.executed.Add(1)
		d.metrics.RecordTaskDuration(name, cycle.String(), item.kind.String(), duration)
		d.history.Add(TaskExecutionRecord{
			WorkID:     item.id,
			Name:       resolveTaskName(item),
			Kind:       item.kind,
			Dispatcher: name,
			Cycle:      cycle,
			QueuedAt:   item.queuedAt,
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Duration:   duration,
			Panicked:   panicked,
			Err:        err,
		})
	}()

	return fn(ctx)
}

// awaitExternal forwards the outcome of an external operation to item.
func (d *Dispatcher) awaitExternal(item WorkItem, op *Completion) {
	forward := func() {
		switch op.State() {
		case StateResolved:
			d.settle(item, StateResolved, op.value, nil)
		case StateFaulted:
			d.settle(item, StateFaulted, nil, op.err)
		default:
			var cause error
			if ce, ok := op.err.(*CanceledError); ok {
				cause = ce.Cause
			}
			d.settle(item, StateCanceled, nil, cause)
		}
	}

	select {
	case <-op.Done():
		forward()
		return
	default:
	}

	go func() {
		select {
		case <-op.Done():
			forward()
		case <-item.ctx.Done():
			d.settle(item, StateCanceled, nil, item.ctx.Err())
		case <-d.ctx.Done():
			d.settle(item, StateCanceled, nil, ErrEngineShutdown)
		}
	}()
}

// cancellationCause returns why ctx-bound work must not run, or nil.
func (d *Dispatcher) cancellationCause(ctx context.Context) error {
	select {
	case <-d.ctx.Done():
		return ErrEngineShutdown
	default:
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) settleResult(item WorkItem, value any, err error) {
	if err != nil {
		d.logger.Debug("work item faulted",
			F("dispatcher", d.Name()),
			F("item", item.id.String()),
			F("error", err),
		)
		d.settle(item, StateFaulted, nil, err)
		return
	}
	d.settle(item, StateResolved, value, nil)
}

// settle moves item's completion into state and records the outcome.
func (d *Dispatcher) settle(item WorkItem, state CompletionState, value any, err error) {
	c := item.completion
	if c == nil {
		return
	}
	var settleErr error
	switch state {
	case StateResolved:
		settleErr = c.Resolve(value)
	case StateFaulted:
		settleErr = c.Fault(err)
	case StateCanceled:
		settleErr = c.Cancel(err)
	}
	if settleErr == nil {
		d.metrics.RecordTaskOutcome(d.Name(), item.cycle.String(), state.String())
	}
}

func (d *Dispatcher) cancelAll(items []WorkItem, cause error) {
	for _, item := range items {
		d.settle(item, StateCanceled, nil, cause)
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

// Shutdown cancels the runtime context and resolves every queued, delayed
// and suspended item as canceled. Items already executing finish normally.
// Later submissions are rejected. Safe to call more than once.
func (d *Dispatcher) Shutdown() {
	d.shutdownOnce.Do(func() {
		d.closed.Store(true)
		d.cancel()

		delayed := d.delay.Stop()
		d.cancelAll(delayed, ErrEngineShutdown)

		pending := len(delayed)
		for _, q := range d.queues {
			items := q.Clear()
			pending += len(items)
			d.cancelAll(items, ErrEngineShutdown)
		}
		pending += d.routines.shutdown()
		d.owners.Destroy(d.runtime.ID)

		d.logger.Info("dispatcher shut down",
			F("dispatcher", d.Name()),
			F("canceled", pending),
		)
		close(d.shutdownChan)
	})
}

// IsClosed returns true once Shutdown has been called.
func (d *Dispatcher) IsClosed() bool {
	return d.closed.Load()
}

// WaitShutdown blocks until Shutdown is called or ctx ends.
func (d *Dispatcher) WaitShutdown(ctx context.Context) error {
	select {
	case <-d.shutdownChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// Observability
// =============================================================================

// Pending returns the number of items queued for cycle.
func (d *Dispatcher) Pending(cycle Cycle) int {
	if !cycle.Valid() {
		return 0
	}
	return d.queues[cycle].Len()
}

// RunningRoutines returns the number of routines started and not finished.
func (d *Dispatcher) RunningRoutines() int {
	return d.routines.count()
}

// Stats returns a point-in-time snapshot.
func (d *Dispatcher) Stats() DispatcherStats {
	stats := DispatcherStats{
		Name:            d.Name(),
		Type:            "cycle_dispatcher",
		PendingByCycle:  make(map[string]int, numCycles),
		RunningRoutines: d.routines.count(),
		Delayed:         d.delay.TaskCount(),
		Executed:        d.executed.Load(),
		Rejected:        d.rejected.Load(),
		Closed:          d.closed.Load(),
		Draining:        d.depth.Load() > 0,
	}
	for _, q := range d.queues {
		n := q.Len()
		stats.Pending += n
		stats.PendingByCycle[q.Cycle().String()] = n
	}
	if last, ok := d.history.Last(); ok {
		stats.LastTaskName = last.Name
		stats.LastTaskAt = last.FinishedAt
	}
	return stats
}

// RecentTasks returns up to limit execution records, newest first.
func (d *Dispatcher) RecentTasks(limit int) []TaskExecutionRecord {
	return d.history.Recent(limit)
}

// LastTask returns the most recent execution record.
func (d *Dispatcher) LastTask() (TaskExecutionRecord, bool) {
	return d.history.Last()
}
