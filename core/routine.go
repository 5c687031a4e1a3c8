package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// Instructions: what a routine step asks for next
// =============================================================================

type instructionKind int

const (
	instrDone instructionKind = iota
	instrWaitCycles
	instrWaitFor
	instrWaitUntil
)

// Instruction is returned by a routine step to say when it wants to resume.
type Instruction struct {
	kind   instructionKind
	cycles int
	delay  time.Duration
	cond   func() bool
}

// Done finishes the routine.
func Done() Instruction { return Instruction{kind: instrDone} }

// NextCycle resumes on the next drain of the routine's cycle.
func NextCycle() Instruction { return WaitCycles(1) }

// WaitCycles resumes after n drains of the routine's cycle (n < 1 means 1).
func WaitCycles(n int) Instruction {
	return Instruction{kind: instrWaitCycles, cycles: max(n, 1)}
}

// WaitFor resumes on the first drain at least d after the step returned.
func WaitFor(d time.Duration) Instruction {
	return Instruction{kind: instrWaitFor, delay: d}
}

// WaitUntil resumes on the first drain where cond reports true.
// cond runs on the main context.
func WaitUntil(cond func() bool) Instruction {
	if cond == nil {
		return NextCycle()
	}
	return Instruction{kind: instrWaitUntil, cond: cond}
}

// =============================================================================
// Routine: the step driver
// =============================================================================

// Routine is a cooperative multi-step unit of work. Each call to Step runs
// one step on the main context and returns when the routine wants to resume.
// A returned error ends the routine as faulted.
type Routine interface {
	Step(ctx context.Context) (Instruction, error)
}

// RoutineFunc adapts a function holding its own resumption state.
type RoutineFunc func(ctx context.Context) (Instruction, error)

func (f RoutineFunc) Step(ctx context.Context) (Instruction, error) {
	return f(ctx)
}

type stepsRoutine struct {
	steps []func(ctx context.Context) error
	next  int
}

// Steps builds a routine running one function per drain, in order.
func Steps(steps ...func(ctx context.Context) error) Routine {
	return &stepsRoutine{steps: steps}
}

func (r *stepsRoutine) Step(ctx context.Context) (Instruction, error) {
	if r.next >= len(r.steps) {
		return Done(), nil
	}
	step := r.steps[r.next]
	r.next++
	if step != nil {
		if err := step(ctx); err != nil {
			return Done(), err
		}
	}
	if r.next >= len(r.steps) {
		return Done(), nil
	}
	return NextCycle(), nil
}

// =============================================================================
// RoutineState
// =============================================================================

type RoutineState int32

const (
	RoutineNotStarted RoutineState = iota
	RoutineRunning
	RoutineCompleted
	RoutineFaulted
	RoutineCanceled
	RoutineOwnerGone
)

func (s RoutineState) String() string {
	switch s {
	case RoutineNotStarted:
		return "not_started"
	case RoutineRunning:
		return "running"
	case RoutineCompleted:
		return "completed"
	case RoutineFaulted:
		return "faulted"
	case RoutineCanceled:
		return "canceled"
	case RoutineOwnerGone:
		return "owner_gone"
	default:
		return "unknown"
	}
}

// =============================================================================
// routineRunner
// =============================================================================

type routineBinding struct {
	item  WorkItem
	cycle Cycle
	state RoutineState
	steps int

	lastKnownAlive bool

	cyclesLeft int
	wakeAt     time.Time
	cond       func() bool
}

// routineRunner drives routines on the main context. Bindings are owned by
// exactly one holder at a time: a per-cycle list (under mu) or the drain that
// took them out of it.
type routineRunner struct {
	d *Dispatcher

	mu       sync.Mutex
	active   [numCycles][]*routineBinding
	incoming [numCycles][]*routineBinding
	closed   bool

	running atomic.Int64
}

func newRoutineRunner(d *Dispatcher) *routineRunner {
	return &routineRunner{d: d}
}

func (r *routineRunner) count() int {
	return int(r.running.Load())
}

// start binds a drained routine item and runs its first step.
func (r *routineRunner) start(item WorkItem, cycle Cycle) {
	b := &routineBinding{
		item:  item,
		cycle: cycle,
		state: RoutineRunning,
	}
	r.running.Add(1)

	if r.advance(b) {
		return
	}

	r.mu.Lock()
	if !r.closed {
		r.incoming[cycle] = append(r.incoming[cycle], b)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.finish(b, RoutineCanceled, ErrEngineShutdown)
}

// stepCycle advances every routine bound to cycle that was running before
// this drain. Routines started during the drain wait for the next one.
func (r *routineRunner) stepCycle(cycle Cycle) {
	r.mu.Lock()
	batch := r.active[cycle]
	r.active[cycle] = nil
	r.mu.Unlock()

	survivors := batch[:0]
	for _, b := range batch {
		if !r.advance(b) {
			survivors = append(survivors, b)
		}
	}

	r.mu.Lock()
	if r.closed {
		incoming := r.incoming[cycle]
		r.incoming[cycle] = nil
		r.mu.Unlock()
		for _, b := range append(survivors, incoming...) {
			r.finish(b, RoutineCanceled, ErrEngineShutdown)
		}
		return
	}
	r.active[cycle] = append(r.active[cycle], survivors...)
	r.active[cycle] = append(r.active[cycle], r.incoming[cycle]...)
	r.incoming[cycle] = nil
	r.mu.Unlock()
}

// advance checks liveness and cancellation, then runs one step if the
// binding's wait condition is met. It reports whether the routine finished.
func (r *routineRunner) advance(b *routineBinding) bool {
	if r.d.ctx.Err() != nil {
		r.finish(b, RoutineCanceled, ErrEngineShutdown)
		return true
	}

	owner := b.item.owner
	b.lastKnownAlive = owner.Alive()
	if !b.lastKnownAlive {
		r.finish(b, RoutineOwnerGone, &OwnerGoneError{
			Owner:      owner.ID,
			OwnerName:  owner.Name,
			StepsRun:   b.steps,
			RoutineTag: b.item.name,
		})
		return true
	}

	if cause := r.d.cancellationCause(b.item.ctx); cause != nil {
		r.finish(b, RoutineCanceled, cause)
		return true
	}

	ok, err := r.ready(b)
	if err != nil {
		r.finish(b, RoutineFaulted, err)
		return true
	}
	if !ok {
		return false
	}

	instr, err := r.step(b)
	b.steps++
	if err != nil {
		r.finish(b, RoutineFaulted, err)
		return true
	}

	switch instr.kind {
	case instrDone:
		r.finish(b, RoutineCompleted, nil)
		return true
	case instrWaitCycles:
		b.cyclesLeft = instr.cycles
	case instrWaitFor:
		b.wakeAt = r.d.clock.Now().Add(instr.delay)
	case instrWaitUntil:
		b.cond = instr.cond
	}
	return false
}

// ready consumes the binding's wait condition for this drain. A panicking
// WaitUntil condition faults the routine.
func (r *routineRunner) ready(b *routineBinding) (bool, error) {
	if b.steps == 0 {
		return true, nil
	}
	if b.cyclesLeft > 0 {
		b.cyclesLeft--
		if b.cyclesLeft > 0 {
			return false, nil
		}
	}
	if !b.wakeAt.IsZero() {
		if r.d.clock.Now().Before(b.wakeAt) {
			return false, nil
		}
		b.wakeAt = time.Time{}
	}
	if b.cond != nil {
		ok, err := evalCondition(b.cond)
		if err != nil || !ok {
			return false, err
		}
		b.cond = nil
	}
	return true, nil
}

func evalCondition(cond func() bool) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return cond(), nil
}

func (r *routineRunner) step(b *routineBinding) (Instruction, error) {
	var instr Instruction
	item := b.item
	ctx, release := withMainContext(item.ctx, r.d, b.cycle)
	defer release()
	_, err := r.d.invoke(ctx, item, b.cycle, func(ctx context.Context) (any, error) {
		var stepErr error
		instr, stepErr = item.routine.Step(ctx)
		return nil, stepErr
	})
	return instr, err
}

func (r *routineRunner) finish(b *routineBinding, state RoutineState, err error) {
	b.state = state
	r.running.Add(-1)

	d := r.d
	switch state {
	case RoutineCompleted:
		d.settle(b.item, StateResolved, nil, nil)
	case RoutineCanceled:
		d.settle(b.item, StateCanceled, nil, err)
	case RoutineOwnerGone:
		d.logger.Info("routine owner gone",
			F("dispatcher", d.Name()),
			F("item", b.item.id.String()),
			F("owner", b.item.owner.String()),
			F("steps", b.steps),
		)
		d.settle(b.item, StateFaulted, nil, err)
	default:
		d.logger.Debug("routine faulted",
			F("dispatcher", d.Name()),
			F("item", b.item.id.String()),
			F("steps", b.steps),
			F("error", err),
		)
		d.settle(b.item, StateFaulted, nil, err)
	}
}

// shutdown cancels every routine not currently being stepped and returns how
// many were canceled. Routines inside a drain are canceled by that drain.
func (r *routineRunner) shutdown() int {
	r.mu.Lock()
	r.closed = true
	var parked []*routineBinding
	for c := range numCycles {
		parked = append(parked, r.active[c]...)
		parked = append(parked, r.incoming[c]...)
		r.active[c] = nil
		r.incoming[c] = nil
	}
	r.mu.Unlock()

	for _, b := range parked {
		r.finish(b, RoutineCanceled, ErrEngineShutdown)
	}
	return len(parked)
}

// =============================================================================
// Owners
// =============================================================================

// OwnerID identifies a host object routines can be attached to.
type OwnerID uint64

func (id OwnerID) String() string {
	return fmt.Sprintf("owner-%d", uint64(id))
}

// Liveness answers whether a host object is still a valid routine target.
type Liveness interface {
	IsAlive(id OwnerID) bool
}

// Owner is a non-owning handle to a host object: an id plus the liveness
// source to query. It never keeps the host object alive.
type Owner struct {
	ID       OwnerID
	Name     string
	Liveness Liveness
}

// IsZero reports whether o is unset.
func (o Owner) IsZero() bool {
	return o.Liveness == nil
}

// Alive queries liveness. The zero Owner is never alive.
func (o Owner) Alive() bool {
	if o.Liveness == nil {
		return false
	}
	return o.Liveness.IsAlive(o.ID)
}

func (o Owner) String() string {
	if o.Name != "" {
		return o.Name
	}
	return o.ID.String()
}

type ownerEntry struct {
	name   string
	active bool
}

// OwnerRegistry is an in-process table of host objects. Destroyed or
// inactive objects are not alive.
type OwnerRegistry struct {
	mu     sync.RWMutex
	next   OwnerID
	owners map[OwnerID]*ownerEntry
}

func NewOwnerRegistry() *OwnerRegistry {
	return &OwnerRegistry{owners: make(map[OwnerID]*ownerEntry)}
}

// Register adds an active host object and returns its handle.
func (r *OwnerRegistry) Register(name string) Owner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	r.owners[id] = &ownerEntry{name: name, active: true}
	return Owner{ID: id, Name: name, Liveness: r}
}

// Destroy removes the host object. Routines bound to it stop before their
// next step.
func (r *OwnerRegistry) Destroy(id OwnerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners, id)
}

// SetActive enables or disables a host object without destroying it.
func (r *OwnerRegistry) SetActive(id OwnerID, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.owners[id]; ok {
		e.active = active
	}
}

func (r *OwnerRegistry) IsAlive(id OwnerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.owners[id]
	return ok && e.active
}

// Len returns the number of registered host objects.
func (r *OwnerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owners)
}
