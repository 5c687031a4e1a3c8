package dispatcher

import "github.com/Swind/go-cycle-dispatcher/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the dispatcher package for most use cases.

// Dispatcher schedules work onto the main context
type Dispatcher = core.Dispatcher

// DispatcherConfig configures handlers, clock and history for a Dispatcher
type DispatcherConfig = core.DispatcherConfig

// WorkItem is the unit of schedulable work
type WorkItem = core.WorkItem

// Task is the fire-and-forget payload (Closure)
type Task = core.Task

// Cycle names a point of the host loop
type Cycle = core.Cycle

// DispatchOptions configures one submission
type DispatchOptions = core.DispatchOptions

// Completion is the executing side of a result bridge
type Completion = core.Completion

// Future is the awaiting side of a result bridge
type Future[T any] = core.Future[T]

// TaskWithResult and ReplyWithResult for generic SubmitAndReply pattern
type TaskWithResult[T any] = core.TaskWithResult[T]
type ReplyWithResult[T any] = core.ReplyWithResult[T]

// ExternalTask starts an async operation on the main context
type ExternalTask[T any] = core.ExternalTask[T]

// Routine is a cooperative multi-step unit of work
type Routine = core.Routine

// RoutineFunc adapts a function to Routine
type RoutineFunc = core.RoutineFunc

// Instruction tells the routine runner when to resume
type Instruction = core.Instruction

// Owner is a non-owning handle to the host object a routine runs on
type Owner = core.Owner

// OwnerRegistry is an in-process table of live host objects
type OwnerRegistry = core.OwnerRegistry

// HostLoop drains a dispatcher from a dedicated goroutine
type HostLoop = core.HostLoop

// HostLoopConfig configures frame pacing
type HostLoopConfig = core.HostLoopConfig

// Cycle constants
const (
	CycleDefault     = core.CycleDefault
	CycleUpdate      = core.CycleUpdate
	CycleFixedUpdate = core.CycleFixedUpdate
	CycleLateUpdate  = core.CycleLateUpdate
	CycleTick        = core.CycleTick
)

// Errors matched with errors.Is
var (
	ErrCanceled       = core.ErrCanceled
	ErrEngineShutdown = core.ErrEngineShutdown
	ErrOwnerGone      = core.ErrOwnerGone
)

// Routine instructions
var (
	Done       = core.Done
	NextCycle  = core.NextCycle
	WaitCycles = core.WaitCycles
	WaitFor    = core.WaitFor
	WaitUntil  = core.WaitUntil
	Steps      = core.Steps
)

// Constructors and context helpers
var (
	NewDispatcher           = core.NewDispatcher
	DefaultDispatcherConfig = core.DefaultDispatcherConfig
	NewHostLoop             = core.NewHostLoop
	DefaultHostLoopConfig   = core.DefaultHostLoopConfig
	NewOwnerRegistry        = core.NewOwnerRegistry
	NewActionItem           = core.NewActionItem
	NewRoutineItem          = core.NewRoutineItem
	OnCycle                 = core.OnCycle
	ParseCycle              = core.ParseCycle
	GetCurrentDispatcher    = core.GetCurrentDispatcher
	CurrentCycle            = core.CurrentCycle
	IsMainContext           = core.IsMainContext
	IsCanceled              = core.IsCanceled
	IsOwnerGone             = core.IsOwnerGone
)
