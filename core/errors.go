package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// Sentinel errors
// =============================================================================

var (
	// ErrCanceled is matched by every cancellation outcome, including
	// cancellation caused by engine shutdown.
	ErrCanceled = errors.New("dispatch: work canceled")

	// ErrEngineShutdown is the cause attached to items canceled because the
	// dispatcher was shut down.
	ErrEngineShutdown = errors.New("dispatch: dispatcher is shut down")

	// ErrOwnerGone is matched by routine failures caused by the owning host
	// object no longer being alive.
	ErrOwnerGone = errors.New("dispatch: routine owner is no longer alive")

	// ErrDoubleResolution is returned when a Completion that already left
	// the pending state is resolved again.
	ErrDoubleResolution = errors.New("dispatch: completion already settled")

	// ErrReentrantDrain is returned by Drain when the same cycle is already
	// being drained.
	ErrReentrantDrain = errors.New("dispatch: re-entrant drain")

	// ErrUnknownCycle is returned for cycle values outside the enumeration.
	ErrUnknownCycle = errors.New("dispatch: unknown cycle")

	// ErrItemReused is the fault attached when a WorkItem is submitted twice.
	ErrItemReused = errors.New("dispatch: work item already submitted")

	// ErrNilPayload is the fault attached to items without a payload.
	ErrNilPayload = errors.New("dispatch: work item has no payload")
)

// =============================================================================
// CanceledError
// =============================================================================

// CanceledError is returned by Future.Await for canceled items.
// Cause is the reason (context error, ErrEngineShutdown, ...), may be nil.
type CanceledError struct {
	Cause error
}

func (e *CanceledError) Error() string {
	if e.Cause == nil {
		return ErrCanceled.Error()
	}
	return fmt.Sprintf("%s: %v", ErrCanceled.Error(), e.Cause)
}

// Is reports ErrCanceled so callers can match without errors.As.
func (e *CanceledError) Is(target error) bool {
	return target == ErrCanceled
}

func (e *CanceledError) Unwrap() error {
	return e.Cause
}

// IsCanceled reports whether err is a cancellation outcome.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// =============================================================================
// OwnerGoneError
// =============================================================================

// OwnerGoneError reports that a routine stopped because its owner was
// found not alive before a step. It signals teardown, not a logic bug.
type OwnerGoneError struct {
	Owner      OwnerID
	OwnerName  string
	StepsRun   int
	RoutineTag string
}

func (e *OwnerGoneError) Error() string {
	name := e.OwnerName
	if name == "" {
		name = e.Owner.String()
	}
	if e.RoutineTag != "" {
		return fmt.Sprintf("%s (owner=%s, routine=%s, steps=%d)", ErrOwnerGone.Error(), name, e.RoutineTag, e.StepsRun)
	}
	return fmt.Sprintf("%s (owner=%s, steps=%d)", ErrOwnerGone.Error(), name, e.StepsRun)
}

func (e *OwnerGoneError) Is(target error) bool {
	return target == ErrOwnerGone
}

// IsOwnerGone reports whether err is an owner-gone routine outcome.
func IsOwnerGone(err error) bool {
	return errors.Is(err, ErrOwnerGone)
}

// =============================================================================
// PanicError
// =============================================================================

// PanicError wraps a value recovered from a panicking payload.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("dispatch: payload panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
