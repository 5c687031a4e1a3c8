package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling payload panics
// =============================================================================

// PanicHandler is called when a payload panics during a drain. The panic is
// still captured into the item's completion as a *PanicError.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a payload panics.
	//
	// Parameters:
	// - ctx: The main context handed to the payload
	// - dispatcherName: The name of the dispatcher draining the item
	// - cycle: The cycle being drained
	// - panicInfo: The panic value recovered from the payload
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, dispatcherName string, cycle Cycle, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, dispatcherName string, cycle Cycle, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Dispatcher %s @ %s] Panic: %v\nStack trace:\n%s",
		dispatcherName, cycle, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting dispatch metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast; they run on the main context.
type Metrics interface {
	// RecordTaskDuration records how long one payload invocation took.
	// For routines this is one step.
	RecordTaskDuration(dispatcherName string, cycle string, kind string, duration time.Duration)

	// RecordTaskPanic records that a payload panicked.
	RecordTaskPanic(dispatcherName string, panicInfo any)

	// RecordQueueDepth records how many items a drain took from a queue.
	RecordQueueDepth(dispatcherName string, cycle string, depth int)

	// RecordTaskRejected records that a submission was rejected (e.g., during shutdown).
	RecordTaskRejected(dispatcherName string, reason string)

	// RecordTaskOutcome records the terminal state of an item's completion.
	RecordTaskOutcome(dispatcherName string, cycle string, state string)

	// RecordDoubleResolution records an attempt to settle a completion twice.
	RecordDoubleResolution(dispatcherName string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(dispatcherName string, cycle string, kind string, duration time.Duration) {
}
func (m *NilMetrics) RecordTaskPanic(dispatcherName string, panicInfo any)              {}
func (m *NilMetrics) RecordQueueDepth(dispatcherName string, cycle string, depth int)   {}
func (m *NilMetrics) RecordTaskRejected(dispatcherName string, reason string)           {}
func (m *NilMetrics) RecordTaskOutcome(dispatcherName string, cycle string, state string) {}
func (m *NilMetrics) RecordDoubleResolution(dispatcherName string)                      {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected submissions
// =============================================================================

// RejectedTaskHandler is called when a submission is rejected because the
// dispatcher is shutting down. The item's completion is canceled either way.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(dispatcherName string, reason string)
}

// DefaultRejectedTaskHandler provides a basic handler that logs rejected tasks.
type DefaultRejectedTaskHandler struct{}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(dispatcherName string, reason string) {
	fmt.Printf("[Dispatcher %s] Task rejected: %s\n", dispatcherName, reason)
}

// =============================================================================
// DispatcherConfig: Configuration for Dispatcher
// =============================================================================

// DispatcherConfig holds configuration options for Dispatcher.
// All handlers are optional; if not provided, default implementations will be used.
type DispatcherConfig struct {
	// Name labels logs, metrics and history. Defaults to "dispatcher".
	Name string

	// PanicHandler is called when a payload panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record dispatch metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a submission is rejected. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// Logger receives structured diagnostics. Defaults to NoOpLogger.
	Logger Logger

	// Clock measures time-based routine waits. Defaults to SystemClock.
	Clock Clock

	// HistoryCapacity bounds the execution history ring buffer.
	HistoryCapacity int

	// StrictCompletion panics on double resolution instead of only reporting it.
	StrictCompletion bool
}

// DefaultDispatcherConfig returns a config with default handlers.
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		Name:                "dispatcher",
		PanicHandler:        &DefaultPanicHandler{},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{},
		Logger:              NewNoOpLogger(),
		Clock:               SystemClock{},
		HistoryCapacity:     defaultTaskHistoryCapacity,
	}
}
