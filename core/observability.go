package core

import "time"

// TaskExecutionRecord captures one payload invocation on the main context.
// Routines produce one record per step.
type TaskExecutionRecord struct {
	WorkID     WorkID
	Name       string
	Kind       WorkKind
	Dispatcher string
	Cycle      Cycle
	QueuedAt   time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
	Err        error
}

// DispatcherStats represents runtime observability state for a dispatcher.
type DispatcherStats struct {
	Name            string
	Type            string
	Pending         int
	PendingByCycle  map[string]int
	RunningRoutines int
	Delayed         int
	Executed        int64
	Rejected        int64
	Closed          bool
	Draining        bool
	LastTaskName    string
	LastTaskAt      time.Time
}
