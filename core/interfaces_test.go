package core

import (
	"context"
	"testing"
	"time"
)

func TestDefaultPanicHandler(t *testing.T) {
	// Given: A DefaultPanicHandler
	handler := &DefaultPanicHandler{}

	// When: HandlePanic is called
	handler.HandlePanic(context.Background(), "test-dispatcher", CycleUpdate, "test panic", []byte("stack trace"))

	// Then: No panic should occur (handler should not crash)
}

func TestNilMetrics(t *testing.T) {
	// Given: NilMetrics
	var m Metrics = &NilMetrics{}

	// When: every method is called
	// Then: nothing happens
	m.RecordTaskDuration("d", "Update", "action", time.Millisecond)
	m.RecordTaskPanic("d", "boom")
	m.RecordQueueDepth("d", "Update", 3)
	m.RecordTaskRejected("d", "shutdown")
	m.RecordTaskOutcome("d", "Update", "resolved")
	m.RecordDoubleResolution("d")
}

// TestNewDispatcher_FillsMissingHandlers verifies a partial config gets
// default handlers
// Main test items:
// 1. Nil handlers, logger and clock are replaced
// 2. An empty name falls back to "dispatcher"
// 3. The dispatcher is usable immediately
func TestNewDispatcher_FillsMissingHandlers(t *testing.T) {
	// Arrange
	d := NewDispatcher(&DispatcherConfig{HistoryCapacity: 4})
	defer d.Shutdown()

	// Assert
	if d.Name() != "dispatcher" {
		t.Errorf("Name() = %q, want dispatcher", d.Name())
	}
	if d.logger == nil || d.metrics == nil || d.panicHandler == nil || d.rejectedTaskHandler == nil {
		t.Fatal("default handlers not installed")
	}
	if _, ok := d.Clock().(SystemClock); !ok {
		t.Errorf("Clock() = %T, want SystemClock", d.Clock())
	}

	// Act
	f := SubmitFunc(d, func(ctx context.Context) (string, error) { return "ok", nil }, OnCycle(CycleTick))
	mustDrain(t, d, CycleTick)

	if v, err := await(t, f); err != nil || v != "ok" {
		t.Errorf("Await() = (%q, %v), want (ok, nil)", v, err)
	}
}

func TestDefaultDispatcherConfig(t *testing.T) {
	cfg := DefaultDispatcherConfig()
	if cfg.Name == "" || cfg.HistoryCapacity != defaultTaskHistoryCapacity {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.StrictCompletion {
		t.Error("StrictCompletion should default to false")
	}
}

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	if got := c.Advance(3 * time.Second); !got.Equal(start.Add(3 * time.Second)) {
		t.Errorf("Advance() = %v", got)
	}
	c.Set(start)
	if !c.Now().Equal(start) {
		t.Errorf("Now() after Set = %v, want %v", c.Now(), start)
	}
}

func TestLeveledLogger_Filters(t *testing.T) {
	// Given: a logger at Warn
	l := NewLeveledLogger(LevelWarn)

	// Then: its minimum is kept and lower levels are dropped without output
	if l.min != LevelWarn {
		t.Errorf("min = %v, want WARN", l.min)
	}
	l.Debug("dropped")
	l.Info("dropped")
}
