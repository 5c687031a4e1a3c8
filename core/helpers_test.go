package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

// recordingPanicHandler captures panics instead of printing them.
type recordingPanicHandler struct {
	mu     sync.Mutex
	values []any
	cycles []Cycle
}

func (h *recordingPanicHandler) HandlePanic(ctx context.Context, dispatcherName string, cycle Cycle, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values = append(h.values, panicInfo)
	h.cycles = append(h.cycles, cycle)
}

func (h *recordingPanicHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.values)
}

type recordingRejectedHandler struct {
	mu      sync.Mutex
	reasons []string
}

func (h *recordingRejectedHandler) HandleRejectedTask(dispatcherName string, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reasons = append(h.reasons, reason)
}

func (h *recordingRejectedHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.reasons)
}

// recordingMetrics counts metric calls by kind.
type recordingMetrics struct {
	mu        sync.Mutex
	durations int
	panics    int
	rejected  int
	doubles   int
	outcomes  map[string]int
	depths    map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		outcomes: make(map[string]int),
		depths:   make(map[string]int),
	}
}

func (m *recordingMetrics) RecordTaskDuration(dispatcherName string, cycle string, kind string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations++
}

func (m *recordingMetrics) RecordTaskPanic(dispatcherName string, panicInfo any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics++
}

func (m *recordingMetrics) RecordQueueDepth(dispatcherName string, cycle string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depths[cycle] += depth
}

func (m *recordingMetrics) RecordTaskRejected(dispatcherName string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected++
}

func (m *recordingMetrics) RecordTaskOutcome(dispatcherName string, cycle string, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[state]++
}

func (m *recordingMetrics) RecordDoubleResolution(dispatcherName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doubles++
}

func (m *recordingMetrics) Outcome(state CompletionState) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[state.String()]
}

type testDispatcher struct {
	*Dispatcher
	panics   *recordingPanicHandler
	rejected *recordingRejectedHandler
	metrics  *recordingMetrics
}

// newTestDispatcher creates a dispatcher with recording handlers. It is shut
// down when the test ends.
func newTestDispatcher(t *testing.T, configure ...func(*DispatcherConfig)) *testDispatcher {
	t.Helper()

	td := &testDispatcher{
		panics:   &recordingPanicHandler{},
		rejected: &recordingRejectedHandler{},
		metrics:  newRecordingMetrics(),
	}
	cfg := DefaultDispatcherConfig()
	cfg.Name = t.Name()
	cfg.PanicHandler = td.panics
	cfg.RejectedTaskHandler = td.rejected
	cfg.Metrics = td.metrics
	for _, fn := range configure {
		fn(cfg)
	}
	td.Dispatcher = NewDispatcher(cfg)
	t.Cleanup(td.Shutdown)
	return td
}

// await waits for f with a test timeout.
func await[T any](t *testing.T, f *Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := f.Await(ctx)
	if err == context.DeadlineExceeded {
		t.Fatalf("future did not settle in time (state=%s)", f.State())
	}
	return v, err
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", timeout)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func mustDrain(t *testing.T, d *Dispatcher, cycle Cycle) {
	t.Helper()
	if err := d.Drain(cycle); err != nil {
		t.Fatalf("Drain(%s) error = %v", cycle, err)
	}
}
