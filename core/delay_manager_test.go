package core

import (
	"sync"
	"testing"
	"time"
)

type collectingTarget struct {
	mu    sync.Mutex
	names []string
}

func (c *collectingTarget) PushDelayed(item WorkItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, item.Name())
}

func (c *collectingTarget) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}

// TestDelayManager_DeliversInDueOrder verifies items reach the target earliest first
// Given: Three items added out of due order
// When: All delays elapse
// Then: The target receives them ordered by due time
func TestDelayManager_DeliversInDueOrder(t *testing.T) {
	// Arrange
	dm := NewDelayManager(nil)
	defer dm.Stop()
	target := &collectingTarget{}

	// Act
	dm.AddDelayedItem(namedItem("c"), 60*time.Millisecond, target)
	dm.AddDelayedItem(namedItem("a"), 10*time.Millisecond, target)
	dm.AddDelayedItem(namedItem("b"), 30*time.Millisecond, target)

	// Assert
	waitFor(t, time.Second, func() bool { return len(target.Names()) == 3 })
	got := target.Names()
	for i, want := range []string{"a", "b", "c"} {
		if got[i] != want {
			t.Errorf("delivery %d = %q, want %q", i, got[i], want)
		}
	}
	if dm.TaskCount() != 0 {
		t.Errorf("TaskCount() = %d, want 0", dm.TaskCount())
	}
}

func TestDelayManager_BatchProcessing(t *testing.T) {
	dm := NewDelayManager(nil)
	defer dm.Stop()
	target := &collectingTarget{}

	for range 100 {
		dm.AddDelayedItem(namedItem("batch"), 20*time.Millisecond, target)
	}

	waitFor(t, time.Second, func() bool { return len(target.Names()) == 100 })
}

// TestDelayManager_StopReturnsPending verifies undelivered items are handed back
func TestDelayManager_StopReturnsPending(t *testing.T) {
	dm := NewDelayManager(nil)
	target := &collectingTarget{}
	dm.AddDelayedItem(namedItem("x"), time.Hour, target)
	dm.AddDelayedItem(namedItem("y"), time.Hour, target)

	pending := dm.Stop()

	if len(pending) != 2 {
		t.Fatalf("Stop() returned %d items, want 2", len(pending))
	}
	if dm.TaskCount() != 0 {
		t.Errorf("TaskCount() = %d after Stop, want 0", dm.TaskCount())
	}
	if dm.AddDelayedItem(namedItem("z"), time.Millisecond, target) {
		t.Error("AddDelayedItem() accepted an item after Stop")
	}
	if len(target.Names()) != 0 {
		t.Errorf("target received %v after Stop", target.Names())
	}
}

// TestDelayManager_ManualClock verifies due times follow the injected clock
// Main test items:
// 1. Nothing is delivered while the manual clock stands still
// 2. ProcessExpired delivers exactly the items due after Advance
func TestDelayManager_ManualClock(t *testing.T) {
	// Arrange
	clock := NewManualClock(time.Unix(1000, 0))
	dm := NewDelayManager(clock)
	defer dm.Stop()
	target := &collectingTarget{}

	dm.AddDelayedItem(namedItem("soon"), time.Second, target)
	dm.AddDelayedItem(namedItem("later"), time.Minute, target)

	// Act
	time.Sleep(20 * time.Millisecond)
	dm.ProcessExpired()
	if n := len(target.Names()); n != 0 {
		t.Fatalf("delivered %d items before the clock moved, want 0", n)
	}

	clock.Advance(time.Second)
	dm.ProcessExpired()

	// Assert
	if got := target.Names(); len(got) != 1 || got[0] != "soon" {
		t.Errorf("delivered %v, want [soon]", got)
	}
	if dm.TaskCount() != 1 {
		t.Errorf("TaskCount() = %d, want 1", dm.TaskCount())
	}
}
