package core

import (
	"context"
	"sync"
	"testing"
)

func namedItem(name string) WorkItem {
	return NewActionItem(func(ctx context.Context) {}).WithName(name)
}

// TestCycleQueue_FIFO verifies push order is preserved
// Given: A queue with three pushed items
// When: DrainSnapshot is called
// Then: Items come back in push order and the queue is empty
func TestCycleQueue_FIFO(t *testing.T) {
	// Arrange
	q := NewCycleQueue(CycleUpdate)
	q.Push(namedItem("a"))
	q.Push(namedItem("b"))
	q.Push(namedItem("c"))

	// Act
	batch := q.DrainSnapshot()

	// Assert
	if len(batch) != 3 {
		t.Fatalf("len(batch) = %d, want 3", len(batch))
	}
	for i, want := range []string{"a", "b", "c"} {
		if batch[i].Name() != want {
			t.Errorf("batch[%d] = %q, want %q", i, batch[i].Name(), want)
		}
	}
	if !q.IsEmpty() {
		t.Errorf("queue not empty after drain: len = %d", q.Len())
	}
}

// TestCycleQueue_PushDuringSnapshot verifies items pushed after a snapshot
// land in the next one
func TestCycleQueue_PushDuringSnapshot(t *testing.T) {
	q := NewCycleQueue(CycleUpdate)
	q.Push(namedItem("first"))

	batch := q.DrainSnapshot()
	q.Push(namedItem("second"))

	if len(batch) != 1 || batch[0].Name() != "first" {
		t.Fatalf("first snapshot = %v, want [first]", batch)
	}
	q.Recycle(batch)

	next := q.DrainSnapshot()
	if len(next) != 1 || next[0].Name() != "second" {
		t.Fatalf("second snapshot has %d items, want [second]", len(next))
	}
}

func TestCycleQueue_EmptySnapshotIsNil(t *testing.T) {
	q := NewCycleQueue(CycleTick)
	if batch := q.DrainSnapshot(); batch != nil {
		t.Errorf("DrainSnapshot() on empty queue = %v, want nil", batch)
	}
	q.Recycle(nil)
}

// TestCycleQueue_RecycleReusesBuffer verifies the drained buffer is handed back
// to producers and cleared
func TestCycleQueue_RecycleReusesBuffer(t *testing.T) {
	q := NewCycleQueue(CycleUpdate)
	for range 4 {
		q.Push(namedItem("x"))
	}

	batch := q.DrainSnapshot()
	backing := &batch[0]
	q.Recycle(batch)

	if batch[0].Name() != "" {
		t.Errorf("recycled buffer not cleared: %q", batch[0].Name())
	}

	// The spare buffer becomes the front buffer on the next snapshot swap.
	q.Push(namedItem("y"))
	_ = q.DrainSnapshot()
	q.Push(namedItem("z"))
	next := q.DrainSnapshot()
	if &next[0] != backing {
		t.Errorf("recycled buffer was not reused")
	}
}

func TestMaybeCompact(t *testing.T) {
	tests := []struct {
		name    string
		cap     int
		used    int
		wantCap int
	}{
		{"small buffer untouched", 32, 1, 32},
		{"well used buffer untouched", 256, 100, 256},
		{"sparse buffer shrinks", 256, 10, 128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := maybeCompact(make([]WorkItem, 0, tt.cap), tt.used)
			if cap(got) != tt.wantCap {
				t.Errorf("cap = %d, want %d", cap(got), tt.wantCap)
			}
		})
	}
}

func TestCycleQueue_Clear(t *testing.T) {
	q := NewCycleQueue(CycleLateUpdate)
	q.Push(namedItem("a"))
	q.Push(namedItem("b"))

	removed := q.Clear()

	if len(removed) != 2 {
		t.Errorf("len(removed) = %d, want 2", len(removed))
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", q.Len())
	}
	if q.Clear() != nil {
		t.Errorf("second Clear() should return nil")
	}
}

// TestCycleQueue_ConcurrentPush verifies no item is lost under contention
func TestCycleQueue_ConcurrentPush(t *testing.T) {
	q := NewCycleQueue(CycleUpdate)
	const producers, perProducer = 8, 250

	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perProducer {
				q.Push(namedItem("p"))
			}
		}()
	}

	total := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		batch := q.DrainSnapshot()
		total += len(batch)
		q.Recycle(batch)
		select {
		case <-done:
			total += len(q.DrainSnapshot())
			if total != producers*perProducer {
				t.Fatalf("drained %d items, want %d", total, producers*perProducer)
			}
			return
		default:
		}
	}
}
