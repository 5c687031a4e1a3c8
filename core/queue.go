package core

import (
	"sync"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when the last drain used < cap/4
)

// =============================================================================
// CycleQueue: double-buffered FIFO for one cycle
// =============================================================================

// CycleQueue accepts items from any goroutine and hands them to the single
// main-context consumer in push order.
//
// Producers append to the front buffer under mu. DrainSnapshot swaps the
// front buffer with the spare one, so the lock is held only for the swap and
// never while items execute. The consumer must hand the snapshot back with
// Recycle once it is done with it.
type CycleQueue struct {
	cycle Cycle

	mu    sync.Mutex
	items []WorkItem
	spare []WorkItem
}

func NewCycleQueue(cycle Cycle) *CycleQueue {
	return &CycleQueue{
		cycle: cycle,
		items: make([]WorkItem, 0, defaultQueueCap),
	}
}

// Cycle returns the cycle this queue serves.
func (q *CycleQueue) Cycle() Cycle {
	return q.cycle
}

// Push appends item. Safe for concurrent use.
func (q *CycleQueue) Push(item WorkItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// DrainSnapshot takes every queued item and leaves the queue empty.
// The returned slice is owned by the caller until passed to Recycle.
func (q *CycleQueue) DrainSnapshot() []WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	batch := q.items
	if q.spare != nil {
		q.items = q.spare
		q.spare = nil
	} else {
		q.items = make([]WorkItem, 0, defaultQueueCap)
	}
	return batch
}

// Recycle returns a drained snapshot so its backing array can take the next
// round of pushes.
func (q *CycleQueue) Recycle(batch []WorkItem) {
	if batch == nil {
		return
	}
	// Zero out the elements in the underlying array to prevent memory leak
	clear(batch)
	batch = maybeCompact(batch[:0], len(batch))

	q.mu.Lock()
	if q.spare == nil {
		q.spare = batch
	}
	q.mu.Unlock()
}

// maybeCompact shrinks an emptied buffer whose capacity far exceeds what the
// last drain needed.
func maybeCompact(buf []WorkItem, used int) []WorkItem {
	c := cap(buf)
	if c < compactMinCap {
		return buf
	}
	if used*compactShrinkFactor >= c {
		return buf
	}
	newCap := max(max(c/2, defaultQueueCap), used)
	return make([]WorkItem, 0, newCap)
}

// Len returns the number of queued items.
func (q *CycleQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *CycleQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Clear removes and returns all queued items.
func (q *CycleQueue) Clear() []WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	removed := q.items
	q.items = make([]WorkItem, 0, defaultQueueCap)
	return removed
}
