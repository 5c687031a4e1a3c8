package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// DelayTarget receives delayed items once they are due.
type DelayTarget interface {
	PushDelayed(item WorkItem)
}

// DelayedItem is a work item scheduled for the future.
type DelayedItem struct {
	RunAt  time.Time
	Item   WorkItem
	Target DelayTarget
	index  int // for heap interface
}

// delayedItemHeap implements heap.Interface
type delayedItemHeap []*DelayedItem

func (h delayedItemHeap) Len() int           { return len(h) }
func (h delayedItemHeap) Less(i, j int) bool { return h[i].RunAt.Before(h[j].RunAt) }
func (h delayedItemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayedItemHeap) Push(x any) {
	n := len(*h)
	item := x.(*DelayedItem)
	item.index = n
	*h = append(*h, item)
}

func (h *delayedItemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *delayedItemHeap) Peek() *DelayedItem {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// DelayManager holds delayed items in a min-heap and hands each one to its
// target when due. A single timer goroutine serves all items.
type DelayManager struct {
	clock   Clock
	pq      delayedItemHeap
	mu      sync.Mutex
	stopped bool
	wakeup  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewDelayManager creates a manager that measures due times with clock.
// A nil clock uses SystemClock.
func NewDelayManager(clock Clock) *DelayManager {
	if clock == nil {
		clock = SystemClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	dm := &DelayManager{
		clock:  clock,
		pq:     make(delayedItemHeap, 0),
		wakeup: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	heap.Init(&dm.pq)
	go dm.loop()
	return dm
}

// AddDelayedItem schedules item for target after delay. It reports false
// when the manager has been stopped; the caller still owns item then.
func (dm *DelayManager) AddDelayedItem(item WorkItem, delay time.Duration, target DelayTarget) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.stopped {
		return false
	}

	entry := &DelayedItem{
		RunAt:  dm.clock.Now().Add(delay),
		Item:   item,
		Target: target,
	}
	heap.Push(&dm.pq, entry)

	if entry.index == 0 {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
	return true
}

func (dm *DelayManager) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		nextRun, ok := dm.calculateNextRun()
		if !ok {
			// Nothing scheduled
			nextRun = 1000 * time.Hour
		}

		timer.Reset(nextRun)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			dm.processExpired()
		case <-dm.wakeup:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// calculateNextRun returns how long until the earliest item is due.
// ok is false when the heap is empty.
func (dm *DelayManager) calculateNextRun() (wait time.Duration, ok bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := dm.pq.Peek()
	if item == nil {
		return 0, false
	}

	now := dm.clock.Now()
	if item.RunAt.Before(now) {
		return 0, true
	}
	return item.RunAt.Sub(now), true
}

// ProcessExpired hands every item due by the clock to its target. The timer
// goroutine calls it for real time; hosts on a manual clock call it after
// advancing the clock.
func (dm *DelayManager) ProcessExpired() {
	dm.processExpired()
}

// processExpired pops every due item and hands it to its target outside the lock.
func (dm *DelayManager) processExpired() {
	dm.mu.Lock()

	now := dm.clock.Now()
	var expired []*DelayedItem

	for dm.pq.Len() > 0 {
		item := dm.pq.Peek()
		if item.RunAt.After(now) {
			break
		}
		heap.Pop(&dm.pq)
		expired = append(expired, item)
	}

	dm.mu.Unlock()

	for _, item := range expired {
		item.Target.PushDelayed(item.Item)
	}
}

// Stop halts the timer goroutine and returns the items that never became due.
func (dm *DelayManager) Stop() []WorkItem {
	dm.cancel()

	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.stopped = true
	pending := make([]WorkItem, 0, len(dm.pq))
	for _, entry := range dm.pq {
		pending = append(pending, entry.Item)
	}
	dm.pq = make(delayedItemHeap, 0)
	heap.Init(&dm.pq)
	return pending
}

func (dm *DelayManager) TaskCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pq)
}
