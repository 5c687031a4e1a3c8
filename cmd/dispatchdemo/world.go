package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	dispatcher "github.com/Swind/go-cycle-dispatcher"
	"github.com/Swind/go-cycle-dispatcher/combinator"
	"github.com/Swind/go-cycle-dispatcher/core"
)

// world is the simulated game state. score and patrols are only touched on
// the main context.
type world struct {
	d       *core.Dispatcher
	owners  *core.OwnerRegistry
	logger  core.Logger
	timeout time.Duration

	score   int
	patrols int

	// pending is written by spawnLoop only and read after it returns.
	pending []*core.Future[struct{}]

	spawned   atomic.Int64
	ownerGone atomic.Int64
	timedOut  atomic.Int64
}

func newWorld(d *core.Dispatcher, logger core.Logger, timeout time.Duration) *world {
	return &world{
		d:       d,
		owners:  core.NewOwnerRegistry(),
		logger:  logger,
		timeout: timeout,
	}
}

// produce submits one score update per interval from a background goroutine
// and waits for the main context to apply it.
func (w *world) produce(ctx context.Context, id int, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		f := dispatcher.InvokeFunc(w.d, func() int {
			w.score++
			return w.score
		}, dispatcher.WithCycle(core.CycleUpdate), dispatcher.WithContext(ctx))

		score, err := combinator.IgnoreCanceled[int](combinator.Timeout(ctx, f, w.timeout))
		switch {
		case combinator.IsTimeout(err):
			w.timedOut.Add(1)
			w.logger.Warn("score update timed out", core.F("producer", id), core.F("timeout", w.timeout))
		case ctx.Err() != nil:
			return nil
		case err != nil:
			return fmt.Errorf("producer %d: %w", id, err)
		case score > 0:
			w.logger.Debug("score updated", core.F("producer", id), core.F("score", score))
		}
	}
}

// spawnLoop registers an enemy per interval, starts its patrol routine and
// destroys the previous enemy, so every patrol but the last ends with
// ErrOwnerGone.
func (w *world) spawnLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var previous core.Owner
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if !previous.IsZero() {
			w.owners.Destroy(previous.ID)
		}
		n := w.spawned.Add(1)
		previous = w.owners.Register(fmt.Sprintf("enemy-%d", n))
		w.pending = append(w.pending, w.spawnPatrol(previous))
	}
}

func (w *world) spawnPatrol(owner core.Owner) *core.Future[struct{}] {
	routine := dispatcher.RoutineFunc(func(ctx context.Context) (dispatcher.Instruction, error) {
		w.patrols++
		if w.patrols%10 == 0 {
			return dispatcher.WaitFor(50 * time.Millisecond), nil
		}
		return dispatcher.WaitCycles(2), nil
	})
	return dispatcher.InvokeRoutineAwaitCompletion(w.d, routine, owner,
		dispatcher.WithCycle(core.CycleUpdate))
}

// collectPatrols waits for every patrol to settle and counts the ones that
// ended because their owner was destroyed. Call after the dispatcher has
// shut down so the wait is bounded.
func (w *world) collectPatrols(ctx context.Context) int64 {
	_, errs := combinator.AwaitAllSettled(ctx, w.pending...)
	for _, err := range errs {
		if core.IsOwnerGone(err) {
			w.ownerGone.Add(1)
		}
	}
	return w.ownerGone.Load()
}
