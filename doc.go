// Package dispatcher schedules work from any goroutine onto a single main
// context that a host loop drains at fixed points of every frame.
//
// The model comes from game engines: gameplay state may only be touched from
// the main loop, but network handlers, loaders and timers live on other
// goroutines. Those goroutines submit work items to a Dispatcher; the host
// calls Drain(cycle) at the matching point of its frame and the queued items
// run there, synchronously, in submission order.
//
// # Quick Start
//
// Initialize the global dispatcher and a host loop at startup:
//
//	dispatcher.InitGlobalDispatcher(nil)
//	defer dispatcher.ShutdownGlobalDispatcher()
//
//	loop := dispatcher.NewHostLoop(dispatcher.GlobalDispatcher(), nil)
//	loop.Start(ctx)
//	defer loop.Stop()
//
// Hand work to the main context from anywhere:
//
//	dispatcher.InvokeOn(nil, dispatcher.CycleLateUpdate, func() {
//		hud.SetScore(score)
//	})
//
//	hp, err := dispatcher.InvokeFunc(nil, player.Health).Await(ctx)
//
// # Key Concepts
//
// Cycle: a named point of the host's frame (Update, FixedUpdate, LateUpdate,
// Tick). Items submitted to CycleDefault run on whichever cycle is drained
// next.
//
// WorkItem: one unit of work. It carries an action, a result-producing
// function, a cooperative Routine, or an external async operation.
//
// Future: the caller's handle. It settles exactly once: resolved with the
// item's value, faulted with its error or panic, or canceled.
//
// Routine: a multi-step unit of work. It runs one step per drain of its cycle
// and stops before the next step once its Owner is gone.
//
// # Thread Safety
//
// Submission is safe from any goroutine and never blocks. Drain must only be
// called by the host; payloads run on the goroutine that called Drain and may
// touch main-context state without locks.
//
// Timeouts and error filters over futures live in the combinator package.
package dispatcher
