package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Swind/go-cycle-dispatcher/core"
)

func newQuietDispatcher(t *testing.T) *core.Dispatcher {
	t.Helper()
	cfg := core.DefaultDispatcherConfig()
	cfg.Name = t.Name()
	d := core.NewDispatcher(cfg)
	t.Cleanup(d.Shutdown)
	return d
}

func awaitT[T any](t *testing.T, f *core.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.Await(ctx)
}

// TestInvokeAdapters verifies every call shape reaches the main context
// Main test items:
// 1. Invoke / InvokeOn / InvokeCtx queue on the selected cycle
// 2. InvokeAsync / InvokeFunc / InvokeFuncErr settle their futures
// 3. Bind helpers capture arguments
func TestInvokeAdapters(t *testing.T) {
	d := newQuietDispatcher(t)
	var calls []string
	record := func(s string) { calls = append(calls, s) }

	Invoke(d, Bind1(record, "invoke"), WithCycle(CycleUpdate))
	InvokeOn(d, CycleUpdate, Bind1(record, "invoke-on"))
	InvokeCtx(d, func(ctx context.Context) {
		if IsMainContext(ctx) {
			record("invoke-ctx")
		}
	}, WithCycle(CycleUpdate))
	async := InvokeAsync(d, Bind1(record, "async"), WithCycle(CycleUpdate))
	sum := InvokeFunc(d, BindFunc2(func(a, b int) int { return a + b }, 2, 3), WithCycle(CycleUpdate))
	failed := InvokeFuncErr(d, func() (int, error) { return 0, errors.New("nope") }, WithCycle(CycleUpdate))

	if err := d.Drain(CycleUpdate); err != nil {
		t.Fatal(err)
	}

	want := []string{"invoke", "invoke-on", "invoke-ctx", "async"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
	if _, err := awaitT(t, async); err != nil {
		t.Errorf("InvokeAsync error = %v", err)
	}
	if v, err := awaitT(t, sum); err != nil || v != 5 {
		t.Errorf("InvokeFunc = (%d, %v), want (5, nil)", v, err)
	}
	if _, err := awaitT(t, failed); err == nil {
		t.Error("InvokeFuncErr should fault")
	}
}

func TestInvoke_NilFunctionFaults(t *testing.T) {
	d := newQuietDispatcher(t)
	if _, err := awaitT(t, InvokeAsync(d, nil)); !errors.Is(err, core.ErrNilPayload) {
		t.Errorf("InvokeAsync(nil) error = %v, want ErrNilPayload", err)
	}
	if _, err := awaitT(t, InvokeFunc[int](d, nil)); !errors.Is(err, core.ErrNilPayload) {
		t.Errorf("InvokeFunc(nil) error = %v, want ErrNilPayload", err)
	}
}

func TestInvoke_SuppressCancellation(t *testing.T) {
	d := newQuietDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := InvokeFunc(d, func() int { return 1 }, WithContext(ctx), SuppressCancellation())
	_ = d.Drain(CycleUpdate)

	if v, err := awaitT(t, f); v != 0 || err != nil {
		t.Errorf("Await() = (%d, %v), want (0, nil)", v, err)
	}
}

func TestInvokeRoutineAwaitCompletion(t *testing.T) {
	d := newQuietDispatcher(t)
	steps := 0
	routine := RoutineFunc(func(ctx context.Context) (Instruction, error) {
		steps++
		if steps == 2 {
			return Done(), nil
		}
		return NextCycle(), nil
	})

	f := InvokeRoutineAwaitCompletion(d, routine, Owner{}, WithCycle(CycleTick))
	InvokeRoutine(d, Steps(func(ctx context.Context) error { return nil }), Owner{}, WithCycle(CycleTick))
	_ = d.Drain(CycleTick)
	_ = d.Drain(CycleTick)

	if _, err := awaitT(t, f); err != nil || steps != 2 {
		t.Errorf("routine = (%d steps, %v), want (2, nil)", steps, err)
	}
}

func TestInvokeExternal(t *testing.T) {
	d := newQuietDispatcher(t)
	future, bridge := core.NewPromise[string]()

	f := InvokeExternal(d, func() *core.Future[string] { return future }, WithCycle(CycleUpdate))
	_ = d.Drain(CycleUpdate)
	_ = bridge.Resolve("loaded")

	if v, err := awaitT(t, f); err != nil || v != "loaded" {
		t.Errorf("InvokeExternal = (%q, %v), want (loaded, nil)", v, err)
	}
}

func TestInline_RunsImmediately(t *testing.T) {
	d := newQuietDispatcher(t)
	var order []string

	Invoke(d, nil) // rejected as nil payload, must not disturb the drain
	InvokeCtx(d, func(ctx context.Context) {
		Invoke(d, func() { order = append(order, "inline") }, Inline(ctx))
		order = append(order, "after")
	}, WithCycle(CycleUpdate))
	_ = d.Drain(CycleUpdate)

	if len(order) != 2 || order[0] != "inline" {
		t.Errorf("order = %v, want [inline after]", order)
	}
}

func TestBindHelpers(t *testing.T) {
	var got int
	Bind2(func(a, b int) { got = a * b }, 6, 7)()
	if got != 42 {
		t.Errorf("Bind2 result = %d, want 42", got)
	}
	Bind3(func(a, b, c int) { got = a + b + c }, 1, 2, 3)()
	if got != 6 {
		t.Errorf("Bind3 result = %d, want 6", got)
	}
	if BindFunc1(func(s string) int { return len(s) }, "four")() != 4 {
		t.Error("BindFunc1 result wrong")
	}
}

// TestGlobalDispatcher verifies the singleton lifecycle and nil-d adapters
func TestGlobalDispatcher(t *testing.T) {
	// Arrange
	InitGlobalDispatcher(nil)
	first := GlobalDispatcher()
	InitGlobalDispatcher(nil)

	// Assert - second init is a no-op
	if GlobalDispatcher() != first {
		t.Fatal("InitGlobalDispatcher replaced an existing dispatcher")
	}

	// Act - nil d routes to the global dispatcher
	f := InvokeFunc(nil, func() string { return "global" }, WithCycle(CycleUpdate))
	_ = first.Drain(CycleUpdate)
	if v, err := awaitT(t, f); err != nil || v != "global" {
		t.Errorf("InvokeFunc(nil d) = (%q, %v)", v, err)
	}

	ShutdownGlobalDispatcher()
	if !first.IsClosed() {
		t.Error("global dispatcher not shut down")
	}

	defer func() {
		if recover() == nil {
			t.Error("GlobalDispatcher() after shutdown should panic")
		}
	}()
	GlobalDispatcher()
}
