package opz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestParallelAll(t *testing.T) {
	ctx := context.Background()

	t.Run("Collects Values In Declaration Order", func(t *testing.T) {
		fan := Parallel("fan", PolicyAll,
			addOp(),
			mulOp(),
			Lift("diff", func(a, b int) int { return a - b }, Params("a", "b")),
		)
		res := Run(ctx, fan, 6, 2)
		v, err := res.Get()
		if err != nil {
			t.Fatalf("unexpected failure: %v", err)
		}
		values := v.([]any)
		if len(values) != 3 || values[0] != 8 || values[1] != 12 || values[2] != 4 {
			t.Errorf("expected [8 12 4], got %v", values)
		}
	})

	t.Run("First Failing Branch In Declaration Order Wins", func(t *testing.T) {
		err1 := errors.New("branch one down")
		err2 := errors.New("branch two down")
		slow := Lift("slow-fail", func(n int) (int, error) {
			time.Sleep(20 * time.Millisecond)
			return 0, err1
		}, Params("n"))
		fast := Lift("fast-fail", func(n int) (int, error) {
			return 0, err2
		}, Params("n"))

		// slow-fail is declared first; even though fast-fail settles first,
		// the composite reports the earlier declaration.
		res := Run(ctx, Parallel("fan", PolicyAll, slow, fast), 1)
		if !errors.Is(res.Error(), err1) {
			t.Errorf("expected the first declared failure, got %v", res.Error())
		}
	})

	t.Run("Single Branch", func(t *testing.T) {
		res := Run(ctx, Parallel("solo", PolicyAll, addOp()), 1, 2)
		v, _ := res.Get()
		values := v.([]any)
		if len(values) != 1 || values[0] != 3 {
			t.Errorf("expected [3], got %v", values)
		}
	})

	t.Run("Branch Panic Is Contained", func(t *testing.T) {
		bomb := Lift("bomb", func(n int) int { panic("branch bug") }, Params("n"))
		res := Run(ctx, Parallel("fan", PolicyAll, addOneOp(), bomb), 1)
		var fault *InvocationFault
		if !errors.As(res.Error(), &fault) {
			t.Fatalf("expected *InvocationFault, got %v", res.Error())
		}
	})
}

func TestParallelFirstSuccess(t *testing.T) {
	ctx := context.Background()

	t.Run("Earliest Declared Success Wins", func(t *testing.T) {
		fail := Lift("down", func(n int) (int, error) {
			return 0, errors.New("down")
		}, Params("n"))
		slowOK := Lift("slow-ok", func(n int) int {
			time.Sleep(20 * time.Millisecond)
			return n * 10
		}, Params("n"))
		fastOK := Lift("fast-ok", func(n int) int {
			return n * 100
		}, Params("n"))

		// slow-ok is declared before fast-ok, so it wins even though
		// fast-ok finishes first.
		res := Run(ctx, Parallel("race", PolicyFirstSuccess, fail, slowOK, fastOK), 1)
		if got := mustInt(t, res); got != 10 {
			t.Errorf("expected the earliest declared success, got %d", got)
		}
	})

	t.Run("All Failures Aggregate", func(t *testing.T) {
		err1 := errors.New("first down")
		err2 := errors.New("second down")
		f1 := Lift("f1", func(n int) (int, error) { return 0, err1 }, Params("n"))
		f2 := Lift("f2", func(n int) (int, error) { return 0, err2 }, Params("n"))

		res := Run(ctx, Parallel("race", PolicyFirstSuccess, f1, f2), 1)
		if res.IsOk() {
			t.Fatal("expected failure when every branch fails")
		}
		if !errors.Is(res.Error(), err1) || !errors.Is(res.Error(), err2) {
			t.Errorf("expected both failures in the aggregate, got %v", res.Error())
		}
	})
}

func TestParallelSequentialBranches(t *testing.T) {
	t.Run("PolicyAll Stops After First Failure", func(t *testing.T) {
		engine := New().WithSequentialBranches()
		defer engine.Close()

		var calls int32
		fail := Lift("fail", func(n int) (int, error) {
			return 0, errors.New("down")
		}, Params("n"))
		counted := Lift("counted", func(n int) int {
			atomic.AddInt32(&calls, 1)
			return n
		}, Params("n"))

		res := engine.Run(context.Background(), Parallel("fan", PolicyAll, fail, counted), 1)
		if res.IsOk() {
			t.Fatal("expected failure")
		}
		if atomic.LoadInt32(&calls) != 0 {
			t.Error("branches after the first failure should not start")
		}
	})

	t.Run("PolicyFirstSuccess Stops After First Success", func(t *testing.T) {
		engine := New().WithSequentialBranches()
		defer engine.Close()

		var calls int32
		counted := Lift("counted", func(n int) int {
			atomic.AddInt32(&calls, 1)
			return n
		}, Params("n"))

		res := engine.Run(context.Background(),
			Parallel("race", PolicyFirstSuccess, addOneOp(), counted), 1)
		if got := mustInt(t, res); got != 2 {
			t.Fatalf("expected 2, got %d", got)
		}
		if atomic.LoadInt32(&calls) != 0 {
			t.Error("branches after the first success should not start")
		}
	})
}

func TestParallelIsolation(t *testing.T) {
	// A branch writing to its own scope must not leak into a sibling.
	read := Lift("read", func(mode string, n int) string {
		return mode
	}, Params("mode", "n"), FromContext("mode"))

	scoped := read.WithValues(map[string]any{"mode": "override"})
	fan := Parallel("fan", PolicyAll, scoped, read)

	res := RunWith(context.Background(), fan, Call{
		Args:   []any{1},
		Values: NewContext(map[string]any{"mode": "base"}),
	})
	v, err := res.Get()
	if err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	values := v.([]any)
	if values[0] != "override" {
		t.Errorf("scoped branch should see its override, got %v", values[0])
	}
	if values[1] != "base" {
		t.Errorf("sibling should see the base value, got %v", values[1])
	}
}

func TestParallelBranchHooks(t *testing.T) {
	engine := New()
	defer engine.Close()

	var mu sync.Mutex
	var events []BranchEvent
	if err := engine.OnBranchSettled(func(_ context.Context, e BranchEvent) error {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("failed to register hook: %v", err)
	}

	fail := Lift("down", func(n int) (int, error) {
		return 0, errors.New("down")
	}, Params("n"))
	fan := Parallel("fan", PolicyFirstSuccess, fail, addOneOp())
	if got := mustInt(t, engine.Run(context.Background(), fan, 1)); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}

	// Wait for async hooks to fire.
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("expected 2 branch events, got %d", len(events))
	}
	// Events may arrive in any order due to async hooks.
	byIndex := make(map[int]BranchEvent, len(events))
	for _, e := range events {
		byIndex[e.Index] = e
	}
	if e := byIndex[0]; e.Branch != "down" || e.Success {
		t.Errorf("unexpected event for branch 0: %+v", e)
	}
	if e := byIndex[1]; e.Branch != "add_one" || !e.Success {
		t.Errorf("unexpected event for branch 1: %+v", e)
	}
}

func TestParallelConfig(t *testing.T) {
	wantConfigPanic(t, func() { Parallel("empty", PolicyAll) })
}
