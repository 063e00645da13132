package opz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSequence(t *testing.T) {
	ctx := context.Background()

	t.Run("Value Feeds Next Stage", func(t *testing.T) {
		pipeline := addOp().Then(mulOp().Bind(Slot, 10)).Then(addOneOp())
		if got := mustInt(t, Run(ctx, pipeline, 1, 2)); got != 31 {
			t.Errorf("expected 31, got %d", got)
		}
	})

	t.Run("Failure Short-Circuits", func(t *testing.T) {
		sentinel := errors.New("stage one down")
		var calls int32

		fail := Lift("fail", func(n int) (int, error) {
			return 0, sentinel
		}, Params("n"))
		counted := Lift("counted", func(n int) int {
			atomic.AddInt32(&calls, 1)
			return n
		}, Params("n"))

		res := Run(ctx, fail.Then(counted), 1)
		if !errors.Is(res.Error(), sentinel) {
			t.Fatalf("expected sentinel failure, got %v", res.Error())
		}
		if atomic.LoadInt32(&calls) != 0 {
			t.Error("second stage should never run after a failure")
		}
	})

	t.Run("Failure Path Names Each Level", func(t *testing.T) {
		fail := Lift("boom", func(n int) (int, error) {
			return 0, errors.New("boom")
		}, Params("n"))
		pipeline := fail.Then(addOneOp())

		res := Run(ctx, pipeline, 1)
		var opErr *Error
		if !errors.As(res.Error(), &opErr) {
			t.Fatalf("expected *Error, got %v", res.Error())
		}
		if len(opErr.Path) < 2 || opErr.Path[len(opErr.Path)-1] != "boom" {
			t.Errorf("expected path ending at boom, got %v", opErr.Path)
		}
		if opErr.Path[0] != "boom >> add_one" {
			t.Errorf("expected path starting at the sequence, got %v", opErr.Path)
		}
	})

	t.Run("Left Associative Chains", func(t *testing.T) {
		pipeline := addOp().Then(addOneOp()).Then(addOneOp()).Then(addOneOp())
		if got := mustInt(t, Run(ctx, pipeline, 1, 2)); got != 6 {
			t.Errorf("expected 6, got %d", got)
		}
	})

	t.Run("Nil Success Value Feeds As Nil", func(t *testing.T) {
		effect := Lift("effect", func(n int) error { return nil }, Params("n"))
		capture := Lift("capture", func(v any) bool { return v == nil }, Params("v"))

		res := Run(ctx, effect.Then(capture), 1)
		if v, _ := res.Get(); v != true {
			t.Errorf("expected nil to feed through, got %v", v)
		}
	})
}

func TestSequenceStageHooks(t *testing.T) {
	engine := New()
	defer engine.Close()

	var mu sync.Mutex
	var events []StageEvent
	if err := engine.OnStageComplete(func(_ context.Context, e StageEvent) error {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("failed to register hook: %v", err)
	}

	pipeline := addOp().Then(addOneOp())
	res := engine.Run(context.Background(), pipeline, 1, 2)
	if got := mustInt(t, res); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}

	// Wait for async hooks to fire.
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("expected 2 stage events, got %d", len(events))
	}
	seen := make(map[Name]StageEvent, len(events))
	for _, e := range events {
		if e.Name != "add >> add_one" {
			t.Errorf("unexpected sequence name %s", e.Name)
		}
		if !e.Success {
			t.Errorf("stage %s should have succeeded", e.Stage)
		}
		seen[e.Stage] = e
	}
	if _, ok := seen["add"]; !ok {
		t.Error("missing stage event for add")
	}
	if _, ok := seen["add_one"]; !ok {
		t.Error("missing stage event for add_one")
	}
}
