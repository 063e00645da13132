package opz

import (
	"context"
	"strings"
	"testing"
)

func mustMap(t *testing.T, res Result) map[string]any {
	t.Helper()
	v, err := res.Get()
	if err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected map[string]any, got %T", v)
	}
	return m
}

func TestGet(t *testing.T) {
	ctx := context.Background()

	data := map[string]any{
		"user": map[string]any{
			"name": "ada",
			"contact": map[string]any{
				"email": "ada@example.com",
			},
		},
		"items": []any{
			map[string]any{"price": 100},
			map[string]any{"price": 250},
		},
	}

	t.Run("Dot Notation", func(t *testing.T) {
		res := Run(ctx, Get("user.contact.email", nil), data)
		if v, _ := res.Get(); v != "ada@example.com" {
			t.Errorf("expected email, got %v", v)
		}
	})

	t.Run("Numeric Index", func(t *testing.T) {
		res := Run(ctx, Get("items.1.price", nil), data)
		if v, _ := res.Get(); v != 250 {
			t.Errorf("expected 250, got %v", v)
		}
	})

	t.Run("Bracket Notation", func(t *testing.T) {
		res := Run(ctx, Get("items[0].price", nil), data)
		if v, _ := res.Get(); v != 100 {
			t.Errorf("expected 100, got %v", v)
		}
	})

	t.Run("Missing Path Yields Default", func(t *testing.T) {
		res := Run(ctx, Get("user.contact.phone", "n/a"), data)
		if v, _ := res.Get(); v != "n/a" {
			t.Errorf("expected default, got %v", v)
		}
	})

	t.Run("Index Out Of Range Yields Default", func(t *testing.T) {
		res := Run(ctx, Get("items.5.price", -1), data)
		if v, _ := res.Get(); v != -1 {
			t.Errorf("expected default, got %v", v)
		}
	})

	t.Run("Nil Input Yields Default", func(t *testing.T) {
		res := Run(ctx, Get("anything", "fallback"), nil)
		if v, _ := res.Get(); v != "fallback" {
			t.Errorf("expected default, got %v", v)
		}
	})

	t.Run("Struct Fields", func(t *testing.T) {
		type contact struct{ Email string }
		type user struct {
			Name    string
			Contact *contact
		}
		u := user{Name: "ada", Contact: &contact{Email: "ada@example.com"}}

		res := Run(ctx, Get("Contact.Email", nil), u)
		if v, _ := res.Get(); v != "ada@example.com" {
			t.Errorf("expected email via struct traversal, got %v", v)
		}

		res = Run(ctx, Get("Contact.Email", "none"), user{Name: "solo"})
		if v, _ := res.Get(); v != "none" {
			t.Errorf("nil pointer should yield default, got %v", v)
		}
	})

	t.Run("Empty Path Returns Input", func(t *testing.T) {
		res := Run(ctx, Get("", nil), "whole")
		if v, _ := res.Get(); v != "whole" {
			t.Errorf("expected the input itself, got %v", v)
		}
	})

	t.Run("Composes In Pipelines", func(t *testing.T) {
		upper := Lift("upper", func(s string) string { return strings.ToUpper(s) }, Params("s"))
		pipeline := Get("user.name", "").Then(upper)
		res := Run(ctx, pipeline, data)
		if v, _ := res.Get(); v != "ADA" {
			t.Errorf("expected ADA, got %v", v)
		}
	})
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	data := map[string]any{
		"user_id": 42,
		"contact": map[string]any{"email": "ada@example.com"},
	}

	t.Run("Mixed Schema", func(t *testing.T) {
		shape := Build(map[string]any{
			"id":    Get("user_id", nil),
			"email": Get("contact.email", "unknown"),
			"kind":  "customer",
			"tag": func(d any) any {
				return "seen"
			},
		})

		out := mustMap(t, Run(ctx, shape, data))
		if out["id"] != 42 || out["email"] != "ada@example.com" {
			t.Errorf("unexpected extraction: %v", out)
		}
		if out["kind"] != "customer" || out["tag"] != "seen" {
			t.Errorf("unexpected constants: %v", out)
		}
	})

	t.Run("Nested Schema", func(t *testing.T) {
		shape := Build(map[string]any{
			"profile": map[string]any{
				"id": Get("user_id", nil),
			},
		})
		out := mustMap(t, Run(ctx, shape, data))
		profile := out["profile"].(map[string]any)
		if profile["id"] != 42 {
			t.Errorf("expected nested extraction, got %v", out)
		}
	})

	t.Run("Failing Operation Yields Nil", func(t *testing.T) {
		shape := Build(map[string]any{
			"broken": addOp(), // needs two arguments, gets one
		})
		out := mustMap(t, Run(ctx, shape, data))
		if v, present := out["broken"]; !present || v != nil {
			t.Errorf("failing entry should still produce the key with nil, got %v", out)
		}
	})

	t.Run("Panicking Func Yields Nil", func(t *testing.T) {
		shape := Build(map[string]any{
			"risky": func(d any) any { panic("schema bug") },
		})
		out := mustMap(t, Run(ctx, shape, data))
		if v, present := out["risky"]; !present || v != nil {
			t.Errorf("panicking entry should still produce the key with nil, got %v", out)
		}
	})
}

func TestMerge(t *testing.T) {
	ctx := context.Background()
	data := map[string]any{"name": "ada", "id": 7}

	t.Run("Later Sources Win", func(t *testing.T) {
		merged := Merge(
			map[string]any{"a": 1, "b": 1},
			map[string]any{"b": 2, "c": 2},
		)
		out := mustMap(t, Run(ctx, merged, data))
		if out["a"] != 1 || out["b"] != 2 || out["c"] != 2 {
			t.Errorf("unexpected merge: %v", out)
		}
	})

	t.Run("Sources See The Same Input", func(t *testing.T) {
		merged := Merge(
			Update(map[string]any{"seen": true}),
			func(d any) map[string]any {
				return map[string]any{"named": d.(map[string]any)["name"]}
			},
			map[string]any{"id": Get("id", nil)},
		)
		out := mustMap(t, Run(ctx, merged, data))
		if out["seen"] != true || out["named"] != "ada" || out["id"] != 7 {
			t.Errorf("unexpected merge: %v", out)
		}
	})

	t.Run("Failed Source Is Skipped", func(t *testing.T) {
		merged := Merge(
			map[string]any{"kept": 1},
			addOp(), // binding failure, skipped
		)
		out := mustMap(t, Run(ctx, merged, data))
		if out["kept"] != 1 || len(out) != 1 {
			t.Errorf("expected only the static source, got %v", out)
		}
	})

	t.Run("Non-Map Source Is Skipped", func(t *testing.T) {
		merged := Merge(
			map[string]any{"kept": 1},
			Get("name", nil), // produces a string, not a map
		)
		out := mustMap(t, Run(ctx, merged, data))
		if len(out) != 1 {
			t.Errorf("expected the non-map source to be skipped, got %v", out)
		}
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("Overlays Without Mutating Input", func(t *testing.T) {
		source := map[string]any{"status": "new", "id": 1}
		touch := Update(map[string]any{"status": "processed"})

		out := mustMap(t, Run(ctx, touch, source))
		if out["status"] != "processed" || out["id"] != 1 {
			t.Errorf("unexpected overlay: %v", out)
		}
		if source["status"] != "new" {
			t.Error("input map must not be mutated")
		}
	})

	t.Run("Composes With Build", func(t *testing.T) {
		pipeline := Build(map[string]any{
			"id": Get("user_id", nil),
		}).Then(Update(map[string]any{"v": 2}))

		out := mustMap(t, Run(ctx, pipeline, map[string]any{"user_id": 9}))
		if out["id"] != 9 || out["v"] != 2 {
			t.Errorf("unexpected pipeline output: %v", out)
		}
	})
}
