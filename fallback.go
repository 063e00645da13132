package opz

import (
	"context"
	"time"

	"github.com/zoobzio/hookz"
)

// Hook event keys for fallback evaluation.
const (
	// EventFallbackEngaged fires when a primary fails and the alternate runs.
	EventFallbackEngaged = hookz.Key("fallback.engaged")
)

// FallbackEvent reports an engaged fallback: the primary failed and the
// alternate was executed with the original call.
type FallbackEvent struct {
	Name      Name      // fallback name
	Primary   Name      // name of the failed primary
	Alternate Name      // name of the alternate that ran
	Recovered bool      // whether the alternate succeeded
	Error     error     // the alternate's failure, if it also failed
	Timestamp time.Time // when the composite settled
}

// OrElse composes this operation with an alternate. On success the primary's
// result is returned unchanged and the alternate never runs. On failure the
// alternate executes with the original call-time arguments, not the
// failure, and its result, success or failure, becomes the composite's.
//
//	lookup := fetchFromCache.OrElse(fetchFromDatabase)
//
// Unlike Retry, which re-runs the same work, OrElse switches to a different
// implementation. Chain OrElse calls for primary/backup/tertiary chains.
func (o Operation) OrElse(alt Operation) Operation {
	return Operation{
		name:     o.name + " || " + alt.name,
		kind:     kindFallback,
		children: []Operation{o, alt},
		requires: unionRequires(o, alt),
	}
}

// evalFallback drives a fallback node: the alternate sees the original call.
func (e *Engine) evalFallback(ctx context.Context, env *Context, op Operation, call Call) Result {
	primary, alt := op.children[0], op.children[1]

	res := e.eval(ctx, env, primary, call)
	if res.IsOk() {
		return res
	}

	res = e.eval(ctx, env, alt, call)
	_ = e.fallbackHooks.Emit(ctx, EventFallbackEngaged, FallbackEvent{ //nolint:errcheck
		Name:      op.name,
		Primary:   primary.name,
		Alternate: alt.name,
		Recovered: res.IsOk(),
		Error:     res.Error(),
		Timestamp: e.getClock().Now(),
	})
	return res
}

// OnFallbackEngaged registers a handler invoked whenever a primary fails
// and its alternate runs.
func (e *Engine) OnFallbackEngaged(handler func(context.Context, FallbackEvent) error) error {
	_, err := e.fallbackHooks.Hook(EventFallbackEngaged, handler)
	return err
}
