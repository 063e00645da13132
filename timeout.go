package opz

import (
	"context"
	"time"
)

// Timeout wraps this operation with a deadline per invocation. If the
// wrapped operation does not settle within d, its context is canceled and
// the composite fails with ErrTimeout; a result arriving after the deadline
// is discarded. The wrapped operation should respect context cancellation;
// one that ignores it may keep running in the background after the
// composite has already failed.
//
//	fetch := opz.Lift("fetch", fetchQuote, opz.Params("symbol")).
//	    Timeout(2 * time.Second)
//
// Timeout composes with Retry to bound each attempt:
//
//	fetch.Timeout(2 * time.Second).Retry(3, opz.Fixed(time.Second))
//
// A non-positive duration panics with a *ConfigError.
func (o Operation) Timeout(d time.Duration) Operation {
	if d <= 0 {
		panic(&ConfigError{Op: o.name, Reason: "timeout must be positive"})
	}
	return Operation{
		name:     o.name + ".timeout",
		kind:     kindTimeout,
		children: []Operation{o},
		timeout:  d,
		requires: unionRequires(o),
	}
}

// evalTimeout drives a timeout node. The deadline comes from the engine
// clock so tests can trigger it deterministically.
func (e *Engine) evalTimeout(ctx context.Context, env *Context, op Operation, call Call) Result {
	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Fail(&InvocationFault{Op: op.name, Recovered: r})
			}
		}()
		done <- e.eval(childCtx, env, op.children[0], call)
	}()

	select {
	case res := <-done:
		return res
	case <-e.getClock().After(op.timeout):
		cancel()
		return Fail(ErrTimeout)
	case <-ctx.Done():
		return Fail(ctx.Err())
	}
}
