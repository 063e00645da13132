package opz

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"

	"github.com/samber/mo"
)

// Result is the canonical outcome type threaded through the engine.
// It is samber/mo's Result specialized to any: exactly one of the success
// or failure branch is active. The engine never returns a bare Go error;
// every runtime failure travels inside the failure branch.
type Result = mo.Result[any]

// Ok wraps a plain value as a successful Result.
func Ok(value any) Result {
	return mo.Ok[any](value)
}

// Fail wraps an error as a failed Result.
func Fail(err error) Result {
	return mo.Err[any](err)
}

// normalizeValue maps a callable's returned value to a Result. A value that
// already is a Result passes through unchanged; anything else is a success.
func normalizeValue(v any) Result {
	if r, ok := v.(Result); ok {
		return r
	}
	return Ok(v)
}

// recoverToFailure is the fault-capture boundary wrapped around every
// callable, transform, and predicate invocation. A panic becomes a failure
// carrying an *InvocationFault instead of unwinding out of the run.
func recoverToFailure(res *Result, op Name) {
	if r := recover(); r != nil {
		*res = Fail(&InvocationFault{
			Op:        op,
			Recovered: r,
			Stack:     debug.Stack(),
		})
	}
}

// invoke calls the leaf's function with fully bound arguments and
// normalizes whatever comes back. The direct variant calls and returns;
// the future variant awaits the returned channel, suspending cooperatively
// on it and the context.
func (l *leaf) invoke(ctx context.Context, args []reflect.Value) (res Result) {
	defer recoverToFailure(&res, l.name)

	in := args
	if l.sig.wantsCtx {
		in = make([]reflect.Value, 0, len(args)+1)
		in = append(in, reflect.ValueOf(ctx))
		in = append(in, args...)
	}

	out := l.fn.Call(in)

	if l.sig.future {
		return awaitFuture(ctx, l.name, out[0], l.sig.elem)
	}
	return normalizeReturn(l.sig.out, out)
}

// normalizeReturn maps the raw return set of a direct callable to a Result.
func normalizeReturn(kind outKind, out []reflect.Value) Result {
	switch kind {
	case outNone:
		return Ok(nil)
	case outErrOnly:
		if !out[0].IsNil() {
			return Fail(out[0].Interface().(error))
		}
		return Ok(nil)
	case outResult:
		return out[0].Interface().(Result)
	case outValueErr:
		if !out[1].IsNil() {
			return Fail(out[1].Interface().(error))
		}
		return normalizeValue(out[0].Interface())
	default:
		return normalizeValue(out[0].Interface())
	}
}

// awaitFuture receives the eventual value from a future-variant callable.
// Suspension is cooperative: the select yields to the context, so sibling
// branches proceed while this leaf waits.
func awaitFuture(ctx context.Context, op Name, ch reflect.Value, elem outKind) Result {
	chosen, recv, ok := reflect.Select([]reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: ch},
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
	})
	if chosen == 1 {
		return Fail(ctx.Err())
	}
	if !ok {
		return Fail(fmt.Errorf("future %q closed without a value", op))
	}

	switch elem {
	case outResult:
		return recv.Interface().(Result)
	case outErrOnly:
		if !recv.IsNil() {
			return Fail(recv.Interface().(error))
		}
		return Ok(nil)
	default:
		return normalizeValue(recv.Interface())
	}
}
