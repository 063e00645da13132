package opz

import "context"

// Map wraps this operation with a pure transform over its success value.
// On success the transform is applied; a transform error or panic becomes
// the composite's failure. On failure the transform never runs and the
// failure passes through.
//
//	total := cart.Map("sum-items", func(_ context.Context, v any) (any, error) {
//	    items := v.([]Item)
//	    sum := 0
//	    for _, it := range items {
//	        sum += it.Price
//	    }
//	    return sum, nil
//	})
//
// The transform may return an opz.Result to pre-normalize its own outcome.
func (o Operation) Map(name Name, fn func(context.Context, any) (any, error)) Operation {
	if fn == nil {
		panic(&ConfigError{Op: name, Reason: "transform is nil"})
	}
	return Operation{
		name:      name,
		kind:      kindTransform,
		children:  []Operation{o},
		transform: fn,
		requires:  unionRequires(o),
	}
}

// evalTransform drives a transform node: failures pass through untouched,
// successes run through the transform inside the fault-capture boundary.
func (e *Engine) evalTransform(ctx context.Context, env *Context, op Operation, call Call) Result {
	res := e.eval(ctx, env, op.children[0], call)
	if res.IsError() {
		return res
	}
	return e.applyTransform(ctx, op, res.MustGet())
}

func (e *Engine) applyTransform(ctx context.Context, op Operation, value any) (res Result) {
	defer recoverToFailure(&res, op.name)
	v, err := op.transform(ctx, value)
	if err != nil {
		return Fail(err)
	}
	return normalizeValue(v)
}
