package opz

import "context"

// WithValues wraps this operation in a scope that extends the run's Context
// for the subtree: the given values are layered on top of whatever the
// parent supplied, shadowing on key collisions. The parent's Context is
// never modified; siblings outside the scope see the original values.
//
//	report := buildReport.WithValues(map[string]any{"region": "eu-west"})
func (o Operation) WithValues(values map[string]any) Operation {
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return Operation{
		name:     o.name + ".scope",
		kind:     kindScope,
		children: []Operation{o},
		scope:    copied,
		requires: unionRequires(o),
	}
}

// evalScope drives a scope node: the child sees the extended Context.
func (e *Engine) evalScope(ctx context.Context, env *Context, op Operation, call Call) Result {
	return e.eval(ctx, env.Extend(op.scope), op.children[0], call)
}
