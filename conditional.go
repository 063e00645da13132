package opz

import (
	"context"
	"time"

	"github.com/zoobzio/hookz"
)

// Hook event keys for conditional evaluation.
const (
	// EventDecision fires after a conditional's predicate settles.
	EventDecision = hookz.Key("when.decision")
)

// DecisionEvent reports a conditional's routing decision.
type DecisionEvent struct {
	Name      Name      // conditional name
	Branch    Name      // name of the branch that was selected
	TookTrue  bool      // whether the true branch was selected
	Timestamp time.Time // when the decision was made
}

// Predicate examines the current value and Context and selects a branch.
// The value is the first call-time positional argument, or nil when the
// call carries none. A predicate error (or panic) fails the composite
// without running either branch.
type Predicate func(ctx context.Context, value any, env *Context) (bool, error)

// When builds a conditional operation: pred selects between ifTrue and
// ifFalse, and the selected branch runs with the original call.
//
//	route := opz.When("route-by-tier",
//	    func(_ context.Context, v any, _ *opz.Context) (bool, error) {
//	        return v.(Order).Tier == "premium", nil
//	    },
//	    premiumFlow,
//	    standardFlow,
//	)
func When(name Name, pred Predicate, ifTrue, ifFalse Operation) Operation {
	if pred == nil {
		panic(&ConfigError{Op: name, Reason: "predicate is nil"})
	}
	return Operation{
		name:      name,
		kind:      kindConditional,
		children:  []Operation{ifTrue, ifFalse},
		predicate: pred,
		requires:  unionRequires(ifTrue, ifFalse),
	}
}

// evalConditional drives a conditional node.
func (e *Engine) evalConditional(ctx context.Context, env *Context, op Operation, call Call) Result {
	var value any
	if len(call.Args) > 0 {
		value = call.Args[0]
	}

	took, res := e.decide(ctx, op, value, env)
	if res.IsError() {
		return res
	}

	branch := op.children[1]
	if took {
		branch = op.children[0]
	}
	_ = e.decisionHooks.Emit(ctx, EventDecision, DecisionEvent{ //nolint:errcheck
		Name:      op.name,
		Branch:    branch.name,
		TookTrue:  took,
		Timestamp: e.getClock().Now(),
	})
	return e.eval(ctx, env, branch, call)
}

// decide runs the predicate inside the fault-capture boundary.
func (e *Engine) decide(ctx context.Context, op Operation, value any, env *Context) (took bool, res Result) {
	defer recoverToFailure(&res, op.name)
	res = Ok(nil)
	ok, err := op.predicate(ctx, value, env)
	if err != nil {
		return false, Fail(err)
	}
	return ok, res
}

// OnDecision registers a handler invoked after each conditional's
// predicate selects a branch.
func (e *Engine) OnDecision(handler func(context.Context, DecisionEvent) error) error {
	_, err := e.decisionHooks.Hook(EventDecision, handler)
	return err
}
