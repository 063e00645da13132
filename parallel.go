package opz

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zoobzio/hookz"
)

// Hook event keys for parallel evaluation.
const (
	// EventBranchSettled fires as each parallel branch reaches an outcome.
	EventBranchSettled = hookz.Key("parallel.branch_settled")
)

// BranchEvent reports one settled branch of a parallel operation.
type BranchEvent struct {
	Name      Name      // parallel name
	Branch    Name      // branch operation name
	Index     int       // declaration-order index of the branch
	Success   bool      // whether the branch succeeded
	Error     error     // failure cause, if any
	Timestamp time.Time // when the branch settled
}

// BranchPolicy selects how a parallel operation settles.
type BranchPolicy uint8

const (
	// PolicyAll succeeds only if every branch succeeds, producing a []any of
	// branch values in declaration order. On failure the composite's failure
	// is the first failing branch in declaration order.
	PolicyAll BranchPolicy = iota
	// PolicyFirstSuccess succeeds with the first successful branch in
	// declaration order. It fails only when every branch fails, aggregating
	// all branch failures.
	PolicyFirstSuccess
)

// Parallel fans the same call out to every branch. Branches run
// concurrently (a branch suspended on an asynchronous leaf never blocks its
// siblings) and each receives its own Context extension, so branches cannot
// observe one another. Settlement is deterministic: ties are broken by
// declaration order regardless of which branch finished first.
//
//	quotes := opz.Parallel("quotes", opz.PolicyFirstSuccess,
//	    fetchFromPrimary,
//	    fetchFromSecondary,
//	    fetchFromTertiary,
//	)
//
// An engine configured with WithSequentialBranches runs branches strictly in
// declaration order instead, short-circuiting: under PolicyAll no branch
// after the first failure starts, and under PolicyFirstSuccess no branch
// after the first success starts.
//
// Parallel with no branches panics with a *ConfigError.
func Parallel(name Name, policy BranchPolicy, branches ...Operation) Operation {
	if len(branches) == 0 {
		panic(&ConfigError{Op: name, Reason: "parallel requires at least one branch"})
	}
	return Operation{
		name:     name,
		kind:     kindParallel,
		children: branches,
		policy:   policy,
		requires: unionRequires(branches...),
	}
}

// evalParallel drives a parallel node.
func (e *Engine) evalParallel(ctx context.Context, env *Context, op Operation, call Call) Result {
	if e.sequential {
		return e.evalBranchesSequential(ctx, env, op, call)
	}

	branches := op.children
	results := make([]Result, len(branches))

	var wg sync.WaitGroup
	wg.Add(len(branches))
	for i := range branches {
		go func(idx int) {
			defer wg.Done()
			defer func() {
				// A panic below the eval boundary must not kill the run.
				if r := recover(); r != nil {
					results[idx] = Fail(&InvocationFault{Op: branches[idx].name, Recovered: r})
				}
			}()
			results[idx] = e.eval(ctx, env.Extend(nil), branches[idx], call)
		}(i)
	}
	wg.Wait()

	for i := range branches {
		e.emitBranch(ctx, op, branches[i], i, results[i])
	}
	return settle(op, results)
}

// evalBranchesSequential runs branches in declaration order on the calling
// goroutine, never starting a branch the policy has already decided against.
func (e *Engine) evalBranchesSequential(ctx context.Context, env *Context, op Operation, call Call) Result {
	var results []Result
	for i, branch := range op.children {
		res := e.eval(ctx, env.Extend(nil), branch, call)
		e.emitBranch(ctx, op, branch, i, res)
		results = append(results, res)

		switch op.policy {
		case PolicyAll:
			if res.IsError() {
				return res
			}
		case PolicyFirstSuccess:
			if res.IsOk() {
				return res
			}
		}
	}
	return settle(op, results)
}

// settle folds branch results into the composite outcome, scanning in
// declaration order so the preference is deterministic under concurrency.
func settle(op Operation, results []Result) Result {
	switch op.policy {
	case PolicyFirstSuccess:
		var failures []error
		for _, res := range results {
			if res.IsOk() {
				return res
			}
			failures = append(failures, res.Error())
		}
		return Fail(errors.Join(failures...))
	default: // PolicyAll
		values := make([]any, len(results))
		for i, res := range results {
			if res.IsError() {
				return res
			}
			values[i] = res.MustGet()
		}
		return Ok(values)
	}
}

func (e *Engine) emitBranch(ctx context.Context, op, branch Operation, idx int, res Result) {
	_ = e.branchHooks.Emit(ctx, EventBranchSettled, BranchEvent{ //nolint:errcheck
		Name:      op.name,
		Branch:    branch.name,
		Index:     idx,
		Success:   res.IsOk(),
		Error:     res.Error(),
		Timestamp: e.getClock().Now(),
	})
}

// OnBranchSettled registers a handler invoked as each parallel branch
// reaches an outcome.
func (e *Engine) OnBranchSettled(handler func(context.Context, BranchEvent) error) error {
	_, err := e.branchHooks.Hook(EventBranchSettled, handler)
	return err
}
