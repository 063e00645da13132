package opz

import (
	"context"
	"time"

	"github.com/zoobzio/hookz"
)

// Hook event keys for sequence evaluation.
const (
	// EventStageComplete fires as each stage of a sequence settles.
	EventStageComplete = hookz.Key("sequence.stage_complete")
)

// StageEvent reports one settled stage of a sequence.
type StageEvent struct {
	Name      Name          // sequence name
	Stage     Name          // name of the stage operation
	Success   bool          // whether the stage succeeded
	Error     error         // failure cause, if any
	Duration  time.Duration // how long the stage took
	Timestamp time.Time     // when the stage settled
}

// Then composes this operation with next into a sequence. The sequence
// executes this operation first; on failure it short-circuits, returning
// that failure without ever invoking next. On success, the success value
// becomes next's primary call-time argument: it fills next's first open
// placeholder, or its first unbound parameter, merging with next's own
// bound arguments under the usual binding rules.
//
//	fetch := opz.Lift("fetch", fetchUser, opz.Params("id"))
//	score := opz.Lift("score", scoreUser, opz.Params("user"))
//	pipeline := fetch.Then(score)
//	result := opz.Run(ctx, pipeline, 42)
func (o Operation) Then(next Operation) Operation {
	return Operation{
		name:     o.name + " >> " + next.name,
		kind:     kindSequence,
		children: []Operation{o, next},
		requires: unionRequires(o, next),
	}
}

// evalSequence drives a sequence node: left settles first, right only runs
// on left success and receives the success value as its call.
func (e *Engine) evalSequence(ctx context.Context, env *Context, op Operation, call Call) Result {
	left, right := op.children[0], op.children[1]

	start := e.getClock().Now()
	res := e.eval(ctx, env, left, call)
	e.emitStage(ctx, op, left, res, start)
	if res.IsError() {
		return res
	}

	value := res.MustGet()
	start = e.getClock().Now()
	res = e.eval(ctx, env, right, Call{Args: []any{value}})
	e.emitStage(ctx, op, right, res, start)
	return res
}

func (e *Engine) emitStage(ctx context.Context, op, stage Operation, res Result, start time.Time) {
	now := e.getClock().Now()
	_ = e.stageHooks.Emit(ctx, EventStageComplete, StageEvent{ //nolint:errcheck
		Name:      op.name,
		Stage:     stage.name,
		Success:   res.IsOk(),
		Error:     res.Error(),
		Duration:  now.Sub(start),
		Timestamp: now,
	})
}

// OnStageComplete registers a handler invoked as each sequence stage
// settles, successful or not.
func (e *Engine) OnStageComplete(handler func(context.Context, StageEvent) error) error {
	_, err := e.stageHooks.Hook(EventStageComplete, handler)
	return err
}
