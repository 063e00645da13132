package opz

import (
	"context"
	"errors"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Metric keys for run-level observability.
const (
	RunProcessedTotal    = metricz.Key("run.processed.total")
	RunSuccessesTotal    = metricz.Key("run.successes.total")
	RunFailuresTotal     = metricz.Key("run.failures.total")
	RunDurationMs        = metricz.Key("run.duration.ms")
	NodeEvaluationsTotal = metricz.Key("run.nodes.total")
)

// Span keys and tags.
const (
	RunSpan  = tracez.Key("run.process")
	NodeSpan = tracez.Key("run.node")

	TagNodeKind = tracez.Tag("node.kind")
	TagNodeName = tracez.Tag("node.name")
	TagSuccess  = tracez.Tag("node.success")
	TagError    = tracez.Tag("node.error")
)

// Hook event keys for run completion.
const (
	// EventRunComplete fires when a run settles, successful or not.
	EventRunComplete = hookz.Key("run.complete")
)

// RunEvent reports one settled run.
type RunEvent struct {
	Name      Name          // root operation name
	Success   bool          // whether the run succeeded
	Error     error         // terminal failure, if any
	Duration  time.Duration // total run time
	Timestamp time.Time     // when the run settled
}

// Call carries the call-time inputs of one run: positional arguments,
// named arguments, and the initial Context values.
type Call struct {
	Args   []any
	Named  map[string]any
	Values *Context
}

// Engine executes Operation trees. It owns the scheduling clock and the
// observability surface: metrics, spans, and typed event hooks. Engines are
// safe for concurrent use; Operations carry no engine state, so one engine
// can run any number of trees and one tree can run on any engine.
//
// The zero configuration is production-ready. Tests inject a fake clock:
//
//	clock := clockz.NewFakeClock()
//	engine := opz.New().WithClock(clock)
type Engine struct {
	clock      clockz.Clock
	metrics    *metricz.Registry
	tracer     *tracez.Tracer
	sequential bool

	runHooks      *hookz.Hooks[RunEvent]
	stageHooks    *hookz.Hooks[StageEvent]
	attemptHooks  *hookz.Hooks[AttemptEvent]
	fallbackHooks *hookz.Hooks[FallbackEvent]
	branchHooks   *hookz.Hooks[BranchEvent]
	decisionHooks *hookz.Hooks[DecisionEvent]
}

// New creates an Engine with registered metrics and fresh hook sets.
func New() *Engine {
	registry := metricz.New()
	registry.Counter(RunProcessedTotal)
	registry.Counter(RunSuccessesTotal)
	registry.Counter(RunFailuresTotal)
	registry.Gauge(RunDurationMs)
	registry.Counter(NodeEvaluationsTotal)
	registry.Counter(RetryAttemptsTotal)
	registry.Counter(RetryExhaustedTotal)

	return &Engine{
		metrics:       registry,
		tracer:        tracez.New(),
		runHooks:      hookz.New[RunEvent](),
		stageHooks:    hookz.New[StageEvent](),
		attemptHooks:  hookz.New[AttemptEvent](),
		fallbackHooks: hookz.New[FallbackEvent](),
		branchHooks:   hookz.New[BranchEvent](),
		decisionHooks: hookz.New[DecisionEvent](),
	}
}

// WithClock sets the clock used for retry delays and timeouts.
// Returns the same instance for chaining.
func (e *Engine) WithClock(clock clockz.Clock) *Engine {
	e.clock = clock
	return e
}

// WithSequentialBranches makes Parallel run branches strictly in
// declaration order on the calling goroutine, short-circuiting per policy.
// Returns the same instance for chaining.
func (e *Engine) WithSequentialBranches() *Engine {
	e.sequential = true
	return e
}

func (e *Engine) getClock() clockz.Clock {
	if e.clock == nil {
		return clockz.RealClock
	}
	return e.clock
}

// Metrics returns the engine's metrics registry.
func (e *Engine) Metrics() *metricz.Registry {
	return e.metrics
}

// Tracer returns the engine's tracer.
func (e *Engine) Tracer() *tracez.Tracer {
	return e.tracer
}

// OnRunComplete registers a handler invoked when a run settles.
func (e *Engine) OnRunComplete(handler func(context.Context, RunEvent) error) error {
	_, err := e.runHooks.Hook(EventRunComplete, handler)
	return err
}

// Close shuts down the engine's observability components.
func (e *Engine) Close() error {
	if e.tracer != nil {
		e.tracer.Close()
	}
	e.runHooks.Close()
	e.stageHooks.Close()
	e.attemptHooks.Close()
	e.fallbackHooks.Close()
	e.branchHooks.Close()
	e.decisionHooks.Close()
	return nil
}

// Run executes an Operation tree with positional call-time arguments and
// returns the single terminal Result. Errors never escape as Go errors or
// panics; inspect the Result's failure branch.
func (e *Engine) Run(ctx context.Context, op Operation, args ...any) Result {
	return e.RunWith(ctx, op, Call{Args: args})
}

// RunWith executes an Operation tree with a full Call: positional and named
// arguments plus initial Context values.
func (e *Engine) RunWith(ctx context.Context, op Operation, call Call) (res Result) {
	if ctx == nil {
		ctx = context.Background()
	}

	e.metrics.Counter(RunProcessedTotal).Inc()
	start := e.getClock().Now()
	ctx = withEngine(ctx, e)
	ctx, span := e.tracer.StartSpan(ctx, RunSpan)
	span.SetTag(TagNodeName, op.name)

	defer func() {
		now := e.getClock().Now()
		elapsed := now.Sub(start)
		e.metrics.Gauge(RunDurationMs).Set(float64(elapsed.Milliseconds()))
		if res.IsOk() {
			e.metrics.Counter(RunSuccessesTotal).Inc()
			span.SetTag(TagSuccess, "true")
		} else {
			e.metrics.Counter(RunFailuresTotal).Inc()
			span.SetTag(TagSuccess, "false")
			span.SetTag(TagError, res.Error().Error())
		}
		span.Finish()
		_ = e.runHooks.Emit(ctx, EventRunComplete, RunEvent{ //nolint:errcheck
			Name:      op.name,
			Success:   res.IsOk(),
			Error:     res.Error(),
			Duration:  elapsed,
			Timestamp: now,
		})
	}()
	defer recoverToFailure(&res, op.name)

	return e.eval(ctx, call.Values, op, Call{Args: call.Args, Named: call.Named})
}

// eval is the single dispatch over node kinds. It owns the per-node span,
// the context-cancellation check, and failure wrapping, so each kind's
// evaluator deals only with its own control flow.
func (e *Engine) eval(ctx context.Context, env *Context, op Operation, call Call) Result {
	if err := ctx.Err(); err != nil {
		return e.wrapFailure(op, call, e.getClock().Now(), err)
	}

	e.metrics.Counter(NodeEvaluationsTotal).Inc()
	ctx, span := e.tracer.StartSpan(ctx, NodeSpan)
	span.SetTag(TagNodeKind, op.kind.String())
	span.SetTag(TagNodeName, op.name)
	start := e.getClock().Now()

	var res Result
	switch op.kind {
	case kindLeaf:
		res = e.evalLeaf(ctx, env, op, call)
	case kindSequence:
		res = e.evalSequence(ctx, env, op, call)
	case kindTransform:
		res = e.evalTransform(ctx, env, op, call)
	case kindFallback:
		res = e.evalFallback(ctx, env, op, call)
	case kindParallel:
		res = e.evalParallel(ctx, env, op, call)
	case kindConditional:
		res = e.evalConditional(ctx, env, op, call)
	case kindRetry:
		res = e.evalRetry(ctx, env, op, call)
	case kindTimeout:
		res = e.evalTimeout(ctx, env, op, call)
	case kindScope:
		res = e.evalScope(ctx, env, op, call)
	default:
		res = Fail(&ConfigError{Op: op.name, Reason: "unknown node kind"})
	}

	if res.IsError() {
		span.SetTag(TagSuccess, "false")
		span.SetTag(TagError, res.Error().Error())
		span.Finish()
		return e.wrapFailure(op, call, start, res.Error())
	}
	span.SetTag(TagSuccess, "true")
	span.Finish()
	return res
}

// evalLeaf binds arguments and invokes the callable. A binding failure
// never reaches the callable.
func (e *Engine) evalLeaf(ctx context.Context, env *Context, op Operation, call Call) Result {
	args, err := bindArgs(op.name, op.leaf.sig, op.bound, call, env)
	if err != nil {
		return Fail(err)
	}
	if op.leaf.sig.wantsCtx {
		ctx = withEnv(ctx, env)
	}
	return op.leaf.invoke(ctx, args)
}

// wrapFailure attaches this node's name to a failure's path, wrapping bare
// causes in a rich *Error on first contact.
func (e *Engine) wrapFailure(op Operation, call Call, start time.Time, err error) Result {
	var opErr *Error
	if errors.As(err, &opErr) {
		opErr.Path = append([]Name{op.name}, opErr.Path...)
		return Fail(opErr)
	}
	now := e.getClock().Now()
	return Fail(&Error{
		Timestamp: now,
		Err:       err,
		Path:      []Name{op.name},
		InputArgs: call.Args,
		Duration:  now.Sub(start),
		Timeout:   errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded),
		Canceled:  errors.Is(err, context.Canceled),
	})
}

// defaultEngine backs the package-level Run and RunWith.
var defaultEngine = New()

// Default returns the engine used by the package-level Run and RunWith.
func Default() *Engine {
	return defaultEngine
}

// Run executes an Operation tree on the default engine.
func Run(ctx context.Context, op Operation, args ...any) Result {
	return defaultEngine.Run(ctx, op, args...)
}

// RunWith executes an Operation tree on the default engine with a full Call.
func RunWith(ctx context.Context, op Operation, call Call) Result {
	return defaultEngine.RunWith(ctx, op, call)
}

// ctxKey scopes the engine plumbing values carried through context.Context.
type ctxKey uint8

const (
	engineCtxKey ctxKey = iota
	envCtxKey
)

func withEngine(ctx context.Context, e *Engine) context.Context {
	return context.WithValue(ctx, engineCtxKey, e)
}

// engineFrom recovers the running engine inside a leaf callable, falling
// back to the default engine outside a run.
func engineFrom(ctx context.Context) *Engine {
	if e, ok := ctx.Value(engineCtxKey).(*Engine); ok {
		return e
	}
	return defaultEngine
}

func withEnv(ctx context.Context, env *Context) context.Context {
	return context.WithValue(ctx, envCtxKey, env)
}

// EnvFrom recovers the active Context inside a leaf callable that declared
// a context.Context parameter. Returns nil outside a run.
func EnvFrom(ctx context.Context) *Context {
	env, _ := ctx.Value(envCtxKey).(*Context)
	return env
}
