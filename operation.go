package opz

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"
)

// Name identifies operations in error paths, spans, and hook events.
// Store names as constants rather than inline strings:
//
//	const (
//	    FetchUserName  Name = "fetch-user"
//	    ScoreOrderName Name = "score-order"
//	)
type Name = string

// nodeKind tags the variant of an Operation node. The engine is one
// exhaustive dispatch over this tag.
type nodeKind uint8

const (
	kindLeaf nodeKind = iota
	kindSequence
	kindTransform
	kindFallback
	kindParallel
	kindConditional
	kindRetry
	kindTimeout
	kindScope
)

func (k nodeKind) String() string {
	switch k {
	case kindLeaf:
		return "leaf"
	case kindSequence:
		return "sequence"
	case kindTransform:
		return "transform"
	case kindFallback:
		return "fallback"
	case kindParallel:
		return "parallel"
	case kindConditional:
		return "conditional"
	case kindRetry:
		return "retry"
	case kindTimeout:
		return "timeout"
	case kindScope:
		return "scope"
	}
	return "unknown"
}

// Precedence selects which side wins when a bound named argument and a
// call-time named argument target the same parameter.
type Precedence uint8

const (
	// CallTimeWins lets call-time named arguments override bound named
	// arguments of the same name. This is the default.
	CallTimeWins Precedence = iota
	// BoundWins keeps partially applied values even when the call supplies
	// a named argument for the same parameter.
	BoundWins
)

// bound is the partial-application state of a leaf: already supplied
// positional values (possibly containing Slot), already supplied named
// values, and the named-argument precedence mode.
type bound struct {
	pos        []any
	named      map[string]any
	precedence Precedence
}

// leaf is the atomic callable of an Operation plus its inspected signature.
type leaf struct {
	name Name
	fn   reflect.Value
	sig  *signature
}

// Operation is an immutable, composable unit of work: either an atomic leaf
// wrapping one callable, or a composite built by a combinator over child
// Operations. Every combinator returns a new Operation and never mutates its
// operands, so the composition graph is an acyclic tree and any node can be
// reused across concurrent runs.
//
// Build a leaf with Lift, compose with Then, Map, OrElse, When, Parallel,
// Retry, Timeout, and WithValues, then execute the root with Run.
type Operation struct {
	name     Name
	kind     nodeKind
	leaf     *leaf
	bound    bound
	requires []string
	children []Operation

	transform func(ctx context.Context, value any) (any, error)
	predicate Predicate
	policy    BranchPolicy
	retry     retryConfig
	timeout   time.Duration
	scope     map[string]any
}

// liftConfig collects Lift options.
type liftConfig struct {
	names    []string
	ctxNames []string
}

// LiftOption configures how Lift inspects a callable.
type LiftOption func(*liftConfig)

// Params declares the names of the callable's value parameters, in order,
// enabling named binding. Without it parameters are positional-only with
// synthesized names arg0..argN. The context.Context parameter, if present,
// is not named.
func Params(names ...string) LiftOption {
	return func(c *liftConfig) { c.names = names }
}

// FromContext marks parameters as context-sourced: when nothing else binds
// them, the binder fills them from the run's Context using the parameter
// name as the key. Parameters must have been named via Params. Call-time
// positionals skip context-sourced parameters; override one by name, with
// Bind, or with an explicit Slot.
func FromContext(names ...string) LiftOption {
	return func(c *liftConfig) { c.ctxNames = append(c.ctxNames, names...) }
}

// Lift wraps a callable into an atomic Operation.
//
// Supported callable shapes:
//
//	func([ctx,] p1, .., pN)                      // fire and forget
//	func([ctx,] p1, .., pN) T                    // plain value
//	func([ctx,] p1, .., pN) error                // effect
//	func([ctx,] p1, .., pN) (T, error)           // fallible value
//	func([ctx,] p1, .., pN) opz.Result           // pre-normalized outcome
//	func([ctx,] p1, .., pN) <-chan E             // future: awaited by the engine
//
// The optional leading context.Context is injected by the engine at call
// time; it does not count as a value parameter. A future's element E may be
// a plain value, an error, or an opz.Result. Invalid shapes panic with a
// *ConfigError at lift time.
func Lift(name Name, fn any, opts ...LiftOption) Operation {
	var cfg liftConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	sig, v := inspect(name, fn, cfg.names, cfg.ctxNames)

	var requires []string
	for _, p := range sig.params {
		if p.fromContext {
			requires = append(requires, p.name)
		}
	}

	return Operation{
		name:     name,
		kind:     kindLeaf,
		leaf:     &leaf{name: name, fn: v, sig: sig},
		requires: requires,
	}
}

// Name returns the operation's name.
func (o Operation) Name() Name {
	return o.name
}

// Requires returns the context keys this operation or any of its
// descendants will read, sorted.
func (o Operation) Requires() []string {
	out := make([]string, len(o.requires))
	copy(out, o.requires)
	sort.Strings(out)
	return out
}

// Bind partially applies positional arguments, returning a new Operation.
// Use Slot to mark positions filled at call time. Bind accumulates: a second
// Bind appends after previously bound positions. Only atomic operations can
// be bound; over-binding or binding a composite panics with a *ConfigError.
func (o Operation) Bind(args ...any) Operation {
	if o.kind != kindLeaf {
		panic(&ConfigError{Op: o.name, Reason: "Bind applies to atomic operations only"})
	}
	total := len(o.bound.pos) + len(args)
	if total > len(o.leaf.sig.params) {
		panic(&ConfigError{Op: o.name, Reason: fmt.Sprintf(
			"%d bound arguments for %d parameters", total, len(o.leaf.sig.params))})
	}
	pos := make([]any, 0, total)
	pos = append(pos, o.bound.pos...)
	pos = append(pos, args...)

	next := o
	next.bound.pos = pos
	return next
}

// BindNamed partially applies named arguments, returning a new Operation.
// Names must match parameters declared with Params and must not collide
// with values already bound positionally. Later BindNamed calls override
// earlier ones for the same name.
func (o Operation) BindNamed(named map[string]any) Operation {
	if o.kind != kindLeaf {
		panic(&ConfigError{Op: o.name, Reason: "BindNamed applies to atomic operations only"})
	}
	merged := make(map[string]any, len(o.bound.named)+len(named))
	for k, v := range o.bound.named {
		merged[k] = v
	}
	for k, v := range named {
		i, ok := o.leaf.sig.index(k)
		if !ok {
			panic(&ConfigError{Op: o.name, Reason: fmt.Sprintf("unknown parameter %q", k)})
		}
		if i < len(o.bound.pos) && !isSlot(o.bound.pos[i]) {
			panic(&ConfigError{Op: o.name, Reason: fmt.Sprintf(
				"parameter %q bound both positionally and by name", k)})
		}
		merged[k] = v
	}

	next := o
	next.bound.named = merged
	return next
}

// WithPrecedence returns a copy of the operation using the given
// named-argument precedence. See Precedence.
func (o Operation) WithPrecedence(p Precedence) Operation {
	if o.kind != kindLeaf {
		panic(&ConfigError{Op: o.name, Reason: "WithPrecedence applies to atomic operations only"})
	}
	next := o
	next.bound.precedence = p
	return next
}

// unionRequires merges the context requirements of child operations.
func unionRequires(ops ...Operation) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, op := range ops {
		for _, k := range op.requires {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}
