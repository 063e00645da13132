// Package opz provides a composable operation abstraction for Go: typed,
// chainable units of work whose outcome is always an explicit Result value,
// unifying direct and future-returning callables under one calling
// convention.
//
// # Overview
//
// opz separates "what to do" from "what to do it with". Callables are lifted
// into immutable Operations, composed into trees with pure combinators, and
// executed by an Engine that drives the tree to exactly one terminal Result.
// No fault escapes a run: panics, binding problems, timeouts, and domain
// errors all travel inside the Result's failure branch.
//
// # Core Concepts
//
// Operation is an immutable node: either an atomic leaf wrapping one
// callable or a composite built by a combinator. Combinators never mutate;
// each call returns a new node wrapping the old ones, so Operations are
// freely shareable and reusable across concurrent runs.
//
// Result is samber/mo's Result specialized to any. Exactly one of the
// success or failure branch is active.
//
// Context is an immutable, layered key-value environment threaded through a
// single run. Operations declare context-sourced parameters with
// FromContext; scopes created with WithValues extend the environment for a
// subtree without touching the parent.
//
// Engine is the execution entry point, owning the clock and the
// observability surface (metrics, spans, typed hooks).
//
// # Quick Start
//
//	add := opz.Lift("add", func(a, b int) int { return a + b },
//	    opz.Params("a", "b"))
//	double := opz.Lift("double", func(n int) int { return n * 2 },
//	    opz.Params("n"))
//
//	pipeline := add.Then(double)
//
//	result := opz.Run(context.Background(), pipeline, 1, 2)
//	value, err := result.Get() // 6, nil
//
// # Partial Application
//
// Bind supplies arguments ahead of time; Slot marks positions filled at
// call time:
//
//	mul := opz.Lift("mul", func(x, y int) int { return x * y },
//	    opz.Params("x", "y"))
//	triple := mul.Bind(opz.Slot, 3)
//
//	opz.Run(ctx, triple, 7) // Ok(21)
//
// # Combinators
//
//   - Then: sequence; failure short-circuits, success feeds the next node
//   - Map: transform success values; failures pass through
//   - OrElse: on failure, run an alternate with the original arguments
//   - When: predicate-selected branch
//   - Parallel: fan-out with PolicyAll or PolicyFirstSuccess
//   - Retry: bounded re-execution with Fixed or Exponential backoff
//   - Timeout: deadline per invocation, expiry becomes ErrTimeout
//   - WithValues: extend the Context for a subtree
//
// Invalid combinator configuration (zero retry attempts, empty parallel,
// uninspectable callable) panics with a *ConfigError at build time; every
// runtime condition is a Result failure instead.
//
// # Error Handling
//
// Failures carry a rich *Error with the path of combinator names leading to
// the failing node:
//
//	if _, err := result.Get(); err != nil {
//	    var opErr *opz.Error
//	    if errors.As(err, &opErr) {
//	        log.Printf("failed at %s: %v", strings.Join(opErr.Path, " -> "), opErr.Err)
//	    }
//	}
//
// # Observability
//
// Engines expose metricz counters and gauges, tracez spans per node, and
// hookz events for run completion, sequence stages, retry attempts,
// fallback engagement, parallel branch settlement, and conditional
// decisions. Delays and deadlines run on a clockz clock, so tests advance a
// fake clock instead of sleeping.
package opz
