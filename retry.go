package opz

import (
	"context"
	"time"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
)

// Metric keys for retry evaluation.
const (
	// RetryAttemptsTotal counts every retry attempt across all operations.
	RetryAttemptsTotal = metricz.Key("retry.attempts.total")
	// RetryExhaustedTotal counts retries that failed on their final attempt.
	RetryExhaustedTotal = metricz.Key("retry.exhausted.total")
)

// Hook event keys for retry evaluation.
const (
	// EventRetryAttempt fires after each attempt settles.
	EventRetryAttempt = hookz.Key("retry.attempt")
)

// AttemptEvent reports one settled retry attempt.
type AttemptEvent struct {
	Name        Name          // retry name
	Attempt     int           // 1-based attempt number
	MaxAttempts int           // configured attempt budget
	Success     bool          // whether this attempt succeeded
	Error       error         // failure cause, if any
	Delay       time.Duration // delay before the next attempt, zero on the last
	Timestamp   time.Time     // when the attempt settled
}

// retryConfig holds a retry node's parameters.
type retryConfig struct {
	attempts int
	backoff  Backoff
}

// Retry wraps this operation with re-execution on failure: up to attempts
// invocations, waiting the backoff policy's delay between them, returning
// the first success or the final failure. Context cancellation between
// attempts converts to a failure rather than another attempt.
//
//	call := opz.Lift("call-api", callAPI, opz.Params("req")).
//	    Retry(5, opz.Exponential(100*time.Millisecond, 2*time.Second))
//
// Fewer than one attempt is a configuration mistake and panics with a
// *ConfigError at build time. A nil backoff retries immediately.
func (o Operation) Retry(attempts int, backoff Backoff) Operation {
	if attempts < 1 {
		panic(&ConfigError{Op: o.name, Reason: "retry requires at least one attempt"})
	}
	if backoff == nil {
		backoff = Fixed(0)
	}
	return Operation{
		name:     o.name + ".retry",
		kind:     kindRetry,
		children: []Operation{o},
		retry:    retryConfig{attempts: attempts, backoff: backoff},
		requires: unionRequires(o),
	}
}

// evalRetry drives a retry node. Delays come from the engine clock so tests
// can advance a fake clock instead of sleeping.
func (e *Engine) evalRetry(ctx context.Context, env *Context, op Operation, call Call) Result {
	child := op.children[0]
	cfg := op.retry
	clock := e.getClock()

	var last Result
	for attempt := 1; attempt <= cfg.attempts; attempt++ {
		res := e.eval(ctx, env, child, call)
		e.metrics.Counter(RetryAttemptsTotal).Inc()

		var delay time.Duration
		if res.IsError() && attempt < cfg.attempts {
			delay = cfg.backoff.Delay(attempt)
		}
		_ = e.attemptHooks.Emit(ctx, EventRetryAttempt, AttemptEvent{ //nolint:errcheck
			Name:        op.name,
			Attempt:     attempt,
			MaxAttempts: cfg.attempts,
			Success:     res.IsOk(),
			Error:       res.Error(),
			Delay:       delay,
			Timestamp:   clock.Now(),
		})

		if res.IsOk() {
			return res
		}
		last = res

		if attempt == cfg.attempts {
			break
		}
		if delay > 0 {
			select {
			case <-clock.After(delay):
			case <-ctx.Done():
				return Fail(ctx.Err())
			}
		} else if ctx.Err() != nil {
			return Fail(ctx.Err())
		}
	}

	e.metrics.Counter(RetryExhaustedTotal).Inc()
	return last
}

// OnRetryAttempt registers a handler invoked after each retry attempt
// settles.
func (e *Engine) OnRetryAttempt(handler func(context.Context, AttemptEvent) error) error {
	_, err := e.attemptHooks.Hook(EventRetryAttempt, handler)
	return err
}
