package opz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTimeout is the sentinel carried by failures produced when a Timeout
// combinator's deadline expires. Use errors.Is to detect it:
//
//	if err := result.Error(); errors.Is(err, opz.ErrTimeout) {
//	    // deadline expired before the operation settled
//	}
var ErrTimeout = errors.New("operation deadline exceeded")

// Error provides rich context about an operation failure. It wraps the
// underlying cause with the path of combinator names leading to the failing
// node, the call-time arguments that were in flight, and timing information.
//
// Every failure produced during a run is carried inside the returned Result's
// failure branch as an *Error. Use errors.As to recover it:
//
//	if _, err := result.Get(); err != nil {
//	    var opErr *opz.Error
//	    if errors.As(err, &opErr) {
//	        log.Printf("failed at: %s", strings.Join(opErr.Path, " -> "))
//	    }
//	}
type Error struct {
	Timestamp time.Time
	Err       error
	Path      []Name
	InputArgs []any
	Duration  time.Duration
	Timeout   bool
	Canceled  bool
}

// Error implements the error interface with a detailed message.
func (e *Error) Error() string {
	location := strings.Join(e.Path, " -> ")
	if location == "" {
		location = "unknown"
	}
	if e.Timeout {
		return fmt.Sprintf("%s timed out after %v: %v", location, e.Duration, e.Err)
	}
	if e.Canceled {
		return fmt.Sprintf("%s canceled after %v: %v", location, e.Duration, e.Err)
	}
	return fmt.Sprintf("%s failed after %v: %v", location, e.Duration, e.Err)
}

// Unwrap returns the underlying error, supporting errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether the failure was caused by a deadline.
func (e *Error) IsTimeout() bool {
	return e.Timeout || errors.Is(e.Err, ErrTimeout) || errors.Is(e.Err, context.DeadlineExceeded)
}

// IsCanceled reports whether the failure was caused by cancellation.
func (e *Error) IsCanceled() bool {
	return e.Canceled || errors.Is(e.Err, context.Canceled)
}

// BindingError reports that an operation's arguments could not be resolved
// at call time: a required parameter was left unbound, a placeholder had no
// corresponding call-time value, a supplied value did not fit the parameter's
// type, or the same parameter was targeted both positionally and by name in
// the same call.
//
// BindingError is a runtime condition: it travels inside the failure branch
// of the Result, never as a panic.
type BindingError struct {
	Op     Name
	Param  string
	Reason string
}

// Error implements the error interface.
func (e *BindingError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("binding %q: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("binding %q: parameter %q: %s", e.Op, e.Param, e.Reason)
}

// ConfigError reports invalid combinator configuration: a retry with fewer
// than one attempt, a parallel with no branches, a callable shape Lift cannot
// inspect, or a partial application that cannot possibly bind.
//
// Unlike runtime failures, configuration mistakes are programming errors and
// are detected when the operation is built. Constructors panic with a
// *ConfigError rather than deferring the fault to execution time.
type ConfigError struct {
	Op     Name
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %q: %s", e.Op, e.Reason)
}

// InvocationFault reports that a wrapped callable (or a transform or
// predicate function) panicked during execution. The panic is contained at
// the invocation boundary and converted into a failure carrying the
// recovered value and the goroutine stack at the point of the panic.
type InvocationFault struct {
	Op        Name
	Recovered any
	Stack     []byte
}

// Error implements the error interface.
func (e *InvocationFault) Error() string {
	return fmt.Sprintf("operation %q panicked: %v", e.Op, e.Recovered)
}
