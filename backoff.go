package opz

import "time"

// Backoff computes the delay before the next retry attempt. The attempt
// argument is the number of failures so far, starting at 1.
type Backoff interface {
	Delay(attempt int) time.Duration
}

type fixedBackoff time.Duration

func (b fixedBackoff) Delay(int) time.Duration {
	return time.Duration(b)
}

// Fixed returns a backoff policy with the same delay between every attempt.
// A zero duration retries immediately.
func Fixed(d time.Duration) Backoff {
	if d < 0 {
		panic(&ConfigError{Op: "backoff", Reason: "fixed delay must not be negative"})
	}
	return fixedBackoff(d)
}

type exponentialBackoff struct {
	base time.Duration
	cap  time.Duration
}

func (b exponentialBackoff) Delay(attempt int) time.Duration {
	d := b.base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.cap {
			return b.cap
		}
	}
	if d > b.cap {
		return b.cap
	}
	return d
}

// Exponential returns a doubling backoff policy: base, 2*base, 4*base, ...
// capped at cap. Delays of base <= 0 or cap < base panic with a
// *ConfigError.
func Exponential(base, cap time.Duration) Backoff {
	if base <= 0 {
		panic(&ConfigError{Op: "backoff", Reason: "exponential base must be positive"})
	}
	if cap < base {
		panic(&ConfigError{Op: "backoff", Reason: "exponential cap must be at least the base"})
	}
	return exponentialBackoff{base: base, cap: cap}
}
