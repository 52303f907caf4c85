// Package retry provides backoff policies and the retry loop shared by
// every call site that talks to the outside world.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/agiworkforce/workforce/internal/errdefs"
)

// Strategy selects how delays grow between attempts.
type Strategy int

const (
	// StrategyConstant repeats the initial delay on every attempt.
	StrategyConstant Strategy = iota
	// StrategyLinear grows the delay by the initial delay each attempt.
	StrategyLinear
	// StrategyExponential multiplies the delay by Factor each attempt.
	StrategyExponential
)

// Policy configures retry behavior for one call site.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the delay after the first failure.
	InitialDelay time.Duration
	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration
	// Backoff selects the growth strategy.
	Backoff Strategy
	// Factor is the exponential multiplier (ignored for other strategies).
	Factor float64
	// Jitter perturbs each delay by up to ±20%.
	Jitter bool
}

// Per-site presets. Databases get more, faster attempts; LLM calls back
// off longer to ride out rate-limit windows.

// Browser returns the retry policy for browser automation calls.
func Browser() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 10 * time.Second, Backoff: StrategyExponential, Factor: 2.0, Jitter: true}
}

// Network returns the retry policy for generic network calls.
func Network() Policy {
	return Policy{MaxAttempts: 4, InitialDelay: time.Second, MaxDelay: 30 * time.Second, Backoff: StrategyExponential, Factor: 2.0, Jitter: true}
}

// Database returns the retry policy for database calls.
func Database() Policy {
	return Policy{MaxAttempts: 5, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Backoff: StrategyExponential, Factor: 1.5, Jitter: true}
}

// Filesystem returns the retry policy for file I/O.
func Filesystem() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 3 * time.Second, Backoff: StrategyExponential, Factor: 2.0, Jitter: true}
}

// LLM returns the retry policy for LLM provider calls.
func LLM() Policy {
	return Policy{MaxAttempts: 4, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Backoff: StrategyExponential, Factor: 2.0, Jitter: true}
}

// ByName resolves a preset by the name used in recovery actions and
// configuration. Unknown names fall back to Network.
func ByName(name string) Policy {
	switch name {
	case "browser":
		return Browser()
	case "network":
		return Network()
	case "database":
		return Database()
	case "filesystem":
		return Filesystem()
	case "llm":
		return LLM()
	default:
		return Network()
	}
}

// Delay computes the sleep before retrying after attempt n (0-based),
// before jitter: min(MaxDelay, InitialDelay * Factor^n).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	initial := p.InitialDelay
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}

	var d float64
	switch p.Backoff {
	case StrategyConstant:
		d = float64(initial)
	case StrategyLinear:
		d = float64(initial) * float64(attempt+1)
	default:
		factor := p.Factor
		if factor <= 0 {
			factor = 2.0
		}
		d = float64(initial) * math.Pow(factor, float64(attempt))
	}
	if d > float64(maxDelay) {
		d = float64(maxDelay)
	}
	return time.Duration(d)
}

func (p Policy) sleep(attempt int) time.Duration {
	d := p.Delay(attempt)
	if p.Jitter {
		// ±20%
		d = time.Duration(float64(d) * (0.8 + 0.4*rand.Float64())) // #nosec G404 -- jitter needs no crypto randomness
	}
	return d
}

// Result reports the outcome of a retried operation.
type Result struct {
	// Attempts is the number of attempts made.
	Attempts int
	// Err is the final error, nil on success.
	Err error
	// Duration is the total time spent including sleeps.
	Duration time.Duration
}

// Do runs op under the policy, sleeping between attempts. It stops early
// on success, on a non-retryable error (per errdefs classification), or
// when ctx is done.
func Do(ctx context.Context, policy Policy, op func() error) Result {
	start := time.Now()
	result := Result{}

	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result.Attempts = attempt + 1

		if ctx.Err() != nil {
			result.Err = ctx.Err()
			break
		}

		err := op()
		if err == nil {
			result.Err = nil
			break
		}
		result.Err = err

		if !retryable(err) {
			break
		}
		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			result.Err = ctx.Err()
			result.Duration = time.Since(start)
			return result
		case <-time.After(policy.sleep(attempt)):
		}
	}

	result.Duration = time.Since(start)
	return result
}

// DoWithValue runs an op returning a value under the policy.
func DoWithValue[T any](ctx context.Context, policy Policy, op func() (T, error)) (T, Result) {
	var value T
	result := Do(ctx, policy, func() error {
		var err error
		value, err = op()
		return err
	})
	return value, result
}

// PermanentError marks an error as non-retryable regardless of its
// taxonomy classification.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do stops immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func retryable(err error) bool {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}
	if _, ok := errdefs.AsError(err); ok {
		return errdefs.IsRetryable(err)
	}
	// Plain errors from arbitrary call sites retry: the caller opted into
	// a retry policy, and classification only vetoes known-permanent kinds.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
