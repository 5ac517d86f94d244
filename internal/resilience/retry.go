package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	// A value of 1 means no retries.
	MaxAttempts int

	// AttemptTimeout limits each attempt. Zero means no per-attempt limit.
	AttemptTimeout time.Duration

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	// JitterFraction adds random jitter as a fraction of the computed delay
	// (0.0 = no jitter, 0.5 = +/-50%).
	JitterFraction float64

	// ShouldRetry overrides IsRetryable.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy allows one retry after a short backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// WithRetries returns a copy of p allowing retries additional attempts.
func (p Policy) WithRetries(retries int) Policy {
	if retries < 0 {
		retries = 0
	}
	p.MaxAttempts = retries + 1
	return p
}

// WithTimeout returns a copy of p with the given per-attempt timeout.
func (p Policy) WithTimeout(d time.Duration) Policy {
	p.AttemptTimeout = d
	return p
}

// Retry runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. It returns the value, the number of attempts made
// and the last error. Each attempt gets its own deadline when AttemptTimeout
// is set; an expired attempt deadline is retryable, a cancelled parent
// context is not.
func Retry[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, int, error) {
	p = applyDefaults(p)

	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}

	var zero T
	var lastErr error
	attempts := 0
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		attempts++
		val, err := runAttempt(ctx, p.AttemptTimeout, fn)
		if err == nil {
			return val, attempts, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, attempts, lastErr
		}
		if !shouldRetry(lastErr) {
			return zero, attempts, lastErr
		}
		if attempt >= p.MaxAttempts-1 {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, lastErr)
		}

		timer := time.NewTimer(computeBackoff(attempt, p))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempts, lastErr
		case <-timer.C:
		}
	}

	return zero, attempts, lastErr
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	val, err := fn(attemptCtx)
	if err == nil && attemptCtx.Err() != nil && ctx.Err() == nil {
		// fn ignored its deadline; the result is late and still discarded.
		var zero T
		return zero, attemptCtx.Err()
	}
	return val, err
}

func applyDefaults(p Policy) Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 500 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 10 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	return p
}

func computeBackoff(attempt int, p Policy) time.Duration {
	delay := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt))
	if delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}

	if p.JitterFraction > 0 {
		jitterRange := delay * p.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(stage, callsign string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying stage",
			zap.String("stage", stage),
			zap.String("callsign", callsign),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
