// Package retry re-attempts rate-limited operations with exponential backoff and surfaces every other failure untouched.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"swaploop/internal/metrics"
)

var (
	// ErrRateLimited marks a recoverable "too many requests" failure. Wrap it (or implement Is) to opt into retries.
	ErrRateLimited = errors.New("rate limited")
	// ErrRetriesExhausted is returned once every permitted attempt was rate limited.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// SleepFunc waits for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Policy bounds a single Do invocation.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       SleepFunc
	Log         zerolog.Logger
	Label       string
}

// IsRateLimited reports whether err carries the rate-limit condition.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// Attempts turns a configured retry bound into an attempt count: fractional values are floored and
// anything below zero (or NaN) becomes zero, which means "never attempt".
func Attempts(configured float64) int {
	if math.IsNaN(configured) || configured < 1 {
		return 0
	}
	if configured > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Floor(configured))
}

// Do runs op until it succeeds, fails with a non rate-limit error, or MaxAttempts rate-limited attempts have been made.
// The first retry waits BaseDelay and every following wait doubles. No wait follows the final attempt.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		return zero, fmt.Errorf("%w: max attempts %d", ErrRetriesExhausted, p.MaxAttempts)
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	delays := newDelays(p.BaseDelay)
	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !IsRateLimited(err) {
			return zero, err
		}
		last = err
		if attempt == p.MaxAttempts {
			break
		}

		delay := delays.NextBackOff()
		metrics.RetriesTotal.WithLabelValues(p.Label).Inc()
		p.Log.Warn().
			Str("op", p.Label).
			Int("attempt", attempt).
			Int("max", p.MaxAttempts).
			Dur("delay", delay).
			Msg("rate limited, backing off")
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, p.MaxAttempts, last)
}

func newDelays(base time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
