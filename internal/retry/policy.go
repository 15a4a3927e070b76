// Package retry implements the explicit bounded-retry policy composed around
// each workflow stage call.
package retry

import (
	"context"
	"time"

	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 4 * time.Second
	DefaultMaxDelay    = 15 * time.Second
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy bounds the number of attempts and the exponential backoff between them.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Sleep defaults to a context-aware timer; tests inject a no-op.
	Sleep SleepFunc
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Default returns 5 attempts with delays of 4s, 8s, 15s, 15s.
func Default() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// NoWait returns a policy with the given attempt budget that never sleeps.
func NoWait(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

// Delay is the wait after the given failed attempt (1-based): BaseDelay doubled
// per attempt, capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Do runs op until it succeeds, fails with a non-transient error, or the
// attempt budget is spent. It returns the number of attempts made and the
// last error.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return attempt, nil
		}
		if !rcerrors.IsTransient(err) || attempt == maxAttempts {
			return attempt, err
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return attempt, err
		}
	}
	return maxAttempts, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
