// Package retry runs operations with a bounded number of attempts and
// exponential backoff between them.
//
// Every error is retried unless it has been marked with Permanent. When the
// attempt budget is consumed, Do returns an *ExhaustedError that wraps the
// final underlying error; errors.Is(err, ErrExhausted) identifies it.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultMaxAttempts is used when Policy.MaxAttempts is zero.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is used when Policy.BaseDelay is zero.
	DefaultBaseDelay = time.Second

	// MaxDelay caps a single backoff. A BaseDelay above it is used as is.
	MaxDelay = 5 * time.Minute
)

// ErrExhausted is matched by errors returned after the attempt budget ran out.
var ErrExhausted = errors.New("retry budget exhausted")

// Policy bounds the number of attempts and scales the backoff.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt. The wait before
	// attempt i+1 (0-indexed i) is BaseDelay * 2^i, capped at MaxDelay.
	BaseDelay time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	return p
}

// Delay returns the backoff applied after the failed attempt with the given
// 0-based index.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	limit := max(MaxDelay, p.BaseDelay)
	d := p.BaseDelay
	for i := 0; i < attempt && d < limit; i++ {
		d *= 2
	}
	return min(d, limit)
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrExhausted) true.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Executor applies a Policy to operations.
type Executor struct {
	Policy Policy

	// Sleep waits between attempts. Defaults to a timer that honours ctx.
	Sleep SleepFunc

	// OnRetry, when set, is called before each backoff sleep with the
	// 0-based index of the failed attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// New returns an Executor for p.
func New(p Policy) *Executor {
	return &Executor{Policy: p}
}

// Do calls op until it succeeds, returns a permanent error, or the attempt
// budget is consumed. A context cancelled during a backoff sleep stops
// retrying and returns the context error wrapped around the last failure.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	p := e.Policy.withDefaults()
	sleep := e.Sleep
	if sleep == nil {
		sleep = timerSleep
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.Delay(attempt)
		if e.OnRetry != nil {
			e.OnRetry(attempt, delay, lastErr)
		}
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}

	return &ExhaustedError{Attempts: p.MaxAttempts, Err: lastErr}
}

func timerSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
