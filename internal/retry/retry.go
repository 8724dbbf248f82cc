// Package retry wraps flaky remote calls in a linear backoff loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultMaxAttempts = 5
	defaultUnit        = 10 * time.Second
)

// ErrExhausted is wrapped into the error returned once every attempt failed.
var ErrExhausted = errors.New("retries exhausted")

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes how often and how long to wait between attempts.
// The n-th failed attempt is followed by a pause of n*Unit (10s, 20s, 30s, ...).
type Policy struct {
	MaxAttempts int
	Unit        time.Duration

	// Sleep defaults to a timer that honours context cancellation.
	Sleep SleepFunc
	// OnRetry, if set, is called after every failed attempt that will be retried.
	OnRetry func(call string, attempt int, err error)
	Logger  *slog.Logger
}

// DefaultPolicy returns five attempts with a ten second unit.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: defaultMaxAttempts, Unit: defaultUnit}
}

// Delay returns the pause that follows the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	unit := p.Unit
	if unit <= 0 {
		unit = defaultUnit
	}
	return time.Duration(attempt) * unit
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p Policy) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes op until it succeeds or the policy's attempts are used up.
func (p Policy) Run(ctx context.Context, call string, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, call, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do executes op until it succeeds or the policy's attempts are used up and
// returns op's value. The final failure is returned wrapped in ErrExhausted.
// A cancelled context stops the loop during a pause and returns ctx.Err().
func Do[T any](ctx context.Context, p Policy, call string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		left := attempts - attempt
		p.logger().Error("remote call failed", "call", call, "error", err, "retries_left", left)
		if left == 0 {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(call, attempt, err)
		}
		if err := p.sleep(ctx, p.Delay(attempt)); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%s: %w after %d attempts: %w", call, ErrExhausted, attempts, lastErr)
}
