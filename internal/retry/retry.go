// Package retry provides a small bounded-retry policy shared by the portal
// login and the week harvester. Nothing in this tool is retried more than
// once automatically; repeated failure is always surfaced to the caller.
package retry

import (
	"context"
	"time"
)

// Policy describes how an operation may be retried: how many attempts in
// total, how long to wait between them, and which errors are worth another
// attempt at all.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	Retryable   func(error) bool
}

// Default is the policy used throughout: one retry with a short fixed
// backoff, for errors the caller marks as transient.
func Default(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: 2,
		Backoff:     2 * time.Second,
		Retryable:   retryable,
	}
}

// Do runs fn up to p.MaxAttempts times. It returns nil on the first success
// and the last error otherwise. Non-retryable errors are returned
// immediately. The backoff sleep respects context cancellation.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}

		if err = fn(ctx); err == nil {
			return nil
		}

		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		if werr := sleep(ctx, p.Backoff); werr != nil {
			return werr
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
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
