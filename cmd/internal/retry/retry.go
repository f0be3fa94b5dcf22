// Package retry bounds an operation with a per-attempt timeout and retries it on transient failure.
//
// Store and upload calls use it so that a stalled round-trip can never hang a request, while a
// single flaky round-trip does not surface as a user-visible failure.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrTransient marks an error as safe to retry. Wrap with Transient.
var ErrTransient = errors.New("transient failure")

type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }

func (e transientError) Unwrap() []error { return []error{e.err, ErrTransient} }

// Transient wraps err so that IsTransient reports true. Nil stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) {
		return err
	}
	return transientError{err: err}
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Policy configures Do.
type Policy struct {
	// Attempts is the total number of attempts (including the first). Values < 1 mean 1.
	Attempts int
	// Timeout bounds each attempt. Zero means no per-attempt bound.
	Timeout time.Duration
	// Backoff is slept between attempts.
	Backoff time.Duration
}

// Once is the default policy: one retry on transient failure.
func Once(timeout time.Duration) Policy {
	return Policy{Attempts: 2, Timeout: timeout, Backoff: 50 * time.Millisecond}
}

// Do runs op under p. Each attempt receives its own bounded context.
//
// An attempt that hits its own deadline while the parent context is still alive counts as
// transient. Non-transient errors and parent cancellation stop immediately.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			if err != nil {
				return err
			}
			return cerr
		}

		err = runAttempt(ctx, p.Timeout, op)
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == attempts {
			return err
		}

		if p.Backoff > 0 {
			t := time.NewTimer(p.Backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return err
			case <-t.C:
			}
		}
	}
	return err
}

func runAttempt(parent context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		return op(parent)
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	err := op(ctx)
	if err != nil && parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Transient(err)
	}
	return err
}
