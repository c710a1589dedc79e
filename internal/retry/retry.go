// Package retry runs bounded, constant-interval retries for gateway calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrTransport marks a gateway failure that persisted through every attempt.
var ErrTransport = errors.New("transport error")

// Policy is a fixed number of attempts separated by a constant delay.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// Notify is called after each failed attempt that will be retried.
type Notify func(attempt int, err error, next time.Duration)

// Permanent wraps err so Do returns it immediately without further attempts.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls op until it succeeds, returns a permanent error, the attempts run
// out or ctx is done. The last error from op is returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error, notify Notify) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(attempts-1)),
		ctx,
	)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return op(ctx)
	}, b, func(err error, next time.Duration) {
		if notify != nil {
			notify(attempt, err, next)
		}
	})
}

// Transport runs op under the policy and tags a final failure as ErrTransport.
// Errors op marks Permanent are returned untagged.
func (p Policy) Transport(ctx context.Context, name string, op func(ctx context.Context) error, notify Notify) error {
	permanent := false
	err := p.Do(ctx, func(ctx context.Context) error {
		err := op(ctx)
		var perm *backoff.PermanentError
		permanent = errors.As(err, &perm)
		return err
	}, notify)
	if err == nil || permanent || ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("%w: %s failed after %d attempts: %w", ErrTransport, name, max(p.Attempts, 1), err)
}
