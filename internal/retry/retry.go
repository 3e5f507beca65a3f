// Package retry holds the single retry policy type used for every retried
// keyboard call: discovery during auto-connect, idempotent session reads and
// per-field reads during a bulk export.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/logging"
	"github.com/muurk/keytune/internal/result"
)

// Policy describes how often and how far apart an operation is attempted.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int `yaml:"max_attempts"`

	// Delay is the wait after the first failure.
	Delay time.Duration `yaml:"delay"`

	// Multiplier grows the delay after each failure. 0 or 1 keeps it constant.
	Multiplier float64 `yaml:"multiplier,omitempty"`

	// MaxDelay caps a growing delay. Zero means uncapped.
	MaxDelay time.Duration `yaml:"max_delay,omitempty"`
}

// Fixed returns a policy with a constant delay.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Delay: delay}
}

// Exponential returns a policy whose delay doubles up to maxDelay.
func Exponential(attempts int, initial, maxDelay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Delay: initial, Multiplier: 2, MaxDelay: maxDelay}
}

// DefaultDiscoveryPolicy is used by auto-connect: 3 attempts 1s apart.
func DefaultDiscoveryPolicy() Policy { return Fixed(3, time.Second) }

// DefaultReadPolicy is used for idempotent session reads: 3 attempts 500ms apart.
func DefaultReadPolicy() Policy { return Fixed(3, 500*time.Millisecond) }

// DefaultFieldPolicy is used for per-field reads during export.
func DefaultFieldPolicy() Policy { return Exponential(3, 50*time.Millisecond, 400*time.Millisecond) }

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if p.Multiplier > 1 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.Delay
		eb.Multiplier = p.Multiplier
		eb.RandomizationFactor = 0
		eb.MaxElapsedTime = 0
		if p.MaxDelay > 0 {
			eb.MaxInterval = p.MaxDelay
		}
		eb.Reset()
		b = eb
	} else {
		b = backoff.NewConstantBackOff(p.Delay)
	}
	b = backoff.WithMaxRetries(b, uint64(p.attempts()-1))
	return backoff.WithContext(b, ctx)
}

// Retryable reports whether another attempt could change the outcome. A
// missing handle, a dropped link or a rejected parameter will not, unless
// the error explicitly says otherwise.
func Retryable(err error) bool {
	var e *errs.Error
	if errors.As(err, &e) && e.Retryable {
		return true
	}
	switch errs.KindOf(err) {
	case errs.KindNoDevice, errs.KindDisconnected, errs.KindValidation,
		errs.KindBusy, errs.KindUnsupported, errs.KindNotDiscoverable:
		return false
	}
	return true
}

// Do runs fn under the policy and returns its value or last error.
// Non-retryable errors end the loop immediately.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) result.Result[T] {
	var (
		value   T
		final   error
		attempt int
	)

	err := backoff.RetryNotify(func() error {
		attempt++
		v, err := fn(ctx)
		if err == nil {
			value = v
			return nil
		}
		if !Retryable(err) {
			final = err
			return nil
		}
		return err
	}, p.backOff(ctx), func(err error, next time.Duration) {
		logging.Noise("Retrying keyboard call",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("next", next),
			zap.Error(err),
		)
	})

	if final != nil {
		return result.Err[T](final)
	}
	if err != nil {
		return result.Err[T](err)
	}
	return result.Ok(value)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
