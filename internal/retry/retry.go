// Package retry runs fallible operations with exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/spigell/cv-evaluator/internal/utils"

	"go.uber.org/zap"
)

var ErrInvalidAttempts = errors.New("retry attempts must be at least 1")

// Policy bounds how often and how long an operation is retried.
type Policy struct {
	Attempts  int           `mapstructure:"attempts"`
	BaseDelay time.Duration `mapstructure:"base-delay"`
	MaxDelay  time.Duration `mapstructure:"max-delay"`
	Jitter    time.Duration `mapstructure:"jitter"`
}

func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  5 * time.Second,
		Jitter:    250 * time.Millisecond,
	}
}

// Backoff returns the delay before the k-th retry without jitter:
// min(MaxDelay, BaseDelay * 2^(k-1)).
func (p Policy) Backoff(k int) time.Duration {
	if k < 1 || p.BaseDelay <= 0 {
		return 0
	}

	d := p.BaseDelay
	for i := 1; i < k; i++ {
		if (p.MaxDelay > 0 && d >= p.MaxDelay) || d > math.MaxInt64/2 {
			break
		}
		d *= 2
	}

	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}

	return d
}

// Predicate reports whether an error is worth another attempt.
type Predicate func(error) bool

// Never is a predicate that stops after the first failure.
func Never(error) bool { return false }

// Retrier applies a Policy. The zero value is not usable; build it with New.
type Retrier struct {
	policy      Policy
	shouldRetry Predicate
	logger      *zap.Logger

	wait func(ctx context.Context, d time.Duration) error
	rand func() float64
}

func New(policy Policy, shouldRetry Predicate, logger *zap.Logger) (*Retrier, error) {
	if policy.Attempts < 1 {
		return nil, ErrInvalidAttempts
	}

	if shouldRetry == nil {
		shouldRetry = Never
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Retrier{
		policy:      policy,
		shouldRetry: shouldRetry,
		logger:      logger,
		wait:        utils.WaitFor,
		rand:        rand.Float64,
	}, nil
}

func (r *Retrier) Policy() Policy {
	return r.policy
}

// ShouldRetry exposes the injected predicate so callers can classify a final error.
func (r *Retrier) ShouldRetry(err error) bool {
	return err != nil && r.shouldRetry(err)
}

func (r *Retrier) delay(k int) time.Duration {
	d := r.policy.Backoff(k)
	if r.policy.Jitter > 0 {
		d += time.Duration(r.rand() * float64(r.policy.Jitter))
	}
	return d
}

// Do calls fn until it succeeds, the predicate rejects the error, or the
// attempt budget is spent. The last error from fn is returned unchanged.
// A cancelled context interrupts the backoff wait and its error is returned.
func Do[T any](ctx context.Context, r *Retrier, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if r == nil || r.policy.Attempts < 1 {
		return zero, ErrInvalidAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == r.policy.Attempts || !r.shouldRetry(err) {
			break
		}

		d := r.delay(attempt)
		r.logger.Debug("retrying after failure",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", d),
			zap.Error(err),
		)

		if werr := r.wait(ctx, d); werr != nil {
			return zero, werr
		}
	}

	return zero, lastErr
}

// Run is Do for operations without a result.
func Run(ctx context.Context, r *Retrier, op string, fn func(context.Context) error) error {
	_, err := Do(ctx, r, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
