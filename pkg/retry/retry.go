// Package retry runs a single record-store operation with a bounded number of
// attempts. Only errors the store marks as transient are retried.
package retry

import (
	"context"
	"time"

	goretry "github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"jobybot/pkg/metrics"
	"jobybot/pkg/store"
)

const (
	DefaultMaxAttempts = 3
	DefaultDelay       = time.Second
)

// Executor holds the retry policy.
type Executor struct {
	MaxAttempts int
	Delay       time.Duration
	// Jitter is added to or subtracted from Delay at random. Zero disables it.
	Jitter time.Duration
	Logger *zap.Logger
}

// NewExecutor returns an Executor with the default policy.
func NewExecutor(logger *zap.Logger) Executor {
	return Executor{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
		Logger:      logger,
	}
}

func (e Executor) backoff() goretry.Backoff {
	attempts := e.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var b goretry.Backoff
	if e.Delay > 0 {
		b = goretry.NewConstant(e.Delay)
		if e.Jitter > 0 {
			b = goretry.WithJitter(e.Jitter, b)
		}
	} else {
		b = goretry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	}
	return goretry.WithMaxRetries(uint64(attempts-1), b)
}

func (e Executor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Do runs op until it succeeds, fails with a non-transient error or runs out
// of attempts. The last error is returned unchanged.
func Do[T any](ctx context.Context, e Executor, name string, op func(context.Context) (T, error)) (T, error) {
	logger := e.logger()
	attempt := 0

	v, err := goretry.DoValue(ctx, e.backoff(), func(ctx context.Context) (T, error) {
		attempt++
		if attempt > 1 {
			metrics.StoreRetriesTotal.WithLabelValues(name).Inc()
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !store.IsTransient(err) {
			return v, err
		}

		logger.Warn("Transient store failure",
			zap.String("op", name),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return v, goretry.RetryableError(err)
	})
	if err != nil && store.IsTransient(err) {
		metrics.StoreExhaustedTotal.WithLabelValues(name).Inc()
		logger.Error("Store operation failed after retries",
			zap.String("op", name),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
	}
	return v, err
}

// Run is Do for operations without a result.
func Run(ctx context.Context, e Executor, name string, op func(context.Context) error) error {
	_, err := Do(ctx, e, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
