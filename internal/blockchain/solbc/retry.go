// internal/blockchain/solbc/retry.go
package solbc

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// RetryPolicy описывает повтор временных ошибок с экспоненциальной задержкой.
type RetryPolicy struct {
	MaxAttempts       uint
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	IsRetryable       func(error) bool
}

// DefaultRetryPolicy возвращает политику по умолчанию для RPC-вызовов.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
		IsRetryable:       IsRetryableError,
	}
}

// NoRetry выполняет операцию ровно один раз.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, IsRetryable: func(error) bool { return false }}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.BaseDelay > 0 {
		b.InitialInterval = p.BaseDelay
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	if p.BackoffMultiplier > 0 {
		b.Multiplier = p.BackoffMultiplier
	}
	b.RandomizationFactor = 0
	return b
}

// Retry выполняет op согласно политике. Неповторяемые ошибки возвращаются сразу.
func Retry[T any](ctx context.Context, p RetryPolicy, logger *zap.Logger, op func() (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	isRetryable := p.IsRetryable
	if isRetryable == nil {
		isRetryable = IsRetryableError
	}

	operation := func() (T, error) {
		result, err := op()
		if err != nil && !isRetryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	notify := func(err error, next time.Duration) {
		logger.Debug("Retrying after transient error",
			zap.Error(err),
			zap.Duration("next_retry_in", next))
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(notify),
	)
}
