package evasion

import (
	"context"
	"time"

	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/types"
	"go.uber.org/zap"
)

// SessionStrategy reports whether a failed attempt poisoned the session.
type SessionStrategy func(err error) bool

// InvalidateOnChallenge resets the session only after an unsolved challenge.
func InvalidateOnChallenge(err error) bool {
	return types.IsChallenge(err)
}

func NeverInvalidate(error) bool {
	return false
}

type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Backoff    BackoffPolicy
	Session    SessionStrategy
	// OnInvalidate runs when Session asks for a fresh session.
	OnInvalidate func(ctx context.Context)
	// Sleep defaults to the context-aware Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Retry runs fn until it succeeds, fails with a non-retryable error, ctx
// ends or MaxRetries attempts are used up. Backoff sleeps happen on the
// calling goroutine.
func Retry[T any](ctx context.Context, op string, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	maxRetries := max(policy.MaxRetries, 1)
	backoff := policy.Backoff
	if backoff == nil {
		backoff = ExponentialJitterBackoff{Jitter: DefaultJitter}
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				zap.L().Info("evasion: succeeded after retry", zap.String("op", op), zap.Int("attempt", attempt))
			}
			return v, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !types.IsRetryable(err) {
			zap.L().Warn("evasion: giving up, error is not retryable",
				zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
			return zero, err
		}

		zap.L().Warn("evasion: attempt failed",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Bool("challenge", types.IsChallenge(err)),
			zap.Error(err))

		if policy.Session != nil && policy.Session(err) && policy.OnInvalidate != nil {
			policy.OnInvalidate(ctx)
		}

		if attempt == maxRetries {
			break
		}
		delay := backoff.Delay(attempt, policy.BaseDelay)
		zap.L().Info("evasion: backing off", zap.String("op", op), zap.Duration("delay", delay))
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, &types.RetriesExhaustedError{Attempts: maxRetries, Err: lastErr}
}
