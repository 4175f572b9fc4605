package llmclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebouncer/internal/config"
)

var (
	// ErrCallFailed is returned once every attempt of a model call failed.
	ErrCallFailed = errors.New("model call failed")
	// ErrTimeout is returned when a single attempt exceeded the API timeout.
	// Timeouts are not retried.
	ErrTimeout = errors.New("model call timed out")
)

// attemptFunc performs one provider call. Returning backoff.Permanent stops
// the retry loop.
type attemptFunc func(ctx context.Context) (string, error)

// callWithRetry runs attempt up to MaxRetries times with a constant
// RetryDelay between attempts. Each attempt is bounded by APITimeout.
func callWithRetry(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger, attempt attemptFunc) (string, error) {
	maxAttempts := max(cfg.MaxRetries, 1)

	var b backoff.BackOff = backoff.NewConstantBackOff(cfg.RetryDelay)
	b = backoff.WithMaxRetries(b, uint64(maxAttempts-1))
	b = backoff.WithContext(b, ctx)

	var (
		result   string
		attempts int
		timedOut bool
	)
	operation := func() error {
		attempts++
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if cfg.APITimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.APITimeout)
		}
		defer cancel()

		start := time.Now()
		text, err := attempt(attemptCtx)
		if err == nil {
			result = text
			return nil
		}
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			timedOut = true
			return backoff.Permanent(fmt.Errorf("call took %s (limit %s): %w", time.Since(start).Round(time.Millisecond), cfg.APITimeout, err))
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Model call attempt failed",
			zap.String("model", cfg.Model),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		if timedOut {
			return "", fmt.Errorf("%w: %s: %w", ErrTimeout, cfg.Model, err)
		}
		return "", fmt.Errorf("%w: %s after %d attempt(s): %w", ErrCallFailed, cfg.Model, attempts, err)
	}
	return result, nil
}

// retryableStatus reports whether an HTTP status is worth another attempt.
func retryableStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
