package crawler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Retry defaults shared by the navigation and extraction steps.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// WithRetry runs fn and retries it up to maxRetries times at a fixed delay,
// so an operation is attempted at most maxRetries+1 times in total. The
// final failure is returned unchanged. Each call owns its own attempt
// counter; the sleep between attempts respects ctx cancellation and never
// stalls anything but the calling task.
func WithRetry[T any](
	ctx context.Context,
	logger *zap.Logger,
	op string,
	maxRetries int,
	delay time.Duration,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		remaining := maxRetries - attempt
		if remaining <= 0 {
			return zero, err
		}
		logger.Warn("operation failed, retrying",
			zap.String("op", op),
			zap.Duration("delay", delay),
			zap.Int("attempts_left", remaining),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
}
