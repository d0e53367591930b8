package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/txnflow/internal/service"
	"go.uber.org/zap"
)

// ErrMaxRetries indicates that all retry attempts have been exhausted.
var ErrMaxRetries = errors.New("max retries exceeded")

// IsPermanent reports whether another attempt cannot succeed: the caller gave
// up, the object does not exist, or the input or configuration is invalid.
func IsPermanent(err error) bool {
	var dfErr *DataFormatError
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.As(err, &dfErr)
}

// WithRetry runs operation with exponential backoff. Permanent errors are
// returned unchanged. An error that survives every attempt is returned as a
// TransientIOError for op wrapping ErrMaxRetries.
func WithRetry(ctx context.Context, logger *zap.Logger, op string, operation func() error, opts service.RetryOptions) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	delay := opts.InitialDelay
	for attempt := 1; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		if attempt == opts.MaxAttempts {
			return Transient(op, fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, attempt, err))
		}

		logger.Warn("operation failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", opts.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(time.Duration(float64(delay)*opts.Multiplier), opts.MaxDelay)
	}
}
