package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Func defines the function signature for a retryable operation.
type Func func(ctx context.Context) error

// ErrPermanent wraps errors that must not be retried.
var ErrPermanent = errors.New("permanent failure")

// Permanent marks err as not retryable.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Execute performs an operation with a staged retry mechanism.
func Execute(ctx context.Context, cfg *Config, logger *zap.Logger, op Func) error {
	if cfg == nil || !cfg.Enable {
		return op(ctx)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid retry configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	attemptRetry := func(stage string, attempts int, interval time.Duration) (bool, error) {
		for i := 1; i <= attempts; i++ {
			err := op(ctx)
			if err == nil {
				return true, nil
			}
			lastErr = err
			if errors.Is(err, ErrPermanent) {
				return false, err
			}

			logger.Debug("Retry attempt failed",
				zap.String("stage", stage),
				zap.Int("attempt", i),
				zap.Int("attempts", attempts),
				zap.Duration("wait", interval),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(interval):
			}
		}
		return false, nil
	}

	retryStages := []struct {
		name     string
		attempts int
		interval time.Duration
	}{
		{"initial", cfg.InitialAttempts, cfg.InitialInterval},
		{"minute", cfg.MinuteAttempts, cfg.MinuteInterval},
	}

	for _, stage := range retryStages {
		ok, err := attemptRetry(stage.name, stage.attempts, stage.interval)
		if ok {
			return nil
		}
		if err != nil {
			return err
		}
	}

	if cfg.FinalRetryTimeout > 0 {
		finalCtx, cancel := context.WithTimeout(ctx, cfg.FinalRetryTimeout)
		defer cancel()
		if err := op(finalCtx); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("operation failed after all retries: %w", lastErr)
}
