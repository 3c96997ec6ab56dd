package metering

import (
	"context"
	"errors"
	"time"

	"github.com/campreserve/backend/internal/domain/shared"
)

// Retry policy for operations that lose an optimistic-lock or serialization
// race. The retried function reloads its state on every attempt, so a retry
// observes the winning writer's outcome.
const (
	conflictRetryAttempts = 3
	conflictRetryBackoff  = 50 * time.Millisecond
)

// withConflictRetry runs fn, retrying with exponential backoff while it fails
// with ErrConcurrencyConflict. Any other error, or exhausting the attempts,
// returns the last error unchanged.
func withConflictRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < conflictRetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := conflictRetryBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err = fn(ctx)
		if err == nil || !errors.Is(err, shared.ErrConcurrencyConflict) {
			return err
		}
	}
	return err
}
