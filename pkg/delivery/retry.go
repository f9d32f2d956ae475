package delivery

import (
	"context"
	"time"
)

// RetryPolicy bounds how often and how slowly an operation is retried
type RetryPolicy struct {
	MaxAttempts int
	// BaseDelay is multiplied by the attempt number before the next attempt
	BaseDelay time.Duration
	// Sleep waits between attempts; nil uses a context-aware timer
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy is 3 attempts with 5s, 10s between them
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 5 * time.Second}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry runs fn until it succeeds or the policy is exhausted. It returns
// the number of attempts made and the last error.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context, attempt int) error) (int, error) {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return attempt, nil
		}
		if attempt == policy.MaxAttempts {
			return attempt, err
		}
		if serr := sleep(ctx, policy.BaseDelay*time.Duration(attempt)); serr != nil {
			return attempt, err
		}
	}
	return policy.MaxAttempts, err
}
