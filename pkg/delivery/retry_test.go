package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func recordSleeps(sleeps *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return ctx.Err()
	}
}

// TestRetry tests attempt counting and linear backoff
func TestRetry(t *testing.T) {
	tests := []struct {
		name         string
		failures     int
		wantAttempts int
		wantErr      bool
		wantSleeps   []time.Duration
	}{
		{name: "first try", failures: 0, wantAttempts: 1},
		{name: "second try", failures: 1, wantAttempts: 2, wantSleeps: []time.Duration{5 * time.Second}},
		{name: "third try", failures: 2, wantAttempts: 3, wantSleeps: []time.Duration{5 * time.Second, 10 * time.Second}},
		{name: "exhausted", failures: 5, wantAttempts: 3, wantErr: true, wantSleeps: []time.Duration{5 * time.Second, 10 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sleeps []time.Duration
			policy := DefaultRetryPolicy
			policy.Sleep = recordSleeps(&sleeps)

			calls := 0
			attempts, err := Retry(context.Background(), policy, func(ctx context.Context, attempt int) error {
				calls++
				assert.Equal(t, calls, attempt)
				if calls <= tt.failures {
					return errors.New("unavailable")
				}
				return nil
			})

			assert.Equal(t, tt.wantAttempts, attempts)
			assert.Equal(t, tt.wantAttempts, calls)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.wantSleeps, sleeps)
		})
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	attempts, err := Retry(ctx, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour}, func(context.Context, int) error {
		calls++
		return errors.New("down")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestRetryZeroAttempts(t *testing.T) {
	attempts, err := Retry(context.Background(), RetryPolicy{}, func(context.Context, int) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}
