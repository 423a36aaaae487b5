package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithBackoffSucceedsAfterRetry(t *testing.T) {
	attempts := 0
	err := WithBackoff(context.Background(), &Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}, func(ctx context.Context, attempt int) error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWithBackoffExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := WithBackoff(context.Background(), &Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}, func(ctx context.Context, attempt int) error {
		attempts++
		return fmt.Errorf("always fails")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestWithBackoffHonorsRetryAfterFloor(t *testing.T) {
	start := time.Now()
	attempts := 0
	err := WithBackoff(context.Background(), &Config{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}, func(ctx context.Context, attempt int) error {
		attempts++
		if attempts == 1 {
			return &RetryAfterError{Delay: 100 * time.Millisecond, Err: errors.New("rate limited")}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond,
		"server-requested delay must floor the backoff interval")
}

func TestWithBackoffCapsRetryAfterAtMaxDelay(t *testing.T) {
	start := time.Now()
	attempts := 0
	err := WithBackoff(context.Background(), &Config{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}, func(ctx context.Context, attempt int) error {
		attempts++
		if attempts == 1 {
			return &RetryAfterError{Delay: time.Hour, Err: errors.New("rate limited")}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
