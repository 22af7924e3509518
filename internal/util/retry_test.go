package util

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Do(t *testing.T) {
	t.Run("retries until success", func(t *testing.T) {
		p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
		calls := 0
		err := p.Do(context.Background(), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("flaky")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("returns last error after max attempts", func(t *testing.T) {
		p := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}
		calls := 0
		err := p.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return errors.New("down")
		})
		require.EqualError(t, err, "down")
		require.Equal(t, 2, calls)
	})

	t.Run("permanent errors stop immediately", func(t *testing.T) {
		p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}
		sentinel := errors.New("bad request")
		calls := 0
		err := p.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return Permanent(sentinel)
		})
		require.ErrorIs(t, err, sentinel)
		require.Equal(t, 1, calls)
	})

	t.Run("each attempt gets a deadline", func(t *testing.T) {
		p := RetryPolicy{MaxAttempts: 1, Timeout: 10 * time.Millisecond}
		err := p.Do(context.Background(), func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := p.Do(ctx, func(ctx context.Context) error {
			calls++
			cancel()
			return errors.New("down")
		})
		require.Error(t, err)
		require.Equal(t, 1, calls)
	})
}

func TestStartOfDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 02:00 UTC on the 2nd is still the 1st in New York
	in := time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC)
	out := StartOfDay(in, ny)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, ny), out)
	require.Equal(t, 3, DaysBetween(NewDate(2024, 1, 1), NewDate(2024, 1, 4)))
}
