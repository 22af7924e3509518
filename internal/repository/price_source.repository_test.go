package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"agentbacktest/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestBarWindow(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	type call struct {
		symbol     string
		start, end time.Time
	}
	calls := []call{}
	fail := false

	w := newBarWindow(func(ctx context.Context, symbol string, start, end time.Time) ([]domain.MarketData, error) {
		calls = append(calls, call{symbol, start, end})
		if fail {
			return nil, errors.New("upstream down")
		}
		return []domain.MarketData{
			{Symbol: symbol, Date: time.Date(start.Year(), 3, 4, 0, 0, 0, 0, time.UTC), Close: float64(start.Year())},
		}, nil
	}, func() time.Time { return now })

	ctx := context.Background()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	bar, err := w.get(ctx, "AAPL", time.Date(2024, 3, 4, 0, 0, 0, 0, ny))
	require.NoError(t, err)
	require.Equal(t, 2024.0, bar.Close)
	require.Equal(t, ny, bar.Date.Location(), "bar takes the requested date")

	bar, err = w.get(ctx, "AAPL", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Nil(t, bar)

	_, err = w.get(ctx, "AAPL", time.Date(2023, 3, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = w.get(ctx, "MSFT", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, calls, 3)
	require.True(t, calls[0].end.Equal(now), "window is capped at now")
	require.True(t, calls[1].end.Equal(time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)))
	require.Equal(t, "MSFT", calls[2].symbol)

	fail = true
	_, err = w.get(ctx, "NVDA", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
	require.ErrorContains(t, err, "upstream down")
	fail = false
	bar, err = w.get(ctx, "NVDA", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err, "failed fetches are not memoized")
	require.NotNil(t, bar)
}

func TestRunWithContext(t *testing.T) {
	v, err := runWithContext(context.Background(), func() (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, v)

	release := make(chan struct{})
	defer close(release)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = runWithContext(ctx, func() (int, error) {
		<-release
		return 0, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
