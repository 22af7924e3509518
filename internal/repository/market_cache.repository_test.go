package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"agentbacktest/internal/domain"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func sampleBar(symbol string, date time.Time, close float64) domain.MarketData {
	return domain.MarketData{
		Symbol: symbol,
		Date:   date,
		Open:   close - 1,
		High:   close + 1,
		Low:    close - 2,
		Close:  close,
		Volume: 1200,
		Indicators: map[string]float64{
			"rsi_14": 48.5,
		},
		Source: "yahoo",
	}
}

func TestMarketDataCache(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	type testCase struct {
		name  string
		build func(t *testing.T, clock *fakeClock) MarketDataCache
	}
	for _, tc := range []testCase{
		{
			name: "file",
			build: func(t *testing.T, clock *fakeClock) MarketDataCache {
				c, err := NewFileCache(t.TempDir(), time.Hour, clock.Now)
				require.NoError(t, err)
				return c
			},
		},
		{
			name: "sqlite",
			build: func(t *testing.T, clock *fakeClock) MarketDataCache {
				c, err := NewSQLiteCache(filepath.Join(t.TempDir(), "cache", "market.db"), time.Hour, clock.Now)
				require.NoError(t, err)
				return c
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
			cache := tc.build(t, clock)
			defer cache.Close()

			_, ok := cache.Get(ctx, "AAPL", date)
			require.False(t, ok)

			bar := sampleBar("AAPL", date, 101.5)
			require.NoError(t, cache.Set(ctx, bar))

			got, ok := cache.Get(ctx, "AAPL", date)
			require.True(t, ok)
			require.Equal(t, "", cmp.Diff(bar, *got))

			// other symbol and other day are separate keys
			_, ok = cache.Get(ctx, "MSFT", date)
			require.False(t, ok)
			_, ok = cache.Get(ctx, "AAPL", date.AddDate(0, 0, 1))
			require.False(t, ok)

			// overwrite refreshes the entry
			clock.now = clock.now.Add(50 * time.Minute)
			bar.Close = 102
			require.NoError(t, cache.Set(ctx, bar))
			clock.now = clock.now.Add(30 * time.Minute)
			got, ok = cache.Get(ctx, "AAPL", date)
			require.True(t, ok)
			require.Equal(t, 102.0, got.Close)

			clock.now = clock.now.Add(31 * time.Minute)
			_, ok = cache.Get(ctx, "AAPL", date)
			require.False(t, ok, "expired entries miss")

			clock.now = clock.now.Add(-time.Hour)
			require.NoError(t, cache.Clear())
			_, ok = cache.Get(ctx, "AAPL", date)
			require.False(t, ok)
		})
	}
}

func TestNewMarketDataCache(t *testing.T) {
	c, err := NewMarketDataCache(domain.CacheConfig{Kind: domain.CacheKindDisabled})
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), sampleBar("AAPL", time.Now(), 1)))
	_, ok := c.Get(context.Background(), "AAPL", time.Now())
	require.False(t, ok)

	dir := t.TempDir()
	c, err = NewMarketDataCache(domain.CacheConfig{Kind: domain.CacheKindSQLite, Dir: dir})
	require.NoError(t, err)
	require.IsType(t, &SQLiteCache{}, c)
	require.FileExists(t, filepath.Join(dir, "market_cache.db"))
	require.NoError(t, c.Close())

	c, err = NewMarketDataCache(domain.CacheConfig{Dir: dir})
	require.NoError(t, err)
	require.IsType(t, &FileCache{}, c)

	_, err = NewMarketDataCache(domain.CacheConfig{Kind: "redis"})
	require.ErrorContains(t, err, "unknown cache kind")
}

func TestCacheKey(t *testing.T) {
	require.Equal(t, "AAPL_20240304", CacheKey("aapl", time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)))
}
