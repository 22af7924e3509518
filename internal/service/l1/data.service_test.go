package l1_service

import (
	"context"
	"errors"
	"testing"
	"time"

	"agentbacktest/internal/domain"
	"agentbacktest/internal/logger"
	"agentbacktest/internal/repository"
	mock_repository "agentbacktest/internal/repository/mocks"
	"agentbacktest/internal/util"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func validBar(symbol string, date time.Time) *domain.MarketData {
	return &domain.MarketData{
		Symbol: symbol,
		Date:   date,
		Open:   100,
		High:   105,
		Low:    99,
		Close:  104,
		Volume: 1000,
	}
}

func newTestDataManager(t *testing.T, cache repository.MarketDataCache, now time.Time, sources ...repository.PriceSource) DataManager {
	dm, err := NewDataManager(
		sources,
		cache,
		util.RetryPolicy{MaxAttempts: 1},
		time.UTC,
		func() time.Time { return now },
		logger.NewNop(),
	)
	require.NoError(t, err)
	return dm
}

func TestDataManager_GetData(t *testing.T) {
	now := time.Date(2024, 3, 15, 15, 0, 0, 0, time.UTC)
	day := util.NewDate(2024, 3, 14)

	t.Run("future dates are rejected before any lookup", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		source := mock_repository.NewMockPriceSource(ctrl)
		cache := mock_repository.NewMockMarketDataCache(ctrl)
		dm := newTestDataManager(t, cache, now, source)

		for _, d := range []time.Time{util.NewDate(2024, 3, 16), util.NewDate(2030, 1, 1)} {
			out, err := dm.GetData(context.Background(), "AAPL", d)
			require.Nil(t, out)
			futureErr := &domain.FutureDataError{}
			require.ErrorAs(t, err, &futureErr)
			require.Equal(t, d, futureErr.Date)
		}
	})

	t.Run("today is allowed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		source := mock_repository.NewMockPriceSource(ctrl)
		today := util.NewDate(2024, 3, 15)
		source.EXPECT().GetPriceData(gomock.Any(), "AAPL", today).Return(validBar("AAPL", today), nil)
		source.EXPECT().Name().Return("primary").AnyTimes()
		dm := newTestDataManager(t, repository.NoopCache{}, now, source)

		out, err := dm.GetData(context.Background(), "AAPL", now)
		require.NoError(t, err)
		require.Equal(t, today, out.Date)
	})

	t.Run("cache hit skips sources", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		source := mock_repository.NewMockPriceSource(ctrl)
		cache := mock_repository.NewMockMarketDataCache(ctrl)
		cache.EXPECT().Get(gomock.Any(), "AAPL", day).Return(validBar("AAPL", day), true)
		dm := newTestDataManager(t, cache, now, source)

		out, err := dm.GetData(context.Background(), "AAPL", day)
		require.NoError(t, err)
		require.Equal(t, 104.0, out.Close)
	})

	t.Run("force refresh bypasses cache", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		source := mock_repository.NewMockPriceSource(ctrl)
		cache := mock_repository.NewMockMarketDataCache(ctrl)
		source.EXPECT().GetPriceData(gomock.Any(), "AAPL", day).Return(validBar("AAPL", day), nil)
		source.EXPECT().Name().Return("primary").AnyTimes()
		cache.EXPECT().Set(gomock.Any(), gomock.Any()).Return(nil)
		dm := newTestDataManager(t, cache, now, source)

		_, err := dm.GetDataForceRefresh(context.Background(), "AAPL", day)
		require.NoError(t, err)
	})

	t.Run("falls back and writes through", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		primary := mock_repository.NewMockPriceSource(ctrl)
		fallback := mock_repository.NewMockPriceSource(ctrl)
		cache := mock_repository.NewMockMarketDataCache(ctrl)

		cache.EXPECT().Get(gomock.Any(), "AAPL", day).Return(nil, false)
		primary.EXPECT().Name().Return("primary").AnyTimes()
		primary.EXPECT().GetPriceData(gomock.Any(), "AAPL", day).Return(nil, errors.New("503"))
		fallback.EXPECT().Name().Return("fallback").AnyTimes()
		fallback.EXPECT().GetPriceData(gomock.Any(), "AAPL", day).Return(validBar("AAPL", day), nil)
		cache.EXPECT().Set(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, data domain.MarketData) error {
			require.Equal(t, "AAPL", data.Symbol)
			require.Equal(t, "fallback", data.Source)
			return nil
		})

		dm := newTestDataManager(t, cache, now, primary, fallback)
		out, err := dm.GetData(context.Background(), "AAPL", day)
		require.NoError(t, err)
		require.Equal(t, "fallback", out.Source)
	})

	t.Run("unsupported sources are skipped", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fundamentalsOnly := mock_repository.NewMockPriceSource(ctrl)
		prices := mock_repository.NewMockPriceSource(ctrl)
		fundamentalsOnly.EXPECT().GetPriceData(gomock.Any(), "AAPL", day).Return(nil, repository.ErrNotSupported)
		prices.EXPECT().Name().Return("prices").AnyTimes()
		prices.EXPECT().GetPriceData(gomock.Any(), "AAPL", day).Return(validBar("AAPL", day), nil)

		dm := newTestDataManager(t, repository.NoopCache{}, now, fundamentalsOnly, prices)
		out, err := dm.GetData(context.Background(), "AAPL", day)
		require.NoError(t, err)
		require.NotNil(t, out)
	})

	t.Run("invalid bars are never returned", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		source := mock_repository.NewMockPriceSource(ctrl)
		bad := validBar("AAPL", day)
		bad.High = 90 // below low
		source.EXPECT().Name().Return("primary").AnyTimes()
		source.EXPECT().GetPriceData(gomock.Any(), "AAPL", day).Return(bad, nil)

		dm := newTestDataManager(t, repository.NoopCache{}, now, source)
		out, err := dm.GetData(context.Background(), "AAPL", day)
		require.Nil(t, out)
		unavailable := &domain.DataUnavailableError{}
		require.ErrorAs(t, err, &unavailable)
		require.True(t, domain.IsRecoverable(err))
	})

	t.Run("no source has the day", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		source := mock_repository.NewMockPriceSource(ctrl)
		source.EXPECT().GetPriceData(gomock.Any(), "AAPL", day).Return(nil, nil)

		dm := newTestDataManager(t, repository.NoopCache{}, now, source)
		_, err := dm.GetData(context.Background(), "AAPL", day)
		require.True(t, domain.IsRecoverable(err))
	})
}

func TestDataManager_GetRange(t *testing.T) {
	now := time.Date(2024, 3, 15, 15, 0, 0, 0, time.UTC)

	t.Run("skips weekends and missing days", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		source := mock_repository.NewMockPriceSource(ctrl)
		source.EXPECT().Name().Return("primary").AnyTimes()
		source.EXPECT().GetPriceData(gomock.Any(), "SPY", gomock.Any()).DoAndReturn(
			func(ctx context.Context, symbol string, date time.Time) (*domain.MarketData, error) {
				if date.Day() == 6 {
					return nil, nil
				}
				return validBar(symbol, date), nil
			},
		).Times(5)

		dm := newTestDataManager(t, repository.NoopCache{}, now, source)
		out, err := dm.GetRange(context.Background(), "SPY", util.NewDate(2024, 3, 4), util.NewDate(2024, 3, 10))
		require.NoError(t, err)
		require.Len(t, out, 4)
	})

	t.Run("future end", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		source := mock_repository.NewMockPriceSource(ctrl)
		dm := newTestDataManager(t, repository.NoopCache{}, now, source)

		_, err := dm.GetRange(context.Background(), "SPY", util.NewDate(2024, 3, 4), util.NewDate(2024, 4, 1))
		futureErr := &domain.FutureDataError{}
		require.ErrorAs(t, err, &futureErr)
	})
}

func TestDataManager_GetNews(t *testing.T) {
	now := time.Date(2024, 3, 15, 15, 0, 0, 0, time.UTC)
	ctrl := gomock.NewController(t)
	source := mock_repository.NewMockPriceSource(ctrl)
	source.EXPECT().GetNews(gomock.Any(), "AAPL", gomock.Any(), gomock.Any()).Return([]domain.NewsItem{
		{Headline: "in range", PublishedAt: time.Date(2024, 3, 13, 20, 0, 0, 0, time.UTC)},
		{Headline: "leaked", PublishedAt: time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)},
	}, nil)

	dm := newTestDataManager(t, repository.NoopCache{}, now, source)
	out, err := dm.GetNews(context.Background(), "AAPL", util.NewDate(2024, 3, 10), util.NewDate(2024, 3, 13))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "in range", out[0].Headline)
}
