package repository

import (
	"context"
	"fmt"
	"time"

	"agentbacktest/internal/domain"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
)

type yahooRepositoryHandler struct {
	window *barWindow
}

// NewYahooRepository reads daily bars from the Yahoo Finance chart API.
func NewYahooRepository() PriceSource {
	h := &yahooRepositoryHandler{}
	h.window = newBarWindow(h.fetchBars, time.Now)
	return h
}

func (h *yahooRepositoryHandler) Name() string {
	return "yahoo"
}

func (h *yahooRepositoryHandler) GetPriceData(ctx context.Context, symbol string, date time.Time) (*domain.MarketData, error) {
	return h.window.get(ctx, symbol, date)
}

func (h *yahooRepositoryHandler) fetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.MarketData, error) {
	return runWithContext(ctx, func() ([]domain.MarketData, error) {
		params := &chart.Params{
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Symbol:   symbol,
			Interval: datetime.OneDay,
		}
		iter := chart.Get(params)

		out := []domain.MarketData{}
		for iter.Next() {
			bar := iter.Bar()
			out = append(out, domain.MarketData{
				Symbol:   symbol,
				Date:     time.Unix(int64(bar.Timestamp), 0).UTC(),
				Open:     bar.Open.InexactFloat64(),
				High:     bar.High.InexactFloat64(),
				Low:      bar.Low.InexactFloat64(),
				Close:    bar.Close.InexactFloat64(),
				AdjClose: bar.AdjClose.InexactFloat64(),
				Volume:   int64(bar.Volume),
				Source:   "yahoo",
			})
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("failed to get prices for %s: %w", symbol, err)
		}
		return out, nil
	})
}

func (h *yahooRepositoryHandler) GetNews(ctx context.Context, symbol string, start, end time.Time) ([]domain.NewsItem, error) {
	return nil, ErrNotSupported
}

func (h *yahooRepositoryHandler) GetFundamentals(ctx context.Context, symbol string, date time.Time) (*domain.Fundamentals, error) {
	return nil, ErrNotSupported
}
