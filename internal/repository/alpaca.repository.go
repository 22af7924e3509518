package repository

import (
	"context"
	"fmt"
	"time"

	"agentbacktest/internal/domain"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

type alpacaRepositoryHandler struct {
	MdClient *marketdata.Client
	Feed     string
	window   *barWindow
}

// NewAlpacaRepository serves daily bars and news from the Alpaca market data
// API. endpoint may be empty for the default host.
func NewAlpacaRepository(apiKey, apiSecret, endpoint string) PriceSource {
	mdClient := marketdata.NewClient(marketdata.ClientOpts{
		BaseURL:   endpoint,
		APIKey:    apiKey,
		APISecret: apiSecret,
	})

	h := &alpacaRepositoryHandler{
		MdClient: mdClient,
		Feed:     "iex",
	}
	h.window = newBarWindow(h.fetchBars, time.Now)
	return h
}

func (h *alpacaRepositoryHandler) Name() string {
	return "alpaca"
}

func (h *alpacaRepositoryHandler) GetPriceData(ctx context.Context, symbol string, date time.Time) (*domain.MarketData, error) {
	return h.window.get(ctx, symbol, date)
}

func (h *alpacaRepositoryHandler) fetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.MarketData, error) {
	return runWithContext(ctx, func() ([]domain.MarketData, error) {
		multiBars, err := h.MdClient.GetMultiBars([]string{symbol}, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
			Feed:      h.Feed,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get alpaca bars for %s: %w", symbol, err)
		}

		out := []domain.MarketData{}
		for _, ab := range multiBars[symbol] {
			out = append(out, domain.MarketData{
				Symbol: symbol,
				Date:   ab.Timestamp.UTC(),
				Open:   ab.Open,
				High:   ab.High,
				Low:    ab.Low,
				Close:  ab.Close,
				Volume: int64(ab.Volume),
				Indicators: map[string]float64{
					"vwap": ab.VWAP,
				},
				Source: "alpaca",
			})
		}
		return out, nil
	})
}

func (h *alpacaRepositoryHandler) GetNews(ctx context.Context, symbol string, start, end time.Time) ([]domain.NewsItem, error) {
	return runWithContext(ctx, func() ([]domain.NewsItem, error) {
		news, err := h.MdClient.GetNews(marketdata.GetNewsRequest{
			Symbols:    []string{symbol},
			Start:      start,
			End:        end,
			TotalLimit: 50,
			Sort:       marketdata.SortAsc,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get alpaca news for %s: %w", symbol, err)
		}

		out := make([]domain.NewsItem, 0, len(news))
		for _, n := range news {
			out = append(out, domain.NewsItem{
				Headline:    n.Headline,
				Summary:     n.Summary,
				Source:      alpacaNewsSource,
				URL:         n.URL,
				PublishedAt: n.CreatedAt,
			})
		}
		return out, nil
	})
}

// marketdata.News does not carry the originating outlet.
const alpacaNewsSource = "alpaca"

func (h *alpacaRepositoryHandler) GetFundamentals(ctx context.Context, symbol string, date time.Time) (*domain.Fundamentals, error) {
	return nil, ErrNotSupported
}
