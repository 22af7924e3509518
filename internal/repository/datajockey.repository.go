package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agentbacktest/internal/domain"
	"agentbacktest/pkg/datajockey"
)

type dataJockeyRepositoryHandler struct {
	client datajockey.Client

	mu        sync.Mutex
	responses map[string]*datajockey.FinancialResponse
}

// NewDataJockeyRepository serves point-in-time quarterly fundamentals. It
// has no price data.
func NewDataJockeyRepository(apiKey, baseURL string) PriceSource {
	return &dataJockeyRepositoryHandler{
		client:    datajockey.NewClient(apiKey, baseURL),
		responses: map[string]*datajockey.FinancialResponse{},
	}
}

func (h *dataJockeyRepositoryHandler) Name() string {
	return "datajockey"
}

func (h *dataJockeyRepositoryHandler) GetPriceData(ctx context.Context, symbol string, date time.Time) (*domain.MarketData, error) {
	return nil, ErrNotSupported
}

func (h *dataJockeyRepositoryHandler) GetNews(ctx context.Context, symbol string, start, end time.Time) ([]domain.NewsItem, error) {
	return nil, ErrNotSupported
}

func (h *dataJockeyRepositoryHandler) GetFundamentals(ctx context.Context, symbol string, date time.Time) (*domain.Fundamentals, error) {
	h.mu.Lock()
	resp, ok := h.responses[symbol]
	h.mu.Unlock()

	if !ok {
		var err error
		resp, err = h.client.GetAssetMetrics(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to get fundamentals for %s: %w", symbol, err)
		}
		h.mu.Lock()
		h.responses[symbol] = resp
		h.mu.Unlock()
	}

	metrics := resp.AsOf(date)
	if len(metrics) == 0 {
		return nil, nil
	}
	return &domain.Fundamentals{
		Symbol:  symbol,
		Date:    date,
		Metrics: metrics,
	}, nil
}
