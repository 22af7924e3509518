package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"agentbacktest/internal/domain"
	"agentbacktest/internal/util"

	"github.com/go-resty/resty/v2"
)

const finnhubBaseURL = "https://finnhub.io/api/v1"

type finnhubRepositoryHandler struct {
	client *resty.Client
	apiKey string
	window *barWindow
}

// NewFinnhubRepository serves candles, company news and basic fundamentals
// from Finnhub. baseURL may be empty for the public endpoint.
func NewFinnhubRepository(apiKey, baseURL string) PriceSource {
	if baseURL == "" {
		baseURL = finnhubBaseURL
	}
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)

	h := &finnhubRepositoryHandler{
		client: client,
		apiKey: apiKey,
	}
	h.window = newBarWindow(h.fetchBars, time.Now)
	return h
}

func (h *finnhubRepositoryHandler) Name() string {
	return "finnhub"
}

type finnhubCandles struct {
	Close  []float64 `json:"c"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Open   []float64 `json:"o"`
	Status string    `json:"s"`
	Time   []int64   `json:"t"`
	Volume []float64 `json:"v"`
}

type finnhubNews struct {
	Category string `json:"category"`
	DateTime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

type finnhubMetrics struct {
	Metric map[string]any `json:"metric"`
}

func (h *finnhubRepositoryHandler) get(ctx context.Context, path string, params map[string]string, out any) error {
	if h.apiKey == "" {
		return util.Permanent(errors.New("finnhub api key not configured"))
	}
	params["token"] = h.apiKey

	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return fmt.Errorf("failed to call finnhub %s: %w", path, err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return fmt.Errorf("finnhub rate limited on %s", path)
	}
	if resp.StatusCode() != http.StatusOK {
		err := fmt.Errorf("finnhub %s returned %d: %s", path, resp.StatusCode(), resp.String())
		if resp.StatusCode() < 500 {
			return util.Permanent(err)
		}
		return err
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to parse finnhub %s response: %w", path, err)
	}
	return nil
}

func (h *finnhubRepositoryHandler) GetPriceData(ctx context.Context, symbol string, date time.Time) (*domain.MarketData, error) {
	return h.window.get(ctx, symbol, date)
}

func (h *finnhubRepositoryHandler) fetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.MarketData, error) {
	candles := finnhubCandles{}
	err := h.get(ctx, "/stock/candle", map[string]string{
		"symbol":     symbol,
		"resolution": "D",
		"from":       strconv.FormatInt(start.Unix(), 10),
		"to":         strconv.FormatInt(end.Unix(), 10),
	}, &candles)
	if err != nil {
		return nil, err
	}
	if candles.Status == "no_data" {
		return []domain.MarketData{}, nil
	}

	n := len(candles.Time)
	if len(candles.Open) != n || len(candles.High) != n || len(candles.Low) != n || len(candles.Close) != n || len(candles.Volume) != n {
		return nil, fmt.Errorf("finnhub candles for %s have mismatched lengths", symbol)
	}

	out := make([]domain.MarketData, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.MarketData{
			Symbol: symbol,
			Date:   time.Unix(candles.Time[i], 0).UTC(),
			Open:   candles.Open[i],
			High:   candles.High[i],
			Low:    candles.Low[i],
			Close:  candles.Close[i],
			Volume: int64(candles.Volume[i]),
			Source: "finnhub",
		})
	}
	return out, nil
}

func (h *finnhubRepositoryHandler) GetNews(ctx context.Context, symbol string, start, end time.Time) ([]domain.NewsItem, error) {
	news := []finnhubNews{}
	err := h.get(ctx, "/company-news", map[string]string{
		"symbol": symbol,
		"from":   start.Format(time.DateOnly),
		"to":     end.Format(time.DateOnly),
	}, &news)
	if err != nil {
		return nil, err
	}

	out := make([]domain.NewsItem, 0, len(news))
	for _, n := range news {
		published := time.Unix(n.DateTime, 0).UTC()
		// finnhub pads ranges; never hand back anything after end
		if published.After(end) {
			continue
		}
		out = append(out, domain.NewsItem{
			Headline:    n.Headline,
			Summary:     n.Summary,
			Source:      n.Source,
			URL:         n.URL,
			PublishedAt: published,
		})
	}
	return out, nil
}

// GetFundamentals returns Finnhub's current basic financials. The endpoint is
// not point-in-time, so it is refused for any date before today.
func (h *finnhubRepositoryHandler) GetFundamentals(ctx context.Context, symbol string, date time.Time) (*domain.Fundamentals, error) {
	if !util.SameDay(date, time.Now()) {
		return nil, ErrNotSupported
	}

	resp := finnhubMetrics{}
	err := h.get(ctx, "/stock/metric", map[string]string{
		"symbol": symbol,
		"metric": "all",
	}, &resp)
	if err != nil {
		return nil, err
	}

	metrics := map[string]float64{}
	for k, v := range resp.Metric {
		if f, ok := v.(float64); ok {
			metrics[k] = f
		}
	}
	return &domain.Fundamentals{
		Symbol:  symbol,
		Date:    date,
		Metrics: metrics,
	}, nil
}
