package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agentbacktest/internal/domain"
)

//go:generate mockgen -source=price_source.repository.go -destination=mocks/mock_price_source.repository.go

var ErrNotSupported = errors.New("operation not supported by this source")

// PriceSource is one upstream provider of market data. GetPriceData returns
// (nil, nil) when the provider has no bar for that day.
type PriceSource interface {
	Name() string
	GetPriceData(ctx context.Context, symbol string, date time.Time) (*domain.MarketData, error)
	GetNews(ctx context.Context, symbol string, start, end time.Time) ([]domain.NewsItem, error)
	GetFundamentals(ctx context.Context, symbol string, date time.Time) (*domain.Fundamentals, error)
}

type barFetcher func(ctx context.Context, symbol string, start, end time.Time) ([]domain.MarketData, error)

// barWindow memoizes a provider's daily bars one calendar year at a time,
// so a backtest over N days costs one request per symbol-year instead of N.
// Windows never extend past now.
type barWindow struct {
	mu      sync.Mutex
	windows map[string]*yearWindow
	fetch   barFetcher
	now     func() time.Time
}

type yearWindow struct {
	mu     sync.Mutex
	loaded bool
	bars   map[string]domain.MarketData
}

func newBarWindow(fetch barFetcher, now func() time.Time) *barWindow {
	if now == nil {
		now = time.Now
	}
	return &barWindow{
		windows: map[string]*yearWindow{},
		fetch:   fetch,
		now:     now,
	}
}

func (w *barWindow) get(ctx context.Context, symbol string, date time.Time) (*domain.MarketData, error) {
	key := fmt.Sprintf("%s_%d", symbol, date.Year())

	w.mu.Lock()
	win, ok := w.windows[key]
	if !ok {
		win = &yearWindow{}
		w.windows[key] = win
	}
	w.mu.Unlock()

	win.mu.Lock()
	defer win.mu.Unlock()

	if !win.loaded {
		start := time.Date(date.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(date.Year(), 12, 31, 23, 59, 59, 0, time.UTC)
		if now := w.now(); end.After(now) {
			end = now
		}
		bars, err := w.fetch(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		win.bars = make(map[string]domain.MarketData, len(bars))
		for _, b := range bars {
			win.bars[b.Date.Format(time.DateOnly)] = b
		}
		win.loaded = true
	}

	bar, ok := win.bars[date.Format(time.DateOnly)]
	if !ok {
		return nil, nil
	}
	out := bar.Copy()
	out.Date = date
	return &out, nil
}

// runWithContext runs a blocking call that has no context support of its
// own and gives up once ctx is done.
func runWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.value, r.err
	}
}
