package l1_service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentbacktest/internal/domain"
	"agentbacktest/internal/repository"
	"agentbacktest/internal/util"

	"go.uber.org/zap"
)

//go:generate mockgen -source=data.service.go -destination=mocks/mock_data.service.go

// DataManager resolves (symbol, date) to a validated snapshot. Nothing dated
// after today in the configured timezone is ever returned.
type DataManager interface {
	GetData(ctx context.Context, symbol string, date time.Time) (*domain.MarketData, error)
	GetDataForceRefresh(ctx context.Context, symbol string, date time.Time) (*domain.MarketData, error)
	GetRange(ctx context.Context, symbol string, start, end time.Time) ([]domain.MarketData, error)
	GetNews(ctx context.Context, symbol string, start, end time.Time) ([]domain.NewsItem, error)
	GetFundamentals(ctx context.Context, symbol string, date time.Time) (*domain.Fundamentals, error)
	ClearCache() error
	Close() error
}

type dataManagerHandler struct {
	Sources  []repository.PriceSource
	Cache    repository.MarketDataCache
	Retry    util.RetryPolicy
	Location *time.Location
	Now      func() time.Time
	Log      *zap.SugaredLogger
}

// NewDataManager queries sources in order; the first is the primary and the
// rest are fallbacks.
func NewDataManager(
	sources []repository.PriceSource,
	cache repository.MarketDataCache,
	retry util.RetryPolicy,
	loc *time.Location,
	now func() time.Time,
	log *zap.SugaredLogger,
) (DataManager, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("data manager needs at least one source")
	}
	if cache == nil {
		cache = repository.NoopCache{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &dataManagerHandler{
		Sources:  sources,
		Cache:    cache,
		Retry:    retry,
		Location: loc,
		Now:      now,
		Log:      log,
	}, nil
}

func (h *dataManagerHandler) checkNotFuture(symbol string, date time.Time) (time.Time, error) {
	day := util.StartOfDay(date, h.Location)
	today := util.StartOfDay(h.Now(), h.Location)
	if day.After(today) {
		return day, &domain.FutureDataError{Symbol: symbol, Date: day, Now: today}
	}
	return day, nil
}

func (h *dataManagerHandler) GetData(ctx context.Context, symbol string, date time.Time) (*domain.MarketData, error) {
	return h.getData(ctx, symbol, date, false)
}

func (h *dataManagerHandler) GetDataForceRefresh(ctx context.Context, symbol string, date time.Time) (*domain.MarketData, error) {
	return h.getData(ctx, symbol, date, true)
}

func (h *dataManagerHandler) getData(ctx context.Context, symbol string, date time.Time, forceRefresh bool) (*domain.MarketData, error) {
	day, err := h.checkNotFuture(symbol, date)
	if err != nil {
		return nil, err
	}
	log := h.Log.With("symbol", symbol, "date", day.Format(time.DateOnly))

	if !forceRefresh {
		if cached, ok := h.Cache.Get(ctx, symbol, day); ok {
			return cached, nil
		}
	}

	var lastErr error
	for _, source := range h.Sources {
		if ctx.Err() != nil {
			return nil, &domain.DataUnavailableError{Symbol: symbol, Date: day, Err: ctx.Err()}
		}

		var data *domain.MarketData
		err := h.Retry.Do(ctx, func(ctx context.Context) error {
			d, err := source.GetPriceData(ctx, symbol, day)
			if errors.Is(err, repository.ErrNotSupported) {
				return util.Permanent(err)
			}
			data = d
			return err
		})
		if errors.Is(err, repository.ErrNotSupported) {
			continue
		}
		if err != nil {
			log.Warnf("source %s failed: %v", source.Name(), err)
			lastErr = err
			continue
		}
		if data == nil {
			continue
		}

		data.Symbol = symbol
		data.Date = day
		if data.Source == "" {
			data.Source = source.Name()
		}
		if err := data.Validate(); err != nil {
			log.Warnf("rejecting bar from %s: %v", source.Name(), err)
			lastErr = fmt.Errorf("%s: %w", source.Name(), err)
			continue
		}

		if err := h.Cache.Set(ctx, *data); err != nil {
			log.Warnf("failed to write cache: %v", err)
		}
		return data, nil
	}

	return nil, &domain.DataUnavailableError{Symbol: symbol, Date: day, Err: lastErr}
}

// GetRange returns every available bar between start and end, skipping days
// with no valid data.
func (h *dataManagerHandler) GetRange(ctx context.Context, symbol string, start, end time.Time) ([]domain.MarketData, error) {
	last, err := h.checkNotFuture(symbol, end)
	if err != nil {
		return nil, err
	}

	out := []domain.MarketData{}
	for d := util.StartOfDay(start, h.Location); !d.After(last); d = d.AddDate(0, 0, 1) {
		if util.IsWeekend(d) {
			continue
		}
		data, err := h.GetData(ctx, symbol, d)
		if domain.IsRecoverable(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *data)
	}
	return out, nil
}

func (h *dataManagerHandler) GetNews(ctx context.Context, symbol string, start, end time.Time) ([]domain.NewsItem, error) {
	endDay, err := h.checkNotFuture(symbol, end)
	if err != nil {
		return nil, err
	}
	// news for day d may be published any time on d
	cutoff := endDay.AddDate(0, 0, 1)

	var lastErr error
	for _, source := range h.Sources {
		var items []domain.NewsItem
		err := h.Retry.Do(ctx, func(ctx context.Context) error {
			n, err := source.GetNews(ctx, symbol, start, end)
			if errors.Is(err, repository.ErrNotSupported) {
				return util.Permanent(err)
			}
			items = n
			return err
		})
		if errors.Is(err, repository.ErrNotSupported) {
			continue
		}
		if err != nil {
			h.Log.Warnf("news source %s failed for %s: %v", source.Name(), symbol, err)
			lastErr = err
			continue
		}

		out := make([]domain.NewsItem, 0, len(items))
		for _, item := range items {
			if item.PublishedAt.Before(cutoff) {
				out = append(out, item)
			}
		}
		return out, nil
	}
	if lastErr != nil {
		return nil, &domain.DataUnavailableError{Symbol: symbol, Date: endDay, Err: lastErr}
	}
	return []domain.NewsItem{}, nil
}

func (h *dataManagerHandler) GetFundamentals(ctx context.Context, symbol string, date time.Time) (*domain.Fundamentals, error) {
	day, err := h.checkNotFuture(symbol, date)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, source := range h.Sources {
		var f *domain.Fundamentals
		err := h.Retry.Do(ctx, func(ctx context.Context) error {
			out, err := source.GetFundamentals(ctx, symbol, day)
			if errors.Is(err, repository.ErrNotSupported) {
				return util.Permanent(err)
			}
			f = out
			return err
		})
		if errors.Is(err, repository.ErrNotSupported) {
			continue
		}
		if err != nil {
			h.Log.Warnf("fundamentals source %s failed for %s: %v", source.Name(), symbol, err)
			lastErr = err
			continue
		}
		if f != nil {
			return f, nil
		}
	}
	return nil, &domain.DataUnavailableError{Symbol: symbol, Date: day, Err: lastErr}
}

func (h *dataManagerHandler) ClearCache() error {
	return h.Cache.Clear()
}

func (h *dataManagerHandler) Close() error {
	return h.Cache.Close()
}
