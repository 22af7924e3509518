package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agentbacktest/internal/domain"

	"github.com/parquet-go/parquet-go"
)

// BarRecord is the on-disk schema of <dir>/<SYMBOL>/<YYYY>.parquet.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
	VWAP      float64 `parquet:"vwap"`
}

type parquetRepositoryHandler struct {
	dir string

	mu    sync.Mutex
	years map[string]map[string]domain.MarketData
}

// NewParquetRepository reads offline daily bars partitioned by symbol and
// year.
func NewParquetRepository(dir string) PriceSource {
	return &parquetRepositoryHandler{
		dir:   dir,
		years: map[string]map[string]domain.MarketData{},
	}
}

func (h *parquetRepositoryHandler) Name() string {
	return "parquet"
}

func barPath(dir, symbol string, year int) string {
	return filepath.Join(dir, strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

func (h *parquetRepositoryHandler) load(symbol string, year int) (map[string]domain.MarketData, error) {
	key := fmt.Sprintf("%s_%d", symbol, year)

	h.mu.Lock()
	defer h.mu.Unlock()
	if bars, ok := h.years[key]; ok {
		return bars, nil
	}

	path := barPath(h.dir, symbol, year)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		h.years[key] = map[string]domain.MarketData{}
		return h.years[key], nil
	}
	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	bars := make(map[string]domain.MarketData, len(records))
	for _, r := range records {
		ts := time.UnixMilli(r.Timestamp).UTC()
		bars[ts.Format(time.DateOnly)] = domain.MarketData{
			Symbol: symbol,
			Date:   ts,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
			Indicators: map[string]float64{
				"vwap": r.VWAP,
			},
			Source: "parquet",
		}
	}
	h.years[key] = bars
	return bars, nil
}

func (h *parquetRepositoryHandler) GetPriceData(ctx context.Context, symbol string, date time.Time) (*domain.MarketData, error) {
	bars, err := h.load(symbol, date.Year())
	if err != nil {
		return nil, err
	}
	bar, ok := bars[date.Format(time.DateOnly)]
	if !ok {
		return nil, nil
	}
	out := bar.Copy()
	out.Date = date
	return &out, nil
}

func (h *parquetRepositoryHandler) GetNews(ctx context.Context, symbol string, start, end time.Time) ([]domain.NewsItem, error) {
	return nil, ErrNotSupported
}

func (h *parquetRepositoryHandler) GetFundamentals(ctx context.Context, symbol string, date time.Time) (*domain.Fundamentals, error) {
	return nil, ErrNotSupported
}

// WriteParquetBars writes one year file per year present in bars.
func WriteParquetBars(dir, symbol string, bars []domain.MarketData) error {
	byYear := map[int][]BarRecord{}
	for _, b := range bars {
		byYear[b.Date.Year()] = append(byYear[b.Date.Year()], BarRecord{
			Symbol:    symbol,
			Timestamp: b.Date.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
			VWAP:      b.Indicators["vwap"],
		})
	}
	for year, records := range byYear {
		path := barPath(dir, symbol, year)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := parquet.WriteFile(path, records); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}
