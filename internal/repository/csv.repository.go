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

	"github.com/gocarina/gocsv"
)

// CsvBar is one row of {dir}/{SYMBOL}.csv.
type CsvBar struct {
	Date     string  `csv:"date"`
	Open     float64 `csv:"open"`
	High     float64 `csv:"high"`
	Low      float64 `csv:"low"`
	Close    float64 `csv:"close"`
	AdjClose float64 `csv:"adj_close"`
	Volume   int64   `csv:"volume"`
}

type csvRepositoryHandler struct {
	dir string

	mu    sync.Mutex
	files map[string]map[string]domain.MarketData
}

// NewCsvRepository reads offline daily bars, one CSV file per symbol.
func NewCsvRepository(dir string) PriceSource {
	return &csvRepositoryHandler{
		dir:   dir,
		files: map[string]map[string]domain.MarketData{},
	}
}

func (h *csvRepositoryHandler) Name() string {
	return "csv"
}

func (h *csvRepositoryHandler) load(symbol string) (map[string]domain.MarketData, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if bars, ok := h.files[symbol]; ok {
		return bars, nil
	}

	path := filepath.Join(h.dir, strings.ToUpper(symbol)+".csv")
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		h.files[symbol] = map[string]domain.MarketData{}
		return h.files[symbol], nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rows := []*CsvBar{}
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	bars := make(map[string]domain.MarketData, len(rows))
	for _, r := range rows {
		date, err := time.Parse(time.DateOnly, r.Date)
		if err != nil {
			return nil, fmt.Errorf("bad date %q in %s: %w", r.Date, path, err)
		}
		bars[r.Date] = domain.MarketData{
			Symbol:   symbol,
			Date:     date,
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			AdjClose: r.AdjClose,
			Volume:   r.Volume,
			Source:   "csv",
		}
	}
	h.files[symbol] = bars
	return bars, nil
}

func (h *csvRepositoryHandler) GetPriceData(ctx context.Context, symbol string, date time.Time) (*domain.MarketData, error) {
	bars, err := h.load(symbol)
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

func (h *csvRepositoryHandler) GetNews(ctx context.Context, symbol string, start, end time.Time) ([]domain.NewsItem, error) {
	return nil, ErrNotSupported
}

func (h *csvRepositoryHandler) GetFundamentals(ctx context.Context, symbol string, date time.Time) (*domain.Fundamentals, error) {
	return nil, ErrNotSupported
}

// WriteCsvBars writes bars in the layout NewCsvRepository reads.
func WriteCsvBars(dir, symbol string, bars []domain.MarketData) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	rows := make([]*CsvBar, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, &CsvBar{
			Date:     b.Date.Format(time.DateOnly),
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			AdjClose: b.AdjClose,
			Volume:   b.Volume,
		})
	}

	f, err := os.Create(filepath.Join(dir, strings.ToUpper(symbol)+".csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.MarshalFile(&rows, f)
}
