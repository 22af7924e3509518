package l3_service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"agentbacktest/internal/domain"
	l1_service "agentbacktest/internal/service/l1"
	"agentbacktest/internal/util"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
)

const defaultBeta = 1.0

type BenchmarkComparator interface {
	Compare(ctx context.Context, input CompareInput) (*domain.BenchmarkComparison, error)
}

type CompareInput struct {
	Symbol             string
	Start              time.Time
	End                time.Time
	InitialCapital     float64
	RiskFreeRate       float64
	PortfolioSnapshots []domain.PortfolioSnapshot
	PortfolioMetrics   domain.PerformanceMetrics
}

type benchmarkComparatorHandler struct {
	DataManager l1_service.DataManager
	Log         *zap.SugaredLogger
}

func NewBenchmarkComparator(dataManager l1_service.DataManager, log *zap.SugaredLogger) BenchmarkComparator {
	return benchmarkComparatorHandler{
		DataManager: dataManager,
		Log:         log,
	}
}

func (h benchmarkComparatorHandler) Compare(ctx context.Context, in CompareInput) (*domain.BenchmarkComparison, error) {
	if in.InitialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive")
	}
	bars, err := h.DataManager.GetRange(ctx, in.Symbol, in.Start, in.End)
	if err != nil {
		return nil, fmt.Errorf("failed to load benchmark %s: %w", in.Symbol, err)
	}
	if len(bars) == 0 {
		return nil, &domain.DataUnavailableError{Symbol: in.Symbol, Date: in.End, Err: fmt.Errorf("no benchmark bars in range")}
	}

	benchmark := ScaleToCapital(bars, in.InitialCapital)
	return h.compareSeries(in, benchmark), nil
}

// ScaleToCapital converts a price series into the value of initialCapital
// invested at the first bar.
func ScaleToCapital(bars []domain.MarketData, initialCapital float64) []domain.PortfolioSnapshot {
	sorted := append([]domain.MarketData{}, bars...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	price := func(b domain.MarketData) float64 {
		if b.AdjClose > 0 {
			return b.AdjClose
		}
		return b.Close
	}

	out := make([]domain.PortfolioSnapshot, 0, len(sorted))
	first := price(sorted[0])
	for _, b := range sorted {
		value := initialCapital * price(b) / first
		out = append(out, domain.PortfolioSnapshot{
			Date:           b.Date,
			PositionsValue: value,
			TotalValue:     value,
			PositionCount:  1,
		})
	}
	return out
}

func (h benchmarkComparatorHandler) compareSeries(in CompareInput, benchmark []domain.PortfolioSnapshot) *domain.BenchmarkComparison {
	values := make([]float64, len(benchmark))
	for i, s := range benchmark {
		values[i] = s.TotalValue
	}
	days := util.DaysBetween(benchmark[0].Date, benchmark[len(benchmark)-1].Date)
	benchmarkMetrics := sanitize(withReturnMetrics(
		domain.PerformanceMetrics{RiskFreeRate: in.RiskFreeRate, TradingDays: len(benchmark)},
		values,
		in.InitialCapital,
		days,
		in.RiskFreeRate,
	))

	portfolioReturns, benchmarkReturns, overlap := alignedReturns(in.PortfolioSnapshots, benchmark)

	beta, measured := defaultBeta, false
	if len(benchmarkReturns) >= 2 {
		variance, err := stats.VarianceSample(benchmarkReturns)
		if err == nil && variance > 0 {
			covariance, err := stats.Covariance(portfolioReturns, benchmarkReturns)
			if err == nil {
				beta, measured = finite(covariance/variance), true
			}
		}
	}
	if !measured {
		h.Log.Warnw("beta defaulted",
			"symbol", in.Symbol,
			"overlappingReturns", len(benchmarkReturns),
			"beta", defaultBeta,
		)
	}

	active := make([]float64, len(portfolioReturns))
	for i := range portfolioReturns {
		active[i] = portfolioReturns[i] - benchmarkReturns[i]
	}
	trackingError := AnnualizedVolatility(active)

	alpha := in.PortfolioMetrics.AnnualizedReturn - benchmarkMetrics.AnnualizedReturn
	informationRatio := 0.0
	if trackingError > 0 {
		informationRatio = alpha / trackingError
	}

	return &domain.BenchmarkComparison{
		Symbol:           in.Symbol,
		Metrics:          benchmarkMetrics,
		Alpha:            finite(alpha),
		Beta:             beta,
		BetaMeasured:     measured,
		TrackingError:    finite(trackingError),
		InformationRatio: finite(informationRatio),
		Outperformance:   finite(in.PortfolioMetrics.TotalReturn - benchmarkMetrics.TotalReturn),
		OverlappingDays:  overlap,
	}
}

// alignedReturns computes period returns over the dates both series share,
// so a missing day in either series spans one longer period in both.
func alignedReturns(portfolio, benchmark []domain.PortfolioSnapshot) ([]float64, []float64, int) {
	byDay := map[string]float64{}
	for _, s := range benchmark {
		byDay[s.Date.Format(time.DateOnly)] = s.TotalValue
	}

	sorted := append([]domain.PortfolioSnapshot{}, portfolio...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	portfolioValues, benchmarkValues := []float64{}, []float64{}
	for _, s := range sorted {
		b, ok := byDay[s.Date.Format(time.DateOnly)]
		if !ok {
			continue
		}
		portfolioValues = append(portfolioValues, s.TotalValue)
		benchmarkValues = append(benchmarkValues, b)
	}

	portfolioReturns, benchmarkReturns := []float64{}, []float64{}
	for i := 1; i < len(portfolioValues); i++ {
		if portfolioValues[i-1] <= 0 || benchmarkValues[i-1] <= 0 {
			continue
		}
		portfolioReturns = append(portfolioReturns, portfolioValues[i]/portfolioValues[i-1]-1)
		benchmarkReturns = append(benchmarkReturns, benchmarkValues[i]/benchmarkValues[i-1]-1)
	}
	return portfolioReturns, benchmarkReturns, len(portfolioValues)
}
