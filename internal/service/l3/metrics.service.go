package l3_service

import (
	"math"
	"sort"

	"agentbacktest/internal/domain"
	"agentbacktest/internal/util"

	"github.com/montanaflynn/stats"
)

const (
	tradingDaysPerYear = 252
	daysPerYear        = 365.25
)

type MetricsCalculator interface {
	CalculatePerformance(
		snapshots []domain.PortfolioSnapshot,
		transactions []domain.Transaction,
		initialCapital float64,
		riskFreeRate float64,
	) domain.PerformanceMetrics
}

type metricsCalculatorHandler struct{}

func NewMetricsCalculator() MetricsCalculator {
	return metricsCalculatorHandler{}
}

// CalculatePerformance is a pure function of its inputs. Degenerate inputs
// produce zeros, never NaN or Inf.
func (h metricsCalculatorHandler) CalculatePerformance(
	snapshots []domain.PortfolioSnapshot,
	transactions []domain.Transaction,
	initialCapital float64,
	riskFreeRate float64,
) domain.PerformanceMetrics {
	values := make([]float64, len(snapshots))
	for i, s := range snapshots {
		values[i] = s.TotalValue
	}

	out := domain.PerformanceMetrics{
		RiskFreeRate: riskFreeRate,
		TradingDays:  len(snapshots),
	}

	days := 0
	if len(snapshots) > 0 {
		days = util.DaysBetween(snapshots[0].Date, snapshots[len(snapshots)-1].Date)
		out = withReturnMetrics(out, values, initialCapital, days, riskFreeRate)
	}

	trades := matchTrades(transactions)
	out = withTradeStats(out, trades)
	out.AnnualizedTurnover = annualizedTurnover(transactions, values, days)

	return sanitize(out)
}

// withReturnMetrics fills the fields that only depend on the value series.
// It is shared with the benchmark comparison.
func withReturnMetrics(m domain.PerformanceMetrics, values []float64, initialCapital float64, days int, riskFreeRate float64) domain.PerformanceMetrics {
	if len(values) == 0 || initialCapital <= 0 {
		return m
	}

	m.TotalReturn = (values[len(values)-1] - initialCapital) / initialCapital
	m.AnnualizedReturn = AnnualizeReturn(m.TotalReturn, days)

	returns := DailyReturns(values)
	m.Volatility = AnnualizedVolatility(returns)
	if m.Volatility > 0 {
		m.SharpeRatio = (m.AnnualizedReturn - riskFreeRate) / m.Volatility
	}
	if dd := downsideDeviation(returns, riskFreeRate/tradingDaysPerYear); dd > 0 {
		m.SortinoRatio = (m.AnnualizedReturn - riskFreeRate) / (dd * math.Sqrt(tradingDaysPerYear))
	}

	m.MaxDrawdown, m.MaxDrawdownDuration = MaxDrawdown(values)
	if m.MaxDrawdown > 0 {
		m.CalmarRatio = m.AnnualizedReturn / m.MaxDrawdown
	}

	m.VaR95, m.CVaR95 = valueAtRisk(returns)
	return m
}

func AnnualizeReturn(totalReturn float64, days int) float64 {
	if days <= 0 || totalReturn <= -1 {
		return 0
	}
	return math.Pow(1+totalReturn, daysPerYear/float64(days)) - 1
}

// DailyReturns returns the simple period returns of values. Periods that
// start from a non-positive value are dropped.
func DailyReturns(values []float64) []float64 {
	returns := []float64{}
	for i := 1; i < len(values); i++ {
		if values[i-1] <= 0 {
			continue
		}
		returns = append(returns, (values[i]-values[i-1])/values[i-1])
	}
	return returns
}

func AnnualizedVolatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	stdev, err := stats.StandardDeviationSample(returns)
	if err != nil {
		return 0
	}
	return stdev * math.Sqrt(tradingDaysPerYear)
}

func downsideDeviation(returns []float64, target float64) float64 {
	squares := []float64{}
	for _, r := range returns {
		if r < target {
			squares = append(squares, (r-target)*(r-target))
		}
	}
	if len(squares) == 0 {
		return 0
	}
	mean, err := stats.Mean(squares)
	if err != nil {
		return 0
	}
	return math.Sqrt(mean)
}

// MaxDrawdown returns the deepest peak-to-trough decline as a fraction of
// the peak, and the longest run of consecutive points spent below a peak.
func MaxDrawdown(values []float64) (float64, int) {
	peak := 0.0
	maxDrawdown := 0.0
	run, longest := 0, 0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		drawdown := 0.0
		if peak > 0 {
			drawdown = (peak - v) / peak
		}
		if drawdown > 0 {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown, longest
}

// valueAtRisk reads the 5th percentile of the sorted returns. Both values
// are reported as positive losses.
func valueAtRisk(returns []float64) (float64, float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	sorted := append([]float64{}, returns...)
	sort.Float64s(sorted)

	idx := int(math.Floor(0.05 * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	valueAtRisk := -sorted[idx]

	tail := []float64{}
	for _, r := range sorted {
		if r < -valueAtRisk {
			tail = append(tail, r)
		}
	}
	if len(tail) == 0 {
		return valueAtRisk, valueAtRisk
	}
	mean, err := stats.Mean(tail)
	if err != nil {
		return valueAtRisk, valueAtRisk
	}
	return valueAtRisk, -mean
}

type lot struct {
	quantity     float64
	costPerShare float64
	transaction  domain.Transaction
}

type matchedTrade struct {
	Symbol      string
	Quantity    float64
	PnL         float64
	HoldingDays float64
}

// matchTrades pairs each SELL against the oldest open BUY lots of the same
// symbol. Each SELL yields one trade. Sell quantity with no lot left to
// match is ignored.
func matchTrades(transactions []domain.Transaction) []matchedTrade {
	sorted := append([]domain.Transaction{}, transactions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	lots := map[string][]lot{}
	trades := []matchedTrade{}
	for _, tx := range sorted {
		if tx.Quantity <= 0 {
			continue
		}
		switch tx.Action {
		case domain.ActionBuy:
			lots[tx.Symbol] = append(lots[tx.Symbol], lot{
				quantity:     tx.Quantity,
				costPerShare: (tx.Quantity*tx.Price + tx.Commission) / tx.Quantity,
				transaction:  tx,
			})

		case domain.ActionSell:
			proceedsPerShare := (tx.Quantity*tx.Price - tx.Commission) / tx.Quantity
			remaining := tx.Quantity
			trade := matchedTrade{Symbol: tx.Symbol}
			weightedDays := 0.0

			queue := lots[tx.Symbol]
			for remaining > 1e-9 && len(queue) > 0 {
				l := &queue[0]
				q := math.Min(remaining, l.quantity)
				trade.Quantity += q
				trade.PnL += q * (proceedsPerShare - l.costPerShare)
				weightedDays += q * float64(util.DaysBetween(l.transaction.Timestamp, tx.Timestamp))

				l.quantity -= q
				remaining -= q
				if l.quantity <= 1e-9 {
					queue = queue[1:]
				}
			}
			lots[tx.Symbol] = queue

			if trade.Quantity > 0 {
				trade.HoldingDays = weightedDays / trade.Quantity
				trades = append(trades, trade)
			}
		}
	}
	return trades
}

// withTradeStats derives win/loss statistics. AvgLoss is a positive
// magnitude. With no losing trades and some profit, ProfitFactor stays 0
// and ProfitFactorInfinite is set.
func withTradeStats(m domain.PerformanceMetrics, trades []matchedTrade) domain.PerformanceMetrics {
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return m
	}

	grossProfit, grossLoss, holding := 0.0, 0.0, 0.0
	for _, t := range trades {
		switch {
		case t.PnL > 0:
			m.WinningTrades++
			grossProfit += t.PnL
		case t.PnL < 0:
			m.LosingTrades++
			grossLoss += -t.PnL
		}
		holding += t.HoldingDays
	}

	m.WinRate = float64(m.WinningTrades) / float64(len(trades))
	if m.WinningTrades > 0 {
		m.AvgWin = grossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = grossLoss / float64(m.LosingTrades)
	}
	switch {
	case grossLoss > 0:
		m.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		m.ProfitFactorInfinite = true
	}
	m.AvgHoldingPeriod = holding / float64(len(trades))
	return m
}

func annualizedTurnover(transactions []domain.Transaction, values []float64, days int) float64 {
	if len(transactions) == 0 || len(values) == 0 || days <= 0 {
		return 0
	}
	avgValue, err := stats.Mean(values)
	if err != nil || avgValue <= 0 {
		return 0
	}
	traded := 0.0
	for _, tx := range transactions {
		traded += math.Abs(tx.Notional())
	}
	years := float64(days) / daysPerYear
	return traded / avgValue / years
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func sanitize(m domain.PerformanceMetrics) domain.PerformanceMetrics {
	m.TotalReturn = finite(m.TotalReturn)
	m.AnnualizedReturn = finite(m.AnnualizedReturn)
	m.Volatility = finite(m.Volatility)
	m.SharpeRatio = finite(m.SharpeRatio)
	m.SortinoRatio = finite(m.SortinoRatio)
	m.CalmarRatio = finite(m.CalmarRatio)
	m.RiskFreeRate = finite(m.RiskFreeRate)
	m.MaxDrawdown = finite(m.MaxDrawdown)
	m.VaR95 = finite(m.VaR95)
	m.CVaR95 = finite(m.CVaR95)
	m.WinRate = finite(m.WinRate)
	m.AvgWin = finite(m.AvgWin)
	m.AvgLoss = finite(m.AvgLoss)
	m.ProfitFactor = finite(m.ProfitFactor)
	m.AvgHoldingPeriod = finite(m.AvgHoldingPeriod)
	m.AnnualizedTurnover = finite(m.AnnualizedTurnover)
	return m
}
