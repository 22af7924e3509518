package domain

import "time"

// ProfitFactorSentinel is reported when a run has winning trades and no
// losing trades.
const ProfitFactorSentinel = 999.0

type PerformanceMetrics struct {
	TotalReturn      float64 `json:"totalReturn"`
	AnnualizedReturn float64 `json:"annualizedReturn"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpeRatio"`
	SortinoRatio     float64 `json:"sortinoRatio"`
	CalmarRatio      float64 `json:"calmarRatio"`
	RiskFreeRate     float64 `json:"riskFreeRate"`

	MaxDrawdown         float64 `json:"maxDrawdown"`
	MaxDrawdownDuration int     `json:"maxDrawdownDuration"`
	VaR95               float64 `json:"var95"`
	CVaR95              float64 `json:"cvar95"`

	TotalTrades          int     `json:"totalTrades"`
	WinningTrades        int     `json:"winningTrades"`
	LosingTrades         int     `json:"losingTrades"`
	WinRate              float64 `json:"winRate"`
	AvgWin               float64 `json:"avgWin"`
	AvgLoss              float64 `json:"avgLoss"`
	ProfitFactor         float64 `json:"profitFactor"`
	ProfitFactorInfinite bool    `json:"profitFactorInfinite"`
	AvgHoldingPeriod     float64 `json:"avgHoldingPeriodDays"`
	AnnualizedTurnover   float64 `json:"annualizedTurnover"`

	TradingDays int `json:"tradingDays"`
}

// ReportedProfitFactor substitutes the sentinel when there were no losses.
func (m PerformanceMetrics) ReportedProfitFactor() float64 {
	if m.ProfitFactorInfinite {
		return ProfitFactorSentinel
	}
	return m.ProfitFactor
}

type BenchmarkComparison struct {
	Symbol           string             `json:"symbol"`
	Metrics          PerformanceMetrics `json:"metrics"`
	Alpha            float64            `json:"alpha"`
	Beta             float64            `json:"beta"`
	BetaMeasured     bool               `json:"betaMeasured"`
	TrackingError    float64            `json:"trackingError"`
	InformationRatio float64            `json:"informationRatio"`
	Outperformance   float64            `json:"outperformance"`
	OverlappingDays  int                `json:"overlappingDays"`
}

type EngineState string

const (
	EngineCreated      EngineState = "CREATED"
	EngineInitializing EngineState = "INITIALIZING"
	EngineRunning      EngineState = "RUNNING"
	EngineFinalizing   EngineState = "FINALIZING"
	EngineCompleted    EngineState = "COMPLETED"
	EngineFailed       EngineState = "FAILED"
)

type BacktestResult struct {
	RunID  string         `json:"runId"`
	State  EngineState    `json:"state"`
	Config BacktestConfig `json:"config"`

	Metrics   PerformanceMetrics   `json:"metrics"`
	Benchmark *BenchmarkComparison `json:"benchmark,omitempty"`

	Transactions   []Transaction       `json:"transactions"`
	EquityCurve    []PortfolioSnapshot `json:"equityCurve"`
	FinalPortfolio PortfolioState      `json:"finalPortfolio"`
	Outcomes       []TradingOutcome    `json:"outcomes"`

	ProcessedDays        int  `json:"processedDays"`
	SkippedSymbolDays    int  `json:"skippedSymbolDays"`
	DecisionFailures     int  `json:"decisionFailures"`
	RejectedTransactions int  `json:"rejectedTransactions"`
	Stopped              bool `json:"stopped"`

	Profile    *Profile  `json:"profile,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}
