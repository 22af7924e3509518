package app

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"agentbacktest/internal/domain"
	"agentbacktest/internal/logger"
	"agentbacktest/internal/memory"
	"agentbacktest/internal/repository"
	l1_service "agentbacktest/internal/service/l1"
	mock_l1_service "agentbacktest/internal/service/l1/mocks"
	l2_service "agentbacktest/internal/service/l2"
	"agentbacktest/internal/util"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	testStart = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	testEnd   = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	testNow   = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

// fakeSource serves closes keyed by symbol and date. Missing days return
// nothing.
type fakeSource struct {
	closes map[string]map[string]float64
}

func (f fakeSource) Name() string {
	return "fake"
}

func (f fakeSource) GetPriceData(ctx context.Context, symbol string, date time.Time) (*domain.MarketData, error) {
	p, ok := f.closes[symbol][date.Format(time.DateOnly)]
	if !ok {
		return nil, nil
	}
	return &domain.MarketData{Open: p, High: p, Low: p, Close: p, Volume: 1000}, nil
}

func (f fakeSource) GetNews(ctx context.Context, symbol string, start, end time.Time) ([]domain.NewsItem, error) {
	return nil, repository.ErrNotSupported
}

func (f fakeSource) GetFundamentals(ctx context.Context, symbol string, date time.Time) (*domain.Fundamentals, error) {
	return nil, repository.ErrNotSupported
}

// tradingDays lists the weekdays of the test range.
func tradingDays() []time.Time {
	out := []time.Time{}
	for d := testStart; !d.After(testEnd); d = d.AddDate(0, 0, 1) {
		if !util.IsWeekend(d) {
			out = append(out, d)
		}
	}
	return out
}

// newFakeSource builds AAPL rising a dollar a day from 100, MSFT at 200
// jumping to 240 on the fifth day, and SPY rising from 400.
func newFakeSource() fakeSource {
	closes := map[string]map[string]float64{"AAPL": {}, "MSFT": {}, "SPY": {}}
	for i, d := range tradingDays() {
		key := d.Format(time.DateOnly)
		closes["AAPL"][key] = 100 + float64(i)
		closes["MSFT"][key] = 200
		if i >= 4 {
			closes["MSFT"][key] = 240
		}
		closes["SPY"][key] = 400 + 2*float64(i)
	}
	return fakeSource{closes: closes}
}

func testConfig(t *testing.T) domain.BacktestConfig {
	cfg := domain.DefaultBacktestConfig()
	cfg.Symbols = []string{"MSFT", "AAPL"}
	cfg.StartDate = testStart
	cfg.EndDate = testEnd
	cfg.Timezone = "UTC"
	cfg.ResultDir = t.TempDir()
	cfg.BenchmarkSymbol = ""
	cfg.Cache = domain.CacheConfig{Kind: domain.CacheKindDisabled}
	cfg.DataSources = []string{"fake"}
	cfg.Retry = domain.RetryConfig{MaxAttempts: 1}
	cfg.DecisionMaker = domain.DecisionMakerConfig{
		Kind:    domain.DecisionMakerRule,
		BuyWhen: "close > 0.0",
	}
	return cfg
}

func newTestDataManager(t *testing.T, source repository.PriceSource) l1_service.DataManager {
	dm, err := l1_service.NewDataManager(
		[]repository.PriceSource{source},
		repository.NoopCache{},
		util.RetryPolicy{MaxAttempts: 1},
		time.UTC,
		func() time.Time { return testNow },
		logger.NewNop(),
	)
	require.NoError(t, err)
	return dm
}

func newRuleMaker(t *testing.T, cfg domain.BacktestConfig) l2_service.DecisionMaker {
	maker, err := l2_service.NewRuleDecisionMaker(cfg.DecisionMaker)
	require.NoError(t, err)
	return maker
}

func TestBacktestEngine_Run(t *testing.T) {
	cfg := testConfig(t)
	cfg.BenchmarkSymbol = "SPY"
	journalPath := filepath.Join(t.TempDir(), "journal.db")
	cfg.Journal = domain.JournalConfig{Driver: "sqlite3", DSN: journalPath}

	journal, err := repository.NewResultJournal(cfg.Journal)
	require.NoError(t, err)
	store, err := memory.NewStore(cfg.ResultDir, cfg.MemorySize, logger.NewNop())
	require.NoError(t, err)

	progress := []float64{}
	logs := []string{}
	engine := NewBacktestEngine(NewBacktestEngineInput{
		Config:        cfg,
		Ctx:           NewEngineContext(cfg.RandomSeed, logger.NewNop()),
		DataManager:   newTestDataManager(t, newFakeSource()),
		DecisionMaker: newRuleMaker(t, cfg),
		Memory:        store,
		Journal:       journal,
		Export:        true,
		OnProgress: func(percent float64, status, symbol string) {
			progress = append(progress, percent)
		},
		OnLog: func(msg string) {
			logs = append(logs, msg)
		},
	})

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.EngineCompleted, result.State)
	require.Equal(t, domain.EngineCompleted, engine.State())

	require.Equal(t, 10, result.ProcessedDays)
	require.Equal(t, 0, result.SkippedSymbolDays)
	require.Equal(t, 0, result.DecisionFailures)
	require.False(t, result.Stopped)
	require.Len(t, result.EquityCurve, 10)

	// AAPL and MSFT bought on day one, MSFT hits take profit on day five and
	// is bought back on day six
	require.Len(t, result.Transactions, 4)
	require.Equal(t, "AAPL", result.Transactions[0].Symbol)
	require.Equal(t, "MSFT", result.Transactions[1].Symbol)
	require.Equal(t, domain.ActionSell, result.Transactions[2].Action)
	require.Equal(t, l1_service.ExitReasonTakeProfit, result.Transactions[2].Reason)
	require.Equal(t, domain.ActionBuy, result.Transactions[3].Action)

	require.Len(t, result.Outcomes, 1)
	require.True(t, result.Outcomes[0].Success)
	require.Equal(t, 1, result.Metrics.TotalTrades)
	require.Equal(t, 2, result.FinalPortfolio.PositionCount)
	require.Greater(t, result.Metrics.TotalReturn, 0.0)

	require.NotNil(t, result.Benchmark)
	require.Equal(t, "SPY", result.Benchmark.Symbol)
	require.Equal(t, 10, result.Benchmark.OverlappingDays)

	require.Equal(t, 100.0, progress[len(progress)-1])
	require.NotEmpty(t, logs)

	// outcome memory was saved at cleanup
	require.Len(t, store.Get(memory.OutcomeKey("MSFT"), 5), 1)
	_, err = os.Stat(filepath.Join(cfg.ResultDir, memory.FileName))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(cfg.ResultDir, result.RunID, "transactions.csv"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.ResultDir, result.RunID, "result.json"))
	require.NoError(t, err)

	// the engine closed its journal; reopen to read what it wrote
	reopened, err := repository.NewResultJournal(cfg.Journal)
	require.NoError(t, err)
	defer reopened.Close()

	run, err := reopened.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	require.Equal(t, domain.EngineCompleted, run.State)
	require.Equal(t, 4, run.Trades)

	equity, err := reopened.ListEquity(context.Background(), result.RunID)
	require.NoError(t, err)
	require.Len(t, equity, 10)

	txs, err := reopened.ListTransactions(context.Background(), result.RunID)
	require.NoError(t, err)
	require.Len(t, txs, 4)
}

func TestBacktestEngine_MissingData(t *testing.T) {
	cfg := testConfig(t)
	source := newFakeSource()
	delete(source.closes["MSFT"], "2024-03-06")
	delete(source.closes["AAPL"], "2024-03-06")
	delete(source.closes["AAPL"], "2024-03-07")

	engine := NewBacktestEngine(NewBacktestEngineInput{
		Config:        cfg,
		DataManager:   newTestDataManager(t, source),
		DecisionMaker: newRuleMaker(t, cfg),
	})

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, result.ProcessedDays)
	require.Equal(t, 3, result.SkippedSymbolDays)
	require.Len(t, result.EquityCurve, 10)
}

func TestBacktestEngine_NoData(t *testing.T) {
	cfg := testConfig(t)
	engine := NewBacktestEngine(NewBacktestEngineInput{
		Config:        cfg,
		DataManager:   newTestDataManager(t, fakeSource{}),
		DecisionMaker: newRuleMaker(t, cfg),
	})

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 20, result.SkippedSymbolDays)
	require.Empty(t, result.Transactions)
	require.Equal(t, 0.0, result.Metrics.TotalReturn)
	require.Equal(t, 0.0, result.Metrics.SharpeRatio)
}

type slowMaker struct {
	calls atomic.Int32
}

func (m *slowMaker) Name() string { return "slow" }

func (m *slowMaker) MakeDecision(ctx context.Context, date time.Time, symbol string, data domain.MarketData, portfolio domain.PortfolioState) (domain.TradingDecision, error) {
	m.calls.Add(1)
	select {
	case <-ctx.Done():
		return domain.TradingDecision{}, ctx.Err()
	case <-time.After(time.Second):
	}
	return domain.TradingDecision{Action: domain.ActionBuy, Confidence: 1}, nil
}

func TestBacktestEngine_DecisionTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.Symbols = []string{"AAPL"}
	cfg.EndDate = testStart.AddDate(0, 0, 1)
	cfg.DecisionTimeout = 20 * time.Millisecond
	cfg.DecisionMaker = domain.DecisionMakerConfig{Kind: domain.DecisionMakerRandom}

	core, observed := observer.New(zapcore.WarnLevel)
	maker := &slowMaker{}
	engine := NewBacktestEngine(NewBacktestEngineInput{
		Config:        cfg,
		Ctx:           NewEngineContext(cfg.RandomSeed, zap.New(core).Sugar()),
		DataManager:   newTestDataManager(t, newFakeSource()),
		DecisionMaker: maker,
	})

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.ProcessedDays)
	require.Equal(t, 2, result.DecisionFailures)
	require.Empty(t, result.Transactions)
	require.Equal(t, cfg.InitialCapital, result.FinalPortfolio.Cash)
	require.Len(t, observed.FilterMessage("decision failed, holding").All(), 2)
}

func TestBacktestEngine_Stop(t *testing.T) {
	cfg := testConfig(t)
	var engine *BacktestEngine
	engine = NewBacktestEngine(NewBacktestEngineInput{
		Config:        cfg,
		DataManager:   newTestDataManager(t, newFakeSource()),
		DecisionMaker: newRuleMaker(t, cfg),
		OnProgress: func(percent float64, status, symbol string) {
			if symbol == "" {
				engine.Stop()
			}
		},
	})

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Stopped)
	require.Equal(t, 1, result.ProcessedDays)
	require.Len(t, result.EquityCurve, 1)
	require.Len(t, result.Transactions, 2)
	require.Equal(t, domain.EngineCompleted, result.State)
}

func TestBacktestEngine_CancelJournalsCompletedDay(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal = domain.JournalConfig{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "journal.db")}
	journal, err := repository.NewResultJournal(cfg.Journal)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := NewBacktestEngine(NewBacktestEngineInput{
		Config:        cfg,
		DataManager:   newTestDataManager(t, newFakeSource()),
		DecisionMaker: newRuleMaker(t, cfg),
		Journal:       journal,
		OnProgress: func(percent float64, status, symbol string) {
			// cancel partway through the first day, before it is journaled
			if symbol != "" {
				cancel()
			}
		},
	})

	result, err := engine.Run(ctx)
	require.NoError(t, err)
	require.True(t, result.Stopped)
	require.Equal(t, 1, result.ProcessedDays)
	require.Len(t, result.Transactions, 2)

	reopened, err := repository.NewResultJournal(cfg.Journal)
	require.NoError(t, err)
	defer reopened.Close()

	run, err := reopened.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	require.Equal(t, domain.EngineCompleted, run.State)
	require.Equal(t, 2, run.Trades)

	equity, err := reopened.ListEquity(context.Background(), result.RunID)
	require.NoError(t, err)
	require.Len(t, equity, 1)

	txs, err := reopened.ListTransactions(context.Background(), result.RunID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
}

func TestBacktestEngine_InvalidConfig(t *testing.T) {
	ctrl := gomock.NewController(t)
	dataManager := mock_l1_service.NewMockDataManager(ctrl)
	dataManager.EXPECT().Close().Return(nil)

	cfg := testConfig(t)
	cfg.Symbols = nil
	cfg.Commission = 0.5

	engine := NewBacktestEngine(NewBacktestEngineInput{
		Config:        cfg,
		DataManager:   dataManager,
		DecisionMaker: newRuleMaker(t, testConfig(t)),
	})

	result, err := engine.Run(context.Background())
	validationErr := &domain.ConfigValidationError{}
	require.ErrorAs(t, err, &validationErr)
	require.Len(t, validationErr.Problems, 2)
	require.Equal(t, domain.EngineFailed, result.State)
	require.Equal(t, domain.EngineFailed, engine.State())

	_, err = engine.Run(context.Background())
	require.ErrorContains(t, err, "already started")
}

func TestTransactionsOn(t *testing.T) {
	d1 := testStart
	d2 := testStart.AddDate(0, 0, 1)
	txs := []domain.Transaction{
		{Symbol: "A", Timestamp: d1},
		{Symbol: "B", Timestamp: d2},
		{Symbol: "C", Timestamp: d2},
	}
	require.Len(t, transactionsOn(txs, d2), 2)
	require.Empty(t, transactionsOn(txs, testStart.AddDate(0, 0, 2)))
	require.Empty(t, transactionsOn(nil, d1))
}
