package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"agentbacktest/internal/buffer"
	"agentbacktest/internal/domain"
	"agentbacktest/internal/memory"
	"agentbacktest/internal/repository"
	l1_service "agentbacktest/internal/service/l1"
	l2_service "agentbacktest/internal/service/l2"
	l3_service "agentbacktest/internal/service/l3"
	"agentbacktest/internal/util"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	newsLookbackDays = 3
	cashTolerance    = 1e-6
)

// EngineContext is everything a run would otherwise reach for globally.
type EngineContext struct {
	Log  *zap.SugaredLogger
	Rand *rand.Rand
	Now  func() time.Time
}

func NewEngineContext(seed int64, log *zap.SugaredLogger) EngineContext {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return EngineContext{
		Log:  log,
		Rand: rand.New(rand.NewSource(seed)),
		Now:  time.Now,
	}
}

type ProgressFunc func(percent float64, status string, symbol string)
type LogFunc func(msg string)

type BacktestEngine struct {
	Config        domain.BacktestConfig
	Ctx           EngineContext
	DataManager   l1_service.DataManager
	DecisionMaker l2_service.DecisionMaker
	Memory        *memory.Store
	Journal       repository.ResultJournal
	InterestRates repository.InterestRateRepository
	Metrics       l3_service.MetricsCalculator
	Benchmark     l3_service.BenchmarkComparator

	// Export writes transactions.csv and result.json under ResultDir/<run id>
	Export bool

	OnProgress ProgressFunc
	OnLog      LogFunc

	mu       sync.Mutex
	state    domain.EngineState
	stopCh   chan struct{}
	stopOnce sync.Once
}

type NewBacktestEngineInput struct {
	Config        domain.BacktestConfig
	Ctx           EngineContext
	DataManager   l1_service.DataManager
	DecisionMaker l2_service.DecisionMaker
	Memory        *memory.Store
	Journal       repository.ResultJournal
	InterestRates repository.InterestRateRepository
	Export        bool
	OnProgress    ProgressFunc
	OnLog         LogFunc
}

func NewBacktestEngine(in NewBacktestEngineInput) *BacktestEngine {
	if in.Ctx.Log == nil {
		in.Ctx = NewEngineContext(in.Config.RandomSeed, nil)
	}
	if in.Ctx.Now == nil {
		in.Ctx.Now = time.Now
	}
	if in.Journal == nil {
		in.Journal = repository.NoopJournal{}
	}
	return &BacktestEngine{
		Config:        in.Config,
		Ctx:           in.Ctx,
		DataManager:   in.DataManager,
		DecisionMaker: in.DecisionMaker,
		Memory:        in.Memory,
		Journal:       in.Journal,
		InterestRates: in.InterestRates,
		Metrics:       l3_service.NewMetricsCalculator(),
		Benchmark:     l3_service.NewBenchmarkComparator(in.DataManager, in.Ctx.Log),
		Export:        in.Export,
		OnProgress:    in.OnProgress,
		OnLog:         in.OnLog,
		state:         domain.EngineCreated,
		stopCh:        make(chan struct{}),
	}
}

func (e *BacktestEngine) State() domain.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *BacktestEngine) setState(s domain.EngineState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.Ctx.Log.Debugw("engine state", "state", s)
}

// Stop asks the run to end after the day in progress. The partial history is
// still finalized.
func (e *BacktestEngine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
}

func (e *BacktestEngine) stopRequested(ctx context.Context) bool {
	select {
	case <-e.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (e *BacktestEngine) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.Ctx.Log.Info(msg)
	if e.OnLog != nil {
		e.OnLog(msg)
	}
}

func (e *BacktestEngine) progress(percent float64, status, symbol string) {
	if e.OnProgress != nil {
		e.OnProgress(percent, status, symbol)
	}
}

// runState is what a single Run accumulates.
type runState struct {
	runID        string
	timeManager  *l1_service.TimeManager
	positions    l1_service.PositionManager
	runner       l2_service.DecisionRunner
	snapshots    *buffer.CircularBuffer[domain.PortfolioSnapshot]
	riskFreeRate float64
	outcomesSeen int

	processedDays    int
	skipped          int
	decisionFailures int
	rejected         int
	stopped          bool
}

// Run executes the backtest. A run can only be started once. Cleanup runs on
// every path out of Run.
func (e *BacktestEngine) Run(ctx context.Context) (result *domain.BacktestResult, err error) {
	e.mu.Lock()
	if e.state != domain.EngineCreated {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine already started (state %s)", e.state)
	}
	e.state = domain.EngineInitializing
	e.mu.Unlock()

	profile, endProfile := domain.NewProfile(e.Ctx.Now)
	ctx = domain.ContextWithProfile(ctx, profile)
	defer endProfile()

	result = &domain.BacktestResult{
		RunID:     ulid.Make().String(),
		Config:    e.Config,
		StartedAt: e.Ctx.Now(),
		Profile:   profile,
	}
	log := e.Ctx.Log.With("runId", result.RunID)

	defer func() {
		if err != nil {
			e.setState(domain.EngineFailed)
			result.State = domain.EngineFailed
			result.FinishedAt = e.Ctx.Now()
			e.recordRun(context.WithoutCancel(ctx), result, err)
			log.Errorw("backtest failed", "error", err)
		}
		e.cleanup(log)
	}()

	_, endPhase := profile.Begin("initialize")
	rs, err := e.initialize(ctx, result.RunID)
	endPhase()
	if err != nil {
		return result, err
	}
	e.recordRun(ctx, result, nil)

	e.setState(domain.EngineRunning)
	_, endPhase = profile.Begin("run")
	err = e.run(ctx, rs, log)
	endPhase()
	if err != nil {
		return result, err
	}

	e.setState(domain.EngineFinalizing)
	_, endPhase = profile.Begin("finalize")
	e.finalize(ctx, rs, result, log)
	endPhase()

	e.setState(domain.EngineCompleted)
	result.State = domain.EngineCompleted
	result.FinishedAt = e.Ctx.Now()
	e.recordRun(context.WithoutCancel(ctx), result, nil)

	if e.Export && e.Config.ResultDir != "" {
		dir := filepath.Join(e.Config.ResultDir, result.RunID)
		if exportErr := repository.ExportResult(dir, *result); exportErr != nil {
			log.Warnw("failed to export result", "dir", dir, "error", exportErr)
		} else {
			e.logf("wrote results to %s", dir)
		}
	}
	return result, nil
}

func (e *BacktestEngine) initialize(ctx context.Context, runID string) (*runState, error) {
	if err := e.Config.Validate(); err != nil {
		return nil, err
	}
	if e.DataManager == nil || e.DecisionMaker == nil {
		return nil, &domain.EngineError{State: domain.EngineInitializing, Err: fmt.Errorf("data manager and decision maker are required")}
	}

	calendar := l1_service.NewHolidayCalendar(l1_service.WeekdayCalendar{}, e.Config.Holidays)
	timeManager, err := l1_service.NewTimeManager(e.Config.StartDate, e.Config.EndDate, e.Config.Location(), calendar)
	if err != nil {
		return nil, fmt.Errorf("failed to build trading calendar: %w", err)
	}

	positions, err := l1_service.NewPositionManager(l1_service.NewPositionManagerConfig(e.Config), e.Ctx.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create position manager: %w", err)
	}

	snapshots, err := buffer.NewCircularBuffer[domain.PortfolioSnapshot](e.Config.SnapshotHistorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot history: %w", err)
	}

	runner := l2_service.NewDecisionRunner(
		e.DecisionMaker,
		e.Config.DecisionTimeout,
		util.NewRetryPolicy(e.Config.Retry, 0),
		e.Ctx.Log,
	)

	e.logf("backtesting %d symbols over %d trading days with %s", len(e.Config.Symbols), timeManager.TotalDays(), e.DecisionMaker.Name())

	return &runState{
		runID:        runID,
		timeManager:  timeManager,
		positions:    positions,
		runner:       runner,
		snapshots:    snapshots,
		riskFreeRate: e.resolveRiskFreeRate(ctx),
	}, nil
}

// resolveRiskFreeRate looks the rate up on the start date when the config
// leaves it negative. Lookup failures fall back to 0.
func (e *BacktestEngine) resolveRiskFreeRate(ctx context.Context) float64 {
	if e.Config.RiskFreeRate >= 0 {
		return e.Config.RiskFreeRate
	}
	if e.InterestRates == nil {
		return 0
	}
	rate, err := e.InterestRates.GetRiskFreeRate(ctx, e.Config.StartDate)
	if err != nil {
		e.Ctx.Log.Warnw("failed to get risk-free rate, using 0", "error", err)
		return 0
	}
	return rate
}

func (e *BacktestEngine) run(ctx context.Context, rs *runState, log *zap.SugaredLogger) error {
	for rs.timeManager.HasNext() {
		if e.stopRequested(ctx) {
			rs.stopped = true
			e.logf("stopping after %d of %d days", rs.processedDays, rs.timeManager.TotalDays())
			break
		}

		date := rs.timeManager.CurrentDate()
		if err := e.processDay(ctx, rs, date, log.With("date", date.Format(time.DateOnly))); err != nil {
			return err
		}
		rs.processedDays++
		rs.timeManager.Next()

		e.progress(rs.timeManager.Progress()*100, fmt.Sprintf("processed %s", date.Format(time.DateOnly)), "")
	}
	return nil
}

type symbolResult struct {
	symbol      string
	data        *domain.MarketData
	dataErr     error
	decision    domain.TradingDecision
	decisionErr error
}

// collectDecisions fetches data and asks for a decision for every symbol of
// the day. Every decision sees the same start-of-day portfolio.
func (e *BacktestEngine) collectDecisions(ctx context.Context, rs *runState, date time.Time, portfolio domain.PortfolioState) []symbolResult {
	symbols := e.Config.Symbols
	inputCh := make(chan string, len(symbols))
	resultCh := make(chan symbolResult, len(symbols))
	for _, s := range symbols {
		inputCh <- s
	}
	close(inputCh)

	numGoroutines := e.Config.Concurrency
	if numGoroutines <= 0 {
		numGoroutines = 1
	}
	if numGoroutines > len(symbols) {
		numGoroutines = len(symbols)
	}

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range inputCh {
				resultCh <- e.decideSymbol(ctx, rs, date, symbol, portfolio)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]symbolResult, 0, len(symbols))
	for res := range resultCh {
		results = append(results, res)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].symbol < results[j].symbol
	})
	return results
}

func (e *BacktestEngine) decideSymbol(ctx context.Context, rs *runState, date time.Time, symbol string, portfolio domain.PortfolioState) symbolResult {
	out := symbolResult{symbol: symbol}
	phase := domain.ProfileFromContext(ctx).Current()

	stop := phase.Time("data")
	data, err := e.DataManager.GetData(ctx, symbol, date)
	stop()
	if err != nil || data == nil {
		out.dataErr = err
		return out
	}

	if e.Config.IncludeNews {
		news, err := e.DataManager.GetNews(ctx, symbol, date.AddDate(0, 0, -newsLookbackDays), date)
		if err != nil {
			e.Ctx.Log.Debugw("no news", "symbol", symbol, "error", err)
		} else if len(news) > 0 {
			withNews := data.Copy()
			withNews.News = news
			data = &withNews
		}
	}
	out.data = data

	stop = phase.Time("decide")
	out.decision, out.decisionErr = rs.runner.Decide(ctx, date, symbol, *data, portfolio)
	stop()
	return out
}

func (e *BacktestEngine) processDay(ctx context.Context, rs *runState, date time.Time, log *zap.SugaredLogger) error {
	pm := rs.positions
	results := e.collectDecisions(ctx, rs, date, pm.GetPortfolioState())

	prices := map[string]float64{}
	for _, res := range results {
		if res.data == nil {
			rs.skipped++
			log.Warnw("skipping symbol for the day", "symbol", res.symbol, "error", res.dataErr)
			continue
		}
		prices[res.symbol] = res.data.Close

		if res.decisionErr != nil {
			rs.decisionFailures++
		}
		if err := e.apply(rs, date, res, log); err != nil {
			return err
		}
		e.progress(rs.timeManager.Progress()*100, fmt.Sprintf("%s %s", res.decision.Action, res.symbol), res.symbol)
	}

	pm.MarkToMarket(date, prices)
	for _, p := range pm.CheckExitConditions(date) {
		e.logf("%s closed %s at %.2f", p.ExitReason, p.Symbol, p.ExitPrice)
	}
	e.recordOutcomes(rs)

	snapshot := pm.GetPortfolioState().Snapshot()
	snapshot.Date = date
	rs.snapshots.Append(snapshot)

	// a stop mid-day still journals the day it completed
	journalCtx := context.WithoutCancel(ctx)
	if err := e.Journal.RecordEquity(journalCtx, rs.runID, snapshot); err != nil {
		log.Warnw("failed to journal equity", "error", err)
	}
	for _, tx := range transactionsOn(pm.Transactions(), date) {
		if err := e.Journal.RecordTransaction(journalCtx, rs.runID, tx); err != nil {
			log.Warnw("failed to journal transaction", "id", tx.ID, "error", err)
		}
	}
	return nil
}

// apply routes one decision through the position manager. Rejections are
// counted; only a broken cash invariant is returned.
func (e *BacktestEngine) apply(rs *runState, date time.Time, res symbolResult, log *zap.SugaredLogger) error {
	if !res.decision.IsActionable() {
		return nil
	}
	pm := rs.positions

	tx, err := pm.BuildTransaction(date, res.decision, *res.data)
	if err != nil {
		rs.rejected++
		log.Warnw("decision not executable", "symbol", res.symbol, "action", res.decision.Action, "error", err)
		return nil
	}
	if tx == nil {
		return nil
	}
	if !pm.ExecuteTransaction(*tx) {
		rs.rejected++
		return nil
	}

	state := pm.GetPortfolioState()
	if state.Cash < -cashTolerance {
		return &domain.EngineError{
			State: domain.EngineRunning,
			Err:   fmt.Errorf("cash is %f after %s %s on %s", state.Cash, tx.Action, tx.Symbol, date.Format(time.DateOnly)),
		}
	}
	log.Infow("executed", "symbol", tx.Symbol, "action", tx.Action, "quantity", tx.Quantity, "price", tx.Price)
	return nil
}

// recordOutcomes files every newly closed trade under its symbol so later
// decisions can reflect on it.
func (e *BacktestEngine) recordOutcomes(rs *runState) {
	fresh, seen := rs.positions.OutcomesSince(rs.outcomesSeen)
	rs.outcomesSeen = seen
	if e.Memory == nil {
		return
	}
	for _, o := range fresh {
		o := o
		e.Memory.Add(memory.OutcomeKey(o.Symbol), memory.Entry{
			Timestamp: o.ExitDate,
			Situation: fmt.Sprintf(
				"closed %s at %+.1f%% after %d days (%s)",
				o.Symbol, o.ReturnPct*100, o.HoldingDays, o.ExitReason,
			),
			Outcome: &o,
		})
	}
}

// transactionsOn returns the trailing transactions stamped with date.
func transactionsOn(txs []domain.Transaction, date time.Time) []domain.Transaction {
	i := len(txs)
	for i > 0 && txs[i-1].Timestamp.Equal(date) {
		i--
	}
	return txs[i:]
}

func (e *BacktestEngine) finalize(ctx context.Context, rs *runState, result *domain.BacktestResult, log *zap.SugaredLogger) {
	pm := rs.positions
	snapshots := rs.snapshots.GetAll()
	transactions := pm.Transactions()

	result.Metrics = e.Metrics.CalculatePerformance(snapshots, transactions, e.Config.InitialCapital, rs.riskFreeRate)
	result.Transactions = transactions
	result.EquityCurve = snapshots
	result.FinalPortfolio = pm.GetPortfolioState()
	result.Outcomes = pm.Outcomes()
	result.ProcessedDays = rs.processedDays
	result.SkippedSymbolDays = rs.skipped
	result.DecisionFailures = rs.decisionFailures
	result.RejectedTransactions = rs.rejected
	result.Stopped = rs.stopped

	if e.Config.BenchmarkSymbol != "" && e.Benchmark != nil && len(snapshots) > 1 {
		comparison, err := e.Benchmark.Compare(context.WithoutCancel(ctx), l3_service.CompareInput{
			Symbol:             e.Config.BenchmarkSymbol,
			Start:              snapshots[0].Date,
			End:                snapshots[len(snapshots)-1].Date,
			InitialCapital:     e.Config.InitialCapital,
			RiskFreeRate:       rs.riskFreeRate,
			PortfolioSnapshots: snapshots,
			PortfolioMetrics:   result.Metrics,
		})
		if err != nil {
			log.Warnw("benchmark comparison failed", "benchmark", e.Config.BenchmarkSymbol, "error", err)
		} else {
			result.Benchmark = comparison
		}
	}

	e.logf(
		"finished: return %.2f%%, sharpe %.2f, max drawdown %.2f%%, %d trades, %d skipped symbol-days",
		result.Metrics.TotalReturn*100,
		result.Metrics.SharpeRatio,
		result.Metrics.MaxDrawdown*100,
		result.Metrics.TotalTrades,
		result.SkippedSymbolDays,
	)
}

func (e *BacktestEngine) recordRun(ctx context.Context, result *domain.BacktestResult, runErr error) {
	run := repository.RunRecord{
		RunID:          result.RunID,
		CreatedAt:      result.StartedAt,
		UpdatedAt:      e.Ctx.Now(),
		State:          e.State(),
		Symbols:        e.Config.Symbols,
		StartDate:      e.Config.StartDate,
		EndDate:        e.Config.EndDate,
		InitialCapital: e.Config.InitialCapital,
		FinalValue:     result.FinalPortfolio.TotalValue,
		TotalReturn:    result.Metrics.TotalReturn,
		SharpeRatio:    result.Metrics.SharpeRatio,
		MaxDrawdown:    result.Metrics.MaxDrawdown,
		Trades:         len(result.Transactions),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := e.Journal.RecordRun(ctx, run); err != nil {
		e.Ctx.Log.Warnw("failed to journal run", "runId", result.RunID, "error", err)
	}
}

// cleanup releases everything the run was given. Failures are logged, not
// returned, so they never mask the run's own error.
func (e *BacktestEngine) cleanup(log *zap.SugaredLogger) {
	errs := []error{}
	if e.DataManager != nil {
		if err := e.DataManager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close data manager: %w", err))
		}
	}
	if e.Memory != nil {
		if err := e.Memory.Save(); err != nil {
			errs = append(errs, fmt.Errorf("failed to save memory: %w", err))
		}
	}
	if closer, ok := e.DecisionMaker.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close decision maker: %w", err))
		}
	}
	if err := e.Journal.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close journal: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		log.Errorw("cleanup failed", "error", err)
	}
}
