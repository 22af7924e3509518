package l1_service

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"agentbacktest/internal/buffer"
	"agentbacktest/internal/domain"
	"agentbacktest/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	ExitReasonStopLoss   = "stop_loss"
	ExitReasonTakeProfit = "take_profit"
	ExitReasonSignal     = "signal"

	quantityEpsilon = 1e-9
)

// PositionManager owns cash and open positions. All methods are safe for
// concurrent use; writes are serialized.
type PositionManager interface {
	CalculatePositionSize(decision domain.TradingDecision, confidence float64) float64
	BuildTransaction(date time.Time, decision domain.TradingDecision, data domain.MarketData) (*domain.Transaction, error)
	ExecuteTransaction(tx domain.Transaction) bool
	LastError() error
	UpdatePositionValue(symbol string, price float64)
	MarkToMarket(date time.Time, prices map[string]float64)
	CheckExitConditions(date time.Time) []domain.Position
	GetPortfolioState() domain.PortfolioState
	Transactions() []domain.Transaction
	ClosedPositions() []domain.Position
	Outcomes() []domain.TradingOutcome
	// OutcomesSince returns the retained outcomes produced after the first
	// seen, plus the running total to pass on the next call.
	OutcomesSince(seen int) ([]domain.TradingOutcome, int)
}

type PositionManagerConfig struct {
	InitialCapital         float64
	PositionLimit          float64
	StopLoss               float64
	TakeProfit             float64
	MaxPositions           int
	MinTradeSize           float64
	Slippage               float64
	Commission             float64
	TransactionHistorySize int
}

func NewPositionManagerConfig(cfg domain.BacktestConfig) PositionManagerConfig {
	return PositionManagerConfig{
		InitialCapital:         cfg.InitialCapital,
		PositionLimit:          cfg.PositionLimit(),
		StopLoss:               cfg.StopLoss,
		TakeProfit:             cfg.TakeProfit,
		MaxPositions:           cfg.MaxPositions,
		MinTradeSize:           cfg.MinTradeSize,
		Slippage:               cfg.Slippage,
		Commission:             cfg.Commission,
		TransactionHistorySize: cfg.TransactionHistorySize,
	}
}

type holding struct {
	position domain.Position
	// quantity already sold out of this position
	sold float64
}

type positionManagerHandler struct {
	mu sync.Mutex

	Config PositionManagerConfig
	Log    *zap.SugaredLogger

	cash         decimal.Decimal
	realizedPnL  decimal.Decimal
	asOf         time.Time
	open         map[string]*holding
	closed       *buffer.CircularBuffer[domain.Position]
	outcomes     *buffer.CircularBuffer[domain.TradingOutcome]
	// outcomes ever produced, including ones evicted from the buffer
	outcomeCount int
	history      *buffer.CircularBuffer[domain.Transaction]
	lastErr      error
}

func NewPositionManager(cfg PositionManagerConfig, log *zap.SugaredLogger) (PositionManager, error) {
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %f", cfg.InitialCapital)
	}
	if cfg.TransactionHistorySize <= 0 {
		cfg.TransactionHistorySize = 10000
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	history, err := buffer.NewCircularBufferWithCopy(cfg.TransactionHistorySize, domain.Transaction.DeepCopy)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction history: %w", err)
	}
	closed, err := buffer.NewCircularBufferWithCopy(cfg.TransactionHistorySize, func(p domain.Position) domain.Position {
		return *p.DeepCopy()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create closed position history: %w", err)
	}
	outcomes, err := buffer.NewCircularBuffer[domain.TradingOutcome](cfg.TransactionHistorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create outcome history: %w", err)
	}
	return &positionManagerHandler{
		Config:      cfg,
		Log:         log,
		cash:        decimal.NewFromFloat(cfg.InitialCapital),
		realizedPnL: decimal.Zero,
		open:        map[string]*holding{},
		closed:      closed,
		outcomes:    outcomes,
		history:     history,
	}, nil
}

// CalculatePositionSize returns the BUY notional for a decision, or 0 when
// no trade should be placed.
func (h *positionManagerHandler) CalculatePositionSize(decision domain.TradingDecision, confidence float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.positionSizeLocked(decision.Symbol, decision.SizeRecommendation, confidence)
}

func (h *positionManagerHandler) positionSizeLocked(symbol string, sizeRecommendation *float64, confidence float64) float64 {
	if math.IsNaN(confidence) || confidence <= 0 {
		return 0
	}
	confidence = math.Min(confidence, 1)

	_, held := h.open[symbol]
	if !held && len(h.open) >= h.Config.MaxPositions {
		return 0
	}

	limit := h.Config.PositionLimit
	if sizeRecommendation != nil && *sizeRecommendation > 0 && *sizeRecommendation < limit {
		limit = *sizeRecommendation
	}

	cash := h.cash.InexactFloat64()
	notional := limit * cash * confidence

	existing := 0.0
	if held {
		existing = h.open[symbol].position.MarketValue()
	}
	headroom := limit*h.totalValueLocked() - existing
	notional = math.Min(notional, headroom)
	notional = math.Min(notional, cash)

	if notional < h.Config.MinTradeSize || notional <= 0 {
		return 0
	}
	return notional
}

// BuildTransaction prices a decision against the day's close. It returns
// nil without an error for HOLD decisions and BUYs that size to zero.
func (h *positionManagerHandler) BuildTransaction(date time.Time, decision domain.TradingDecision, data domain.MarketData) (*domain.Transaction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if data.Close <= 0 {
		return nil, &domain.TransactionExecutionError{Symbol: decision.Symbol, Action: decision.Action, Reason: "no valid close price"}
	}
	d := decision
	switch decision.Action {
	case domain.ActionBuy:
		notional := h.positionSizeLocked(decision.Symbol, decision.SizeRecommendation, decision.Confidence)
		if notional == 0 {
			return nil, nil
		}
		tx := h.buyTransaction(date, decision.Symbol, notional, data.Close)
		tx.Decision = &d
		tx.Reason = decision.Rationale
		return &tx, nil

	case domain.ActionSell:
		hld, ok := h.open[decision.Symbol]
		if !ok {
			return nil, &domain.TransactionExecutionError{Symbol: decision.Symbol, Action: decision.Action, Reason: "no open position"}
		}
		quantity := hld.position.Quantity
		if rec := decision.SizeRecommendation; rec != nil && *rec > 0 && *rec < 1 {
			quantity *= *rec
		}
		tx := h.sellTransaction(date, decision.Symbol, quantity, data.Close, ExitReasonSignal)
		tx.Decision = &d
		return &tx, nil
	}
	return nil, nil
}

// buyTransaction sizes quantity so the full debit, commission included,
// equals notional.
func (h *positionManagerHandler) buyTransaction(date time.Time, symbol string, notional, price float64) domain.Transaction {
	fill := price * (1 + h.Config.Slippage)
	quantity := notional / (fill * (1 + h.Config.Commission))
	commission := quantity * fill * h.Config.Commission
	return domain.Transaction{
		ID:          uuid.New(),
		Timestamp:   date,
		Symbol:      symbol,
		Action:      domain.ActionBuy,
		Quantity:    quantity,
		Price:       fill,
		MarketPrice: price,
		Commission:  commission,
		Slippage:    quantity * price * h.Config.Slippage,
		TotalCost:   quantity*fill + commission,
	}
}

func (h *positionManagerHandler) sellTransaction(date time.Time, symbol string, quantity, price float64, reason string) domain.Transaction {
	fill := price * (1 - h.Config.Slippage)
	commission := quantity * fill * h.Config.Commission
	return domain.Transaction{
		ID:          uuid.New(),
		Timestamp:   date,
		Symbol:      symbol,
		Action:      domain.ActionSell,
		Quantity:    quantity,
		Price:       fill,
		MarketPrice: price,
		Commission:  commission,
		Slippage:    quantity * price * h.Config.Slippage,
		TotalCost:   quantity*fill - commission,
		Reason:      reason,
	}
}

// ExecuteTransaction applies tx or leaves state untouched. On false,
// LastError explains why.
func (h *positionManagerHandler) ExecuteTransaction(tx domain.Transaction) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.executeLocked(tx); err != nil {
		h.lastErr = err
		h.Log.Warnw("transaction rejected", "symbol", tx.Symbol, "action", tx.Action, "reason", err.Error())
		return false
	}
	h.lastErr = nil
	return true
}

func (h *positionManagerHandler) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

func (h *positionManagerHandler) executeLocked(tx domain.Transaction) error {
	reject := func(format string, args ...any) error {
		return &domain.TransactionExecutionError{Symbol: tx.Symbol, Action: tx.Action, Reason: fmt.Sprintf(format, args...)}
	}

	if tx.Quantity <= 0 || math.IsNaN(tx.Quantity) || math.IsInf(tx.Quantity, 0) {
		return reject("quantity must be positive, got %f", tx.Quantity)
	}
	if tx.Price <= 0 || math.IsNaN(tx.Price) {
		return reject("price must be positive, got %f", tx.Price)
	}

	amount := decimal.NewFromFloat(tx.TotalCost)
	switch tx.Action {
	case domain.ActionBuy:
		if _, held := h.open[tx.Symbol]; !held && len(h.open) >= h.Config.MaxPositions {
			return reject("max positions (%d) reached", h.Config.MaxPositions)
		}
		newCash := h.cash.Sub(amount)
		if newCash.IsNegative() {
			return reject("insufficient cash: need %s, have %s", amount.StringFixed(2), h.cash.StringFixed(2))
		}
		h.applyBuy(tx)
		h.cash = newCash

	case domain.ActionSell:
		hld, ok := h.open[tx.Symbol]
		if !ok {
			return reject("no open position")
		}
		if tx.Quantity > hld.position.Quantity+quantityEpsilon {
			return reject("sell quantity %f exceeds held %f", tx.Quantity, hld.position.Quantity)
		}
		if tx.TotalCost < 0 {
			return reject("negative proceeds %f", tx.TotalCost)
		}
		h.cash = h.cash.Add(amount)
		h.applySell(tx, hld)

	default:
		return reject("unsupported action")
	}

	h.history.Append(tx)
	if tx.Timestamp.After(h.asOf) {
		h.asOf = tx.Timestamp
	}
	return nil
}

// applyBuy folds the fill into the position. EntryPrice is the average cost
// per share including slippage and commission.
func (h *positionManagerHandler) applyBuy(tx domain.Transaction) {
	hld, ok := h.open[tx.Symbol]
	if !ok {
		h.open[tx.Symbol] = &holding{
			position: domain.Position{
				Symbol:       tx.Symbol,
				EntryDate:    tx.Timestamp,
				EntryPrice:   tx.TotalCost / tx.Quantity,
				Quantity:     tx.Quantity,
				CurrentPrice: tx.MarketPrice,
				Status:       domain.PositionOpen,
				LowestPrice:  tx.MarketPrice,
			},
		}
		return
	}

	p := &hld.position
	cost := p.Quantity*p.EntryPrice + tx.TotalCost
	p.Quantity += tx.Quantity
	p.EntryPrice = cost / p.Quantity
	p.CurrentPrice = tx.MarketPrice
	p.LowestPrice = math.Min(p.LowestPrice, tx.MarketPrice)
}

func (h *positionManagerHandler) applySell(tx domain.Transaction, hld *holding) {
	p := &hld.position
	pnl := tx.TotalCost - tx.Quantity*p.EntryPrice

	p.RealizedPnL += pnl
	p.Quantity -= tx.Quantity
	p.CurrentPrice = tx.MarketPrice
	p.LowestPrice = math.Min(p.LowestPrice, tx.MarketPrice)
	hld.sold += tx.Quantity
	h.realizedPnL = h.realizedPnL.Add(decimal.NewFromFloat(pnl))

	if p.Quantity > quantityEpsilon {
		return
	}

	exitDate := tx.Timestamp
	p.Quantity = 0
	p.Status = domain.PositionClosed
	p.ExitDate = &exitDate
	p.ExitPrice = tx.Price
	p.ExitReason = tx.Reason
	if p.ExitReason == "" {
		p.ExitReason = ExitReasonSignal
	}

	h.closed.Append(*p)
	h.outcomes.Append(newOutcome(*p, hld.sold))
	h.outcomeCount++
	delete(h.open, tx.Symbol)
}

func newOutcome(p domain.Position, quantity float64) domain.TradingOutcome {
	exitDate := p.EntryDate
	if p.ExitDate != nil {
		exitDate = *p.ExitDate
	}
	invested := quantity * p.EntryPrice
	returnPct := 0.0
	if invested > 0 {
		returnPct = p.RealizedPnL / invested
	}
	drawdown := 0.0
	if p.EntryPrice > 0 && p.LowestPrice > 0 && p.LowestPrice < p.EntryPrice {
		drawdown = (p.EntryPrice - p.LowestPrice) / p.EntryPrice
	}
	return domain.TradingOutcome{
		Symbol:      p.Symbol,
		EntryDate:   p.EntryDate,
		ExitDate:    exitDate,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   p.ExitPrice,
		Quantity:    quantity,
		PnL:         p.RealizedPnL,
		HoldingDays: util.DaysBetween(p.EntryDate, exitDate),
		ReturnPct:   returnPct,
		MaxDrawdown: drawdown,
		Success:     p.RealizedPnL > 0,
		ExitReason:  p.ExitReason,
	}
}

func (h *positionManagerHandler) UpdatePositionValue(symbol string, price float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.markLocked(symbol, price)
}

func (h *positionManagerHandler) markLocked(symbol string, price float64) {
	hld, ok := h.open[symbol]
	if !ok || price <= 0 || math.IsNaN(price) {
		return
	}
	hld.position.CurrentPrice = price
	if hld.position.LowestPrice == 0 || price < hld.position.LowestPrice {
		hld.position.LowestPrice = price
	}
}

// MarkToMarket updates every open position with a price in prices and moves
// the portfolio's as-of date to date.
func (h *positionManagerHandler) MarkToMarket(date time.Time, prices map[string]float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for symbol, price := range prices {
		h.markLocked(symbol, price)
	}
	if date.After(h.asOf) {
		h.asOf = date
	}
}

// CheckExitConditions closes every open position whose current price has
// crossed its stop-loss or take-profit level, and returns the closed positions.
func (h *positionManagerHandler) CheckExitConditions(date time.Time) []domain.Position {
	h.mu.Lock()
	defer h.mu.Unlock()

	symbols := make([]string, 0, len(h.open))
	for symbol := range h.open {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	exited := []domain.Position{}
	for _, symbol := range symbols {
		p := h.open[symbol].position
		reason := ""
		switch {
		case h.Config.StopLoss > 0 && p.CurrentPrice <= p.EntryPrice*(1-h.Config.StopLoss):
			reason = ExitReasonStopLoss
		case h.Config.TakeProfit > 0 && p.CurrentPrice >= p.EntryPrice*(1+h.Config.TakeProfit):
			reason = ExitReasonTakeProfit
		}
		if reason == "" {
			continue
		}

		tx := h.sellTransaction(date, symbol, p.Quantity, p.CurrentPrice, reason)
		if err := h.executeLocked(tx); err != nil {
			h.lastErr = err
			h.Log.Errorw("failed to exit position", "symbol", symbol, "reason", reason, "error", err)
			continue
		}
		h.Log.Infow("exited position", "symbol", symbol, "reason", reason, "price", p.CurrentPrice, "entry", p.EntryPrice)
		exited = append(exited, h.closed.GetLast(1)...)
	}
	return exited
}

func (h *positionManagerHandler) totalValueLocked() float64 {
	total := h.cash.InexactFloat64()
	for _, hld := range h.open {
		total += hld.position.MarketValue()
	}
	return total
}

func (h *positionManagerHandler) GetPortfolioState() domain.PortfolioState {
	h.mu.Lock()
	defer h.mu.Unlock()

	positions := make(map[string]domain.Position, len(h.open))
	positionsValue := 0.0
	unrealized := 0.0
	for symbol, hld := range h.open {
		positions[symbol] = *hld.position.DeepCopy()
		positionsValue += hld.position.MarketValue()
		unrealized += hld.position.UnrealizedPnL()
	}

	cash := h.cash.InexactFloat64()
	total := cash + positionsValue
	exposure := 0.0
	if total > 0 {
		exposure = positionsValue / total
	}

	return domain.PortfolioState{
		Date:          h.asOf,
		Cash:          cash,
		Positions:     positions,
		TotalValue:    total,
		UnrealizedPnL: unrealized,
		RealizedPnL:   h.realizedPnL.InexactFloat64(),
		Exposure:      exposure,
		PositionCount: len(positions),
	}
}

// Transactions, ClosedPositions and Outcomes return the retained history,
// oldest first. Each keeps at most TransactionHistorySize entries.
func (h *positionManagerHandler) Transactions() []domain.Transaction {
	return h.history.GetAll()
}

func (h *positionManagerHandler) ClosedPositions() []domain.Position {
	return h.closed.GetAll()
}

func (h *positionManagerHandler) Outcomes() []domain.TradingOutcome {
	return h.outcomes.GetAll()
}

func (h *positionManagerHandler) OutcomesSince(seen int) ([]domain.TradingOutcome, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	missing := h.outcomeCount - seen
	if missing <= 0 {
		return []domain.TradingOutcome{}, h.outcomeCount
	}
	return h.outcomes.GetLast(missing), h.outcomeCount
}
