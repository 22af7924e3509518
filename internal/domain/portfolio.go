package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

type Position struct {
	Symbol       string         `json:"symbol"`
	EntryDate    time.Time      `json:"entryDate"`
	EntryPrice   float64        `json:"entryPrice"`
	Quantity     float64        `json:"quantity"`
	CurrentPrice float64        `json:"currentPrice"`
	Status       PositionStatus `json:"status"`

	RealizedPnL float64    `json:"realizedPnl"`
	ExitDate    *time.Time `json:"exitDate,omitempty"`
	ExitPrice   float64    `json:"exitPrice,omitempty"`
	ExitReason  string     `json:"exitReason,omitempty"`

	// lowest mark while held
	LowestPrice float64 `json:"lowestPrice"`
}

func (p Position) MarketValue() float64 {
	if p.Status == PositionClosed {
		return 0
	}
	return p.Quantity * p.CurrentPrice
}

func (p Position) CostBasis() float64 {
	return p.Quantity * p.EntryPrice
}

func (p Position) UnrealizedPnL() float64 {
	if p.Status == PositionClosed {
		return 0
	}
	return p.MarketValue() - p.CostBasis()
}

func (p Position) DeepCopy() *Position {
	out := p
	if p.ExitDate != nil {
		d := *p.ExitDate
		out.ExitDate = &d
	}
	return &out
}

// PortfolioState is a point-in-time copy. Nothing holding one can change the
// portfolio it came from.
type PortfolioState struct {
	Date          time.Time           `json:"date"`
	Cash          float64             `json:"cash"`
	Positions     map[string]Position `json:"positions"`
	TotalValue    float64             `json:"totalValue"`
	UnrealizedPnL float64             `json:"unrealizedPnl"`
	RealizedPnL   float64             `json:"realizedPnl"`
	Exposure      float64             `json:"exposure"`
	PositionCount int                 `json:"positionCount"`
}

func (p PortfolioState) HeldSymbols() []string {
	symbols := []string{}
	for symbol := range p.Positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func (p PortfolioState) Position(symbol string) (Position, bool) {
	pos, ok := p.Positions[symbol]
	return pos, ok
}

func (p PortfolioState) PositionsValue() float64 {
	total := 0.0
	for _, pos := range p.Positions {
		total += pos.MarketValue()
	}
	return total
}

// PortfolioSnapshot is one point of the equity curve.
type PortfolioSnapshot struct {
	Date           time.Time `json:"date"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positionsValue"`
	TotalValue     float64   `json:"totalValue"`
	PositionCount  int       `json:"positionCount"`
}

func (p PortfolioState) Snapshot() PortfolioSnapshot {
	return PortfolioSnapshot{
		Date:           p.Date,
		Cash:           p.Cash,
		PositionsValue: p.PositionsValue(),
		TotalValue:     p.TotalValue,
		PositionCount:  p.PositionCount,
	}
}

type Transaction struct {
	ID          uuid.UUID `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Symbol      string    `json:"symbol"`
	Action      Action    `json:"action"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	MarketPrice float64   `json:"marketPrice"`
	Commission  float64   `json:"commission"`
	Slippage    float64   `json:"slippage"`
	// TotalCost is the cash moved by the trade: debit for a BUY including
	// commission, net proceeds for a SELL after commission.
	TotalCost float64 `json:"totalCost"`
	Reason    string  `json:"reason,omitempty"`

	Decision *TradingDecision `json:"decision,omitempty"`
}

func (t Transaction) DeepCopy() Transaction {
	out := t
	if t.Decision != nil {
		out.Decision = t.Decision.DeepCopy()
	}
	return out
}

func (t Transaction) Notional() float64 {
	return t.Quantity * t.Price
}
