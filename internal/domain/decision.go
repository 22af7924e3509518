package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

func ParseAction(s string) (Action, error) {
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, nil
	case ActionSell:
		return ActionSell, nil
	case ActionHold:
		return ActionHold, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

type TradingDecision struct {
	Symbol     string    `json:"symbol"`
	Date       time.Time `json:"date"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"`
	// SizeRecommendation is a capital fraction for BUY and a position
	// fraction for SELL
	SizeRecommendation *float64 `json:"sizeRecommendation,omitempty"`
	Rationale          string   `json:"rationale,omitempty"`
	RiskAssessment     string   `json:"riskAssessment,omitempty"`
	Source             string   `json:"source,omitempty"`
}

func HoldDecision(symbol string, date time.Time, rationale string) TradingDecision {
	return TradingDecision{
		Symbol:     symbol,
		Date:       date,
		Action:     ActionHold,
		Confidence: 0,
		Rationale:  rationale,
	}
}

func (d TradingDecision) IsActionable() bool {
	return d.Action == ActionBuy || d.Action == ActionSell
}

func (d TradingDecision) DeepCopy() *TradingDecision {
	out := d
	if d.SizeRecommendation != nil {
		s := *d.SizeRecommendation
		out.SizeRecommendation = &s
	}
	return &out
}

// Normalized clamps confidence into [0, 1] and maps unknown actions to HOLD.
func (d TradingDecision) Normalized() TradingDecision {
	out := d
	if out.Action != ActionBuy && out.Action != ActionSell {
		out.Action = ActionHold
	}
	if math.IsNaN(out.Confidence) || out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	if out.SizeRecommendation != nil {
		s := *out.SizeRecommendation
		if math.IsNaN(s) || s <= 0 {
			out.SizeRecommendation = nil
		} else {
			s = math.Min(s, 1)
			out.SizeRecommendation = &s
		}
	}
	return out
}

// TradingOutcome summarizes a closed position for reflection.
type TradingOutcome struct {
	Symbol      string    `json:"symbol"`
	EntryDate   time.Time `json:"entryDate"`
	ExitDate    time.Time `json:"exitDate"`
	EntryPrice  float64   `json:"entryPrice"`
	ExitPrice   float64   `json:"exitPrice"`
	Quantity    float64   `json:"quantity"`
	PnL         float64   `json:"pnl"`
	HoldingDays int       `json:"holdingDays"`
	ReturnPct   float64   `json:"returnPct"`
	MaxDrawdown float64   `json:"maxDrawdown"`
	Success     bool      `json:"success"`
	ExitReason  string    `json:"exitReason"`
}
