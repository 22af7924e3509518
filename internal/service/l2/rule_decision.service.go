package l2_service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"agentbacktest/internal/domain"

	"github.com/maja42/goval"
)

// RuleDecisionMaker evaluates boolean expressions against the day's bar and
// the current position. SellWhen is only consulted for held symbols and
// BuyWhen only for symbols not held.
type RuleDecisionMaker struct {
	BuyWhen        string
	SellWhen       string
	ConfidenceExpr string
}

func NewRuleDecisionMaker(cfg domain.DecisionMakerConfig) (*RuleDecisionMaker, error) {
	m := &RuleDecisionMaker{
		BuyWhen:        strings.TrimSpace(cfg.BuyWhen),
		SellWhen:       strings.TrimSpace(cfg.SellWhen),
		ConfidenceExpr: strings.TrimSpace(cfg.ConfidenceExpr),
	}
	if m.BuyWhen == "" && m.SellWhen == "" {
		return nil, fmt.Errorf("rule decision maker needs buy_when or sell_when")
	}

	// dry-run against a neutral bar so typos fail at startup
	sample := domain.MarketData{Open: 1, High: 1, Low: 1, Close: 1}
	vars := ruleVariables(sample, domain.PortfolioState{}, "")
	functions := ruleFunctions(nil)
	for _, expr := range []string{m.BuyWhen, m.SellWhen} {
		if expr == "" {
			continue
		}
		if _, err := evaluateBool(expr, vars, functions); err != nil {
			return nil, fmt.Errorf("invalid rule %q: %w", expr, err)
		}
	}
	if m.ConfidenceExpr != "" {
		if _, err := evaluateFloat(m.ConfidenceExpr, vars, functions); err != nil {
			return nil, fmt.Errorf("invalid confidence expression %q: %w", m.ConfidenceExpr, err)
		}
	}
	return m, nil
}

func (m *RuleDecisionMaker) Name() string {
	return "rule"
}

func (m *RuleDecisionMaker) MakeDecision(
	ctx context.Context,
	date time.Time,
	symbol string,
	data domain.MarketData,
	portfolio domain.PortfolioState,
) (domain.TradingDecision, error) {
	vars := ruleVariables(data, portfolio, symbol)
	indicators := data.Indicators
	if indicators == nil {
		indicators = map[string]float64{}
	}
	functions := ruleFunctions(indicators)
	_, held := portfolio.Position(symbol)

	out := domain.HoldDecision(symbol, date, "no rule matched")
	out.Source = m.Name()

	var rule string
	switch {
	case held && m.SellWhen != "":
		ok, err := evaluateBool(m.SellWhen, vars, functions)
		if err != nil {
			return out, fmt.Errorf("failed to evaluate sell rule: %w", err)
		}
		if ok {
			out.Action, rule = domain.ActionSell, m.SellWhen
		}
	case !held && m.BuyWhen != "":
		ok, err := evaluateBool(m.BuyWhen, vars, functions)
		if err != nil {
			return out, fmt.Errorf("failed to evaluate buy rule: %w", err)
		}
		if ok {
			out.Action, rule = domain.ActionBuy, m.BuyWhen
		}
	}
	if rule == "" {
		return out, nil
	}

	out.Confidence = 1
	if m.ConfidenceExpr != "" {
		c, err := evaluateFloat(m.ConfidenceExpr, vars, functions)
		if err != nil {
			return out, fmt.Errorf("failed to evaluate confidence: %w", err)
		}
		out.Confidence = c
	}
	out.Rationale = fmt.Sprintf("rule matched: %s", rule)
	return out, nil
}

// ruleVariables exposes the bar, the derived fields and the position to
// expressions. Indicators are read with indicator("name").
func ruleVariables(data domain.MarketData, portfolio domain.PortfolioState, symbol string) map[string]interface{} {
	sentiment := 0.0
	if data.Sentiment != nil {
		sentiment = *data.Sentiment
	}
	vars := map[string]interface{}{
		"open":          data.Open,
		"high":          data.High,
		"low":           data.Low,
		"close":         data.Close,
		"adj_close":     data.AdjClose,
		"volume":        float64(data.Volume),
		"sentiment":     sentiment,
		"has_sentiment": data.Sentiment != nil,
		"news_count":    len(data.News),
		"cash":          portfolio.Cash,
		"total_value":   portfolio.TotalValue,
		"exposure":      portfolio.Exposure,
		"positions":     portfolio.PositionCount,
		"position_qty":  0.0,
		"entry_price":   0.0,
		"position_pnl":  0.0,
	}
	if pos, ok := portfolio.Position(symbol); ok {
		vars["position_qty"] = pos.Quantity
		vars["entry_price"] = pos.EntryPrice
		if pos.EntryPrice > 0 {
			vars["position_pnl"] = data.Close/pos.EntryPrice - 1
		}
	}
	return vars
}

// ruleFunctions binds indicator lookups to one bar. A nil map accepts any
// name and returns 0, which is what the startup dry-run needs.
func ruleFunctions(indicators map[string]float64) map[string]goval.ExpressionFunction {
	name := func(args []interface{}) (string, error) {
		if len(args) == 0 {
			return "", fmt.Errorf("indicator name is required")
		}
		n, ok := args[0].(string)
		if !ok {
			return "", fmt.Errorf("indicator name must be a string, got %T", args[0])
		}
		return n, nil
	}
	return map[string]goval.ExpressionFunction{
		// indicator("rsi_14") or indicator("rsi_14", fallback)
		"indicator": func(args ...interface{}) (interface{}, error) {
			n, err := name(args)
			if err != nil {
				return nil, err
			}
			if len(args) > 2 {
				return nil, fmt.Errorf("indicator takes at most 2 arguments, got %d", len(args))
			}
			if indicators == nil {
				return 0.0, nil
			}
			if v, ok := indicators[n]; ok {
				return v, nil
			}
			if len(args) == 2 {
				return toFloat(args[1])
			}
			return nil, fmt.Errorf("indicator %q is missing", n)
		},
		"has_indicator": func(args ...interface{}) (interface{}, error) {
			n, err := name(args)
			if err != nil {
				return nil, err
			}
			_, ok := indicators[n]
			return indicators == nil || ok, nil
		},
		"abs": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("abs takes 1 argument, got %d", len(args))
			}
			v, err := toFloat(args[0])
			if err != nil {
				return nil, err
			}
			return math.Abs(v), nil
		},
		"min": func(args ...interface{}) (interface{}, error) {
			return reduceFloats("min", args, math.Min)
		},
		"max": func(args ...interface{}) (interface{}, error) {
			return reduceFloats("max", args, math.Max)
		},
	}
}

func reduceFloats(name string, args []interface{}, fn func(a, b float64) float64) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%s needs at least one argument", name)
	}
	out, err := toFloat(args[0])
	if err != nil {
		return nil, err
	}
	for _, a := range args[1:] {
		v, err := toFloat(a)
		if err != nil {
			return nil, err
		}
		out = fn(out, v)
	}
	return out, nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

func evaluateBool(expr string, vars map[string]interface{}, functions map[string]goval.ExpressionFunction) (bool, error) {
	result, err := goval.NewEvaluator().Evaluate(expr, vars, functions)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression returned %T, not bool", result)
	}
	return b, nil
}

func evaluateFloat(expr string, vars map[string]interface{}, functions map[string]goval.ExpressionFunction) (float64, error) {
	result, err := goval.NewEvaluator().Evaluate(expr, vars, functions)
	if err != nil {
		return 0, err
	}
	f, err := toFloat(result)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("expression is not finite")
	}
	return f, nil
}
