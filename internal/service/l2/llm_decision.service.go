package l2_service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"agentbacktest/internal/domain"
	"agentbacktest/internal/memory"
	"agentbacktest/internal/repository"

	"go.uber.org/zap"
)

const systemPrompt = `You are the portfolio manager of a trading desk. You receive one day of market data for one symbol, the current portfolio and notes from earlier decisions and closed trades.
You may only use the information given. Do not assume anything about prices after the given date.

Reply in exactly this format:
ACTION: BUY, SELL or HOLD
CONFIDENCE: a number between 0 and 1
SIZE: optional fraction of capital for a BUY, or of the position for a SELL
RATIONALE: one or two sentences
RISK: one sentence on the main risk`

var (
	actionPattern     = regexp.MustCompile(`(?im)^\W*ACTION\W*:\W*(BUY|SELL|HOLD)\b`)
	confidencePattern = regexp.MustCompile(`(?im)^\W*CONFIDENCE\W*:[\s*_]*([0-9]*\.?[0-9]+)\s*(%?)`)
	sizePattern       = regexp.MustCompile(`(?im)^\W*SIZE\W*:[\s*_]*([0-9]*\.?[0-9]+)\s*(%?)`)
	rationalePattern  = regexp.MustCompile(`(?im)^\W*RATIONALE\W*:[\s*_]*(.+)$`)
	riskPattern       = regexp.MustCompile(`(?im)^\W*RISK\W*:[\s*_]*(.+)$`)
)

type LLMDecisionMaker struct {
	Client   repository.ChatClient
	Memory   *memory.Store
	Lookback int
	Log      *zap.SugaredLogger
}

func NewLLMDecisionMaker(client repository.ChatClient, store *memory.Store, lookback int, log *zap.SugaredLogger) *LLMDecisionMaker {
	if lookback <= 0 {
		lookback = 5
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &LLMDecisionMaker{
		Client:   client,
		Memory:   store,
		Lookback: lookback,
		Log:      log,
	}
}

func (m *LLMDecisionMaker) Name() string {
	return "llm/" + m.Client.Name()
}

func (m *LLMDecisionMaker) MakeDecision(
	ctx context.Context,
	date time.Time,
	symbol string,
	data domain.MarketData,
	portfolio domain.PortfolioState,
) (domain.TradingDecision, error) {
	prompt := m.buildPrompt(date, symbol, data, portfolio)

	reply, err := m.Client.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return domain.TradingDecision{}, fmt.Errorf("failed to get reply from %s: %w", m.Client.Name(), err)
	}

	decision, err := ParseDecision(reply)
	if err != nil {
		m.Log.Debugw("unparseable reply", "symbol", symbol, "reply", reply)
		return domain.TradingDecision{}, err
	}
	decision.Symbol = symbol
	decision.Date = date
	decision.Source = m.Name()

	if m.Memory != nil {
		m.Memory.Add(memory.DecisionKey(symbol), memory.Entry{
			Timestamp:      date,
			Situation:      fmt.Sprintf("close %.2f, held %t", data.Close, hasPosition(portfolio, symbol)),
			Recommendation: fmt.Sprintf("%s (%.2f): %s", decision.Action, decision.Confidence, decision.Rationale),
		})
	}
	return decision, nil
}

func hasPosition(portfolio domain.PortfolioState, symbol string) bool {
	_, ok := portfolio.Position(symbol)
	return ok
}

func (m *LLMDecisionMaker) buildPrompt(date time.Time, symbol string, data domain.MarketData, portfolio domain.PortfolioState) string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "Date: %s\nSymbol: %s\n\n", date.Format(time.DateOnly), symbol)

	fmt.Fprintf(&b, "Market data:\n")
	fmt.Fprintf(&b, "open %.4f high %.4f low %.4f close %.4f volume %d\n", data.Open, data.High, data.Low, data.Close, data.Volume)
	if data.Sentiment != nil {
		fmt.Fprintf(&b, "sentiment %.3f\n", *data.Sentiment)
	}
	if len(data.Indicators) > 0 {
		names := make([]string, 0, len(data.Indicators))
		for name := range data.Indicators {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "%s %.4f\n", name, data.Indicators[name])
		}
	}
	if len(data.News) > 0 {
		fmt.Fprintf(&b, "\nNews:\n")
		for _, n := range data.News {
			fmt.Fprintf(&b, "- %s %s\n", n.PublishedAt.Format(time.DateOnly), n.Headline)
		}
	}

	fmt.Fprintf(&b, "\nPortfolio:\ncash %.2f total value %.2f exposure %.2f open positions %d\n",
		portfolio.Cash, portfolio.TotalValue, portfolio.Exposure, portfolio.PositionCount)
	if pos, ok := portfolio.Position(symbol); ok {
		fmt.Fprintf(&b, "holding %.4f shares of %s at %.4f since %s\n",
			pos.Quantity, symbol, pos.EntryPrice, pos.EntryDate.Format(time.DateOnly))
	} else {
		fmt.Fprintf(&b, "no position in %s\n", symbol)
	}

	if m.Memory != nil {
		outcomes := m.Memory.Get(memory.OutcomeKey(symbol), m.Lookback)
		if len(outcomes) > 0 {
			fmt.Fprintf(&b, "\nClosed trades:\n")
			for _, e := range outcomes {
				fmt.Fprintf(&b, "- %s %s\n", e.Timestamp.Format(time.DateOnly), e.Situation)
			}
		}
		decisions := m.Memory.Get(memory.DecisionKey(symbol), m.Lookback)
		if len(decisions) > 0 {
			fmt.Fprintf(&b, "\nEarlier decisions:\n")
			for _, e := range decisions {
				fmt.Fprintf(&b, "- %s %s\n", e.Timestamp.Format(time.DateOnly), e.Recommendation)
			}
		}
	}
	return b.String()
}

// ParseDecision reads the ACTION, CONFIDENCE, SIZE, RATIONALE and RISK
// lines of a reply. ACTION is required. Percentages are accepted for
// CONFIDENCE and SIZE.
func ParseDecision(reply string) (domain.TradingDecision, error) {
	match := actionPattern.FindStringSubmatch(reply)
	if match == nil {
		return domain.TradingDecision{}, fmt.Errorf("reply has no ACTION line")
	}
	action, err := domain.ParseAction(match[1])
	if err != nil {
		return domain.TradingDecision{}, err
	}

	out := domain.TradingDecision{
		Action:     action,
		Confidence: 0.5,
	}
	if c, ok := parseFraction(confidencePattern, reply); ok {
		out.Confidence = c
	}
	if s, ok := parseFraction(sizePattern, reply); ok && s > 0 {
		out.SizeRecommendation = &s
	}
	if m := rationalePattern.FindStringSubmatch(reply); m != nil {
		out.Rationale = strings.TrimSpace(m[1])
	}
	if m := riskPattern.FindStringSubmatch(reply); m != nil {
		out.RiskAssessment = strings.TrimSpace(m[1])
	}
	return out.Normalized(), nil
}

func parseFraction(pattern *regexp.Regexp, reply string) (float64, bool) {
	m := pattern.FindStringSubmatch(reply)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if m[2] == "%" || v > 1 {
		v /= 100
	}
	return v, true
}
