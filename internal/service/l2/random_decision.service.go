package l2_service

import (
	"context"
	"hash/fnv"
	"math/rand"
	"time"

	"agentbacktest/internal/domain"
)

type RandomDecisionMaker struct {
	BuyProbability  float64
	SellProbability float64
	seed            int64
}

// NewRandomDecisionMaker draws its seed from rng once. Each call then uses a
// source derived from (seed, symbol, date), so results do not depend on the
// order in which workers call it.
func NewRandomDecisionMaker(rng *rand.Rand) *RandomDecisionMaker {
	return &RandomDecisionMaker{
		BuyProbability:  0.2,
		SellProbability: 0.1,
		seed:            rng.Int63(),
	}
}

func (m *RandomDecisionMaker) Name() string {
	return "random"
}

func (m *RandomDecisionMaker) MakeDecision(
	ctx context.Context,
	date time.Time,
	symbol string,
	data domain.MarketData,
	portfolio domain.PortfolioState,
) (domain.TradingDecision, error) {
	if err := ctx.Err(); err != nil {
		return domain.TradingDecision{}, err
	}

	h := fnv.New64a()
	h.Write([]byte(symbol))
	h.Write([]byte(date.Format(time.DateOnly)))
	rng := rand.New(rand.NewSource(m.seed ^ int64(h.Sum64())))

	p := rng.Float64()
	confidence := 0.5 + 0.5*rng.Float64()
	_, held := portfolio.Position(symbol)

	out := domain.TradingDecision{
		Symbol:     symbol,
		Date:       date,
		Action:     domain.ActionHold,
		Confidence: confidence,
		Rationale:  "random draw",
		Source:     m.Name(),
	}
	switch {
	case !held && p < m.BuyProbability:
		out.Action = domain.ActionBuy
	case held && p < m.SellProbability:
		out.Action = domain.ActionSell
	}
	return out, nil
}
