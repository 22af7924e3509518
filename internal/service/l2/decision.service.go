package l2_service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentbacktest/internal/domain"
	"agentbacktest/internal/util"

	"go.uber.org/zap"
)

//go:generate mockgen -source=decision.service.go -destination=mocks/mock_decision.service.go

// DecisionMaker turns one day's snapshot for one symbol into a trading
// decision. It must only use what it is given.
type DecisionMaker interface {
	Name() string
	MakeDecision(
		ctx context.Context,
		date time.Time,
		symbol string,
		data domain.MarketData,
		portfolio domain.PortfolioState,
	) (domain.TradingDecision, error)
}

// DecisionRunner bounds a DecisionMaker with an overall timeout and retries.
// Whatever happens, callers get a usable decision.
type DecisionRunner struct {
	Maker   DecisionMaker
	Timeout time.Duration
	Retry   util.RetryPolicy
	Log     *zap.SugaredLogger
}

func NewDecisionRunner(maker DecisionMaker, timeout time.Duration, retry util.RetryPolicy, log *zap.SugaredLogger) DecisionRunner {
	// the timeout covers every attempt together
	retry.Timeout = 0
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return DecisionRunner{
		Maker:   maker,
		Timeout: timeout,
		Retry:   retry,
		Log:     log,
	}
}

// Decide always returns a normalized decision. On failure it is a HOLD with
// zero confidence and the error is a DecisionTimeoutError or DecisionError.
func (r DecisionRunner) Decide(
	ctx context.Context,
	date time.Time,
	symbol string,
	data domain.MarketData,
	portfolio domain.PortfolioState,
) (domain.TradingDecision, error) {
	callCtx := ctx
	cancel := func() {}
	if r.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, r.Timeout)
	}
	defer cancel()

	var decision domain.TradingDecision
	err := r.Retry.Do(callCtx, func(ctx context.Context) error {
		d, err := r.call(ctx, date, symbol, data, portfolio)
		if err != nil {
			return err
		}
		decision = d
		return nil
	})

	if err != nil {
		var out error
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			out = &domain.DecisionTimeoutError{Symbol: symbol, Date: date, Timeout: r.Timeout}
		} else {
			out = &domain.DecisionError{Symbol: symbol, Date: date, Err: err}
		}
		r.Log.Warnw("decision failed, holding",
			"symbol", symbol,
			"date", date.Format(time.DateOnly),
			"maker", r.Maker.Name(),
			"error", out.Error(),
		)
		return domain.HoldDecision(symbol, date, out.Error()), out
	}

	decision.Symbol = symbol
	decision.Date = date
	if decision.Source == "" {
		decision.Source = r.Maker.Name()
	}
	return decision.Normalized(), nil
}

type decisionResult struct {
	decision domain.TradingDecision
	err      error
}

// call returns as soon as ctx is done even if the maker ignores ctx.
func (r DecisionRunner) call(
	ctx context.Context,
	date time.Time,
	symbol string,
	data domain.MarketData,
	portfolio domain.PortfolioState,
) (domain.TradingDecision, error) {
	resultCh := make(chan decisionResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				resultCh <- decisionResult{err: fmt.Errorf("decision maker panicked: %v", p)}
			}
		}()
		d, err := r.Maker.MakeDecision(ctx, date, symbol, data, portfolio)
		resultCh <- decisionResult{decision: d, err: err}
	}()

	select {
	case <-ctx.Done():
		return domain.TradingDecision{}, ctx.Err()
	case res := <-resultCh:
		return res.decision, res.err
	}
}
