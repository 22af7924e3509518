package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	interestrate "agentbacktest/pkg/interest_rate"
)

type InterestRateRepository interface {
	// GetRiskFreeRate returns the annualized 3-month treasury yield on date
	GetRiskFreeRate(ctx context.Context, date time.Time) (float64, error)
}

type interestRateRepositoryHandler struct {
	client interestrate.Client

	mu    sync.Mutex
	rates map[string]float64
}

func NewInterestRateRepository(baseURL string) InterestRateRepository {
	return &interestRateRepositoryHandler{
		client: interestrate.NewClient(baseURL),
		rates:  map[string]float64{},
	}
}

const (
	riskFreeTenorMonths = 3
	maxLookbackDays     = 10
)

func (h *interestRateRepositoryHandler) GetRiskFreeRate(ctx context.Context, date time.Time) (float64, error) {
	key := date.Format(time.DateOnly)
	h.mu.Lock()
	if r, ok := h.rates[key]; ok {
		h.mu.Unlock()
		return r, nil
	}
	h.mu.Unlock()

	// weekends and holidays have no curve; walk back to the last published one
	d := date
	for i := 0; i < maxLookbackDays; i++ {
		curve, err := h.client.GetYieldCurve(ctx, d)
		if errors.Is(err, interestrate.ErrNoRates) {
			d = d.AddDate(0, 0, -1)
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to get yield curve on %s: %w", d.Format(time.DateOnly), err)
		}

		rate := curve.GetRate(riskFreeTenorMonths)
		h.mu.Lock()
		h.rates[key] = rate
		h.mu.Unlock()
		return rate, nil
	}
	return 0, fmt.Errorf("no yield curve within %d days of %s", maxLookbackDays, key)
}
