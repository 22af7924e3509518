package service

import (
	"context"
	"strings"
	"testing"

	"agentbacktest/internal/domain"
	mock_repository "agentbacktest/internal/repository/mocks"
	"agentbacktest/internal/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func sampleResult() domain.BacktestResult {
	cfg := domain.DefaultBacktestConfig()
	cfg.Symbols = []string{"AAPL", "MSFT"}
	cfg.StartDate = util.NewDate(2024, 1, 2)
	cfg.EndDate = util.NewDate(2024, 3, 28)

	txs := []domain.Transaction{}
	for i := 0; i < 30; i++ {
		txs = append(txs, domain.Transaction{
			ID:        uuid.New(),
			Timestamp: util.NewDate(2024, 1, 2).AddDate(0, 0, i),
			Symbol:    "AAPL",
			Action:    domain.ActionBuy,
			Quantity:  float64(i + 1),
			Price:     100,
			Reason:    "signal",
		})
	}
	return domain.BacktestResult{
		RunID:  "01HX",
		State:  domain.EngineCompleted,
		Config: cfg,
		Metrics: domain.PerformanceMetrics{
			TotalReturn:          0.1234,
			TotalTrades:          3,
			WinningTrades:        3,
			WinRate:              1,
			ProfitFactorInfinite: true,
		},
		Benchmark: &domain.BenchmarkComparison{
			Symbol:  "SPY",
			Metrics: domain.PerformanceMetrics{TotalReturn: 0.05},
		},
		Transactions:   txs,
		FinalPortfolio: domain.PortfolioState{TotalValue: 112340},
		ProcessedDays:  61,
	}
}

func Test_emailServiceHandler_GenerateRunReport(t *testing.T) {
	h := NewEmailService(nil)
	subject, body, err := h.GenerateRunReport(sampleResult())
	require.NoError(t, err)

	require.Equal(t, "Backtest COMPLETED: 12.34% over 61 days", subject)
	require.Contains(t, body, "AAPL, MSFT from 2024-01-02 to 2024-03-28")
	require.Contains(t, body, "112340.00")
	require.Contains(t, body, "999.00")
	require.Contains(t, body, "SPY return")
	// only the most recent trades are listed
	require.Equal(t, reportTransactions, strings.Count(body, "<td>signal</td>"))
	require.NotContains(t, body, "<td>1.00</td><td>100.00</td>")
}

func Test_emailServiceHandler_SendRunReport(t *testing.T) {
	ctrl := gomock.NewController(t)
	emailRepository := mock_repository.NewMockEmailRepository(ctrl)
	h := NewEmailService(emailRepository)

	ctx := context.Background()
	emailRepository.EXPECT().
		SendEmail(ctx, []string{"pm@example.com"}, "Backtest COMPLETED: 12.34% over 61 days", gomock.Any()).
		Return(nil)

	require.NoError(t, h.SendRunReport(ctx, []string{"pm@example.com"}, sampleResult()))
}
