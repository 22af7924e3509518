package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"agentbacktest/internal/domain"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestExportResult(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	txID := uuid.New()
	result := domain.BacktestResult{
		RunID: "01HRUN",
		State: domain.EngineCompleted,
		Transactions: []domain.Transaction{
			{
				ID:        txID,
				Timestamp: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
				Symbol:    "AAPL",
				Action:    domain.ActionBuy,
				Quantity:  10,
				Price:     100.1,
				TotalCost: 1002,
				Decision:  &domain.TradingDecision{Symbol: "AAPL", Action: domain.ActionBuy, Confidence: 0.8},
			},
		},
		EquityCurve: []domain.PortfolioSnapshot{
			{Date: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), TotalValue: 100000},
		},
	}
	require.NoError(t, ExportResult(dir, result))

	f, err := os.Open(filepath.Join(dir, "transactions.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows := []*transactionRow{}
	require.NoError(t, gocsv.UnmarshalFile(f, &rows))
	require.Len(t, rows, 1)
	require.Equal(t, txID.String(), rows[0].ID)
	require.Equal(t, "2024-03-04T00:00:00Z", rows[0].Timestamp)
	require.Equal(t, "BUY", rows[0].Action)
	require.Equal(t, 0.8, rows[0].Confidence)

	bytes, err := os.ReadFile(filepath.Join(dir, "result.json"))
	require.NoError(t, err)
	decoded := domain.BacktestResult{}
	require.NoError(t, json.Unmarshal(bytes, &decoded))
	require.Equal(t, "01HRUN", decoded.RunID)
	require.Equal(t, domain.EngineCompleted, decoded.State)
	require.Len(t, decoded.EquityCurve, 1)
}
