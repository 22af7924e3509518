package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"agentbacktest/internal/domain"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSqlJournal(t *testing.T) {
	ctx := context.Background()
	j, err := NewResultJournal(domain.JournalConfig{
		Driver: "sqlite3",
		DSN:    filepath.Join(t.TempDir(), "journal", "runs.db"),
	})
	require.NoError(t, err)
	defer j.Close()

	created := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	run := RunRecord{
		RunID:          "01HRUN",
		CreatedAt:      created,
		UpdatedAt:      created,
		State:          domain.EngineRunning,
		Symbols:        []string{"AAPL", "MSFT"},
		StartDate:      time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		InitialCapital: 100000,
	}
	require.NoError(t, j.RecordRun(ctx, run))

	run.UpdatedAt = created.Add(time.Minute)
	run.State = domain.EngineCompleted
	run.FinalValue = 101500
	run.TotalReturn = 0.015
	run.SharpeRatio = 1.2
	run.MaxDrawdown = 0.01
	run.Trades = 2
	require.NoError(t, j.RecordRun(ctx, run))

	got, err := j.GetRun(ctx, "01HRUN")
	require.NoError(t, err)
	require.Equal(t, "", cmp.Diff(run, *got))

	_, err = j.GetRun(ctx, "missing")
	require.ErrorIs(t, err, ErrRunNotFound)

	txs := []domain.Transaction{
		{
			ID:        uuid.New(),
			Timestamp: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
			Symbol:    "AAPL",
			Action:    domain.ActionBuy,
			Quantity:  10,
			Price:     100.1,
			TotalCost: 1002,
			Reason:    "rule",
		},
		{
			ID:        uuid.New(),
			Timestamp: time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
			Symbol:    "AAPL",
			Action:    domain.ActionSell,
			Quantity:  10,
			Price:     103,
			TotalCost: 1029,
		},
	}
	// out of order on purpose
	require.NoError(t, j.RecordTransaction(ctx, "01HRUN", txs[1]))
	require.NoError(t, j.RecordTransaction(ctx, "01HRUN", txs[0]))
	require.NoError(t, j.RecordTransaction(ctx, "OTHER", domain.Transaction{ID: uuid.New(), Timestamp: created}))

	gotTxs, err := j.ListTransactions(ctx, "01HRUN")
	require.NoError(t, err)
	require.Equal(t, "", cmp.Diff(txs, gotTxs))

	equity := []domain.PortfolioSnapshot{
		{Date: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), Cash: 98998, PositionsValue: 1001, TotalValue: 99999, PositionCount: 1},
		{Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), Cash: 98998, PositionsValue: 1020, TotalValue: 100018, PositionCount: 1},
	}
	for _, s := range equity {
		require.NoError(t, j.RecordEquity(ctx, "01HRUN", s))
	}
	gotEquity, err := j.ListEquity(ctx, "01HRUN")
	require.NoError(t, err)
	require.Equal(t, "", cmp.Diff(equity, gotEquity))

	empty, err := j.ListEquity(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestNewResultJournal(t *testing.T) {
	j, err := NewResultJournal(domain.JournalConfig{})
	require.NoError(t, err)
	require.IsType(t, NoopJournal{}, j)

	_, err = j.GetRun(context.Background(), "x")
	require.ErrorIs(t, err, ErrRunNotFound)

	_, err = NewResultJournal(domain.JournalConfig{Driver: "mysql"})
	require.ErrorContains(t, err, "unsupported journal driver")
}

func TestSqlJournal_Rebind(t *testing.T) {
	pg := &sqlJournal{driver: "postgres"}
	require.Equal(t, "SELECT a FROM b WHERE c = $1 AND d = $2", pg.rebind("SELECT a FROM b WHERE c = ? AND d = ?"))

	lite := &sqlJournal{driver: "sqlite3"}
	require.Equal(t, "WHERE c = ?", lite.rebind("WHERE c = ?"))
}
