package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"agentbacktest/internal/domain"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// RunRecord is the journaled summary of one backtest run.
type RunRecord struct {
	RunID          string             `json:"runId"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
	State          domain.EngineState `json:"state"`
	Symbols        []string           `json:"symbols"`
	StartDate      time.Time          `json:"startDate"`
	EndDate        time.Time          `json:"endDate"`
	InitialCapital float64            `json:"initialCapital"`
	FinalValue     float64            `json:"finalValue"`
	TotalReturn    float64            `json:"totalReturn"`
	SharpeRatio    float64            `json:"sharpeRatio"`
	MaxDrawdown    float64            `json:"maxDrawdown"`
	Trades         int                `json:"trades"`
	Error          string             `json:"error,omitempty"`
}

type ResultJournal interface {
	RecordRun(ctx context.Context, run RunRecord) error
	RecordTransaction(ctx context.Context, runID string, tx domain.Transaction) error
	RecordEquity(ctx context.Context, runID string, snapshot domain.PortfolioSnapshot) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	ListTransactions(ctx context.Context, runID string) ([]domain.Transaction, error)
	ListEquity(ctx context.Context, runID string) ([]domain.PortfolioSnapshot, error)
	Close() error
}

var ErrRunNotFound = errors.New("run not found")

const journalSchema = `
CREATE TABLE IF NOT EXISTS backtest_run (
	run_id TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	state TEXT NOT NULL,
	symbols TEXT NOT NULL,
	start_date TIMESTAMP NOT NULL,
	end_date TIMESTAMP NOT NULL,
	initial_capital DOUBLE PRECISION NOT NULL,
	final_value DOUBLE PRECISION NOT NULL,
	total_return DOUBLE PRECISION NOT NULL,
	sharpe_ratio DOUBLE PRECISION NOT NULL,
	max_drawdown DOUBLE PRECISION NOT NULL,
	trades INTEGER NOT NULL,
	error TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_transaction (
	transaction_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	ts TIMESTAMP NOT NULL,
	symbol TEXT NOT NULL,
	action TEXT NOT NULL,
	quantity DOUBLE PRECISION NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	market_price DOUBLE PRECISION NOT NULL,
	commission DOUBLE PRECISION NOT NULL,
	slippage DOUBLE PRECISION NOT NULL,
	total_cost DOUBLE PRECISION NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_equity (
	run_id TEXT NOT NULL,
	date TIMESTAMP NOT NULL,
	cash DOUBLE PRECISION NOT NULL,
	positions_value DOUBLE PRECISION NOT NULL,
	total_value DOUBLE PRECISION NOT NULL,
	position_count INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_backtest_transaction_run ON backtest_transaction(run_id);
CREATE INDEX IF NOT EXISTS idx_backtest_equity_run ON backtest_equity(run_id);
`

type sqlJournal struct {
	db     *sql.DB
	driver string
}

// NewResultJournal opens a journal on sqlite3 or postgres. An empty driver
// returns a journal that drops everything.
func NewResultJournal(cfg domain.JournalConfig) (ResultJournal, error) {
	switch cfg.Driver {
	case "":
		return NoopJournal{}, nil
	case "sqlite3":
		if dir := filepath.Dir(cfg.DSN); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create journal dir: %w", err)
			}
		}
	case "postgres":
	default:
		return nil, fmt.Errorf("unsupported journal driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	j, err := newSqlJournal(db, cfg.Driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func newSqlJournal(db *sql.DB, driver string) (*sqlJournal, error) {
	for _, stmt := range strings.Split(journalSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create journal schema: %w", err)
		}
	}
	return &sqlJournal{db: db, driver: driver}, nil
}

// rebind rewrites ? placeholders as $n for postgres.
func (j *sqlJournal) rebind(query string) string {
	if j.driver != "postgres" {
		return query
	}
	sb := strings.Builder{}
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (j *sqlJournal) RecordRun(ctx context.Context, run RunRecord) error {
	_, err := j.db.ExecContext(ctx, j.rebind(`
		INSERT INTO backtest_run
		(run_id, created_at, updated_at, state, symbols, start_date, end_date, initial_capital,
		 final_value, total_return, sharpe_ratio, max_drawdown, trades, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			updated_at = excluded.updated_at,
			state = excluded.state,
			final_value = excluded.final_value,
			total_return = excluded.total_return,
			sharpe_ratio = excluded.sharpe_ratio,
			max_drawdown = excluded.max_drawdown,
			trades = excluded.trades,
			error = excluded.error`),
		run.RunID, run.CreatedAt.UTC(), run.UpdatedAt.UTC(), string(run.State), strings.Join(run.Symbols, ","),
		run.StartDate.UTC(), run.EndDate.UTC(), run.InitialCapital, run.FinalValue, run.TotalReturn,
		run.SharpeRatio, run.MaxDrawdown, run.Trades, run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}
	return nil
}

func (j *sqlJournal) RecordTransaction(ctx context.Context, runID string, tx domain.Transaction) error {
	_, err := j.db.ExecContext(ctx, j.rebind(`
		INSERT INTO backtest_transaction
		(transaction_id, run_id, ts, symbol, action, quantity, price, market_price, commission, slippage, total_cost, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		tx.ID.String(), runID, tx.Timestamp.UTC(), tx.Symbol, string(tx.Action), tx.Quantity, tx.Price,
		tx.MarketPrice, tx.Commission, tx.Slippage, tx.TotalCost, tx.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to record transaction %s: %w", tx.ID, err)
	}
	return nil
}

func (j *sqlJournal) RecordEquity(ctx context.Context, runID string, s domain.PortfolioSnapshot) error {
	_, err := j.db.ExecContext(ctx, j.rebind(`
		INSERT INTO backtest_equity
		(run_id, date, cash, positions_value, total_value, position_count)
		VALUES (?, ?, ?, ?, ?, ?)`),
		runID, s.Date.UTC(), s.Cash, s.PositionsValue, s.TotalValue, s.PositionCount,
	)
	if err != nil {
		return fmt.Errorf("failed to record equity for %s: %w", runID, err)
	}
	return nil
}

func (j *sqlJournal) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	run := RunRecord{}
	var (
		state   string
		symbols string
	)
	err := j.db.QueryRowContext(ctx, j.rebind(`
		SELECT run_id, created_at, updated_at, state, symbols, start_date, end_date, initial_capital,
		       final_value, total_return, sharpe_ratio, max_drawdown, trades, error
		FROM backtest_run WHERE run_id = ?`), runID,
	).Scan(
		&run.RunID, &run.CreatedAt, &run.UpdatedAt, &state, &symbols, &run.StartDate, &run.EndDate,
		&run.InitialCapital, &run.FinalValue, &run.TotalReturn, &run.SharpeRatio, &run.MaxDrawdown,
		&run.Trades, &run.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	run.State = domain.EngineState(state)
	if symbols != "" {
		run.Symbols = strings.Split(symbols, ",")
	}
	return &run, nil
}

func (j *sqlJournal) ListTransactions(ctx context.Context, runID string) ([]domain.Transaction, error) {
	rows, err := j.db.QueryContext(ctx, j.rebind(`
		SELECT transaction_id, ts, symbol, action, quantity, price, market_price, commission, slippage, total_cost, reason
		FROM backtest_transaction WHERE run_id = ? ORDER BY ts, transaction_id`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for %s: %w", runID, err)
	}
	defer rows.Close()

	out := []domain.Transaction{}
	for rows.Next() {
		var (
			id     string
			action string
			tx     domain.Transaction
		)
		if err := rows.Scan(&id, &tx.Timestamp, &tx.Symbol, &action, &tx.Quantity, &tx.Price,
			&tx.MarketPrice, &tx.Commission, &tx.Slippage, &tx.TotalCost, &tx.Reason); err != nil {
			return nil, err
		}
		tx.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("bad transaction id %q: %w", id, err)
		}
		tx.Action = domain.Action(action)
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (j *sqlJournal) ListEquity(ctx context.Context, runID string) ([]domain.PortfolioSnapshot, error) {
	rows, err := j.db.QueryContext(ctx, j.rebind(`
		SELECT date, cash, positions_value, total_value, position_count
		FROM backtest_equity WHERE run_id = ? ORDER BY date`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list equity for %s: %w", runID, err)
	}
	defer rows.Close()

	out := []domain.PortfolioSnapshot{}
	for rows.Next() {
		s := domain.PortfolioSnapshot{}
		if err := rows.Scan(&s.Date, &s.Cash, &s.PositionsValue, &s.TotalValue, &s.PositionCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (j *sqlJournal) Close() error {
	return j.db.Close()
}

type NoopJournal struct{}

func (NoopJournal) RecordRun(ctx context.Context, run RunRecord) error { return nil }
func (NoopJournal) RecordTransaction(ctx context.Context, runID string, tx domain.Transaction) error {
	return nil
}
func (NoopJournal) RecordEquity(ctx context.Context, runID string, s domain.PortfolioSnapshot) error {
	return nil
}
func (NoopJournal) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	return nil, ErrRunNotFound
}
func (NoopJournal) ListTransactions(ctx context.Context, runID string) ([]domain.Transaction, error) {
	return []domain.Transaction{}, nil
}
func (NoopJournal) ListEquity(ctx context.Context, runID string) ([]domain.PortfolioSnapshot, error) {
	return []domain.PortfolioSnapshot{}, nil
}
func (NoopJournal) Close() error { return nil }
