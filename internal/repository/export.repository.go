package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agentbacktest/internal/domain"

	"github.com/gocarina/gocsv"
)

type transactionRow struct {
	ID          string  `csv:"id"`
	Timestamp   string  `csv:"timestamp"`
	Symbol      string  `csv:"symbol"`
	Action      string  `csv:"action"`
	Quantity    float64 `csv:"quantity"`
	Price       float64 `csv:"price"`
	MarketPrice float64 `csv:"market_price"`
	Commission  float64 `csv:"commission"`
	Slippage    float64 `csv:"slippage"`
	TotalCost   float64 `csv:"total_cost"`
	Confidence  float64 `csv:"confidence"`
	Reason      string  `csv:"reason"`
}

// ExportResult writes transactions.csv and result.json into dir.
func ExportResult(dir string, result domain.BacktestResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create result dir: %w", err)
	}
	if err := writeTransactionsCsv(filepath.Join(dir, "transactions.csv"), result.Transactions); err != nil {
		return err
	}

	bytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "result.json"), bytes, 0o644); err != nil {
		return fmt.Errorf("failed to write result.json: %w", err)
	}
	return nil
}

func writeTransactionsCsv(path string, txs []domain.Transaction) error {
	rows := make([]*transactionRow, 0, len(txs))
	for _, tx := range txs {
		confidence := 0.0
		if tx.Decision != nil {
			confidence = tx.Decision.Confidence
		}
		rows = append(rows, &transactionRow{
			ID:          tx.ID.String(),
			Timestamp:   tx.Timestamp.Format(time.RFC3339),
			Symbol:      tx.Symbol,
			Action:      string(tx.Action),
			Quantity:    tx.Quantity,
			Price:       tx.Price,
			MarketPrice: tx.MarketPrice,
			Commission:  tx.Commission,
			Slippage:    tx.Slippage,
			TotalCost:   tx.TotalCost,
			Confidence:  confidence,
			Reason:      tx.Reason,
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
