package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"agentbacktest/api"
	"agentbacktest/internal/app"
	"agentbacktest/internal/config"
	"agentbacktest/internal/domain"
	"agentbacktest/internal/logger"
	"agentbacktest/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func writeBars(t *testing.T, dir string) {
	bars := []domain.MarketData{}
	for i := 0; i < 5; i++ {
		p := 100 + float64(i)
		bars = append(bars, domain.MarketData{
			Date:     time.Date(2024, 3, 4+i, 0, 0, 0, 0, time.UTC),
			Open:     p,
			High:     p,
			Low:      p,
			Close:    p,
			AdjClose: p,
			Volume:   1000,
		})
	}
	require.NoError(t, repository.WriteCsvBars(dir, "AAPL", bars))
}

func writeTestConfig(t *testing.T) string {
	dir := t.TempDir()
	csvDir := filepath.Join(dir, "csv")
	writeBars(t, csvDir)

	contents := fmt.Sprintf(`
backtest:
  symbols: [AAPL]
  start_date: 2024-03-04
  end_date: 2024-03-08
  timezone: UTC
  benchmark_symbol: ""
  result_dir: %s
  data_sources: [csv]
  decision_maker:
    kind: rule
    buy_when: close > 0.0
  retry:
    max_attempts: 1
  cache:
    kind: disabled
  journal:
    driver: sqlite3
    dsn: %s
offline:
  csv_dir: %s
`, filepath.Join(dir, "results"), filepath.Join(dir, "journal.db"), csvDir)

	path := filepath.Join(dir, "backtest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestNewBacktestEngine(t *testing.T) {
	cfg, err := config.Load(writeTestConfig(t))
	require.NoError(t, err)
	bt, err := cfg.BacktestConfig()
	require.NoError(t, err)

	engine, err := NewBacktestEngine(context.Background(), cfg, bt, logger.NewNop())
	require.NoError(t, err)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.EngineCompleted, result.State)
	require.Equal(t, 5, result.ProcessedDays)
	require.Equal(t, 0, result.SkippedSymbolDays)
	require.NotEmpty(t, result.Transactions)
	require.Len(t, result.EquityCurve, 5)

	_, err = os.Stat(filepath.Join(bt.ResultDir, result.RunID))
	require.NoError(t, err)
}

func TestNewPriceSources(t *testing.T) {
	cfg := config.DefaultConfig()

	_, err := NewPriceSources(cfg, []string{"finnhub"})
	require.ErrorContains(t, err, "FINNHUB_API_KEY")

	_, err = NewPriceSources(cfg, []string{"csv"})
	require.ErrorContains(t, err, "csv_dir")

	_, err = NewPriceSources(cfg, []string{"bloomberg"})
	require.ErrorContains(t, err, "unknown data source")

	_, err = NewPriceSources(cfg, nil)
	require.Error(t, err)

	cfg.Offline.CsvDir = t.TempDir()
	cfg.Secrets.FinnhubAPIKey = "key"
	sources, err := NewPriceSources(cfg, []string{"csv", "Finnhub", "yahoo"})
	require.NoError(t, err)
	names := []string{}
	for _, s := range sources {
		names = append(names, s.Name())
	}
	require.Equal(t, []string{"csv", "finnhub", "yahoo"}, names)
}

func TestNewDecisionMaker(t *testing.T) {
	bt := domain.DefaultBacktestConfig()
	ectx := app.NewEngineContext(bt.RandomSeed, nil)

	maker, err := NewDecisionMaker(context.Background(), bt, nil, ectx, nil)
	require.NoError(t, err)
	require.Equal(t, "random", maker.Name())

	bt.DecisionMaker = domain.DecisionMakerConfig{Kind: domain.DecisionMakerLLM, Provider: "deepseek"}
	_, err = NewDecisionMaker(context.Background(), bt, nil, ectx, nil)
	require.ErrorContains(t, err, "api key")

	bt.DecisionMaker = domain.DecisionMakerConfig{Kind: domain.DecisionMakerLLM, Provider: "claude"}
	_, err = NewDecisionMaker(context.Background(), bt, nil, ectx, nil)
	require.ErrorContains(t, err, "unknown llm provider")

	bt.DecisionMaker = domain.DecisionMakerConfig{Kind: "oracle"}
	_, err = NewDecisionMaker(context.Background(), bt, nil, ectx, nil)
	require.ErrorContains(t, err, "unknown decision maker")
}

func TestApi(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler, err := InitializeDependencies(writeTestConfig(t))
	require.NoError(t, err)
	handler.Log = logger.NewNop()
	router := handler.InitializeRouterEngine()

	// symbols and dates come from the server config
	body := bytes.NewBufferString(`{"initialCapital": 50000}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/backtest", body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	result := domain.BacktestResult{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Equal(t, domain.EngineCompleted, result.State)
	require.Equal(t, 50000.0, result.Config.InitialCapital)
	// the request does not leak into the next one
	require.Equal(t, 100000.0, handler.BaseConfig.InitialCapital)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/"+result.RunID, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	run := api.GetRunResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	require.Equal(t, domain.EngineCompleted, run.Run.State)
	require.Equal(t, []string{"AAPL"}, run.Run.Symbols)
	require.Len(t, run.EquityCurve, 5)
	require.Len(t, run.Transactions, len(result.Transactions))
}
