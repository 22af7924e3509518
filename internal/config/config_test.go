package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"agentbacktest/internal/domain"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const sampleYaml = `
backtest:
  symbols: [AAPL, MSFT]
  start_date: 2024-01-02
  end_date: 2024-03-28
  timezone: UTC
  initial_capital: 50000
  risk_profile: aggressive
  position_limits:
    AGGRESSIVE: 0.25
  holidays: [2024-01-15]
  data_sources: [yahoo, csv]
  decision_maker:
    kind: llm
    provider: deepseek
    model: deepseek-chat
  decision_timeout: 45s
  retry:
    max_attempts: 5
    base_delay: 250ms
  cache:
    kind: sqlite
    dir: /tmp/agentbt
    ttl: 12h
offline:
  csv_dir: data/csv
server:
  port: 8080
notify:
  region: us-east-1
  from: bt@example.com
  to: [pm@example.com]
`

func writeConfig(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "backtest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("yaml over defaults", func(t *testing.T) {
		t.Setenv("DEEPSEEK_API_KEY", "sk-test")
		cfg, err := Load(writeConfig(t, sampleYaml))
		require.NoError(t, err)

		require.Equal(t, 8080, cfg.Server.Port)
		require.Equal(t, "data/csv", cfg.Offline.CsvDir)
		require.Equal(t, Notify{Region: "us-east-1", From: "bt@example.com", To: []string{"pm@example.com"}}, cfg.Notify)

		bt, err := cfg.BacktestConfig()
		require.NoError(t, err)
		require.NoError(t, bt.Validate())

		require.Equal(t, []string{"AAPL", "MSFT"}, bt.Symbols)
		require.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), bt.StartDate)
		require.Equal(t, []time.Time{time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)}, bt.Holidays)
		require.Equal(t, 50000.0, bt.InitialCapital)
		require.Equal(t, domain.RiskProfileAggressive, bt.RiskProfile)
		require.Equal(t, 0.25, bt.PositionLimit())
		// untouched limits keep their defaults
		require.Equal(t, 0.1, bt.PositionLimits[domain.RiskProfileConservative])
		require.Equal(t, 45*time.Second, bt.DecisionTimeout)
		require.Equal(t, 30*time.Second, bt.DataTimeout)
		require.Equal(t, "sk-test", bt.DecisionMaker.APIKey)

		require.Equal(t, "", cmp.Diff(domain.RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   250 * time.Millisecond,
			MaxDelay:    10 * time.Second,
			Multiplier:  2,
		}, bt.Retry))
		require.Equal(t, "", cmp.Diff(domain.CacheConfig{
			Kind: domain.CacheKindSQLite,
			Dir:  "/tmp/agentbt",
			TTL:  12 * time.Hour,
		}, bt.Cache))
	})

	t.Run("env overrides yaml", func(t *testing.T) {
		t.Setenv("AGENTBT_SYMBOLS", "NVDA, AMD ,")
		t.Setenv("AGENTBT_INITIAL_CAPITAL", "25000")
		t.Setenv("AGENTBT_CONCURRENCY", "8")
		t.Setenv("AGENTBT_DECISION_MAKER", "RANDOM")
		t.Setenv("AGENTBT_PORT", "9000")
		t.Setenv("AGENTBT_NOTIFY_TO", "a@example.com,b@example.com")

		cfg, err := Load(writeConfig(t, sampleYaml))
		require.NoError(t, err)
		require.Equal(t, 9000, cfg.Server.Port)
		require.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Notify.To)

		bt, err := cfg.BacktestConfig()
		require.NoError(t, err)
		require.Equal(t, []string{"NVDA", "AMD"}, bt.Symbols)
		require.Equal(t, 25000.0, bt.InitialCapital)
		require.Equal(t, 8, bt.Concurrency)
		require.Equal(t, domain.DecisionMakerRandom, bt.DecisionMaker.Kind)
	})

	t.Run("defaults without a file", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		bt, err := cfg.BacktestConfig()
		require.NoError(t, err)

		// symbols and dates have no defaults
		validationErr := &domain.ConfigValidationError{}
		require.ErrorAs(t, bt.Validate(), &validationErr)
		require.Equal(t, domain.DefaultBacktestConfig().InitialCapital, bt.InitialCapital)
	})

	t.Run("invalid env value", func(t *testing.T) {
		t.Setenv("AGENTBT_CONCURRENCY", "lots")
		_, err := Load("")
		require.ErrorContains(t, err, "AGENTBT_CONCURRENCY")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}

func TestFile_BacktestConfig(t *testing.T) {
	f := DefaultFile()
	f.StartDate = "01/02/2024"
	_, err := f.BacktestConfig()
	require.ErrorContains(t, err, "invalid start_date")

	f = DefaultFile()
	f.DataTimeout = "soon"
	_, err = f.BacktestConfig()
	require.ErrorContains(t, err, "invalid data_timeout")

	f = DefaultFile()
	f.Timezone = "America/New_York"
	f.StartDate = "2024-01-02"
	bt, err := f.BacktestConfig()
	require.NoError(t, err)
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	require.True(t, bt.StartDate.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, ny)))
}

func TestFile_Clone(t *testing.T) {
	base := DefaultFile()
	base.Symbols = []string{"AAPL", "MSFT"}

	c := base.Clone()
	c.Symbols[0] = "NVDA"
	c.PositionLimits[domain.RiskProfileAggressive] = 0.9

	require.Equal(t, []string{"AAPL", "MSFT"}, base.Symbols)
	require.Equal(t, domain.DefaultPositionLimits()[domain.RiskProfileAggressive], base.PositionLimits[domain.RiskProfileAggressive])
}
