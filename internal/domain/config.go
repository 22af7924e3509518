package domain

import (
	"fmt"
	"strings"
	"time"
)

type RiskProfile string

const (
	RiskProfileAggressive   RiskProfile = "AGGRESSIVE"
	RiskProfileNeutral      RiskProfile = "NEUTRAL"
	RiskProfileConservative RiskProfile = "CONSERVATIVE"
)

func (r RiskProfile) Valid() bool {
	switch r {
	case RiskProfileAggressive, RiskProfileNeutral, RiskProfileConservative:
		return true
	}
	return false
}

type CacheKind string

const (
	CacheKindFile     CacheKind = "file"
	CacheKindSQLite   CacheKind = "sqlite"
	CacheKindDisabled CacheKind = "disabled"
)

type CacheConfig struct {
	Kind CacheKind     `json:"kind" yaml:"kind"`
	Dir  string        `json:"dir" yaml:"dir"`
	TTL  time.Duration `json:"ttl" yaml:"ttl"`
}

type RetryConfig struct {
	MaxAttempts int           `json:"maxAttempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `json:"baseDelay" yaml:"base_delay"`
	MaxDelay    time.Duration `json:"maxDelay" yaml:"max_delay"`
	Multiplier  float64       `json:"multiplier" yaml:"multiplier"`
}

type DecisionMakerKind string

const (
	DecisionMakerRandom DecisionMakerKind = "random"
	DecisionMakerRule   DecisionMakerKind = "rule"
	DecisionMakerLLM    DecisionMakerKind = "llm"
)

type DecisionMakerConfig struct {
	Kind DecisionMakerKind `json:"kind" yaml:"kind"`

	// rule
	BuyWhen        string `json:"buyWhen,omitempty" yaml:"buy_when"`
	SellWhen       string `json:"sellWhen,omitempty" yaml:"sell_when"`
	ConfidenceExpr string `json:"confidenceExpr,omitempty" yaml:"confidence"`

	// llm
	Provider       string `json:"provider,omitempty" yaml:"provider"`
	Model          string `json:"model,omitempty" yaml:"model"`
	APIKey         string `json:"-" yaml:"-"`
	MaxTokens      int    `json:"maxTokens,omitempty" yaml:"max_tokens"`
	MemoryLookback int    `json:"memoryLookback,omitempty" yaml:"memory_lookback"`
}

type JournalConfig struct {
	// Driver is "sqlite3", "postgres" or empty for no journal
	Driver string `json:"driver,omitempty" yaml:"driver"`
	DSN    string `json:"-" yaml:"dsn"`
}

type BacktestConfig struct {
	Symbols        []string  `json:"symbols"`
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
	Timezone       string    `json:"timezone"`
	InitialCapital float64   `json:"initialCapital"`

	RiskProfile    RiskProfile             `json:"riskProfile"`
	PositionLimits map[RiskProfile]float64 `json:"positionLimits"`
	StopLoss       float64                 `json:"stopLoss"`
	TakeProfit     float64                 `json:"takeProfit"`
	MaxPositions   int                     `json:"maxPositions"`
	MinTradeSize   float64                 `json:"minTradeSize"`
	Slippage       float64                 `json:"slippage"`
	Commission     float64                 `json:"commission"`

	RandomSeed      int64       `json:"randomSeed"`
	ResultDir       string      `json:"resultDir"`
	BenchmarkSymbol string      `json:"benchmarkSymbol"`
	RiskFreeRate    float64     `json:"riskFreeRate"`
	Holidays        []time.Time `json:"holidays,omitempty"`

	// DataSources is ordered; the first entry is the primary source
	DataSources   []string            `json:"dataSources"`
	IncludeNews   bool                `json:"includeNews"`
	DecisionMaker DecisionMakerConfig `json:"decisionMaker"`

	DataTimeout     time.Duration `json:"dataTimeout"`
	DecisionTimeout time.Duration `json:"decisionTimeout"`
	Concurrency     int           `json:"concurrency"`

	TransactionHistorySize int `json:"transactionHistorySize"`
	SnapshotHistorySize    int `json:"snapshotHistorySize"`
	MemorySize             int `json:"memorySize"`

	Retry   RetryConfig   `json:"retry"`
	Cache   CacheConfig   `json:"cache"`
	Journal JournalConfig `json:"journal"`
}

func DefaultPositionLimits() map[RiskProfile]float64 {
	return map[RiskProfile]float64{
		RiskProfileAggressive:   0.3,
		RiskProfileNeutral:      0.2,
		RiskProfileConservative: 0.1,
	}
}

func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{
		Timezone:               "America/New_York",
		InitialCapital:         100000,
		RiskProfile:            RiskProfileNeutral,
		PositionLimits:         DefaultPositionLimits(),
		StopLoss:               0.05,
		TakeProfit:             0.15,
		MaxPositions:           10,
		MinTradeSize:           100,
		Slippage:               0.001,
		Commission:             0.001,
		RandomSeed:             42,
		ResultDir:              "results",
		BenchmarkSymbol:        "SPY",
		DataSources:            []string{"yahoo"},
		DecisionMaker:          DecisionMakerConfig{Kind: DecisionMakerRandom, MemoryLookback: 5},
		DataTimeout:            30 * time.Second,
		DecisionTimeout:        120 * time.Second,
		Concurrency:            4,
		TransactionHistorySize: 10000,
		SnapshotHistorySize:    5000,
		MemorySize:             1000,
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    10 * time.Second,
			Multiplier:  2,
		},
		Cache: CacheConfig{
			Kind: CacheKindFile,
			Dir:  "data/cache",
			TTL:  24 * time.Hour,
		},
	}
}

// Location returns the configured timezone, defaulting to UTC. Validate
// guarantees the name loads.
func (c BacktestConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PositionLimit is the capital fraction allowed per position for the active
// risk profile.
func (c BacktestConfig) PositionLimit() float64 {
	return c.PositionLimits[c.RiskProfile]
}

func (c BacktestConfig) Validate() error {
	problems := []string{}
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(c.Symbols) == 0 {
		add("symbols must not be empty")
	}
	seen := map[string]bool{}
	for _, s := range c.Symbols {
		if strings.TrimSpace(s) == "" {
			add("symbols must not contain blank entries")
			continue
		}
		if seen[s] {
			add("duplicate symbol %s", s)
		}
		seen[s] = true
	}

	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		add("start and end dates are required")
	} else if !c.StartDate.Before(c.EndDate) {
		add("start date %s must be before end date %s", c.StartDate.Format(time.DateOnly), c.EndDate.Format(time.DateOnly))
	}

	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			add("unknown timezone %q", c.Timezone)
		}
	}

	if c.InitialCapital <= 0 {
		add("initial capital must be positive, got %f", c.InitialCapital)
	}

	if !c.RiskProfile.Valid() {
		add("unknown risk profile %q", c.RiskProfile)
	}
	for profile, limit := range c.PositionLimits {
		if !profile.Valid() {
			add("position limit for unknown risk profile %q", profile)
		}
		if limit <= 0 || limit > 1 {
			add("position limit for %s must be in (0, 1], got %f", profile, limit)
		}
	}
	if _, ok := c.PositionLimits[c.RiskProfile]; !ok && c.RiskProfile.Valid() {
		add("missing position limit for risk profile %s", c.RiskProfile)
	}

	if c.StopLoss < 0 || c.StopLoss >= 1 {
		add("stop loss must be in [0, 1), got %f", c.StopLoss)
	}
	if c.TakeProfit < 0 {
		add("take profit must be non-negative, got %f", c.TakeProfit)
	}
	if c.MaxPositions <= 0 {
		add("max positions must be positive, got %d", c.MaxPositions)
	}
	if c.MinTradeSize < 0 {
		add("min trade size must be non-negative, got %f", c.MinTradeSize)
	}
	if c.Slippage < 0 || c.Slippage > 0.1 {
		add("slippage must be in [0, 0.1], got %f", c.Slippage)
	}
	if c.Commission < 0 || c.Commission > 0.1 {
		add("commission must be in [0, 0.1], got %f", c.Commission)
	}

	if len(c.DataSources) == 0 {
		add("at least one data source is required")
	}
	if c.DataTimeout <= 0 {
		add("data timeout must be positive")
	}
	if c.DecisionTimeout <= 0 {
		add("decision timeout must be positive")
	}
	if c.Concurrency <= 0 {
		add("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.TransactionHistorySize <= 0 || c.SnapshotHistorySize <= 0 || c.MemorySize <= 0 {
		add("history sizes must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		add("retry max attempts must be positive")
	}

	switch c.DecisionMaker.Kind {
	case DecisionMakerRandom:
	case DecisionMakerRule:
		if c.DecisionMaker.BuyWhen == "" && c.DecisionMaker.SellWhen == "" {
			add("rule decision maker needs buy_when or sell_when")
		}
	case DecisionMakerLLM:
		if c.DecisionMaker.Provider == "" {
			add("llm decision maker needs a provider")
		}
	default:
		add("unknown decision maker kind %q", c.DecisionMaker.Kind)
	}

	switch c.Cache.Kind {
	case CacheKindFile, CacheKindSQLite, CacheKindDisabled, "":
	default:
		add("unknown cache kind %q", c.Cache.Kind)
	}

	if len(problems) > 0 {
		return &ConfigValidationError{Problems: problems}
	}
	return nil
}
