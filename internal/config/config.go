package config

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"agentbacktest/internal/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// File is the on-disk and over-the-wire shape of a backtest. Dates are
// YYYY-MM-DD and timeouts are Go duration strings.
type File struct {
	Symbols        []string                       `json:"symbols" yaml:"symbols"`
	StartDate      string                         `json:"startDate" yaml:"start_date"`
	EndDate        string                         `json:"endDate" yaml:"end_date"`
	Timezone       string                         `json:"timezone" yaml:"timezone"`
	InitialCapital float64                        `json:"initialCapital" yaml:"initial_capital"`
	RiskProfile    domain.RiskProfile             `json:"riskProfile" yaml:"risk_profile"`
	PositionLimits map[domain.RiskProfile]float64 `json:"positionLimits" yaml:"position_limits"`
	StopLoss       float64                        `json:"stopLoss" yaml:"stop_loss"`
	TakeProfit     float64                        `json:"takeProfit" yaml:"take_profit"`
	MaxPositions   int                            `json:"maxPositions" yaml:"max_positions"`
	MinTradeSize   float64                        `json:"minTradeSize" yaml:"min_trade_size"`
	Slippage       float64                        `json:"slippage" yaml:"slippage"`
	Commission     float64                        `json:"commission" yaml:"commission"`

	RandomSeed      int64    `json:"randomSeed" yaml:"random_seed"`
	ResultDir       string   `json:"resultDir" yaml:"result_dir"`
	BenchmarkSymbol string   `json:"benchmarkSymbol" yaml:"benchmark_symbol"`
	RiskFreeRate    float64  `json:"riskFreeRate" yaml:"risk_free_rate"`
	Holidays        []string `json:"holidays" yaml:"holidays"`

	DataSources   []string                   `json:"dataSources" yaml:"data_sources"`
	IncludeNews   bool                       `json:"includeNews" yaml:"include_news"`
	DecisionMaker domain.DecisionMakerConfig `json:"decisionMaker" yaml:"decision_maker"`

	DataTimeout     string `json:"dataTimeout" yaml:"data_timeout"`
	DecisionTimeout string `json:"decisionTimeout" yaml:"decision_timeout"`
	Concurrency     int    `json:"concurrency" yaml:"concurrency"`

	TransactionHistorySize int `json:"transactionHistorySize" yaml:"transaction_history_size"`
	SnapshotHistorySize    int `json:"snapshotHistorySize" yaml:"snapshot_history_size"`
	MemorySize             int `json:"memorySize" yaml:"memory_size"`

	Retry   domain.RetryConfig   `json:"retry" yaml:"retry"`
	Cache   domain.CacheConfig   `json:"cache" yaml:"cache"`
	Journal domain.JournalConfig `json:"journal" yaml:"journal"`
}

// Offline points the csv and parquet sources at local data.
type Offline struct {
	CsvDir     string `yaml:"csv_dir"`
	ParquetDir string `yaml:"parquet_dir"`
}

// Notify emails a report through SES after a CLI run when To is set.
type Notify struct {
	Region string   `yaml:"region"`
	From   string   `yaml:"from"`
	To     []string `yaml:"to"`
}

type Server struct {
	Port int `yaml:"port"`
}

// Secrets only ever come from the environment.
type Secrets struct {
	FinnhubAPIKey    string
	AlpacaAPIKey     string
	AlpacaAPISecret  string
	AlpacaEndpoint   string
	DeepSeekAPIKey   string
	OpenAIAPIKey     string
	DataJockeyAPIKey string
	// JWTSecret enables bearer auth on the API when set
	JWTSecret string
}

type Config struct {
	File            File
	Offline         Offline
	Server          Server
	Notify          Notify
	FinnhubURL      string
	DataJockeyURL   string
	InterestRateURL string
	Secrets         Secrets
}

type fileLayout struct {
	Backtest        File    `yaml:"backtest"`
	Offline         Offline `yaml:"offline"`
	Server          Server  `yaml:"server"`
	Notify          Notify  `yaml:"notify"`
	FinnhubURL      string  `yaml:"finnhub_url"`
	DataJockeyURL   string  `yaml:"datajockey_url"`
	InterestRateURL string  `yaml:"interest_rate_url"`
}

func DefaultFile() File {
	d := domain.DefaultBacktestConfig()
	return File{
		Timezone:               d.Timezone,
		InitialCapital:         d.InitialCapital,
		RiskProfile:            d.RiskProfile,
		PositionLimits:         d.PositionLimits,
		StopLoss:               d.StopLoss,
		TakeProfit:             d.TakeProfit,
		MaxPositions:           d.MaxPositions,
		MinTradeSize:           d.MinTradeSize,
		Slippage:               d.Slippage,
		Commission:             d.Commission,
		RandomSeed:             d.RandomSeed,
		ResultDir:              d.ResultDir,
		BenchmarkSymbol:        d.BenchmarkSymbol,
		RiskFreeRate:           d.RiskFreeRate,
		DataSources:            d.DataSources,
		DecisionMaker:          d.DecisionMaker,
		DataTimeout:            d.DataTimeout.String(),
		DecisionTimeout:        d.DecisionTimeout.String(),
		Concurrency:            d.Concurrency,
		TransactionHistorySize: d.TransactionHistorySize,
		SnapshotHistorySize:    d.SnapshotHistorySize,
		MemorySize:             d.MemorySize,
		Retry:                  d.Retry,
		Cache:                  d.Cache,
	}
}

// Clone copies the slices and maps so a decode into the copy cannot write
// through to f.
func (f File) Clone() File {
	out := f
	out.Symbols = slices.Clone(f.Symbols)
	out.Holidays = slices.Clone(f.Holidays)
	out.DataSources = slices.Clone(f.DataSources)
	out.PositionLimits = maps.Clone(f.PositionLimits)
	return out
}

func DefaultConfig() *Config {
	return &Config{
		File:   DefaultFile(),
		Server: Server{Port: 3009},
	}
}

// Load reads .env if present, then the YAML file at path (optional), then
// AGENTBT_* and API key environment variables.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		layout := fileLayout{
			Backtest: cfg.File,
			Server:   cfg.Server,
		}
		if err := yaml.Unmarshal(data, &layout); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		cfg.File = layout.Backtest
		cfg.Offline = layout.Offline
		cfg.Server = layout.Server
		cfg.Notify = layout.Notify
		cfg.FinnhubURL = layout.FinnhubURL
		cfg.DataJockeyURL = layout.DataJockeyURL
		cfg.InterestRateURL = layout.InterestRateURL
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	f := &c.File
	if v := os.Getenv("AGENTBT_SYMBOLS"); v != "" {
		f.Symbols = splitList(v)
	}
	if v := os.Getenv("AGENTBT_START_DATE"); v != "" {
		f.StartDate = v
	}
	if v := os.Getenv("AGENTBT_END_DATE"); v != "" {
		f.EndDate = v
	}
	if v := os.Getenv("AGENTBT_TIMEZONE"); v != "" {
		f.Timezone = v
	}
	if v := os.Getenv("AGENTBT_RISK_PROFILE"); v != "" {
		f.RiskProfile = domain.RiskProfile(strings.ToUpper(v))
	}
	if v := os.Getenv("AGENTBT_DATA_SOURCES"); v != "" {
		f.DataSources = splitList(v)
	}
	if v := os.Getenv("AGENTBT_RESULT_DIR"); v != "" {
		f.ResultDir = v
	}
	if v := os.Getenv("AGENTBT_CACHE_DIR"); v != "" {
		f.Cache.Dir = v
	}
	if v := os.Getenv("AGENTBT_DECISION_MAKER"); v != "" {
		f.DecisionMaker.Kind = domain.DecisionMakerKind(strings.ToLower(v))
	}
	if v := os.Getenv("AGENTBT_LLM_PROVIDER"); v != "" {
		f.DecisionMaker.Provider = v
	}
	if v := os.Getenv("AGENTBT_LLM_MODEL"); v != "" {
		f.DecisionMaker.Model = v
	}
	if v := os.Getenv("AGENTBT_BENCHMARK"); v != "" {
		f.BenchmarkSymbol = v
	}

	if v := os.Getenv("AGENTBT_INITIAL_CAPITAL"); v != "" {
		capital, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid AGENTBT_INITIAL_CAPITAL %q: %w", v, err)
		}
		f.InitialCapital = capital
	}
	if v := os.Getenv("AGENTBT_RANDOM_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid AGENTBT_RANDOM_SEED %q: %w", v, err)
		}
		f.RandomSeed = seed
	}
	if v := os.Getenv("AGENTBT_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AGENTBT_CONCURRENCY %q: %w", v, err)
		}
		f.Concurrency = n
	}
	if v := os.Getenv("AGENTBT_INCLUDE_NEWS"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid AGENTBT_INCLUDE_NEWS %q: %w", v, err)
		}
		f.IncludeNews = include
	}
	if v := os.Getenv("AGENTBT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AGENTBT_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}

	if v := os.Getenv("AGENTBT_NOTIFY_TO"); v != "" {
		c.Notify.To = splitList(v)
	}
	if v := os.Getenv("AGENTBT_CSV_DIR"); v != "" {
		c.Offline.CsvDir = v
	}
	if v := os.Getenv("AGENTBT_PARQUET_DIR"); v != "" {
		c.Offline.ParquetDir = v
	}
	if v := os.Getenv("AGENTBT_JOURNAL_DSN"); v != "" {
		f.Journal.DSN = v
		if f.Journal.Driver == "" {
			f.Journal.Driver = "sqlite3"
		}
	}

	c.Secrets = Secrets{
		FinnhubAPIKey:    os.Getenv("FINNHUB_API_KEY"),
		AlpacaAPIKey:     os.Getenv("ALPACA_API_KEY"),
		AlpacaAPISecret:  os.Getenv("ALPACA_API_SECRET"),
		AlpacaEndpoint:   os.Getenv("ALPACA_ENDPOINT"),
		DeepSeekAPIKey:   os.Getenv("DEEPSEEK_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		DataJockeyAPIKey: os.Getenv("DATAJOCKEY_API_KEY"),
		JWTSecret:        os.Getenv("AGENTBT_JWT_SECRET"),
	}
	return nil
}

func splitList(v string) []string {
	out := []string{}
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// BacktestConfig converts the file form. Dates are interpreted in the
// configured timezone. The result is not validated here.
func (f File) BacktestConfig() (domain.BacktestConfig, error) {
	out := domain.BacktestConfig{
		Symbols:                f.Symbols,
		Timezone:               f.Timezone,
		InitialCapital:         f.InitialCapital,
		RiskProfile:            domain.RiskProfile(strings.ToUpper(string(f.RiskProfile))),
		PositionLimits:         f.PositionLimits,
		StopLoss:               f.StopLoss,
		TakeProfit:             f.TakeProfit,
		MaxPositions:           f.MaxPositions,
		MinTradeSize:           f.MinTradeSize,
		Slippage:               f.Slippage,
		Commission:             f.Commission,
		RandomSeed:             f.RandomSeed,
		ResultDir:              f.ResultDir,
		BenchmarkSymbol:        f.BenchmarkSymbol,
		RiskFreeRate:           f.RiskFreeRate,
		DataSources:            f.DataSources,
		IncludeNews:            f.IncludeNews,
		DecisionMaker:          f.DecisionMaker,
		Concurrency:            f.Concurrency,
		TransactionHistorySize: f.TransactionHistorySize,
		SnapshotHistorySize:    f.SnapshotHistorySize,
		MemorySize:             f.MemorySize,
		Retry:                  f.Retry,
		Cache:                  f.Cache,
		Journal:                f.Journal,
	}
	if out.PositionLimits == nil {
		out.PositionLimits = domain.DefaultPositionLimits()
	}
	loc := out.Location()

	var err error
	if out.StartDate, err = parseDate("start_date", f.StartDate, loc); err != nil {
		return out, err
	}
	if out.EndDate, err = parseDate("end_date", f.EndDate, loc); err != nil {
		return out, err
	}
	for _, h := range f.Holidays {
		d, err := parseDate("holidays", h, loc)
		if err != nil {
			return out, err
		}
		out.Holidays = append(out.Holidays, d)
	}

	if out.DataTimeout, err = parseDuration("data_timeout", f.DataTimeout); err != nil {
		return out, err
	}
	if out.DecisionTimeout, err = parseDuration("decision_timeout", f.DecisionTimeout); err != nil {
		return out, err
	}
	return out, nil
}

func parseDate(field, v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: %w", field, v, err)
	}
	return d, nil
}

func parseDuration(field, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, v, err)
	}
	return d, nil
}

// BacktestConfig converts the loaded file and attaches the API key the
// decision maker's provider needs.
func (c *Config) BacktestConfig() (domain.BacktestConfig, error) {
	out, err := c.File.BacktestConfig()
	if err != nil {
		return out, err
	}
	out.DecisionMaker.APIKey = c.Secrets.APIKeyFor(out.DecisionMaker.Provider)
	return out, nil
}

func (s Secrets) APIKeyFor(provider string) string {
	switch strings.ToLower(provider) {
	case "deepseek":
		return s.DeepSeekAPIKey
	case "openai", "gpt":
		return s.OpenAIAPIKey
	}
	return ""
}
