package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"agentbacktest/api"
	"agentbacktest/internal/app"
	"agentbacktest/internal/config"
	"agentbacktest/internal/domain"
	"agentbacktest/internal/logger"
	"agentbacktest/internal/memory"
	"agentbacktest/internal/repository"
	"agentbacktest/internal/service"
	l1_service "agentbacktest/internal/service/l1"
	l2_service "agentbacktest/internal/service/l2"
	"agentbacktest/internal/util"

	"go.uber.org/zap"
)

func CloseDependencies(handler *api.ApiHandler) {
	if handler == nil || handler.Log == nil {
		return
	}
	// stderr sync fails on some platforms, nothing to do about it
	_ = handler.Log.Sync()
}

// InitializeDependencies loads config from configPath (empty for defaults
// and env only) and builds the API handler.
func InitializeDependencies(configPath string) (*api.ApiHandler, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.New()

	return &api.ApiHandler{
		BaseConfig: cfg.File,
		JWTSecret:  cfg.Secrets.JWTSecret,
		Port:       cfg.Server.Port,
		Log:        log,
		NewEngine: func(ctx context.Context, bt domain.BacktestConfig) (*app.BacktestEngine, error) {
			bt.DecisionMaker.APIKey = cfg.Secrets.APIKeyFor(bt.DecisionMaker.Provider)
			return NewBacktestEngine(ctx, cfg, bt, log)
		},
		OpenJournal: func() (repository.ResultJournal, error) {
			return repository.NewResultJournal(cfg.File.Journal)
		},
	}, nil
}

// NewBacktestEngine builds every collaborator a run needs. The engine owns
// them afterwards and closes them in its cleanup.
func NewBacktestEngine(ctx context.Context, cfg *config.Config, bt domain.BacktestConfig, log *zap.SugaredLogger) (engine *app.BacktestEngine, err error) {
	if log == nil {
		log = logger.New()
	}
	ectx := app.NewEngineContext(bt.RandomSeed, log)

	sources, err := NewPriceSources(cfg, bt.DataSources)
	if err != nil {
		return nil, err
	}

	closers := []func() error{}
	defer func() {
		if err == nil {
			return
		}
		errs := []error{}
		for _, c := range closers {
			errs = append(errs, c())
		}
		if closeErr := errors.Join(errs...); closeErr != nil {
			log.Warnw("failed to release partial dependencies", "error", closeErr)
		}
	}()

	cache, err := repository.NewMarketDataCache(bt.Cache)
	if err != nil {
		return nil, err
	}
	closers = append(closers, cache.Close)

	dataManager, err := l1_service.NewDataManager(
		sources,
		cache,
		util.NewRetryPolicy(bt.Retry, bt.DataTimeout),
		bt.Location(),
		ectx.Now,
		log,
	)
	if err != nil {
		return nil, err
	}

	journal, err := repository.NewResultJournal(bt.Journal)
	if err != nil {
		return nil, err
	}
	closers = append(closers, journal.Close)

	var store *memory.Store
	if bt.ResultDir != "" {
		store, err = memory.NewStore(bt.ResultDir, bt.MemorySize, log)
		if err != nil {
			return nil, err
		}
		if err := store.Load(); err != nil {
			log.Warnw("ignoring unreadable memory file", "path", store.Path(), "error", err)
		}
	}

	maker, err := NewDecisionMaker(ctx, bt, store, ectx, log)
	if err != nil {
		return nil, err
	}

	return app.NewBacktestEngine(app.NewBacktestEngineInput{
		Config:        bt,
		Ctx:           ectx,
		DataManager:   dataManager,
		DecisionMaker: maker,
		Memory:        store,
		Journal:       journal,
		InterestRates: repository.NewInterestRateRepository(cfg.InterestRateURL),
		Export:        bt.ResultDir != "",
	}), nil
}

// NewPriceSources builds the named sources in order.
func NewPriceSources(cfg *config.Config, names []string) ([]repository.PriceSource, error) {
	out := []repository.PriceSource{}
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "yahoo":
			out = append(out, repository.NewYahooRepository())
		case "alpaca":
			if cfg.Secrets.AlpacaAPIKey == "" || cfg.Secrets.AlpacaAPISecret == "" {
				return nil, fmt.Errorf("alpaca source needs ALPACA_API_KEY and ALPACA_API_SECRET")
			}
			out = append(out, repository.NewAlpacaRepository(
				cfg.Secrets.AlpacaAPIKey,
				cfg.Secrets.AlpacaAPISecret,
				cfg.Secrets.AlpacaEndpoint,
			))
		case "finnhub":
			if cfg.Secrets.FinnhubAPIKey == "" {
				return nil, fmt.Errorf("finnhub source needs FINNHUB_API_KEY")
			}
			out = append(out, repository.NewFinnhubRepository(cfg.Secrets.FinnhubAPIKey, cfg.FinnhubURL))
		case "datajockey":
			if cfg.Secrets.DataJockeyAPIKey == "" {
				return nil, fmt.Errorf("datajockey source needs DATAJOCKEY_API_KEY")
			}
			out = append(out, repository.NewDataJockeyRepository(cfg.Secrets.DataJockeyAPIKey, cfg.DataJockeyURL))
		case "csv":
			if err := requireDir("csv", cfg.Offline.CsvDir); err != nil {
				return nil, err
			}
			out = append(out, repository.NewCsvRepository(cfg.Offline.CsvDir))
		case "parquet":
			if err := requireDir("parquet", cfg.Offline.ParquetDir); err != nil {
				return nil, err
			}
			out = append(out, repository.NewParquetRepository(cfg.Offline.ParquetDir))
		default:
			return nil, fmt.Errorf("unknown data source %q", name)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no data sources configured")
	}
	return out, nil
}

func requireDir(source, dir string) error {
	if dir == "" {
		return fmt.Errorf("%s source needs offline.%s_dir", source, source)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%s source: %w", source, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s source: %s is not a directory", source, dir)
	}
	return nil
}

// NewDecisionMaker builds the configured strategy. The llm maker records its
// decisions in store, which may be nil.
func NewDecisionMaker(ctx context.Context, bt domain.BacktestConfig, store *memory.Store, ectx app.EngineContext, log *zap.SugaredLogger) (l2_service.DecisionMaker, error) {
	dm := bt.DecisionMaker
	switch dm.Kind {
	case domain.DecisionMakerRandom, "":
		return l2_service.NewRandomDecisionMaker(ectx.Rand), nil
	case domain.DecisionMakerRule:
		return l2_service.NewRuleDecisionMaker(dm)
	case domain.DecisionMakerLLM:
		client, err := NewChatClient(ctx, dm)
		if err != nil {
			return nil, err
		}
		return l2_service.NewLLMDecisionMaker(client, store, dm.MemoryLookback, log), nil
	}
	return nil, fmt.Errorf("unknown decision maker %q", dm.Kind)
}

func NewChatClient(ctx context.Context, dm domain.DecisionMakerConfig) (repository.ChatClient, error) {
	switch strings.ToLower(dm.Provider) {
	case "deepseek", "":
		return repository.NewDeepseekRepository(ctx, dm.APIKey, dm.Model, dm.MaxTokens)
	case "openai", "gpt":
		return repository.NewGptRepository(dm.APIKey, dm.Model)
	}
	return nil, fmt.Errorf("unknown llm provider %q", dm.Provider)
}

// NewEmailService returns nil when no recipients are configured.
func NewEmailService(ctx context.Context, cfg *config.Config) (service.EmailService, error) {
	if len(cfg.Notify.To) == 0 {
		return nil, nil
	}
	emailRepository, err := repository.NewEmailRepository(ctx, cfg.Notify.Region, cfg.Notify.From)
	if err != nil {
		return nil, err
	}
	return service.NewEmailService(emailRepository), nil
}
