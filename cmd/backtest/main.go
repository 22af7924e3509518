package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"agentbacktest/cmd"
	"agentbacktest/internal/config"
	"agentbacktest/internal/domain"
	"agentbacktest/internal/logger"
	"agentbacktest/internal/repository"

	"github.com/spf13/cobra"
)

var (
	configPath string
	symbols    []string
	emailTo    []string
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "agentbacktest",
	Short: "Replay agent trading decisions over historical market data",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a backtest and print its summary",
	RunE:  runBacktest,
}

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print a journaled run",
	Args:  cobra.ExactArgs(1),
	RunE:  showRun,
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Delete every cached market data snapshot",
	RunE:  clearCache,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	runCmd.Flags().StringSliceVar(&symbols, "symbols", nil, "Override the configured symbols")
	runCmd.Flags().StringSliceVar(&emailTo, "email", nil, "Email the report to these addresses")
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress")

	rootCmd.AddCommand(runCmd, showCmd, clearCacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBacktest(c *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if len(symbols) > 0 {
		cfg.File.Symbols = symbols
	}
	if len(emailTo) > 0 {
		cfg.Notify.To = emailTo
	}
	bt, err := cfg.BacktestConfig()
	if err != nil {
		return err
	}

	log := logger.New()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	emailService, err := cmd.NewEmailService(ctx, cfg)
	if err != nil {
		return err
	}
	engine, err := cmd.NewBacktestEngine(ctx, cfg, bt, log)
	if err != nil {
		return err
	}
	if !quiet {
		engine.OnProgress = func(percent float64, status string, symbol string) {
			if symbol != "" {
				return
			}
			fmt.Fprintf(os.Stderr, "\r%5.1f%% %s", percent, status)
		}
	}

	result, err := engine.Run(ctx)
	if !quiet {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}
	printSummary(result)

	if emailService != nil {
		if err := emailService.SendRunReport(context.WithoutCancel(ctx), cfg.Notify.To, *result); err != nil {
			log.Warnw("failed to email report", "error", err)
		}
	}
	return nil
}

func printSummary(result *domain.BacktestResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	m := result.Metrics
	fmt.Fprintf(w, "run\t%s\n", result.RunID)
	fmt.Fprintf(w, "symbols\t%s\n", strings.Join(result.Config.Symbols, ","))
	fmt.Fprintf(w, "period\t%s to %s (%d days)\n",
		result.Config.StartDate.Format(time.DateOnly), result.Config.EndDate.Format(time.DateOnly), result.ProcessedDays)
	if result.Stopped {
		fmt.Fprintf(w, "stopped\tyes\n")
	}
	fmt.Fprintf(w, "final value\t%.2f\n", result.FinalPortfolio.TotalValue)
	fmt.Fprintf(w, "total return\t%.2f%%\n", 100*m.TotalReturn)
	fmt.Fprintf(w, "annualized return\t%.2f%%\n", 100*m.AnnualizedReturn)
	fmt.Fprintf(w, "volatility\t%.2f%%\n", 100*m.Volatility)
	fmt.Fprintf(w, "sharpe\t%.3f\n", m.SharpeRatio)
	fmt.Fprintf(w, "sortino\t%.3f\n", m.SortinoRatio)
	fmt.Fprintf(w, "max drawdown\t%.2f%% over %d days\n", 100*m.MaxDrawdown, m.MaxDrawdownDuration)
	fmt.Fprintf(w, "var 95 / cvar 95\t%.2f%% / %.2f%%\n", 100*m.VaR95, 100*m.CVaR95)
	fmt.Fprintf(w, "trades\t%d (%.0f%% won)\n", m.TotalTrades, 100*m.WinRate)
	fmt.Fprintf(w, "profit factor\t%.2f\n", m.ReportedProfitFactor())
	fmt.Fprintf(w, "skipped / failed / rejected\t%d / %d / %d\n",
		result.SkippedSymbolDays, result.DecisionFailures, result.RejectedTransactions)

	if b := result.Benchmark; b != nil {
		fmt.Fprintf(w, "%s return\t%.2f%%\n", b.Symbol, 100*b.Metrics.TotalReturn)
		fmt.Fprintf(w, "alpha\t%.4f\n", b.Alpha)
		if b.BetaMeasured {
			fmt.Fprintf(w, "beta\t%.3f\n", b.Beta)
		}
		fmt.Fprintf(w, "information ratio\t%.3f\n", b.InformationRatio)
	}
}

func showRun(c *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	journal, err := repository.NewResultJournal(cfg.File.Journal)
	if err != nil {
		return err
	}
	defer journal.Close()

	ctx := context.Background()
	run, err := journal.GetRun(ctx, args[0])
	if err != nil {
		return err
	}
	txs, err := journal.ListTransactions(ctx, args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "run\t%s\t%s\n", run.RunID, run.State)
	fmt.Fprintf(w, "symbols\t%s\n", strings.Join(run.Symbols, ","))
	fmt.Fprintf(w, "final value\t%.2f\n", run.FinalValue)
	fmt.Fprintf(w, "total return\t%.2f%%\n", 100*run.TotalReturn)
	if run.Error != "" {
		fmt.Fprintf(w, "error\t%s\n", run.Error)
	}
	fmt.Fprintln(w)
	for _, tx := range txs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t@ %.4f\t%s\n",
			tx.Timestamp.Format(time.DateOnly), tx.Action, tx.Symbol, tx.Quantity, tx.Price, tx.Reason)
	}
	return nil
}

func clearCache(c *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cache, err := repository.NewMarketDataCache(cfg.File.Cache)
	if err != nil {
		return err
	}
	defer cache.Close()
	return cache.Clear()
}
