// Command wheelhouse runs the options income engine: chain scans,
// position reconciliation, order batches, and the JSON API server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/wheelhouse-trading/wheelhouse/internal/broker"
	"github.com/wheelhouse-trading/wheelhouse/internal/config"
	"github.com/wheelhouse-trading/wheelhouse/internal/dashboard"
	"github.com/wheelhouse-trading/wheelhouse/internal/mock"
	"github.com/wheelhouse-trading/wheelhouse/internal/orders"
	"github.com/wheelhouse-trading/wheelhouse/internal/positions"
	"github.com/wheelhouse-trading/wheelhouse/internal/scanner"
	"github.com/wheelhouse-trading/wheelhouse/internal/storage"
	"github.com/wheelhouse-trading/wheelhouse/internal/watchlist"
)

// paperBuyingPower seeds the mock gateway; paper mode has no real
// account to read it from.
const paperBuyingPower = 100_000

type app struct {
	cfg       *config.Config
	logger    *logrus.Logger
	market    broker.MarketDataGateway
	execution broker.ExecutionGateway
	journal   storage.Interface
	scanner   *scanner.Scanner
	watchlist watchlist.Watchlist
}

func main() {
	var (
		configPath string
		mode       string
		ordersPath string
		dryRun     bool
		leapStrike float64
	)
	flag.StringVar(&configPath, "config", "config.yaml", "path to configuration file")
	flag.StringVar(&mode, "mode", "scan", "scan | leaps | shortcalls | positions | submit | serve")
	flag.StringVar(&ordersPath, "orders", "", "path to a JSON batch file (submit mode)")
	flag.BoolVar(&dryRun, "dry-run", false, "validate and price the batch without placing orders")
	flag.Float64Var(&leapStrike, "leap-strike", 0, "covering LEAP strike (shortcalls mode)")
	flag.Parse()

	// A missing .env is fine; explicit environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Environment.LogLevel)
	a, err := newApp(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("initialization failed")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.run(ctx, mode, ordersPath, dryRun, leapStrike); err != nil {
		logger.WithError(err).Fatal("run failed")
	}
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if parsed, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(parsed)
	}
	return logger
}

func newApp(cfg *config.Config, logger *logrus.Logger) (*app, error) {
	a := &app{
		cfg:       cfg,
		logger:    logger,
		watchlist: watchlist.Normalize(cfg.Watchlist),
	}

	if cfg.IsPaperTrading() {
		logger.Info("paper trading mode, synthetic market data")
		gateway := mock.NewGateway(paperBuyingPower)
		a.market = gateway
		a.execution = gateway
	} else {
		logger.Warn("live trading mode, orders place real money at risk")
		api := broker.NewTradierAPIWithBaseURL(
			cfg.Broker.APIKey,
			cfg.Broker.AccountID,
			cfg.Broker.Sandbox,
			cfg.Broker.APIEndpoint,
		).WithLogger(logger)
		a.market = api
		a.execution = broker.NewCircuitBreakerExecution(api, logger)
	}

	if cfg.Storage.Path != "" {
		journal, err := storage.NewJournal(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("opening journal: %w", err)
		}
		a.journal = journal
	} else {
		a.journal = storage.NewMemoryJournal()
	}

	a.scanner = scanner.New(a.market, logger, scanner.Options{
		Concurrency:   cfg.Scan.Concurrency,
		EnrichHistory: cfg.Scan.EnrichHistory,
	})

	return a, nil
}

func (a *app) run(ctx context.Context, mode, ordersPath string, dryRun bool, leapStrike float64) error {
	switch mode {
	case "scan":
		return a.runScan(ctx)
	case "leaps":
		return a.runLEAPScan(ctx)
	case "shortcalls":
		return a.runShortCallScan(ctx, leapStrike)
	case "positions":
		return a.runPositions(ctx)
	case "submit":
		return a.runSubmit(ctx, ordersPath, dryRun)
	case "serve":
		return a.runServe(ctx)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func (a *app) cspFilter() scanner.Filter {
	return scanner.Filter{
		Side:            "put",
		MinDTE:          a.cfg.Scan.MinDTE,
		MaxDTE:          a.cfg.Scan.MaxDTE,
		MaxDelta:        a.cfg.Scan.MaxDelta,
		MinPremium:      a.cfg.Scan.MinPremium,
		MinVolume:       a.cfg.Scan.MinVolume,
		MinOpenInterest: a.cfg.Scan.MinOpenInterest,
		MaxSpreadPct:    a.cfg.Scan.MaxSpreadPct,
	}
}

func (a *app) runScan(ctx context.Context) error {
	result, err := a.scanner.Scan(ctx, a.watchlist, a.cspFilter(), time.Now().UTC())
	if err != nil {
		return err
	}

	if err := a.journal.RecordScan(storage.ScanSummary{
		ScanID:        result.ScanID,
		AsOf:          result.AsOf,
		Symbols:       a.watchlist.Len(),
		Opportunities: len(result.Opportunities),
		Errors:        len(result.Errors),
		Duration:      result.Duration.String(),
	}); err != nil {
		a.logger.WithError(err).Warn("recording scan summary failed")
	}

	return printJSON(result)
}

func (a *app) runLEAPScan(ctx context.Context) error {
	filter := scanner.Filter{
		Side:            "call",
		MinDTE:          a.cfg.PMCC.LEAPMinDTE,
		MaxDTE:          a.cfg.PMCC.LEAPMaxDTE,
		MinDelta:        a.cfg.PMCC.LEAPMinDelta,
		MaxDelta:        a.cfg.PMCC.LEAPMaxDelta,
		MinOpenInterest: a.cfg.PMCC.LEAPMinOI,
	}
	result, err := a.scanner.ScanLEAPs(ctx, a.watchlist, filter, time.Now().UTC())
	if err != nil {
		return err
	}
	return printJSON(result)
}

func (a *app) runShortCallScan(ctx context.Context, leapStrike float64) error {
	if leapStrike <= 0 {
		return fmt.Errorf("shortcalls mode requires -leap-strike")
	}
	filter := scanner.Filter{
		Side:            "call",
		MinDTE:          a.cfg.PMCC.ShortCallMinDTE,
		MaxDTE:          a.cfg.PMCC.ShortCallMaxDTE,
		MaxDelta:        a.cfg.PMCC.ShortCallMaxDelta,
		MinPremium:      a.cfg.PMCC.MinPremium,
		ReferenceStrike: leapStrike,
	}
	result, err := a.scanner.ScanShortCalls(ctx, a.watchlist, filter, time.Now().UTC())
	if err != nil {
		return err
	}
	return printJSON(result)
}

func (a *app) runPositions(ctx context.Context) error {
	report, err := positions.New(a.market, a.execution, a.logger).Reconcile(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	return printJSON(report)
}

func (a *app) runSubmit(ctx context.Context, ordersPath string, dryRun bool) error {
	if ordersPath == "" {
		return fmt.Errorf("submit mode requires -orders")
	}

	data, err := os.ReadFile(ordersPath) // #nosec G304 -- operator-provided batch file
	if err != nil {
		return fmt.Errorf("reading batch file: %w", err)
	}
	var items []orders.BatchItem
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("parsing batch file: %w", err)
	}

	buyingPower, err := a.execution.GetOptionBuyingPowerCtx(ctx)
	if err != nil {
		return fmt.Errorf("fetching buying power: %w", err)
	}
	report, err := positions.New(a.market, a.execution, a.logger).Reconcile(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reconciling positions: %w", err)
	}

	orchestrator := orders.New(a.execution, a.journal, a.logger, orders.Options{
		MaxContractsPerUnderlying: a.cfg.Orders.MaxContractsPerUnderlying,
		Tick:                      a.cfg.Orders.Tick,
		Duration:                  a.cfg.Orders.Duration,
	})
	result, err := orchestrator.SubmitBatch(ctx, orders.BatchRequest{
		Items:       items,
		DryRun:      dryRun,
		BuyingPower: buyingPower,
		Exposure:    report.Exposure,
	})
	if err != nil {
		return err
	}

	if result.StateStale {
		a.logger.Info("live orders placed, re-run positions mode for fresh account state")
	}
	return printJSON(result)
}

func (a *app) runServe(ctx context.Context) error {
	if !a.cfg.Dashboard.Enabled {
		return fmt.Errorf("dashboard is disabled in config")
	}

	srv := dashboard.NewServer(
		dashboard.Config{Addr: a.cfg.Dashboard.Addr, AuthToken: a.cfg.Dashboard.AuthToken},
		dashboard.Deps{
			Scanner:    a.scanner,
			Reconciler: positions.New(a.market, a.execution, a.logger),
			Orchestrator: orders.New(a.execution, a.journal, a.logger, orders.Options{
				MaxContractsPerUnderlying: a.cfg.Orders.MaxContractsPerUnderlying,
				Tick:                      a.cfg.Orders.Tick,
				Duration:                  a.cfg.Orders.Duration,
			}),
			Execution:  a.execution,
			Journal:    a.journal,
			Watchlist:  a.watchlist,
			ScanFilter: a.cspFilter(),
		},
		a.logger,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
