package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"basisarb/internal/backtest"
	"basisarb/internal/config"
	"basisarb/internal/domain"
	"basisarb/internal/report"
	"basisarb/internal/store"
	"basisarb/internal/util"
)

func main() {
	granularity := flag.String("granularity", "daily", "bar granularity: daily or intraday")
	flag.Parse()

	g := domain.Granularity(*granularity)
	if g != domain.GranularityDaily && g != domain.GranularityIntraday {
		log.Fatalf("invalid granularity %q", *granularity)
	}

	cfgPath := "config/basisarb.yaml"
	if p := os.Getenv("BASISARB_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	strat := cfg.Daily
	if g == domain.GranularityIntraday {
		strat = cfg.Intraday
	}
	profile := profileFrom(strat, g)

	sim, err := backtest.NewSimulator(profile, backtest.NewLogSink(logger))
	if err != nil {
		log.Fatalf("failed to create simulator: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	records, err := pstore.ReadSpreads(ctx, g,
		time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), time.Now().UTC())
	if err != nil {
		log.Fatalf("reading spreads failed: %v", err)
	}
	if len(records) == 0 {
		log.Fatalf("no spread data for %s; run analyze first", g)
	}

	startedAt := time.Now().UTC()
	res, err := sim.Run(records)
	if err != nil {
		log.Fatalf("simulation failed: %v", err)
	}

	runID := fmt.Sprintf("%s-%d", g, startedAt.Unix())

	// Persist run history.
	rstore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening run store failed: %v", err)
	}
	defer rstore.Close()

	run := store.Run{
		ID:           runID,
		Granularity:  g,
		StartedAt:    startedAt,
		TotalTrades:  res.Metrics.TotalTrades,
		WinRate:      res.Metrics.WinRate,
		TotalPnL:     res.Metrics.TotalPnL,
		SharpeRatio:  res.Metrics.SharpeRatio,
		FinalCapital: res.Metrics.FinalCapital,
	}
	if err := rstore.SaveRun(ctx, run); err != nil {
		log.Fatalf("saving run failed: %v", err)
	}
	if err := rstore.InsertTrades(ctx, runID, res.Trades); err != nil {
		log.Fatalf("saving trades failed: %v", err)
	}

	// Export artifacts.
	tradesPath := filepath.Join(cfg.Storage.ResultsDir, fmt.Sprintf("trades_%s.csv", runID))
	if err := store.WriteTradeLogCSV(tradesPath, res.Trades); err != nil {
		log.Fatalf("writing trade log failed: %v", err)
	}
	metricsPath := filepath.Join(cfg.Storage.ResultsDir, "metrics.csv")
	if err := report.WriteMetricsCSV(metricsPath, runID, g, res.Metrics, startedAt); err != nil {
		log.Fatalf("writing metrics csv failed: %v", err)
	}

	fmt.Print(report.Summary(runID, g, res.Metrics))

	slog.Info("backtest complete",
		"runID", runID,
		"bars", len(records),
		"trades", res.Metrics.TotalTrades,
		"tradeLog", tradesPath,
	)
}

// profileFrom maps a strategy config block onto a simulation profile,
// keeping the granularity's session-cutoff behavior.
func profileFrom(s config.Strategy, g domain.Granularity) backtest.Profile {
	p := backtest.DailyProfile()
	if g == domain.GranularityIntraday {
		p = backtest.IntradayProfile()
	}
	p.ThresholdBps = s.ThresholdBps
	p.ConvergenceBps = s.ConvergenceThresholdBps
	p.MaxHolding = s.MaxHoldingPeriods
	p.ReversalStopBps = s.ReversalStopBps
	p.PositionFraction = s.PositionSizeFraction
	p.InitialCapital = s.InitialCapital
	p.CostBps = s.Costs.Total()
	return p
}
