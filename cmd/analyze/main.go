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

	"basisarb/internal/config"
	"basisarb/internal/domain"
	"basisarb/internal/report"
	"basisarb/internal/spread"
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

	engine, err := spread.NewEngine(strat.ThresholdBps, strat.Costs.Total(), g)
	if err != nil {
		log.Fatalf("failed to create spread engine: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pstore := store.NewParquetStore(cfg.Storage.DataDir)

	// All stored history.
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Now().UTC()

	bars, err := pstore.ReadPrices(ctx, g, start, end)
	if err != nil {
		log.Fatalf("reading prices failed: %v", err)
	}
	if len(bars) == 0 {
		log.Fatalf("no price data for %s; run collect first", g)
	}

	records, err := engine.Annotate(bars)
	if err != nil {
		log.Fatalf("spread annotation failed: %v", err)
	}

	if err := pstore.WriteSpreads(ctx, g, records); err != nil {
		log.Fatalf("writing spreads failed: %v", err)
	}

	csvPath := filepath.Join(cfg.Storage.ResultsDir, fmt.Sprintf("spreads_%s.csv", g))
	if err := store.WriteSpreadCSV(csvPath, records, g); err != nil {
		log.Fatalf("writing spread csv failed: %v", err)
	}

	stats := spread.Analyze(records)
	fmt.Print(report.SpreadSummary(g, stats))

	slog.Info("analysis complete",
		"bars", stats.TotalBars,
		"opportunities", stats.Opportunities,
		"csv", csvPath,
	)
}
