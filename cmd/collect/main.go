package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"basisarb/internal/config"
	"basisarb/internal/domain"
	"basisarb/internal/gather"
	"basisarb/internal/store"
)

func main() {
	granularity := flag.String("granularity", "daily", "bar granularity: daily or intraday")
	days := flag.Int("days", 0, "lookback window in days (0 = config default)")
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

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/basisarb-collect-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	w := io.MultiWriter(os.Stdout, logFile)
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	lookback := cfg.Collect.Days
	if *days > 0 {
		lookback = *days
	}

	track := gather.NewStockSource(cfg.Alpaca, cfg.Collect.ETFTicker, g)

	var spot gather.BarSource
	if cfg.Collect.BTCSource == "cryptocompare" {
		spot = gather.NewCryptoCompareSource(cfg.CryptoCompare, g)
	} else {
		spot = gather.NewCryptoSource(cfg.Alpaca, "BTC/USD", g)
	}

	collector, err := gather.NewPairCollector(track, spot, g)
	if err != nil {
		log.Fatalf("failed to create collector: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	now := time.Now().UTC()
	r := gather.DateRange{Start: now.AddDate(0, 0, -lookback), End: now}

	slog.Info("collecting pair series",
		"etf", cfg.Collect.ETFTicker,
		"btcSource", spot.Name(),
		"granularity", g,
		"start", r.Start.Format("2006-01-02"),
		"end", r.End.Format("2006-01-02"),
	)

	bars, err := collector.Collect(ctx, r)
	if err != nil {
		log.Fatalf("collect failed: %v", err)
	}
	if len(bars) == 0 {
		log.Fatal("no overlapping bars collected")
	}

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	if err := pstore.WritePrices(ctx, g, bars); err != nil {
		log.Fatalf("writing prices failed: %v", err)
	}

	csvPath := filepath.Join(cfg.Storage.ResultsDir, fmt.Sprintf("merged_%s.csv", g))
	if err := store.WritePriceCSV(csvPath, bars); err != nil {
		log.Fatalf("writing merged csv failed: %v", err)
	}

	slog.Info("collection complete", "bars", len(bars), "dataDir", cfg.Storage.DataDir, "csv", csvPath)
}
