// Package store persists and retrieves the pipeline's artifacts: aligned
// price series and annotated spread series as Parquet, trade logs as CSV,
// and run history in SQLite.
package store

import (
	"context"
	"time"

	"basisarb/internal/domain"
)

// SeriesStore persists and retrieves aligned pair series, keyed by
// granularity.
type SeriesStore interface {
	// WritePrices persists a batch of aligned price bars, merging with any
	// bars already stored for the same timestamps.
	WritePrices(ctx context.Context, g domain.Granularity, bars []domain.PriceBar) error

	// ReadPrices returns stored price bars within [start, end] in ascending
	// timestamp order.
	ReadPrices(ctx context.Context, g domain.Granularity, start, end time.Time) ([]domain.PriceBar, error)

	// WriteSpreads persists an annotated spread series.
	WriteSpreads(ctx context.Context, g domain.Granularity, records []domain.SpreadRecord) error

	// ReadSpreads returns stored spread records within [start, end] in
	// ascending timestamp order.
	ReadSpreads(ctx context.Context, g domain.Granularity, start, end time.Time) ([]domain.SpreadRecord, error)
}

// Run is one completed simulation, summarized for the run history table.
type Run struct {
	ID           string
	Granularity  domain.Granularity
	StartedAt    time.Time
	TotalTrades  int
	WinRate      float64
	TotalPnL     float64
	SharpeRatio  float64
	FinalCapital float64
}

// RunStore records completed simulations and their trade logs.
type RunStore interface {
	// SaveRun inserts the run summary row.
	SaveRun(ctx context.Context, run Run) error

	// InsertTrades persists the trade log for a run.
	InsertTrades(ctx context.Context, runID string, trades []domain.Trade) error

	// ReadTrades returns the trade log for a run in entry-time order.
	ReadTrades(ctx context.Context, runID string) ([]domain.Trade, error)

	// ListRuns returns all recorded runs, most recent first.
	ListRuns(ctx context.Context) ([]Run, error)
}
