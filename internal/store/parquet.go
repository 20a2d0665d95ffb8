package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"basisarb/internal/domain"
)

// Compile-time interface check.
var _ SeriesStore = (*ParquetStore)(nil)

// ParquetStore implements SeriesStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// PriceRecord is the Parquet schema for an aligned pair bar.
type PriceRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	ETFOpen   float64 `parquet:"etf_open"`
	ETFHigh   float64 `parquet:"etf_high"`
	ETFLow    float64 `parquet:"etf_low"`
	ETFClose  float64 `parquet:"etf_close"`
	ETFVolume float64 `parquet:"etf_volume"`
	BTCOpen   float64 `parquet:"btc_open"`
	BTCHigh   float64 `parquet:"btc_high"`
	BTCLow    float64 `parquet:"btc_low"`
	BTCClose  float64 `parquet:"btc_close"`
	BTCVolume float64 `parquet:"btc_volume"`
}

// SpreadRow is the Parquet schema for an annotated spread observation. The
// column names match the exported spread-series contract; readers of the
// CSV export see the same names.
type SpreadRow struct {
	Timestamp    int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	ETFClose     float64 `parquet:"etf_close"`
	BTCClose     float64 `parquet:"btc_close"`
	Normalized   float64 `parquet:"etf_btc_equivalent"`
	RawSpreadBps float64 `parquet:"spread_bps"`
	CostBps      float64 `parquet:"costs_bps"`
	NetSpreadBps float64 `parquet:"net_spread_bps"`
	Signal       string  `parquet:"signal"`
	Hour         int32   `parquet:"hour"`
	Minute       int32   `parquet:"minute"`
	Session      string  `parquet:"session"`
}

// ---------------------------------------------------------------------------
// SeriesStore implementation
// ---------------------------------------------------------------------------

// WritePrices writes aligned bars to Parquet files split by year at:
//
//	<DataDir>/<granularity>/prices/<YYYY>.parquet
//
// Writes merge with existing rows, deduplicating by timestamp with new rows
// winning, so re-collection is idempotent.
func (s *ParquetStore) WritePrices(_ context.Context, g domain.Granularity, bars []domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	groups := make(map[int][]PriceRecord)
	for _, b := range bars {
		y := b.Timestamp.UTC().Year()
		groups[y] = append(groups[y], PriceRecord{
			Timestamp: b.Timestamp.UnixMilli(),
			ETFOpen:   b.TrackOpen,
			ETFHigh:   b.TrackHigh,
			ETFLow:    b.TrackLow,
			ETFClose:  b.TrackClose,
			ETFVolume: b.TrackVolume,
			BTCOpen:   b.SpotOpen,
			BTCHigh:   b.SpotHigh,
			BTCLow:    b.SpotLow,
			BTCClose:  b.SpotClose,
			BTCVolume: b.SpotVolume,
		})
	}

	for year, records := range groups {
		path := s.seriesPath(g, "prices", year)
		existing, err := readSeriesFile[PriceRecord](path)
		if err != nil {
			return fmt.Errorf("merging prices %s/%d: %w", g, year, err)
		}
		merged := mergeByTimestamp(existing, records, func(r PriceRecord) int64 { return r.Timestamp })
		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing prices %s/%d: %w", g, year, err)
		}
	}
	return nil
}

// ReadPrices reads aligned bars within [start, end].
func (s *ParquetStore) ReadPrices(_ context.Context, g domain.Granularity, start, end time.Time) ([]domain.PriceBar, error) {
	var bars []domain.PriceBar
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		records, err := readSeriesFile[PriceRecord](s.seriesPath(g, "prices", year))
		if err != nil {
			return nil, fmt.Errorf("reading prices %s/%d: %w", g, year, err)
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.PriceBar{
				Timestamp:   ts,
				TrackOpen:   r.ETFOpen,
				TrackHigh:   r.ETFHigh,
				TrackLow:    r.ETFLow,
				TrackClose:  r.ETFClose,
				TrackVolume: r.ETFVolume,
				SpotOpen:    r.BTCOpen,
				SpotHigh:    r.BTCHigh,
				SpotLow:     r.BTCLow,
				SpotClose:   r.BTCClose,
				SpotVolume:  r.BTCVolume,
			})
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// WriteSpreads writes an annotated spread series, one file per year under
// <DataDir>/<granularity>/spreads/.
func (s *ParquetStore) WriteSpreads(_ context.Context, g domain.Granularity, records []domain.SpreadRecord) error {
	if len(records) == 0 {
		return nil
	}

	groups := make(map[int][]SpreadRow)
	for _, r := range records {
		y := r.Timestamp.UTC().Year()
		groups[y] = append(groups[y], SpreadRow{
			Timestamp:    r.Timestamp.UnixMilli(),
			ETFClose:     r.TrackClose,
			BTCClose:     r.SpotClose,
			Normalized:   r.Normalized,
			RawSpreadBps: r.RawSpreadBps,
			CostBps:      r.CostBps,
			NetSpreadBps: r.NetSpreadBps,
			Signal:       string(r.Signal),
			Hour:         int32(r.Hour),
			Minute:       int32(r.Minute),
			Session:      string(r.Session),
		})
	}

	for year, rows := range groups {
		path := s.seriesPath(g, "spreads", year)
		existing, err := readSeriesFile[SpreadRow](path)
		if err != nil {
			return fmt.Errorf("merging spreads %s/%d: %w", g, year, err)
		}
		merged := mergeByTimestamp(existing, rows, func(r SpreadRow) int64 { return r.Timestamp })
		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing spreads %s/%d: %w", g, year, err)
		}
	}
	return nil
}

// ReadSpreads reads annotated spread records within [start, end].
func (s *ParquetStore) ReadSpreads(_ context.Context, g domain.Granularity, start, end time.Time) ([]domain.SpreadRecord, error) {
	var out []domain.SpreadRecord
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		rows, err := readSeriesFile[SpreadRow](s.seriesPath(g, "spreads", year))
		if err != nil {
			return nil, fmt.Errorf("reading spreads %s/%d: %w", g, year, err)
		}
		for _, r := range rows {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			out = append(out, domain.SpreadRecord{
				PriceBar: domain.PriceBar{
					Timestamp:  ts,
					TrackClose: r.ETFClose,
					SpotClose:  r.BTCClose,
				},
				Normalized:   r.Normalized,
				RawSpreadBps: r.RawSpreadBps,
				CostBps:      r.CostBps,
				NetSpreadBps: r.NetSpreadBps,
				Signal:       domain.Signal(r.Signal),
				Hour:         int(r.Hour),
				Minute:       int(r.Minute),
				Session:      domain.Session(r.Session),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// seriesPath returns the Parquet path for one year of a series.
// Layout: <dataDir>/<granularity>/<kind>/<YYYY>.parquet
func (s *ParquetStore) seriesPath(g domain.Granularity, kind string, year int) string {
	return filepath.Join(s.DataDir, string(g), kind, fmt.Sprintf("%d.parquet", year))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

// readSeriesFile reads one year of a series. A year with no file yet is
// empty, not an error; anything else (corruption, permissions) is surfaced
// so a damaged store never reads back as a silently truncated series.
func readSeriesFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return parquet.ReadFile[T](path)
}

// mergeByTimestamp deduplicates records by timestamp, preferring incoming
// over existing. Results are sorted by timestamp.
func mergeByTimestamp[T any](existing, incoming []T, ts func(T) int64) []T {
	seen := make(map[int64]T, len(existing)+len(incoming))
	for _, r := range existing {
		seen[ts(r)] = r
	}
	for _, r := range incoming {
		seen[ts(r)] = r
	}

	merged := make([]T, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return ts(merged[i]) < ts(merged[j]) })
	return merged
}
