package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"basisarb/internal/domain"
)

// tradeLogHeader is the column order of an exported trade log.
var tradeLogHeader = []string{
	"entry_time",
	"exit_time",
	"signal",
	"entry_spread_bps",
	"exit_spread_bps",
	"spread_change_bps",
	"entry_tracking_price",
	"exit_tracking_price",
	"entry_spot_price",
	"exit_spot_price",
	"notional",
	"return_pct",
	"pnl",
	"holding_periods",
}

// WriteTradeLogCSV exports a trade log to path, creating parent directories
// as needed. Timestamps are RFC 3339 UTC.
func WriteTradeLogCSV(path string, trades []domain.Trade) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(tradeLogHeader); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			string(t.Signal),
			formatFloat(t.EntrySpreadBps),
			formatFloat(t.ExitSpreadBps),
			formatFloat(t.SpreadChangeBps),
			formatFloat(t.EntryTrackPrice),
			formatFloat(t.ExitTrackPrice),
			formatFloat(t.EntrySpotPrice),
			formatFloat(t.ExitSpotPrice),
			formatFloat(t.Notional),
			formatFloat(t.ReturnPct),
			formatFloat(t.PnL),
			strconv.Itoa(t.HoldingPeriods),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadTradeLogCSV reads a trade log previously written by WriteTradeLogCSV.
func ReadTradeLogCSV(path string) ([]domain.Trade, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	trades := make([]domain.Trade, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(tradeLogHeader) {
			return nil, fmt.Errorf("trade log row %d: %d columns, want %d", i+1, len(row), len(tradeLogHeader))
		}
		t := domain.Trade{Signal: domain.Signal(row[2])}
		if t.EntryTime, err = time.Parse(time.RFC3339, row[0]); err != nil {
			return nil, fmt.Errorf("trade log row %d: %w", i+1, err)
		}
		if t.ExitTime, err = time.Parse(time.RFC3339, row[1]); err != nil {
			return nil, fmt.Errorf("trade log row %d: %w", i+1, err)
		}
		floats := []*float64{
			&t.EntrySpreadBps, &t.ExitSpreadBps, &t.SpreadChangeBps,
			&t.EntryTrackPrice, &t.ExitTrackPrice, &t.EntrySpotPrice, &t.ExitSpotPrice,
			&t.Notional, &t.ReturnPct, &t.PnL,
		}
		for j, dst := range floats {
			if *dst, err = strconv.ParseFloat(row[3+j], 64); err != nil {
				return nil, fmt.Errorf("trade log row %d col %s: %w", i+1, tradeLogHeader[3+j], err)
			}
		}
		if t.HoldingPeriods, err = strconv.Atoi(row[13]); err != nil {
			return nil, fmt.Errorf("trade log row %d: %w", i+1, err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// WritePriceCSV exports a merged pair series with one close per leg.
func WritePriceCSV(path string, bars []domain.PriceBar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "etf_close", "btc_close"}); err != nil {
		return err
	}
	for _, b := range bars {
		row := []string{
			b.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(b.TrackClose),
			formatFloat(b.SpotClose),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteSpreadCSV exports an annotated spread series, intraday columns
// included only when the series carries them.
func WriteSpreadCSV(path string, records []domain.SpreadRecord, g domain.Granularity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	intraday := g == domain.GranularityIntraday
	header := []string{"timestamp", "etf_close", "btc_close", "etf_btc_equivalent", "spread_bps", "costs_bps", "net_spread_bps", "signal"}
	if intraday {
		header = append(header, "hour", "minute", "session")
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(rec.TrackClose),
			formatFloat(rec.SpotClose),
			formatFloat(rec.Normalized),
			formatFloat(rec.RawSpreadBps),
			formatFloat(rec.CostBps),
			formatFloat(rec.NetSpreadBps),
			string(rec.Signal),
		}
		if intraday {
			row = append(row, strconv.Itoa(rec.Hour), strconv.Itoa(rec.Minute), string(rec.Session))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
