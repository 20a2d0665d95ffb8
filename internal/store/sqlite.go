package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"basisarb/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	granularity   TEXT NOT NULL,
	started_at    INTEGER NOT NULL,
	total_trades  INTEGER NOT NULL,
	win_rate      REAL NOT NULL,
	total_pnl     REAL NOT NULL,
	sharpe_ratio  REAL NOT NULL,
	final_capital REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	run_id             TEXT NOT NULL REFERENCES runs(id),
	entry_time         INTEGER NOT NULL,
	exit_time          INTEGER NOT NULL,
	signal             TEXT NOT NULL,
	entry_spread_bps   REAL NOT NULL,
	exit_spread_bps    REAL NOT NULL,
	spread_change_bps  REAL NOT NULL,
	entry_track_price  REAL NOT NULL,
	exit_track_price   REAL NOT NULL,
	entry_spot_price   REAL NOT NULL,
	exit_spot_price    REAL NOT NULL,
	notional           REAL NOT NULL,
	return_pct         REAL NOT NULL,
	pnl                REAL NOT NULL,
	holding_periods    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, entry_time);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and applies
// the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts the run summary row.
func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, granularity, started_at, total_trades, win_rate, total_pnl, sharpe_ratio, final_capital)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		string(run.Granularity),
		run.StartedAt.UnixMilli(),
		run.TotalTrades,
		run.WinRate,
		run.TotalPnL,
		run.SharpeRatio,
		run.FinalCapital,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

// InsertTrades persists the trade log for a run in a single transaction.
func (s *SQLiteStore) InsertTrades(ctx context.Context, runID string, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (
			run_id, entry_time, exit_time, signal,
			entry_spread_bps, exit_spread_bps, spread_change_bps,
			entry_track_price, exit_track_price, entry_spot_price, exit_spot_price,
			notional, return_pct, pnl, holding_periods
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx,
			runID,
			t.EntryTime.UnixMilli(),
			t.ExitTime.UnixMilli(),
			string(t.Signal),
			t.EntrySpreadBps,
			t.ExitSpreadBps,
			t.SpreadChangeBps,
			t.EntryTrackPrice,
			t.ExitTrackPrice,
			t.EntrySpotPrice,
			t.ExitSpotPrice,
			t.Notional,
			t.ReturnPct,
			t.PnL,
			t.HoldingPeriods,
		); err != nil {
			return fmt.Errorf("inserting trade: %w", err)
		}
	}
	return tx.Commit()
}

// ReadTrades returns the trade log for a run in entry-time order.
func (s *SQLiteStore) ReadTrades(ctx context.Context, runID string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_time, exit_time, signal,
		       entry_spread_bps, exit_spread_bps, spread_change_bps,
		       entry_track_price, exit_track_price, entry_spot_price, exit_spot_price,
		       notional, return_pct, pnl, holding_periods
		FROM trades WHERE run_id = ? ORDER BY entry_time`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var entryMs, exitMs int64
		var signal string
		if err := rows.Scan(
			&entryMs, &exitMs, &signal,
			&t.EntrySpreadBps, &t.ExitSpreadBps, &t.SpreadChangeBps,
			&t.EntryTrackPrice, &t.ExitTrackPrice, &t.EntrySpotPrice, &t.ExitSpotPrice,
			&t.Notional, &t.ReturnPct, &t.PnL, &t.HoldingPeriods,
		); err != nil {
			return nil, err
		}
		t.EntryTime = time.UnixMilli(entryMs).UTC()
		t.ExitTime = time.UnixMilli(exitMs).UTC()
		t.Signal = domain.Signal(signal)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListRuns returns all recorded runs, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, granularity, started_at, total_trades, win_rate, total_pnl, sharpe_ratio, final_capital
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedMs int64
		var g string
		if err := rows.Scan(&r.ID, &g, &startedMs, &r.TotalTrades, &r.WinRate, &r.TotalPnL, &r.SharpeRatio, &r.FinalCapital); err != nil {
			return nil, err
		}
		r.Granularity = domain.Granularity(g)
		r.StartedAt = time.UnixMilli(startedMs).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
