package backtest

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"basisarb/internal/domain"
	"basisarb/internal/spread"
)

// RunState is the only mutable state of a run: running capital and the
// single open-position slot. The simulator owns it exclusively for the
// duration of one run; Run allocates a fresh RunState every call, so
// parameter sweeps never share state.
type RunState struct {
	InitialCapital float64
	Capital        float64
	Open           *domain.Position
}

// Result bundles a completed run: the chronological trade log, the summary
// metrics, and the final run state.
type Result struct {
	Trades  []domain.Trade
	Metrics Metrics
	State   RunState
}

// Simulator replays an annotated series through the position lifecycle
// state machine: at most one open position, exit conditions checked every
// bar in fixed order, and a forced exit at the final bar. It is stateless
// between runs.
type Simulator struct {
	profile Profile
	sink    EventSink
	log     *slog.Logger
}

// NewSimulator validates the profile and creates a Simulator. A nil sink
// discards events.
func NewSimulator(p Profile, sink EventSink) (*Simulator, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Simulator{
		profile: p,
		sink:    sink,
		log:     slog.Default().With("component", "simulator", "granularity", p.Granularity),
	}, nil
}

// Run simulates the position lifecycle over records, which must be in
// ascending timestamp order. An empty series is a valid run: zero trades
// and identity metrics. A malformed bar aborts the run before any trade is
// produced; bars are never silently skipped, since the series index drives
// holding-period accounting.
func (s *Simulator) Run(records []domain.SpreadRecord) (*Result, error) {
	if err := s.validateSeries(records); err != nil {
		return nil, err
	}

	state := RunState{
		InitialCapital: s.profile.InitialCapital,
		Capital:        s.profile.InitialCapital,
	}
	var trades []domain.Trade

	for i, rec := range records {
		// Exit check runs first: a position closed on this bar frees the
		// slot for a same-bar re-entry below.
		if state.Open != nil {
			if reason, ok := s.shouldExit(state.Open, rec, i); ok {
				trade := s.closePosition(&state, rec, i)
				trades = append(trades, trade)
				s.sink.TradeClosed(trade, reason)
			}
		}

		// Entry signals are ignored while a position is open: no averaging,
		// no stacking.
		if state.Open == nil && rec.Signal != domain.SignalHold {
			pos := s.openPosition(&state, rec, i)
			s.sink.TradeOpened(*pos)
		}
	}

	// Terminal transition: a position still open after the last bar is
	// closed at that bar's prices.
	if state.Open != nil {
		last := len(records) - 1
		trade := s.closePosition(&state, records[last], last)
		trades = append(trades, trade)
		s.sink.TradeClosed(trade, ExitEndOfData)
	}

	metrics := ComputeMetrics(trades, state, s.profile.Annualization())
	s.sink.RunCompleted(metrics)

	return &Result{Trades: trades, Metrics: metrics, State: state}, nil
}

// openPosition commits a capital fraction at the current capital snapshot.
// The notional is fixed for the position's life.
func (s *Simulator) openPosition(state *RunState, rec domain.SpreadRecord, i int) *domain.Position {
	pos := &domain.Position{
		EntryIndex:      i,
		EntryTime:       rec.Timestamp,
		Signal:          rec.Signal,
		EntrySpreadBps:  rec.NetSpreadBps,
		EntryTrackPrice: rec.TrackClose,
		EntrySpotPrice:  rec.SpotClose,
		Notional:        state.Capital * s.profile.PositionFraction,
	}
	state.Open = pos
	return pos
}

// closePosition realizes PnL at the current bar, credits capital, and
// returns the immutable trade record.
func (s *Simulator) closePosition(state *RunState, rec domain.SpreadRecord, i int) domain.Trade {
	pos := state.Open

	trackReturn := (rec.TrackClose - pos.EntryTrackPrice) / pos.EntryTrackPrice
	spotReturn := (rec.SpotClose - pos.EntrySpotPrice) / pos.EntrySpotPrice

	// The pair trade is market neutral: profit comes only from the two
	// legs' relative return, in the direction the signal bet on.
	var strategyReturn float64
	switch pos.Signal {
	case domain.SignalLongSpotShortTrack:
		strategyReturn = spotReturn - trackReturn
	case domain.SignalShortSpotLongTrack:
		strategyReturn = trackReturn - spotReturn
	}

	pnl := pos.Notional * strategyReturn

	trade := domain.Trade{
		EntryTime:       pos.EntryTime,
		ExitTime:        rec.Timestamp,
		Signal:          pos.Signal,
		EntrySpreadBps:  pos.EntrySpreadBps,
		ExitSpreadBps:   rec.NetSpreadBps,
		SpreadChangeBps: pos.EntrySpreadBps - rec.NetSpreadBps,
		EntryTrackPrice: pos.EntryTrackPrice,
		ExitTrackPrice:  rec.TrackClose,
		EntrySpotPrice:  pos.EntrySpotPrice,
		ExitSpotPrice:   rec.SpotClose,
		Notional:        pos.Notional,
		ReturnPct:       strategyReturn * 100,
		PnL:             pnl,
		HoldingPeriods:  i - pos.EntryIndex,
	}

	state.Capital += pnl
	state.Open = nil
	return trade
}

// shouldExit evaluates the exit policy for the open position at bar i. The
// first true condition wins; the order is fixed for reproducibility.
func (s *Simulator) shouldExit(pos *domain.Position, rec domain.SpreadRecord, i int) (ExitReason, bool) {
	// 1. Convergence: the spread came back toward zero (favorable exit).
	if math.Abs(rec.NetSpreadBps) < s.profile.ConvergenceBps {
		return ExitConvergence, true
	}

	// 2. Time stop.
	if i-pos.EntryIndex >= s.profile.MaxHolding {
		return ExitTimeStop, true
	}

	// 3. Adverse reversal: the spread widened further in the direction
	// that hurts the open signal.
	change := pos.EntrySpreadBps - rec.NetSpreadBps
	switch pos.Signal {
	case domain.SignalLongSpotShortTrack:
		if change < -s.profile.ReversalStopBps {
			return ExitReversal, true
		}
	case domain.SignalShortSpotLongTrack:
		if change > s.profile.ReversalStopBps {
			return ExitReversal, true
		}
	}

	// 4. End-of-session cutoff: no overnight risk on intraday runs.
	if s.profile.EnforceCutoff {
		if rec.Hour > s.profile.CutoffHour ||
			(rec.Hour == s.profile.CutoffHour && rec.Minute >= s.profile.CutoffMinute) {
			return ExitSessionClose, true
		}
	}

	return "", false
}

// validateSeries rejects a malformed series up front so a run is never
// partially simulated. The series must also agree with the profile it is
// replayed under: the stored signals must match what the profile's entry
// threshold would classify, and a series annotated with a different cost
// assumption is rejected rather than silently re-priced.
func (s *Simulator) validateSeries(records []domain.SpreadRecord) error {
	var prev time.Time
	for i, rec := range records {
		if rec.TrackClose <= 0 || rec.SpotClose <= 0 {
			return fmt.Errorf("%w: non-positive price at bar %d", spread.ErrInvalidInput, i)
		}
		if math.IsNaN(rec.NetSpreadBps) || math.IsInf(rec.NetSpreadBps, 0) {
			return fmt.Errorf("%w: non-finite net spread at bar %d", spread.ErrInvalidInput, i)
		}
		if !rec.Signal.Valid() {
			return fmt.Errorf("%w: unknown signal %q at bar %d", spread.ErrInvalidInput, rec.Signal, i)
		}
		if want := spread.ClassifySignal(rec.NetSpreadBps, s.profile.ThresholdBps); rec.Signal != want {
			return fmt.Errorf("%w: signal %q at bar %d disagrees with entry threshold %.1f bps (want %q)",
				spread.ErrInvalidInput, rec.Signal, i, s.profile.ThresholdBps, want)
		}
		// Records that carry their cost annotation must have been built
		// with the same cost the profile assumes.
		if rec.CostBps != 0 && rec.CostBps != s.profile.CostBps {
			return fmt.Errorf("%w: cost %.2f bps at bar %d does not match profile cost %.2f bps",
				spread.ErrInvalidInput, rec.CostBps, i, s.profile.CostBps)
		}
		if i > 0 && rec.Timestamp.Before(prev) {
			return fmt.Errorf("%w: timestamps out of order at bar %d", spread.ErrInvalidInput, i)
		}
		prev = rec.Timestamp
	}
	return nil
}
