package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"basisarb/internal/domain"
	"basisarb/internal/spread"
)

// recordingSink captures every event a run emits, in order.
type recordingSink struct {
	opened  []domain.Position
	closed  []domain.Trade
	reasons []ExitReason
	summary []Metrics
}

func (s *recordingSink) TradeOpened(pos domain.Position) { s.opened = append(s.opened, pos) }
func (s *recordingSink) TradeClosed(t domain.Trade, r ExitReason) {
	s.closed = append(s.closed, t)
	s.reasons = append(s.reasons, r)
}
func (s *recordingSink) RunCompleted(m Metrics) { s.summary = append(s.summary, m) }

// scenarioProfile is the daily rule shape with the thresholds the scenario
// tests are written against.
func scenarioProfile() Profile {
	p := DailyProfile()
	p.ThresholdBps = 20
	p.ConvergenceBps = 5
	p.MaxHolding = 4
	p.ReversalStopBps = 20
	return p
}

// series builds a spread series with constant prices and one bar per day,
// classifying each net spread against threshold.
func series(nets []float64, threshold float64) []domain.SpreadRecord {
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	out := make([]domain.SpreadRecord, len(nets))
	for i, n := range nets {
		out[i] = domain.SpreadRecord{
			PriceBar: domain.PriceBar{
				Timestamp:  base.AddDate(0, 0, i),
				TrackClose: 60,
				SpotClose:  100000,
			},
			NetSpreadBps: n,
			Signal:       spread.ClassifySignal(n, threshold),
		}
	}
	return out
}

func mustSimulator(t *testing.T, p Profile, sink EventSink) *Simulator {
	t.Helper()
	sim, err := NewSimulator(p, sink)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	return sim
}

func TestConvergenceExit(t *testing.T) {
	sink := &recordingSink{}
	sim := mustSimulator(t, scenarioProfile(), sink)

	res, err := sim.Run(series([]float64{30, 25, 2, -60, 0}, 20))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) == 0 {
		t.Fatal("Run produced no trades")
	}

	first := res.Trades[0]
	if first.Signal != domain.SignalLongSpotShortTrack {
		t.Errorf("first trade signal = %q, want LONG_SPOT_SHORT_TRACK", first.Signal)
	}
	if first.EntrySpreadBps != 30 {
		t.Errorf("entry spread = %v, want 30", first.EntrySpreadBps)
	}
	if first.HoldingPeriods != 2 {
		t.Errorf("holding periods = %d, want 2 (entry bar 0, exit bar 2)", first.HoldingPeriods)
	}
	if first.ExitSpreadBps != 2 {
		t.Errorf("exit spread = %v, want 2", first.ExitSpreadBps)
	}
	if sink.reasons[0] != ExitConvergence {
		t.Errorf("exit reason = %q, want %q", sink.reasons[0], ExitConvergence)
	}

	// Bar 3 (-60) opens the mirror trade, which converges on bar 4.
	if len(res.Trades) != 2 {
		t.Fatalf("total trades = %d, want 2", len(res.Trades))
	}
	if res.Trades[1].Signal != domain.SignalShortSpotLongTrack {
		t.Errorf("second trade signal = %q, want SHORT_SPOT_LONG_TRACK", res.Trades[1].Signal)
	}
}

func TestTimeStopExit(t *testing.T) {
	sink := &recordingSink{}
	sim := mustSimulator(t, scenarioProfile(), sink)

	// Spread stuck above threshold: convergence never fires, reversal never
	// fires, so the time stop closes the position at entry+4 regardless of
	// spread value.
	res, err := sim.Run(series([]float64{25, 25, 25, 25, 25}, 20))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) == 0 {
		t.Fatal("Run produced no trades")
	}

	first := res.Trades[0]
	if first.HoldingPeriods != 4 {
		t.Errorf("holding periods = %d, want 4", first.HoldingPeriods)
	}
	if sink.reasons[0] != ExitTimeStop {
		t.Errorf("exit reason = %q, want %q", sink.reasons[0], ExitTimeStop)
	}
}

func TestReversalStopExit(t *testing.T) {
	sink := &recordingSink{}
	sim := mustSimulator(t, scenarioProfile(), sink)

	// Long the spot leg at +25; the spread then widens to +55, a reversal
	// of 30 bps against the position with a 20 bps stop.
	res, err := sim.Run(series([]float64{25, 55, 55, 55, 55, 55}, 20))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) == 0 {
		t.Fatal("Run produced no trades")
	}

	first := res.Trades[0]
	if first.HoldingPeriods != 1 {
		t.Errorf("holding periods = %d, want 1 (immediate stop)", first.HoldingPeriods)
	}
	if first.SpreadChangeBps != -30 {
		t.Errorf("spread change = %v, want -30", first.SpreadChangeBps)
	}
	if sink.reasons[0] != ExitReversal {
		t.Errorf("exit reason = %q, want %q", sink.reasons[0], ExitReversal)
	}
}

func TestReversalStopShortDirection(t *testing.T) {
	sink := &recordingSink{}
	sim := mustSimulator(t, scenarioProfile(), sink)

	// Short side: entry at -25, spread widens to -55. change = -25 - (-55)
	// = +30 > stop.
	res, err := sim.Run(series([]float64{-25, -55, -55, -55, -55, -55}, 20))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Trades[0].Signal != domain.SignalShortSpotLongTrack {
		t.Errorf("signal = %q, want SHORT_SPOT_LONG_TRACK", res.Trades[0].Signal)
	}
	if sink.reasons[0] != ExitReversal {
		t.Errorf("exit reason = %q, want %q", sink.reasons[0], ExitReversal)
	}
}

func TestFinalBarForcedExit(t *testing.T) {
	sink := &recordingSink{}
	sim := mustSimulator(t, scenarioProfile(), sink)

	// Single-bar series: entry and forced exit on the same bar.
	res, err := sim.Run(series([]float64{25}, 20))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.Trades))
	}

	trade := res.Trades[0]
	if trade.HoldingPeriods != 0 {
		t.Errorf("holding periods = %d, want 0", trade.HoldingPeriods)
	}
	if !trade.EntryTime.Equal(trade.ExitTime) {
		t.Errorf("entry %v != exit %v for same-bar forced exit", trade.EntryTime, trade.ExitTime)
	}
	if trade.EntryTrackPrice != trade.ExitTrackPrice || trade.EntrySpotPrice != trade.ExitSpotPrice {
		t.Error("forced exit must use the final bar's own prices")
	}
	if trade.PnL != 0 {
		t.Errorf("same-bar exit PnL = %v, want 0", trade.PnL)
	}
	if sink.reasons[0] != ExitEndOfData {
		t.Errorf("exit reason = %q, want %q", sink.reasons[0], ExitEndOfData)
	}
	if res.State.Open != nil {
		t.Error("run finished with an open position")
	}
}

func TestSessionCutoffExit(t *testing.T) {
	p := IntradayProfile()
	sink := &recordingSink{}
	sim := mustSimulator(t, p, sink)

	base := time.Date(2025, 6, 2, 19, 30, 0, 0, time.UTC) // 15:30 New York
	mkRec := func(i int, net float64, hour, minute int) domain.SpreadRecord {
		return domain.SpreadRecord{
			PriceBar: domain.PriceBar{
				Timestamp:  base.Add(time.Duration(i) * 15 * time.Minute),
				TrackClose: 60,
				SpotClose:  100000,
			},
			NetSpreadBps: net,
			Signal:       spread.ClassifySignal(net, p.ThresholdBps),
			Hour:         hour,
			Minute:       minute,
			Session:      domain.SessionClose,
		}
	}

	// Entry at 15:30; the 15:45 bar is at the cutoff and must force the
	// exit even though the spread has not moved.
	records := []domain.SpreadRecord{
		mkRec(0, 25, 15, 30),
		mkRec(1, 25, 15, 45),
		mkRec(2, 25, 16, 0),
	}

	res, err := sim.Run(records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) == 0 {
		t.Fatal("Run produced no trades")
	}
	if res.Trades[0].HoldingPeriods != 1 {
		t.Errorf("holding periods = %d, want 1 (cutoff at 15:45)", res.Trades[0].HoldingPeriods)
	}
	if sink.reasons[0] != ExitSessionClose {
		t.Errorf("exit reason = %q, want %q", sink.reasons[0], ExitSessionClose)
	}
}

func TestDirectionalReturns(t *testing.T) {
	p := scenarioProfile()
	sim := mustSimulator(t, p, nil)

	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	records := []domain.SpreadRecord{
		{
			PriceBar:     domain.PriceBar{Timestamp: base, TrackClose: 60, SpotClose: 100000},
			NetSpreadBps: 30,
			Signal:       domain.SignalLongSpotShortTrack,
		},
		{
			// Spot rallies 1%, the tracker is flat: the long-spot leg earns
			// the full move.
			PriceBar:     domain.PriceBar{Timestamp: base.AddDate(0, 0, 1), TrackClose: 60, SpotClose: 101000},
			NetSpreadBps: 2,
			Signal:       domain.SignalHold,
		},
	}

	res, err := sim.Run(records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.Trades))
	}

	trade := res.Trades[0]
	wantNotional := p.InitialCapital * p.PositionFraction
	if trade.Notional != wantNotional {
		t.Errorf("notional = %v, want %v", trade.Notional, wantNotional)
	}
	if math.Abs(trade.ReturnPct-1.0) > 1e-9 {
		t.Errorf("return = %v%%, want 1%%", trade.ReturnPct)
	}
	wantPnL := wantNotional * 0.01
	if math.Abs(trade.PnL-wantPnL) > 1e-6 {
		t.Errorf("pnl = %v, want %v", trade.PnL, wantPnL)
	}
	if math.Abs(res.State.Capital-(p.InitialCapital+wantPnL)) > 1e-6 {
		t.Errorf("capital = %v, want %v", res.State.Capital, p.InitialCapital+wantPnL)
	}
}

func TestShortSideReturns(t *testing.T) {
	p := scenarioProfile()
	sim := mustSimulator(t, p, nil)

	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	records := []domain.SpreadRecord{
		{
			PriceBar:     domain.PriceBar{Timestamp: base, TrackClose: 60, SpotClose: 100000},
			NetSpreadBps: -30,
			Signal:       domain.SignalShortSpotLongTrack,
		},
		{
			// Tracker rallies 1%, spot flat: the long-tracker leg earns it.
			PriceBar:     domain.PriceBar{Timestamp: base.AddDate(0, 0, 1), TrackClose: 60.6, SpotClose: 100000},
			NetSpreadBps: 0,
			Signal:       domain.SignalHold,
		},
	}

	res, err := sim.Run(records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if math.Abs(res.Trades[0].ReturnPct-1.0) > 1e-9 {
		t.Errorf("return = %v%%, want 1%%", res.Trades[0].ReturnPct)
	}
}

func TestSinglePositionInvariant(t *testing.T) {
	sink := &recordingSink{}
	sim := mustSimulator(t, scenarioProfile(), sink)

	res, err := sim.Run(series([]float64{30, 25, 2, 30, 25, 2, -40, -2, 25, 25}, 20))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sink.opened) != len(sink.closed) {
		t.Errorf("opened %d positions but closed %d", len(sink.opened), len(sink.closed))
	}
	if len(sink.closed) != len(res.Trades) {
		t.Errorf("close events = %d, trade log = %d", len(sink.closed), len(res.Trades))
	}

	// The trade log is in chronological exit order and entries never
	// overlap: each entry is at or after the previous exit.
	for i := 1; i < len(res.Trades); i++ {
		if res.Trades[i].ExitTime.Before(res.Trades[i-1].ExitTime) {
			t.Errorf("trade %d exits before trade %d", i, i-1)
		}
		if res.Trades[i].EntryTime.Before(res.Trades[i-1].ExitTime) {
			t.Errorf("trade %d entered before trade %d exited", i, i-1)
		}
	}
}

func TestCapitalConservation(t *testing.T) {
	sim := mustSimulator(t, scenarioProfile(), nil)

	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	nets := []float64{30, 28, 2, -35, -40, -1, 25, 60, 25, 2}
	records := make([]domain.SpreadRecord, len(nets))
	for i, n := range nets {
		// Vary both legs so trades carry real PnL.
		records[i] = domain.SpreadRecord{
			PriceBar: domain.PriceBar{
				Timestamp:  base.AddDate(0, 0, i),
				TrackClose: 60 + float64(i)*0.3,
				SpotClose:  100000 + float64(i*i)*150,
			},
			NetSpreadBps: n,
			Signal:       spread.ClassifySignal(n, 20),
		}
	}

	res, err := sim.Run(records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) == 0 {
		t.Fatal("expected trades from this series")
	}

	// Replay the capital arithmetic in the same order the simulator applied
	// it: the result must match exactly, not approximately.
	capital := res.State.InitialCapital
	for _, tr := range res.Trades {
		capital += tr.PnL
	}
	if capital != res.State.Capital {
		t.Errorf("final capital = %v, want exactly %v", res.State.Capital, capital)
	}
	if res.Metrics.FinalCapital != res.State.Capital {
		t.Errorf("metrics FinalCapital = %v, want %v", res.Metrics.FinalCapital, res.State.Capital)
	}
}

func TestEmptySeriesRun(t *testing.T) {
	p := scenarioProfile()
	sim := mustSimulator(t, p, nil)

	res, err := sim.Run(nil)
	if err != nil {
		t.Fatalf("Run(nil) returned error: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Errorf("trades = %d, want 0", len(res.Trades))
	}
	if res.Metrics.TotalTrades != 0 || res.Metrics.WinRate != 0 || res.Metrics.SharpeRatio != 0 {
		t.Errorf("metrics = %+v, want identity values", res.Metrics)
	}
	if res.Metrics.FinalCapital != p.InitialCapital {
		t.Errorf("FinalCapital = %v, want %v", res.Metrics.FinalCapital, p.InitialCapital)
	}
}

func TestMalformedBarAbortsRun(t *testing.T) {
	sim := mustSimulator(t, scenarioProfile(), nil)
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	good := func(i int, net float64) domain.SpreadRecord {
		return domain.SpreadRecord{
			PriceBar:     domain.PriceBar{Timestamp: base.AddDate(0, 0, i), TrackClose: 60, SpotClose: 100000},
			NetSpreadBps: net,
			Signal:       spread.ClassifySignal(net, 20),
		}
	}

	tests := []struct {
		name    string
		records []domain.SpreadRecord
	}{
		{"nan spread", func() []domain.SpreadRecord {
			r := []domain.SpreadRecord{good(0, 30), good(1, 25)}
			r[1].NetSpreadBps = math.NaN()
			return r
		}()},
		{"zero price", func() []domain.SpreadRecord {
			r := []domain.SpreadRecord{good(0, 30), good(1, 25)}
			r[1].SpotClose = 0
			return r
		}()},
		{"unknown signal", func() []domain.SpreadRecord {
			r := []domain.SpreadRecord{good(0, 30)}
			r[0].Signal = "BUY"
			return r
		}()},
		{"out of order", []domain.SpreadRecord{good(3, 30), good(1, 25)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := sim.Run(tt.records)
			if !errors.Is(err, spread.ErrInvalidInput) {
				t.Errorf("Run error = %v, want ErrInvalidInput", err)
			}
			if res != nil {
				t.Error("Run returned a partial result for a malformed series")
			}
		})
	}
}

func TestSeriesMustMatchProfileThreshold(t *testing.T) {
	sim := mustSimulator(t, scenarioProfile(), nil)

	// A series annotated under a 40 bps threshold holds through +30, but
	// the 20 bps profile would have entered there. Replaying it under the
	// wrong profile must fail, not silently skip the entry.
	res, err := sim.Run(series([]float64{30, 25, 2}, 40))
	if !errors.Is(err, spread.ErrInvalidInput) {
		t.Errorf("Run error = %v, want ErrInvalidInput", err)
	}
	if res != nil {
		t.Error("Run returned a result for a mismatched series")
	}
}

func TestSeriesMustMatchProfileCost(t *testing.T) {
	sim := mustSimulator(t, scenarioProfile(), nil)

	records := series([]float64{30, 2}, 20)
	for i := range records {
		records[i].CostBps = 12.5 // annotated under a different cost assumption
	}

	res, err := sim.Run(records)
	if !errors.Is(err, spread.ErrInvalidInput) {
		t.Errorf("Run error = %v, want ErrInvalidInput", err)
	}
	if res != nil {
		t.Error("Run returned a result for a mismatched series")
	}
}

func TestNewSimulatorRejectsBadProfile(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"zero fraction", func(p *Profile) { p.PositionFraction = 0 }},
		{"negative fraction", func(p *Profile) { p.PositionFraction = -0.5 }},
		{"zero capital", func(p *Profile) { p.InitialCapital = 0 }},
		{"zero max holding", func(p *Profile) { p.MaxHolding = 0 }},
		{"negative convergence", func(p *Profile) { p.ConvergenceBps = -1 }},
		{"negative reversal stop", func(p *Profile) { p.ReversalStopBps = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DailyProfile()
			tt.mutate(&p)
			if _, err := NewSimulator(p, nil); !errors.Is(err, ErrInvalidProfile) {
				t.Errorf("NewSimulator error = %v, want ErrInvalidProfile", err)
			}
		})
	}
}

func TestRunsAreIndependent(t *testing.T) {
	sim := mustSimulator(t, scenarioProfile(), nil)
	nets := []float64{30, 25, 2, -60, 0}

	first, err := sim.Run(series(nets, 20))
	if err != nil {
		t.Fatalf("Run (first): %v", err)
	}
	second, err := sim.Run(series(nets, 20))
	if err != nil {
		t.Fatalf("Run (second): %v", err)
	}

	if len(first.Trades) != len(second.Trades) {
		t.Fatalf("trade counts differ across identical runs: %d vs %d", len(first.Trades), len(second.Trades))
	}
	if first.State.Capital != second.State.Capital {
		t.Errorf("capital leaked across runs: %v vs %v", first.State.Capital, second.State.Capital)
	}
}
