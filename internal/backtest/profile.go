// Package backtest simulates the open/hold/exit lifecycle of spread
// positions over an annotated price series and reduces the resulting trade
// log into summary performance metrics.
package backtest

import (
	"errors"
	"fmt"

	"basisarb/internal/domain"
)

// ErrInvalidProfile marks a profile constant outside sane bounds. It is
// returned at construction time, before any bar is processed.
var ErrInvalidProfile = errors.New("invalid backtest profile")

// Profile parameterizes one backtest run. Daily and intraday runs share
// the same rule shapes and differ only in these constants; there is no
// code fork between the two granularities.
type Profile struct {
	Granularity domain.Granularity

	// Entry.
	ThresholdBps     float64
	PositionFraction float64
	InitialCapital   float64
	CostBps          float64

	// Exit policy, in evaluation order.
	ConvergenceBps  float64
	MaxHolding      int
	ReversalStopBps float64

	// End-of-day forced exit, intraday only. A bar at or past
	// CutoffHour:CutoffMinute (exchange-local) closes any open position.
	EnforceCutoff bool
	CutoffHour    int
	CutoffMinute  int
}

// DailyProfile returns the constants the daily strategy was calibrated
// with: 20 bps entry, 6.5 bps round-trip cost, converge under 10 bps, five
// bar time-stop, 50 bps reversal stop.
func DailyProfile() Profile {
	return Profile{
		Granularity:      domain.GranularityDaily,
		ThresholdBps:     20,
		PositionFraction: 0.10,
		InitialCapital:   1_000_000,
		CostBps:          6.5,
		ConvergenceBps:   10,
		MaxHolding:       5,
		ReversalStopBps:  50,
	}
}

// IntradayProfile returns the 15-minute-bar constants: 15 bps entry,
// 4.3 bps cost, converge under 5 bps, four bar time-stop, 20 bps reversal
// stop, and a forced exit at or after 15:45 New York time.
func IntradayProfile() Profile {
	return Profile{
		Granularity:      domain.GranularityIntraday,
		ThresholdBps:     15,
		PositionFraction: 0.10,
		InitialCapital:   1_000_000,
		CostBps:          4.3,
		ConvergenceBps:   5,
		MaxHolding:       4,
		ReversalStopBps:  20,
		EnforceCutoff:    true,
		CutoffHour:       15,
		CutoffMinute:     45,
	}
}

// Annualization returns the Sharpe annualization factor for this profile's
// granularity: 252 trading days per year, times bars per day for intraday.
func (p Profile) Annualization() float64 {
	return 252 * float64(p.Granularity.BarsPerDay())
}

func (p Profile) validate() error {
	if p.PositionFraction <= 0 || p.PositionFraction > 1 {
		return fmt.Errorf("%w: position fraction = %v, must be in (0, 1]", ErrInvalidProfile, p.PositionFraction)
	}
	if p.InitialCapital <= 0 {
		return fmt.Errorf("%w: initial capital = %v, must be > 0", ErrInvalidProfile, p.InitialCapital)
	}
	if p.MaxHolding < 1 {
		return fmt.Errorf("%w: max holding = %d, must be >= 1", ErrInvalidProfile, p.MaxHolding)
	}
	if p.ConvergenceBps < 0 {
		return fmt.Errorf("%w: convergence threshold = %v, must be >= 0", ErrInvalidProfile, p.ConvergenceBps)
	}
	if p.ReversalStopBps < 0 {
		return fmt.Errorf("%w: reversal stop = %v, must be >= 0", ErrInvalidProfile, p.ReversalStopBps)
	}
	return nil
}
