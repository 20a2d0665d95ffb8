// Package domain defines the core value types shared across the basisarb
// pipeline: price bars, spread records, positions, and completed trades.
package domain

import "time"

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// Granularity selects the bar interval a series was sampled at.
type Granularity string

// Supported granularities.
const (
	GranularityDaily    Granularity = "daily"
	GranularityIntraday Granularity = "intraday" // 15-minute bars
)

// BarsPerDay returns the number of bars in one trading day at this
// granularity (26 fifteen-minute bars across a 6.5-hour session).
func (g Granularity) BarsPerDay() int {
	if g == GranularityIntraday {
		return 26
	}
	return 1
}

// Signal is the trading signal derived from a bar's net spread. It is a
// closed set of three cases; exit rules switch over it exhaustively.
type Signal string

// Signal values. LONG_SPOT_SHORT_TRACK means the tracking instrument is
// overpriced relative to spot: sell the tracker, buy spot, and bet the
// spread narrows. SHORT_SPOT_LONG_TRACK is the mirror trade.
const (
	SignalLongSpotShortTrack Signal = "LONG_SPOT_SHORT_TRACK"
	SignalShortSpotLongTrack Signal = "SHORT_SPOT_LONG_TRACK"
	SignalHold               Signal = "HOLD"
)

// Valid reports whether s is one of the three defined signal values.
func (s Signal) Valid() bool {
	switch s {
	case SignalLongSpotShortTrack, SignalShortSpotLongTrack, SignalHold:
		return true
	}
	return false
}

// Session is a coarse time-of-day label for intraday bars, in exchange
// local time.
type Session string

// Session labels: the opening hour, the final session hour, and everything
// in between.
const (
	SessionOpen   Session = "open"
	SessionMidday Session = "midday"
	SessionClose  Session = "close"
)

// ---------------------------------------------------------------------------
// Series types
// ---------------------------------------------------------------------------

// PriceBar is one aligned observation of the tracking instrument (ETF) and
// the spot asset (BTC). Close prices must be strictly positive; the rest of
// the OHLCV fields are only populated for intraday series.
type PriceBar struct {
	Timestamp  time.Time
	TrackClose float64
	SpotClose  float64

	TrackOpen   float64
	TrackHigh   float64
	TrackLow    float64
	TrackVolume float64

	SpotOpen   float64
	SpotHigh   float64
	SpotLow    float64
	SpotVolume float64
}

// SpreadRecord is a PriceBar annotated by the spread engine with the
// normalized tracker price, the raw and net spreads in basis points, and
// the resulting signal. Hour/Minute/Session are only set on intraday
// records.
type SpreadRecord struct {
	PriceBar

	// Normalized is the tracker close rescaled by the series-wide average
	// tracker/spot price ratio, so it is directly comparable to SpotClose.
	Normalized   float64
	RawSpreadBps float64
	CostBps      float64
	NetSpreadBps float64
	Signal       Signal

	Hour    int
	Minute  int
	Session Session
}

// ---------------------------------------------------------------------------
// Trading types
// ---------------------------------------------------------------------------

// Position is an open trade. It is owned exclusively by the lifecycle
// simulator; at most one instance is live at any time.
type Position struct {
	EntryIndex      int
	EntryTime       time.Time
	Signal          Signal
	EntrySpreadBps  float64
	EntryTrackPrice float64
	EntrySpotPrice  float64

	// Notional is the capital fraction committed at entry, fixed for the
	// life of the position.
	Notional float64
}

// Trade is a closed position. Immutable once created; trades are appended
// to the log in chronological exit order.
type Trade struct {
	EntryTime       time.Time
	ExitTime        time.Time
	Signal          Signal
	EntrySpreadBps  float64
	ExitSpreadBps   float64
	SpreadChangeBps float64
	EntryTrackPrice float64
	ExitTrackPrice  float64
	EntrySpotPrice  float64
	ExitSpotPrice   float64
	Notional        float64
	ReturnPct       float64
	PnL             float64
	HoldingPeriods  int
}
