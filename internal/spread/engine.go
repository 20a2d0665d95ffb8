// Package spread converts an aligned ETF/BTC price series into a
// signal-annotated spread series: it normalizes the tracking instrument's
// price into spot-equivalent units, computes the spread in basis points,
// deducts a flat round-trip cost estimate, and classifies each bar into one
// of three trading signals.
package spread

import (
	"errors"
	"fmt"
	"math"
	"time"

	"basisarb/internal/domain"
)

// ErrInvalidInput marks malformed series input: an empty series, a
// non-positive price, or a bar that produces a non-finite spread.
var ErrInvalidInput = errors.New("invalid input series")

// nyse is the trading-venue timezone used for intraday session annotation.
const nyse = "America/New_York"

// ---------------------------------------------------------------------------
// Pure calculations
// ---------------------------------------------------------------------------

// CalculateRatio computes the series-wide average tracker/spot price ratio
// used to normalize the tracker price into spot units.
//
// The average is taken over the ENTIRE series, including bars after the
// point any given signal would have been evaluated. This is a deliberate
// batch-normalization policy for offline research, not a point-in-time
// estimate: callers must not treat the resulting spreads as causal.
func CalculateRatio(series []domain.PriceBar) (float64, error) {
	if len(series) == 0 {
		return 0, fmt.Errorf("%w: empty series", ErrInvalidInput)
	}

	var sum float64
	for i, bar := range series {
		if bar.TrackClose <= 0 || bar.SpotClose <= 0 {
			return 0, fmt.Errorf("%w: non-positive price at bar %d (%s): track=%v spot=%v",
				ErrInvalidInput, i, bar.Timestamp.Format(time.RFC3339), bar.TrackClose, bar.SpotClose)
		}
		sum += bar.TrackClose / bar.SpotClose
	}
	return sum / float64(len(series)), nil
}

// ComputeSpread normalizes a bar's tracker close by avgRatio and returns the
// spot-equivalent price and the raw spread in basis points.
func ComputeSpread(bar domain.PriceBar, avgRatio float64) (normalized, rawSpreadBps float64) {
	normalized = bar.TrackClose / avgRatio
	rawSpreadBps = (normalized - bar.SpotClose) / bar.SpotClose * 10000
	return normalized, rawSpreadBps
}

// NetSpread deducts the flat round-trip cost estimate from a raw spread.
func NetSpread(rawSpreadBps, costBps float64) float64 {
	return rawSpreadBps - costBps
}

// ClassifySignal maps a net spread to a signal. The comparison is strict:
// a net spread exactly equal to the threshold classifies as HOLD. It is a
// pure function of its two arguments, with no history dependence.
func ClassifySignal(netSpreadBps, thresholdBps float64) domain.Signal {
	switch {
	case netSpreadBps > thresholdBps:
		return domain.SignalLongSpotShortTrack
	case netSpreadBps < -thresholdBps:
		return domain.SignalShortSpotLongTrack
	default:
		return domain.SignalHold
	}
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// Engine annotates a price series with spreads and signals for one
// granularity profile. It holds no per-series state: Annotate may be called
// repeatedly and yields identical output for identical input.
type Engine struct {
	thresholdBps float64
	costBps      float64
	intraday     bool
	loc          *time.Location
}

// NewEngine creates a spread engine. costBps is the flat round-trip cost
// deducted from every raw spread; intraday engines additionally annotate
// each record with exchange-local time-of-day and session labels.
func NewEngine(thresholdBps, costBps float64, granularity domain.Granularity) (*Engine, error) {
	e := &Engine{
		thresholdBps: thresholdBps,
		costBps:      costBps,
		intraday:     granularity == domain.GranularityIntraday,
	}
	if e.intraday {
		loc, err := time.LoadLocation(nyse)
		if err != nil {
			return nil, fmt.Errorf("loading %s timezone: %w", nyse, err)
		}
		e.loc = loc
	}
	return e, nil
}

// ThresholdBps returns the entry signal threshold the engine classifies with.
func (e *Engine) ThresholdBps() float64 { return e.thresholdBps }

// CostBps returns the flat round-trip cost estimate.
func (e *Engine) CostBps() float64 { return e.costBps }

// Annotate runs the whole-series normalization pass and then derives
// spreads and signals for every bar. The normalization ratio uses the full
// sample (see CalculateRatio); everything after it is per-bar and pure.
func (e *Engine) Annotate(series []domain.PriceBar) ([]domain.SpreadRecord, error) {
	avgRatio, err := CalculateRatio(series)
	if err != nil {
		return nil, err
	}

	records := make([]domain.SpreadRecord, len(series))
	for i, bar := range series {
		normalized, raw := ComputeSpread(bar, avgRatio)
		net := NetSpread(raw, e.costBps)
		if math.IsNaN(net) || math.IsInf(net, 0) {
			return nil, fmt.Errorf("%w: non-finite spread at bar %d (%s)",
				ErrInvalidInput, i, bar.Timestamp.Format(time.RFC3339))
		}

		rec := domain.SpreadRecord{
			PriceBar:     bar,
			Normalized:   normalized,
			RawSpreadBps: raw,
			CostBps:      e.costBps,
			NetSpreadBps: net,
			Signal:       ClassifySignal(net, e.thresholdBps),
		}
		if e.intraday {
			rec.Hour, rec.Minute, rec.Session = AnnotateSession(bar.Timestamp, e.loc)
		}
		records[i] = rec
	}
	return records, nil
}
