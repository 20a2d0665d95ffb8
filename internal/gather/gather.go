// Package gather fetches OHLCV bars for the two legs of the basis pair (the
// tracking ETF and spot bitcoin) and aligns them into a joined price series.
package gather

import (
	"context"
	"time"
)

// Bar is a single OHLCV bar from any source, timestamps in UTC.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// BarSource fetches bars for a single instrument at a fixed granularity.
type BarSource interface {
	// Name returns the source identifier for logging.
	Name() string
	// Bars fetches all bars within the range, in ascending timestamp order.
	Bars(ctx context.Context, r DateRange) ([]Bar, error)
}
