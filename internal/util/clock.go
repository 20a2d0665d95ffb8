package util

import (
	"fmt"
	"time"
)

// MarketClock answers market-hours questions for the US equity session
// (NYSE/ARCA regular hours, 9:30-16:00 Eastern, weekdays). Holidays are not
// tracked; a holiday simply produces no bars upstream.
type MarketClock struct {
	loc *time.Location
}

// NewMarketClock loads the New York time zone.
func NewMarketClock() (*MarketClock, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("load market tz: %w", err)
	}
	return &MarketClock{loc: loc}, nil
}

// Location returns the market's time zone.
func (mc *MarketClock) Location() *time.Location {
	return mc.loc
}

// Local converts t to market-local time.
func (mc *MarketClock) Local(t time.Time) time.Time {
	return t.In(mc.loc)
}

// InRegularSession reports whether t falls inside regular trading hours. The
// 9:30 open is inclusive and the 16:00 close is exclusive, so the last 15-min
// bar of the day opens at 15:45.
func (mc *MarketClock) InRegularSession(t time.Time) bool {
	local := t.In(mc.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}
