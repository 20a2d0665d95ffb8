package gather

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"basisarb/internal/domain"
	"basisarb/internal/util"
)

// PairCollector fetches both legs of the basis pair and aligns them into a
// single joined series of price bars.
type PairCollector struct {
	track       BarSource // tracking ETF
	spot        BarSource // spot BTC
	granularity domain.Granularity
	clock       *util.MarketClock
	log         *slog.Logger
}

// NewPairCollector wires a tracking-ETF source and a spot source for one
// granularity.
func NewPairCollector(track, spot BarSource, g domain.Granularity) (*PairCollector, error) {
	clock, err := util.NewMarketClock()
	if err != nil {
		return nil, err
	}
	return &PairCollector{
		track:       track,
		spot:        spot,
		granularity: g,
		clock:       clock,
		log:         slog.Default().With("component", "collector", "granularity", string(g)),
	}, nil
}

// Collect fetches both legs and returns the aligned series in ascending
// timestamp order. Bars present on only one leg are dropped.
func (c *PairCollector) Collect(ctx context.Context, r DateRange) ([]domain.PriceBar, error) {
	trackBars, err := c.track.Bars(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", c.track.Name(), err)
	}
	spotBars, err := c.spot.Bars(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", c.spot.Name(), err)
	}

	var merged []domain.PriceBar
	if c.granularity == domain.GranularityIntraday {
		merged = c.mergeIntraday(trackBars, spotBars)
	} else {
		merged = MergeDaily(trackBars, spotBars)
	}

	c.log.Info("merged pair series",
		"track", len(trackBars),
		"spot", len(spotBars),
		"joined", len(merged),
	)
	return merged, nil
}

// MergeDaily inner-joins two daily bar series on UTC calendar date. The ETF
// leg's timestamp is kept: spot BTC trades around the clock, so its daily bar
// stamp is an arbitrary session boundary.
func MergeDaily(track, spot []Bar) []domain.PriceBar {
	spotByDate := make(map[string]Bar, len(spot))
	for _, b := range spot {
		spotByDate[b.Timestamp.UTC().Format("2006-01-02")] = b
	}

	out := make([]domain.PriceBar, 0, len(track))
	for _, tb := range track {
		sb, ok := spotByDate[tb.Timestamp.UTC().Format("2006-01-02")]
		if !ok {
			continue
		}
		out = append(out, pairBar(tb, sb))
	}
	sortBars(out)
	return out
}

// mergeIntraday inner-joins 15-minute series on the bar's floored open time
// and keeps only bars inside the ETF's regular trading session.
func (c *PairCollector) mergeIntraday(track, spot []Bar) []domain.PriceBar {
	spotByTime := make(map[int64]Bar, len(spot))
	for _, b := range spot {
		spotByTime[b.Timestamp.Truncate(15*time.Minute).Unix()] = b
	}

	out := make([]domain.PriceBar, 0, len(track))
	for _, tb := range track {
		if !c.clock.InRegularSession(tb.Timestamp) {
			continue
		}
		sb, ok := spotByTime[tb.Timestamp.Truncate(15*time.Minute).Unix()]
		if !ok {
			continue
		}
		out = append(out, pairBar(tb, sb))
	}
	sortBars(out)
	return out
}

func pairBar(track, spot Bar) domain.PriceBar {
	return domain.PriceBar{
		Timestamp:   track.Timestamp,
		TrackOpen:   track.Open,
		TrackHigh:   track.High,
		TrackLow:    track.Low,
		TrackClose:  track.Close,
		TrackVolume: track.Volume,
		SpotOpen:    spot.Open,
		SpotHigh:    spot.High,
		SpotLow:     spot.Low,
		SpotClose:   spot.Close,
		SpotVolume:  spot.Volume,
	}
}

func sortBars(bars []domain.PriceBar) {
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
}
