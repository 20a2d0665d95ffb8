package gather

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"basisarb/internal/config"
	"basisarb/internal/domain"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ BarSource = (*StockSource)(nil)
var _ BarSource = (*CryptoSource)(nil)

// timeFrameFor maps a granularity onto the Alpaca bar timeframe.
func timeFrameFor(g domain.Granularity) marketdata.TimeFrame {
	if g == domain.GranularityIntraday {
		return marketdata.NewTimeFrame(15, marketdata.Min)
	}
	return marketdata.OneDay
}

// ---------------------------------------------------------------------------
// StockSource — ETF bars from the Alpaca market-data API.
// ---------------------------------------------------------------------------

// StockSource fetches equity bars for one symbol via the Alpaca market-data
// API, typically the bitcoin tracking ETF.
type StockSource struct {
	client      *marketdata.Client
	symbol      string
	feed        string
	granularity domain.Granularity
	log         *slog.Logger
}

// NewStockSource creates a StockSource for the given symbol and granularity.
func NewStockSource(cfg config.Alpaca, symbol string, g domain.Granularity) *StockSource {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}

	return &StockSource{
		client:      marketdata.NewClient(opts),
		symbol:      symbol,
		feed:        cfg.Feed,
		granularity: g,
		log:         slog.Default().With("source", "alpaca-stock", "symbol", symbol),
	}
}

// Name returns the source identifier.
func (s *StockSource) Name() string { return "alpaca-stock:" + s.symbol }

// Bars fetches bars for the configured symbol within the range.
func (s *StockSource) Bars(ctx context.Context, r DateRange) ([]Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	alpacaBars, err := s.client.GetBars(s.symbol, marketdata.GetBarsRequest{
		TimeFrame: timeFrameFor(s.granularity),
		Start:     r.Start,
		End:       r.End,
		Feed:      marketdata.Feed(s.feed),
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", s.symbol, err)
	}

	bars := make([]Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, Bar{
			Timestamp: ab.Timestamp,
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    float64(ab.Volume),
		})
	}

	s.log.Info("fetched bars", "count", len(bars), "granularity", s.granularity)
	return bars, nil
}

// ---------------------------------------------------------------------------
// CryptoSource — spot BTC bars from the Alpaca crypto feed.
// ---------------------------------------------------------------------------

// CryptoSource fetches spot crypto bars via the Alpaca market-data API.
type CryptoSource struct {
	client      *marketdata.Client
	symbol      string
	granularity domain.Granularity
	log         *slog.Logger
}

// NewCryptoSource creates a CryptoSource. The symbol is an Alpaca crypto
// pair such as "BTC/USD".
func NewCryptoSource(cfg config.Alpaca, symbol string, g domain.Granularity) *CryptoSource {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}

	return &CryptoSource{
		client:      marketdata.NewClient(opts),
		symbol:      symbol,
		granularity: g,
		log:         slog.Default().With("source", "alpaca-crypto", "symbol", symbol),
	}
}

// Name returns the source identifier.
func (s *CryptoSource) Name() string { return "alpaca-crypto:" + s.symbol }

// Bars fetches crypto bars for the configured pair within the range.
func (s *CryptoSource) Bars(ctx context.Context, r DateRange) ([]Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	cryptoBars, err := s.client.GetCryptoBars(s.symbol, marketdata.GetCryptoBarsRequest{
		TimeFrame: timeFrameFor(s.granularity),
		Start:     r.Start,
		End:       r.End,
	})
	if err != nil {
		return nil, fmt.Errorf("GetCryptoBars %s: %w", s.symbol, err)
	}

	bars := make([]Bar, 0, len(cryptoBars))
	for _, cb := range cryptoBars {
		bars = append(bars, Bar{
			Timestamp: cb.Timestamp,
			Open:      cb.Open,
			High:      cb.High,
			Low:       cb.Low,
			Close:     cb.Close,
			Volume:    cb.Volume,
		})
	}

	s.log.Info("fetched bars", "count", len(bars), "granularity", s.granularity)
	return bars, nil
}
