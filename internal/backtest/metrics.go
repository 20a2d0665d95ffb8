package backtest

import (
	"math"

	"basisarb/internal/domain"
)

// Metrics is the summary record a completed run reduces to. A zero-trade
// run produces well-defined zero values with FinalCapital equal to the
// starting capital; it is a valid terminal summary, not an error state.
type Metrics struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // percent

	TotalPnL          float64
	TotalReturnPct    float64
	AvgPnLPerTrade    float64
	AvgReturnPerTrade float64 // percent
	AvgHoldingPeriods float64

	MaxWin  float64
	MaxLoss float64

	// SharpeRatio is a PER-TRADE approximation: per-trade returns are
	// annualized by sqrt(bars per year) as if each trade spanned one bar.
	// It overstates significance when the trade count is low.
	SharpeRatio float64

	FinalCapital float64
}

// ComputeMetrics reduces an ordered trade log and the final run state into
// summary statistics. annualization is the bars-per-year factor for the
// Sharpe ratio (252 for daily, 252*26 for 15-minute bars).
func ComputeMetrics(trades []domain.Trade, state RunState, annualization float64) Metrics {
	m := Metrics{FinalCapital: state.Capital}
	if len(trades) == 0 {
		return m
	}

	n := len(trades)
	m.TotalTrades = n

	var sumReturnPct, sumHolding float64
	m.MaxWin = math.Inf(-1)
	m.MaxLoss = math.Inf(1)
	for _, t := range trades {
		if t.PnL > 0 {
			m.WinningTrades++
		} else {
			m.LosingTrades++
		}
		m.TotalPnL += t.PnL
		sumReturnPct += t.ReturnPct
		sumHolding += float64(t.HoldingPeriods)
		if t.PnL > m.MaxWin {
			m.MaxWin = t.PnL
		}
		if t.PnL < m.MaxLoss {
			m.MaxLoss = t.PnL
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(n) * 100
	m.TotalReturnPct = (state.Capital - state.InitialCapital) / state.InitialCapital * 100
	m.AvgPnLPerTrade = m.TotalPnL / float64(n)
	m.AvgReturnPerTrade = sumReturnPct / float64(n)
	m.AvgHoldingPeriods = sumHolding / float64(n)
	m.SharpeRatio = sharpe(trades, annualization)

	return m
}

// sharpe computes the annualized per-trade Sharpe ratio. It requires at
// least two trades and a positive return dispersion; otherwise 0.
func sharpe(trades []domain.Trade, annualization float64) float64 {
	n := len(trades)
	if n < 2 {
		return 0
	}

	returns := make([]float64, n)
	var sum float64
	for i, t := range trades {
		returns[i] = t.ReturnPct / 100
		sum += returns[i]
	}
	mean := sum / float64(n)

	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(n-1)) // sample standard deviation
	if std <= 0 {
		return 0
	}
	return mean / std * math.Sqrt(annualization)
}
