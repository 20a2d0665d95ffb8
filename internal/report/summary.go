// Package report renders run results as human-readable summaries and
// exports headline metrics to CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"basisarb/internal/backtest"
	"basisarb/internal/domain"
	"basisarb/internal/spread"
)

// FormatMoney formats a dollar value with comma separators and two decimals.
func FormatMoney(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := int64(v)
	frac := int64((v-float64(whole))*100 + 0.5)
	if frac == 100 {
		whole++
		frac = 0
	}
	return fmt.Sprintf("%s$%s.%02d", sign, groupThousands(whole), frac)
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatBps formats a basis-point value with one decimal.
func FormatBps(v float64) string {
	return fmt.Sprintf("%.1f bps", v)
}

// FormatPct formats a percentage with two decimals.
func FormatPct(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

// Summary renders a run's metrics as a fixed-width text block.
func Summary(runID string, g domain.Granularity, m backtest.Metrics) string {
	var b strings.Builder

	title := fmt.Sprintf("Backtest %s (%s)", runID, g)
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("=", len(title)) + "\n")

	row := func(label, value string) {
		fmt.Fprintf(&b, "%-22s %s\n", label, value)
	}
	row("Total trades", strconv.Itoa(m.TotalTrades))
	row("Winning / losing", fmt.Sprintf("%d / %d", m.WinningTrades, m.LosingTrades))
	row("Win rate", FormatPct(m.WinRate))
	row("Total PnL", FormatMoney(m.TotalPnL))
	row("Total return", FormatPct(m.TotalReturnPct))
	row("Avg PnL per trade", FormatMoney(m.AvgPnLPerTrade))
	row("Avg holding periods", fmt.Sprintf("%.1f", m.AvgHoldingPeriods))
	row("Max win", FormatMoney(m.MaxWin))
	row("Max loss", FormatMoney(m.MaxLoss))
	row("Sharpe ratio", fmt.Sprintf("%.2f", m.SharpeRatio))
	row("Final capital", FormatMoney(m.FinalCapital))

	return b.String()
}

// SpreadSummary renders spread-series statistics, including the per-session
// breakdown for intraday series.
func SpreadSummary(g domain.Granularity, st spread.Stats) string {
	var b strings.Builder

	title := fmt.Sprintf("Spread analysis (%s)", g)
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("=", len(title)) + "\n")

	row := func(label, value string) {
		fmt.Fprintf(&b, "%-22s %s\n", label, value)
	}
	row("Bars", strconv.Itoa(st.TotalBars))
	row("Mean spread", FormatBps(st.MeanSpreadBps))
	row("Spread stddev", FormatBps(st.StdSpreadBps))
	row("Min / max", fmt.Sprintf("%s / %s", FormatBps(st.MinSpreadBps), FormatBps(st.MaxSpreadBps)))
	row("Mean net spread", FormatBps(st.MeanNetSpreadBps))
	row("Opportunities", strconv.Itoa(st.Opportunities))
	row("Opportunity rate", FormatPct(st.OpportunityRate))

	if len(st.BySession) > 0 {
		b.WriteString("\nOpportunities by session:\n")
		for _, sess := range []domain.Session{domain.SessionOpen, domain.SessionMidday, domain.SessionClose} {
			n, ok := st.BySession[sess]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "  %-8s %d\n", sess, n)
		}
	}

	return b.String()
}

// metricsHeader is the column order of the exported metrics CSV.
var metricsHeader = []string{
	"run_id",
	"granularity",
	"generated_at",
	"total_trades",
	"winning_trades",
	"losing_trades",
	"win_rate",
	"total_pnl",
	"total_return_pct",
	"avg_pnl_per_trade",
	"avg_holding_periods",
	"max_win",
	"max_loss",
	"sharpe_ratio",
	"final_capital",
}

// WriteMetricsCSV appends one row of headline metrics to path, writing the
// header first if the file is new. Successive runs accumulate into a single
// comparison table.
func WriteMetricsCSV(path, runID string, g domain.Granularity, m backtest.Metrics, at time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	_, statErr := os.Stat(path)
	newFile := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if newFile {
		if err := w.Write(metricsHeader); err != nil {
			return err
		}
	}
	ff := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	row := []string{
		runID,
		string(g),
		at.UTC().Format(time.RFC3339),
		strconv.Itoa(m.TotalTrades),
		strconv.Itoa(m.WinningTrades),
		strconv.Itoa(m.LosingTrades),
		ff(m.WinRate),
		ff(m.TotalPnL),
		ff(m.TotalReturnPct),
		ff(m.AvgPnLPerTrade),
		ff(m.AvgHoldingPeriods),
		ff(m.MaxWin),
		ff(m.MaxLoss),
		ff(m.SharpeRatio),
		ff(m.FinalCapital),
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
