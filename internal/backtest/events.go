package backtest

import (
	"log/slog"

	"basisarb/internal/domain"
)

// ExitReason records which exit rule closed a position. Exported through
// events only; the trade log itself carries no reason column.
type ExitReason string

// Exit reasons, in the order the policy evaluates them.
const (
	ExitConvergence  ExitReason = "convergence"
	ExitTimeStop     ExitReason = "time_stop"
	ExitReversal     ExitReason = "reversal_stop"
	ExitSessionClose ExitReason = "session_cutoff"
	ExitEndOfData    ExitReason = "end_of_data"
)

// EventSink receives the structured lifecycle events a run emits. The
// simulator itself never prints; reporting collaborators subscribe here.
type EventSink interface {
	TradeOpened(pos domain.Position)
	TradeClosed(trade domain.Trade, reason ExitReason)
	RunCompleted(m Metrics)
}

// Compile-time interface checks.
var _ EventSink = NopSink{}
var _ EventSink = (*LogSink)(nil)

// NopSink discards all events.
type NopSink struct{}

func (NopSink) TradeOpened(domain.Position)          {}
func (NopSink) TradeClosed(domain.Trade, ExitReason) {}
func (NopSink) RunCompleted(Metrics)                 {}

// LogSink emits lifecycle events through a structured logger.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger falls back to slog.Default.
func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log.With("component", "backtest")}
}

// TradeOpened logs a position entry.
func (s *LogSink) TradeOpened(pos domain.Position) {
	s.log.Info("position opened",
		"signal", pos.Signal,
		"entryTime", pos.EntryTime,
		"entrySpreadBps", pos.EntrySpreadBps,
		"notional", pos.Notional,
	)
}

// TradeClosed logs a completed trade and the rule that closed it.
func (s *LogSink) TradeClosed(trade domain.Trade, reason ExitReason) {
	s.log.Info("trade closed",
		"signal", trade.Signal,
		"reason", reason,
		"exitTime", trade.ExitTime,
		"holdingPeriods", trade.HoldingPeriods,
		"returnPct", trade.ReturnPct,
		"pnl", trade.PnL,
	)
}

// RunCompleted logs the run summary.
func (s *LogSink) RunCompleted(m Metrics) {
	s.log.Info("run complete",
		"trades", m.TotalTrades,
		"winRate", m.WinRate,
		"totalPnL", m.TotalPnL,
		"sharpe", m.SharpeRatio,
		"finalCapital", m.FinalCapital,
	)
}
