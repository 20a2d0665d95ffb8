package spread

import (
	"math"

	"basisarb/internal/domain"
)

// Stats summarizes an annotated spread series: distribution of raw and net
// spreads plus how often the series crossed the signal threshold.
type Stats struct {
	TotalBars        int
	MeanSpreadBps    float64
	StdSpreadBps     float64
	MinSpreadBps     float64
	MaxSpreadBps     float64
	MeanNetSpreadBps float64
	StdNetSpreadBps  float64

	Opportunities   int
	OpportunityRate float64 // percent of bars with a non-HOLD signal

	// BySession counts non-HOLD bars per session label. Empty for daily
	// series, which carry no session annotation.
	BySession map[domain.Session]int
}

// Analyze computes summary statistics over an annotated series. An empty
// series yields the zero Stats value.
func Analyze(records []domain.SpreadRecord) Stats {
	n := len(records)
	if n == 0 {
		return Stats{}
	}

	s := Stats{
		TotalBars:    n,
		MinSpreadBps: math.Inf(1),
		MaxSpreadBps: math.Inf(-1),
	}

	var sumRaw, sumNet float64
	for _, r := range records {
		sumRaw += r.RawSpreadBps
		sumNet += r.NetSpreadBps
		if r.RawSpreadBps < s.MinSpreadBps {
			s.MinSpreadBps = r.RawSpreadBps
		}
		if r.RawSpreadBps > s.MaxSpreadBps {
			s.MaxSpreadBps = r.RawSpreadBps
		}
		if r.Signal != domain.SignalHold {
			s.Opportunities++
			if r.Session != "" {
				if s.BySession == nil {
					s.BySession = make(map[domain.Session]int)
				}
				s.BySession[r.Session]++
			}
		}
	}
	s.MeanSpreadBps = sumRaw / float64(n)
	s.MeanNetSpreadBps = sumNet / float64(n)
	s.OpportunityRate = float64(s.Opportunities) / float64(n) * 100

	var ssRaw, ssNet float64
	for _, r := range records {
		dRaw := r.RawSpreadBps - s.MeanSpreadBps
		dNet := r.NetSpreadBps - s.MeanNetSpreadBps
		ssRaw += dRaw * dRaw
		ssNet += dNet * dNet
	}
	// Sample standard deviation, matching how the distribution was studied
	// during calibration.
	if n > 1 {
		s.StdSpreadBps = math.Sqrt(ssRaw / float64(n-1))
		s.StdNetSpreadBps = math.Sqrt(ssNet / float64(n-1))
	}
	return s
}
