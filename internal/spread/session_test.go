package spread

import (
	"testing"
	"time"

	"basisarb/internal/domain"
)

func TestAnnotateSession(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("loading timezone: %v", err)
	}

	tests := []struct {
		name        string
		utc         time.Time
		wantHour    int
		wantMinute  int
		wantSession domain.Session
	}{
		// 2025-06-02 is during EDT (UTC-4).
		{"opening bar", time.Date(2025, 6, 2, 13, 30, 0, 0, time.UTC), 9, 30, domain.SessionOpen},
		{"late morning", time.Date(2025, 6, 2, 14, 45, 0, 0, time.UTC), 10, 45, domain.SessionMidday},
		{"early afternoon", time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC), 14, 0, domain.SessionMidday},
		{"final hour", time.Date(2025, 6, 2, 19, 15, 0, 0, time.UTC), 15, 15, domain.SessionClose},
		{"closing bell", time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC), 16, 0, domain.SessionClose},
		// 2025-01-06 is during EST (UTC-5).
		{"winter open", time.Date(2025, 1, 6, 14, 30, 0, 0, time.UTC), 9, 30, domain.SessionOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hour, minute, session := AnnotateSession(tt.utc, loc)
			if hour != tt.wantHour || minute != tt.wantMinute {
				t.Errorf("time = %d:%02d, want %d:%02d", hour, minute, tt.wantHour, tt.wantMinute)
			}
			if session != tt.wantSession {
				t.Errorf("session = %q, want %q", session, tt.wantSession)
			}
		})
	}
}

func TestIntradayEngineAnnotatesSessions(t *testing.T) {
	e, err := NewEngine(15, 4.3, domain.GranularityIntraday)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	series := []domain.PriceBar{
		{Timestamp: time.Date(2025, 6, 2, 13, 30, 0, 0, time.UTC), TrackClose: 60, SpotClose: 100000},
		{Timestamp: time.Date(2025, 6, 2, 19, 45, 0, 0, time.UTC), TrackClose: 60, SpotClose: 100000},
	}

	records, err := e.Annotate(series)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if records[0].Session != domain.SessionOpen || records[0].Hour != 9 || records[0].Minute != 30 {
		t.Errorf("record 0 = %d:%02d %q, want 9:30 open", records[0].Hour, records[0].Minute, records[0].Session)
	}
	if records[1].Session != domain.SessionClose || records[1].Hour != 15 || records[1].Minute != 45 {
		t.Errorf("record 1 = %d:%02d %q, want 15:45 close", records[1].Hour, records[1].Minute, records[1].Session)
	}
}
