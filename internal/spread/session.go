package spread

import (
	"time"

	"basisarb/internal/domain"
)

// AnnotateSession maps a bar timestamp to exchange-local hour and minute
// plus a coarse session label: "open" for the opening hour, "close" from
// the final session hour onward, "midday" otherwise.
//
// The labels are purely descriptive and signal classification never reads
// them, but the intraday exit policy uses the local clock for its
// end-of-day cutoff.
func AnnotateSession(ts time.Time, loc *time.Location) (hour, minute int, session domain.Session) {
	local := ts.In(loc)
	hour, minute = local.Hour(), local.Minute()

	switch {
	case hour == 9:
		session = domain.SessionOpen
	case hour >= 15:
		session = domain.SessionClose
	default:
		session = domain.SessionMidday
	}
	return hour, minute, session
}
