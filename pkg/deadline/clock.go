package deadline

import "time"

// Clock abstracts "now" so urgency and remaining-day calculations are
// testable against fixed instants.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }
