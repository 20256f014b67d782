package session

import "time"

// Clock abstracts time for the reconnect throttle.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Throttle gates reconnect attempts to at most one per interval after a
// failure.
//
// The zero lastFailure means "never failed": the next attempt is allowed
// immediately. Elapsed time is computed with time.Time.Sub, which uses the
// monotonic clock reading and cannot wrap.
type Throttle struct {
	interval    time.Duration
	lastFailure time.Time
}

// NewThrottle returns a Throttle that has never failed.
func NewThrottle(interval time.Duration) Throttle {
	return Throttle{interval: interval}
}

// Ready reports whether an attempt may be issued at now.
func (t *Throttle) Ready(now time.Time) bool {
	if t.lastFailure.IsZero() {
		return true
	}
	return now.Sub(t.lastFailure) >= t.interval
}

// Fail records a failed attempt at now.
func (t *Throttle) Fail(now time.Time) {
	t.lastFailure = now
}

// Reset returns the throttle to "never failed".
func (t *Throttle) Reset() {
	t.lastFailure = time.Time{}
}

// LastFailure returns the time of the last recorded failure, or the zero
// time if none.
func (t *Throttle) LastFailure() time.Time {
	return t.lastFailure
}

// Interval returns the minimum time between failed attempts.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}
