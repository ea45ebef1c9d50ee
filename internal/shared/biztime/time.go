// Package biztime centralises time handling. All storage and comparisons use UTC.
package biztime

import "time"

// Clock abstracts the wall clock so expiry and cooldown logic can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the real UTC clock.
func SystemClock() Clock { return systemClock{} }

// NowUTC returns current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// DaysUntil returns the number of whole days from now until t, truncated toward zero.
// A negative value means t is in the past.
func DaysUntil(now, t time.Time) int {
	return int(t.Sub(now) / (24 * time.Hour))
}

// FormatDate renders a UTC date the way it is shown to users.
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
