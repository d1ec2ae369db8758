// Package timeutil contains clock and workday helpers.
// The server operates in a single configured timezone which defines "today",
// end-of-day, and the date attached to attendance rows; stored timestamps stay UTC
package timeutil

import (
	"time"
	_ "time/tzdata" // embedded zone database for minimal containers

	"timeclock/internal/platform/config"
)

// Clock abstracts wall-clock reads for testability
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real system clock
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant; test helper
type FixedClock struct{ T time.Time }

// Now returns the fixed instant
func (c FixedClock) Now() time.Time { return c.T }

// LoadLocation resolves the server timezone from TIMECLOCK_TZ (default UTC).
// Panics on an unknown zone name since nothing downstream can run without it
func LoadLocation(cfg config.Conf) *time.Location {
	name := cfg.MayString("TIMECLOCK_TZ", "UTC")
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("timeutil: unknown timezone " + name)
	}
	return loc
}

// Workday normalises an instant to the calendar date in loc, at midnight UTC.
// All attendance rows key on this value
func Workday(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfDay returns the first instant of the workday in loc, expressed in UTC
func StartOfDay(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc).UTC()
}

// EndOfDay returns the last instant of the workday in loc, expressed in UTC.
// 23:59:59.999 matches what the end-of-day closer stamps as check-out
func EndOfDay(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 59, 999e6, loc).UTC()
}

// Ptr returns a pointer to t or nil if t is zero
func Ptr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// MaxTime returns the later of a and b
func MaxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
