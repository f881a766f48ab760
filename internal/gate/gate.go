// Package gate decides whether a habit may be marked complete "today".
//
// Days are compared on the local calendar of the evaluator (year and
// day-of-year in the configured location), not as a rolling 24 hour
// window: a completion at 23:59 and another at 00:01 fall on different days.
package gate

import (
	"time"

	"github.com/julianstephens/habitmaster/internal/constants"
)

// Message is shown when a completion is refused.
const Message = constants.CompletionRefusedMessage

// FromMillis converts an epoch-millisecond timestamp to a time in loc.
func FromMillis(ms int64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ms).In(loc)
}

// IsSameCalendarDay reports whether t1 and t2 share year and day-of-year in loc.
func IsSameCalendarDay(t1, t2 time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	a, b := t1.In(loc), t2.In(loc)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// CanComplete returns false iff lastSuccess is set and falls on the same
// calendar day as now.
func CanComplete(lastSuccess *int64, now time.Time, loc *time.Location) bool {
	if lastSuccess == nil {
		return true
	}
	return !IsSameCalendarDay(FromMillis(*lastSuccess, loc), now, loc)
}

// NextOpening returns the local midnight after now, the earliest instant at
// which a refused completion will be accepted.
func NextOpening(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day()+1, 0, 0, 0, 0, loc)
}
