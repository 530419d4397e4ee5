package evm

import "time"

// Date handling convention: business dates (registration, completion,
// forecast, schedule start/end) are UTC midnights; system timestamps
// (created_at) are full UTC instants. All comparisons happen in UTC.

// NewDate returns the UTC midnight for the given calendar day.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last representable microsecond of t's UTC calendar
// day. Record visibility uses this as the upper bound for created_at, so a
// record entered at any time during the control date's day is included.
func EndOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 999999000, time.UTC)
}

// DaysBetween returns the whole calendar days from a to b, negative when b
// precedes a.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// SameDate reports whether a and b fall on the same UTC calendar day.
func SameDate(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}
