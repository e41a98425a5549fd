package domain

import "time"

// DayWindow is the half-open UTC interval [Start, End) covering one
// calendar day. End is always exactly Start plus 24 hours.
type DayWindow struct {
	Start time.Time
	End   time.Time
}

// WindowForDay builds the query window for the calendar day containing t.
func WindowForDay(t time.Time) DayWindow {
	start := StartOfDayUTC(t)
	return DayWindow{Start: start, End: start.AddDate(0, 0, 1)}
}

// Contains reports whether ts falls inside the window. A timestamp at
// exactly Start is inside; one at exactly End belongs to the next day.
func (w DayWindow) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// Date returns the window's calendar date as YYYY-MM-DD.
func (w DayWindow) Date() string {
	return w.Start.Format(DateLayout)
}

// StartOfDayUTC truncates t to midnight UTC.
func StartOfDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
