package util

import (
	"time"
)

const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// StartOfDay truncates t to midnight in t's own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysUntil counts calendar days from now's date to target's date. target is a calendar date
// (stores hand dates back as UTC midnight), so its own year/month/day are used as-is.
// Negative when target is in the past.
func DaysUntil(now, target time.Time) int {
	from := StartOfDay(now)
	ty, tm, td := target.Date()
	to := time.Date(ty, tm, td, 0, 0, 0, 0, now.Location())
	return int(to.Sub(from).Hours()/24 + 0.5*sign(to.Sub(from)))
}

func sign(d time.Duration) float64 {
	if d < 0 {
		return -1
	}
	return 1
}

// WeekEndingMonday returns the Monday that closes t's week, using the convention where a
// week runs Tuesday through Monday. A Monday maps to itself.
func WeekEndingMonday(t time.Time) time.Time {
	day := StartOfDay(t)
	offset := (int(time.Monday) - int(day.Weekday()) + 7) % 7
	return day.AddDate(0, 0, offset)
}
