package utils

import "time"

func Now() time.Time {
	return time.Now().UTC()
}

func NowPtr() *time.Time {
	now := Now()
	return &now
}

// StartOfDayUTC is the daily rate-window boundary.
func StartOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfWeekUTC returns the most recent Monday 00:00 UTC.
func StartOfWeekUTC(t time.Time) time.Time {
	day := StartOfDayUTC(t)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDate(0, 0, -(weekday - 1))
}

func StartOfMonthUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
