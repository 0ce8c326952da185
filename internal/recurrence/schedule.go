package recurrence

import (
	"fmt"
	"time"
)

// Occurrence is one concrete obligation date within a generation month, with
// the period key that makes its movement unique.
type Occurrence struct {
	Date      time.Time
	PeriodKey string
}

// Occurrences expands a rule into its obligation dates for one calendar
// month. MONTHLY yields exactly one, WEEKLY one per matching weekday, YEARLY
// at most one (only in the rule's month).
func Occurrences(r Rule, year int, month time.Month) ([]Occurrence, error) {
	switch r.Schedule {
	case ScheduleMonthly:
		d := clampedDate(year, month, r.DayOfMonth)
		return []Occurrence{{Date: d, PeriodKey: monthKey(year, month)}}, nil
	case ScheduleYearly:
		if r.Month != month {
			return nil, nil
		}
		d := clampedDate(year, month, r.DayOfMonth)
		return []Occurrence{{Date: d, PeriodKey: fmt.Sprintf("%04d", year)}}, nil
	case ScheduleWeekly:
		out := []Occurrence{}
		first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		for d := first; d.Month() == month; d = d.AddDate(0, 0, 1) {
			if d.Weekday() == r.Weekday {
				out = append(out, Occurrence{Date: d, PeriodKey: weekKey(d)})
			}
		}
		return out, nil
	default:
		return nil, ErrInvalidSchedule
	}
}

// clampedDate builds the date for a day-of-month, clamping to the last day of
// short months (day 31 in February becomes the 28th or 29th).
func clampedDate(year int, month time.Month, day int) time.Time {
	last := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func monthKey(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

// weekKey renders the ISO 8601 week of a date, e.g. "2024-W10". ISO years
// differ from calendar years at the edges of January and December.
func weekKey(d time.Time) string {
	y, w := d.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, w)
}
