package shared

import (
	"errors"
	"time"
)

// Symbolic period names accepted by the summary and report operations.
const (
	PeriodThisMonth  = "this_month"
	PeriodLastMonth  = "last_month"
	PeriodLast30Days = "last_30_days"
	PeriodCustom     = "custom"
)

// ErrInvalidPeriod indicates an unknown symbolic period or a bad custom range.
var ErrInvalidPeriod = errors.New("period invalid")

// Window is an absolute half-open time range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// ResolvePeriod maps a symbolic period to an absolute window relative to now.
// Custom periods take the supplied from/to pair; the end date is inclusive and
// widened to the end of its day, matching how callers pass calendar dates.
func ResolvePeriod(period string, now time.Time, from, to time.Time) (Window, error) {
	switch period {
	case PeriodThisMonth, "":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return Window{From: start, To: start.AddDate(0, 1, 0)}, nil
	case PeriodLastMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
		return Window{From: start, To: start.AddDate(0, 1, 0)}, nil
	case PeriodLast30Days:
		return Window{From: now.AddDate(0, 0, -30), To: now}, nil
	case PeriodCustom:
		if from.IsZero() || to.IsZero() || to.Before(from) {
			return Window{}, ErrInvalidPeriod
		}
		end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location()).AddDate(0, 0, 1)
		return Window{From: from, To: end}, nil
	default:
		return Window{}, ErrInvalidPeriod
	}
}

// MonthWindow returns the absolute window of a calendar month.
func MonthWindow(year int, month time.Month, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return Window{From: start, To: start.AddDate(0, 1, 0)}
}
