package core

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// DefaultPeriodDays is the window used when a report is requested without dates.
const DefaultPeriodDays = 30

// MaxPeriodDays caps report ranges at a leap year.
const MaxPeriodDays = 366

// =============================================================================
// PERIOD - Inclusive calendar date range for reports
// =============================================================================

// Period is an inclusive range of calendar days [Start, End] in UTC.
//
// Examples:
//   - KPIs for September: 2026-09-01 .. 2026-09-30
//   - Driver earnings for one day: Start == End
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod normalizes both ends to midnight UTC and rejects ranges that
// end before they start or span more than MaxPeriodDays.
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: Day(start), End: Day(end)}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Validate checks the ordering and width of a period built by hand.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return fmt.Errorf("%w: %s ends before it starts", ErrInvalidPeriod, p)
	}
	if n := p.Len(); n > MaxPeriodDays {
		return fmt.Errorf("%w: %s spans %d days, at most %d allowed", ErrInvalidPeriod, p, n, MaxPeriodDays)
	}
	return nil
}

// ParsePeriod parses "from" and "to" query values (YYYY-MM-DD).
// A missing "to" means today; a missing "from" means DefaultPeriodDays before "to".
func ParsePeriod(from, to string, now time.Time) (Period, error) {
	end := Day(now)
	if to != "" {
		t, err := time.Parse(DateLayout, to)
		if err != nil {
			return Period{}, fmt.Errorf("%w: to must be YYYY-MM-DD", ErrInvalidInput)
		}
		end = t
	}
	start := end.AddDate(0, 0, -(DefaultPeriodDays - 1))
	if from != "" {
		f, err := time.Parse(DateLayout, from)
		if err != nil {
			return Period{}, fmt.Errorf("%w: from must be YYYY-MM-DD", ErrInvalidInput)
		}
		start = f
	}
	return NewPeriod(start, end)
}

// MonthPeriod returns the whole calendar month.
func MonthPeriod(year int, month time.Month) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, -1)}
}

// Contains reports whether t falls on one of the period's days.
func (p Period) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

// Days returns every day in the period, in order.
func (p Period) Days() []time.Time {
	var days []time.Time
	for d := p.Start; !d.After(p.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Len is the number of days in the period.
func (p Period) Len() int {
	return DaysBetween(p.Start, p.End) + 1
}

// Previous returns the period of equal length ending the day before Start.
func (p Period) Previous() Period {
	end := p.Start.AddDate(0, 0, -1)
	return Period{Start: end.AddDate(0, 0, -(p.Len() - 1)), End: end}
}

// Bounds returns [Start, End+1day) as instants for SQL range queries.
func (p Period) Bounds() (time.Time, time.Time) {
	return p.Start, p.End.AddDate(0, 0, 1)
}

func (p Period) String() string {
	return "[" + p.Start.Format(DateLayout) + ", " + p.End.Format(DateLayout) + "]"
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// Day truncates t to midnight UTC of its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from a to b (negative when b is before a).
// It works on Unix seconds, so ranges wider than a time.Duration still count.
func DaysBetween(a, b time.Time) int {
	return int((Day(b).Unix() - Day(a).Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// FormatDate renders a date, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// FormatTime renders an RFC3339 instant, or "" for nil/zero.
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
