// Package schedule computes run dates for recurring invoices.
//
// All functions are pure: they only transform the dates they are given and
// never read the wall clock.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

type Frequency string

const (
	Weekly    Frequency = "WEEKLY"
	Biweekly  Frequency = "BIWEEKLY"
	Monthly   Frequency = "MONTHLY"
	Quarterly Frequency = "QUARTERLY"
	Yearly    Frequency = "YEARLY"
)

// Frequencies lists every supported frequency in ascending period length.
var Frequencies = []Frequency{Weekly, Biweekly, Monthly, Quarterly, Yearly}

var ErrUnknownFrequency = errors.New("unknown frequency")

func (f Frequency) IsValid() bool {
	switch f {
	case Weekly, Biweekly, Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

// NextRun returns the run date one period after current.
//
// Month based frequencies keep the day of month and clamp to the last day of
// the target month when it is shorter (Jan 31 + 1 month = Feb 28/29).
func NextRun(current time.Time, f Frequency) (time.Time, error) {
	switch f {
	case Weekly:
		return current.AddDate(0, 0, 7), nil
	case Biweekly:
		return current.AddDate(0, 0, 14), nil
	case Monthly:
		return addMonths(current, 1), nil
	case Quarterly:
		return addMonths(current, 3), nil
	case Yearly:
		return addMonths(current, 12), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownFrequency, string(f))
}

// Upcoming returns up to n run dates starting at from (inclusive), assuming
// every run happens on time. Dates after end are dropped.
func Upcoming(from time.Time, f Frequency, n int, end *time.Time) ([]time.Time, error) {
	out := make([]time.Time, 0, n)
	current := from
	for len(out) < n {
		if end != nil && current.After(*end) {
			break
		}
		out = append(out, current)
		next, err := NextRun(current, f)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return out, nil
}

// addMonths does not use time.AddDate for months because AddDate normalises
// overflow (Jan 31 + 1 month = Mar 3).
func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := DaysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Day strips the clock from t and returns the calendar date at UTC midnight.
// The calendar date is taken in t's own location.
func Day(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// AddDays adds whole calendar days to the date of t.
func AddDays(t time.Time, days int) time.Time {
	return Day(t).AddDate(0, 0, days)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}
