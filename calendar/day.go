/*
Package calendar provides the date vocabulary of the reporting engine.

PURPOSE:
  Reports are computed over civil dates (no time of day, no zone), over
  calendar months used as import batch keys, and over inclusive periods of
  days. This package owns those value types and the working-day arithmetic.

KEY TYPES:
  Day:       A civil date, always normalised to UTC midnight
  YearMonth: A calendar month ("2026-02"), the fetch/open month batch key
  Period:    An inclusive [Start, End] range of days
  Window:    The per-request DateWindow (see window.go)

WORKING DAYS:
  Monday through Friday. There is no holiday calendar.

SEE ALSO:
  - window.go: ComputeWindow
*/
package calendar

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// DAY - Civil date
// =============================================================================

const dayLayout = "2006-01-02"

// Day is a calendar date without time of day.
type Day struct {
	t time.Time
}

// NewDay builds a Day. Out-of-range values normalise the way time.Date does.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf returns the calendar date of t in t's own location.
func DayOf(t time.Time) Day {
	return NewDay(t.Year(), t.Month(), t.Day())
}

// ParseDay parses "YYYY-MM-DD". Longer timestamps are truncated to their date part.
func ParseDay(s string) (Day, error) {
	if len(s) > len(dayLayout) {
		s = s[:len(dayLayout)]
	}
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Day{t: t}, nil
}

// MustParseDay is ParseDay for fixtures and constants.
func MustParseDay(s string) Day {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Day) Before(o Day) bool        { return d.t.Before(o.t) }
func (d Day) After(o Day) bool         { return d.t.After(o.t) }
func (d Day) Equal(o Day) bool         { return d.t.Equal(o.t) }
func (d Day) BeforeOrEqual(o Day) bool { return !d.t.After(o.t) }
func (d Day) AfterOrEqual(o Day) bool  { return !d.t.Before(o.t) }

// Arithmetic
func (d Day) AddDays(n int) Day   { return Day{t: d.t.AddDate(0, 0, n)} }
func (d Day) AddMonths(n int) Day { return Day{t: d.t.AddDate(0, n, 0)} }

// Properties
func (d Day) Year() int              { return d.t.Year() }
func (d Day) Month() time.Month      { return d.t.Month() }
func (d Day) DayOfMonth() int        { return d.t.Day() }
func (d Day) Weekday() time.Weekday  { return d.t.Weekday() }
func (d Day) Time() time.Time        { return d.t }
func (d Day) IsZero() bool           { return d.t.IsZero() }
func (d Day) YearMonth() YearMonth   { return YearMonth{Year: d.t.Year(), Month: d.t.Month()} }
func (d Day) IsWorkday() bool        { return !d.IsWeekend() }
func (d Day) IsWeekend() bool {
	wd := d.t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d Day) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(dayLayout)
}

// MarshalJSON encodes the day as "YYYY-MM-DD", or null for the zero Day.
func (d Day) MarshalJSON() ([]byte, error) {
	if d.t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Day) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value stores days as ISO text, which sorts and compares correctly in
// every SQL dialect the store supports.
func (d Day) Value() (driver.Value, error) {
	if d.t.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// =============================================================================
// YEAR-MONTH - Import batch key
// =============================================================================

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

// NewYearMonth validates a (month, year) pair as received from callers.
func NewYearMonth(month, year int) (YearMonth, error) {
	if month < 1 || month > 12 {
		return YearMonth{}, fmt.Errorf("month %d out of range 1-12", month)
	}
	if year < 1900 || year > 9999 {
		return YearMonth{}, fmt.Errorf("year %d out of range", year)
	}
	return YearMonth{Year: year, Month: time.Month(month)}, nil
}

// ParseYearMonth parses "YYYY-MM".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil || len(s) != 7 {
		return YearMonth{}, fmt.Errorf("invalid month %q: expected YYYY-MM", s)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

func (ym YearMonth) String() string { return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month)) }

// Label is the display form, e.g. "February 2026".
func (ym YearMonth) Label() string { return ym.First().Time().Format("January 2006") }

func (ym YearMonth) First() Day { return NewDay(ym.Year, ym.Month, 1) }
func (ym YearMonth) Last() Day  { return NewDay(ym.Year, ym.Month+1, 1).AddDays(-1) }

// Period returns the full month as a period.
func (ym YearMonth) Period() Period { return Period{Start: ym.First(), End: ym.Last()} }

// AddMonths is calendar-correct across year boundaries.
func (ym YearMonth) AddMonths(n int) YearMonth { return ym.First().AddMonths(n).YearMonth() }

func (ym YearMonth) Prev() YearMonth { return ym.AddMonths(-1) }

func (ym YearMonth) Before(o YearMonth) bool {
	return ym.Year < o.Year || (ym.Year == o.Year && ym.Month < o.Month)
}

func (ym YearMonth) Equal(o YearMonth) bool { return ym.Year == o.Year && ym.Month == o.Month }

// MonthsBetween lists from..to inclusive. Empty when to is before from.
func MonthsBetween(from, to YearMonth) []YearMonth {
	var months []YearMonth
	for cur := from; !to.Before(cur); cur = cur.AddMonths(1) {
		months = append(months, cur)
	}
	return months
}

func (ym YearMonth) MarshalJSON() ([]byte, error) { return json.Marshal(ym.String()) }

func (ym *YearMonth) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" || s == "0000-00" {
		*ym = YearMonth{}
		return nil
	}
	parsed, err := ParseYearMonth(s)
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}

// =============================================================================
// PERIOD - Inclusive range of days
// =============================================================================

// Period is an inclusive [Start, End] range. A period whose End is before
// its Start is empty.
type Period struct {
	Start Day
	End   Day
}

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d Day) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Days returns every day in the period.
func (p Period) Days() []Day {
	var days []Day
	for cur := p.Start; cur.BeforeOrEqual(p.End); cur = cur.AddDays(1) {
		days = append(days, cur)
	}
	return days
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// CountWorkingDays counts Monday-Friday days in [start, end], both endpoints
// included. Returns 0 when end is before start.
func CountWorkingDays(start, end Day) int {
	count := 0
	for cur := start; cur.BeforeOrEqual(end); cur = cur.AddDays(1) {
		if cur.IsWorkday() {
			count++
		}
	}
	return count
}
