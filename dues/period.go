package dues

import (
	"fmt"
	"time"
)

// =============================================================================
// YEAR MONTH - Ordered month value used by exemptions and due dates
// =============================================================================

// YearMonth is a calendar month. Values are totally ordered by Absolute.
type YearMonth struct {
	Year  int
	Month time.Month
}

func NewYearMonth(year int, month time.Month) YearMonth {
	return YearMonth{Year: year, Month: month}
}

// YearMonthOf returns the month containing t (wall-clock date).
func YearMonthOf(t time.Time) YearMonth { return YearMonth{Year: t.Year(), Month: t.Month()} }

// ParseYearMonth parses "YYYY-MM".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return YearMonthOf(t), nil
}

// Absolute is year*12 + month.
func (ym YearMonth) Absolute() int { return ym.Year*12 + int(ym.Month) }

func (ym YearMonth) Compare(other YearMonth) int {
	a, b := ym.Absolute(), other.Absolute()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (ym YearMonth) Before(other YearMonth) bool { return ym.Absolute() < other.Absolute() }
func (ym YearMonth) After(other YearMonth) bool  { return ym.Absolute() > other.Absolute() }
func (ym YearMonth) IsZero() bool                { return ym.Year == 0 && ym.Month == 0 }

func (ym YearMonth) AddMonths(n int) YearMonth {
	abs := ym.Absolute() - 1 + n
	return YearMonth{Year: floorDiv(abs, 12), Month: time.Month(abs-floorDiv(abs, 12)*12 + 1)}
}

func (ym YearMonth) Valid() bool { return ym.Month >= time.January && ym.Month <= time.December }

func (ym YearMonth) String() string { return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month)) }

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// YearMonthRange is an inclusive range of months.
type YearMonthRange struct {
	Start YearMonth
	End   YearMonth
}

// Contains reports whether ym falls within [Start, End].
func (r YearMonthRange) Contains(ym YearMonth) bool {
	return !ym.Before(r.Start) && !ym.After(r.End)
}

func (r YearMonthRange) Valid() bool {
	return r.Start.Valid() && r.End.Valid() && !r.End.Before(r.Start)
}

func (r YearMonthRange) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}

// =============================================================================
// CALENDAR HELPERS - All date-only comparisons go through DateOf
// =============================================================================

// DateOf returns the wall-clock calendar date of t as UTC midnight.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func StartOfMonth(ym YearMonth) time.Time { return NewDate(ym.Year, ym.Month, 1) }

func EndOfMonth(ym YearMonth) time.Time { return StartOfMonth(ym).AddDate(0, 1, -1) }

// DateIn returns day of the given month, clamped to the month's last day.
func DateIn(ym YearMonth, day int) time.Time {
	last := EndOfMonth(ym).Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return NewDate(ym.Year, ym.Month, day)
}

// DaysBetween returns whole calendar days from one date to another.
func DaysBetween(from, to time.Time) int {
	return int(DateOf(to).Sub(DateOf(from)).Hours() / 24)
}
