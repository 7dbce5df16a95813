package billing

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Period is a calendar month evaluated in UTC.
type Period struct {
	Year  int
	Month time.Month
}

const periodLayout = "2006-01"

// NewPeriod validates year and month.
func NewPeriod(year, month int) (Period, error) {
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w: month %d out of range", shared.ErrInvalidPeriod, month)
	}
	if year < 2000 || year > 9999 {
		return Period{}, fmt.Errorf("%w: year %d out of range", shared.ErrInvalidPeriod, year)
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

// ParsePeriod parses a YYYY-MM string.
func ParsePeriod(value string) (Period, error) {
	if len(value) != len(periodLayout) {
		return Period{}, fmt.Errorf("%w: %q is not YYYY-MM", shared.ErrInvalidPeriod, value)
	}
	t, err := time.Parse(periodLayout, value)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q is not YYYY-MM", shared.ErrInvalidPeriod, value)
	}
	return NewPeriod(t.Year(), int(t.Month()))
}

// Validate rejects the zero value and out-of-range fields.
func (p Period) Validate() error {
	_, err := NewPeriod(p.Year, int(p.Month))
	return err
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: t.Month()}
}

// Start is the first instant of the month.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the last instant of the month, inclusive.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// DaysInMonth counts calendar days of the month.
func (p Period) DaysInMonth() int {
	return p.End().Day()
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	t = t.UTC()
	return t.Year() == p.Year && t.Month() == p.Month
}

// DueDate is the 5th of the following month.
func (p Period) DueDate() time.Time {
	return time.Date(p.Year, p.Month+1, 5, 0, 0, 0, 0, time.UTC)
}

// Next returns the following month.
func (p Period) Next() Period {
	return PeriodOf(p.Start().AddDate(0, 1, 0))
}

// Prev returns the preceding month.
func (p Period) Prev() Period {
	return PeriodOf(p.Start().AddDate(0, -1, 0))
}

func (p Period) String() string {
	return p.Start().Format(periodLayout)
}

// MarshalText renders the period as YYYY-MM.
func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses YYYY-MM.
func (p *Period) UnmarshalText(data []byte) error {
	parsed, err := ParsePeriod(string(data))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
