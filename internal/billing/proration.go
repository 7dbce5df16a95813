package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Proration is the charge of a monthly price for one period.
type Proration struct {
	// Active is false when billing starts after the period.
	Active      bool
	Partial     bool
	StartDay    int
	DaysCovered int
	DaysInMonth int
	Amount      decimal.Decimal
}

// Prorate applies the daily-rate method using the actual month length. The
// amount is rounded to cents once, here.
func Prorate(monthlyPrice decimal.Decimal, billingStart time.Time, period Period) Proration {
	dim := period.DaysInMonth()
	start := billingStart.UTC()
	if start.After(period.End()) {
		return Proration{Active: false, DaysInMonth: dim}
	}
	if !period.Contains(start) || start.Day() == 1 {
		return Proration{Active: true, DaysCovered: dim, DaysInMonth: dim, Amount: round2(monthlyPrice)}
	}
	covered := dim - start.Day() + 1
	amount := monthlyPrice.Mul(decimal.NewFromInt(int64(covered))).Div(decimal.NewFromInt(int64(dim)))
	return Proration{
		Active:      true,
		Partial:     true,
		StartDay:    start.Day(),
		DaysCovered: covered,
		DaysInMonth: dim,
		Amount:      round2(amount),
	}
}

// Describe appends the proportional suffix to a base description.
func (p Proration) Describe(base string) string {
	if !p.Partial {
		return base
	}
	return fmt.Sprintf(descProrated, base, p.DaysCovered, p.StartDay)
}

// round2 rounds half away from zero, which is half-up for charges.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
