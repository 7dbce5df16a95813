package billing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Tier is one quantity band. A nil To marks the open-ended band.
type Tier struct {
	From  int             `json:"from"`
	To    *int            `json:"to"`
	Price decimal.Decimal `json:"price"`
}

func (t Tier) contains(qty int) bool {
	if qty < t.From {
		return false
	}
	return t.To == nil || qty <= *t.To
}

// TierSet is an ordered band list.
type TierSet []Tier

// UnitPrice returns the price of the first band containing qty. Quantities above
// every bounded band fall back to the open band; nothing else does.
func (s TierSet) UnitPrice(qty int) (decimal.Decimal, error) {
	for _, tier := range s {
		if tier.contains(qty) {
			return tier.Price, nil
		}
	}
	if open, ok := s.open(); ok && qty > s.maxBounded() {
		return open.Price, nil
	}
	return decimal.Zero, fmt.Errorf("%w: quantity %d", shared.ErrNoMatchingTier, qty)
}

// Validate checks bands are ordered, contiguous and non-overlapping, and that
// only the last band is open.
func (s TierSet) Validate() error {
	for i, tier := range s {
		if tier.Price.IsNegative() {
			return fmt.Errorf("tier %d: negative price", i)
		}
		if tier.To != nil && *tier.To < tier.From {
			return fmt.Errorf("tier %d: to %d before from %d", i, *tier.To, tier.From)
		}
		if tier.To == nil && i != len(s)-1 {
			return fmt.Errorf("tier %d: only the last tier may be open", i)
		}
		if i == 0 {
			continue
		}
		prev := s[i-1]
		if prev.To == nil || tier.From != *prev.To+1 {
			return fmt.Errorf("tier %d: must start right after tier %d", i, i-1)
		}
	}
	return nil
}

func (s TierSet) open() (Tier, bool) {
	for _, tier := range s {
		if tier.To == nil {
			return tier, true
		}
	}
	return Tier{}, false
}

func (s TierSet) maxBounded() int {
	highest := 0
	for _, tier := range s {
		if tier.To != nil && *tier.To > highest {
			highest = *tier.To
		}
	}
	return highest
}
