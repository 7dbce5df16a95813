package billing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// storageCharges is the storage part of one computation.
type storageCharges struct {
	items            []InvoiceItem
	warnings         []MissingPriceWarning
	base             decimal.Decimal
	additional       decimal.Decimal
	additionalVolume int
	monthly          decimal.Decimal
}

// buildStorageItems prices the first contract of each storage type plus every
// monthly SKU. Contracts and SKUs starting after the period produce nothing.
func buildStorageItems(period Period, snap Snapshot, contracts []Contract, skus []MonthlySKU) storageCharges {
	var out storageCharges
	out.base, out.additional, out.monthly = decimal.Zero, decimal.Zero, decimal.Zero

	if c, ok := firstContract(contracts, ServiceBaseStorage); ok {
		price, warn := snap.Price(ServiceBaseStorage)
		if warn != nil {
			out.warnings = append(out.warnings, *warn)
		}
		if p := Prorate(price, c.StartDate, period); p.Active {
			out.items = append(out.items, InvoiceItem{
				Description: p.Describe(DescBaseStorage),
				Quantity:    1,
				UnitPrice:   p.Amount,
				TotalPrice:  p.Amount,
				Type:        ItemStorage,
			})
			out.base = p.Amount
		}
	}

	if c, ok := firstContract(contracts, ServiceAdditionalStorage); ok && c.Volume > 0 {
		price, warn := snap.Price(ServiceAdditionalStorage)
		if warn != nil {
			out.warnings = append(out.warnings, *warn)
		}
		if !c.StartDate.After(period.End()) {
			total := round2(price.Mul(decimal.NewFromInt(int64(c.Volume))))
			out.items = append(out.items, InvoiceItem{
				Description: DescAdditionalStorage,
				Quantity:    c.Volume,
				UnitPrice:   price,
				TotalPrice:  total,
				Type:        ItemStorage,
			})
			out.additional = total
			out.additionalVolume = c.Volume
		}
	}

	sorted := append([]MonthlySKU(nil), skus...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })
	for _, sku := range sorted {
		p := Prorate(sku.Price, sku.StartDate, period)
		if !p.Active {
			continue
		}
		out.items = append(out.items, InvoiceItem{
			Description: p.Describe(fmt.Sprintf(descMonthlySKU, sku.Code)),
			Quantity:    1,
			UnitPrice:   p.Amount,
			TotalPrice:  p.Amount,
			Type:        ItemStorage,
		})
		out.monthly = out.monthly.Add(p.Amount)
	}
	return out
}

func firstContract(contracts []Contract, t ServiceType) (Contract, bool) {
	var found *Contract
	for i := range contracts {
		c := contracts[i]
		if c.ServiceType != t {
			continue
		}
		if found == nil || c.StartDate.Before(found.StartDate) {
			found = &contracts[i]
		}
	}
	if found == nil {
		return Contract{}, false
	}
	return *found, true
}
