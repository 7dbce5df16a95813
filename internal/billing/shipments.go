package billing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// AggregateShipments groups sale-driven exits by package type name. Exits of SKUs
// without a package type are not billed. Exits whose package type has no price
// are not billed either and come back as one warning per package type.
func AggregateShipments(exits []SaleExit) ([]InvoiceItem, []MissingPriceWarning) {
	type group struct {
		qty   int
		price decimal.Decimal
	}
	groups := make(map[string]*group)
	unpriced := make(map[string]int)
	for _, exit := range exits {
		if exit.PackageType == nil || *exit.PackageType == "" {
			continue
		}
		name := *exit.PackageType
		if exit.PackagePrice == nil {
			unpriced[name] += exit.Quantity
			continue
		}
		g, ok := groups[name]
		if !ok {
			g = &group{price: *exit.PackagePrice}
			groups[name] = g
		}
		g.qty += exit.Quantity
	}

	names := make([]string, 0, len(groups))
	for name, g := range groups {
		if g.qty > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	items := make([]InvoiceItem, 0, len(names))
	for _, name := range names {
		g := groups[name]
		items = append(items, InvoiceItem{
			Description: name,
			Quantity:    g.qty,
			UnitPrice:   g.price,
			TotalPrice:  round2(g.price.Mul(decimal.NewFromInt(int64(g.qty)))),
			Type:        ItemShipment,
		})
	}

	missing := make([]string, 0, len(unpriced))
	for name := range unpriced {
		missing = append(missing, name)
	}
	sort.Strings(missing)
	warnings := make([]MissingPriceWarning, 0, len(missing))
	for _, name := range missing {
		warnings = append(warnings, MissingPriceWarning{
			Type:        ServicePackage,
			PackageType: name,
			Message:     fmt.Sprintf("package type %s has no price, %d shipments not billed", name, unpriced[name]),
		})
	}
	return items, warnings
}
