package billing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// assembly is the derived state of one invoice computation.
type assembly struct {
	invoiceID int64
	autoItems []InvoiceItem
	total     decimal.Decimal
	warnings  []MissingPriceWarning
}

// assemble runs upsert header, replace automatic items and recompute total, in
// that order, on the caller's transaction.
func assemble(ctx context.Context, tx TxRepository, userID string, period Period, snap Snapshot) (assembly, error) {
	contracts, err := tx.ListStorageContracts(ctx, userID)
	if err != nil {
		return assembly{}, fmt.Errorf("billing: load contracts: %w", err)
	}
	skus, err := tx.ListMonthlySKUs(ctx, userID)
	if err != nil {
		return assembly{}, fmt.Errorf("billing: load monthly skus: %w", err)
	}
	exits, err := tx.ListSaleExits(ctx, userID, period.Start(), period.End())
	if err != nil {
		return assembly{}, fmt.Errorf("billing: load shipments: %w", err)
	}

	storage := buildStorageItems(period, snap, contracts, skus)
	shipments, shipmentWarnings := AggregateShipments(exits)
	items := append(storage.items, shipments...)
	warnings := append(storage.warnings, shipmentWarnings...)

	invoiceID, err := tx.UpsertInvoiceHeader(ctx, userID, period.String(), period.DueDate())
	if err != nil {
		return assembly{}, fmt.Errorf("billing: upsert invoice: %w", err)
	}
	if err := tx.ReplaceAutoItems(ctx, invoiceID, items); err != nil {
		return assembly{}, fmt.Errorf("billing: replace items: %w", err)
	}
	manual, err := tx.SumManualItems(ctx, invoiceID)
	if err != nil {
		return assembly{}, fmt.Errorf("billing: sum manual items: %w", err)
	}
	total := sumTotals(items).Add(manual)
	if err := tx.SetTotal(ctx, invoiceID, total); err != nil {
		return assembly{}, fmt.Errorf("billing: set total: %w", err)
	}
	return assembly{invoiceID: invoiceID, autoItems: items, total: total, warnings: warnings}, nil
}

// resum writes the sum of every current item as the invoice total.
func resum(ctx context.Context, tx TxRepository, invoiceID int64) (decimal.Decimal, error) {
	total, err := tx.SumItems(ctx, invoiceID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("billing: sum items: %w", err)
	}
	if err := tx.SetTotal(ctx, invoiceID, total); err != nil {
		return decimal.Zero, fmt.Errorf("billing: set total: %w", err)
	}
	return total, nil
}
