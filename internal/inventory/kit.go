package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Deduct removes req.Quantity units from a SKU inside the caller's transaction.
// A kit is decomposed into its components: every child row is locked and checked
// before any counter changes, so either all children move or none do. The kit
// itself keeps its counter and receives one informational exit row.
//
// Deduct is not idempotent; callers guard against replays.
func Deduct(ctx context.Context, tx TxRepository, req DeductRequest) ([]Movement, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	sku, err := tx.GetSKUForUpdate(ctx, req.SKUID)
	if err != nil {
		return nil, fmt.Errorf("inventory: lock sku %d: %w", req.SKUID, err)
	}
	if !sku.IsKit {
		m, err := deductPlain(ctx, tx, sku, req)
		if err != nil {
			return nil, err
		}
		return []Movement{m}, nil
	}
	return deductKit(ctx, tx, sku, req)
}

func deductPlain(ctx context.Context, tx TxRepository, sku SKU, req DeductRequest) (Movement, error) {
	if sku.Quantity < req.Quantity {
		return Movement{}, &shared.InsufficientStockError{SKU: sku.Code, Available: sku.Quantity, Required: req.Quantity}
	}
	if err := tx.AdjustQuantity(ctx, sku.ID, -req.Quantity); err != nil {
		return Movement{}, fmt.Errorf("inventory: decrement %s: %w", sku.Code, err)
	}
	return tx.InsertMovement(ctx, Movement{
		SKUID:         sku.ID,
		UserID:        sku.UserID,
		Type:          MovementOut,
		Quantity:      req.Quantity,
		Reason:        req.Reason,
		RelatedSaleID: req.SaleRef,
	})
}

func deductKit(ctx context.Context, tx TxRepository, kit SKU, req DeductRequest) ([]Movement, error) {
	components, err := tx.ListKitComponents(ctx, kit.ID)
	if err != nil {
		return nil, fmt.Errorf("inventory: load kit %s: %w", kit.Code, err)
	}
	if len(components) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrNoKitComponents, kit.Code)
	}

	need := make(map[int64]int, len(components))
	for _, c := range components {
		need[c.ChildSKUID] += c.QuantityPerKit * req.Quantity
	}
	ids := make([]int64, 0, len(need))
	for id := range need {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	children, err := tx.LockSKUs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("inventory: lock kit %s components: %w", kit.Code, err)
	}
	for _, id := range ids {
		child, ok := children[id]
		if !ok {
			return nil, fmt.Errorf("inventory: kit %s component %d: %w", kit.Code, id, shared.ErrNotFound)
		}
		if child.Quantity < need[id] {
			return nil, &shared.InsufficientStockError{SKU: child.Code, Available: child.Quantity, Required: need[id]}
		}
	}

	movements := make([]Movement, 0, len(ids)+1)
	reason := KitReason(kit.Code, req.Reason)
	for _, id := range ids {
		child := children[id]
		if err := tx.AdjustQuantity(ctx, id, -need[id]); err != nil {
			return nil, fmt.Errorf("inventory: decrement %s: %w", child.Code, err)
		}
		m, err := tx.InsertMovement(ctx, Movement{
			SKUID:         id,
			UserID:        child.UserID,
			Type:          MovementOut,
			Quantity:      need[id],
			Reason:        reason,
			RelatedSaleID: req.SaleRef,
		})
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	m, err := tx.InsertMovement(ctx, Movement{
		SKUID:         kit.ID,
		UserID:        kit.UserID,
		Type:          MovementOut,
		Quantity:      req.Quantity,
		Reason:        req.Reason,
		RelatedSaleID: req.SaleRef,
	})
	if err != nil {
		return nil, err
	}
	return append(movements, m), nil
}
