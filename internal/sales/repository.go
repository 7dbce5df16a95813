package sales

import (
	"context"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListSales(ctx context.Context, userID string, limit int) ([]Sale, error)
	// InsertSales skips rows already known by (order, sku, user) and returns how many were new.
	InsertSales(ctx context.Context, sales []Sale) (int64, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetSaleForUpdate(ctx context.Context, id int64) (Sale, error)
	FindSKUForUpdate(ctx context.Context, userID, code string) (inventory.SKU, error)
	DeductStock(ctx context.Context, req inventory.DeductRequest) ([]inventory.Movement, error)
	MarkProcessed(ctx context.Context, id int64, status string) (Sale, error)
	UpdateStatus(ctx context.Context, id int64, status string) (Sale, error)
}
