package inventory

import (
	"context"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	ListPackageTypes(ctx context.Context) ([]PackageType, error)
	GetSKU(ctx context.Context, id int64) (SKU, error)
	ListComponentStock(ctx context.Context, kitID int64) ([]KitComponent, error)
}

// TxRepository exposes transactional operations. Every counter change happens
// through it together with the ledger row describing it.
type TxRepository interface {
	GetSKUForUpdate(ctx context.Context, id int64) (SKU, error)
	FindSKUForUpdate(ctx context.Context, userID, code string) (SKU, error)
	LockSKUs(ctx context.Context, ids []int64) (map[int64]SKU, error)
	ListKitComponents(ctx context.Context, kitID int64) ([]KitComponent, error)
	IsComponent(ctx context.Context, skuID int64) (bool, error)
	AdjustQuantity(ctx context.Context, skuID int64, delta int) error
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
	GetMovementForUpdate(ctx context.Context, id int64) (Movement, error)
	DeleteMovement(ctx context.Context, id int64) error
	DeleteSKU(ctx context.Context, id int64) error
}
