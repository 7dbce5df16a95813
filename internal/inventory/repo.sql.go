package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository exposes the transactional store on a transaction owned by
// another module, so its own writes and the stock changes commit together.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const skuColumns = `s.id, s.user_id, s.sku, COALESCE(s.descricao, ''), s.quantidade, s.package_type_id, s.is_kit, s.ativo, s.is_monthly, s.monthly_price, s.monthly_start_date`

func scanSKU(row pgx.CollectableRow) (SKU, error) {
	var sku SKU
	err := row.Scan(&sku.ID, &sku.UserID, &sku.Code, &sku.Description, &sku.Quantity, &sku.PackageTypeID,
		&sku.IsKit, &sku.Active, &sku.IsMonthly, &sku.MonthlyPrice, &sku.MonthlyStartDate)
	return sku, err
}

func scanMovement(row pgx.CollectableRow) (Movement, error) {
	var m Movement
	var t string
	err := row.Scan(&m.ID, &m.SKUID, &m.SKUCode, &m.UserID, &t, &m.Quantity, &m.Reason, &m.RelatedSaleID, &m.CreatedAt)
	m.Type = MovementType(t)
	return m, err
}

func oneSKU(rows pgx.Rows, err error, what string) (SKU, error) {
	if err != nil {
		return SKU{}, err
	}
	sku, err := pgx.CollectExactlyOneRow(rows, scanSKU)
	if errors.Is(err, pgx.ErrNoRows) {
		return SKU{}, fmt.Errorf("sku %s: %w", what, shared.ErrNotFound)
	}
	return sku, err
}

func (r *Repository) GetSKU(ctx context.Context, id int64) (SKU, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+skuColumns+` FROM skus s WHERE s.id = $1`, id)
	return oneSKU(rows, err, fmt.Sprint(id))
}

func (r *Repository) ListComponentStock(ctx context.Context, kitID int64) ([]KitComponent, error) {
	rows, err := r.pool.Query(ctx, `SELECT kc.kit_sku_id, kc.child_sku_id, c.sku, kc.quantity_per_kit, c.quantidade
FROM kit_components kc
JOIN skus c ON c.id = kc.child_sku_id
WHERE kc.kit_sku_id = $1
ORDER BY kc.child_sku_id`, kitID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (KitComponent, error) {
		var c KitComponent
		err := row.Scan(&c.KitSKUID, &c.ChildSKUID, &c.ChildCode, &c.QuantityPerKit, &c.ChildQuantity)
		return c, err
	})
}

func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT sm.id, sm.sku_id, s.sku, sm.user_id, sm.movement_type, sm.quantity_change, sm.reason, sm.related_sale_id, sm.created_at
FROM stock_movements sm
JOIN skus s ON s.id = sm.sku_id
WHERE sm.user_id = $1 AND ($2 = '' OR UPPER(s.sku) = UPPER($2))
ORDER BY sm.created_at DESC, sm.id DESC
LIMIT $3`, filter.UserID, filter.SKUCode, filter.Limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanMovement)
}

func (r *Repository) ListPackageTypes(ctx context.Context) ([]PackageType, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, price FROM package_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[PackageType])
}

func (r *txRepository) GetSKUForUpdate(ctx context.Context, id int64) (SKU, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+skuColumns+` FROM skus s WHERE s.id = $1 FOR UPDATE`, id)
	return oneSKU(rows, err, fmt.Sprint(id))
}

func (r *txRepository) FindSKUForUpdate(ctx context.Context, userID, code string) (SKU, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+skuColumns+` FROM skus s
WHERE s.user_id = $1 AND UPPER(TRIM(s.sku)) = UPPER(TRIM($2))
FOR UPDATE`, userID, code)
	return oneSKU(rows, err, code)
}

// LockSKUs locks rows in id order so concurrent kit exits never deadlock.
func (r *txRepository) LockSKUs(ctx context.Context, ids []int64) (map[int64]SKU, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+skuColumns+` FROM skus s WHERE s.id = ANY($1) ORDER BY s.id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	skus, err := pgx.CollectRows(rows, scanSKU)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]SKU, len(skus))
	for _, sku := range skus {
		out[sku.ID] = sku
	}
	return out, nil
}

func (r *txRepository) ListKitComponents(ctx context.Context, kitID int64) ([]KitComponent, error) {
	rows, err := r.tx.Query(ctx, `SELECT kc.kit_sku_id, kc.child_sku_id, c.sku, kc.quantity_per_kit
FROM kit_components kc
JOIN skus c ON c.id = kc.child_sku_id
WHERE kc.kit_sku_id = $1
ORDER BY kc.child_sku_id`, kitID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (KitComponent, error) {
		var c KitComponent
		err := row.Scan(&c.KitSKUID, &c.ChildSKUID, &c.ChildCode, &c.QuantityPerKit)
		return c, err
	})
}

func (r *txRepository) IsComponent(ctx context.Context, skuID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM kit_components WHERE child_sku_id = $1)`, skuID).Scan(&exists)
	return exists, err
}

func (r *txRepository) AdjustQuantity(ctx context.Context, skuID int64, delta int) error {
	tag, err := r.tx.Exec(ctx, `UPDATE skus SET quantidade = quantidade + $1 WHERE id = $2`, delta, skuID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sku %d: %w", skuID, shared.ErrNotFound)
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (sku_id, user_id, movement_type, quantity_change, reason, related_sale_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
RETURNING id, created_at`, m.SKUID, m.UserID, string(m.Type), m.Quantity, m.Reason, m.RelatedSaleID).Scan(&m.ID, &m.CreatedAt)
	return m, err
}

func (r *txRepository) GetMovementForUpdate(ctx context.Context, id int64) (Movement, error) {
	rows, err := r.tx.Query(ctx, `SELECT sm.id, sm.sku_id, s.sku, sm.user_id, sm.movement_type, sm.quantity_change, sm.reason, sm.related_sale_id, sm.created_at
FROM stock_movements sm
JOIN skus s ON s.id = sm.sku_id
WHERE sm.id = $1
FOR UPDATE OF sm`, id)
	if err != nil {
		return Movement{}, err
	}
	m, err := pgx.CollectExactlyOneRow(rows, scanMovement)
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, shared.ErrNotFound
	}
	return m, err
}

func (r *txRepository) DeleteMovement(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM stock_movements WHERE id = $1`, id)
	return err
}

func (r *txRepository) DeleteSKU(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM skus WHERE id = $1`, id)
	return err
}
