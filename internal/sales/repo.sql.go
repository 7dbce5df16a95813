package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx    pgx.Tx
	stock inventory.TxRepository
}

// WithTx executes the callback inside repeatable-read transaction. Stock changes
// made through the callback share the transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, stock: inventory.NewTxRepository(tx)})
	})
}

const saleColumns = `id, external_order_id, sku, user_id, channel, quantity, shipping_status, processed_at, created_at`

func scanSale(row pgx.CollectableRow) (Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.ExternalOrderID, &s.SKU, &s.UserID, &s.Channel, &s.Quantity, &s.ShippingStatus, &s.ProcessedAt, &s.CreatedAt)
	return s, err
}

func (r *Repository) ListSales(ctx context.Context, userID string, limit int) ([]Sale, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM sales WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanSale)
}

func (r *Repository) InsertSales(ctx context.Context, sales []Sale) (int64, error) {
	if len(sales) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, s := range sales {
		batch.Queue(`INSERT INTO sales (external_order_id, sku, user_id, channel, quantity, shipping_status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7::timestamptz, NOW()))
ON CONFLICT (external_order_id, sku, user_id) DO NOTHING`,
			s.ExternalOrderID, s.SKU, s.UserID, s.Channel, s.Quantity, s.ShippingStatus, nullTime(s.CreatedAt))
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	var inserted int64
	for range sales {
		tag, err := br.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

func (r *txRepository) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return Sale{}, err
	}
	sale, err := pgx.CollectExactlyOneRow(rows, scanSale)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, fmt.Errorf("sale %d: %w", id, shared.ErrNotFound)
	}
	return sale, err
}

func (r *txRepository) FindSKUForUpdate(ctx context.Context, userID, code string) (inventory.SKU, error) {
	return r.stock.FindSKUForUpdate(ctx, userID, code)
}

func (r *txRepository) DeductStock(ctx context.Context, req inventory.DeductRequest) ([]inventory.Movement, error) {
	return inventory.Deduct(ctx, r.stock, req)
}

func (r *txRepository) MarkProcessed(ctx context.Context, id int64, status string) (Sale, error) {
	rows, err := r.tx.Query(ctx, `UPDATE sales SET shipping_status = $1, processed_at = NOW() WHERE id = $2 RETURNING `+saleColumns, status, id)
	if err != nil {
		return Sale{}, err
	}
	return pgx.CollectExactlyOneRow(rows, scanSale)
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status string) (Sale, error) {
	rows, err := r.tx.Query(ctx, `UPDATE sales SET shipping_status = $1 WHERE id = $2 RETURNING `+saleColumns, status, id)
	if err != nil {
		return Sale{}, err
	}
	return pgx.CollectExactlyOneRow(rows, scanSale)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
