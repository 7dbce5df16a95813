package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Repository persists billing data in PostgreSQL.
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

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("billing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ListPrices returns the catalog price per type. When a type has several rows the
// most recent one wins.
func (r *Repository) ListPrices(ctx context.Context, types []ServiceType) (map[ServiceType]decimal.Decimal, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	rows, err := r.pool.Query(ctx, `SELECT type, price FROM services WHERE type = ANY($1) AND price IS NOT NULL ORDER BY id`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	prices := make(map[ServiceType]decimal.Decimal, len(types))
	for rows.Next() {
		var t string
		var price decimal.Decimal
		if err := rows.Scan(&t, &price); err != nil {
			return nil, err
		}
		prices[ServiceType(t)] = price
	}
	return prices, rows.Err()
}

func (r *Repository) ListInvoices(ctx context.Context, userID string) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, uid, period, due_date, payment_date, total_amount, status
FROM invoices WHERE uid=$1 ORDER BY period DESC`, userID)
	if err != nil {
		return nil, err
	}
	invoices, err := pgx.CollectRows(rows, scanInvoice)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return invoices, nil
	}
	ids := make([]int64, len(invoices))
	index := make(map[int64]int, len(invoices))
	for i := range invoices {
		ids[i] = invoices[i].ID
		index[invoices[i].ID] = i
		invoices[i].Items = []InvoiceItem{}
	}
	itemRows, err := r.pool.Query(ctx, `SELECT id, invoice_id, description, quantity, unit_price, total_price, type, service_date
FROM invoice_items WHERE invoice_id = ANY($1) ORDER BY invoice_id, id`, ids)
	if err != nil {
		return nil, err
	}
	items, err := pgx.CollectRows(itemRows, scanItem)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		i := index[item.InvoiceID]
		invoices[i].Items = append(invoices[i].Items, item)
	}
	return invoices, nil
}

func (r *Repository) ListBillableUsers(ctx context.Context, period Period) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT u.uid FROM users u
WHERE u.role = 'cliente' AND (
  EXISTS (SELECT 1 FROM user_contracts uc WHERE uc.uid = u.uid)
  OR EXISTS (SELECT 1 FROM skus s WHERE s.user_id = u.uid AND s.is_monthly AND s.ativo)
  OR EXISTS (SELECT 1 FROM invoices i WHERE i.uid = u.uid AND i.period = $1)
  OR EXISTS (SELECT 1 FROM stock_movements sm WHERE sm.user_id = u.uid AND sm.movement_type = 'saida' AND sm.created_at BETWEEN $2 AND $3)
)
ORDER BY u.uid`, period.String(), period.Start(), period.End())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *Repository) ListManualServices(ctx context.Context) ([]CatalogService, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, type, price, COALESCE(description, ''), config
FROM services WHERE type IN ('avulso_simples', 'avulso_quantidade') ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanService)
}

func (r *Repository) ListManualItemHistory(ctx context.Context, limit int) ([]ManualItemRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT ii.id, ii.invoice_id, ii.description, ii.quantity, ii.unit_price, ii.total_price, ii.type, ii.service_date,
  i.period, COALESCE(u.name, ''), COALESCE(u.email, '')
FROM invoice_items ii
JOIN invoices i ON i.id = ii.invoice_id
JOIN users u ON u.uid = i.uid
WHERE ii.type = 'manual'
ORDER BY ii.service_date DESC NULLS LAST, i.period DESC, ii.id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ManualItemRecord, error) {
		var rec ManualItemRecord
		var itemType string
		err := row.Scan(&rec.ID, &rec.InvoiceID, &rec.Description, &rec.Quantity, &rec.UnitPrice, &rec.TotalPrice, &itemType, &rec.ServiceDate,
			&rec.Period, &rec.ClientName, &rec.ClientEmail)
		rec.Type = ItemType(itemType)
		return rec, err
	})
}

func (r *Repository) ListOverview(ctx context.Context) ([]ClientOverview, error) {
	rows, err := r.pool.Query(ctx, `SELECT u.uid, u.email, last.period, last.total_amount, last.status
FROM users u
LEFT JOIN LATERAL (
  SELECT i.period, i.total_amount, i.status FROM invoices i WHERE i.uid = u.uid ORDER BY i.period DESC LIMIT 1
) last ON TRUE
WHERE u.role = 'cliente'
ORDER BY u.email`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ClientOverview, error) {
		var ov ClientOverview
		var total decimal.NullDecimal
		if err := row.Scan(&ov.UserID, &ov.Email, &ov.LastPeriod, &total, &ov.LastStatus); err != nil {
			return ClientOverview{}, err
		}
		if total.Valid {
			ov.LastTotal = &total.Decimal
		}
		return ov, nil
	})
}

func (r *txRepository) ListStorageContracts(ctx context.Context, userID string) ([]Contract, error) {
	rows, err := r.tx.Query(ctx, `SELECT uc.id, uc.uid, uc.service_id, s.type, COALESCE(uc.volume, 0), COALESCE(uc.start_date, DATE '1970-01-01')
FROM user_contracts uc
JOIN services s ON s.id = uc.service_id
WHERE uc.uid = $1 AND s.type IN ('base_storage', 'additional_storage')
ORDER BY uc.start_date NULLS FIRST, uc.id`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Contract, error) {
		var c Contract
		var t string
		err := row.Scan(&c.ID, &c.UserID, &c.ServiceID, &t, &c.Volume, &c.StartDate)
		c.ServiceType = ServiceType(t)
		return c, err
	})
}

func (r *txRepository) ListMonthlySKUs(ctx context.Context, userID string) ([]MonthlySKU, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, sku, monthly_price, monthly_start_date FROM skus
WHERE user_id = $1 AND is_monthly AND ativo AND monthly_price IS NOT NULL AND monthly_start_date IS NOT NULL
ORDER BY sku`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MonthlySKU, error) {
		var sku MonthlySKU
		err := row.Scan(&sku.SKUID, &sku.Code, &sku.Price, &sku.StartDate)
		return sku, err
	})
}

func (r *txRepository) ListSaleExits(ctx context.Context, userID string, from, to time.Time) ([]SaleExit, error) {
	rows, err := r.tx.Query(ctx, `SELECT sm.sku_id, sm.quantity_change, pt.name, pt.price
FROM stock_movements sm
JOIN skus s ON s.id = sm.sku_id
LEFT JOIN package_types pt ON pt.id = s.package_type_id
WHERE sm.user_id = $1
  AND sm.movement_type = 'saida'
  AND sm.reason LIKE $2
  AND sm.created_at BETWEEN $3 AND $4`, userID, inventory.ReasonSalePrefix+"%", from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SaleExit, error) {
		var exit SaleExit
		var price decimal.NullDecimal
		if err := row.Scan(&exit.SKUID, &exit.Quantity, &exit.PackageType, &price); err != nil {
			return SaleExit{}, err
		}
		if price.Valid {
			exit.PackagePrice = &price.Decimal
		}
		return exit, nil
	})
}

func (r *txRepository) GetService(ctx context.Context, id int64) (CatalogService, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, name, type, price, COALESCE(description, ''), config FROM services WHERE id = $1`, id)
	if err != nil {
		return CatalogService{}, err
	}
	svc, err := pgx.CollectExactlyOneRow(rows, scanService)
	if errors.Is(err, pgx.ErrNoRows) {
		return CatalogService{}, fmt.Errorf("service %d: %w", id, shared.ErrNotFound)
	}
	return svc, err
}

func (r *txRepository) UpsertInvoiceHeader(ctx context.Context, userID, period string, dueDate time.Time) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoices (uid, period, due_date, total_amount, status)
VALUES ($1, $2, $3, 0, 'pending')
ON CONFLICT (uid, period) DO UPDATE SET due_date = EXCLUDED.due_date, status = 'pending'
RETURNING id`, userID, period, dueDate).Scan(&id)
	return id, err
}

func (r *txRepository) EnsureInvoice(ctx context.Context, userID, period string, dueDate time.Time) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoices (uid, period, due_date, total_amount, status)
VALUES ($1, $2, $3, 0, 'pending')
ON CONFLICT (uid, period) DO NOTHING
RETURNING id`, userID, period, dueDate).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = r.tx.QueryRow(ctx, `SELECT id FROM invoices WHERE uid = $1 AND period = $2`, userID, period).Scan(&id)
	}
	return id, err
}

func (r *txRepository) ReplaceAutoItems(ctx context.Context, invoiceID int64, items []InvoiceItem) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1 AND type IN ('storage', 'shipment')`, invoiceID); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`INSERT INTO invoice_items (invoice_id, description, quantity, unit_price, total_price, type)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6)`, invoiceID, item.Description, item.Quantity, item.UnitPrice, item.TotalPrice, string(item.Type))
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) InsertManualItem(ctx context.Context, invoiceID int64, item InvoiceItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoice_items (invoice_id, description, quantity, unit_price, total_price, type, service_date)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, 'manual', $6) RETURNING id`,
		invoiceID, item.Description, item.Quantity, item.UnitPrice, item.TotalPrice, item.ServiceDate).Scan(&id)
	return id, err
}

func (r *txRepository) SumManualItems(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(total_price), 0) FROM invoice_items WHERE invoice_id = $1 AND type = 'manual'`, invoiceID).Scan(&sum)
	return sum, err
}

func (r *txRepository) SumItems(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(total_price), 0) FROM invoice_items WHERE invoice_id = $1`, invoiceID).Scan(&sum)
	return sum, err
}

func (r *txRepository) SetTotal(ctx context.Context, invoiceID int64, total decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoices SET total_amount = $1::numeric WHERE id = $2`, total, invoiceID)
	return err
}

func (r *txRepository) GetInvoice(ctx context.Context, invoiceID int64) (Invoice, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, uid, period, due_date, payment_date, total_amount, status FROM invoices WHERE id = $1`, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	invoice, err := pgx.CollectExactlyOneRow(rows, scanInvoice)
	if err != nil {
		return Invoice{}, err
	}
	itemRows, err := r.tx.Query(ctx, `SELECT id, invoice_id, description, quantity, unit_price, total_price, type, service_date
FROM invoice_items WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	invoice.Items, err = pgx.CollectRows(itemRows, scanItem)
	return invoice, err
}

func (r *txRepository) ListMisplacedManualItems(ctx context.Context) ([]MisplacedItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT ii.id, ii.invoice_id, i.uid, i.period, ii.service_date
FROM invoice_items ii
JOIN invoices i ON i.id = ii.invoice_id
WHERE ii.type = 'manual'
  AND ii.service_date IS NOT NULL
  AND to_char(ii.service_date, 'YYYY-MM') <> i.period
ORDER BY i.uid, ii.service_date
FOR UPDATE OF ii`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MisplacedItem, error) {
		var item MisplacedItem
		err := row.Scan(&item.ItemID, &item.InvoiceID, &item.UserID, &item.CurrentPeriod, &item.ServiceDate)
		return item, err
	})
}

func (r *txRepository) MoveItem(ctx context.Context, itemID, invoiceID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoice_items SET invoice_id = $1 WHERE id = $2`, invoiceID, itemID)
	return err
}

func scanInvoice(row pgx.CollectableRow) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.UserID, &inv.Period, &inv.DueDate, &inv.PaymentDate, &inv.Total, &inv.Status)
	return inv, err
}

func scanItem(row pgx.CollectableRow) (InvoiceItem, error) {
	var item InvoiceItem
	var itemType string
	err := row.Scan(&item.ID, &item.InvoiceID, &item.Description, &item.Quantity, &item.UnitPrice, &item.TotalPrice, &itemType, &item.ServiceDate)
	item.Type = ItemType(itemType)
	return item, err
}

func scanService(row pgx.CollectableRow) (CatalogService, error) {
	var svc CatalogService
	var t string
	var price decimal.NullDecimal
	var config []byte
	if err := row.Scan(&svc.ID, &svc.Name, &t, &price, &svc.Description, &config); err != nil {
		return CatalogService{}, err
	}
	svc.Type = ServiceType(t)
	if price.Valid {
		svc.Price = price.Decimal
	}
	if len(config) > 0 {
		var cfg struct {
			Tiers TierSet `json:"tiers"`
		}
		if err := json.Unmarshal(config, &cfg); err != nil {
			return CatalogService{}, fmt.Errorf("service %d config: %w", svc.ID, err)
		}
		svc.Tiers = cfg.Tiers
	}
	return svc, nil
}
