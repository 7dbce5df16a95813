package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	CatalogStore
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListInvoices(ctx context.Context, userID string) ([]Invoice, error)
	ListBillableUsers(ctx context.Context, period Period) ([]string, error)
	ListManualServices(ctx context.Context) ([]CatalogService, error)
	ListManualItemHistory(ctx context.Context, limit int) ([]ManualItemRecord, error)
	ListOverview(ctx context.Context) ([]ClientOverview, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	ListStorageContracts(ctx context.Context, userID string) ([]Contract, error)
	ListMonthlySKUs(ctx context.Context, userID string) ([]MonthlySKU, error)
	ListSaleExits(ctx context.Context, userID string, from, to time.Time) ([]SaleExit, error)
	GetService(ctx context.Context, id int64) (CatalogService, error)

	UpsertInvoiceHeader(ctx context.Context, userID, period string, dueDate time.Time) (int64, error)
	EnsureInvoice(ctx context.Context, userID, period string, dueDate time.Time) (int64, error)
	ReplaceAutoItems(ctx context.Context, invoiceID int64, items []InvoiceItem) error
	InsertManualItem(ctx context.Context, invoiceID int64, item InvoiceItem) (int64, error)
	SumManualItems(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	SumItems(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	SetTotal(ctx context.Context, invoiceID int64, total decimal.Decimal) error
	GetInvoice(ctx context.Context, invoiceID int64) (Invoice, error)

	ListMisplacedManualItems(ctx context.Context) ([]MisplacedItem, error)
	MoveItem(ctx context.Context, itemID, invoiceID int64) error
}
