package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

type memoryExit struct {
	userID       string
	at           time.Time
	movementType inventory.MovementType
	reason       string
	exit         SaleExit
}

type memoryState struct {
	invoices map[int64]Invoice
	items    map[int64]InvoiceItem
	nextID   int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		invoices: make(map[int64]Invoice, len(s.invoices)),
		items:    make(map[int64]InvoiceItem, len(s.items)),
		nextID:   s.nextID,
	}
	for k, v := range s.invoices {
		out.invoices[k] = v
	}
	for k, v := range s.items {
		out.items[k] = v
	}
	return out
}

type memoryRepo struct {
	mu        sync.Mutex
	prices    map[ServiceType]decimal.Decimal
	services  map[int64]CatalogService
	contracts map[string][]Contract
	monthly   map[string][]MonthlySKU
	exits     []memoryExit
	users     []string
	state     memoryState
	failOn    map[string]error
	hook      func(ctx context.Context) error
}

type memoryTx struct {
	repo  *memoryRepo
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		prices:    map[ServiceType]decimal.Decimal{},
		services:  map[int64]CatalogService{},
		contracts: map[string][]Contract{},
		monthly:   map[string][]MonthlySKU{},
		state:     memoryState{invoices: map[int64]Invoice{}, items: map[int64]InvoiceItem{}},
		failOn:    map[string]error{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	working := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r, state: &working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.state = working
	return nil
}

func (r *memoryRepo) ListPrices(ctx context.Context, types []ServiceType) (map[ServiceType]decimal.Decimal, error) {
	out := map[ServiceType]decimal.Decimal{}
	for _, t := range types {
		if p, ok := r.prices[t]; ok {
			out[t] = p
		}
	}
	return out, nil
}

func (r *memoryRepo) ListInvoices(ctx context.Context, userID string) ([]Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, state: &r.state}
	var out []Invoice
	for id, inv := range r.state.invoices {
		if inv.UserID != userID {
			continue
		}
		full, _ := tx.GetInvoice(ctx, id)
		out = append(out, full)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period > out[j].Period })
	return out, nil
}

func (r *memoryRepo) ListBillableUsers(ctx context.Context, period Period) ([]string, error) {
	return append([]string(nil), r.users...), nil
}

func (r *memoryRepo) ListManualServices(ctx context.Context) ([]CatalogService, error) {
	var out []CatalogService
	for _, svc := range r.services {
		if svc.Type == ServiceFlatOneOff || svc.Type == ServiceTieredOneOff {
			out = append(out, svc)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListManualItemHistory(ctx context.Context, limit int) ([]ManualItemRecord, error) {
	var out []ManualItemRecord
	for _, item := range r.state.items {
		if item.Type == ItemManual {
			out = append(out, ManualItemRecord{InvoiceItem: item, Period: r.state.invoices[item.InvoiceID].Period})
		}
	}
	return out, nil
}

func (r *memoryRepo) ListOverview(ctx context.Context) ([]ClientOverview, error) {
	return nil, nil
}

func (tx *memoryTx) fail(op string) error {
	if err, ok := tx.repo.failOn[op]; ok {
		return err
	}
	return nil
}

func (tx *memoryTx) ListStorageContracts(ctx context.Context, userID string) ([]Contract, error) {
	if err := tx.fail("contracts:" + userID); err != nil {
		return nil, err
	}
	if tx.repo.hook != nil {
		if err := tx.repo.hook(ctx); err != nil {
			return nil, err
		}
	}
	return tx.repo.contracts[userID], nil
}

func (tx *memoryTx) ListMonthlySKUs(ctx context.Context, userID string) ([]MonthlySKU, error) {
	return tx.repo.monthly[userID], nil
}

func (tx *memoryTx) ListSaleExits(ctx context.Context, userID string, from, to time.Time) ([]SaleExit, error) {
	var out []SaleExit
	for _, e := range tx.repo.exits {
		if e.userID != userID || e.at.Before(from) || e.at.After(to) {
			continue
		}
		if e.movementType == inventory.MovementOut && strings.HasPrefix(e.reason, inventory.ReasonSalePrefix) {
			out = append(out, e.exit)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetService(ctx context.Context, id int64) (CatalogService, error) {
	svc, ok := tx.repo.services[id]
	if !ok {
		return CatalogService{}, fmt.Errorf("service %d: %w", id, shared.ErrNotFound)
	}
	return svc, nil
}

func (tx *memoryTx) findInvoice(userID, period string) (Invoice, bool) {
	for _, inv := range tx.state.invoices {
		if inv.UserID == userID && inv.Period == period {
			return inv, true
		}
	}
	return Invoice{}, false
}

func (tx *memoryTx) UpsertInvoiceHeader(ctx context.Context, userID, period string, dueDate time.Time) (int64, error) {
	if inv, ok := tx.findInvoice(userID, period); ok {
		inv.DueDate = dueDate
		inv.Status = InvoiceStatusPending
		tx.state.invoices[inv.ID] = inv
		return inv.ID, nil
	}
	return tx.EnsureInvoice(ctx, userID, period, dueDate)
}

func (tx *memoryTx) EnsureInvoice(ctx context.Context, userID, period string, dueDate time.Time) (int64, error) {
	if inv, ok := tx.findInvoice(userID, period); ok {
		return inv.ID, nil
	}
	tx.state.nextID++
	id := tx.state.nextID
	tx.state.invoices[id] = Invoice{ID: id, UserID: userID, Period: period, DueDate: dueDate, Status: InvoiceStatusPending, Total: decimal.Zero}
	return id, nil
}

func (tx *memoryTx) ReplaceAutoItems(ctx context.Context, invoiceID int64, items []InvoiceItem) error {
	for id, item := range tx.state.items {
		if item.InvoiceID == invoiceID && item.Type != ItemManual {
			delete(tx.state.items, id)
		}
	}
	for _, item := range items {
		tx.state.nextID++
		item.ID = tx.state.nextID
		item.InvoiceID = invoiceID
		tx.state.items[item.ID] = item
	}
	return nil
}

func (tx *memoryTx) InsertManualItem(ctx context.Context, invoiceID int64, item InvoiceItem) (int64, error) {
	tx.state.nextID++
	item.ID = tx.state.nextID
	item.InvoiceID = invoiceID
	item.Type = ItemManual
	tx.state.items[item.ID] = item
	return item.ID, nil
}

func (tx *memoryTx) SumManualItems(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, item := range tx.state.items {
		if item.InvoiceID == invoiceID && item.Type == ItemManual {
			sum = sum.Add(item.TotalPrice)
		}
	}
	return sum, nil
}

func (tx *memoryTx) SumItems(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, item := range tx.state.items {
		if item.InvoiceID == invoiceID {
			sum = sum.Add(item.TotalPrice)
		}
	}
	return sum, nil
}

func (tx *memoryTx) SetTotal(ctx context.Context, invoiceID int64, total decimal.Decimal) error {
	if err := tx.fail("set_total"); err != nil {
		return err
	}
	inv, ok := tx.state.invoices[invoiceID]
	if !ok {
		return errors.New("invoice missing")
	}
	inv.Total = total
	tx.state.invoices[invoiceID] = inv
	return nil
}

func (tx *memoryTx) GetInvoice(ctx context.Context, invoiceID int64) (Invoice, error) {
	inv, ok := tx.state.invoices[invoiceID]
	if !ok {
		return Invoice{}, shared.ErrNotFound
	}
	inv.Items = []InvoiceItem{}
	for _, item := range tx.state.items {
		if item.InvoiceID == invoiceID {
			inv.Items = append(inv.Items, item)
		}
	}
	sort.Slice(inv.Items, func(i, j int) bool { return inv.Items[i].ID < inv.Items[j].ID })
	return inv, nil
}

func (tx *memoryTx) ListMisplacedManualItems(ctx context.Context) ([]MisplacedItem, error) {
	var out []MisplacedItem
	for _, item := range tx.state.items {
		if item.Type != ItemManual || item.ServiceDate == nil {
			continue
		}
		inv := tx.state.invoices[item.InvoiceID]
		if PeriodOf(*item.ServiceDate).String() != inv.Period {
			out = append(out, MisplacedItem{ItemID: item.ID, InvoiceID: inv.ID, UserID: inv.UserID, CurrentPeriod: inv.Period, ServiceDate: *item.ServiceDate})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (tx *memoryTx) MoveItem(ctx context.Context, itemID, invoiceID int64) error {
	item := tx.state.items[itemID]
	item.InvoiceID = invoiceID
	tx.state.items[itemID] = item
	return nil
}
