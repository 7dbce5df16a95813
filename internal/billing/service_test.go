package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

type recordingMetrics struct {
	mu       sync.Mutex
	invoices map[string]int
	missing  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{invoices: map[string]int{}, missing: map[string]int{}}
}

func (m *recordingMetrics) ObserveInvoice(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[result]++
}

func (m *recordingMetrics) ObserveMissingPrice(serviceType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missing[serviceType]++
}

type auditStub struct {
	logs []shared.AuditLog
}

func (a *auditStub) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type busyLocker struct{}

func (busyLocker) Acquire(ctx context.Context, key string) (func(), error) {
	return nil, shared.ErrTransactionConflict
}

var (
	august    = Period{Year: 2024, Month: time.August}
	september = Period{Year: 2024, Month: time.September}
)

func seededRepo() *memoryRepo {
	repo := newMemoryRepo()
	repo.prices[ServiceBaseStorage] = decimal.NewFromInt(397)
	repo.prices[ServiceAdditionalStorage] = decimal.NewFromInt(40)
	repo.services[1] = CatalogService{ID: 1, Name: "Armazenamento Base", Type: ServiceBaseStorage, Price: decimal.NewFromInt(397)}
	repo.services[10] = CatalogService{ID: 10, Name: "Conferência de nota", Type: ServiceFlatOneOff, Price: decimal.NewFromInt(25)}
	repo.services[11] = CatalogService{ID: 11, Name: "Etiquetagem", Type: ServiceTieredOneOff, Tiers: labelTiers()}
	repo.contracts["u1"] = []Contract{
		{ID: 1, UserID: "u1", ServiceID: 1, ServiceType: ServiceBaseStorage, StartDate: date(2024, time.August, 21)},
		{ID: 2, UserID: "u1", ServiceID: 2, ServiceType: ServiceAdditionalStorage, Volume: 3, StartDate: date(2024, time.August, 21)},
	}
	repo.monthly["u1"] = []MonthlySKU{{SKUID: 7, Code: "SKU-B", Price: decimal.NewFromInt(31), StartDate: date(2024, time.August, 11)}}
	repo.exits = []memoryExit{
		{userID: "u1", at: date(2024, time.August, 22), movementType: inventory.MovementOut, reason: inventory.SaleReason("2000001"), exit: SaleExit{SKUID: 7, Quantity: 2, PackageType: strPtr("Envelope"), PackagePrice: decPtr("3.50")}},
		{userID: "u1", at: date(2024, time.September, 2), movementType: inventory.MovementOut, reason: inventory.SaleReason("2000002"), exit: SaleExit{SKUID: 7, Quantity: 1, PackageType: strPtr("Envelope"), PackagePrice: decPtr("3.50")}},
	}
	repo.contracts["u2"] = []Contract{
		{ID: 3, UserID: "u2", ServiceID: 1, ServiceType: ServiceBaseStorage, StartDate: date(2024, time.September, 10)},
	}
	repo.users = []string{"u1", "u2"}
	return repo
}

func newTestService(repo *memoryRepo, metrics Metrics) *Service {
	return NewService(repo, nil, nil, ServiceConfig{Metrics: metrics})
}

func TestComputeInvoiceEntryMonth(t *testing.T) {
	repo := seededRepo()
	metrics := newRecordingMetrics()
	svc := newTestService(repo, metrics)

	inv, err := svc.ComputeInvoice(context.Background(), "u1", august)
	require.NoError(t, err)
	require.Equal(t, "2024-08", inv.Period)
	require.Equal(t, InvoiceStatusPending, inv.Status)
	require.Equal(t, date(2024, time.September, 5), inv.DueDate)
	require.Len(t, inv.Items, 4)

	byDesc := map[string]InvoiceItem{}
	for _, item := range inv.Items {
		byDesc[item.Description] = item
	}
	require.Equal(t, "140.87", byDesc["Armazenamento Base (até 1m³) - Proporcional 11 dias (entrada dia 21)"].TotalPrice.StringFixed(2))
	require.Equal(t, "120.00", byDesc[DescAdditionalStorage].TotalPrice.StringFixed(2))
	require.Equal(t, 3, byDesc[DescAdditionalStorage].Quantity)
	require.Equal(t, "21.00", byDesc["Armazenamento Mensal - SKU SKU-B - Proporcional 21 dias (entrada dia 11)"].TotalPrice.StringFixed(2))
	require.Equal(t, "7.00", byDesc["Envelope"].TotalPrice.StringFixed(2))
	require.Equal(t, "288.87", inv.Total.StringFixed(2))
	require.Empty(t, inv.Warnings)
	require.Equal(t, 1, metrics.invoices["success"])
}

func TestComputeInvoiceFollowingMonthIsFull(t *testing.T) {
	svc := newTestService(seededRepo(), nil)

	inv, err := svc.ComputeInvoice(context.Background(), "u1", september)
	require.NoError(t, err)
	// 397 + 120 + 31 + 3.50
	require.Equal(t, "551.50", inv.Total.StringFixed(2))
	require.Equal(t, date(2024, time.October, 5), inv.DueDate)
}

func TestComputeInvoiceIsIdempotent(t *testing.T) {
	repo := seededRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	first, err := svc.ComputeInvoice(ctx, "u1", august)
	require.NoError(t, err)
	second, err := svc.ComputeInvoice(ctx, "u1", august)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.True(t, first.Total.Equal(second.Total))
	require.Len(t, repo.state.invoices, 1)
	require.Len(t, repo.state.items, 4)
}

func TestComputeInvoiceFutureContractBillsNothing(t *testing.T) {
	svc := newTestService(seededRepo(), nil)

	inv, err := svc.ComputeInvoice(context.Background(), "u2", august)
	require.NoError(t, err)
	require.Empty(t, inv.Items)
	require.True(t, inv.Total.IsZero())
}

func TestComputeInvoiceMissingPriceWarns(t *testing.T) {
	repo := seededRepo()
	delete(repo.prices, ServiceAdditionalStorage)
	metrics := newRecordingMetrics()
	svc := newTestService(repo, metrics)

	inv, err := svc.ComputeInvoice(context.Background(), "u1", september)
	require.NoError(t, err)
	require.Len(t, inv.Warnings, 1)
	require.Equal(t, ServiceAdditionalStorage, inv.Warnings[0].Type)
	for _, item := range inv.Items {
		if item.Description == DescAdditionalStorage {
			require.True(t, item.TotalPrice.IsZero())
		}
	}
	require.Equal(t, "431.50", inv.Total.StringFixed(2))
	require.Equal(t, 1, metrics.missing[string(ServiceAdditionalStorage)])
}

func TestComputeInvoiceRejectsInvalidInput(t *testing.T) {
	svc := newTestService(seededRepo(), nil)
	ctx := context.Background()

	_, err := svc.ComputeInvoice(ctx, "u1", Period{Year: 2024, Month: 13})
	require.ErrorIs(t, err, shared.ErrInvalidPeriod)

	_, err = svc.ComputeInvoice(ctx, " ", august)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestComputeInvoiceRollsBackOnFailure(t *testing.T) {
	repo := seededRepo()
	repo.failOn["set_total"] = errors.New("disk full")
	metrics := newRecordingMetrics()
	svc := newTestService(repo, metrics)

	_, err := svc.ComputeInvoice(context.Background(), "u1", august)
	require.Error(t, err)
	require.Empty(t, repo.state.invoices)
	require.Empty(t, repo.state.items)
	require.Equal(t, 1, metrics.invoices["failure"])
}

func TestComputeInvoiceLockConflict(t *testing.T) {
	repo := seededRepo()
	svc := NewService(repo, busyLocker{}, nil, ServiceConfig{})

	_, err := svc.ComputeInvoice(context.Background(), "u1", august)
	require.ErrorIs(t, err, shared.ErrTransactionConflict)
	require.True(t, shared.Retryable(err))
	require.Empty(t, repo.state.invoices)
}

func TestComputeInvoiceTimeoutIsConflict(t *testing.T) {
	repo := seededRepo()
	repo.hook = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	svc := NewService(repo, nil, nil, ServiceConfig{ComputeTimeout: 20 * time.Millisecond})

	_, err := svc.ComputeInvoice(context.Background(), "u1", august)
	require.ErrorIs(t, err, shared.ErrTransactionConflict)
	require.Empty(t, repo.state.invoices)
}

func TestAddManualItemSurvivesRecompute(t *testing.T) {
	repo := seededRepo()
	audit := &auditStub{}
	svc := NewService(repo, nil, audit, ServiceConfig{})
	ctx := context.Background()
	serviceDate := date(2024, time.August, 25)

	inv, err := svc.AddManualItem(ctx, ManualItemInput{UserID: "u1", Period: august, ServiceID: 10, ServiceDate: &serviceDate, ActorID: "admin"})
	require.NoError(t, err)
	require.Len(t, inv.Items, 5)
	require.Equal(t, "313.87", inv.Total.StringFixed(2))
	require.Len(t, audit.logs, 1)
	require.Equal(t, "billing:manual_item", audit.logs[0].Action)

	again, err := svc.ComputeInvoice(ctx, "u1", august)
	require.NoError(t, err)
	require.Equal(t, inv.ID, again.ID)
	require.Equal(t, "313.87", again.Total.StringFixed(2))

	manual := 0
	for _, item := range again.Items {
		if item.Type == ItemManual {
			manual++
			require.Equal(t, "Conferência de nota", item.Description)
			require.Equal(t, "25.00", item.TotalPrice.StringFixed(2))
		}
	}
	require.Equal(t, 1, manual)
}

func TestAddManualItemTiered(t *testing.T) {
	svc := newTestService(seededRepo(), nil)
	ctx := context.Background()

	inv, err := svc.AddManualItem(ctx, ManualItemInput{UserID: "u2", Period: august, ServiceID: 11, Quantity: 150})
	require.NoError(t, err)
	require.Len(t, inv.Items, 1)
	require.Equal(t, "1.29", inv.Items[0].UnitPrice.StringFixed(2))
	require.Equal(t, "193.50", inv.Total.StringFixed(2))

	_, err = svc.AddManualItem(ctx, ManualItemInput{UserID: "u2", Period: august, ServiceID: 11, Quantity: 0})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAddManualItemValidation(t *testing.T) {
	repo := seededRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()
	outside := date(2024, time.September, 3)

	_, err := svc.AddManualItem(ctx, ManualItemInput{UserID: "u1", Period: august, ServiceID: 10, ServiceDate: &outside})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.AddManualItem(ctx, ManualItemInput{UserID: "u1", Period: august, ServiceID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.AddManualItem(ctx, ManualItemInput{UserID: "u1", Period: august, ServiceID: 99})
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.Empty(t, repo.state.invoices)
}

func TestRecomputeAllIsolatesFailures(t *testing.T) {
	repo := seededRepo()
	repo.users = []string{"u1", "u2", "u3"}
	repo.failOn["contracts:u3"] = errors.New("broken contract row")
	svc := NewService(repo, nil, nil, ServiceConfig{BatchConcurrency: 2})

	result, err := svc.RecomputeAll(context.Background(), august)
	require.NoError(t, err)
	require.Equal(t, 3, result.Total)
	require.Equal(t, 2, result.Succeeded)
	require.Len(t, result.Failures, 1)
	require.Equal(t, "u3", result.Failures[0].UserID)
	require.Error(t, result.Err())
	require.Len(t, repo.state.invoices, 2)
}

func TestRehomeManualItems(t *testing.T) {
	repo := seededRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	inv, err := svc.ComputeInvoice(ctx, "u1", august)
	require.NoError(t, err)

	stray := date(2024, time.September, 3)
	repo.state.nextID++
	repo.state.items[repo.state.nextID] = InvoiceItem{
		ID: repo.state.nextID, InvoiceID: inv.ID, Description: "Conferência de nota",
		Quantity: 1, UnitPrice: decimal.NewFromInt(25), TotalPrice: decimal.NewFromInt(25),
		Type: ItemManual, ServiceDate: &stray,
	}

	result, err := svc.RehomeManualItems(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Moved)
	require.Len(t, result.Invoices, 2)

	invoices, err := repo.ListInvoices(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	require.Equal(t, "2024-09", invoices[0].Period)
	require.Equal(t, "25.00", invoices[0].Total.StringFixed(2))
	require.Equal(t, "2024-08", invoices[1].Period)
	require.Equal(t, "288.87", invoices[1].Total.StringFixed(2))

	again, err := svc.RehomeManualItems(ctx)
	require.NoError(t, err)
	require.Zero(t, again.Moved)
}

func TestStorageSummaryDoesNotPersist(t *testing.T) {
	repo := seededRepo()
	svc := newTestService(repo, nil)

	summary, err := svc.StorageSummary(context.Background(), "u1", august)
	require.NoError(t, err)
	require.Equal(t, "140.87", summary.BaseCost.StringFixed(2))
	require.Equal(t, "120.00", summary.AdditionalCost.StringFixed(2))
	require.Equal(t, 3, summary.AdditionalVolume)
	require.Equal(t, "21.00", summary.MonthlySKUCost.StringFixed(2))
	require.Equal(t, "281.87", summary.Total.StringFixed(2))
	require.Empty(t, repo.state.invoices)
}

func TestListInvoicesRefreshesPeriod(t *testing.T) {
	repo := seededRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.ComputeInvoice(ctx, "u1", august)
	require.NoError(t, err)
	invoices, err := svc.ListInvoices(ctx, "u1", september)
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	require.Equal(t, "2024-09", invoices[0].Period)
}

func TestManualServicesAndHistory(t *testing.T) {
	repo := seededRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	services, err := svc.ManualServices(ctx)
	require.NoError(t, err)
	ids := []int64{}
	for _, s := range services {
		ids = append(ids, s.ID)
	}
	require.ElementsMatch(t, []int64{10, 11}, ids)

	serviceDate := date(2024, time.September, 3)
	_, err = svc.AddManualItem(ctx, ManualItemInput{UserID: "u1", Period: september, ServiceID: 10, ServiceDate: &serviceDate})
	require.NoError(t, err)

	history, err := svc.ManualItemHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "2024-09", history[0].Period)
	require.Equal(t, "Conferência de nota", history[0].Description)
}

func TestComputeInvoiceBillsOnlySaleExits(t *testing.T) {
	repo := seededRepo()
	box := SaleExit{SKUID: 20, Quantity: 1, PackageType: strPtr("Caixa G"), PackagePrice: decPtr("6.00")}
	at := date(2024, time.August, 15)
	saleReason := inventory.SaleReason("3001")
	repo.exits = append(repo.exits,
		memoryExit{userID: "u3", at: at, movementType: inventory.MovementOut, reason: "Movimentação manual",
			exit: SaleExit{SKUID: 21, Quantity: 4, PackageType: strPtr("Caixa G"), PackagePrice: decPtr("6.00")}},
		memoryExit{userID: "u3", at: at, movementType: inventory.MovementOut, reason: inventory.KitReason("KIT-1", saleReason),
			exit: SaleExit{SKUID: 22, Quantity: 2, PackageType: strPtr("Envelope"), PackagePrice: decPtr("3.50")}},
		memoryExit{userID: "u3", at: at, movementType: inventory.MovementIn, reason: saleReason,
			exit: SaleExit{SKUID: 20, Quantity: 9, PackageType: strPtr("Caixa G"), PackagePrice: decPtr("6.00")}},
		memoryExit{userID: "u3", at: at, movementType: inventory.MovementOut, reason: saleReason, exit: box},
	)
	svc := newTestService(repo, nil)

	inv, err := svc.ComputeInvoice(context.Background(), "u3", august)
	require.NoError(t, err)
	require.Len(t, inv.Items, 1)
	require.Equal(t, "Caixa G", inv.Items[0].Description)
	require.Equal(t, 1, inv.Items[0].Quantity)
	require.Equal(t, ItemShipment, inv.Items[0].Type)
	require.Equal(t, "6.00", inv.Total.StringFixed(2))
}

func TestComputeInvoiceUnpricedPackageTypeWarns(t *testing.T) {
	repo := seededRepo()
	for i := 0; i < 5; i++ {
		repo.exits = append(repo.exits, memoryExit{
			userID:       "u4",
			at:           date(2024, time.August, 10+i),
			movementType: inventory.MovementOut,
			reason:       inventory.SaleReason(fmt.Sprintf("400%d", i)),
			exit:         SaleExit{SKUID: 30, Quantity: 1, PackageType: strPtr("Caixa G")},
		})
	}
	metrics := newRecordingMetrics()
	svc := newTestService(repo, metrics)

	inv, err := svc.ComputeInvoice(context.Background(), "u4", august)
	require.NoError(t, err)
	require.Empty(t, inv.Items)
	require.True(t, inv.Total.IsZero())
	require.Len(t, inv.Warnings, 1)
	require.Equal(t, ServicePackage, inv.Warnings[0].Type)
	require.Equal(t, "Caixa G", inv.Warnings[0].PackageType)
	require.Contains(t, inv.Warnings[0].Message, "5 shipments")
	require.Equal(t, 1, metrics.missing[string(ServicePackage)])
}
