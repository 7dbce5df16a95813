package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Locker serialises computations of the same invoice across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics receives billing outcomes.
type Metrics interface {
	ObserveInvoice(result string)
	ObserveMissingPrice(serviceType string)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	ComputeTimeout   time.Duration
	BatchConcurrency int
	Logger           *slog.Logger
	Metrics          Metrics
}

// Service coordinates invoice computation.
type Service struct {
	repo    RepositoryPort
	catalog *CatalogReader
	locker  Locker
	audit   AuditPort
	metrics Metrics
	logger  *slog.Logger
	cfg     ServiceConfig
}

// NewService builds Service.
func NewService(repo RepositoryPort, locker Locker, audit AuditPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 4
	}
	return &Service{
		repo:    repo,
		catalog: NewCatalogReader(repo, logger),
		locker:  locker,
		audit:   audit,
		metrics: cfg.Metrics,
		logger:  logger.With(slog.String("module", "billing")),
		cfg:     cfg,
	}
}

// ComputeInvoice derives storage and shipment items for the period, keeps manual
// items and stores the resulting total. Repeated calls converge on the same invoice.
func (s *Service) ComputeInvoice(ctx context.Context, userID string, period Period) (Invoice, error) {
	if strings.TrimSpace(userID) == "" {
		return Invoice{}, fmt.Errorf("%w: uid required", shared.ErrValidation)
	}
	var invoice Invoice
	err := s.withInvoiceTx(ctx, userID, period, func(ctx context.Context, tx TxRepository, snap Snapshot) error {
		result, err := assemble(ctx, tx, userID, period, snap)
		if err != nil {
			return err
		}
		invoice, err = tx.GetInvoice(ctx, result.invoiceID)
		if err != nil {
			return fmt.Errorf("billing: load invoice: %w", err)
		}
		invoice.Warnings = result.warnings
		return nil
	})
	s.observe(err)
	if err != nil {
		return Invoice{}, err
	}
	s.reportWarnings(userID, period, invoice.Warnings)
	return invoice, nil
}

// AddManualItem recomputes the period then appends a one-off charge.
func (s *Service) AddManualItem(ctx context.Context, input ManualItemInput) (Invoice, error) {
	if strings.TrimSpace(input.UserID) == "" || input.ServiceID <= 0 {
		return Invoice{}, fmt.Errorf("%w: uid and service id required", shared.ErrValidation)
	}
	if input.ServiceDate != nil && !input.Period.Contains(*input.ServiceDate) {
		return Invoice{}, fmt.Errorf("%w: service date %s outside period %s", shared.ErrValidation, input.ServiceDate.Format(time.DateOnly), input.Period)
	}
	var invoice Invoice
	var item InvoiceItem
	err := s.withInvoiceTx(ctx, input.UserID, input.Period, func(ctx context.Context, tx TxRepository, snap Snapshot) error {
		svc, err := tx.GetService(ctx, input.ServiceID)
		if err != nil {
			return fmt.Errorf("billing: load service %d: %w", input.ServiceID, err)
		}
		item, err = manualItem(svc, input)
		if err != nil {
			return err
		}
		result, err := assemble(ctx, tx, input.UserID, input.Period, snap)
		if err != nil {
			return err
		}
		if item.ID, err = tx.InsertManualItem(ctx, result.invoiceID, item); err != nil {
			return fmt.Errorf("billing: insert manual item: %w", err)
		}
		if _, err := resum(ctx, tx, result.invoiceID); err != nil {
			return err
		}
		invoice, err = tx.GetInvoice(ctx, result.invoiceID)
		if err != nil {
			return fmt.Errorf("billing: load invoice: %w", err)
		}
		invoice.Warnings = result.warnings
		return nil
	})
	s.observe(err)
	if err != nil {
		return Invoice{}, err
	}
	s.reportWarnings(input.UserID, input.Period, invoice.Warnings)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "billing:manual_item",
			Entity:   "invoice",
			EntityID: invoice.ID,
			Meta: map[string]any{
				"uid":         input.UserID,
				"period":      input.Period.String(),
				"service_id":  input.ServiceID,
				"quantity":    item.Quantity,
				"total_price": item.TotalPrice.StringFixed(2),
			},
		})
	}
	return invoice, nil
}

// ListInvoices refreshes the requested period and returns every invoice of the user.
func (s *Service) ListInvoices(ctx context.Context, userID string, period Period) ([]Invoice, error) {
	if _, err := s.ComputeInvoice(ctx, userID, period); err != nil {
		return nil, err
	}
	return s.repo.ListInvoices(ctx, userID)
}

// StorageSummary previews storage charges without persisting anything.
func (s *Service) StorageSummary(ctx context.Context, userID string, period Period) (StorageSummary, error) {
	if err := period.Validate(); err != nil {
		return StorageSummary{}, err
	}
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return StorageSummary{}, err
	}
	var charges storageCharges
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		contracts, err := tx.ListStorageContracts(ctx, userID)
		if err != nil {
			return err
		}
		skus, err := tx.ListMonthlySKUs(ctx, userID)
		if err != nil {
			return err
		}
		charges = buildStorageItems(period, snap, contracts, skus)
		return nil
	})
	if err != nil {
		return StorageSummary{}, fmt.Errorf("billing: storage summary: %w", err)
	}
	return StorageSummary{
		UserID:           userID,
		Period:           period.String(),
		BaseCost:         charges.base,
		AdditionalCost:   charges.additional,
		AdditionalVolume: charges.additionalVolume,
		MonthlySKUCost:   charges.monthly,
		Total:            sumTotals(charges.items),
		Items:            charges.items,
		Warnings:         charges.warnings,
	}, nil
}

// Overview lists clients with their latest invoice.
func (s *Service) Overview(ctx context.Context) ([]ClientOverview, error) {
	return s.repo.ListOverview(ctx)
}

// ManualServices lists catalog entries that can be added as manual items.
func (s *Service) ManualServices(ctx context.Context) ([]CatalogService, error) {
	return s.repo.ListManualServices(ctx)
}

// ManualItemHistory lists manual items across clients, newest service date first.
func (s *Service) ManualItemHistory(ctx context.Context, limit int) ([]ManualItemRecord, error) {
	return s.repo.ListManualItemHistory(ctx, shared.ClampLimit(limit, 200))
}

// RehomeManualItems moves manual items whose service date belongs to another
// period onto that period's invoice and re-sums every touched invoice.
func (s *Service) RehomeManualItems(ctx context.Context) (RehomeResult, error) {
	var result RehomeResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		items, err := tx.ListMisplacedManualItems(ctx)
		if err != nil {
			return err
		}
		touched := make(map[int64]struct{})
		for _, item := range items {
			target := PeriodOf(item.ServiceDate)
			invoiceID, err := tx.EnsureInvoice(ctx, item.UserID, target.String(), target.DueDate())
			if err != nil {
				return err
			}
			if err := tx.MoveItem(ctx, item.ItemID, invoiceID); err != nil {
				return err
			}
			touched[item.InvoiceID] = struct{}{}
			touched[invoiceID] = struct{}{}
			result.Moved++
		}
		for id := range touched {
			if _, err := resum(ctx, tx, id); err != nil {
				return err
			}
			result.Invoices = append(result.Invoices, id)
		}
		return nil
	})
	if err != nil {
		return RehomeResult{}, fmt.Errorf("billing: rehome manual items: %w", err)
	}
	sort.Slice(result.Invoices, func(i, j int) bool { return result.Invoices[i] < result.Invoices[j] })
	s.logger.Info("manual items rehomed", slog.Int("moved", result.Moved), slog.Int("invoices", len(result.Invoices)))
	return result, nil
}

func (s *Service) withInvoiceTx(ctx context.Context, userID string, period Period, fn func(context.Context, TxRepository, Snapshot) error) error {
	if err := period.Validate(); err != nil {
		return err
	}
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, shared.InvoiceLockKey(userID, period.String()))
		if err != nil {
			return err
		}
		defer release()
	}
	if s.cfg.ComputeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ComputeTimeout)
		defer cancel()
	}
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return asConflict(err)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return fn(ctx, tx, snap)
	})
	return asConflict(err)
}

func manualItem(svc CatalogService, input ManualItemInput) (InvoiceItem, error) {
	item := InvoiceItem{Description: svc.Name, Type: ItemManual, ServiceDate: input.ServiceDate}
	switch svc.Type {
	case ServiceTieredOneOff:
		if input.Quantity < 1 {
			return InvoiceItem{}, fmt.Errorf("%w: quantity must be at least 1", shared.ErrValidation)
		}
		if err := svc.Tiers.Validate(); err != nil {
			return InvoiceItem{}, fmt.Errorf("%w: service %d: %v", shared.ErrNoMatchingTier, svc.ID, err)
		}
		price, err := svc.Tiers.UnitPrice(input.Quantity)
		if err != nil {
			return InvoiceItem{}, fmt.Errorf("billing: service %d: %w", svc.ID, err)
		}
		item.Quantity = input.Quantity
		item.UnitPrice = price
		item.TotalPrice = round2(price.Mul(decimal.NewFromInt(int64(input.Quantity))))
	case ServiceFlatOneOff:
		item.Quantity = 1
		item.UnitPrice = svc.Price
		item.TotalPrice = round2(svc.Price)
	default:
		return InvoiceItem{}, fmt.Errorf("%w: service type %s cannot be added manually", shared.ErrValidation, svc.Type)
	}
	return item, nil
}

func asConflict(err error) error {
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, shared.ErrTransactionConflict) {
		return fmt.Errorf("%w: %w", shared.ErrTransactionConflict, err)
	}
	return err
}

func (s *Service) observe(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.metrics.ObserveInvoice("success")
	case shared.Retryable(err):
		s.metrics.ObserveInvoice("conflict")
	default:
		s.metrics.ObserveInvoice("failure")
	}
}

func (s *Service) reportWarnings(userID string, period Period, warnings []MissingPriceWarning) {
	for _, w := range warnings {
		s.logger.Warn("missing catalog price",
			slog.String("uid", userID),
			slog.String("period", period.String()),
			slog.String("type", string(w.Type)),
			slog.String("package_type", w.PackageType))
		if s.metrics != nil {
			s.metrics.ObserveMissingPrice(string(w.Type))
		}
	}
}
