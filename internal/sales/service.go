package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	BatchLimit  int
	InsertChunk int
	Logger      *slog.Logger
}

// Service coordinates sale processing.
type Service struct {
	repo   RepositoryPort
	cfg    ServiceConfig
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 500
	}
	if cfg.InsertChunk <= 0 {
		cfg.InsertChunk = 300
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cfg: cfg, logger: logger.With(slog.String("module", "sales"))}
}

// ProcessSale updates the shipping status of a sale and, when it is dispatched
// for the first time, deducts its stock in the same transaction. The sale row is
// locked first, so concurrent calls for the same sale deduct at most once.
func (s *Service) ProcessSale(ctx context.Context, input ProcessInput) (ProcessResult, error) {
	status := strings.TrimSpace(input.Status)
	if input.SaleID <= 0 || status == "" {
		return ProcessResult{}, fmt.Errorf("%w: sale id and status required", shared.ErrValidation)
	}
	var result ProcessResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, input.SaleID)
		if err != nil {
			return fmt.Errorf("sales: sale %d: %w", input.SaleID, err)
		}
		if status != StatusDispatched || sale.Processed() {
			if status == StatusDispatched && !input.Force {
				return fmt.Errorf("%w: sale %d (order %s)", shared.ErrAlreadyProcessed, sale.ID, sale.ExternalOrderID)
			}
			result.Sale, err = tx.UpdateStatus(ctx, sale.ID, status)
			return err
		}

		userID := firstNonEmpty(input.UserID, sale.UserID)
		code := firstNonEmpty(input.SKU, sale.SKU)
		sku, err := tx.FindSKUForUpdate(ctx, userID, code)
		if err != nil {
			return fmt.Errorf("sales: sku %s: %w", code, err)
		}
		result.Movements, err = tx.DeductStock(ctx, inventory.DeductRequest{
			SKUID:    sku.ID,
			Quantity: sale.Quantity,
			Reason:   inventory.SaleReason(sale.ExternalOrderID),
			SaleRef:  &sale.ID,
		})
		if err != nil {
			return err
		}
		result.Deducted = true
		result.Sale, err = tx.MarkProcessed(ctx, sale.ID, status)
		return err
	})
	if err != nil {
		return ProcessResult{}, err
	}
	if result.Deducted {
		s.logger.Info("sale dispatched",
			slog.Int64("sale_id", result.Sale.ID),
			slog.String("order_id", result.Sale.ExternalOrderID),
			slog.Int("movements", len(result.Movements)))
	}
	return result, nil
}

// ProcessBatch runs every input in its own transaction. One failure does not
// stop the others.
func (s *Service) ProcessBatch(ctx context.Context, inputs []ProcessInput) (BatchResult, error) {
	if len(inputs) > s.cfg.BatchLimit {
		return BatchResult{}, fmt.Errorf("%w: batch of %d exceeds limit %d", shared.ErrValidation, len(inputs), s.cfg.BatchLimit)
	}
	result := BatchResult{Failed: []ItemFailure{}}
	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			result.Failed = append(result.Failed, ItemFailure{SaleID: input.SaleID, Message: err.Error()})
			continue
		}
		if _, err := s.ProcessSale(ctx, input); err != nil {
			result.Failed = append(result.Failed, ItemFailure{SaleID: input.SaleID, Message: err.Error()})
			continue
		}
		result.Succeeded++
	}
	s.logger.Info("sales batch processed", slog.Int("succeeded", result.Succeeded), slog.Int("failed", len(result.Failed)))
	return result, nil
}

// ListSales returns the sales of a user, newest first.
func (s *Service) ListSales(ctx context.Context, userID string, limit int) ([]Sale, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user required", shared.ErrValidation)
	}
	return s.repo.ListSales(ctx, userID, shared.ClampLimit(limit, 200))
}

// IngestSales stores imported sales in chunks, ignoring ones already known.
func (s *Service) IngestSales(ctx context.Context, sales []Sale) (int64, error) {
	var inserted int64
	for start := 0; start < len(sales); start += s.cfg.InsertChunk {
		end := min(start+s.cfg.InsertChunk, len(sales))
		n, err := s.repo.InsertSales(ctx, sales[start:end])
		if err != nil {
			return inserted, fmt.Errorf("sales: insert chunk %d-%d: %w", start, end, err)
		}
		inserted += n
	}
	return inserted, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
