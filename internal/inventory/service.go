package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates stock movements.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger.With(slog.String("module", "inventory"))}
}

// PostMovement applies a manual entry or exit and appends its ledger row.
// Exits on kits are decomposed into their components.
func (s *Service) PostMovement(ctx context.Context, input MovementInput) (Movement, error) {
	code := strings.TrimSpace(input.SKUCode)
	if input.UserID == "" || code == "" {
		return Movement{}, fmt.Errorf("%w: user and sku required", shared.ErrValidation)
	}
	if !input.Type.Valid() {
		return Movement{}, fmt.Errorf("%w: movement type %q", shared.ErrValidation, input.Type)
	}
	if input.Quantity <= 0 {
		return Movement{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = "Movimentação manual"
	}

	var result Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sku, err := tx.FindSKUForUpdate(ctx, input.UserID, code)
		if err != nil {
			return fmt.Errorf("inventory: sku %s: %w", code, err)
		}
		if input.Type == MovementIn && sku.IsKit {
			return fmt.Errorf("%w: kit %s has no stock of its own, add stock to its components", shared.ErrValidation, sku.Code)
		}
		if !input.ViaComponent {
			component, err := tx.IsComponent(ctx, sku.ID)
			if err != nil {
				return err
			}
			if component {
				return fmt.Errorf("%w: sku %s is a kit component", shared.ErrValidation, sku.Code)
			}
		}

		if input.Type == MovementOut {
			movements, err := Deduct(ctx, tx, DeductRequest{SKUID: sku.ID, Quantity: input.Quantity, Reason: reason})
			if err != nil {
				return err
			}
			result = movements[len(movements)-1]
			return nil
		}
		if err := tx.AdjustQuantity(ctx, sku.ID, input.Quantity); err != nil {
			return err
		}
		result, err = tx.InsertMovement(ctx, Movement{
			SKUID:    sku.ID,
			UserID:   sku.UserID,
			Type:     MovementIn,
			Quantity: input.Quantity,
			Reason:   reason,
		})
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	result.SKUCode = code
	s.record(ctx, input.ActorID, "inventory:movement", result)
	return result, nil
}

// ReverseMovement undoes a ledger row and deletes it. Kit rows carry no counter
// of their own, so reversing them only removes the row.
func (s *Service) ReverseMovement(ctx context.Context, movementID int64, actorID string) (Movement, error) {
	var reversed Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetMovementForUpdate(ctx, movementID)
		if err != nil {
			return fmt.Errorf("inventory: movement %d: %w", movementID, err)
		}
		sku, err := tx.GetSKUForUpdate(ctx, m.SKUID)
		if err != nil {
			return fmt.Errorf("inventory: sku %d: %w", m.SKUID, err)
		}
		if !sku.IsKit {
			delta := m.Quantity
			if m.Type == MovementIn {
				if sku.Quantity < m.Quantity {
					return &shared.InsufficientStockError{SKU: sku.Code, Available: sku.Quantity, Required: m.Quantity}
				}
				delta = -m.Quantity
			}
			if err := tx.AdjustQuantity(ctx, sku.ID, delta); err != nil {
				return err
			}
		}
		if err := tx.DeleteMovement(ctx, m.ID); err != nil {
			return err
		}
		m.SKUCode = sku.Code
		reversed = m
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	s.record(ctx, actorID, "inventory:reverse", reversed)
	return reversed, nil
}

// DeleteSKU removes a SKU with no stock that no kit references.
func (s *Service) DeleteSKU(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sku, err := tx.GetSKUForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("inventory: sku %d: %w", id, err)
		}
		component, err := tx.IsComponent(ctx, id)
		if err != nil {
			return err
		}
		if component {
			return fmt.Errorf("%w: sku %s is used by a kit", shared.ErrValidation, sku.Code)
		}
		if sku.Quantity > 0 {
			return fmt.Errorf("%w: sku %s still holds %d units", shared.ErrValidation, sku.Code, sku.Quantity)
		}
		return tx.DeleteSKU(ctx, id)
	})
}

// KitAvailability reports how many kits the component stock can assemble.
func (s *Service) KitAvailability(ctx context.Context, kitID int64) (KitAvailability, error) {
	kit, err := s.repo.GetSKU(ctx, kitID)
	if err != nil {
		return KitAvailability{}, fmt.Errorf("inventory: sku %d: %w", kitID, err)
	}
	if !kit.IsKit {
		return KitAvailability{}, fmt.Errorf("%w: sku %s is not a kit", shared.ErrValidation, kit.Code)
	}
	components, err := s.repo.ListComponentStock(ctx, kitID)
	if err != nil {
		return KitAvailability{}, err
	}
	if len(components) == 0 {
		return KitAvailability{}, fmt.Errorf("%w: %s", shared.ErrNoKitComponents, kit.Code)
	}
	available := -1
	for _, c := range components {
		if c.QuantityPerKit <= 0 {
			continue
		}
		n := c.ChildQuantity / c.QuantityPerKit
		if available < 0 || n < available {
			available = n
		}
	}
	if available < 0 {
		available = 0
	}
	return KitAvailability{KitID: kit.ID, Code: kit.Code, Available: available, Components: components}, nil
}

// ListMovements returns ledger rows newest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.UserID == "" {
		return nil, fmt.Errorf("%w: user required", shared.ErrValidation)
	}
	filter.Limit = shared.ClampLimit(filter.Limit, 100)
	return s.repo.ListMovements(ctx, filter)
}

// PackageTypes lists the priced package types.
func (s *Service) PackageTypes(ctx context.Context) ([]PackageType, error) {
	return s.repo.ListPackageTypes(ctx)
}

func (s *Service) record(ctx context.Context, actorID, action string, m Movement) {
	s.logger.Info("stock movement",
		slog.String("action", action),
		slog.String("sku", m.SKUCode),
		slog.String("type", string(m.Type)),
		slog.Int("quantity", m.Quantity))
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_movement",
		EntityID: m.ID,
		Meta: map[string]any{
			"sku":      m.SKUCode,
			"type":     string(m.Type),
			"quantity": m.Quantity,
			"reason":   m.Reason,
		},
	}); err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
