package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidPeriod indicates a year/month outside the calendar.
	ErrInvalidPeriod = errors.New("invalid billing period")
	// ErrNoKitComponents occurs when a kit has no configured children.
	ErrNoKitComponents = errors.New("kit has no components")
	// ErrInsufficientStock is matched by every InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrNoMatchingTier indicates a gap in tiered pricing configuration.
	ErrNoMatchingTier = errors.New("no pricing tier matches quantity")
	// ErrAlreadyProcessed rejects a second stock deduction for the same sale.
	ErrAlreadyProcessed = errors.New("sale already processed")
	// ErrTransactionConflict marks lock contention, serialization failures and deadlines. Retryable.
	ErrTransactionConflict = errors.New("transaction conflict")
)

// InsufficientStockError names the SKU that cannot cover a deduction.
type InsufficientStockError struct {
	SKU       string
	Available int
	Required  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for SKU %s. Available: %d, Required: %d", e.SKU, e.Available, e.Required)
}

// Is lets errors.Is match ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Retryable reports whether the caller may retry the operation with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransactionConflict)
}
