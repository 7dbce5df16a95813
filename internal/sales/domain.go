package sales

import (
	"time"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
)

// StatusDispatched is the shipping status that removes stock.
const StatusDispatched = "despachado"

// Sale is one marketplace order line.
type Sale struct {
	ID              int64      `json:"id"`
	ExternalOrderID string     `json:"order_id"`
	SKU             string     `json:"sku"`
	UserID          string     `json:"user_id"`
	Channel         string     `json:"channel"`
	Quantity        int        `json:"quantity"`
	ShippingStatus  string     `json:"shipping_status"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Processed reports whether stock was already deducted for the sale.
func (s Sale) Processed() bool {
	return s.ProcessedAt != nil
}

// ProcessInput requests a status change, deducting stock on dispatch.
type ProcessInput struct {
	SaleID int64  `json:"sale_id" validate:"required,gt=0"`
	SKU    string `json:"sku"`
	UserID string `json:"user_id"`
	Status string `json:"status" validate:"required"`
	// Force allows a status-only update on an already processed sale.
	Force bool `json:"force"`
}

// ProcessResult describes what one processing call changed.
type ProcessResult struct {
	Sale      Sale                 `json:"sale"`
	Deducted  bool                 `json:"deducted"`
	Movements []inventory.Movement `json:"movements,omitempty"`
}

// ItemFailure records one sale that failed in a batch.
type ItemFailure struct {
	SaleID  int64  `json:"sale_id"`
	Message string `json:"error"`
}

// BatchResult aggregates a batch of processing calls.
type BatchResult struct {
	Succeeded int           `json:"succeeded"`
	Failed    []ItemFailure `json:"failed"`
}
