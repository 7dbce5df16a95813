package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates ledger directions.
type MovementType string

const (
	// MovementIn adds stock.
	MovementIn MovementType = "entrada"
	// MovementOut removes stock.
	MovementOut MovementType = "saida"
)

// Valid reports whether t is a known direction.
func (t MovementType) Valid() bool {
	return t == MovementIn || t == MovementOut
}

// ReasonSalePrefix starts the reason of every sale-driven exit. Billing counts
// shipments by this prefix.
const ReasonSalePrefix = "Saída por Venda"

const kitReasonFormat = "Saída por Kit (%s) - %s"

// SaleReason builds the ledger reason for an order.
func SaleReason(orderID string) string {
	return fmt.Sprintf("%s - ID: %s", ReasonSalePrefix, orderID)
}

// KitReason builds the reason of a component exit caused by a kit exit.
func KitReason(kitCode, reason string) string {
	return fmt.Sprintf(kitReasonFormat, kitCode, reason)
}

// SKU is a stock keeping unit owned by one client.
type SKU struct {
	ID               int64            `json:"id"`
	UserID           string           `json:"user_id"`
	Code             string           `json:"sku"`
	Description      string           `json:"description"`
	Quantity         int              `json:"quantity"`
	PackageTypeID    *int64           `json:"package_type_id,omitempty"`
	IsKit            bool             `json:"is_kit"`
	Active           bool             `json:"active"`
	IsMonthly        bool             `json:"is_monthly"`
	MonthlyPrice     *decimal.Decimal `json:"monthly_price,omitempty"`
	MonthlyStartDate *time.Time       `json:"monthly_start_date,omitempty"`
}

// KitComponent links a kit to one child SKU.
type KitComponent struct {
	KitSKUID       int64  `json:"kit_sku_id"`
	ChildSKUID     int64  `json:"child_sku_id"`
	ChildCode      string `json:"child_sku"`
	QuantityPerKit int    `json:"quantity_per_kit"`
	ChildQuantity  int    `json:"child_quantity"`
}

// Movement is one append-only ledger row.
type Movement struct {
	ID            int64        `json:"id"`
	SKUID         int64        `json:"sku_id"`
	SKUCode       string       `json:"sku,omitempty"`
	UserID        string       `json:"user_id"`
	Type          MovementType `json:"movement_type"`
	Quantity      int          `json:"quantity_change"`
	Reason        string       `json:"reason"`
	RelatedSaleID *int64       `json:"related_sale_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// MovementInput describes a manual stock movement.
type MovementInput struct {
	UserID   string
	SKUCode  string
	Type     MovementType
	Quantity int
	Reason   string
	// ViaComponent allows moving a SKU that is configured as a kit component.
	ViaComponent bool
	ActorID      string
}

// MovementFilter narrows ledger listings.
type MovementFilter struct {
	UserID  string
	SKUCode string
	Limit   int
}

// DeductRequest removes stock from a SKU, decomposing kits.
type DeductRequest struct {
	SKUID    int64
	Quantity int
	Reason   string
	SaleRef  *int64
}

// PackageType is a priced packaging used for shipment billing.
type PackageType struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// KitAvailability is the number of kits the current child stock can assemble.
type KitAvailability struct {
	KitID      int64          `json:"kit_id"`
	Code       string         `json:"sku"`
	Available  int            `json:"available"`
	Components []KitComponent `json:"components"`
}
