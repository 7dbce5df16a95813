package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServiceType discriminates catalog entries.
type ServiceType string

const (
	// ServiceBaseStorage is the monthly base storage fee, prorated on the entry month.
	ServiceBaseStorage ServiceType = "base_storage"
	// ServiceAdditionalStorage is charged per extra cubic metre, always full month.
	ServiceAdditionalStorage ServiceType = "additional_storage"
	// ServiceProportionalStorage is kept for catalog compatibility.
	ServiceProportionalStorage ServiceType = "proportional_storage"
	// ServiceFlatOneOff is a one-off service billed once at its price.
	ServiceFlatOneOff ServiceType = "avulso_simples"
	// ServiceTieredOneOff is a one-off service priced by quantity tiers.
	ServiceTieredOneOff ServiceType = "avulso_quantidade"
	// ServicePackage labels shipment charges priced from package_types.
	ServicePackage ServiceType = "package_type"
)

// StorageServiceTypes lists the types read into the catalog snapshot.
var StorageServiceTypes = []ServiceType{ServiceBaseStorage, ServiceAdditionalStorage, ServiceProportionalStorage}

// ItemType classifies invoice items.
type ItemType string

const (
	// ItemStorage items are regenerated on every computation.
	ItemStorage ItemType = "storage"
	// ItemShipment items are regenerated on every computation.
	ItemShipment ItemType = "shipment"
	// ItemManual items are user-authored and never regenerated.
	ItemManual ItemType = "manual"
)

// InvoiceStatusPending is set on every recomputation.
const InvoiceStatusPending = "pending"

// Line descriptions shown on invoices.
const (
	DescBaseStorage       = "Armazenamento Base (até 1m³)"
	DescAdditionalStorage = "Armazenamento Adicional (m³)"
	descMonthlySKU        = "Armazenamento Mensal - SKU %s"
	descProrated          = "%s - Proporcional %d dias (entrada dia %d)"
)

// CatalogService is a priced catalog entry.
type CatalogService struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Type        ServiceType     `json:"type"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
	Tiers       TierSet         `json:"tiers,omitempty"`
}

// Contract binds a user to a storage service.
type Contract struct {
	ID          int64       `json:"id"`
	UserID      string      `json:"uid"`
	ServiceID   int64       `json:"service_id"`
	ServiceType ServiceType `json:"service_type"`
	Volume      int         `json:"volume"`
	StartDate   time.Time   `json:"start_date"`
}

// MonthlySKU is a SKU billed with its own monthly price.
type MonthlySKU struct {
	SKUID     int64           `json:"sku_id"`
	Code      string          `json:"sku"`
	Price     decimal.Decimal `json:"monthly_price"`
	StartDate time.Time       `json:"monthly_start_date"`
}

// SaleExit is a sale-driven ledger exit joined with its package type.
type SaleExit struct {
	SKUID        int64
	Quantity     int
	PackageType  *string
	PackagePrice *decimal.Decimal
}

// Invoice is one billing document per user and period.
type Invoice struct {
	ID          int64                 `json:"id"`
	UserID      string                `json:"uid"`
	Period      string                `json:"period"`
	DueDate     time.Time             `json:"due_date"`
	PaymentDate *time.Time            `json:"payment_date,omitempty"`
	Total       decimal.Decimal       `json:"total_amount"`
	Status      string                `json:"status"`
	Items       []InvoiceItem         `json:"items"`
	Warnings    []MissingPriceWarning `json:"warnings,omitempty"`
}

// InvoiceItem is one line of an invoice.
type InvoiceItem struct {
	ID          int64           `json:"id,omitempty"`
	InvoiceID   int64           `json:"invoice_id,omitempty"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Type        ItemType        `json:"type"`
	ServiceDate *time.Time      `json:"service_date,omitempty"`
}

// ManualItemInput describes a one-off charge to add to a period.
type ManualItemInput struct {
	UserID      string
	Period      Period
	ServiceID   int64
	Quantity    int
	ServiceDate *time.Time
	ActorID     string
}

// ManualItemRecord is a manual item with its invoice context.
type ManualItemRecord struct {
	InvoiceItem
	Period      string `json:"period"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
}

// ClientOverview summarises the latest invoice of a client.
type ClientOverview struct {
	UserID     string           `json:"uid"`
	Email      string           `json:"email"`
	LastPeriod *string          `json:"last_invoice_period"`
	LastTotal  *decimal.Decimal `json:"last_invoice_total"`
	LastStatus *string          `json:"last_invoice_status"`
}

// MisplacedItem is a manual item whose service date falls outside its invoice period.
type MisplacedItem struct {
	ItemID        int64
	InvoiceID     int64
	UserID        string
	CurrentPeriod string
	ServiceDate   time.Time
}

// StorageSummary previews storage charges for a period without persisting.
type StorageSummary struct {
	UserID           string                `json:"uid"`
	Period           string                `json:"period"`
	BaseCost         decimal.Decimal       `json:"base_cost"`
	AdditionalCost   decimal.Decimal       `json:"additional_cost"`
	AdditionalVolume int                   `json:"additional_volume"`
	MonthlySKUCost   decimal.Decimal       `json:"monthly_sku_cost"`
	Total            decimal.Decimal       `json:"total"`
	Items            []InvoiceItem         `json:"items"`
	Warnings         []MissingPriceWarning `json:"warnings,omitempty"`
}

// RehomeResult reports the outcome of moving manual items to their service period.
type RehomeResult struct {
	Moved    int     `json:"moved"`
	Invoices []int64 `json:"invoices"`
}

func sumTotals(items []InvoiceItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.TotalPrice)
	}
	return total
}
