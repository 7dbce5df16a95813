package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/fulfillment/internal/sales"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Order is an order as returned by a channel.
type Order struct {
	ID         string
	Status     string
	ShipmentID string
	CreatedAt  time.Time
	Items      []OrderItem
}

// OrderItem is one order line.
type OrderItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// OrderPage is one page of a channel's order listing.
type OrderPage struct {
	Orders []Order
	Total  int
}

// OrderSource lists orders of a user page by page.
type OrderSource interface {
	FetchOrders(ctx context.Context, userID string, offset, limit int) (OrderPage, error)
}

// ShipmentSource resolves the current shipping status of a shipment.
type ShipmentSource interface {
	ShipmentStatus(ctx context.Context, userID, shipmentID string) (string, error)
}

// SaleSink stores ingested sales, skipping known ones.
type SaleSink interface {
	IngestSales(ctx context.Context, sales []sales.Sale) (int64, error)
}

// Locker prevents overlapping sync runs for the same user.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// SyncConfig bounds one sync run.
type SyncConfig struct {
	Channel     string
	PageLimit   int
	MaxOrders   int
	Concurrency int
	Logger      *slog.Logger
}

// SyncResult summarises a sync run.
type SyncResult struct {
	RunID          string `json:"run_id"`
	Fetched        int    `json:"fetched"`
	Inserted       int64  `json:"inserted"`
	EnrichFailures int    `json:"enrich_failures"`
}

// Syncer imports channel orders as sales.
type Syncer struct {
	orders    OrderSource
	shipments ShipmentSource
	sink      SaleSink
	locker    Locker
	cfg       SyncConfig
	logger    *slog.Logger
}

// NewSyncer constructs Syncer.
func NewSyncer(orders OrderSource, shipments ShipmentSource, sink SaleSink, locker Locker, cfg SyncConfig) *Syncer {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 50
	}
	if cfg.MaxOrders <= 0 {
		cfg.MaxOrders = 5000
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.Channel == "" {
		cfg.Channel = "mercado_livre"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{orders: orders, shipments: shipments, sink: sink, locker: locker, cfg: cfg, logger: logger.With(slog.String("module", "marketplace"))}
}

// Sync pages through the user's orders up to MaxOrders, resolves shipment
// statuses with bounded concurrency and ingests one sale per order line.
func (s *Syncer) Sync(ctx context.Context, userID string) (SyncResult, error) {
	if strings.TrimSpace(userID) == "" {
		return SyncResult{}, fmt.Errorf("%w: user required", shared.ErrValidation)
	}
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, shared.SyncLockKey(userID))
		if err != nil {
			return SyncResult{}, err
		}
		defer release()
	}
	result := SyncResult{RunID: uuid.NewString()}
	logger := s.logger.With(slog.String("run_id", result.RunID), slog.String("user_id", userID))

	orders, err := s.fetch(ctx, userID)
	if err != nil {
		return result, err
	}
	result.Fetched = len(orders)

	statuses, failures := s.enrich(ctx, userID, orders)
	result.EnrichFailures = failures

	var rows []sales.Sale
	for i, order := range orders {
		status := statuses[i]
		if status == "" {
			status = order.Status
		}
		for _, item := range order.Items {
			if item.SKU == "" || item.Quantity <= 0 {
				continue
			}
			rows = append(rows, sales.Sale{
				ExternalOrderID: order.ID,
				SKU:             strings.TrimSpace(item.SKU),
				UserID:          userID,
				Channel:         s.cfg.Channel,
				Quantity:        item.Quantity,
				ShippingStatus:  status,
				CreatedAt:       order.CreatedAt,
			})
		}
	}
	result.Inserted, err = s.sink.IngestSales(ctx, rows)
	if err != nil {
		return result, fmt.Errorf("marketplace: ingest: %w", err)
	}
	logger.Info("marketplace sync finished",
		slog.Int("fetched", result.Fetched),
		slog.Int64("inserted", result.Inserted),
		slog.Int("enrich_failures", result.EnrichFailures))
	return result, nil
}

func (s *Syncer) fetch(ctx context.Context, userID string) ([]Order, error) {
	var orders []Order
	for offset := 0; offset < s.cfg.MaxOrders; offset += s.cfg.PageLimit {
		limit := min(s.cfg.PageLimit, s.cfg.MaxOrders-offset)
		page, err := s.orders.FetchOrders(ctx, userID, offset, limit)
		if err != nil {
			return nil, fmt.Errorf("marketplace: fetch orders at %d: %w", offset, err)
		}
		orders = append(orders, page.Orders...)
		if len(page.Orders) < limit || (page.Total > 0 && offset+len(page.Orders) >= page.Total) {
			break
		}
	}
	return orders, nil
}

// enrich resolves shipment statuses. A failed lookup keeps the order status.
func (s *Syncer) enrich(ctx context.Context, userID string, orders []Order) ([]string, int) {
	statuses := make([]string, len(orders))
	if s.shipments == nil {
		return statuses, 0
	}
	var (
		mu       sync.Mutex
		failures int
		g        errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)
	for i, order := range orders {
		if order.ShipmentID == "" {
			continue
		}
		i, order := i, order
		g.Go(func() error {
			status, err := s.shipments.ShipmentStatus(ctx, userID, order.ShipmentID)
			if err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
				s.logger.Warn("shipment lookup failed", slog.String("order_id", order.ID), slog.Any("error", err))
				return nil
			}
			statuses[i] = status
			return nil
		})
	}
	_ = g.Wait()
	return statuses, failures
}
