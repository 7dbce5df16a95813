package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// StagingRepository reads orders and shipments that the channel connector
// lands in staging tables, serving them as an OrderSource and ShipmentSource.
type StagingRepository struct {
	pool *pgxpool.Pool
}

// NewStagingRepository constructs StagingRepository.
func NewStagingRepository(pool *pgxpool.Pool) *StagingRepository {
	return &StagingRepository{pool: pool}
}

// FetchOrders returns one page of staged orders, oldest first.
func (r *StagingRepository) FetchOrders(ctx context.Context, userID string, offset, limit int) (OrderPage, error) {
	var page OrderPage
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM marketplace_orders WHERE user_id = $1`, userID).Scan(&page.Total); err != nil {
		return OrderPage{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT order_id, status, COALESCE(shipment_id, ''), created_at, items
FROM marketplace_orders WHERE user_id = $1 ORDER BY created_at, order_id OFFSET $2 LIMIT $3`, userID, offset, limit)
	if err != nil {
		return OrderPage{}, err
	}
	page.Orders, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Order, error) {
		var o Order
		err := row.Scan(&o.ID, &o.Status, &o.ShipmentID, &o.CreatedAt, &o.Items)
		return o, err
	})
	if err != nil {
		return OrderPage{}, err
	}
	return page, nil
}

// ShipmentStatus returns the latest staged status of a shipment.
func (r *StagingRepository) ShipmentStatus(ctx context.Context, userID, shipmentID string) (string, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM marketplace_shipments WHERE user_id = $1 AND shipment_id = $2`, userID, shipmentID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("shipment %s: %w", shipmentID, shared.ErrNotFound)
	}
	return status, err
}
