package jobs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/fulfillment/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvoiceRecompute recomputes every billable user's invoice for a period.
	TaskInvoiceRecompute = "invoice:recompute"
	// TaskIdempotencyCleanup drops expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskMarketplaceSync pulls one user's marketplace orders into sales.
	TaskMarketplaceSync = "marketplace:sync"

	periodCurrent  = "current"
	periodPrevious = "previous"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// InvoiceRecomputePayload selects the period to recompute. Period is either a
// YYYY-MM value or one of "current" and "previous", resolved at run time.
type InvoiceRecomputePayload struct {
	Period string `json:"period"`
}

// MarketplaceSyncPayload names the user whose orders are synced.
type MarketplaceSyncPayload struct {
	UserID string `json:"uid"`
}

// NewInvoiceRecomputeTask builds a recompute task, defaulting to the current period.
func NewInvoiceRecomputeTask(period string) (*asynq.Task, error) {
	period = strings.TrimSpace(period)
	if period == "" {
		period = periodCurrent
	}
	body, err := json.Marshal(InvoiceRecomputePayload{Period: period})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoiceRecompute, body, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask builds the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault))
}

// NewMarketplaceSyncTask builds a sync task for one user.
func NewMarketplaceSyncTask(userID string) (*asynq.Task, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("marketplace sync: user required")
	}
	body, err := json.Marshal(MarketplaceSyncPayload{UserID: userID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMarketplaceSync, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
