package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/fulfillment/internal/jobs"
	"github.com/odyssey-erp/fulfillment/internal/marketplace"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// OrderSyncer runs one marketplace sync for a user.
type OrderSyncer interface {
	Sync(ctx context.Context, userID string) (marketplace.SyncResult, error)
}

// MarketplaceSyncJob executes queued marketplace syncs.
type MarketplaceSyncJob struct {
	Syncer  OrderSyncer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewMarketplaceSyncJob constructs the job handler.
func NewMarketplaceSyncJob(syncer OrderSyncer, logger *slog.Logger, metrics *jobmetrics.Metrics) *MarketplaceSyncJob {
	return &MarketplaceSyncJob{Syncer: syncer, Logger: logger, Metrics: metrics}
}

// Handle runs the sync. A sync already in flight for the same user makes this
// task a no-op.
func (j *MarketplaceSyncJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Syncer == nil {
		return errors.New("marketplace sync: syncer not configured")
	}
	var payload MarketplaceSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.UserID == "" {
		return fmt.Errorf("marketplace sync: invalid payload: %w", asynq.SkipRetry)
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskMarketplaceSync), slog.String("uid", payload.UserID))

	tracker := metrics.Track(TaskMarketplaceSync)
	result, err := j.Syncer.Sync(ctx, payload.UserID)
	if errors.Is(err, shared.ErrTransactionConflict) {
		logger.Info("marketplace sync already running")
		return tracker.End(nil)
	}
	if err != nil {
		logger.Error("marketplace sync", slog.Any("error", err))
		return tracker.End(err)
	}
	metrics.AddBatchFailures(TaskMarketplaceSync, result.EnrichFailures)
	return tracker.End(nil)
}
