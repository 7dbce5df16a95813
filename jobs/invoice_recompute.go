package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/fulfillment/internal/billing"
	jobmetrics "github.com/odyssey-erp/fulfillment/internal/jobs"
)

// BatchRecomputer recomputes a period for every billable user.
type BatchRecomputer interface {
	RecomputeAll(ctx context.Context, period billing.Period) (billing.BatchResult, error)
}

// InvoiceRecomputeJob runs the scheduled invoice recompute.
type InvoiceRecomputeJob struct {
	Service BatchRecomputer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewInvoiceRecomputeJob constructs the job handler.
func NewInvoiceRecomputeJob(service BatchRecomputer, logger *slog.Logger, metrics *jobmetrics.Metrics) *InvoiceRecomputeJob {
	return &InvoiceRecomputeJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the recompute. Per-user failures are logged and counted but
// do not fail the task, so a retry never recomputes users that already succeeded.
func (j *InvoiceRecomputeJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("invoice recompute: dependencies not configured")
	}
	var payload InvoiceRecomputePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("invoice recompute: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	period, err := j.resolvePeriod(payload.Period)
	if err != nil {
		j.log().Error("resolve period", slog.String("period", payload.Period), slog.Any("error", err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskInvoiceRecompute)
	start := j.now()
	result, err := j.Service.RecomputeAll(ctx, period)
	if err != nil {
		j.log().Error("recompute invoices", slog.String("period", period.String()), slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddBatchFailures(TaskInvoiceRecompute, len(result.Failures))
	for _, f := range result.Failures {
		j.log().Warn("invoice recompute failed for user", slog.String("uid", f.UserID), slog.String("period", result.Period), slog.String("error", f.Message))
	}
	j.log().Info("invoice recompute finished",
		slog.String("period", result.Period),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", len(result.Failures)),
		slog.Duration("duration", j.now().Sub(start)))
	return tracker.End(nil)
}

func (j *InvoiceRecomputeJob) resolvePeriod(value string) (billing.Period, error) {
	current := billing.PeriodOf(j.now())
	switch value {
	case "", periodCurrent:
		return current, nil
	case periodPrevious:
		return current.Prev(), nil
	default:
		return billing.ParsePeriod(value)
	}
}

func (j *InvoiceRecomputeJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *InvoiceRecomputeJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInvoiceRecompute))
	}
	return slog.Default().With(slog.String("job", TaskInvoiceRecompute))
}

func (j *InvoiceRecomputeJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *InvoiceRecomputeJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
