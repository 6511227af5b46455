package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/eventstock/stockledger/internal/jobs"
)

// KeyPurger removes idempotency keys older than a retention window.
type KeyPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob purges expired idempotency keys.
type IdempotencyCleanupJob struct {
	Purger    KeyPurger
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob initialises the cleanup handler.
func NewIdempotencyCleanupJob(purger KeyPurger, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Purger: purger, Retention: retention, Logger: logger, Metrics: metrics}
}

// Handle executes the cleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Purger == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retention := j.Retention
	if payload.Retention > 0 {
		retention = payload.Retention
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}

	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() { resultErr = tracker.End(resultErr) }()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	purged, err := j.Purger.Cleanup(ctx, retention)
	if err != nil {
		logger.Error("idempotency cleanup failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddPurged(purged)
	logger.Info("idempotency cleanup", slog.Int64("purged", purged), slog.Duration("retention", retention))
	return nil
}
