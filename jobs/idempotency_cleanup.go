package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
)

// KeyPruner deletes stored idempotency keys older than a cutoff.
type KeyPruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob prunes import idempotency keys past their retention.
type IdempotencyCleanupJob struct {
	Keys      KeyPruner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob initialises the cleanup handler.
func NewIdempotencyCleanupJob(keys KeyPruner, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Keys: keys, Retention: retention, Logger: logger, Metrics: metrics}
}

// Handle executes TaskIdempotencyCleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retention := j.Retention
	if payload.OlderThanSeconds > 0 {
		retention = time.Duration(payload.OlderThanSeconds) * time.Second
	}
	_, err := j.Run(ctx, retention)
	return err
}

// Run deletes keys older than retention and returns how many were removed.
func (j *IdempotencyCleanupJob) Run(ctx context.Context, retention time.Duration) (removed int64, err error) {
	if j == nil || j.Keys == nil {
		return 0, errors.New("idempotency cleanup: handler not configured")
	}
	if retention <= 0 {
		return 0, fmt.Errorf("idempotency cleanup: retention must be positive, got %s", retention)
	}
	tracker := j.metrics().Track(TaskIdempotencyCleanup)
	defer func() {
		err = tracker.End(err)
	}()

	removed, err = j.Keys.Cleanup(ctx, retention)
	if err != nil {
		return 0, fmt.Errorf("idempotency cleanup: %w", err)
	}
	j.logger().Info("idempotency keys pruned",
		slog.Int64("removed", removed),
		slog.Duration("retention", retention))
	return removed, nil
}

func (j *IdempotencyCleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIdempotencyCleanup))
	}
	return slog.Default().With(slog.String("job", TaskIdempotencyCleanup))
}

func (j *IdempotencyCleanupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
