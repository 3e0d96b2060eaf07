package jobs_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
	"github.com/odyssey-erp/ledger/jobs"
)

type prunerStub struct {
	calls []time.Duration
	err   error
}

func (p *prunerStub) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	p.calls = append(p.calls, olderThan)
	if p.err != nil {
		return 0, p.err
	}
	return 7, nil
}

func newCleanupJob(keys jobs.KeyPruner) (*jobs.IdempotencyCleanupJob, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return jobs.NewIdempotencyCleanupJob(keys, 72*time.Hour, logger, jobmetrics.NewMetrics(registry)), registry
}

func TestIdempotencyCleanupUsesRetention(t *testing.T) {
	keys := &prunerStub{}
	job, registry := newCleanupJob(keys)

	task, err := jobs.NewIdempotencyCleanupTask(jobs.IdempotencyCleanupPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	task, err = jobs.NewIdempotencyCleanupTask(jobs.IdempotencyCleanupPayload{OlderThanSeconds: 3600})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.Equal(t, []time.Duration{72 * time.Hour, time.Hour}, keys.calls)
	count, err := testutil.GatherAndCount(registry, "ledger_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	removed, err := job.Run(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(7), removed)
}

func TestIdempotencyCleanupFailures(t *testing.T) {
	keys := &prunerStub{err: errors.New("db down")}
	job, registry := newCleanupJob(keys)

	_, err := job.Run(context.Background(), time.Hour)
	require.Error(t, err)
	count, err := testutil.GatherAndCount(registry, "ledger_jobs_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = job.Run(context.Background(), 0)
	assert.Error(t, err)
	assert.Len(t, keys.calls, 1, "a zero retention never reaches the store")

	err = job.Handle(context.Background(), asynq.NewTask(jobs.TaskIdempotencyCleanup, []byte("nope")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
