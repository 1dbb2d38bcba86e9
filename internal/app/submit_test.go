package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ladvien/self-sensored-sub003/internal/data/repos/testutil"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/health"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/ingestion"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/jobs"
	"github.com/Ladvien/self-sensored-sub003/internal/modules/ingest"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/dbctx"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

func heartRatePayload(t *testing.T, user uuid.UUID, n int) []byte {
	t.Helper()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	metrics := make([]health.Metric, n)
	for i := range metrics {
		bpm := 60 + i
		metrics[i] = health.HeartRateMetric{UserID: user, RecordedAt: base.Add(time.Duration(i) * time.Minute), HeartRate: &bpm}
	}
	payload, err := health.EncodeBatch(metrics)
	require.NoError(t, err)
	return payload
}

func TestSubmitPayloadQueuesOversizedBatchOnce(t *testing.T) {
	cfg := testConfig(t)
	cfg.Batch.AsyncThresholdMetrics = 2
	a, err := Wire(cfg, logger.Nop(), testutil.SQLite(t), nil)
	require.NoError(t, err)
	ctx := context.Background()

	user := uuid.New()
	payload := heartRatePayload(t, user, 5)

	first, err := a.SubmitPayload(ctx, user, nil, payload)
	require.NoError(t, err)
	require.True(t, first.Async)
	require.NotEqual(t, uuid.Nil, first.JobID)

	again, err := a.SubmitPayload(ctx, user, nil, payload)
	require.NoError(t, err)
	assert.Equal(t, first.JobID, again.JobID)

	job, err := a.Repos.Jobs.GetByID(dbctx.Context{Ctx: ctx}, first.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, job.Status)
	assert.Equal(t, 5, job.TotalMetrics)
	assert.Equal(t, cfg.Batch.MaxRetries, job.MaxRetries)

	raw, err := a.Repos.Ingestions.GetByID(dbctx.Context{Ctx: ctx}, job.RawIngestionID)
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusPending, raw.ProcessingStatus)
	require.NotNil(t, raw.ProcessingJobID)
	assert.Equal(t, job.ID, *raw.ProcessingJobID)
}

func TestSubmitPayloadRejectsUndecodableBytes(t *testing.T) {
	a, err := Wire(testConfig(t), logger.Nop(), testutil.SQLite(t), nil)
	require.NoError(t, err)

	_, err = a.SubmitPayload(context.Background(), uuid.New(), nil, []byte(`{"not":"an array"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ingest.ErrInvalidBatch))
}

func TestSubmitPayloadRejectsForeignMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Batch.AsyncThresholdMetrics = 1
	a, err := Wire(cfg, logger.Nop(), testutil.SQLite(t), nil)
	require.NoError(t, err)

	_, err = a.SubmitPayload(context.Background(), uuid.New(), nil, heartRatePayload(t, uuid.New(), 3))
	require.ErrorIs(t, err, ingest.ErrInvalidBatch)
}
