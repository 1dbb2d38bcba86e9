package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/Ladvien/self-sensored-sub003/internal/data/repos"
	"github.com/Ladvien/self-sensored-sub003/internal/data/repos/testutil"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/ingestion"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/jobs"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/dbctx"
)

type depth struct{ last map[string]int64 }

func (d *depth) ObserveQueueDepth(c map[string]int64) { d.last = c }

func TestSweepOnce(t *testing.T) {
	db := testutil.SQLite(t)
	repo := repos.NewProcessingJobRepo(db, testutil.Logger(t))
	now := time.Now().UTC()

	mk := func(status string, completed *time.Time, heartbeat *time.Time, retries int) uuid.UUID {
		raw := &ingestion.RawIngestion{UserID: uuid.New(), RawPayload: datatypes.JSON(`[]`), PayloadHash: uuid.NewString()}
		require.NoError(t, db.Create(raw).Error)
		job := &jobs.ProcessingJob{UserID: raw.UserID, RawIngestionID: raw.ID}
		require.NoError(t, repo.Create(dbctx.Background(), job))
		require.NoError(t, db.Model(job).Updates(map[string]interface{}{
			"status":       status,
			"completed_at": completed,
			"heartbeat_at": heartbeat,
			"retry_count":  retries,
		}).Error)
		return job.ID
	}
	old := now.Add(-10 * 24 * time.Hour)
	recent := now.Add(-time.Hour)
	stale := now.Add(-time.Hour)

	mk(jobs.StatusCompleted, &old, nil, 0)
	mk(jobs.StatusFailed, &old, nil, 0)
	keep := mk(jobs.StatusCompleted, &recent, nil, 0)
	mk(jobs.StatusPending, nil, nil, 0)
	dead := mk(jobs.StatusProcessing, nil, &stale, jobs.DefaultMaxRetries)

	obs := &depth{}
	s := New(testutil.Logger(t), repo, obs, Config{StaleAfter: 10 * time.Minute})
	st, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Deleted: 2, FailedStale: 1}, st)

	_, err = repo.GetByID(dbctx.Background(), keep)
	assert.NoError(t, err)
	got, err := repo.GetByID(dbctx.Background(), dead)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, got.Status)

	assert.Equal(t, map[string]int64{
		jobs.StatusCompleted: 1,
		jobs.StatusPending:   1,
		jobs.StatusFailed:    1,
	}, obs.last)
}

func TestRunStopsWithContext(t *testing.T) {
	db := testutil.SQLite(t)
	repo := repos.NewProcessingJobRepo(db, testutil.Logger(t))
	s := New(testutil.Logger(t), repo, nil, Config{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
