package ingest_batch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Ladvien/self-sensored-sub003/internal/data/repos"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/health"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/ingestion"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/jobs"
	jobrt "github.com/Ladvien/self-sensored-sub003/internal/jobs/runtime"
	"github.com/Ladvien/self-sensored-sub003/internal/modules/ingest"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/dbctx"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

type stubStore struct {
	calls       atomic.Int32
	inflight    atomic.Int32
	maxInflight atomic.Int32
	err         error
	// hook runs once the write is done and may replace its outcome.
	hook func(ctx context.Context, call int32) error
}

func (s *stubStore) UpsertMetrics(ctx context.Context, _ health.MetricType, metrics []health.Metric) (int, int, error) {
	call := s.calls.Add(1)
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		cur := s.maxInflight.Load()
		if n <= cur || s.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	if s.err != nil {
		return 0, 0, s.err
	}
	if s.hook != nil {
		if err := s.hook(ctx, call); err != nil {
			return 0, 0, err
		}
	}
	return len(metrics), 0, nil
}

type stubRaws struct {
	repos.RawIngestionRepo
	rows map[uuid.UUID]*ingestion.RawIngestion
	err  error
}

func (s *stubRaws) GetByID(_ dbctx.Context, id uuid.UUID) (*ingestion.RawIngestion, error) {
	if s.err != nil {
		return nil, s.err
	}
	r, ok := s.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r, nil
}

type jobRepo struct {
	repos.ProcessingJobRepo
	mu          sync.Mutex
	progress    []repos.JobProgress
	completions []repos.JobCompletion
	requeued    []string
	released    []string
}

func (r *jobRepo) UpdateProgress(_ dbctx.Context, _ uuid.UUID, p repos.JobProgress) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
	return true, nil
}

func (r *jobRepo) Complete(_ dbctx.Context, _ uuid.UUID, c repos.JobCompletion) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions = append(r.completions, c)
	return true, nil
}

func (r *jobRepo) Requeue(_ dbctx.Context, _ uuid.UUID, _ int, msg string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requeued = append(r.requeued, msg)
	return true, nil
}

func (r *jobRepo) Release(_ dbctx.Context, _ uuid.UUID, _ int, msg string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, msg)
	return true, nil
}

type fixture struct {
	ctx   context.Context
	store *stubStore
	raws  *stubRaws
	repo  *jobRepo
	pipe  *Pipeline
	user  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &stubStore{}
	planner, err := ingest.NewPlanner(ingest.PlannerConfig{})
	require.NoError(t, err)
	writer := ingest.NewWriter(store, ingest.WriterConfig{
		MaxConcurrentChunks: 4,
		Retry:               ingest.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	}, nil, logger.Nop())
	svc, err := ingest.NewService(ingest.ServiceDeps{Planner: planner, Writer: writer}, ingest.ServiceConfig{})
	require.NoError(t, err)

	raws := &stubRaws{rows: map[uuid.UUID]*ingestion.RawIngestion{}}
	return &fixture{
		ctx:   context.Background(),
		store: store,
		raws:  raws,
		repo:  &jobRepo{},
		pipe:  New(logger.Nop(), raws, svc, planner, nil),
		user:  uuid.New(),
	}
}

func (f *fixture) heartRates(n int) []health.Metric {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]health.Metric, n)
	for i := range out {
		bpm := 55 + i%50
		out[i] = health.HeartRateMetric{UserID: f.user, RecordedAt: base.Add(time.Duration(i) * time.Minute), HeartRate: &bpm}
	}
	return out
}

func (f *fixture) job(t *testing.T, payload []byte, cfg *jobs.IngestBatchConfig, retries int) *jrun {
	t.Helper()
	raw := &ingestion.RawIngestion{ID: uuid.New(), UserID: f.user, RawPayload: datatypes.JSON(payload)}
	f.raws.rows[raw.ID] = raw
	job := &jobs.ProcessingJob{
		ID:             uuid.New(),
		UserID:         f.user,
		RawIngestionID: raw.ID,
		JobType:        jobs.JobTypeIngestBatch,
		Status:         jobs.StatusProcessing,
		RetryCount:     retries,
		MaxRetries:     jobs.DefaultMaxRetries,
	}
	if cfg != nil {
		b, err := json.Marshal(cfg)
		require.NoError(t, err)
		job.Config = datatypes.JSON(b)
	}
	return &jrun{jc: jobrt.NewContext(f.ctx, job, f.repo, nil, nil)}
}

type jrun struct{ jc *jobrt.Context }

func encode(t *testing.T, metrics []health.Metric) []byte {
	t.Helper()
	b, err := health.EncodeBatch(metrics)
	require.NoError(t, err)
	return b
}

func TestRunCompletesJob(t *testing.T) {
	f := newFixture(t)
	metrics := f.heartRates(120)
	metrics = append(metrics, metrics[0]) // in-batch duplicate
	r := f.job(t, encode(t, metrics), nil, 0)
	r.jc.Job.TotalMetrics = len(metrics)

	require.NoError(t, f.pipe.Run(r.jc))

	require.Len(t, f.repo.completions, 1)
	c := f.repo.completions[0]
	assert.Equal(t, jobs.StatusCompleted, c.Status)
	assert.Equal(t, ingestion.StatusCompleted, c.RawStatus)
	assert.Equal(t, 120, c.Processed)
	assert.Zero(t, c.Failed)
	assert.Equal(t, 120, c.Total, "total drops the in-batch duplicate")
	assert.Equal(t, c.Processed+c.Failed, c.Total)

	require.NotEmpty(t, f.repo.progress)
	last := f.repo.progress[len(f.repo.progress)-1]
	assert.Equal(t, 120, last.Total)
	assert.Equal(t, last.Total, last.Processed+last.Failed)
	assert.InDelta(t, 100.0, last.Percentage, 1e-9)
	assert.Equal(t, 120, r.jc.Job.TotalMetrics)

	var summary ingest.Summary
	require.NoError(t, json.Unmarshal(c.Summary, &summary))
	assert.Equal(t, ingest.StatusSuccess, summary.Status)
	assert.Equal(t, 1, summary.DuplicatesRemoved)
	require.NotNil(t, summary.Job)
	assert.Equal(t, r.jc.Job.ID, summary.Job.JobID)
}

func TestRunHonorsJobConfig(t *testing.T) {
	f := newFixture(t)
	cfg := jobs.IngestBatchConfig{
		EnableParallelProcessing: false,
		ChunkSizeOverride:        map[string]int{string(health.HeartRate): 10},
	}
	r := f.job(t, encode(t, f.heartRates(55)), &cfg, 0)

	require.NoError(t, f.pipe.Run(r.jc))

	assert.EqualValues(t, 6, f.store.calls.Load())
	assert.EqualValues(t, 1, f.store.maxInflight.Load())
	require.Len(t, f.repo.completions, 1)
	assert.Equal(t, jobs.StatusCompleted, f.repo.completions[0].Status)
}

func TestRunReleasesBatchInterruptedByShutdown(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.ctx = ctx
	f.store.hook = func(_ context.Context, call int32) error {
		if call == 1 {
			cancel()
		}
		return nil
	}
	cfg := jobs.IngestBatchConfig{
		EnableParallelProcessing: false,
		ChunkSizeOverride:        map[string]int{string(health.HeartRate): 10},
	}
	r := f.job(t, encode(t, f.heartRates(30)), &cfg, 0)

	require.NoError(t, f.pipe.Run(r.jc))

	assert.EqualValues(t, 1, f.store.calls.Load())
	assert.Empty(t, f.repo.completions, "an interrupted batch is never completed")
	assert.Empty(t, f.repo.requeued)
	require.Len(t, f.repo.released, 1)
	assert.Contains(t, f.repo.released[0], "context canceled")
	assert.Equal(t, jobs.StatusPending, r.jc.Job.Status)
	assert.Zero(t, r.jc.Job.RetryCount)
}

func TestRunRequeuesBatchThatTimesOut(t *testing.T) {
	f := newFixture(t)
	f.store.hook = func(ctx context.Context, call int32) error {
		if call == 2 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}
	cfg := jobs.IngestBatchConfig{
		EnableParallelProcessing: false,
		ChunkSizeOverride:        map[string]int{string(health.HeartRate): 10},
		TimeoutSeconds:           1,
	}
	r := f.job(t, encode(t, f.heartRates(30)), &cfg, 0)

	require.NoError(t, f.pipe.Run(r.jc))

	assert.Empty(t, f.repo.completions)
	assert.Empty(t, f.repo.released)
	require.Len(t, f.repo.requeued, 1)
	assert.Contains(t, f.repo.requeued[0], "timeout")
	assert.Contains(t, f.repo.requeued[0], "deadline exceeded")
	assert.Equal(t, 1, r.jc.Job.RetryCount)
}

func TestRunCompletesPartialBatchWithPermanentFailure(t *testing.T) {
	f := newFixture(t)
	f.store.hook = func(_ context.Context, call int32) error {
		if call == 2 {
			return errors.New("value too long for type")
		}
		return nil
	}
	cfg := jobs.IngestBatchConfig{
		EnableParallelProcessing: false,
		ChunkSizeOverride:        map[string]int{string(health.HeartRate): 10},
	}
	r := f.job(t, encode(t, f.heartRates(30)), &cfg, 0)

	require.NoError(t, f.pipe.Run(r.jc))

	assert.Empty(t, f.repo.requeued)
	assert.Empty(t, f.repo.released)
	require.Len(t, f.repo.completions, 1)
	c := f.repo.completions[0]
	assert.Equal(t, jobs.StatusCompleted, c.Status)
	assert.Equal(t, ingestion.StatusPartialSuccess, c.RawStatus)
	assert.Equal(t, 20, c.Processed)
	assert.Equal(t, 10, c.Failed)
}

func TestRunRequeuesFailedBatchWhileRetriesRemain(t *testing.T) {
	f := newFixture(t)
	f.store.err = &pgconn.PgError{Code: "53300", Message: "too many connections"}
	r := f.job(t, encode(t, f.heartRates(20)), nil, 1)

	require.NoError(t, f.pipe.Run(r.jc))

	assert.Empty(t, f.repo.completions)
	require.Len(t, f.repo.requeued, 1)
	assert.Contains(t, f.repo.requeued[0], "too many connections")
}

func TestRunFailsWhenRetriesExhausted(t *testing.T) {
	f := newFixture(t)
	f.store.err = errors.New("value too long")
	r := f.job(t, encode(t, f.heartRates(20)), nil, jobs.DefaultMaxRetries)

	require.NoError(t, f.pipe.Run(r.jc))

	assert.Empty(t, f.repo.requeued)
	require.Len(t, f.repo.completions, 1)
	c := f.repo.completions[0]
	assert.Equal(t, jobs.StatusFailed, c.Status)
	assert.Equal(t, ingestion.StatusFailed, c.RawStatus)
	assert.Equal(t, 20, c.Failed)
	assert.NotEmpty(t, c.RawErrors)
}

func TestRunFailsUndecodablePayloadWithoutRetry(t *testing.T) {
	f := newFixture(t)
	r := f.job(t, []byte(`[{"type":"blood_oxygen","data":{}}]`), nil, 0)

	require.NoError(t, f.pipe.Run(r.jc))

	assert.Empty(t, f.repo.requeued)
	require.Len(t, f.repo.completions, 1)
	assert.Equal(t, jobs.StatusFailed, f.repo.completions[0].Status)
	assert.Contains(t, f.repo.completions[0].ErrorMessage, "decode")
	assert.Zero(t, f.store.calls.Load())
}

func TestRunRejectsForeignMetrics(t *testing.T) {
	f := newFixture(t)
	other := &fixture{user: uuid.New()}
	r := f.job(t, encode(t, other.heartRates(3)), nil, 0)

	require.NoError(t, f.pipe.Run(r.jc))

	require.Len(t, f.repo.completions, 1)
	assert.Equal(t, jobs.StatusFailed, f.repo.completions[0].Status)
	assert.Zero(t, f.store.calls.Load())
}

func TestRunMissingRawIngestion(t *testing.T) {
	f := newFixture(t)
	r := f.job(t, encode(t, f.heartRates(1)), nil, 0)
	r.jc.Job.RawIngestionID = uuid.New()

	require.NoError(t, f.pipe.Run(r.jc))
	require.Len(t, f.repo.completions, 1)
	assert.Equal(t, jobs.StatusFailed, f.repo.completions[0].Status)

	f2 := newFixture(t)
	f2.raws.err = errors.New("connection reset by peer")
	r2 := f2.job(t, encode(t, f2.heartRates(1)), nil, 0)
	require.NoError(t, f2.pipe.Run(r2.jc))
	assert.Len(t, f2.repo.requeued, 1)
}
