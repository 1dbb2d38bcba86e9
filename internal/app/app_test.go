package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	redisbus "github.com/Ladvien/self-sensored-sub003/internal/clients/redis"
	"github.com/Ladvien/self-sensored-sub003/internal/data/repos/testutil"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/ingestion"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/jobs"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/dbctx"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Jobs.PollInterval = time.Hour
	cfg.Jobs.Concurrency = 2
	cfg.Ops.CollectInterval = time.Hour
	return cfg
}

func testBus(t *testing.T) redisbus.JobBus {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return redisbus.NewJobBusFromClient(logger.Nop(), rdb, "test:jobs")
}

func TestWireRegistersIngestPipeline(t *testing.T) {
	a, err := Wire(testConfig(t), logger.Nop(), testutil.SQLite(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })

	assert.Equal(t, []string{jobs.JobTypeIngestBatch}, a.Registry.Types())
	assert.NotNil(t, a.Ingest)
	assert.NotNil(t, a.Planner)
}

func TestWireRejectsBadPlanner(t *testing.T) {
	cfg := testConfig(t)
	cfg.Batch.ChunkOverrides = map[string]int{"heart_rate": 1_000_000}
	_, err := Wire(cfg, logger.Nop(), testutil.SQLite(t), nil)
	require.Error(t, err)
}

func TestOpsEndpoints(t *testing.T) {
	a, err := Wire(testConfig(t), logger.Nop(), testutil.SQLite(t), testBus(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })

	for path, want := range map[string]int{
		"/healthz": http.StatusOK,
		"/readyz":  http.StatusOK,
		"/metrics": http.StatusOK,
		"/nope":    http.StatusNotFound,
	} {
		rec := httptest.NewRecorder()
		a.Ops.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}

func TestWakeUpDrivesWorkerToTerminalState(t *testing.T) {
	db := testutil.SQLite(t)
	a, err := Wire(testConfig(t), logger.Nop(), db, testBus(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	t.Cleanup(func() { _ = a.Stop(context.Background()) })

	user := uuid.New()
	raw := &ingestion.RawIngestion{
		UserID:     user,
		RawPayload: datatypes.JSON(`[{"type":"not_a_metric","data":{}}]`),
	}
	require.NoError(t, db.Create(raw).Error)
	job := &jobs.ProcessingJob{UserID: user, RawIngestionID: raw.ID, TotalMetrics: 1}
	require.NoError(t, a.Repos.Jobs.Create(dbctx.Context{Ctx: ctx}, job))
	require.NoError(t, a.Bus.NotifyJob(ctx, job.ID))

	// The payload cannot be decoded, so the job fails without a retry.
	require.Eventually(t, func() bool {
		got, err := a.Repos.Jobs.GetByID(dbctx.Context{Ctx: ctx}, job.ID)
		return err == nil && got != nil && got.Status == jobs.StatusFailed
	}, 5*time.Second, 20*time.Millisecond)

	stored, err := a.Repos.Ingestions.GetByID(dbctx.Context{Ctx: ctx}, raw.ID)
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusFailed, stored.ProcessingStatus)

	require.NoError(t, a.Stop(context.Background()))
}
