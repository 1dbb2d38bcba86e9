package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/Ladvien/self-sensored-sub003/internal/domain/health"
	"github.com/Ladvien/self-sensored-sub003/internal/modules/ingest"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

const namespace = "healthingest"

// Metrics is the Prometheus side of the engine. It records the ingest
// pipeline, the job workers and the sweeper, and owns its registry so tests
// can build as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	dedupDuplicates *prometheus.CounterVec
	dedupSeconds    prometheus.Histogram
	chunkWrites     *prometheus.CounterVec
	chunkRecords    *prometheus.CounterVec
	chunkSeconds    *prometheus.HistogramVec
	chunkRetries    *prometheus.CounterVec
	batches         *prometheus.CounterVec
	batchSeconds    *prometheus.HistogramVec
	batchMetrics    *prometheus.HistogramVec
	jobs            *prometheus.CounterVec
	jobSeconds      *prometheus.HistogramVec
	queueDepth      *prometheus.GaugeVec
	pgPool          *prometheus.GaugeVec
	redisUp         prometheus.Gauge
	redisPing       prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		dedupDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_duplicates_total",
			Help:      "In-batch duplicates removed before writing, by metric type.",
		}, []string{"metric_type"}),
		dedupSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dedup_duration_seconds",
			Help:      "Time spent deduplicating one batch.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		chunkWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_writes_total",
			Help:      "Chunk transactions by metric type and outcome.",
		}, []string{"metric_type", "outcome"}),
		chunkRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_records_total",
			Help:      "Records written by metric type and result (inserted, updated, skipped, failed).",
		}, []string{"metric_type", "result"}),
		chunkSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_duration_seconds",
			Help:      "Wall time of one chunk including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"metric_type"}),
		chunkRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_retries_total",
			Help:      "Chunk retry attempts after a transient failure.",
		}, []string{"metric_type"}),
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Processed batches by status and mode (sync or async).",
		}, []string{"status", "mode"}),
		batchSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "End to end processing time of one batch.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"mode"}),
		batchMetrics: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_metrics",
			Help:      "Metrics received per batch.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		}, []string{"mode"}),
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Dispatched background jobs by type and resulting status.",
		}, []string{"job_type", "status"}),
		jobSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Run time of one background job attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"job_type"}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_queue_depth",
			Help:      "Processing jobs by status.",
		}, []string{"status"}),
		pgPool: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "postgres_pool",
			Help:      "database/sql pool stats.",
		}, []string{"metric"}),
		redisUp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "redis_up",
			Help:      "Redis connectivity (1=up, 0=down).",
		}),
		redisPing: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "redis_ping_seconds",
			Help:      "Latency of the last redis ping.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func mode(async bool) string {
	if async {
		return "async"
	}
	return "sync"
}

func (m *Metrics) ObserveDedup(stats ingest.DedupStats) {
	for t, n := range stats.PerType {
		m.dedupDuplicates.WithLabelValues(string(t)).Add(float64(n))
	}
	m.dedupSeconds.Observe(stats.Elapsed.Seconds())
}

func (m *Metrics) ObserveChunk(res ingest.ChunkResult) {
	t := string(res.Type)
	m.chunkSeconds.WithLabelValues(t).Observe(res.Duration.Seconds())
	if !res.OK() {
		m.chunkWrites.WithLabelValues(t, "failed").Inc()
		m.chunkRecords.WithLabelValues(t, "failed").Add(float64(res.Records))
		return
	}
	m.chunkWrites.WithLabelValues(t, "ok").Inc()
	m.chunkRecords.WithLabelValues(t, "inserted").Add(float64(res.Inserted))
	m.chunkRecords.WithLabelValues(t, "updated").Add(float64(res.Updated))
	m.chunkRecords.WithLabelValues(t, "skipped").Add(float64(res.Skipped))
}

func (m *Metrics) ObserveRetry(t health.MetricType, _ error) {
	m.chunkRetries.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) ObserveBatch(s ingest.Summary, async bool, elapsed time.Duration) {
	md := mode(async)
	m.batches.WithLabelValues(string(s.Status), md).Inc()
	m.batchSeconds.WithLabelValues(md).Observe(elapsed.Seconds())
	m.batchMetrics.WithLabelValues(md).Observe(float64(s.TotalReceived))
}

func (m *Metrics) ObserveJob(jobType, status string, elapsed time.Duration) {
	m.jobs.WithLabelValues(jobType, status).Inc()
	m.jobSeconds.WithLabelValues(jobType).Observe(elapsed.Seconds())
}

// ObserveQueueDepth replaces the depth gauge. Statuses that vanished from
// the table drop to zero.
func (m *Metrics) ObserveQueueDepth(counts map[string]int64) {
	m.queueDepth.Reset()
	for status, n := range counts {
		m.queueDepth.WithLabelValues(status).Set(float64(n))
	}
}

func (m *Metrics) samplePostgres(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	stats := sqlDB.Stats()
	m.pgPool.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
	m.pgPool.WithLabelValues("in_use").Set(float64(stats.InUse))
	m.pgPool.WithLabelValues("idle").Set(float64(stats.Idle))
	m.pgPool.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
	m.pgPool.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
	m.pgPool.WithLabelValues("max_open_connections").Set(float64(stats.MaxOpenConnections))
	return nil
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB, interval time.Duration) {
	if m == nil || db == nil {
		return
	}
	go tick(ctx, interval, func() {
		if err := m.samplePostgres(db); err != nil && log != nil {
			log.Warn("metrics: postgres stats unavailable", "error", err)
		}
	})
}

// Pinger is satisfied by the redis job bus.
type Pinger interface {
	Ping(ctx context.Context) error
}

func (m *Metrics) sampleRedis(ctx context.Context, p Pinger) error {
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		m.redisUp.Set(0)
		return err
	}
	m.redisUp.Set(1)
	m.redisPing.Set(time.Since(start).Seconds())
	return nil
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, p Pinger, interval time.Duration) {
	if m == nil || p == nil {
		return
	}
	go tick(ctx, interval, func() {
		if err := m.sampleRedis(ctx, p); err != nil && log != nil && !errors.Is(err, context.Canceled) {
			log.Warn("metrics: redis ping failed", "error", err)
		}
	})
}

func tick(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
