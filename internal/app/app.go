package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	redisbus "github.com/Ladvien/self-sensored-sub003/internal/clients/redis"
	"github.com/Ladvien/self-sensored-sub003/internal/data/aggregates"
	"github.com/Ladvien/self-sensored-sub003/internal/data/db"
	"github.com/Ladvien/self-sensored-sub003/internal/data/repos"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/jobs"
	httpx "github.com/Ladvien/self-sensored-sub003/internal/http"
	httpH "github.com/Ladvien/self-sensored-sub003/internal/http/handlers"
	"github.com/Ladvien/self-sensored-sub003/internal/jobs/pipeline/ingest_batch"
	jobrt "github.com/Ladvien/self-sensored-sub003/internal/jobs/runtime"
	"github.com/Ladvien/self-sensored-sub003/internal/jobs/sweeper"
	"github.com/Ladvien/self-sensored-sub003/internal/jobs/worker"
	"github.com/Ladvien/self-sensored-sub003/internal/modules/ingest"
	"github.com/Ladvien/self-sensored-sub003/internal/observability"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

type Repos struct {
	Jobs       repos.ProcessingJobRepo
	Ingestions repos.RawIngestionRepo
	Metrics    repos.MetricUpsertRepo
}

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Bus      redisbus.JobBus
	Metrics  *observability.Metrics
	Repos    Repos
	Planner  *ingest.Planner
	Writer   *ingest.Writer
	Ingest   *ingest.Service
	Registry *jobrt.Registry
	Worker   *worker.Worker
	Sweeper  *sweeper.Sweeper
	Ops      *httpx.Server

	wake     chan struct{}
	closers  []func(context.Context) error
	cancel   context.CancelFunc
	bg       sync.WaitGroup
	stopOnce sync.Once
}

// New validates cfg, connects to Postgres (and Redis when configured) and
// wires every component.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	shutdownOtel := observability.InitOTel(ctx, log, cfg.Otel)

	pg, err := db.NewPostgresService(cfg.Postgres, log)
	if err != nil {
		_ = shutdownOtel(ctx)
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	var bus redisbus.JobBus
	if cfg.Redis.Addr != "" {
		bus, err = redisbus.NewJobBus(log, redisbus.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			_ = pg.Close()
			_ = shutdownOtel(ctx)
			return nil, fmt.Errorf("init redis: %w", err)
		}
	} else {
		log.Warn("redis.addr not set; workers rely on polling only")
	}

	a, err := Wire(cfg, log, pg.DB(), bus)
	if err != nil {
		if bus != nil {
			_ = bus.Close()
		}
		_ = pg.Close()
		_ = shutdownOtel(ctx)
		return nil, err
	}
	a.closers = append(a.closers,
		func(context.Context) error { return pg.Close() },
		shutdownOtel,
	)
	return a, nil
}

// Wire builds the component graph on an open database. bus may be nil.
func Wire(cfg Config, log *logger.Logger, gdb *gorm.DB, bus redisbus.JobBus) (*App, error) {
	if gdb == nil {
		return nil, errors.New("app: nil database")
	}
	planner, err := cfg.Planner()
	if err != nil {
		return nil, fmt.Errorf("chunk planner: %w", err)
	}

	metrics := observability.NewMetrics()
	rs := Repos{
		Jobs:       repos.NewProcessingJobRepo(gdb, log),
		Ingestions: repos.NewRawIngestionRepo(gdb, log),
		Metrics:    repos.NewMetricUpsertRepo(gdb, log),
	}

	writer := ingest.NewWriter(rs.Metrics, ingest.WriterConfig{
		MaxConcurrentChunks: cfg.Batch.MaxConcurrentChunks,
		Retry:               cfg.Batch.Retry,
		ChunkTimeout:        cfg.Batch.ChunkTimeout,
	}, metrics, log)

	var notifier ingest.Notifier = ingest.NopNotifier{}
	var events jobrt.EventPublisher
	if bus != nil {
		notifier = bus
		events = bus
	}

	jobCfg := jobs.DefaultIngestBatchConfig()
	if cfg.Batch.JobTimeout > 0 {
		jobCfg.TimeoutSeconds = int(cfg.Batch.JobTimeout.Seconds())
	}
	svc, err := ingest.NewService(ingest.ServiceDeps{
		Log:        log,
		Planner:    planner,
		Writer:     writer,
		Tx:         aggregates.NewGormTxRunner(gdb),
		Jobs:       rs.Jobs,
		Ingestions: rs.Ingestions,
		Notifier:   notifier,
		Recorder:   metrics,
	}, ingest.ServiceConfig{
		AsyncThresholdMetrics: cfg.Batch.AsyncThresholdMetrics,
		AsyncThresholdBytes:   cfg.Batch.AsyncThresholdBytes,
		MaxErrorSamples:       cfg.Batch.MaxErrorSamples,
		JobMaxRetries:         cfg.Batch.MaxRetries,
		JobConfig:             jobCfg,
	})
	if err != nil {
		return nil, err
	}

	registry := jobrt.NewRegistry()
	if err := registry.Register(ingest_batch.New(log, rs.Ingestions, svc, planner, nil)); err != nil {
		return nil, err
	}

	wake := make(chan struct{}, 1)
	wk := worker.NewWorker(log, rs.Jobs, registry, events, metrics, worker.Config{
		Concurrency:       cfg.Jobs.Concurrency,
		PollInterval:      cfg.Jobs.PollInterval,
		RetryDelay:        cfg.Jobs.RetryDelay,
		StaleAfter:        cfg.Jobs.StaleAfter,
		HeartbeatInterval: cfg.Jobs.HeartbeatInterval,
	}, wake)
	sw := sweeper.New(log, rs.Jobs, metrics, sweeper.Config{
		Interval:   cfg.Jobs.SweepInterval,
		Retention:  cfg.Jobs.Retention,
		StaleAfter: cfg.Jobs.StaleAfter,
	})

	checks := map[string]httpH.Check{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if bus != nil {
		checks["redis"] = bus.Ping
	}
	ops := httpx.NewServer(log, cfg.Ops.Addr, httpx.RouterConfig{
		HealthHandler: httpH.NewHealthHandler(checks),
		Metrics:       metrics.Handler(),
	})

	a := &App{
		Log:      log,
		Cfg:      cfg,
		DB:       gdb,
		Bus:      bus,
		Metrics:  metrics,
		Repos:    rs,
		Planner:  planner,
		Writer:   writer,
		Ingest:   svc,
		Registry: registry,
		Worker:   wk,
		Sweeper:  sw,
		Ops:      ops,
		wake:     wake,
	}
	if bus != nil {
		a.closers = append(a.closers, func(context.Context) error { return bus.Close() })
	}
	return a, nil
}

// Start launches the worker pool, the sweeper, the wake-up forwarder and
// the metric collectors. It does not start the ops server.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return errors.New("app: already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Bus != nil {
		if err := a.Bus.StartWakeForwarder(ctx, a.wake); err != nil {
			cancel()
			return fmt.Errorf("subscribe wake-ups: %w", err)
		}
		a.Metrics.StartRedisCollector(ctx, a.Log, a.Bus, a.Cfg.Ops.CollectInterval)
	}
	a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB, a.Cfg.Ops.CollectInterval)

	a.Worker.Start(ctx)
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		a.Sweeper.Run(ctx)
	}()
	return nil
}

// Stop cancels background loops, waits for in-flight jobs to write their
// terminal state, then releases connections.
func (a *App) Stop(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var result *multierror.Error
	a.stopOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
			a.Worker.Wait()
			a.bg.Wait()
		}
		for _, c := range a.closers {
			if err := c(ctx); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if a.Log != nil {
			a.Log.Sync()
		}
	})
	return result.ErrorOrNil()
}
