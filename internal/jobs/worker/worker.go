package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ladvien/self-sensored-sub003/internal/data/repos"
	jobrt "github.com/Ladvien/self-sensored-sub003/internal/jobs/runtime"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/dbctx"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

type Config struct {
	Concurrency       int
	PollInterval      time.Duration
	RetryDelay        time.Duration
	StaleAfter        time.Duration
	HeartbeatInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Concurrency:       4,
		PollInterval:      time.Second,
		RetryDelay:        30 * time.Second,
		HeartbeatInterval: 15 * time.Second,
	}
}

// Observer receives one call per dispatched job.
type Observer interface {
	ObserveJob(jobType, status string, elapsed time.Duration)
}

type Worker struct {
	log      *logger.Logger
	repo     repos.ProcessingJobRepo
	registry *jobrt.Registry
	events   jobrt.EventPublisher
	observer Observer
	cfg      Config
	wake     <-chan struct{}

	wg sync.WaitGroup
}

// NewWorker builds a pool. wake, when non-nil, lets a publisher cut the poll
// wait short; events and observer may be nil.
func NewWorker(baseLog *logger.Logger, repo repos.ProcessingJobRepo, registry *jobrt.Registry, events jobrt.EventPublisher, observer Observer, cfg Config, wake <-chan struct{}) *Worker {
	def := DefaultConfig()
	if cfg.Concurrency < 1 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	return &Worker{
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		events:   events,
		observer: observer,
		cfg:      cfg,
		wake:     wake,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool",
		"concurrency", w.cfg.Concurrency,
		"poll_interval", w.cfg.PollInterval,
		"job_types", w.registry.Types(),
	)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
}

// Wait blocks until every loop has returned after ctx was canceled. A job
// in flight finishes its terminal write first.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Drain the queue before waiting again.
		for ctx.Err() == nil {
			ran, err := w.RunOnce(ctx)
			if err != nil {
				w.log.Warn("ClaimNext failed", "worker_id", workerID, "error", err)
				break
			}
			if !ran {
				break
			}
		}
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// RunOnce claims at most one job and runs it to completion. It reports
// whether a job was claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.repo.ClaimNext(dbctx.Context{Ctx: ctx}, repos.ClaimPolicy{
		RetryDelay: w.cfg.RetryDelay,
		StaleAfter: w.cfg.StaleAfter,
		JobTypes:   w.registry.Types(),
	})
	if err != nil || job == nil {
		return false, err
	}

	start := time.Now()
	jc := jobrt.NewContext(ctx, job, w.repo, w.events, w.log)
	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type", "job_type", job.JobType, "job_id", job.ID)
		w.finish(jc, "dispatch", &missingHandlerError{JobType: job.JobType})
		w.observe(jc, start)
		return true, nil
	}

	stop := w.heartbeat(ctx, jc)
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Job handler panic", "job_id", job.ID, "job_type", job.JobType, "panic", r)
				w.finish(jc, "panic", errFromRecover(r))
			}
		}()
		if runErr := h.Run(jc); runErr != nil && !jc.Finished() {
			w.finish(jc, "run", runErr)
		}
	}()
	stop()

	if !jc.Finished() {
		var err error
		if ctx.Err() != nil {
			// Stopped mid-job; the next worker starts it over.
			_, err = jc.Release("shutdown", ctx.Err())
		} else {
			// The handler returned without deciding; treat it as a failed attempt.
			_, err = jc.RetryOrFail("run", fmt.Errorf("handler returned without finishing the job"), jobrt.Result{})
		}
		if err != nil {
			w.log.Error("job requeue failed", "job_id", job.ID, "error", err)
		}
	}
	w.observe(jc, start)
	return true, nil
}

func (w *Worker) finish(jc *jobrt.Context, stage string, cause error) {
	if err := jc.Fail(stage, cause, jobrt.Result{}); err != nil {
		w.log.Error("job failure write failed", "job_id", jc.Job.ID, "stage", stage, "error", err)
	}
}

func (w *Worker) heartbeat(ctx context.Context, jc *jobrt.Context) (stop func()) {
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(w.cfg.HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				jc.Heartbeat()
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (w *Worker) observe(jc *jobrt.Context, start time.Time) {
	if w.observer != nil {
		w.observer.ObserveJob(jc.Job.JobType, jc.Job.Status, time.Since(start))
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
