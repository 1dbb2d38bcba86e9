package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/Ladvien/self-sensored-sub003/internal/domain/health"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/ingestion"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/jobs"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/dbctx"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

var ErrInvalidBatch = errors.New("invalid batch")

const (
	DefaultAsyncThresholdMetrics = 10000
	DefaultAsyncThresholdBytes   = 10 << 20
)

// Batch is a validated submission from the ingest boundary.
type Batch struct {
	UserID         uuid.UUID
	APIKeyID       *uuid.UUID
	RawIngestionID uuid.UUID
	Metrics        []health.Metric
	ReceivedAt     time.Time
	PayloadBytes   int64

	// Async-only knobs. Zero values fall back to the service config.
	Priority  int
	JobConfig *jobs.IngestBatchConfig
}

// Outcome is either an inline Summary or a handle to a queued job.
type Outcome struct {
	Async   bool      `json:"async"`
	JobID   uuid.UUID `json:"job_id,omitempty"`
	Summary *Summary  `json:"summary,omitempty"`
}

// PayloadDecoder rebuilds metrics from a stored RawIngestion payload.
type PayloadDecoder interface {
	Decode(raw []byte) ([]health.Metric, error)
}

// EnvelopeDecoder reads the {"type","data"} envelope format.
type EnvelopeDecoder struct{}

func (EnvelopeDecoder) Decode(raw []byte) ([]health.Metric, error) { return health.DecodeBatch(raw) }

// Notifier wakes idle workers after a job is queued. Delivery is best
// effort; workers also poll.
type Notifier interface {
	NotifyJob(ctx context.Context, jobID uuid.UUID) error
}

type NopNotifier struct{}

func (NopNotifier) NotifyJob(context.Context, uuid.UUID) error { return nil }

type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

type JobStore interface {
	Create(dbc dbctx.Context, job *jobs.ProcessingJob) error
	GetByRawIngestion(dbc dbctx.Context, rawIngestionID uuid.UUID) (*jobs.ProcessingJob, error)
}

type IngestionStore interface {
	AttachJob(dbc dbctx.Context, id, jobID uuid.UUID) error
	SetResult(dbc dbctx.Context, id uuid.UUID, status string, processingErrors datatypes.JSON) error
}

type ServiceConfig struct {
	AsyncThresholdMetrics int
	AsyncThresholdBytes   int64
	MaxErrorSamples       int
	JobPriority           int
	JobMaxRetries         int
	JobConfig             jobs.IngestBatchConfig
}

type ServiceDeps struct {
	Log        *logger.Logger
	Planner    *Planner
	Writer     *Writer
	Tx         TxRunner
	Jobs       JobStore
	Ingestions IngestionStore
	Notifier   Notifier
	Recorder   Recorder
}

type Service struct {
	deps ServiceDeps
	cfg  ServiceConfig
}

func NewService(deps ServiceDeps, cfg ServiceConfig) (*Service, error) {
	if deps.Planner == nil || deps.Writer == nil {
		return nil, errors.New("ingest: planner and writer are required")
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Recorder == nil {
		deps.Recorder = NopRecorder{}
	}
	if cfg.AsyncThresholdMetrics <= 0 {
		cfg.AsyncThresholdMetrics = DefaultAsyncThresholdMetrics
	}
	if cfg.AsyncThresholdBytes <= 0 {
		cfg.AsyncThresholdBytes = DefaultAsyncThresholdBytes
	}
	if cfg.JobPriority == 0 {
		cfg.JobPriority = jobs.PriorityNormal
	}
	if cfg.JobMaxRetries <= 0 {
		cfg.JobMaxRetries = jobs.DefaultMaxRetries
	}
	if cfg.JobConfig.TimeoutSeconds == 0 {
		cfg.JobConfig = jobs.DefaultIngestBatchConfig()
	}
	deps.Log = deps.Log.With("component", "IngestService")
	return &Service{deps: deps, cfg: cfg}, nil
}

// ShouldDefer reports whether b goes to the background queue.
func (s *Service) ShouldDefer(b Batch) bool {
	return len(b.Metrics) > s.cfg.AsyncThresholdMetrics || b.PayloadBytes > s.cfg.AsyncThresholdBytes
}

// Submit runs b inline, or queues it when it is too large for one request.
func (s *Service) Submit(ctx context.Context, b Batch) (Outcome, error) {
	if err := validateBatch(b); err != nil {
		return Outcome{}, err
	}
	if s.ShouldDefer(b) {
		jobID, err := s.enqueue(ctx, b)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Async: true, JobID: jobID}, nil
	}

	summary := s.Process(ctx, b.UserID, b.Metrics, ProcessOptions{})
	if b.RawIngestionID != uuid.Nil && s.deps.Ingestions != nil {
		if err := s.deps.Ingestions.SetResult(dbctx.Context{Ctx: ctx}, b.RawIngestionID, RawStatus(summary.Status), ErrorsJSON(summary)); err != nil {
			s.deps.Log.Warn("raw ingestion status update failed", "raw_ingestion_id", b.RawIngestionID, "error", err)
		}
	}
	return Outcome{Summary: &summary}, nil
}

func validateBatch(b Batch) error {
	if b.UserID == uuid.Nil {
		return fmt.Errorf("%w: missing user id", ErrInvalidBatch)
	}
	for i, m := range b.Metrics {
		if m == nil {
			return fmt.Errorf("%w: metric %d is nil", ErrInvalidBatch, i)
		}
		if m.Owner() != b.UserID {
			return fmt.Errorf("%w: metric %d (%s) belongs to another user", ErrInvalidBatch, i, m.Type())
		}
	}
	return nil
}

func (s *Service) enqueue(ctx context.Context, b Batch) (uuid.UUID, error) {
	if b.RawIngestionID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: background processing needs a stored raw ingestion", ErrInvalidBatch)
	}
	if s.deps.Tx == nil || s.deps.Jobs == nil || s.deps.Ingestions == nil {
		return uuid.Nil, errors.New("ingest: background queue is not configured")
	}

	if existing, err := s.deps.Jobs.GetByRawIngestion(dbctx.Context{Ctx: ctx}, b.RawIngestionID); err != nil {
		return uuid.Nil, fmt.Errorf("look up job: %w", err)
	} else if existing != nil {
		return existing.ID, nil
	}

	cfg := s.cfg.JobConfig
	if b.JobConfig != nil {
		cfg = *b.JobConfig
	}
	if len(cfg.ChunkSizeOverride) > 0 {
		if _, err := s.deps.Planner.WithOverrides(cfg.ChunkSizeOverride); err != nil {
			return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
		}
	}
	rawCfg, err := json.Marshal(cfg)
	if err != nil {
		return uuid.Nil, err
	}
	priority := b.Priority
	if priority == 0 {
		priority = s.cfg.JobPriority
	}

	job := &jobs.ProcessingJob{
		UserID:         b.UserID,
		APIKeyID:       b.APIKeyID,
		RawIngestionID: b.RawIngestionID,
		JobType:        jobs.JobTypeIngestBatch,
		Status:         jobs.StatusPending,
		Priority:       priority,
		TotalMetrics:   len(b.Metrics),
		MaxRetries:     s.cfg.JobMaxRetries,
		Config:         datatypes.JSON(rawCfg),
	}
	err = s.deps.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		if err := s.deps.Jobs.Create(dbc, job); err != nil {
			return err
		}
		return s.deps.Ingestions.AttachJob(dbc, b.RawIngestionID, job.ID)
	})
	if errors.Is(err, jobs.ErrJobExists) {
		existing, lookupErr := s.deps.Jobs.GetByRawIngestion(dbctx.Context{Ctx: ctx}, b.RawIngestionID)
		if lookupErr != nil || existing == nil {
			return uuid.Nil, fmt.Errorf("load existing job: %w", errors.Join(err, lookupErr))
		}
		return existing.ID, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.deps.Log.Info("batch queued for background processing",
		"job_id", job.ID,
		"user_id", b.UserID,
		"metrics", len(b.Metrics),
		"payload_bytes", b.PayloadBytes,
		"priority", priority,
	)
	if err := s.deps.Notifier.NotifyJob(ctx, job.ID); err != nil {
		s.deps.Log.Warn("job wake-up publish failed", "job_id", job.ID, "error", err)
	}
	return job.ID, nil
}

type ProcessOptions struct {
	// Planner replaces the service planner, e.g. with per-job overrides.
	Planner *Planner
	// MaxParallel caps this call's concurrency below the shared limit.
	MaxParallel int
	// OnProgress receives cumulative written and failed record counts.
	OnProgress func(written, failed, total int)
	// Job is set when a background job runs the batch.
	Job *JobMeta
}

// Process runs dedup, planning, chunk writes and aggregation. It is shared
// by inline submissions and the background job handler.
func (s *Service) Process(ctx context.Context, userID uuid.UUID, metrics []health.Metric, opts ProcessOptions) Summary {
	start := time.Now()
	log := s.deps.Log.With("user_id", userID)

	kept, dstats := Deduplicate(metrics)
	s.deps.Recorder.ObserveDedup(dstats)
	if dstats.Duplicates > 0 {
		log.Debug("in-batch duplicates removed", "duplicates", dstats.Duplicates, "kept", dstats.Kept)
	}

	planner := s.deps.Planner
	if opts.Planner != nil {
		planner = opts.Planner
	}
	chunks := planner.Plan(kept)

	var written, failed int
	onChunk := func(r ChunkResult) {
		if r.OK() {
			written += r.Records
		} else {
			failed += r.Records
		}
		if opts.OnProgress != nil {
			opts.OnProgress(written, failed, len(kept))
		}
	}
	results := s.deps.Writer.WriteLimited(ctx, chunks, opts.MaxParallel, onChunk)

	summary := Summarize(SummaryInput{
		Dedup:           dstats,
		Results:         results,
		MaxErrorSamples: s.cfg.MaxErrorSamples,
		Elapsed:         time.Since(start),
		Job:             opts.Job,
	})
	s.deps.Recorder.ObserveBatch(summary, opts.Job != nil, time.Since(start))
	log.Info("batch processed",
		"status", summary.Status,
		"received", summary.TotalReceived,
		"inserted", summary.Inserted,
		"updated", summary.Updated,
		"failed", summary.Failed,
		"chunks", len(chunks),
		"elapsed_ms", summary.ProcessingMillis,
	)
	return summary
}

// RawStatus maps a batch status onto the RawIngestion lifecycle.
func RawStatus(s Status) string {
	switch s {
	case StatusSuccess:
		return ingestion.StatusCompleted
	case StatusPartialSuccess:
		return ingestion.StatusPartialSuccess
	default:
		return ingestion.StatusFailed
	}
}

// ErrorsJSON is the processing_errors column value for s, or nil when
// nothing failed.
func ErrorsJSON(s Summary) datatypes.JSON {
	if len(s.Errors) == 0 {
		return nil
	}
	raw, err := json.Marshal(s.Errors)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
