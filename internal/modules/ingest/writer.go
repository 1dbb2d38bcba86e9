package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Ladvien/self-sensored-sub003/internal/domain/health"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

const DefaultMaxConcurrentChunks = 10

// ChunkStore writes same-type metrics in one transaction and reports how
// many rows were newly inserted and how many existing rows changed. Rows
// identical to the stored copy count as neither.
type ChunkStore interface {
	UpsertMetrics(ctx context.Context, t health.MetricType, metrics []health.Metric) (inserted, updated int, err error)
}

type ChunkResult struct {
	Type      health.MetricType
	Index     int
	Records   int
	Inserted  int
	Updated   int
	Skipped   int
	Attempts  int
	Err       error
	// Retryable is set when a rerun could still land the chunk: the caller's
	// context ended before the write finished. Transient errors that used up
	// their attempts are permanent.
	Retryable bool
	Duration  time.Duration
}

func (r ChunkResult) OK() bool { return r.Err == nil }

type WriterConfig struct {
	MaxConcurrentChunks int
	Retry               RetryPolicy
	// ChunkTimeout bounds all attempts of one chunk. Zero means no bound.
	ChunkTimeout time.Duration
}

// Writer executes chunks concurrently. The semaphore is shared by every
// Write call, so concurrent batches together never hold more than
// MaxConcurrentChunks transactions.
type Writer struct {
	store  ChunkStore
	cfg    WriterConfig
	sem    *semaphore.Weighted
	rec    Recorder
	log    *logger.Logger
	tracer trace.Tracer
}

func NewWriter(store ChunkStore, cfg WriterConfig, rec Recorder, log *logger.Logger) *Writer {
	if cfg.MaxConcurrentChunks <= 0 {
		cfg.MaxConcurrentChunks = DefaultMaxConcurrentChunks
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if rec == nil {
		rec = NopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Writer{
		store:  store,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrentChunks)),
		rec:    rec,
		log:    log.With("component", "ChunkWriter"),
		tracer: otel.Tracer("healthingest/ingest"),
	}
}

// Write runs every chunk and returns one result per chunk in submission
// order. A failed chunk does not stop the others. onChunk, if set, is
// called once per chunk as it finishes, never concurrently.
func (w *Writer) Write(ctx context.Context, chunks []Chunk, onChunk func(ChunkResult)) []ChunkResult {
	return w.WriteLimited(ctx, chunks, 0, onChunk)
}

// WriteLimited is Write with an additional per-call cap on parallelism.
// limit <= 0 means only the shared cap applies.
func (w *Writer) WriteLimited(ctx context.Context, chunks []Chunk, limit int, onChunk func(ChunkResult)) []ChunkResult {
	results := make([]ChunkResult, len(chunks))
	if len(chunks) == 0 {
		return results
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	var mu sync.Mutex
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			res := w.writeChunk(ctx, c)
			results[i] = res
			w.rec.ObserveChunk(res)
			if onChunk != nil {
				mu.Lock()
				onChunk(res)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (w *Writer) writeChunk(ctx context.Context, c Chunk) ChunkResult {
	start := time.Now()
	res := ChunkResult{Type: c.Type, Index: c.Index, Records: len(c.Metrics)}
	parent := ctx

	if err := w.sem.Acquire(ctx, 1); err != nil {
		res.Err = fmt.Errorf("wait for chunk slot: %w", err)
		res.Retryable = true
		res.Duration = time.Since(start)
		return res
	}
	defer w.sem.Release(1)

	ctx, span := w.tracer.Start(ctx, "ingest.write_chunk", trace.WithAttributes(
		attribute.String("metric_type", string(c.Type)),
		attribute.Int("chunk_index", c.Index),
		attribute.Int("records", len(c.Metrics)),
	))
	defer span.End()

	if w.cfg.ChunkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.ChunkTimeout)
		defer cancel()
	}

	var inserted, updated int
	attempts, err := w.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		ins, upd, err := w.store.UpsertMetrics(ctx, c.Type, c.Metrics)
		if err != nil {
			return err
		}
		inserted, updated = ins, upd
		return nil
	}, func(attempt int, err error) {
		w.rec.ObserveRetry(c.Type, err)
		w.log.Warn("chunk write failed, retrying",
			"metric_type", c.Type,
			"chunk_index", c.Index,
			"attempt", attempt,
			"error", err,
		)
	})

	res.Attempts = attempts
	res.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		res.Err = err
		res.Retryable = interrupted(parent, err) ||
			(Classify(err) == Transient && attempts < max(w.cfg.Retry.MaxAttempts, 1))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.log.Error("chunk write failed",
			"metric_type", c.Type,
			"chunk_index", c.Index,
			"records", res.Records,
			"attempts", attempts,
			"retryable", res.Retryable,
			"error", err,
		)
		return res
	}
	res.Inserted, res.Updated = inserted, updated
	res.Skipped = max(res.Records-inserted-updated, 0)
	return res
}

func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
