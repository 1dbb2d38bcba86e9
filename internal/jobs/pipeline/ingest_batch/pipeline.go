package ingest_batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ladvien/self-sensored-sub003/internal/data/aggregates"
	jobrt "github.com/Ladvien/self-sensored-sub003/internal/jobs/runtime"
	"github.com/Ladvien/self-sensored-sub003/internal/modules/ingest"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/dbctx"
)

var errForeignPayload = errors.New("payload contains metrics owned by another user")

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	job := jc.Job

	raw, err := p.raws.GetByID(dbctx.Context{Ctx: jc.Ctx}, job.RawIngestionID)
	if err != nil {
		if aggregates.IsNotFound(err) {
			return jc.Fail("load", fmt.Errorf("raw ingestion %s is gone", job.RawIngestionID), jobrt.Result{})
		}
		if jc.Ctx.Err() != nil {
			_, rErr := jc.Release("shutdown", err)
			return rErr
		}
		_, rErr := jc.RetryOrFail("load", err, jobrt.Result{})
		return rErr
	}

	// Config, decode and ownership problems will not fix themselves on retry.
	cfg, err := job.DecodeConfig()
	if err != nil {
		return jc.Fail("config", err, jobrt.Result{})
	}
	planner := p.planner
	if len(cfg.ChunkSizeOverride) > 0 {
		if planner, err = p.planner.WithOverrides(cfg.ChunkSizeOverride); err != nil {
			return jc.Fail("config", err, jobrt.Result{})
		}
	}
	metrics, err := p.decoder.Decode(raw.RawPayload)
	if err != nil {
		return jc.Fail("decode", err, jobrt.Result{})
	}
	for _, m := range metrics {
		if m == nil || m.Owner() != job.UserID {
			return jc.Fail("decode", errForeignPayload, jobrt.Result{})
		}
	}

	opts := ingest.ProcessOptions{
		Planner:    planner,
		OnProgress: jc.Progress,
		Job:        &ingest.JobMeta{JobID: job.ID, RetryCount: job.RetryCount},
	}
	if !cfg.EnableParallelProcessing {
		opts.MaxParallel = 1
	}
	ctx := jc.Ctx
	if cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	p.log.Info("processing batch",
		"job_id", job.ID,
		"user_id", job.UserID,
		"metrics", len(metrics),
		"retry_count", job.RetryCount,
		"parallel", cfg.EnableParallelProcessing,
	)
	summary := p.svc.Process(ctx, job.UserID, metrics, opts)
	res := jobrt.Result{
		Summary:   summary,
		RawStatus: ingest.RawStatus(summary.Status),
		RawErrors: ingest.ErrorsJSON(summary),
		Processed: summary.Inserted + summary.Updated + summary.DuplicatesSkipped,
		Failed:    summary.Failed,
		Total:     summary.TotalAfterDedup,
	}
	if summary.Status == ingest.StatusSuccess {
		return jc.Succeed(res)
	}

	// Chunks skipped because the run ended are not failures of the data.
	// Upserts are idempotent, so the whole payload runs again.
	if err := jc.Ctx.Err(); err != nil {
		p.log.Info("worker stopping, releasing batch", "job_id", job.ID, "processed", res.Processed, "failed", res.Failed)
		_, err = jc.Release("shutdown", err)
		return err
	}
	if err := ctx.Err(); err != nil {
		_, err = jc.RetryOrFail("timeout", fmt.Errorf("batch exceeded %ds: %w", cfg.TimeoutSeconds, err), res)
		return err
	}

	if summary.Status == ingest.StatusPartialSuccess {
		return jc.Succeed(res)
	}
	_, err = jc.RetryOrFail("write", errors.New(summary.FirstError()), res)
	return err
}
