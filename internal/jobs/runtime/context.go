package runtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/Ladvien/self-sensored-sub003/internal/data/repos"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/ingestion"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/jobs"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/dbctx"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

// Event is a job lifecycle notification.
type Event struct {
	JobID    uuid.UUID `json:"job_id"`
	UserID   uuid.UUID `json:"user_id"`
	Status   string    `json:"status"`
	Progress float64   `json:"progress_percentage"`
	Message  string    `json:"message,omitempty"`
}

// EventPublisher fans job events out to interested listeners. Failures are
// logged and never affect the job.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, ev Event) error
}

// Result is what a handler hands back when it finishes a job.
type Result struct {
	Summary   any
	RawStatus string
	RawErrors datatypes.JSON
	Processed int
	Failed    int
	// Total is the number of metrics the run accounted for. Zero keeps the
	// stored total.
	Total int
}

/*
Context is the handle a handler gets for one claimed job. It is the only
way handlers report progress or end the job:
  - Progress persists monotonic progress and an ETA.
  - Succeed and Fail write the terminal state, and the raw ingestion's,
    in one transaction.
  - RetryOrFail requeues while the job has retries left.
  - Release hands the job back untouched when the worker stops mid-run.

After the first terminal call the others are no-ops.
*/
type Context struct {
	Ctx    context.Context
	Job    *jobs.ProcessingJob
	Repo   repos.ProcessingJobRepo
	Events EventPublisher
	Log    *logger.Logger

	now     func() time.Time
	started time.Time

	mu       sync.Mutex
	finished bool
}

func NewContext(ctx context.Context, job *jobs.ProcessingJob, repo repos.ProcessingJobRepo, events EventPublisher, baseLog *logger.Logger) *Context {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	c := &Context{
		Ctx:    ctx,
		Job:    job,
		Repo:   repo,
		Events: events,
		Log:    baseLog.With("job_id", job.ID, "job_type", job.JobType),
		now:    func() time.Time { return time.Now().UTC() },
	}
	c.started = c.now()
	return c
}

func (c *Context) dbc() dbctx.Context {
	ctx := c.Ctx
	if ctx == nil || ctx.Err() != nil {
		// Terminal writes must land even when the run's context ended.
		ctx = context.Background()
	}
	return dbctx.Context{Ctx: ctx}
}

// Percent is min(100, done/total*100). An empty job is complete.
func Percent(done, total int) float64 {
	if total <= 0 {
		return 100
	}
	pct := float64(done) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// EstimateCompletion extrapolates linearly from the elapsed time. It returns
// nil until some progress has been made and once the job is done.
func EstimateCompletion(now time.Time, elapsed time.Duration, pct float64) *time.Time {
	if pct <= 0 || pct >= 100 {
		return nil
	}
	remaining := time.Duration(float64(elapsed) * (100 - pct) / pct)
	eta := now.Add(remaining)
	return &eta
}

// Progress records processed and failed counts out of total. Writes that
// would move the percentage backwards are dropped.
func (c *Context) Progress(processed, failed, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished || c.Job == nil {
		return
	}
	pct := Percent(processed+failed, total)
	if pct < c.Job.ProgressPercentage {
		return
	}
	now := c.now()
	eta := EstimateCompletion(now, now.Sub(c.started), pct)

	if c.Repo != nil {
		ok, err := c.Repo.UpdateProgress(c.dbc(), c.Job.ID, repos.JobProgress{
			Processed:  processed,
			Failed:     failed,
			Total:      total,
			Percentage: pct,
			ETA:        eta,
		})
		if err != nil {
			c.Log.Warn("progress update failed", "error", err)
			return
		}
		if !ok {
			return
		}
	}
	c.Job.ProcessedMetrics = processed
	c.Job.FailedMetrics = failed
	if total > 0 {
		c.Job.TotalMetrics = total
	}
	c.Job.ProgressPercentage = pct
	c.Job.EstimatedCompletionAt = eta
	c.Job.HeartbeatAt = &now
	c.publish(jobs.StatusProcessing, "")
}

func (c *Context) Heartbeat() {
	if c.Repo == nil || c.Job == nil {
		return
	}
	if err := c.Repo.Heartbeat(c.dbc(), c.Job.ID); err != nil {
		c.Log.Warn("heartbeat failed", "error", err)
	}
}

// Succeed completes the job. The raw ingestion takes r.RawStatus, which may
// be partial_success.
func (c *Context) Succeed(r Result) error {
	if r.RawStatus == "" {
		r.RawStatus = ingestion.StatusCompleted
	}
	return c.finish(jobs.StatusCompleted, "", r)
}

// Fail ends the job as failed regardless of remaining retries.
func (c *Context) Fail(stage string, cause error, r Result) error {
	r.RawStatus = ingestion.StatusFailed
	return c.finish(jobs.StatusFailed, failureMessage(stage, cause), r)
}

// RetryOrFail requeues the job if retry_count is below max_retries and fails
// it otherwise. It reports whether the job was requeued.
func (c *Context) RetryOrFail(stage string, cause error, r Result) (bool, error) {
	if c.Job == nil {
		return false, nil
	}
	if c.Job.RetryCount >= c.Job.MaxRetries {
		return false, c.Fail(stage, cause, r)
	}
	return c.requeue(stage, cause, true)
}

// Release returns the job to pending without spending a retry. The raw
// ingestion goes back to pending as well.
func (c *Context) Release(stage string, cause error) (bool, error) {
	if c.Job == nil {
		return false, nil
	}
	return c.requeue(stage, cause, false)
}

func (c *Context) requeue(stage string, cause error, countRetry bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return false, nil
	}
	msg := failureMessage(stage, cause)
	if c.Repo != nil {
		write := c.Repo.Requeue
		if !countRetry {
			write = c.Repo.Release
		}
		ok, err := write(c.dbc(), c.Job.ID, c.Job.RetryCount, msg)
		if err != nil {
			return false, err
		}
		if !ok {
			c.finished = true
			return false, nil
		}
	}
	c.finished = true
	c.Job.Status = jobs.StatusPending
	c.Job.ErrorMessage = &msg
	c.Job.HeartbeatAt = nil
	c.Job.EstimatedCompletionAt = nil
	if countRetry {
		now := c.now()
		c.Job.RetryCount++
		c.Job.LastRetryAt = &now
		c.Log.Warn("job requeued", "stage", stage, "retry_count", c.Job.RetryCount, "max_retries", c.Job.MaxRetries, "error", cause)
	} else {
		c.Log.Info("job released", "stage", stage, "retry_count", c.Job.RetryCount, "error", cause)
	}
	c.publish(jobs.StatusPending, msg)
	return true, nil
}

// Finished reports whether a terminal call or requeue already happened.
func (c *Context) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

func (c *Context) finish(status, errMsg string, r Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished || c.Job == nil {
		return nil
	}
	var summary datatypes.JSON
	if r.Summary != nil {
		raw, err := json.Marshal(r.Summary)
		if err != nil {
			return err
		}
		summary = datatypes.JSON(raw)
	}
	if c.Repo != nil {
		_, err := c.Repo.Complete(c.dbc(), c.Job.ID, repos.JobCompletion{
			Status:       status,
			RawStatus:    r.RawStatus,
			Summary:      summary,
			RawErrors:    r.RawErrors,
			ErrorMessage: errMsg,
			Processed:    r.Processed,
			Failed:       r.Failed,
			Total:        r.Total,
			RetryCount:   c.Job.RetryCount,
		})
		if err != nil {
			return err
		}
	}
	c.finished = true
	now := c.now()
	c.Job.Status = status
	c.Job.CompletedAt = &now
	c.Job.ResultSummary = summary
	c.Job.ProcessedMetrics = r.Processed
	c.Job.FailedMetrics = r.Failed
	if r.Total > 0 {
		c.Job.TotalMetrics = r.Total
	}
	c.Job.EstimatedCompletionAt = nil
	if status == jobs.StatusCompleted {
		c.Job.ProgressPercentage = 100
	}
	if errMsg != "" {
		c.Job.ErrorMessage = &errMsg
	}
	c.Log.Info("job finished", "status", status, "processed", r.Processed, "failed", r.Failed, "elapsed", now.Sub(c.started))
	c.publish(status, errMsg)
	return nil
}

func (c *Context) publish(status, msg string) {
	if c.Events == nil {
		return
	}
	ev := Event{
		JobID:    c.Job.ID,
		UserID:   c.Job.UserID,
		Status:   status,
		Progress: c.Job.ProgressPercentage,
		Message:  msg,
	}
	if err := c.Events.PublishJobEvent(c.dbc().Ctx, ev); err != nil {
		c.Log.Debug("job event publish failed", "error", err)
	}
}

func failureMessage(stage string, err error) string {
	if err == nil {
		return stage
	}
	if stage == "" {
		return err.Error()
	}
	return stage + ": " + err.Error()
}
