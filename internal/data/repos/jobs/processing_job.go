package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Ladvien/self-sensored-sub003/internal/data/aggregates"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/ingestion"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/jobs"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/dbctx"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

// casAttempts bounds how often a claimer on a non-Postgres database retries
// after losing the compare-and-set to another worker.
const casAttempts = 5

// ClaimPolicy decides which rows are runnable.
type ClaimPolicy struct {
	// RetryDelay keeps a requeued job invisible for this long after its
	// last failure.
	RetryDelay time.Duration
	// StaleAfter reclaims processing jobs whose heartbeat is older than
	// this. Zero disables reclaim.
	StaleAfter time.Duration
	JobTypes   []string
}

type Progress struct {
	Processed int
	Failed    int
	// Total is the count Percentage was computed against. It replaces
	// total_metrics when set, since in-batch duplicates shrink it.
	Total      int
	Percentage float64
	ETA        *time.Time
}

// Completion is the terminal write for a job and its raw ingestion.
type Completion struct {
	Status       string
	RawStatus    string
	Summary      datatypes.JSON
	RawErrors    datatypes.JSON
	ErrorMessage string
	Processed    int
	Failed       int
	// Total replaces total_metrics when set.
	Total int
	// RetryCount is the retry_count the caller claimed the job with. A job
	// reclaimed since then is left alone.
	RetryCount int
}

type ProcessingJobRepo interface {
	Create(dbc dbctx.Context, job *jobs.ProcessingJob) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*jobs.ProcessingJob, error)
	GetByRawIngestion(dbc dbctx.Context, rawIngestionID uuid.UUID) (*jobs.ProcessingJob, error)
	ClaimNext(dbc dbctx.Context, policy ClaimPolicy) (*jobs.ProcessingJob, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
	UpdateProgress(dbc dbctx.Context, id uuid.UUID, p Progress) (bool, error)
	Complete(dbc dbctx.Context, id uuid.UUID, c Completion) (bool, error)
	Requeue(dbc dbctx.Context, id uuid.UUID, claimedRetries int, errMsg string) (bool, error)
	Release(dbc dbctx.Context, id uuid.UUID, claimedRetries int, errMsg string) (bool, error)
	FailStale(dbc dbctx.Context, staleBefore time.Time) (int64, error)
	DeleteTerminalBefore(dbc dbctx.Context, cutoff time.Time) (int64, error)
	CountByStatus(dbc dbctx.Context) (map[string]int64, error)
}

type processingJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProcessingJobRepo(db *gorm.DB, baseLog *logger.Logger) ProcessingJobRepo {
	return &processingJobRepo{
		db:  db,
		log: baseLog.With("repo", "ProcessingJobRepo"),
	}
}

func (r *processingJobRepo) Create(dbc dbctx.Context, job *jobs.ProcessingJob) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if job == nil {
		return nil
	}
	if job.Status == "" {
		job.Status = jobs.StatusPending
	}
	if job.JobType == "" {
		job.JobType = jobs.JobTypeIngestBatch
	}
	if job.MaxRetries <= 0 {
		job.MaxRetries = jobs.DefaultMaxRetries
	}
	if err := transaction.WithContext(dbc.Ctx).Create(job).Error; err != nil {
		if aggregates.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", jobs.ErrJobExists, err)
		}
		return err
	}
	return nil
}

func (r *processingJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*jobs.ProcessingJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var job jobs.ProcessingJob
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Take(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// GetByRawIngestion returns nil, nil when the ingestion has no job.
func (r *processingJobRepo) GetByRawIngestion(dbc dbctx.Context, rawIngestionID uuid.UUID) (*jobs.ProcessingJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if rawIngestionID == uuid.Nil {
		return nil, nil
	}
	var job jobs.ProcessingJob
	err := transaction.WithContext(dbc.Ctx).
		Where("raw_ingestion_id = ?", rawIngestionID).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

// ClaimNext moves the highest priority, oldest runnable job to processing
// and returns it, or nil when nothing is runnable. No two callers ever
// receive the same job: Postgres skips rows locked by other claimers, other
// databases use a conditional update on the observed state.
func (r *processingJobRepo) ClaimNext(dbc dbctx.Context, policy ClaimPolicy) (*jobs.ProcessingJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	if transaction.Dialector.Name() == "postgres" {
		return r.claimLocked(dbc, transaction, policy, now)
	}
	for attempt := 0; attempt < casAttempts; attempt++ {
		job, lost, err := r.claimCAS(dbc, transaction, policy, now)
		if err != nil || !lost {
			return job, err
		}
		r.log.Debug("claim lost race, retrying", "attempt", attempt+1)
	}
	return nil, nil
}

func runnable(q *gorm.DB, policy ClaimPolicy, now time.Time) *gorm.DB {
	retryCutoff := now.Add(-policy.RetryDelay)
	cond := q.Where("status = ? AND (last_retry_at IS NULL OR last_retry_at <= ?)", jobs.StatusPending, retryCutoff)
	if policy.StaleAfter > 0 {
		cond = cond.Or("status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ? AND retry_count < max_retries",
			jobs.StatusProcessing, now.Add(-policy.StaleAfter))
	}
	return cond
}

func scoped(tx *gorm.DB, policy ClaimPolicy, now time.Time) *gorm.DB {
	q := tx.Model(&jobs.ProcessingJob{}).Where(runnable(tx.Session(&gorm.Session{NewDB: true}), policy, now))
	if len(policy.JobTypes) > 0 {
		q = q.Where("job_type IN ?", policy.JobTypes)
	}
	return q.Order("priority DESC").Order("created_at ASC")
}

func claimUpdates(job *jobs.ProcessingJob, now time.Time) map[string]interface{} {
	updates := map[string]interface{}{
		"status":       jobs.StatusProcessing,
		"started_at":   now,
		"heartbeat_at": now,
	}
	// A stale reclaim means the previous attempt died mid-run.
	if job.Status == jobs.StatusProcessing {
		updates["retry_count"] = job.RetryCount + 1
		updates["last_retry_at"] = now
		job.RetryCount++
		job.LastRetryAt = &now
	}
	job.Status = jobs.StatusProcessing
	job.StartedAt = &now
	job.HeartbeatAt = &now
	return updates
}

func markRawProcessing(tx *gorm.DB, rawID uuid.UUID) error {
	return tx.Model(&ingestion.RawIngestion{}).
		Where("id = ? AND processing_status NOT IN ?", rawID, []string{
			ingestion.StatusCompleted, ingestion.StatusPartialSuccess, ingestion.StatusFailed,
		}).
		Update("processing_status", ingestion.StatusProcessing).Error
}

func (r *processingJobRepo) claimLocked(dbc dbctx.Context, transaction *gorm.DB, policy ClaimPolicy, now time.Time) (*jobs.ProcessingJob, error) {
	var claimed *jobs.ProcessingJob
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job jobs.ProcessingJob
		qErr := scoped(txx, policy, now).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Take(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		updates := claimUpdates(&job, now)
		if err := txx.Model(&jobs.ProcessingJob{}).Where("id = ?", job.ID).Updates(updates).Error; err != nil {
			return err
		}
		if err := markRawProcessing(txx, job.RawIngestionID); err != nil {
			return err
		}
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

var errLostRace = errors.New("claim lost race")

// claimCAS reads a candidate, then flips it only if status and retry_count
// still hold the values it read.
func (r *processingJobRepo) claimCAS(dbc dbctx.Context, transaction *gorm.DB, policy ClaimPolicy, now time.Time) (*jobs.ProcessingJob, bool, error) {
	var job jobs.ProcessingJob
	err := scoped(transaction.WithContext(dbc.Ctx), policy, now).Limit(1).Find(&job).Error
	if err != nil {
		return nil, false, err
	}
	if job.ID == uuid.Nil {
		return nil, false, nil
	}
	seenStatus, seenRetries := job.Status, job.RetryCount
	updates := claimUpdates(&job, now)

	err = transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		res := txx.Model(&jobs.ProcessingJob{}).
			Where("id = ? AND status = ? AND retry_count = ?", job.ID, seenStatus, seenRetries).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errLostRace
		}
		return markRawProcessing(txx, job.RawIngestionID)
	})
	if errors.Is(err, errLostRace) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &job, false, nil
}

func (r *processingJobRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&jobs.ProcessingJob{}).
		Where("id = ? AND status = ?", id, jobs.StatusProcessing).
		Update("heartbeat_at", time.Now().UTC()).Error
}

// UpdateProgress never moves the percentage backwards. It reports false when
// the guard rejected the write or the job is no longer processing.
func (r *processingJobRepo) UpdateProgress(dbc dbctx.Context, id uuid.UUID, p Progress) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	updates := map[string]interface{}{
		"processed_metrics":       p.Processed,
		"failed_metrics":          p.Failed,
		"progress_percentage":     p.Percentage,
		"estimated_completion_at": p.ETA,
		"heartbeat_at":            time.Now().UTC(),
	}
	if p.Total > 0 {
		updates["total_metrics"] = p.Total
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&jobs.ProcessingJob{}).
		Where("id = ? AND status = ? AND progress_percentage <= ?", id, jobs.StatusProcessing, p.Percentage).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Complete records the terminal state of a processing job and of its raw
// ingestion in one transaction. A job that already left processing is left
// alone and false is returned.
func (r *processingJobRepo) Complete(dbc dbctx.Context, id uuid.UUID, c Completion) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if c.Status != jobs.StatusCompleted && c.Status != jobs.StatusFailed {
		return false, fmt.Errorf("complete job %s: %q is not a terminal status", id, c.Status)
	}
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":                  c.Status,
		"completed_at":            now,
		"processed_metrics":       c.Processed,
		"failed_metrics":          c.Failed,
		"estimated_completion_at": nil,
	}
	if c.Total > 0 {
		updates["total_metrics"] = c.Total
	}
	if len(c.Summary) > 0 {
		updates["result_summary"] = c.Summary
	}
	if c.ErrorMessage != "" {
		updates["error_message"] = c.ErrorMessage
	}
	if c.Status == jobs.StatusCompleted {
		updates["progress_percentage"] = 100.0
	}

	var done bool
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job jobs.ProcessingJob
		if err := txx.Where("id = ?", id).Take(&job).Error; err != nil {
			return err
		}
		res := txx.Model(&jobs.ProcessingJob{}).
			Where("id = ? AND status = ? AND retry_count = ?", id, jobs.StatusProcessing, c.RetryCount).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		done = true
		if c.RawStatus == "" {
			return nil
		}
		rawUpdates := map[string]interface{}{
			"processing_status": c.RawStatus,
			"processed_at":      now,
		}
		if len(c.RawErrors) > 0 {
			rawUpdates["processing_errors"] = c.RawErrors
		}
		return txx.Model(&ingestion.RawIngestion{}).
			Where("id = ?", job.RawIngestionID).
			Updates(rawUpdates).Error
	})
	if err != nil {
		return false, err
	}
	return done, nil
}

// Requeue returns a processing job to pending and counts the retry. The
// caller decides whether retries remain. Only the holder of the claim made at
// claimedRetries can requeue.
func (r *processingJobRepo) Requeue(dbc dbctx.Context, id uuid.UUID, claimedRetries int, errMsg string) (bool, error) {
	return r.toPending(dbc, id, claimedRetries, errMsg, true)
}

// Release hands a processing job back to pending without counting a retry
// or starting the retry delay. Workers use it when they stop mid-job.
func (r *processingJobRepo) Release(dbc dbctx.Context, id uuid.UUID, claimedRetries int, errMsg string) (bool, error) {
	return r.toPending(dbc, id, claimedRetries, errMsg, false)
}

func (r *processingJobRepo) toPending(dbc dbctx.Context, id uuid.UUID, claimedRetries int, errMsg string, countRetry bool) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	updates := map[string]interface{}{
		"status":                  jobs.StatusPending,
		"heartbeat_at":            nil,
		"estimated_completion_at": nil,
	}
	if countRetry {
		updates["retry_count"] = gorm.Expr("retry_count + 1")
		updates["last_retry_at"] = time.Now().UTC()
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}
	var done bool
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job jobs.ProcessingJob
		if err := txx.Where("id = ?", id).Take(&job).Error; err != nil {
			return err
		}
		res := txx.Model(&jobs.ProcessingJob{}).
			Where("id = ? AND status = ? AND retry_count = ?", id, jobs.StatusProcessing, claimedRetries).
			Updates(updates)
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		done = true
		return txx.Model(&ingestion.RawIngestion{}).
			Where("id = ? AND processing_status = ?", job.RawIngestionID, ingestion.StatusProcessing).
			Update("processing_status", ingestion.StatusPending).Error
	})
	if err != nil {
		return false, err
	}
	if done && !countRetry {
		r.log.Info("job released", "job_id", id, "retry_count", claimedRetries)
	}
	return done, nil
}

// FailStale fails processing jobs whose heartbeat stopped before
// staleBefore and that have no retries left, so reclaim never picks them.
func (r *processingJobRepo) FailStale(dbc dbctx.Context, staleBefore time.Time) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var affected int64
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var stale []jobs.ProcessingJob
		if err := txx.Select("id", "raw_ingestion_id").
			Where("status = ? AND heartbeat_at < ? AND retry_count >= max_retries", jobs.StatusProcessing, staleBefore).
			Find(&stale).Error; err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(stale))
		rawIDs := make([]uuid.UUID, 0, len(stale))
		for _, j := range stale {
			ids = append(ids, j.ID)
			rawIDs = append(rawIDs, j.RawIngestionID)
		}
		now := time.Now().UTC()
		res := txx.Model(&jobs.ProcessingJob{}).
			Where("id IN ? AND status = ?", ids, jobs.StatusProcessing).
			Updates(map[string]interface{}{
				"status":        jobs.StatusFailed,
				"completed_at":  now,
				"error_message": "worker stopped heartbeating and no retries remain",
			})
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return txx.Model(&ingestion.RawIngestion{}).
			Where("id IN ?", rawIDs).
			Updates(map[string]interface{}{
				"processing_status": ingestion.StatusFailed,
				"processed_at":      now,
			}).Error
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// DeleteTerminalBefore removes completed and failed jobs that finished
// before cutoff. Raw ingestions are kept.
func (r *processingJobRepo) DeleteTerminalBefore(dbc dbctx.Context, cutoff time.Time) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Where("status IN ? AND completed_at < ?", []string{jobs.StatusCompleted, jobs.StatusFailed}, cutoff).
		Delete(&jobs.ProcessingJob{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *processingJobRepo) CountByStatus(dbc dbctx.Context) (map[string]int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []struct {
		Status string
		N      int64
	}
	err := transaction.WithContext(dbc.Ctx).
		Model(&jobs.ProcessingJob{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}
