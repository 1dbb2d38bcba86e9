package ingest

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Ladvien/self-sensored-sub003/internal/domain/health"
)

type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusFailed         Status = "failed"
)

const DefaultMaxErrorSamples = 50

type TypeBreakdown struct {
	Records      int `json:"records"`
	Duplicates   int `json:"duplicates_removed"`
	Inserted     int `json:"inserted"`
	Updated      int `json:"updated"`
	Skipped      int `json:"duplicates_skipped"`
	Failed       int `json:"failed"`
	Chunks       int `json:"chunks"`
	FailedChunks int `json:"failed_chunks"`
}

type ChunkError struct {
	Type       health.MetricType `json:"type"`
	ChunkIndex int               `json:"chunk_index"`
	Records    int               `json:"records"`
	Attempts   int               `json:"attempts"`
	Retryable  bool              `json:"retryable"`
	Message    string            `json:"message"`
}

type JobMeta struct {
	JobID      uuid.UUID `json:"job_id"`
	RetryCount int       `json:"retry_count"`
}

// Summary is the outcome of one batch, returned inline or stored as a job's
// result_summary.
type Summary struct {
	Status            Status                   `json:"status"`
	TotalReceived     int                      `json:"total_received"`
	TotalAfterDedup   int                      `json:"total_after_dedup"`
	DuplicatesRemoved int                      `json:"duplicates_removed"`
	Inserted          int                      `json:"inserted"`
	Updated           int                      `json:"updated"`
	DuplicatesSkipped int                      `json:"duplicates_skipped"`
	Failed            int                      `json:"failed"`
	PerType           map[string]TypeBreakdown `json:"per_type"`
	Errors            []ChunkError             `json:"errors,omitempty"`
	ErrorsTruncated   bool                     `json:"errors_truncated,omitempty"`
	RetryAttempts     int                      `json:"retry_attempts"`
	DedupMillis       int64                    `json:"dedup_ms"`
	ProcessingMillis  int64                    `json:"processing_ms"`
	Job               *JobMeta                 `json:"job,omitempty"`
}

type SummaryInput struct {
	Dedup           DedupStats
	Results         []ChunkResult
	MaxErrorSamples int
	Elapsed         time.Duration
	Job             *JobMeta
}

// Summarize folds chunk results into a Summary. It does no I/O.
func Summarize(in SummaryInput) Summary {
	s := Summary{
		TotalReceived:     in.Dedup.Received,
		TotalAfterDedup:   in.Dedup.Kept,
		DuplicatesRemoved: in.Dedup.Duplicates,
		PerType:           map[string]TypeBreakdown{},
		DedupMillis:       in.Dedup.Elapsed.Milliseconds(),
		ProcessingMillis:  in.Elapsed.Milliseconds(),
		Job:               in.Job,
	}
	for t, n := range in.Dedup.PerType {
		b := s.PerType[string(t)]
		b.Duplicates = n
		s.PerType[string(t)] = b
	}

	var ok, failed int
	var errs []ChunkError
	for _, r := range in.Results {
		b := s.PerType[string(r.Type)]
		b.Records += r.Records
		b.Chunks++
		if r.Attempts > 1 {
			s.RetryAttempts += r.Attempts - 1
		}
		if r.Err != nil {
			failed++
			b.Failed += r.Records
			b.FailedChunks++
			s.Failed += r.Records
			errs = append(errs, ChunkError{
				Type:       r.Type,
				ChunkIndex: r.Index,
				Records:    r.Records,
				Attempts:   r.Attempts,
				Retryable:  r.Retryable,
				Message:    r.Err.Error(),
			})
		} else {
			ok++
			b.Inserted += r.Inserted
			b.Updated += r.Updated
			b.Skipped += r.Skipped
			s.Inserted += r.Inserted
			s.Updated += r.Updated
			s.DuplicatesSkipped += r.Skipped
		}
		s.PerType[string(r.Type)] = b
	}

	switch {
	case failed > 0 && ok == 0:
		s.Status = StatusFailed
	case failed > 0:
		s.Status = StatusPartialSuccess
	default:
		s.Status = StatusSuccess
	}

	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Type != errs[j].Type {
			return errs[i].Type < errs[j].Type
		}
		return errs[i].ChunkIndex < errs[j].ChunkIndex
	})
	limit := in.MaxErrorSamples
	if limit <= 0 {
		limit = DefaultMaxErrorSamples
	}
	if len(errs) > limit {
		errs = errs[:limit]
		s.ErrorsTruncated = true
	}
	s.Errors = errs
	return s
}

// FirstError is a one-line description of the first sampled failure.
func (s Summary) FirstError() string {
	if len(s.Errors) == 0 {
		return ""
	}
	e := s.Errors[0]
	return fmt.Sprintf("%s chunk %d: %s", e.Type, e.ChunkIndex, e.Message)
}
