package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const JobTypeIngestBatch = "ingest_batch"

// ErrJobExists is returned when a raw ingestion already has a job.
var ErrJobExists = errors.New("processing job already exists for raw ingestion")

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const (
	PriorityLow    = 1
	PriorityNormal = 5
	PriorityHigh   = 10
)

const DefaultMaxRetries = 3

// ProcessingJob tracks one oversized batch through the background queue.
type ProcessingJob struct {
	ID                    uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	APIKeyID              *uuid.UUID     `gorm:"type:uuid;column:api_key_id" json:"api_key_id,omitempty"`
	RawIngestionID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"raw_ingestion_id"`
	JobType               string         `gorm:"column:job_type;not null;index" json:"job_type"`
	Status                string         `gorm:"column:status;not null;index:idx_processing_jobs_runnable,priority:1" json:"status"`
	Priority              int            `gorm:"column:priority;not null;default:5;index:idx_processing_jobs_runnable,priority:2" json:"priority"`
	TotalMetrics          int            `gorm:"column:total_metrics;not null;default:0" json:"total_metrics"`
	ProcessedMetrics      int            `gorm:"column:processed_metrics;not null;default:0" json:"processed_metrics"`
	FailedMetrics         int            `gorm:"column:failed_metrics;not null;default:0" json:"failed_metrics"`
	ProgressPercentage    float64        `gorm:"column:progress_percentage;not null;default:0" json:"progress_percentage"`
	CreatedAt             time.Time      `gorm:"column:created_at;not null;autoCreateTime;index:idx_processing_jobs_runnable,priority:3" json:"created_at"`
	StartedAt             *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	HeartbeatAt           *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	CompletedAt           *time.Time     `gorm:"column:completed_at;index" json:"completed_at,omitempty"`
	EstimatedCompletionAt *time.Time     `gorm:"column:estimated_completion_at" json:"estimated_completion_at,omitempty"`
	ErrorMessage          *string        `gorm:"column:error_message" json:"error_message,omitempty"`
	RetryCount            int            `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	MaxRetries            int            `gorm:"column:max_retries;not null;default:3" json:"max_retries"`
	LastRetryAt           *time.Time     `gorm:"column:last_retry_at" json:"last_retry_at,omitempty"`
	Config                datatypes.JSON `gorm:"column:config;type:jsonb" json:"config,omitempty"`
	ResultSummary         datatypes.JSON `gorm:"column:result_summary;type:jsonb" json:"result_summary,omitempty"`
}

func (ProcessingJob) TableName() string { return "processing_jobs" }

// BeforeCreate assigns the id client side so the model also works on
// databases without uuid_generate_v4().
func (j *ProcessingJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

func (j *ProcessingJob) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// IngestBatchConfig is stored on the job and tunes how its batch is written.
type IngestBatchConfig struct {
	EnableParallelProcessing bool           `json:"enable_parallel_processing"`
	ChunkSizeOverride        map[string]int `json:"chunk_size_override,omitempty"`
	TimeoutSeconds           int            `json:"timeout_seconds,omitempty"`
}

func DefaultIngestBatchConfig() IngestBatchConfig {
	return IngestBatchConfig{EnableParallelProcessing: true, TimeoutSeconds: 300}
}

// DecodeConfig returns the stored config, or the default when none was set.
func (j *ProcessingJob) DecodeConfig() (IngestBatchConfig, error) {
	cfg := DefaultIngestBatchConfig()
	if len(j.Config) == 0 || string(j.Config) == "null" {
		return cfg, nil
	}
	if err := json.Unmarshal(j.Config, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
