package ingestion

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusReceived       = "received"
	StatusPending        = "pending"
	StatusProcessing     = "processing"
	StatusCompleted      = "completed"
	StatusPartialSuccess = "partial_success"
	StatusFailed         = "failed"
)

// RawIngestion is the payload exactly as received, kept for replay and for
// the background job to rebuild its batch from.
type RawIngestion struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_raw_ingestions_user_hash,priority:1" json:"user_id"`
	APIKeyID         *uuid.UUID     `gorm:"type:uuid;column:api_key_id" json:"api_key_id,omitempty"`
	RawPayload       datatypes.JSON `gorm:"column:raw_payload;type:jsonb;not null" json:"raw_payload"`
	PayloadHash      string         `gorm:"column:payload_hash;not null;uniqueIndex:idx_raw_ingestions_user_hash,priority:2" json:"payload_hash"`
	PayloadSize      int            `gorm:"column:payload_size;not null" json:"payload_size"`
	ProcessingStatus string         `gorm:"column:processing_status;not null;index" json:"processing_status"`
	ProcessingJobID  *uuid.UUID     `gorm:"type:uuid;column:processing_job_id" json:"processing_job_id,omitempty"`
	ProcessingErrors datatypes.JSON `gorm:"column:processing_errors;type:jsonb" json:"processing_errors,omitempty"`
	ProcessedAt      *time.Time     `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CreatedAt        time.Time      `gorm:"column:created_at;not null;autoCreateTime;index" json:"created_at"`
}

func (RawIngestion) TableName() string { return "raw_ingestions" }

func (r *RawIngestion) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.PayloadHash == "" {
		r.PayloadHash = HashPayload(r.RawPayload)
	}
	if r.PayloadSize == 0 {
		r.PayloadSize = len(r.RawPayload)
	}
	if r.ProcessingStatus == "" {
		r.ProcessingStatus = StatusReceived
	}
	return nil
}

// HashPayload is the blake2b-256 hex digest used for idempotent receipt.
func HashPayload(raw []byte) string {
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func IsTerminalStatus(s string) bool {
	switch s {
	case StatusCompleted, StatusPartialSuccess, StatusFailed:
		return true
	}
	return false
}
