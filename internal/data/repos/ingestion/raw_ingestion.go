package ingestion

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Ladvien/self-sensored-sub003/internal/data/aggregates"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/ingestion"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/dbctx"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

type RawIngestionRepo interface {
	// Create stores raw unless the same user already sent an identical
	// payload, in which case the stored row is returned with created false.
	Create(dbc dbctx.Context, raw *ingestion.RawIngestion) (stored *ingestion.RawIngestion, created bool, err error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*ingestion.RawIngestion, error)
	AttachJob(dbc dbctx.Context, id, jobID uuid.UUID) error
	SetResult(dbc dbctx.Context, id uuid.UUID, status string, processingErrors datatypes.JSON) error
}

type rawIngestionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRawIngestionRepo(db *gorm.DB, baseLog *logger.Logger) RawIngestionRepo {
	return &rawIngestionRepo{
		db:  db,
		log: baseLog.With("repo", "RawIngestionRepo"),
	}
}

func (r *rawIngestionRepo) findByHash(ctx context.Context, db *gorm.DB, userID uuid.UUID, hash string) (*ingestion.RawIngestion, error) {
	var row ingestion.RawIngestion
	err := db.WithContext(ctx).
		Where("user_id = ? AND payload_hash = ?", userID, hash).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *rawIngestionRepo) Create(dbc dbctx.Context, raw *ingestion.RawIngestion) (*ingestion.RawIngestion, bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if raw.PayloadHash == "" {
		raw.PayloadHash = ingestion.HashPayload(raw.RawPayload)
	}
	existing, err := r.findByHash(dbc.Ctx, transaction, raw.UserID, raw.PayloadHash)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(raw).Error; err != nil {
		if !aggregates.IsUniqueViolation(err) {
			return nil, false, err
		}
		// Lost a race with an identical submission. A failed statement
		// poisons a Postgres transaction, so read through the root handle.
		existing, lookupErr := r.findByHash(dbc.Ctx, r.db, raw.UserID, raw.PayloadHash)
		if lookupErr != nil || existing == nil {
			return nil, false, err
		}
		r.log.Debug("duplicate payload collapsed", "raw_ingestion_id", existing.ID, "user_id", raw.UserID)
		return existing, false, nil
	}
	return raw, true, nil
}

func (r *rawIngestionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*ingestion.RawIngestion, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var row ingestion.RawIngestion
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *rawIngestionRepo) AttachJob(dbc dbctx.Context, id, jobID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&ingestion.RawIngestion{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processing_job_id": jobID,
			"processing_status": ingestion.StatusPending,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetResult records the outcome of an inline batch.
func (r *rawIngestionRepo) SetResult(dbc dbctx.Context, id uuid.UUID, status string, processingErrors datatypes.JSON) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	updates := map[string]interface{}{
		"processing_status": status,
		"processed_at":      time.Now().UTC(),
	}
	if len(processingErrors) > 0 {
		updates["processing_errors"] = processingErrors
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&ingestion.RawIngestion{}).
		Where("id = ?", id).
		Updates(updates).Error
}
