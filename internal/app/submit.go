package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/Ladvien/self-sensored-sub003/internal/domain/health"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/ingestion"
	"github.com/Ladvien/self-sensored-sub003/internal/modules/ingest"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/dbctx"
)

// SubmitPayload stores an envelope payload as a raw ingestion and hands the
// decoded batch to the ingest service. Identical bytes from the same user
// reuse the stored row, and with it any job already queued for it.
func (a *App) SubmitPayload(ctx context.Context, userID uuid.UUID, apiKeyID *uuid.UUID, payload []byte) (ingest.Outcome, error) {
	metrics, err := health.DecodeBatch(payload)
	if err != nil {
		return ingest.Outcome{}, fmt.Errorf("%w: %v", ingest.ErrInvalidBatch, err)
	}
	raw, created, err := a.Repos.Ingestions.Create(dbctx.Context{Ctx: ctx}, &ingestion.RawIngestion{
		UserID:     userID,
		APIKeyID:   apiKeyID,
		RawPayload: datatypes.JSON(payload),
	})
	if err != nil {
		return ingest.Outcome{}, fmt.Errorf("store raw ingestion: %w", err)
	}
	if !created {
		a.Log.Info("payload already received", "raw_ingestion_id", raw.ID, "status", raw.ProcessingStatus)
	}
	return a.Ingest.Submit(ctx, ingest.Batch{
		UserID:         userID,
		APIKeyID:       apiKeyID,
		RawIngestionID: raw.ID,
		Metrics:        metrics,
		ReceivedAt:     time.Now().UTC(),
		PayloadBytes:   int64(len(payload)),
	})
}
