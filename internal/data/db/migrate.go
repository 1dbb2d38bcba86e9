package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/Ladvien/self-sensored-sub003/internal/domain/health"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/ingestion"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/jobs"
)

// Migrate creates every table and index the engine depends on. It is safe
// to run repeatedly.
func Migrate(db *gorm.DB) error {
	if err := AutoMigrateAll(db); err != nil {
		return err
	}
	if err := EnsureMetricTables(db); err != nil {
		return err
	}
	return EnsureJobIndexes(db)
}

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&ingestion.RawIngestion{},
		&jobs.ProcessingJob{},
	)
}

// EnsureMetricTables renders one table per metric type from the catalog.
// The UNIQUE constraint on the dedup key is what the upsert conflicts on.
func EnsureMetricTables(db *gorm.DB) error {
	for _, spec := range health.Specs() {
		if err := db.Exec(spec.CreateTableSQL()).Error; err != nil {
			return fmt.Errorf("create %s: %w", spec.Table, err)
		}
	}
	return nil
}

func EnsureJobIndexes(db *gorm.DB) error {
	// Claim scans only pending rows, highest priority then oldest.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_processing_jobs_claim
		ON processing_jobs (priority DESC, created_at ASC)
		WHERE status = 'pending';
	`).Error; err != nil {
		return fmt.Errorf("create idx_processing_jobs_claim: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_processing_jobs_terminal
		ON processing_jobs (completed_at)
		WHERE status IN ('completed', 'failed');
	`).Error; err != nil {
		return fmt.Errorf("create idx_processing_jobs_terminal: %w", err)
	}
	return nil
}
