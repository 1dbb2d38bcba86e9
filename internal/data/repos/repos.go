package repos

import (
	"gorm.io/gorm"

	"github.com/Ladvien/self-sensored-sub003/internal/data/repos/ingestion"
	"github.com/Ladvien/self-sensored-sub003/internal/data/repos/jobs"
	"github.com/Ladvien/self-sensored-sub003/internal/data/repos/metrics"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

type ProcessingJobRepo = jobs.ProcessingJobRepo
type ClaimPolicy = jobs.ClaimPolicy
type JobProgress = jobs.Progress
type JobCompletion = jobs.Completion

type RawIngestionRepo = ingestion.RawIngestionRepo

type MetricUpsertRepo = metrics.UpsertRepo

func NewProcessingJobRepo(db *gorm.DB, baseLog *logger.Logger) ProcessingJobRepo {
	return jobs.NewProcessingJobRepo(db, baseLog)
}

func NewRawIngestionRepo(db *gorm.DB, baseLog *logger.Logger) RawIngestionRepo {
	return ingestion.NewRawIngestionRepo(db, baseLog)
}

func NewMetricUpsertRepo(db *gorm.DB, baseLog *logger.Logger) MetricUpsertRepo {
	return metrics.NewUpsertRepo(db, baseLog)
}
