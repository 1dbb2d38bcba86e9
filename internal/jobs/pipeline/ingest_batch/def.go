package ingest_batch

import (
	"github.com/Ladvien/self-sensored-sub003/internal/data/repos"
	"github.com/Ladvien/self-sensored-sub003/internal/domain/jobs"
	"github.com/Ladvien/self-sensored-sub003/internal/modules/ingest"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

// Pipeline rebuilds an oversized batch from its raw ingestion and runs it
// through the same dedup, plan, write and summarize path as inline requests.
type Pipeline struct {
	log     *logger.Logger
	raws    repos.RawIngestionRepo
	svc     *ingest.Service
	planner *ingest.Planner
	decoder ingest.PayloadDecoder
}

func New(
	baseLog *logger.Logger,
	raws repos.RawIngestionRepo,
	svc *ingest.Service,
	planner *ingest.Planner,
	decoder ingest.PayloadDecoder,
) *Pipeline {
	if decoder == nil {
		decoder = ingest.EnvelopeDecoder{}
	}
	return &Pipeline{
		log:     baseLog.With("job", jobs.JobTypeIngestBatch),
		raws:    raws,
		svc:     svc,
		planner: planner,
		decoder: decoder,
	}
}

func (p *Pipeline) Type() string { return jobs.JobTypeIngestBatch }
