package ingest

import (
	"time"

	"github.com/Ladvien/self-sensored-sub003/internal/domain/health"
)

// Recorder receives pipeline measurements. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveDedup(stats DedupStats)
	ObserveChunk(res ChunkResult)
	ObserveRetry(t health.MetricType, err error)
	ObserveBatch(s Summary, async bool, elapsed time.Duration)
}

type NopRecorder struct{}

func (NopRecorder) ObserveDedup(DedupStats)                   {}
func (NopRecorder) ObserveChunk(ChunkResult)                  {}
func (NopRecorder) ObserveRetry(health.MetricType, error)     {}
func (NopRecorder) ObserveBatch(Summary, bool, time.Duration) {}
