package ingest

import (
	"time"

	"github.com/Ladvien/self-sensored-sub003/internal/domain/health"
)

// DedupStats describes one Deduplicate call.
type DedupStats struct {
	Received   int                       `json:"received"`
	Kept       int                       `json:"kept"`
	Duplicates int                       `json:"duplicates"`
	PerType    map[health.MetricType]int `json:"per_type,omitempty"`
	Elapsed    time.Duration             `json:"elapsed_ns"`
}

// Deduplicate keeps the first occurrence of every dedup key and drops the
// rest. Survivors keep their input order. Only the batch itself is
// consulted; collisions with stored rows are resolved by the upsert.
func Deduplicate(metrics []health.Metric) ([]health.Metric, DedupStats) {
	start := time.Now()
	stats := DedupStats{Received: len(metrics), PerType: map[health.MetricType]int{}}

	seen := make(map[health.DedupKey]struct{}, len(metrics))
	out := make([]health.Metric, 0, len(metrics))
	for _, m := range metrics {
		if m == nil {
			continue
		}
		k := m.DedupKey()
		if _, dup := seen[k]; dup {
			stats.PerType[m.Type()]++
			stats.Duplicates++
			continue
		}
		seen[k] = struct{}{}
		out = append(out, m)
	}

	stats.Kept = len(out)
	stats.Elapsed = time.Since(start)
	return out, stats
}
