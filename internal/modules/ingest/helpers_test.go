package ingest

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Ladvien/self-sensored-sub003/internal/domain/health"
)

var t0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func heartRates(user uuid.UUID, n int) []health.Metric {
	out := make([]health.Metric, n)
	for i := range out {
		bpm := 60 + i%40
		out[i] = health.HeartRateMetric{UserID: user, RecordedAt: t0.Add(time.Duration(i) * time.Second), HeartRate: &bpm}
	}
	return out
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond}
}

// memStore upserts into a map keyed by dedup key, like the UNIQUE
// constraint would.
type memStore struct {
	mu    sync.Mutex
	rows  map[health.DedupKey][]any
	calls map[string]int
	fail  func(c Chunk, attempt int) error
	delay time.Duration
	index map[health.DedupKey]int

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{rows: map[health.DedupKey][]any{}, calls: map[string]int{}}
}

func (s *memStore) UpsertMetrics(ctx context.Context, t health.MetricType, metrics []health.Metric) (int, int, error) {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		cur := s.maxInflight.Load()
		if n <= cur || s.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.chunkOf(t, metrics)
	key := fmt.Sprintf("%s/%d", c.Type, c.Index)
	if len(metrics) > 0 {
		key = fmt.Sprintf("%v", metrics[0].DedupKey())
	}
	s.calls[key]++
	if s.fail != nil {
		if err := s.fail(c, s.calls[key]); err != nil {
			return 0, 0, err
		}
	}
	var inserted, updated int
	for _, m := range metrics {
		k := m.DedupKey()
		vals := m.Values()
		old, ok := s.rows[k]
		switch {
		case !ok:
			inserted++
		case !reflect.DeepEqual(old, vals):
			updated++
		}
		s.rows[k] = vals
	}
	return inserted, updated, nil
}

// chunkOf recovers the chunk index from the position of the first metric,
// so failures can be scripted per chunk.
func (s *memStore) chunkOf(t health.MetricType, metrics []health.Metric) Chunk {
	idx := 0
	if s.index != nil && len(metrics) > 0 {
		idx = s.index[metrics[0].DedupKey()]
	}
	return Chunk{Type: t, Index: idx, Metrics: metrics}
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// track remembers which chunk each first metric opens.
func (s *memStore) track(chunks []Chunk) []Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		s.index = map[health.DedupKey]int{}
	}
	for _, c := range chunks {
		if len(c.Metrics) > 0 {
			s.index[c.Metrics[0].DedupKey()] = c.Index
		}
	}
	return chunks
}

func (s *memStore) attempts(c Chunk) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[fmt.Sprintf("%v", c.Metrics[0].DedupKey())]
}
