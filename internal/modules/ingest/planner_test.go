package ingest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ladvien/self-sensored-sub003/internal/domain/health"
)

func TestPlannerHeartRateChunking(t *testing.T) {
	p, err := NewPlanner(PlannerConfig{})
	require.NoError(t, err)

	assert.Equal(t, 52428, p.SafeParamLimit())
	assert.Equal(t, 5242, p.MaxRecordsPerChunk(health.HeartRate))

	chunks := p.Plan(heartRates(uuid.New(), 10000))
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0].Metrics, 5242)
	assert.Len(t, chunks[1].Metrics, 4758)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)
	assert.LessOrEqual(t, chunks[0].Params(), DefaultParamCeiling)
}

func TestPlannerChunkSizeRespectsCeiling(t *testing.T) {
	for _, margin := range []float64{0.1, 0.5, 0.8, 1} {
		for _, ceiling := range []int{1000, 32767, 65535} {
			p, err := NewPlanner(PlannerConfig{ParamCeiling: ceiling, SafetyMargin: margin})
			require.NoError(t, err)
			for _, mt := range health.AllTypes {
				size := p.ChunkSize(mt)
				assert.LessOrEqual(t, size*health.ParamsPerRecord(mt), ceiling, "%s margin=%v ceiling=%d", mt, margin, ceiling)
				assert.Positive(t, size)
			}
		}
	}
}

func TestPlannerRejectsEveryBadOverride(t *testing.T) {
	_, err := NewPlanner(PlannerConfig{ChunkOverrides: map[health.MetricType]int{
		health.HeartRate: 6000,
		health.Activity:  4000,
		health.Sleep:     100,
		"steps":          10,
		health.Workout:   0,
	}})
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "heart_rate")
	assert.Contains(t, msg, "activity")
	assert.Contains(t, msg, "steps")
	assert.Contains(t, msg, "workout")
	assert.NotContains(t, msg, "sleep:")
}

func TestPlannerRejectsBadMargin(t *testing.T) {
	_, err := NewPlanner(PlannerConfig{SafetyMargin: 1.5})
	require.Error(t, err)
	_, err = NewPlanner(PlannerConfig{SafetyMargin: -0.2})
	require.Error(t, err)
}

func TestPlanGroupsByFirstSeenType(t *testing.T) {
	p, err := NewPlanner(PlannerConfig{ChunkOverrides: map[health.MetricType]int{health.HeartRate: 2}})
	require.NoError(t, err)

	user := uuid.New()
	in := []health.Metric{
		health.ActivityMetric{UserID: user, RecordedAt: t0},
		health.HeartRateMetric{UserID: user, RecordedAt: t0},
		health.HeartRateMetric{UserID: user, RecordedAt: t0.Add(1)},
		health.ActivityMetric{UserID: user, RecordedAt: t0.Add(1)},
		health.HeartRateMetric{UserID: user, RecordedAt: t0.Add(2)},
	}
	chunks := p.Plan(in)
	require.Len(t, chunks, 3)
	assert.Equal(t, health.Activity, chunks[0].Type)
	assert.Len(t, chunks[0].Metrics, 2)
	assert.Equal(t, health.HeartRate, chunks[1].Type)
	assert.Equal(t, []health.Metric{in[1], in[2]}, chunks[1].Metrics)
	assert.Equal(t, health.HeartRate, chunks[2].Type)
	assert.Equal(t, 1, chunks[2].Index)
	assert.Empty(t, p.Plan(nil))
}

func TestPlannerWithOverrides(t *testing.T) {
	p, err := NewPlanner(PlannerConfig{})
	require.NoError(t, err)

	q, err := p.WithOverrides(map[string]int{"heart_rate": 100})
	require.NoError(t, err)
	assert.Equal(t, 100, q.ChunkSize(health.HeartRate))
	assert.Equal(t, 5242, p.ChunkSize(health.HeartRate))

	_, err = p.WithOverrides(map[string]int{"heart_rate": 100000})
	require.Error(t, err)
}

func TestPlannerTable(t *testing.T) {
	p, err := NewPlanner(PlannerConfig{ChunkOverrides: map[health.MetricType]int{health.Sleep: 10}})
	require.NoError(t, err)
	rows := p.Table()
	require.Len(t, rows, len(health.AllTypes))
	for _, r := range rows {
		if r.Type == health.Sleep {
			assert.True(t, r.Overridden)
			assert.Equal(t, 10, r.ChunkSize)
		} else {
			assert.Equal(t, r.MaxRecords, r.ChunkSize)
		}
	}
}
