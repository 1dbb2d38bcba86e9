package ingest

import (
	"fmt"
	"math"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/Ladvien/self-sensored-sub003/internal/domain/health"
)

const (
	// DefaultParamCeiling is the Postgres bind-parameter limit per statement.
	DefaultParamCeiling = 65535
	DefaultSafetyMargin = 0.8
)

type PlannerConfig struct {
	ParamCeiling   int
	SafetyMargin   float64
	ChunkOverrides map[health.MetricType]int
}

// Chunk is an ordered slice of same-type metrics written in one statement.
type Chunk struct {
	Type    health.MetricType
	Index   int
	Metrics []health.Metric
}

func (c Chunk) Params() int { return len(c.Metrics) * health.ParamsPerRecord(c.Type) }

// Planner splits batches so no statement exceeds the parameter budget.
type Planner struct {
	ceiling   int
	margin    float64
	safe      int
	overrides map[health.MetricType]int
}

// NewPlanner validates cfg. Every bad override is reported, not just the
// first.
func NewPlanner(cfg PlannerConfig) (*Planner, error) {
	if cfg.ParamCeiling == 0 {
		cfg.ParamCeiling = DefaultParamCeiling
	}
	if cfg.SafetyMargin == 0 {
		cfg.SafetyMargin = DefaultSafetyMargin
	}

	var result *multierror.Error
	if cfg.ParamCeiling < 0 {
		result = multierror.Append(result, fmt.Errorf("param ceiling must be positive, got %d", cfg.ParamCeiling))
	}
	if cfg.SafetyMargin <= 0 || cfg.SafetyMargin > 1 {
		result = multierror.Append(result, fmt.Errorf("safety margin must be in (0, 1], got %v", cfg.SafetyMargin))
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	p := &Planner{
		ceiling:   cfg.ParamCeiling,
		margin:    cfg.SafetyMargin,
		safe:      int(math.Floor(cfg.SafetyMargin * float64(cfg.ParamCeiling))),
		overrides: map[health.MetricType]int{},
	}

	types := make([]health.MetricType, 0, len(cfg.ChunkOverrides))
	for t := range cfg.ChunkOverrides {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, t := range types {
		size := cfg.ChunkOverrides[t]
		if err := p.checkOverride(t, size); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		p.overrides[t] = size
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Planner) checkOverride(t health.MetricType, size int) error {
	if !t.Valid() {
		return fmt.Errorf("chunk override for unknown metric type %q", t)
	}
	if size <= 0 {
		return fmt.Errorf("%s: chunk size must be positive, got %d", t, size)
	}
	params := health.ParamsPerRecord(t)
	if size*params > p.safe {
		return fmt.Errorf("%s: chunk size %d uses %d params, limit is %d (max %d records)",
			t, size, size*params, p.safe, p.safe/params)
	}
	return nil
}

// WithOverrides returns a planner with extra per-type overrides layered on
// top of p. Keys are metric type names.
func (p *Planner) WithOverrides(extra map[string]int) (*Planner, error) {
	if len(extra) == 0 {
		return p, nil
	}
	merged := make(map[health.MetricType]int, len(p.overrides)+len(extra))
	for t, n := range p.overrides {
		merged[t] = n
	}
	for name, n := range extra {
		merged[health.MetricType(name)] = n
	}
	return NewPlanner(PlannerConfig{ParamCeiling: p.ceiling, SafetyMargin: p.margin, ChunkOverrides: merged})
}

// SafeParamLimit is floor(margin * ceiling).
func (p *Planner) SafeParamLimit() int { return p.safe }

// MaxRecordsPerChunk is the largest chunk t may use under the margin.
func (p *Planner) MaxRecordsPerChunk(t health.MetricType) int {
	params := health.ParamsPerRecord(t)
	if params == 0 {
		return 0
	}
	return p.safe / params
}

// ChunkSize is the override when one is set, else MaxRecordsPerChunk.
func (p *Planner) ChunkSize(t health.MetricType) int {
	if n, ok := p.overrides[t]; ok {
		return n
	}
	return p.MaxRecordsPerChunk(t)
}

// Plan groups metrics by type, in first-seen type order, and splits each
// group into chunks of at most ChunkSize records. Relative order within a
// type is preserved.
func (p *Planner) Plan(metrics []health.Metric) []Chunk {
	var order []health.MetricType
	groups := map[health.MetricType][]health.Metric{}
	for _, m := range metrics {
		t := m.Type()
		if _, ok := groups[t]; !ok {
			order = append(order, t)
		}
		groups[t] = append(groups[t], m)
	}

	var chunks []Chunk
	for _, t := range order {
		group := groups[t]
		size := p.ChunkSize(t)
		if size <= 0 {
			size = len(group)
		}
		for i, idx := 0, 0; i < len(group); i, idx = i+size, idx+1 {
			end := min(i+size, len(group))
			chunks = append(chunks, Chunk{Type: t, Index: idx, Metrics: group[i:end]})
		}
	}
	return chunks
}

// PlanRow is one line of the effective chunking table.
type PlanRow struct {
	Type            health.MetricType `json:"type"`
	Table           string            `json:"table"`
	ParamsPerRecord int               `json:"params_per_record"`
	MaxRecords      int               `json:"max_records"`
	ChunkSize       int               `json:"chunk_size"`
	Overridden      bool              `json:"overridden"`
}

func (p *Planner) Table() []PlanRow {
	rows := make([]PlanRow, 0, len(health.AllTypes))
	for _, spec := range health.Specs() {
		_, over := p.overrides[spec.Type]
		rows = append(rows, PlanRow{
			Type:            spec.Type,
			Table:           spec.Table,
			ParamsPerRecord: len(spec.Columns),
			MaxRecords:      p.MaxRecordsPerChunk(spec.Type),
			ChunkSize:       p.ChunkSize(spec.Type),
			Overridden:      over,
		})
	}
	return rows
}
