package health

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

type Column struct {
	Name string `yaml:"name"`
	SQL  string `yaml:"sql"`
}

// TableSpec is the storage layout of one metric type.
type TableSpec struct {
	Type    MetricType `yaml:"type"`
	Table   string     `yaml:"table"`
	Key     []string   `yaml:"key"`
	Columns []Column   `yaml:"columns"`
}

type catalogFile struct {
	Version int         `yaml:"version"`
	Types   []TableSpec `yaml:"types"`
}

type catalogIndex struct {
	specs  []TableSpec
	byType map[MetricType]TableSpec
}

var catalog = mustLoadCatalog(catalogYAML)

func mustLoadCatalog(data []byte) catalogIndex {
	c, err := loadCatalog(data)
	if err != nil {
		panic(fmt.Sprintf("health: metric catalog: %v", err))
	}
	return c
}

func loadCatalog(data []byte) (catalogIndex, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return catalogIndex{}, err
	}
	idx := catalogIndex{byType: make(map[MetricType]TableSpec, len(f.Types))}
	for _, s := range f.Types {
		if _, dup := idx.byType[s.Type]; dup {
			return catalogIndex{}, fmt.Errorf("type %q listed twice", s.Type)
		}
		if s.Table == "" || len(s.Columns) == 0 || len(s.Key) == 0 {
			return catalogIndex{}, fmt.Errorf("type %q: table, columns and key are required", s.Type)
		}
		cols := make(map[string]bool, len(s.Columns))
		for _, c := range s.Columns {
			cols[c.Name] = true
		}
		for _, k := range s.Key {
			if !cols[k] {
				return catalogIndex{}, fmt.Errorf("type %q: key column %q is not a column", s.Type, k)
			}
		}
		idx.specs = append(idx.specs, s)
		idx.byType[s.Type] = s
	}
	for _, t := range AllTypes {
		if _, ok := idx.byType[t]; !ok {
			return catalogIndex{}, fmt.Errorf("type %q missing", t)
		}
	}
	return idx, nil
}

// Spec returns the storage layout for t.
func Spec(t MetricType) (TableSpec, bool) {
	s, ok := catalog.byType[t]
	return s, ok
}

// Specs returns every layout in catalog order.
func Specs() []TableSpec {
	out := make([]TableSpec, len(catalog.specs))
	copy(out, catalog.specs)
	return out
}

// ParamsPerRecord is the number of bind parameters one row of t consumes.
// Unknown types report 0.
func ParamsPerRecord(t MetricType) int {
	return len(catalog.byType[t].Columns)
}

func (s TableSpec) ColumnNames() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// UpdateColumns are the columns rewritten when an incoming row collides with
// a stored one: everything outside the conflict key.
func (s TableSpec) UpdateColumns() []string {
	key := make(map[string]bool, len(s.Key))
	for _, k := range s.Key {
		key[k] = true
	}
	var out []string
	for _, c := range s.Columns {
		if !key[c.Name] {
			out = append(out, c.Name)
		}
	}
	return out
}

// CreateTableSQL renders idempotent Postgres DDL including the UNIQUE
// constraint the upsert conflicts on.
func (s TableSpec) CreateTableSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", s.Table)
	b.WriteString("\tid BIGSERIAL PRIMARY KEY,\n")
	for _, c := range s.Columns {
		fmt.Fprintf(&b, "\t%s %s,\n", c.Name, c.SQL)
	}
	b.WriteString("\tcreated_at TIMESTAMPTZ NOT NULL DEFAULT now(),\n")
	fmt.Fprintf(&b, "\tCONSTRAINT %s_dedup_key UNIQUE (%s)\n", s.Table, strings.Join(s.Key, ", "))
	b.WriteString(");")
	return b.String()
}
