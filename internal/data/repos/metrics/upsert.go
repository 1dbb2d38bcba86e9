package metrics

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/Ladvien/self-sensored-sub003/internal/domain/health"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

// MaxBindParams is the Postgres limit on parameters in one statement.
const MaxBindParams = 65535

// UpsertRepo writes metric chunks with INSERT ... ON CONFLICT against the
// per-type dedup key constraint.
type UpsertRepo interface {
	UpsertMetrics(ctx context.Context, t health.MetricType, metrics []health.Metric) (inserted, updated int, err error)
}

type upsertRepo struct {
	db  *gorm.DB
	log *logger.Logger

	mu       sync.Mutex
	prefixes map[health.MetricType]statementParts
}

type statementParts struct {
	head string // INSERT INTO t (cols) VALUES
	row  string // (?, ?, ...)
	tail string // ON CONFLICT ... RETURNING ...
}

func NewUpsertRepo(db *gorm.DB, baseLog *logger.Logger) UpsertRepo {
	return &upsertRepo{
		db:       db,
		log:      baseLog.With("repo", "MetricUpsertRepo"),
		prefixes: map[health.MetricType]statementParts{},
	}
}

func (r *upsertRepo) UpsertMetrics(ctx context.Context, t health.MetricType, metrics []health.Metric) (int, int, error) {
	if len(metrics) == 0 {
		return 0, 0, nil
	}
	spec, ok := health.Spec(t)
	if !ok {
		return 0, 0, fmt.Errorf("unknown metric type %q", t)
	}
	if n := len(metrics) * len(spec.Columns); n > MaxBindParams {
		return 0, 0, fmt.Errorf("%s: %d rows need %d bind params, limit is %d", t, len(metrics), n, MaxBindParams)
	}

	args := make([]any, 0, len(metrics)*len(spec.Columns))
	for i, m := range metrics {
		if m.Type() != t {
			return 0, 0, fmt.Errorf("%s chunk holds a %s metric at %d", t, m.Type(), i)
		}
		args = append(args, m.Values()...)
	}
	query := r.parts(spec).build(len(metrics))

	var inserted, updated int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, updated = 0, 0
		rows, err := tx.Raw(query, args...).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var isInsert bool
			if err := rows.Scan(&isInsert); err != nil {
				return err
			}
			if isInsert {
				inserted++
			} else {
				updated++
			}
		}
		return rows.Err()
	})
	if err != nil {
		return 0, 0, fmt.Errorf("upsert %s (%d rows): %w", spec.Table, len(metrics), err)
	}
	return inserted, updated, nil
}

func (r *upsertRepo) parts(spec health.TableSpec) statementParts {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.prefixes[spec.Type]; ok {
		return p
	}
	p := upsertParts(spec)
	r.prefixes[spec.Type] = p
	return p
}

// upsertParts renders the fixed pieces of the statement. Unchanged rows are
// filtered by the WHERE clause, so they return nothing; xmax = 0 marks rows
// that did not exist before.
func upsertParts(spec health.TableSpec) statementParts {
	cols := spec.ColumnNames()
	head := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", spec.Table, strings.Join(cols, ", "))
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	upd := spec.UpdateColumns()
	conflict := fmt.Sprintf(" ON CONFLICT (%s)", strings.Join(spec.Key, ", "))
	if len(upd) == 0 {
		return statementParts{head: head, row: row, tail: conflict + " DO NOTHING RETURNING true AS inserted"}
	}
	sets := make([]string, len(upd))
	current := make([]string, len(upd))
	excluded := make([]string, len(upd))
	for i, c := range upd {
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", c, c)
		current[i] = spec.Table + "." + c
		excluded[i] = "EXCLUDED." + c
	}
	tail := fmt.Sprintf("%s DO UPDATE SET %s WHERE (%s) IS DISTINCT FROM (%s) RETURNING (xmax = 0) AS inserted",
		conflict,
		strings.Join(sets, ", "),
		strings.Join(current, ", "),
		strings.Join(excluded, ", "),
	)
	return statementParts{head: head, row: row, tail: tail}
}

func (p statementParts) build(rows int) string {
	var b strings.Builder
	b.Grow(len(p.head) + rows*(len(p.row)+2) + len(p.tail))
	b.WriteString(p.head)
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.row)
	}
	b.WriteString(p.tail)
	return b.String()
}
