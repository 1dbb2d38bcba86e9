package sweeper

import (
	"context"
	"time"

	"github.com/Ladvien/self-sensored-sub003/internal/data/repos"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/dbctx"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

const (
	DefaultInterval  = time.Hour
	DefaultRetention = 7 * 24 * time.Hour
)

type Config struct {
	Interval  time.Duration
	Retention time.Duration
	// StaleAfter, when set, also fails processing jobs that stopped
	// heartbeating and have no retries left.
	StaleAfter time.Duration
}

// DepthObserver receives the job count per status after every sweep.
type DepthObserver interface {
	ObserveQueueDepth(counts map[string]int64)
}

type Stats struct {
	Deleted     int64
	FailedStale int64
}

// Sweeper deletes finished jobs past retention.
type Sweeper struct {
	log      *logger.Logger
	repo     repos.ProcessingJobRepo
	observer DepthObserver
	cfg      Config
	now      func() time.Time
}

func New(baseLog *logger.Logger, repo repos.ProcessingJobRepo, observer DepthObserver, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	return &Sweeper{
		log:      baseLog.With("component", "JobSweeper"),
		repo:     repo,
		observer: observer,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (Stats, error) {
	var st Stats
	dbc := dbctx.Context{Ctx: ctx}
	now := s.now()

	if s.cfg.StaleAfter > 0 {
		n, err := s.repo.FailStale(dbc, now.Add(-s.cfg.StaleAfter))
		if err != nil {
			return st, err
		}
		st.FailedStale = n
	}
	n, err := s.repo.DeleteTerminalBefore(dbc, now.Add(-s.cfg.Retention))
	if err != nil {
		return st, err
	}
	st.Deleted = n

	if s.observer != nil {
		counts, err := s.repo.CountByStatus(dbc)
		if err != nil {
			s.log.Warn("queue depth query failed", "error", err)
		} else {
			s.observer.ObserveQueueDepth(counts)
		}
	}
	if st.Deleted > 0 || st.FailedStale > 0 {
		s.log.Info("job sweep", "deleted", st.Deleted, "failed_stale", st.FailedStale, "retention", s.cfg.Retention)
	}
	return st, nil
}

// Run sweeps immediately and then every Interval until ctx ends.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("job sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
