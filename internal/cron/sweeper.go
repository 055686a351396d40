// Package cron drives Pandora's periodic housekeeping: Trace Hub TTL
// expiry, Job Registry GC, and Intervention/Permission expiry, on the
// cadences set by `job_sweep_interval_seconds`, `intervention_ttl_seconds`,
// and `permission_ttl_seconds`. It wraps `github.com/robfig/cron/v3` around
// a closed set of sweep targets; each handle is created at startup and torn
// down with the process.
package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// SweepFunc runs one housekeeping pass and reports how many records it
// removed, for logging/metrics.
type SweepFunc func(ctx context.Context) (removed int, err error)

// Target is one named periodic sweep registered with the Sweeper.
type Target struct {
	Name     string
	Interval time.Duration
	Run      SweepFunc
}

// Sweeper runs a fixed set of named sweeps on independent intervals.
type Sweeper struct {
	logger *slog.Logger
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

// New creates a Sweeper. Pass the parent context that bounds the process
// lifetime; Stop cancels the derived context used for each sweep run.
func New(logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		logger: logger,
		cron:   cron.New(cron.WithSeconds()),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a target. Intervals under a second are clamped to 1s; robfig
// cron's "@every" spec handles the rest. Register must be called before Start.
func (s *Sweeper) Register(t Target) error {
	interval := t.Interval
	if interval < time.Second {
		interval = time.Second
	}
	name := t.Name
	run := t.Run
	_, err := s.cron.AddFunc(spec(interval), func() {
		ctx, cancel := context.WithTimeout(s.ctx, interval)
		defer cancel()
		removed, err := run(ctx)
		if err != nil {
			s.logger.Warn("sweep failed", "target", name, "error", err)
			return
		}
		if removed > 0 {
			s.logger.Info("sweep completed", "target", name, "removed", removed)
		}
	})
	return err
}

func spec(d time.Duration) string {
	return "@every " + d.String()
}

// Start begins running registered sweeps in the background. Idempotent.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
}

// Stop halts all sweeps and waits for any in-flight run to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	<-s.cron.Stop().Done()
	s.cancel()
}
