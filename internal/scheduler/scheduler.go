// Package scheduler runs the reconciler's poll loops.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"splitsync/internal/log"
)

// Loop is one polling job. Run is called once per tick with the cycle lock held.
type Loop struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// LoopStats describes a loop's recent history.
type LoopStats struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	Cycles       int           `json:"cycles"`
	Failures     int           `json:"failures"`
	LastRun      time.Time     `json:"last_run"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
}

// Scheduler runs loops concurrently while serializing their cycles: one lock is held
// for a whole poll-and-react cycle, so two loops never interleave. A failed or
// panicking cycle is logged and the loop waits for its next tick.
type Scheduler struct {
	loops  []Loop
	logger *log.Logger

	cycle sync.Mutex

	mu    sync.RWMutex
	stats map[string]*LoopStats
}

// New creates a Scheduler. Loops without a Run func or with a non-positive
// interval are rejected by Run.
func New(logger *log.Logger, loops ...Loop) *Scheduler {
	if logger == nil {
		logger = log.Discard()
	}
	stats := make(map[string]*LoopStats, len(loops))
	for _, l := range loops {
		stats[l.Name] = &LoopStats{Name: l.Name, Interval: l.Interval}
	}
	return &Scheduler{
		loops:  loops,
		logger: logger.WithComponent(log.ComponentScheduler),
		stats:  stats,
	}
}

// Run starts every loop and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, l := range s.loops {
		if l.Run == nil || l.Interval <= 0 {
			return fmt.Errorf("loop %q: needs a run func and a positive interval", l.Name)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range s.loops {
		l := l
		g.Go(func() error {
			s.logger.InfoContext(gctx, "Started poll loop",
				log.FieldLoop, l.Name,
				"interval", l.Interval)
			s.loop(gctx, l)
			s.logger.InfoContext(gctx, "Stopped poll loop", log.FieldLoop, l.Name)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, l Loop) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.runCycle(ctx, l)
		if !wait(ctx, l.Interval) {
			return
		}
	}
}

// wait sleeps for d, returning false as soon as ctx is done.
func wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) runCycle(ctx context.Context, l Loop) {
	start := time.Now()
	err := s.Do(ctx, l.Run)
	elapsed := time.Since(start)

	s.mu.Lock()
	st := s.stats[l.Name]
	st.Cycles++
	st.LastRun = start
	st.LastDuration = elapsed
	st.LastError = ""
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.ErrorContext(ctx, "Poll cycle failed",
			log.FieldLoop, l.Name,
			log.FieldError, err,
			log.FieldDuration, elapsed.Milliseconds())
	}
}

// Do runs fn with the cycle lock held, converting a panic into an error. Callers
// outside the loops use it to run one-off work such as a startup sweep.
func (s *Scheduler) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	s.cycle.Lock()
	defer s.cycle.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in cycle: %v", r)
		}
	}()
	return fn(ctx)
}

// Stats returns a snapshot of every loop's stats, sorted by name.
func (s *Scheduler) Stats() []LoopStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LoopStats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
