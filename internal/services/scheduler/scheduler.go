// Package scheduler is the single-leader periodic driver for the ingestion
// pipeline. It wakes every minute, gates runs on leadership, a time-of-day
// window, and the minimum inter-run interval, and never overlaps with itself
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"cacdarchive/internal/core/causelist"
	"cacdarchive/internal/platform/logger"
	"cacdarchive/internal/services/scrapes"
)

// Runner is the pipeline seam the scheduler drives
type Runner interface {
	Run(ctx context.Context, kind scrapes.Kind) error
}

// Gate answers whether enough time has passed since the last successful run
type Gate interface {
	ShouldScrape(ctx context.Context, minInterval time.Duration) (bool, error)
}

// Window is an optional local-hour gate [Start, End)
type Window struct {
	Enabled   bool
	StartHour int
	EndHour   int
}

// Contains reports whether the hour is inside the window
func (w Window) Contains(hour int) bool {
	if !w.Enabled {
		return true
	}
	if w.StartHour <= w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	// window wraps midnight
	return hour >= w.StartHour || hour < w.EndHour
}

// Options configures the scheduler
type Options struct {
	// Instance gates leadership: only instance 0 runs
	Instance int
	// Interval is the minimum time between successful runs
	Interval time.Duration
	// RunOnStartup performs one run before the ticker is observable
	RunOnStartup bool
	// Window optionally restricts runs to local hours
	Window Window
	// DrainTimeout bounds how long Stop waits for an in-progress run
	DrainTimeout time.Duration
}

// Scheduler owns the periodic loop state. All flags live behind one mutex;
// nothing outside this struct mutates them
type Scheduler struct {
	runner Runner
	gate   Gate
	opts   Options
	log    logger.Logger
	now    func() time.Time

	mu         sync.Mutex
	inProgress bool
	draining   bool
	started    bool
	cron       *cron.Cron
	runCtx     context.Context
	cancelRun  context.CancelFunc
	idle       chan struct{} // closed while no run is in progress
}

// New constructs a Scheduler
func New(runner Runner, gate Gate, opts Options) *Scheduler {
	if runner == nil {
		panic("scheduler.New requires a Runner")
	}
	if gate == nil {
		panic("scheduler.New requires a Gate")
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 60 * time.Second
	}
	idle := make(chan struct{})
	close(idle)
	return &Scheduler{
		runner: runner,
		gate:   gate,
		opts:   opts,
		log:    *logger.Named("scheduler"),
		now:    time.Now,
		idle:   idle,
	}
}

// Start begins the loop. On a non-leader instance it is a no-op. The startup
// run, when configured, happens before the minute ticker starts
func (s *Scheduler) Start(ctx context.Context) error {
	if s.opts.Instance != 0 {
		s.log.Info().Int("instance", s.opts.Instance).Msg("not the leader, scheduler disabled")
		return nil
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.runCtx, s.cancelRun = context.WithCancel(ctx)
	s.mu.Unlock()

	if s.opts.RunOnStartup {
		s.runOnce(scrapes.KindStartup)
	}

	c := cron.New()
	if _, err := c.AddFunc("* * * * *", func() { s.tick() }); err != nil {
		return err
	}
	c.Start()

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	s.log.Info().
		Dur("interval", s.opts.Interval).
		Bool("window", s.opts.Window.Enabled).
		Msg("scheduler started")
	return nil
}

// tick is one minute wakeup. Ticks during a run are dropped
func (s *Scheduler) tick() {
	if s.opts.Instance != 0 {
		return
	}
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	if s.inProgress {
		s.mu.Unlock()
		s.log.Debug().Msg("tick dropped, run in progress")
		return
	}
	s.mu.Unlock()

	hour := s.now().In(causelist.Location()).Hour()
	if !s.opts.Window.Contains(hour) {
		return
	}

	due, err := s.gate.ShouldScrape(s.runCtx, s.opts.Interval)
	if err != nil {
		s.log.Error().Err(err).Msg("scrape gate check failed")
		return
	}
	if !due {
		return
	}

	s.runOnce(scrapes.KindScheduled)
}

// runOnce executes the pipeline while holding the in-progress flag
func (s *Scheduler) runOnce(kind scrapes.Kind) {
	s.mu.Lock()
	if s.inProgress || s.draining {
		s.mu.Unlock()
		return
	}
	s.inProgress = true
	s.idle = make(chan struct{})
	ctx := s.runCtx
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inProgress = false
		close(s.idle)
		s.mu.Unlock()
	}()

	if err := s.runner.Run(ctx, kind); err != nil {
		s.log.Error().Err(err).Str("kind", string(kind)).Msg("pipeline run failed")
	}
}

// Stop drains the scheduler: the ticker stops, the in-flight run is
// cancelled, and Stop waits up to the drain bound before giving up
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started || s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	c := s.cron
	cancel := s.cancelRun
	idle := s.idle
	s.mu.Unlock()

	if c != nil {
		c.Stop()
	}
	if cancel != nil {
		cancel()
	}

	select {
	case <-idle:
		s.log.Info().Msg("scheduler drained")
	case <-time.After(s.opts.DrainTimeout):
		s.log.Warn().
			Dur("drain_timeout", s.opts.DrainTimeout).
			Msg("in-progress run did not finish inside the drain bound, shutting down anyway")
	case <-ctx.Done():
		s.log.Warn().Msg("shutdown context expired while draining")
	}
}
