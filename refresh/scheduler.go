package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"hostsync/logger"
)

// JobSource supplies the items for the next cycle.
type JobSource func() Job

// Scheduler runs a cycle at startup, every interval, and on Trigger.
// A tick that arrives while a cycle is running is skipped.
type Scheduler struct {
	manager  *Manager
	jobs     JobSource
	interval time.Duration
	trigger  chan struct{}
	log      *logger.Logger
	wg       sync.WaitGroup
}

// NewScheduler returns a scheduler. An interval of zero disables the
// periodic run; startup and triggered cycles still happen.
func NewScheduler(m *Manager, jobs JobSource, interval time.Duration) *Scheduler {
	return &Scheduler{
		manager:  m,
		jobs:     jobs,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		log:      logger.With("scheduler"),
	}
}

// Trigger requests a cycle. It never blocks and returns false when a
// request is already queued.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run blocks until ctx is done, then cancels the running cycle and waits
// for it to drain.
func (s *Scheduler) Run(ctx context.Context) {
	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.spawn(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			s.manager.Cancel()
			s.wg.Wait()
			return
		case <-tick:
			s.spawn(ctx, "interval")
		case <-s.trigger:
			s.spawn(ctx, "trigger")
		}
	}
}

func (s *Scheduler) spawn(ctx context.Context, reason string) {
	if s.manager.Running() {
		s.log.Infof("skipping %s refresh, a cycle is still running", reason)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Debugf("%s refresh", reason)
		report, err := s.manager.Start(ctx, s.jobs())
		switch {
		case errors.Is(err, ErrAlreadyRunning):
			s.log.Infof("skipping %s refresh, a cycle is still running", reason)
		case err != nil:
			s.log.Errorf("%s refresh failed to start: %v", reason, err)
		case report.Failed():
			s.log.Warnf("%s refresh finished with %d errors", reason, len(report.Errors))
		}
	}()
}
