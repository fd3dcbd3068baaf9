package mirror

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// Refresher is the unit of work the Scheduler repeats.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler runs Refresh on a fixed interval until its context is cancelled.
// Runs happen one at a time on the scheduler goroutine; ticks that arrive
// while a run is in flight are dropped by the ticker.
type Scheduler struct {
	Target   Refresher
	Interval time.Duration
	Timeout  time.Duration
	logger   *log.Entry
}

func NewScheduler(target Refresher, interval, timeout time.Duration) *Scheduler {
	return &Scheduler{
		Target:   target,
		Interval: interval,
		Timeout:  timeout,
		logger:   log.WithField("component", "mirror-scheduler"),
	}
}

// Run blocks until ctx is done. Refresh errors are logged and never stop the
// loop.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.Interval).Info("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	started := time.Now()
	err := s.Target.Refresh(runCtx)
	entry := s.logger.WithField("took", time.Since(started))
	switch {
	case err == nil:
		entry.Debug("refresh finished")
	case errors.Is(err, ErrSyncDiverged):
		entry.WithError(err).Error("upstream history is not a fast-forward; keeping current tree")
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		entry.WithError(err).Error("refresh timed out")
	default:
		entry.WithError(err).Error("error pulling repository")
	}
}
