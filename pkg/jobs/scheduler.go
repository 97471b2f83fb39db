// Package jobs runs periodic background maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/authgate/pkg/observability"
	"github.com/platinummonkey/authgate/pkg/users"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler wraps a cron scheduler with logrus logging
type Scheduler struct {
	cron   *cron.Cron
	logger *logrus.Logger
}

// NewScheduler creates a stopped scheduler
func NewScheduler(logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger))),
		logger: logger,
	}
}

// Add schedules fn under name. Errors returned by fn are logged, never fatal.
func (s *Scheduler) Add(schedule, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		start := time.Now()
		entry := s.logger.WithField("job", name)
		if err := fn(ctx); err != nil {
			entry.WithError(err).Warn("Scheduled job failed")
			return
		}
		entry.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("Scheduled job completed")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	return nil
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs or ctx, whichever is first
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// UserStats counts the users in the directory and publishes the gauge
func UserStats(dir users.Directory, metrics *observability.Metrics) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		all, err := dir.FindAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to count users: %w", err)
		}
		metrics.SetUsersTotal(len(all))
		return nil
	}
}
