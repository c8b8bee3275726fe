package robots

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Scheduler proactively refreshes the robots.txt cache on a cron schedule
// (SPEC_FULL §4.B), grounded on the teacher's scheduler service
// (internal/services/scheduler), trimmed to the one job this component
// needs rather than its general-purpose job registry.
type Scheduler struct {
	policy *Policy
	cron   *cron.Cron
	logger arbor.ILogger
}

// NewScheduler builds a Scheduler. cronExpr is a standard 5-field cron
// expression (e.g. "0 * * * *" for hourly); an empty string disables the
// schedule and Start becomes a no-op.
func NewScheduler(policy *Policy, logger arbor.ILogger, cronExpr string) (*Scheduler, error) {
	s := &Scheduler{policy: policy, logger: logger}
	if cronExpr == "" {
		return s, nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(cronExpr, func() {
		s.logger.Debug().Str("schedule", cronExpr).Msg("robots: scheduled refresh firing")
		s.policy.RefreshAll(context.Background())
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the cron schedule. Safe to call on a disabled Scheduler.
func (s *Scheduler) Start() {
	if s.cron == nil {
		return
	}
	s.cron.Start()
	s.logger.Info().Msg("robots: refresh scheduler started")
}

// Stop halts the cron schedule and waits for any in-flight refresh to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("robots: refresh scheduler stopped")
}
