// Package scheduler fires workflow runs from configured cron expressions.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quantfleet/quantfleet/pkg/config"
	"github.com/quantfleet/quantfleet/pkg/market"
	"github.com/quantfleet/quantfleet/pkg/workflow"
)

// Scheduler starts a workflow run each time one of the configured cron
// expressions fires, using the firing time as the trigger time.
type Scheduler struct {
	cron    *cron.Cron
	manager *workflow.Manager
	logger  *slog.Logger
}

// New builds a scheduler from the schedule config. Returns an error if any
// cron expression fails to parse, so a config typo fails at startup rather
// than silently never firing.
func New(manager *workflow.Manager, cfg config.ScheduleConfig) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		manager: manager,
		logger:  slog.Default().With("component", "scheduler"),
	}
	for _, expr := range cfg.Crons {
		if _, err := s.cron.AddFunc(expr, s.trigger); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) trigger() {
	triggerTime := time.Now().Format(market.TriggerTimeLayout)
	run, err := s.manager.Start(context.Background(), triggerTime)
	if err != nil {
		// A still-running earlier run is expected under dense schedules.
		var busy workflow.ErrRunInProgress
		if errors.As(err, &busy) {
			s.logger.Warn("skipping scheduled run, another is in progress", "trigger_time", triggerTime)
			return
		}
		s.logger.Error("failed to start scheduled run", "trigger_time", triggerTime, "error", err)
		return
	}
	s.logger.Info("started scheduled run", "run_id", run.ID, "trigger_time", triggerTime)
}

// Start begins firing crons. No-op when nothing is scheduled.
func (s *Scheduler) Start() {
	if len(s.cron.Entries()) == 0 {
		return
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "entries", len(s.cron.Entries()))
}

// Stop halts the cron loop and waits for in-flight trigger callbacks.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
