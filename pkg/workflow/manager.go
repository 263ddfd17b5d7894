package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantfleet/quantfleet/pkg/models"
	"github.com/quantfleet/quantfleet/pkg/slack"
)

// RunStatus of a tracked workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one tracked workflow execution.
type Run struct {
	ID          string                `json:"id"`
	TriggerTime string                `json:"trigger_time"`
	Status      RunStatus             `json:"status"`
	StartedAt   time.Time             `json:"started_at"`
	FinishedAt  *time.Time            `json:"finished_at,omitempty"`
	Error       string                `json:"error,omitempty"`
	Result      *models.CompanyResult `json:"result,omitempty"`
}

// Manager launches workflow runs and tracks their lifecycle for the ops
// API and the scheduler. Runs execute one at a time: concurrent triggers
// for different times would race on the shared artifact store semantics.
type Manager struct {
	company *Company
	// notifier is nil-safe; a nil service disables notifications.
	notifier *slack.Service
	logger   *slog.Logger

	mu      sync.RWMutex
	runs    map[string]*Run
	order   []string
	running bool
}

// NewManager creates a manager over the company workflow.
func NewManager(company *Company) *Manager {
	return &Manager{
		company: company,
		logger:  slog.Default().With("component", "run-manager"),
		runs:    make(map[string]*Run),
	}
}

// WithNotifier attaches the Slack service. Returns the manager for
// constructor chaining.
func (m *Manager) WithNotifier(notifier *slack.Service) *Manager {
	m.notifier = notifier
	return m
}

// ErrRunInProgress is returned when a run is already executing.
type ErrRunInProgress struct{}

func (ErrRunInProgress) Error() string { return "a workflow run is already in progress" }

// Start launches a run for the trigger time in the background and returns
// a snapshot of its tracking record immediately.
func (m *Manager) Start(ctx context.Context, triggerTime string) (Run, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return Run{}, ErrRunInProgress{}
	}
	run := &Run{
		ID:          uuid.NewString(),
		TriggerTime: triggerTime,
		Status:      RunStatusRunning,
		StartedAt:   time.Now(),
	}
	m.runs[run.ID] = run
	m.order = append(m.order, run.ID)
	m.running = true
	snapshot := *run
	m.mu.Unlock()

	go func() {
		threadTS := m.notifier.NotifyRunStarted(ctx, triggerTime)

		result, err := m.company.Run(ctx, triggerTime)

		m.mu.Lock()
		now := time.Now()
		run.FinishedAt = &now
		if err != nil {
			run.Status = RunStatusFailed
			run.Error = err.Error()
			m.logger.Error("workflow run failed", "run_id", run.ID, "error", err)
		} else {
			run.Status = RunStatusCompleted
			run.Result = result
		}
		m.running = false
		m.mu.Unlock()

		if err != nil {
			m.notifier.NotifyRunFailed(ctx, triggerTime, err.Error(), threadTS)
		} else {
			m.notifier.NotifyRunCompleted(ctx, triggerTime, result.WeightResult, threadTS)
		}
	}()
	return snapshot, nil
}

// Get returns a snapshot of a tracked run by id.
func (m *Manager) Get(id string) (Run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// List returns snapshots of all tracked runs, oldest first.
func (m *Manager) List() []Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Run, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.runs[id])
	}
	return out
}
