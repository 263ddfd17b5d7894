package slack

import (
	"context"
	"log/slog"
	"time"

	"github.com/quantfleet/quantfleet/pkg/models"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token   string
	Channel string
}

// Service handles Slack notification delivery.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client *Client
	logger *slog.Logger
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client: NewClient(cfg.Token, cfg.Channel),
		logger: slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client) *Service {
	return &Service{
		client: client,
		logger: slog.Default().With("component", "slack-service"),
	}
}

// NotifyRunStarted announces a run and returns the message timestamp so
// the terminal notification can thread under it. Fail-open.
func (s *Service) NotifyRunStarted(ctx context.Context, triggerTime string) string {
	if s == nil {
		return ""
	}
	ts, err := s.client.PostMessage(ctx, BuildRunStartedMessage(triggerTime), "", 5*time.Second)
	if err != nil {
		s.logger.Error("failed to send run start notification", "trigger_time", triggerTime, "error", err)
		return ""
	}
	return ts
}

// NotifyRunCompleted announces the run's weight allocation. Fail-open.
func (s *Service) NotifyRunCompleted(ctx context.Context, triggerTime string, result *models.WeightResult, threadTS string) {
	if s == nil {
		return
	}
	if _, err := s.client.PostMessage(ctx, BuildRunCompletedMessage(triggerTime, result), threadTS, 10*time.Second); err != nil {
		s.logger.Error("failed to send run completion notification", "trigger_time", triggerTime, "error", err)
	}
}

// NotifyRunFailed announces a failed run. Fail-open.
func (s *Service) NotifyRunFailed(ctx context.Context, triggerTime, errMsg, threadTS string) {
	if s == nil {
		return
	}
	if _, err := s.client.PostMessage(ctx, BuildRunFailedMessage(triggerTime, errMsg), threadTS, 10*time.Second); err != nil {
		s.logger.Error("failed to send run failure notification", "trigger_time", triggerTime, "error", err)
	}
}
