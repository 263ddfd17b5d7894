package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Ellipsis marks truncated tool output so the LLM can see the cut.
const Ellipsis = "... [truncated]"

// Executor invokes registry tools with the trigger time injected, a
// per-tool timeout, and output truncation. Timeouts and tool errors come
// back as failed Results, never as Go errors — the ReAct loop treats them
// as observations and keeps going.
type Executor struct {
	registry    *Registry
	triggerTime string
	logger      *slog.Logger
}

// NewExecutor creates an executor bound to one run's trigger time.
func NewExecutor(registry *Registry, triggerTime string) *Executor {
	return &Executor{
		registry:    registry,
		triggerTime: triggerTime,
		logger:      slog.Default().With("component", "tool-executor"),
	}
}

// Registry exposes the bound registry (for prompt rendering).
func (e *Executor) Registry() *Registry { return e.registry }

// Execute runs one tool call. Infrastructure failures (unknown tool) are
// returned as failed Results too, so callers have a single path.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) *Result {
	tool, err := e.registry.Get(name)
	if err != nil {
		return &Result{Success: false, ErrorMessage: err.Error()}
	}
	desc := tool.Describe()

	timeout := DefaultTimeout
	if desc.TimeoutSeconds > 0 {
		timeout = time.Duration(desc.TimeoutSeconds) * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The agent owns trigger_time; schemas never expose it.
	merged := make(map[string]any, len(args)+1)
	for k, v := range args {
		merged[k] = v
	}
	merged[TriggerTimeArg] = e.triggerTime

	start := time.Now()
	result, err := tool.Invoke(callCtx, merged)
	elapsed := time.Since(start)

	switch {
	case callCtx.Err() == context.DeadlineExceeded:
		e.logger.Warn("tool timed out", "tool", name, "timeout", timeout)
		return &Result{Success: false, ErrorMessage: fmt.Sprintf("tool %s timed out after %s", name, timeout)}
	case err != nil:
		e.logger.Warn("tool failed", "tool", name, "elapsed", elapsed, "error", err)
		return &Result{Success: false, ErrorMessage: err.Error()}
	case result == nil:
		return &Result{Success: false, ErrorMessage: fmt.Sprintf("tool %s returned no result", name)}
	}

	if result.Success {
		result.Data = truncate(result.Data, desc.MaxOutputLen)
	}
	e.logger.Debug("tool completed", "tool", name, "elapsed", elapsed, "success", result.Success)
	return result
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxOutputLen
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + Ellipsis
}
