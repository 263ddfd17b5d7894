// Package agent provides the shared plumbing for the two agent pools: the
// Runtime dependency handle, run statuses, and the result envelope agents
// hand back to the workflow.
package agent

import "context"

// Status of one agent run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusCancelled Status = "cancelled"
	// StatusCached marks a run that short-circuited to a stored artifact.
	StatusCached Status = "cached"
)

// Result is returned by every agent run.
//
// Agent-level failures (LLM errors, empty inputs) come back as
// (Result{Status: StatusFailed, Err: ...}, nil); a non-nil error return is
// reserved for infrastructure failures where no meaningful result exists.
type Result struct {
	AgentName string
	Status    Status
	Err       error
}

// Runner is implemented by both agent kinds; the workflow fans Run out
// per agent. ctx carries the node timeout and cancellation.
type Runner interface {
	Name() string
	Run(ctx context.Context, triggerTime string) (*Result, error)
}

// StatusFromContext maps a context error observed after a run to the
// matching terminal status.
func StatusFromContext(ctx context.Context) Status {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return StatusTimedOut
	case context.Canceled:
		return StatusCancelled
	default:
		return StatusFailed
	}
}
