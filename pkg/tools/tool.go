// Package tools provides the research agents' tool layer: a compile-time
// registry keyed by string, an executor that enforces per-tool timeouts and
// output caps, and the LLM-driven tool selection step.
package tools

import (
	"context"
	"encoding/json"
	"time"
)

// FinalReportName is the sentinel tool: selecting it tells the ReAct loop
// the agent has enough information to write its result.
const FinalReportName = "final_report"

// TriggerTimeArg is injected into every invocation by the executor. Tool
// schemas must not expose it.
const TriggerTimeArg = "trigger_time"

// Descriptor is the registry-facing description of one tool.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ArgsSchema  json.RawMessage `json:"args_schema"`
	// MaxOutputLen caps the tool's visible output in characters; longer
	// output is truncated with an ellipsis. Zero means DefaultMaxOutputLen.
	MaxOutputLen int `json:"max_output_len,omitempty"`
	// TimeoutSeconds bounds one invocation. Zero means DefaultTimeout.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// Default executor limits.
const (
	DefaultMaxOutputLen = 8000
	DefaultTimeout      = 30 * time.Second
)

// Result is a tool invocation outcome. Exactly one of Data/ErrorMessage is
// meaningful depending on Success.
type Result struct {
	Success      bool   `json:"success"`
	Data         string `json:"data,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Tool is the capability every registered tool implements. Invocations are
// I/O-bound and must honor ctx; the executor cancels them at the
// descriptor's timeout.
type Tool interface {
	Name() string
	Describe() Descriptor
	Invoke(ctx context.Context, args map[string]any) (*Result, error)
}
