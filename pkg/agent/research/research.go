// Package research implements the research agents: ReAct-style analysts
// that read the day's factor artifacts, probe the market through tools, and
// emit trading signals.
//
// Graph: initArtifact → [exists? submit : init → plan? → (toolSelection →
// callTool)* → writeResult → submit]. The loop is bounded by the configured
// step cap and by an absolute prompt-size guard.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quantfleet/quantfleet/pkg/agent"
	"github.com/quantfleet/quantfleet/pkg/config"
	"github.com/quantfleet/quantfleet/pkg/events"
	"github.com/quantfleet/quantfleet/pkg/llm"
	"github.com/quantfleet/quantfleet/pkg/models"
	"github.com/quantfleet/quantfleet/pkg/tools"
)

// maxWriteResultChars is the absolute prompt budget. When the estimated
// write-result prompt would exceed it, the loop stops gathering and writes.
const maxWriteResultChars = 128_000

// maxWriteRetries bounds re-prompting after an unparseable final output.
const maxWriteRetries = 3

// Agent is one configured research agent.
type Agent struct {
	cfg     config.ResearchAgentConfig
	pool    config.ResearchConfig
	runtime *agent.Runtime
	logger  *slog.Logger
}

// New creates a research agent from its belief-list entry and the pool
// settings shared by all research agents.
func New(cfg config.ResearchAgentConfig, pool config.ResearchConfig, runtime *agent.Runtime) *Agent {
	return &Agent{
		cfg:     cfg,
		pool:    pool,
		runtime: runtime,
		logger:  slog.Default().With("component", "research-agent", "agent", cfg.AgentName),
	}
}

// Name implements agent.Runner.
func (a *Agent) Name() string { return a.cfg.AgentName }

// Run implements agent.Runner.
func (a *Agent) Run(ctx context.Context, triggerTime string) (*agent.Result, error) {
	em := events.NewEmitter(a.runtime.Bus, "research_agent", a.cfg.AgentName, triggerTime)
	em.ChainStart(map[string]any{"trigger_time": triggerTime})

	result, err := a.run(ctx, triggerTime, em)
	if err != nil {
		em.ChainEnd(map[string]any{"error": err.Error()})
		return nil, err
	}
	em.ChainEnd(map[string]any{"status": string(result.Status)})
	return result, nil
}

func (a *Agent) run(ctx context.Context, triggerTime string, em *events.Emitter) (*agent.Result, error) {
	// initArtifact: an existing report wins, no LLM or tool touched.
	if _, ok, err := a.runtime.Store.LoadReport(a.cfg.AgentName, triggerTime); err != nil {
		return nil, err
	} else if ok {
		a.logger.Info("report artifact exists, short-circuiting", "trigger_time", triggerTime)
		return &agent.Result{AgentName: a.cfg.AgentName, Status: agent.StatusCached}, nil
	}

	background, err := a.buildBackground(ctx, triggerTime)
	if err != nil {
		a.logger.Error("background build failed", "error", err)
		return &agent.Result{AgentName: a.cfg.AgentName, Status: agent.StatusFailed, Err: err}, nil
	}

	registry, err := a.runtime.Tools.Subset(a.pool.Tools)
	if err != nil {
		return nil, err
	}

	task := a.cfg.Task
	if task == "" {
		task = defaultTask(triggerTime)
	}

	st := &loopState{task: task, background: background, registry: registry}

	if a.pool.Plan {
		if err := a.plan(ctx, st, em); err != nil {
			// A failed plan degrades the run, it does not abort it.
			a.logger.Warn("plan step failed, continuing without plan", "error", err)
		}
	}

	if a.pool.React {
		a.react(ctx, triggerTime, st, em)
	}

	artifact, err := a.writeResult(ctx, triggerTime, st, em)
	if err != nil {
		a.logger.Error("write result failed", "error", err)
		return &agent.Result{AgentName: a.cfg.AgentName, Status: agent.StatusFailed, Err: err}, nil
	}

	if err := a.runtime.Store.SaveReport(artifact); err != nil {
		return nil, fmt.Errorf("failed to persist report: %w", err)
	}
	return &agent.Result{AgentName: a.cfg.AgentName, Status: agent.StatusCompleted}, nil
}

// loopState is the transient per-run conversation state.
type loopState struct {
	task       string
	background string
	plan       string
	// toolCallContext accumulates one JSON object per tool call.
	toolCallContext string
	registry        *tools.Registry
}

// promptEstimate approximates the write-result prompt size in characters.
func (st *loopState) promptEstimate() int {
	return len(st.task) + len(st.background) + len(st.plan) +
		len(st.toolCallContext) + len(st.registry.DescribeJSON())
}

// buildBackground loads every configured data agent's factor for the
// trigger time and renders the shared background block. Missing factors are
// skipped.
func (a *Agent) buildBackground(ctx context.Context, triggerTime string) (string, error) {
	var factors []*models.FactorArtifact
	for _, da := range a.runtime.Config.DataAgents {
		factor, ok, err := a.runtime.Store.LoadFactor(da.AgentName, triggerTime)
		if err != nil {
			return "", err
		}
		if ok {
			factors = append(factors, factor)
		}
	}

	symbolContext, err := a.runtime.Market.GetTargetSymbolContext(ctx, triggerTime)
	if err != nil {
		return "", fmt.Errorf("target symbol context failed: %w", err)
	}
	return BuildBackground(factors, symbolContext, a.cfg.Belief), nil
}

// plan runs the optional planning call on the default client.
func (a *Agent) plan(ctx context.Context, st *loopState, em *events.Emitter) error {
	client, err := a.runtime.LLM.Default()
	if err != nil {
		return err
	}
	resp, err := llm.Call(ctx, client, &llm.GenerateInput{
		AgentName: a.cfg.AgentName,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: planSystemPrompt(a.pool.OutputLanguage)},
			{Role: llm.RoleUser, Content: planUserPrompt(st)},
		},
	})
	if err != nil {
		return err
	}
	st.plan = resp.Text
	em.Custom(map[string]any{"node": "plan", "plan_chars": len(st.plan)})
	return nil
}

// react runs the bounded tool loop. Selection failures and tool failures
// are observations, not errors: the loop records them and moves on to the
// final write.
func (a *Agent) react(ctx context.Context, triggerTime string, st *loopState, em *events.Emitter) {
	client, err := a.runtime.LLM.Default()
	if err != nil {
		a.logger.Error("no default LLM client for tool selection", "error", err)
		return
	}
	executor := tools.NewExecutor(st.registry, triggerTime)
	selector := tools.NewSelector(client, executor.Registry())

	maxStep := a.pool.MaxReactStep
	if maxStep <= 0 {
		maxStep = config.DefaultMaxReactStep
	}

	for step := 0; step < maxStep; step++ {
		if st.promptEstimate() > maxWriteResultChars {
			a.logger.Info("context budget reached, writing result", "step", step)
			return
		}

		selection, err := selector.Select(ctx, tools.SelectionInput{
			AgentName:       a.cfg.AgentName,
			Task:            st.task,
			Background:      st.background,
			Plan:            st.plan,
			ToolCallContext: st.toolCallContext,
			OutputLanguage:  a.pool.OutputLanguage,
		})
		if err != nil {
			// Exhausted parse retries: treat as "not enough info".
			a.logger.Warn("tool selection failed, writing result", "step", step, "error", err)
			return
		}
		if selection.IsFinalReport() {
			return
		}

		result := executor.Execute(ctx, selection.ToolName, selection.Properties)
		st.appendToolCall(selection, result)
		em.Custom(map[string]any{"node": "tool_call", "tool": selection.ToolName, "success": result.Success})
	}
}

// appendToolCall records the call/result pair as one JSON line.
func (st *loopState) appendToolCall(selection *tools.Selection, result *tools.Result) {
	line, err := json.Marshal(map[string]any{
		"tool_called": selection,
		"tool_result": result,
	})
	if err != nil {
		return
	}
	st.toolCallContext += string(line) + "\n"
}

// writeResult runs the final thinking-enabled call and validates its signal
// blocks, re-injecting parse failures up to maxWriteRetries.
func (a *Agent) writeResult(ctx context.Context, triggerTime string, st *loopState, em *events.Emitter) (*models.SignalArtifact, error) {
	client, err := a.runtime.LLM.Thinking()
	if err != nil {
		return nil, err
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: writeResultSystemPrompt(a.pool.OutputLanguage)},
		{Role: llm.RoleUser, Content: writeResultUserPrompt(st)},
	}

	var lastErr error
	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		resp, err := llm.Call(ctx, client, &llm.GenerateInput{
			AgentName: a.cfg.AgentName,
			Messages:  messages,
			Thinking:  true,
		})
		if err != nil {
			return nil, fmt.Errorf("write result LLM call failed: %w", err)
		}

		if _, parseErr := ParseSignals(a.cfg.AgentName, triggerTime, resp.Text); parseErr == nil {
			em.Custom(map[string]any{"node": "write_result", "result_chars": len(resp.Text)})
			return &models.SignalArtifact{
				AgentName:             a.cfg.AgentName,
				Task:                  st.task,
				TriggerTime:           triggerTime,
				Belief:                a.cfg.Belief,
				BackgroundInformation: st.background,
				FinalResult:           resp.Text,
				FinalResultThinking:   resp.ThinkingText,
			}, nil
		} else {
			lastErr = parseErr
			messages = append(messages,
				llm.Message{Role: llm.RoleAssistant, Content: resp.Text},
				llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf(
					"Your previous reply could not be parsed: %v. Reply again following the required <Output><signal>... format exactly.", parseErr)},
			)
		}
	}
	return nil, fmt.Errorf("write result failed after %d attempts: %w", maxWriteRetries, lastErr)
}
