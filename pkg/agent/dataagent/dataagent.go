// Package dataagent implements the data-analysis agent: a hierarchical
// batched map-reduce summarizer that distills raw document rows into a
// compact, cite-referenced factor text.
//
// Graph: initArtifact → [exists? submit : preprocess → batchProcess →
// finalSummary → submit]. Batches run concurrently under a semaphore; a
// failed batch is recorded but does not abort the agent.
package dataagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quantfleet/quantfleet/pkg/agent"
	"github.com/quantfleet/quantfleet/pkg/config"
	"github.com/quantfleet/quantfleet/pkg/events"
	"github.com/quantfleet/quantfleet/pkg/llm"
	"github.com/quantfleet/quantfleet/pkg/models"
)

// ErrAllBatchesFailed marks a run where no batch produced a summary; no
// artifact is written and the caller sees a missing factor.
var ErrAllBatchesFailed = errors.New("all batches failed")

// Agent is one configured data-analysis agent.
type Agent struct {
	cfg     config.DataAgentConfig
	runtime *agent.Runtime
	logger  *slog.Logger
}

// New creates a data agent from its config entry.
func New(cfg config.DataAgentConfig, runtime *agent.Runtime) *Agent {
	return &Agent{
		cfg:     cfg.Normalized(),
		runtime: runtime,
		logger:  slog.Default().With("component", "data-agent", "agent", cfg.AgentName),
	}
}

// Name implements agent.Runner.
func (a *Agent) Name() string { return a.cfg.AgentName }

// Run implements agent.Runner.
func (a *Agent) Run(ctx context.Context, triggerTime string) (*agent.Result, error) {
	em := events.NewEmitter(a.runtime.Bus, "data_agent", a.cfg.AgentName, triggerTime)
	em.ChainStart(map[string]any{"trigger_time": triggerTime})

	result, err := a.run(ctx, triggerTime, em)
	if err != nil {
		// Infrastructure failure: chain end still fires.
		em.ChainEnd(map[string]any{"error": err.Error()})
		return nil, err
	}
	em.ChainEnd(map[string]any{"status": string(result.Status)})
	return result, nil
}

func (a *Agent) run(ctx context.Context, triggerTime string, em *events.Emitter) (*agent.Result, error) {
	// initArtifact: an existing artifact wins, no LLM or source touched.
	if _, ok, err := a.runtime.Store.LoadFactor(a.cfg.AgentName, triggerTime); err != nil {
		return nil, err
	} else if ok {
		a.logger.Info("factor artifact exists, short-circuiting", "trigger_time", triggerTime)
		return &agent.Result{AgentName: a.cfg.AgentName, Status: agent.StatusCached}, nil
	}

	state, err := a.preprocess(ctx, triggerTime)
	if err != nil {
		a.logger.Error("preprocess failed", "error", err)
		return &agent.Result{AgentName: a.cfg.AgentName, Status: agent.StatusFailed, Err: err}, nil
	}
	em.Custom(map[string]any{"node": "preprocess", "rows": len(state.rows), "batches": len(state.batches)})

	if len(state.rows) == 0 {
		// Zero documents still produce an (empty) artifact.
		artifact := a.emptyArtifact(triggerTime)
		if err := a.runtime.Store.SaveFactor(artifact); err != nil {
			return nil, err
		}
		return &agent.Result{AgentName: a.cfg.AgentName, Status: agent.StatusCompleted}, nil
	}

	summaries := a.processBatches(ctx, state, em)

	succeeded := 0
	for _, s := range summaries {
		if s.err == nil {
			succeeded++
		}
	}
	if succeeded == 0 {
		a.logger.Error("no batch produced a summary, skipping artifact", "trigger_time", triggerTime)
		return &agent.Result{AgentName: a.cfg.AgentName, Status: agent.StatusFailed, Err: ErrAllBatchesFailed}, nil
	}

	factor, err := a.finalSummary(ctx, triggerTime, state, summaries)
	if err != nil {
		a.logger.Error("final summary failed", "error", err)
		return &agent.Result{AgentName: a.cfg.AgentName, Status: agent.StatusFailed, Err: err}, nil
	}
	em.Custom(map[string]any{"node": "final_summary", "references": len(factor.References)})

	if err := a.runtime.Store.SaveFactor(factor); err != nil {
		return nil, fmt.Errorf("failed to persist factor: %w", err)
	}
	return &agent.Result{AgentName: a.cfg.AgentName, Status: agent.StatusCompleted}, nil
}

func (a *Agent) emptyArtifact(triggerTime string) *models.FactorArtifact {
	return &models.FactorArtifact{
		AgentName:      a.cfg.AgentName,
		TriggerTime:    triggerTime,
		SourceList:     a.cfg.DataSourceList,
		BiasGoal:       a.cfg.BiasGoal,
		ContextString:  "",
		References:     []models.Document{},
		BatchSummaries: []models.BatchSummary{},
	}
}

// llmClient returns the general-purpose client.
func (a *Agent) llmClient() (llm.Client, error) {
	return a.runtime.LLM.Default()
}
