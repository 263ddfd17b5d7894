package dataagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/quantfleet/quantfleet/pkg/llm"
	"github.com/quantfleet/quantfleet/pkg/models"
)

// finalSummary merges the successful batch summaries into the factor text.
//
// Fast path: when the concatenation already fits the final budget and no
// bias goal is set, the LLM merge is skipped.
func (a *Agent) finalSummary(ctx context.Context, triggerTime string, state *runState, outcomes []batchOutcome) (*models.FactorArtifact, error) {
	var (
		parts     []string
		summaries []models.BatchSummary
		batchRefs [][]models.Document
	)
	for _, o := range outcomes {
		if o.err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("Batch %d Documents: %s", o.batchID+1, o.summary))
		summaries = append(summaries, models.BatchSummary{
			BatchID:    o.batchID + 1,
			Summary:    o.summary,
			References: o.references,
		})
		batchRefs = append(batchRefs, o.references)
	}

	merged := strings.Join(parts, "\n\n")
	contextString := merged

	if len(merged) > a.cfg.FinalTargetTokens || a.cfg.BiasGoal != "" {
		client, err := a.llmClient()
		if err != nil {
			return nil, err
		}
		resp, err := llm.Call(ctx, client, &llm.GenerateInput{
			AgentName: a.cfg.AgentName,
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: mergeSystemPrompt(a.cfg.BiasGoal, a.cfg.FinalTargetTokens)},
				{Role: llm.RoleUser, Content: merged},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("final merge failed: %w", err)
		}
		contextString = resp.Text
	}

	return &models.FactorArtifact{
		AgentName:      a.cfg.AgentName,
		TriggerTime:    triggerTime,
		SourceList:     a.cfg.DataSourceList,
		BiasGoal:       a.cfg.BiasGoal,
		ContextString:  contextString,
		References:     unionReferences(state.byID, batchRefs, contextString),
		BatchSummaries: summaries,
	}, nil
}
