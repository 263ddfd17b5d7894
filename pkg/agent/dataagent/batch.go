package dataagent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/quantfleet/quantfleet/pkg/events"
	"github.com/quantfleet/quantfleet/pkg/llm"
	"github.com/quantfleet/quantfleet/pkg/models"
)

// batchOutcome is one batch's map-phase result. err is set when the batch
// failed; the reduce phase skips failed batches.
type batchOutcome struct {
	batchID    int
	summary    string
	references []models.Document
	err        error
}

// processBatches runs the per-batch pipeline (title filter → summarize)
// for every batch under the configured concurrency semaphore. All batches
// complete before it returns; outcomes are ordered by batch id.
func (a *Agent) processBatches(ctx context.Context, state *runState, em *events.Emitter) []batchOutcome {
	sem := semaphore.NewWeighted(int64(a.cfg.MaxConcurrentTasks))
	outcomes := make([]batchOutcome, len(state.batches))
	var wg sync.WaitGroup

	for i, batch := range state.batches {
		wg.Add(1)
		go func(batchID int, rows []models.Document) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				outcomes[batchID] = batchOutcome{batchID: batchID, err: err}
				return
			}
			defer sem.Release(1)

			outcome := a.processBatch(ctx, state, batchID, rows)
			outcomes[batchID] = outcome
			if outcome.err != nil {
				a.logger.Warn("batch failed", "batch", batchID, "error", outcome.err)
			}
		}(i, batch)
	}
	wg.Wait()

	for _, o := range outcomes {
		data := map[string]any{"node": "batch_process", "batch": o.batchID, "success": o.err == nil}
		if o.err != nil {
			data["error"] = o.err.Error()
		}
		em.Custom(data)
	}
	return outcomes
}

// processBatch runs title filter then content summarization for one batch.
func (a *Agent) processBatch(ctx context.Context, state *runState, batchID int, rows []models.Document) batchOutcome {
	client, err := a.llmClient()
	if err != nil {
		return batchOutcome{batchID: batchID, err: err}
	}

	selected, err := a.titleFilter(ctx, client, rows)
	if err != nil {
		return batchOutcome{batchID: batchID, err: err}
	}

	summary, refs, err := a.summarizeBatch(ctx, client, selected)
	if err != nil {
		return batchOutcome{batchID: batchID, err: err}
	}
	return batchOutcome{batchID: batchID, summary: summary, references: refs}
}

// titleFilter asks the LLM to keep the most relevant rows by title alone.
// Batches already at or under the selection budget skip the call.
func (a *Agent) titleFilter(ctx context.Context, client llm.Client, rows []models.Document) ([]models.Document, error) {
	budget := a.titleSelectionPerBatch()
	if len(rows) <= budget {
		return rows, nil
	}

	resp, err := llm.Call(ctx, client, &llm.GenerateInput{
		AgentName: a.cfg.AgentName,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: titleFilterSystemPrompt(a.cfg.BiasGoal, budget)},
			{Role: llm.RoleUser, Content: titleFilterUserPrompt(rows)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("title filter failed: %w", err)
	}

	ids := parseIDList(resp.Text, budget)
	if len(ids) == 0 {
		return nil, fmt.Errorf("title filter returned no usable ids: %q", resp.Text)
	}

	valid := make(map[int]bool, len(rows))
	for _, r := range rows {
		valid[r.ID] = true
	}
	var selected []models.Document
	for _, r := range rows {
		if ids[r.ID] && valid[r.ID] {
			selected = append(selected, r)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("title filter selected only out-of-batch ids")
	}
	return selected, nil
}

// summarizeBatch produces the batch summary and its cited references.
//
// Fast path: when the assembled doc context already fits the summary
// budget and no bias goal is set, the LLM is skipped and the raw content
// returned verbatim, with every row attached as a reference.
func (a *Agent) summarizeBatch(ctx context.Context, client llm.Client, rows []models.Document) (string, []models.Document, error) {
	docContext := renderDocs(rows, a.cfg.ContentCutoffLength)

	if len(docContext) <= a.summaryTargetTokens() && a.cfg.BiasGoal == "" {
		return docContext, append([]models.Document(nil), rows...), nil
	}

	resp, err := llm.Call(ctx, client, &llm.GenerateInput{
		AgentName: a.cfg.AgentName,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: summarySystemPrompt(a.cfg.BiasGoal, a.summaryTargetTokens())},
			{Role: llm.RoleUser, Content: docContext},
		},
	})
	if err != nil {
		return "", nil, fmt.Errorf("batch summarize failed: %w", err)
	}

	refs := citedDocuments(resp.Text, rows)
	return resp.Text, refs, nil
}

// renderDocs wraps each row as <doc id=N>, truncating bodies to the
// configured cutoff.
func renderDocs(rows []models.Document, cutoff int) string {
	var b strings.Builder
	for _, r := range rows {
		content := r.Content
		if len(content) > cutoff {
			content = content[:cutoff]
		}
		fmt.Fprintf(&b, "<doc id=%d>\ntitle: %s\npub_time: %s\n%s\n</doc>\n", r.ID, r.Title, r.PubTime, content)
	}
	return b.String()
}

// parseIDList extracts up to limit integer ids from a comma-separated
// reply, tolerating whitespace and stray prose around the list.
func parseIDList(text string, limit int) map[int]bool {
	ids := make(map[int]bool)
	for _, part := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n' || r == ' ' || r == '、'
	}) {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			continue
		}
		if len(ids) >= limit {
			break
		}
		ids[n] = true
	}
	return ids
}
