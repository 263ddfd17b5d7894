package dataagent

import (
	"context"
	"fmt"

	"github.com/quantfleet/quantfleet/pkg/models"
)

// runState is the transient per-run state. It is owned by a single run and
// discarded after artifact submission.
type runState struct {
	triggerTime string
	// rows carry stable ids 1..N assigned here; byID indexes them.
	rows    []models.Document
	byID    map[int]models.Document
	batches [][]models.Document
}

// preprocess concatenates rows from all configured sources, drops rows
// with empty title or content, assigns stable integer ids, and slices the
// result into batchCount batches.
func (a *Agent) preprocess(ctx context.Context, triggerTime string) (*runState, error) {
	state := &runState{
		triggerTime: triggerTime,
		byID:        make(map[int]models.Document),
	}

	for _, key := range a.cfg.DataSourceList {
		src, err := a.runtime.Sources.Get(key)
		if err != nil {
			return nil, err
		}
		rows, err := src.GetData(ctx, triggerTime)
		if err != nil {
			return nil, fmt.Errorf("source %s failed: %w", key, err)
		}
		for _, row := range rows {
			if row.Empty() {
				continue
			}
			row.ID = len(state.rows) + 1
			state.rows = append(state.rows, row)
			state.byID[row.ID] = row
		}
	}

	if len(state.rows) == 0 {
		return state, nil
	}

	batchCount := a.cfg.BatchCount()
	batchSize := (len(state.rows) + batchCount - 1) / batchCount
	for start := 0; start < len(state.rows); start += batchSize {
		end := start + batchSize
		if end > len(state.rows) {
			end = len(state.rows)
		}
		state.batches = append(state.batches, state.rows[start:end])
	}
	return state, nil
}

// titleSelectionPerBatch derives how many rows survive the title filter.
func (a *Agent) titleSelectionPerBatch() int {
	n := a.cfg.MaxLLMContext / a.cfg.ContentCutoffLength
	if n < 1 {
		n = 1
	}
	return n
}

// summaryTargetTokens derives the per-batch summary budget.
func (a *Agent) summaryTargetTokens() int {
	n := a.cfg.MaxLLMContext / a.cfg.BatchCount()
	if n < 1 {
		n = 1
	}
	return n
}
