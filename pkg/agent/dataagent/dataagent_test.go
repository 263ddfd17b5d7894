package dataagent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfleet/quantfleet/pkg/agent"
	"github.com/quantfleet/quantfleet/pkg/artifact"
	"github.com/quantfleet/quantfleet/pkg/config"
	"github.com/quantfleet/quantfleet/pkg/datasource"
	"github.com/quantfleet/quantfleet/pkg/events"
	"github.com/quantfleet/quantfleet/pkg/llm/llmtest"
	"github.com/quantfleet/quantfleet/pkg/models"
)

const testTriggerTime = "2025-01-06 09:00:00"

func newTestRuntime(t *testing.T, script *llmtest.ScriptedClient, rows []models.Document) *agent.Runtime {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)
	return &agent.Runtime{
		Config:  &config.Config{},
		LLM:     script.Registry(),
		Sources: datasource.NewRegistry(datasource.NewStaticSource("test.news", rows)),
		Store:   store,
		Bus:     events.NewBus(),
	}
}

func testRows() []models.Document {
	return []models.Document{
		{Title: "Chipmaker beats estimates", Content: "Quarterly revenue up 40% on datacenter demand.", PubTime: "2025-01-05 18:00:00"},
		{Title: "Regulator opens probe", Content: "Antitrust review of the pending merger announced.", PubTime: "2025-01-05 20:30:00"},
	}
}

func TestRunShortCircuitsOnExistingArtifact(t *testing.T) {
	script := llmtest.NewScriptedClient()
	rt := newTestRuntime(t, script, testRows())
	cfg := config.DataAgentConfig{AgentName: "news_agent", DataSourceList: []string{"test.news"}}

	require.NoError(t, rt.Store.SaveFactor(&models.FactorArtifact{
		AgentName:   "news_agent",
		TriggerTime: testTriggerTime,
	}))

	res, err := New(cfg, rt).Run(context.Background(), testTriggerTime)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCached, res.Status)
	assert.Zero(t, script.CallCount(), "cached run must not touch the LLM")
}

func TestRunEmptySourceProducesEmptyArtifact(t *testing.T) {
	script := llmtest.NewScriptedClient()
	rt := newTestRuntime(t, script, nil)
	cfg := config.DataAgentConfig{AgentName: "news_agent", DataSourceList: []string{"test.news"}}

	res, err := New(cfg, rt).Run(context.Background(), testTriggerTime)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, res.Status)
	assert.Zero(t, script.CallCount())

	factor, ok, err := rt.Store.LoadFactor("news_agent", testTriggerTime)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, factor.ContextString)
	assert.Empty(t, factor.References)
}

func TestRunFastPathSkipsLLM(t *testing.T) {
	script := llmtest.NewScriptedClient()
	rt := newTestRuntime(t, script, testRows())
	cfg := config.DataAgentConfig{AgentName: "news_agent", DataSourceList: []string{"test.news"}}

	res, err := New(cfg, rt).Run(context.Background(), testTriggerTime)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, res.Status)
	assert.Zero(t, script.CallCount(), "content under budget needs no LLM calls")

	factor, ok, err := rt.Store.LoadFactor("news_agent", testTriggerTime)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, factor.ContextString, "Chipmaker beats estimates")
	assert.Len(t, factor.References, 2, "fast path keeps every row as reference")
}

func TestRunSummarizesAndMergesWithBiasGoal(t *testing.T) {
	script := llmtest.NewScriptedClient()
	script.AddText("Datacenter revenue accelerating [1]; merger under review [2].")
	script.AddText("Net bullish on semis [1].")

	rt := newTestRuntime(t, script, testRows())
	cfg := config.DataAgentConfig{
		AgentName:      "news_agent",
		DataSourceList: []string{"test.news"},
		BiasGoal:       "semiconductor supply chain",
		// One batch keeps call order deterministic.
		CreditsPerBatch:  1,
		LLMCallsPerBatch: 2,
	}

	res, err := New(cfg, rt).Run(context.Background(), testTriggerTime)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, res.Status)
	assert.Equal(t, 2, script.CallCount(), "one summarize call and one merge call")

	factor, ok, err := rt.Store.LoadFactor("news_agent", testTriggerTime)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Net bullish on semis [1].", factor.ContextString)
	require.Len(t, factor.BatchSummaries, 1)
	assert.Len(t, factor.BatchSummaries[0].References, 2, "batch summary cites both documents")
	assert.Len(t, factor.References, 2, "union keeps batch references even when the merge cites fewer")
}

func TestRunAllBatchesFailed(t *testing.T) {
	script := llmtest.NewScriptedClient()
	script.AddSequential(llmtest.ScriptEntry{Error: errors.New("provider down")})

	rt := newTestRuntime(t, script, testRows())
	cfg := config.DataAgentConfig{
		AgentName:        "news_agent",
		DataSourceList:   []string{"test.news"},
		BiasGoal:         "anything",
		CreditsPerBatch:  1,
		LLMCallsPerBatch: 2,
	}

	res, err := New(cfg, rt).Run(context.Background(), testTriggerTime)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrAllBatchesFailed)

	_, ok, err := rt.Store.LoadFactor("news_agent", testTriggerTime)
	require.NoError(t, err)
	assert.False(t, ok, "failed run must not write an artifact")
}

func TestTitleFilterNarrowsBatch(t *testing.T) {
	rows := []models.Document{
		{Title: "Earnings beat", Content: "strong quarter", PubTime: "2025-01-05 10:00:00"},
		{Title: "Celebrity gossip", Content: "irrelevant", PubTime: "2025-01-05 11:00:00"},
		{Title: "Policy shift", Content: "rate path changed", PubTime: "2025-01-05 12:00:00"},
	}
	script := llmtest.NewScriptedClient()
	script.AddText("1, 3")
	script.AddText("Earnings and policy both supportive [1][3].")
	script.AddText("Macro tailwinds dominate [1][3].")

	rt := newTestRuntime(t, script, rows)
	cfg := config.DataAgentConfig{
		AgentName:        "news_agent",
		DataSourceList:   []string{"test.news"},
		BiasGoal:         "macro",
		CreditsPerBatch:  1,
		LLMCallsPerBatch: 2,
		// Budget of two titles forces the filter call.
		MaxLLMContext:       4000,
		ContentCutoffLength: 2000,
	}

	res, err := New(cfg, rt).Run(context.Background(), testTriggerTime)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, res.Status)

	inputs := script.CapturedInputs()
	require.Len(t, inputs, 3, "title filter, summarize, merge")
	summarizeDocs := inputs[1].Messages[1].Content
	assert.Contains(t, summarizeDocs, "<doc id=1>")
	assert.NotContains(t, summarizeDocs, "<doc id=2>", "filtered row must not reach summarization")
	assert.Contains(t, summarizeDocs, "<doc id=3>")
}

func TestParseIDList(t *testing.T) {
	ids := parseIDList("Sure: 3, 1,\n7、2 and noise", 3)
	assert.Equal(t, map[int]bool{3: true, 1: true, 7: true}, ids)

	assert.Empty(t, parseIDList("no numbers here", 5))
}

func TestCitedIDs(t *testing.T) {
	assert.Equal(t, []int{1, 4, 12}, CitedIDs("a [4] b [1] c [12] d [4]"))
	assert.Empty(t, CitedIDs("no citations"))
}

func TestUnionReferences(t *testing.T) {
	d1 := models.Document{ID: 1, Title: "one"}
	d2 := models.Document{ID: 2, Title: "two"}
	d3 := models.Document{ID: 3, Title: "three"}
	byID := map[int]models.Document{1: d1, 2: d2, 3: d3}

	refs := unionReferences(byID, [][]models.Document{{d2}, {d2, d1}}, "final text cites [3] and [9]")
	require.Len(t, refs, 3)
	assert.Equal(t, []models.Document{d1, d2, d3}, refs)
}

func TestBatchBudgets(t *testing.T) {
	a := New(config.DataAgentConfig{AgentName: "x"}, nil)
	assert.Equal(t, 6, a.cfg.BatchCount())
	assert.Equal(t, 14, a.titleSelectionPerBatch())
	assert.Equal(t, 4666, a.summaryTargetTokens())
}
