package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfleet/quantfleet/pkg/agent"
	"github.com/quantfleet/quantfleet/pkg/artifact"
	"github.com/quantfleet/quantfleet/pkg/config"
	"github.com/quantfleet/quantfleet/pkg/datasource"
	"github.com/quantfleet/quantfleet/pkg/events"
	"github.com/quantfleet/quantfleet/pkg/llm/llmtest"
	"github.com/quantfleet/quantfleet/pkg/market"
	"github.com/quantfleet/quantfleet/pkg/models"
	"github.com/quantfleet/quantfleet/pkg/tools"
)

const testTriggerTime = "2025-01-06 09:00:00"

const researchSignal = `<Output>
<signal>
<has_opportunity>yes</has_opportunity>
<action>buy</action>
<symbol_code>600519.SH</symbol_code>
<symbol_name>贵州茅台</symbol_name>
<probability>65</probability>
</signal>
</Output>`

func newTestRuntime(t *testing.T, script *llmtest.ScriptedClient) *agent.Runtime {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)

	provider := market.NewMemoryProvider("cn_market", []string{"600519.SH"})
	provider.AddSymbol("贵州茅台", "600519.SH")
	provider.SetPrice("600519.SH", "2025-01-03", market.Price{Open: 1500, Close: 1520})
	provider.SetPrice("600519.SH", "2025-01-06", market.Price{Open: 1525, Close: 1550})

	rows := []models.Document{
		{Title: "Chipmaker beats estimates", Content: "Revenue up 40%.", PubTime: "2025-01-05 18:00:00"},
	}

	rt := &agent.Runtime{
		Config: &config.Config{
			DataAgents: []config.DataAgentConfig{
				{AgentName: "news_agent", DataSourceList: []string{"test.news"}},
			},
			Research: config.ResearchConfig{
				Tools: []string{tools.FinalReportName, "price_info"},
				React: true,
				Agents: []config.ResearchAgentConfig{
					{AgentName: "bull_agent", Belief: "momentum persists"},
				},
			},
			Market: config.MarketConfig{Name: "cn_market", TargetSymbols: []string{"600519.SH"}},
		},
		LLM:     script.Registry(),
		Market:  provider,
		Sources: datasource.NewRegistry(datasource.NewStaticSource("test.news", rows)),
		Tools:   tools.NewRegistry(tools.FinalReportTool{}, tools.NewPriceInfoTool(provider, "cn_market")),
		Store:   store,
		Bus:     events.NewBus(),
	}
	require.NoError(t, rt.Validate())
	return rt
}

func scriptHappyPath(script *llmtest.ScriptedClient) {
	// Data agent fast-paths without LLM calls; research selects one tool
	// then reports; five judges score.
	script.AddRouted("bull_agent", llmtest.ScriptEntry{Text: `<Output>{"tool_name":"price_info","properties":{"symbol":"600519.SH"}}</Output>`})
	script.AddRouted("bull_agent", llmtest.ScriptEntry{Text: `<Output>{"tool_name":"final_report","properties":{}}</Output>`})
	script.AddRouted("bull_agent", llmtest.ScriptEntry{Text: researchSignal})
	for i := 0; i < 5; i++ {
		script.AddRouted(fmt.Sprintf("judger_%d", i), llmtest.ScriptEntry{Text: "bull_agent: 80|clear thesis"})
	}
}

func TestCompanyRunHappyPath(t *testing.T) {
	script := llmtest.NewScriptedClient()
	scriptHappyPath(script)
	rt := newTestRuntime(t, script)

	result, err := NewCompany(rt).Run(context.Background(), testTriggerTime)
	require.NoError(t, err)

	assert.Len(t, result.DataFactors, 1)
	assert.Len(t, result.ResearchSignals, 1)
	assert.Equal(t, "600519.SH", result.ResearchSignals[0].SymbolCode)
	assert.Equal(t, models.StepStatusCompleted, result.StepResults[NodeDataTeam].Status)
	assert.Equal(t, models.StepStatusCompleted, result.StepResults[NodeResearchTeam].Status)
	assert.Equal(t, models.StepStatusCompleted, result.StepResults[NodeContest].Status)
	require.NotNil(t, result.WeightResult)
	// No reward history yet, so no positive composite.
	assert.Zero(t, result.WeightResult.Weights["bull_agent"])

	_, ok, err := rt.Store.LoadFactor("news_agent", testTriggerTime)
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = rt.Store.LoadReport("bull_agent", testTriggerTime)
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = rt.Store.LoadFinalResult(testTriggerTime)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompanyRunIdempotent(t *testing.T) {
	script := llmtest.NewScriptedClient()
	scriptHappyPath(script)
	rt := newTestRuntime(t, script)
	company := NewCompany(rt)

	_, err := company.Run(context.Background(), testTriggerTime)
	require.NoError(t, err)
	callsAfterFirst := script.CallCount()

	result, err := company.Run(context.Background(), testTriggerTime)
	require.NoError(t, err)
	assert.Len(t, result.DataFactors, 1)
	assert.Len(t, result.ResearchSignals, 1)
	assert.Equal(t, callsAfterFirst, script.CallCount(),
		"second run serves stored artifacts end to end, zero LLM calls")
}

func TestCompanyEventOrdering(t *testing.T) {
	script := llmtest.NewScriptedClient()
	scriptHappyPath(script)
	rt := newTestRuntime(t, script)

	ch, cancel := rt.Bus.Subscribe()
	defer cancel()

	_, err := NewCompany(rt).Run(context.Background(), testTriggerTime)
	require.NoError(t, err)
	rt.Bus.Close()

	var received []events.Event
	for ev := range ch {
		received = append(received, ev)
	}

	lastDataEnd, firstResearchStart, firstContestStart, lastResearchEnd := -1, -1, -1, -1
	for i, ev := range received {
		switch {
		case ev.Name == "data_agent" && ev.Kind == events.KindChainEnd:
			lastDataEnd = i
		case ev.Name == "research_agent" && ev.Kind == events.KindChainStart && firstResearchStart == -1:
			firstResearchStart = i
		case ev.Name == "research_agent" && ev.Kind == events.KindChainEnd:
			lastResearchEnd = i
		case ev.Name == NodeContest && ev.Kind == events.KindChainStart && firstContestStart == -1:
			firstContestStart = i
		}
	}
	require.NotEqual(t, -1, lastDataEnd)
	require.NotEqual(t, -1, firstResearchStart)
	require.NotEqual(t, -1, firstContestStart)
	assert.Less(t, lastDataEnd, firstResearchStart, "research starts only after all data agents end")
	assert.Less(t, lastResearchEnd, firstContestStart, "contest starts only after all research agents end")
}

func TestCompanyForwardsAgentEvents(t *testing.T) {
	script := llmtest.NewScriptedClient()
	scriptHappyPath(script)
	rt := newTestRuntime(t, script)

	ch, cancel := rt.Bus.Subscribe()
	defer cancel()

	_, err := NewCompany(rt).Run(context.Background(), testTriggerTime)
	require.NoError(t, err)
	rt.Bus.Close()

	sawToolCall, sawDataAgent := false, false
	for ev := range ch {
		if ev.Name == "research_agent" && ev.AgentName == "bull_agent" && ev.Kind == events.KindCustom {
			sawToolCall = true
		}
		if ev.Name == "data_agent" && ev.AgentName == "news_agent" {
			sawDataAgent = true
		}
	}
	assert.True(t, sawToolCall, "agent events reach the shared bus tagged with the agent name")
	assert.True(t, sawDataAgent)
}

func TestCompanyToleratesAgentFailure(t *testing.T) {
	script := llmtest.NewScriptedClient()
	// Research agent: selection succeeds, write result fails three times.
	script.AddRouted("bull_agent", llmtest.ScriptEntry{Text: `<Output>{"tool_name":"final_report","properties":{}}</Output>`})
	for i := 0; i < 3; i++ {
		script.AddRouted("bull_agent", llmtest.ScriptEntry{Text: "not a signal"})
	}
	for i := 0; i < 5; i++ {
		script.AddRouted(fmt.Sprintf("judger_%d", i), llmtest.ScriptEntry{Error: fmt.Errorf("nothing to judge")})
	}
	rt := newTestRuntime(t, script)

	result, err := NewCompany(rt).Run(context.Background(), testTriggerTime)
	require.NoError(t, err, "agent failures degrade the run, they do not abort it")
	assert.Equal(t, models.StepStatusFailed, result.StepResults[NodeResearchTeam].Status)
	assert.Empty(t, result.ResearchSignals)
	require.NotNil(t, result.WeightResult)
	assert.Empty(t, result.WeightResult.Weights)
}

func TestManagerTracksRuns(t *testing.T) {
	script := llmtest.NewScriptedClient()
	scriptHappyPath(script)
	rt := newTestRuntime(t, script)
	m := NewManager(NewCompany(rt))

	run, err := m.Start(context.Background(), testTriggerTime)
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, run.Status)

	require.Eventually(t, func() bool {
		got, ok := m.Get(run.ID)
		return ok && got.Status == RunStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	got, ok := m.Get(run.ID)
	require.True(t, ok)
	require.NotNil(t, got.Result)
	assert.Len(t, got.Result.DataFactors, 1)
	assert.Len(t, m.List(), 1)

	// Finished manager accepts the next trigger.
	run2, err := m.Start(context.Background(), "2025-01-07 09:00:00")
	require.NoError(t, err)

	// Let the second run finish before the test's TempDir is cleaned up.
	require.Eventually(t, func() bool {
		got, ok := m.Get(run2.ID)
		return ok && got.Status != RunStatusRunning
	}, 5*time.Second, 10*time.Millisecond)
}