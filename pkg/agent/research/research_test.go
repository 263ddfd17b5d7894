package research

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfleet/quantfleet/pkg/agent"
	"github.com/quantfleet/quantfleet/pkg/artifact"
	"github.com/quantfleet/quantfleet/pkg/config"
	"github.com/quantfleet/quantfleet/pkg/events"
	"github.com/quantfleet/quantfleet/pkg/llm"
	"github.com/quantfleet/quantfleet/pkg/llm/llmtest"
	"github.com/quantfleet/quantfleet/pkg/market"
	"github.com/quantfleet/quantfleet/pkg/models"
	"github.com/quantfleet/quantfleet/pkg/tools"
)

const testTriggerTime = "2025-01-06 09:00:00"

const validSignal = `<Output>
<signal>
<has_opportunity>yes</has_opportunity>
<action>buy</action>
<symbol_code>600519.SH</symbol_code>
<symbol_name>贵州茅台</symbol_name>
<evidence_list>
  <evidence>Strong quarterly revenue growth<time>2025-01-05</time><from_source>news_agent</from_source></evidence>
</evidence_list>
<limitations><limitation>Single-source confirmation</limitation></limitations>
<probability>72</probability>
</signal>
</Output>`

func newTestProvider() *market.MemoryProvider {
	p := market.NewMemoryProvider("cn_market", []string{"600519.SH"})
	p.AddSymbol("贵州茅台", "600519.SH")
	p.SetPrice("600519.SH", "2025-01-03", market.Price{Open: 1500, High: 1530, Low: 1490, Close: 1520, LimitPrice: 1650})
	p.SetPrice("600519.SH", "2025-01-06", market.Price{Open: 1525, High: 1560, Low: 1510, Close: 1550, LimitPrice: 1672})
	return p
}

func newTestRuntime(t *testing.T, script *llmtest.ScriptedClient) *agent.Runtime {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)
	provider := newTestProvider()
	return &agent.Runtime{
		Config: &config.Config{
			Market: config.MarketConfig{Name: "cn_market", TargetSymbols: []string{"600519.SH"}},
		},
		LLM:    script.Registry(),
		Market: provider,
		Tools:  tools.NewRegistry(tools.FinalReportTool{}, tools.NewPriceInfoTool(provider, "cn_market")),
		Store:  store,
		Bus:    events.NewBus(),
	}
}

func testPool() config.ResearchConfig {
	return config.ResearchConfig{
		Tools: []string{tools.FinalReportName, "price_info"},
		React: true,
	}
}

func TestRunShortCircuitsOnExistingReport(t *testing.T) {
	script := llmtest.NewScriptedClient()
	rt := newTestRuntime(t, script)
	require.NoError(t, rt.Store.SaveReport(&models.SignalArtifact{
		AgentName:   "bull_agent",
		TriggerTime: testTriggerTime,
		FinalResult: validSignal,
	}))

	a := New(config.ResearchAgentConfig{AgentName: "bull_agent"}, testPool(), rt)
	res, err := a.Run(context.Background(), testTriggerTime)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCached, res.Status)
	assert.Zero(t, script.CallCount(), "cached run must not touch the LLM")
}

func TestRunReactLoopThenWriteResult(t *testing.T) {
	script := llmtest.NewScriptedClient()
	script.AddText(`<Output>{"tool_name":"price_info","properties":{"symbol":"600519.SH"}}</Output>`)
	script.AddText(`<Output>{"tool_name":"final_report","properties":{}}</Output>`)
	script.AddSequential(llmtest.ScriptEntry{Chunks: []llm.Chunk{
		&llm.ThinkingChunk{Content: "price momentum is positive"},
		&llm.TextChunk{Content: validSignal},
		&llm.UsageChunk{InputTokens: 100, OutputTokens: 50, TotalTokens: 150},
	}})

	rt := newTestRuntime(t, script)
	a := New(config.ResearchAgentConfig{AgentName: "bull_agent", Belief: "momentum persists"}, testPool(), rt)

	res, err := a.Run(context.Background(), testTriggerTime)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, res.Status)
	assert.Equal(t, 3, script.CallCount(), "two selections and one write")

	report, ok, err := rt.Store.LoadReport("bull_agent", testTriggerTime)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, validSignal, report.FinalResult)
	assert.Equal(t, "price momentum is positive", report.FinalResultThinking)
	assert.Contains(t, report.BackgroundInformation, "momentum persists")

	// The tool observation must reach the write-result prompt.
	inputs := script.CapturedInputs()
	writePrompt := inputs[2].Messages[1].Content
	assert.Contains(t, writePrompt, `"tool_called"`)
	assert.Contains(t, writePrompt, "1525")
	assert.True(t, inputs[2].Thinking, "write result runs on the thinking channel")
}

func TestReactBoundedByMaxStep(t *testing.T) {
	script := llmtest.NewScriptedClient()
	// The agent would keep selecting tools forever; the cap stops it.
	script.AddText(`<Output>{"tool_name":"price_info","properties":{"symbol":"600519.SH"}}</Output>`)
	script.AddText(`<Output>{"tool_name":"price_info","properties":{"symbol":"600519.SH","date_diff":-1}}</Output>`)
	script.AddText(validSignal)

	rt := newTestRuntime(t, script)
	pool := testPool()
	pool.MaxReactStep = 2
	a := New(config.ResearchAgentConfig{AgentName: "bull_agent"}, pool, rt)

	res, err := a.Run(context.Background(), testTriggerTime)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, res.Status)
	assert.Equal(t, 3, script.CallCount(), "exactly maxReactStep selections plus one write")

	_, ok, err := rt.Store.LoadReport("bull_agent", testTriggerTime)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWriteResultRetriesMalformedOutput(t *testing.T) {
	script := llmtest.NewScriptedClient()
	script.AddText(`<Output>{"tool_name":"final_report","properties":{}}</Output>`)
	script.AddText("I think we should buy Moutai.") // no signal block
	script.AddText(validSignal)

	rt := newTestRuntime(t, script)
	a := New(config.ResearchAgentConfig{AgentName: "bull_agent"}, testPool(), rt)

	res, err := a.Run(context.Background(), testTriggerTime)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, res.Status)
	assert.Equal(t, 3, script.CallCount())

	inputs := script.CapturedInputs()
	retryPrompt := inputs[2].Messages[len(inputs[2].Messages)-1].Content
	assert.Contains(t, retryPrompt, "could not be parsed")
}

func TestPlanStepFeedsSelection(t *testing.T) {
	script := llmtest.NewScriptedClient()
	script.AddText("1. Check the latest price. 2. Decide.")
	script.AddText(`<Output>{"tool_name":"final_report","properties":{}}</Output>`)
	script.AddText(validSignal)

	rt := newTestRuntime(t, script)
	pool := testPool()
	pool.Plan = true
	a := New(config.ResearchAgentConfig{AgentName: "bull_agent"}, pool, rt)

	res, err := a.Run(context.Background(), testTriggerTime)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, res.Status)

	inputs := script.CapturedInputs()
	require.Len(t, inputs, 3)
	assert.Contains(t, inputs[1].Messages[1].Content, "Check the latest price")
}

func TestParseSignals(t *testing.T) {
	signals, err := ParseSignals("bull_agent", testTriggerTime, validSignal)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, "bull_agent", sig.AgentName)
	assert.Equal(t, models.OpportunityYes, sig.HasOpportunity)
	assert.Equal(t, models.ActionBuy, sig.Action)
	assert.Equal(t, "600519.SH", sig.SymbolCode)
	assert.Equal(t, "贵州茅台", sig.SymbolName)
	assert.Equal(t, 72, sig.Probability)
	require.Len(t, sig.EvidenceList, 1)
	assert.Equal(t, "Strong quarterly revenue growth", sig.EvidenceList[0].Description)
	assert.Equal(t, "2025-01-05", sig.EvidenceList[0].Time)
	assert.Equal(t, "news_agent", sig.EvidenceList[0].FromSource)
	assert.Equal(t, []string{"Single-source confirmation"}, sig.Limitations)
	assert.True(t, sig.Actionable())
}

func TestParseSignalsRejectsMalformed(t *testing.T) {
	_, err := ParseSignals("a", testTriggerTime, "no blocks here")
	assert.Error(t, err)

	_, err = ParseSignals("a", testTriggerTime, "<signal><has_opportunity>maybe</has_opportunity></signal>")
	assert.Error(t, err)

	_, err = ParseSignals("a", testTriggerTime, "<signal><has_opportunity>yes</has_opportunity><action>buy</action></signal>")
	assert.Error(t, err, "opportunity without a symbol is rejected")
}

func TestParseSignalsHoldSignal(t *testing.T) {
	signals, err := ParseSignals("a", testTriggerTime,
		"<Output><signal><has_opportunity>no</has_opportunity><action>HOLD</action></signal></Output>")
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.False(t, signals[0].Actionable())
}

func TestFixSignalSymbols(t *testing.T) {
	provider := newTestProvider()
	signals := []models.ParsedSignal{
		{HasOpportunity: models.OpportunityYes, Action: models.ActionBuy, SymbolName: "贵州茅台"},
		{HasOpportunity: models.OpportunityNo, Action: models.ActionHold},
	}

	fixed := FixSignalSymbols(provider, "cn_market", signals)
	assert.Equal(t, "600519.SH", fixed[0].SymbolCode)
	assert.Equal(t, "贵州茅台", fixed[0].SymbolName)
	assert.Empty(t, fixed[1].SymbolCode, "non-opportunity signals are left alone")
}

func TestBuildBackground(t *testing.T) {
	factors := []*models.FactorArtifact{
		{AgentName: "news_agent", ContextString: "Revenue is accelerating [1]."},
		{AgentName: "flow_agent", ContextString: "Northbound inflows picked up [2]."},
	}
	out := BuildBackground(factors, "- 600519.SH 贵州茅台: prev close 1520", "momentum persists")

	assert.Contains(t, out, "<global_summary>\n<source>news_agent</source>\nRevenue is accelerating [1].\n</global_summary>")
	assert.Contains(t, out, "<source>flow_agent</source>")
	assert.Contains(t, out, "Target symbols:")
	assert.Contains(t, out, "momentum persists")
}
