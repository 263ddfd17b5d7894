// Package e2e wires the pipeline the way main does — configuration file,
// file-backed sources behind the sqlite cache, artifact store on disk — and
// drives it with a scripted LLM.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

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
	"github.com/quantfleet/quantfleet/pkg/workflow"
)

const triggerTime = "2025-01-06 09:00:00"

const signalReply = `<Output>
<signal>
<has_opportunity>yes</has_opportunity>
<action>buy</action>
<symbol_code>600519.SH</symbol_code>
<symbol_name>贵州茅台</symbol_name>
<probability>70</probability>
</signal>
</Output>`

// writeConfigFile lays out the config file plus the source dump the
// file-backed source will read.
func writeConfigFile(t *testing.T, dir string) string {
	t.Helper()

	yaml := fmt.Sprintf(`
system:
  artifact_dir: %s/artifacts
  cache_db: %s/cache.db
  source_data_dir: %s/data
  log_level: error
llm_providers:
  llm:
    model: test-model
data_agents:
  - agent_name: news_agent
    data_source_list: [cn.news]
research:
  tools: [final_report, price_info, search_news]
  react: true
  agents:
    - agent_name: bull_agent
      belief: momentum persists
contest:
  model_dir: ""
market:
  name: cn_market
  target_symbols: [600519.SH]
  custom_symbols:
    贵州茅台: 600519.SH
  holidays: ["2025-01-01"]
`, dir, dir, dir)

	path := filepath.Join(dir, "quantfleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	rows := []models.Document{
		{Title: "Chipmaker beats estimates", Content: "Revenue up 40% on datacenter demand.", PubTime: "2025-01-05 18:00:00"},
	}
	raw, err := json.Marshal(rows)
	require.NoError(t, err)
	dumpDir := filepath.Join(dir, "data", "cn.news")
	require.NoError(t, os.MkdirAll(dumpDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dumpDir, "2025-01-06_09-00-00.json"), raw, 0o644))

	return path
}

// buildRuntime mirrors main's wiring with the scripted client in place of
// real providers.
func buildRuntime(t *testing.T, cfg *config.Config, script *llmtest.ScriptedClient) (*agent.Runtime, *datasource.Cache) {
	t.Helper()

	provider := market.NewMemoryProvider(cfg.Market.Name, cfg.Market.TargetSymbols)
	for _, date := range cfg.Market.Holidays {
		provider.AddHoliday(date)
	}
	for name, code := range cfg.Market.CustomSymbols {
		provider.AddSymbol(name, code)
	}
	provider.SetPrice("600519.SH", "2025-01-03", market.Price{Open: 1500, Close: 1520})
	provider.SetPrice("600519.SH", "2025-01-06", market.Price{Open: 1525, Close: 1550})

	cache, err := datasource.OpenCache(cfg.System.CacheDB)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	sources := datasource.NewRegistry()
	for _, da := range cfg.DataAgents {
		for _, key := range da.DataSourceList {
			sources.Register(datasource.WithCache(datasource.NewFileSource(key, cfg.System.SourceDataDir), cache))
		}
	}

	store, err := artifact.NewStore(cfg.System.ArtifactDir)
	require.NoError(t, err)

	rt := &agent.Runtime{
		Config:  cfg,
		LLM:     script.Registry(),
		Market:  provider,
		Sources: sources,
		Tools: tools.NewRegistry(
			tools.FinalReportTool{},
			tools.NewPriceInfoTool(provider, cfg.Market.Name),
			tools.NewSearchNewsTool(sources, sources.Keys()),
		),
		Store: store,
		Bus:   events.NewBus(),
	}
	require.NoError(t, rt.Validate())
	return rt, cache
}

func scriptRun(script *llmtest.ScriptedClient) {
	// Data agent fast-paths without LLM calls; the research agent searches
	// the news source, then reports; five judges score.
	script.AddRouted("bull_agent", llmtest.ScriptEntry{Text: `<Output>{"tool_name":"search_news","properties":{"keyword":"Chipmaker"}}</Output>`})
	script.AddRouted("bull_agent", llmtest.ScriptEntry{Text: `<Output>{"tool_name":"final_report","properties":{}}</Output>`})
	script.AddRouted("bull_agent", llmtest.ScriptEntry{Text: signalReply})
	for i := 0; i < 5; i++ {
		script.AddRouted(fmt.Sprintf("judger_%d", i), llmtest.ScriptEntry{Text: "bull_agent: 85|well-sourced thesis"})
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(writeConfigFile(t, dir))
	require.NoError(t, err)

	// Defaults applied by the loader.
	assert.Equal(t, 5, cfg.Contest.WindowDays)
	assert.Equal(t, 5, cfg.Contest.NumJudgers)
	assert.Equal(t, 28000, cfg.DataAgents[0].MaxLLMContext)

	script := llmtest.NewScriptedClient()
	scriptRun(script)
	rt, cache := buildRuntime(t, cfg, script)

	result, err := workflow.NewCompany(rt).Run(context.Background(), triggerTime)
	require.NoError(t, err)

	require.Len(t, result.ResearchSignals, 1)
	assert.Equal(t, "600519.SH", result.ResearchSignals[0].SymbolCode)
	assert.Equal(t, models.StepStatusCompleted, result.StepResults[workflow.NodeDataTeam].Status)
	assert.Equal(t, models.StepStatusCompleted, result.StepResults[workflow.NodeResearchTeam].Status)
	assert.Equal(t, models.StepStatusCompleted, result.StepResults[workflow.NodeContest].Status)

	// The searched document reached the agent through the tool loop.
	sawObservation := false
	for _, input := range script.CapturedInputs() {
		for _, msg := range input.Messages {
			if strings.Contains(msg.Content, "[cn.news] Chipmaker beats estimates") {
				sawObservation = true
			}
		}
	}
	assert.True(t, sawObservation, "search_news rows should appear in a later prompt")

	// Artifact tree on disk, per the store layout.
	for _, path := range []string{
		rt.Store.FactorPath("news_agent", triggerTime),
		rt.Store.ReportPath("bull_agent", triggerTime),
		rt.Store.JudgerScoresPath(triggerTime),
		rt.Store.FinalResultPath(triggerTime),
	} {
		_, statErr := os.Stat(path)
		assert.NoError(t, statErr, path)
	}

	// The fetch went through the cache; the source dump is no longer needed.
	require.NoError(t, os.Remove(filepath.Join(dir, "data", "cn.news", "2025-01-06_09-00-00.json")))
	src, err := rt.Sources.Get("cn.news")
	require.NoError(t, err)
	rows, err := src.GetData(context.Background(), triggerTime)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Chipmaker beats estimates", rows[0].Title)

	cached, ok, err := cache.Get(context.Background(), "cn.news", triggerTime)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, cached, 1)
}

func TestPipelineSecondRunUsesStoredArtifacts(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(writeConfigFile(t, dir))
	require.NoError(t, err)

	script := llmtest.NewScriptedClient()
	scriptRun(script)
	rt, _ := buildRuntime(t, cfg, script)
	company := workflow.NewCompany(rt)

	_, err = company.Run(context.Background(), triggerTime)
	require.NoError(t, err)
	callsAfterFirst := script.CallCount()

	result, err := company.Run(context.Background(), triggerTime)
	require.NoError(t, err)
	require.Len(t, result.ResearchSignals, 1)
	assert.Equal(t, callsAfterFirst, script.CallCount(),
		"replayed run spends zero LLM credits, every stage short-circuits")

	weights, ok, err := rt.Store.LoadFinalResult(triggerTime)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.WeightResult.Weights, weights.Weights)
}
