package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfleet/quantfleet/pkg/models"
)

const triggerTime = "2025-01-06 09:00:00"

func TestTimeSanitizers(t *testing.T) {
	assert.Equal(t, "2025-01-06_09-00-00", SanitizeFactorTime(triggerTime))
	assert.Equal(t, "2025-01-06_09:00:00", SanitizeReportTime(triggerTime))
	assert.Equal(t, "2025-01-06090000", CompactTime(triggerTime))
}

func TestStoreLayout(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(store.Root(), "factors", "news_agent", "2025-01-06_09-00-00.json"),
		store.FactorPath("news_agent", triggerTime))
	assert.Equal(t, filepath.Join(store.Root(), "reports", "bull_agent", "2025-01-06_09:00:00.json"),
		store.ReportPath("bull_agent", triggerTime))
	assert.Equal(t, filepath.Join(store.Root(), "judger_scores", "scores_2025-01-06090000.json"),
		store.JudgerScoresPath(triggerTime))
	assert.Equal(t, filepath.Join(store.Root(), "final_result", "final_result_2025-01-06090000.json"),
		store.FinalResultPath(triggerTime))
}

func TestSaveFactorIsIdempotent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	first := &models.FactorArtifact{AgentName: "news_agent", TriggerTime: triggerTime, ContextString: "original"}
	require.NoError(t, store.SaveFactor(first))

	// A second submit for the same key must not clobber the stored copy.
	require.NoError(t, store.SaveFactor(&models.FactorArtifact{
		AgentName: "news_agent", TriggerTime: triggerTime, ContextString: "overwrite attempt",
	}))

	got, ok, err := store.LoadFactor("news_agent", triggerTime)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "original", got.ContextString)
}

func TestSaveJudgerScoresIsIdempotent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	first := &models.JudgerScoresArtifact{
		TriggerTime: triggerTime,
		Consensus:   map[string]float64{"bull_agent": 80},
	}
	require.NoError(t, store.SaveJudgerScores(first))
	require.NoError(t, store.SaveJudgerScores(&models.JudgerScoresArtifact{
		TriggerTime: triggerTime,
		Consensus:   map[string]float64{"bull_agent": 90},
	}))

	data, err := os.ReadFile(store.JudgerScoresPath(triggerTime))
	require.NoError(t, err)
	assert.Contains(t, string(data), "80")
	assert.NotContains(t, string(data), "90")
}

func TestSaveFinalResultIsIdempotent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.SaveFinalResult(&models.WeightResult{
		TriggerTime: triggerTime,
		Weights:     map[string]float64{"bull_agent": 1},
	}))
	require.NoError(t, store.SaveFinalResult(&models.WeightResult{
		TriggerTime: triggerTime,
		Weights:     map[string]float64{"bear_agent": 1},
	}))

	got, ok, err := store.LoadFinalResult(triggerTime)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]float64{"bull_agent": 1}, got.Weights)
}

func TestLoadMissingArtifact(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := store.LoadFactor("nobody", triggerTime)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = store.LoadReport("nobody", triggerTime)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = store.LoadFinalResult(triggerTime)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLatestFinalResult(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := store.LatestFinalResult()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveFinalResult(&models.WeightResult{TriggerTime: "2025-01-06 09:00:00"}))
	require.NoError(t, store.SaveFinalResult(&models.WeightResult{TriggerTime: "2025-01-07 09:00:00"}))

	got, ok, err := store.LatestFinalResult()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2025-01-07 09:00:00", got.TriggerTime)
}

func TestReportAgents(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.SaveReport(&models.SignalArtifact{AgentName: "bull_agent", TriggerTime: triggerTime}))
	require.NoError(t, store.SaveReport(&models.SignalArtifact{AgentName: "bear_agent", TriggerTime: triggerTime}))

	agents, err := store.ReportAgents()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bull_agent", "bear_agent"}, agents)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.SaveFinalResult(&models.WeightResult{TriggerTime: triggerTime}))

	entries, err := os.ReadDir(filepath.Join(store.Root(), "final_result"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "final_result_2025-01-06090000.json", entries[0].Name())
}
