package contest

import (
	"sort"

	"github.com/quantfleet/quantfleet/pkg/models"
)

// AllocateWeights turns consensus scores and historical returns into
// portfolio weights. Composite per actionable signal is
// consensus * (1 + 0.5*return) when the return is positive, otherwise 0;
// positive composites are normalized to sum to 1. Signals without a
// consensus (zero successful judges) are dropped.
func AllocateWeights(signals []models.ParsedSignal, consensus, returns map[string]float64) map[string]float64 {
	weights := make(map[string]float64)
	composites := make(map[string]float64)
	total := 0.0

	for _, sig := range signals {
		if !sig.Actionable() {
			continue
		}
		score, ok := consensus[sig.AgentName]
		if !ok {
			continue
		}
		weights[sig.AgentName] = 0

		ret := returns[sig.AgentName]
		if ret <= 0 {
			continue
		}
		c := score * (1 + 0.5*ret)
		composites[sig.AgentName] = c
		total += c
	}

	if total > 0 {
		for name, c := range composites {
			weights[name] = c / total
		}
	}
	return weights
}

// TopSignals returns up to n signal names with positive weight, heaviest
// first.
func TopSignals(weights map[string]float64, n int) []string {
	type entry struct {
		name   string
		weight float64
	}
	var entries []entry
	for name, w := range weights {
		if w > 0 {
			entries = append(entries, entry{name, w})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].weight != entries[j].weight {
			return entries[i].weight > entries[j].weight
		}
		return entries[i].name < entries[j].name
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.name
	}
	return out
}
