package contest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/quantfleet/quantfleet/pkg/agent/research"
	"github.com/quantfleet/quantfleet/pkg/artifact"
	"github.com/quantfleet/quantfleet/pkg/market"
	"github.com/quantfleet/quantfleet/pkg/models"
)

// MaxAbsReward rejects one-day returns beyond ±40%: in a limit-up/down
// market those are halts or data glitches, not tradeable moves.
const MaxAbsReward = 0.40

// ErrRewardOutlier marks a return rejected by the magnitude filter.
var ErrRewardOutlier = errors.New("reward outside plausible range")

// SignalReward computes the realized one-day return of a signal: open at
// its trigger date to open at the next trading day, sign-inverted for sell.
func SignalReward(ctx context.Context, provider market.Provider, marketName string, sig models.ParsedSignal) (float64, error) {
	if !sig.Actionable() {
		return 0, fmt.Errorf("signal from %s is not actionable", sig.AgentName)
	}
	entry, err := provider.GetSymbolPrice(ctx, marketName, sig.SymbolCode, sig.TriggerTime, 0)
	if err != nil {
		return 0, err
	}
	exit, err := provider.GetSymbolPrice(ctx, marketName, sig.SymbolCode, sig.TriggerTime, 1)
	if err != nil {
		return 0, err
	}
	if entry.Open == 0 {
		return 0, fmt.Errorf("zero entry open for %s", sig.SymbolCode)
	}

	r := (exit.Open - entry.Open) / entry.Open
	if sig.Action == models.ActionSell {
		r = -r
	}
	if math.Abs(r) > MaxAbsReward {
		return 0, fmt.Errorf("%w: %.4f for %s", ErrRewardOutlier, r, sig.SymbolCode)
	}
	return r, nil
}

// HistoryReturns computes the agent's realized daily rewards over the last
// windowDays trading days, oldest first. Days with no stored report, no
// actionable signal, or a rejected reward are NaN; callers impute or skip.
func HistoryReturns(ctx context.Context, store *artifact.Store, provider market.Provider, marketName, agentName, triggerTime string, windowDays int) []float64 {
	out := make([]float64, windowDays)
	for i := range out {
		out[i] = math.NaN()
	}

	clock := clockOf(triggerTime)
	cursor := triggerTime
	for i := windowDays - 1; i >= 0; i-- {
		date, err := provider.PreviousTradingDate(cursor)
		if err != nil {
			break
		}
		cursor = date + " " + clock

		report, ok, err := store.LoadReport(agentName, cursor)
		if err != nil || !ok {
			continue
		}
		signals, err := research.ParseSignals(agentName, cursor, report.FinalResult)
		if err != nil {
			continue
		}
		signals = research.FixSignalSymbols(provider, marketName, signals)
		for _, sig := range signals {
			if !sig.Actionable() {
				continue
			}
			if r, err := SignalReward(ctx, provider, marketName, sig); err == nil {
				out[i] = r
			}
			break
		}
	}
	return out
}

// MeanValidReturn averages the non-NaN entries; ok is false when the
// window holds no valid day.
func MeanValidReturn(history []float64) (float64, bool) {
	sum, n := 0.0, 0
	for _, v := range history {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// clockOf returns the time-of-day part of a trigger time, defaulting to
// market open.
func clockOf(triggerTime string) string {
	if _, clock, ok := strings.Cut(triggerTime, " "); ok {
		return clock
	}
	return "09:00:00"
}
