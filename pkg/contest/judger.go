// Package contest implements the daily signal contest: an ensemble of LLM
// judges scores every research signal, historical rewards and a trained
// predictor rank the agents, and the optimizer allocates portfolio weights.
package contest

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/quantfleet/quantfleet/pkg/config"
	"github.com/quantfleet/quantfleet/pkg/llm"
	"github.com/quantfleet/quantfleet/pkg/models"
)

// JudgeInput is one signal presented to the judge ensemble.
type JudgeInput struct {
	Signal models.ParsedSignal
	// Thinking is the research agent's reasoning channel, shown to judges.
	Thinking string
	// HistoricalReturn is the agent's mean realized return over the lookback
	// window; nil when no history exists yet.
	HistoricalReturn *float64
}

// Judger runs the scoring ensemble: one batched prompt, numJudgers
// independent parallel calls, tolerant line parsing.
type Judger struct {
	client      llm.Client
	numJudgers  int
	temperature *float64
	logger      *slog.Logger
}

// NewJudger creates a judger from the contest config.
func NewJudger(client llm.Client, cfg config.ContestConfig) *Judger {
	n := cfg.NumJudgers
	if n <= 0 {
		n = config.DefaultNumJudgers
	}
	return &Judger{
		client:      client,
		numJudgers:  n,
		temperature: cfg.JudgerTemperature,
		logger:      slog.Default().With("component", "judger"),
	}
}

// Judge scores every input with the full ensemble. Individual judge
// failures degrade the consensus; a signal scored by zero judges is absent
// from both returned maps.
func (j *Judger) Judge(ctx context.Context, inputs []JudgeInput) (map[string][]models.JudgeScore, map[string]float64, error) {
	if len(inputs) == 0 {
		return map[string][]models.JudgeScore{}, map[string]float64{}, nil
	}

	validNames := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		validNames[in.Signal.AgentName] = true
	}
	prompt := judgePrompt(inputs)

	replies := make([]string, j.numJudgers)
	errs := make([]error, j.numJudgers)
	var wg sync.WaitGroup
	for i := 0; i < j.numJudgers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			resp, err := llm.Call(ctx, j.client, &llm.GenerateInput{
				AgentName:   fmt.Sprintf("judger_%d", id),
				Messages:    []llm.Message{{Role: llm.RoleSystem, Content: judgeSystemPrompt}, {Role: llm.RoleUser, Content: prompt}},
				Temperature: j.temperature,
			})
			if err != nil {
				errs[id] = err
				return
			}
			replies[id] = resp.Text
		}(i)
	}
	wg.Wait()

	scores := make(map[string][]models.JudgeScore)
	for id := 0; id < j.numJudgers; id++ {
		if errs[id] != nil {
			j.logger.Warn("judge call failed", "judger", id, "error", errs[id])
			continue
		}
		parsed, err := parseJudgeReply(replies[id], validNames)
		if err != nil {
			j.logger.Warn("judge reply unusable", "judger", id, "error", err)
			continue
		}
		for name, score := range parsed {
			scores[name] = append(scores[name], models.JudgeScore{
				SignalName: name,
				Score:      score.value,
				Reasoning:  score.reason,
				JudgerID:   id,
			})
		}
	}

	consensus := make(map[string]float64, len(scores))
	for name, list := range scores {
		sum := 0.0
		for _, s := range list {
			sum += s.Score
		}
		consensus[name] = sum / float64(len(list))
	}
	return scores, consensus, nil
}

type judgeLine struct {
	value  float64
	reason string
}

// judgeLineRe matches "agentName: score|reason" with tolerant spacing and
// full-width colons.
var judgeLineRe = regexp.MustCompile(`^\s*([\w.\-]+)\s*[:：]\s*(\d+(?:\.\d+)?)\s*\|\s*(.*)$`)

// parseJudgeReply extracts per-signal scores from one judge's reply. A line
// that names a known signal but does not parse, or a score outside [0,100],
// invalidates the whole reply.
func parseJudgeReply(reply string, validNames map[string]bool) (map[string]judgeLine, error) {
	out := make(map[string]judgeLine)
	for _, line := range strings.Split(reply, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		m := judgeLineRe.FindStringSubmatch(trimmed)
		if m == nil {
			if mentionsAny(trimmed, validNames) {
				return nil, fmt.Errorf("malformed judge line: %q", trimmed)
			}
			// Preamble or commentary, skip.
			continue
		}
		name := m[1]
		if !validNames[name] {
			continue
		}
		score, err := strconv.ParseFloat(m[2], 64)
		if err != nil || score < 0 || score > 100 {
			return nil, fmt.Errorf("score out of range in line: %q", trimmed)
		}
		out[name] = judgeLine{value: score, reason: strings.TrimSpace(m[3])}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no scores found in reply")
	}
	return out, nil
}

func mentionsAny(line string, names map[string]bool) bool {
	for name := range names {
		if strings.Contains(line, name+":") || strings.Contains(line, name+"：") {
			return true
		}
	}
	return false
}

const judgeSystemPrompt = "You are a strict investment-signal judge. Score each signal below " +
	"starting from 100 and subtracting points for weak evidence, vague reasoning, stale information, " +
	"or a track record of losses. Reply with exactly one line per signal in the form\n" +
	"agentName: score|reason\n" +
	"where score is an integer in [0,100]. No other text."

func judgePrompt(inputs []JudgeInput) string {
	var b strings.Builder
	for i, in := range inputs {
		sig := in.Signal
		fmt.Fprintf(&b, "### Signal %d: %s\n", i+1, sig.AgentName)
		fmt.Fprintf(&b, "action: %s %s (%s), probability %d\n", sig.Action, sig.SymbolCode, sig.SymbolName, sig.Probability)
		if in.HistoricalReturn != nil {
			fmt.Fprintf(&b, "historical mean return: %+.4f\n", *in.HistoricalReturn)
		} else {
			b.WriteString("historical mean return: no history\n")
		}
		for _, ev := range sig.EvidenceList {
			fmt.Fprintf(&b, "evidence: %s (%s, %s)\n", ev.Description, ev.Time, ev.FromSource)
		}
		for _, lim := range sig.Limitations {
			fmt.Fprintf(&b, "limitation: %s\n", lim)
		}
		if in.Thinking != "" {
			fmt.Fprintf(&b, "reasoning:\n%s\n", in.Thinking)
		}
		b.WriteString("\n")
	}
	return b.String()
}
