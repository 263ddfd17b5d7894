package contest

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/quantfleet/quantfleet/pkg/agent"
	"github.com/quantfleet/quantfleet/pkg/agent/research"
	"github.com/quantfleet/quantfleet/pkg/config"
	"github.com/quantfleet/quantfleet/pkg/models"
)

// Backfill re-runs missing historical research so the reward window can be
// filled. Best-effort: errors are logged, never propagated.
type Backfill func(ctx context.Context, triggerTime string) error

// Service orchestrates one judging-and-weighting round for a trigger time
// and persists its artifacts.
type Service struct {
	cfg      config.ContestConfig
	runtime  *agent.Runtime
	backfill Backfill
	logger   *slog.Logger
}

// NewService creates the contest service. backfill may be nil.
func NewService(runtime *agent.Runtime, backfill Backfill) *Service {
	return &Service{
		cfg:      runtime.Config.Contest,
		runtime:  runtime,
		backfill: backfill,
		logger:   slog.Default().With("component", "contest"),
	}
}

// Run judges the day's signals, allocates weights, and persists both the
// judging round and the final result. A day with no signals still yields a
// (zero-weight) final result artifact. An existing final result wins: the
// round is not re-judged and no LLM call is made.
func (s *Service) Run(ctx context.Context, triggerTime string) (*models.WeightResult, error) {
	if stored, ok, err := s.runtime.Store.LoadFinalResult(triggerTime); err != nil {
		return nil, err
	} else if ok {
		s.logger.Info("final result artifact exists, short-circuiting", "trigger_time", triggerTime)
		return stored, nil
	}

	signals, thinking := s.collectSignals(triggerTime)

	windowDays := s.cfg.WindowDays
	if windowDays <= 0 {
		windowDays = config.DefaultWindowDays
	}
	marketName := s.runtime.Config.Market.Name

	histories := s.collectHistories(ctx, signals, marketName, triggerTime, windowDays)

	meanReturns := make(map[string]float64, len(signals))
	inputs := make([]JudgeInput, 0, len(signals))
	for _, sig := range signals {
		in := JudgeInput{Signal: sig, Thinking: thinking[sig.AgentName]}
		if mean, ok := MeanValidReturn(histories[sig.AgentName]); ok {
			meanReturns[sig.AgentName] = mean
			in.HistoricalReturn = &mean
		}
		inputs = append(inputs, in)
	}

	client, err := s.runtime.LLM.Default()
	if err != nil {
		return nil, err
	}
	scores, consensus, err := NewJudger(client, s.cfg).Judge(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if err := s.runtime.Store.SaveJudgerScores(&models.JudgerScoresArtifact{
		TriggerTime: triggerTime,
		Scores:      scores,
		Consensus:   consensus,
	}); err != nil {
		return nil, fmt.Errorf("failed to persist judger scores: %w", err)
	}

	sharpe, err := s.predictSharpe(signals, histories, scores)
	if err != nil {
		return nil, err
	}
	weights := AllocateWeights(signals, consensus, meanReturns)

	result := &models.WeightResult{
		TriggerTime:     triggerTime,
		Weights:         weights,
		PredictedSharpe: sharpe,
		Summary: models.WeightSummary{
			AvgScore:   avgConsensus(consensus),
			TopSignals: TopSignals(weights, 3),
		},
	}
	if err := s.runtime.Store.SaveFinalResult(result); err != nil {
		return nil, fmt.Errorf("failed to persist final result: %w", err)
	}
	return result, nil
}

// collectSignals loads today's report per configured research agent and
// parses the first signal set. Agents without a report or with an
// unparseable one are skipped.
func (s *Service) collectSignals(triggerTime string) ([]models.ParsedSignal, map[string]string) {
	marketName := s.runtime.Config.Market.Name
	var signals []models.ParsedSignal
	thinking := make(map[string]string)

	for _, rc := range s.runtime.Config.Research.Agents {
		report, ok, err := s.runtime.Store.LoadReport(rc.AgentName, triggerTime)
		if err != nil || !ok {
			if err != nil {
				s.logger.Warn("report load failed", "agent", rc.AgentName, "error", err)
			}
			continue
		}
		parsed, err := research.ParseSignals(rc.AgentName, triggerTime, report.FinalResult)
		if err != nil {
			s.logger.Warn("report unparseable, skipping", "agent", rc.AgentName, "error", err)
			continue
		}
		parsed = research.FixSignalSymbols(s.runtime.Market, marketName, parsed)
		// One signal per agent enters the contest: the first actionable
		// one, or the first at all when none is actionable.
		chosen := parsed[0]
		for _, sig := range parsed {
			if sig.Actionable() {
				chosen = sig
				break
			}
		}
		signals = append(signals, chosen)
		thinking[rc.AgentName] = report.FinalResultThinking
	}
	return signals, thinking
}

// collectHistories computes each agent's reward window, invoking the
// backfill hook once when gaps exist.
func (s *Service) collectHistories(ctx context.Context, signals []models.ParsedSignal, marketName, triggerTime string, windowDays int) map[string][]float64 {
	histories := make(map[string][]float64, len(signals))
	gaps := false
	for _, sig := range signals {
		h := HistoryReturns(ctx, s.runtime.Store, s.runtime.Market, marketName, sig.AgentName, triggerTime, windowDays)
		histories[sig.AgentName] = h
		for _, v := range h {
			if math.IsNaN(v) {
				gaps = true
			}
		}
	}

	if gaps && s.backfill != nil {
		if err := s.backfill(ctx, triggerTime); err != nil {
			s.logger.Warn("history backfill failed", "error", err)
		} else {
			for _, sig := range signals {
				histories[sig.AgentName] = HistoryReturns(ctx, s.runtime.Store, s.runtime.Market, marketName, sig.AgentName, triggerTime, windowDays)
			}
		}
	}
	return histories
}

// predictSharpe runs the trained predictor when a model directory is
// configured. Absent models are fatal by contract; per-agent feature
// failures only drop that agent's score.
func (s *Service) predictSharpe(signals []models.ParsedSignal, histories map[string][]float64, scores map[string][]models.JudgeScore) (map[string]float64, error) {
	out := make(map[string]float64)
	if s.cfg.ModelDir == "" {
		return out, nil
	}
	predictor, err := LoadPredictor(s.cfg.ModelDir)
	if err != nil {
		return nil, err
	}

	for _, sig := range signals {
		list := scores[sig.AgentName]
		judges := make([]float64, len(list))
		for i, sc := range list {
			judges[i] = sc.Score
		}
		features, err := Features(histories[sig.AgentName], judges)
		if err != nil {
			s.logger.Warn("feature build failed", "agent", sig.AgentName, "error", err)
			continue
		}
		out[sig.AgentName] = predictor.PredictSharpe(features)
	}
	return out, nil
}

func avgConsensus(consensus map[string]float64) float64 {
	if len(consensus) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range consensus {
		sum += v
	}
	return sum / float64(len(consensus))
}
