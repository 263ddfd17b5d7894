package models

// JudgeScore is a single judger's verdict on one signal.
type JudgeScore struct {
	SignalName string  `json:"signal_name"`
	Score      float64 `json:"score"`
	Reasoning  string  `json:"reasoning"`
	JudgerID   int     `json:"judger_id"`
}

// ContestData is attached to a historical signal once its realized reward
// is known.
type ContestData struct {
	Reward         float64   `json:"reward"`
	EvaluationDate string    `json:"evaluation_date"`
	JudgeScores    []float64 `json:"judge_scores,omitempty"`
}

// JudgerScoresArtifact is the persisted record of one judging round.
type JudgerScoresArtifact struct {
	TriggerTime string                  `json:"trigger_time"`
	Scores      map[string][]JudgeScore `json:"scores"`
	Consensus   map[string]float64      `json:"consensus"`
}

// WeightSummary aggregates a weighting round for quick inspection.
type WeightSummary struct {
	AvgScore   float64  `json:"avg_score"`
	TopSignals []string `json:"top_signals"`
}

// WeightResult is the contest's final output for a trigger time: one weight
// in [0,1] per signal, summing to 1 when any positive composite exists and
// to 0 otherwise.
type WeightResult struct {
	TriggerTime     string             `json:"trigger_time"`
	Weights         map[string]float64 `json:"weights"`
	PredictedSharpe map[string]float64 `json:"predicted_sharpe"`
	Summary         WeightSummary      `json:"summary"`
}
