package models

// StepStatus values for StepResult.Status.
const (
	StepStatusCompleted = "completed"
	StepStatusFailed    = "failed"
	StepStatusSkipped   = "skipped"
)

// StepResult summarizes one workflow node (data team, research team,
// contest) after all of its child agents have finished.
type StepResult struct {
	Status       string `json:"status"`
	AgentCount   int    `json:"agent_count"`
	SuccessCount int    `json:"success_count"`
	FailureCount int    `json:"failure_count"`
	Error        string `json:"error,omitempty"`
}

// CompanyResult is the company workflow's aggregate output for one trigger
// time.
type CompanyResult struct {
	TriggerTime     string                `json:"trigger_time"`
	DataFactors     []FactorArtifact      `json:"data_factors"`
	ResearchSignals []ParsedSignal        `json:"research_signals"`
	StepResults     map[string]StepResult `json:"step_results"`
	WeightResult    *WeightResult         `json:"weight_result,omitempty"`
}
