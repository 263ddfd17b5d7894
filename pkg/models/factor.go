package models

// BatchSummary is the per-batch intermediate produced by the data agent's
// map phase. Kept in the artifact so a run can be audited batch by batch.
type BatchSummary struct {
	BatchID    int        `json:"batch_id"`
	Summary    string     `json:"summary"`
	References []Document `json:"references"`
}

// FactorArtifact is the persisted output of one data-agent run, keyed by
// (agent_name, trigger_time). Once written it is read-only; a later run for
// the same key short-circuits to the stored copy.
type FactorArtifact struct {
	AgentName   string `json:"agent_name"`
	TriggerTime string `json:"trigger_time"`
	SourceList  []string `json:"source_list"`
	BiasGoal    string   `json:"bias_goal,omitempty"`

	// ContextString is the merged, cite-referenced factor text. Every [N]
	// citation in it resolves to an entry of References.
	ContextString  string         `json:"context_string"`
	References     []Document     `json:"references"`
	BatchSummaries []BatchSummary `json:"batch_summaries"`
}
