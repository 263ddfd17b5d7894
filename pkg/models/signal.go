package models

// SignalArtifact is the persisted output of one research-agent run, keyed
// by (agent_name, trigger_time). FinalResult holds the raw LLM completion
// containing zero or more <signal> blocks; ParsedSignal is derived from it.
type SignalArtifact struct {
	AgentName             string `json:"agent_name"`
	Task                  string `json:"task"`
	TriggerTime           string `json:"trigger_time"`
	Belief                string `json:"belief,omitempty"`
	BackgroundInformation string `json:"background_information"`
	FinalResult           string `json:"final_result"`
	FinalResultThinking   string `json:"final_result_thinking,omitempty"`
}

// Evidence is one supporting observation inside a parsed signal.
type Evidence struct {
	Description string `json:"description"`
	Time        string `json:"time"`
	FromSource  string `json:"from_source"`
}

// Opportunity values for ParsedSignal.HasOpportunity.
const (
	OpportunityYes = "yes"
	OpportunityNo  = "no"
)

// Action values for ParsedSignal.Action.
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
	ActionHold = "HOLD"
)

// ParsedSignal is one structured recommendation extracted from a signal
// artifact's FinalResult.
type ParsedSignal struct {
	AgentName      string     `json:"agent_name"`
	TriggerTime    string     `json:"trigger_time"`
	HasOpportunity string     `json:"has_opportunity"`
	Action         string     `json:"action"`
	SymbolCode     string     `json:"symbol_code"`
	SymbolName     string     `json:"symbol_name"`
	EvidenceList   []Evidence `json:"evidence_list"`
	Limitations    []string   `json:"limitations"`
	Probability    int        `json:"probability"`
}

// Actionable reports whether the signal is eligible for weighting: an
// explicit opportunity with a tradeable direction. "yes" signals without a
// buy/sell action are deliberately excluded.
func (s ParsedSignal) Actionable() bool {
	if s.HasOpportunity != OpportunityYes {
		return false
	}
	return s.Action == ActionBuy || s.Action == ActionSell
}
