// Package events provides the in-process event stream emitted by every
// workflow node and agent. Events are immutable records; the bus fans them
// out to subscriber channels (the ops WebSocket, tests, and any UI).
//
// Ordering: events from a single publisher goroutine arrive in emission
// order. Across agents there is no global total order — consumers that need
// one must sort by (AgentName, Seq).
package events

import "time"

// Event kinds. Every node emits a start and an end (the end always fires,
// success or failure); on_custom carries intermediate agent progress.
const (
	KindChainStart = "on_chain_start"
	KindChainEnd   = "on_chain_end"
	KindCustom     = "on_custom"
)

// Event is one versioned record in the stream.
type Event struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	// Name identifies the emitting node (e.g. "run_data_agents",
	// "batch_process").
	Name string `json:"name"`
	// AgentName tags events forwarded from a child agent's subgraph.
	AgentName string `json:"agent_name,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	// Seq is the per-publisher sequence number (causal order witness).
	Seq  int            `json:"seq"`
	Time time.Time      `json:"time"`
	Data map[string]any `json:"data,omitempty"`
	Tags []string       `json:"tags,omitempty"`
}
