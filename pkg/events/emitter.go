package events

// Emitter is a node-scoped publishing handle: it stamps every event with
// the node name, run ID, and agent tag, and tracks the per-publisher
// sequence number. One Emitter belongs to one goroutine.
type Emitter struct {
	bus       *Bus
	name      string
	agentName string
	runID     string
	seq       int
}

// NewEmitter creates an emitter for a node. agentName may be empty for
// workflow-level nodes.
func NewEmitter(bus *Bus, name, agentName, runID string) *Emitter {
	return &Emitter{bus: bus, name: name, agentName: agentName, runID: runID}
}

// ChainStart emits the node's on_chain_start event.
func (e *Emitter) ChainStart(data map[string]any) { e.emit(KindChainStart, data) }

// ChainEnd emits the node's on_chain_end event. Callers must emit this on
// every exit path, success or failure.
func (e *Emitter) ChainEnd(data map[string]any) { e.emit(KindChainEnd, data) }

// Custom emits an intermediate on_custom event.
func (e *Emitter) Custom(data map[string]any) { e.emit(KindCustom, data) }

// Named returns a derived emitter for a sub-node. The sub-node gets its own
// sequence counter; causal order across parent and child still holds because
// both publish from the same goroutine.
func (e *Emitter) Named(name string) *Emitter {
	return &Emitter{bus: e.bus, name: name, agentName: e.agentName, runID: e.runID}
}

// Forward republishes a child agent's event after tagging it with the
// child's agent name, keeping the outer stream a superset of every
// subgraph's stream.
func (e *Emitter) Forward(ev Event) {
	if ev.AgentName == "" {
		ev.AgentName = e.agentName
	}
	if ev.RunID == "" {
		ev.RunID = e.runID
	}
	e.bus.Publish(ev)
}

func (e *Emitter) emit(kind string, data map[string]any) {
	e.seq++
	e.bus.Publish(Event{
		Kind:      kind,
		Name:      e.name,
		AgentName: e.agentName,
		RunID:     e.runID,
		Seq:       e.seq,
		Data:      data,
	})
}
