package agent

import (
	"github.com/quantfleet/quantfleet/pkg/artifact"
	"github.com/quantfleet/quantfleet/pkg/config"
	"github.com/quantfleet/quantfleet/pkg/datasource"
	"github.com/quantfleet/quantfleet/pkg/events"
	"github.com/quantfleet/quantfleet/pkg/llm"
	"github.com/quantfleet/quantfleet/pkg/market"
	"github.com/quantfleet/quantfleet/pkg/tools"
)

// Runtime bundles the process-wide collaborators. It is constructed once
// in main and threaded through every agent and workflow constructor; after
// construction it is read-only (the collaborators own their own caches).
type Runtime struct {
	Config  *config.Config
	LLM     *llm.Registry
	Market  market.Provider
	Sources *datasource.Registry
	Tools   *tools.Registry
	Store   *artifact.Store
	Bus     *events.Bus
}

// WithBus returns a shallow copy of the runtime that publishes to bus.
// The workflow uses it to give each node's children a node-local bus whose
// stream the node republishes.
func (r *Runtime) WithBus(bus *events.Bus) *Runtime {
	cp := *r
	cp.Bus = bus
	return &cp
}

// Validate checks cross-registry references that the config file alone
// could not prove: data-source keys and tool keys must resolve.
func (r *Runtime) Validate() error {
	for _, da := range r.Config.DataAgents {
		for _, key := range da.DataSourceList {
			if _, err := r.Sources.Get(key); err != nil {
				return err
			}
		}
	}
	for _, key := range r.Config.Research.Tools {
		if _, err := r.Tools.Get(key); err != nil {
			return err
		}
	}
	return nil
}
