package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrToolNotFound indicates an unregistered tool key.
var ErrToolNotFound = errors.New("tool not found")

// Registry maps tool keys to implementations. Populated at startup from
// configuration; read-only afterwards. The final_report sentinel is always
// present.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry over the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools)+1)}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Register adds a tool. Later registrations win.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Subset returns a registry restricted to the named tools, erroring on the
// first unknown key. Used to build a research agent's tool set from config.
func (r *Registry) Subset(names []string) (*Registry, error) {
	sub := NewRegistry()
	for _, name := range names {
		t, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		sub.Register(t)
	}
	return sub, nil
}

// Describe returns all descriptors sorted by name.
func (r *Registry) Describe() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Describe())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DescribeJSON renders the registry as the JSON array embedded in
// tool-selection prompts.
func (r *Registry) DescribeJSON() string {
	data, err := json.MarshalIndent(r.Describe(), "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}
