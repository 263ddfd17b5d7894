package llm

import (
	"errors"
	"fmt"
	"sync"
)

// Well-known provider purposes. Configuration binds a model to each.
const (
	PurposeDefault  = "llm"
	PurposeThinking = "llm-thinking"
	PurposeVision   = "vlm"
)

// ErrProviderNotFound indicates a purpose with no configured client.
var ErrProviderNotFound = errors.New("LLM provider not found")

// Registry stores named LLM clients with thread-safe access. It is built
// once at startup and read-only afterwards.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry creates a registry over the given purpose → client map.
func NewRegistry(clients map[string]Client) *Registry {
	copied := make(map[string]Client, len(clients))
	for k, v := range clients {
		copied[k] = v
	}
	return &Registry{clients: copied}
}

// Get retrieves a client by purpose.
func (r *Registry) Get(purpose string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[purpose]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, purpose)
	}
	return client, nil
}

// Default returns the general-purpose client.
func (r *Registry) Default() (Client, error) { return r.Get(PurposeDefault) }

// Thinking returns the reasoning-enabled client, falling back to the
// default when none is configured.
func (r *Registry) Thinking() (Client, error) {
	if c, err := r.Get(PurposeThinking); err == nil {
		return c, nil
	}
	return r.Get(PurposeDefault)
}

// Close closes every registered client. Safe to call once at shutdown.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for _, c := range r.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
