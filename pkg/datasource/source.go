// Package datasource defines the row sources consumed by data-analysis
// agents and a sqlite-backed cache in front of them. A source is addressed
// by a module-path-style string key (e.g. "cn_market.news_flash") so agent
// configuration stays declarative.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/quantfleet/quantfleet/pkg/models"
)

// Source fetches raw rows for a trigger time. Implementations wrap
// scrapers, vendor APIs, or fixture files; all of them are I/O-bound and
// must honor ctx cancellation.
type Source interface {
	// Name is the registry key (module-path style).
	Name() string
	// GetData returns rows {title, content, pub_time, url} for the
	// trigger time. An empty slice with nil error means "no rows today".
	GetData(ctx context.Context, triggerTime string) ([]models.Document, error)
}

// ErrSourceNotFound indicates an unregistered source key.
var ErrSourceNotFound = errors.New("data source not found")

// Registry maps source keys to implementations. Populated at startup,
// read-only afterwards.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates a registry over the given sources.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source, len(sources))}
	for _, s := range sources {
		r.sources[s.Name()] = s
	}
	return r
}

// Register adds a source. Later registrations win, which lets tests swap
// fixtures in for real sources.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Name()] = s
}

// Get retrieves a source by key.
func (r *Registry) Get(key string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, key)
	}
	return s, nil
}

// Keys returns all registered source keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.sources))
	for k := range r.sources {
		keys = append(keys, k)
	}
	return keys
}

// StaticSource serves fixed rows for every trigger time. Used by tests and
// offline runs.
type StaticSource struct {
	name string
	rows []models.Document
}

// NewStaticSource creates a fixture source.
func NewStaticSource(name string, rows []models.Document) *StaticSource {
	return &StaticSource{name: name, rows: rows}
}

// Name implements Source.
func (s *StaticSource) Name() string { return s.name }

// GetData implements Source.
func (s *StaticSource) GetData(_ context.Context, _ string) ([]models.Document, error) {
	out := make([]models.Document, len(s.rows))
	copy(out, s.rows)
	return out, nil
}
