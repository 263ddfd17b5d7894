package datasource

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/quantfleet/quantfleet/pkg/models"
)

// Cache stores fetched rows keyed by (source, trigger_time) in a sqlite
// file. Reads are concurrent; writes are serialized by a mutex on top of
// sqlite's own locking.
type Cache struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *slog.Logger
}

// OpenCache opens (and initializes) the cache database at path. ":memory:"
// yields an ephemeral cache for tests.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache db: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS source_cache (
	source       TEXT NOT NULL,
	trigger_time TEXT NOT NULL,
	rows_json    TEXT NOT NULL,
	created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (source, trigger_time)
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init cache schema: %w", err)
	}
	return &Cache{db: db, logger: slog.Default().With("component", "source-cache")}, nil
}

// Get returns the cached rows for (source, triggerTime). ok is false on miss.
func (c *Cache) Get(ctx context.Context, source, triggerTime string) ([]models.Document, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT rows_json FROM source_cache WHERE source = ? AND trigger_time = ?`,
		source, triggerTime,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache read failed: %w", err)
	}
	var rows []models.Document
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, false, fmt.Errorf("cache entry corrupt for %s@%s: %w", source, triggerTime, err)
	}
	return rows, true, nil
}

// Put stores rows for (source, triggerTime), replacing any prior entry.
func (c *Cache) Put(ctx context.Context, source, triggerTime string, rows []models.Document) error {
	raw, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO source_cache (source, trigger_time, rows_json) VALUES (?, ?, ?)`,
		source, triggerTime, string(raw),
	)
	if err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (c *Cache) Close() error { return c.db.Close() }

// CachedSource wraps a Source with the cache. Fetch failures fall through
// to the caller; cache failures only log (the cache is an optimization, not
// a dependency).
type CachedSource struct {
	inner  Source
	cache  *Cache
	logger *slog.Logger
}

// WithCache wraps src. A nil cache returns src unchanged.
func WithCache(src Source, cache *Cache) Source {
	if cache == nil {
		return src
	}
	return &CachedSource{
		inner:  src,
		cache:  cache,
		logger: slog.Default().With("component", "source-cache", "source", src.Name()),
	}
}

// Name implements Source.
func (s *CachedSource) Name() string { return s.inner.Name() }

// GetData implements Source.
func (s *CachedSource) GetData(ctx context.Context, triggerTime string) ([]models.Document, error) {
	rows, ok, err := s.cache.Get(ctx, s.Name(), triggerTime)
	if err != nil {
		s.logger.Warn("cache read failed, fetching", "trigger_time", triggerTime, "error", err)
	} else if ok {
		return rows, nil
	}

	rows, err = s.inner.GetData(ctx, triggerTime)
	if err != nil {
		return nil, err
	}
	if putErr := s.cache.Put(ctx, s.Name(), triggerTime, rows); putErr != nil {
		s.logger.Warn("cache write failed", "trigger_time", triggerTime, "error", putErr)
	}
	return rows, nil
}
