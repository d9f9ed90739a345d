// Package urlcache persists extraction results per fetched URL and
// destination, so repeat runs against the same destination skip the
// fetch-and-extract round trip. An empty result list is cached too,
// marking URLs that yielded nothing.
package urlcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/tripd/internal/poi"
)

const schema = `
CREATE TABLE IF NOT EXISTS url_cache (
	url TEXT NOT NULL,
	destination TEXT NOT NULL,
	results_json TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (url, destination)
);
CREATE INDEX IF NOT EXISTS idx_url_cache_destination ON url_cache(destination);
`

// Cache is a durable per-URL extraction cache backed by SQLite.
type Cache struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the URL cache at path.
func Open(path string, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating cache directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening url cache %s: %w", path, err)
	}

	// WAL lets the pipeline read while a batch write is in flight.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing url cache schema: %w", err)
	}

	logger.Debug("url cache opened", zap.String("path", path))
	return &Cache{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached candidates for a URL and destination. The
// second return value reports whether the URL was cached at all; a
// cached empty list returns (empty, true, nil).
func (c *Cache) Get(ctx context.Context, url, destination string) ([]poi.SearchCandidate, bool, error) {
	var resultsJSON string
	err := c.db.QueryRowContext(ctx,
		"SELECT results_json FROM url_cache WHERE url = ? AND destination = ?",
		url, destination,
	).Scan(&resultsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying url cache: %w", err)
	}

	var candidates []poi.SearchCandidate
	if err := json.Unmarshal([]byte(resultsJSON), &candidates); err != nil {
		return nil, false, fmt.Errorf("decoding cached results for %s: %w", url, err)
	}
	if candidates == nil {
		candidates = []poi.SearchCandidate{}
	}
	return candidates, true, nil
}

// Has reports whether a URL is cached for the destination.
func (c *Cache) Has(ctx context.Context, url, destination string) (bool, error) {
	var exists int
	err := c.db.QueryRowContext(ctx,
		"SELECT 1 FROM url_cache WHERE url = ? AND destination = ?",
		url, destination,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying url cache: %w", err)
	}
	return true, nil
}

// Put stores (or replaces) the candidates for a URL and destination.
// A nil slice is stored as an empty list.
func (c *Cache) Put(ctx context.Context, url, destination string, candidates []poi.SearchCandidate) error {
	if url == "" {
		return nil
	}
	if candidates == nil {
		candidates = []poi.SearchCandidate{}
	}

	resultsJSON, err := json.Marshal(candidates)
	if err != nil {
		return fmt.Errorf("encoding results for %s: %w", url, err)
	}

	_, err = c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO url_cache (url, destination, results_json, created_at) VALUES (?, ?, ?, ?)",
		url, destination, string(resultsJSON), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting url cache entry: %w", err)
	}
	return nil
}

// GetByDestination returns all cached URL entries for a destination.
func (c *Cache) GetByDestination(ctx context.Context, destination string) (map[string][]poi.SearchCandidate, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT url, results_json FROM url_cache WHERE destination = ?", destination)
	if err != nil {
		return nil, fmt.Errorf("querying url cache: %w", err)
	}
	defer rows.Close()

	results := make(map[string][]poi.SearchCandidate)
	for rows.Next() {
		var url, resultsJSON string
		if err := rows.Scan(&url, &resultsJSON); err != nil {
			return nil, fmt.Errorf("scanning url cache row: %w", err)
		}

		var candidates []poi.SearchCandidate
		if err := json.Unmarshal([]byte(resultsJSON), &candidates); err != nil {
			c.logger.Warn("skipping unreadable cache entry", zap.String("url", url), zap.Error(err))
			continue
		}
		if candidates == nil {
			candidates = []poi.SearchCandidate{}
		}
		results[url] = candidates
	}
	return results, rows.Err()
}

// Count returns the number of cached URL entries.
func (c *Cache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM url_cache").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting url cache entries: %w", err)
	}
	return n, nil
}
