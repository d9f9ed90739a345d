// Package aliascache persists the mapping from place-name aliases to
// canonical provider place IDs. Web pages refer to the same place under
// many names; once a name resolves, the alias is recorded so later runs
// skip the provider lookup.
package aliascache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// NormalizeName canonicalizes an alias for lookup: trimmed, inner
// whitespace collapsed, lowercased.
func NormalizeName(name string) string {
	return strings.ToLower(whitespacePattern.ReplaceAllString(strings.TrimSpace(name), " "))
}

const schema = `
CREATE TABLE IF NOT EXISTS poi_alias (
	name TEXT NOT NULL,
	city TEXT NOT NULL,
	place_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (name, city)
);
CREATE INDEX IF NOT EXISTS idx_poi_alias_place_id ON poi_alias(place_id);
`

// Cache is a durable alias-to-place-ID table backed by SQLite.
type Cache struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the alias cache at path.
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
		return nil, fmt.Errorf("opening alias cache %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing alias cache schema: %w", err)
	}

	logger.Debug("alias cache opened", zap.String("path", path))
	return &Cache{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Find returns the place ID recorded for an alias in a city, or "" on a
// miss. A miss is not an error.
func (c *Cache) Find(ctx context.Context, name, city string) (string, error) {
	key := NormalizeName(name)
	if key == "" {
		return "", nil
	}

	var placeID string
	err := c.db.QueryRowContext(ctx,
		"SELECT place_id FROM poi_alias WHERE name = ? AND city = ?",
		key, NormalizeName(city),
	).Scan(&placeID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying alias cache: %w", err)
	}
	return placeID, nil
}

// HasPlaceID reports whether any alias resolves to the given place ID.
func (c *Cache) HasPlaceID(ctx context.Context, placeID string) (bool, error) {
	if placeID == "" {
		return false, nil
	}

	var exists int
	err := c.db.QueryRowContext(ctx,
		"SELECT 1 FROM poi_alias WHERE place_id = ? LIMIT 1", placeID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying alias cache: %w", err)
	}
	return true, nil
}

// Add records an alias. Empty names or place IDs are silently ignored,
// and an existing alias for the same name and city is kept as-is.
func (c *Cache) Add(ctx context.Context, name, city, placeID string) error {
	key := NormalizeName(name)
	if key == "" || placeID == "" {
		return nil
	}

	_, err := c.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO poi_alias (name, city, place_id, created_at) VALUES (?, ?, ?, ?)",
		key, NormalizeName(city), placeID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting alias: %w", err)
	}
	return nil
}

// Count returns the number of recorded aliases.
func (c *Cache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM poi_alias").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting aliases: %w", err)
	}
	return n, nil
}
