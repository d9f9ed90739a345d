// Package geocache caches city geocoding results in a JSON file. A city
// is geocoded at most once per process lifetime across runs; failures
// are cached with null coordinates so they are not retried every run.
package geocache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Location is a cached geocoding result. Nil coordinates record a
// geocoding failure.
type Location struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Resolved reports whether the location carries usable coordinates.
func (l Location) Resolved() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Cache is a file-backed city location cache. Safe for concurrent use.
type Cache struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]Location
}

// Open loads the cache file at path, starting empty if it doesn't exist.
func Open(path string, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Cache{
		path:    path,
		logger:  logger,
		entries: make(map[string]Location),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading city cache %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &c.entries); err != nil {
		// A corrupt cache is not fatal; start over.
		logger.Warn("discarding unreadable city cache", zap.String("path", path), zap.Error(err))
		c.entries = make(map[string]Location)
	}
	return c, nil
}

func cacheKey(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

// Get returns the cached location for a city.
func (c *Cache) Get(city string) (Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loc, ok := c.entries[cacheKey(city)]
	return loc, ok
}

// Put records a location for a city and saves the file.
func (c *Cache) Put(city string, loc Location) error {
	key := cacheKey(city)
	if key == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = loc
	return c.save()
}

// save writes the cache file. Caller must hold the mutex.
func (c *Cache) save() error {
	if dir := filepath.Dir(c.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating cache directory %s: %w", dir, err)
		}
	}

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding city cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("writing city cache %s: %w", c.path, err)
	}
	return nil
}

// Len returns the number of cached cities.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
