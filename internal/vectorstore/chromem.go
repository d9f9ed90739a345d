package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripd/internal/poi"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("tripd.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.local/share/tripd/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection name for place records.
	// Default: "poi_embeddings"
	Collection string

	// VectorSize is the expected embedding dimension.
	// Must match the embedder's output dimension.
	// Default: 384 (for FastEmbed bge-small-en-v1.5)
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.local/share/tripd/vectorstore"
	}
	if c.Collection == "" {
		c.Collection = "poi_embeddings"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies: pure Go, no external service, persistence to gob files.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger
}

// NewChromemStore creates a new ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandChromemPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if err := os.MkdirAll(expandedPath, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	store := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	logger.Info("ChromemStore initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
		zap.String("collection", config.Collection),
	)

	return store, nil
}

// expandChromemPath expands ~ to home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// createEmbeddingFunc creates a chromem.EmbeddingFunc from our Embedder.
// Lookups and searches use the document-side embedding so they share the
// stored records' vector space.
func (s *ChromemStore) createEmbeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := s.embedder.EmbedDocuments(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		return vecs[0], nil
	}
}

func (s *ChromemStore) collection() (*chromem.Collection, error) {
	collection, err := s.db.GetOrCreateCollection(s.config.Collection, nil, s.createEmbeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", s.config.Collection, err)
	}
	return collection, nil
}

// Add stores a single place record and returns its ID. Adding an
// already-stored ID is a no-op.
func (s *ChromemStore) Add(ctx context.Context, p poi.POI, docText string) (string, error) {
	if _, err := s.AddBatch(ctx, []poi.POI{p}, []string{docText}); err != nil {
		return "", err
	}
	return p.ID, nil
}

// AddBatch stores multiple place records and returns the number
// actually written. The batch is deduplicated by ID (first occurrence
// wins) and IDs already present in the collection are skipped, so
// repeating a batch writes nothing and returns 0.
func (s *ChromemStore) AddBatch(ctx context.Context, pois []poi.POI, docTexts []string) (int, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.AddBatch")
	defer span.End()

	span.SetAttributes(attribute.Int("place_count", len(pois)))

	if len(pois) == 0 {
		return 0, fmt.Errorf("%w: no places to add", ErrEmptyInput)
	}
	if len(pois) != len(docTexts) {
		return 0, fmt.Errorf("place count %d does not match document count %d", len(pois), len(docTexts))
	}

	collection, err := s.collection()
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	newPOIs := make([]poi.POI, 0, len(pois))
	newDocs := make([]string, 0, len(docTexts))
	seen := make(map[string]struct{}, len(pois))
	for i, p := range pois {
		if p.ID == "" {
			return 0, fmt.Errorf("place at index %d has empty ID", i)
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		if _, err := collection.GetByID(ctx, p.ID); err == nil {
			continue
		}
		newPOIs = append(newPOIs, p)
		newDocs = append(newDocs, docTexts[i])
	}

	if len(newPOIs) == 0 {
		span.SetAttributes(attribute.Int("places_added", 0))
		span.SetStatus(codes.Ok, "success")
		return 0, nil
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, newDocs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	chromemDocs := make([]chromem.Document, len(newPOIs))
	for i, p := range newPOIs {
		meta, err := buildMetadata(p)
		if err != nil {
			span.RecordError(err)
			return 0, err
		}
		chromemDocs[i] = chromem.Document{
			ID:        p.ID,
			Content:   newDocs[i],
			Metadata:  meta,
			Embedding: embeddings[i],
		}
	}

	// Concurrency of 1 since embeddings are precomputed.
	if err := collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("adding documents: %w", err)
	}

	span.SetAttributes(attribute.Int("places_added", len(newPOIs)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("added places to chromem",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(newPOIs)),
		zap.Int("skipped", len(pois)-len(newPOIs)),
	)

	return len(newPOIs), nil
}

// Search returns up to k places similar to the query, most similar first.
func (s *ChromemStore) Search(ctx context.Context, query string, k int, city string, floor float64) ([]Match, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()

	span.SetAttributes(
		attribute.Int("k", k),
		attribute.String("city", city),
	)

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrEmptyInput)
	}

	collection := s.db.GetCollection(s.config.Collection, s.createEmbeddingFunc())
	if collection == nil {
		return []Match{}, nil
	}

	// chromem requires nResults <= doc count.
	docCount := collection.Count()
	if docCount == 0 {
		return []Match{}, nil
	}
	if k > docCount {
		k = docCount
	}

	var whereFilter map[string]string
	if city != "" {
		whereFilter = map[string]string{cityKey: city}
	}

	results, err := collection.Query(ctx, query, k, whereFilter, nil)
	if err != nil {
		// A city filter can leave fewer candidates than k.
		if strings.Contains(err.Error(), "nResults") {
			return []Match{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		if float64(r.Similarity) < floor {
			continue
		}
		p, err := reconstructPOI(r.Metadata)
		if err != nil {
			s.logger.Warn("skipping unreadable record", zap.String("id", r.ID), zap.Error(err))
			continue
		}
		matches = append(matches, Match{POI: p, Score: float64(r.Similarity)})
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("searched chromem collection",
		zap.Int("k", k),
		zap.Int("results", len(matches)),
	)

	return matches, nil
}

// FindByName looks up a stored place by exact name and city.
func (s *ChromemStore) FindByName(ctx context.Context, name, city string) (*poi.POI, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrEmptyInput)
	}
	where := map[string]string{nameKey: name}
	if city != "" {
		where[cityKey] = city
	}
	return s.findOne(ctx, name, where)
}

// FindByPlaceID looks up a stored place by its provider place ID,
// optionally restricted to a city.
func (s *ChromemStore) FindByPlaceID(ctx context.Context, placeID, city string) (*poi.POI, error) {
	if placeID == "" {
		return nil, fmt.Errorf("%w: place ID cannot be empty", ErrEmptyInput)
	}
	where := map[string]string{placeIDKey: placeID}
	if city != "" {
		where[cityKey] = city
	}
	return s.findOne(ctx, placeID, where)
}

// findOne runs a filtered k=1 query. chromem has no metadata-only lookup,
// so the filter does the matching and the query text only ranks.
func (s *ChromemStore) findOne(ctx context.Context, queryText string, where map[string]string) (*poi.POI, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.findOne")
	defer span.End()

	collection := s.db.GetCollection(s.config.Collection, s.createEmbeddingFunc())
	if collection == nil || collection.Count() == 0 {
		return nil, ErrNotFound
	}

	results, err := collection.Query(ctx, queryText, 1, where, nil)
	if err != nil {
		if strings.Contains(err.Error(), "nResults") {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}

	p, err := reconstructPOI(results[0].Metadata)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Count returns the number of stored places.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	collection := s.db.GetCollection(s.config.Collection, s.createEmbeddingFunc())
	if collection == nil {
		return 0, nil
	}
	return collection.Count(), nil
}

// Close releases resources. chromem persists on write, so this is a no-op.
func (s *ChromemStore) Close() error {
	return nil
}
