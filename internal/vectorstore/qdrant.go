package vectorstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/tripd/internal/poi"
)

// qdrantTracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("tripd.vectorstore.qdrant")

// QdrantConfig holds configuration for the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334
	Port int

	// APIKey authenticates against a managed Qdrant deployment. Optional.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// Collection is the collection name for place records.
	// Default: "poi_embeddings"
	Collection string

	// VectorSize is the dimensionality of embeddings.
	// MUST match the embedder's output dimension.
	// Default: 384 (BAAI/bge-small-en-v1.5)
	VectorSize uint64

	// MaxRetries is the maximum number of retry attempts for transient failures.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries.
	// Doubles on each retry.
	// Default: 1 second
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "poi_embeddings"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// isTransientError reports whether a gRPC error should be retried.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore implements Store using Qdrant's native gRPC client.
//
// Point IDs are deterministic UUIDs derived from the place ID, so
// re-adding the same place upserts rather than duplicating. The original
// place ID is preserved in the payload.
type QdrantStore struct {
	client   *qdrant.Client
	embedder Embedder
	config   QdrantConfig
	logger   *zap.Logger
}

// NewQdrantStore creates a new QdrantStore and verifies connectivity.
func NewQdrantStore(config QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantStore, error) {
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

	if !config.UseTLS {
		fmt.Fprintf(os.Stderr, "WARNING: Qdrant gRPC using plaintext (TLS disabled). Insecure for production.\n")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	store := &QdrantStore{
		client:   client,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("health check failed: %w", err)
	}

	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("QdrantStore initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
		zap.Uint64("vector_size", config.VectorSize),
	)

	return store, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}
	return nil
}

// retryOperation retries an operation with exponential backoff.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if !isTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

// pointID derives a deterministic UUID from a place ID.
func pointID(placeRecordID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(placeRecordID)).String())
}

// Add stores a single place record and returns its ID. Adding an
// already-stored ID is a no-op.
func (s *QdrantStore) Add(ctx context.Context, p poi.POI, docText string) (string, error) {
	if _, err := s.AddBatch(ctx, []poi.POI{p}, []string{docText}); err != nil {
		return "", err
	}
	return p.ID, nil
}

// AddBatch stores multiple place records and returns the number
// actually written. The batch is deduplicated by ID (first occurrence
// wins) and IDs already present in the collection are skipped, so
// repeating a batch writes nothing and returns 0.
func (s *QdrantStore) AddBatch(ctx context.Context, pois []poi.POI, docTexts []string) (int, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.AddBatch")
	defer span.End()

	span.SetAttributes(
		attribute.Int("place_count", len(pois)),
		attribute.String("collection", s.config.Collection),
	)

	if len(pois) == 0 {
		return 0, fmt.Errorf("%w: no places to add", ErrEmptyInput)
	}
	if len(pois) != len(docTexts) {
		return 0, fmt.Errorf("place count %d does not match document count %d", len(pois), len(docTexts))
	}

	newPOIs := make([]poi.POI, 0, len(pois))
	newDocs := make([]string, 0, len(docTexts))
	seen := make(map[string]struct{}, len(pois))
	ids := make([]*qdrant.PointId, 0, len(pois))
	for i, p := range pois {
		if p.ID == "" {
			return 0, fmt.Errorf("place at index %d has empty ID", i)
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		newPOIs = append(newPOIs, p)
		newDocs = append(newDocs, docTexts[i])
		ids = append(ids, pointID(p.ID))
	}

	existing, err := s.existingPointIDs(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	if len(existing) > 0 {
		pois, docs := newPOIs[:0], newDocs[:0]
		for i, p := range newPOIs {
			if _, present := existing[ids[i].GetUuid()]; present {
				continue
			}
			pois = append(pois, p)
			docs = append(docs, newDocs[i])
		}
		newPOIs, newDocs = pois, docs
	}

	if len(newPOIs) == 0 {
		span.SetAttributes(attribute.Int("points_added", 0))
		span.SetStatus(codes.Ok, "success")
		return 0, nil
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, newDocs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	points := make([]*qdrant.PointStruct, len(newPOIs))
	for i, p := range newPOIs {
		meta, err := buildMetadata(p)
		if err != nil {
			span.RecordError(err)
			return 0, err
		}

		payload := make(map[string]*qdrant.Value, len(meta)+2)
		payload["id"] = qdrant.NewValueString(p.ID)
		payload["content"] = qdrant.NewValueString(newDocs[i])
		for k, v := range meta {
			payload[k] = qdrant.NewValueString(v)
		}

		points[i] = &qdrant.PointStruct{
			Id:      pointID(p.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: payload,
		}
	}

	err = s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("upserting points to collection %s: %w", s.config.Collection, err)
	}

	span.SetAttributes(attribute.Int("points_added", len(points)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("added places to qdrant",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(newPOIs)),
		zap.Int("skipped", len(pois)-len(newPOIs)),
	)

	return len(newPOIs), nil
}

// existingPointIDs fetches the subset of ids already stored, keyed by
// their UUID form.
func (s *QdrantStore) existingPointIDs(ctx context.Context, ids []*qdrant.PointId) (map[string]struct{}, error) {
	var points []*qdrant.RetrievedPoint
	err := s.retryOperation(ctx, "get", func() error {
		res, err := s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: s.config.Collection,
			Ids:            ids,
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("checking existing points in collection %s: %w", s.config.Collection, err)
	}

	existing := make(map[string]struct{}, len(points))
	for _, pt := range points {
		existing[pt.Id.GetUuid()] = struct{}{}
	}
	return existing, nil
}

// Search returns up to k places similar to the query, most similar first.
func (s *QdrantStore) Search(ctx context.Context, query string, k int, city string, floor float64) ([]Match, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("k", k),
		attribute.String("city", city),
	)

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrEmptyInput)
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, []string{query})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	queryVector := vectors[0]

	var filter *qdrant.Filter
	if city != "" {
		filter = keywordFilter(cityKey, city)
	}

	var results []*qdrant.ScoredPoint
	err = s.retryOperation(ctx, "search", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(queryVector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			ScoreThreshold: qdrant.PtrOf(float32(floor)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filter,
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", s.config.Collection, err)
	}

	matches := make([]Match, 0, len(results))
	for _, point := range results {
		p, err := reconstructFromPayload(point.Payload)
		if err != nil {
			s.logger.Warn("skipping unreadable point", zap.Error(err))
			continue
		}
		matches = append(matches, Match{POI: p, Score: float64(point.Score)})
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// FindByName looks up a stored place by exact name and city.
func (s *QdrantStore) FindByName(ctx context.Context, name, city string) (*poi.POI, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrEmptyInput)
	}
	conditions := []*qdrant.Condition{keywordCondition(nameKey, name)}
	if city != "" {
		conditions = append(conditions, keywordCondition(cityKey, city))
	}
	return s.findOne(ctx, &qdrant.Filter{Must: conditions})
}

// FindByPlaceID looks up a stored place by its provider place ID,
// optionally restricted to a city.
func (s *QdrantStore) FindByPlaceID(ctx context.Context, placeID, city string) (*poi.POI, error) {
	if placeID == "" {
		return nil, fmt.Errorf("%w: place ID cannot be empty", ErrEmptyInput)
	}
	conditions := []*qdrant.Condition{keywordCondition(placeIDKey, placeID)}
	if city != "" {
		conditions = append(conditions, keywordCondition(cityKey, city))
	}
	return s.findOne(ctx, &qdrant.Filter{Must: conditions})
}

// findOne scrolls for the first point matching the filter.
func (s *QdrantStore) findOne(ctx context.Context, filter *qdrant.Filter) (*poi.POI, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.findOne")
	defer span.End()

	var points []*qdrant.RetrievedPoint
	err := s.retryOperation(ctx, "scroll", func() error {
		res, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.config.Collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(uint32(1)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("scrolling collection %s: %w", s.config.Collection, err)
	}
	if len(points) == 0 {
		return nil, ErrNotFound
	}

	p, err := reconstructFromPayload(points[0].Payload)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Count returns the number of stored places.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Count")
	defer span.End()

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.config.Collection,
	})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("counting collection %s: %w", s.config.Collection, err)
	}
	return int(count), nil
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func keywordFilter(key, value string) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{keywordCondition(key, value)}}
}

// reconstructFromPayload rebuilds a place from a qdrant payload.
func reconstructFromPayload(payload map[string]*qdrant.Value) (poi.POI, error) {
	meta := make(map[string]string, len(payload))
	for k, v := range payload {
		if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
			meta[k] = sv.StringValue
		}
	}
	return reconstructPOI(meta)
}
