package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripd/internal/poi"
)

// DegradedStore is the fallback Store used when the configured backend
// fails to initialize. Searches and lookups come back empty so the rest
// of the retrieval flow keeps working on web results alone; writes are
// rejected with ErrStoreDegraded.
type DegradedStore struct {
	cause  error
	logger *zap.Logger
}

// NewDegradedStore wraps the backend initialization error.
func NewDegradedStore(cause error, logger *zap.Logger) *DegradedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Warn("vector store degraded, serving empty results", zap.Error(cause))
	return &DegradedStore{cause: cause, logger: logger}
}

// Cause returns the backend initialization error.
func (s *DegradedStore) Cause() error {
	return s.cause
}

func (s *DegradedStore) Add(ctx context.Context, p poi.POI, docText string) (string, error) {
	return "", fmt.Errorf("%w: %v", ErrStoreDegraded, s.cause)
}

func (s *DegradedStore) AddBatch(ctx context.Context, pois []poi.POI, docTexts []string) (int, error) {
	return 0, fmt.Errorf("%w: %v", ErrStoreDegraded, s.cause)
}

func (s *DegradedStore) Search(ctx context.Context, query string, k int, city string, floor float64) ([]Match, error) {
	return []Match{}, nil
}

func (s *DegradedStore) FindByName(ctx context.Context, name, city string) (*poi.POI, error) {
	return nil, ErrNotFound
}

func (s *DegradedStore) FindByPlaceID(ctx context.Context, placeID, city string) (*poi.POI, error) {
	return nil, ErrNotFound
}

func (s *DegradedStore) Count(ctx context.Context) (int, error) {
	return 0, nil
}

func (s *DegradedStore) Close() error {
	return nil
}
