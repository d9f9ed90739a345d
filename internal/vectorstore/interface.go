// Package vectorstore provides persistent vector storage for place records.
package vectorstore

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/tripd/internal/poi"
)

// Common errors returned by Store implementations.
var (
	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotFound indicates no record matched the lookup.
	ErrNotFound = errors.New("record not found")

	// ErrEmptyInput indicates an empty batch or query was provided.
	ErrEmptyInput = errors.New("empty input")

	// ErrEmbeddingFailed indicates embedding generation failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrStoreDegraded indicates the backend failed to initialize and the
	// store is running in read-empty, write-reject mode.
	ErrStoreDegraded = errors.New("vector store degraded")
)

// Embedder generates embeddings for documents and queries.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Match is a stored place together with its similarity score.
type Match struct {
	POI   poi.POI
	Score float64
}

// Store is the interface for place-record vector storage backends.
//
// Search embeds the query with the document-side embedding so stored
// records and queries share one vector space.
type Store interface {
	// Add stores a single place with its embedding document text and
	// returns the stored record ID.
	Add(ctx context.Context, p poi.POI, docText string) (string, error)

	// AddBatch stores multiple places and returns the number stored.
	// len(pois) must equal len(docTexts).
	AddBatch(ctx context.Context, pois []poi.POI, docTexts []string) (int, error)

	// Search returns up to k places similar to the query text, most
	// similar first. If city is non-empty, results are restricted to
	// that city. Results scoring below floor are dropped.
	Search(ctx context.Context, query string, k int, city string, floor float64) ([]Match, error)

	// FindByName looks up a stored place by exact name and city.
	// Returns ErrNotFound on a miss.
	FindByName(ctx context.Context, name, city string) (*poi.POI, error)

	// FindByPlaceID looks up a stored place by its provider place ID,
	// optionally restricted to a city. Returns ErrNotFound on a miss.
	FindByPlaceID(ctx context.Context, placeID, city string) (*poi.POI, error)

	// Count returns the number of stored places.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}
