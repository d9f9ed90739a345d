// Package embeddings provides local embedding generation for place records.
package embeddings

import (
	"errors"

	"github.com/fyrsmithlabs/tripd/internal/vectorstore"
)

// Common errors returned by embedding providers.
var (
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyInput indicates empty text was provided.
	ErrEmptyInput = errors.New("empty input")

	// ErrEmbeddingFailed indicates embedding generation failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider generates embeddings and reports its output dimension.
type Provider interface {
	vectorstore.Embedder

	// Dimension returns the embedding dimension of the loaded model.
	Dimension() int

	// Close releases model resources.
	Close() error
}
