package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// FactoryConfig selects and configures a vector store backend.
type FactoryConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string

	Chromem ChromemConfig
	Qdrant  QdrantConfig
}

// New creates a Store for the configured provider.
//
// Backend initialization failure does not abort: a DegradedStore is
// returned instead, so retrieval continues on web results alone.
func New(cfg FactoryConfig, embedder Embedder, logger *zap.Logger) Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		store Store
		err   error
	)
	switch cfg.Provider {
	case "", "chromem":
		store, err = NewChromemStore(cfg.Chromem, embedder, logger)
	case "qdrant":
		store, err = NewQdrantStore(cfg.Qdrant, embedder, logger)
	default:
		err = fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return NewDegradedStore(err, logger)
	}
	return store
}
