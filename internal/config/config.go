// Package config provides configuration loading for tripd.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level tripd configuration.
type Config struct {
	Logging     LoggingConfig     `koanf:"logging"`
	Pipeline    PipelineConfig    `koanf:"pipeline"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	LLM         LLMConfig         `koanf:"llm"`
	Places      PlacesConfig      `koanf:"places"`
	Reader      ReaderConfig      `koanf:"reader"`
	WebSearch   WebSearchConfig   `koanf:"websearch"`
	Caches      CachesConfig      `koanf:"caches"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// PipelineConfig holds the retrieval pipeline tuning knobs.
type PipelineConfig struct {
	KeywordK        int     `koanf:"keyword_k"`
	EmbeddingK      int     `koanf:"embedding_k"`
	WebSearchK      int     `koanf:"web_search_k"`
	FinalPOICount   int     `koanf:"final_poi_count"`
	RerankMinScore  float64 `koanf:"rerank_min_score"`
	RelevanceFloor  float64 `koanf:"relevance_floor"`
	WebWeight       float64 `koanf:"web_weight"`
	EmbeddingWeight float64 `koanf:"embedding_weight"`
	BatchSize       int     `koanf:"batch_size"`
	SemaphoreLimit  int     `koanf:"semaphore_limit"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
}

// QdrantConfig configures the qdrant gRPC backend.
type QdrantConfig struct {
	Host         string   `koanf:"host"`
	Port         int      `koanf:"port"`
	APIKey       Secret   `koanf:"api_key"`
	UseTLS       bool     `koanf:"use_tls"`
	Collection   string   `koanf:"collection"`
	VectorSize   int      `koanf:"vector_size"`
	MaxRetries   int      `koanf:"max_retries"`
	RetryBackoff Duration `koanf:"retry_backoff"`
}

// EmbeddingsConfig configures the local embedding model.
type EmbeddingsConfig struct {
	Model    string `koanf:"model"`
	CacheDir string `koanf:"cache_dir"`
}

// LLMConfig configures the chat model used by the LLM-backed stages.
type LLMConfig struct {
	// Provider is "openai" or "anthropic".
	Provider string   `koanf:"provider"`
	Model    string   `koanf:"model"`
	APIKey   Secret   `koanf:"api_key"`
	BaseURL  string   `koanf:"base_url"`
	Timeout  Duration `koanf:"timeout"`
}

// PlacesConfig configures the external place provider.
type PlacesConfig struct {
	APIKey        Secret   `koanf:"api_key"`
	BaseURL       string   `koanf:"base_url"`
	Language      string   `koanf:"language"`
	Timeout       Duration `koanf:"timeout"`
	CityCachePath string   `koanf:"city_cache_path"`
}

// ReaderConfig configures the content reader service.
type ReaderConfig struct {
	BaseURL string   `koanf:"base_url"`
	APIKey  Secret   `koanf:"api_key"`
	Timeout Duration `koanf:"timeout"`
}

// WebSearchConfig configures the web-search provider.
type WebSearchConfig struct {
	APIKey  Secret   `koanf:"api_key"`
	BaseURL string   `koanf:"base_url"`
	Timeout Duration `koanf:"timeout"`
}

// CachesConfig holds paths for the durable caches.
type CachesConfig struct {
	AliasPath string `koanf:"alias_path"`
	URLPath   string `koanf:"url_path"`
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Pipeline.KeywordK == 0 {
		cfg.Pipeline.KeywordK = 3
	}
	if cfg.Pipeline.EmbeddingK == 0 {
		cfg.Pipeline.EmbeddingK = 5
	}
	if cfg.Pipeline.WebSearchK == 0 {
		cfg.Pipeline.WebSearchK = 3
	}
	if cfg.Pipeline.FinalPOICount == 0 {
		cfg.Pipeline.FinalPOICount = 20
	}
	if cfg.Pipeline.RerankMinScore == 0 {
		cfg.Pipeline.RerankMinScore = 0.5
	}
	if cfg.Pipeline.RelevanceFloor == 0 {
		cfg.Pipeline.RelevanceFloor = 0.3
	}
	if cfg.Pipeline.WebWeight == 0 {
		cfg.Pipeline.WebWeight = 0.6
	}
	if cfg.Pipeline.EmbeddingWeight == 0 {
		cfg.Pipeline.EmbeddingWeight = 0.4
	}
	if cfg.Pipeline.BatchSize == 0 {
		cfg.Pipeline.BatchSize = 10
	}
	if cfg.Pipeline.SemaphoreLimit == 0 {
		cfg.Pipeline.SemaphoreLimit = 5
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.local/share/tripd/vectorstore"
	}
	if cfg.VectorStore.Chromem.Collection == "" {
		cfg.VectorStore.Chromem.Collection = "poi_embeddings"
	}
	if cfg.VectorStore.Chromem.VectorSize == 0 {
		cfg.VectorStore.Chromem.VectorSize = 384 // bge-small-en-v1.5 dimensions
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = "poi_embeddings"
	}
	if cfg.VectorStore.Qdrant.VectorSize == 0 {
		cfg.VectorStore.Qdrant.VectorSize = 384
	}
	if cfg.VectorStore.Qdrant.MaxRetries == 0 {
		cfg.VectorStore.Qdrant.MaxRetries = 3
	}
	if cfg.VectorStore.Qdrant.RetryBackoff == 0 {
		cfg.VectorStore.Qdrant.RetryBackoff = Duration(time.Second)
	}

	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = Duration(30 * time.Second)
	}

	if cfg.Places.BaseURL == "" {
		cfg.Places.BaseURL = "https://places.googleapis.com"
	}
	if cfg.Places.Language == "" {
		cfg.Places.Language = "en"
	}
	if cfg.Places.Timeout == 0 {
		cfg.Places.Timeout = Duration(10 * time.Second)
	}
	if cfg.Places.CityCachePath == "" {
		cfg.Places.CityCachePath = "~/.local/share/tripd/city_location_cache.json"
	}

	if cfg.Reader.BaseURL == "" {
		cfg.Reader.BaseURL = "https://r.jina.ai/"
	}
	if cfg.Reader.Timeout == 0 {
		cfg.Reader.Timeout = Duration(10 * time.Second)
	}

	if cfg.WebSearch.BaseURL == "" {
		cfg.WebSearch.BaseURL = "https://api.tavily.com"
	}
	if cfg.WebSearch.Timeout == 0 {
		cfg.WebSearch.Timeout = Duration(10 * time.Second)
	}

	if cfg.Caches.AliasPath == "" {
		cfg.Caches.AliasPath = "~/.local/share/tripd/poi_alias_cache.db"
	}
	if cfg.Caches.URLPath == "" {
		cfg.Caches.URLPath = "~/.local/share/tripd/url_cache.db"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.VectorStore.Provider != "chromem" && c.VectorStore.Provider != "qdrant" {
		return fmt.Errorf("vectorstore.provider must be 'chromem' or 'qdrant', got %q", c.VectorStore.Provider)
	}
	if c.LLM.Provider != "openai" && c.LLM.Provider != "anthropic" {
		return fmt.Errorf("llm.provider must be 'openai' or 'anthropic', got %q", c.LLM.Provider)
	}
	if c.Pipeline.RerankMinScore < 0 || c.Pipeline.RerankMinScore > 1 {
		return fmt.Errorf("pipeline.rerank_min_score must be in [0,1], got %f", c.Pipeline.RerankMinScore)
	}
	if c.Pipeline.RelevanceFloor < 0 || c.Pipeline.RelevanceFloor > 1 {
		return fmt.Errorf("pipeline.relevance_floor must be in [0,1], got %f", c.Pipeline.RelevanceFloor)
	}
	if c.Pipeline.WebWeight < 0 || c.Pipeline.EmbeddingWeight < 0 {
		return fmt.Errorf("merger weights must be non-negative")
	}
	if c.Pipeline.BatchSize <= 0 || c.Pipeline.SemaphoreLimit <= 0 {
		return fmt.Errorf("pipeline.batch_size and pipeline.semaphore_limit must be positive")
	}
	return nil
}
