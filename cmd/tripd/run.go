package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripd/internal/aliascache"
	"github.com/fyrsmithlabs/tripd/internal/config"
	"github.com/fyrsmithlabs/tripd/internal/embeddings"
	"github.com/fyrsmithlabs/tripd/internal/extraction"
	"github.com/fyrsmithlabs/tripd/internal/geocache"
	"github.com/fyrsmithlabs/tripd/internal/llm"
	"github.com/fyrsmithlabs/tripd/internal/logging"
	"github.com/fyrsmithlabs/tripd/internal/pipeline"
	"github.com/fyrsmithlabs/tripd/internal/places"
	"github.com/fyrsmithlabs/tripd/internal/queryexpand"
	"github.com/fyrsmithlabs/tripd/internal/reader"
	"github.com/fyrsmithlabs/tripd/internal/reranker"
	"github.com/fyrsmithlabs/tripd/internal/summarize"
	"github.com/fyrsmithlabs/tripd/internal/urlcache"
	"github.com/fyrsmithlabs/tripd/internal/vectorstore"
	"github.com/fyrsmithlabs/tripd/internal/websearch"
)

var (
	flagPersona     string
	flagDestination string
	flagStartDate   string
	flagEndDate     string
	flagSavePath    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one retrieval pipeline",
	Long: `Run one retrieval pipeline for a persona and destination.

Examples:
  # Two-day trip, results printed as JSON
  tripd run --persona "20s solo traveller, local food" \
    --destination Seoul --start-date 2026-01-06 --end-date 2026-01-07

  # Dump the full run state for inspection
  tripd run --persona "art museums" --destination Paris --save state.json`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&flagPersona, "persona", "", "traveler persona summary (required)")
	runCmd.Flags().StringVar(&flagDestination, "destination", "", "destination city (required)")
	runCmd.Flags().StringVar(&flagStartDate, "start-date", "", "trip start date, YYYY-MM-DD")
	runCmd.Flags().StringVar(&flagEndDate, "end-date", "", "trip end date, YYYY-MM-DD")
	runCmd.Flags().StringVar(&flagSavePath, "save", "", "write the full run state as JSON to this path")
	_ = runCmd.MarkFlagRequired("persona")
	_ = runCmd.MarkFlagRequired("destination")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if _, err := config.EnsureDataDir(); err != nil {
		return fmt.Errorf("preparing data directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, cleanup, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	pois, _, err := p.Run(ctx, pipeline.Request{
		Persona:     flagPersona,
		Destination: flagDestination,
		StartDate:   flagStartDate,
		EndDate:     flagEndDate,
		SavePath:    flagSavePath,
	})
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	out, err := json.MarshalIndent(pois, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// buildPipeline wires every component from config. The returned
// cleanup closes the caches and the vector store.
func buildPipeline(cfg *config.Config, logger *zap.Logger) (*pipeline.Pipeline, func(), error) {
	embedder, err := embeddings.NewFastEmbedProvider(embeddings.FastEmbedConfig{
		Model:    cfg.Embeddings.Model,
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing embedder: %w", err)
	}

	chromemPath, err := config.ExpandHome(cfg.VectorStore.Chromem.Path)
	if err != nil {
		return nil, nil, err
	}
	store := vectorstore.New(vectorstore.FactoryConfig{
		Provider: cfg.VectorStore.Provider,
		Chromem: vectorstore.ChromemConfig{
			Path:       chromemPath,
			Compress:   cfg.VectorStore.Chromem.Compress,
			Collection: cfg.VectorStore.Chromem.Collection,
			VectorSize: cfg.VectorStore.Chromem.VectorSize,
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:         cfg.VectorStore.Qdrant.Host,
			Port:         cfg.VectorStore.Qdrant.Port,
			APIKey:       cfg.VectorStore.Qdrant.APIKey.Value(),
			UseTLS:       cfg.VectorStore.Qdrant.UseTLS,
			Collection:   cfg.VectorStore.Qdrant.Collection,
			VectorSize:   uint64(cfg.VectorStore.Qdrant.VectorSize),
			MaxRetries:   cfg.VectorStore.Qdrant.MaxRetries,
			RetryBackoff: time.Duration(cfg.VectorStore.Qdrant.RetryBackoff),
		},
	}, embedder, logger)

	aliasPath, err := config.ExpandHome(cfg.Caches.AliasPath)
	if err != nil {
		return nil, nil, err
	}
	aliases, err := aliascache.Open(aliasPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening alias cache: %w", err)
	}

	urlPath, err := config.ExpandHome(cfg.Caches.URLPath)
	if err != nil {
		return nil, nil, err
	}
	urls, err := urlcache.Open(urlPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening url cache: %w", err)
	}

	cityPath, err := config.ExpandHome(cfg.Places.CityCachePath)
	if err != nil {
		return nil, nil, err
	}
	cities, err := geocache.Open(cityPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening city cache: %w", err)
	}

	llmClient, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey.Value(),
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  time.Duration(cfg.LLM.Timeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing llm client: %w", err)
	}

	placesClient, err := places.NewClient(places.Config{
		APIKey:   cfg.Places.APIKey.Value(),
		BaseURL:  cfg.Places.BaseURL,
		Language: cfg.Places.Language,
		Timeout:  time.Duration(cfg.Places.Timeout),
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing places client: %w", err)
	}
	resolver := places.NewResolver(placesClient, cities, logger)

	// Web search degrades to vector-only retrieval when unconfigured.
	var webProvider websearch.Provider
	if cfg.WebSearch.APIKey.Value() != "" {
		webProvider, err = websearch.NewTavilyProvider(websearch.TavilyConfig{
			APIKey:  cfg.WebSearch.APIKey.Value(),
			BaseURL: cfg.WebSearch.BaseURL,
			Timeout: time.Duration(cfg.WebSearch.Timeout),
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing web search: %w", err)
		}
	} else {
		logger.Warn("no web search API key configured, web channel disabled")
	}

	fetcher := reader.New(reader.Config{
		BaseURL: cfg.Reader.BaseURL,
		APIKey:  cfg.Reader.APIKey.Value(),
		Timeout: time.Duration(cfg.Reader.Timeout),
	}, logger)

	p, err := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Expander:    queryexpand.New(llmClient, logger),
		Store:       store,
		Summarizer:  summarize.New(llmClient, logger),
		Resolver:    resolver,
		Reranker:    reranker.New(llmClient, logger),
		Aliases:     aliases,
		Formatter:   embeddings.Document,
		WebProvider: webProvider,
		Fetcher:     fetcher,
		Extractor:   extraction.New(llmClient, logger),
		URLCache:    urls,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if err := urls.Close(); err != nil {
			logger.Warn("closing url cache", zap.Error(err))
		}
		if err := aliases.Close(); err != nil {
			logger.Warn("closing alias cache", zap.Error(err))
		}
		if err := store.Close(); err != nil {
			logger.Warn("closing vector store", zap.Error(err))
		}
		if err := embedder.Close(); err != nil {
			logger.Warn("closing embedder", zap.Error(err))
		}
	}
	return p, cleanup, nil
}
