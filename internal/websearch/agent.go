package websearch

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/tripd/internal/poi"
)

// Fetcher renders a page URL to text.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// Extractor pulls place candidates out of page text.
type Extractor interface {
	Extract(ctx context.Context, content, destination, sourceURL string) ([]poi.SearchCandidate, error)
}

// URLCache persists extraction results per URL and destination.
type URLCache interface {
	Get(ctx context.Context, url, destination string) ([]poi.SearchCandidate, bool, error)
	Put(ctx context.Context, url, destination string, candidates []poi.SearchCandidate) error
}

// Agent fans keyword queries out to the search provider and deepens
// each result page into extracted candidates, with a per-URL cache in
// front of the fetch-and-extract round trip.
type Agent struct {
	provider   Provider
	fetcher    Fetcher
	extractor  Extractor
	cache      URLCache
	maxResults int
	logger     *zap.Logger
}

// NewAgent creates an Agent. fetcher, extractor, and cache are each
// optional; without fetcher or extractor the agent falls back to raw
// search snippets, and without cache every URL is processed fresh.
func NewAgent(provider Provider, fetcher Fetcher, extractor Extractor, cache URLCache, maxResults int, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Agent{
		provider:   provider,
		fetcher:    fetcher,
		extractor:  extractor,
		cache:      cache,
		maxResults: maxResults,
		logger:     logger,
	}
}

// Search runs all keywords in parallel and returns the flattened
// candidate list, deduplicated by URL during processing and by
// lowercased title at the end, plus the number of result pages each
// keyword produced. Per-keyword failures are logged and skipped rather
// than failing the whole fan-out.
func (a *Agent) Search(ctx context.Context, keywords []string, destination string) ([]poi.SearchCandidate, map[string]int, error) {
	if len(keywords) == 0 {
		return []poi.SearchCandidate{}, map[string]int{}, nil
	}

	var (
		mu        sync.Mutex
		collected []poi.SearchCandidate
		pages     = make(map[string]int, len(keywords))
		seenURLs  sync.Map
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, keyword := range keywords {
		keyword := keyword
		g.Go(func() error {
			results, err := a.provider.Search(ctx, keyword, a.maxResults)
			if err != nil {
				a.logger.Warn("keyword search failed",
					zap.String("keyword", keyword),
					zap.Error(err),
				)
				return nil
			}

			mu.Lock()
			pages[keyword] = len(results)
			mu.Unlock()

			for _, result := range results {
				if result.URL != "" {
					if _, dup := seenURLs.LoadOrStore(result.URL, true); dup {
						continue
					}
				}

				candidates := a.processResult(ctx, result, destination)
				mu.Lock()
				collected = append(collected, candidates...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return dedupeByTitle(collected), pages, nil
}

// processResult turns one search result into candidates: cached
// extraction if available, fetch-and-extract otherwise, raw snippet as
// the last resort. The snippet fallback is never written to the cache
// as if it were an extraction.
func (a *Agent) processResult(ctx context.Context, result poi.SearchCandidate, destination string) []poi.SearchCandidate {
	if a.cache != nil && result.URL != "" {
		cached, found, err := a.cache.Get(ctx, result.URL, destination)
		if err != nil {
			a.logger.Warn("url cache read failed", zap.String("url", result.URL), zap.Error(err))
		} else if found {
			return cached
		}
	}

	candidates, cacheable := a.deepen(ctx, result, destination)

	if a.cache != nil && result.URL != "" && cacheable != nil {
		if err := a.cache.Put(ctx, result.URL, destination, cacheable); err != nil {
			a.logger.Warn("url cache write failed", zap.String("url", result.URL), zap.Error(err))
		}
	}
	return candidates
}

// deepen returns the candidates to use for this run and the value to
// cache for the URL; a nil cache value skips the write. A fetch failure
// or empty extraction caches an empty list so the page is not refetched,
// while the snippet still feeds this run. Extractor failures are treated
// as transient and stay uncached.
func (a *Agent) deepen(ctx context.Context, result poi.SearchCandidate, destination string) (use, cache []poi.SearchCandidate) {
	if a.fetcher == nil || a.extractor == nil || result.URL == "" {
		snippet := []poi.SearchCandidate{result}
		return snippet, snippet
	}

	content, err := a.fetcher.Fetch(ctx, result.URL)
	if err != nil {
		a.logger.Debug("page fetch failed, using snippet",
			zap.String("url", result.URL),
			zap.Error(err),
		)
		return []poi.SearchCandidate{result}, []poi.SearchCandidate{}
	}

	extracted, err := a.extractor.Extract(ctx, content, destination, result.URL)
	if err != nil {
		a.logger.Debug("extraction failed, using snippet",
			zap.String("url", result.URL),
			zap.Error(err),
		)
		return []poi.SearchCandidate{result}, nil
	}
	if len(extracted) == 0 {
		return []poi.SearchCandidate{result}, []poi.SearchCandidate{}
	}
	return extracted, extracted
}

func dedupeByTitle(candidates []poi.SearchCandidate) []poi.SearchCandidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]poi.SearchCandidate, 0, len(candidates))
	for _, c := range candidates {
		key := strings.ToLower(strings.TrimSpace(c.Title))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
