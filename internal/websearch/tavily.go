// Package websearch retrieves place candidates from the open web: a
// search provider fans out keyword queries, and an agent turns result
// pages into extracted candidates with a durable per-URL cache.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripd/internal/poi"
)

const (
	defaultTavilyBaseURL = "https://api.tavily.com"
	defaultTimeout       = 10 * time.Second
)

// Provider runs a single web search query.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]poi.SearchCandidate, error)
}

// TavilyConfig holds Tavily client configuration.
type TavilyConfig struct {
	// APIKey authenticates against Tavily.
	APIKey string

	// BaseURL overrides the API endpoint.
	BaseURL string

	// Timeout bounds each search request. Default: 10s.
	Timeout time.Duration
}

// TavilyProvider implements Provider using the Tavily search API.
type TavilyProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTavilyProvider creates a TavilyProvider.
func NewTavilyProvider(cfg TavilyConfig, logger *zap.Logger) (*TavilyProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("tavily API key required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultTavilyBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &TavilyProvider{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

type tavilyRequest struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search runs one query and returns the raw result candidates.
func (p *TavilyProvider) Search(ctx context.Context, query string, maxResults int) ([]poi.SearchCandidate, error) {
	if query == "" {
		return []poi.SearchCandidate{}, nil
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	reqBody, err := json.Marshal(tavilyRequest{
		Query:         query,
		MaxResults:    maxResults,
		SearchDepth:   "basic",
		IncludeAnswer: false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/search", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned %d: %s", resp.StatusCode, string(body))
	}

	var tavilyResp tavilyResponse
	if err := json.Unmarshal(body, &tavilyResp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	candidates := make([]poi.SearchCandidate, 0, len(tavilyResp.Results))
	for _, r := range tavilyResp.Results {
		if r.Title == "" {
			continue
		}
		candidates = append(candidates, poi.SearchCandidate{
			Title:   r.Title,
			Snippet: r.Content,
			URL:     r.URL,
			Source:  poi.SourceWebSearch,
			Score:   r.Score,
		})
	}

	p.logger.Debug("web search completed",
		zap.String("query", query),
		zap.Int("results", len(candidates)),
	)

	return candidates, nil
}
