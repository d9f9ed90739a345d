// Package pipeline orchestrates one retrieval run: keyword expansion,
// vector-first search, conditional web fan-out with bounded candidate
// processing, batch reranking with early termination, and weighted
// merging of the two channels.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripd/internal/config"
	"github.com/fyrsmithlabs/tripd/internal/merger"
	"github.com/fyrsmithlabs/tripd/internal/poi"
	"github.com/fyrsmithlabs/tripd/internal/reranker"
	"github.com/fyrsmithlabs/tripd/internal/stats"
	"github.com/fyrsmithlabs/tripd/internal/summarize"
	"github.com/fyrsmithlabs/tripd/internal/vectorstore"
	"github.com/fyrsmithlabs/tripd/internal/websearch"
)

var tracer = otel.Tracer("tripd.pipeline")

// The embedding channel is small, so it reranks in tighter batches
// than the web channel.
const embeddingRerankBatchSize = 5

// Expander produces web search keywords from a persona and trip dates.
type Expander interface {
	Expand(ctx context.Context, persona, destination, start, end string, k int) ([]string, error)
}

// Summarizer condenses a raw candidate into a structured summary.
type Summarizer interface {
	Summarize(ctx context.Context, candidate poi.SearchCandidate, destination string) (*summarize.Summary, error)
}

// Resolver verifies a place name against the external place provider.
type Resolver interface {
	Resolve(ctx context.Context, name, city string) (*poi.POI, error)
}

// Reranker scores candidates against the persona in batches.
type Reranker interface {
	Rerank(ctx context.Context, persona, destination string, items []reranker.Item, batchSize int, minScore float64) (reranker.Result, error)
}

// AliasCache is the durable name-to-place-id mapping.
type AliasCache interface {
	Find(ctx context.Context, name, city string) (string, error)
	HasPlaceID(ctx context.Context, placeID string) (bool, error)
	Add(ctx context.Context, name, city, placeID string) error
}

// DocumentFormatter renders a place record into its embedding text.
type DocumentFormatter func(p poi.POI) string

// Deps bundles the collaborators a Pipeline drives.
type Deps struct {
	Expander   Expander
	Store      vectorstore.Store
	Summarizer Summarizer
	Resolver   Resolver
	Reranker   Reranker
	Aliases    AliasCache
	Merger     *merger.Merger
	Formatter  DocumentFormatter

	// Web channel components; the pipeline assembles the search agent
	// per run so cache hits land in that run's stats.
	WebProvider websearch.Provider
	Fetcher     websearch.Fetcher
	Extractor   websearch.Extractor
	URLCache    websearch.URLCache

	Logger *zap.Logger
}

// Request describes one retrieval run.
type Request struct {
	Persona     string
	Destination string

	// StartDate and EndDate are "YYYY-MM-DD" or empty. They size the
	// target POI count; invalid or missing dates fall back to the
	// configured final count.
	StartDate string
	EndDate   string

	// SavePath, when set, receives the full run state as JSON.
	SavePath string
}

// Pipeline coordinates one retrieval run at a time. It is safe to
// reuse across runs; all per-run state lives in the State value.
type Pipeline struct {
	cfg  config.PipelineConfig
	deps Deps
	log  *zap.Logger
	m    *metrics
}

// New creates a Pipeline.
func New(cfg config.PipelineConfig, deps Deps) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("vector store required")
	}
	if deps.Merger == nil {
		deps.Merger = merger.New(merger.Config{
			WebWeight:       cfg.WebWeight,
			EmbeddingWeight: cfg.EmbeddingWeight,
		}, deps.Logger)
	}
	if deps.Formatter == nil {
		return nil, fmt.Errorf("document formatter required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, deps: deps, log: deps.Logger, m: newMetrics()}, nil
}

// travelDays computes the inclusive day span, or 0 when either date is
// missing or malformed.
func travelDays(start, end string) int {
	if start == "" || end == "" {
		return 0
	}
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return 0
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return 0
	}
	days := int(e.Sub(s).Hours()/24) + 1
	if days < 1 {
		return 0
	}
	return days
}

func (p *Pipeline) target(days int) int {
	if days > 0 {
		return days * 5
	}
	return p.cfg.FinalPOICount
}

// Run executes the full pipeline for one request. An empty persona
// returns an empty result without touching any external provider.
// Component failures inside the run are counted and skipped; Run only
// errors when the orchestrator itself cannot progress.
func (p *Pipeline) Run(ctx context.Context, req Request) ([]poi.POI, *State, error) {
	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("destination", req.Destination),
		attribute.Int("persona_len", len(req.Persona)),
	)

	start := time.Now()
	run := stats.NewRun()

	days := travelDays(req.StartDate, req.EndDate)
	target := p.target(days)
	state := newState(req, days, target)

	if strings.TrimSpace(req.Persona) == "" {
		state.Stats = run.Snapshot()
		span.SetStatus(codes.Ok, "")
		return []poi.POI{}, state, nil
	}

	if err := p.extractKeywords(ctx, req, run, state); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, state, err
	}

	if err := p.embeddingSearch(ctx, req, run, state); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, state, err
	}

	if len(state.RerankedEmbedding) >= target {
		state.ShortCircuited = true
		p.log.Info("embedding channel sufficient, skipping web search",
			zap.Int("reranked", len(state.RerankedEmbedding)),
			zap.Int("target", target),
		)
	} else if len(state.Keywords) > 0 {
		if err := p.webSearch(ctx, req, run, state); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, state, err
		}
		p.processWebCandidates(ctx, req, run, state)
	}

	p.mergeResults(ctx, req, run, state)

	run.SetFinalCount(len(state.FinalPOIs))
	state.Stats = run.Snapshot()
	p.m.recordRun(ctx, time.Since(start), len(state.FinalPOIs), state.ShortCircuited)
	p.log.Info("pipeline run finished", zap.String("report", run.Report()))

	if req.SavePath != "" {
		if err := state.save(req.SavePath); err != nil {
			p.log.Warn("state dump failed", zap.String("path", req.SavePath), zap.Error(err))
		}
	}

	span.SetAttributes(attribute.Int("final_count", len(state.FinalPOIs)))
	span.SetStatus(codes.Ok, "")
	return state.FinalPOIs, state, nil
}

// extractKeywords expands the persona into destination-scoped search
// keywords. An expander failure degrades to zero keywords, which later
// skips the web channel.
func (p *Pipeline) extractKeywords(ctx context.Context, req Request, run *stats.Run, state *State) error {
	ctx, span := tracer.Start(ctx, "pipeline.extract_keywords")
	defer span.End()
	defer run.Stage("extract_keywords")()

	if p.deps.Expander == nil {
		return nil
	}

	keywords, err := p.deps.Expander.Expand(ctx, req.Persona, req.Destination, req.StartDate, req.EndDate, p.cfg.KeywordK)
	if err != nil {
		span.RecordError(err)
		p.log.Warn("keyword expansion failed, continuing without web channel", zap.Error(err))
		return nil
	}

	if len(keywords) > 0 {
		state.Keywords = keywords
	}
	run.AddKeywords(len(keywords))
	span.SetAttributes(attribute.Int("keywords", len(keywords)))
	return nil
}

// embeddingSearch runs the single vector-first query and reranks the
// hits on the embedding channel.
func (p *Pipeline) embeddingSearch(ctx context.Context, req Request, run *stats.Run, state *State) error {
	ctx, span := tracer.Start(ctx, "pipeline.vector_first_search")
	defer span.End()
	defer run.Stage("vector_search")()

	matches, err := p.deps.Store.Search(ctx, req.Persona, p.cfg.EmbeddingK, req.Destination, p.cfg.RelevanceFloor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("vector search: %w", err)
	}

	items := make([]reranker.Item, 0, len(matches))
	for _, m := range matches {
		state.POIData[m.POI.ID] = m.POI
		state.EmbeddingCandidates = append(state.EmbeddingCandidates, poi.SearchCandidate{
			POIID:   m.POI.ID,
			Title:   m.POI.Name,
			Snippet: m.POI.Description,
			Source:  poi.SourceEmbeddingDB,
			Score:   m.Score,
		})
		items = append(items, reranker.Item{POI: m.POI, Score: m.Score})
	}

	kept := items
	if p.deps.Reranker != nil && len(items) > 0 {
		result, err := p.deps.Reranker.Rerank(ctx, req.Persona, req.Destination, items,
			embeddingRerankBatchSize, p.cfg.RerankMinScore)
		if err != nil {
			span.RecordError(err)
			p.log.Warn("embedding rerank failed, keeping raw similarity order", zap.Error(err))
		} else {
			kept = result.Kept
			run.AddRerankDrops(droppedCandidates(result.Dropped))
		}
	}

	for _, item := range kept {
		state.RerankedEmbedding = append(state.RerankedEmbedding, poi.SearchCandidate{
			POIID:   item.POI.ID,
			Title:   item.POI.Name,
			Snippet: item.POI.Description,
			Source:  poi.SourceEmbeddingDB,
			Score:   item.Score,
		})
	}

	run.AddVector(len(matches), len(kept))
	span.SetAttributes(
		attribute.Int("hits", len(matches)),
		attribute.Int("kept", len(kept)),
	)
	return nil
}

// webSearch fans the keywords out through the search agent. The agent
// is built per run so its URL cache hits are attributed to this run.
func (p *Pipeline) webSearch(ctx context.Context, req Request, run *stats.Run, state *State) error {
	ctx, span := tracer.Start(ctx, "pipeline.web_search")
	defer span.End()
	defer run.Stage("web_search")()

	if p.deps.WebProvider == nil {
		return nil
	}

	agent := websearch.NewAgent(
		p.deps.WebProvider,
		p.deps.Fetcher,
		p.deps.Extractor,
		countingURLCache{inner: p.deps.URLCache, run: run},
		p.cfg.WebSearchK,
		p.log,
	)

	candidates, pages, err := agent.Search(ctx, state.Keywords, req.Destination)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("web search: %w", err)
	}

	state.WebCandidates = candidates
	run.AddWebResults(len(candidates))
	for keyword, n := range pages {
		run.AddKeywordPages(keyword, n)
	}
	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	return nil
}

// mergeResults fuses the two channels, registers aliases for web titles
// collapsed against already-known places, and resolves the final POI
// list through the run's POI map.
func (p *Pipeline) mergeResults(ctx context.Context, req Request, run *stats.Run, state *State) {
	ctx, span := tracer.Start(ctx, "pipeline.merge_results")
	defer span.End()
	defer run.Stage("merge")()

	result := p.deps.Merger.Merge(state.RerankedWeb, state.RerankedEmbedding)
	state.Merged = result.Candidates

	var webInternal, cross int
	for _, dup := range result.Duplicates {
		if dup.Kept.Source == dup.Dropped.Source {
			webInternal++
		} else {
			cross++
		}
	}
	run.AddMergeDuplicates(webInternal, cross)

	if p.deps.Aliases != nil {
		for _, dup := range result.Duplicates {
			// Two spellings within the web channel are title noise, not
			// evidence of an alternate name for a known place.
			if dup.Kept.Source == dup.Dropped.Source {
				continue
			}
			title := strings.TrimSpace(dup.Dropped.Title)
			if title == "" || dup.Kept.POIID == "" {
				continue
			}
			known, ok := state.POIData[dup.Kept.POIID]
			if !ok || known.PlaceID == "" {
				continue
			}
			if err := p.deps.Aliases.Add(ctx, title, req.Destination, known.PlaceID); err != nil {
				p.log.Warn("alias registration failed",
					zap.String("title", title),
					zap.Error(err),
				)
			}
		}
	}

	for _, c := range result.Candidates {
		record, ok := state.POIData[c.POIID]
		if !ok {
			p.log.Warn("merged candidate has no place record, dropping",
				zap.String("poi_id", c.POIID),
				zap.String("title", c.Title),
			)
			continue
		}
		state.FinalPOIs = append(state.FinalPOIs, record)
	}

	span.SetAttributes(attribute.Int("final", len(state.FinalPOIs)))
}

// droppedCandidates converts reranker cuts into their stats form.
func droppedCandidates(items []reranker.Item) []stats.DroppedCandidate {
	drops := make([]stats.DroppedCandidate, 0, len(items))
	for _, item := range items {
		drops = append(drops, stats.DroppedCandidate{Title: item.POI.Name, Score: item.Score})
	}
	return drops
}

// countingURLCache forwards to the shared URL cache while attributing
// hits to the current run.
type countingURLCache struct {
	inner websearch.URLCache
	run   *stats.Run
}

func (c countingURLCache) Get(ctx context.Context, url, destination string) ([]poi.SearchCandidate, bool, error) {
	if c.inner == nil {
		return nil, false, nil
	}
	candidates, found, err := c.inner.Get(ctx, url, destination)
	if found && err == nil {
		c.run.AddURLCacheHit()
	}
	return candidates, found, err
}

func (c countingURLCache) Put(ctx context.Context, url, destination string, candidates []poi.SearchCandidate) error {
	if c.inner == nil {
		return nil
	}
	return c.inner.Put(ctx, url, destination, candidates)
}
