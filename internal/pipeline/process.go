package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/fyrsmithlabs/tripd/internal/aliascache"
	"github.com/fyrsmithlabs/tripd/internal/poi"
	"github.com/fyrsmithlabs/tripd/internal/reranker"
	"github.com/fyrsmithlabs/tripd/internal/stats"
	"github.com/fyrsmithlabs/tripd/internal/summarize"
)

// processed is one web candidate after summarize-resolve-admit.
type processed struct {
	candidate poi.SearchCandidate
	record    poi.POI
	admit     bool
}

// processWebCandidates runs the web channel's admission loop: batches
// of candidates are summarized, resolved, and admitted concurrently
// under the semaphore, then reranked as a batch. The loop stops early
// once enough candidates have survived reranking.
func (p *Pipeline) processWebCandidates(ctx context.Context, req Request, run *stats.Run, state *State) {
	ctx, span := tracer.Start(ctx, "pipeline.process_web")
	defer span.End()
	defer run.Stage("process_web")()

	candidates := state.WebCandidates
	if len(candidates) == 0 {
		return
	}

	batchSize := p.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	limit := p.cfg.SemaphoreLimit
	if limit <= 0 {
		limit = 5
	}

	sem := semaphore.NewWeighted(int64(limit))
	var seenNames sync.Map

	for start := 0; start < len(candidates); start += batchSize {
		end := start + batchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		batch := p.processBatch(ctx, req, run, candidates[start:end], sem, &seenNames)

		admissions := make([]poi.POI, 0, len(batch))
		docTexts := make([]string, 0, len(batch))
		items := make([]reranker.Item, 0, len(batch))
		byID := make(map[string]poi.SearchCandidate, len(batch))

		for _, pr := range batch {
			state.POIData[pr.record.ID] = pr.record
			byID[pr.record.ID] = pr.candidate
			items = append(items, reranker.Item{POI: pr.record, Score: pr.candidate.Score})
			if pr.admit {
				admissions = append(admissions, pr.record)
				docTexts = append(docTexts, p.deps.Formatter(pr.record))
			}
		}

		if len(admissions) > 0 {
			if _, err := p.deps.Store.AddBatch(ctx, admissions, docTexts); err != nil {
				// Records stay in the run's POI map, so the run still
				// returns them; only future runs miss out.
				p.log.Warn("vector store admission failed",
					zap.Int("batch", len(admissions)),
					zap.Error(err),
				)
			}
		}

		kept := p.rerankWebBatch(ctx, req, run, items)
		for _, item := range kept {
			c := byID[item.POI.ID]
			c.Score = item.Score
			state.RerankedWeb = append(state.RerankedWeb, c)
		}

		if len(state.RerankedWeb) >= state.Target {
			state.EarlyTerminated = true
			run.MarkEarlyTermination(end, len(candidates)-end)
			p.log.Info("early termination, target reached",
				zap.Int("kept", len(state.RerankedWeb)),
				zap.Int("target", state.Target),
				zap.Int("remaining", len(candidates)-end),
			)
			break
		}
	}

	// Each batch arrives sorted, but scores are not comparable across
	// batches until the whole channel is re-sorted.
	sort.SliceStable(state.RerankedWeb, func(i, j int) bool {
		return state.RerankedWeb[i].Score > state.RerankedWeb[j].Score
	})

	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
		attribute.Int("kept", len(state.RerankedWeb)),
		attribute.Bool("early_terminated", state.EarlyTerminated),
	)
}

// processBatch runs the per-candidate admission path for one batch,
// bounded by the shared semaphore. Order within the batch is not
// preserved; reranking re-sorts anyway.
func (p *Pipeline) processBatch(ctx context.Context, req Request, run *stats.Run, batch []poi.SearchCandidate, sem *semaphore.Weighted, seenNames *sync.Map) []processed {
	var (
		mu      sync.Mutex
		results []processed
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, candidate := range batch {
		candidate := candidate
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			pr, ok := p.processCandidate(ctx, req, run, candidate, seenNames)
			if !ok {
				return nil
			}
			mu.Lock()
			results = append(results, pr)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.log.Warn("candidate batch aborted", zap.Error(err))
	}
	return results
}

// processCandidate takes one raw web candidate through summarize,
// alias lookup, place resolution, and alias registration. Failures at
// any step drop the candidate; each drop is counted.
func (p *Pipeline) processCandidate(ctx context.Context, req Request, run *stats.Run, candidate poi.SearchCandidate, seenNames *sync.Map) (processed, bool) {
	summary, err := p.deps.Summarizer.Summarize(ctx, candidate, req.Destination)
	if err != nil {
		run.AddSummarizeSkipped()
		if !errors.Is(err, summarize.ErrUnparseable) {
			p.log.Debug("summarize failed", zap.String("title", candidate.Title), zap.Error(err))
		}
		return processed{}, false
	}
	run.AddSummarized()

	normalized := aliascache.NormalizeName(summary.Name)
	if normalized == "" {
		run.AddSummarizeSkipped()
		return processed{}, false
	}
	if _, dup := seenNames.LoadOrStore(normalized, true); dup {
		run.AddTitleDuplicate()
		return processed{}, false
	}

	// Known alias: reuse the stored record without touching the
	// place provider.
	if placeID, err := p.deps.Aliases.Find(ctx, summary.Name, req.Destination); err == nil && placeID != "" {
		if existing, err := p.deps.Store.FindByPlaceID(ctx, placeID, req.Destination); err == nil {
			run.AddAliasHit()
			return processed{candidate: referenceCandidate(candidate, *existing), record: *existing}, true
		}
	}

	record, err := p.deps.Resolver.Resolve(ctx, summary.Name, req.Destination)
	if err != nil {
		run.AddUnresolved()
		p.log.Debug("place resolution failed",
			zap.String("name", summary.Name),
			zap.Error(err),
		)
		return processed{}, false
	}
	run.AddResolved()

	// The resolver may land on a place already known under another
	// name. Register the new alias and reuse the stored record.
	if known, err := p.deps.Aliases.HasPlaceID(ctx, record.PlaceID); err == nil && known {
		p.registerAlias(ctx, summary.Name, req.Destination, record.PlaceID)
		if existing, err := p.deps.Store.FindByPlaceID(ctx, record.PlaceID, req.Destination); err == nil {
			run.AddAliasHit()
			return processed{candidate: referenceCandidate(candidate, *existing), record: *existing}, true
		}
	} else {
		p.registerAlias(ctx, summary.Name, req.Destination, record.PlaceID)
	}

	enriched := enrich(*record, summary, candidate)
	return processed{
		candidate: referenceCandidate(candidate, enriched),
		record:    enriched,
		admit:     true,
	}, true
}

func (p *Pipeline) registerAlias(ctx context.Context, name, city, placeID string) {
	if err := p.deps.Aliases.Add(ctx, name, city, placeID); err != nil {
		p.log.Warn("alias registration failed", zap.String("name", name), zap.Error(err))
	}
}

// referenceCandidate points the web candidate at a concrete record
// while keeping the web-side provenance and placeholder score.
func referenceCandidate(c poi.SearchCandidate, record poi.POI) poi.SearchCandidate {
	return poi.SearchCandidate{
		POIID:   record.ID,
		Title:   c.Title,
		Snippet: c.Snippet,
		URL:     c.URL,
		Source:  poi.SourceWebSearch,
		Score:   c.Score,
	}
}

// enrich folds the model summary and the web provenance into the
// resolver's record and assembles the embedding text.
func enrich(record poi.POI, summary *summarize.Summary, candidate poi.SearchCandidate) poi.POI {
	record.Source = poi.SourceWebSearch
	record.SourceURL = candidate.URL

	if record.ID == "" {
		record.ID = poi.ContentID(candidate.URL)
	}
	if summary.Description != "" {
		record.Description = summary.Description
	}
	if record.Address == "" {
		record.Address = summary.Address
	}
	if record.Category == poi.CategoryOther && summary.Category != poi.CategoryOther {
		record.Category = summary.Category
	}

	record.RawText = composeRawText(record, summary)
	return record
}

// composeRawText builds the sentence-style embedding source text.
func composeRawText(record poi.POI, summary *summarize.Summary) string {
	var parts []string
	if record.Name != "" {
		parts = append(parts, record.Name+".")
	}
	if record.Description != "" {
		parts = append(parts, record.Description)
	}
	if record.Address != "" {
		parts = append(parts, fmt.Sprintf("Location: %s.", record.Address))
	}
	if len(summary.Highlights) > 0 {
		parts = append(parts, fmt.Sprintf("Features: %s.", strings.Join(summary.Highlights, ", ")))
	}
	return strings.Join(parts, " ")
}

// rerankWebBatch scores one admitted batch. A reranker outage keeps
// the placeholder scores rather than losing the batch.
func (p *Pipeline) rerankWebBatch(ctx context.Context, req Request, run *stats.Run, items []reranker.Item) []reranker.Item {
	if len(items) == 0 {
		return nil
	}
	if p.deps.Reranker == nil {
		return items
	}

	result, err := p.deps.Reranker.Rerank(ctx, req.Persona, req.Destination, items,
		len(items), p.cfg.RerankMinScore)
	if err != nil {
		p.log.Warn("web batch rerank failed, keeping placeholder scores", zap.Error(err))
		return items
	}

	run.AddRerank(len(result.Kept), len(result.Dropped))
	run.AddRerankDrops(droppedCandidates(result.Dropped))
	return result.Kept
}
