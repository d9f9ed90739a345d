package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripd/internal/aliascache"
	"github.com/fyrsmithlabs/tripd/internal/config"
	"github.com/fyrsmithlabs/tripd/internal/embeddings"
	"github.com/fyrsmithlabs/tripd/internal/poi"
	"github.com/fyrsmithlabs/tripd/internal/reranker"
	"github.com/fyrsmithlabs/tripd/internal/stats"
	"github.com/fyrsmithlabs/tripd/internal/summarize"
	"github.com/fyrsmithlabs/tripd/internal/vectorstore"
)

// --- fakes ---

type fakeExpander struct {
	keywords []string
	calls    atomic.Int32
}

func (f *fakeExpander) Expand(ctx context.Context, persona, destination, start, end string, k int) ([]string, error) {
	f.calls.Add(1)
	if len(f.keywords) > k {
		return f.keywords[:k], nil
	}
	return f.keywords, nil
}

type fakeStore struct {
	mu        sync.Mutex
	matches   []vectorstore.Match
	byPlaceID map[string]poi.POI
	added     []poi.POI
}

func newFakeStore() *fakeStore {
	return &fakeStore{byPlaceID: map[string]poi.POI{}}
}

func (s *fakeStore) Add(ctx context.Context, p poi.POI, docText string) (string, error) {
	_, err := s.AddBatch(ctx, []poi.POI{p}, []string{docText})
	return p.ID, err
}

func (s *fakeStore) AddBatch(ctx context.Context, pois []poi.POI, docTexts []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pois {
		s.added = append(s.added, p)
		if p.PlaceID != "" {
			s.byPlaceID[p.PlaceID] = p
		}
	}
	return len(pois), nil
}

func (s *fakeStore) Search(ctx context.Context, query string, k int, city string, floor float64) ([]vectorstore.Match, error) {
	if len(s.matches) > k {
		return s.matches[:k], nil
	}
	return s.matches, nil
}

func (s *fakeStore) FindByName(ctx context.Context, name, city string) (*poi.POI, error) {
	return nil, vectorstore.ErrNotFound
}

func (s *fakeStore) FindByPlaceID(ctx context.Context, placeID, city string) (*poi.POI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.byPlaceID[placeID]; ok {
		if city == "" || p.City == city {
			return &p, nil
		}
	}
	return nil, vectorstore.ErrNotFound
}

func (s *fakeStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byPlaceID), nil
}

func (s *fakeStore) Close() error { return nil }

type fakeSummarizer struct {
	calls atomic.Int32
	fail  map[string]bool
}

func (f *fakeSummarizer) Summarize(ctx context.Context, candidate poi.SearchCandidate, destination string) (*summarize.Summary, error) {
	f.calls.Add(1)
	if f.fail[candidate.Title] {
		return nil, summarize.ErrUnparseable
	}
	return &summarize.Summary{
		Name:        candidate.Title,
		Category:    poi.CategoryAttraction,
		Description: "about " + candidate.Title,
		Highlights:  []string{"notable"},
	}, nil
}

type fakeResolver struct {
	calls   atomic.Int32
	records map[string]poi.POI
}

func (f *fakeResolver) Resolve(ctx context.Context, name, city string) (*poi.POI, error) {
	f.calls.Add(1)
	if p, ok := f.records[name]; ok {
		return &p, nil
	}
	return nil, fmt.Errorf("place not found: %q", name)
}

type fakeReranker struct {
	scores map[string]float64
	calls  atomic.Int32
}

func (f *fakeReranker) Rerank(ctx context.Context, persona, destination string, items []reranker.Item, batchSize int, minScore float64) (reranker.Result, error) {
	f.calls.Add(1)
	var result reranker.Result
	for _, item := range items {
		if s, ok := f.scores[item.POI.Name]; ok {
			item.Score = s
		} else {
			item.Score = 0.8
		}
		if item.Score < minScore {
			result.Dropped = append(result.Dropped, item)
		} else {
			result.Kept = append(result.Kept, item)
		}
	}
	sort.SliceStable(result.Kept, func(i, j int) bool {
		return result.Kept[i].Score > result.Kept[j].Score
	})
	return result, nil
}

type fakeAliases struct {
	mu      sync.Mutex
	entries map[string]string
}

func newFakeAliases() *fakeAliases { return &fakeAliases{entries: map[string]string{}} }

func (f *fakeAliases) key(name, city string) string {
	return aliascache.NormalizeName(name) + "|" + aliascache.NormalizeName(city)
}

func (f *fakeAliases) Find(ctx context.Context, name, city string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[f.key(name, city)], nil
}

func (f *fakeAliases) HasPlaceID(ctx context.Context, placeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.entries {
		if id == placeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAliases) Add(ctx context.Context, name, city, placeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := f.key(name, city)
	if _, exists := f.entries[key]; !exists && placeID != "" {
		f.entries[key] = placeID
	}
	return nil
}

type fakeWebProvider struct {
	results map[string][]poi.SearchCandidate
	calls   atomic.Int32
}

func (f *fakeWebProvider) Search(ctx context.Context, query string, maxResults int) ([]poi.SearchCandidate, error) {
	f.calls.Add(1)
	return f.results[query], nil
}

// --- helpers ---

func testConfig() config.PipelineConfig {
	return config.PipelineConfig{
		KeywordK:        3,
		EmbeddingK:      5,
		WebSearchK:      3,
		FinalPOICount:   20,
		RerankMinScore:  0.5,
		RelevanceFloor:  0.3,
		WebWeight:       0.6,
		EmbeddingWeight: 0.4,
		BatchSize:       10,
		SemaphoreLimit:  5,
	}
}

type fixture struct {
	expander *fakeExpander
	store    *fakeStore
	summ     *fakeSummarizer
	resolver *fakeResolver
	rerank   *fakeReranker
	aliases  *fakeAliases
	web      *fakeWebProvider
}

func newFixture() *fixture {
	return &fixture{
		expander: &fakeExpander{},
		store:    newFakeStore(),
		summ:     &fakeSummarizer{},
		resolver: &fakeResolver{records: map[string]poi.POI{}},
		rerank:   &fakeReranker{scores: map[string]float64{}},
		aliases:  newFakeAliases(),
		web:      &fakeWebProvider{results: map[string][]poi.SearchCandidate{}},
	}
}

func (f *fixture) pipeline(t *testing.T, cfg config.PipelineConfig) *Pipeline {
	t.Helper()
	p, err := New(cfg, Deps{
		Expander:    f.expander,
		Store:       f.store,
		Summarizer:  f.summ,
		Resolver:    f.resolver,
		Reranker:    f.rerank,
		Aliases:     f.aliases,
		Formatter:   embeddings.Document,
		WebProvider: f.web,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	return p
}

func storedPOI(id, name, placeID string) poi.POI {
	return poi.POI{
		ID:          id,
		Name:        name,
		Category:    poi.CategoryAttraction,
		Description: "about " + name,
		City:        "Seoul",
		Source:      poi.SourceEmbeddingDB,
		RawText:     name,
		PlaceID:     placeID,
	}
}

func webCandidate(title string) poi.SearchCandidate {
	return poi.SearchCandidate{
		Title:   title,
		Snippet: "snippet for " + title,
		URL:     "https://example.com/" + title,
		Source:  poi.SourceWebSearch,
		Score:   0.5,
	}
}

// --- tests ---

func TestEmptyPersonaMakesNoCalls(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t, testConfig())

	pois, state, err := p.Run(context.Background(), Request{Persona: "  ", Destination: "Seoul"})
	require.NoError(t, err)
	assert.Empty(t, pois)
	assert.NotNil(t, state)
	assert.Zero(t, f.expander.calls.Load())
	assert.Zero(t, f.web.calls.Load())
}

func TestTravelDays(t *testing.T) {
	tests := []struct {
		start, end string
		want       int
	}{
		{"2026-01-06", "2026-01-07", 2},
		{"2026-01-06", "2026-01-06", 1},
		{"", "2026-01-07", 0},
		{"bogus", "2026-01-07", 0},
		{"2026-01-08", "2026-01-06", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, travelDays(tt.start, tt.end), "%s..%s", tt.start, tt.end)
	}
}

func TestShortCircuitSkipsWebChannel(t *testing.T) {
	f := newFixture()
	f.expander.keywords = []string{"food Seoul"}
	for i := 0; i < 5; i++ {
		p := storedPOI(fmt.Sprintf("p%d", i), fmt.Sprintf("Place %d", i), fmt.Sprintf("PX%d", i))
		f.store.matches = append(f.store.matches, vectorstore.Match{POI: p, Score: 0.9})
	}

	p := f.pipeline(t, testConfig())
	// One travel day: target is 5, matched exactly by the store.
	pois, state, err := p.Run(context.Background(), Request{
		Persona:     "solo traveller, local food",
		Destination: "Seoul",
		StartDate:   "2026-01-06",
		EndDate:     "2026-01-06",
	})
	require.NoError(t, err)

	assert.True(t, state.ShortCircuited)
	assert.Zero(t, f.web.calls.Load())
	assert.Zero(t, f.summ.calls.Load())
	assert.Len(t, pois, 5)
	for _, got := range pois {
		assert.Equal(t, poi.SourceEmbeddingDB, got.Source)
	}
}

func TestWebPathAdmitsAndMerges(t *testing.T) {
	f := newFixture()
	f.expander.keywords = []string{"kw"}
	f.web.results["kw"] = []poi.SearchCandidate{
		webCandidate("Gwangjang Market"),
		webCandidate("Cafe Onion"),
		webCandidate("Bukchon Village"),
	}
	for i, name := range []string{"Gwangjang Market", "Cafe Onion", "Bukchon Village"} {
		record := storedPOI(fmt.Sprintf("w%d", i), name, fmt.Sprintf("PW%d", i))
		record.Source = poi.SourceWebSearch
		f.resolver.records[name] = record
	}

	p := f.pipeline(t, testConfig())
	pois, state, err := p.Run(context.Background(), Request{Persona: "foodie", Destination: "Seoul"})
	require.NoError(t, err)

	assert.Len(t, pois, 3)
	assert.Len(t, f.store.added, 3)
	assert.Equal(t, int32(3), f.resolver.calls.Load())
	for _, name := range []string{"Gwangjang Market", "Cafe Onion", "Bukchon Village"} {
		id, _ := f.aliases.Find(context.Background(), name, "Seoul")
		assert.NotEmpty(t, id, "alias for %s", name)
	}
	// Admitted records carry embedding text assembled from the summary.
	assert.Contains(t, f.store.added[0].RawText, ".")
	assert.False(t, state.EarlyTerminated)

	// Merged scores are sorted best first.
	for i := 1; i < len(state.Merged); i++ {
		assert.GreaterOrEqual(t, state.Merged[i-1].Score, state.Merged[i].Score)
	}

	assert.Equal(t, map[string]int{"kw": 3}, state.Stats.KeywordPages)
}

func TestAliasHitSkipsResolver(t *testing.T) {
	f := newFixture()
	f.expander.keywords = []string{"kw"}
	f.web.results["kw"] = []poi.SearchCandidate{webCandidate("N Seoul Tower")}

	existing := storedPOI("p1", "N Seoul Tower", "PX123")
	f.store.byPlaceID["PX123"] = existing
	require.NoError(t, f.aliases.Add(context.Background(), "N Seoul Tower", "Seoul", "PX123"))

	p := f.pipeline(t, testConfig())
	pois, state, err := p.Run(context.Background(), Request{Persona: "views", Destination: "Seoul"})
	require.NoError(t, err)

	assert.Zero(t, f.resolver.calls.Load())
	assert.Empty(t, f.store.added)
	require.Len(t, pois, 1)
	assert.Equal(t, "p1", pois[0].ID)
	assert.Equal(t, 1, state.Stats.AliasHits)
}

func TestNewAliasDiscoveredViaResolver(t *testing.T) {
	f := newFixture()
	f.expander.keywords = []string{"kw"}
	f.web.results["kw"] = []poi.SearchCandidate{webCandidate("남산타워")}

	existing := storedPOI("p1", "N Seoul Tower", "PX123")
	f.store.byPlaceID["PX123"] = existing
	require.NoError(t, f.aliases.Add(context.Background(), "N Seoul Tower", "Seoul", "PX123"))

	resolved := storedPOI("PX123", "N Seoul Tower", "PX123")
	f.resolver.records["남산타워"] = resolved

	p := f.pipeline(t, testConfig())
	pois, state, err := p.Run(context.Background(), Request{Persona: "views", Destination: "Seoul"})
	require.NoError(t, err)

	// The new name now maps to the known place; nothing re-admitted.
	id, _ := f.aliases.Find(context.Background(), "남산타워", "Seoul")
	assert.Equal(t, "PX123", id)
	assert.Empty(t, f.store.added)
	require.Len(t, pois, 1)
	assert.Equal(t, "p1", pois[0].ID)
	assert.Equal(t, 1, state.Stats.AliasHits)
}

func TestEarlyTermination(t *testing.T) {
	f := newFixture()
	f.expander.keywords = []string{"kw"}
	var batch []poi.SearchCandidate
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("Place %d", i)
		batch = append(batch, webCandidate(name))
		f.resolver.records[name] = storedPOI(fmt.Sprintf("w%d", i), name, fmt.Sprintf("PW%d", i))
	}
	f.web.results["kw"] = batch

	cfg := testConfig()
	cfg.BatchSize = 2
	cfg.FinalPOICount = 3

	p := f.pipeline(t, cfg)
	_, state, err := p.Run(context.Background(), Request{Persona: "foodie", Destination: "Seoul"})
	require.NoError(t, err)

	assert.True(t, state.EarlyTerminated)
	// Batch three never starts, so its candidates are never summarized.
	assert.Equal(t, int32(4), f.summ.calls.Load())
	assert.GreaterOrEqual(t, len(state.RerankedWeb), 3)
	assert.Equal(t, 4, state.Stats.CandidatesChecked)
	assert.Equal(t, 2, state.Stats.CandidatesSkipped)
}

func TestWebChannelSortedAcrossBatches(t *testing.T) {
	f := newFixture()
	f.expander.keywords = []string{"kw"}
	var candidates []poi.SearchCandidate
	for i := 0; i < 4; i++ {
		name := fmt.Sprintf("Place %d", i)
		candidates = append(candidates, webCandidate(name))
		f.resolver.records[name] = storedPOI(fmt.Sprintf("w%d", i), name, fmt.Sprintf("PW%d", i))
	}
	f.web.results["kw"] = candidates
	// The best-scoring places land in the second batch.
	f.rerank.scores = map[string]float64{
		"Place 0": 0.6,
		"Place 1": 0.55,
		"Place 2": 0.95,
		"Place 3": 0.9,
	}

	cfg := testConfig()
	cfg.BatchSize = 2

	p := f.pipeline(t, cfg)
	_, state, err := p.Run(context.Background(), Request{Persona: "foodie", Destination: "Seoul"})
	require.NoError(t, err)

	require.Len(t, state.RerankedWeb, 4)
	assert.InDelta(t, 0.95, state.RerankedWeb[0].Score, 1e-9)
	for i := 1; i < len(state.RerankedWeb); i++ {
		assert.GreaterOrEqual(t, state.RerankedWeb[i-1].Score, state.RerankedWeb[i].Score)
	}
}

func TestMergeAliasesOnlyCrossChannelDuplicates(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t, testConfig())

	record := storedPOI("pw", "Gwangjang Market", "PX1")
	state := newState(Request{Destination: "Seoul"}, 0, 20)
	state.POIData["pw"] = record

	web := func(title string, score float64) poi.SearchCandidate {
		c := webCandidate(title)
		c.POIID = "pw"
		c.URL = ""
		c.Score = score
		return c
	}
	// Two web spellings of the same place, then the embedding channel's
	// copy under its own title.
	state.RerankedWeb = []poi.SearchCandidate{
		web("Gwangjang Market", 0.9),
		web("Kwangjang Market", 0.8),
	}
	state.RerankedEmbedding = []poi.SearchCandidate{{
		POIID:  "pw",
		Title:  "Gwangjang Traditional Market",
		Source: poi.SourceEmbeddingDB,
		Score:  0.7,
	}}

	run := stats.NewRun()
	p.mergeResults(context.Background(), Request{Destination: "Seoul"}, run, state)

	// Only the embedding title becomes an alias for the place.
	id, _ := f.aliases.Find(context.Background(), "Gwangjang Traditional Market", "Seoul")
	assert.Equal(t, "PX1", id)
	id, _ = f.aliases.Find(context.Background(), "Kwangjang Market", "Seoul")
	assert.Empty(t, id)

	s := run.Snapshot()
	assert.Equal(t, 1, s.MergeWebDuplicates)
	assert.Equal(t, 1, s.MergeCrossDuplicates)
	assert.Equal(t, 2, s.MergedDuplicates)
}

func TestSummarizeFailureDropsCandidate(t *testing.T) {
	f := newFixture()
	f.expander.keywords = []string{"kw"}
	f.web.results["kw"] = []poi.SearchCandidate{webCandidate("Good"), webCandidate("Bad")}
	f.summ.fail = map[string]bool{"Bad": true}
	f.resolver.records["Good"] = storedPOI("w1", "Good", "PW1")

	p := f.pipeline(t, testConfig())
	pois, state, err := p.Run(context.Background(), Request{Persona: "x", Destination: "Seoul"})
	require.NoError(t, err)

	assert.Len(t, pois, 1)
	assert.Equal(t, 1, state.Stats.SummarizeSkipped)
	assert.Equal(t, int32(1), f.resolver.calls.Load())
}

func TestUnresolvedCandidateDropped(t *testing.T) {
	f := newFixture()
	f.expander.keywords = []string{"kw"}
	f.web.results["kw"] = []poi.SearchCandidate{webCandidate("Nowhere Special")}

	p := f.pipeline(t, testConfig())
	pois, state, err := p.Run(context.Background(), Request{Persona: "x", Destination: "Seoul"})
	require.NoError(t, err)

	assert.Empty(t, pois)
	assert.Equal(t, 1, state.Stats.PlacesUnresolved)
}

func TestStateDump(t *testing.T) {
	f := newFixture()
	path := filepath.Join(t.TempDir(), "state.json")

	p := f.pipeline(t, testConfig())
	_, _, err := p.Run(context.Background(), Request{
		Persona:     "foodie",
		Destination: "Seoul",
		SavePath:    path,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var dump struct {
		Metadata struct {
			GeneratedAt string `json:"generated_at"`
		} `json:"metadata"`
		State *State `json:"state"`
	}
	require.NoError(t, json.Unmarshal(data, &dump))
	assert.NotEmpty(t, dump.Metadata.GeneratedAt)
	require.NotNil(t, dump.State)
	assert.Equal(t, "Seoul", dump.State.Destination)
}

func TestNoKeywordsSkipsWebChannel(t *testing.T) {
	f := newFixture()
	f.expander.keywords = nil

	p := f.pipeline(t, testConfig())
	pois, _, err := p.Run(context.Background(), Request{Persona: "foodie", Destination: "Seoul"})
	require.NoError(t, err)

	assert.Empty(t, pois)
	assert.Zero(t, f.web.calls.Load())
}
