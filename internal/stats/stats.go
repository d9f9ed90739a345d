// Package stats collects per-run retrieval counters and renders them
// as a human-readable report.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DroppedCandidate records one candidate cut by the reranker.
type DroppedCandidate struct {
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Snapshot is a point-in-time copy of the run counters.
type Snapshot struct {
	StartedAt time.Time `json:"started_at"`
	Elapsed   string    `json:"elapsed"`

	KeywordsExpanded int `json:"keywords_expanded"`

	VectorHits int `json:"vector_hits"`
	VectorKept int `json:"vector_kept"`

	WebResults   int            `json:"web_results"`
	KeywordPages map[string]int `json:"keyword_pages"`
	URLCacheHits int            `json:"url_cache_hits"`

	AliasHits        int `json:"alias_hits"`
	TitleDuplicates  int `json:"title_duplicates"`
	PlacesResolved   int `json:"places_resolved"`
	PlacesUnresolved int `json:"places_unresolved"`
	Summarized       int `json:"summarized"`
	SummarizeSkipped int `json:"summarize_skipped"`

	RerankKept    int                `json:"rerank_kept"`
	RerankDropped int                `json:"rerank_dropped"`
	RerankDrops   []DroppedCandidate `json:"rerank_drops,omitempty"`

	EarlyTerminated   bool `json:"early_terminated"`
	CandidatesChecked int  `json:"candidates_checked"`
	CandidatesSkipped int  `json:"candidates_skipped"`

	MergedDuplicates     int `json:"merged_duplicates"`
	MergeWebDuplicates   int `json:"merge_web_duplicates"`
	MergeCrossDuplicates int `json:"merge_cross_duplicates"`
	FinalCount           int `json:"final_count"`

	StageDurations map[string]time.Duration `json:"stage_durations"`
}

// Run accumulates counters for one pipeline execution. Safe for
// concurrent use.
type Run struct {
	mu        sync.Mutex
	startedAt time.Time
	snap      Snapshot
}

// NewRun starts a counter set for a new execution.
func NewRun() *Run {
	now := time.Now()
	return &Run{
		startedAt: now,
		snap: Snapshot{
			StartedAt:      now.UTC(),
			KeywordPages:   make(map[string]int),
			StageDurations: make(map[string]time.Duration),
		},
	}
}

func (r *Run) update(fn func(*Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.snap)
}

// AddKeywords records how many search keywords the expansion produced.
func (r *Run) AddKeywords(n int) { r.update(func(s *Snapshot) { s.KeywordsExpanded += n }) }

// AddVector records vector store hits and how many survived reranking.
func (r *Run) AddVector(hits, kept int) {
	r.update(func(s *Snapshot) {
		s.VectorHits += hits
		s.VectorKept += kept
	})
}

// AddWebResults records candidates returned by web search.
func (r *Run) AddWebResults(n int) { r.update(func(s *Snapshot) { s.WebResults += n }) }

// AddKeywordPages records how many result pages one keyword produced.
func (r *Run) AddKeywordPages(keyword string, n int) {
	r.update(func(s *Snapshot) { s.KeywordPages[keyword] += n })
}

// AddURLCacheHit records a page served from the URL cache.
func (r *Run) AddURLCacheHit() { r.update(func(s *Snapshot) { s.URLCacheHits++ }) }

// AddAliasHit records a candidate short-circuited by the alias cache.
func (r *Run) AddAliasHit() { r.update(func(s *Snapshot) { s.AliasHits++ }) }

// AddTitleDuplicate records a candidate dropped as a title-level dup.
func (r *Run) AddTitleDuplicate() { r.update(func(s *Snapshot) { s.TitleDuplicates++ }) }

// AddResolved records a successful place resolution.
func (r *Run) AddResolved() { r.update(func(s *Snapshot) { s.PlacesResolved++ }) }

// AddUnresolved records a candidate the place provider could not match.
func (r *Run) AddUnresolved() { r.update(func(s *Snapshot) { s.PlacesUnresolved++ }) }

// AddSummarized records a candidate summarized by the model.
func (r *Run) AddSummarized() { r.update(func(s *Snapshot) { s.Summarized++ }) }

// AddSummarizeSkipped records a candidate dropped as unsummarizable.
func (r *Run) AddSummarizeSkipped() { r.update(func(s *Snapshot) { s.SummarizeSkipped++ }) }

// AddRerank records kept and dropped counts from one rerank pass.
func (r *Run) AddRerank(kept, dropped int) {
	r.update(func(s *Snapshot) {
		s.RerankKept += kept
		s.RerankDropped += dropped
	})
}

// AddRerankDrops records the titles and scores the reranker cut.
func (r *Run) AddRerankDrops(drops []DroppedCandidate) {
	if len(drops) == 0 {
		return
	}
	r.update(func(s *Snapshot) { s.RerankDrops = append(s.RerankDrops, drops...) })
}

// MarkEarlyTermination records that the run stopped after checking only
// part of its candidates.
func (r *Run) MarkEarlyTermination(checked, skipped int) {
	r.update(func(s *Snapshot) {
		s.EarlyTerminated = true
		s.CandidatesChecked = checked
		s.CandidatesSkipped = skipped
	})
}

// AddMergeDuplicates records duplicates collapsed during the merge,
// split into web-internal and web-to-embedding collisions.
func (r *Run) AddMergeDuplicates(webInternal, cross int) {
	r.update(func(s *Snapshot) {
		s.MergeWebDuplicates += webInternal
		s.MergeCrossDuplicates += cross
		s.MergedDuplicates += webInternal + cross
	})
}

// SetFinalCount records the size of the final result list.
func (r *Run) SetFinalCount(n int) { r.update(func(s *Snapshot) { s.FinalCount = n }) }

// Stage times one pipeline stage. Call the returned func when the
// stage finishes.
func (r *Run) Stage(name string) func() {
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		r.update(func(s *Snapshot) { s.StageDurations[name] += elapsed })
	}
}

// Snapshot returns a copy of the current counters.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.snap
	snap.Elapsed = time.Since(r.startedAt).Round(time.Millisecond).String()
	snap.KeywordPages = make(map[string]int, len(r.snap.KeywordPages))
	for k, v := range r.snap.KeywordPages {
		snap.KeywordPages[k] = v
	}
	snap.RerankDrops = append([]DroppedCandidate(nil), r.snap.RerankDrops...)
	snap.StageDurations = make(map[string]time.Duration, len(r.snap.StageDurations))
	for k, v := range r.snap.StageDurations {
		snap.StageDurations[k] = v
	}
	return snap
}

// Report renders the counters as indented text for logs and CLI output.
func (r *Run) Report() string {
	s := r.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "run completed in %s\n", s.Elapsed)
	fmt.Fprintf(&b, "  keywords expanded:   %d\n", s.KeywordsExpanded)
	fmt.Fprintf(&b, "  vector hits/kept:    %d/%d\n", s.VectorHits, s.VectorKept)
	fmt.Fprintf(&b, "  web results:         %d (cache hits %d)\n", s.WebResults, s.URLCacheHits)
	if len(s.KeywordPages) > 0 {
		keywords := make([]string, 0, len(s.KeywordPages))
		for kw := range s.KeywordPages {
			keywords = append(keywords, kw)
		}
		sort.Strings(keywords)
		b.WriteString("  pages per keyword:\n")
		for _, kw := range keywords {
			fmt.Fprintf(&b, "    %-18s %d\n", kw, s.KeywordPages[kw])
		}
	}
	fmt.Fprintf(&b, "  alias hits:          %d\n", s.AliasHits)
	fmt.Fprintf(&b, "  title duplicates:    %d\n", s.TitleDuplicates)
	fmt.Fprintf(&b, "  places resolved:     %d (unresolved %d)\n", s.PlacesResolved, s.PlacesUnresolved)
	fmt.Fprintf(&b, "  summarized:          %d (skipped %d)\n", s.Summarized, s.SummarizeSkipped)
	fmt.Fprintf(&b, "  rerank kept/dropped: %d/%d\n", s.RerankKept, s.RerankDropped)
	for _, d := range s.RerankDrops {
		fmt.Fprintf(&b, "    dropped %q (%.2f)\n", d.Title, d.Score)
	}
	if s.EarlyTerminated {
		fmt.Fprintf(&b, "  early termination:   yes (checked %d, skipped %d)\n",
			s.CandidatesChecked, s.CandidatesSkipped)
	}
	fmt.Fprintf(&b, "  merge duplicates:    %d (web-internal %d, web-to-embedding %d)\n",
		s.MergedDuplicates, s.MergeWebDuplicates, s.MergeCrossDuplicates)
	fmt.Fprintf(&b, "  final count:         %d\n", s.FinalCount)

	if len(s.StageDurations) > 0 {
		names := make([]string, 0, len(s.StageDurations))
		for name := range s.StageDurations {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("  stages:\n")
		for _, name := range names {
			fmt.Fprintf(&b, "    %-18s %s\n", name, s.StageDurations[name].Round(time.Millisecond))
		}
	}
	return b.String()
}
