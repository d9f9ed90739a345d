// Package merger combines candidates from multiple retrieval channels
// into one ranked list, with per-channel weights and cross-channel
// deduplication.
package merger

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripd/internal/poi"
)

const (
	defaultWebWeight       = 0.6
	defaultEmbeddingWeight = 0.4
)

// Config holds the channel weights.
type Config struct {
	// WebWeight scales scores of web search candidates. Default: 0.6.
	WebWeight float64

	// EmbeddingWeight scales scores of vector store candidates. Default: 0.4.
	EmbeddingWeight float64
}

func (c Config) applyDefaults() Config {
	if c.WebWeight <= 0 {
		c.WebWeight = defaultWebWeight
	}
	if c.EmbeddingWeight <= 0 {
		c.EmbeddingWeight = defaultEmbeddingWeight
	}
	return c
}

// Duplicate records a candidate dropped because it matched one already
// merged under the same identity key. Callers use these pairs to
// register name aliases.
type Duplicate struct {
	Key     string
	Kept    poi.SearchCandidate
	Dropped poi.SearchCandidate
}

// Result is the merged, ranked candidate list plus the duplicates the
// merge collapsed.
type Result struct {
	Candidates []poi.SearchCandidate
	Duplicates []Duplicate
}

// Merger merges ranked candidate lists.
type Merger struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a Merger.
func New(cfg Config, logger *zap.Logger) *Merger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{cfg: cfg.applyDefaults(), logger: logger}
}

// identityKey picks the strongest identity a candidate carries: a
// resolved place id beats a source URL, which beats the lowercased
// title.
func identityKey(c poi.SearchCandidate) string {
	if c.POIID != "" {
		return "poi:" + c.POIID
	}
	if c.URL != "" {
		return "url:" + c.URL
	}
	return "title:" + strings.ToLower(strings.TrimSpace(c.Title))
}

// Merge combines the two channels. Scores are scaled by channel weight;
// when both channels produced the same place, the web record is kept
// and the weighted scores are summed so agreement ranks higher than
// either channel alone. The result is ordered best first.
func (m *Merger) Merge(web, embedding []poi.SearchCandidate) Result {
	merged := make(map[string]*poi.SearchCandidate)
	var order []string
	var duplicates []Duplicate

	admit := func(c poi.SearchCandidate, weight float64) {
		key := identityKey(c)
		if key == "title:" {
			return
		}
		weighted := c.Score * weight

		if existing, ok := merged[key]; ok {
			existing.Score += weighted
			duplicates = append(duplicates, Duplicate{Key: key, Kept: *existing, Dropped: c})
			return
		}

		c.Score = weighted
		merged[key] = &c
		order = append(order, key)
	}

	for _, c := range web {
		admit(c, m.cfg.WebWeight)
	}
	for _, c := range embedding {
		admit(c, m.cfg.EmbeddingWeight)
	}

	candidates := make([]poi.SearchCandidate, 0, len(order))
	for _, key := range order {
		candidates = append(candidates, *merged[key])
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	m.logger.Debug("channels merged",
		zap.Int("web", len(web)),
		zap.Int("embedding", len(embedding)),
		zap.Int("merged", len(candidates)),
		zap.Int("duplicates", len(duplicates)),
	)

	return Result{Candidates: candidates, Duplicates: duplicates}
}
