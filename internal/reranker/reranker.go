// Package reranker scores place candidates against a traveler persona
// using an LLM, in batches, with graceful fallback to the incoming
// scores when the model is unavailable.
package reranker

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripd/internal/llm"
	"github.com/fyrsmithlabs/tripd/internal/poi"
)

var scorePattern = regexp.MustCompile(`(?s)<score id="(\d+)">\s*([0-9.]+)\s*</score>`)

const promptTemplate = `You are ranking travel destinations for a specific traveler.

Traveler profile: %s
Destination: %s

Rate how well each place below fits this traveler, from 0.0 (irrelevant) to 1.0 (perfect match).

%s
Respond with exactly this format and nothing else:
<scores>
<score id="1">0.85</score>
<score id="2">0.40</score>
</scores>`

// Item is a place with its current relevance score.
type Item struct {
	POI   poi.POI
	Score float64
}

// Result splits reranked items into those above the score cutoff and
// those dropped below it. Kept is ordered best first.
type Result struct {
	Kept    []Item
	Dropped []Item
}

// Reranker scores items against a persona.
type Reranker struct {
	client llm.Client
	logger *zap.Logger
}

// New creates a Reranker.
func New(client llm.Client, logger *zap.Logger) *Reranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reranker{client: client, logger: logger}
}

// Rerank scores items in batches of batchSize and drops those scoring
// below minScore. Model failures and unscored items fall back to the
// incoming score, so reranking never loses candidates to an outage.
func (r *Reranker) Rerank(ctx context.Context, persona, destination string, items []Item, batchSize int, minScore float64) (Result, error) {
	if len(items) == 0 {
		return Result{Kept: []Item{}, Dropped: []Item{}}, nil
	}
	if batchSize <= 0 {
		batchSize = 10
	}

	scored := make([]Item, 0, len(items))
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		scored = append(scored, r.rerankBatch(ctx, persona, destination, items[start:end])...)
	}

	result := Result{Kept: []Item{}, Dropped: []Item{}}
	for _, item := range scored {
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

// rerankBatch scores one batch, falling back to input scores on error.
func (r *Reranker) rerankBatch(ctx context.Context, persona, destination string, batch []Item) []Item {
	prompt := fmt.Sprintf(promptTemplate, persona, destination, formatBatch(batch))

	out, err := r.client.Complete(ctx, prompt)
	if err != nil {
		r.logger.Warn("rerank batch failed, keeping input scores",
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
		return batch
	}

	scores := parseScores(out)
	result := make([]Item, len(batch))
	for i, item := range batch {
		if score, ok := scores[i+1]; ok {
			item.Score = clamp(score)
		}
		result[i] = item
	}
	return result
}

func formatBatch(batch []Item) string {
	var b strings.Builder
	for i, item := range batch {
		fmt.Fprintf(&b, "%d. %s", i+1, item.POI.Name)
		if item.POI.Category != "" {
			fmt.Fprintf(&b, " (%s)", item.POI.Category)
		}
		if item.POI.Description != "" {
			fmt.Fprintf(&b, ": %s", item.POI.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// parseScores maps 1-based item indexes to raw scores.
func parseScores(out string) map[int]float64 {
	scores := make(map[int]float64)
	for _, m := range scorePattern.FindAllStringSubmatch(out, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		scores[id] = score
	}
	return scores
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
