// Package extraction pulls place-name candidates out of fetched page
// content using an LLM.
package extraction

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripd/internal/llm"
	"github.com/fyrsmithlabs/tripd/internal/poi"
)

// placeholderScore marks freshly extracted candidates. Real scores come
// from reranking later in the flow.
const placeholderScore = 0.5

// maxContentLength truncates page content before prompting.
const maxContentLength = 12000

var poiBlockPattern = regexp.MustCompile(`(?s)<poi>(.*?)</poi>`)

const promptTemplate = `You are extracting points of interest from a travel article about %s.

List every specific, visitable place the article mentions: restaurants, cafes, attractions, shops, neighborhoods. Skip generic mentions ("a nice cafe"), other cities, and the destination itself.

Article content:
%s

Respond with exactly this format and nothing else:
<pois>
<poi><name>place name</name><snippet>what the article says about it</snippet></poi>
<poi><name>another place</name><snippet>its description</snippet></poi>
</pois>`

// Extractor extracts place candidates from page content.
type Extractor struct {
	client llm.Client
	logger *zap.Logger
}

// New creates an Extractor.
func New(client llm.Client, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{client: client, logger: logger}
}

// Extract returns the candidates found in content, deduplicated by
// title. Each candidate carries the source URL and a placeholder score.
// Unparseable model output yields an empty slice, not an error.
func (e *Extractor) Extract(ctx context.Context, content, destination, sourceURL string) ([]poi.SearchCandidate, error) {
	if strings.TrimSpace(content) == "" {
		return []poi.SearchCandidate{}, nil
	}
	if len(content) > maxContentLength {
		content = content[:maxContentLength]
	}

	prompt := fmt.Sprintf(promptTemplate, destination, content)
	out, err := e.client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("extracting from %s: %w", sourceURL, err)
	}

	candidates := parseCandidates(out, sourceURL)
	if len(candidates) == 0 {
		e.logger.Debug("no candidates extracted", zap.String("url", sourceURL))
	}
	return candidates, nil
}

func parseCandidates(out, sourceURL string) []poi.SearchCandidate {
	blocks := poiBlockPattern.FindAllStringSubmatch(out, -1)
	candidates := make([]poi.SearchCandidate, 0, len(blocks))
	seen := make(map[string]struct{}, len(blocks))

	for _, block := range blocks {
		body := block[1]
		name := field(body, "name")
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		candidates = append(candidates, poi.SearchCandidate{
			Title:   name,
			Snippet: field(body, "snippet"),
			URL:     sourceURL,
			Source:  poi.SourceWebSearch,
			Score:   placeholderScore,
		})
	}
	return candidates
}

func field(body, tag string) string {
	pattern := regexp.MustCompile(`(?s)<` + tag + `>(.*?)</` + tag + `>`)
	m := pattern.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
