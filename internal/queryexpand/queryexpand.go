// Package queryexpand turns a traveler persona into destination-scoped
// web search keywords using an LLM.
package queryexpand

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripd/internal/llm"
)

var keywordPattern = regexp.MustCompile(`(?s)<keyword>(.*?)</keyword>`)

const promptTemplate = `You are a travel search assistant. Generate %d web search keywords for finding points of interest matching this traveler.

Destination: %s
Trip dates: %s
Traveler profile: %s

Each keyword must be a short search query (2-6 words) and must mention the destination. Cover different aspects of the profile (food, sights, activities) rather than rephrasing one idea. Take the trip dates into account: prefer what suits that season and time of year (festivals, seasonal food, weather-appropriate activities).

Respond with exactly this format and nothing else:
<keywords>
<keyword>first search query</keyword>
<keyword>second search query</keyword>
</keywords>`

// Expander generates search keywords from a persona.
type Expander struct {
	client llm.Client
	logger *zap.Logger
}

// New creates an Expander.
func New(client llm.Client, logger *zap.Logger) *Expander {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expander{client: client, logger: logger}
}

// Expand returns up to k search keywords for the persona, each scoped to
// the destination. Trip dates, when supplied, steer the model toward
// seasonal suggestions. A keyword that omits the destination gets it
// appended. Returns an empty slice (not an error) when the model output
// cannot be parsed, so the caller can fall back to the bare persona.
func (e *Expander) Expand(ctx context.Context, persona, destination, start, end string, k int) ([]string, error) {
	if strings.TrimSpace(persona) == "" {
		return []string{}, nil
	}
	if k <= 0 {
		return []string{}, nil
	}

	prompt := fmt.Sprintf(promptTemplate, k, destination, tripDates(start, end), persona)
	out, err := e.client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("expanding query: %w", err)
	}

	keywords := parseKeywords(out)
	if len(keywords) == 0 {
		e.logger.Warn("no keywords parsed from model output", zap.Int("output_len", len(out)))
		return []string{}, nil
	}

	seen := make(map[string]struct{}, len(keywords))
	result := make([]string, 0, k)
	for _, kw := range keywords {
		if len(result) == k {
			break
		}
		if destination != "" && !strings.Contains(strings.ToLower(kw), strings.ToLower(destination)) {
			kw = kw + " " + destination
		}
		key := strings.ToLower(kw)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, kw)
	}

	return result, nil
}

// tripDates renders the date range for the prompt.
func tripDates(start, end string) string {
	if start == "" || end == "" {
		return "unspecified"
	}
	return start + " to " + end
}

func parseKeywords(out string) []string {
	matches := keywordPattern.FindAllStringSubmatch(out, -1)
	keywords := make([]string, 0, len(matches))
	for _, m := range matches {
		kw := strings.TrimSpace(m[1])
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}
