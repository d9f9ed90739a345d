// Package summarize condenses a raw web-search candidate into a
// structured place summary using an LLM.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripd/internal/llm"
	"github.com/fyrsmithlabs/tripd/internal/poi"
)

// ErrUnparseable indicates the model output did not contain a usable
// place envelope. Callers drop the candidate.
var ErrUnparseable = errors.New("unparseable summary output")

// Summary is the structured result of summarizing one candidate.
type Summary struct {
	Name        string
	Category    poi.Category
	Description string
	Address     string
	Summary     string
	Highlights  []string
}

var (
	poiBlockPattern  = regexp.MustCompile(`(?s)<poi>(.*?)</poi>`)
	highlightPattern = regexp.MustCompile(`(?s)<highlight>(.*?)</highlight>`)
)

const promptTemplate = `You are a travel data curator. Summarize the following search result into a structured place record for %s.

Title: %s
URL: %s
Content:
%s

Categories: restaurant, cafe, attraction, accommodation, shopping, entertainment, region, other.

Respond with exactly this format and nothing else:
<poi>
<name>canonical place name</name>
<category>one category from the list</category>
<description>one or two sentences about the place</description>
<address>street address if present, else empty</address>
<summary>why this place suits a visitor</summary>
<highlights><highlight>notable feature</highlight><highlight>another feature</highlight></highlights>
</poi>`

// Summarizer produces structured summaries of search candidates.
type Summarizer struct {
	client llm.Client
	logger *zap.Logger
}

// New creates a Summarizer.
func New(client llm.Client, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{client: client, logger: logger}
}

// Summarize condenses one candidate. Returns ErrUnparseable when the
// model output has no usable envelope or no name.
func (s *Summarizer) Summarize(ctx context.Context, candidate poi.SearchCandidate, destination string) (*Summary, error) {
	content := candidate.Snippet
	if content == "" {
		content = candidate.Title
	}

	prompt := fmt.Sprintf(promptTemplate, destination, candidate.Title, candidate.URL, content)
	out, err := s.client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("summarizing %q: %w", candidate.Title, err)
	}

	summary, err := parse(out)
	if err != nil {
		s.logger.Debug("dropping unparseable summary",
			zap.String("title", candidate.Title),
			zap.Error(err),
		)
		return nil, err
	}
	return summary, nil
}

func parse(out string) (*Summary, error) {
	block := poiBlockPattern.FindStringSubmatch(out)
	if block == nil {
		return nil, ErrUnparseable
	}
	body := block[1]

	name := field(body, "name")
	if name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrUnparseable)
	}

	summary := &Summary{
		Name:        name,
		Category:    poi.ParseCategory(strings.ToLower(field(body, "category"))),
		Description: field(body, "description"),
		Address:     field(body, "address"),
		Summary:     field(body, "summary"),
	}

	if highlightsBlock := field(body, "highlights"); highlightsBlock != "" {
		for _, m := range highlightPattern.FindAllStringSubmatch(highlightsBlock, -1) {
			if h := strings.TrimSpace(m[1]); h != "" {
				summary.Highlights = append(summary.Highlights, h)
			}
		}
		// Some models emit comma-separated highlights without inner tags.
		if len(summary.Highlights) == 0 {
			for _, h := range strings.Split(highlightsBlock, ",") {
				if h = strings.TrimSpace(h); h != "" {
					summary.Highlights = append(summary.Highlights, h)
				}
			}
		}
	}

	return summary, nil
}

// field extracts the trimmed content of the first <tag>...</tag> pair.
func field(body, tag string) string {
	pattern := regexp.MustCompile(`(?s)<` + tag + `>(.*?)</` + tag + `>`)
	m := pattern.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
