package summarize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripd/internal/poi"
)

type fakeClient struct {
	response string
	err      error
}

func (c *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

func candidate() poi.SearchCandidate {
	return poi.SearchCandidate{
		Title:   "Gwangjang Market guide",
		Snippet: "A historic market in Seoul famous for street food.",
		URL:     "https://example.com/gwangjang",
	}
}

func TestSummarize(t *testing.T) {
	client := &fakeClient{response: `<poi>
<name>Gwangjang Market</name>
<category>attraction</category>
<description>Historic covered market with over a century of history.</description>
<address>88 Changgyeonggung-ro, Jongno-gu</address>
<summary>Essential stop for street food lovers.</summary>
<highlights><highlight>bindaetteok</highlight><highlight>mayak gimbap</highlight></highlights>
</poi>`}
	s := New(client, zap.NewNop())

	summary, err := s.Summarize(context.Background(), candidate(), "Seoul")
	require.NoError(t, err)
	assert.Equal(t, "Gwangjang Market", summary.Name)
	assert.Equal(t, poi.CategoryAttraction, summary.Category)
	assert.Equal(t, "88 Changgyeonggung-ro, Jongno-gu", summary.Address)
	assert.Equal(t, []string{"bindaetteok", "mayak gimbap"}, summary.Highlights)
}

func TestSummarizeCommaHighlights(t *testing.T) {
	client := &fakeClient{response: `<poi><name>X</name><category>cafe</category><highlights>latte art, rooftop view</highlights></poi>`}
	s := New(client, zap.NewNop())

	summary, err := s.Summarize(context.Background(), candidate(), "Seoul")
	require.NoError(t, err)
	assert.Equal(t, []string{"latte art", "rooftop view"}, summary.Highlights)
}

func TestSummarizeUnknownCategory(t *testing.T) {
	client := &fakeClient{response: `<poi><name>X</name><category>spa resort</category></poi>`}
	s := New(client, zap.NewNop())

	summary, err := s.Summarize(context.Background(), candidate(), "Seoul")
	require.NoError(t, err)
	assert.Equal(t, poi.CategoryOther, summary.Category)
}

func TestSummarizeUnparseable(t *testing.T) {
	s := New(&fakeClient{response: "I could not find a place here."}, zap.NewNop())
	_, err := s.Summarize(context.Background(), candidate(), "Seoul")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestSummarizeMissingName(t *testing.T) {
	s := New(&fakeClient{response: `<poi><category>cafe</category></poi>`}, zap.NewNop())
	_, err := s.Summarize(context.Background(), candidate(), "Seoul")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestSummarizeClientError(t *testing.T) {
	s := New(&fakeClient{err: assert.AnError}, zap.NewNop())
	_, err := s.Summarize(context.Background(), candidate(), "Seoul")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnparseable)
}
