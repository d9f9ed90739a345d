package extraction

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripd/internal/poi"
)

type fakeClient struct {
	response string
	err      error
	prompt   string
}

func (c *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	c.prompt = prompt
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

func TestExtract(t *testing.T) {
	client := &fakeClient{response: `<pois>
<poi><name>Gwangjang Market</name><snippet>famous for bindaetteok</snippet></poi>
<poi><name>Cafe Onion</name><snippet>bakery cafe in Seongsu</snippet></poi>
</pois>`}
	e := New(client, zap.NewNop())

	candidates, err := e.Extract(context.Background(), "article text", "Seoul", "https://example.com/a")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "Gwangjang Market", candidates[0].Title)
	assert.Equal(t, "famous for bindaetteok", candidates[0].Snippet)
	assert.Equal(t, "https://example.com/a", candidates[0].URL)
	assert.Equal(t, 0.5, candidates[0].Score)
	assert.Equal(t, poi.SourceWebSearch, candidates[0].Source)
}

func TestExtractDeduplicatesByTitle(t *testing.T) {
	client := &fakeClient{response: `<pois>
<poi><name>Gwangjang Market</name><snippet>a</snippet></poi>
<poi><name>GWANGJANG market</name><snippet>b</snippet></poi>
</pois>`}
	e := New(client, zap.NewNop())

	candidates, err := e.Extract(context.Background(), "text", "Seoul", "https://example.com/a")
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

func TestExtractUnparseableOutput(t *testing.T) {
	e := New(&fakeClient{response: "no places found in this article"}, zap.NewNop())
	candidates, err := e.Extract(context.Background(), "text", "Seoul", "https://example.com/a")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestExtractEmptyContentSkipsLLM(t *testing.T) {
	client := &fakeClient{}
	e := New(client, zap.NewNop())
	candidates, err := e.Extract(context.Background(), "   ", "Seoul", "https://example.com/a")
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.Empty(t, client.prompt)
}

func TestExtractTruncatesLongContent(t *testing.T) {
	client := &fakeClient{response: "<pois></pois>"}
	e := New(client, zap.NewNop())
	_, err := e.Extract(context.Background(), strings.Repeat("x", maxContentLength*2), "Seoul", "u")
	require.NoError(t, err)
	assert.Less(t, len(client.prompt), maxContentLength+1000)
}

func TestExtractClientError(t *testing.T) {
	e := New(&fakeClient{err: assert.AnError}, zap.NewNop())
	_, err := e.Extract(context.Background(), "text", "Seoul", "u")
	assert.Error(t, err)
}
