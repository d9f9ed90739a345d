package embeddings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/tripd/internal/poi"
)

func TestDocument(t *testing.T) {
	rating := 4.3
	count := 812
	p := poi.POI{
		Name:              "Gwangjang Market",
		Description:       "Historic street food market",
		Category:          poi.CategoryAttraction,
		PrimaryType:       "tourist_attraction",
		City:              "Seoul",
		Address:           "88 Changgyeonggung-ro",
		Rating:            &rating,
		RatingCount:       &count,
		PriceRange:        "5000 ~ 15000 KRW",
		EditorialSummary:  "A century-old covered market.",
		GenerativeSummary: "Known for bindaetteok and mayak gimbap.",
		ReviewSummary:     "Great atmosphere | Crowded on weekends",
	}

	doc := Document(p)
	assert.Contains(t, doc, "Gwangjang Market")
	assert.Contains(t, doc, "Type: tourist_attraction")
	assert.Contains(t, doc, "City: Seoul")
	assert.Contains(t, doc, "Rating: 4.3 (812 reviews)")
	assert.Contains(t, doc, "Price: 5000 ~ 15000 KRW")
	assert.Contains(t, doc, "Reviews: Great atmosphere")
	assert.Contains(t, doc, " | ")
}

func TestDocumentCategoryFallback(t *testing.T) {
	p := poi.POI{Name: "Cafe Onion", Category: poi.CategoryCafe}
	doc := Document(p)
	assert.Contains(t, doc, "Type: cafe")
}

func TestDocumentPriceLevelFallback(t *testing.T) {
	p := poi.POI{Name: "Some Place", PriceLevel: "PRICE_LEVEL_MODERATE"}
	doc := Document(p)
	assert.Contains(t, doc, "Price: PRICE_LEVEL_MODERATE")
}

func TestDocumentRawTextFallback(t *testing.T) {
	p := poi.POI{RawText: "raw description only"}
	assert.Equal(t, "raw description only", Document(p))
}

func TestMetricsRecordGeneration(t *testing.T) {
	m := NewMetrics(nil)
	// Records against the global no-op meter without panicking.
	m.RecordGeneration(context.Background(), "BAAI/bge-small-en-v1.5", "batch_embed", 25*time.Millisecond, 8, nil)
	m.RecordGeneration(context.Background(), "BAAI/bge-small-en-v1.5", "embed", time.Millisecond, 0, assert.AnError)
}
