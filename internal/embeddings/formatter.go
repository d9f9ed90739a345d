package embeddings

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/tripd/internal/poi"
)

// Document renders a place into the text that gets embedded and stored.
// Fields are labeled and joined with " | " so the model sees one flat
// passage per place.
func Document(p poi.POI) string {
	parts := make([]string, 0, 10)

	if p.Name != "" {
		parts = append(parts, p.Name)
	}
	if p.Description != "" {
		parts = append(parts, p.Description)
	}

	placeType := p.PrimaryType
	if placeType == "" {
		placeType = string(p.Category)
	}
	if placeType != "" {
		parts = append(parts, "Type: "+placeType)
	}

	if p.City != "" {
		parts = append(parts, "City: "+p.City)
	}
	if p.Address != "" {
		parts = append(parts, "Address: "+p.Address)
	}

	if p.Rating != nil {
		if p.RatingCount != nil {
			parts = append(parts, fmt.Sprintf("Rating: %.1f (%d reviews)", *p.Rating, *p.RatingCount))
		} else {
			parts = append(parts, fmt.Sprintf("Rating: %.1f", *p.Rating))
		}
	}

	price := p.PriceRange
	if price == "" {
		price = p.PriceLevel
	}
	if price != "" {
		parts = append(parts, "Price: "+price)
	}

	if p.EditorialSummary != "" {
		parts = append(parts, p.EditorialSummary)
	}
	if p.GenerativeSummary != "" {
		parts = append(parts, p.GenerativeSummary)
	}
	if p.ReviewSummary != "" {
		parts = append(parts, "Reviews: "+p.ReviewSummary)
	}

	if len(parts) == 0 {
		return p.RawText
	}
	return strings.Join(parts, " | ")
}
