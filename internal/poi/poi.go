// Package poi defines the domain model shared by the retrieval pipeline:
// canonical place records, in-flight search candidates, and opening hours.
package poi

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// Category classifies a point of interest.
type Category string

const (
	CategoryRestaurant    Category = "restaurant"
	CategoryCafe          Category = "cafe"
	CategoryAttraction    Category = "attraction"
	CategoryAccommodation Category = "accommodation"
	CategoryShopping      Category = "shopping"
	CategoryEntertainment Category = "entertainment"
	CategoryRegion        Category = "region"
	CategoryOther         Category = "other"
)

// ParseCategory maps a free-form string to a Category, falling back to
// CategoryOther for anything unknown.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryRestaurant, CategoryCafe, CategoryAttraction,
		CategoryAccommodation, CategoryShopping, CategoryEntertainment,
		CategoryRegion, CategoryOther:
		return Category(s)
	}
	return CategoryOther
}

// Source records where a POI or candidate originated.
type Source string

const (
	SourceWebSearch    Source = "web_search"
	SourceEmbeddingDB  Source = "embedding_db"
	SourceUserFeedback Source = "user_feedback"
)

// POI is the canonical record for a place. Instances are immutable once
// admitted to the vector store; corrections are written as new versions
// under the same ID.
type POI struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
	City        string   `json:"city,omitempty"`
	Address     string   `json:"address,omitempty"`
	Source      Source   `json:"source"`
	SourceURL   string   `json:"source_url,omitempty"`

	// RawText is the concatenated text used for embedding.
	RawText   string    `json:"raw_text"`
	CreatedAt time.Time `json:"created_at"`

	// External place provider linkage.
	PlaceID     string   `json:"place_id,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	MapsURI     string   `json:"maps_uri,omitempty"`
	Types       []string `json:"types,omitempty"`
	PrimaryType string   `json:"primary_type,omitempty"`

	// Quality signals.
	Rating      *float64 `json:"rating,omitempty"`
	RatingCount *int     `json:"rating_count,omitempty"`
	PriceLevel  string   `json:"price_level,omitempty"`
	PriceRange  string   `json:"price_range,omitempty"`
	WebsiteURI  string   `json:"website_uri,omitempty"`
	Phone       string   `json:"phone,omitempty"`

	// Textual enrichment.
	EditorialSummary  string `json:"editorial_summary,omitempty"`
	GenerativeSummary string `json:"generative_summary,omitempty"`
	ReviewSummary     string `json:"review_summary,omitempty"`

	OpeningHours *OpeningHours `json:"opening_hours,omitempty"`
}

// SearchCandidate is a lightweight retrieval hit. It exists only for the
// duration of a run and carries no persistent identity until its POIID is
// set by the admission path.
type SearchCandidate struct {
	POIID   string  `json:"poi_id,omitempty"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	URL     string  `json:"url,omitempty"`
	Source  Source  `json:"source"`
	Score   float64 `json:"score"`
}

// ContentID derives a stable POI id from a source URL for candidates that
// could not be resolved to an external place id.
func ContentID(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}
