// Package places resolves place names to canonical provider records
// via the Google Places searchText API.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripd/internal/geocache"
)

// ErrNotFound indicates the provider returned no match for a query.
var ErrNotFound = errors.New("place not found")

const (
	defaultBaseURL  = "https://places.googleapis.com"
	defaultLanguage = "en"
	defaultTimeout  = 10 * time.Second

	searchTextPath = "/v1/places:searchText"

	// placeFieldMask selects the fields mapped into place records.
	placeFieldMask = "places.id,places.displayName,places.formattedAddress,places.location," +
		"places.types,places.primaryType,places.rating,places.userRatingCount," +
		"places.priceLevel,places.priceRange,places.websiteUri,places.internationalPhoneNumber," +
		"places.regularOpeningHours,places.editorialSummary,places.generativeSummary," +
		"places.googleMapsUri,places.reviews"

	// cityFieldMask is the minimal mask for geocoding a city.
	cityFieldMask = "places.location,places.displayName,places.formattedAddress"
)

// Config holds Places API client configuration.
type Config struct {
	// APIKey authenticates against the Places API.
	APIKey string

	// BaseURL overrides the API endpoint.
	BaseURL string

	// Language for returned display names. Default: "en".
	Language string

	// Timeout bounds each request. Default: 10s.
	Timeout time.Duration
}

// Client is a Google Places searchText client.
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Places API client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("places API key required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	language := cfg.Language
	if language == "" {
		language = defaultLanguage
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		language:   language,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type rectangle struct {
	Low  latLng `json:"low"`
	High latLng `json:"high"`
}

type locationRestriction struct {
	Rectangle rectangle `json:"rectangle"`
}

type searchTextRequest struct {
	TextQuery           string               `json:"textQuery"`
	LanguageCode        string               `json:"languageCode,omitempty"`
	IncludedType        string               `json:"includedType,omitempty"`
	LocationRestriction *locationRestriction `json:"locationRestriction,omitempty"`
}

type searchTextResponse struct {
	Places []apiPlace `json:"places"`
}

// searchRadiusRestriction builds a ~50km rectangle around a point.
// Longitude degrees shrink with latitude; the cosine is floored so the
// box stays sane near the poles.
func searchRadiusRestriction(loc geocache.Location) *locationRestriction {
	if !loc.Resolved() {
		return nil
	}
	lat := *loc.Latitude
	lng := *loc.Longitude

	const radiusMeters = 50000.0
	latOffset := radiusMeters / 111000.0
	lngOffset := radiusMeters / (111000.0 * math.Max(math.Abs(math.Cos(lat*math.Pi/180)), 0.01))

	return &locationRestriction{Rectangle: rectangle{
		Low:  latLng{Latitude: lat - latOffset, Longitude: lng - lngOffset},
		High: latLng{Latitude: lat + latOffset, Longitude: lng + lngOffset},
	}}
}

// SearchText returns the first place matching the query, restricted to
// the vicinity of loc when it is resolved. Returns ErrNotFound when the
// provider has no match.
func (c *Client) SearchText(ctx context.Context, query string, loc geocache.Location) (*apiPlace, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	req := searchTextRequest{
		TextQuery:           query,
		LanguageCode:        c.language,
		LocationRestriction: searchRadiusRestriction(loc),
	}

	var resp searchTextResponse
	if err := c.post(ctx, req, placeFieldMask, &resp); err != nil {
		return nil, err
	}
	if len(resp.Places) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, query)
	}
	return &resp.Places[0], nil
}

// GeocodeCity returns the coordinates of a city via a locality search.
func (c *Client) GeocodeCity(ctx context.Context, city string) (geocache.Location, error) {
	if city == "" {
		return geocache.Location{}, fmt.Errorf("city cannot be empty")
	}

	req := searchTextRequest{
		TextQuery:    city,
		LanguageCode: c.language,
		IncludedType: "locality",
	}

	var resp searchTextResponse
	if err := c.post(ctx, req, cityFieldMask, &resp); err != nil {
		return geocache.Location{}, err
	}
	if len(resp.Places) == 0 || resp.Places[0].Location == nil {
		return geocache.Location{}, fmt.Errorf("%w: city %q", ErrNotFound, city)
	}

	loc := resp.Places[0].Location
	return geocache.Location{Latitude: &loc.Latitude, Longitude: &loc.Longitude}, nil
}

func (c *Client) post(ctx context.Context, req searchTextRequest, fieldMask string, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+searchTextPath, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("creating search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)
	httpReq.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("places request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading places response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("places API returned %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing places response: %w", err)
	}
	return nil
}
