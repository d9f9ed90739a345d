package places

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripd/internal/geocache"
	"github.com/fyrsmithlabs/tripd/internal/poi"
)

var seoulPlace = `{
	"id": "ChIJzzlcLQGifDUR",
	"displayName": {"text": "Gwangjang Market", "languageCode": "en"},
	"formattedAddress": "88 Changgyeonggung-ro, Jongno District, Seoul",
	"location": {"latitude": 37.5701, "longitude": 126.9997},
	"types": ["tourist_attraction", "market", "point_of_interest"],
	"primaryType": "tourist_attraction",
	"rating": 4.4,
	"userRatingCount": 31842,
	"priceLevel": "PRICE_LEVEL_INEXPENSIVE",
	"priceRange": {
		"startPrice": {"currencyCode": "KRW", "units": "5000"},
		"endPrice": {"currencyCode": "KRW", "units": "20000"}
	},
	"websiteUri": "https://jkm.or.kr",
	"internationalPhoneNumber": "+82 2-2267-0291",
	"googleMapsUri": "https://maps.google.com/?cid=1",
	"regularOpeningHours": {
		"periods": [
			{"open": {"day": 1, "hour": 9, "minute": 0}, "close": {"day": 1, "hour": 18, "minute": 0}},
			{"open": {"day": 0, "hour": 10, "minute": 30}}
		],
		"weekdayDescriptions": ["Monday: 9:00 AM - 6:00 PM", "Sunday: 10:30 AM - open end"]
	},
	"editorialSummary": {"text": "Sprawling traditional market known for street food."},
	"generativeSummary": {"overview": {"text": "A century-old market famous for bindaetteok."}},
	"reviews": [
		{"text": {"text": "` + strings.Repeat("a", 250) + `"}},
		{"text": {"text": "Great mung bean pancakes"}},
		{"text": {"text": "Crowded but worth it"}},
		{"text": {"text": "Fourth review never summarized"}}
	]
}`

func placesServer(t *testing.T, handler func(req searchTextRequest, mask string) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/places:searchText", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		require.NotEmpty(t, r.Header.Get("X-Goog-FieldMask"))

		var req searchTextRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		fmt.Fprint(w, handler(req, r.Header.Get("X-Goog-FieldMask")))
	}))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{APIKey: "test-key", BaseURL: baseURL}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestSearchTextMapsPlace(t *testing.T) {
	server := placesServer(t, func(req searchTextRequest, mask string) string {
		assert.Equal(t, "Gwangjang Market Seoul", req.TextQuery)
		assert.Contains(t, mask, "places.regularOpeningHours")
		return `{"places": [` + seoulPlace + `]}`
	})
	defer server.Close()

	place, err := newTestClient(t, server.URL).SearchText(context.Background(), "Gwangjang Market Seoul", geocache.Location{})
	require.NoError(t, err)

	record := toPOI(place, "Seoul")
	assert.Equal(t, "ChIJzzlcLQGifDUR", record.ID)
	assert.Equal(t, record.ID, record.PlaceID)
	assert.Equal(t, "Gwangjang Market", record.Name)
	assert.Equal(t, poi.CategoryAttraction, record.Category)
	assert.Equal(t, "Seoul", record.City)
	require.NotNil(t, record.Latitude)
	assert.InDelta(t, 37.5701, *record.Latitude, 1e-6)
	require.NotNil(t, record.Rating)
	assert.InDelta(t, 4.4, *record.Rating, 1e-6)
	assert.Equal(t, "5000 ~ 20000 KRW", record.PriceRange)
	assert.Equal(t, "inexpensive", record.PriceLevel)
	assert.Equal(t, "Sprawling traditional market known for street food.", record.EditorialSummary)
	assert.Equal(t, "A century-old market famous for bindaetteok.", record.GenerativeSummary)
}

func TestReviewSummaryTruncatesAndLimits(t *testing.T) {
	var place apiPlace
	require.NoError(t, json.Unmarshal([]byte(seoulPlace), &place))

	summary := reviewSummary(&place)
	parts := strings.Split(summary, " | ")
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], 200)
	assert.Equal(t, "Great mung bean pancakes", parts[1])
	assert.NotContains(t, summary, "Fourth review")
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	// Hangul is 3 bytes per rune, so 200 falls mid-rune.
	korean := strings.Repeat("김", 100)
	got := truncate(korean, 200)
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, 198)

	ascii := strings.Repeat("a", 250)
	assert.Len(t, truncate(ascii, 200), 200)

	assert.Equal(t, "short", truncate("short", 200))
}

func TestOpeningHoursConversion(t *testing.T) {
	var place apiPlace
	require.NoError(t, json.Unmarshal([]byte(seoulPlace), &place))

	hours := openingHours(&place)
	require.NotNil(t, hours)
	require.Len(t, hours.Periods, 7)

	monday := hours.ForDay(poi.Monday)
	require.NotNil(t, monday)
	assert.False(t, monday.Closed)
	require.Len(t, monday.Slots, 1)
	assert.Equal(t, "09:00", monday.Slots[0].Open)
	assert.Equal(t, "18:00", monday.Slots[0].Close)

	// Provider day 0 is Sunday; a missing close means open to end of day.
	sunday := hours.ForDay(poi.Sunday)
	require.NotNil(t, sunday)
	require.Len(t, sunday.Slots, 1)
	assert.Equal(t, "10:30", sunday.Slots[0].Open)
	assert.Equal(t, "23:59", sunday.Slots[0].Close)

	tuesday := hours.ForDay(poi.Tuesday)
	require.NotNil(t, tuesday)
	assert.True(t, tuesday.Closed)

	assert.Len(t, hours.RawText, 2)
}

func TestCategoryPriority(t *testing.T) {
	tests := []struct {
		name        string
		primaryType string
		types       []string
		want        poi.Category
	}{
		{"primary wins", "cafe", []string{"restaurant", "food"}, poi.CategoryCafe},
		{"type order", "", []string{"point_of_interest", "bar", "store"}, poi.CategoryEntertainment},
		{"unknown", "observatory", []string{"point_of_interest"}, poi.CategoryOther},
		{"lodging", "hotel", nil, poi.CategoryAccommodation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, categoryFor(tt.primaryType, tt.types))
		})
	}
}

func TestSearchRadiusRestriction(t *testing.T) {
	lat, lng := 37.5665, 126.978
	restriction := searchRadiusRestriction(geocache.Location{Latitude: &lat, Longitude: &lng})
	require.NotNil(t, restriction)

	rect := restriction.Rectangle
	assert.InDelta(t, 50000.0/111000.0, lat-rect.Low.Latitude, 1e-9)
	assert.InDelta(t, rect.High.Latitude-lat, lat-rect.Low.Latitude, 1e-9)
	// Longitude span widens with latitude.
	assert.Greater(t, rect.High.Longitude-lng, rect.High.Latitude-lat)

	assert.Nil(t, searchRadiusRestriction(geocache.Location{}))
}

func TestResolveRetriesBareName(t *testing.T) {
	var queries []string
	server := placesServer(t, func(req searchTextRequest, mask string) string {
		queries = append(queries, req.TextQuery)
		if req.IncludedType == "locality" {
			return `{"places": [{"location": {"latitude": 37.5665, "longitude": 126.978}}]}`
		}
		if req.TextQuery == "Gwangjang Market Seoul" {
			return `{"places": []}`
		}
		require.NotNil(t, req.LocationRestriction)
		return `{"places": [` + seoulPlace + `]}`
	})
	defer server.Close()

	r := NewResolver(newTestClient(t, server.URL), nil, zap.NewNop())
	record, err := r.Resolve(context.Background(), "Gwangjang Market", "Seoul")
	require.NoError(t, err)
	assert.Equal(t, "Gwangjang Market", record.Name)
	assert.Equal(t, []string{"Seoul", "Gwangjang Market Seoul", "Gwangjang Market"}, queries)
}

func TestResolveNotFound(t *testing.T) {
	server := placesServer(t, func(req searchTextRequest, mask string) string {
		if req.IncludedType == "locality" {
			return `{"places": [{"location": {"latitude": 37.5665, "longitude": 126.978}}]}`
		}
		return `{"places": []}`
	})
	defer server.Close()

	r := NewResolver(newTestClient(t, server.URL), nil, zap.NewNop())
	_, err := r.Resolve(context.Background(), "No Such Place", "Seoul")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveCityCached(t *testing.T) {
	geocodes := 0
	server := placesServer(t, func(req searchTextRequest, mask string) string {
		require.Equal(t, "locality", req.IncludedType)
		assert.Equal(t, cityFieldMask, mask)
		geocodes++
		return `{"places": [{"location": {"latitude": 37.5665, "longitude": 126.978}}]}`
	})
	defer server.Close()

	cache, err := geocache.Open(filepath.Join(t.TempDir(), "cities.json"), zap.NewNop())
	require.NoError(t, err)

	r := NewResolver(newTestClient(t, server.URL), cache, zap.NewNop())
	for i := 0; i < 3; i++ {
		loc, err := r.ResolveCity(context.Background(), "Seoul")
		require.NoError(t, err)
		assert.True(t, loc.Resolved())
	}
	assert.Equal(t, 1, geocodes)
}

func TestResolveCityFailureCached(t *testing.T) {
	geocodes := 0
	server := placesServer(t, func(req searchTextRequest, mask string) string {
		geocodes++
		return `{"places": []}`
	})
	defer server.Close()

	cache, err := geocache.Open(filepath.Join(t.TempDir(), "cities.json"), zap.NewNop())
	require.NoError(t, err)

	r := NewResolver(newTestClient(t, server.URL), cache, zap.NewNop())
	for i := 0; i < 2; i++ {
		loc, err := r.ResolveCity(context.Background(), "Atlantis")
		require.NoError(t, err)
		assert.False(t, loc.Resolved())
	}
	assert.Equal(t, 1, geocodes)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestClientErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).SearchText(context.Background(), "q", geocache.Location{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
