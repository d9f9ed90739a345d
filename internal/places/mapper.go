package places

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fyrsmithlabs/tripd/internal/poi"
)

// apiPlace mirrors the searchText response shape for the fields in
// placeFieldMask.
type apiPlace struct {
	ID          string `json:"id"`
	DisplayName *struct {
		Text string `json:"text"`
	} `json:"displayName"`
	FormattedAddress string  `json:"formattedAddress"`
	Location         *latLng `json:"location"`

	Types       []string `json:"types"`
	PrimaryType string   `json:"primaryType"`

	Rating          *float64 `json:"rating"`
	UserRatingCount *int     `json:"userRatingCount"`
	PriceLevel      string   `json:"priceLevel"`
	PriceRange      *struct {
		StartPrice *apiPrice `json:"startPrice"`
		EndPrice   *apiPrice `json:"endPrice"`
	} `json:"priceRange"`

	WebsiteURI               string `json:"websiteUri"`
	InternationalPhoneNumber string `json:"internationalPhoneNumber"`
	GoogleMapsURI            string `json:"googleMapsUri"`

	RegularOpeningHours *struct {
		Periods []struct {
			Open  *apiDayTime `json:"open"`
			Close *apiDayTime `json:"close"`
		} `json:"periods"`
		WeekdayDescriptions []string `json:"weekdayDescriptions"`
	} `json:"regularOpeningHours"`

	EditorialSummary *struct {
		Text string `json:"text"`
	} `json:"editorialSummary"`
	GenerativeSummary *struct {
		Overview *struct {
			Text string `json:"text"`
		} `json:"overview"`
	} `json:"generativeSummary"`

	Reviews []struct {
		Text *struct {
			Text string `json:"text"`
		} `json:"text"`
	} `json:"reviews"`
}

type apiPrice struct {
	CurrencyCode string `json:"currencyCode"`
	Units        string `json:"units"`
}

// apiDayTime is a point in the weekly schedule. Google numbers days
// from 0 (Sunday) through 6 (Saturday).
type apiDayTime struct {
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// typeCategories maps provider place types to domain categories.
// Order within each category does not matter; priority comes from the
// order of the place's own type list, primaryType first.
var typeCategories = map[string]poi.Category{
	"restaurant":    poi.CategoryRestaurant,
	"food":          poi.CategoryRestaurant,
	"meal_takeaway": poi.CategoryRestaurant,
	"meal_delivery": poi.CategoryRestaurant,

	"cafe":        poi.CategoryCafe,
	"coffee_shop": poi.CategoryCafe,
	"bakery":      poi.CategoryCafe,

	"tourist_attraction": poi.CategoryAttraction,
	"museum":             poi.CategoryAttraction,
	"park":               poi.CategoryAttraction,
	"amusement_park":     poi.CategoryAttraction,
	"zoo":                poi.CategoryAttraction,
	"aquarium":           poi.CategoryAttraction,

	"lodging": poi.CategoryAccommodation,
	"hotel":   poi.CategoryAccommodation,
	"motel":   poi.CategoryAccommodation,

	"shopping_mall": poi.CategoryShopping,
	"store":         poi.CategoryShopping,
	"supermarket":   poi.CategoryShopping,

	"night_club":    poi.CategoryEntertainment,
	"movie_theater": poi.CategoryEntertainment,
	"bar":           poi.CategoryEntertainment,
}

// categoryFor picks the first recognized type, checking primaryType
// before the general type list.
func categoryFor(primaryType string, types []string) poi.Category {
	if c, ok := typeCategories[primaryType]; ok {
		return c
	}
	for _, t := range types {
		if c, ok := typeCategories[t]; ok {
			return c
		}
	}
	return poi.CategoryOther
}

const (
	maxSummarizedReviews = 3
	maxReviewLength      = 200
)

// reviewSummary joins the first few review texts, each truncated.
func reviewSummary(p *apiPlace) string {
	var parts []string
	for _, r := range p.Reviews {
		if len(parts) >= maxSummarizedReviews {
			break
		}
		if r.Text == nil {
			continue
		}
		text := strings.TrimSpace(r.Text.Text)
		if text == "" {
			continue
		}
		parts = append(parts, truncate(text, maxReviewLength))
	}
	return strings.Join(parts, " | ")
}

// truncate cuts text to at most max bytes without splitting a rune.
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	return text[:max]
}

// priceLevel strips the provider's enum prefix, so
// "PRICE_LEVEL_INEXPENSIVE" becomes "inexpensive".
func priceLevel(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, "PRICE_LEVEL_"))
}

func priceRange(p *apiPlace) string {
	pr := p.PriceRange
	if pr == nil || pr.StartPrice == nil {
		return ""
	}
	if pr.EndPrice != nil && pr.EndPrice.Units != "" {
		return fmt.Sprintf("%s ~ %s %s", pr.StartPrice.Units, pr.EndPrice.Units, pr.StartPrice.CurrencyCode)
	}
	return fmt.Sprintf("%s %s", pr.StartPrice.Units, pr.StartPrice.CurrencyCode)
}

// openingHours converts the provider schedule to the weekly model.
// Days without any period are marked closed; a period with no close
// time is treated as open until end of day.
func openingHours(p *apiPlace) *poi.OpeningHours {
	oh := p.RegularOpeningHours
	if oh == nil {
		return nil
	}

	slotsByDay := make(map[poi.Weekday][]poi.TimeSlot)
	for _, period := range oh.Periods {
		if period.Open == nil {
			continue
		}
		day := isoDay(period.Open.Day)
		slot := poi.TimeSlot{
			Open:  fmt.Sprintf("%02d:%02d", period.Open.Hour, period.Open.Minute),
			Close: "23:59",
		}
		if period.Close != nil {
			slot.Close = fmt.Sprintf("%02d:%02d", period.Close.Hour, period.Close.Minute)
		}
		slotsByDay[day] = append(slotsByDay[day], slot)
	}

	if len(slotsByDay) == 0 && len(oh.WeekdayDescriptions) == 0 {
		return nil
	}

	periods := make([]poi.DailyOpeningHours, 0, 7)
	for day := poi.Monday; day <= poi.Sunday; day++ {
		slots := slotsByDay[day]
		periods = append(periods, poi.DailyOpeningHours{
			Day:    day,
			Slots:  slots,
			Closed: len(slots) == 0,
		})
	}

	return &poi.OpeningHours{
		Periods: periods,
		RawText: oh.WeekdayDescriptions,
	}
}

// isoDay converts the provider's Sunday-0 day number to ISO 8601.
func isoDay(day int) poi.Weekday {
	if day == 0 {
		return poi.Sunday
	}
	return poi.Weekday(day)
}

// toPOI maps a provider record to the domain model. Description and
// RawText are left for the caller to fill from its own summarization.
func toPOI(p *apiPlace, city string) poi.POI {
	name := ""
	if p.DisplayName != nil {
		name = p.DisplayName.Text
	}

	record := poi.POI{
		ID:          p.ID,
		Name:        name,
		Category:    categoryFor(p.PrimaryType, p.Types),
		City:        city,
		Address:     p.FormattedAddress,
		CreatedAt:   time.Now().UTC(),
		PlaceID:     p.ID,
		MapsURI:     p.GoogleMapsURI,
		Types:       p.Types,
		PrimaryType: p.PrimaryType,
		Rating:      p.Rating,
		RatingCount: p.UserRatingCount,
		PriceLevel:  priceLevel(p.PriceLevel),
		PriceRange:  priceRange(p),
		WebsiteURI:  p.WebsiteURI,
		Phone:       p.InternationalPhoneNumber,

		ReviewSummary: reviewSummary(p),
		OpeningHours:  openingHours(p),
	}

	if p.Location != nil {
		record.Latitude = &p.Location.Latitude
		record.Longitude = &p.Location.Longitude
	}
	if p.EditorialSummary != nil {
		record.EditorialSummary = strings.TrimSpace(p.EditorialSummary.Text)
	}
	if p.GenerativeSummary != nil && p.GenerativeSummary.Overview != nil {
		record.GenerativeSummary = strings.TrimSpace(p.GenerativeSummary.Overview.Text)
	}

	return record
}
