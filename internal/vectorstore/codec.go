package vectorstore

import (
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/tripd/internal/poi"
)

// Metadata keys shared by the chromem and qdrant backends. The full record
// is stored as JSON under poiJSONKey; the flat keys exist for filtering and
// exact-match lookups.
const (
	poiJSONKey  = "poi_json"
	nameKey     = "name"
	cityKey     = "city"
	categoryKey = "category"
	placeIDKey  = "place_id"
)

// buildMetadata serializes a place into flat string metadata.
func buildMetadata(p poi.POI) (map[string]string, error) {
	js, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling place %s: %w", p.ID, err)
	}

	meta := map[string]string{
		poiJSONKey:  string(js),
		nameKey:     p.Name,
		cityKey:     p.City,
		categoryKey: string(p.Category),
	}
	if p.PlaceID != "" {
		meta[placeIDKey] = p.PlaceID
	}
	return meta, nil
}

// reconstructPOI rebuilds a place from stored metadata.
func reconstructPOI(meta map[string]string) (poi.POI, error) {
	js, ok := meta[poiJSONKey]
	if !ok || js == "" {
		return poi.POI{}, fmt.Errorf("metadata missing %s", poiJSONKey)
	}

	var p poi.POI
	if err := json.Unmarshal([]byte(js), &p); err != nil {
		return poi.POI{}, fmt.Errorf("unmarshaling place record: %w", err)
	}
	return p, nil
}
