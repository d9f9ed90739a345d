package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/tripd/internal/poi"
	"github.com/fyrsmithlabs/tripd/internal/stats"
)

// State is the record threaded through one run. It is discarded at
// completion unless the caller asked for a dump.
type State struct {
	Persona     string `json:"persona"`
	Destination string `json:"destination"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	TravelDays  int    `json:"travel_days"`
	Target      int    `json:"target"`

	Keywords []string `json:"keywords"`

	EmbeddingCandidates []poi.SearchCandidate `json:"embedding_candidates"`
	RerankedEmbedding   []poi.SearchCandidate `json:"reranked_embedding"`
	WebCandidates       []poi.SearchCandidate `json:"web_candidates"`
	RerankedWeb         []poi.SearchCandidate `json:"reranked_web"`
	Merged              []poi.SearchCandidate `json:"merged"`

	// POIData maps POI id to the full record for every place seen
	// during the run, from either retrieval channel.
	POIData map[string]poi.POI `json:"poi_data"`

	FinalPOIs []poi.POI `json:"final_pois"`

	ShortCircuited  bool `json:"short_circuited"`
	EarlyTerminated bool `json:"early_terminated"`

	Stats stats.Snapshot `json:"stats"`
}

func newState(req Request, travelDays, target int) *State {
	return &State{
		Persona:             req.Persona,
		Destination:         req.Destination,
		StartDate:           req.StartDate,
		EndDate:             req.EndDate,
		TravelDays:          travelDays,
		Target:              target,
		Keywords:            []string{},
		EmbeddingCandidates: []poi.SearchCandidate{},
		RerankedEmbedding:   []poi.SearchCandidate{},
		WebCandidates:       []poi.SearchCandidate{},
		RerankedWeb:         []poi.SearchCandidate{},
		Merged:              []poi.SearchCandidate{},
		POIData:             make(map[string]poi.POI),
		FinalPOIs:           []poi.POI{},
	}
}

type stateDump struct {
	Metadata struct {
		GeneratedAt time.Time `json:"generated_at"`
	} `json:"metadata"`
	State *State `json:"state"`
}

// save writes the state as indented JSON to path.
func (s *State) save(path string) error {
	dump := stateDump{State: s}
	dump.Metadata.GeneratedAt = time.Now().UTC()

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating state directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing state %s: %w", path, err)
	}
	return nil
}
