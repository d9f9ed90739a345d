package places

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripd/internal/geocache"
	"github.com/fyrsmithlabs/tripd/internal/poi"
)

// Resolver resolves place names to canonical records, scoping each
// lookup to the destination city. City coordinates are geocoded once
// and kept in a persistent cache; failed geocodes are cached too so a
// bad city name costs one API call per cache lifetime.
type Resolver struct {
	client *Client
	cities *geocache.Cache
	logger *zap.Logger
}

// NewResolver creates a Resolver. cities may be nil, in which case
// every lookup geocodes the city fresh.
func NewResolver(client *Client, cities *geocache.Cache, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{client: client, cities: cities, logger: logger}
}

// ResolveCity returns the cached coordinates for a city, geocoding on
// first use. An unresolved Location with a nil error means the geocode
// failed before and the failure is cached.
func (r *Resolver) ResolveCity(ctx context.Context, city string) (geocache.Location, error) {
	if strings.TrimSpace(city) == "" {
		return geocache.Location{}, nil
	}
	if r.cities != nil {
		if loc, ok := r.cities.Get(city); ok {
			return loc, nil
		}
	}

	loc, err := r.client.GeocodeCity(ctx, city)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Cache the miss so we do not re-geocode a hopeless name.
			r.storeCity(city, geocache.Location{})
			r.logger.Warn("city geocode returned no match", zap.String("city", city))
			return geocache.Location{}, nil
		}
		return geocache.Location{}, fmt.Errorf("geocoding city %q: %w", city, err)
	}

	r.storeCity(city, loc)
	r.logger.Debug("city geocoded",
		zap.String("city", city),
		zap.Float64("lat", *loc.Latitude),
		zap.Float64("lng", *loc.Longitude),
	)
	return loc, nil
}

func (r *Resolver) storeCity(city string, loc geocache.Location) {
	if r.cities == nil {
		return
	}
	if err := r.cities.Put(city, loc); err != nil {
		r.logger.Warn("city cache write failed", zap.String("city", city), zap.Error(err))
	}
}

// Resolve looks a place name up in the vicinity of the city. The first
// query combines name and city; if that misses, the bare name is tried
// without a city suffix but still under the location restriction.
// Returns ErrNotFound when neither query matches.
func (r *Resolver) Resolve(ctx context.Context, name, city string) (*poi.POI, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("name cannot be empty")
	}

	loc, err := r.ResolveCity(ctx, city)
	if err != nil {
		return nil, err
	}

	query := name
	if city != "" {
		query = name + " " + city
	}

	place, err := r.client.SearchText(ctx, query, loc)
	if errors.Is(err, ErrNotFound) && query != name {
		place, err = r.client.SearchText(ctx, name, loc)
	}
	if err != nil {
		return nil, err
	}

	record := toPOI(place, city)
	r.logger.Debug("place resolved",
		zap.String("name", name),
		zap.String("place_id", record.PlaceID),
		zap.String("category", string(record.Category)),
	)
	return &record, nil
}
