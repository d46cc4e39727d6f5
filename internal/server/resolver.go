package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/meteomancer/weatheroracle/internal/geocode"
	"github.com/meteomancer/weatheroracle/internal/store"
	"github.com/meteomancer/weatheroracle/internal/units"
)

// locationQueries is the subset of store.Queries the resolver needs.
type locationQueries interface {
	GetLocationByAlias(ctx context.Context, alias string) (store.Location, error)
	GetLocationByName(ctx context.Context, name string) (store.Location, error)
	CreateLocation(ctx context.Context, arg store.CreateLocationParams) (store.Location, error)
	CreateLocationAlias(ctx context.Context, arg store.CreateLocationAliasParams) (store.LocationAlias, error)
}

// storeResolver is a geocode.Geocoder that remembers resolved locations
// in Postgres. Queries resolve through the alias table first; misses go
// to the wrapped geocoder and the answer is persisted under both the
// user's spelling and the canonical name. Store failures degrade to
// plain geocoding, never to request failures.
type storeResolver struct {
	geocoder geocode.Geocoder
	queries  locationQueries
	logger   *slog.Logger
}

func newStoreResolver(geocoder geocode.Geocoder, queries locationQueries, logger *slog.Logger) *storeResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &storeResolver{geocoder: geocoder, queries: queries, logger: logger}
}

func (r *storeResolver) Resolve(ctx context.Context, query string) (geocode.Result, error) {
	alias, err := geocode.Normalize(query)
	if err != nil || alias == "" {
		r.logger.Warn("could not normalize query, skipping location store", "query", query, "error", err)
		return r.geocoder.Resolve(ctx, query)
	}

	if loc, err := r.queries.GetLocationByAlias(ctx, alias); err == nil {
		r.logger.Debug("location resolved from store", "alias", alias, "name", loc.Name)
		return storedResult(loc)
	} else if !errors.Is(err, sql.ErrNoRows) {
		r.logger.Warn("location store lookup failed", "alias", alias, "error", err)
	}

	resolved, err := r.geocoder.Resolve(ctx, query)
	if err != nil {
		return geocode.Result{}, err
	}

	// A known place under a new spelling only needs the alias backfilled.
	if loc, err := r.queries.GetLocationByName(ctx, resolved.Name); err == nil {
		r.createAlias(ctx, alias, loc.ID)
		return storedResult(loc)
	} else if !errors.Is(err, sql.ErrNoRows) {
		r.logger.Warn("location store lookup failed", "name", resolved.Name, "error", err)
	}

	created, err := r.queries.CreateLocation(ctx, createParams(resolved))
	if err != nil {
		r.logger.Warn("could not persist location", "name", resolved.Name, "error", err)
		return resolved, nil
	}
	r.createAlias(ctx, alias, created.ID)
	if canonical, err := geocode.Normalize(resolved.Name); err == nil && canonical != alias {
		r.createAlias(ctx, canonical, created.ID)
	}
	return resolved, nil
}

func (r *storeResolver) Search(ctx context.Context, query string, limit int) ([]geocode.Result, error) {
	return r.geocoder.Search(ctx, query, limit)
}

func (r *storeResolver) createAlias(ctx context.Context, alias string, locationID uuid.UUID) {
	_, err := r.queries.CreateLocationAlias(ctx, store.CreateLocationAliasParams{
		Alias:      alias,
		LocationID: locationID,
	})
	if err != nil {
		r.logger.Warn("could not persist location alias", "alias", alias, "error", err)
	}
}

func storedResult(loc store.Location) (geocode.Result, error) {
	coords, err := units.NewCoordinates(loc.Latitude, loc.Longitude)
	if err != nil {
		return geocode.Result{}, fmt.Errorf("stored location %s: %w", loc.ID, err)
	}
	return geocode.Result{
		Name:        loc.Name,
		Coordinates: coords,
		Country:     loc.Country,
		CountryCode: loc.CountryCode,
		Region:      loc.Region,
		Timezone:    units.TimezoneID(loc.Timezone),
		Elevation:   loc.Elevation,
		Population:  loc.Population,
	}, nil
}

func createParams(r geocode.Result) store.CreateLocationParams {
	return store.CreateLocationParams{
		Name:        r.Name,
		Latitude:    r.Coordinates.Latitude.Value(),
		Longitude:   r.Coordinates.Longitude.Value(),
		Country:     r.Country,
		CountryCode: r.CountryCode,
		Region:      r.Region,
		Timezone:    string(r.Timezone),
		Elevation:   r.Elevation,
		Population:  r.Population,
	}
}
