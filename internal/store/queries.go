package store

import (
	"context"

	"github.com/google/uuid"
)

const createLocation = `
INSERT INTO locations (id, name, latitude, longitude, country, country_code, region, timezone, elevation, population)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id, name, latitude, longitude, country, country_code, region, timezone, elevation, population, created_at
`

type CreateLocationParams struct {
	Name        string
	Latitude    float64
	Longitude   float64
	Country     string
	CountryCode string
	Region      string
	Timezone    string
	Elevation   float64
	Population  int64
}

// CreateLocation inserts a canonical location under a fresh identifier.
func (q *Queries) CreateLocation(ctx context.Context, arg CreateLocationParams) (Location, error) {
	row := q.db.QueryRowContext(ctx, createLocation,
		uuid.New(),
		arg.Name,
		arg.Latitude,
		arg.Longitude,
		arg.Country,
		arg.CountryCode,
		arg.Region,
		arg.Timezone,
		arg.Elevation,
		arg.Population,
	)
	var i Location
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Latitude,
		&i.Longitude,
		&i.Country,
		&i.CountryCode,
		&i.Region,
		&i.Timezone,
		&i.Elevation,
		&i.Population,
		&i.CreatedAt,
	)
	return i, err
}

const getLocationByAlias = `
SELECT l.id, l.name, l.latitude, l.longitude, l.country, l.country_code, l.region, l.timezone, l.elevation, l.population, l.created_at
FROM locations l
JOIN location_aliases a ON a.location_id = l.id
WHERE a.alias = $1
`

// GetLocationByAlias resolves a normalized query string to its canonical
// location. sql.ErrNoRows means the alias is unknown.
func (q *Queries) GetLocationByAlias(ctx context.Context, alias string) (Location, error) {
	row := q.db.QueryRowContext(ctx, getLocationByAlias, alias)
	var i Location
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Latitude,
		&i.Longitude,
		&i.Country,
		&i.CountryCode,
		&i.Region,
		&i.Timezone,
		&i.Elevation,
		&i.Population,
		&i.CreatedAt,
	)
	return i, err
}

const getLocationByName = `
SELECT id, name, latitude, longitude, country, country_code, region, timezone, elevation, population, created_at
FROM locations
WHERE name = $1
`

// GetLocationByName finds a location by its canonical name, for
// deduplicating freshly geocoded results.
func (q *Queries) GetLocationByName(ctx context.Context, name string) (Location, error) {
	row := q.db.QueryRowContext(ctx, getLocationByName, name)
	var i Location
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Latitude,
		&i.Longitude,
		&i.Country,
		&i.CountryCode,
		&i.Region,
		&i.Timezone,
		&i.Elevation,
		&i.Population,
		&i.CreatedAt,
	)
	return i, err
}

const createLocationAlias = `
INSERT INTO location_aliases (alias, location_id)
VALUES ($1, $2)
RETURNING alias, location_id
`

type CreateLocationAliasParams struct {
	Alias      string
	LocationID uuid.UUID
}

// CreateLocationAlias links a normalized query string to a location.
func (q *Queries) CreateLocationAlias(ctx context.Context, arg CreateLocationAliasParams) (LocationAlias, error) {
	row := q.db.QueryRowContext(ctx, createLocationAlias, arg.Alias, arg.LocationID)
	var i LocationAlias
	err := row.Scan(&i.Alias, &i.LocationID)
	return i, err
}

const listLocations = `
SELECT id, name, latitude, longitude, country, country_code, region, timezone, elevation, population, created_at
FROM locations
ORDER BY name
`

// ListLocations returns every known location, sorted by name.
func (q *Queries) ListLocations(ctx context.Context) ([]Location, error) {
	rows, err := q.db.QueryContext(ctx, listLocations)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Location
	for rows.Next() {
		var i Location
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.Latitude,
			&i.Longitude,
			&i.Country,
			&i.CountryCode,
			&i.Region,
			&i.Timezone,
			&i.Elevation,
			&i.Population,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteLocation = `
DELETE FROM locations
WHERE id = $1
`

// DeleteLocation removes a location; aliases cascade.
func (q *Queries) DeleteLocation(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteLocation, id)
	return err
}
