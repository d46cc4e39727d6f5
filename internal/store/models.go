package store

import (
	"time"

	"github.com/google/uuid"
)

// Location is one canonical place as persisted. Optional provider fields
// (country, region, timezone, elevation, population) default to zero
// values rather than NULLs.
type Location struct {
	ID          uuid.UUID
	Name        string
	Latitude    float64
	Longitude   float64
	Country     string
	CountryCode string
	Region      string
	Timezone    string
	Elevation   float64
	Population  int64
	CreatedAt   time.Time
}

// LocationAlias links one normalized query string to a canonical
// location, so repeated lookups skip the geocoding API.
type LocationAlias struct {
	Alias      string
	LocationID uuid.UUID
}
