// Package cache memoizes aggregated forecasts in a content-addressed
// key-value store with TTL. Keys are derived from the resolved
// coordinates, the model set, and an hour-sized epoch bucket, so
// requests for the same place and models within the same hour share one
// entry. A single-flight manager collapses concurrent computes per key.
package cache

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/meteomancer/weatheroracle/internal/units"
)

// epochLayout buckets keys by UTC hour.
const epochLayout = "2006-01-02T15"

// Key identifies one aggregated forecast: where, which models, and which
// hour bucket. Construct with NewKey so the fields are canonical.
type Key struct {
	Coordinates units.Coordinates
	Models      []string
	Epoch       time.Time
}

// NewKey canonicalizes the inputs: the model identifiers are copied and
// sorted, the epoch is converted to UTC and truncated to the hour. Two
// keys built from the same inputs render identically regardless of model
// order or sub-hour timing.
func NewKey(coords units.Coordinates, models []string, epoch time.Time) Key {
	sorted := make([]string, len(models))
	copy(sorted, models)
	sort.Strings(sorted)
	return Key{
		Coordinates: coords,
		Models:      sorted,
		Epoch:       epoch.UTC().Truncate(time.Hour),
	}
}

// String renders the canonical form
// "53.3498,-6.2603|ecmwf,gfs,icon|2026-08-25T14".
func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Coordinates, strings.Join(k.Models, ","), k.Epoch.Format(epochLayout))
}
