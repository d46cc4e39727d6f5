// Package geocode resolves free-text place queries to coordinates using
// the Open-Meteo geocoding API. The Geocoder interface decouples callers
// from the concrete client so the pipeline can be tested against mocks and
// the server can layer persistent memoization on top.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/meteomancer/weatheroracle/internal/units"
)

// DefaultBaseURL is the public Open-Meteo geocoding endpoint.
const DefaultBaseURL = "https://geocoding-api.open-meteo.com"

// ErrInvalidInput is returned when the trimmed query is shorter than 2 or
// longer than 200 characters.
var ErrInvalidInput = errors.New("geocoding query must be 2 to 200 characters")

// NotFoundError is returned by Resolve when the provider has no match for
// the query. Search returns an empty list instead.
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no geocoding results for %q", e.Query)
}

// ServiceError collapses transport failures, non-2xx responses, and
// malformed payloads. The query is echoed for diagnostics.
type ServiceError struct {
	Query string
	Err   error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("geocoding %q failed: %v", e.Query, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Result is one resolved place. Region, Elevation, and Population are
// optional; their zero values mean the provider did not report them.
type Result struct {
	Name        string            `json:"name"`
	Coordinates units.Coordinates `json:"coordinates"`
	Country     string            `json:"country,omitempty"`
	CountryCode string            `json:"country_code,omitempty"`
	Region      string            `json:"region,omitempty"`
	Timezone    units.TimezoneID  `json:"timezone,omitempty"`
	Elevation   float64           `json:"elevation,omitempty"`
	Population  int64             `json:"population,omitempty"`
}

// Location pairs the user's original query with what it resolved to, so
// errors and results can always echo the input.
type Location struct {
	Query    string `json:"query"`
	Resolved Result `json:"resolved"`
}

// Geocoder is the capability the pipeline needs.
type Geocoder interface {
	Resolve(ctx context.Context, query string) (Result, error)
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Client is the HTTP implementation of Geocoder.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a geocoding client. An empty baseURL selects the public
// endpoint; a nil httpClient selects http.DefaultClient; a nil logger
// selects slog.Default().
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger}
}

// Resolve returns the best match for the query. Zero results surface as a
// NotFoundError.
func (c *Client) Resolve(ctx context.Context, query string) (Result, error) {
	results, err := c.search(ctx, query, 1)
	if err != nil {
		return Result{}, err
	}
	if len(results) == 0 {
		return Result{}, &NotFoundError{Query: query}
	}
	return results[0], nil
}

// Search returns up to limit matches. Zero results is an empty list, not
// an error.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	return c.search(ctx, query, limit)
}

// The response shape of /v1/search. A missing results key means zero
// results.
type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Name        string  `json:"name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Elevation   float64 `json:"elevation"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Admin1      string  `json:"admin1"`
	Timezone    string  `json:"timezone"`
	Population  int64   `json:"population"`
}

func (c *Client) search(ctx context.Context, query string, count int) ([]Result, error) {
	trimmed := strings.TrimSpace(query)
	if len(trimmed) < 2 || len(trimmed) > 200 {
		return nil, ErrInvalidInput
	}

	searchURL, err := url.Parse(c.baseURL + "/v1/search")
	if err != nil {
		return nil, &ServiceError{Query: query, Err: fmt.Errorf("parsing geocoding URL: %w", err)}
	}
	q := searchURL.Query()
	q.Set("name", trimmed)
	q.Set("count", strconv.Itoa(count))
	q.Set("language", "en")
	q.Set("format", "json")
	searchURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL.String(), nil)
	if err != nil {
		return nil, &ServiceError{Query: query, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ServiceError{Query: query, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{Query: query, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &ServiceError{Query: query, Err: fmt.Errorf("decoding response: %w", err)}
	}

	results := make([]Result, 0, len(payload.Results))
	for _, r := range payload.Results {
		coords, err := units.NewCoordinates(r.Latitude, r.Longitude)
		if err != nil {
			return nil, &ServiceError{Query: query, Err: fmt.Errorf("provider returned invalid coordinates: %w", err)}
		}
		results = append(results, Result{
			Name:        r.Name,
			Coordinates: coords,
			Country:     r.Country,
			CountryCode: r.CountryCode,
			Region:      r.Admin1,
			Timezone:    units.TimezoneID(r.Timezone),
			Elevation:   r.Elevation,
			Population:  r.Population,
		})
	}
	c.logger.Debug("geocoding query resolved", "query", trimmed, "results", len(results))
	return results, nil
}
