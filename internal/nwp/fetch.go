package nwp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/meteomancer/weatheroracle/internal/forecast"
	"github.com/meteomancer/weatheroracle/internal/units"
)

// DefaultBaseURL is the public Open-Meteo forecast API.
const DefaultBaseURL = "https://api.open-meteo.com"

// The variable lists are fixed: every model is asked for the same metrics
// so the aggregator can align them one to one.
var (
	hourlyVariables = []string{
		"temperature_2m",
		"apparent_temperature",
		"relative_humidity_2m",
		"pressure_msl",
		"wind_speed_10m",
		"wind_direction_10m",
		"precipitation",
		"precipitation_probability",
		"cloud_cover",
		"visibility",
		"uv_index",
		"weather_code",
	}
	dailyVariables = []string{
		"weather_code",
		"temperature_2m_max",
		"temperature_2m_min",
		"sunrise",
		"sunset",
		"daylight_duration",
		"uv_index_max",
		"precipitation_sum",
		"precipitation_probability_max",
		"wind_speed_10m_max",
	}
)

// FetchOptions bounds a single model fetch. The Timeout applies per
// attempt; the aggregate wall-clock bound is the caller's context.
type FetchOptions struct {
	ForecastDays int
	Timezone     string
	Timeout      time.Duration
	Retry        RetryPolicy
	RequestDelay time.Duration
}

func (o FetchOptions) withDefaults() FetchOptions {
	if o.ForecastDays == 0 {
		o.ForecastDays = 7
	}
	if o.Timezone == "" {
		o.Timezone = "auto"
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	o.Retry = o.Retry.withDefaults()
	return o
}

// Validate rejects option values the endpoints would refuse.
func (o FetchOptions) Validate() error {
	if o.ForecastDays < 0 || o.ForecastDays > 16 {
		return fmt.Errorf("forecast days must be between 1 and 16, got %d", o.ForecastDays)
	}
	return nil
}

// Client fetches and normalizes per-model forecasts.
type Client struct {
	baseURL    string
	httpClient *http.Client
	registry   *Registry
	logger     *slog.Logger

	// rng feeds retry jitter; nil uses the shared source. Tests inject a
	// seeded one.
	rng *rand.Rand
}

// NewClient creates a model fetch client. An empty baseURL selects the
// public endpoint; a nil httpClient selects http.DefaultClient; a nil
// registry selects the default registry; a nil logger selects
// slog.Default().
func NewClient(baseURL string, httpClient *http.Client, registry *Registry, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, registry: registry, logger: logger}
}

// Registry exposes the client's model registry.
func (c *Client) Registry() *Registry { return c.registry }

// FetchOne performs one model's forecast request, retrying transient
// failures per the policy. Fatal errors and caller cancellation return
// immediately; a 429 Retry-After overrides the computed backoff.
func (c *Client) FetchOne(ctx context.Context, model Model, coords units.Coordinates, opts FetchOptions) (forecast.ModelForecast, error) {
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= opts.Retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := opts.Retry.DelayFor(attempt-1, c.rng)
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > 0 {
				delay = apiErr.RetryAfter
				if delay > opts.Retry.MaxDelay {
					delay = opts.Retry.MaxDelay
				}
			}
			c.logger.Debug("retrying model fetch", "model", model.ID, "attempt", attempt, "delay", delay.String())
			select {
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.Canceled) {
					return forecast.ModelForecast{}, fmt.Errorf("fetch %s: %w", model.ID, ctx.Err())
				}
				// Wall budget expired mid-backoff: surface the transient
				// failure we were about to retry.
				return forecast.ModelForecast{}, lastErr
			case <-time.After(delay):
			}
		}

		mf, err := c.fetchAttempt(ctx, model, coords, opts)
		if err == nil {
			return mf, nil
		}
		lastErr = err
		if !Transient(err) {
			return forecast.ModelForecast{}, err
		}
	}
	return forecast.ModelForecast{}, lastErr
}

func (c *Client) fetchAttempt(ctx context.Context, model Model, coords units.Coordinates, opts FetchOptions) (forecast.ModelForecast, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.requestURL(model, coords, opts), nil)
	if err != nil {
		return forecast.ModelForecast{}, &APIError{Model: model.ID, Kind: KindInvalidResponse, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
			// Caller cancellation is not an upstream failure.
			return forecast.ModelForecast{}, fmt.Errorf("fetch %s: %w", model.ID, context.Canceled)
		case errors.Is(err, context.DeadlineExceeded):
			return forecast.ModelForecast{}, &APIError{Model: model.ID, Kind: KindTimeout, Err: err}
		default:
			return forecast.ModelForecast{}, &APIError{Model: model.ID, Kind: KindNetwork, Err: err}
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return forecast.ModelForecast{}, &APIError{
			Model:      model.ID,
			Kind:       KindRateLimited,
			Status:     resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode == http.StatusServiceUnavailable:
		return forecast.ModelForecast{}, &APIError{Model: model.ID, Kind: KindUnavailable, Status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return forecast.ModelForecast{}, &APIError{
			Model:   model.ID,
			Kind:    KindRequestFailed,
			Status:  resp.StatusCode,
			Message: decodeErrorReason(resp.Body),
		}
	}

	var payload meteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return forecast.ModelForecast{}, &APIError{Model: model.ID, Kind: KindDecode, Err: err}
	}
	if payload.Error {
		return forecast.ModelForecast{}, &APIError{Model: model.ID, Kind: KindInvalidResponse, Message: payload.Reason}
	}

	mf, err := buildModelForecast(model, coords, &payload, time.Now(), c.logger)
	if err != nil {
		return forecast.ModelForecast{}, &APIError{Model: model.ID, Kind: KindInvalidResponse, Err: err}
	}
	return mf, nil
}

func (c *Client) requestURL(model Model, coords units.Coordinates, opts FetchOptions) string {
	endpoint, err := url.Parse(c.baseURL + model.Path)
	if err != nil {
		// A malformed base URL fails at request construction with a
		// clearer error than anything we could produce here.
		return c.baseURL + model.Path
	}
	q := endpoint.Query()
	q.Set("latitude", strconv.FormatFloat(coords.Latitude.Value(), 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(coords.Longitude.Value(), 'f', 4, 64))
	q.Set("hourly", strings.Join(hourlyVariables, ","))
	q.Set("daily", strings.Join(dailyVariables, ","))
	q.Set("timezone", opts.Timezone)
	q.Set("forecast_days", strconv.Itoa(opts.ForecastDays))
	if model.UsesVariant() {
		q.Set("models", model.Variant)
	}
	endpoint.RawQuery = q.Encode()
	return endpoint.String()
}

// parseRetryAfter understands the delay-seconds form of the header.
// HTTP-date values and garbage yield zero, falling back to the policy.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// decodeErrorReason pulls the reason out of an Open-Meteo error envelope
// on a non-2xx response, when there is one.
func decodeErrorReason(body interface{ Read([]byte) (int, error) }) string {
	var envelope struct {
		Error  bool   `json:"error"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		return ""
	}
	return envelope.Reason
}
