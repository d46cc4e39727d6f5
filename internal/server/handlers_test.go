package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteomancer/weatheroracle/internal/format"
	"github.com/meteomancer/weatheroracle/internal/geocode"
	"github.com/meteomancer/weatheroracle/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// geocodeStub serves a single-result geocoding response. An empty name
// serves zero results.
func geocodeStub(t *testing.T, name string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/search", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if name == "" {
			io.WriteString(w, `{}`)
			return
		}
		fmt.Fprintf(w, `{"results":[{"name":%q,"latitude":53.3498,"longitude":-6.2603,"country":"Ireland","country_code":"IE","admin1":"Leinster","timezone":"Europe/Dublin","population":544107}]}`, name)
	}))
}

// modelStub is one model endpoint's canned response.
type modelStub struct {
	status int
	body   string
	hits   atomic.Int32
}

// forecastStub routes model endpoint paths to their stubs.
func forecastStub(t *testing.T, stubs map[string]*modelStub) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub, ok := stubs[r.URL.Path]
		if !ok {
			t.Errorf("unexpected model path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		stub.hits.Add(1)
		if stub.status != 0 && stub.status != http.StatusOK {
			w.WriteHeader(stub.status)
			io.WriteString(w, stub.body)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, stub.body)
	}))
}

func hourlyPayload(t0, t1 float64) string {
	return fmt.Sprintf(`{
		"timezone": "UTC",
		"hourly": {
			"time": ["2026-08-25T00:00", "2026-08-25T01:00"],
			"temperature_2m": [%g, %g]
		}
	}`, t0, t1)
}

func okStubs(temp float64) map[string]*modelStub {
	return map[string]*modelStub{
		"/v1/ecmwf":    {body: hourlyPayload(temp, temp+1)},
		"/v1/gfs":      {body: hourlyPayload(temp+1, temp+2)},
		"/v1/dwd-icon": {body: hourlyPayload(temp+2, temp+3)},
	}
}

func newTestServer(t *testing.T, geoURL, forecastURL string, devMode bool) *Server {
	t.Helper()
	s, err := New(Config{
		Port:         "0",
		DevMode:      devMode,
		GeocodingURL: geoURL,
		ForecastURL:  forecastURL,
		ForecastDays: 2,
		Logger:       testLogger(),
	})
	require.NoError(t, err)
	return s
}

func doRequest(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHandlerForecast(t *testing.T) {
	geo := geocodeStub(t, "Dublin")
	defer geo.Close()
	stubs := okStubs(14)
	fc := forecastStub(t, stubs)
	defer fc.Close()

	h := newTestServer(t, geo.URL, fc.URL, false).Routes()

	rec := doRequest(h, http.MethodGet, "/v1/forecast?location=Dublin&hourly=true")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp format.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Dublin", resp.Location.Name)
	assert.Equal(t, "Ireland", resp.Location.Country)
	assert.Equal(t, []string{"ecmwf", "gfs", "icon"}, resp.Models.Contributing)
	assert.Empty(t, resp.Models.Failed)
	assert.NotEmpty(t, resp.Narrative)
	assert.NotEmpty(t, resp.Daily)
	assert.NotEmpty(t, resp.Hourly)

	// The same query an instant later is a cache hit; the model
	// endpoints are not touched again.
	rec = doRequest(h, http.MethodGet, "/v1/forecast?location=Dublin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, int32(1), stubs["/v1/ecmwf"].hits.Load())

	// Without hourly= the payload omits the hourly series.
	var cached format.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cached))
	assert.Empty(t, cached.Hourly)
	assert.NotEmpty(t, cached.Daily)
}

func TestHandlerForecastValidation(t *testing.T) {
	geo := geocodeStub(t, "Dublin")
	defer geo.Close()
	fc := forecastStub(t, okStubs(14))
	defer fc.Close()

	h := newTestServer(t, geo.URL, fc.URL, false).Routes()

	tests := []struct {
		name     string
		method   string
		target   string
		wantCode int
	}{
		{"missing location", http.MethodGet, "/v1/forecast", http.StatusBadRequest},
		{"days not a number", http.MethodGet, "/v1/forecast?location=Dublin&days=soon", http.StatusBadRequest},
		{"days negative", http.MethodGet, "/v1/forecast?location=Dublin&days=-1", http.StatusBadRequest},
		{"nocache not boolean", http.MethodGet, "/v1/forecast?location=Dublin&nocache=perhaps", http.StatusBadRequest},
		{"hourly not boolean", http.MethodGet, "/v1/forecast?location=Dublin&hourly=sometimes", http.StatusBadRequest},
		{"unknown model", http.MethodGet, "/v1/forecast?location=Dublin&models=hrrr", http.StatusBadRequest},
		{"method not allowed", http.MethodPost, "/v1/forecast?location=Dublin", http.StatusMethodNotAllowed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(h, tc.method, tc.target)
			assert.Equal(t, tc.wantCode, rec.Code, rec.Body.String())

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandlerForecastLocationNotFound(t *testing.T) {
	geo := geocodeStub(t, "")
	defer geo.Close()
	fc := forecastStub(t, okStubs(14))
	defer fc.Close()

	h := newTestServer(t, geo.URL, fc.URL, false).Routes()

	rec := doRequest(h, http.MethodGet, "/v1/forecast?location=Nowhereville")
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestHandlerSearch(t *testing.T) {
	geo := geocodeStub(t, "Dublin")
	defer geo.Close()
	fc := forecastStub(t, nil)
	defer fc.Close()

	h := newTestServer(t, geo.URL, fc.URL, false).Routes()

	rec := doRequest(h, http.MethodGet, "/v1/search?q=dub&limit=3")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Query   string `json:"query"`
		Results []struct {
			Name      string  `json:"name"`
			Country   string  `json:"country"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "dub", resp.Query)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Dublin", resp.Results[0].Name)
	assert.InDelta(t, 53.3498, resp.Results[0].Latitude, 1e-9)
}

func TestHandlerSearchValidation(t *testing.T) {
	geo := geocodeStub(t, "Dublin")
	defer geo.Close()
	fc := forecastStub(t, nil)
	defer fc.Close()

	h := newTestServer(t, geo.URL, fc.URL, false).Routes()

	tests := []struct {
		name     string
		method   string
		target   string
		wantCode int
	}{
		{"missing q", http.MethodGet, "/v1/search", http.StatusBadRequest},
		{"limit not a number", http.MethodGet, "/v1/search?q=dub&limit=few", http.StatusBadRequest},
		{"limit zero", http.MethodGet, "/v1/search?q=dub&limit=0", http.StatusBadRequest},
		{"query too short", http.MethodGet, "/v1/search?q=x", http.StatusBadRequest},
		{"method not allowed", http.MethodDelete, "/v1/search?q=dub", http.StatusMethodNotAllowed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(h, tc.method, tc.target)
			assert.Equal(t, tc.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestHandlerModels(t *testing.T) {
	geo := geocodeStub(t, "Dublin")
	defer geo.Close()
	fc := forecastStub(t, nil)
	defer fc.Close()

	h := newTestServer(t, geo.URL, fc.URL, false).Routes()

	rec := doRequest(h, http.MethodGet, "/v1/models")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Models []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Default bool   `json:"default"`
		} `json:"models"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Models, 8)

	byID := make(map[string]bool, len(resp.Models))
	for _, m := range resp.Models {
		byID[m.ID] = m.Default
	}
	assert.True(t, byID["ecmwf"])
	assert.True(t, byID["gfs"])
	assert.True(t, byID["icon"])
	assert.False(t, byID["metno"])
}

func TestHandlerHealthz(t *testing.T) {
	geo := geocodeStub(t, "Dublin")
	defer geo.Close()
	fc := forecastStub(t, nil)
	defer fc.Close()

	h := newTestServer(t, geo.URL, fc.URL, false).Routes()

	rec := doRequest(h, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status string `json:"status"`
		Cache  struct {
			Hits   int64 `json:"hits"`
			Misses int64 `json:"misses"`
		} `json:"cache"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandlerFlushCache(t *testing.T) {
	geo := geocodeStub(t, "Dublin")
	defer geo.Close()
	stubs := okStubs(14)
	fc := forecastStub(t, stubs)
	defer fc.Close()

	h := newTestServer(t, geo.URL, fc.URL, true).Routes()

	rec := doRequest(h, http.MethodGet, "/v1/forecast?location=Dublin")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int32(1), stubs["/v1/ecmwf"].hits.Load())

	rec = doRequest(h, http.MethodPost, "/dev/flush-cache")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"cache flushed"}`, rec.Body.String())

	// The flush emptied the cache; the next request recomputes.
	rec = doRequest(h, http.MethodGet, "/v1/forecast?location=Dublin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, int32(2), stubs["/v1/ecmwf"].hits.Load())

	rec = doRequest(h, http.MethodGet, "/dev/flush-cache")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFlushCacheHiddenOutsideDevMode(t *testing.T) {
	geo := geocodeStub(t, "Dublin")
	defer geo.Close()
	fc := forecastStub(t, nil)
	defer fc.Close()

	h := newTestServer(t, geo.URL, fc.URL, false).Routes()

	rec := doRequest(h, http.MethodPost, "/dev/flush-cache")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	geo := geocodeStub(t, "Dublin")
	defer geo.Close()
	fc := forecastStub(t, okStubs(14))
	defer fc.Close()

	h := newTestServer(t, geo.URL, fc.URL, false).Routes()

	// Generate one labeled observation first.
	doRequest(h, http.MethodGet, "/v1/forecast?location=Dublin")

	rec := doRequest(h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "weatheroracle_http_requests_total")
	assert.Contains(t, body, "weatheroracle_forecasts_served_total")
	assert.Contains(t, body, "weatheroracle_consensus_confidence")
	assert.Contains(t, body, "weatheroracle_cache_stats")
}

func TestRespondPipelineError(t *testing.T) {
	s := &Server{logger: testLogger()}

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"invalid input", &pipeline.Error{Kind: pipeline.KindInvalidInput, Op: "models", Err: errors.New("unknown model")}, http.StatusBadRequest},
		{"invalid query", geocode.ErrInvalidInput, http.StatusBadRequest},
		{"not found", &geocode.NotFoundError{Query: "atlantis"}, http.StatusNotFound},
		{"geocoding down", &geocode.ServiceError{Query: "dublin", Err: errors.New("boom")}, http.StatusBadGateway},
		{"all models failed", &pipeline.AllModelsFailedError{Requested: 3}, http.StatusBadGateway},
		{"timeout", &pipeline.Error{Kind: pipeline.KindTimeout, Op: "fetch", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"canceled", &pipeline.Error{Kind: pipeline.KindCanceled, Op: "fetch", Err: context.Canceled}, statusClientClosedRequest},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.respondPipelineError(rec, tc.err)
			assert.Equal(t, tc.wantCode, rec.Code)
		})
	}
}

func TestRunShutsDownGracefully(t *testing.T) {
	geo := geocodeStub(t, "Dublin")
	defer geo.Close()
	fc := forecastStub(t, nil)
	defer fc.Close()

	s := newTestServer(t, geo.URL, fc.URL, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
