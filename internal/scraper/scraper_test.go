package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exposition = `# HELP weatheroracle_http_requests_total Total HTTP requests.
# TYPE weatheroracle_http_requests_total counter
weatheroracle_http_requests_total{code="200",method="GET",path="/v1/forecast"} 42
# TYPE weatheroracle_cache_entries gauge
weatheroracle_cache_entries 7
# TYPE weatheroracle_http_request_duration_seconds histogram
weatheroracle_http_request_duration_seconds_bucket{path="/v1/forecast",le="0.1"} 3
weatheroracle_http_request_duration_seconds_bucket{path="/v1/forecast",le="0.5"} 5
weatheroracle_http_request_duration_seconds_bucket{path="/v1/forecast",le="+Inf"} 6
weatheroracle_http_request_duration_seconds_sum{path="/v1/forecast"} 1.2
weatheroracle_http_request_duration_seconds_count{path="/v1/forecast"} 6
# TYPE weatheroracle_quantiles summary
weatheroracle_quantiles{quantile="0.5"} 0.2
weatheroracle_quantiles_sum 1
weatheroracle_quantiles_count 3
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeWriter struct {
	requests []*monitoringpb.CreateTimeSeriesRequest
	err      error
	closed   bool
}

func (f *fakeWriter) CreateTimeSeries(_ context.Context, req *monitoringpb.CreateTimeSeriesRequest) error {
	if f.err != nil {
		return f.err
	}
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func metricsStub(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		io.WriteString(w, body)
	}))
}

func newTestScraper(t *testing.T, metricsURL string, writer *fakeWriter) *Scraper {
	t.Helper()
	s, err := New(Config{MetricsURL: metricsURL, ProjectID: "test-project"}, nil, testLogger())
	require.NoError(t, err)
	s.newWriter = func(ctx context.Context) (seriesWriter, error) { return writer, nil }
	s.now = func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) }
	return s
}

func seriesByType(req *monitoringpb.CreateTimeSeriesRequest, metricType string) *monitoringpb.TimeSeries {
	for _, ts := range req.TimeSeries {
		if ts.Metric.Type == metricType {
			return ts
		}
	}
	return nil
}

func TestScrapeConvertsAndWrites(t *testing.T) {
	srv := metricsStub(t, exposition)
	defer srv.Close()
	writer := &fakeWriter{}
	s := newTestScraper(t, srv.URL, writer)

	require.NoError(t, s.Scrape(context.Background()))
	require.Len(t, writer.requests, 1)
	assert.True(t, writer.closed)

	req := writer.requests[0]
	assert.Equal(t, "projects/test-project", req.Name)
	assert.Len(t, req.TimeSeries, 3, "the summary family is skipped")

	counter := seriesByType(req, "prometheus.googleapis.com/weatheroracle_http_requests_total")
	require.NotNil(t, counter)
	assert.InDelta(t, 42, counter.Points[0].GetValue().GetDoubleValue(), 1e-9)
	assert.Equal(t, "200", counter.Metric.Labels["code"])
	assert.Equal(t, "/v1/forecast", counter.Metric.Labels["path"])

	assert.Equal(t, "prometheus_target", counter.Resource.Type)
	assert.Equal(t, "weatheroracle", counter.Resource.Labels["namespace"])
	assert.Equal(t, "weatheroracle", counter.Resource.Labels["job"])
	assert.Equal(t, "europe-west1", counter.Resource.Labels["location"])
	assert.Equal(t, srv.URL, counter.Resource.Labels["instance"])

	gauge := seriesByType(req, "prometheus.googleapis.com/weatheroracle_cache_entries")
	require.NotNil(t, gauge)
	assert.InDelta(t, 7, gauge.Points[0].GetValue().GetDoubleValue(), 1e-9)

	histogram := seriesByType(req, "prometheus.googleapis.com/weatheroracle_http_request_duration_seconds")
	require.NotNil(t, histogram)
	dist := histogram.Points[0].GetValue().GetDistributionValue()
	require.NotNil(t, dist)
	assert.Equal(t, int64(6), dist.Count)
	assert.InDelta(t, 0.2, dist.Mean, 1e-9)
	assert.Equal(t, []float64{0.1, 0.5}, dist.BucketOptions.GetExplicitBuckets().Bounds)
	assert.Equal(t, []int64{3, 2, 1}, dist.BucketCounts, "cumulative counts become per-bucket")
}

func TestScrapeBatchesLargeWrites(t *testing.T) {
	var b strings.Builder
	b.WriteString("# TYPE wx_total counter\n")
	for i := 0; i < 250; i++ {
		fmt.Fprintf(&b, "wx_total{shard=\"%d\"} 1\n", i)
	}
	srv := metricsStub(t, b.String())
	defer srv.Close()
	writer := &fakeWriter{}
	s := newTestScraper(t, srv.URL, writer)

	require.NoError(t, s.Scrape(context.Background()))
	require.Len(t, writer.requests, 2)
	assert.Len(t, writer.requests[0].TimeSeries, 200)
	assert.Len(t, writer.requests[1].TimeSeries, 50)
}

func TestScrapeSkipsEmptyExposition(t *testing.T) {
	srv := metricsStub(t, "")
	defer srv.Close()
	writer := &fakeWriter{}
	s := newTestScraper(t, srv.URL, writer)
	s.newWriter = func(ctx context.Context) (seriesWriter, error) {
		t.Error("writer built though there was nothing to ingest")
		return writer, nil
	}

	require.NoError(t, s.Scrape(context.Background()))
	assert.Empty(t, writer.requests)
}

func TestScrapeReportsEndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()
	s := newTestScraper(t, srv.URL, &fakeWriter{})

	err := s.Scrape(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestHandler(t *testing.T) {
	srv := metricsStub(t, exposition)
	defer srv.Close()
	writer := &fakeWriter{}
	s := newTestScraper(t, srv.URL, writer)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
	require.Len(t, writer.requests, 1)
}

func TestHandlerReportsFailure(t *testing.T) {
	srv := metricsStub(t, exposition)
	srv.Close() // endpoint unreachable
	s := newTestScraper(t, srv.URL, &fakeWriter{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{MetricsURL: "http://localhost/metrics"}.Validate())
	assert.NoError(t, Config{MetricsURL: "http://localhost/metrics", ProjectID: "p"}.Validate())
}

func TestDistributionPointEmptyHistogram(t *testing.T) {
	s := newTestScraper(t, "http://unused", &fakeWriter{})

	point := s.distributionPoint(nil, &dto.Histogram{})
	dist := point.GetValue().GetDistributionValue()
	require.NotNil(t, dist)
	assert.Zero(t, dist.Count)
	assert.Zero(t, dist.Mean)
	assert.Empty(t, dist.BucketCounts)
	assert.Empty(t, dist.BucketOptions.GetExplicitBuckets().Bounds)
}
