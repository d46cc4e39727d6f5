// Package scraper relays Prometheus metrics into Google Cloud
// Monitoring. It runs as a separate container triggered periodically
// (Cloud Scheduler hitting Cloud Run), fetches the forecast server's
// /metrics exposition, converts counters, gauges, untyped values and
// histograms into Cloud Monitoring TimeSeries, and writes them.
//
// Decoupling the relay from the server keeps scraping reliable while
// the server itself stays a plain Prometheus target.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/genproto/googleapis/api/distribution"
	"google.golang.org/genproto/googleapis/api/metric"
	"google.golang.org/genproto/googleapis/api/monitoredres"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// maxSeriesPerWrite is Cloud Monitoring's limit on time series per
// CreateTimeSeries call.
const maxSeriesPerWrite = 200

// Config locates the scrape target and the destination project.
type Config struct {
	// MetricsURL is the full URL of the /metrics endpoint to scrape.
	MetricsURL string

	// ProjectID is the Google Cloud project receiving the series.
	ProjectID string

	// Location labels the monitored resource; defaults to europe-west1.
	Location string

	// Namespace and Job label the monitored resource; both default to
	// "weatheroracle".
	Namespace string
	Job       string
}

func (c Config) withDefaults() Config {
	if c.Location == "" {
		c.Location = "europe-west1"
	}
	if c.Namespace == "" {
		c.Namespace = "weatheroracle"
	}
	if c.Job == "" {
		c.Job = "weatheroracle"
	}
	return c
}

// Validate reports the first missing required field.
func (c Config) Validate() error {
	if c.MetricsURL == "" {
		return fmt.Errorf("scraper config: MetricsURL must be set")
	}
	if c.ProjectID == "" {
		return fmt.Errorf("scraper config: ProjectID must be set")
	}
	return nil
}

// seriesWriter is the slice of the Cloud Monitoring client the scraper
// needs, so tests can capture writes.
type seriesWriter interface {
	CreateTimeSeries(ctx context.Context, req *monitoringpb.CreateTimeSeriesRequest) error
	Close() error
}

// metricClient adapts *monitoring.MetricClient to seriesWriter.
type metricClient struct {
	client *monitoring.MetricClient
}

func (c *metricClient) CreateTimeSeries(ctx context.Context, req *monitoringpb.CreateTimeSeriesRequest) error {
	return c.client.CreateTimeSeries(ctx, req)
}

func (c *metricClient) Close() error { return c.client.Close() }

// Scraper fetches one exposition snapshot per Scrape call and relays
// it to Cloud Monitoring.
type Scraper struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	// newWriter is swappable in tests.
	newWriter func(ctx context.Context) (seriesWriter, error)

	// now is swappable in tests.
	now func() time.Time
}

// New validates the config and builds a Scraper.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		cfg:        cfg.withDefaults(),
		httpClient: httpClient,
		logger:     logger,
		newWriter: func(ctx context.Context) (seriesWriter, error) {
			client, err := monitoring.NewMetricClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("creating monitoring client: %w", err)
			}
			return &metricClient{client: client}, nil
		},
		now: time.Now,
	}, nil
}

// Handler serves the scheduler trigger: every request runs one scrape
// and ingest cycle.
func (s *Scraper) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Info("scrape request received")
		if err := s.Scrape(r.Context()); err != nil {
			s.logger.Error("scrape and ingest failed", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.logger.Info("metrics scraped and ingested")
		fmt.Fprintln(w, "ok")
	})
}

// Scrape fetches the exposition, converts it, and writes the series in
// batches.
func (s *Scraper) Scrape(ctx context.Context) error {
	series, err := s.collect(ctx)
	if err != nil {
		return fmt.Errorf("collecting metrics: %w", err)
	}
	if len(series) == 0 {
		s.logger.Info("no metric samples to ingest")
		return nil
	}

	writer, err := s.newWriter(ctx)
	if err != nil {
		return err
	}
	defer writer.Close()

	for start := 0; start < len(series); start += maxSeriesPerWrite {
		end := min(start+maxSeriesPerWrite, len(series))
		req := &monitoringpb.CreateTimeSeriesRequest{
			Name:       "projects/" + s.cfg.ProjectID,
			TimeSeries: series[start:end],
		}
		if err := writer.CreateTimeSeries(ctx, req); err != nil {
			return fmt.Errorf("writing time series batch at %d: %w", start, err)
		}
	}
	s.logger.Debug("time series written", "count", len(series))
	return nil
}

// collect scrapes the endpoint and converts every supported family.
func (s *Scraper) collect(ctx context.Context) ([]*monitoringpb.TimeSeries, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.MetricsURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics endpoint returned status %d", resp.StatusCode)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing prometheus exposition: %w", err)
	}

	resource := &monitoredres.MonitoredResource{
		Type: "prometheus_target",
		Labels: map[string]string{
			"project_id": s.cfg.ProjectID,
			"location":   s.cfg.Location,
			"cluster":    "__gce__",
			"namespace":  s.cfg.Namespace,
			"job":        s.cfg.Job,
			"instance":   s.cfg.MetricsURL,
		},
	}

	var series []*monitoringpb.TimeSeries
	now := timestamppb.New(s.now())

	for name, family := range families {
		for _, m := range family.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}

			var point *monitoringpb.Point
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				point = doublePoint(now, m.GetCounter().GetValue())
			case dto.MetricType_GAUGE:
				point = doublePoint(now, m.GetGauge().GetValue())
			case dto.MetricType_UNTYPED:
				point = doublePoint(now, m.GetUntyped().GetValue())
			case dto.MetricType_HISTOGRAM:
				point = s.distributionPoint(now, m.GetHistogram())
			default:
				s.logger.Debug("skipping unsupported metric type", "metric", name, "type", family.GetType())
				continue
			}

			series = append(series, &monitoringpb.TimeSeries{
				Metric: &metric.Metric{
					Type:   "prometheus.googleapis.com/" + name,
					Labels: labels,
				},
				Resource: resource,
				Points:   []*monitoringpb.Point{point},
			})
		}
	}
	return series, nil
}

func doublePoint(timestamp *timestamppb.Timestamp, value float64) *monitoringpb.Point {
	return &monitoringpb.Point{
		Interval: &monitoringpb.TimeInterval{EndTime: timestamp},
		Value: &monitoringpb.TypedValue{
			Value: &monitoringpb.TypedValue_DoubleValue{DoubleValue: value},
		},
	}
}

// distributionPoint converts a Prometheus histogram into a Cloud
// Monitoring distribution. Prometheus buckets are cumulative and end
// with +Inf; the distribution wants per-bucket counts and finite
// bounds only.
func (s *Scraper) distributionPoint(timestamp *timestamppb.Timestamp, h *dto.Histogram) *monitoringpb.Point {
	buckets := h.GetBucket()
	bounds := make([]float64, 0, max(len(buckets)-1, 0))
	bucketCounts := make([]int64, len(buckets))
	var lastCumulative uint64

	for i, b := range buckets {
		if i < len(buckets)-1 {
			bounds = append(bounds, b.GetUpperBound())
		}
		cumulative := b.GetCumulativeCount()
		count := cumulative - lastCumulative
		if count > math.MaxInt64 {
			s.logger.Warn("histogram bucket count exceeds MaxInt64, capping", "bucket", i)
			bucketCounts[i] = math.MaxInt64
		} else {
			bucketCounts[i] = int64(count)
		}
		lastCumulative = cumulative
	}

	sampleCount := h.GetSampleCount()
	var count int64
	if sampleCount > math.MaxInt64 {
		s.logger.Warn("histogram sample count exceeds MaxInt64, capping")
		count = math.MaxInt64
	} else {
		count = int64(sampleCount)
	}

	var mean float64
	if sampleCount > 0 {
		mean = h.GetSampleSum() / float64(sampleCount)
	}

	return &monitoringpb.Point{
		Interval: &monitoringpb.TimeInterval{EndTime: timestamp},
		Value: &monitoringpb.TypedValue{
			Value: &monitoringpb.TypedValue_DistributionValue{
				DistributionValue: &distribution.Distribution{
					Count: count,
					Mean:  mean,
					BucketOptions: &distribution.Distribution_BucketOptions{
						Options: &distribution.Distribution_BucketOptions_ExplicitBuckets{
							ExplicitBuckets: &distribution.Distribution_BucketOptions_Explicit{
								Bounds: bounds,
							},
						},
					},
					BucketCounts: bucketCounts,
				},
			},
		},
	}
}
