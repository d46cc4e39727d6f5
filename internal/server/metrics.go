package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// This file defines the Prometheus metrics that are exposed by the server.

// httpRequestsTotal tracks the total number of HTTP requests, partitioned
// by the request's URL path, HTTP method, and the resulting status code.
var httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "weatheroracle_http_requests_total",
	Help: "Total number of HTTP requests by path, method and code.",
}, []string{"path", "method", "code"})

// httpRequestDuration tracks request latency per path.
var httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "weatheroracle_http_request_duration_seconds",
	Help:    "HTTP request latency by path.",
	Buckets: prometheus.DefBuckets,
}, []string{"path"})

// forecastsServedTotal counts served forecasts by provenance, so cache
// effectiveness is visible without scraping the stats endpoint.
var forecastsServedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "weatheroracle_forecasts_served_total",
	Help: "Total number of forecasts served, by source (cache or computed).",
}, []string{"source"})

// modelFailuresTotal counts upstream model failures by model identifier.
var modelFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "weatheroracle_model_failures_total",
	Help: "Total number of model fetch failures by model.",
}, []string{"model"})

// consensusConfidence reports the overall confidence score of the most
// recently served forecast.
var consensusConfidence = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "weatheroracle_consensus_confidence",
	Help: "Overall confidence score of the most recently served forecast.",
})

// cacheStats mirrors the cache manager's counters into the registry.
// Refreshed on every served forecast.
var cacheStats = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "weatheroracle_cache_stats",
	Help: "Cache manager counters (hits, misses, evictions).",
}, []string{"stat"})
