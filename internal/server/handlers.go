package server

import (
	"net/http"
	"strconv"

	"github.com/meteomancer/weatheroracle/internal/cache"
	"github.com/meteomancer/weatheroracle/internal/consensus"
	"github.com/meteomancer/weatheroracle/internal/format"
	"github.com/meteomancer/weatheroracle/internal/nwp"
	"github.com/meteomancer/weatheroracle/internal/pipeline"
)

// This file contains the HTTP handlers. Each handler validates the
// request, calls into the pipeline, and writes a JSON response. The
// payload shape is owned by the format package; handlers only add
// transport concerns (status codes, the X-Cache header).

// statusClientClosedRequest is the nginx convention for a request the
// client abandoned. It never reaches the client; it keeps the logs and
// metrics honest.
const statusClientClosedRequest = 499

// handlerForecast serves GET /v1/forecast?location=&days=&models=&hourly=&nocache=.
func (s *Server) handlerForecast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		s.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	params := r.URL.Query()
	query := params.Get("location")
	if query == "" {
		s.respondWithError(w, http.StatusBadRequest, "missing required parameter: location", nil)
		return
	}

	req := pipeline.Request{Query: query}
	if daysStr := params.Get("days"); daysStr != "" {
		days, err := strconv.Atoi(daysStr)
		if err != nil || days < 1 {
			s.respondWithError(w, http.StatusBadRequest, "days must be a positive integer", nil)
			return
		}
		req.Days = days
	}
	if modelsStr := params.Get("models"); modelsStr != "" {
		req.Models = splitModels(modelsStr)
	}
	if nocacheStr := params.Get("nocache"); nocacheStr != "" {
		nocache, err := strconv.ParseBool(nocacheStr)
		if err != nil {
			s.respondWithError(w, http.StatusBadRequest, "nocache must be a boolean", nil)
			return
		}
		req.NoCache = nocache
	}
	includeHourly := false
	if hourlyStr := params.Get("hourly"); hourlyStr != "" {
		hourly, err := strconv.ParseBool(hourlyStr)
		if err != nil {
			s.respondWithError(w, http.StatusBadRequest, "hourly must be a boolean", nil)
			return
		}
		includeHourly = hourly
	}
	s.logger.Debug("forecast request", "location", query, "days", req.Days, "models", req.Models)

	result, err := s.pipeline.Forecast(ctx, req)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}

	recordModelFailures(result.Forecast.FailedModels)
	consensusConfidence.Set(result.Forecast.OverallConfidence.Score)
	if result.FromCache {
		forecastsServedTotal.WithLabelValues("cache").Inc()
		w.Header().Set("X-Cache", "HIT")
	} else {
		forecastsServedTotal.WithLabelValues("computed").Inc()
		w.Header().Set("X-Cache", "MISS")
	}
	recordCacheStats(s.pipeline.CacheStats())

	s.respondWithJSON(w, http.StatusOK, format.BuildResponse(result, format.Options{
		IncludeHourly: includeHourly,
	}))
}

// handlerSearch serves GET /v1/search?q=&limit=.
func (s *Server) handlerSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		s.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		s.respondWithError(w, http.StatusBadRequest, "missing required parameter: q", nil)
		return
	}
	limit := 5
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			s.respondWithError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}
	s.logger.Debug("search request", "q", query, "limit", limit)

	results, err := s.pipeline.Search(ctx, query, limit)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}

	type searchResponse struct {
		Query   string         `json:"query"`
		Results []searchResult `json:"results"`
	}
	out := make([]searchResult, len(results))
	for i, res := range results {
		out[i] = searchResult{
			Name:       res.Name,
			Country:    res.Country,
			Region:     res.Region,
			Latitude:   res.Coordinates.Latitude.Value(),
			Longitude:  res.Coordinates.Longitude.Value(),
			Timezone:   string(res.Timezone),
			Population: res.Population,
		}
	}
	s.respondWithJSON(w, http.StatusOK, searchResponse{Query: query, Results: out})
}

// searchResult is the flat search listing shape.
type searchResult struct {
	Name       string  `json:"name"`
	Country    string  `json:"country,omitempty"`
	Region     string  `json:"region,omitempty"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Timezone   string  `json:"timezone,omitempty"`
	Population int64   `json:"population,omitempty"`
}

// handlerModels serves GET /v1/models: every registered model and
// whether it is part of the default set.
func (s *Server) handlerModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	defaults := make(map[string]bool)
	for _, id := range nwp.DefaultModelIDs() {
		defaults[id] = true
	}

	type modelInfo struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Path    string `json:"path"`
		Variant string `json:"variant,omitempty"`
		Default bool   `json:"default"`
	}
	registry := s.pipeline.Registry()
	models := make([]modelInfo, 0, len(registry.IDs()))
	for _, id := range registry.IDs() {
		m, _ := registry.Lookup(id)
		models = append(models, modelInfo{
			ID:      m.ID,
			Name:    m.Name,
			Path:    m.Path,
			Variant: m.Variant,
			Default: defaults[m.ID],
		})
	}
	s.respondWithJSON(w, http.StatusOK, map[string]any{"models": models})
}

// handlerHealthz reports liveness plus cache effectiveness. A configured
// but unreachable database degrades the status.
func (s *Server) handlerHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	type healthResponse struct {
		Status string      `json:"status"`
		Cache  cache.Stats `json:"cache"`
	}
	resp := healthResponse{Status: "ok", Cache: s.pipeline.CacheStats()}

	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			s.logger.Error("database unreachable", "error", err)
			resp.Status = "degraded"
			s.respondWithJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	s.respondWithJSON(w, http.StatusOK, resp)
}

// handlerFlushCache is a development-only endpoint that drops every
// cached forecast.
func (s *Server) handlerFlushCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}
	s.logger.Debug("cache flush request received")

	if err := s.pipeline.FlushCache(r.Context()); err != nil {
		s.respondWithError(w, http.StatusInternalServerError, "Failed to flush cache", err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]string{"status": "cache flushed"})
}

// respondPipelineError maps a pipeline error to a transport status. 4xx
// messages carry the underlying text since it names the caller's
// mistake; 5xx messages stay generic and the detail goes to the log.
func (s *Server) respondPipelineError(w http.ResponseWriter, err error) {
	switch pipeline.Classify(err) {
	case pipeline.KindInvalidInput:
		s.respondWithError(w, http.StatusBadRequest, err.Error(), nil)
	case pipeline.KindNotFound:
		s.respondWithError(w, http.StatusNotFound, err.Error(), nil)
	case pipeline.KindGeocoding:
		s.respondWithError(w, http.StatusBadGateway, "geocoding service unavailable", err)
	case pipeline.KindAllModelsFailed:
		s.respondWithError(w, http.StatusBadGateway, "forecast models unavailable", err)
	case pipeline.KindTimeout:
		s.respondWithError(w, http.StatusGatewayTimeout, "forecast request timed out", err)
	case pipeline.KindCanceled:
		s.respondWithError(w, statusClientClosedRequest, "request canceled", nil)
	default:
		s.respondWithError(w, http.StatusInternalServerError, "Error assembling forecast", err)
	}
}

func recordModelFailures(failed []consensus.FailedModel) {
	for _, f := range failed {
		modelFailuresTotal.WithLabelValues(f.ModelID).Inc()
	}
}

func recordCacheStats(stats cache.Stats) {
	cacheStats.WithLabelValues("hits").Set(float64(stats.Hits))
	cacheStats.WithLabelValues("misses").Set(float64(stats.Misses))
	cacheStats.WithLabelValues("evictions").Set(float64(stats.Evictions))
}
