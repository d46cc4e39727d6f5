// Package pipeline orchestrates a forecast request end to end: geocode
// the query, fan out to the configured models, aggregate the successes
// into a consensus, and memoize the result. Partial model failure is
// tolerated down to a configured success rate; caller cancellation is
// honored at every stage and kept distinct from timeouts.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/meteomancer/weatheroracle/internal/cache"
	"github.com/meteomancer/weatheroracle/internal/consensus"
	"github.com/meteomancer/weatheroracle/internal/geocode"
	"github.com/meteomancer/weatheroracle/internal/nwp"
	"github.com/meteomancer/weatheroracle/internal/units"
)

// DefaultWallBudget bounds one forecast request end to end, including
// retries. On expiry the orchestrator aggregates whatever successes
// landed, or surfaces a timeout when there are none.
const DefaultWallBudget = 90 * time.Second

// Options carries the pipeline-wide defaults. Per-request overrides
// arrive in a Request.
type Options struct {
	// Models is the default model set; empty selects the registry
	// default.
	Models []string

	// MinSuccessRate is the fraction of requested models that must
	// return a usable forecast, in [0,1]. Zero tolerates every failure
	// short of all models failing.
	MinSuccessRate float64

	WallBudget time.Duration

	Fetch nwp.FetchOptions
}

func (o Options) withDefaults() Options {
	if len(o.Models) == 0 {
		o.Models = nwp.DefaultModelIDs()
	}
	if o.MinSuccessRate < 0 {
		o.MinSuccessRate = 0
	}
	if o.MinSuccessRate > 1 {
		o.MinSuccessRate = 1
	}
	if o.WallBudget <= 0 {
		o.WallBudget = DefaultWallBudget
	}
	return o
}

// Request is one forecast query.
type Request struct {
	Query string

	// Models overrides the configured model set for this request.
	Models []string

	// Days overrides the configured forecast horizon for this request.
	Days int

	// NoCache bypasses the cache read; the fresh result still replaces
	// the cached entry.
	NoCache bool

	// RetainInputs attaches the per-model forecasts to the result for
	// side-by-side comparison.
	RetainInputs bool
}

// Result pairs the aggregated forecast with the resolved location and
// cache provenance.
type Result struct {
	Location  geocode.Location              `json:"location"`
	Forecast  *consensus.AggregatedForecast `json:"forecast"`
	FromCache bool                          `json:"from_cache"`
	Elapsed   time.Duration                 `json:"elapsed"`
}

// Pipeline binds the geocoder, the model fetcher, the aggregator, and
// the cache. It is safe for concurrent use.
type Pipeline struct {
	geocoder geocode.Geocoder
	fetcher  *nwp.Client
	cache    *cache.Manager
	opts     Options
	logger   *slog.Logger
}

// New wires a pipeline. A nil cache manager gets a process-local
// in-memory one; a nil logger selects slog.Default().
func New(geocoder geocode.Geocoder, fetcher *nwp.Client, cacheManager *cache.Manager, opts Options, logger *slog.Logger) *Pipeline {
	if cacheManager == nil {
		cacheManager = cache.NewManager(cache.NewMemoryStore(), cache.ManagerOptions{Logger: logger})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		geocoder: geocoder,
		fetcher:  fetcher,
		cache:    cacheManager,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

// Registry exposes the fetcher's model registry for listings.
func (p *Pipeline) Registry() *nwp.Registry { return p.fetcher.Registry() }

// CacheStats reports the cache effectiveness counters.
func (p *Pipeline) CacheStats() cache.Stats { return p.cache.Stats() }

// FlushCache drops every cached forecast.
func (p *Pipeline) FlushCache(ctx context.Context) error { return p.cache.Flush(ctx) }

// Forecast resolves the query, serves from cache when it can, and
// otherwise fans out to the requested models and aggregates the
// successes. Concurrent requests for the same key share one fan-out.
func (p *Pipeline) Forecast(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.opts.WallBudget)
	defer cancel()

	resolved, err := p.geocoder.Resolve(ctx, req.Query)
	if err != nil {
		return nil, wrapGeocode("geocode", err)
	}
	location := geocode.Location{Query: req.Query, Resolved: resolved}

	ids := req.Models
	if len(ids) == 0 {
		ids = p.opts.Models
	}
	models, err := p.fetcher.Registry().Resolve(ids)
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, Op: "models", Err: err}
	}

	fetchOpts := p.opts.Fetch
	if req.Days > 0 {
		fetchOpts.ForecastDays = req.Days
	}
	if err := fetchOpts.Validate(); err != nil {
		return nil, &Error{Kind: KindInvalidInput, Op: "models", Err: err}
	}

	key := cache.NewKey(resolved.Coordinates, ids, time.Now())
	compute := func(ctx context.Context) (*consensus.AggregatedForecast, error) {
		return p.compute(ctx, models, resolved.Coordinates, fetchOpts, req.RetainInputs)
	}

	var agg *consensus.AggregatedForecast
	var fromCache bool
	switch {
	case req.RetainInputs:
		// Retained inputs are per-request diagnostics; they neither come
		// from nor go into the cache.
		agg, err = compute(ctx)
	case req.NoCache:
		agg, err = compute(ctx)
		if err == nil {
			if setErr := p.cache.Set(ctx, key, agg); setErr != nil {
				p.logger.Warn("cache refresh failed", "key", key.String(), "error", setErr)
			}
		}
	default:
		agg, fromCache, err = p.cache.GetOrCompute(ctx, key, compute)
	}
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	p.logger.Info("forecast served",
		"query", req.Query,
		"location", resolved.Name,
		"models", len(models),
		"contributing", len(agg.ContributingModels),
		"from_cache", fromCache,
		"elapsed", elapsed.String(),
	)
	return &Result{Location: location, Forecast: agg, FromCache: fromCache, Elapsed: elapsed}, nil
}

// Search returns up to limit geocoding matches for the query.
func (p *Pipeline) Search(ctx context.Context, query string, limit int) ([]geocode.Result, error) {
	results, err := p.geocoder.Search(ctx, query, limit)
	if err != nil {
		return nil, wrapGeocode("search", err)
	}
	return results, nil
}

// compute is the cache-miss path: fan out, enforce the success floor,
// aggregate, and attach the failure diagnostics.
func (p *Pipeline) compute(ctx context.Context, models []nwp.Model, coords units.Coordinates, fetchOpts nwp.FetchOptions, retain bool) (*consensus.AggregatedForecast, error) {
	report := p.fetcher.FetchMany(ctx, models, coords, fetchOpts)

	if len(report.Successes) == 0 {
		// Caller cancellation and budget expiry outrank upstream
		// diagnostics.
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			return nil, &Error{Kind: KindCanceled, Op: "fetch", Err: context.Canceled}
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, &Error{Kind: KindTimeout, Op: "fetch", Err: context.DeadlineExceeded}
		}
		return nil, &AllModelsFailedError{
			Requested: len(models),
			Failures:  report.Failures,
		}
	}
	if rate := report.SuccessRate(); rate < p.opts.MinSuccessRate {
		return nil, &AllModelsFailedError{
			Requested: len(models),
			Successes: len(report.Successes),
			Rate:      rate,
			MinRate:   p.opts.MinSuccessRate,
			Failures:  report.Failures,
		}
	}

	agg, err := consensus.Aggregate(report.Successes, consensus.Options{
		RequestedModels: len(models),
		RetainInputs:    retain,
	})
	if err != nil {
		return nil, &Error{Kind: KindAggregation, Op: "aggregate", Err: err}
	}
	agg.FailedModels = failedModels(report.Failures)
	return agg, nil
}

func failedModels(failures []nwp.ModelFailure) []consensus.FailedModel {
	if len(failures) == 0 {
		return nil
	}
	out := make([]consensus.FailedModel, len(failures))
	for i, f := range failures {
		out[i] = consensus.FailedModel{
			ModelID:   f.Model,
			Reason:    f.Err.Error(),
			Transient: nwp.Transient(f.Err),
		}
	}
	return out
}
