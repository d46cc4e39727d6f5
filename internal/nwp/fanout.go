package nwp

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meteomancer/weatheroracle/internal/forecast"
	"github.com/meteomancer/weatheroracle/internal/units"
)

// ModelFailure records one model's fetch failure for diagnostics.
type ModelFailure struct {
	Model    string
	Err      error
	Duration time.Duration
}

// ModelTiming records how long one model's fetch took, success or not.
type ModelTiming struct {
	Model    string
	Duration time.Duration
	OK       bool
}

// Report is the outcome of a fan-out across models. Successes, Failures
// and Timings are each sorted by model ID so downstream output is stable
// regardless of arrival order.
type Report struct {
	Successes     []forecast.ModelForecast
	Failures      []ModelFailure
	Timings       []ModelTiming
	FetchedAt     time.Time
	TotalDuration time.Duration
}

// SuccessRate is the fraction of requested models that returned a usable
// forecast. An empty fan-out reports zero.
func (r Report) SuccessRate() float64 {
	total := len(r.Successes) + len(r.Failures)
	if total == 0 {
		return 0
	}
	return float64(len(r.Successes)) / float64(total)
}

// FailedModelIDs lists the models that failed, sorted.
func (r Report) FailedModelIDs() []string {
	ids := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		ids = append(ids, f.Model)
	}
	return ids
}

type fetchResult struct {
	model    string
	mf       forecast.ModelForecast
	err      error
	duration time.Duration
}

// FetchMany fans out one fetch per model and collects whatever comes back.
// A model's failure never aborts the others; the caller inspects the
// Report and decides whether enough survived. RequestDelay staggers launch
// k by k*delay to stay under upstream rate limits.
func (c *Client) FetchMany(ctx context.Context, models []Model, coords units.Coordinates, opts FetchOptions) Report {
	opts = opts.withDefaults()
	start := time.Now()
	report := Report{FetchedAt: start.UTC()}
	if len(models) == 0 {
		return report
	}

	results := make(chan fetchResult, len(models))
	var wg sync.WaitGroup
	for k, model := range models {
		wg.Add(1)
		go func(k int, model Model) {
			defer wg.Done()
			if delay := opts.RequestDelay * time.Duration(k); delay > 0 {
				select {
				case <-ctx.Done():
					results <- fetchResult{model: model.ID, err: ctx.Err()}
					return
				case <-time.After(delay):
				}
			}
			begin := time.Now()
			mf, err := c.FetchOne(ctx, model, coords, opts)
			results <- fetchResult{model: model.ID, mf: mf, err: err, duration: time.Since(begin)}
		}(k, model)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		report.Timings = append(report.Timings, ModelTiming{Model: res.model, Duration: res.duration, OK: res.err == nil})
		if res.err != nil {
			c.logger.Warn("model fetch failed", "model", res.model, "error", res.err, "duration", res.duration.String())
			report.Failures = append(report.Failures, ModelFailure{Model: res.model, Err: res.err, Duration: res.duration})
			continue
		}
		c.logger.Debug("model fetch succeeded", "model", res.model, "duration", res.duration.String())
		report.Successes = append(report.Successes, res.mf)
	}

	sort.Slice(report.Successes, func(i, j int) bool { return report.Successes[i].ModelID < report.Successes[j].ModelID })
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].Model < report.Failures[j].Model })
	sort.Slice(report.Timings, func(i, j int) bool { return report.Timings[i].Model < report.Timings[j].Model })

	report.TotalDuration = time.Since(start)
	return report
}
