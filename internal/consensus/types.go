// Package consensus reconciles per-model forecasts into a single consensus
// forecast with quantified confidence. The aggregator aligns model time
// series on shared timesteps, derives robust point estimates per metric,
// flags outlier models, and scores every timestep through the confidence
// engine. Output is deterministic for a fixed input set regardless of
// arrival order.
package consensus

import (
	"errors"
	"fmt"
	"time"

	"github.com/meteomancer/weatheroracle/internal/forecast"
	"github.com/meteomancer/weatheroracle/internal/stats"
	"github.com/meteomancer/weatheroracle/internal/units"
)

// ErrEmptyForecasts is returned by Aggregate when there is nothing to
// aggregate.
var ErrEmptyForecasts = errors.New("no model forecasts to aggregate")

// IncoherentError reports inputs that cannot be reconciled: duplicate
// model identifiers, invalid weight overrides, or consensus values that
// violate a domain range.
type IncoherentError struct {
	Reason string
	Err    error
}

func (e *IncoherentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("incoherent forecasts: %s: %v", e.Reason, e.Err)
	}
	return "incoherent forecasts: " + e.Reason
}

func (e *IncoherentError) Unwrap() error { return e.Err }

// ModelWeight is one model's share of the consensus, with a reason tag so
// alternative weighting schemes stay a local change.
type ModelWeight struct {
	ModelID string  `json:"model_id"`
	Weight  float64 `json:"weight"`
	Reason  string  `json:"reason"`
}

// MetricRanges carries the raw observed extrema per metric across the
// models contributing to one timestep, untrimmed. Visualization uses these
// for uncertainty bands; they are distinct from the point estimate.
type MetricRanges struct {
	Temperature       forecast.MetricRange `json:"temperature"`
	FeelsLike         forecast.MetricRange `json:"feels_like"`
	Humidity          forecast.MetricRange `json:"humidity"`
	Pressure          forecast.MetricRange `json:"pressure"`
	WindSpeed         forecast.MetricRange `json:"wind_speed"`
	Precipitation     forecast.MetricRange `json:"precipitation"`
	PrecipProbability forecast.MetricRange `json:"precip_probability"`
	CloudCover        forecast.MetricRange `json:"cloud_cover"`
	Visibility        forecast.MetricRange `json:"visibility"`
	UVIndex           forecast.MetricRange `json:"uv_index"`
}

// DailyRanges is the daily counterpart of MetricRanges, over the per-model
// daily summaries.
type DailyRanges struct {
	TemperatureMin forecast.MetricRange `json:"temperature_min"`
	TemperatureMax forecast.MetricRange `json:"temperature_max"`
	Precipitation  forecast.MetricRange `json:"precipitation"`
	WindSpeed      forecast.MetricRange `json:"wind_speed"`
}

// ModelConsensus describes how much the contributing models agreed at one
// timestep. ModelsInAgreement and OutlierModels partition the contributing
// set; AgreementScore is |inAgreement| / contributing.
type ModelConsensus struct {
	AgreementScore     float64                `json:"agreement_score"`
	ModelsInAgreement  []string               `json:"models_in_agreement"`
	OutlierModels      []string               `json:"outlier_models,omitempty"`
	TemperatureStats   stats.MetricStatistics `json:"temperature_stats"`
	PrecipitationStats stats.MetricStatistics `json:"precipitation_stats"`
	WindStats          stats.MetricStatistics `json:"wind_stats"`
}

// AggregatedHourlyForecast is the consensus at one UTC hour.
type AggregatedHourlyForecast struct {
	Timestamp      time.Time               `json:"timestamp"`
	Metrics        forecast.WeatherMetrics `json:"metrics"`
	Confidence     ConfidenceLevel         `json:"confidence"`
	ModelAgreement ModelConsensus          `json:"model_agreement"`
	Range          MetricRanges            `json:"range"`
}

// AggregatedDailyForecast is the consensus for one local calendar day.
// PrecipChance is the percentage of contributing models forecasting
// measurable precipitation (> 0.1 mm) that day.
type AggregatedDailyForecast struct {
	Date           time.Time               `json:"date"`
	Forecast       forecast.DailyForecast  `json:"forecast"`
	Confidence     ConfidenceLevel         `json:"confidence"`
	ModelAgreement ModelConsensus          `json:"model_agreement"`
	Range          DailyRanges             `json:"range"`
	PrecipChance   float64                 `json:"precip_chance"`
}

// FailedModel is the diagnostic record for a model that did not
// contribute. The orchestrator attaches these after aggregation.
type FailedModel struct {
	ModelID   string `json:"model_id"`
	Reason    string `json:"reason"`
	Transient bool   `json:"transient"`
}

// AggregatedForecast is the root result: the consensus time series plus
// everything needed to explain it. ModelForecasts is populated only when
// the caller asks to retain inputs for inspection.
type AggregatedForecast struct {
	Coordinates        units.Coordinates          `json:"coordinates"`
	Timezone           units.TimezoneID           `json:"timezone"`
	GeneratedAt        time.Time                  `json:"generated_at"`
	ValidFrom          time.Time                  `json:"valid_from"`
	ValidTo            time.Time                  `json:"valid_to"`
	ContributingModels []string                   `json:"contributing_models"`
	FailedModels       []FailedModel              `json:"failed_models,omitempty"`
	ModelWeights       []ModelWeight              `json:"model_weights"`
	OverallConfidence  ConfidenceLevel            `json:"overall_confidence"`
	Hourly             []AggregatedHourlyForecast `json:"hourly"`
	Daily              []AggregatedDailyForecast  `json:"daily"`
	ModelForecasts     []forecast.ModelForecast   `json:"model_forecasts,omitempty"`
}

// Options tunes one aggregation run.
type Options struct {
	// RequestedModels is the number of models the caller fanned out to,
	// including those that failed. The confidence engine uses it as the
	// agreement denominator so partial failure lowers the score. Zero
	// means "all requested models contributed".
	RequestedModels int

	// WeightOverrides replaces the uniform model weights. Every
	// contributing model must be present, every weight strictly positive,
	// and the sum over contributing models 1 ± 1e-6.
	WeightOverrides map[string]float64

	// RetainInputs attaches the input ModelForecasts to the result for
	// diagnostics and side-by-side comparison.
	RetainInputs bool

	Confidence ConfidenceConfig
}

func (o Options) withDefaults(contributing int) Options {
	if o.RequestedModels < contributing {
		o.RequestedModels = contributing
	}
	o.Confidence = o.Confidence.withDefaults()
	return o
}
