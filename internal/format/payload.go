// Package format renders aggregated forecasts for adapters: the stable
// JSON payload served over HTTP, and the table, narrative, and rich
// terminal formats used by the CLI. The core packages never import it.
package format

import (
	"math"
	"time"

	"github.com/meteomancer/weatheroracle/internal/consensus"
	"github.com/meteomancer/weatheroracle/internal/pipeline"
	"github.com/meteomancer/weatheroracle/internal/units"
)

// Units selects the measurement system of rendered values. The internal
// representation is always metric; imperial is a rendering concern.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// Valid reports whether the value names a known system.
func (u Units) Valid() bool { return u == UnitsMetric || u == UnitsImperial }

// Options tunes payload construction.
type Options struct {
	// Units defaults to metric.
	Units Units
	// IncludeHourly attaches the hourly series; daily is always present.
	IncludeHourly bool
}

func (o Options) withDefaults() Options {
	if !o.Units.Valid() {
		o.Units = UnitsMetric
	}
	return o
}

// Response is the adapter-facing serialization of an aggregated
// forecast. The top-level keys and RFC 3339 UTC timestamps are the
// stable contract; internal types are free to change shape.
type Response struct {
	Location    Location   `json:"location"`
	GeneratedAt time.Time  `json:"generatedAt"`
	ValidFrom   time.Time  `json:"validFrom"`
	ValidTo     time.Time  `json:"validTo"`
	Models      Models     `json:"models"`
	Confidence  Confidence `json:"confidence"`
	Narrative   string     `json:"narrative"`
	Daily       []Day      `json:"daily"`
	Hourly      []Hour     `json:"hourly,omitempty"`
}

type Location struct {
	Name      string  `json:"name"`
	Country   string  `json:"country,omitempty"`
	Region    string  `json:"region,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone,omitempty"`
}

type Models struct {
	Requested    int                `json:"requested"`
	Contributing []string           `json:"contributing"`
	Failed       []FailedModel      `json:"failed,omitempty"`
	Weights      map[string]float64 `json:"weights"`
}

type FailedModel struct {
	Model     string `json:"model"`
	Reason    string `json:"reason"`
	Transient bool   `json:"transient"`
}

type Confidence struct {
	Score   float64  `json:"score"`
	Level   string   `json:"level"`
	Factors []Factor `json:"factors,omitempty"`
}

type Factor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Score  float64 `json:"score"`
	Detail string  `json:"detail,omitempty"`
}

// ConfidenceBadge is the per-timestep confidence without the factor
// breakdown.
type ConfidenceBadge struct {
	Score float64 `json:"score"`
	Level string  `json:"level"`
}

type WindDirection struct {
	Degrees  float64 `json:"degrees"`
	Cardinal string  `json:"cardinal"`
}

type Day struct {
	Date                string          `json:"date"`
	Summary             string          `json:"summary"`
	WeatherCode         int             `json:"weatherCode"`
	TemperatureMin      float64         `json:"temperatureMin"`
	TemperatureMax      float64         `json:"temperatureMax"`
	Precipitation       float64         `json:"precipitation"`
	PrecipitationChance float64         `json:"precipitationChance"`
	WindSpeed           float64         `json:"windSpeed"`
	WindDirection       WindDirection   `json:"windDirection"`
	UVIndexMax          float64         `json:"uvIndexMax"`
	Sunrise             *time.Time      `json:"sunrise,omitempty"`
	Sunset              *time.Time      `json:"sunset,omitempty"`
	Confidence          ConfidenceBadge `json:"confidence"`
}

type Hour struct {
	Time                     time.Time       `json:"time"`
	Temperature              float64         `json:"temperature"`
	FeelsLike                float64         `json:"feelsLike"`
	Humidity                 float64         `json:"humidity"`
	Pressure                 float64         `json:"pressure"`
	WindSpeed                float64         `json:"windSpeed"`
	WindDirection            WindDirection   `json:"windDirection"`
	Precipitation            float64         `json:"precipitation"`
	PrecipitationProbability float64         `json:"precipitationProbability"`
	CloudCover               float64         `json:"cloudCover"`
	Visibility               float64         `json:"visibility"`
	UVIndex                  float64         `json:"uvIndex"`
	WeatherCode              int             `json:"weatherCode"`
	Summary                  string          `json:"summary"`
	Confidence               ConfidenceBadge `json:"confidence"`
}

// BuildResponse converts a pipeline result into the stable payload.
// All timestamps are rendered in UTC; values are rounded to one decimal
// so output is stable across floating-point reduction orders.
func BuildResponse(result *pipeline.Result, opts Options) Response {
	opts = opts.withDefaults()
	agg := result.Forecast
	resolved := result.Location.Resolved

	resp := Response{
		Location: Location{
			Name:      resolved.Name,
			Country:   resolved.Country,
			Region:    resolved.Region,
			Latitude:  resolved.Coordinates.Latitude.Value(),
			Longitude: resolved.Coordinates.Longitude.Value(),
			Timezone:  string(agg.Timezone),
		},
		GeneratedAt: agg.GeneratedAt.UTC(),
		ValidFrom:   agg.ValidFrom.UTC(),
		ValidTo:     agg.ValidTo.UTC(),
		Models:      buildModels(agg),
		Confidence:  buildConfidence(agg.OverallConfidence),
		Narrative:   Narrative(result, opts.Units),
		Daily:       buildDaily(agg.Daily, opts.Units),
	}
	if opts.IncludeHourly {
		resp.Hourly = buildHourly(agg.Hourly, opts.Units)
	}
	return resp
}

func buildModels(agg *consensus.AggregatedForecast) Models {
	m := Models{
		Requested:    len(agg.ContributingModels) + len(agg.FailedModels),
		Contributing: agg.ContributingModels,
		Weights:      make(map[string]float64, len(agg.ModelWeights)),
	}
	for _, w := range agg.ModelWeights {
		m.Weights[w.ModelID] = round3(w.Weight)
	}
	for _, f := range agg.FailedModels {
		m.Failed = append(m.Failed, FailedModel{Model: f.ModelID, Reason: f.Reason, Transient: f.Transient})
	}
	return m
}

func buildConfidence(c consensus.ConfidenceLevel) Confidence {
	out := Confidence{Score: round3(c.Score), Level: string(c.Level)}
	for _, f := range c.Factors {
		out.Factors = append(out.Factors, Factor{
			Name:   f.Name,
			Weight: round3(f.Weight),
			Score:  round3(f.Score),
			Detail: f.Detail,
		})
	}
	return out
}

func badge(c consensus.ConfidenceLevel) ConfidenceBadge {
	return ConfidenceBadge{Score: round3(c.Score), Level: string(c.Level)}
}

func buildDaily(days []consensus.AggregatedDailyForecast, u Units) []Day {
	out := make([]Day, 0, len(days))
	for _, d := range days {
		fc := d.Forecast
		day := Day{
			Date:                d.Date.Format("2006-01-02"),
			Summary:             fc.WeatherCode.Description(),
			WeatherCode:         int(fc.WeatherCode),
			TemperatureMin:      Temperature(fc.TemperatureRange.Min, u),
			TemperatureMax:      Temperature(fc.TemperatureRange.Max, u),
			Precipitation:       Precipitation(fc.Precipitation.Total, u),
			PrecipitationChance: round1(d.PrecipChance),
			WindSpeed:           WindSpeed(fc.Wind.MaxSpeed, u),
			WindDirection:       windDirection(fc.Wind.Direction),
			UVIndexMax:          round1(fc.UVIndexMax.Value()),
			Confidence:          badge(d.Confidence),
		}
		if !fc.Sunrise.IsZero() {
			sr := fc.Sunrise.UTC()
			day.Sunrise = &sr
		}
		if !fc.Sunset.IsZero() {
			ss := fc.Sunset.UTC()
			day.Sunset = &ss
		}
		out = append(out, day)
	}
	return out
}

func buildHourly(hours []consensus.AggregatedHourlyForecast, u Units) []Hour {
	out := make([]Hour, 0, len(hours))
	for _, h := range hours {
		m := h.Metrics
		out = append(out, Hour{
			Time:                     h.Timestamp.UTC(),
			Temperature:              Temperature(m.Temperature, u),
			FeelsLike:                Temperature(m.FeelsLike, u),
			Humidity:                 round1(m.Humidity.Value()),
			Pressure:                 round1(m.Pressure.Value()),
			WindSpeed:                WindSpeed(m.WindSpeed, u),
			WindDirection:            windDirection(m.WindDirection),
			Precipitation:            Precipitation(m.Precipitation, u),
			PrecipitationProbability: round1(m.PrecipProbability.Value() * 100),
			CloudCover:               round1(m.CloudCover.Value()),
			Visibility:               Visibility(m.Visibility, u),
			UVIndex:                  round1(m.UVIndex.Value()),
			WeatherCode:              int(m.WeatherCode),
			Summary:                  m.WeatherCode.Description(),
			Confidence:               badge(h.Confidence),
		})
	}
	return out
}

func windDirection(d units.WindDirection) WindDirection {
	return WindDirection{Degrees: round1(d.Value()), Cardinal: d.Cardinal()}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
