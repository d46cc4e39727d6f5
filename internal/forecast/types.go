// Package forecast holds the composite forecast entities produced by the
// model fetcher and consumed by the aggregator: per-timestep metrics,
// hourly and daily rows, and the per-model ModelForecast envelope. All of
// them are immutable values once constructed.
package forecast

import (
	"fmt"
	"time"

	"github.com/meteomancer/weatheroracle/internal/units"
)

// WeatherMetrics is the full set of scalar metrics for one timestep.
// Every field is a validated domain scalar; PrecipProbability is a
// fraction in [0,1], not a percentage.
type WeatherMetrics struct {
	Temperature       units.Celsius       `json:"temperature_c"`
	FeelsLike         units.Celsius       `json:"feels_like_c"`
	Humidity          units.Humidity      `json:"humidity_pct"`
	Pressure          units.Pressure      `json:"pressure_hpa"`
	WindSpeed         units.WindSpeed     `json:"wind_speed_ms"`
	WindDirection     units.WindDirection `json:"wind_direction_deg"`
	Precipitation     units.Millimeters   `json:"precipitation_mm"`
	PrecipProbability units.Probability   `json:"precip_probability"`
	CloudCover        units.CloudCover    `json:"cloud_cover_pct"`
	Visibility        units.Visibility    `json:"visibility_m"`
	UVIndex           units.UVIndex       `json:"uv_index"`
	WeatherCode       WeatherCode         `json:"weather_code"`
}

// HourlyForecast is one model's metrics at a single UTC instant aligned
// to the hour.
type HourlyForecast struct {
	Timestamp time.Time      `json:"timestamp"`
	Metrics   WeatherMetrics `json:"metrics"`
}

// MetricRange is the raw observed envelope of one metric across models,
// untrimmed. Downstream visualization uses it for uncertainty bands.
type MetricRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies within the range, with a small epsilon
// for floating-point reductions.
func (r MetricRange) Contains(v float64) bool {
	const eps = 1e-9
	return v >= r.Min-eps && v <= r.Max+eps
}

// TemperatureRange is a daily minimum/maximum pair.
type TemperatureRange struct {
	Min units.Celsius `json:"min_c"`
	Max units.Celsius `json:"max_c"`
}

// PrecipitationSummary aggregates a day's precipitation.
type PrecipitationSummary struct {
	Total          units.Millimeters `json:"total_mm"`
	ProbabilityMax units.Probability `json:"probability_max"`
}

// WindSummary aggregates a day's wind.
type WindSummary struct {
	MaxSpeed  units.WindSpeed     `json:"max_speed_ms"`
	Direction units.WindDirection `json:"direction_deg"`
}

// CloudCoverSummary aggregates a day's cloud cover.
type CloudCoverSummary struct {
	Mean  units.CloudCover `json:"mean_pct"`
	Range MetricRange      `json:"range"`
}

// DailyForecast is one model's summary of a local calendar day plus the
// hourly rows falling within it.
type DailyForecast struct {
	Date             time.Time            `json:"date"`
	TemperatureRange TemperatureRange     `json:"temperature_range"`
	HumidityRange    MetricRange          `json:"humidity_range"`
	PressureRange    MetricRange          `json:"pressure_range"`
	Precipitation    PrecipitationSummary `json:"precipitation"`
	Wind             WindSummary          `json:"wind"`
	CloudCover       CloudCoverSummary    `json:"cloud_cover"`
	UVIndexMax       units.UVIndex        `json:"uv_index_max"`
	Sunrise          time.Time            `json:"sunrise"`
	Sunset           time.Time            `json:"sunset"`
	DaylightHours    float64              `json:"daylight_hours"`
	WeatherCode      WeatherCode          `json:"weather_code"`
	Hourly           []HourlyForecast     `json:"hourly,omitempty"`
}

// ModelForecast is everything one NWP model reported for one coordinate.
// It is produced by the fetcher, consumed by the aggregator, and discarded
// afterwards unless retained for diagnostics.
type ModelForecast struct {
	ModelID     string            `json:"model_id"`
	Coordinates units.Coordinates `json:"coordinates"`
	Timezone    units.TimezoneID  `json:"timezone"`
	GeneratedAt time.Time         `json:"generated_at"`
	ValidFrom   time.Time         `json:"valid_from"`
	ValidTo     time.Time         `json:"valid_to"`
	Hourly      []HourlyForecast  `json:"hourly"`
	Daily       []DailyForecast   `json:"daily"`
}

// Validate checks the structural invariants the aggregator relies on:
// hourly strictly increasing by timestamp, daily strictly increasing by
// date, validFrom not after the first hourly timestamp, and every daily
// temperature range ordered.
func (m ModelForecast) Validate() error {
	for i := 1; i < len(m.Hourly); i++ {
		if !m.Hourly[i-1].Timestamp.Before(m.Hourly[i].Timestamp) {
			return fmt.Errorf("model %s: hourly timestamps not strictly increasing at index %d", m.ModelID, i)
		}
	}
	for i := 1; i < len(m.Daily); i++ {
		if !m.Daily[i-1].Date.Before(m.Daily[i].Date) {
			return fmt.Errorf("model %s: daily dates not strictly increasing at index %d", m.ModelID, i)
		}
	}
	if len(m.Hourly) > 0 && m.ValidFrom.After(m.Hourly[0].Timestamp) {
		return fmt.Errorf("model %s: validFrom %s is after first hourly timestamp %s",
			m.ModelID, m.ValidFrom.Format(time.RFC3339), m.Hourly[0].Timestamp.Format(time.RFC3339))
	}
	for i, d := range m.Daily {
		if d.TemperatureRange.Min > d.TemperatureRange.Max {
			return fmt.Errorf("model %s: inverted temperature range on day %d", m.ModelID, i)
		}
	}
	return nil
}
