package nwp

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/meteomancer/weatheroracle/internal/forecast"
	"github.com/meteomancer/weatheroracle/internal/stats"
	"github.com/meteomancer/weatheroracle/internal/units"
)

// meteoResponse is the columnar JSON shape shared by every Open-Meteo
// forecast endpoint. Variable arrays use pointer elements because the
// provider emits null for timesteps a model does not cover.
type meteoResponse struct {
	Latitude         float64     `json:"latitude"`
	Longitude        float64     `json:"longitude"`
	GenerationTimeMs float64     `json:"generationtime_ms"`
	UTCOffsetSeconds int         `json:"utc_offset_seconds"`
	Timezone         string      `json:"timezone"`
	Error            bool        `json:"error"`
	Reason           string      `json:"reason"`
	Hourly           hourlyBlock `json:"hourly"`
	Daily            dailyBlock  `json:"daily"`
}

type hourlyBlock struct {
	Time                     []string   `json:"time"`
	Temperature              []*float64 `json:"temperature_2m"`
	ApparentTemperature      []*float64 `json:"apparent_temperature"`
	RelativeHumidity         []*float64 `json:"relative_humidity_2m"`
	PressureMSL              []*float64 `json:"pressure_msl"`
	WindSpeed                []*float64 `json:"wind_speed_10m"`
	WindDirection            []*float64 `json:"wind_direction_10m"`
	Precipitation            []*float64 `json:"precipitation"`
	PrecipitationProbability []*float64 `json:"precipitation_probability"`
	CloudCover               []*float64 `json:"cloud_cover"`
	Visibility               []*float64 `json:"visibility"`
	UVIndex                  []*float64 `json:"uv_index"`
	WeatherCode              []*int     `json:"weather_code"`
}

type dailyBlock struct {
	Time                        []string   `json:"time"`
	WeatherCode                 []*int     `json:"weather_code"`
	TemperatureMax              []*float64 `json:"temperature_2m_max"`
	TemperatureMin              []*float64 `json:"temperature_2m_min"`
	Sunrise                     []string   `json:"sunrise"`
	Sunset                      []string   `json:"sunset"`
	DaylightDuration            []*float64 `json:"daylight_duration"`
	UVIndexMax                  []*float64 `json:"uv_index_max"`
	PrecipitationSum            []*float64 `json:"precipitation_sum"`
	PrecipitationProbabilityMax []*float64 `json:"precipitation_probability_max"`
	WindSpeedMax                []*float64 `json:"wind_speed_10m_max"`
}

// Time layouts used by the endpoints. Instants come without an offset and
// are local to the response's timezone.
const (
	hourLayout = "2006-01-02T15:04"
	dateLayout = "2006-01-02"
)

// missingTracker accumulates per-variable null counts so a model that
// omits a variable produces one Warn line, not one per timestep.
type missingTracker map[string]int

func (t missingTracker) log(logger *slog.Logger, model string) {
	for variable, count := range t {
		logger.Warn("model omitted variable, defaults applied",
			"model", model, "variable", variable, "missing", count)
	}
}

// floatOr reads xs[i], falling back to def when the array is short or the
// element is null, and records the absence.
func floatOr(xs []*float64, i int, def float64, variable string, missing missingTracker) float64 {
	if i >= len(xs) || xs[i] == nil {
		missing[variable]++
		return def
	}
	return *xs[i]
}

func intOr(xs []*int, i int, def int, variable string, missing missingTracker) int {
	if i >= len(xs) || xs[i] == nil {
		missing[variable]++
		return def
	}
	return *xs[i]
}

// buildModelForecast normalizes a decoded response into a ModelForecast:
// local instants become UTC hours, wind km/h becomes m/s, daylight seconds
// become hours, probability percentages become fractions. Nullable fields
// default per variable (pressure 1013 hPa, feels-like falls back to the
// temperature, everything else 0); the absence is logged but never fails
// the request. Out-of-range values do fail: they mean the payload cannot
// be trusted.
func buildModelForecast(model Model, coords units.Coordinates, payload *meteoResponse, fetchedAt time.Time, logger *slog.Logger) (forecast.ModelForecast, error) {
	tz := units.TimezoneID(payload.Timezone)
	loc := tz.Location()
	missing := make(missingTracker)

	hourly, err := buildHourly(&payload.Hourly, loc, missing)
	if err != nil {
		return forecast.ModelForecast{}, err
	}
	daily, err := buildDaily(&payload.Daily, hourly, loc, missing)
	if err != nil {
		return forecast.ModelForecast{}, err
	}
	missing.log(logger, model.ID)

	mf := forecast.ModelForecast{
		ModelID:     model.ID,
		Coordinates: coords,
		Timezone:    tz,
		GeneratedAt: fetchedAt.UTC(),
		Hourly:      hourly,
		Daily:       daily,
	}
	if len(hourly) > 0 {
		mf.ValidFrom = hourly[0].Timestamp
		mf.ValidTo = hourly[len(hourly)-1].Timestamp
	}
	if err := mf.Validate(); err != nil {
		return forecast.ModelForecast{}, err
	}
	return mf, nil
}

func buildHourly(block *hourlyBlock, loc *time.Location, missing missingTracker) ([]forecast.HourlyForecast, error) {
	hourly := make([]forecast.HourlyForecast, 0, len(block.Time))
	for i, raw := range block.Time {
		local, err := time.ParseInLocation(hourLayout, raw, loc)
		if err != nil {
			return nil, fmt.Errorf("hourly time[%d] %q: %w", i, raw, err)
		}

		temp := floatOr(block.Temperature, i, 0, "temperature_2m", missing)
		metrics, err := buildHourlyMetrics(block, i, temp, missing)
		if err != nil {
			return nil, fmt.Errorf("hourly[%d] (%s): %w", i, raw, err)
		}
		hourly = append(hourly, forecast.HourlyForecast{
			Timestamp: local.UTC().Truncate(time.Hour),
			Metrics:   metrics,
		})
	}
	return hourly, nil
}

func buildHourlyMetrics(block *hourlyBlock, i int, temp float64, missing missingTracker) (forecast.WeatherMetrics, error) {
	temperature, err := units.NewCelsius(temp)
	if err != nil {
		return forecast.WeatherMetrics{}, err
	}
	feelsLike, err := units.NewCelsius(floatOr(block.ApparentTemperature, i, temp, "apparent_temperature", missing))
	if err != nil {
		return forecast.WeatherMetrics{}, err
	}
	humidity, err := units.NewHumidity(floatOr(block.RelativeHumidity, i, 0, "relative_humidity_2m", missing))
	if err != nil {
		return forecast.WeatherMetrics{}, err
	}
	pressure, err := units.NewPressure(floatOr(block.PressureMSL, i, 1013, "pressure_msl", missing))
	if err != nil {
		return forecast.WeatherMetrics{}, err
	}
	windSpeed, err := units.WindSpeedFromKmh(floatOr(block.WindSpeed, i, 0, "wind_speed_10m", missing))
	if err != nil {
		return forecast.WeatherMetrics{}, err
	}
	probability, err := units.NewProbability(floatOr(block.PrecipitationProbability, i, 0, "precipitation_probability", missing) / 100)
	if err != nil {
		return forecast.WeatherMetrics{}, err
	}
	cloudCover, err := units.NewCloudCover(floatOr(block.CloudCover, i, 0, "cloud_cover", missing))
	if err != nil {
		return forecast.WeatherMetrics{}, err
	}
	visibility, err := units.NewVisibility(floatOr(block.Visibility, i, 0, "visibility", missing))
	if err != nil {
		return forecast.WeatherMetrics{}, err
	}
	uvIndex, err := units.NewUVIndex(floatOr(block.UVIndex, i, 0, "uv_index", missing))
	if err != nil {
		return forecast.WeatherMetrics{}, err
	}

	return forecast.WeatherMetrics{
		Temperature:       temperature,
		FeelsLike:         feelsLike,
		Humidity:          humidity,
		Pressure:          pressure,
		WindSpeed:         windSpeed,
		WindDirection:     units.NewWindDirection(floatOr(block.WindDirection, i, 0, "wind_direction_10m", missing)),
		Precipitation:     units.ClampedMillimeters(floatOr(block.Precipitation, i, 0, "precipitation", missing)),
		PrecipProbability: probability,
		CloudCover:        cloudCover,
		Visibility:        visibility,
		UVIndex:           uvIndex,
		WeatherCode:       forecast.WeatherCode(intOr(block.WeatherCode, i, 0, "weather_code", missing)),
	}, nil
}

func buildDaily(block *dailyBlock, hourly []forecast.HourlyForecast, loc *time.Location, missing missingTracker) ([]forecast.DailyForecast, error) {
	daily := make([]forecast.DailyForecast, 0, len(block.Time))
	for i, raw := range block.Time {
		date, err := time.ParseInLocation(dateLayout, raw, loc)
		if err != nil {
			return nil, fmt.Errorf("daily time[%d] %q: %w", i, raw, err)
		}

		minTemp, err := units.NewCelsius(floatOr(block.TemperatureMin, i, 0, "temperature_2m_min", missing))
		if err != nil {
			return nil, fmt.Errorf("daily[%d] (%s): %w", i, raw, err)
		}
		maxTemp, err := units.NewCelsius(floatOr(block.TemperatureMax, i, 0, "temperature_2m_max", missing))
		if err != nil {
			return nil, fmt.Errorf("daily[%d] (%s): %w", i, raw, err)
		}
		if minTemp > maxTemp {
			minTemp, maxTemp = maxTemp, minTemp
		}
		probMax, err := units.NewProbability(floatOr(block.PrecipitationProbabilityMax, i, 0, "precipitation_probability_max", missing) / 100)
		if err != nil {
			return nil, fmt.Errorf("daily[%d] (%s): %w", i, raw, err)
		}
		windMax, err := units.WindSpeedFromKmh(floatOr(block.WindSpeedMax, i, 0, "wind_speed_10m_max", missing))
		if err != nil {
			return nil, fmt.Errorf("daily[%d] (%s): %w", i, raw, err)
		}
		uvMax, err := units.NewUVIndex(floatOr(block.UVIndexMax, i, 0, "uv_index_max", missing))
		if err != nil {
			return nil, fmt.Errorf("daily[%d] (%s): %w", i, raw, err)
		}

		day := forecast.DailyForecast{
			Date:             date,
			TemperatureRange: forecast.TemperatureRange{Min: minTemp, Max: maxTemp},
			Precipitation: forecast.PrecipitationSummary{
				Total:          units.ClampedMillimeters(floatOr(block.PrecipitationSum, i, 0, "precipitation_sum", missing)),
				ProbabilityMax: probMax,
			},
			Wind:          forecast.WindSummary{MaxSpeed: windMax},
			UVIndexMax:    uvMax,
			DaylightHours: floatOr(block.DaylightDuration, i, 0, "daylight_duration", missing) / 3600,
			WeatherCode:   forecast.WeatherCode(intOr(block.WeatherCode, i, 0, "weather_code", missing)),
		}
		if i < len(block.Sunrise) && block.Sunrise[i] != "" {
			sunrise, err := time.ParseInLocation(hourLayout, block.Sunrise[i], loc)
			if err != nil {
				return nil, fmt.Errorf("daily sunrise[%d] %q: %w", i, block.Sunrise[i], err)
			}
			day.Sunrise = sunrise.UTC()
		} else {
			missing["sunrise"]++
		}
		if i < len(block.Sunset) && block.Sunset[i] != "" {
			sunset, err := time.ParseInLocation(hourLayout, block.Sunset[i], loc)
			if err != nil {
				return nil, fmt.Errorf("daily sunset[%d] %q: %w", i, block.Sunset[i], err)
			}
			day.Sunset = sunset.UTC()
		} else {
			missing["sunset"]++
		}

		fillDerivedDaily(&day, dayHours(hourly, date, loc))
		daily = append(daily, day)
	}
	return daily, nil
}

// dayHours selects the hourly rows whose local calendar day matches date.
func dayHours(hourly []forecast.HourlyForecast, date time.Time, loc *time.Location) []forecast.HourlyForecast {
	var rows []forecast.HourlyForecast
	y, m, d := date.Date()
	for _, h := range hourly {
		ly, lm, ld := h.Timestamp.In(loc).Date()
		if ly == y && lm == m && ld == d {
			rows = append(rows, h)
		}
	}
	return rows
}

// fillDerivedDaily derives the daily summaries the endpoint does not
// report directly (humidity, pressure, and cloud cover envelopes, dominant
// wind direction) from that day's hourly rows.
func fillDerivedDaily(day *forecast.DailyForecast, rows []forecast.HourlyForecast) {
	if len(rows) == 0 {
		return
	}
	humidity := forecast.MetricRange{Min: math.MaxFloat64, Max: -math.MaxFloat64}
	pressure := forecast.MetricRange{Min: math.MaxFloat64, Max: -math.MaxFloat64}
	cloud := forecast.MetricRange{Min: math.MaxFloat64, Max: -math.MaxFloat64}
	var cloudSum float64
	directions := make([]float64, 0, len(rows))
	for _, h := range rows {
		humidity.Min = math.Min(humidity.Min, h.Metrics.Humidity.Value())
		humidity.Max = math.Max(humidity.Max, h.Metrics.Humidity.Value())
		pressure.Min = math.Min(pressure.Min, h.Metrics.Pressure.Value())
		pressure.Max = math.Max(pressure.Max, h.Metrics.Pressure.Value())
		cloud.Min = math.Min(cloud.Min, h.Metrics.CloudCover.Value())
		cloud.Max = math.Max(cloud.Max, h.Metrics.CloudCover.Value())
		cloudSum += h.Metrics.CloudCover.Value()
		directions = append(directions, h.Metrics.WindDirection.Value())
	}
	day.HumidityRange = humidity
	day.PressureRange = pressure
	day.CloudCover = forecast.CloudCoverSummary{
		Mean:  units.CloudCover(cloudSum / float64(len(rows))),
		Range: cloud,
	}
	day.Wind.Direction = units.NewWindDirection(stats.CircularMean(directions))
}
