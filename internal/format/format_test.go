package format

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteomancer/weatheroracle/internal/consensus"
	"github.com/meteomancer/weatheroracle/internal/forecast"
	"github.com/meteomancer/weatheroracle/internal/geocode"
	"github.com/meteomancer/weatheroracle/internal/pipeline"
	"github.com/meteomancer/weatheroracle/internal/units"
)

var (
	day0 = time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	day1 = time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
)

func fixtureCoords(t *testing.T) units.Coordinates {
	t.Helper()
	coords, err := units.NewCoordinates(53.3498, -6.2603)
	require.NoError(t, err)
	return coords
}

func fixtureMetrics(t *testing.T, temp float64, code forecast.WeatherCode) forecast.WeatherMetrics {
	t.Helper()
	temperature, err := units.NewCelsius(temp)
	require.NoError(t, err)
	feelsLike, err := units.NewCelsius(temp - 1.1)
	require.NoError(t, err)
	humidity, err := units.NewHumidity(82)
	require.NoError(t, err)
	pressure, err := units.NewPressure(1012)
	require.NoError(t, err)
	windSpeed, err := units.NewWindSpeed(4)
	require.NoError(t, err)
	probability, err := units.NewProbability(0.2)
	require.NoError(t, err)
	cloudCover, err := units.NewCloudCover(75)
	require.NoError(t, err)
	visibility, err := units.NewVisibility(10000)
	require.NoError(t, err)
	uvIndex, err := units.NewUVIndex(1)
	require.NoError(t, err)

	return forecast.WeatherMetrics{
		Temperature:       temperature,
		FeelsLike:         feelsLike,
		Humidity:          humidity,
		Pressure:          pressure,
		WindSpeed:         windSpeed,
		WindDirection:     units.NewWindDirection(210),
		Precipitation:     units.ClampedMillimeters(0),
		PrecipProbability: probability,
		CloudCover:        cloudCover,
		Visibility:        visibility,
		UVIndex:           uvIndex,
		WeatherCode:       code,
	}
}

func fixtureDaily(t *testing.T, date time.Time, minT, maxT, precip, windMS float64, code forecast.WeatherCode, sunrise time.Time) forecast.DailyForecast {
	t.Helper()
	minTemp, err := units.NewCelsius(minT)
	require.NoError(t, err)
	maxTemp, err := units.NewCelsius(maxT)
	require.NoError(t, err)
	probMax, err := units.NewProbability(0.5)
	require.NoError(t, err)
	windMax, err := units.NewWindSpeed(windMS)
	require.NoError(t, err)
	cloudMean, err := units.NewCloudCover(60)
	require.NoError(t, err)
	uvMax, err := units.NewUVIndex(4)
	require.NoError(t, err)

	d := forecast.DailyForecast{
		Date:             date,
		TemperatureRange: forecast.TemperatureRange{Min: minTemp, Max: maxTemp},
		HumidityRange:    forecast.MetricRange{Min: 55, Max: 90},
		PressureRange:    forecast.MetricRange{Min: 1008, Max: 1016},
		Precipitation: forecast.PrecipitationSummary{
			Total:          units.ClampedMillimeters(precip),
			ProbabilityMax: probMax,
		},
		Wind:        forecast.WindSummary{MaxSpeed: windMax, Direction: units.NewWindDirection(200)},
		CloudCover:  forecast.CloudCoverSummary{Mean: cloudMean, Range: forecast.MetricRange{Min: 20, Max: 90}},
		UVIndexMax:  uvMax,
		WeatherCode: code,
	}
	if !sunrise.IsZero() {
		d.Sunrise = sunrise
		d.Sunset = sunrise.Add(14 * time.Hour)
		d.DaylightHours = 14
	}
	return d
}

// fixtureResult builds a two-day, two-hour consensus for Dublin with one
// failed model and no retained inputs.
func fixtureResult(t *testing.T) *pipeline.Result {
	t.Helper()
	coords := fixtureCoords(t)

	agreementFactors := []consensus.ConfidenceFactor{
		{Name: "range", Weight: 0.5, Score: 1.0, Detail: "inter-model high spans 1.5 degC"},
		{Name: "agreement", Weight: 0.3, Score: 0.767, Detail: "2 of 3 models in agreement"},
		{Name: "horizon", Weight: 0.2, Score: 1.0, Detail: "day 0"},
	}

	agg := &consensus.AggregatedForecast{
		Coordinates:        coords,
		Timezone:           "Europe/Dublin",
		GeneratedAt:        time.Date(2026, 8, 25, 7, 0, 0, 0, time.FixedZone("IST", 3600)),
		ValidFrom:          day0,
		ValidTo:            day1.Add(23 * time.Hour),
		ContributingModels: []string{"ecmwf", "gfs"},
		FailedModels: []consensus.FailedModel{
			{ModelID: "icon", Reason: "upstream unavailable (HTTP 503)", Transient: true},
		},
		ModelWeights: []consensus.ModelWeight{
			{ModelID: "ecmwf", Weight: 0.5, Reason: "uniform"},
			{ModelID: "gfs", Weight: 0.5, Reason: "uniform"},
		},
		OverallConfidence: consensus.ConfidenceLevel{Score: 0.81, Level: consensus.LevelHigh},
		Hourly: []consensus.AggregatedHourlyForecast{
			{
				Timestamp:  day0,
				Metrics:    fixtureMetrics(t, 14.2, 3),
				Confidence: consensus.ConfidenceLevel{Score: 0.84, Level: consensus.LevelHigh},
			},
			{
				Timestamp:  day0.Add(time.Hour),
				Metrics:    fixtureMetrics(t, 13.8, 3),
				Confidence: consensus.ConfidenceLevel{Score: 0.8, Level: consensus.LevelHigh},
			},
		},
		Daily: []consensus.AggregatedDailyForecast{
			{
				Date:         day0,
				Forecast:     fixtureDaily(t, day0, 11, 19, 1.2, 5, 61, day0.Add(5*time.Hour+30*time.Minute)),
				Confidence:   consensus.ConfidenceLevel{Score: 0.82, Level: consensus.LevelHigh, Factors: agreementFactors},
				PrecipChance: 40,
			},
			{
				Date:         day1,
				Forecast:     fixtureDaily(t, day1, 10, 17, 0, 0.2, 2, time.Time{}),
				Confidence:   consensus.ConfidenceLevel{Score: 0.78, Level: consensus.LevelMedium},
				PrecipChance: 0,
			},
		},
	}

	return &pipeline.Result{
		Location: geocode.Location{
			Query: "dublin",
			Resolved: geocode.Result{
				Name:        "Dublin",
				Coordinates: coords,
				Country:     "Ireland",
				CountryCode: "IE",
				Region:      "Leinster",
				Timezone:    "Europe/Dublin",
			},
		},
		Forecast: agg,
		Elapsed:  420 * time.Millisecond,
	}
}

func topLevelKeys(t *testing.T, resp Response) []string {
	t.Helper()
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestBuildResponseTopLevelKeys(t *testing.T) {
	res := fixtureResult(t)

	keys := topLevelKeys(t, BuildResponse(res, Options{}))
	assert.ElementsMatch(t, []string{
		"location", "generatedAt", "validFrom", "validTo",
		"models", "confidence", "narrative", "daily",
	}, keys)

	keys = topLevelKeys(t, BuildResponse(res, Options{IncludeHourly: true}))
	assert.Contains(t, keys, "hourly")
}

func TestBuildResponseValues(t *testing.T) {
	res := fixtureResult(t)
	resp := BuildResponse(res, Options{})

	assert.Equal(t, "Dublin", resp.Location.Name)
	assert.Equal(t, "Ireland", resp.Location.Country)
	assert.Equal(t, "Leinster", resp.Location.Region)
	assert.InDelta(t, 53.3498, resp.Location.Latitude, 1e-9)
	assert.InDelta(t, -6.2603, resp.Location.Longitude, 1e-9)
	assert.Equal(t, "Europe/Dublin", resp.Location.Timezone)

	// Timestamps are normalized to UTC regardless of the source zone.
	assert.Equal(t, time.UTC, resp.GeneratedAt.Location())
	assert.Equal(t, time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC), resp.GeneratedAt)

	assert.Equal(t, 3, resp.Models.Requested)
	assert.Equal(t, []string{"ecmwf", "gfs"}, resp.Models.Contributing)
	require.Len(t, resp.Models.Failed, 1)
	assert.Equal(t, "icon", resp.Models.Failed[0].Model)
	assert.True(t, resp.Models.Failed[0].Transient)
	assert.Equal(t, map[string]float64{"ecmwf": 0.5, "gfs": 0.5}, resp.Models.Weights)

	assert.Equal(t, 0.81, resp.Confidence.Score)
	assert.Equal(t, "high", resp.Confidence.Level)
	assert.NotEmpty(t, resp.Narrative)

	require.Len(t, resp.Daily, 2)
	d0 := resp.Daily[0]
	assert.Equal(t, "2026-08-25", d0.Date)
	assert.Equal(t, "slight rain", d0.Summary)
	assert.Equal(t, 61, d0.WeatherCode)
	assert.Equal(t, 11.0, d0.TemperatureMin)
	assert.Equal(t, 19.0, d0.TemperatureMax)
	assert.Equal(t, 1.2, d0.Precipitation)
	assert.Equal(t, 40.0, d0.PrecipitationChance)
	assert.Equal(t, 18.0, d0.WindSpeed)
	assert.Equal(t, "SSW", d0.WindDirection.Cardinal)
	assert.Equal(t, 200.0, d0.WindDirection.Degrees)
	require.NotNil(t, d0.Sunrise)
	assert.Equal(t, day0.Add(5*time.Hour+30*time.Minute), *d0.Sunrise)
	assert.Equal(t, "high", d0.Confidence.Level)

	// Day two has no sunrise data; the keys are omitted entirely.
	assert.Nil(t, resp.Daily[1].Sunrise)
	assert.Nil(t, resp.Daily[1].Sunset)
	raw, err := json.Marshal(resp.Daily[1])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sunrise")
}

func TestBuildResponseHourly(t *testing.T) {
	res := fixtureResult(t)
	resp := BuildResponse(res, Options{IncludeHourly: true})

	require.Len(t, resp.Hourly, 2)
	h0 := resp.Hourly[0]
	assert.Equal(t, day0, h0.Time)
	assert.Equal(t, time.UTC, h0.Time.Location())
	assert.Equal(t, 14.2, h0.Temperature)
	assert.Equal(t, 13.1, h0.FeelsLike)
	assert.Equal(t, 82.0, h0.Humidity)
	assert.Equal(t, 1012.0, h0.Pressure)
	assert.Equal(t, 14.4, h0.WindSpeed)
	assert.Equal(t, "SSW", h0.WindDirection.Cardinal)
	assert.Equal(t, 20.0, h0.PrecipitationProbability)
	assert.Equal(t, 75.0, h0.CloudCover)
	assert.Equal(t, 10.0, h0.Visibility)
	assert.Equal(t, "overcast", h0.Summary)
	assert.Equal(t, 3, h0.WeatherCode)
}

func TestBuildResponseImperial(t *testing.T) {
	res := fixtureResult(t)
	resp := BuildResponse(res, Options{Units: UnitsImperial, IncludeHourly: true})

	d0 := resp.Daily[0]
	assert.Equal(t, 66.2, d0.TemperatureMax)
	assert.Equal(t, 51.8, d0.TemperatureMin)
	assert.Equal(t, 11.2, d0.WindSpeed)
	assert.Equal(t, 0.05, d0.Precipitation)
	assert.Equal(t, 6.2, resp.Hourly[0].Visibility)
}

func TestConversions(t *testing.T) {
	celsius, err := units.NewCelsius(19)
	require.NoError(t, err)
	wind, err := units.NewWindSpeed(5)
	require.NoError(t, err)
	visibility, err := units.NewVisibility(10000)
	require.NoError(t, err)

	tests := []struct {
		name  string
		units Units
		got   float64
		want  float64
	}{
		{"temperature metric", UnitsMetric, Temperature(celsius, UnitsMetric), 19.0},
		{"temperature imperial", UnitsImperial, Temperature(celsius, UnitsImperial), 66.2},
		{"wind metric", UnitsMetric, WindSpeed(wind, UnitsMetric), 18.0},
		{"wind imperial", UnitsImperial, WindSpeed(wind, UnitsImperial), 11.2},
		{"precip metric", UnitsMetric, Precipitation(units.ClampedMillimeters(1.2), UnitsMetric), 1.2},
		{"precip imperial", UnitsImperial, Precipitation(units.ClampedMillimeters(1.2), UnitsImperial), 0.05},
		{"visibility metric", UnitsMetric, Visibility(visibility, UnitsMetric), 10.0},
		{"visibility imperial", UnitsImperial, Visibility(visibility, UnitsImperial), 6.2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, tc.got, 1e-9)
		})
	}
}

func TestNarrative(t *testing.T) {
	res := fixtureResult(t)

	want := "Consensus of 2 models (ecmwf, gfs) for Dublin, Ireland; icon did not respond. " +
		"Today: slight rain, high 19°C, low 11°C, 40% chance of precipitation, wind SSW up to 18 km/h. " +
		"Tomorrow: partly cloudy, high 17°C, low 10°C. " +
		"Confidence is high (0.81)."
	assert.Equal(t, want, Narrative(res, UnitsMetric))
}

func TestNarrativeExplainsWeakConfidence(t *testing.T) {
	res := fixtureResult(t)
	res.Forecast.OverallConfidence = consensus.ConfidenceLevel{Score: 0.62, Level: consensus.LevelMedium}

	got := Narrative(res, UnitsMetric)
	assert.Contains(t, got, "Confidence is medium (0.62): 2 of 3 models in agreement.")
}

func TestNarrativeImperial(t *testing.T) {
	res := fixtureResult(t)

	got := Narrative(res, UnitsImperial)
	assert.Contains(t, got, "high 66°F")
	assert.Contains(t, got, "wind SSW up to 11 mph")
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		name    string
		want    any
		wantErr bool
	}{
		{"table", &tableFormatter{}, false},
		{"", &tableFormatter{}, false},
		{"narrative", &narrativeFormatter{}, false},
		{"json", &jsonFormatter{}, false},
		{"rich", &richFormatter{}, false},
		{"yaml", nil, true},
	}
	for _, tc := range tests {
		t.Run("name "+tc.name, func(t *testing.T) {
			f, err := New(tc.name, Options{})
			if tc.wantErr {
				assert.ErrorContains(t, err, "unknown format")
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tc.want, f)
		})
	}
}

func TestTableFormatter(t *testing.T) {
	res := fixtureResult(t)
	f, err := New("table", Options{})
	require.NoError(t, err)

	out, err := f.Format(res)
	require.NoError(t, err)

	assert.Contains(t, out, "Dublin, Ireland (53.3498,-6.2603)  Europe/Dublin")
	assert.Contains(t, out, "Models: ecmwf, gfs (failed: icon)  Confidence: high (0.81)")
	assert.Contains(t, out, "DATE")
	assert.Contains(t, out, "2026-08-25")
	assert.Contains(t, out, "slight rain")
	assert.Contains(t, out, "19.0°C")
	assert.Contains(t, out, "40%")
	assert.Contains(t, out, "18.0km/h SSW")
	assert.NotContains(t, out, "TIME")
	assert.NotContains(t, out, "(cached result)")
}

func TestTableFormatterHourlyAndCacheFooter(t *testing.T) {
	res := fixtureResult(t)
	res.FromCache = true
	f, err := New("table", Options{IncludeHourly: true})
	require.NoError(t, err)

	out, err := f.Format(res)
	require.NoError(t, err)

	assert.Contains(t, out, "TIME")
	assert.Contains(t, out, "2026-08-25 00:00")
	assert.Contains(t, out, "14.2°C")
	assert.Contains(t, out, "(cached result)")
}

func TestJSONFormatterRoundTrip(t *testing.T) {
	res := fixtureResult(t)
	f, err := New("json", Options{})
	require.NoError(t, err)

	out, err := f.Format(res)
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "Dublin", resp.Location.Name)
	assert.Equal(t, BuildResponse(res, Options{}), resp)
}

func TestRichFormatter(t *testing.T) {
	res := fixtureResult(t)
	f, err := New("rich", Options{})
	require.NoError(t, err)

	out, err := f.Format(res)
	require.NoError(t, err)

	assert.Contains(t, out, ansiBold+"Dublin, Ireland"+ansiReset)
	assert.Contains(t, out, ansiGreen+"high"+ansiReset)
	assert.Contains(t, out, ansiRed+"(failed: icon)"+ansiReset)
	assert.Contains(t, out, "▰")
}

func TestConfidenceBar(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0, "▱▱▱▱▱▱▱▱▱▱"},
		{1, "▰▰▰▰▰▰▰▰▰▰"},
		{0.82, "▰▰▰▰▰▰▰▰▱▱"},
		{0.55, "▰▰▰▰▰▰▱▱▱▱"},
		{-0.5, "▱▱▱▱▱▱▱▱▱▱"},
		{1.5, "▰▰▰▰▰▰▰▰▰▰"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, confidenceBar(tc.score), "score %.2f", tc.score)
	}
}

func TestCompareTable(t *testing.T) {
	res := fixtureResult(t)
	res.Forecast.ModelForecasts = []forecast.ModelForecast{
		{
			ModelID:     "ecmwf",
			Coordinates: fixtureCoords(t),
			Daily: []forecast.DailyForecast{
				fixtureDaily(t, day0, 10.5, 18.5, 1.0, 5, 61, time.Time{}),
				fixtureDaily(t, day1, 9.5, 16.5, 0, 3, 2, time.Time{}),
			},
		},
		{
			ModelID:     "gfs",
			Coordinates: fixtureCoords(t),
			Daily: []forecast.DailyForecast{
				fixtureDaily(t, day0, 11.5, 19.5, 1.4, 6, 63, time.Time{}),
			},
		},
	}

	out, err := CompareTable(res, Options{})
	require.NoError(t, err)

	assert.Contains(t, out, "2026-08-25")
	assert.Contains(t, out, "2026-08-26")
	assert.Contains(t, out, "MODEL")
	assert.Contains(t, out, "ecmwf")
	assert.Contains(t, out, "consensus")
	assert.Contains(t, out, "moderate rain")

	// gfs has no second day; its row degrades to dashes.
	day1Section := out[strings.Index(out, "2026-08-26"):]
	gfsLine := day1Section[strings.Index(day1Section, "gfs"):]
	gfsLine = gfsLine[:strings.Index(gfsLine, "\n")]
	assert.Contains(t, gfsLine, "-")
}

func TestCompareTableRequiresRetainedInputs(t *testing.T) {
	res := fixtureResult(t)

	_, err := CompareTable(res, Options{})
	assert.ErrorContains(t, err, "no per-model forecasts")
}
