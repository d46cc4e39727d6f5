package consensus

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/meteomancer/weatheroracle/internal/forecast"
	"github.com/meteomancer/weatheroracle/internal/stats"
	"github.com/meteomancer/weatheroracle/internal/units"
)

// outlierZThreshold is the z-score at which a model's value is flagged as
// an outlier at a timestep.
const outlierZThreshold = 2.0

const dateKeyLayout = "2006-01-02"

// Aggregate reconciles the per-model forecasts into one consensus
// forecast. Inputs are sorted by model identifier before any reduction so
// the result is identical regardless of fan-out arrival order. Empty input
// returns ErrEmptyForecasts; duplicate model identifiers and invalid
// weight overrides return an IncoherentError.
func Aggregate(forecasts []forecast.ModelForecast, opts Options) (*AggregatedForecast, error) {
	if len(forecasts) == 0 {
		return nil, ErrEmptyForecasts
	}

	models := make([]forecast.ModelForecast, len(forecasts))
	copy(models, forecasts)
	sort.Slice(models, func(i, j int) bool { return models[i].ModelID < models[j].ModelID })
	for i := 1; i < len(models); i++ {
		if models[i].ModelID == models[i-1].ModelID {
			return nil, &IncoherentError{Reason: fmt.Sprintf("duplicate model %q", models[i].ModelID)}
		}
	}

	opts = opts.withDefaults(len(models))

	weights, err := buildWeights(models, opts.WeightOverrides)
	if err != nil {
		return nil, err
	}

	tz := majorityTimezone(models)

	hourly, err := aggregateHourly(models, opts)
	if err != nil {
		return nil, err
	}
	daily, err := aggregateDaily(models, hourly, tz, opts)
	if err != nil {
		return nil, err
	}

	af := &AggregatedForecast{
		Coordinates:        models[0].Coordinates,
		Timezone:           tz,
		ContributingModels: contributingIDs(models),
		ModelWeights:       weights,
		Hourly:             hourly,
		Daily:              daily,
		OverallConfidence:  overallConfidence(hourly, daily),
	}
	for _, m := range models {
		if m.GeneratedAt.After(af.GeneratedAt) {
			af.GeneratedAt = m.GeneratedAt
		}
	}
	if len(hourly) > 0 {
		af.ValidFrom = hourly[0].Timestamp
		af.ValidTo = hourly[len(hourly)-1].Timestamp
	} else {
		for _, m := range models {
			if !m.ValidFrom.IsZero() && (af.ValidFrom.IsZero() || m.ValidFrom.Before(af.ValidFrom)) {
				af.ValidFrom = m.ValidFrom
			}
			if m.ValidTo.After(af.ValidTo) {
				af.ValidTo = m.ValidTo
			}
		}
	}
	if opts.RetainInputs {
		af.ModelForecasts = models
	}
	return af, nil
}

func contributingIDs(models []forecast.ModelForecast) []string {
	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ModelID
	}
	return ids
}

func buildWeights(models []forecast.ModelForecast, overrides map[string]float64) ([]ModelWeight, error) {
	out := make([]ModelWeight, len(models))
	if len(overrides) == 0 {
		w := 1.0 / float64(len(models))
		for i, m := range models {
			out[i] = ModelWeight{ModelID: m.ModelID, Weight: w, Reason: "uniform"}
		}
		return out, nil
	}

	sum := 0.0
	for i, m := range models {
		w, ok := overrides[m.ModelID]
		if !ok {
			return nil, &IncoherentError{Reason: fmt.Sprintf("weight override is missing model %q", m.ModelID)}
		}
		if w <= 0 {
			return nil, &IncoherentError{Reason: fmt.Sprintf("weight for model %q must be positive, got %g", m.ModelID, w)}
		}
		sum += w
		out[i] = ModelWeight{ModelID: m.ModelID, Weight: w, Reason: "override"}
	}
	if math.Abs(sum-1) > 1e-6 {
		return nil, &IncoherentError{Reason: fmt.Sprintf("weight overrides sum to %g, want 1", sum)}
	}
	return out, nil
}

// majorityTimezone picks the timezone most models resolved to; a tie goes
// to the lexicographically smallest IANA name so the choice is stable.
func majorityTimezone(models []forecast.ModelForecast) units.TimezoneID {
	counts := make(map[units.TimezoneID]int, len(models))
	for _, m := range models {
		counts[m.Timezone]++
	}
	names := make([]string, 0, len(counts))
	for tz := range counts {
		names = append(names, string(tz))
	}
	sort.Strings(names)

	var best units.TimezoneID
	bestCount := 0
	for _, name := range names {
		if counts[units.TimezoneID(name)] > bestCount {
			best = units.TimezoneID(name)
			bestCount = counts[best]
		}
	}
	return best
}

// hourlySamples are the per-model values contributing to one timestep,
// ordered by model identifier.
type hourlySamples struct {
	contributors  []string
	temperature   []float64
	feelsLike     []float64
	humidity      []float64
	pressure      []float64
	windSpeed     []float64
	windDirection []float64
	precipitation []float64
	precipProb    []float64
	cloudCover    []float64
	visibility    []float64
	uvIndex       []float64
	weatherCodes  []forecast.WeatherCode
}

func aggregateHourly(models []forecast.ModelForecast, opts Options) ([]AggregatedHourlyForecast, error) {
	indexes := make([]map[int64]forecast.WeatherMetrics, len(models))
	counts := make(map[int64]int)
	withHourly := 0
	for i, m := range models {
		if len(m.Hourly) == 0 {
			continue
		}
		withHourly++
		idx := make(map[int64]forecast.WeatherMetrics, len(m.Hourly))
		for _, h := range m.Hourly {
			key := h.Timestamp.UTC().Truncate(time.Hour).Unix()
			idx[key] = h.Metrics
			counts[key]++
		}
		indexes[i] = idx
	}
	if withHourly == 0 {
		return nil, nil
	}

	// Keep the instants covered by at least half of the models that
	// supplied hourly data. Should the model grids be fully disjoint and
	// nothing reach majority coverage, fall back to the union so a lone
	// hourly supplier still yields consensus rows.
	retained := make([]int64, 0, len(counts))
	for key, n := range counts {
		if 2*n >= withHourly {
			retained = append(retained, key)
		}
	}
	if len(retained) == 0 {
		for key := range counts {
			retained = append(retained, key)
		}
	}
	sort.Slice(retained, func(i, j int) bool { return retained[i] < retained[j] })

	validFrom := time.Unix(retained[0], 0).UTC()
	out := make([]AggregatedHourlyForecast, 0, len(retained))
	for _, key := range retained {
		ts := time.Unix(key, 0).UTC()
		s := collectHourlySamples(models, indexes, key)
		metrics, err := consensusMetrics(&s)
		if err != nil {
			return nil, &IncoherentError{Reason: "consensus metrics at " + ts.Format(time.RFC3339), Err: err}
		}
		agreement := buildModelConsensus(s.contributors, s.temperature, s.precipitation, s.windSpeed)
		daysAhead := ts.Sub(validFrom).Hours() / 24

		out = append(out, AggregatedHourlyForecast{
			Timestamp:      ts,
			Metrics:        metrics,
			ModelAgreement: agreement,
			Range: MetricRanges{
				Temperature:       rangeOf(s.temperature),
				FeelsLike:         rangeOf(s.feelsLike),
				Humidity:          rangeOf(s.humidity),
				Pressure:          rangeOf(s.pressure),
				WindSpeed:         rangeOf(s.windSpeed),
				Precipitation:     rangeOf(s.precipitation),
				PrecipProbability: rangeOf(s.precipProb),
				CloudCover:        rangeOf(s.cloudCover),
				Visibility:        rangeOf(s.visibility),
				UVIndex:           rangeOf(s.uvIndex),
			},
			Confidence: opts.Confidence.hourlyConfidence(
				agreement.TemperatureStats.StdDev,
				len(s.contributors),
				len(agreement.ModelsInAgreement),
				opts.RequestedModels,
				daysAhead,
			),
		})
	}
	return out, nil
}

func collectHourlySamples(models []forecast.ModelForecast, indexes []map[int64]forecast.WeatherMetrics, key int64) hourlySamples {
	var s hourlySamples
	for i, m := range models {
		if indexes[i] == nil {
			continue
		}
		metrics, ok := indexes[i][key]
		if !ok {
			continue
		}
		s.contributors = append(s.contributors, m.ModelID)
		s.temperature = append(s.temperature, metrics.Temperature.Value())
		s.feelsLike = append(s.feelsLike, metrics.FeelsLike.Value())
		s.humidity = append(s.humidity, metrics.Humidity.Value())
		s.pressure = append(s.pressure, metrics.Pressure.Value())
		s.windSpeed = append(s.windSpeed, metrics.WindSpeed.Value())
		s.windDirection = append(s.windDirection, metrics.WindDirection.Value())
		s.precipitation = append(s.precipitation, metrics.Precipitation.Value())
		s.precipProb = append(s.precipProb, metrics.PrecipProbability.Value())
		s.cloudCover = append(s.cloudCover, metrics.CloudCover.Value())
		s.visibility = append(s.visibility, metrics.Visibility.Value())
		s.uvIndex = append(s.uvIndex, metrics.UVIndex.Value())
		s.weatherCodes = append(s.weatherCodes, metrics.WeatherCode)
	}
	return s
}

// consensusMetrics derives the point estimate per metric: trimmed mean for
// scalars, circular mean for wind direction, mode for the weather code.
// The trimmed mean of in-range values stays in range, so constructor
// failures here mean the inputs were incoherent.
func consensusMetrics(s *hourlySamples) (forecast.WeatherMetrics, error) {
	temperature, err := units.NewCelsius(stats.TrimmedMean(s.temperature))
	if err != nil {
		return forecast.WeatherMetrics{}, err
	}
	feelsLike, err := units.NewCelsius(stats.TrimmedMean(s.feelsLike))
	if err != nil {
		return forecast.WeatherMetrics{}, err
	}
	humidity, err := units.NewHumidity(stats.TrimmedMean(s.humidity))
	if err != nil {
		return forecast.WeatherMetrics{}, err
	}
	pressure, err := units.NewPressure(stats.TrimmedMean(s.pressure))
	if err != nil {
		return forecast.WeatherMetrics{}, err
	}
	windSpeed, err := units.NewWindSpeed(stats.TrimmedMean(s.windSpeed))
	if err != nil {
		return forecast.WeatherMetrics{}, err
	}
	probability, err := units.NewProbability(stats.TrimmedMean(s.precipProb))
	if err != nil {
		return forecast.WeatherMetrics{}, err
	}
	cloudCover, err := units.NewCloudCover(stats.TrimmedMean(s.cloudCover))
	if err != nil {
		return forecast.WeatherMetrics{}, err
	}
	visibility, err := units.NewVisibility(stats.TrimmedMean(s.visibility))
	if err != nil {
		return forecast.WeatherMetrics{}, err
	}
	uvIndex, err := units.NewUVIndex(stats.TrimmedMean(s.uvIndex))
	if err != nil {
		return forecast.WeatherMetrics{}, err
	}

	return forecast.WeatherMetrics{
		Temperature:       temperature,
		FeelsLike:         feelsLike,
		Humidity:          humidity,
		Pressure:          pressure,
		WindSpeed:         windSpeed,
		WindDirection:     units.NewWindDirection(stats.CircularMean(s.windDirection)),
		Precipitation:     units.ClampedMillimeters(stats.TrimmedMean(s.precipitation)),
		PrecipProbability: probability,
		CloudCover:        cloudCover,
		Visibility:        visibility,
		UVIndex:           uvIndex,
		WeatherCode:       modeWeatherCode(s.weatherCodes),
	}, nil
}

// modeWeatherCode returns the most frequent code, ties broken by the
// lowest numeric code.
func modeWeatherCode(codes []forecast.WeatherCode) forecast.WeatherCode {
	counts := make(map[forecast.WeatherCode]int, len(codes))
	for _, c := range codes {
		counts[c]++
	}
	uniq := make([]int, 0, len(counts))
	for c := range counts {
		uniq = append(uniq, int(c))
	}
	sort.Ints(uniq)

	var best forecast.WeatherCode
	bestCount := 0
	for _, c := range uniq {
		if counts[forecast.WeatherCode(c)] > bestCount {
			best = forecast.WeatherCode(c)
			bestCount = counts[best]
		}
	}
	return best
}

// buildModelConsensus computes per-timestep statistics over temperature,
// precipitation, and wind speed, and partitions the contributors into the
// agreeing set and the outliers (union across the three series).
func buildModelConsensus(contributors []string, temperature, precipitation, windSpeed []float64) ModelConsensus {
	outlierIdx := make(map[int]struct{})
	for _, series := range [][]float64{temperature, precipitation, windSpeed} {
		for _, i := range stats.FindOutlierIndices(series, outlierZThreshold) {
			outlierIdx[i] = struct{}{}
		}
	}

	inAgreement := make([]string, 0, len(contributors))
	var outliers []string
	for i, id := range contributors {
		if _, ok := outlierIdx[i]; ok {
			outliers = append(outliers, id)
		} else {
			inAgreement = append(inAgreement, id)
		}
	}

	score := 0.0
	if len(contributors) > 0 {
		score = float64(len(inAgreement)) / float64(len(contributors))
	}
	return ModelConsensus{
		AgreementScore:     score,
		ModelsInAgreement:  inAgreement,
		OutlierModels:      outliers,
		TemperatureStats:   stats.Compute(temperature),
		PrecipitationStats: stats.Compute(precipitation),
		WindStats:          stats.Compute(windSpeed),
	}
}

func rangeOf(xs []float64) forecast.MetricRange {
	if len(xs) == 0 {
		return forecast.MetricRange{}
	}
	min, max := xs[0], xs[0]
	for _, x := range xs[1:] {
		min = math.Min(min, x)
		max = math.Max(max, x)
	}
	return forecast.MetricRange{Min: min, Max: max}
}

// dailySamples are the per-model daily summaries for one calendar day,
// ordered by model identifier.
type dailySamples struct {
	contributors  []string
	timezones     []units.TimezoneID
	tempMin       []float64
	tempMax       []float64
	humidityMin   []float64
	humidityMax   []float64
	pressureMin   []float64
	pressureMax   []float64
	precipTotal   []float64
	precipProbMax []float64
	windMax       []float64
	windDirection []float64
	cloudMean     []float64
	cloudMin      []float64
	cloudMax      []float64
	uvMax         []float64
	daylight      []float64
	weatherCodes  []forecast.WeatherCode
	sunrises      []time.Time
	sunsets       []time.Time
}

func aggregateDaily(models []forecast.ModelForecast, hourly []AggregatedHourlyForecast, tz units.TimezoneID, opts Options) ([]AggregatedDailyForecast, error) {
	loc := tz.Location()

	indexes := make([]map[string]forecast.DailyForecast, len(models))
	counts := make(map[string]int)
	withDaily := 0
	for i, m := range models {
		if len(m.Daily) == 0 {
			continue
		}
		withDaily++
		idx := make(map[string]forecast.DailyForecast, len(m.Daily))
		for _, d := range m.Daily {
			key := d.Date.Format(dateKeyLayout)
			idx[key] = d
			counts[key]++
		}
		indexes[i] = idx
	}
	if withDaily == 0 {
		return nil, nil
	}

	retained := make([]string, 0, len(counts))
	for key, n := range counts {
		if 2*n >= withDaily {
			retained = append(retained, key)
		}
	}
	if len(retained) == 0 {
		for key := range counts {
			retained = append(retained, key)
		}
	}
	sort.Strings(retained)

	out := make([]AggregatedDailyForecast, 0, len(retained))
	for dayIdx, key := range retained {
		date, err := time.ParseInLocation(dateKeyLayout, key, loc)
		if err != nil {
			return nil, &IncoherentError{Reason: "unparseable day " + key, Err: err}
		}
		s := collectDailySamples(models, indexes, key)
		day, err := consensusDaily(date, &s, tz)
		if err != nil {
			return nil, &IncoherentError{Reason: "consensus day " + key, Err: err}
		}
		day.Hourly = hourlySubset(hourly, date, loc)
		agreement := buildModelConsensus(s.contributors, s.tempMax, s.precipTotal, s.windMax)
		tempMaxRange := rangeOf(s.tempMax)

		out = append(out, AggregatedDailyForecast{
			Date:           date,
			Forecast:       day,
			ModelAgreement: agreement,
			Range: DailyRanges{
				TemperatureMin: rangeOf(s.tempMin),
				TemperatureMax: tempMaxRange,
				Precipitation:  rangeOf(s.precipTotal),
				WindSpeed:      rangeOf(s.windMax),
			},
			PrecipChance: stats.EnsembleProbability(s.precipTotal, 0.1, stats.GreaterThan),
			Confidence: opts.Confidence.dailyConfidence(
				tempMaxRange.Max-tempMaxRange.Min,
				len(s.contributors),
				len(agreement.ModelsInAgreement),
				opts.RequestedModels,
				dayIdx,
			),
		})
	}
	return out, nil
}

func collectDailySamples(models []forecast.ModelForecast, indexes []map[string]forecast.DailyForecast, key string) dailySamples {
	var s dailySamples
	for i, m := range models {
		if indexes[i] == nil {
			continue
		}
		d, ok := indexes[i][key]
		if !ok {
			continue
		}
		s.contributors = append(s.contributors, m.ModelID)
		s.timezones = append(s.timezones, m.Timezone)
		s.tempMin = append(s.tempMin, d.TemperatureRange.Min.Value())
		s.tempMax = append(s.tempMax, d.TemperatureRange.Max.Value())
		s.humidityMin = append(s.humidityMin, d.HumidityRange.Min)
		s.humidityMax = append(s.humidityMax, d.HumidityRange.Max)
		s.pressureMin = append(s.pressureMin, d.PressureRange.Min)
		s.pressureMax = append(s.pressureMax, d.PressureRange.Max)
		s.precipTotal = append(s.precipTotal, d.Precipitation.Total.Value())
		s.precipProbMax = append(s.precipProbMax, d.Precipitation.ProbabilityMax.Value())
		s.windMax = append(s.windMax, d.Wind.MaxSpeed.Value())
		s.windDirection = append(s.windDirection, d.Wind.Direction.Value())
		s.cloudMean = append(s.cloudMean, d.CloudCover.Mean.Value())
		s.cloudMin = append(s.cloudMin, d.CloudCover.Range.Min)
		s.cloudMax = append(s.cloudMax, d.CloudCover.Range.Max)
		s.uvMax = append(s.uvMax, d.UVIndexMax.Value())
		s.daylight = append(s.daylight, d.DaylightHours)
		s.weatherCodes = append(s.weatherCodes, d.WeatherCode)
		s.sunrises = append(s.sunrises, d.Sunrise)
		s.sunsets = append(s.sunsets, d.Sunset)
	}
	return s
}

// consensusDaily aggregates the daily summaries field by field. Trimmed
// means of pointwise-ordered pairs (min_i <= max_i per model) preserve the
// ordering, so the consensus ranges stay coherent.
func consensusDaily(date time.Time, s *dailySamples, tz units.TimezoneID) (forecast.DailyForecast, error) {
	minTemp, err := units.NewCelsius(stats.TrimmedMean(s.tempMin))
	if err != nil {
		return forecast.DailyForecast{}, err
	}
	maxTemp, err := units.NewCelsius(stats.TrimmedMean(s.tempMax))
	if err != nil {
		return forecast.DailyForecast{}, err
	}
	probMax, err := units.NewProbability(stats.TrimmedMean(s.precipProbMax))
	if err != nil {
		return forecast.DailyForecast{}, err
	}
	windMax, err := units.NewWindSpeed(stats.TrimmedMean(s.windMax))
	if err != nil {
		return forecast.DailyForecast{}, err
	}
	cloudMean, err := units.NewCloudCover(stats.TrimmedMean(s.cloudMean))
	if err != nil {
		return forecast.DailyForecast{}, err
	}
	uvMax, err := units.NewUVIndex(stats.TrimmedMean(s.uvMax))
	if err != nil {
		return forecast.DailyForecast{}, err
	}

	sunrise, sunset := pickSolarTimes(s, tz)
	return forecast.DailyForecast{
		Date:             date,
		TemperatureRange: forecast.TemperatureRange{Min: minTemp, Max: maxTemp},
		HumidityRange: forecast.MetricRange{
			Min: stats.TrimmedMean(s.humidityMin),
			Max: stats.TrimmedMean(s.humidityMax),
		},
		PressureRange: forecast.MetricRange{
			Min: stats.TrimmedMean(s.pressureMin),
			Max: stats.TrimmedMean(s.pressureMax),
		},
		Precipitation: forecast.PrecipitationSummary{
			Total:          units.ClampedMillimeters(stats.TrimmedMean(s.precipTotal)),
			ProbabilityMax: probMax,
		},
		Wind: forecast.WindSummary{
			MaxSpeed:  windMax,
			Direction: units.NewWindDirection(stats.CircularMean(s.windDirection)),
		},
		CloudCover: forecast.CloudCoverSummary{
			Mean: cloudMean,
			Range: forecast.MetricRange{
				Min: stats.TrimmedMean(s.cloudMin),
				Max: stats.TrimmedMean(s.cloudMax),
			},
		},
		UVIndexMax:    uvMax,
		Sunrise:       sunrise,
		Sunset:        sunset,
		DaylightHours: stats.TrimmedMean(s.daylight),
		WeatherCode:   modeWeatherCode(s.weatherCodes),
	}, nil
}

// pickSolarTimes takes sunrise and sunset from the first contributor in
// the majority timezone; solar instants are astronomy, not forecast, so
// averaging them across models adds nothing. Falls back to the first
// contributor when no model sits in the majority timezone for this day.
func pickSolarTimes(s *dailySamples, tz units.TimezoneID) (time.Time, time.Time) {
	if len(s.contributors) == 0 {
		return time.Time{}, time.Time{}
	}
	for i := range s.contributors {
		if s.timezones[i] == tz {
			return s.sunrises[i], s.sunsets[i]
		}
	}
	return s.sunrises[0], s.sunsets[0]
}

// hourlySubset converts the aggregated hourly rows falling on the given
// local day back into plain hourly forecasts for attachment to the day.
func hourlySubset(hourly []AggregatedHourlyForecast, date time.Time, loc *time.Location) []forecast.HourlyForecast {
	y, m, d := date.Date()
	var rows []forecast.HourlyForecast
	for _, h := range hourly {
		ly, lm, ld := h.Timestamp.In(loc).Date()
		if ly == y && lm == m && ld == d {
			rows = append(rows, forecast.HourlyForecast{Timestamp: h.Timestamp, Metrics: h.Metrics})
		}
	}
	return rows
}
