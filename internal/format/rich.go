package format

import (
	"fmt"
	"strings"

	"github.com/meteomancer/weatheroracle/internal/consensus"
	"github.com/meteomancer/weatheroracle/internal/pipeline"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

// richFormatter adds color and confidence bars on top of the table
// content. Escape sequences break tabwriter's width accounting, so this
// layout uses plain fixed formatting instead.
type richFormatter struct{ opts Options }

func (f *richFormatter) Format(result *pipeline.Result) (string, error) {
	agg := result.Forecast
	u := f.opts.Units
	labels := labelsFor(u)

	var b strings.Builder
	fmt.Fprintf(&b, "%s%s%s  %s", ansiBold, placeName(result.Location.Resolved), ansiReset, agg.Coordinates)
	if agg.Timezone != "" {
		fmt.Fprintf(&b, "  %s%s%s", ansiDim, agg.Timezone, ansiReset)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Consensus of %s", strings.Join(agg.ContributingModels, ", "))
	if len(agg.FailedModels) > 0 {
		fmt.Fprintf(&b, " %s(failed: %s)%s", ansiRed, joinFailedModels(agg.FailedModels), ansiReset)
	}
	fmt.Fprintf(&b, "  confidence %s (%.2f)\n\n",
		colorLevel(agg.OverallConfidence.Level), agg.OverallConfidence.Score)

	for _, d := range agg.Daily {
		fc := d.Forecast
		fmt.Fprintf(&b, "%s%s%s  %s\n", ansiBold, d.Date.Format("2006-01-02"), ansiReset, fc.WeatherCode.Description())
		fmt.Fprintf(&b, "  %shigh %.1f%s  low %.1f%s%s  precip %.1f%s (%.0f%%)  wind %.1f%s %s\n",
			ansiCyan,
			Temperature(fc.TemperatureRange.Max, u), labels.Temp,
			Temperature(fc.TemperatureRange.Min, u), labels.Temp,
			ansiReset,
			Precipitation(fc.Precipitation.Total, u), labels.Precip,
			d.PrecipChance,
			WindSpeed(fc.Wind.MaxSpeed, u), labels.Wind, fc.Wind.Direction.Cardinal())
		fmt.Fprintf(&b, "  confidence %s %s (%.2f)\n",
			confidenceBar(d.Confidence.Score), colorLevel(d.Confidence.Level), d.Confidence.Score)
	}

	if f.opts.IncludeHourly && len(agg.Hourly) > 0 {
		b.WriteString("\n")
		for _, h := range agg.Hourly {
			m := h.Metrics
			fmt.Fprintf(&b, "%s%s%s  %.1f%s  %s  %s\n",
				ansiDim, h.Timestamp.UTC().Format("2006-01-02 15:04"), ansiReset,
				Temperature(m.Temperature, u), labels.Temp,
				m.WeatherCode.Description(),
				confidenceBar(h.Confidence.Score))
		}
	}

	if result.FromCache {
		fmt.Fprintf(&b, "\n%s(cached result)%s\n", ansiDim, ansiReset)
	}
	return b.String(), nil
}

func colorLevel(level consensus.Level) string {
	switch level {
	case consensus.LevelHigh:
		return ansiGreen + string(level) + ansiReset
	case consensus.LevelMedium:
		return ansiYellow + string(level) + ansiReset
	default:
		return ansiRed + string(level) + ansiReset
	}
}

// confidenceBar renders a ten-cell unicode bar for a [0,1] score.
func confidenceBar(score float64) string {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	filled := int(score*10 + 0.5)
	return strings.Repeat("▰", filled) + strings.Repeat("▱", 10-filled)
}
