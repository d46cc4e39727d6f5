package format

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/meteomancer/weatheroracle/internal/pipeline"
)

// tableFormatter renders aligned columns for interactive terminals.
type tableFormatter struct{ opts Options }

func (f *tableFormatter) Format(result *pipeline.Result) (string, error) {
	agg := result.Forecast
	u := f.opts.Units
	labels := labelsFor(u)

	var b strings.Builder
	writeResultHeader(&b, result)

	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tSUMMARY\tHIGH\tLOW\tPRECIP\tCHANCE\tWIND\tCONF")
	for _, d := range agg.Daily {
		fc := d.Forecast
		fmt.Fprintf(w, "%s\t%s\t%.1f%s\t%.1f%s\t%.1f%s\t%.0f%%\t%.1f%s %s\t%s\n",
			d.Date.Format("2006-01-02"),
			fc.WeatherCode.Description(),
			Temperature(fc.TemperatureRange.Max, u), labels.Temp,
			Temperature(fc.TemperatureRange.Min, u), labels.Temp,
			Precipitation(fc.Precipitation.Total, u), labels.Precip,
			d.PrecipChance,
			WindSpeed(fc.Wind.MaxSpeed, u), labels.Wind, fc.Wind.Direction.Cardinal(),
			d.Confidence.Level)
	}
	if err := w.Flush(); err != nil {
		return "", err
	}

	if f.opts.IncludeHourly && len(agg.Hourly) > 0 {
		b.WriteString("\n")
		hw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintln(hw, "TIME\tTEMP\tFEELS\tHUMIDITY\tWIND\tPRECIP\tCLOUD\tCONF")
		for _, h := range agg.Hourly {
			m := h.Metrics
			fmt.Fprintf(hw, "%s\t%.1f%s\t%.1f%s\t%.0f%%\t%.1f%s %s\t%.1f%s\t%.0f%%\t%s\n",
				h.Timestamp.UTC().Format("2006-01-02 15:04"),
				Temperature(m.Temperature, u), labels.Temp,
				Temperature(m.FeelsLike, u), labels.Temp,
				m.Humidity.Value(),
				WindSpeed(m.WindSpeed, u), labels.Wind, m.WindDirection.Cardinal(),
				Precipitation(m.Precipitation, u), labels.Precip,
				m.CloudCover.Value(),
				h.Confidence.Level)
		}
		if err := hw.Flush(); err != nil {
			return "", err
		}
	}

	if result.FromCache {
		b.WriteString("\n(cached result)\n")
	}
	return b.String(), nil
}

// writeResultHeader prints the shared location/models/confidence block
// above the table and rich layouts.
func writeResultHeader(b *strings.Builder, result *pipeline.Result) {
	agg := result.Forecast
	fmt.Fprintf(b, "%s (%s)", placeName(result.Location.Resolved), agg.Coordinates)
	if agg.Timezone != "" {
		fmt.Fprintf(b, "  %s", agg.Timezone)
	}
	b.WriteString("\n")
	fmt.Fprintf(b, "Models: %s", strings.Join(agg.ContributingModels, ", "))
	if len(agg.FailedModels) > 0 {
		fmt.Fprintf(b, " (failed: %s)", joinFailedModels(agg.FailedModels))
	}
	fmt.Fprintf(b, "  Confidence: %s (%.2f)\n\n",
		agg.OverallConfidence.Level, agg.OverallConfidence.Score)
}
