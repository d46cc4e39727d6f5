package format

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/meteomancer/weatheroracle/internal/forecast"
	"github.com/meteomancer/weatheroracle/internal/pipeline"
)

// CompareTable renders the daily forecasts model by model, one section
// per day, with the consensus as the last row. It needs a result
// produced with retained model inputs.
func CompareTable(result *pipeline.Result, opts Options) (string, error) {
	opts = opts.withDefaults()
	agg := result.Forecast
	if len(agg.ModelForecasts) == 0 {
		return "", errors.New("result carries no per-model forecasts")
	}
	u := opts.Units
	labels := labelsFor(u)

	// Model forecasts arrive stable-sorted by model ID; keep that order.
	perModel := make(map[string]map[string]forecast.DailyForecast, len(agg.ModelForecasts))
	order := make([]string, 0, len(agg.ModelForecasts))
	for _, mf := range agg.ModelForecasts {
		byDate := make(map[string]forecast.DailyForecast, len(mf.Daily))
		for _, d := range mf.Daily {
			byDate[d.Date.Format("2006-01-02")] = d
		}
		perModel[mf.ModelID] = byDate
		order = append(order, mf.ModelID)
	}

	var b strings.Builder
	writeResultHeader(&b, result)

	for i, cd := range agg.Daily {
		if i > 0 {
			b.WriteString("\n")
		}
		date := cd.Date.Format("2006-01-02")
		b.WriteString(date + "\n")

		w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MODEL\tHIGH\tLOW\tPRECIP\tWIND\tSUMMARY")
		for _, id := range order {
			if d, ok := perModel[id][date]; ok {
				writeCompareRow(w, id, d, u, labels)
			} else {
				fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\n", id)
			}
		}
		writeCompareRow(w, "consensus", cd.Forecast, u, labels)
		if err := w.Flush(); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func writeCompareRow(w io.Writer, name string, fc forecast.DailyForecast, u Units, labels unitLabels) {
	fmt.Fprintf(w, "%s\t%.1f%s\t%.1f%s\t%.1f%s\t%.1f%s %s\t%s\n",
		name,
		Temperature(fc.TemperatureRange.Max, u), labels.Temp,
		Temperature(fc.TemperatureRange.Min, u), labels.Temp,
		Precipitation(fc.Precipitation.Total, u), labels.Precip,
		WindSpeed(fc.Wind.MaxSpeed, u), labels.Wind, fc.Wind.Direction.Cardinal(),
		fc.WeatherCode.Description())
}
