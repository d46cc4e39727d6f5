package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meteomancer/weatheroracle/internal/format"
	"github.com/meteomancer/weatheroracle/internal/pipeline"
)

func newForecastCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forecast <location>",
		Short: "Fetch the multi-model consensus forecast for a location",
		Example: `  wxoracle forecast dublin
  wxoracle forecast "new york" --days 3 --models ecmwf,gfs --format narrative
  wxoracle forecast tokyo --hourly --units imperial --format rich`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runForecast(cmd, strings.Join(args, " "))
		},
	}

	f := cmd.Flags()
	f.Int("days", 0, "forecast horizon in days (1-16)")
	f.String("models", "", "comma-separated model ids (default ecmwf,gfs,icon)")
	f.String("format", "table", "output format: "+strings.Join(format.Names, ", "))
	f.Bool("no-cache", false, "bypass the cache read and recompute")
	f.Bool("hourly", false, "include the hourly series")
	f.String("units", string(format.UnitsMetric), "unit system: metric or imperial")
	return cmd
}

func (a *app) runForecast(cmd *cobra.Command, query string) error {
	opts, err := a.formatOptions()
	if err != nil {
		return err
	}
	formatter, err := format.New(a.v.GetString("format"), opts)
	if err != nil {
		return &pipeline.Error{Kind: pipeline.KindInvalidInput, Op: "format", Err: err}
	}

	p, err := a.newPipeline()
	if err != nil {
		return err
	}
	result, err := p.Forecast(cmd.Context(), pipeline.Request{
		Query:   query,
		Models:  splitList(a.v.GetString("models")),
		Days:    a.v.GetInt("days"),
		NoCache: a.v.GetBool("no-cache"),
	})
	if err != nil {
		return err
	}

	out, err := formatter.Format(result)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

// formatOptions resolves the shared rendering options.
func (a *app) formatOptions() (format.Options, error) {
	units := format.Units(a.v.GetString("units"))
	if units != "" && !units.Valid() {
		return format.Options{}, &pipeline.Error{
			Kind: pipeline.KindInvalidInput,
			Op:   "units",
			Err:  fmt.Errorf("unknown unit system %q (want metric or imperial)", string(units)),
		}
	}
	return format.Options{
		Units:         units,
		IncludeHourly: a.v.GetBool("hourly"),
	}, nil
}
