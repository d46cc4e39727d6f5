package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meteomancer/weatheroracle/internal/format"
	"github.com/meteomancer/weatheroracle/internal/pipeline"
)

func newCompareCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <location>",
		Short: "Show each model's forecast side by side with the consensus",
		Example: `  wxoracle compare dublin
  wxoracle compare reykjavik --days 2 --models ecmwf,gfs,icon,gem`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCompare(cmd, strings.Join(args, " "))
		},
	}

	f := cmd.Flags()
	f.Int("days", 0, "forecast horizon in days (1-16)")
	f.String("models", "", "comma-separated model ids (default ecmwf,gfs,icon)")
	f.String("units", string(format.UnitsMetric), "unit system: metric or imperial")
	return cmd
}

func (a *app) runCompare(cmd *cobra.Command, query string) error {
	opts, err := a.formatOptions()
	if err != nil {
		return err
	}
	p, err := a.newPipeline()
	if err != nil {
		return err
	}

	// Retained per-model inputs never come from the cache, so every
	// compare shows live divergence.
	result, err := p.Forecast(cmd.Context(), pipeline.Request{
		Query:        query,
		Models:       splitList(a.v.GetString("models")),
		Days:         a.v.GetInt("days"),
		RetainInputs: true,
	})
	if err != nil {
		return err
	}

	out, err := format.CompareTable(result, opts)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}
