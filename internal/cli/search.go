package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSearchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "List geocoding matches for a place name",
		Example: `  wxoracle search springfield
  wxoracle search "san jose" --limit 10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSearch(cmd, strings.Join(args, " "))
		},
	}

	cmd.Flags().Int("limit", 5, "maximum number of matches")
	return cmd
}

func (a *app) runSearch(cmd *cobra.Command, query string) error {
	p, err := a.newPipeline()
	if err != nil {
		return err
	}
	results, err := p.Search(cmd.Context(), query, a.v.GetInt("limit"))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no matches for %q\n", query)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tREGION\tCOUNTRY\tCOORDINATES\tTIMEZONE\tPOPULATION")
	for _, r := range results {
		population := ""
		if r.Population > 0 {
			population = fmt.Sprintf("%d", r.Population)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Name, r.Region, r.Country, r.Coordinates.String(), r.Timezone.String(), population)
	}
	return w.Flush()
}
