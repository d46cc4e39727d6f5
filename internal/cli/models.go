package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/meteomancer/weatheroracle/internal/nwp"
)

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the registered forecast models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runModels(cmd)
		},
	}
}

func (a *app) runModels(cmd *cobra.Command) error {
	registry := nwp.DefaultRegistry()
	if path := a.v.GetString("models-file"); path != "" {
		if err := registry.LoadFile(path); err != nil {
			return err
		}
	}

	defaults := make(map[string]bool, len(nwp.DefaultModelIDs()))
	for _, id := range nwp.DefaultModelIDs() {
		defaults[id] = true
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tENDPOINT\tDEFAULT")
	for _, id := range registry.IDs() {
		m, ok := registry.Lookup(id)
		if !ok {
			continue
		}
		endpoint := m.Path
		if m.UsesVariant() {
			endpoint = fmt.Sprintf("%s (%s)", m.Path, m.Variant)
		}
		mark := ""
		if defaults[m.ID] {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.Name, endpoint, mark)
	}
	return w.Flush()
}
