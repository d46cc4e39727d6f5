package cli

import (
	"github.com/spf13/cobra"

	"github.com/meteomancer/weatheroracle/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the forecast HTTP server",
		Long: `Starts the HTTP API. The server is configured through environment
variables (PORT, MODELS, REDIS_URL, DATABASE_URL, ...), not flags; see
the project README for the full list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := server.New(server.LoadConfig())
			if err != nil {
				return err
			}
			return s.Run(cmd.Context())
		},
	}
}
