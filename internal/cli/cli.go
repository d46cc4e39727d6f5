// Package cli implements the wxoracle command tree. Commands build a
// fresh pipeline per invocation and render results through
// internal/format; the serve command hands off to internal/server.
//
// Configuration precedence is flags, then WXORACLE_-prefixed
// environment variables, then an optional YAML config file, then
// defaults.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meteomancer/weatheroracle/internal/cache"
	"github.com/meteomancer/weatheroracle/internal/geocode"
	"github.com/meteomancer/weatheroracle/internal/nwp"
	"github.com/meteomancer/weatheroracle/internal/pipeline"
)

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		return exitCode(err)
	}
	return 0
}

// exitCode maps a command error to a shell exit code. Runtime failure
// kinds get distinct codes so scripts can tell a typo from an outage.
func exitCode(err error) int {
	switch pipeline.Classify(err) {
	case pipeline.KindInvalidInput:
		return 2
	case pipeline.KindNotFound:
		return 3
	case pipeline.KindGeocoding, pipeline.KindAllModelsFailed:
		return 4
	case pipeline.KindTimeout:
		return 5
	case pipeline.KindCanceled:
		return 130
	default:
		return 1
	}
}

// app carries the state shared by all commands.
type app struct {
	v      *viper.Viper
	logger *slog.Logger
}

// NewRootCmd assembles the wxoracle command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "wxoracle",
		Short: "Multi-model weather forecasts with confidence scoring",
		Long: `wxoracle geocodes a location, queries several numerical weather
prediction models in parallel, and renders their consensus with
per-value confidence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default $HOME/.wxoracle.yaml)")
	pf.String("geocoding-url", geocode.DefaultBaseURL, "geocoding API base URL")
	pf.String("forecast-url", nwp.DefaultBaseURL, "forecast API base URL")
	pf.String("models-file", "", "YAML file with additional model endpoints")
	pf.Duration("timeout", 60*time.Second, "overall request budget")
	pf.BoolP("verbose", "v", false, "debug logging on stderr")

	root.AddCommand(
		newForecastCmd(a),
		newCompareCmd(a),
		newSearchCmd(a),
		newModelsCmd(a),
		newServeCmd(a),
	)
	return root
}

// initialize binds the executing command's flags into viper, reads the
// optional config file, and sets up logging. It runs before every
// command.
func (a *app) initialize(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	a.v.SetEnvPrefix("WXORACLE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if cfgFile := a.v.GetString("config"); cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		a.v.AddConfigPath(home)
		a.v.SetConfigName(".wxoracle")
		a.v.SetConfigType("yaml")
	}
	if err := a.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	level := slog.LevelWarn
	if a.v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

// newPipeline builds a one-shot pipeline from the resolved
// configuration. The cache is in-memory, so only single-flight
// collapsing applies within an invocation; NoCache still works as a
// request option.
func (a *app) newPipeline() (*pipeline.Pipeline, error) {
	registry := nwp.DefaultRegistry()
	if path := a.v.GetString("models-file"); path != "" {
		if err := registry.LoadFile(path); err != nil {
			return nil, err
		}
	}

	httpClient := &http.Client{Timeout: a.v.GetDuration("timeout")}
	geocoder := geocode.NewClient(a.v.GetString("geocoding-url"), httpClient, a.logger)
	fetcher := nwp.NewClient(a.v.GetString("forecast-url"), httpClient, registry, a.logger)
	manager := cache.NewManager(cache.NewMemoryStore(), cache.ManagerOptions{Logger: a.logger})

	return pipeline.New(geocoder, fetcher, manager, pipeline.Options{
		Models:     splitList(a.v.GetString("models")),
		WallBudget: a.v.GetDuration("timeout"),
	}, a.logger), nil
}

// splitList parses a comma-separated model list, dropping empty items.
func splitList(csv string) []string {
	var items []string
	for _, item := range strings.Split(csv, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
