package format

import (
	"encoding/json"
	"fmt"

	"github.com/meteomancer/weatheroracle/internal/pipeline"
)

// Formatter renders a pipeline result for one output medium.
type Formatter interface {
	Format(result *pipeline.Result) (string, error)
}

// Names of the known formatters, in the order help text lists them.
var Names = []string{"table", "narrative", "json", "rich"}

// New returns the named formatter. An empty name selects table.
func New(name string, opts Options) (Formatter, error) {
	opts = opts.withDefaults()
	switch name {
	case "table", "":
		return &tableFormatter{opts: opts}, nil
	case "narrative":
		return &narrativeFormatter{opts: opts}, nil
	case "json":
		return &jsonFormatter{opts: opts}, nil
	case "rich":
		return &richFormatter{opts: opts}, nil
	default:
		return nil, fmt.Errorf("unknown format %q (want table, narrative, json or rich)", name)
	}
}

// jsonFormatter emits the same payload the HTTP adapter serves, indented
// for terminals.
type jsonFormatter struct{ opts Options }

func (f *jsonFormatter) Format(result *pipeline.Result) (string, error) {
	payload, err := json.MarshalIndent(BuildResponse(result, f.opts), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode forecast: %w", err)
	}
	return string(payload) + "\n", nil
}

type narrativeFormatter struct{ opts Options }

func (f *narrativeFormatter) Format(result *pipeline.Result) (string, error) {
	return Narrative(result, f.opts.Units) + "\n", nil
}
