package nwp

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Model describes how to reach one NWP model. Models with a dedicated
// endpoint set Path alone; models served through the generic forecast
// endpoint additionally set Variant, which becomes the models= query
// parameter. All registered endpoints share the Open-Meteo unit
// conventions (°C, km/h, mm, hPa, seconds of daylight).
type Model struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Path    string `yaml:"path"`
	Variant string `yaml:"variant"`
}

// UsesVariant reports whether the model is routed through a generic
// endpoint and needs the models= parameter.
func (m Model) UsesVariant() bool { return m.Variant != "" }

// Registry is the static mapping from model identifier to endpoint shape.
type Registry struct {
	models map[string]Model
}

// DefaultRegistry returns the built-in model set.
func DefaultRegistry() *Registry {
	r := &Registry{models: make(map[string]Model)}
	for _, m := range []Model{
		{ID: "ecmwf", Name: "ECMWF IFS", Path: "/v1/ecmwf"},
		{ID: "gfs", Name: "NOAA GFS", Path: "/v1/gfs"},
		{ID: "icon", Name: "DWD ICON", Path: "/v1/dwd-icon"},
		{ID: "gem", Name: "Environment Canada GEM", Path: "/v1/gem"},
		{ID: "jma", Name: "JMA GSM", Path: "/v1/jma"},
		{ID: "arpege", Name: "Météo-France ARPEGE", Path: "/v1/forecast", Variant: "meteofrance_seamless"},
		{ID: "ukmo", Name: "UK Met Office UM", Path: "/v1/forecast", Variant: "ukmo_seamless"},
		{ID: "metno", Name: "MET Norway Nordic", Path: "/v1/forecast", Variant: "metno_seamless"},
	} {
		r.models[m.ID] = m
	}
	return r
}

// DefaultModelIDs is the model set used when the caller does not choose
// one.
func DefaultModelIDs() []string {
	return []string{"ecmwf", "gfs", "icon"}
}

// Lookup returns the model for an identifier.
func (r *Registry) Lookup(id string) (Model, bool) {
	m, ok := r.models[id]
	return m, ok
}

// Resolve maps identifiers to models, failing on the first unknown one.
func (r *Registry) Resolve(ids []string) ([]Model, error) {
	models := make([]Model, 0, len(ids))
	for _, id := range ids {
		m, ok := r.models[id]
		if !ok {
			return nil, fmt.Errorf("unknown model %q (known: %v)", id, r.IDs())
		}
		models = append(models, m)
	}
	return models, nil
}

// IDs returns all registered identifiers, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// registryFile is the YAML shape accepted by LoadFile.
type registryFile struct {
	Models []Model `yaml:"models"`
}

// LoadFile merges model definitions from a YAML file into the registry,
// overriding entries with matching IDs. This is how deployments add
// models or point existing ones at mirrors.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading models file: %w", err)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing models file %s: %w", path, err)
	}
	for _, m := range file.Models {
		if m.ID == "" || m.Path == "" {
			return fmt.Errorf("models file %s: every model needs an id and a path", path)
		}
		r.models[m.ID] = m
	}
	return nil
}
