// Package config loads and validates the YAML run configuration: output
// location, stop timestamp, worker count, and the ordered filter list.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"tracefilt/internal/filter"
)

// Config is the file form of a filtering run.
type Config struct {
	OutputDir     string       `yaml:"output_dir"`
	StopTimestamp uint64       `yaml:"stop_timestamp"`
	Jobs          int          `yaml:"jobs"`
	Filters       []FilterSpec `yaml:"filters"`
}

// FilterSpec selects and parameterizes one filter in the chain. Kind is one
// of "remove_types" or "trim".
type FilterSpec struct {
	Kind           string   `yaml:"kind"`
	Types          []string `yaml:"types,omitempty"`
	StartTimestamp uint64   `yaml:"start_timestamp,omitempty"`
	EndTimestamp   uint64   `yaml:"end_timestamp,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{Jobs: runtime.GOMAXPROCS(0)}
}

// Load reads and validates a YAML config file, applying defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Jobs <= 0 {
		cfg.Jobs = runtime.GOMAXPROCS(0)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the config for errors a run would otherwise hit mid-flight.
func (c Config) Validate() error {
	for i, spec := range c.Filters {
		switch spec.Kind {
		case "remove_types":
			if len(spec.Types) == 0 {
				return fmt.Errorf("config: filter %d: remove_types needs a non-empty types list", i)
			}
		case "trim":
			if spec.StartTimestamp == 0 && spec.EndTimestamp == 0 {
				return fmt.Errorf("config: filter %d: trim needs start_timestamp or end_timestamp", i)
			}
		default:
			return fmt.Errorf("config: filter %d: unknown kind %q", i, spec.Kind)
		}
	}
	return nil
}

// BuildFilters instantiates the configured filter chain in order.
func (c Config) BuildFilters() ([]filter.Filter, error) {
	var filters []filter.Filter
	for i, spec := range c.Filters {
		switch spec.Kind {
		case "remove_types":
			f, err := filter.NewTypeFilter(spec.Types)
			if err != nil {
				return nil, fmt.Errorf("config: filter %d: %w", i, err)
			}
			filters = append(filters, f)
		case "trim":
			f, err := filter.NewTrimFilter(spec.StartTimestamp, spec.EndTimestamp)
			if err != nil {
				return nil, fmt.Errorf("config: filter %d: %w", i, err)
			}
			filters = append(filters, f)
		}
	}
	return filters, nil
}
