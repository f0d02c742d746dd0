// Package config assembles widget configuration from defaults, an optional
// YAML file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/coverage-sim/core"
	"github.com/signalsfoundry/coverage-sim/internal/logging"
	"github.com/signalsfoundry/coverage-sim/internal/observability"
)

// Config holds everything the widget host and servers need at startup.
type Config struct {
	// MaxCoord bounds every coordinate and reach.
	// Default: 1000
	MaxCoord float64 `yaml:"max_coord"`

	// MinPlotExtent is the smallest maxPoint the plot will use.
	// Default: 20
	MinPlotExtent float64 `yaml:"min_plot_extent"`

	// MarkerDiameterPx is the rendered marker size used to centre markers.
	// Default: 16
	MarkerDiameterPx float64 `yaml:"marker_diameter_px"`

	ListenAddr   string `yaml:"listen_addr"`
	MetricsAddr  string `yaml:"metrics_addr"`
	ScenarioPath string `yaml:"scenario_path"`

	Log     logging.Config              `yaml:"log"`
	Tracing observability.TracingConfig `yaml:"tracing"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		MaxCoord:         core.DefaultMaxCoord,
		MinPlotExtent:    core.DefaultMinPlotExtent,
		MarkerDiameterPx: core.DefaultMarkerDiameterPx,
		ListenAddr:       ":8080",
		MetricsAddr:      ":9090",
		Log:              logging.Config{Level: "info", Format: "text"},
		Tracing:          observability.TracingConfig{ServiceName: "coverage-sim", Exporter: "stdout", SampleRatio: 1},
	}
}

// Load builds a Config from defaults, then path (if non-empty), then the
// environment, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	floats := []struct {
		key string
		dst *float64
	}{
		{"COVERAGE_MAX_COORD", &c.MaxCoord},
		{"COVERAGE_MIN_PLOT_EXTENT", &c.MinPlotExtent},
		{"COVERAGE_MARKER_DIAMETER_PX", &c.MarkerDiameterPx},
	}
	for _, f := range floats {
		raw, ok := lookup(f.key)
		if !ok || raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = v
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"COVERAGE_LISTEN_ADDR", &c.ListenAddr},
		{"COVERAGE_METRICS_ADDR", &c.MetricsAddr},
		{"COVERAGE_SCENARIO", &c.ScenarioPath},
		{"LOG_LEVEL", &c.Log.Level},
		{"LOG_FORMAT", &c.Log.Format},
	}
	for _, s := range strs {
		if raw, ok := lookup(s.key); ok && raw != "" {
			*s.dst = raw
		}
	}
	c.Tracing = observability.MergeTracingEnv(c.Tracing, lookup)
	return nil
}

// Validate rejects bounds that would make scaling meaningless.
func (c Config) Validate() error {
	var errs []error
	if !(c.MaxCoord > 0) {
		errs = append(errs, fmt.Errorf("max_coord must be positive, got %v", c.MaxCoord))
	}
	if !(c.MinPlotExtent > 0) {
		errs = append(errs, fmt.Errorf("min_plot_extent must be positive, got %v", c.MinPlotExtent))
	}
	if c.MinPlotExtent > c.MaxCoord {
		errs = append(errs, fmt.Errorf("min_plot_extent %v exceeds max_coord %v", c.MinPlotExtent, c.MaxCoord))
	}
	if c.MarkerDiameterPx < 0 {
		errs = append(errs, fmt.Errorf("marker_diameter_px must not be negative, got %v", c.MarkerDiameterPx))
	}
	return errors.Join(errs...)
}
