package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/benchscope/internal/classify"
	"github.com/banshee-data/benchscope/internal/security"
	"github.com/banshee-data/benchscope/internal/serialmux"
	"github.com/banshee-data/benchscope/internal/waveform"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/benchscope.defaults.json"

// Modes the binary can run in.
const (
	ModeWaveform    = "waveform"
	ModeCapacitance = "capacitance"
)

// Config is the root benchscope configuration. Every field is optional; the
// Get* methods supply the default for anything the file leaves out, so a
// partial file is always safe.
type Config struct {
	Mode *string `json:"mode,omitempty"`

	// Serial link
	Port       *string `json:"port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty"`
	DataBits   *int    `json:"data_bits,omitempty"`
	StopBits   *int    `json:"stop_bits,omitempty"`
	Parity     *string `json:"parity,omitempty"`
	LineBuffer *int    `json:"line_buffer,omitempty"`

	// Cadence, as duration strings like "500ms"
	RefreshInterval *string `json:"refresh_interval,omitempty"`
	ReadTimeout     *string `json:"read_timeout,omitempty"`
	DevInterval     *string `json:"dev_interval,omitempty"`

	// Waveform window
	WindowPolicy *string  `json:"window_policy,omitempty"`
	WindowCycles *float64 `json:"window_cycles,omitempty"`
	WindowSpanMs *float64 `json:"window_span_ms,omitempty"`
	WindowPoints *int     `json:"window_points,omitempty"`

	// Classifier. Leaving standard_values out selects the built-in table.
	Tolerance      *float64              `json:"tolerance,omitempty"`
	StandardValues []classify.Standard   `json:"standard_values,omitempty"`
	Corrections    []classify.Correction `json:"corrections,omitempty"`

	// Outputs
	PlotPath *string `json:"plot_path,omitempty"`
	Listen   *string `json:"listen,omitempty"`
	Verbose  *bool   `json:"verbose,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns a Config with all fields unset.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig loads a Config from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/<pkg>/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.Mode != nil {
		switch *c.Mode {
		case ModeWaveform, ModeCapacitance:
		default:
			return fmt.Errorf("mode must be %q or %q, got %q", ModeWaveform, ModeCapacitance, *c.Mode)
		}
	}

	if _, err := c.GetPortOptions().Normalise(); err != nil {
		return fmt.Errorf("serial options: %w", err)
	}

	if c.LineBuffer != nil && *c.LineBuffer < 1 {
		return fmt.Errorf("line_buffer must be positive, got %d", *c.LineBuffer)
	}

	durations := []struct {
		name  string
		value *string
	}{
		{"refresh_interval", c.RefreshInterval},
		{"read_timeout", c.ReadTimeout},
		{"dev_interval", c.DevInterval},
	}
	for _, d := range durations {
		if d.value == nil || *d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.value, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, *d.value)
		}
	}

	if _, err := c.GetWindow().Normalise(); err != nil {
		return fmt.Errorf("waveform window: %w", err)
	}

	if c.Tolerance != nil && !(*c.Tolerance > 0 && *c.Tolerance < 1) {
		return fmt.Errorf("tolerance must be between 0 and 1, got %f", *c.Tolerance)
	}

	if len(c.Corrections) > 0 && len(c.StandardValues) == 0 {
		return fmt.Errorf("corrections require standard_values")
	}
	if _, err := c.GetTable(); err != nil {
		return err
	}

	if path := c.GetPlotPath(); path != "" {
		if err := security.ValidatePlotPath(path); err != nil {
			return fmt.Errorf("plot_path: %w", err)
		}
	}

	return nil
}

// GetMode returns the mode or the default (waveform).
func (c *Config) GetMode() string {
	if c.Mode == nil || *c.Mode == "" {
		return ModeWaveform
	}
	return *c.Mode
}

// GetPort returns the serial device path or the default.
func (c *Config) GetPort() string {
	if c.Port == nil || *c.Port == "" {
		return "/dev/ttyUSB0"
	}
	return *c.Port
}

// GetPortOptions assembles the serial options. Unset fields stay zero and are
// filled in by PortOptions.Normalise.
func (c *Config) GetPortOptions() serialmux.PortOptions {
	var opts serialmux.PortOptions
	if c.BaudRate != nil {
		opts.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		opts.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		opts.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		opts.Parity = *c.Parity
	}
	return opts
}

// GetLineBuffer returns the line_buffer value or the default.
func (c *Config) GetLineBuffer() int {
	if c.LineBuffer == nil {
		return serialmux.DefaultLineBuffer
	}
	return *c.LineBuffer
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d <= 0 {
		return def // default on parse error
	}
	return d
}

// GetRefreshInterval returns the refresh cadence, 500ms by default.
func (c *Config) GetRefreshInterval() time.Duration {
	return parseDurationOr(c.RefreshInterval, 500*time.Millisecond)
}

// GetReadTimeout returns the bounded read timeout, 400ms by default.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDurationOr(c.ReadTimeout, 400*time.Millisecond)
}

// GetDevInterval returns how often dev mode replays a fixture line.
func (c *Config) GetDevInterval() time.Duration {
	return parseDurationOr(c.DevInterval, 200*time.Millisecond)
}

// GetWindow returns the waveform window. Unset fields are defaulted by
// Window.Normalise.
func (c *Config) GetWindow() waveform.Window {
	var w waveform.Window
	if c.WindowPolicy != nil {
		w.Policy = waveform.Policy(*c.WindowPolicy)
	}
	if c.WindowCycles != nil {
		w.Cycles = *c.WindowCycles
	}
	if c.WindowSpanMs != nil {
		w.SpanMs = *c.WindowSpanMs
	}
	if c.WindowPoints != nil {
		w.Points = *c.WindowPoints
	}
	return w
}

// GetTolerance returns the classifier tolerance or the default.
func (c *Config) GetTolerance() float64 {
	if c.Tolerance == nil {
		return classify.DefaultTolerance
	}
	return *c.Tolerance
}

// GetTable builds the classification table. Without standard_values the
// built-in table is used.
func (c *Config) GetTable() (*classify.Table, error) {
	if len(c.StandardValues) == 0 {
		return classify.DefaultTable(), nil
	}
	return classify.NewTable(c.StandardValues, c.Corrections)
}

// GetPlotPath returns the PNG output path; empty disables the plot.
func (c *Config) GetPlotPath() string {
	if c.PlotPath == nil {
		return ""
	}
	return *c.PlotPath
}

// GetListen returns the admin HTTP listen address; empty disables it.
func (c *Config) GetListen() string {
	if c.Listen == nil {
		return "localhost:8080"
	}
	return *c.Listen
}

// GetVerbose returns the verbose value or the default.
func (c *Config) GetVerbose() bool {
	if c.Verbose == nil {
		return false
	}
	return *c.Verbose
}
