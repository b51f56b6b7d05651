package app

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sonarlab/echoloc/array"
	"github.com/sonarlab/echoloc/internal/render"
	"github.com/sonarlab/echoloc/sweep"
)

// Config is the sweep configuration loaded from YAML.
type Config struct {
	Settings SettingsConfig `yaml:"settings"`
	Call     CallConfig     `yaml:"call"`
	Array    ArrayConfig    `yaml:"array"`
	Field    FieldConfig    `yaml:"field"`
	Solver   SolverConfig   `yaml:"solver"`
	Grid     GridConfig     `yaml:"grid"`
	Output   OutputConfig   `yaml:"output"`
}

// SettingsConfig holds global application settings.
type SettingsConfig struct {
	LogLevel string `yaml:"logLevel"`
	Workers  int    `yaml:"workers"`
}

// CallConfig parametrizes the synthesized echolocation call.
type CallConfig struct {
	StartFreqHz  float64 `yaml:"startFreqHz"`
	EndFreqHz    float64 `yaml:"endFreqHz"`
	DurationMs   float64 `yaml:"durationMs"`
	TaperPercent float64 `yaml:"taperPercent"`
}

// ArrayConfig selects the sensor array layout.
type ArrayConfig struct {
	Layout string  `yaml:"layout"`
	EdgeM  float64 `yaml:"edgeM"`
}

// FieldConfig parametrizes the propagation medium. A missing snrDb means
// noise-free propagation.
type FieldConfig struct {
	SampleRateHz float64  `yaml:"sampleRateHz"`
	SpeedOfSound float64  `yaml:"speedOfSound"`
	SNRdB        *float64 `yaml:"snrDb"`
	Seed         int64    `yaml:"seed"`
}

// SolverConfig bounds the iterative inversion.
type SolverConfig struct {
	MaxIterations int     `yaml:"maxIterations"`
	Tolerance     float64 `yaml:"tolerance"`
}

// AxisConfig is one coordinate range of the grid.
type AxisConfig struct {
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
	Step float64 `yaml:"step"`
}

// GridConfig is the swept volume of source positions.
type GridConfig struct {
	X AxisConfig `yaml:"x"`
	Y AxisConfig `yaml:"y"`
	Z AxisConfig `yaml:"z"`
}

// OutputConfig names the result sinks. CSVPath is required; the sqlite
// database and heatmap directory are optional.
type OutputConfig struct {
	CSVPath      string `yaml:"csvPath"`
	DBPath       string `yaml:"dbPath"`
	HeatmapDir   string `yaml:"heatmapDir"`
	HeatmapTheme string `yaml:"heatmapTheme"`
	FontPath     string `yaml:"fontPath"`
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Output.CSVPath == "" {
		return errors.New("output.csvPath is required")
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	if _, err := array.ParseLayout(c.Array.Layout); c.Array.Layout != "" && err != nil {
		return err
	}

	if c.Output.HeatmapTheme != "" {
		switch render.Theme(c.Output.HeatmapTheme) {
		case render.ThemeThermal, render.ThemeGrayscale:
		default:
			return fmt.Errorf("unknown heatmap theme %q", c.Output.HeatmapTheme)
		}
	}

	return nil
}

// SlogLevel parses the configured log level, defaulting to info.
func (c *Config) SlogLevel() (slog.Level, error) {
	if c.Settings.LogLevel == "" {
		return slog.LevelInfo, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Settings.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.Settings.LogLevel, err)
	}

	return level, nil
}

// Layout returns the configured array layout, defaulting to a tetrahedron.
func (c *Config) Layout() (array.Layout, error) {
	if c.Array.Layout == "" {
		return array.LayoutTetrahedron, nil
	}

	return array.ParseLayout(c.Array.Layout)
}

// SNRdB returns the configured noise level; a missing value disables noise.
func (c *FieldConfig) snr() float64 {
	if c.SNRdB == nil {
		return math.Inf(1)
	}

	return *c.SNRdB
}

func (a AxisConfig) toRange() sweep.Range {
	return sweep.Range{Min: a.Min, Max: a.Max, Step: a.Step}
}
