package app

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/golang/geo/r3"
	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/particle-spectra/internal/feeps"
	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

const (
	defaultStoragePath = "data/feeps.sqlite"
	defaultTimeout     = 10 * time.Minute
)

// Config represents the main application configuration
type Config struct {
	Settings       Settings                                            `yaml:"settings"`
	Storage        StorageConfig                                       `yaml:"storage"`
	Calibration    CalibrationConfig                                   `yaml:"calibration"`
	PAD            PADConfig                                           `yaml:"pad"`
	Batch          BatchConfig                                         `yaml:"batch"`
	ColumnMaps     map[spectrum.Species]feeps.ColumnMap                `yaml:"columnMaps"`     // survey layouts
	SurveyEyes     []feeps.SurveyEpoch                                 `yaml:"surveyEyes"`     // survey eye schedule
	SunMask        map[int]map[string][]int                            `yaml:"sunMask"`        // spacecraft -> "top-6" -> sectors
	LookDirections map[spectrum.Species]map[spectrum.Mode][][3]float64 `yaml:"lookDirections"` // per layout column
}

// Settings represents global application settings
type Settings struct {
	LogLevel slog.Level `yaml:"logLevel"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// CalibrationConfig points to an optional flat-field correction file that
// replaces the built-in tables.
type CalibrationConfig struct {
	TableFile string `yaml:"tableFile"`
}

// PADConfig holds the pitch-angle binning defaults.
type PADConfig struct {
	BinSize   float64 `yaml:"binSize"`   // degrees
	EnergyMin float64 `yaml:"energyMin"` // keV
	EnergyMax float64 `yaml:"energyMax"` // keV
}

// BatchConfig controls concurrent processing.
type BatchConfig struct {
	Workers int          `yaml:"workers"`
	Timeout TimeDuration `yaml:"timeout"` // per dataset
}

// TimeDuration is a time.Duration written as "90s" or "10m" in YAML.
type TimeDuration time.Duration

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: slog.LevelInfo},
		Storage:  StorageConfig{Path: defaultStoragePath},
		PAD: PADConfig{
			BinSize:   feeps.DefaultBinSize,
			EnergyMin: feeps.DefaultEnergyMin,
			EnergyMax: feeps.DefaultEnergyMax,
		},
		Batch: BatchConfig{
			Workers: runtime.NumCPU(),
			Timeout: TimeDuration(defaultTimeout),
		},
	}
}

// LoadConfig reads a YAML configuration file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return config, nil
}

// Validate checks cross-field constraints the YAML decoder cannot.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("%w: storage path is required", spectrum.ErrValidation)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("%w: batch workers must be positive, got %d", spectrum.ErrValidation, c.Batch.Workers)
	}
	if c.Batch.Timeout < 0 {
		return fmt.Errorf("%w: batch timeout must not be negative", spectrum.ErrValidation)
	}

	for species, m := range c.ColumnMaps {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("column map for %s: %w", species, err)
		}
	}

	for sc, eyes := range c.SunMask {
		if sc < 1 || sc > 4 {
			return fmt.Errorf("%w: sun mask for spacecraft %d", spectrum.ErrValidation, sc)
		}
		for id := range eyes {
			if _, err := spectrum.ParseEyeID(id); err != nil {
				return fmt.Errorf("sun mask for spacecraft %d: %w", sc, err)
			}
		}
	}

	for i, epoch := range c.SurveyEyes {
		if epoch.Start.IsZero() {
			return fmt.Errorf("%w: survey epoch %d has no start time", spectrum.ErrValidation, i)
		}
	}

	return nil
}

// sunMask returns the sun contamination mask of a spacecraft.
func (c *Config) sunMask(spacecraft int) feeps.SunMask {
	eyes := c.SunMask[spacecraft]
	mask := make(feeps.SunMask, len(eyes))
	for s, sectors := range eyes {
		id, err := spectrum.ParseEyeID(s)
		if err != nil {
			continue // rejected by Validate
		}
		mask[id] = sectors
	}
	return mask
}

// lookDirections returns the column look vectors of a layout.
func (c *Config) lookDirections(species spectrum.Species, mode spectrum.Mode) (feeps.LookDirections, error) {
	vs := c.LookDirections[species][mode]
	if len(vs) == 0 {
		return nil, fmt.Errorf("%w: no look directions configured for %s %s", spectrum.ErrValidation, species, mode)
	}
	out := make(feeps.LookDirections, len(vs))
	for i, v := range vs {
		out[i] = r3.Vector{X: v[0], Y: v[1], Z: v[2]}
	}
	return out, nil
}

func (c *Config) padOptions(species spectrum.Species, logger *slog.Logger) []feeps.PADOption {
	opts := []feeps.PADOption{
		feeps.WithBinSize(c.PAD.BinSize),
		feeps.WithEnergyWindow(c.PAD.EnergyMin, c.PAD.EnergyMax),
		feeps.WithLogger(logger),
	}
	if m, ok := c.ColumnMaps[species]; ok {
		opts = append(opts, feeps.WithColumnMap(m))
	}
	return opts
}
