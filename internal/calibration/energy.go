// Package calibration provides the energy tables of the particle sensors:
// per-sensor flat-field corrected tables, the canonical omni tables and the
// omni gain factors.
package calibration

import (
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

// ErrInvalidSensor is returned for sensor ids without a flat-field correction.
var ErrInvalidSensor = fmt.Errorf("%w: invalid sensor", spectrum.ErrValidation)

// Key selects the flat-field corrections of one mounting group of one spacecraft.
type Key struct {
	Spacecraft int
	Position   spectrum.Position
}

func (k Key) String() string {
	return fmt.Sprintf("mms%d-%s", k.Spacecraft, k.Position)
}

// Table holds flat-field corrections. It is immutable once built.
type Table struct {
	corrections map[Key][]float64
}

var defaultTable = func() *Table {
	t := &Table{corrections: make(map[Key][]float64, len(flatField))}
	for k, v := range flatField {
		t.corrections[k] = v[:]
	}
	return t
}()

// Default returns the built-in flat-field table.
func Default() *Table {
	return defaultTable
}

// NewTable builds a table from corrections indexed by sensor id - 1. NaN
// marks a dead sensor. The input is copied.
func NewTable(corrections map[Key][]float64) (*Table, error) {
	t := &Table{corrections: make(map[Key][]float64, len(corrections))}
	for k, v := range corrections {
		if k.Spacecraft < 1 || k.Spacecraft > 4 {
			return nil, fmt.Errorf("%w: spacecraft id %d outside [1, 4]", spectrum.ErrValidation, k.Spacecraft)
		}
		if err := k.Position.Validate(); err != nil {
			return nil, err
		}
		if len(v) == 0 || len(v) > MaxSensor {
			return nil, fmt.Errorf("%w: %s has %d corrections, expected 1..%d", spectrum.ErrValidation, k, len(v), MaxSensor)
		}
		t.corrections[k] = slices.Clone(v)
	}
	return t, nil
}

// tableFile is the on-disk form: "mms1-top: [14, 7, null, ...]", null
// marking a dead sensor.
type tableFile map[string][]*float64

// LoadTable reads a flat-field table from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading calibration table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable parses a YAML flat-field table.
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing calibration table: %w", err)
	}

	corrections := make(map[Key][]float64, len(f))
	for name, values := range f {
		k, err := parseKey(name)
		if err != nil {
			return nil, err
		}
		row := make([]float64, len(values))
		for i, v := range values {
			row[i] = spectrum.FromPtr(v).Or(math.NaN())
		}
		corrections[k] = row
	}
	return NewTable(corrections)
}

func parseKey(s string) (Key, error) {
	sc, pos, ok := strings.Cut(strings.TrimPrefix(strings.ToLower(s), "mms"), "-")
	if !ok {
		return Key{}, fmt.Errorf("%w: malformed calibration key %q", spectrum.ErrValidation, s)
	}
	id, err := strconv.Atoi(sc)
	if err != nil {
		return Key{}, fmt.Errorf("%w: malformed spacecraft in calibration key %q", spectrum.ErrValidation, s)
	}
	p, err := spectrum.ParsePosition(pos)
	if err != nil {
		return Key{}, err
	}
	return Key{Spacecraft: id, Position: p}, nil
}

// IsIonSensor reports whether the sensor id belongs to an ion head.
func IsIonSensor(sensor int) bool {
	return sensor >= 6 && sensor <= 8
}

// EnergyTable returns the calibrated channel centers of one sensor: the base
// table of its head type plus the flat-field correction. A dead sensor
// yields a table where every entry is "no data".
func (t *Table) EnergyTable(spacecraft int, pos spectrum.Position, sensor int) ([]spectrum.Value, error) {
	if spacecraft < 1 || spacecraft > 4 {
		return nil, fmt.Errorf("%w: spacecraft id %d outside [1, 4]", spectrum.ErrValidation, spacecraft)
	}
	if err := pos.Validate(); err != nil {
		return nil, err
	}

	k := Key{Spacecraft: spacecraft, Position: pos}
	corrections, ok := t.corrections[k]
	if !ok {
		return nil, fmt.Errorf("%w: no corrections for %s", ErrInvalidSensor, k)
	}
	if sensor < 1 || sensor > len(corrections) {
		return nil, fmt.Errorf("%w: sensor %d of %s", ErrInvalidSensor, sensor, k)
	}

	base := electronSensorEnergies
	if IsIonSensor(sensor) {
		base = ionSensorEnergies
	}

	offset := corrections[sensor-1]
	out := make([]spectrum.Value, len(base))
	for i, e := range base {
		out[i] = spectrum.FromFloat(e + offset)
	}
	return out, nil
}

// EnergyTable returns the calibrated channel centers from the built-in table.
func EnergyTable(spacecraft int, pos spectrum.Position, sensor int) ([]spectrum.Value, error) {
	return defaultTable.EnergyTable(spacecraft, pos, sensor)
}

// OmniEnergies returns the canonical fusion table of a species with the
// spacecraft-specific offset applied.
func OmniEnergies(species spectrum.Species, spacecraft int) ([]float64, error) {
	if err := species.Validate(); err != nil {
		return nil, err
	}
	if spacecraft < 1 || spacecraft > 4 {
		return nil, fmt.Errorf("%w: spacecraft id %d outside [1, 4]", spectrum.ErrValidation, spacecraft)
	}

	base := electronOmniEnergies
	if species == spectrum.Ion {
		base = ionOmniEnergies
	}

	offset := omniOffsets[species][spacecraft-1]
	out := make([]float64, len(base))
	for i, e := range base {
		out[i] = e + offset
	}
	return out, nil
}

// GainFactor returns the omni gain factor of a species on a spacecraft.
func GainFactor(species spectrum.Species, spacecraft int) (float64, error) {
	if err := species.Validate(); err != nil {
		return 0, err
	}
	if spacecraft < 1 || spacecraft > 4 {
		return 0, fmt.Errorf("%w: spacecraft id %d outside [1, 4]", spectrum.ErrValidation, spacecraft)
	}
	return gainFactors[species][spacecraft-1], nil
}
