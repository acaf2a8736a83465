package spectrum

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	Electron Species = "electron"
	Ion      Species = "ion"

	Survey Mode = "srvy"
	Burst  Mode = "brst"

	Top    Position = "top"
	Bottom Position = "bottom"
)

var (
	validSpecies = map[Species]struct{}{
		Electron: {},
		Ion:      {},
	}

	validModes = map[Mode]struct{}{
		Survey: {},
		Burst:  {},
	}

	// Positions lists the sensor mounting groups in canonical order.
	Positions = []Position{Top, Bottom}
)

// Species is the particle population measured by a sensor.
type Species string

// ParseSpecies accepts "electron"/"e" and "ion"/"i", case-insensitive.
func ParseSpecies(s string) (Species, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "electron", "e":
		return Electron, nil
	case "ion", "i":
		return Ion, nil
	}
	return "", fmt.Errorf("%w: unknown species %q", ErrValidation, s)
}

// Validate returns ErrValidation for values outside the enumeration.
func (s Species) Validate() error {
	if _, ok := validSpecies[s]; !ok {
		return fmt.Errorf("%w: unknown species %q", ErrValidation, string(s))
	}
	return nil
}

func (s Species) String() string {
	return string(s)
}

// UnmarshalText accepts every spelling ParseSpecies does.
func (s *Species) UnmarshalText(text []byte) error {
	v, err := ParseSpecies(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Mode is the telemetry mode of a dataset.
type Mode string

// ParseMode accepts "srvy"/"survey" and "brst"/"burst".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "srvy", "survey":
		return Survey, nil
	case "brst", "burst":
		return Burst, nil
	}
	return "", fmt.Errorf("%w: unknown telemetry mode %q", ErrValidation, s)
}

func (m Mode) Validate() error {
	if _, ok := validModes[m]; !ok {
		return fmt.Errorf("%w: unknown telemetry mode %q", ErrValidation, string(m))
	}
	return nil
}

func (m Mode) String() string {
	return string(m)
}

// UnmarshalText accepts every spelling ParseMode does.
func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Position is the sensor mounting group of an eye.
type Position string

// ParsePosition accepts "top" and "bottom"/"bot".
func ParsePosition(s string) (Position, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "top":
		return Top, nil
	case "bottom", "bot":
		return Bottom, nil
	}
	return "", fmt.Errorf("%w: unknown eye position %q", ErrValidation, s)
}

func (p Position) Validate() error {
	if p != Top && p != Bottom {
		return fmt.Errorf("%w: unknown eye position %q", ErrValidation, string(p))
	}
	return nil
}

func (p Position) String() string {
	return string(p)
}

// EyeID identifies one physical sensor head.
type EyeID struct {
	Position Position
	Sensor   int
}

// ParseEyeID parses the "top-3" / "bottom-11" form.
func ParseEyeID(s string) (EyeID, error) {
	pos, num, ok := strings.Cut(s, "-")
	if !ok {
		return EyeID{}, fmt.Errorf("%w: malformed eye id %q", ErrValidation, s)
	}
	p, err := ParsePosition(pos)
	if err != nil {
		return EyeID{}, err
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return EyeID{}, fmt.Errorf("%w: malformed sensor number in eye id %q", ErrValidation, s)
	}
	return EyeID{Position: p, Sensor: n}, nil
}

func (id EyeID) String() string {
	return fmt.Sprintf("%s-%d", id.Position, id.Sensor)
}

// Compare orders top eyes before bottom eyes, then by sensor number.
func (id EyeID) Compare(other EyeID) int {
	if id.Position != other.Position {
		if id.Position == Top {
			return -1
		}
		return 1
	}
	return cmp.Compare(id.Sensor, other.Sensor)
}

// Attrs is the metadata carried through every transform.
type Attrs map[string]any

// Clone returns a shallow copy; nil stays nil.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	return maps.Clone(a)
}

// String returns a string attribute or "".
func (a Attrs) String(key string) string {
	if s, ok := a[key].(string); ok {
		return s
	}
	return ""
}

// TimeRange is a closed interval of time.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies within the range, bounds included.
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// EyeSpectrum is the differential spectrum recorded by one eye.
type EyeSpectrum struct {
	Eye      EyeID
	Time     []time.Time // Strictly increasing sample times
	Energies []Value     // Calibrated channel centers in keV
	Flux     Grid        // [time x channel]
	Attrs    Attrs
}

// Clone returns a deep copy of the spectrum.
func (e *EyeSpectrum) Clone() *EyeSpectrum {
	return &EyeSpectrum{
		Eye:      e.Eye,
		Time:     slices.Clone(e.Time),
		Energies: slices.Clone(e.Energies),
		Flux:     e.Flux.Clone(),
		Attrs:    e.Attrs.Clone(),
	}
}

// Validate checks the internal shape of the spectrum.
func (e *EyeSpectrum) Validate() error {
	if e.Flux.Rows() != len(e.Time) {
		return fmt.Errorf("%w: eye %s has %d flux rows for %d times", ErrInconsistentInput, e.Eye, e.Flux.Rows(), len(e.Time))
	}
	if e.Flux.Cols() != len(e.Energies) {
		return fmt.Errorf("%w: eye %s has %d flux channels for %d energies", ErrInconsistentInput, e.Eye, e.Flux.Cols(), len(e.Energies))
	}
	for i := 1; i < len(e.Time); i++ {
		if !e.Time[i].After(e.Time[i-1]) {
			return fmt.Errorf("%w: eye %s time axis is not strictly increasing at %d", ErrInconsistentInput, e.Eye, i)
		}
	}
	return nil
}

// EyeSet maps eyes to their spectra.
type EyeSet map[EyeID]*EyeSpectrum

// IDs returns the eye identifiers in canonical order.
func (s EyeSet) IDs() []EyeID {
	ids := slices.Collect(maps.Keys(s))
	slices.SortFunc(ids, EyeID.Compare)
	return ids
}

// Clone returns a deep copy of every spectrum.
func (s EyeSet) Clone() EyeSet {
	out := make(EyeSet, len(s))
	for id, e := range s {
		out[id] = e.Clone()
	}
	return out
}

// Dataset is the raw multi-eye measurement of one spacecraft.
type Dataset struct {
	Spacecraft int
	Species    Species
	Mode       Mode
	Eyes       EyeSet
	SpinSector []int // Spin sector per time sample, optional
	Attrs      Attrs
}

// Validate checks the enumerations and the shape of every eye.
func (d *Dataset) Validate() error {
	if d.Spacecraft < 1 || d.Spacecraft > 4 {
		return fmt.Errorf("%w: spacecraft id %d outside [1, 4]", ErrValidation, d.Spacecraft)
	}
	if err := d.Species.Validate(); err != nil {
		return err
	}
	if err := d.Mode.Validate(); err != nil {
		return err
	}
	for _, id := range d.Eyes.IDs() {
		if err := d.Eyes[id].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// TimeRange returns the span covered by all eyes.
func (d *Dataset) TimeRange() (TimeRange, bool) {
	var tr TimeRange
	var found bool
	for _, e := range d.Eyes {
		if len(e.Time) == 0 {
			continue
		}
		first, last := e.Time[0], e.Time[len(e.Time)-1]
		if !found || first.Before(tr.Start) {
			tr.Start = first
		}
		if !found || last.After(tr.End) {
			tr.End = last
		}
		found = true
	}
	return tr, found
}

// Omni is the fused omnidirectional spectrum.
type Omni struct {
	Time     []time.Time
	Energies []float64 // Canonical corrected channel centers in keV
	Flux     Grid      // [time x energy]
	Attrs    Attrs
}

// PAD is a pitch-angle distribution.
type PAD struct {
	Time        []time.Time
	PitchAngles []float64 // Bin centers in degrees
	Flux        Grid      // [time x pitch-angle bin]
	Attrs       Attrs
}
