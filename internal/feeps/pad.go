package feeps

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"

	"github.com/roman-kulish/particle-spectra/internal/series"
	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

const (
	DefaultBinSize   = 16.3636
	DefaultEnergyMin = 70.0
	DefaultEnergyMax = 600.0

	// MinEnergy is the lowest energy window bound accepted by the binner, in keV.
	MinEnergy = 32.0
)

// Angular half-width of the sensor response, in degrees.
var responseWidth = map[spectrum.Species]float64{
	spectrum.Electron: 21.4,
	spectrum.Ion:      10,
}

type padConfig struct {
	binSize float64
	lo, hi  float64
	columns *ColumnMap
	logger  *slog.Logger
}

// PADOption configures the pitch-angle binner.
type PADOption func(*padConfig)

// WithBinSize sets the pitch-angle bin width in degrees.
func WithBinSize(deg float64) PADOption {
	return func(c *padConfig) {
		c.binSize = deg
	}
}

// WithEnergyWindow sets the inclusive energy range, in keV, of the channels
// averaged into each sensor's flux.
func WithEnergyWindow(lo, hi float64) PADOption {
	return func(c *padConfig) {
		c.lo, c.hi = lo, hi
	}
}

// WithColumnMap sets the sensor to column layout. Burst mode has a built-in
// layout; survey mode requires one.
func WithColumnMap(m ColumnMap) PADOption {
	return func(c *padConfig) {
		c.columns = &m
	}
}

// WithLogger sets the logger receiving diagnostics about skipped sensors.
func WithLogger(logger *slog.Logger) PADOption {
	return func(c *padConfig) {
		c.logger = logger
	}
}

func newPADConfig(options []PADOption) (*padConfig, error) {
	c := &padConfig{
		binSize: DefaultBinSize,
		lo:      DefaultEnergyMin,
		hi:      DefaultEnergyMax,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(c)
	}

	if c.lo < MinEnergy {
		return nil, fmt.Errorf("%w: energy window lower bound %g keV is below %g keV", spectrum.ErrValidation, c.lo, MinEnergy)
	}
	if c.hi < c.lo {
		return nil, fmt.Errorf("%w: energy window [%g, %g] is inverted", spectrum.ErrValidation, c.lo, c.hi)
	}
	if !(c.binSize > 0 && c.binSize <= 180) {
		return nil, fmt.Errorf("%w: bin size %g outside (0, 180]", spectrum.ErrValidation, c.binSize)
	}
	if c.columns != nil {
		if err := c.columns.Validate(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *padConfig) layout(mode spectrum.Mode, species spectrum.Species) (ColumnMap, error) {
	if c.columns != nil {
		return *c.columns, nil
	}
	if mode == spectrum.Burst {
		return BurstColumns(species)
	}
	return ColumnMap{}, fmt.Errorf("%w: no column map for %s %s data", spectrum.ErrValidation, mode, species)
}

// binCount is ceil(180/binSize), with ratios within a relative 1e-4 of an
// integer rounded down. The default 16.3636 gives 11 bins, not 12.
func binCount(binSize float64) int {
	r := 180 / binSize
	return int(math.Ceil(r - 1e-4*r))
}

// BinLabels returns the centers of binCount(binSize) pitch-angle bins.
func BinLabels(binSize float64) []float64 {
	n := binCount(binSize)
	labels := make([]float64, n)
	for i := range labels {
		labels[i] = 180*float64(i)/float64(n) + binSize/2
	}
	return labels
}

// inBin reports whether a sensor at pitch angle pa with response half-width
// w overlaps the bin [label-delta, label+delta). A sensor may overlap two
// adjacent bins.
func inBin(pa, w, label, delta float64) bool {
	return pa+w >= label-delta && pa-w < label+delta
}

// PitchAngleDistribution bins the per-sensor flux of a dataset by pitch
// angle. Each active sensor contributes the mean of its channels inside the
// energy window to every bin its widened pitch-angle window overlaps.
func PitchAngleDistribution(ds *spectrum.Dataset, pa *PitchAngles, active ActiveEyes, options ...PADOption) (*spectrum.PAD, error) {
	cfg, err := newPADConfig(options)
	if err != nil {
		return nil, err
	}
	return cfg.distribution(ds, pa, active)
}

func (c *padConfig) distribution(ds *spectrum.Dataset, pa *PitchAngles, active ActiveEyes) (*spectrum.PAD, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	columns, err := c.layout(ds.Mode, ds.Species)
	if err != nil {
		return nil, err
	}

	times := len(pa.Time)
	width := pa.Angles.Cols()
	if pa.Angles.Rows() != times {
		return nil, fmt.Errorf("%w: pitch angles have %d rows for %d times", spectrum.ErrInconsistentInput, pa.Angles.Rows(), times)
	}
	if columns.Width() > width {
		return nil, fmt.Errorf("%w: column map needs %d columns, pitch angles have %d", spectrum.ErrInconsistentInput, columns.Width(), width)
	}

	logger := c.logger.With(slog.Int("spacecraft", ds.Spacecraft), slog.String("species", ds.Species.String()))

	sensorFlux := spectrum.NewGrid(times, width)
	sensorPA := spectrum.NewGrid(times, width)
	for _, pos := range spectrum.Positions {
		sensors, cols := active.Group(pos), columns.Group(pos)
		if len(sensors) > len(cols) {
			return nil, fmt.Errorf("%w: %d active %s sensors but %d columns", spectrum.ErrInconsistentInput, len(sensors), pos, len(cols))
		}

		for i, sensor := range sensors {
			id := spectrum.EyeID{Position: pos, Sensor: sensor}
			col := cols[i]

			eye, ok := ds.Eyes[id]
			if !ok {
				logger.Debug("active eye missing from dataset", slog.String("eye", id.String()))
				continue
			}
			if len(eye.Time) != times {
				return nil, fmt.Errorf("%w: eye %s has %d samples, pitch angles have %d", spectrum.ErrInconsistentInput, id, len(eye.Time), times)
			}
			if spectrum.AllMissing(eye.Energies) {
				logger.Debug("skipping eye", slog.String("eye", id.String()), slog.Any("reason", spectrum.ErrMissingCalibration))
				continue
			}

			channels := c.window(eye.Energies)
			for t := range times {
				values := make([]spectrum.Value, 0, len(channels))
				for _, ch := range channels {
					v := eye.Flux.At(t, ch)
					if v.Valid && v.Float64 == 0 {
						v = spectrum.NoData
					}
					values = append(values, v)
				}
				sensorFlux.Set(t, col, spectrum.Mean(values))
				sensorPA.Set(t, col, pa.Angles.At(t, col))
			}
		}
	}

	labels := BinLabels(c.binSize)
	delta := c.binSize / 2
	w := responseWidth[ds.Species]

	flux := spectrum.NewGrid(times, len(labels))
	for t := range times {
		for b, label := range labels {
			var matches []spectrum.Value
			for col := range width {
				angle, ok := sensorPA.At(t, col).Get()
				if !ok || !inBin(angle, w, label, delta) {
					continue
				}
				matches = append(matches, sensorFlux.At(t, col))
			}

			var v spectrum.Value
			switch len(matches) {
			case 0:
				continue
			case 1:
				v = matches[0]
			default:
				v = spectrum.Mean(matches)
			}
			if v.Valid && v.Float64 == 0 {
				v = spectrum.NoData
			}
			flux.Set(t, b, v)
		}
	}

	return &spectrum.PAD{
		Time:        slices.Clone(pa.Time),
		PitchAngles: labels,
		Flux:        flux,
		Attrs:       pa.Attrs.Clone(),
	}, nil
}

// window returns the channels whose calibrated energy lies in [lo, hi].
func (c *padConfig) window(energies []spectrum.Value) []int {
	var out []int
	for ch, e := range energies {
		if v, ok := e.Get(); ok && v >= c.lo && v <= c.hi {
			out = append(out, ch)
		}
	}
	return out
}

// CalcPAD runs the whole pitch-angle pipeline: the integral channel is split
// off, sun-contaminated samples are removed, active eyes and per-sensor pitch
// angles are resolved through the collaborators, then the flux is binned.
func CalcPAD(ds *spectrum.Dataset, field *series.Vector, mask SunMask, geometry PitchAngleSource, eyes ActiveEyeSource, options ...PADOption) (*spectrum.PAD, error) {
	cfg, err := newPADConfig(options)
	if err != nil {
		return nil, err
	}

	clean, _, err := SplitIntegralChannel(ds)
	if err != nil {
		return nil, fmt.Errorf("splitting integral channel: %w", err)
	}
	if len(mask) > 0 {
		if len(ds.SpinSector) == 0 {
			return nil, fmt.Errorf("%w: sun mask given but dataset has no spin sectors", spectrum.ErrInconsistentInput)
		}
		if clean, err = RemoveSun(clean, ds.SpinSector, mask); err != nil {
			return nil, fmt.Errorf("removing sun contamination: %w", err)
		}
	}

	prepared := *ds
	prepared.Eyes = clean

	tr, ok := prepared.TimeRange()
	if !ok {
		return nil, fmt.Errorf("%w: dataset has no samples", spectrum.ErrInconsistentInput)
	}
	active, err := eyes.ActiveEyes(ds.Species, ds.Mode, tr, ds.Spacecraft)
	if err != nil {
		return nil, fmt.Errorf("resolving active eyes: %w", err)
	}
	pa, err := geometry.PitchAngles(&prepared, field)
	if err != nil {
		return nil, fmt.Errorf("computing pitch angles: %w", err)
	}

	return cfg.distribution(&prepared, pa, active)
}
