// Package feeps turns raw multi-eye energetic particle measurements into
// omnidirectional spectra and pitch-angle distributions.
package feeps

import (
	"fmt"
	"slices"

	"github.com/roman-kulish/particle-spectra/internal/calibration"
	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

// SplitIntegralChannel separates the top-most energy channel of every eye,
// which integrates everything above the differential range, from the
// differential channels below it.
func SplitIntegralChannel(ds *spectrum.Dataset) (clean, integral spectrum.EyeSet, err error) {
	if err = ds.Validate(); err != nil {
		return nil, nil, err
	}

	clean = make(spectrum.EyeSet, len(ds.Eyes))
	integral = make(spectrum.EyeSet, len(ds.Eyes))
	for _, id := range ds.Eyes.IDs() {
		eye := ds.Eyes[id]
		n := len(eye.Energies)
		if n < 2 {
			return nil, nil, fmt.Errorf("%w: eye %s has %d channels, need at least 2", spectrum.ErrInconsistentInput, id, n)
		}

		c := &spectrum.EyeSpectrum{
			Eye:      id,
			Time:     slices.Clone(eye.Time),
			Energies: slices.Clone(eye.Energies[:n-1]),
			Flux:     spectrum.NewGrid(len(eye.Time), n-1),
			Attrs:    eye.Attrs.Clone(),
		}
		i := &spectrum.EyeSpectrum{
			Eye:      id,
			Time:     slices.Clone(eye.Time),
			Energies: []spectrum.Value{eye.Energies[n-1]},
			Flux:     spectrum.NewGrid(len(eye.Time), 1),
			Attrs:    eye.Attrs.Clone(),
		}
		for t := range eye.Time {
			for ch := range n - 1 {
				c.Flux.Set(t, ch, eye.Flux.At(t, ch))
			}
			i.Flux.Set(t, 0, eye.Flux.At(t, n-1))
		}

		clean[id] = c
		integral[id] = i
	}
	return clean, integral, nil
}

// ApplyEnergyTable returns a copy of the dataset with every eye's energy axis
// replaced by its calibrated table.
func ApplyEnergyTable(ds *spectrum.Dataset, table *calibration.Table) (*spectrum.Dataset, error) {
	if table == nil {
		table = calibration.Default()
	}

	out := *ds
	out.Eyes = ds.Eyes.Clone()
	out.SpinSector = slices.Clone(ds.SpinSector)
	out.Attrs = ds.Attrs.Clone()
	for _, id := range out.Eyes.IDs() {
		energies, err := table.EnergyTable(ds.Spacecraft, id.Position, id.Sensor)
		if err != nil {
			return nil, fmt.Errorf("calibrating eye %s: %w", id, err)
		}
		eye := out.Eyes[id]
		if len(energies) != len(eye.Energies) {
			return nil, fmt.Errorf("%w: eye %s has %d channels, calibration has %d", spectrum.ErrInconsistentInput, id, len(eye.Energies), len(energies))
		}
		eye.Energies = energies
	}
	return &out, nil
}
