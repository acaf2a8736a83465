// Package vdf converts and models particle velocity distribution functions.
package vdf

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

const (
	UnitsCm = "s^3/cm^6"
	UnitsM  = "s^3/m^6"
	UnitsKm = "s^3/km^6"

	// UnitsDEFlux is the unit of differential energy flux.
	UnitsDEFlux = "keV/(cm^2 s sr keV)"
)

// Distribution is a skymap: phase space density per time, energy, azimuth
// and elevation. Cells without a measurement hold NaN.
type Distribution struct {
	Time    []time.Time
	Energy  [][]float64 // [time][energy], eV
	Phi     [][]float64 // [time][azimuth], degrees
	Theta   []float64   // [elevation], degrees
	Data    [][][][]float64
	Species spectrum.Species
	Units   string
	Attrs   spectrum.Attrs
}

// Validate checks that every axis matches the shape of the data.
func (d *Distribution) Validate() error {
	if err := d.Species.Validate(); err != nil {
		return err
	}
	if len(d.Energy) != len(d.Time) || len(d.Phi) != len(d.Time) || len(d.Data) != len(d.Time) {
		return fmt.Errorf("%w: distribution axes do not match %d times", spectrum.ErrInconsistentInput, len(d.Time))
	}
	for t, energies := range d.Data {
		if len(energies) != len(d.Energy[t]) {
			return fmt.Errorf("%w: %d energies at time %d, expected %d", spectrum.ErrInconsistentInput, len(energies), t, len(d.Energy[t]))
		}
		for _, azimuths := range energies {
			if len(azimuths) != len(d.Phi[t]) {
				return fmt.Errorf("%w: %d azimuths at time %d, expected %d", spectrum.ErrInconsistentInput, len(azimuths), t, len(d.Phi[t]))
			}
			for _, elevations := range azimuths {
				if len(elevations) != len(d.Theta) {
					return fmt.Errorf("%w: %d elevations at time %d, expected %d", spectrum.ErrInconsistentInput, len(elevations), t, len(d.Theta))
				}
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the distribution.
func (d *Distribution) Clone() *Distribution {
	out := &Distribution{
		Time:    slices.Clone(d.Time),
		Energy:  make([][]float64, len(d.Energy)),
		Phi:     make([][]float64, len(d.Phi)),
		Theta:   slices.Clone(d.Theta),
		Data:    make([][][][]float64, len(d.Data)),
		Species: d.Species,
		Units:   d.Units,
		Attrs:   d.Attrs.Clone(),
	}
	for t := range d.Energy {
		out.Energy[t] = slices.Clone(d.Energy[t])
	}
	for t := range d.Phi {
		out.Phi[t] = slices.Clone(d.Phi[t])
	}
	for t, energies := range d.Data {
		out.Data[t] = make([][][]float64, len(energies))
		for e, azimuths := range energies {
			out.Data[t][e] = make([][]float64, len(azimuths))
			for a, elevations := range azimuths {
				out.Data[t][e][a] = slices.Clone(elevations)
			}
		}
	}
	return out
}

// each applies fn to every cell, passing the cell's energy.
func (d *Distribution) each(fn func(energy, v float64) float64) {
	for t, energies := range d.Data {
		for e, azimuths := range energies {
			for _, elevations := range azimuths {
				for k, v := range elevations {
					elevations[k] = fn(d.Energy[t][e], v)
				}
			}
		}
	}
}

// siFactor returns the multiplier converting the units into s^3/m^6.
func siFactor(units string) (float64, error) {
	switch strings.ToLower(units) {
	case UnitsCm:
		return 1e12, nil
	case UnitsM:
		return 1, nil
	case UnitsKm:
		return 1e-18, nil
	}
	return 0, fmt.Errorf("%w: unknown distribution units %q", spectrum.ErrValidation, units)
}

func massRatio(species spectrum.Species) (float64, error) {
	switch species {
	case spectrum.Ion:
		return 1, nil
	case spectrum.Electron:
		return electronMass / protonMass, nil
	}
	return 0, fmt.Errorf("%w: unknown species %q", spectrum.ErrValidation, string(species))
}

// ToDEFlux converts phase space density into differential energy flux.
func ToDEFlux(d *Distribution) (*Distribution, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	ratio, err := massRatio(d.Species)
	if err != nil {
		return nil, err
	}

	var scale float64
	switch strings.ToLower(d.Units) {
	case UnitsCm:
		scale = 1e30
	case UnitsM:
		scale = 1e18
	case UnitsKm:
		scale = 1
	default:
		return nil, fmt.Errorf("%w: unknown distribution units %q", spectrum.ErrValidation, d.Units)
	}
	scale /= 1e6 * 0.53707 * ratio * ratio

	out := d.Clone()
	out.each(func(energy, v float64) float64 {
		return v * scale * energy * energy
	})
	out.Units = UnitsDEFlux
	if out.Attrs == nil {
		out.Attrs = make(spectrum.Attrs)
	}
	out.Attrs["UNITS"] = UnitsDEFlux
	return out, nil
}

// EIS cross-calibration coefficients.
const (
	eisAlpha = -0.3
	eisBeta  = 49e-3 // MeV
	eisGamma = 1e-3  // MeV

	// eisPHxTOFChannels is the number of low-energy channels measured in
	// pulse-height x time-of-flight mode.
	eisPHxTOFChannels = 7
)

func phxtof(energy float64) float64 {
	return 1 / (0.5 * (1 + eisAlpha*(math.Tanh((energy-eisBeta)/eisGamma)+1)))
}

func extof(energy float64) float64 {
	return 1 / (0.5 * (1 + eisAlpha*(1-math.Tanh((energy-eisBeta)/eisGamma)+1)))
}

// EISProtonCorrection applies the EIS proton cross-calibration to an
// omnidirectional spectrum whose energies are in keV.
func EISProtonCorrection(o *spectrum.Omni) *spectrum.Omni {
	factors := make([]float64, len(o.Energies))
	for ch, e := range o.Energies {
		mev := e / 1e3
		if ch < eisPHxTOFChannels {
			factors[ch] = phxtof(mev)
		} else {
			factors[ch] = extof(mev)
		}
	}

	out := &spectrum.Omni{
		Time:     slices.Clone(o.Time),
		Energies: slices.Clone(o.Energies),
		Flux:     o.Flux.Clone(),
		Attrs:    o.Attrs.Clone(),
	}
	for t := range out.Flux.Rows() {
		for ch, f := range factors {
			out.Flux.Set(t, ch, out.Flux.At(t, ch).Scale(f))
		}
	}
	return out
}
