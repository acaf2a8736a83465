package vdf

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/particle-spectra/internal/series"
	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

var epoch = time.Date(2015, 10, 30, 5, 15, 20, 0, time.UTC)

// skymap builds a distribution with a single azimuth and elevation.
func skymap(species spectrum.Species, units string, energies []float64, times int, v float64) *Distribution {
	d := &Distribution{
		Theta:   []float64{90},
		Species: species,
		Units:   units,
	}
	for t := range times {
		d.Time = append(d.Time, epoch.Add(time.Duration(t)*150*time.Millisecond))
		d.Energy = append(d.Energy, append([]float64(nil), energies...))
		d.Phi = append(d.Phi, []float64{0})
		cells := make([][][]float64, len(energies))
		for e := range cells {
			cells[e] = [][]float64{{v}}
		}
		d.Data = append(d.Data, cells)
	}
	return d
}

func TestToDEFlux(t *testing.T) {
	testCases := []struct {
		name    string
		species spectrum.Species
		units   string
		want    float64
	}{
		{"ions km", spectrum.Ion, UnitsKm, 2 * 9 / (1e6 * 0.53707)},
		{"ions m", spectrum.Ion, UnitsM, 2 * 9 * 1e18 / (1e6 * 0.53707)},
		{"electrons cm", spectrum.Electron, "S^3/CM^6", 2 * 9 * 1e30 / (1e6 * 0.53707 * math.Pow(electronMass/protonMass, 2))},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := skymap(tc.species, tc.units, []float64{3}, 1, 2)
			out, err := ToDEFlux(d)
			require.NoError(t, err)
			assert.InEpsilon(t, tc.want, out.Data[0][0][0][0], 1e-12)
			assert.Equal(t, UnitsDEFlux, out.Units)
			assert.Equal(t, UnitsDEFlux, out.Attrs["UNITS"])
			assert.Equal(t, 2.0, d.Data[0][0][0][0], "input must not be modified")
		})
	}
}

func TestToDEFlux_Errors(t *testing.T) {
	_, err := ToDEFlux(skymap(spectrum.Ion, "counts", []float64{1}, 1, 1))
	assert.ErrorIs(t, err, spectrum.ErrValidation)

	_, err = ToDEFlux(skymap(spectrum.Species("alpha"), UnitsKm, []float64{1}, 1, 1))
	assert.ErrorIs(t, err, spectrum.ErrValidation)

	d := skymap(spectrum.Ion, UnitsKm, []float64{1, 2}, 1, 1)
	d.Energy[0] = d.Energy[0][:1]
	_, err = ToDEFlux(d)
	assert.ErrorIs(t, err, spectrum.ErrInconsistentInput)
}

func TestEISProtonCorrection(t *testing.T) {
	energies := []float64{10, 20, 30, 40, 45, 47, 48, 100}
	flux := spectrum.NewGrid(1, len(energies))
	for ch := range energies {
		flux.Set(0, ch, spectrum.Of(1))
	}
	flux.Set(0, 1, spectrum.NoData)
	o := &spectrum.Omni{Time: []time.Time{epoch}, Energies: energies, Flux: flux}

	out := EISProtonCorrection(o)

	assert.InDelta(t, 2, out.Flux.At(0, 0).Float64, 1e-9)
	assert.False(t, out.Flux.At(0, 1).Valid)
	assert.InDelta(t, 1/(0.5*0.7), out.Flux.At(0, 7).Float64, 1e-9)
	assert.Equal(t, spectrum.Of(1), o.Flux.At(0, 0), "input must not be modified")
}

func constScalar(t *testing.T, n int, v spectrum.Value) *series.Scalar {
	t.Helper()
	data := make([]spectrum.Value, n)
	times := make([]time.Time, n)
	for i := range data {
		data[i] = v
		times[i] = epoch.Add(time.Duration(i) * 150 * time.Millisecond)
	}
	s, err := series.NewScalar(times, data, nil)
	require.NoError(t, err)
	return s
}

func constVector(t *testing.T, n int, v r3.Vector) *series.Vector {
	t.Helper()
	data := make([]r3.Vector, n)
	times := make([]time.Time, n)
	for i := range data {
		data[i] = v
		times[i] = epoch.Add(time.Duration(i) * 150 * time.Millisecond)
	}
	s, err := series.NewVector(times, data, nil)
	require.NoError(t, err)
	return s
}

func TestBiMaxwellian_Isotropic(t *testing.T) {
	const temp = 500.0 // eV
	d := skymap(spectrum.Ion, UnitsM, []float64{temp}, 2, 0)

	m := Moments{
		Density:   constScalar(t, 2, spectrum.Of(5)),
		Bulk:      constVector(t, 2, r3.Vector{}),
		Field:     constVector(t, 2, r3.Vector{Z: 10}),
		TempPara:  constScalar(t, 2, spectrum.Of(temp)),
		TempPerp:  constScalar(t, 2, spectrum.Of(temp)),
		Potential: constScalar(t, 2, spectrum.Of(0)),
	}

	out, err := BiMaxwellian(d, m)
	require.NoError(t, err)

	vth := math.Sqrt(2 * temp * elementaryCharge / protonMass)
	want := 5e6 / (math.Pow(math.Pi, 1.5) * vth * vth * vth) * math.Exp(-1)
	assert.InEpsilon(t, want, out.Data[0][0][0][0], 1e-9)
	assert.InEpsilon(t, want, out.Data[1][0][0][0], 1e-9)
}

func TestBiMaxwellian_UnitsAndGaps(t *testing.T) {
	d := skymap(spectrum.Electron, UnitsCm, []float64{10, 100}, 2, 0)

	m := Moments{
		Density:   constScalar(t, 2, spectrum.Of(1)),
		Bulk:      constVector(t, 2, r3.Vector{X: 100}),
		Field:     constVector(t, 2, r3.Vector{Z: 1}),
		TempPara:  constScalar(t, 2, spectrum.Of(50)),
		TempPerp:  constScalar(t, 2, spectrum.Of(25)),
		Potential: constScalar(t, 2, spectrum.Of(20)),
	}
	m.Density.Data[1] = spectrum.NoData

	out, err := BiMaxwellian(d, m)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(out.Data[0][0][0][0]), "energy below the spacecraft potential")
	assert.Greater(t, out.Data[0][1][0][0], 0.0)
	assert.True(t, math.IsNaN(out.Data[1][1][0][0]), "incomplete moments")
}

func TestBiMaxwellian_Errors(t *testing.T) {
	d := skymap(spectrum.Ion, UnitsM, []float64{1}, 1, 0)
	_, err := BiMaxwellian(d, Moments{})
	assert.True(t, errors.Is(err, spectrum.ErrValidation))

	d.Units = "counts"
	_, err = BiMaxwellian(d, Moments{})
	assert.True(t, errors.Is(err, spectrum.ErrValidation))
}
