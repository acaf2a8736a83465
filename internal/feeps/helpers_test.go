package feeps

import (
	"testing"
	"time"

	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

var epoch = time.Date(2017, 7, 11, 22, 34, 0, 0, time.UTC)

func timeAxis(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = epoch.Add(time.Duration(i) * 20 * time.Second)
	}
	return out
}

func valuesOf(fs []float64) []spectrum.Value {
	return spectrum.Values(fs...)
}

// newEye builds an eye spectrum from NaN-encoded flux rows.
func newEye(t *testing.T, id spectrum.EyeID, energies []float64, rows [][]float64) *spectrum.EyeSpectrum {
	t.Helper()
	flux, err := spectrum.GridFromRows(rows)
	if err != nil {
		t.Fatalf("building flux grid: %v", err)
	}
	return &spectrum.EyeSpectrum{
		Eye:      id,
		Time:     timeAxis(len(rows)),
		Energies: valuesOf(energies),
		Flux:     flux,
		Attrs:    spectrum.Attrs{"FIELDNAM": id.String()},
	}
}

func constRows(times, channels int, v float64) [][]float64 {
	rows := make([][]float64, times)
	for t := range rows {
		rows[t] = make([]float64, channels)
		for ch := range rows[t] {
			rows[t][ch] = v
		}
	}
	return rows
}

func top(sensor int) spectrum.EyeID {
	return spectrum.EyeID{Position: spectrum.Top, Sensor: sensor}
}

func bottom(sensor int) spectrum.EyeID {
	return spectrum.EyeID{Position: spectrum.Bottom, Sensor: sensor}
}
