package feeps

import (
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/roman-kulish/particle-spectra/internal/series"
	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

var ionEnergies = []float64{
	57.9, 76.8, 95.4, 114.1, 133.0, 153.7, 177.6, 205.1,
	236.7, 273.2, 315.4, 363.8, 419.7, 484.2, 558.6,
}

func ionDataset(t *testing.T, times int, flux map[spectrum.EyeID]float64) *spectrum.Dataset {
	t.Helper()
	eyes := make(spectrum.EyeSet, len(flux))
	for id, v := range flux {
		eyes[id] = newEye(t, id, ionEnergies, constRows(times, len(ionEnergies), v))
	}
	return &spectrum.Dataset{
		Spacecraft: 1,
		Species:    spectrum.Ion,
		Mode:       spectrum.Burst,
		Eyes:       eyes,
		Attrs:      spectrum.Attrs{"UNITS": "1/(cm^2 s sr keV)"},
	}
}

// pitchAngles builds a [time x 6] pitch angle grid where every column not
// listed is "no data".
func pitchAngles(times int, cols map[int]float64) *PitchAngles {
	angles := spectrum.NewGrid(times, 6)
	for t := range times {
		for c, a := range cols {
			angles.Set(t, c, spectrum.Of(a))
		}
	}
	return &PitchAngles{Time: timeAxis(times), Angles: angles, Attrs: spectrum.Attrs{"UNITS": "1/(cm^2 s sr keV)"}}
}

func TestBinLabels(t *testing.T) {
	labels := BinLabels(DefaultBinSize)
	if len(labels) != 11 {
		t.Fatalf("expected 11 bins, got %d", len(labels))
	}
	if !cmp.Equal(labels[0], 8.1818, cmpopts.EquateApprox(0, 1e-9)) {
		t.Errorf("first label = %v, want 8.1818", labels[0])
	}
	for i := 1; i < len(labels); i++ {
		if labels[i] <= labels[i-1] {
			t.Fatalf("labels must increase: %v", labels)
		}
	}

	last := labels[len(labels)-1] + DefaultBinSize/2
	if !cmp.Equal(last, 180.0, cmpopts.EquateApprox(0, 1e-3)) {
		t.Errorf("last bin ends at %v, want 180", last)
	}

	if got := BinLabels(20); !cmp.Equal(got, []float64{10, 30, 50, 70, 90, 110, 130, 150, 170}) {
		t.Errorf("BinLabels(20) = %v", got)
	}
}

func TestBinCount(t *testing.T) {
	testCases := []struct {
		binSize float64
		want    int
	}{
		{DefaultBinSize, 11},
		{180.0 / 11, 11},
		{20, 9},
		{17, 11},
		{16, 12},
		{180, 1},
		{100, 2},
	}
	for _, tc := range testCases {
		if got := binCount(tc.binSize); got != tc.want {
			t.Errorf("binCount(%v) = %d, want %d", tc.binSize, got, tc.want)
		}
	}
}

func TestInBin(t *testing.T) {
	testCases := []struct {
		name  string
		pa    float64
		label float64
		want  bool
	}{
		{"inside", 30, 30, true},
		{"upper edge plus width touches next bin", 10, 30, true},
		{"lower edge minus width excluded", 30, 10, false},
		{"far away", 90, 10, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := inBin(tc.pa, 10, tc.label, 10); got != tc.want {
				t.Errorf("inBin(%v, 10, %v, 10) = %v, want %v", tc.pa, tc.label, got, tc.want)
			}
		})
	}
}

func TestPitchAngleDistribution_TwoBinMembership(t *testing.T) {
	ds := ionDataset(t, 2, map[spectrum.EyeID]float64{top(6): 2})
	pa := pitchAngles(2, map[int]float64{0: 10})

	got, err := PitchAngleDistribution(ds, pa, ActiveEyes{Top: []int{6}}, WithBinSize(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Flux.Cols() != 9 {
		t.Fatalf("expected 9 bins, got %d", got.Flux.Cols())
	}
	for ti := range 2 {
		if v := got.Flux.At(ti, 0); v != spectrum.Of(2) {
			t.Errorf("t=%d bin 0 = %+v", ti, v)
		}
		if v := got.Flux.At(ti, 1); v != spectrum.Of(2) {
			t.Errorf("t=%d bin 1 = %+v, sensor window reaches it", ti, v)
		}
		for b := 2; b < 9; b++ {
			if v := got.Flux.At(ti, b); v.Valid {
				t.Errorf("t=%d bin %d = %+v, want no data", ti, b, v)
			}
		}
	}
	if got.Attrs["UNITS"] != "1/(cm^2 s sr keV)" {
		t.Errorf("attrs must come from the pitch angles, got %v", got.Attrs)
	}
}

func TestPitchAngleDistribution_MeanOfSensors(t *testing.T) {
	ds := ionDataset(t, 1, map[spectrum.EyeID]float64{top(6): 2, top(7): 4, bottom(8): 30})
	pa := pitchAngles(1, map[int]float64{0: 90, 1: 90, 5: 170})

	got, err := PitchAngleDistribution(ds, pa, ActiveEyes{Top: []int{6, 7}, Bottom: []int{6, 7, 8}}, WithBinSize(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := got.Flux.At(0, 4); v != spectrum.Of(3) {
		t.Errorf("bin at 90 = %+v, want mean of both top sensors", v)
	}
	if v := got.Flux.At(0, 8); v != spectrum.Of(30) {
		t.Errorf("bin at 170 = %+v, want the single bottom sensor", v)
	}
}

func TestPitchAngleDistribution_ZeroFluxIsNoData(t *testing.T) {
	ds := ionDataset(t, 1, map[spectrum.EyeID]float64{top(6): 0})
	pa := pitchAngles(1, map[int]float64{0: 90})

	got, err := PitchAngleDistribution(ds, pa, ActiveEyes{Top: []int{6}}, WithBinSize(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := got.Flux.At(0, 4); v.Valid {
		t.Errorf("zero flux must become no data, got %+v", v)
	}
}

func TestPitchAngleDistribution_EnergyWindow(t *testing.T) {
	ds := ionDataset(t, 1, map[spectrum.EyeID]float64{top(6): 1})
	eye := ds.Eyes[top(6)]
	for ch := range eye.Flux.Cols() {
		eye.Flux.Set(0, ch, spectrum.Of(float64(ch)))
	}
	pa := pitchAngles(1, map[int]float64{0: 90})

	// [95.4, 133.0] selects channels 2, 3 and 4.
	got, err := PitchAngleDistribution(ds, pa, ActiveEyes{Top: []int{6}}, WithBinSize(20), WithEnergyWindow(95.4, 133.0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := got.Flux.At(0, 4); v != spectrum.Of(3) {
		t.Errorf("bin at 90 = %+v, want 3", v)
	}
}

func TestPitchAngleDistribution_Validation(t *testing.T) {
	ds := ionDataset(t, 1, map[spectrum.EyeID]float64{top(6): 1})
	pa := pitchAngles(1, map[int]float64{0: 90})
	active := ActiveEyes{Top: []int{6}}

	testCases := []struct {
		name    string
		options []PADOption
		want    error
	}{
		{"lower bound 31 keV", []PADOption{WithEnergyWindow(31, 600)}, spectrum.ErrValidation},
		{"inverted window", []PADOption{WithEnergyWindow(300, 100)}, spectrum.ErrValidation},
		{"zero bin size", []PADOption{WithBinSize(0)}, spectrum.ErrValidation},
		{"bin size above 180", []PADOption{WithBinSize(181)}, spectrum.ErrValidation},
		{"duplicate column", []PADOption{WithColumnMap(ColumnMap{Top: []int{0, 0}})}, spectrum.ErrValidation},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := PitchAngleDistribution(ds, pa, active, tc.options...)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPitchAngleDistribution_SurveyNeedsColumnMap(t *testing.T) {
	ds := ionDataset(t, 1, map[spectrum.EyeID]float64{top(6): 1})
	ds.Mode = spectrum.Survey
	pa := pitchAngles(1, map[int]float64{0: 90})

	if _, err := PitchAngleDistribution(ds, pa, ActiveEyes{Top: []int{6}}); !errors.Is(err, spectrum.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}

	got, err := PitchAngleDistribution(ds, pa, ActiveEyes{Top: []int{6}}, WithColumnMap(ColumnMap{Top: []int{0}, Bottom: []int{1}}), WithBinSize(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := got.Flux.At(0, 4); v != spectrum.Of(1) {
		t.Errorf("bin at 90 = %+v", v)
	}
}

func TestPitchAngleDistribution_ShapeErrors(t *testing.T) {
	ds := ionDataset(t, 2, map[spectrum.EyeID]float64{top(6): 1})

	if _, err := PitchAngleDistribution(ds, pitchAngles(3, map[int]float64{0: 90}), ActiveEyes{Top: []int{6}}); !errors.Is(err, spectrum.ErrInconsistentInput) {
		t.Errorf("time length mismatch: expected ErrInconsistentInput, got %v", err)
	}
	if _, err := PitchAngleDistribution(ds, pitchAngles(2, nil), ActiveEyes{Top: []int{6, 7, 8, 9}}); !errors.Is(err, spectrum.ErrInconsistentInput) {
		t.Errorf("too many sensors: expected ErrInconsistentInput, got %v", err)
	}
}

type fixedEyes ActiveEyes

func (f fixedEyes) ActiveEyes(spectrum.Species, spectrum.Mode, spectrum.TimeRange, int) (ActiveEyes, error) {
	return ActiveEyes(f), nil
}

func TestCalcPAD(t *testing.T) {
	energies := append(append([]float64(nil), ionEnergies...), 609.9)
	rows := constRows(2, len(energies), 5)
	for ti := range rows {
		rows[ti][len(energies)-1] = 1000
	}
	ds := &spectrum.Dataset{
		Spacecraft: 2,
		Species:    spectrum.Ion,
		Mode:       spectrum.Burst,
		Eyes:       spectrum.EyeSet{top(6): newEye(t, top(6), energies, rows)},
	}

	field, err := series.NewVector(timeAxis(2), []r3.Vector{{Z: 1}, {Z: 1}}, nil)
	if err != nil {
		t.Fatalf("field: %v", err)
	}
	// Looking along -Z the sensor sees particles moving along +Z, pitch angle 0.
	geometry := LookDirections{{Z: -1}, {Z: -1}, {Z: -1}, {Z: 1}, {Z: 1}, {Z: 1}}

	got, err := CalcPAD(ds, field, nil, geometry, fixedEyes{Top: []int{6}}, WithBinSize(20), WithEnergyWindow(70, 2000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := got.Flux.At(0, 0); v != spectrum.Of(5) {
		t.Errorf("bin 0 = %+v, integral channel must not contribute", v)
	}

	if _, err = CalcPAD(ds, field, nil, geometry, fixedEyes{}, WithEnergyWindow(31, 600)); !errors.Is(err, spectrum.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
