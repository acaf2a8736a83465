package calibration

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

func TestEnergyTable_Length(t *testing.T) {
	for sc := 1; sc <= 4; sc++ {
		for _, pos := range spectrum.Positions {
			for sensor := 1; sensor <= MaxSensor; sensor++ {
				table, err := EnergyTable(sc, pos, sensor)
				if err != nil {
					t.Fatalf("EnergyTable(%d, %s, %d) error: %v", sc, pos, sensor, err)
				}
				if len(table) != SensorChannels {
					t.Errorf("EnergyTable(%d, %s, %d) has %d entries", sc, pos, sensor, len(table))
				}
			}
		}
	}
}

func TestEnergyTable_BaseSelection(t *testing.T) {
	testCases := []struct {
		name   string
		sc     int
		pos    spectrum.Position
		sensor int
		first  float64
		last   float64
	}{
		{"electron head with offset", 1, spectrum.Top, 1, 33.2 + 14, 575.8 + 14},
		{"ion head zero offset", 1, spectrum.Top, 6, 57.9, 609.9},
		{"ion head with offset", 2, spectrum.Bottom, 6, 57.9 + 15, 609.9 + 15},
		{"electron head negative offset", 1, spectrum.Bottom, 11, 33.2 - 25, 575.8 - 25},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			table, err := EnergyTable(tc.sc, tc.pos, tc.sensor)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			opt := cmpopts.EquateApprox(0, 1e-9)
			if !cmp.Equal(table[0].Float64, tc.first, opt) || !table[0].Valid {
				t.Errorf("first channel = %+v, want %v", table[0], tc.first)
			}
			if !cmp.Equal(table[SensorChannels-1].Float64, tc.last, opt) || !table[SensorChannels-1].Valid {
				t.Errorf("last channel = %+v, want %v", table[SensorChannels-1], tc.last)
			}
		})
	}
}

func TestEnergyTable_DeadSensor(t *testing.T) {
	table, err := EnergyTable(1, spectrum.Bottom, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table) != SensorChannels {
		t.Fatalf("dead sensor table must keep its length, got %d", len(table))
	}
	if !spectrum.AllMissing(table) {
		t.Errorf("dead sensor entries must all be no data: %+v", table)
	}
}

func TestEnergyTable_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		sc     int
		pos    spectrum.Position
		sensor int
		want   error
	}{
		{"sensor zero", 1, spectrum.Top, 0, ErrInvalidSensor},
		{"sensor 13", 1, spectrum.Top, 13, ErrInvalidSensor},
		{"spacecraft 5", 5, spectrum.Top, 1, spectrum.ErrValidation},
		{"bad position", 1, spectrum.Position("side"), 1, spectrum.ErrValidation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := EnergyTable(tc.sc, tc.pos, tc.sensor)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, spectrum.ErrValidation) {
				t.Errorf("every lookup failure is a validation error, got %v", err)
			}
		})
	}
}

func TestOmniEnergies(t *testing.T) {
	electron, err := OmniEnergies(spectrum.Electron, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(electron) != OmniChannels {
		t.Fatalf("electron omni table has %d entries", len(electron))
	}
	if !cmp.Equal(electron[0], 33.2-1, cmpopts.EquateApprox(0, 1e-9)) {
		t.Errorf("electron sc2 first channel = %v", electron[0])
	}

	ion, err := OmniEnergies(spectrum.Ion, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(ionOmniEnergies[:], ion); diff != "" {
		t.Errorf("ion offsets are zero (-want +got):\n%s", diff)
	}

	if _, err = OmniEnergies(spectrum.Species("proton"), 1); !errors.Is(err, spectrum.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestGainFactor(t *testing.T) {
	testCases := []struct {
		species spectrum.Species
		sc      int
		want    float64
	}{
		{spectrum.Ion, 1, 0.84},
		{spectrum.Ion, 2, 1},
		{spectrum.Electron, 1, 1},
		{spectrum.Electron, 4, 1},
	}
	for _, tc := range testCases {
		got, err := GainFactor(tc.species, tc.sc)
		if err != nil {
			t.Fatalf("GainFactor(%s, %d) error: %v", tc.species, tc.sc, err)
		}
		if got != tc.want {
			t.Errorf("GainFactor(%s, %d) = %v, want %v", tc.species, tc.sc, got, tc.want)
		}
	}
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable([]byte(`
mms1-top: [1, 2, null]
mms2-bot: [0, 0, 0, 0, 0, 5]
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := table.EnergyTable(1, spectrum.Top, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got[0].Valid || !cmp.Equal(got[0].Float64, 35.2, cmpopts.EquateApprox(0, 1e-9)) {
		t.Errorf("first channel = %+v", got[0])
	}

	dead, err := table.EnergyTable(1, spectrum.Top, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !spectrum.AllMissing(dead) {
		t.Error("null correction must mark a dead sensor")
	}

	if _, err = table.EnergyTable(1, spectrum.Top, 4); !errors.Is(err, ErrInvalidSensor) {
		t.Errorf("sensor outside the loaded table must be invalid, got %v", err)
	}
	if _, err = table.EnergyTable(3, spectrum.Top, 1); !errors.Is(err, ErrInvalidSensor) {
		t.Errorf("missing key must be invalid, got %v", err)
	}

	if _, err = ParseTable([]byte(`mms9-top: [1]`)); !errors.Is(err, spectrum.ErrValidation) {
		t.Errorf("expected ErrValidation for spacecraft 9, got %v", err)
	}
}
