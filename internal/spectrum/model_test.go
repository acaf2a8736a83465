package spectrum

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func TestParseEyeID(t *testing.T) {
	testCases := []struct {
		in      string
		want    EyeID
		wantErr bool
	}{
		{"top-3", EyeID{Top, 3}, false},
		{"bottom-11", EyeID{Bottom, 11}, false},
		{"bot-2", EyeID{Bottom, 2}, false},
		{"side-1", EyeID{}, true},
		{"top", EyeID{}, true},
		{"top-0", EyeID{}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseEyeID(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEyeSet_IDs(t *testing.T) {
	set := EyeSet{
		{Bottom, 1}: {},
		{Top, 9}:    {},
		{Top, 2}:    {},
	}
	want := []EyeID{{Top, 2}, {Top, 9}, {Bottom, 1}}
	if got := set.IDs(); !slices.Equal(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}
}

func TestParseEnums(t *testing.T) {
	if s, err := ParseSpecies("I"); err != nil || s != Ion {
		t.Errorf("ParseSpecies(I) = %v, %v", s, err)
	}
	if _, err := ParseSpecies("proton"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if m, err := ParseMode("burst"); err != nil || m != Burst {
		t.Errorf("ParseMode(burst) = %v, %v", m, err)
	}
	if _, err := ParseMode("fast"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if err := Species("neutral").Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestEyeSpectrum_Validate(t *testing.T) {
	t0 := time.Date(2017, 7, 11, 22, 34, 0, 0, time.UTC)
	eye := &EyeSpectrum{
		Eye:      EyeID{Top, 1},
		Time:     []time.Time{t0, t0.Add(time.Second)},
		Energies: Values(33, 52),
		Flux:     NewGrid(2, 2),
	}
	if err := eye.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	eye.Time[1] = t0
	if err := eye.Validate(); !errors.Is(err, ErrInconsistentInput) {
		t.Errorf("expected ErrInconsistentInput for repeated time, got %v", err)
	}

	eye.Time = eye.Time[:1]
	if err := eye.Validate(); !errors.Is(err, ErrInconsistentInput) {
		t.Errorf("expected ErrInconsistentInput for short time axis, got %v", err)
	}
}

func TestDataset_Validate(t *testing.T) {
	ds := &Dataset{Spacecraft: 5, Species: Electron, Mode: Burst}
	if err := ds.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for spacecraft 5, got %v", err)
	}
	ds.Spacecraft = 1
	if err := ds.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
