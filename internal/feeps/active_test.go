package feeps

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

func TestEyeSchedule_Burst(t *testing.T) {
	s := NewEyeSchedule()

	got, err := s.ActiveEyes(spectrum.Ion, spectrum.Burst, spectrum.TimeRange{Start: epoch, End: epoch}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := ActiveEyes{Top: []int{6, 7, 8}, Bottom: []int{6, 7, 8}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("burst ion eyes mismatch (-want +got):\n%s", diff)
	}

	got, err = s.ActiveEyes(spectrum.Electron, spectrum.Burst, spectrum.TimeRange{Start: epoch, End: epoch}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Top) != 9 || len(got.Bottom) != 9 {
		t.Errorf("burst electrons carry 9 eyes per group, got %+v", got)
	}
}

func TestEyeSchedule_Survey(t *testing.T) {
	early := SurveyEpoch{
		Start: time.Date(2015, 9, 1, 0, 0, 0, 0, time.UTC),
		Eyes: map[int]map[spectrum.Species]ActiveEyes{
			1: {spectrum.Electron: {Top: []int{3, 4, 5, 11, 12}, Bottom: []int{3, 4, 5, 11, 12}}},
		},
	}
	late := SurveyEpoch{
		Start: time.Date(2017, 8, 16, 0, 0, 0, 0, time.UTC),
		Eyes: map[int]map[spectrum.Species]ActiveEyes{
			1: {spectrum.Electron: {Top: []int{3, 5, 9, 10, 12}, Bottom: []int{2, 4, 5, 9, 10}}},
		},
	}
	s := NewEyeSchedule(late, early)

	testCases := []struct {
		name  string
		start time.Time
		want  []int
		err   error
	}{
		{"before any epoch", time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC), nil, spectrum.ErrValidation},
		{"early epoch", time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC), []int{3, 4, 5, 11, 12}, nil},
		{"late epoch start inclusive", late.Start, []int{3, 5, 9, 10, 12}, nil},
		{"late epoch", time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), []int{3, 5, 9, 10, 12}, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.ActiveEyes(spectrum.Electron, spectrum.Survey, spectrum.TimeRange{Start: tc.start, End: tc.start}, 1)
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
			if diff := cmp.Diff(tc.want, got.Top); err == nil && diff != "" {
				t.Errorf("top eyes mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := s.ActiveEyes(spectrum.Ion, spectrum.Survey, spectrum.TimeRange{Start: late.Start}, 1); !errors.Is(err, spectrum.ErrValidation) {
		t.Errorf("missing species entry: expected ErrValidation, got %v", err)
	}
	if _, err := s.ActiveEyes(spectrum.Electron, spectrum.Mode("fast"), spectrum.TimeRange{}, 1); !errors.Is(err, spectrum.ErrValidation) {
		t.Errorf("unknown mode: expected ErrValidation, got %v", err)
	}
	if _, err := s.ActiveEyes(spectrum.Electron, spectrum.Burst, spectrum.TimeRange{}, 0); !errors.Is(err, spectrum.ErrValidation) {
		t.Errorf("spacecraft 0: expected ErrValidation, got %v", err)
	}
}

func TestColumnMap(t *testing.T) {
	electron, err := BurstColumns(spectrum.Electron)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if electron.Width() != 18 {
		t.Errorf("electron burst width = %d", electron.Width())
	}
	if got := electron.Group(spectrum.Bottom)[0]; got != 9 {
		t.Errorf("first bottom electron column = %d", got)
	}

	ion, err := BurstColumns(spectrum.Ion)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ion.Width() != 6 {
		t.Errorf("ion burst width = %d", ion.Width())
	}

	if _, err = BurstColumns(spectrum.Species("x")); !errors.Is(err, spectrum.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if err = (ColumnMap{Top: []int{-1}}).Validate(); !errors.Is(err, spectrum.ErrValidation) {
		t.Errorf("negative column: expected ErrValidation, got %v", err)
	}
}
