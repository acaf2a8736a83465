package feeps

import (
	"fmt"
	"slices"
	"time"

	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

// ActiveEyes lists the sensor ids that produce data, per mounting group.
type ActiveEyes struct {
	Top    []int `yaml:"top"`
	Bottom []int `yaml:"bottom"`
}

// Group returns the sensors of one mounting group.
func (a ActiveEyes) Group(pos spectrum.Position) []int {
	if pos == spectrum.Top {
		return a.Top
	}
	return a.Bottom
}

// ActiveEyeSource resolves which eyes were active for a dataset.
type ActiveEyeSource interface {
	ActiveEyes(species spectrum.Species, mode spectrum.Mode, tr spectrum.TimeRange, spacecraft int) (ActiveEyes, error)
}

// Burst telemetry carries every eye of a species regardless of epoch.
var burstEyes = map[spectrum.Species]ActiveEyes{
	spectrum.Electron: {
		Top:    []int{1, 2, 3, 4, 5, 9, 10, 11, 12},
		Bottom: []int{1, 2, 3, 4, 5, 9, 10, 11, 12},
	},
	spectrum.Ion: {
		Top:    []int{6, 7, 8},
		Bottom: []int{6, 7, 8},
	},
}

// SurveyEpoch is the survey-mode eye selection in force from Start on.
type SurveyEpoch struct {
	Start time.Time                                `yaml:"start"`
	Eyes  map[int]map[spectrum.Species]ActiveEyes `yaml:"eyes"` // spacecraft -> species -> eyes
}

// EyeSchedule resolves active eyes: fixed sets in burst mode, the latest
// survey epoch starting at or before the data otherwise.
type EyeSchedule struct {
	epochs []SurveyEpoch
}

// NewEyeSchedule builds a schedule from survey epochs in any order.
func NewEyeSchedule(epochs ...SurveyEpoch) *EyeSchedule {
	sorted := slices.Clone(epochs)
	slices.SortFunc(sorted, func(a, b SurveyEpoch) int {
		return a.Start.Compare(b.Start)
	})
	return &EyeSchedule{epochs: sorted}
}

func (s *EyeSchedule) ActiveEyes(species spectrum.Species, mode spectrum.Mode, tr spectrum.TimeRange, spacecraft int) (ActiveEyes, error) {
	if err := species.Validate(); err != nil {
		return ActiveEyes{}, err
	}
	if spacecraft < 1 || spacecraft > 4 {
		return ActiveEyes{}, fmt.Errorf("%w: spacecraft id %d outside [1, 4]", spectrum.ErrValidation, spacecraft)
	}

	switch mode {
	case spectrum.Burst:
		return burstEyes[species], nil
	case spectrum.Survey:
		return s.survey(species, tr, spacecraft)
	}
	return ActiveEyes{}, mode.Validate()
}

func (s *EyeSchedule) survey(species spectrum.Species, tr spectrum.TimeRange, spacecraft int) (ActiveEyes, error) {
	i, _ := slices.BinarySearchFunc(s.epochs, tr.Start, func(e SurveyEpoch, t time.Time) int {
		if e.Start.After(t) {
			return 1
		}
		return -1
	})
	if i == 0 {
		return ActiveEyes{}, fmt.Errorf("%w: no survey eye schedule covers %s", spectrum.ErrValidation, tr.Start.Format(time.RFC3339))
	}

	eyes, ok := s.epochs[i-1].Eyes[spacecraft][species]
	if !ok {
		return ActiveEyes{}, fmt.Errorf("%w: survey eye schedule has no %s eyes for mms%d", spectrum.ErrValidation, species, spacecraft)
	}
	return eyes, nil
}

// ColumnMap places the i-th active sensor of each mounting group into a
// fixed column of the per-sensor pitch-angle arrays.
type ColumnMap struct {
	Top    []int `yaml:"top"`
	Bottom []int `yaml:"bottom"`
}

// Group returns the columns of one mounting group.
func (m ColumnMap) Group(pos spectrum.Position) []int {
	if pos == spectrum.Top {
		return m.Top
	}
	return m.Bottom
}

// Width returns the number of columns the map addresses.
func (m ColumnMap) Width() int {
	var width int
	for _, c := range slices.Concat(m.Top, m.Bottom) {
		width = max(width, c+1)
	}
	return width
}

// Validate rejects negative and duplicate columns.
func (m ColumnMap) Validate() error {
	seen := make(map[int]struct{})
	for _, c := range slices.Concat(m.Top, m.Bottom) {
		if c < 0 {
			return fmt.Errorf("%w: negative column %d", spectrum.ErrValidation, c)
		}
		if _, ok := seen[c]; ok {
			return fmt.Errorf("%w: column %d mapped twice", spectrum.ErrValidation, c)
		}
		seen[c] = struct{}{}
	}
	return nil
}

var burstColumns = map[spectrum.Species]ColumnMap{
	spectrum.Electron: {
		Top:    []int{0, 1, 2, 3, 4, 5, 6, 7, 8},
		Bottom: []int{9, 10, 11, 12, 13, 14, 15, 16, 17},
	},
	spectrum.Ion: {
		Top:    []int{0, 1, 2},
		Bottom: []int{3, 4, 5},
	},
}

// BurstColumns returns the fixed burst-mode layout of a species.
func BurstColumns(species spectrum.Species) (ColumnMap, error) {
	m, ok := burstColumns[species]
	if !ok {
		return ColumnMap{}, fmt.Errorf("%w: unknown species %q", spectrum.ErrValidation, string(species))
	}
	return m, nil
}
