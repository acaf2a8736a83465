package feeps

import (
	"fmt"
	"time"

	"github.com/golang/geo/r3"

	"github.com/roman-kulish/particle-spectra/internal/series"
	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

// PitchAngles holds the pitch angle seen by every sensor column over time.
type PitchAngles struct {
	Time   []time.Time
	Angles spectrum.Grid // [time x column], degrees
	Attrs  spectrum.Attrs
}

// PitchAngleSource computes per-sensor pitch angles for a dataset.
type PitchAngleSource interface {
	PitchAngles(ds *spectrum.Dataset, field *series.Vector) (*PitchAngles, error)
}

// LookDirections are the body-frame look unit vectors of every column of a
// layout. Particles enter a sensor against its look direction, so the pitch
// angle is measured between -look and B.
type LookDirections []r3.Vector

func (l LookDirections) PitchAngles(ds *spectrum.Dataset, field *series.Vector) (*PitchAngles, error) {
	if len(l) == 0 {
		return nil, fmt.Errorf("%w: no look directions", spectrum.ErrValidation)
	}
	if field == nil || field.Len() == 0 {
		return nil, fmt.Errorf("%w: empty magnetic field", spectrum.ErrValidation)
	}

	ids := ds.Eyes.IDs()
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: dataset has no eyes", spectrum.ErrInconsistentInput)
	}
	ref := ds.Eyes[ids[0]].Time

	b, err := field.Resample(ref)
	if err != nil {
		return nil, fmt.Errorf("resampling magnetic field: %w", err)
	}

	angles := spectrum.NewGrid(len(ref), len(l))
	for t, bt := range b.Data {
		if bt.Norm() == 0 {
			continue
		}
		for c, look := range l {
			if look.Norm() == 0 {
				continue
			}
			angles.Set(t, c, spectrum.FromFloat(look.Mul(-1).Angle(bt).Degrees()))
		}
	}

	return &PitchAngles{
		Time:   b.Time,
		Angles: angles,
		Attrs:  ds.Attrs.Clone(),
	}, nil
}
