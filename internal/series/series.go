// Package series implements the time-series algebra used around the particle
// pipeline: vector and scalar series, resampling, cross products, time
// derivatives, increments and nearest-time pairing.
package series

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/golang/geo/r3"

	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

const (
	// AttrTensorOrder is the tensor order marker of a series.
	AttrTensorOrder = "TENSOR_ORDER"

	// AttrUnits holds the unit string of a series.
	AttrUnits = "UNITS"
)

// Scalar is a time series of scalar measurements.
type Scalar struct {
	Time  []time.Time
	Data  []spectrum.Value
	Attrs spectrum.Attrs
}

// NewScalar builds a scalar series. Inputs are copied; the tensor order is set to 0.
func NewScalar(t []time.Time, data []spectrum.Value, attrs spectrum.Attrs) (*Scalar, error) {
	if len(t) != len(data) {
		return nil, fmt.Errorf("%w: time and data must have the same length (%d != %d)", spectrum.ErrInconsistentInput, len(t), len(data))
	}
	return &Scalar{
		Time:  slices.Clone(t),
		Data:  slices.Clone(data),
		Attrs: withTensorOrder(attrs, 0),
	}, nil
}

func (s *Scalar) Len() int {
	return len(s.Time)
}

// Vector is a time series of 3-component vectors.
type Vector struct {
	Time  []time.Time
	Data  []r3.Vector
	Attrs spectrum.Attrs
}

// NewVector builds a vector series. Inputs are copied; the tensor order is set to 1.
func NewVector(t []time.Time, data []r3.Vector, attrs spectrum.Attrs) (*Vector, error) {
	if len(t) != len(data) {
		return nil, fmt.Errorf("%w: time and data must have the same length (%d != %d)", spectrum.ErrInconsistentInput, len(t), len(data))
	}
	return &Vector{
		Time:  slices.Clone(t),
		Data:  slices.Clone(data),
		Attrs: withTensorOrder(attrs, 1),
	}, nil
}

func (v *Vector) Len() int {
	return len(v.Time)
}

// Norm returns the magnitude of every vector.
func (v *Vector) Norm() *Scalar {
	data := make([]spectrum.Value, len(v.Data))
	for i, d := range v.Data {
		data[i] = spectrum.FromFloat(d.Norm())
	}
	return &Scalar{Time: slices.Clone(v.Time), Data: data, Attrs: withTensorOrder(v.Attrs, 0)}
}

// Resample linearly interpolates the series onto the given time axis.
// Times outside the series are clamped to the first or last sample.
func (v *Vector) Resample(t []time.Time) (*Vector, error) {
	if v.Len() == 0 {
		return nil, fmt.Errorf("%w: cannot resample an empty series", spectrum.ErrValidation)
	}

	out := make([]r3.Vector, len(t))
	for i, ti := range t {
		j, w := locate(v.Time, ti)
		if w == 0 {
			out[i] = v.Data[j]
			continue
		}
		out[i] = v.Data[j].Mul(1 - w).Add(v.Data[j+1].Mul(w))
	}
	return &Vector{Time: slices.Clone(t), Data: out, Attrs: v.Attrs.Clone()}, nil
}

// Resample linearly interpolates the series onto the given time axis.
// "No data" on either neighbour yields "no data".
func (s *Scalar) Resample(t []time.Time) (*Scalar, error) {
	if s.Len() == 0 {
		return nil, fmt.Errorf("%w: cannot resample an empty series", spectrum.ErrValidation)
	}

	out := make([]spectrum.Value, len(t))
	for i, ti := range t {
		j, w := locate(s.Time, ti)
		if w == 0 {
			out[i] = s.Data[j]
			continue
		}
		a, aOK := s.Data[j].Get()
		b, bOK := s.Data[j+1].Get()
		if !aOK || !bOK {
			out[i] = spectrum.NoData
			continue
		}
		out[i] = spectrum.Of(a*(1-w) + b*w)
	}
	return &Scalar{Time: slices.Clone(t), Data: out, Attrs: s.Attrs.Clone()}, nil
}

// locate returns the index j of the sample at or before t and the
// interpolation weight towards j+1.
func locate(ts []time.Time, t time.Time) (int, float64) {
	n := len(ts)
	if !t.After(ts[0]) {
		return 0, 0
	}
	if !t.Before(ts[n-1]) {
		return n - 1, 0
	}
	j := sort.Search(n, func(i int) bool { return ts[i].After(t) }) - 1
	span := ts[j+1].Sub(ts[j])
	return j, float64(t.Sub(ts[j])) / float64(span)
}

func withTensorOrder(attrs spectrum.Attrs, order int) spectrum.Attrs {
	out := attrs.Clone()
	if out == nil {
		out = make(spectrum.Attrs)
	}
	out[AttrTensorOrder] = order
	return out
}

func sameTime(a, b []time.Time) bool {
	return slices.EqualFunc(a, b, time.Time.Equal)
}
