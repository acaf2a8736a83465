package series

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/golang/geo/r3"

	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

// Physical constants in SI units.
const (
	ProtonMass   = 1.67262192369e-27 // kg
	ElectronMass = 9.1093837015e-31  // kg
)

// Cross returns a x b. When the series are not on the same time axis b is
// resampled onto a's. The result carries only the tensor order attribute.
func Cross(a, b *Vector) (*Vector, error) {
	if a.Len() == 0 {
		return nil, fmt.Errorf("%w: empty series", spectrum.ErrValidation)
	}
	if !sameTime(a.Time, b.Time) {
		var err error
		if b, err = b.Resample(a.Time); err != nil {
			return nil, fmt.Errorf("resampling second operand: %w", err)
		}
	}

	out := make([]r3.Vector, a.Len())
	for i := range a.Data {
		out[i] = a.Data[i].Cross(b.Data[i])
	}
	return NewVector(a.Time, out, nil)
}

// Dot returns a . b, resampling b onto a's time axis when needed.
func Dot(a, b *Vector) (*Scalar, error) {
	if a.Len() == 0 {
		return nil, fmt.Errorf("%w: empty series", spectrum.ErrValidation)
	}
	if !sameTime(a.Time, b.Time) {
		var err error
		if b, err = b.Resample(a.Time); err != nil {
			return nil, fmt.Errorf("resampling second operand: %w", err)
		}
	}

	out := make([]spectrum.Value, a.Len())
	for i := range a.Data {
		out[i] = spectrum.FromFloat(a.Data[i].Dot(b.Data[i]))
	}
	return NewScalar(a.Time, out, nil)
}

// SamplingStep returns the median spacing of a time axis in seconds.
func SamplingStep(t []time.Time) (float64, error) {
	if len(t) < 2 {
		return 0, fmt.Errorf("%w: at least two samples are needed to estimate the sampling step", spectrum.ErrValidation)
	}
	steps := make([]float64, len(t)-1)
	for i := 1; i < len(t); i++ {
		steps[i-1] = t[i].Sub(t[i-1]).Seconds()
	}
	slices.Sort(steps)
	n := len(steps)
	if n%2 == 1 {
		return steps[n/2], nil
	}
	return (steps[n/2-1] + steps[n/2]) / 2, nil
}

// Gradient returns the time derivative of a vector series using central
// differences inside and one-sided differences at the edges, divided by the
// median sampling step. "/s" is appended to the unit attribute.
func Gradient(v *Vector) (*Vector, error) {
	dt, err := SamplingStep(v.Time)
	if err != nil {
		return nil, err
	}

	n := v.Len()
	out := make([]r3.Vector, n)
	out[0] = v.Data[1].Sub(v.Data[0]).Mul(1 / dt)
	out[n-1] = v.Data[n-1].Sub(v.Data[n-2]).Mul(1 / dt)
	for i := 1; i < n-1; i++ {
		out[i] = v.Data[i+1].Sub(v.Data[i-1]).Mul(0.5 / dt)
	}

	return &Vector{Time: slices.Clone(v.Time), Data: out, Attrs: derivativeAttrs(v.Attrs)}, nil
}

// ScalarGradient is Gradient for scalar series. A central difference touching
// "no data" yields "no data".
func ScalarGradient(s *Scalar) (*Scalar, error) {
	dt, err := SamplingStep(s.Time)
	if err != nil {
		return nil, err
	}

	diff := func(i, j int, scale float64) spectrum.Value {
		a, aOK := s.Data[i].Get()
		b, bOK := s.Data[j].Get()
		if !aOK || !bOK {
			return spectrum.NoData
		}
		return spectrum.Of((b - a) * scale)
	}

	n := s.Len()
	out := make([]spectrum.Value, n)
	out[0] = diff(0, 1, 1/dt)
	out[n-1] = diff(n-2, n-1, 1/dt)
	for i := 1; i < n-1; i++ {
		out[i] = diff(i-1, i+1, 0.5/dt)
	}

	return &Scalar{Time: slices.Clone(s.Time), Data: out, Attrs: derivativeAttrs(s.Attrs)}, nil
}

func derivativeAttrs(attrs spectrum.Attrs) spectrum.Attrs {
	out := attrs.Clone()
	if units, ok := out[AttrUnits].(string); ok {
		out[AttrUnits] = units + "/s"
	}
	return out
}

// Increments returns |x[i+scale] - x[i]| per component together with the
// kurtosis (Pearson definition, 3 for a normal distribution) of each component.
func Increments(v *Vector, scale int) ([3]float64, *Vector, error) {
	var kurt [3]float64
	if scale <= 0 || scale >= v.Len() {
		return kurt, nil, fmt.Errorf("%w: scale %d outside [1, %d)", spectrum.ErrValidation, scale, v.Len())
	}

	n := v.Len() - scale
	out := make([]r3.Vector, n)
	for i := range n {
		d := v.Data[i+scale].Sub(v.Data[i])
		out[i] = r3.Vector{X: math.Abs(d.X), Y: math.Abs(d.Y), Z: math.Abs(d.Z)}
	}

	components := [3]func(r3.Vector) float64{
		func(p r3.Vector) float64 { return p.X },
		func(p r3.Vector) float64 { return p.Y },
		func(p r3.Vector) float64 { return p.Z },
	}
	for c, get := range components {
		xs := make([]float64, n)
		for i, p := range out {
			xs[i] = get(p)
		}
		kurt[c] = kurtosis(xs)
	}

	return kurt, &Vector{Time: slices.Clone(v.Time[:n]), Data: out, Attrs: v.Attrs.Clone()}, nil
}

func kurtosis(xs []float64) float64 {
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var m2, m4 float64
	for _, x := range xs {
		d := (x - mean) * (x - mean)
		m2 += d
		m4 += d * d
	}
	m2 /= float64(len(xs))
	m4 /= float64(len(xs))
	if m2 == 0 {
		return math.NaN()
	}
	return m4 / (m2 * m2)
}

// DynamicPressure returns n m |v|^2 in nPa, with n in cm^-3 and v in km/s.
// The velocity is resampled onto the density time axis when needed.
func DynamicPressure(n *Scalar, v *Vector, species spectrum.Species) (*Scalar, error) {
	var mass float64
	switch species {
	case spectrum.Ion:
		mass = ProtonMass
	case spectrum.Electron:
		mass = ElectronMass
	default:
		return nil, fmt.Errorf("%w: unknown species %q", spectrum.ErrValidation, string(species))
	}
	if n.Len() == 0 {
		return nil, fmt.Errorf("%w: empty density series", spectrum.ErrValidation)
	}
	if !sameTime(n.Time, v.Time) {
		var err error
		if v, err = v.Resample(n.Time); err != nil {
			return nil, fmt.Errorf("resampling velocity: %w", err)
		}
	}

	out := make([]spectrum.Value, n.Len())
	for i, d := range n.Data {
		density, ok := d.Get()
		if !ok {
			continue
		}
		speed := v.Data[i].Norm() * 1e3 // m/s
		out[i] = spectrum.FromFloat(density * 1e6 * mass * speed * speed * 1e9)
	}

	attrs := n.Attrs.Clone()
	if attrs == nil {
		attrs = make(spectrum.Attrs)
	}
	attrs[AttrUnits] = "nPa"
	return NewScalar(n.Time, out, attrs)
}
