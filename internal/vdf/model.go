package vdf

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/soniakeys/unit"

	"github.com/roman-kulish/particle-spectra/internal/series"
	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

const (
	elementaryCharge = 1.602176634e-19 // C
	protonMass       = series.ProtonMass
	electronMass     = series.ElectronMass
)

// Moments are the plasma moments a model distribution is built from. Every
// series is resampled onto the distribution's time axis.
type Moments struct {
	Density   *series.Scalar // cm^-3
	Bulk      *series.Vector // km/s
	Field     *series.Vector // direction only
	TempPara  *series.Scalar // eV
	TempPerp  *series.Scalar // eV
	Potential *series.Scalar // spacecraft potential, V
}

type sample struct {
	n, tPara, tPerp, pot float64
	v, b                 r3.Vector
	ok                   bool
}

func (m Moments) resample(d *Distribution) ([]sample, error) {
	if m.Density == nil || m.Bulk == nil || m.Field == nil || m.TempPara == nil || m.TempPerp == nil || m.Potential == nil {
		return nil, fmt.Errorf("%w: incomplete moments", spectrum.ErrValidation)
	}

	n, err := m.Density.Resample(d.Time)
	if err != nil {
		return nil, fmt.Errorf("resampling density: %w", err)
	}
	v, err := m.Bulk.Resample(d.Time)
	if err != nil {
		return nil, fmt.Errorf("resampling bulk velocity: %w", err)
	}
	b, err := m.Field.Resample(d.Time)
	if err != nil {
		return nil, fmt.Errorf("resampling magnetic field: %w", err)
	}
	tPara, err := m.TempPara.Resample(d.Time)
	if err != nil {
		return nil, fmt.Errorf("resampling parallel temperature: %w", err)
	}
	tPerp, err := m.TempPerp.Resample(d.Time)
	if err != nil {
		return nil, fmt.Errorf("resampling perpendicular temperature: %w", err)
	}
	pot, err := m.Potential.Resample(d.Time)
	if err != nil {
		return nil, fmt.Errorf("resampling spacecraft potential: %w", err)
	}

	out := make([]sample, len(d.Time))
	for i := range out {
		s := sample{v: v.Data[i], b: b.Data[i]}
		var okN, okPara, okPerp, okPot bool
		s.n, okN = n.Data[i].Get()
		s.tPara, okPara = tPara.Data[i].Get()
		s.tPerp, okPerp = tPerp.Data[i].Get()
		s.pot, okPot = pot.Data[i].Get()
		s.ok = okN && okPara && okPerp && okPot && s.tPara > 0 && s.tPerp > 0 && s.b.Norm() > 0
		out[i] = s
	}
	return out, nil
}

// BiMaxwellian builds a gyrotropic bi-Maxwellian distribution on the
// energy-angle grid of d from the given moments. The result is expressed in
// the units of d; times with incomplete moments are NaN.
func BiMaxwellian(d *Distribution, m Moments) (*Distribution, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	toSI, err := siFactor(d.Units)
	if err != nil {
		return nil, err
	}

	mass := protonMass
	potSign := -1.0
	if d.Species == spectrum.Electron {
		mass = electronMass
		potSign = 1
	}

	samples, err := m.resample(d)
	if err != nil {
		return nil, err
	}

	out := d.Clone()
	for t, s := range samples {
		if !s.ok {
			out.fillTime(t, math.NaN())
			continue
		}

		bDir := s.b.Normalize()
		vPara := s.v.Dot(bDir) * 1e3
		vPerp := s.v.Sub(bDir.Mul(s.v.Dot(bDir)))
		vPerpMag := vPerp.Norm() * 1e3
		xDir := bDir.Ortho()
		if vPerp.Norm() > 0 {
			xDir = vPerp.Normalize()
		}
		yDir := bDir.Cross(xDir)

		ratio := s.tPara / s.tPerp
		vth := math.Sqrt(2 * s.tPara * elementaryCharge / mass)
		coeff := s.n * 1e6 * ratio / (math.Pow(math.Pi, 1.5) * vth * vth * vth)

		for e, energy := range d.Energy[t] {
			speed := math.NaN()
			if kinetic := energy - potSign*s.pot; kinetic >= 0 {
				speed = math.Sqrt(2 * kinetic * elementaryCharge / mass)
			}
			for a, phi := range d.Phi[t] {
				for k, theta := range d.Theta {
					dir := lookVector(unit.AngleFromDeg(phi), unit.AngleFromDeg(theta))
					x := dir.Dot(xDir)*speed - vPerpMag
					y := dir.Dot(yDir) * speed
					z := dir.Dot(bDir)*speed - vPara
					f := coeff * math.Exp(-(x*x+y*y)*ratio/(vth*vth)-z*z/(vth*vth))
					out.Data[t][e][a][k] = f / toSI
				}
			}
		}
	}
	return out, nil
}

// lookVector returns the propagation direction of particles seen at the
// given azimuth and elevation.
func lookVector(phi, theta unit.Angle) r3.Vector {
	return r3.Vector{
		X: -phi.Cos() * theta.Sin(),
		Y: -phi.Sin() * theta.Sin(),
		Z: -theta.Cos(),
	}
}

func (d *Distribution) fillTime(t int, v float64) {
	for _, azimuths := range d.Data[t] {
		for _, elevations := range azimuths {
			for k := range elevations {
				elevations[k] = v
			}
		}
	}
}
