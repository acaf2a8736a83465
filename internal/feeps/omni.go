package feeps

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"

	"github.com/roman-kulish/particle-spectra/internal/calibration"
	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

// energyTolerance is the largest relative deviation between a sensor's
// calibrated channel and the canonical omni channel that is still fused.
const energyTolerance = 0.10

type omniConfig struct {
	logger *slog.Logger
}

// OmniOption configures Omni and CalcOmni.
type OmniOption func(*omniConfig)

// WithOmniLogger sets the logger receiving diagnostics about skipped eyes.
func WithOmniLogger(logger *slog.Logger) OmniOption {
	return func(c *omniConfig) {
		c.logger = logger
	}
}

func newOmniConfig(options []OmniOption) *omniConfig {
	c := &omniConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Omni fuses the differential spectra of all eyes into one omnidirectional
// spectrum on the canonical energy table. A channel whose calibrated energy
// deviates from the canonical one by more than 10% is left out for that eye;
// the remaining eyes are averaged and scaled by the omni gain factor.
func Omni(eyes spectrum.EyeSet, species spectrum.Species, spacecraft int, options ...OmniOption) (*spectrum.Omni, error) {
	cfg := newOmniConfig(options)

	canonical, err := calibration.OmniEnergies(species, spacecraft)
	if err != nil {
		return nil, fmt.Errorf("resolving omni energies: %w", err)
	}
	gain, err := calibration.GainFactor(species, spacecraft)
	if err != nil {
		return nil, fmt.Errorf("resolving gain factor: %w", err)
	}

	ids := eyes.IDs()
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no eyes to fuse", spectrum.ErrInconsistentInput)
	}

	first := eyes[ids[0]]
	times := len(first.Time)
	channels := len(canonical)
	for _, id := range ids {
		eye := eyes[id]
		if err = eye.Validate(); err != nil {
			return nil, err
		}
		if len(eye.Time) != times {
			return nil, fmt.Errorf("%w: eye %s has %d samples, expected %d", spectrum.ErrInconsistentInput, id, len(eye.Time), times)
		}
		if len(eye.Energies) != channels {
			return nil, fmt.Errorf("%w: eye %s has %d channels, expected %d", spectrum.ErrInconsistentInput, id, len(eye.Energies), channels)
		}
	}

	// stack[t][ch] collects the contributions of every eye.
	stack := make([][][]spectrum.Value, times)
	for t := range stack {
		stack[t] = make([][]spectrum.Value, channels)
	}

	var fused int
	for _, id := range ids {
		eye := eyes[id]
		if spectrum.AllMissing(eye.Energies) {
			cfg.logger.Debug("skipping eye", slog.String("eye", id.String()), slog.Any("reason", spectrum.ErrMissingCalibration))
			continue
		}

		keep := make([]bool, channels)
		for ch, e := range eye.Energies {
			keep[ch] = withinTolerance(e, canonical[ch])
		}
		for t := range times {
			for ch := range channels {
				if keep[ch] {
					stack[t][ch] = append(stack[t][ch], eye.Flux.At(t, ch))
				}
			}
		}
		fused++
	}

	flux := spectrum.NewGrid(times, channels)
	for t := range times {
		for ch := range channels {
			flux.Set(t, ch, spectrum.Mean(stack[t][ch]).Scale(gain))
		}
	}

	cfg.logger.Debug("fused omni spectrum",
		slog.Int("eyes", len(ids)),
		slog.Int("fused", fused),
		slog.Int("samples", times),
		slog.Float64("gain", gain))

	return &spectrum.Omni{
		Time:     slices.Clone(first.Time),
		Energies: canonical,
		Flux:     flux,
		Attrs:    first.Attrs.Clone(),
	}, nil
}

func withinTolerance(measured spectrum.Value, canonical float64) bool {
	e, ok := measured.Get()
	if !ok {
		return false
	}
	return math.Abs(e-canonical) <= energyTolerance*canonical
}

// CalcOmni runs the whole omni pipeline over a raw dataset: the integral
// channel is split off, sun-contaminated samples are removed and the
// remaining eyes are fused.
func CalcOmni(ds *spectrum.Dataset, mask SunMask, options ...OmniOption) (*spectrum.Omni, error) {
	clean, _, err := SplitIntegralChannel(ds)
	if err != nil {
		return nil, fmt.Errorf("splitting integral channel: %w", err)
	}

	if len(mask) > 0 {
		if len(ds.SpinSector) == 0 {
			return nil, fmt.Errorf("%w: sun mask given but dataset has no spin sectors", spectrum.ErrInconsistentInput)
		}
		if clean, err = RemoveSun(clean, ds.SpinSector, mask); err != nil {
			return nil, fmt.Errorf("removing sun contamination: %w", err)
		}
	}

	return Omni(clean, ds.Species, ds.Spacecraft, options...)
}
