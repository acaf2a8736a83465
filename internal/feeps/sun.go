package feeps

import (
	"fmt"
	"slices"

	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

// SunMask lists, per eye, the spin sectors in which the sun shines into it.
type SunMask map[spectrum.EyeID][]int

// RemoveSun returns a copy of the eyes where every sample taken in a
// contaminated spin sector is replaced by "no data". Eyes without mask
// entries are copied unchanged.
func RemoveSun(clean spectrum.EyeSet, sectors []int, mask SunMask) (spectrum.EyeSet, error) {
	out := clean.Clone()
	for _, id := range out.IDs() {
		bad := mask[id]
		if len(bad) == 0 {
			continue
		}

		eye := out[id]
		if len(sectors) != len(eye.Time) {
			return nil, fmt.Errorf("%w: eye %s has %d samples for %d spin sectors", spectrum.ErrInconsistentInput, id, len(eye.Time), len(sectors))
		}
		for t, sector := range sectors {
			if !slices.Contains(bad, sector) {
				continue
			}
			for ch := range eye.Flux.Cols() {
				eye.Flux.Set(t, ch, spectrum.NoData)
			}
		}
	}
	return out, nil
}
