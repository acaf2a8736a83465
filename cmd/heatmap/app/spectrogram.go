package app

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/roman-kulish/particle-spectra/internal/spectrum"
	"github.com/roman-kulish/particle-spectra/internal/storage"
)

// Spectrogram is a stored product prepared for rendering. Cells hold log10
// flux; nil marks no data, including non-positive flux.
type Spectrogram struct {
	ProductID     int64
	DatasetID     int64
	Kind          storage.ProductKind
	Units         string
	Time          []time.Time
	Bins          []float64
	Cells         [][]*float64 // [time][bin]
	Missing       int
	BoundsTracker *FluxHistogram
}

// NewSpectrogram converts a product grid to log scale.
func NewSpectrogram(p *storage.Product) (*Spectrogram, error) {
	if len(p.Time) == 0 || len(p.Bins) == 0 {
		return nil, fmt.Errorf("%w: product %d is empty", spectrum.ErrValidation, p.ID)
	}

	s := Spectrogram{
		ProductID:     p.ID,
		DatasetID:     p.DatasetID,
		Kind:          p.Kind,
		Units:         p.Kind.BinUnits(),
		Time:          slices.Clone(p.Time),
		Bins:          slices.Clone(p.Bins),
		Cells:         make([][]*float64, len(p.Time)),
		BoundsTracker: NewFluxHistogram(),
	}

	for t := range p.Time {
		row := make([]*float64, len(p.Bins))
		for b := range p.Bins {
			v, ok := p.Flux.At(t, b).Get()
			if !ok || v <= 0 {
				s.Missing++
				continue
			}
			l := math.Log10(v)
			row[b] = &l
			s.BoundsTracker.Update(&l)
		}
		s.Cells[t] = row
	}

	return &s, nil
}

// Width returns the number of time columns.
func (s *Spectrogram) Width() int {
	return len(s.Time)
}

// Height returns the number of bin rows.
func (s *Spectrogram) Height() int {
	return len(s.Bins)
}

// Start returns the first sample time.
func (s *Spectrogram) Start() time.Time {
	return s.Time[0]
}

// End returns the last sample time.
func (s *Spectrogram) End() time.Time {
	return s.Time[len(s.Time)-1]
}
