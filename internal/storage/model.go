package storage

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

const (
	ProductOmni ProductKind = "omni"
	ProductPAD  ProductKind = "pad"
)

// DatasetInfo describes a stored dataset without its samples.
type DatasetInfo struct {
	ID         int64
	CreatedAt  time.Time
	Spacecraft int
	Species    spectrum.Species
	Mode       spectrum.Mode
	Source     string
	Attrs      spectrum.Attrs
}

// Channel is one calibrated energy channel of an eye.
type Channel struct {
	Eye    spectrum.EyeID
	Index  int
	Energy spectrum.Value // keV
}

// EyeSample is the flux recorded by one eye at one instant, one value per
// channel.
type EyeSample struct {
	Time time.Time
	Eye  spectrum.EyeID
	Flux []spectrum.Value
}

// SpinSample is the spin sector reported at one sample time.
type SpinSample struct {
	Time   time.Time
	Sector int
}

// ProductKind names the derived product stored in a products row.
type ProductKind string

// Product is a derived [time x bin] grid: an omni spectrum (bins are energies
// in keV) or a pitch-angle distribution (bins are pitch angles in degrees).
type Product struct {
	ID        int64
	RunID     uuid.UUID
	DatasetID int64
	Kind      ProductKind
	CreatedAt time.Time
	Time      []time.Time
	Bins      []float64
	Flux      spectrum.Grid
	Attrs     spectrum.Attrs
}

type productAxis struct {
	Bins  []float64 `json:"bins"`
	Units string    `json:"units"`
}

// BinUnits returns the unit of the bin axis of a product kind.
func (k ProductKind) BinUnits() string {
	if k == ProductPAD {
		return "deg"
	}
	return "keV"
}

// NewOmniProduct wraps an omni spectrum for storage.
func NewOmniProduct(runID uuid.UUID, datasetID int64, o *spectrum.Omni) *Product {
	return &Product{
		RunID:     runID,
		DatasetID: datasetID,
		Kind:      ProductOmni,
		Time:      slices.Clone(o.Time),
		Bins:      slices.Clone(o.Energies),
		Flux:      o.Flux.Clone(),
		Attrs:     o.Attrs.Clone(),
	}
}

// NewPADProduct wraps a pitch-angle distribution for storage.
func NewPADProduct(runID uuid.UUID, datasetID int64, p *spectrum.PAD) *Product {
	return &Product{
		RunID:     runID,
		DatasetID: datasetID,
		Kind:      ProductPAD,
		Time:      slices.Clone(p.Time),
		Bins:      slices.Clone(p.PitchAngles),
		Flux:      p.Flux.Clone(),
		Attrs:     p.Attrs.Clone(),
	}
}

// Omni converts an omni product back to a spectrum.
func (p *Product) Omni() (*spectrum.Omni, error) {
	if p.Kind != ProductOmni {
		return nil, fmt.Errorf("%w: product %d is %q, not %q", spectrum.ErrValidation, p.ID, p.Kind, ProductOmni)
	}
	return &spectrum.Omni{
		Time:     slices.Clone(p.Time),
		Energies: slices.Clone(p.Bins),
		Flux:     p.Flux.Clone(),
		Attrs:    p.Attrs.Clone(),
	}, nil
}

// PAD converts a pitch-angle product back to a distribution.
func (p *Product) PAD() (*spectrum.PAD, error) {
	if p.Kind != ProductPAD {
		return nil, fmt.Errorf("%w: product %d is %q, not %q", spectrum.ErrValidation, p.ID, p.Kind, ProductPAD)
	}
	return &spectrum.PAD{
		Time:        slices.Clone(p.Time),
		PitchAngles: slices.Clone(p.Bins),
		Flux:        p.Flux.Clone(),
		Attrs:       p.Attrs.Clone(),
	}, nil
}

func (p *Product) validate() error {
	if p.Kind != ProductOmni && p.Kind != ProductPAD {
		return fmt.Errorf("%w: unknown product kind %q", spectrum.ErrValidation, p.Kind)
	}
	if p.Flux.Rows() != len(p.Time) || p.Flux.Cols() != len(p.Bins) {
		return fmt.Errorf("%w: product grid is %dx%d for %d times and %d bins",
			spectrum.ErrInconsistentInput, p.Flux.Rows(), p.Flux.Cols(), len(p.Time), len(p.Bins))
	}
	return nil
}
