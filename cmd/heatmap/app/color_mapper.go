package app

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorTheme represents a predefined color scheme for flux visualization.
type ColorTheme string

const (
	DefaultTheme   ColorTheme = "default"   // Black to blue to yellow to red
	ClassicTheme   ColorTheme = "classic"   // Blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // Black to white transition
	JungleTheme    ColorTheme = "jungle"    // Dark green to yellow transition
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white
	AuroraTheme    ColorTheme = "aurora"    // Perceptual blend, violet to pale yellow

	DefaultColorMapSize = 256
)

var validThemes = map[ColorTheme]struct{}{
	DefaultTheme:   {},
	ClassicTheme:   {},
	GrayscaleTheme: {},
	JungleTheme:    {},
	ThermalTheme:   {},
	MarineTheme:    {},
	AuroraTheme:    {},
}

// NoDataColor marks cells without a measurement.
var NoDataColor color.Color = color.Black

var (
	auroraLow  = colorful.Color{R: 0.114, G: 0.067, B: 0.278}
	auroraHigh = colorful.Color{R: 0.988, G: 0.992, B: 0.749}
)

// ColorMapper maps log10 flux to colors through a pre-computed table.
type ColorMapper struct {
	colorMap     []color.Color
	theme        func(float64) colorful.Color
	size         int
	fluxPerIndex float64
	bounds       FluxBounds
}

// NewColorMapper creates a mapper with the default table size.
func NewColorMapper(theme ColorTheme, bounds FluxBounds) *ColorMapper {
	cm := &ColorMapper{
		colorMap: make([]color.Color, DefaultColorMapSize),
		theme:    getColorTheme(theme),
		size:     DefaultColorMapSize,
	}
	cm.UpdateBounds(bounds)
	return cm
}

// UpdateBounds updates the flux bounds and recomputes the color map
func (cm *ColorMapper) UpdateBounds(bounds FluxBounds) {
	cm.bounds = bounds
	cm.fluxPerIndex = (bounds.Max - bounds.Min) / float64(cm.size-1)

	for i := 0; i < cm.size; i++ {
		cm.colorMap[i] = cm.theme(float64(i) / float64(cm.size-1)).Clamped()
	}
}

// GetColor returns the color of a log10 flux value.
func (cm *ColorMapper) GetColor(logFlux *float64) color.Color {
	if logFlux == nil {
		return NoDataColor
	}
	if cm.fluxPerIndex <= 0 {
		return cm.colorMap[cm.size/2]
	}

	index := int((*logFlux - cm.bounds.Min) / cm.fluxPerIndex)
	if index < 0 {
		return cm.colorMap[0]
	}
	if index >= cm.size {
		return cm.colorMap[cm.size-1]
	}
	return cm.colorMap[index]
}

// Ramp returns the color of a normalized [0, 1] position, for legends.
func (cm *ColorMapper) Ramp(p float64) color.Color {
	i := int(math.Round(math.Max(0, math.Min(1, p)) * float64(cm.size-1)))
	return cm.colorMap[i]
}

func getColorTheme(theme ColorTheme) func(float64) colorful.Color {
	switch theme {
	case ClassicTheme:
		return func(p float64) colorful.Color {
			return colorful.Hsv(240-(p*240), 0.9+(p*0.1), math.Pow(p, 0.7))
		}

	case GrayscaleTheme:
		return func(p float64) colorful.Color {
			v := math.Pow(p, 0.7)
			return colorful.Color{R: v, G: v, B: v}
		}

	case JungleTheme:
		return func(p float64) colorful.Color {
			return colorful.Hsv(120-(p*60), 1, 0.3+(math.Pow(p, 0.6)*0.7))
		}

	case ThermalTheme:
		return func(p float64) colorful.Color {
			switch {
			case p < 0.33:
				return colorful.Color{R: p * 3}
			case p < 0.66:
				return colorful.Color{R: 1, G: (p - 0.33) * 3}
			default:
				return colorful.Color{R: 1, G: 1, B: (p - 0.66) * 3}
			}
		}

	case MarineTheme:
		return func(p float64) colorful.Color {
			return colorful.Hsv(240-(p*60), 1-(p*0.8), 0.3+(math.Pow(p, 0.6)*0.7))
		}

	case AuroraTheme:
		return func(p float64) colorful.Color {
			return auroraLow.BlendHcl(auroraHigh, p)
		}

	default:
		return func(p float64) colorful.Color {
			enhanced := math.Pow(p, 0.7)

			switch {
			case p < 0.25:
				return colorful.Hsv(240, 1, math.Min(1, enhanced*4))
			case p < 0.5:
				return colorful.Hsv(240-((p-0.25)*240), 1, math.Min(1, enhanced*1.5))
			case p < 0.75:
				return colorful.Hsv(180-((p-0.5)*4*120), 1, math.Min(1, enhanced*1.5))
			default:
				return colorful.Hsv(60-((p-0.75)*4*60), 1, 1)
			}
		}
	}
}
