package calibration

import (
	"math"

	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

const (
	// SensorChannels is the number of channels in a per-sensor energy table.
	SensorChannels = 16

	// OmniChannels is the number of channels in the fusion table; the highest
	// sensor channel is the integral channel and does not take part.
	OmniChannels = 15

	// MaxSensor is the highest sensor id with a flat-field correction.
	MaxSensor = 12
)

var nan = math.NaN()

// Base channel centers in keV. Sensors 6..8 are ion heads, the rest electron heads.
var (
	electronSensorEnergies = [SensorChannels]float64{
		33.2, 51.9, 70.6, 89.4, 107.1, 125.2, 146.5, 171.3,
		200.2, 234.0, 273.4, 319.4, 373.2, 436.0, 509.2, 575.8,
	}

	ionSensorEnergies = [SensorChannels]float64{
		57.9, 76.8, 95.4, 114.1, 133.0, 153.7, 177.6, 205.1,
		236.7, 273.2, 315.4, 363.8, 419.7, 484.2, 558.6, 609.9,
	}

	electronOmniEnergies = [OmniChannels]float64{
		33.2, 51.9, 70.6, 89.4, 107.1, 125.2, 146.5, 171.3,
		200.2, 234.0, 273.4, 319.4, 373.2, 436.0, 509.2,
	}

	ionOmniEnergies = [OmniChannels]float64{
		57.9, 76.8, 95.4, 114.1, 133.0, 153.7, 177.6, 205.1,
		236.7, 273.2, 315.4, 363.8, 419.7, 484.2, 558.6,
	}
)

// Flat-field corrections in keV per spacecraft and mounting group, indexed
// by sensor id - 1. NaN marks a dead sensor.
var flatField = map[Key][MaxSensor]float64{
	{1, spectrum.Top}:    {14, 7, 16, 14, 14, 0, 0, 0, 14, 14, 17, 15},
	{1, spectrum.Bottom}: {nan, 14, 14, 13, 14, 0, 0, 0, 14, 14, -25, 14},
	{2, spectrum.Top}:    {-1, 6, -2, -1, nan, 0, nan, 0, 4, -1, -1, 0},
	{2, spectrum.Bottom}: {-2, -1, -2, 0, -2, 15, nan, 15, -1, -2, -1, -3},
	{3, spectrum.Top}:    {-3, nan, 2, -1, -5, 0, 0, 0, -3, -1, -3, nan},
	{3, spectrum.Bottom}: {-7, nan, -5, -6, nan, 0, 0, 12, 0, -2, -3, -3},
	{4, spectrum.Top}:    {nan, nan, -2, -5, -5, 0, nan, 0, -1, -3, -6, -6},
	{4, spectrum.Bottom}: {-8, nan, -2, nan, nan, -8, 0, 0, -2, nan, nan, -4},
}

// Unique omni energy offsets per spacecraft, indexed by spacecraft id - 1.
var omniOffsets = map[spectrum.Species][4]float64{
	spectrum.Electron: {14, -1, -3, -3},
	spectrum.Ion:      {0, 0, 0, 0},
}

// Omni gain factors per spacecraft, indexed by spacecraft id - 1.
var gainFactors = map[spectrum.Species][4]float64{
	spectrum.Electron: {1, 1, 1, 1},
	spectrum.Ion:      {0.84, 1, 1, 1},
}
