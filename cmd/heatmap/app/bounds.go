package app

import "math"

const (
	defaultMinFlux = 0.0 // log10
	defaultMaxFlux = 6.0 // log10

	binsPerDecade = 10

	// For 20 samples:
	// - 5% percentile  = 1 sample
	// - 95% percentile = 19th sample
	minimumSampleCount = 20

	minimumRange = 1.0 // decades
)

// FluxBounds represents the colour scale limits, in log10 of the flux unit.
type FluxBounds struct {
	Min  float64 // 5th percentile
	Max  float64 // 95th percentile
	Mean float64
}

func defaultFluxBounds() FluxBounds {
	return FluxBounds{
		Min:  defaultMinFlux,
		Max:  defaultMaxFlux,
		Mean: (defaultMinFlux + defaultMaxFlux) / 2,
	}
}

// FluxHistogram maintains a histogram of log10 flux values with
// 1/binsPerDecade decade bins.
type FluxHistogram struct {
	bins       map[int]uint32
	totalCount uint64
	minBin     int
	maxBin     int
}

// NewFluxHistogram creates a new histogram
func NewFluxHistogram() *FluxHistogram {
	return &FluxHistogram{
		bins:   make(map[int]uint32),
		minBin: math.MaxInt32,
		maxBin: math.MinInt32,
	}
}

func getBinIndex(logFlux float64) int {
	return int(math.Floor(logFlux * binsPerDecade))
}

func binValue(bin int) float64 {
	return float64(bin) / binsPerDecade
}

// Update adds a log10 flux value to the histogram. nil is ignored.
func (h *FluxHistogram) Update(logFlux *float64) {
	if logFlux == nil {
		return
	}

	bin := getBinIndex(*logFlux)
	if h.bins[bin] == math.MaxUint32 {
		return // saturated, percentiles no longer move
	}

	h.bins[bin]++
	h.totalCount++

	h.minBin = min(h.minBin, bin)
	h.maxBin = max(h.maxBin, bin)
}

// Count returns the number of values added.
func (h *FluxHistogram) Count() uint64 {
	return h.totalCount
}

// Bounds returns colour scale limits based on the 5th and 95th percentiles,
// widened to at least one decade and padded by 10%.
func (h *FluxHistogram) Bounds() FluxBounds {
	if h.totalCount < minimumSampleCount {
		return defaultFluxBounds()
	}

	target5th := h.totalCount * 5 / 100

	var count uint64
	var min5th, max95th int

	for bin := h.minBin; bin <= h.maxBin; bin++ {
		count += uint64(h.bins[bin])
		if count >= target5th {
			min5th = bin
			break
		}
	}

	count = 0
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		count += uint64(h.bins[bin])
		if count >= target5th {
			max95th = bin
			break
		}
	}

	var sumProduct float64
	for bin, n := range h.bins {
		sumProduct += binValue(bin) * float64(n)
	}
	mean := sumProduct / float64(h.totalCount)

	lo, hi := binValue(min5th), binValue(max95th+1)
	if hi-lo < minimumRange {
		center := (hi + lo) / 2
		lo, hi = center-minimumRange/2, center+minimumRange/2
	}

	margin := (hi - lo) / 10
	return FluxBounds{
		Min:  lo - margin,
		Max:  hi + margin,
		Mean: mean,
	}
}
