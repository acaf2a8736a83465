package series

import (
	"fmt"
	"sort"
	"time"

	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

// Pairs is the result of FindClosest.
type Pairs struct {
	T1, T2     []time.Time // Retained instants of each series
	Idx1, Idx2 []int       // Their indices into the original series
}

// FindClosest finds the instants of two sorted time axes that are mutually
// closest to each other. Instants of t1 that are never the nearest
// neighbour of an instant of t2 are dropped first, then those of t2, until
// every retained instant is chosen by the other axis.
func FindClosest(t1, t2 []time.Time) (*Pairs, error) {
	if len(t1) == 0 || len(t2) == 0 {
		return nil, fmt.Errorf("%w: both time axes must be non-empty", spectrum.ErrValidation)
	}

	idx1 := make([]int, len(t1))
	for i := range idx1 {
		idx1[i] = i
	}
	idx2 := make([]int, len(t2))
	for i := range idx2 {
		idx2[i] = i
	}

	for {
		cur1 := pick(t1, idx1)
		cur2 := pick(t2, idx2)

		chosen1 := make([]bool, len(cur1))
		for _, t := range cur2 {
			chosen1[nearest(cur1, t)] = true
		}
		chosen2 := make([]bool, len(cur2))
		for _, t := range cur1 {
			chosen2[nearest(cur2, t)] = true
		}

		if kept := keep(idx1, chosen1); len(kept) != len(idx1) {
			idx1 = kept
			continue
		}
		if kept := keep(idx2, chosen2); len(kept) != len(idx2) {
			idx2 = kept
			continue
		}
		break
	}

	return &Pairs{
		T1:   pick(t1, idx1),
		T2:   pick(t2, idx2),
		Idx1: idx1,
		Idx2: idx2,
	}, nil
}

// nearest returns the index of the instant closest to t; ties go to the earlier one.
func nearest(ts []time.Time, t time.Time) int {
	j := sort.Search(len(ts), func(i int) bool { return !ts[i].Before(t) })
	switch {
	case j == 0:
		return 0
	case j == len(ts):
		return len(ts) - 1
	}
	if t.Sub(ts[j-1]) <= ts[j].Sub(t) {
		return j - 1
	}
	return j
}

func pick(ts []time.Time, idx []int) []time.Time {
	out := make([]time.Time, len(idx))
	for i, j := range idx {
		out[i] = ts[j]
	}
	return out
}

func keep(idx []int, flags []bool) []int {
	out := make([]int, 0, len(idx))
	for i, ok := range flags {
		if ok {
			out = append(out, idx[i])
		}
	}
	return out
}
