package ingest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang/geo/r3"

	"github.com/roman-kulish/particle-spectra/internal/series"
	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

type fieldSample struct {
	t time.Time
	b r3.Vector
}

// ParseFieldLine parses "timestamp,bx,by,bz". ok is false when a component
// is missing; such rows are dropped, vector series carry no gaps.
func ParseFieldLine(line string) (t time.Time, b r3.Vector, ok bool, err error) {
	fields := strings.Split(line, ",")
	if len(fields) < 4 {
		return t, b, false, fmt.Errorf("%w: %d fields, want 4", ErrMalformedLine, len(fields))
	}

	if t, err = time.Parse(time.RFC3339Nano, strings.TrimSpace(fields[0])); err != nil {
		return t, b, false, fmt.Errorf("%w: invalid timestamp: %w", ErrMalformedLine, err)
	}
	t = t.UTC()

	var comps [3]spectrum.Value
	for i := range comps {
		if comps[i], err = parseFlux(fields[i+1]); err != nil {
			return t, b, false, fmt.Errorf("%w: invalid field component %d: %w", ErrMalformedLine, i, err)
		}
	}
	if !comps[0].Valid || !comps[1].Valid || !comps[2].Valid {
		return t, b, false, nil
	}
	return t, r3.Vector{X: comps[0].Float64, Y: comps[1].Float64, Z: comps[2].Float64}, true, nil
}

// ReadField reads a magnetic field export into a time-ordered series. Later
// duplicates of a timestamp win.
func (r *Reader) ReadField(ctx context.Context) (*series.Vector, error) {
	var samples []fieldSample
	err := r.scan(ctx, func(line string) error {
		t, b, ok, err := ParseFieldLine(line)
		if err != nil || !ok {
			return err
		}
		samples = append(samples, fieldSample{t: t, b: b})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no magnetic field samples in %s", spectrum.ErrValidation, r.source)
	}

	slices.SortStableFunc(samples, func(a, b fieldSample) int {
		return a.t.Compare(b.t)
	})

	times := make([]time.Time, 0, len(samples))
	data := make([]r3.Vector, 0, len(samples))
	for _, s := range samples {
		if n := len(times); n > 0 && times[n-1].Equal(s.t) {
			data[n-1] = s.b
			continue
		}
		times = append(times, s.t)
		data = append(data, s.b)
	}

	return series.NewVector(times, data, spectrum.Attrs{series.AttrUnits: "nT"})
}
