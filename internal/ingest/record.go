// Package ingest loads line-oriented FEEPS sample exports into storage.
//
// Each non-empty line that does not start with '#' is one eye frame:
//
//	timestamp,position,sensor,spin_sector,flux_0,...,flux_n
//
// The timestamp is RFC 3339 with optional fractional seconds. The spin sector
// may be empty. Empty flux fields, NaN and the fill value -1e31 mean "no data".
package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

// fillValue is the export's fill marker for missing flux.
const fillValue = -1e31

const minFields = 5

// ErrMalformedLine is returned for lines that cannot be parsed.
var ErrMalformedLine = errors.New("malformed line")

// Record is one parsed eye frame.
type Record struct {
	Time       time.Time
	Eye        spectrum.EyeID
	SpinSector *int
	Flux       []spectrum.Value
}

// ParseLine parses a single export line.
func ParseLine(line string) (*Record, error) {
	fields := strings.Split(line, ",")
	if len(fields) < minFields {
		return nil, fmt.Errorf("%w: %d fields, want at least %d", ErrMalformedLine, len(fields), minFields)
	}

	timestamp, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(fields[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid timestamp: %w", ErrMalformedLine, err)
	}

	pos, err := spectrum.ParsePosition(fields[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedLine, err)
	}

	sensor, err := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil || sensor <= 0 {
		return nil, fmt.Errorf("%w: invalid sensor %q", ErrMalformedLine, fields[2])
	}

	rec := Record{
		Time: timestamp.UTC(),
		Eye:  spectrum.EyeID{Position: pos, Sensor: sensor},
		Flux: make([]spectrum.Value, 0, len(fields)-4),
	}

	if s := strings.TrimSpace(fields[3]); s != "" {
		sector, err := strconv.Atoi(s)
		if err != nil || sector < 0 {
			return nil, fmt.Errorf("%w: invalid spin sector %q", ErrMalformedLine, s)
		}
		rec.SpinSector = &sector
	}

	for i, field := range fields[4:] {
		v, err := parseFlux(field)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid flux in channel %d: %w", ErrMalformedLine, i, err)
		}
		rec.Flux = append(rec.Flux, v)
	}

	return &rec, nil
}

func parseFlux(field string) (spectrum.Value, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return spectrum.NoData, nil
	}
	f, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return spectrum.NoData, err
	}
	if f <= fillValue {
		return spectrum.NoData, nil
	}
	return spectrum.FromFloat(f), nil
}
