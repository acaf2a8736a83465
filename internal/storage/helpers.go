package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/roman-kulish/particle-spectra/internal/spectrum"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && !errors.Is(cErr, sql.ErrTxDone) {
		*err = cErr
	}
}

func nullFloat(v spectrum.Value) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v.Float64, Valid: v.Valid}
}

func nullFloatOf(f float64) sql.NullFloat64 {
	return nullFloat(spectrum.FromFloat(f))
}

func valueOf(n sql.NullFloat64) spectrum.Value {
	if !n.Valid {
		return spectrum.NoData
	}
	return spectrum.FromFloat(n.Float64)
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func marshalAttrs(a spectrum.Attrs) (sql.NullString, error) {
	if len(a) == 0 {
		return sql.NullString{}, nil
	}
	p, err := json.Marshal(a)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshaling attributes: %w", err)
	}
	return sql.NullString{String: string(p), Valid: true}, nil
}

func unmarshalAttrs(s sql.NullString) (spectrum.Attrs, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var a spectrum.Attrs
	if err := json.Unmarshal([]byte(s.String), &a); err != nil {
		return nil, fmt.Errorf("unmarshaling attributes: %w", err)
	}
	return a, nil
}

// valuesList builds the VALUES tail of a multi-row INSERT with the given
// number of rows and columns.
func valuesList(rows, cols int) string {
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", cols), ", ") + ")"

	var sb strings.Builder
	sb.Grow(rows * (len(tuple) + 2))
	for i := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(tuple)
	}
	return sb.String()
}

// bounds returns the nanosecond range a time filter covers. Unset ends are
// open.
func bounds(tr *spectrum.TimeRange) (int64, int64) {
	if tr == nil {
		return math.MinInt64, math.MaxInt64
	}
	return toNanos(tr.Start), toNanos(tr.End)
}
