package spectrum

import "math"

// Value is a single measurement cell which may hold "no data". The zero
// value is "no data".
type Value struct {
	Float64 float64 // Measured value, meaningful only when Valid is set
	Valid   bool    // Whether the cell carries a measurement
}

// NoData is the explicit "no data" cell.
var NoData = Value{}

// Of wraps a measured value.
func Of(v float64) Value {
	return Value{Float64: v, Valid: true}
}

// FromFloat converts a sentinel-encoded float into a Value. NaN and
// infinities become "no data".
func FromFloat(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NoData
	}
	return Of(v)
}

// FromPtr converts a nullable pointer, as used by the storage and rendering
// layers, into a Value.
func FromPtr(p *float64) Value {
	if p == nil {
		return NoData
	}
	return Of(*p)
}

// Get returns the measurement and whether it is present.
func (v Value) Get() (float64, bool) {
	return v.Float64, v.Valid
}

// Or returns the measurement, or def when there is no data.
func (v Value) Or(def float64) float64 {
	if !v.Valid {
		return def
	}
	return v.Float64
}

// Ptr returns a pointer to a copy of the measurement or nil.
func (v Value) Ptr() *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// Scale multiplies a present measurement by f.
func (v Value) Scale(f float64) Value {
	if !v.Valid {
		return v
	}
	return Of(v.Float64 * f)
}

// Mean returns the arithmetic mean of the present values. When none are
// present the result is "no data"; an all-missing reduction is not an error.
func Mean(values []Value) Value {
	var sum float64
	var n int
	for _, v := range values {
		if !v.Valid {
			continue
		}
		sum += v.Float64
		n++
	}
	if n == 0 {
		return NoData
	}
	return Of(sum / float64(n))
}

// AllMissing reports whether none of the values carries a measurement.
func AllMissing(values []Value) bool {
	for _, v := range values {
		if v.Valid {
			return false
		}
	}
	return true
}

// Values wraps a slice of sentinel-encoded floats, NaN meaning "no data".
func Values(fs ...float64) []Value {
	out := make([]Value, len(fs))
	for i, f := range fs {
		out[i] = FromFloat(f)
	}
	return out
}
