package spectrum

import (
	"fmt"
	"math"
)

// Grid is a dense row-major [time x column] matrix of measurement cells.
// A freshly allocated Grid holds "no data" everywhere.
type Grid struct {
	rows, cols int
	data       []Value
}

// NewGrid allocates a rows x cols grid filled with "no data".
func NewGrid(rows, cols int) Grid {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("spectrum: negative grid size %dx%d", rows, cols))
	}
	return Grid{rows: rows, cols: cols, data: make([]Value, rows*cols)}
}

// GridFromRows builds a grid from sentinel-encoded rows, NaN meaning "no data".
// All rows must have the same length.
func GridFromRows(rows [][]float64) (Grid, error) {
	if len(rows) == 0 {
		return NewGrid(0, 0), nil
	}
	g := NewGrid(len(rows), len(rows[0]))
	for r, row := range rows {
		if len(row) != g.cols {
			return Grid{}, fmt.Errorf("%w: row %d has %d columns, expected %d", ErrInconsistentInput, r, len(row), g.cols)
		}
		for c, f := range row {
			g.data[r*g.cols+c] = FromFloat(f)
		}
	}
	return g, nil
}

func (g Grid) Rows() int { return g.rows }
func (g Grid) Cols() int { return g.cols }

// At returns the cell at row r, column c.
func (g Grid) At(r, c int) Value {
	return g.data[g.index(r, c)]
}

// Set stores v at row r, column c.
func (g Grid) Set(r, c int, v Value) {
	g.data[g.index(r, c)] = v
}

// Row returns a copy of row r.
func (g Grid) Row(r int) []Value {
	out := make([]Value, g.cols)
	copy(out, g.data[r*g.cols:(r+1)*g.cols])
	return out
}

// Column returns a copy of column c.
func (g Grid) Column(c int) []Value {
	out := make([]Value, g.rows)
	for r := range g.rows {
		out[r] = g.data[g.index(r, c)]
	}
	return out
}

// Clone returns a deep copy of the grid.
func (g Grid) Clone() Grid {
	data := make([]Value, len(g.data))
	copy(data, g.data)
	return Grid{rows: g.rows, cols: g.cols, data: data}
}

// Floats returns the grid as sentinel-encoded rows, NaN meaning "no data".
func (g Grid) Floats() [][]float64 {
	out := make([][]float64, g.rows)
	for r := range g.rows {
		out[r] = make([]float64, g.cols)
		for c := range g.cols {
			out[r][c] = g.At(r, c).Or(math.NaN())
		}
	}
	return out
}

// Pointers returns row r as nullable pointers, the representation used by
// the storage and rendering layers.
func (g Grid) Pointers(r int) []*float64 {
	out := make([]*float64, g.cols)
	for c := range g.cols {
		out[c] = g.At(r, c).Ptr()
	}
	return out
}

func (g Grid) index(r, c int) int {
	if r < 0 || r >= g.rows || c < 0 || c >= g.cols {
		panic(fmt.Sprintf("spectrum: index [%d,%d] out of range [%d,%d]", r, c, g.rows, g.cols))
	}
	return r*g.cols + c
}
