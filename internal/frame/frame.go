// Package frame holds tabular training and scoring data as named columns of
// raw cells. Cells keep their original text so that a column can be treated as
// numeric or categorical after inspection.
package frame

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// missingTokens are cell values treated as null.
var missingTokens = map[string]struct{}{
	"":     {},
	"na":   {},
	"nan":  {},
	"null": {},
	"none": {},
	"n/a":  {},
}

// IsMissing reports whether a raw cell is a null marker.
func IsMissing(s string) bool {
	_, ok := missingTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// Column is a named sequence of raw cells.
type Column struct {
	Name  string
	Cells []string
}

// Missing reports whether row i is null.
func (c *Column) Missing(i int) bool { return IsMissing(c.Cells[i]) }

// HasMissing reports whether any cell is null.
func (c *Column) HasMissing() bool {
	for i := range c.Cells {
		if c.Missing(i) {
			return true
		}
	}
	return false
}

// IsNumeric reports whether every non-null cell parses as a float.
// A column with no values at all is not numeric.
func (c *Column) IsNumeric() bool {
	seen := false
	for i, s := range c.Cells {
		if c.Missing(i) {
			continue
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

// Floats parses the column; nulls are NaN.
func (c *Column) Floats() ([]float64, error) {
	out := make([]float64, len(c.Cells))
	for i, s := range c.Cells {
		if c.Missing(i) {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", c.Name, i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Unique returns the distinct non-null values, sorted.
func (c *Column) Unique() []string {
	set := make(map[string]struct{})
	for i, s := range c.Cells {
		if c.Missing(i) {
			continue
		}
		set[strings.TrimSpace(s)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Frame is a table of equally long columns.
type Frame struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// New builds a frame, rejecting duplicate names and ragged columns.
func New(columns ...*Column) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(columns))}
	for i, c := range columns {
		if _, dup := f.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		if i == 0 {
			f.rows = len(c.Cells)
		} else if len(c.Cells) != f.rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", c.Name, len(c.Cells), f.rows)
		}
		f.index[c.Name] = i
		f.columns = append(f.columns, c)
	}
	return f, nil
}

// NumRows returns the row count.
func (f *Frame) NumRows() int { return f.rows }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.columns))
	for i, c := range f.columns {
		out[i] = c.Name
	}
	return out
}

// Column looks a column up by name.
func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.columns[i], true
}

// Columns returns the columns in order.
func (f *Frame) Columns() []*Column { return f.columns }

// Has reports whether the frame has the named column.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Drop returns a frame without the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	var kept []*Column
	for _, c := range f.columns {
		if !skip[c.Name] {
			kept = append(kept, c)
		}
	}
	out, _ := New(kept...)
	if len(kept) == 0 {
		out.rows = f.rows
	}
	return out
}

// Take returns a frame holding only the given rows, in the given order.
func (f *Frame) Take(rows []int) *Frame {
	cols := make([]*Column, len(f.columns))
	for i, c := range f.columns {
		cells := make([]string, len(rows))
		for j, r := range rows {
			cells[j] = c.Cells[r]
		}
		cols[i] = &Column{Name: c.Name, Cells: cells}
	}
	out, _ := New(cols...)
	out.rows = len(rows)
	return out
}

// Record returns row i as a name → cell map.
func (f *Frame) Record(i int) map[string]string {
	out := make(map[string]string, len(f.columns))
	for _, c := range f.columns {
		out[c.Name] = c.Cells[i]
	}
	return out
}
