package dataset

import (
	"math"
	"time"

	"business-forecasting-engine/errors"
)

// columnKind discriminates how a column's cells are stored.
type columnKind int

const (
	kindString columnKind = iota
	kindNumeric
	kindTime
)

type column struct {
	name    string
	kind    columnKind
	strings []string
	floats  []float64 // NaN marks a missing cell
	times   []time.Time
}

// Frame is a column-oriented table. Columns keep their insertion order, which
// makes regressor discovery deterministic. Numeric columns use NaN for
// missing cells.
type Frame struct {
	order []string
	cols  map[string]*column
	rows  int
}

// NewFrame creates an empty frame.
func NewFrame() *Frame {
	return &Frame{cols: make(map[string]*column)}
}

func (f *Frame) addColumn(c *column, n int) error {
	if c.name == "" {
		return errors.Newf(errors.KindDataValidation, "column name must not be empty")
	}
	if _, exists := f.cols[c.name]; exists {
		return errors.Newf(errors.KindDataValidation, "duplicate column %q", c.name)
	}
	if len(f.order) > 0 && n != f.rows {
		return errors.Newf(errors.KindDataValidation,
			"column %q has %d rows, frame has %d", c.name, n, f.rows)
	}
	f.cols[c.name] = c
	f.order = append(f.order, c.name)
	f.rows = n
	return nil
}

// AddStringColumn appends a raw string column.
func (f *Frame) AddStringColumn(name string, values []string) error {
	vals := make([]string, len(values))
	copy(vals, values)
	return f.addColumn(&column{name: name, kind: kindString, strings: vals}, len(values))
}

// AddNumericColumn appends a float64 column. NaN cells count as missing.
func (f *Frame) AddNumericColumn(name string, values []float64) error {
	vals := make([]float64, len(values))
	copy(vals, values)
	return f.addColumn(&column{name: name, kind: kindNumeric, floats: vals}, len(values))
}

// AddTimeColumn appends a pre-parsed timestamp column.
func (f *Frame) AddTimeColumn(name string, values []time.Time) error {
	vals := make([]time.Time, len(values))
	copy(vals, values)
	return f.addColumn(&column{name: name, kind: kindTime, times: vals}, len(values))
}

// NumRows returns the row count.
func (f *Frame) NumRows() int { return f.rows }

// Columns returns column names in insertion order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// HasColumn reports whether the named column exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// Numeric returns a copy of the named column's values when the column holds
// numeric data.
func (f *Frame) Numeric(name string) ([]float64, bool) {
	c, ok := f.cols[name]
	if !ok || c.kind != kindNumeric {
		return nil, false
	}
	out := make([]float64, len(c.floats))
	copy(out, c.floats)
	return out, true
}

// Strings returns a copy of the named column's raw cells when the column
// holds string data.
func (f *Frame) Strings(name string) ([]string, bool) {
	c, ok := f.cols[name]
	if !ok || c.kind != kindString {
		return nil, false
	}
	out := make([]string, len(c.strings))
	copy(out, c.strings)
	return out, true
}

// Times returns a copy of the named column's timestamps when the column holds
// pre-parsed time data.
func (f *Frame) Times(name string) ([]time.Time, bool) {
	c, ok := f.cols[name]
	if !ok || c.kind != kindTime {
		return nil, false
	}
	out := make([]time.Time, len(c.times))
	copy(out, c.times)
	return out, true
}

// IsNumeric reports whether the named column holds numeric data. Discovery
// is by stored type, never by column name.
func (f *Frame) IsNumeric(name string) bool {
	c, ok := f.cols[name]
	return ok && c.kind == kindNumeric
}

// NumericColumns returns the names of all numeric columns in insertion
// order, skipping any excluded names.
func (f *Frame) NumericColumns(exclude ...string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	var out []string
	for _, name := range f.order {
		if skip[name] {
			continue
		}
		if f.cols[name].kind == kindNumeric {
			out = append(out, name)
		}
	}
	return out
}

// missingCount reports how many cells of a numeric column are NaN.
func missingCount(values []float64) int {
	n := 0
	for _, v := range values {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}
