// Package reldata is the core.C1/C2 data model: immutable typed columns
// owned by population and peripheral tables, the Match tuples produced by
// an external matchmaker, the match store those tuples live in, and the
// value providers that read a scalar out of a match (spec.md §3, §4.1,
// §4.2). The core never mutates column data; the only mutable state here
// is a Match's Activated flag and its cached Value/SortKey.
package reldata

import "github.com/spf13/cast"

// ColumnKind tags the physical representation of a Column. Categorical
// columns are integer-coded (spec.md §3) and aggregated as floats the same
// way discrete columns are; the Kind only matters for which split
// candidates the enumerator considers eligible.
type ColumnKind uint8

const (
	KindNumerical ColumnKind = iota
	KindDiscrete
	KindCategorical
	KindTimeStamp
)

func (k ColumnKind) String() string {
	switch k {
	case KindNumerical:
		return "numerical"
	case KindDiscrete:
		return "discrete"
	case KindCategorical:
		return "categorical"
	case KindTimeStamp:
		return "time_stamp"
	default:
		return "unknown"
	}
}

// Column is a single named, typed vector owned by a Table. The core never
// writes to Data once a Column is built.
type Column struct {
	Name string
	Kind ColumnKind
	Data []float64
}

// NewColumn builds a Column by coercing loosely-typed values (as would
// arrive from an upstream loader) into float64 via spf13/cast, the same
// coercion library the teacher depends on for scalar conversions.
func NewColumn(name string, kind ColumnKind, values []interface{}) (*Column, error) {
	data := make([]float64, len(values))
	for i, v := range values {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, err
		}
		data[i] = f
	}
	return &Column{Name: name, Kind: kind, Data: data}, nil
}

// TextColumn holds a bag of token ids per row, used by the word index (C3)
// to drive text-membership splits.
type TextColumn struct {
	Name   string
	Tokens [][]uint32
}

// Table owns a set of named, typed columns plus an optional single time
// stamp column. Tables are immutable from the core's perspective: both
// population and peripheral data are Tables, and the engine never resizes
// or mutates their columns after construction.
type Table struct {
	Name        string
	NRows       uint64
	Numerical   []*Column
	Discrete    []*Column
	Categorical []*Column
	Text        []*TextColumn
	TimeStamp   *Column
}

// NewTable returns an empty Table ready to receive columns via the Add*
// methods.
func NewTable(name string, nRows uint64) *Table {
	return &Table{Name: name, NRows: nRows}
}

// AddNumerical appends a numerical column and returns its column index.
func (t *Table) AddNumerical(c *Column) int {
	t.Numerical = append(t.Numerical, c)
	return len(t.Numerical) - 1
}

// AddDiscrete appends a discrete column and returns its column index.
func (t *Table) AddDiscrete(c *Column) int {
	t.Discrete = append(t.Discrete, c)
	return len(t.Discrete) - 1
}

// AddCategorical appends a categorical column and returns its column index.
func (t *Table) AddCategorical(c *Column) int {
	t.Categorical = append(t.Categorical, c)
	return len(t.Categorical) - 1
}

// AddText appends a text column and returns its column index.
func (t *Table) AddText(c *TextColumn) int {
	t.Text = append(t.Text, c)
	return len(t.Text) - 1
}

// ColumnByName searches the given kind's columns for one named `name` and
// returns its index, or false if none matches.
func (t *Table) ColumnByName(kind ColumnKind, name string) (int, bool) {
	var cols []*Column
	switch kind {
	case KindNumerical:
		cols = t.Numerical
	case KindDiscrete:
		cols = t.Discrete
	case KindCategorical:
		cols = t.Categorical
	}
	for i, c := range cols {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}
