package reldata

import "math"

// Provider is the C2 contract: given a match, return the scalar value to
// be aggregated (spec.md §4.2). It is also reused, unmodified, by the
// split enumerator (C6) to compute each candidate column's per-match
// sweep key — the two uses share this single stateless interface.
// Implementations must be cheap to call in inner loops: they do nothing
// but index into table columns already resident in memory.
type Provider interface {
	Value(m *Match) float64
}

// PeripheralNumerical reads a numerical column on the peripheral side.
type PeripheralNumerical struct{ Col *Column }

func (p PeripheralNumerical) Value(m *Match) float64 { return p.Col.Data[m.IxPeripheral] }

// PeripheralDiscrete reads a discrete column on the peripheral side.
type PeripheralDiscrete struct{ Col *Column }

func (p PeripheralDiscrete) Value(m *Match) float64 { return p.Col.Data[m.IxPeripheral] }

// PeripheralCategorical reads a categorical column's integer code on the
// peripheral side, treated as a float for aggregation purposes. Only
// meaningful for aggregations that accept categorical input (COUNT,
// COUNT DISTINCT, COUNT MINUS COUNT DISTINCT).
type PeripheralCategorical struct{ Col *Column }

func (p PeripheralCategorical) Value(m *Match) float64 { return p.Col.Data[m.IxPeripheral] }

// PopulationNumerical reads a numerical column on the population side.
type PopulationNumerical struct{ Col *Column }

func (p PopulationNumerical) Value(m *Match) float64 { return p.Col.Data[m.IxPopulation] }

// PopulationDiscrete reads a discrete column on the population side.
type PopulationDiscrete struct{ Col *Column }

func (p PopulationDiscrete) Value(m *Match) float64 { return p.Col.Data[m.IxPopulation] }

// PopulationCategorical reads a categorical column's integer code on the
// population side.
type PopulationCategorical struct{ Col *Column }

func (p PopulationCategorical) Value(m *Match) float64 { return p.Col.Data[m.IxPopulation] }

// TimeStampsDiff returns population.ts - peripheral.ts for the match.
type TimeStampsDiff struct {
	Population *Column
	Peripheral *Column
}

func (p TimeStampsDiff) Value(m *Match) float64 {
	return p.Population.Data[m.IxPopulation] - p.Peripheral.Data[m.IxPeripheral]
}

// SameUnitNumerical returns other.value[index] - peripheral.num[col][ix],
// where "other" may be a population or a peripheral column declared to
// share a physical unit with the peripheral column (spec.md §4.2).
type SameUnitNumerical struct {
	Peripheral        *Column
	Other             *Column
	OtherIsPopulation bool
}

func (p SameUnitNumerical) Value(m *Match) float64 {
	var other float64
	if p.OtherIsPopulation {
		other = p.Other.Data[m.IxPopulation]
	} else {
		other = p.Other.Data[m.IxPeripheral]
	}
	return other - p.Peripheral.Data[m.IxPeripheral]
}

// SameUnitDiscrete is the discrete-column analogue of SameUnitNumerical.
type SameUnitDiscrete struct {
	Peripheral        *Column
	Other             *Column
	OtherIsPopulation bool
}

func (p SameUnitDiscrete) Value(m *Match) float64 {
	var other float64
	if p.OtherIsPopulation {
		other = p.Other.Data[m.IxPopulation]
	} else {
		other = p.Other.Data[m.IxPeripheral]
	}
	return other - p.Peripheral.Data[m.IxPeripheral]
}

// SameUnitCategorical compares a population/peripheral category pair
// declared to share an encoder, returning 1.0 on equality and 0.0
// otherwise. This is a supplemented provider (SPEC_FULL.md §12.1): the
// distilled spec names only the numerical/discrete same-unit variants, but
// the original implementation also supports a categorical equality
// comparison wherever two columns share a category encoder.
type SameUnitCategorical struct {
	Peripheral        *Column
	Other             *Column
	OtherIsPopulation bool
}

func (p SameUnitCategorical) Value(m *Match) float64 {
	var other float64
	if p.OtherIsPopulation {
		other = p.Other.Data[m.IxPopulation]
	} else {
		other = p.Other.Data[m.IxPeripheral]
	}
	if other == p.Peripheral.Data[m.IxPeripheral] {
		return 1.0
	}
	return 0.0
}

// SubfeatureMatrix holds a previously generated sub-feature matrix, keyed
// by peripheral row index via a sparse map — the lookup the Subfeature
// provider performs inside the aggregator's innermost loop (spec.md §9).
type SubfeatureMatrix struct {
	byIxPeripheral map[uint64]int
	values         [][]float64
}

// NewSubfeatureMatrix builds a matrix from parallel ixPeripheral/row
// slices. rows[i] is the feature row for peripheral index ixPeripheral[i].
func NewSubfeatureMatrix(ixPeripheral []uint64, rows [][]float64) *SubfeatureMatrix {
	idx := make(map[uint64]int, len(ixPeripheral))
	for i, ix := range ixPeripheral {
		idx[ix] = i
	}
	return &SubfeatureMatrix{byIxPeripheral: idx, values: rows}
}

// Value looks up column col of the sub-feature row for ixPeripheral. ok is
// false if no sub-feature row exists for that peripheral index.
func (m *SubfeatureMatrix) Value(ixPeripheral uint64, col int) (float64, bool) {
	row, ok := m.byIxPeripheral[ixPeripheral]
	if !ok || col >= len(m.values[row]) {
		return 0, false
	}
	return m.values[row][col], true
}

// Subfeature reads a single column out of a previously generated
// sub-feature matrix for a match's peripheral row. A missing entry yields
// NaN, which the aggregator's null-partitioning treats the same as any
// other NaN value.
type Subfeature struct {
	Matrix *SubfeatureMatrix
	Col    int
}

func (p Subfeature) Value(m *Match) float64 {
	v, ok := p.Matrix.Value(m.IxPeripheral, p.Col)
	if !ok {
		return math.NaN()
	}
	return v
}
