package ensemble

import (
	"github.com/relboost/engine/aggregate"
	"github.com/relboost/engine/reldata"
	"github.com/relboost/engine/relerr"
	"github.com/relboost/engine/tree"
)

// validateFitJob rejects a FitJob whose aggregation kind cannot consume
// its ValueProvider's data source (spec.md §4.2's "only meaningful for
// aggregations that accept categorical input" rule): a categorical
// column-to-be-aggregated is only valid under COUNT, COUNTDISTINCT or
// COUNTMINUSCOUNTDISTINCT.
func validateFitJob(job FitJob) error {
	categorical := false
	switch job.ValueProvider.(type) {
	case reldata.PeripheralCategorical, reldata.PopulationCategorical, reldata.SameUnitCategorical:
		categorical = true
	}
	if !categorical {
		return nil
	}
	switch job.Kind {
	case aggregate.COUNT, aggregate.COUNTDISTINCT, aggregate.COUNTMINUSCOUNTDISTINCT:
		return nil
	default:
		return relerr.ErrIncompatibleDataSource.New(job.Kind.String(), "categorical")
	}
}

// SameUnitPair names a peripheral column that shares a physical unit (or
// category encoder) with a column on the other side of the match — either
// the population table or another peripheral column — producing the
// SameUnit* difference providers spec.md §4.2 describes.
type SameUnitPair struct {
	PeripheralColumn  string
	OtherColumn       string
	OtherIsPopulation bool
}

// BuildColumnSpecs walks every eligible column on peripheral, plus the
// declared same-unit pairs, and returns the tree.ColumnSpec slice a Fit
// call enumerates splits over. Column names are resolved via
// reldata.Table.ColumnByName; a name absent from its table raises
// relerr.ErrColumnNotFound, and a same-unit pair whose two columns differ
// in kind raises relerr.ErrSameUnitMismatch.
func BuildColumnSpecs(peripheral, population *reldata.Table, sameUnits []SameUnitPair) ([]tree.ColumnSpec, error) {
	var out []tree.ColumnSpec

	for i, c := range peripheral.Numerical {
		out = append(out, tree.ColumnSpec{
			DataUsed: tree.PeripheralNumerical, ColumnUsed: i, Kind: tree.KindNumerical,
			Provider: reldata.PeripheralNumerical{Col: c}, Name: c.Name,
		})
	}
	for i, c := range peripheral.Discrete {
		out = append(out, tree.ColumnSpec{
			DataUsed: tree.PeripheralDiscrete, ColumnUsed: i, Kind: tree.KindNumerical,
			Provider: reldata.PeripheralDiscrete{Col: c}, Name: c.Name,
		})
	}
	for i, c := range peripheral.Categorical {
		out = append(out, tree.ColumnSpec{
			DataUsed: tree.PeripheralCategorical, ColumnUsed: i, Kind: tree.KindCategorical,
			CategoryOf: categoryOfPeripheral(c), Name: c.Name,
		})
	}
	for i, c := range peripheral.Text {
		out = append(out, tree.ColumnSpec{
			DataUsed: tree.PeripheralText, ColumnUsed: i, Kind: tree.KindText,
			TokensOf: tokensOfPeripheral(c), Name: c.Name,
		})
	}

	for _, su := range sameUnits {
		spec, err := buildSameUnitSpec(peripheral, population, su, len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}

	return out, nil
}

func categoryOfPeripheral(c *reldata.Column) func(m *reldata.Match) int64 {
	return func(m *reldata.Match) int64 { return int64(c.Data[m.IxPeripheral]) }
}

func tokensOfPeripheral(c *reldata.TextColumn) func(m *reldata.Match) []uint32 {
	return func(m *reldata.Match) []uint32 { return c.Tokens[m.IxPeripheral] }
}

// buildSameUnitSpec resolves a SameUnitPair against its two tables and
// returns the matching SameUnit* provider, tagged with columnUsed, which
// the caller passes as its running count of every spec already emitted.
func buildSameUnitSpec(peripheral, population *reldata.Table, su SameUnitPair, columnUsed int) (tree.ColumnSpec, error) {
	otherTable := peripheral
	if su.OtherIsPopulation {
		otherTable = population
	}

	// otherMissing is the error for an OtherColumn that did not resolve
	// under the peripheral column's kind: a mismatch if the name exists
	// under another kind, otherwise not found.
	otherMissing := func() error {
		for _, k := range []reldata.ColumnKind{reldata.KindNumerical, reldata.KindDiscrete, reldata.KindCategorical} {
			if _, ok := otherTable.ColumnByName(k, su.OtherColumn); ok {
				return relerr.ErrSameUnitMismatch.New(su.PeripheralColumn, su.OtherColumn)
			}
		}
		return relerr.ErrColumnNotFound.New(su.OtherColumn, otherTable.Name)
	}

	pIx, ok := peripheral.ColumnByName(reldata.KindNumerical, su.PeripheralColumn)
	if ok {
		oIx, ok := otherTable.ColumnByName(reldata.KindNumerical, su.OtherColumn)
		if !ok {
			return tree.ColumnSpec{}, otherMissing()
		}
		return tree.ColumnSpec{
			DataUsed: tree.SameUnitNumerical, ColumnUsed: columnUsed, Kind: tree.KindNumerical,
			Provider: reldata.SameUnitNumerical{
				Peripheral: peripheral.Numerical[pIx], Other: otherTable.Numerical[oIx], OtherIsPopulation: su.OtherIsPopulation,
			},
			Name: su.PeripheralColumn,
		}, nil
	}

	if pIx, ok := peripheral.ColumnByName(reldata.KindDiscrete, su.PeripheralColumn); ok {
		oIx, ok := otherTable.ColumnByName(reldata.KindDiscrete, su.OtherColumn)
		if !ok {
			return tree.ColumnSpec{}, otherMissing()
		}
		return tree.ColumnSpec{
			DataUsed: tree.SameUnitDiscrete, ColumnUsed: columnUsed, Kind: tree.KindNumerical,
			Provider: reldata.SameUnitDiscrete{
				Peripheral: peripheral.Discrete[pIx], Other: otherTable.Discrete[oIx], OtherIsPopulation: su.OtherIsPopulation,
			},
			Name: su.PeripheralColumn,
		}, nil
	}

	if pIx, ok := peripheral.ColumnByName(reldata.KindCategorical, su.PeripheralColumn); ok {
		oIx, ok := otherTable.ColumnByName(reldata.KindCategorical, su.OtherColumn)
		if !ok {
			return tree.ColumnSpec{}, otherMissing()
		}
		return tree.ColumnSpec{
			DataUsed: tree.SameUnitCategorical, ColumnUsed: columnUsed, Kind: tree.KindNumerical,
			Provider: reldata.SameUnitCategorical{
				Peripheral: peripheral.Categorical[pIx], Other: otherTable.Categorical[oIx], OtherIsPopulation: su.OtherIsPopulation,
			},
			Name: su.PeripheralColumn,
		}, nil
	}

	return tree.ColumnSpec{}, relerr.ErrColumnNotFound.New(su.PeripheralColumn, peripheral.Name)
}
