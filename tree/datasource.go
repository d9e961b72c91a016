package tree

import "github.com/relboost/engine/relerr"

// DataSource tags which kind of value provider a split's column_used_
// index refers into (spec.md §6's data_used_ tag set).
type DataSource int

const (
	PeripheralNumerical DataSource = iota
	PeripheralDiscrete
	PeripheralCategorical
	PopulationNumerical
	PopulationDiscrete
	PopulationCategorical
	TimeStampsDiff
	SameUnitNumerical
	SameUnitDiscrete
	SameUnitCategorical
	Subfeature
	PeripheralText
)

var dataSourceNames = [...]string{
	"peripheral_numerical", "peripheral_discrete", "peripheral_categorical",
	"population_numerical", "population_discrete", "population_categorical",
	"time_stamps_diff",
	"same_unit_numerical", "same_unit_discrete", "same_unit_categorical",
	"subfeature",
	"peripheral_text",
}

func (d DataSource) String() string {
	if int(d) < 0 || int(d) >= len(dataSourceNames) {
		return "unknown"
	}
	return dataSourceNames[d]
}

// IsCategorical reports whether this source's column_used_ index must be
// interpreted via a category index rather than a numeric threshold.
func (d DataSource) IsCategorical() bool {
	return d == PeripheralCategorical || d == PopulationCategorical || d == SameUnitCategorical
}

// ParseDataSource resolves a persisted integer tag back to a DataSource.
func ParseDataSource(tag int) (DataSource, error) {
	if tag < 0 || tag >= len(dataSourceNames) {
		return 0, relerr.ErrUnknownDataSourceTag.New(tag)
	}
	return DataSource(tag), nil
}
