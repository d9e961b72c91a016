package reldata

// Match is the (peripheral row, population row) pair the matchmaker
// produces upstream (spec.md §3). Activated controls whether this match
// currently contributes to ŷ[IxPopulation]. Value is the value to be
// aggregated, bound once by the tree's aggregation value provider; SortKey
// is the field the match is ordered by within its population-row
// sub-range — equal to Value for every aggregation kind except FIRST/LAST,
// which order by time stamp instead of the aggregated value.
type Match struct {
	IxPeripheral uint64
	IxPopulation uint64
	Activated    bool
	Value        float64
	SortKey      float64
}
