package splitsearch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relboost/engine/aggregate"
	"github.com/relboost/engine/catindex"
	"github.com/relboost/engine/criterion"
	"github.com/relboost/engine/reldata"
)

func buildSumStore(values []float64, target []float64) (*reldata.Store, *aggregate.Aggregator, *criterion.Criterion) {
	matches := make([]reldata.Match, len(values))
	for i, v := range values {
		matches[i] = reldata.Match{IxPeripheral: uint64(i), IxPopulation: uint64(i), Value: v, SortKey: v}
	}
	store := reldata.NewStore(matches)
	crit := criterion.NewSquareLoss(target)
	agg := aggregate.New(aggregate.SUM, store, store.Full(), len(values), crit)
	return store, agg, crit
}

func TestGridBoundsThresholdCount(t *testing.T) {
	g := Grid(100, Config{GridFactor: 2.0})
	require.LessOrEqual(t, len(g), 21) // ~2*sqrt(100)=20, plus rounding slack
	for _, sep := range g {
		require.Greater(t, sep, 0)
		require.Less(t, sep, 100)
	}
}

func TestSweepNumericalThresholdFindsBestSeparator(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	// Every target is equal, so this checks the sweep's bookkeeping rather
	// than which separator wins: one candidate per separator, full
	// activation restored, and a critical value taken from the column.
	target := []float64{10, 10, 10, 10, 10}
	_, agg, crit := buildSumStore(values, target)

	order := NumericalOrder(agg.Store(), agg.Store().Full(), func(m *reldata.Match) float64 { return m.Value })
	for _, idx := range order {
		agg.Activate(idx)
	}
	agg.Commit()

	seps := []int{1, 2, 3, 4}
	candidates := SweepNumericalThreshold(agg, crit, order, seps, func(idx int) float64 {
		return agg.Store().Match(idx).Value
	})
	require.Len(t, candidates, 4)
	require.True(t, agg.IsActivated(order[0])) // sweep restores full activation

	best, ok := BestCandidate(crit, candidates)
	require.True(t, ok)
	require.GreaterOrEqual(t, best.CriticalValue, 1.0)
}

func TestSweepCategorySingletonsAndSets(t *testing.T) {
	matches := []reldata.Match{
		{IxPeripheral: 0, IxPopulation: 0, Value: 10},
		{IxPeripheral: 1, IxPopulation: 0, Value: 20},
		{IxPeripheral: 2, IxPopulation: 0, Value: 30},
		{IxPeripheral: 3, IxPopulation: 0, Value: 40},
	}
	store := reldata.NewStore(matches)
	codes := []int64{1, 2, 3, 4}
	catIdx := catindex.BuildCategoryIndex(store, store.Full(), func(m *reldata.Match) int64 {
		return codes[m.IxPeripheral]
	})

	crit := criterion.NewSquareLoss([]float64{10})
	agg := aggregate.New(aggregate.SUM, store, store.Full(), 1, crit)
	agg.Commit() // baseline: nothing activated

	singletons := SweepCategorySingletons(agg, catIdx)
	require.Len(t, singletons, 4)

	// 4 categories: SweepCategorySets is capped at len/2 == 2 prefixes.
	sets := SweepCategorySets(agg, crit, catIdx, singletons)
	require.Len(t, sets, 2)
	require.Len(t, sets[0].Categories, 1)
	require.Len(t, sets[len(sets)-1].Categories, 2)
}

func TestSweepCategorySetsComplementMirrorsContaining(t *testing.T) {
	matches := []reldata.Match{
		{IxPeripheral: 0, IxPopulation: 0, Value: 10},
		{IxPeripheral: 1, IxPopulation: 0, Value: 20},
		{IxPeripheral: 2, IxPopulation: 0, Value: 30},
		{IxPeripheral: 3, IxPopulation: 0, Value: 40},
	}
	store := reldata.NewStore(matches)
	codes := []int64{1, 2, 3, 4}
	catIdx := catindex.BuildCategoryIndex(store, store.Full(), func(m *reldata.Match) int64 {
		return codes[m.IxPeripheral]
	})

	crit := criterion.NewSquareLoss([]float64{10})
	agg := aggregate.New(aggregate.SUM, store, store.Full(), 1, crit)
	for _, i := range []int{0, 1, 2, 3} {
		agg.Activate(i)
	}
	agg.Commit() // baseline: everything activated

	complementSingletons := SweepCategorySingletonsComplement(agg, catIdx)
	require.Len(t, complementSingletons, 4)
	require.True(t, agg.IsActivated(0)) // sweep restores the committed baseline

	complementSets := SweepCategorySetsComplement(agg, crit, catIdx, complementSingletons)
	require.Len(t, complementSets, 2)
	require.True(t, agg.IsActivated(0))
}
