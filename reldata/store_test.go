package reldata

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartitionNullFront(t *testing.T) {
	store := NewStore([]Match{
		{IxPeripheral: 0, IxPopulation: 0, Value: 10, SortKey: 10, Activated: true},
		{IxPeripheral: 1, IxPopulation: 0, Value: math.NaN(), SortKey: math.NaN(), Activated: true},
		{IxPeripheral: 2, IxPopulation: 1, Value: 20, SortKey: 20, Activated: true},
		{IxPeripheral: 3, IxPopulation: 1, Value: math.Inf(1), SortKey: math.Inf(1), Activated: true},
	})
	sep := store.PartitionNullFront(store.Full())
	require.Equal(t, 2, sep)
	for i := 0; i < sep; i++ {
		require.False(t, store.Match(i).Activated)
		require.True(t, isNullMatch(store.Match(i)))
	}
	for i := sep; i < store.Len(); i++ {
		require.False(t, isNullMatch(store.Match(i)))
	}
}

func TestSortForAggregationGroupsByPopulation(t *testing.T) {
	store := NewStore([]Match{
		{IxPeripheral: 0, IxPopulation: 1, Value: 8, SortKey: 8},
		{IxPeripheral: 1, IxPopulation: 0, Value: 20, SortKey: 20},
		{IxPeripheral: 2, IxPopulation: 0, Value: 10, SortKey: 10},
		{IxPeripheral: 3, IxPopulation: 1, Value: 5, SortKey: 5},
	})
	store.SortForAggregation(store.Full())
	ranges := store.RowRanges(store.Full())
	require.Len(t, ranges, 2)

	r0 := ranges[0]
	require.Equal(t, 2, r0.Len())
	require.Equal(t, float64(10), store.Match(r0.Begin).SortKey)
	require.Equal(t, float64(20), store.Match(r0.Begin+1).SortKey)

	r1 := ranges[1]
	require.Equal(t, 2, r1.Len())
	require.Equal(t, float64(5), store.Match(r1.Begin).SortKey)
	require.Equal(t, float64(8), store.Match(r1.Begin+1).SortKey)
}

func TestProvidersReadExpectedColumns(t *testing.T) {
	perip := NewTable("transactions", 3)
	amount, err := NewColumn("amount", KindNumerical, []interface{}{10.0, 20.0, 30.0})
	require.NoError(t, err)
	perip.AddNumerical(amount)

	pop := NewTable("customers", 2)
	limit, err := NewColumn("limit", KindNumerical, []interface{}{100.0, 200.0})
	require.NoError(t, err)
	pop.AddNumerical(limit)

	m := &Match{IxPeripheral: 1, IxPopulation: 0}

	require.Equal(t, 20.0, PeripheralNumerical{Col: amount}.Value(m))
	require.Equal(t, 100.0, PopulationNumerical{Col: limit}.Value(m))

	su := SameUnitNumerical{Peripheral: amount, Other: limit, OtherIsPopulation: true}
	require.Equal(t, 80.0, su.Value(m))
}
