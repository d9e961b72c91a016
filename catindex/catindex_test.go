package catindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relboost/engine/reldata"
)

func TestCategoryIndexBucketsAndOrders(t *testing.T) {
	store := reldata.NewStore([]reldata.Match{
		{IxPeripheral: 0},
		{IxPeripheral: 1},
		{IxPeripheral: 2},
		{IxPeripheral: 3},
	})
	codes := []int64{3, 1, 1, 2}
	idx := BuildCategoryIndex(store, store.Full(), func(m *reldata.Match) int64 {
		return codes[m.IxPeripheral]
	})

	require.Equal(t, []int64{1, 2, 3}, idx.Categories())
	require.ElementsMatch(t, []int{1, 2}, idx.Matches(1))
	require.ElementsMatch(t, []int{3}, idx.Matches(2))
	require.ElementsMatch(t, []int{0}, idx.Matches(3))
	require.Nil(t, idx.Matches(99))
}

func TestWordIndexMultiToken(t *testing.T) {
	store := reldata.NewStore([]reldata.Match{
		{IxPeripheral: 0},
		{IxPeripheral: 1},
	})
	bags := [][]uint32{{10, 20}, {20, 30}}
	idx := BuildWordIndex(store, store.Full(), func(m *reldata.Match) []uint32 {
		return bags[m.IxPeripheral]
	})
	require.Equal(t, []uint32{10, 20, 30}, idx.Tokens())
	require.ElementsMatch(t, []int{0}, idx.Matches(10))
	require.ElementsMatch(t, []int{0, 1}, idx.Matches(20))
	require.ElementsMatch(t, []int{1}, idx.Matches(30))
}
