package intset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetAddContains(t *testing.T) {
	s := New()
	require.Equal(t, 0, s.Len())
	s.Add(3)
	s.Add(7)
	s.Add(3)
	require.Equal(t, 2, s.Len())
	require.True(t, s.Contains(3))
	require.True(t, s.Contains(7))
	require.False(t, s.Contains(4))
}

func TestSetEachOrder(t *testing.T) {
	s := New()
	s.Add(5)
	s.Add(1)
	s.Add(9)
	var seen []uint64
	s.Each(func(v uint64) { seen = append(seen, v) })
	require.Equal(t, []uint64{5, 1, 9}, seen)
}

func TestSetClearReusable(t *testing.T) {
	s := New()
	s.Add(1)
	s.Add(2)
	s.Clear()
	require.Equal(t, 0, s.Len())
	require.False(t, s.Contains(1))
	s.Add(1)
	require.Equal(t, 1, s.Len())
	require.True(t, s.Contains(1))
}
