package relerr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorKindsFormat(t *testing.T) {
	err := ErrUnknownAggregationKind.New("FROBNICATE")
	require.Contains(t, err.Error(), "FROBNICATE")

	err = ErrColumnNotFound.New("amount", "transactions")
	require.Contains(t, err.Error(), "amount")
	require.Contains(t, err.Error(), "transactions")
}

func TestInvariantPanicsOnFalse(t *testing.T) {
	require.Panics(t, func() {
		Invariant(false, "count must not go negative, got %d", -1)
	})
}

func TestInvariantNoPanicOnTrue(t *testing.T) {
	require.NotPanics(t, func() {
		Invariant(true, "unreachable")
	})
}
