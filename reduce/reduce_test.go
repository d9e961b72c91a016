package reduce

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalIsNoOp(t *testing.T) {
	var l Local
	require.Equal(t, 3.0, l.AllReduceSum(3.0))
	require.Equal(t, 5.0, l.AllReduceMax(5.0))
}

func TestWorkerPoolRunsAllTasksAndReturnsFirstError(t *testing.T) {
	pool := NewWorkerPool(2)
	var ran int32
	tasks := make([]func() error, 5)
	for i := range tasks {
		i := i
		tasks[i] = func() error {
			atomic.AddInt32(&ran, 1)
			if i == 2 {
				return errors.New("boom")
			}
			return nil
		}
	}
	err := pool.Run(tasks)
	require.Error(t, err)
	require.EqualValues(t, 5, ran)
}
