// Package reduce implements the cross-rank reduction abstraction spec.md
// §5 describes: a node's fit reduces its sample size across ranks before
// the sample-size guard, and (in a model-parallel build) reduces the best
// candidate value after enumeration so every rank's find_maximum agrees.
// Reducer is the seam a single-process run satisfies with a no-op.
package reduce

import "golang.org/x/sync/errgroup"

// Reducer performs cross-rank reductions. A single-process fit uses Local,
// which is a no-op; a distributed build would satisfy this with an
// MPI-like communicator instead.
type Reducer interface {
	AllReduceSum(v float64) float64
	AllReduceMax(v float64) float64
}

// Local is the no-op Reducer used by every non-distributed fit.
type Local struct{}

func (Local) AllReduceSum(v float64) float64 { return v }
func (Local) AllReduceMax(v float64) float64 { return v }

// WorkerPool runs a fixed number of tree-fitting goroutines concurrently,
// the scheduling model spec.md §5 describes: "different trees run on
// different worker threads". One Go call fits and serialises one tree; the
// pool bounds how many run at once.
type WorkerPool struct {
	concurrency int
}

// NewWorkerPool returns a pool that runs up to concurrency tasks at a
// time. A non-positive concurrency means unbounded.
func NewWorkerPool(concurrency int) *WorkerPool {
	return &WorkerPool{concurrency: concurrency}
}

// Run executes every task, bounded by the pool's concurrency, and returns
// the first error encountered (if any); the remaining tasks still run to
// completion, mirroring golang.org/x/sync/errgroup's default behaviour.
func (p *WorkerPool) Run(tasks []func() error) error {
	var g errgroup.Group
	if p.concurrency > 0 {
		g.SetLimit(p.concurrency)
	}
	for _, task := range tasks {
		task := task
		g.Go(task)
	}
	return g.Wait()
}
