package ensemble

import (
	"sync"

	"github.com/relboost/engine/tree"
)

// ColumnRef names one source column for importance-accounting purposes: a
// (source table, column name) pair, tagged with the DataSource/ColumnUsed
// index pair a tree.Node actually records its split against (spec.md §4.8).
type ColumnRef struct {
	Table      string
	Name       string
	DataUsed   tree.DataSource
	ColumnUsed int
}

// ImportanceTracker accumulates, per split accepted anywhere in the
// ensemble, the raw criterion gain contributed by the column it used
// (SPEC_FULL.md §12.3). It is safe for concurrent use by the trees a
// reduce.WorkerPool runs on separate goroutines.
type ImportanceTracker struct {
	mu    sync.Mutex
	gains map[ColumnRef]float64
}

// NewImportanceTracker returns an empty tracker.
func NewImportanceTracker() *ImportanceTracker {
	return &ImportanceTracker{gains: make(map[ColumnRef]float64)}
}

// Observe folds one split's gain into the running total for ref. Callers
// typically close over ref's table/column-name resolution and pass this as
// a tree.SplitObserver (wrapped to translate a tree.ColumnSpec into the
// ColumnRef that names it).
func (t *ImportanceTracker) Observe(ref ColumnRef, gain float64) {
	if gain <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gains[ref] += gain
}

// Normalized returns the accumulated gains divided by their sum, so values
// sum to 1.0 across the whole ensemble — the final step spec.md §4.8's
// column-importance output requires. An ensemble with no accepted splits
// returns an empty map.
func (t *ImportanceTracker) Normalized() map[ColumnRef]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := 0.0
	for _, g := range t.gains {
		total += g
	}
	out := make(map[ColumnRef]float64, len(t.gains))
	if total == 0 {
		return out
	}
	for ref, g := range t.gains {
		out[ref] = g / total
	}
	return out
}
