// Package criterion implements the C5 optimisation criterion: the scalar
// objective the greedy split search maximises (spec.md §4.5). A Criterion
// tracks a running loss-reduction value as ŷ changes, an ordered storage
// buffer of candidate criterion values indexed identically to the
// emitted candidate splits (spec.md's glossary entry for "Storage"), and
// the same three-snapshot commit/revert discipline the aggregator uses.
package criterion

import "sort"

// Stored is one recorded candidate criterion value, optionally annotated
// with the size of the two partitions the candidate split would produce —
// used by the categorical "set" split ranking (spec.md §4.6).
type Stored struct {
	Value              float64
	NSmaller, NGreater int
}

// Criterion is a square-loss (negative sum-of-squared-residuals) reduction
// objective: maximising Criterion.current is equivalent to minimising the
// sum of squared residuals between target and ŷ. This is the loss family
// spec.md §6 calls out as "a loss function instance satisfying the
// optimisation-criterion contract" — the engine is written against the
// Criterion type, not against this particular loss, so swapping in another
// loss means swapping the handful of methods below.
type Criterion struct {
	target []float64

	current   float64
	stored    float64
	committed float64

	storage []Stored
}

// NewSquareLoss returns a Criterion measuring squared-error reduction
// against target, indexed by population row.
func NewSquareLoss(target []float64) *Criterion {
	return &Criterion{target: target}
}

func sqResidual(target, yhat float64) float64 {
	d := target - yhat
	return d * d
}

// InitYHat seeds current from the given ŷ vector. If rows is nil every
// population row contributes; otherwise only the rows named in it do —
// this is the entry point `activate_all(matches, init_opt=true)` uses
// (spec.md §4.4) to establish the root node's starting criterion value.
func (c *Criterion) InitYHat(yhat []float64, rows []uint64) {
	sse := 0.0
	if rows == nil {
		for i, y := range yhat {
			sse += sqResidual(c.target[i], y)
		}
	} else {
		for _, i := range rows {
			sse += sqResidual(c.target[i], yhat[i])
		}
	}
	// Negate so that "maximise" (spec.md §4.6's accept check, §4.5's
	// find_maximum) corresponds to "minimise sum of squared residuals".
	c.current = -sse
}

// UpdateSamples incrementally adjusts current given that each row in
// indices moved from oldYhat[row] to newYhat[row]; the two slices are
// indexed by population row, not by position in indices.
func (c *Criterion) UpdateSamples(indices []uint64, newYhat, oldYhat []float64) {
	for _, i := range indices {
		c.current -= -sqResidual(c.target[i], oldYhat[i])
		c.current += -sqResidual(c.target[i], newYhat[i])
	}
}

// StoreCurrentStage appends the current value (with partition-size
// annotations) to the storage buffer and returns its index.
func (c *Criterion) StoreCurrentStage(nSmaller, nGreater int) int {
	c.storage = append(c.storage, Stored{Value: c.current, NSmaller: nSmaller, NGreater: nGreater})
	return len(c.storage) - 1
}

// ExtendStorageSize reserves k additional slots to be filled by subsequent
// StoreCurrentStage calls; since Go slices grow themselves, this is a
// capacity hint rather than a correctness requirement.
func (c *Criterion) ExtendStorageSize(k int) {
	if cap(c.storage)-len(c.storage) < k {
		grown := make([]Stored, len(c.storage), len(c.storage)+k)
		copy(grown, c.storage)
		c.storage = grown
	}
}

// FindMaximum returns the storage index of the best recorded value. Ties
// resolve to the lower index — the earliest-enumerated candidate wins,
// preserving the determinism spec.md §4.6 requires.
func (c *Criterion) FindMaximum() int {
	best := 0
	for i := 1; i < len(c.storage); i++ {
		if c.storage[i].Value > c.storage[best].Value {
			best = i
		}
	}
	return best
}

// ValueAt returns the value recorded at storage index ix.
func (c *Criterion) ValueAt(ix int) float64 { return c.storage[ix].Value }

// PartitionSizesAt returns the partition-size annotation recorded at ix.
func (c *Criterion) PartitionSizesAt(ix int) (nSmaller, nGreater int) {
	return c.storage[ix].NSmaller, c.storage[ix].NGreater
}

// StorageLen returns the number of recorded candidate values.
func (c *Criterion) StorageLen() int { return len(c.storage) }

// ClearStorage discards every recorded candidate value, called between
// one column's enumeration and the next (spec.md §4.6).
func (c *Criterion) ClearStorage() { c.storage = c.storage[:0] }

// Commit advances committed to the live value.
func (c *Criterion) Commit() { c.committed = c.current }

// RevertToCommit resets the live value back to the last commit.
func (c *Criterion) RevertToCommit() { c.current = c.committed }

// StoreCheckpoint snapshots current into an undo slot distinct from
// committed, mirroring the aggregator's "stored" snapshot, so a caller can
// undo to it without disturbing the last accepted commit. The aggregator's
// category and word sweeps do not use it; they roll back with
// RevertToCommit.
func (c *Criterion) StoreCheckpoint() { c.stored = c.current }

// RevertToCheckpoint restores current from the last StoreCheckpoint.
func (c *Criterion) RevertToCheckpoint() { c.current = c.stored }

// Current returns the live criterion value.
func (c *Criterion) Current() float64 { return c.current }

// Committed returns the last committed criterion value.
func (c *Criterion) Committed() float64 { return c.committed }

// ArgSort ranks storage[lo:hi] by Value descending, returning indices
// relative to lo (so result[0] is the best candidate in the slice). This
// drives the categorical "set split" ranking: categories are ordered by
// their single-category criterion before prefixes of that ranking are
// tried as multi-category splits (spec.md §4.6).
func (c *Criterion) ArgSort(lo, hi int) []int {
	n := hi - lo
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return c.storage[lo+idx[a]].Value > c.storage[lo+idx[b]].Value
	})
	return idx
}
