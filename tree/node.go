// Package tree implements the C7 decision-tree node and tree: the fit
// loop that drives the split enumerator, accepts or rejects its best
// candidate, recurses into the two resulting partitions, and the
// transform loop that replays a fitted tree's splits over new data
// (spec.md §4.7).
package tree

import (
	"encoding/json"
	"math"

	"github.com/relboost/engine/aggregate"
	"github.com/relboost/engine/catindex"
	"github.com/relboost/engine/criterion"
	"github.com/relboost/engine/reduce"
	"github.com/relboost/engine/reldata"
	"github.com/relboost/engine/relerr"
	"github.com/relboost/engine/splitsearch"
)

// Config holds the per-tree hyperparameters spec.md §6 lists.
type Config struct {
	MaxDepth        int
	MinNumSamples   int
	GridFactor      float64
	ShareConditions float64
	Regularization  float64
	AllowSets       bool
	RandomSeed      int64
}

// DefaultConfig mirrors the teacher's conservative tree defaults.
func DefaultConfig() Config {
	return Config{
		MaxDepth:        6,
		MinNumSamples:   1,
		GridFactor:      2.0,
		ShareConditions: 1.0,
		Regularization:  0.0,
		AllowSets:       true,
		RandomSeed:      1,
	}
}

// ColumnKind says whether a candidate column is swept via numeric
// threshold search, the categorical singleton/set search, or the
// text-column word-membership search.
type ColumnKind int

const (
	KindNumerical ColumnKind = iota
	KindCategorical
	KindText
)

// ColumnSpec names one eligible split column (spec.md §4.6's list of
// source kinds), bundling the provider used both to build the sweep
// order at fit time and to replay membership at transform time.
type ColumnSpec struct {
	DataUsed   DataSource
	ColumnUsed int
	Kind       ColumnKind
	Provider   reldata.Provider
	CategoryOf func(m *reldata.Match) int64   // only set when Kind == KindCategorical
	TokensOf   func(m *reldata.Match) []uint32 // only set when Kind == KindText

	// Name is the source column's display name, carried only for callers
	// that report importance/audit information by name; Fit/Transform
	// never read it.
	Name string
}

// Node owns either no split (a leaf) or a split descriptor plus two
// children (spec.md §4.7).
type Node struct {
	IsLeaf bool

	ApplyFromAbove bool
	DataUsed       DataSource
	ColumnUsed     int
	CriticalValue  float64
	CategoriesUsed []int64

	// ChildGreater is reached when the split's condition holds (the
	// "activated" partition); ChildSmaller is its complement. Named to
	// match spec.md §6's persisted sub1_/sub2_ pair, even though
	// "greater" only literally describes the numerical case.
	ChildGreater *Node
	ChildSmaller *Node
}

type nodeJSON struct {
	Act            bool      `json:"act_"`
	Imp            bool      `json:"imp_"`
	App            bool      `json:"app_"`
	CategoriesUsed []int64   `json:"categories_used_,omitempty"`
	CriticalValue  float64   `json:"critical_value_"`
	ColumnUsed     int       `json:"column_used_"`
	DataUsed       int       `json:"data_used_"`
	Sub1           *nodeJSON `json:"sub1_,omitempty"`
	Sub2           *nodeJSON `json:"sub2_,omitempty"`
}

func (n *Node) toJSON() *nodeJSON {
	if n == nil {
		return nil
	}
	return &nodeJSON{
		Act:            n.IsLeaf,
		Imp:            !n.IsLeaf,
		App:            n.ApplyFromAbove,
		CategoriesUsed: n.CategoriesUsed,
		CriticalValue:  n.CriticalValue,
		ColumnUsed:     n.ColumnUsed,
		DataUsed:       int(n.DataUsed),
		Sub1:           n.ChildGreater.toJSON(),
		Sub2:           n.ChildSmaller.toJSON(),
	}
}

func (nj *nodeJSON) toNode() (*Node, error) {
	if nj == nil {
		return nil, nil
	}
	ds, err := ParseDataSource(nj.DataUsed)
	if err != nil && !nj.Act {
		return nil, err
	}
	n := &Node{
		IsLeaf:         nj.Act,
		ApplyFromAbove: nj.App,
		DataUsed:       ds,
		ColumnUsed:     nj.ColumnUsed,
		CriticalValue:  nj.CriticalValue,
		CategoriesUsed: nj.CategoriesUsed,
	}
	if n.ChildGreater, err = nj.Sub1.toNode(); err != nil {
		return nil, err
	}
	if n.ChildSmaller, err = nj.Sub2.toNode(); err != nil {
		return nil, err
	}
	if !n.IsLeaf && (n.ChildGreater == nil || n.ChildSmaller == nil) {
		return nil, relerr.ErrMalformedTree.New("split node missing a child")
	}
	return n, nil
}

// MarshalJSON implements the persisted form spec.md §6 names.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.toJSON())
}

// UnmarshalJSON implements the persisted form spec.md §6 names.
func (n *Node) UnmarshalJSON(data []byte) error {
	var nj nodeJSON
	if err := json.Unmarshal(data, &nj); err != nil {
		return err
	}
	parsed, err := nj.toNode()
	if err != nil {
		return err
	}
	*n = *parsed
	return nil
}

// acceptThreshold is the ε spec.md §4.6 names in the improvement check.
const acceptThreshold = 1e-7

// trial is one column's best enumerated candidate, carrying enough state
// to replay it on the aggregator if it turns out to be the node's winner,
// plus the criterion value the node had on entry (every owned match
// activated), which delta measures the candidate against for every column
// kind, including the categorical and text sweeps that flip the committed
// baseline (see the baseline-flip note on enumerateCategorical).
type trial struct {
	cand     splitsearch.Candidate
	spec     ColumnSpec
	above    bool
	below    bool
	order    []int
	sep      int
	catIdx   *catindex.CategoryIndex
	wordIdx  *catindex.WordIndex
	// complement marks a categorical/text trial found by the "not
	// containing" sweep rather than the "containing" one (see the
	// baseline-flip note on enumerateCategorical).
	complement bool
	baseline   float64
	critVal    float64
}

func (t trial) delta() float64 { return t.critVal - t.baseline }

// activateAllCommitted activates every not-yet-active match in indices
// and commits the result, establishing the canonical "fully activated"
// baseline a node's own yhat contribution over its owned matches is
// defined against.
func activateAllCommitted(agg *aggregate.Aggregator, indices []int) {
	for _, i := range indices {
		if !agg.IsActivated(i) {
			agg.Activate(i)
		}
	}
	agg.UpdateOptimisationCriterionAndClearUpdatesCurrent()
	agg.Commit()
}

// deactivateAllCommitted is activateAllCommitted's inverse, establishing
// the "nothing activated" baseline the categorical containment sweep
// (aggregate.Aggregator.ActivateMatchesContainingCategories) measures each
// category against.
func deactivateAllCommitted(agg *aggregate.Aggregator, indices []int) {
	for _, i := range indices {
		if agg.IsActivated(i) {
			agg.Deactivate(i)
		}
	}
	agg.UpdateOptimisationCriterionAndClearUpdatesCurrent()
	agg.Commit()
}

// partitionByActivated splits indices into the matches the just-committed
// split left deactivated ("smaller") and activated ("greater"). Node
// ranges below the root are never physically reordered in the backing
// Store — aggregation kinds whose running state leans on a value-sorted
// per-population-row sub-range built once at construction (spec.md §3)
// would have that sub-range invalidated by a later in-place reorder — so
// a node's owned matches are tracked as this explicit, possibly
// non-contiguous, index set instead of a Store range.
func partitionByActivated(agg *aggregate.Aggregator, indices []int) (smaller, greater []int) {
	for _, idx := range indices {
		if agg.IsActivated(idx) {
			greater = append(greater, idx)
		} else {
			smaller = append(smaller, idx)
		}
	}
	return smaller, greater
}

// SplitObserver is notified of this node's best enumerated candidate,
// whether or not it was accepted: the signal ensemble.ImportanceTracker
// accumulates (on acceptance) and ensemble.FitAuditor.SplitRejected logs (on
// rejection), spec.md §4.8/§12.3. May be nil. Never called when every
// column failed to produce a candidate at all (nothing to attribute).
type SplitObserver func(spec ColumnSpec, gain float64, accepted bool)

// Fit grows this node (and its subtree) over indices, the matches it
// owns, following spec.md §4.7's fit algorithm. agg is the single
// aggregator bound to this tree's aggregated value; on entry, every match
// in indices must already be activated and committed — the node's own
// baseline ŷ contribution. columns enumerates every eligible split
// source at this node. observe, if non-nil, is called once per node with
// its best candidate and whether it was accepted.
func (n *Node) Fit(agg *aggregate.Aggregator, crit *criterion.Criterion, store *reldata.Store, indices []int, columns []ColumnSpec, cfg Config, reducer reduce.Reducer, observe SplitObserver, depth int) {
	sampleSize := reducer.AllReduceSum(float64(len(indices)))
	if depth >= cfg.MaxDepth || sampleSize < float64(2*cfg.MinNumSamples) {
		n.IsLeaf = true
		return
	}

	sc := splitsearch.Config{GridFactor: cfg.GridFactor, ShareConditions: cfg.ShareConditions}
	selected := splitsearch.SampleColumns(len(columns), sc, cfg.RandomSeed+int64(depth))

	var best *trial
	for _, ci := range selected {
		spec := columns[ci]
		var t *trial
		switch spec.Kind {
		case KindCategorical:
			t = n.enumerateCategorical(agg, crit, store, indices, spec, cfg)
		case KindText:
			t = n.enumerateText(agg, crit, store, indices, spec, cfg)
		default:
			t = n.enumerateNumerical(agg, crit, store, indices, spec, cfg)
		}
		if t == nil {
			continue
		}
		if best == nil || t.delta() > best.delta() {
			best = t
		}
	}

	// Reduce the locally best gain across ranks so every rank's accept
	// decision agrees even when a model-parallel build spreads columns
	// across processes (spec.md §5); Local/WorkerPool are single-process
	// and return the gain unchanged.
	localGain := math.Inf(-1)
	if best != nil {
		localGain = best.delta()
	}
	gain := reducer.AllReduceMax(localGain)

	if best == nil || gain <= cfg.Regularization+acceptThreshold {
		if best != nil && observe != nil {
			observe(best.spec, best.delta(), false)
		}
		n.IsLeaf = true
		return
	}

	n.applyTrial(agg, best)
	agg.Commit()
	if observe != nil {
		observe(best.spec, best.delta(), true)
	}

	smaller, greater := partitionByActivated(agg, indices)

	n.ChildGreater = &Node{}
	n.ChildGreater.Fit(agg, crit, store, greater, columns, cfg, reducer, observe, depth+1)

	// Re-derive the baseline Fit requires on entry for the other child:
	// everything in greater backed out, everything in smaller activated.
	deactivateAllCommitted(agg, greater)
	activateAllCommitted(agg, smaller)

	n.ChildSmaller = &Node{}
	n.ChildSmaller.Fit(agg, crit, store, smaller, columns, cfg, reducer, observe, depth+1)

	// ChildSmaller's own fit shared and mutated the same aggregator, and
	// the baseline switch above deactivated greater, so replay this node's
	// stored split, and through it both children's, before returning:
	// Transform is a pure function of each node's own fields plus the
	// data, so this leaves the aggregator in exactly the state Transform
	// produces over the same matches, regardless of the order the two
	// subtrees were fit in.
	n.Transform(agg, store, indices, columns)
}

// enumerateNumerical sweeps both directions of a numerical/discrete/
// time-lag column and returns the better of its two directions, or nil if
// the column has too few distinct positions to split on.
func (n *Node) enumerateNumerical(agg *aggregate.Aggregator, crit *criterion.Criterion, store *reldata.Store, indices []int, spec ColumnSpec, cfg Config) *trial {
	order := splitsearch.NumericalOrderIndices(store, indices, spec.Provider.Value)
	if len(order) < 2 {
		return nil
	}
	seps := splitsearch.Grid(len(order), splitsearch.Config{GridFactor: cfg.GridFactor})
	if len(seps) == 0 {
		return nil
	}

	baseline := crit.Current()
	crit.ClearStorage()

	above := splitsearch.SweepNumericalThreshold(agg, crit, order, seps, spec.Provider.Value)
	below := splitsearch.SweepNumericalThresholdBelow(agg, crit, order, seps, spec.Provider.Value)

	bestIx := crit.FindMaximum()
	for i, c := range above {
		if c.StorageIx == bestIx {
			return &trial{cand: c, spec: spec, above: true, order: order, sep: seps[i], baseline: baseline, critVal: crit.ValueAt(bestIx)}
		}
	}
	for i, c := range below {
		if c.StorageIx == bestIx {
			return &trial{cand: c, spec: spec, below: true, order: order, sep: seps[i], baseline: baseline, critVal: crit.ValueAt(bestIx)}
		}
	}
	return nil
}

// enumerateCategorical builds the category index and tests both
// directions spec.md §4.6 requires: the "containing" sweep
// (singletons, then, if allowed and there are enough categories, ranked
// prefix sets) and its "not containing" complement. The containment sweep
// (aggregate.Aggregator.ActivateMatchesContainingCategories) measures each
// category against a "nothing activated" baseline, while the complement
// sweep (ActivateMatchesNotContainingCategories) measures against
// "everything activated" — so this flips the committed baseline down to
// empty for the first sweep, back up to full for the second, and leaves
// it at full activation before returning, matching the baseline every
// other column's enumeration (and the node's own ŷ contribution) expects.
func (n *Node) enumerateCategorical(agg *aggregate.Aggregator, crit *criterion.Criterion, store *reldata.Store, indices []int, spec ColumnSpec, cfg Config) *trial {
	idx := catindex.BuildCategoryIndexFromIndices(store, indices, spec.CategoryOf)
	if idx.Len() == 0 {
		return nil
	}

	baseline := crit.Current()
	deactivateAllCommitted(agg, indices)
	crit.ClearStorage()

	singletons := splitsearch.SweepCategorySingletons(agg, idx)
	var sets []splitsearch.Candidate
	if cfg.AllowSets && idx.Len() >= 3 {
		sets = splitsearch.SweepCategorySets(agg, crit, idx, singletons)
	}

	activateAllCommitted(agg, indices)

	complementSingletons := splitsearch.SweepCategorySingletonsComplement(agg, idx)
	var complementSets []splitsearch.Candidate
	if cfg.AllowSets && idx.Len() >= 3 {
		complementSets = splitsearch.SweepCategorySetsComplement(agg, crit, idx, complementSingletons)
	}

	bestIx := crit.FindMaximum()
	var best *trial
	for _, c := range singletons {
		if c.StorageIx == bestIx {
			best = &trial{cand: c, spec: spec, catIdx: idx, baseline: baseline, critVal: crit.ValueAt(bestIx)}
		}
	}
	for _, c := range sets {
		if c.StorageIx == bestIx {
			best = &trial{cand: c, spec: spec, catIdx: idx, baseline: baseline, critVal: crit.ValueAt(bestIx)}
		}
	}
	for _, c := range complementSingletons {
		if c.StorageIx == bestIx {
			best = &trial{cand: c, spec: spec, catIdx: idx, complement: true, baseline: baseline, critVal: crit.ValueAt(bestIx)}
		}
	}
	for _, c := range complementSets {
		if c.StorageIx == bestIx {
			best = &trial{cand: c, spec: spec, catIdx: idx, complement: true, baseline: baseline, critVal: crit.ValueAt(bestIx)}
		}
	}

	return best
}

// enumerateText is enumerateCategorical's text-column analogue, built
// from a WordIndex rather than a CategoryIndex but otherwise sweeping the
// same two directions over the same baseline-flip discipline (spec.md
// §4.3/§4.4's "…_containing_words, …_not_containing_words, analogous").
func (n *Node) enumerateText(agg *aggregate.Aggregator, crit *criterion.Criterion, store *reldata.Store, indices []int, spec ColumnSpec, cfg Config) *trial {
	idx := catindex.BuildWordIndexFromIndices(store, indices, spec.TokensOf)
	if idx.Len() == 0 {
		return nil
	}

	baseline := crit.Current()
	deactivateAllCommitted(agg, indices)
	crit.ClearStorage()

	singletons := splitsearch.SweepWordSingletons(agg, idx)
	var sets []splitsearch.Candidate
	if cfg.AllowSets && idx.Len() >= 3 {
		sets = splitsearch.SweepWordSets(agg, crit, idx, singletons)
	}

	activateAllCommitted(agg, indices)

	complementSingletons := splitsearch.SweepWordSingletonsComplement(agg, idx)
	var complementSets []splitsearch.Candidate
	if cfg.AllowSets && idx.Len() >= 3 {
		complementSets = splitsearch.SweepWordSetsComplement(agg, crit, idx, complementSingletons)
	}

	bestIx := crit.FindMaximum()
	var best *trial
	for _, c := range singletons {
		if c.StorageIx == bestIx {
			best = &trial{cand: c, spec: spec, wordIdx: idx, baseline: baseline, critVal: crit.ValueAt(bestIx)}
		}
	}
	for _, c := range sets {
		if c.StorageIx == bestIx {
			best = &trial{cand: c, spec: spec, wordIdx: idx, baseline: baseline, critVal: crit.ValueAt(bestIx)}
		}
	}
	for _, c := range complementSingletons {
		if c.StorageIx == bestIx {
			best = &trial{cand: c, spec: spec, wordIdx: idx, complement: true, baseline: baseline, critVal: crit.ValueAt(bestIx)}
		}
	}
	for _, c := range complementSets {
		if c.StorageIx == bestIx {
			best = &trial{cand: c, spec: spec, wordIdx: idx, complement: true, baseline: baseline, critVal: crit.ValueAt(bestIx)}
		}
	}

	return best
}

// applyTrial replays the winning trial's activation pattern on agg,
// leaving it in the state that Fit then commits.
func (n *Node) applyTrial(agg *aggregate.Aggregator, t *trial) {
	n.DataUsed = t.spec.DataUsed
	n.ColumnUsed = t.spec.ColumnUsed
	n.CategoriesUsed = t.cand.Categories

	switch {
	case t.spec.Kind == KindCategorical:
		// ApplyFromAbove doubles as the containing/not-containing flag
		// here, the same way it names the above/below direction for a
		// numerical split: true means a match activates when it belongs
		// to CategoriesUsed, false means it activates when it doesn't
		// (see the matching formula in Transform).
		n.ApplyFromAbove = !t.complement
		if t.complement {
			for _, idx := range t.catIdx.AllMatches() {
				if !agg.IsActivated(idx) {
					agg.Activate(idx)
				}
			}
			for _, code := range t.cand.Categories {
				agg.DeactivateCategory(t.catIdx, code)
			}
		} else {
			for _, idx := range t.catIdx.AllMatches() {
				if agg.IsActivated(idx) {
					agg.Deactivate(idx)
				}
			}
			for _, code := range t.cand.Categories {
				agg.ActivateCategory(t.catIdx, code)
			}
		}
		agg.UpdateOptimisationCriterionAndClearUpdatesCurrent()
	case t.spec.Kind == KindText:
		n.ApplyFromAbove = !t.complement
		if t.complement {
			for _, idx := range t.wordIdx.AllMatches() {
				if !agg.IsActivated(idx) {
					agg.Activate(idx)
				}
			}
			for _, tok := range t.cand.Categories {
				agg.DeactivateWord(t.wordIdx, uint32(tok))
			}
		} else {
			for _, idx := range t.wordIdx.AllMatches() {
				if agg.IsActivated(idx) {
					agg.Deactivate(idx)
				}
			}
			for _, tok := range t.cand.Categories {
				agg.ActivateWord(t.wordIdx, uint32(tok))
			}
		}
		agg.UpdateOptimisationCriterionAndClearUpdatesCurrent()
	case t.above:
		n.ApplyFromAbove = true
		n.CriticalValue = t.cand.CriticalValue
		for k := t.sep; k < len(t.order); k++ {
			if !agg.IsActivated(t.order[k]) {
				agg.Activate(t.order[k])
			}
		}
		for k := 0; k < t.sep; k++ {
			if agg.IsActivated(t.order[k]) {
				agg.Deactivate(t.order[k])
			}
		}
		agg.UpdateOptimisationCriterionAndClearUpdatesCurrent()
	case t.below:
		n.ApplyFromAbove = false
		n.CriticalValue = t.cand.CriticalValue
		for k := 0; k < t.sep; k++ {
			if !agg.IsActivated(t.order[k]) {
				agg.Activate(t.order[k])
			}
		}
		for k := t.sep; k < len(t.order); k++ {
			if agg.IsActivated(t.order[k]) {
				agg.Deactivate(t.order[k])
			}
		}
		agg.UpdateOptimisationCriterionAndClearUpdatesCurrent()
	}
}

// FitAsRoot activates every match in r, commits that as the starting
// state, and delegates to Fit (spec.md §4.7). r must be the full
// contiguous range the tree's Aggregator was constructed over.
func (n *Node) FitAsRoot(agg *aggregate.Aggregator, crit *criterion.Criterion, store *reldata.Store, r reldata.Range, columns []ColumnSpec, cfg Config, reducer reduce.Reducer, observe SplitObserver) {
	agg.ActivateAll(r, true)
	agg.Commit()
	indices := make([]int, r.Len())
	for k := range indices {
		indices[k] = r.Begin + k
	}
	n.Fit(agg, crit, store, indices, columns, cfg, reducer, observe, 0)
}

// columnIndex finds the ColumnSpec matching this node's split, so
// Transform can rebuild the provider/category function it needs.
func (n *Node) columnIndex(columns []ColumnSpec) (ColumnSpec, bool) {
	for _, c := range columns {
		if c.DataUsed == n.DataUsed && c.ColumnUsed == n.ColumnUsed {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// Transform replays this node's stored split over the matches it owns,
// driving agg's activation state and descending into the two resulting
// subsets (spec.md §4.7). Leaves are no-ops: their matches retain
// whatever activation their ancestors left them in.
func (n *Node) Transform(agg *aggregate.Aggregator, store *reldata.Store, indices []int, columns []ColumnSpec) {
	if n.IsLeaf {
		return
	}
	spec, ok := n.columnIndex(columns)
	relerr.Invariant(ok, "transform: no column spec for data source %s column %d", n.DataUsed, n.ColumnUsed)

	switch spec.Kind {
	case KindCategorical:
		set := make(map[int64]bool, len(n.CategoriesUsed))
		for _, c := range n.CategoriesUsed {
			set[c] = true
		}
		for _, i := range indices {
			m := store.Match(i)
			belongs := set[spec.CategoryOf(m)]
			activate := belongs == n.ApplyFromAbove
			if activate && !m.Activated {
				agg.Activate(i)
			} else if !activate && m.Activated {
				agg.Deactivate(i)
			}
		}
	case KindText:
		set := make(map[uint32]bool, len(n.CategoriesUsed))
		for _, c := range n.CategoriesUsed {
			set[uint32(c)] = true
		}
		for _, i := range indices {
			m := store.Match(i)
			containsAny := false
			for _, tok := range spec.TokensOf(m) {
				if set[tok] {
					containsAny = true
					break
				}
			}
			activate := containsAny == n.ApplyFromAbove
			if activate && !m.Activated {
				agg.Activate(i)
			} else if !activate && m.Activated {
				agg.Deactivate(i)
			}
		}
	default:
		for _, i := range indices {
			m := store.Match(i)
			v := spec.Provider.Value(m)
			above := v > n.CriticalValue
			activate := above == n.ApplyFromAbove
			if activate && !m.Activated {
				agg.Activate(i)
			} else if !activate && m.Activated {
				agg.Deactivate(i)
			}
		}
	}
	agg.UpdateOptimisationCriterionAndClearUpdatesCurrent()
	agg.Commit()

	smaller, greater := partitionByActivated(agg, indices)
	n.ChildSmaller.Transform(agg, store, smaller, columns)
	n.ChildGreater.Transform(agg, store, greater, columns)
}

// TransformAsRoot is Transform's entry point over a fresh contiguous
// match range — the new data a fitted tree is replayed over at score
// time (spec.md §4.7). Like FitAsRoot it first activates every match in
// r, so a root that is a leaf emits the fully activated aggregate just as
// it does at fit time; unlike FitAsRoot it does not seed the criterion,
// since a transform needs only the activation pattern each leaf's matches
// end up with.
func (n *Node) TransformAsRoot(agg *aggregate.Aggregator, store *reldata.Store, r reldata.Range, columns []ColumnSpec) {
	agg.ActivateAll(r, false)
	indices := make([]int, r.Len())
	for k := range indices {
		indices[k] = r.Begin + k
	}
	n.Transform(agg, store, indices, columns)
}
